package crdt

import (
	"fmt"
	"sync"
	"time"
)

// LWWRegister is a last-write-wins register holding one committed field
// value. Writes are ordered by timestamp; timestamp ties are broken by
// lexicographic comparison of the writer's change ID, so replicas converge
// on the same value regardless of delivery order.
type LWWRegister struct {
	mu        sync.RWMutex
	value     interface{}
	timestamp time.Time
	changeID  string
}

// NewLWWRegister creates an empty register
func NewLWWRegister() *LWWRegister {
	return &LWWRegister{}
}

// Set applies a write. The write wins if it is newer, or carries the
// lexicographically larger change ID on a timestamp tie.
func (r *LWWRegister) Set(value interface{}, timestamp time.Time, changeID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if timestamp.After(r.timestamp) || (timestamp.Equal(r.timestamp) && changeID > r.changeID) {
		r.value = value
		r.timestamp = timestamp
		r.changeID = changeID
		return true
	}
	return false
}

// Get returns the current value
func (r *LWWRegister) Get() interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.value
}

// GetWithMetadata returns the value with its timestamp and winning change ID
func (r *LWWRegister) GetWithMetadata() (interface{}, time.Time, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.value, r.timestamp, r.changeID
}

// Merge combines this register with another using the same LWW rule
func (r *LWWRegister) Merge(other *LWWRegister) error {
	if other == nil {
		return fmt.Errorf("cannot merge nil register")
	}

	other.mu.RLock()
	value, timestamp, changeID := other.value, other.timestamp, other.changeID
	other.mu.RUnlock()

	r.Set(value, timestamp, changeID)
	return nil
}

// Clone creates a deep copy of the register
func (r *LWWRegister) Clone() *LWWRegister {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return &LWWRegister{
		value:     r.value,
		timestamp: r.timestamp,
		changeID:  r.changeID,
	}
}
