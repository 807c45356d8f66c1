// Package collaboration implements the real-time collaborative editing core
// for shared estimates: presence tracking, bounded change history, conflict
// detection, permission gating, and the converged per-field value store.
package collaboration

import (
	"sync"

	"github.com/prfowler23/estimatepro-2.5-sub004/pkg/collaboration/crdt"
	"github.com/prfowler23/estimatepro-2.5-sub004/pkg/models"
)

// FieldStateStore holds the committed value of every field on one estimate.
// Each field is a last-write-wins register, so concurrent commits from
// different sessions converge deterministically: later timestamp wins,
// timestamp ties fall to the lexicographically larger change ID. This is the
// same ordering rule the conflict detector uses, which keeps the committed
// state and the conflict labels consistent.
type FieldStateStore struct {
	mu        sync.RWMutex
	nodeID    crdt.NodeID
	clock     crdt.VectorClock
	registers map[string]*crdt.LWWRegister
}

// NewFieldStateStore creates a store for one estimate session
func NewFieldStateStore(nodeID string) *FieldStateStore {
	return &FieldStateStore{
		nodeID:    crdt.NodeID(nodeID),
		clock:     crdt.NewVectorClock(),
		registers: make(map[string]*crdt.LWWRegister),
	}
}

// Commit applies a change's new value to the field's register. It returns
// true when the change became the committed value, false when a newer write
// already holds the register.
func (s *FieldStateStore) Commit(change models.RealTimeChange) bool {
	s.mu.Lock()
	reg, ok := s.registers[change.FieldPath]
	if !ok {
		reg = crdt.NewLWWRegister()
		s.registers[change.FieldPath] = reg
	}
	s.clock.Increment(s.nodeID)
	s.mu.Unlock()

	return reg.Set(change.NewValue, change.Timestamp, change.ID.String())
}

// Value returns the committed value for a field path
func (s *FieldStateStore) Value(fieldPath string) (interface{}, bool) {
	s.mu.RLock()
	reg, ok := s.registers[fieldPath]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return reg.Get(), true
}

// Snapshot returns the committed value of every field
func (s *FieldStateStore) Snapshot() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make(map[string]interface{}, len(s.registers))
	for path, reg := range s.registers {
		snapshot[path] = reg.Get()
	}
	return snapshot
}

// Clock returns a copy of the session's vector clock
func (s *FieldStateStore) Clock() crdt.VectorClock {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clock.Clone()
}

// MergeRemote folds a remote session's clock into this one
func (s *FieldStateStore) MergeRemote(remote crdt.VectorClock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock.Update(remote)
}
