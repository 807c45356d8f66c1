package collaboration

import (
	"sync"

	"github.com/google/uuid"

	"github.com/prfowler23/estimatepro-2.5-sub004/pkg/models"
)

// DefaultHistoryLimit caps the per-estimate change history
const DefaultHistoryLimit = 50

// ChangeLog is the bounded, most-recent-first history of changes for one
// estimate. Changes are immutable once appended; the log only ever drops
// the oldest entries past the cap.
type ChangeLog struct {
	mu      sync.RWMutex
	changes []models.RealTimeChange
	limit   int
}

// NewChangeLog creates a log with the given cap. A non-positive limit falls
// back to DefaultHistoryLimit.
func NewChangeLog(limit int) *ChangeLog {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &ChangeLog{limit: limit}
}

// Append records a change at the head of the history
func (l *ChangeLog) Append(change models.RealTimeChange) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.changes = append([]models.RealTimeChange{change}, l.changes...)
	if len(l.changes) > l.limit {
		l.changes = l.changes[:l.limit]
	}
}

// Recent returns up to n changes, most recent first. n <= 0 returns all.
func (l *ChangeLog) Recent(n int) []models.RealTimeChange {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || n > len(l.changes) {
		n = len(l.changes)
	}
	out := make([]models.RealTimeChange, n)
	copy(out, l.changes[:n])
	return out
}

// ForField returns the retained changes targeting one field path, most
// recent first
func (l *ChangeLog) ForField(fieldPath string) []models.RealTimeChange {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []models.RealTimeChange
	for _, c := range l.changes {
		if c.FieldPath == fieldPath {
			out = append(out, c)
		}
	}
	return out
}

// Contains reports whether a change with the given ID is retained. Used to
// dedupe redelivered remote changes.
func (l *ChangeLog) Contains(id uuid.UUID) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, c := range l.changes {
		if c.ID == id {
			return true
		}
	}
	return false
}

// Len returns the number of retained changes
func (l *ChangeLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.changes)
}
