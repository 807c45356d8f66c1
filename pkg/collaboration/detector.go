package collaboration

import (
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/prfowler23/estimatepro-2.5-sub004/pkg/models"
)

// ConflictDetector flags uncoordinated writes to the same field. It is a
// pure function of the incoming change and the recent history for that
// field path; it never mutates either side.
type ConflictDetector struct{}

// NewConflictDetector creates a detector
func NewConflictDetector() *ConflictDetector {
	return &ConflictDetector{}
}

// Check inspects an incoming change against the recent changes for the same
// field path (most recent first) and returns a Conflict when the incoming
// change was not based on the latest known value written by another user.
//
// Rules:
//   - changes by the same user never conflict;
//   - only the latest other-user write decides: history behind it has been
//     superseded and never conflicts on its own;
//   - an incoming change whose new value matches the latest other-user write
//     converged on it, so no conflict;
//   - an incoming change whose old value matches the latest other-user write
//     was based on it, so no conflict;
//   - on identical timestamps the change with the lexicographically smaller
//     ID plays the "local" role and the other the "incoming" role, which
//     keeps detection deterministic across replicas.
func (d *ConflictDetector) Check(incoming models.RealTimeChange, recent []models.RealTimeChange) *models.Conflict {
	var locals []models.RealTimeChange
	for _, c := range recent {
		if c.FieldPath != incoming.FieldPath || c.UserID == incoming.UserID {
			continue
		}
		if c.ID == incoming.ID {
			continue
		}
		if len(locals) == 0 {
			if valuesEqual(c.NewValue, incoming.NewValue) {
				// Both writers arrived at the same value
				return nil
			}
			if valuesEqual(c.NewValue, incoming.OldValue) {
				// Incoming was based on the latest other-user write, so
				// everything older is causally behind its base
				return nil
			}
		}
		locals = append(locals, c)
	}

	if len(locals) == 0 {
		return nil
	}

	local, incomingSide := orderRoles(locals[0], incoming)
	// Keep every other-user change for the path so the resolver can show
	// the full local context
	localChanges := append([]models.RealTimeChange{local}, locals[1:]...)

	return &models.Conflict{
		ID:             uuid.New(),
		EstimateID:     incoming.EstimateID,
		FieldPath:      incoming.FieldPath,
		LocalChanges:   localChanges,
		IncomingChange: incomingSide,
		ConflictTime:   time.Now(),
	}
}

// orderRoles decides which change is "local" and which is "incoming".
// Normally the historical change is local; on a timestamp tie the change
// with the lexicographically smaller ID is local.
func orderRoles(historical, incoming models.RealTimeChange) (local, inc models.RealTimeChange) {
	if historical.Timestamp.Equal(incoming.Timestamp) {
		if incoming.ID.String() < historical.ID.String() {
			return incoming, historical
		}
	}
	return historical, incoming
}

func valuesEqual(a, b interface{}) bool {
	return reflect.DeepEqual(a, b)
}
