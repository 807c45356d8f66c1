package collaboration

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prfowler23/estimatepro-2.5-sub004/pkg/models"
)

func changeAt(userID, fieldPath string, oldValue, newValue interface{}, ts time.Time) models.RealTimeChange {
	return models.RealTimeChange{
		ID:         uuid.New(),
		EstimateID: "est-1",
		UserID:     userID,
		FieldPath:  fieldPath,
		OldValue:   oldValue,
		NewValue:   newValue,
		ChangeType: models.ChangeTypeFieldUpdate,
		Timestamp:  ts,
	}
}

func TestConflictDetector(t *testing.T) {
	detector := NewConflictDetector()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("stale write by another user conflicts", func(t *testing.T) {
		// u2 rewrote the field; u1's change is still based on the old value
		prior := changeAt("u2", "pricing.total_price", 1000, 1200, base)
		incoming := changeAt("u1", "pricing.total_price", 1000, 1500, base.Add(time.Second))

		conflict := detector.Check(incoming, []models.RealTimeChange{prior})
		require.NotNil(t, conflict)
		assert.Equal(t, "pricing.total_price", conflict.FieldPath)
		assert.Equal(t, prior.ID, conflict.LocalChanges[0].ID)
		assert.Equal(t, incoming.ID, conflict.IncomingChange.ID)
	})

	t.Run("change based on latest value does not conflict", func(t *testing.T) {
		prior := changeAt("u2", "duration.estimated_hours", 8, 12, base)
		incoming := changeAt("u1", "duration.estimated_hours", 12, 16, base.Add(time.Second))

		assert.Nil(t, detector.Check(incoming, []models.RealTimeChange{prior}))
	})

	t.Run("same user never conflicts", func(t *testing.T) {
		prior := changeAt("u1", "a", 1, 2, base)
		incoming := changeAt("u1", "a", 1, 3, base.Add(time.Second))
		assert.Nil(t, detector.Check(incoming, []models.RealTimeChange{prior}))
	})

	t.Run("other field paths are ignored", func(t *testing.T) {
		prior := changeAt("u2", "b", 1, 2, base)
		incoming := changeAt("u1", "a", 1, 3, base.Add(time.Second))
		assert.Nil(t, detector.Check(incoming, []models.RealTimeChange{prior}))
	})

	t.Run("history behind the observed base does not conflict", func(t *testing.T) {
		// u2 wrote "y" then "x"; u1 read "x" and writes "z". The older "y"
		// entry was superseded and must not resurface as a conflict.
		older := changeAt("u2", "scope.notes", nil, "y", base)
		latest := changeAt("u2", "scope.notes", "y", "x", base.Add(time.Second))
		incoming := changeAt("u1", "scope.notes", "x", "z", base.Add(2*time.Second))

		assert.Nil(t, detector.Check(incoming, []models.RealTimeChange{latest, older}))
	})

	t.Run("base older than the latest write still conflicts", func(t *testing.T) {
		older := changeAt("u2", "scope.notes", nil, "y", base)
		latest := changeAt("u2", "scope.notes", "y", "x", base.Add(time.Second))
		incoming := changeAt("u1", "scope.notes", "y", "z", base.Add(2*time.Second))

		conflict := detector.Check(incoming, []models.RealTimeChange{latest, older})
		require.NotNil(t, conflict)
		assert.Equal(t, latest.ID, conflict.LocalChanges[0].ID, "latest other-user write plays the local role")
	})

	t.Run("identical new values converge without conflict", func(t *testing.T) {
		prior := changeAt("u2", "a", 1, 5, base)
		incoming := changeAt("u1", "a", 1, 5, base.Add(time.Second))
		assert.Nil(t, detector.Check(incoming, []models.RealTimeChange{prior}))
	})

	t.Run("convergence on the latest write ignores superseded history", func(t *testing.T) {
		older := changeAt("u2", "a", 1, 3, base)
		latest := changeAt("u2", "a", 3, 5, base.Add(time.Second))
		incoming := changeAt("u1", "a", 1, 5, base.Add(2*time.Second))
		assert.Nil(t, detector.Check(incoming, []models.RealTimeChange{latest, older}))
	})

	t.Run("timestamp tie breaks on lexicographically smaller id", func(t *testing.T) {
		prior := changeAt("u2", "a", 1, 2, base)
		incoming := changeAt("u1", "a", 1, 3, base)

		conflict := detector.Check(incoming, []models.RealTimeChange{prior})
		require.NotNil(t, conflict)

		smaller, larger := prior, incoming
		if incoming.ID.String() < prior.ID.String() {
			smaller, larger = incoming, prior
		}
		assert.Equal(t, smaller.ID, conflict.LocalChanges[0].ID, "smaller id plays the local role")
		assert.Equal(t, larger.ID, conflict.IncomingChange.ID)
	})

	t.Run("empty history never conflicts", func(t *testing.T) {
		incoming := changeAt("u1", "a", nil, 1, base)
		assert.Nil(t, detector.Check(incoming, nil))
	})
}
