package collaboration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prfowler23/estimatepro-2.5-sub004/pkg/models"
)

func TestPresenceTracker(t *testing.T) {
	t.Run("join and list", func(t *testing.T) {
		tracker := NewPresenceTracker(45 * time.Second)

		tracker.Join("u2", models.CollaboratorPresence{UserName: "Bea", Role: models.RoleEditor})
		tracker.Join("u1", models.CollaboratorPresence{UserName: "Al", Role: models.RoleOwner})

		list := tracker.List()
		require.Len(t, list, 2)
		assert.Equal(t, "u1", list[0].UserID)
		assert.Equal(t, "u2", list[1].UserID)
		assert.True(t, list[0].IsActive)
		assert.Equal(t, 1, list[0].CurrentStep)
	})

	t.Run("update is a shallow merge", func(t *testing.T) {
		tracker := NewPresenceTracker(45 * time.Second)
		tracker.Join("u1", models.CollaboratorPresence{UserName: "Al", Role: models.RoleOwner})

		step := 3
		fieldID := "area_of_work.total_area"
		stepID := "areaOfWork"
		tracker.Update("u1", PresencePatch{
			CurrentStep:   &step,
			CursorStepID:  &stepID,
			CursorFieldID: &fieldID,
		})

		p, ok := tracker.Get("u1")
		require.True(t, ok)
		assert.Equal(t, "Al", p.UserName)
		assert.Equal(t, 3, p.CurrentStep)
		require.NotNil(t, p.Cursor)
		assert.Equal(t, fieldID, p.Cursor.FieldID)
		assert.Equal(t, stepID, p.Cursor.StepID)
	})

	t.Run("blur clears field cursor only", func(t *testing.T) {
		tracker := NewPresenceTracker(45 * time.Second)
		tracker.Join("u1", models.CollaboratorPresence{UserName: "Al", Role: models.RoleOwner})

		fieldID := "pricing.total_price"
		stepID := "pricing"
		tracker.Update("u1", PresencePatch{CursorStepID: &stepID, CursorFieldID: &fieldID})

		blur := ""
		tracker.Update("u1", PresencePatch{CursorFieldID: &blur})

		p, _ := tracker.Get("u1")
		require.NotNil(t, p.Cursor)
		assert.Empty(t, p.Cursor.FieldID)
		assert.Equal(t, stepID, p.Cursor.StepID)
	})

	t.Run("update for unknown user is a no-op", func(t *testing.T) {
		tracker := NewPresenceTracker(45 * time.Second)
		step := 2
		tracker.Update("ghost", PresencePatch{CurrentStep: &step})
		assert.Empty(t, tracker.List())
	})

	t.Run("heartbeat timeout marks inactive without removal", func(t *testing.T) {
		tracker := NewPresenceTracker(45 * time.Second)
		now := time.Now()
		tracker.now = func() time.Time { return now }

		tracker.Join("u1", models.CollaboratorPresence{UserName: "Al", Role: models.RoleOwner})
		tracker.Join("u2", models.CollaboratorPresence{UserName: "Bea", Role: models.RoleEditor})

		// u2 heartbeats a minute later, u1 goes quiet
		now = now.Add(time.Minute)
		tracker.Update("u2", PresencePatch{})

		flipped := tracker.SweepInactive()
		assert.Equal(t, []string{"u1"}, flipped)

		p, ok := tracker.Get("u1")
		require.True(t, ok, "inactive user must stay listed for attribution")
		assert.False(t, p.IsActive)

		p2, _ := tracker.Get("u2")
		assert.True(t, p2.IsActive)
	})

	t.Run("leave removes the record", func(t *testing.T) {
		tracker := NewPresenceTracker(45 * time.Second)
		tracker.Join("u1", models.CollaboratorPresence{UserName: "Al", Role: models.RoleOwner})
		tracker.Leave("u1")
		_, ok := tracker.Get("u1")
		assert.False(t, ok)
	})
}
