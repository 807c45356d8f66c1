package collaboration

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prfowler23/estimatepro-2.5-sub004/pkg/models"
)

func makeChange(userID, fieldPath string, newValue interface{}) models.RealTimeChange {
	return models.RealTimeChange{
		ID:         uuid.New(),
		EstimateID: "est-1",
		UserID:     userID,
		FieldPath:  fieldPath,
		NewValue:   newValue,
		ChangeType: models.ChangeTypeFieldUpdate,
		Timestamp:  time.Now(),
	}
}

func TestChangeLog(t *testing.T) {
	t.Run("most recent first", func(t *testing.T) {
		log := NewChangeLog(10)
		log.Append(makeChange("u1", "a", 1))
		second := makeChange("u1", "a", 2)
		log.Append(second)

		recent := log.Recent(0)
		require.Len(t, recent, 2)
		assert.Equal(t, second.ID, recent[0].ID)
	})

	t.Run("bounded at limit", func(t *testing.T) {
		log := NewChangeLog(50)
		for i := 0; i < 60; i++ {
			log.Append(makeChange("u1", fmt.Sprintf("f%d", i), i))
		}
		assert.Equal(t, 50, log.Len())

		// The newest change survives, the oldest ten are gone
		recent := log.Recent(0)
		assert.Equal(t, "f59", recent[0].FieldPath)
		assert.Equal(t, "f10", recent[len(recent)-1].FieldPath)
	})

	t.Run("recent caps requested count", func(t *testing.T) {
		log := NewChangeLog(10)
		for i := 0; i < 5; i++ {
			log.Append(makeChange("u1", "a", i))
		}
		assert.Len(t, log.Recent(3), 3)
		assert.Len(t, log.Recent(100), 5)
	})

	t.Run("for field filters by path", func(t *testing.T) {
		log := NewChangeLog(10)
		log.Append(makeChange("u1", "a", 1))
		log.Append(makeChange("u2", "b", 2))
		log.Append(makeChange("u1", "a", 3))

		forA := log.ForField("a")
		require.Len(t, forA, 2)
		assert.Equal(t, 3, forA[0].NewValue)
		assert.Empty(t, log.ForField("c"))
	})
}
