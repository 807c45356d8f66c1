package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prfowler23/estimatepro-2.5-sub004/pkg/models"
)

func TestInMemoryCollaboratorRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryCollaboratorRepository()

	collaborator := &models.Collaborator{
		EstimateID: "est-1",
		UserID:     "u1",
		UserName:   "Al",
		Email:      "al@example.com",
		Role:       models.RoleOwner,
		JoinedAt:   time.Now(),
	}
	require.NoError(t, repo.Add(ctx, collaborator))

	t.Run("get returns a copy", func(t *testing.T) {
		got, err := repo.Get(ctx, "est-1", "u1")
		require.NoError(t, err)
		got.Role = models.RoleViewer

		again, err := repo.Get(ctx, "est-1", "u1")
		require.NoError(t, err)
		assert.Equal(t, models.RoleOwner, again.Role)
	})

	t.Run("update role", func(t *testing.T) {
		require.NoError(t, repo.UpdateRole(ctx, "est-1", "u1", models.RoleEditor))
		got, err := repo.Get(ctx, "est-1", "u1")
		require.NoError(t, err)
		assert.Equal(t, models.RoleEditor, got.Role)

		assert.ErrorIs(t, repo.UpdateRole(ctx, "est-1", "ghost", models.RoleEditor), ErrNotFound)
	})

	t.Run("list sorted by user id", func(t *testing.T) {
		require.NoError(t, repo.Add(ctx, &models.Collaborator{EstimateID: "est-1", UserID: "u0", Role: models.RoleViewer}))
		list, err := repo.List(ctx, "est-1")
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "u0", list[0].UserID)
	})

	t.Run("remove", func(t *testing.T) {
		require.NoError(t, repo.Remove(ctx, "est-1", "u0"))
		_, err := repo.Get(ctx, "est-1", "u0")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, repo.Remove(ctx, "est-1", "u0"), ErrNotFound)
	})
}

func TestInMemoryChangeRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryChangeRepository()

	first := &models.RealTimeChange{ID: uuid.New(), EstimateID: "est-1", UserID: "u1", FieldPath: "a", Timestamp: time.Now()}
	second := &models.RealTimeChange{ID: uuid.New(), EstimateID: "est-1", UserID: "u2", FieldPath: "b", Timestamp: time.Now()}
	require.NoError(t, repo.Append(ctx, first))
	require.NoError(t, repo.Append(ctx, second))

	recent, err := repo.ListRecent(ctx, "est-1", 0)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, second.ID, recent[0].ID)

	limited, err := repo.ListRecent(ctx, "est-1", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	empty, err := repo.ListRecent(ctx, "est-2", 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestInMemoryConflictRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryConflictRepository()

	conflict := &models.Conflict{
		ID:           uuid.New(),
		EstimateID:   "est-1",
		FieldPath:    "pricing.total_price",
		ConflictTime: time.Now(),
	}
	require.NoError(t, repo.Save(ctx, conflict))

	got, err := repo.Get(ctx, conflict.ID)
	require.NoError(t, err)
	assert.Equal(t, conflict.FieldPath, got.FieldPath)

	byField, err := repo.OpenForField(ctx, "est-1", "pricing.total_price")
	require.NoError(t, err)
	assert.Equal(t, conflict.ID, byField.ID)

	open, err := repo.ListOpen(ctx, "est-1")
	require.NoError(t, err)
	assert.Len(t, open, 1)

	require.NoError(t, repo.Delete(ctx, conflict.ID))
	_, err = repo.Get(ctx, conflict.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, conflict.ID), ErrNotFound)
}
