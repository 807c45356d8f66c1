package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLockService(t *testing.T) (FieldLockService, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	svc := NewFieldLockService(ServiceConfig{}, client)
	t.Cleanup(svc.Close)
	return svc, mr
}

func TestFieldLockService(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestLockService(t)

	t.Run("acquire and inspect", func(t *testing.T) {
		lock, err := svc.LockField(ctx, "est-1", "pricing.total_price", "u1", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, "u1", lock.UserID)

		locked, current, err := svc.IsFieldLocked(ctx, "est-1", "pricing.total_price")
		require.NoError(t, err)
		assert.True(t, locked)
		assert.Equal(t, lock.ID, current.ID)
	})

	t.Run("second user is rejected", func(t *testing.T) {
		_, err := svc.LockField(ctx, "est-1", "pricing.total_price", "u2", time.Minute)
		var conflict *FieldLockConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, "u1", conflict.CurrentHolder)
	})

	t.Run("holder reacquires their own lock", func(t *testing.T) {
		_, err := svc.LockField(ctx, "est-1", "pricing.total_price", "u1", time.Minute)
		require.NoError(t, err)
	})

	t.Run("different field locks independently", func(t *testing.T) {
		_, err := svc.LockField(ctx, "est-1", "duration.estimated_hours", "u2", time.Minute)
		require.NoError(t, err)
	})

	t.Run("estimate lock listing", func(t *testing.T) {
		locks, err := svc.GetEstimateLocks(ctx, "est-1")
		require.NoError(t, err)
		assert.Len(t, locks, 2)
	})

	t.Run("non-holder cannot unlock", func(t *testing.T) {
		err := svc.UnlockField(ctx, "est-1", "pricing.total_price", "u2")
		var unauthorized *UnauthorizedLockError
		require.ErrorAs(t, err, &unauthorized)
	})

	t.Run("holder extends", func(t *testing.T) {
		require.NoError(t, svc.ExtendLock(ctx, "est-1", "pricing.total_price", "u1", time.Minute))
	})

	t.Run("extend on missing lock", func(t *testing.T) {
		err := svc.ExtendLock(ctx, "est-1", "nonexistent.field", "u1", time.Minute)
		var nfErr *NotFoundError
		require.ErrorAs(t, err, &nfErr)
	})

	t.Run("release all on leave", func(t *testing.T) {
		require.NoError(t, svc.ReleaseAllLocks(ctx, "est-1", "u1"))

		locked, _, err := svc.IsFieldLocked(ctx, "est-1", "pricing.total_price")
		require.NoError(t, err)
		assert.False(t, locked)

		// u2's lock survives
		locked, _, err = svc.IsFieldLocked(ctx, "est-1", "duration.estimated_hours")
		require.NoError(t, err)
		assert.True(t, locked)
	})

	t.Run("unlock of absent lock is a no-op", func(t *testing.T) {
		assert.NoError(t, svc.UnlockField(ctx, "est-1", "pricing.total_price", "u1"))
	})
}

func TestExpiredLockTakeover(t *testing.T) {
	ctx := context.Background()
	svc, mr := newTestLockService(t)

	// A lock record whose TTL was lost but whose expiry has passed lingers
	// in redis; the next taker must win it through the swap script.
	expiry := time.Now().Add(-5 * time.Minute)
	stale := FieldLock{
		ID:            "stale-lock",
		EstimateID:    "est-9",
		FieldPath:     "pricing.total_price",
		UserID:        "u1",
		AcquiredAt:    time.Now().Add(-10 * time.Minute),
		ExpiresAt:     expiry,
		ExpiresAtUnix: expiry.Unix(),
	}
	data, err := json.Marshal(stale)
	require.NoError(t, err)
	require.NoError(t, mr.Set("estimate:lock:est-9:pricing.total_price", string(data)))

	lock, err := svc.LockField(ctx, "est-9", "pricing.total_price", "u2", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "u2", lock.UserID)

	locked, current, err := svc.IsFieldLocked(ctx, "est-9", "pricing.total_price")
	require.NoError(t, err)
	require.True(t, locked)
	assert.Equal(t, "u2", current.UserID)
	assert.Greater(t, current.ExpiresAtUnix, time.Now().Unix())
}
