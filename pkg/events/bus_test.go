package events

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prfowler23/estimatepro-2.5-sub004/pkg/observability"
)

func TestEventBus(t *testing.T) {
	ctx := context.Background()

	t.Run("delivers in subscription order", func(t *testing.T) {
		bus := NewEventBus(observability.NewNoopLogger())
		var order []int
		bus.Subscribe(EventChangeBroadcast, func(ctx context.Context, e *Event) error {
			order = append(order, 1)
			return nil
		})
		bus.Subscribe(EventChangeBroadcast, func(ctx context.Context, e *Event) error {
			order = append(order, 2)
			return nil
		})

		bus.Publish(ctx, NewEvent(EventChangeBroadcast, "est-1", "u1", nil))
		assert.Equal(t, []int{1, 2}, order)
	})

	t.Run("handler error does not stop delivery", func(t *testing.T) {
		bus := NewEventBus(observability.NewNoopLogger())
		called := false
		bus.Subscribe(EventConflictDetected, func(ctx context.Context, e *Event) error {
			return errors.New("boom")
		})
		bus.Subscribe(EventConflictDetected, func(ctx context.Context, e *Event) error {
			called = true
			return nil
		})

		bus.Publish(ctx, NewEvent(EventConflictDetected, "est-1", "u1", nil))
		assert.True(t, called)
	})

	t.Run("cancel is idempotent and stops delivery", func(t *testing.T) {
		bus := NewEventBus(observability.NewNoopLogger())
		count := 0
		sub := bus.Subscribe(EventPricingUpdated, func(ctx context.Context, e *Event) error {
			count++
			return nil
		})

		bus.Publish(ctx, NewEvent(EventPricingUpdated, "est-1", "u1", nil))
		sub.Cancel()
		sub.Cancel()
		bus.Publish(ctx, NewEvent(EventPricingUpdated, "est-1", "u1", nil))

		assert.Equal(t, 1, count)
	})

	t.Run("only matching event type is delivered", func(t *testing.T) {
		bus := NewEventBus(observability.NewNoopLogger())
		count := 0
		bus.Subscribe(EventPresenceUpdated, func(ctx context.Context, e *Event) error {
			count++
			return nil
		})

		bus.Publish(ctx, NewEvent(EventChangeBroadcast, "est-1", "u1", nil))
		assert.Zero(t, count)
	})
}

func TestRedisTransport(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	logger := observability.NewNoopLogger()

	t.Run("publish reaches subscriber", func(t *testing.T) {
		transport := NewRedisTransport(client, logger)
		defer func() { _ = transport.Close() }()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		ch, err := transport.Subscribe(ctx, "est-1")
		require.NoError(t, err)

		sent := NewEvent(EventChangeBroadcast, "est-1", "u1", map[string]interface{}{"field_path": "a"})
		require.NoError(t, transport.Publish(ctx, sent))

		select {
		case got := <-ch:
			assert.Equal(t, sent.ID, got.ID)
			assert.Equal(t, EventChangeBroadcast, got.Type)
			assert.Equal(t, "est-1", got.EstimateID)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for event")
		}
	})

	t.Run("estimates are isolated", func(t *testing.T) {
		transport := NewRedisTransport(client, logger)
		defer func() { _ = transport.Close() }()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		ch, err := transport.Subscribe(ctx, "est-other")
		require.NoError(t, err)

		require.NoError(t, transport.Publish(ctx, NewEvent(EventChangeBroadcast, "est-1", "u1", nil)))

		select {
		case e := <-ch:
			t.Fatalf("unexpected event for other estimate: %v", e)
		case <-time.After(200 * time.Millisecond):
		}
	})

	t.Run("context cancellation closes the channel", func(t *testing.T) {
		transport := NewRedisTransport(client, logger)
		defer func() { _ = transport.Close() }()

		ctx, cancel := context.WithCancel(context.Background())
		ch, err := transport.Subscribe(ctx, "est-2")
		require.NoError(t, err)

		cancel()

		select {
		case _, open := <-ch:
			assert.False(t, open)
		case <-time.After(2 * time.Second):
			t.Fatal("channel did not close after cancellation")
		}
	})
}
