package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"github.com/prfowler23/estimatepro-2.5-sub004/pkg/observability"
)

const channelPrefix = "estimate:events:"

func channelFor(estimateID string) string {
	return channelPrefix + estimateID
}

// RedisTransport publishes and subscribes collaboration events over redis
// pub/sub, one channel per estimate. Delivery is at-least-once with no
// ordering guarantee beyond each event's timestamp, which is why conflict
// detection happens after the fact on the receiving side.
type RedisTransport struct {
	client *redis.Client
	logger observability.Logger

	mu      sync.Mutex
	subs    []*redis.PubSub
	closed  bool
	maxWait time.Duration
}

// NewRedisTransport creates a transport over the given client
func NewRedisTransport(client *redis.Client, logger observability.Logger) *RedisTransport {
	return &RedisTransport{
		client:  client,
		logger:  logger,
		maxWait: 5 * time.Second,
	}
}

// Publish sends an event to the estimate's channel, retrying transient
// failures with exponential backoff before giving up.
func (t *RedisTransport) Publish(ctx context.Context, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "failed to marshal event")
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	operation := func() error {
		return t.client.Publish(ctx, channelFor(event.EstimateID), data).Err()
	}

	if err := backoff.Retry(operation, policy); err != nil {
		return errors.Wrapf(err, "failed to publish %s event for estimate %s", event.Type, event.EstimateID)
	}
	return nil
}

// Subscribe starts delivery of remote events for one estimate. Malformed
// payloads are logged and dropped; the channel closes when ctx is cancelled
// or the transport is closed.
func (t *RedisTransport) Subscribe(ctx context.Context, estimateID string) (<-chan *Event, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, fmt.Errorf("transport is closed")
	}
	pubsub := t.client.Subscribe(ctx, channelFor(estimateID))
	t.subs = append(t.subs, pubsub)
	t.mu.Unlock()

	// Force the subscription to be established before returning
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, errors.Wrapf(err, "failed to subscribe to estimate %s", estimateID)
	}

	out := make(chan *Event, 64)
	go func() {
		defer close(out)
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					t.logger.Warn("Dropping malformed event payload", map[string]interface{}{
						"estimate_id": estimateID,
						"error":       err.Error(),
					})
					continue
				}
				select {
				case out <- &event:
				case <-ctx.Done():
					_ = pubsub.Close()
					return
				}
			}
		}
	}()

	return out, nil
}

// Close tears down every open subscription
func (t *RedisTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	for _, ps := range t.subs {
		_ = ps.Close()
	}
	t.subs = nil
	return nil
}
