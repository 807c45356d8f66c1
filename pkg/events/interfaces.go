// Package events carries collaboration events between components and, via
// the redis transport, between sessions of the same estimate.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of collaboration event
type EventType string

// Collaboration event types
const (
	EventPresenceUpdated     EventType = "presence.updated"
	EventParticipantJoined   EventType = "participant.joined"
	EventParticipantLeft     EventType = "participant.left"
	EventChangeBroadcast     EventType = "change.broadcast"
	EventConflictDetected    EventType = "conflict.detected"
	EventConflictResolved    EventType = "conflict.resolved"
	EventValidationCompleted EventType = "validation.completed"
	EventPricingUpdated      EventType = "pricing.updated"
)

// Event is one collaboration event on an estimate. Origin identifies the
// publishing session so subscribers can drop their own pub/sub echo.
type Event struct {
	ID         uuid.UUID   `json:"id"`
	Type       EventType   `json:"type"`
	EstimateID string      `json:"estimate_id"`
	UserID     string      `json:"user_id,omitempty"`
	Origin     string      `json:"origin,omitempty"`
	Payload    interface{} `json:"payload,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

// NewEvent builds an event with a fresh ID and timestamp
func NewEvent(eventType EventType, estimateID, userID string, payload interface{}) *Event {
	return &Event{
		ID:         uuid.New(),
		Type:       eventType,
		EstimateID: estimateID,
		UserID:     userID,
		Payload:    payload,
		Timestamp:  time.Now(),
	}
}

// Handler processes one event. Handlers run synchronously in subscription
// order; a handler error is logged by the bus and does not stop delivery.
type Handler func(ctx context.Context, event *Event) error

// Bus is the in-process publish/subscribe surface
type Bus interface {
	Publish(ctx context.Context, event *Event)
	Subscribe(eventType EventType, handler Handler) Subscription
	Close()
}

// Subscription cancels one subscription. Cancel is idempotent.
type Subscription interface {
	Cancel()
}

// TransportPublisher sends events to remote sessions of an estimate
type TransportPublisher interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}

// TransportSubscriber receives events published by remote sessions
type TransportSubscriber interface {
	// Subscribe starts delivery for one estimate. The returned channel is
	// closed when ctx is cancelled or Close is called.
	Subscribe(ctx context.Context, estimateID string) (<-chan *Event, error)
	Close() error
}
