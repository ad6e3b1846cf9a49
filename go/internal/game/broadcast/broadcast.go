// Package broadcast fans session events out to observers. Delivery is
// at-least-once and unordered; events are hints to re-pull state, never state.
package broadcast

import (
	"context"

	"github.com/google/uuid"

	"github.com/nmsdosti/newquiz.onlin2/go/internal/game/events"
)

// AllSessions subscribes to every session's events.
var AllSessions = uuid.Nil

// Handler receives one delivered envelope. Handlers must not block for long;
// they run on the subscriber's delivery goroutine.
type Handler func(ctx context.Context, env events.Envelope)

// Subscription is an active subscription.
type Subscription interface {
	Unsubscribe() error
}

// Broadcaster publishes validated events and delivers them to subscribers.
// Publish never blocks on subscribers.
type Broadcaster interface {
	Publish(ctx context.Context, sessionID uuid.UUID, ev events.Event) error
	Subscribe(sessionID uuid.UUID, h Handler) (Subscription, error)
	Close() error
}
