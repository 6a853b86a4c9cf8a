// Package realtime fans committed row changes out to topic subscribers.
//
// Topics are derived from the changed row (see models.ChangeEvent.Topics).
// Delivery is at-most-once: a subscriber that was not connected when an event
// was published never sees it, so consumers pair every subscription with an
// initial fetch.
package realtime

import (
	"context"

	"biocloud/internal/domain/models"
)

// Publisher delivers an event to everyone subscribed to event.Topic.
type Publisher interface {
	Publish(ctx context.Context, event models.ChangeEvent) error
}

// Subscriber opens subscriptions. Subscribe returns once the subscription is
// live, so events published afterwards reach it unless it lags.
type Subscriber interface {
	Subscribe(ctx context.Context, topics ...string) (Subscription, error)
}

// Feed is both ends of the change feed.
type Feed interface {
	Publisher
	Subscriber
	Close() error
}

// Subscription is a live stream of events. Events is closed after Close, or
// by the feed when the subscriber falls a full buffer behind.
type Subscription interface {
	Events() <-chan models.ChangeEvent
	Close() error
}

// eventBuffer is the per-subscription channel capacity.
const eventBuffer = 64
