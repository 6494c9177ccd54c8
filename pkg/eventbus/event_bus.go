// Package eventbus carries assetflow events over watermill publishers and subscribers.
package eventbus

import (
	"context"

	"github.com/dukex/assetflow/pkg/events"
)

// Event is anything with a registered topic.
type Event interface {
	GetType() events.EventType
}

// EventPublisher publishes an event under a partition key.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

// EventSubscriber routes decoded events to handlers. Handle must be called before Subscribe.
type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

// EventHandler receives a pointer to the decoded event, e.g. *events.RunCompleted.
// A returned error nacks the message.
type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
