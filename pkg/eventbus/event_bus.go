// Package eventbus announces workflow events to other components and processes.
package eventbus

import (
	"context"

	"github.com/dukex/wardflow/pkg/models"
)

// AnyEvent subscribes a handler to every event type.
const AnyEvent models.EventType = "*"

type EventPublisher interface {
	Publish(ctx context.Context, event models.WorkflowEvent) error
}

type EventSubscriber interface {
	Handle(eventType models.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

// EventHandler processes one event. Returning an error asks for redelivery.
type EventHandler func(ctx context.Context, event models.WorkflowEvent) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
}
