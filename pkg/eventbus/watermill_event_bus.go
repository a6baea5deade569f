package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/wardflow/pkg/events"
	"github.com/dukex/wardflow/pkg/models"
)

type WatermillEventBus struct {
	logger        *slog.Logger
	publisher     message.Publisher
	subscriber    message.Subscriber
	mu            sync.RWMutex
	subscriptions map[models.EventType][]EventHandler
}

func NewWatermillEventBus(logger *slog.Logger, pub message.Publisher, sub message.Subscriber) *WatermillEventBus {
	return &WatermillEventBus{
		logger:        logger.With("module", "eventbus"),
		publisher:     pub,
		subscriber:    sub,
		subscriptions: make(map[models.EventType][]EventHandler),
	}
}

// topicFor routes cycle requests to the control topic and everything else to the event topic.
func topicFor(eventType models.EventType) string {
	if eventType == models.EventForceRequested {
		return events.ControlTopic
	}

	return events.Topic
}

// Publish sends event keyed by its item (or domain) so per-item order is kept
// on partitioned transports. The event id doubles as the message id.
func (eb *WatermillEventBus) Publish(ctx context.Context, event models.WorkflowEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	key := event.ItemID
	if key == "" {
		key = event.Domain
	}

	msg := message.NewMessage(event.ID, payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.Type))
	msg.Metadata.Set(events.EventIDMetadataKey, event.ID)

	return eb.publisher.Publish(topicFor(event.Type), msg)
}

// Subscribe starts consuming both topics. Handlers must be registered first.
func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	for _, topic := range []string{events.Topic, events.ControlTopic} {
		messages, err := eb.subscriber.Subscribe(ctx, topic)
		if err != nil {
			return err
		}

		go eb.consume(ctx, messages)
	}

	return nil
}

func (eb *WatermillEventBus) consume(ctx context.Context, messages <-chan *message.Message) {
	for msg := range messages {
		eventType := models.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

		handlers := eb.handlersFor(eventType)
		if len(handlers) == 0 {
			msg.Ack()

			continue
		}

		var event models.WorkflowEvent

		err := json.Unmarshal(msg.Payload, &event)
		if err != nil {
			eb.logger.ErrorContext(ctx, "Dropping undecodable event", "message_id", msg.UUID, "error", err)
			msg.Ack()

			continue
		}

		var errs []error

		for _, handler := range handlers {
			err = handler(ctx, event)
			if err != nil {
				errs = append(errs, err)
			}
		}

		if len(errs) > 0 {
			eb.logger.WarnContext(ctx, "Event handler failed, requesting redelivery",
				"event_id", event.ID, "event", event.Type, "error", errors.Join(errs...))
			msg.Nack()

			continue
		}

		msg.Ack()
	}
}

func (eb *WatermillEventBus) handlersFor(eventType models.EventType) []EventHandler {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	handlers := append([]EventHandler(nil), eb.subscriptions[eventType]...)

	return append(handlers, eb.subscriptions[AnyEvent]...)
}

func (eb *WatermillEventBus) Handle(eventType models.EventType, handler EventHandler) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscriptions[eventType] = append(eb.subscriptions[eventType], handler)

	return nil
}

func (eb *WatermillEventBus) Close() error {
	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	if any(eb.subscriber) == any(eb.publisher) {
		return nil
	}

	return eb.subscriber.Close()
}
