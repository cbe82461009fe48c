package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"auction-service/internal/models"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// EventPublisher publishes domain events. Payment callbacks go to the
// payments topic consumed by the reconcile worker; notification events are
// fire-and-forget for the external notification service.
type EventPublisher struct {
	payments      *Producer
	notifications *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(payments, notifications *Producer) *EventPublisher {
	return &EventPublisher{payments: payments, notifications: notifications}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

// PublishPaymentEvent enqueues a normalized gateway callback for
// reconciliation, keyed by gateway code so deliveries for one order stay
// ordered within a partition.
func (ep *EventPublisher) PublishPaymentEvent(ctx context.Context, payment *models.PaymentEvent) error {
	event := &models.PaymentCallbackEvent{
		BaseEvent: newBaseEvent(models.EventTypePaymentCallback),
		Payment:   *payment,
	}
	return ep.payments.PublishEvent(ctx, payment.GatewayCode, event)
}

// PublishSessionEnded publishes a SessionEnded notification
func (ep *EventPublisher) PublishSessionEnded(ctx context.Context, event *models.SessionEndedEvent) error {
	event.BaseEvent = newBaseEvent(models.EventTypeSessionEnded)
	key := fmt.Sprintf("session-%d", event.SessionID)
	return ep.notifications.PublishEvent(ctx, key, event)
}

// PublishOrderSettled publishes an OrderSettled notification
func (ep *EventPublisher) PublishOrderSettled(ctx context.Context, event *models.OrderSettledEvent) error {
	event.BaseEvent = newBaseEvent(models.EventTypeOrderSettled)
	return ep.notifications.PublishEvent(ctx, event.OrderCode, event)
}

// PublishBidOutbid publishes a BidOutbid notification
func (ep *EventPublisher) PublishBidOutbid(ctx context.Context, event *models.BidOutbidEvent) error {
	event.BaseEvent = newBaseEvent(models.EventTypeBidOutbid)
	key := fmt.Sprintf("session-%d", event.SessionID)
	return ep.notifications.PublishEvent(ctx, key, event)
}

// EventHandler routes incoming events to registered handlers
type EventHandler struct {
	onPaymentCallback func(context.Context, *models.PaymentCallbackEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnPaymentCallback registers a handler for PaymentCallback events
func (eh *EventHandler) OnPaymentCallback(handler func(context.Context, *models.PaymentCallbackEvent) error) {
	eh.onPaymentCallback = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	switch baseEvent.EventType {
	case models.EventTypePaymentCallback:
		if eh.onPaymentCallback != nil {
			var event models.PaymentCallbackEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal PaymentCallback event: %w", err)
			}
			return eh.onPaymentCallback(ctx, &event)
		}

	default:
		log.Printf("Unhandled event type: %s", baseEvent.EventType)
	}

	return nil
}
