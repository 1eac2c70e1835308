package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"bakery-inventory/internal/models"
	"bakery-inventory/internal/util"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventWriter writes one keyed event to a topic
type EventWriter interface {
	PublishEvent(ctx context.Context, key string, event interface{}) error
}

// EventPublisher handles publishing domain events. Order lifecycle events go
// to the order topic; stock and reconcile events go to the inventory topic.
// Both are keyed by account so each account's events stay ordered.
type EventPublisher struct {
	orders    EventWriter
	inventory EventWriter
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(orders, inventory EventWriter) *EventPublisher {
	return &EventPublisher{orders: orders, inventory: inventory}
}

func accountKey(accountID uuid.UUID) string {
	return "account-" + accountID.String()
}

// PublishOrderEvent publishes an order lifecycle event
func (ep *EventPublisher) PublishOrderEvent(ctx context.Context, event *models.OrderEvent) error {
	return ep.orders.PublishEvent(ctx, accountKey(event.AccountID), event)
}

// PublishStockStatusChanged publishes StockStatusChanged event
func (ep *EventPublisher) PublishStockStatusChanged(ctx context.Context, event *models.StockStatusChangedEvent) error {
	return ep.inventory.PublishEvent(ctx, accountKey(event.AccountID), event)
}

// PublishReconcileRequested publishes ReconcileRequested event
func (ep *EventPublisher) PublishReconcileRequested(ctx context.Context, event *models.ReconcileRequestedEvent) error {
	return ep.inventory.PublishEvent(ctx, accountKey(event.AccountID), event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onReconcileRequested func(context.Context, *models.ReconcileRequestedEvent) error
	logger               *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.Named("events")}
}

// OnReconcileRequested registers a handler for ReconcileRequested events
func (eh *EventHandler) OnReconcileRequested(handler func(context.Context, *models.ReconcileRequestedEvent) error) {
	eh.onReconcileRequested = handler
}

// HandleMessage routes messages to appropriate handlers. Event types without
// a handler are skipped.
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("event_type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeReconcileRequested:
		if eh.onReconcileRequested != nil {
			var event models.ReconcileRequestedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal ReconcileRequested event: %w", err)
			}
			return eh.onReconcileRequested(ctx, &event)
		}

	case models.EventTypeStockStatusChanged:
		var event models.StockStatusChangedEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return fmt.Errorf("failed to unmarshal StockStatusChanged event: %w", err)
		}
		eh.logger.Info("Stock status changed",
			util.AccountField(event.AccountID),
			zap.String("ingredient", event.Name),
			zap.String("from", string(event.From)),
			zap.String("to", string(event.To)))

	default:
		eh.logger.Debug("Unhandled event type", zap.String("event_type", baseEvent.EventType))
	}

	return nil
}
