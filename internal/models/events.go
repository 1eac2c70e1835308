package models

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderCreated       = "ORDER_CREATED"
	EventTypeOrderCompleted     = "ORDER_COMPLETED"
	EventTypeOrderCancelled     = "ORDER_CANCELLED"
	EventTypeOrderDeleted       = "ORDER_DELETED"
	EventTypeStockStatusChanged = "STOCK_STATUS_CHANGED"
	EventTypeReconcileRequested = "RECONCILE_REQUESTED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// NewBaseEvent stamps a fresh event id and time
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

// OrderEvent is published after each order lifecycle transition
type OrderEvent struct {
	BaseEvent
	OrderID       uuid.UUID   `json:"order_id"`
	AccountID     uuid.UUID   `json:"account_id"`
	DeliveryDate  civil.Date  `json:"delivery_date"`
	Status        OrderStatus `json:"status"`
	IngredientIDs []uuid.UUID `json:"ingredient_ids,omitempty"`
}

// StockStatusChangedEvent is published when a persisted stock status changes
type StockStatusChangedEvent struct {
	BaseEvent
	AccountID    uuid.UUID       `json:"account_id"`
	IngredientID uuid.UUID       `json:"ingredient_id"`
	Name         string          `json:"name"`
	From         StockStatus     `json:"from"`
	To           StockStatus     `json:"to"`
	Quantity     decimal.Decimal `json:"quantity"`
	Required     decimal.Decimal `json:"required"`
}

// ReconcileRequestedEvent asks the worker to resync every ingredient of an account
type ReconcileRequestedEvent struct {
	BaseEvent
	AccountID uuid.UUID `json:"account_id"`
}
