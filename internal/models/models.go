package models

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StockStatus is the derived availability of an ingredient
type StockStatus string

// Stock statuses
const (
	StockStatusUnavailable StockStatus = "unavailable"
	StockStatusShortage    StockStatus = "shortage"
	StockStatusLow         StockStatus = "low"
	StockStatusAvailable   StockStatus = "available"
)

// OrderStatus is the lifecycle state of an order
type OrderStatus string

// Order statuses
const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Ingredient represents a stocked ingredient owned by an account.
// StockStatus is cached and must be recomputed whenever quantity,
// threshold or pending demand changes.
type Ingredient struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	AccountID     uuid.UUID       `db:"user_id" json:"-"`
	Name          string          `db:"name" json:"name"`
	CostPrice     decimal.Decimal `db:"cost_price" json:"cost_price"`
	CostQuantity  decimal.Decimal `db:"cost_quantity" json:"cost_quantity"`
	CostUnit      Unit            `db:"cost_unit" json:"cost_unit"`
	CostLabel     *string         `db:"cost_label" json:"cost_label,omitempty"`
	StockQuantity decimal.Decimal `db:"stock_quantity" json:"stock_quantity"`
	StockUnit     Unit            `db:"stock_unit" json:"stock_unit"`
	StockStatus   StockStatus     `db:"stock_status" json:"stock_status"`
	StockLow      decimal.Decimal `db:"stock_low" json:"stock_low"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// Recipe represents a sellable product made from ingredients
type Recipe struct {
	ID          uuid.UUID          `db:"id" json:"id"`
	AccountID   uuid.UUID          `db:"user_id" json:"-"`
	Title       string             `db:"title" json:"title"`
	Portions    int                `db:"portions" json:"portions"`
	PrepMinutes int                `db:"prep_minutes" json:"prep_minutes"`
	Price       decimal.Decimal    `db:"price" json:"price"`
	CreatedAt   time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `db:"updated_at" json:"updated_at"`
	Ingredients []RecipeIngredient `db:"-" json:"ingredients,omitempty"`
}

// RecipeIngredient links a recipe to the quantity of one ingredient used per batch
type RecipeIngredient struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	RecipeID     uuid.UUID       `db:"recipe_id" json:"recipe_id"`
	IngredientID uuid.UUID       `db:"ingredient_id" json:"ingredient_id"`
	Quantity     decimal.Decimal `db:"quantity" json:"quantity"`
	Unit         Unit            `db:"unit" json:"unit"`
}

// Order represents a customer order for a delivery date
type Order struct {
	ID             uuid.UUID   `json:"id"`
	AccountID      uuid.UUID   `json:"-"`
	DeliveryDate   civil.Date  `json:"delivery_date"`
	Status         OrderStatus `json:"status"`
	CustomerName   *string     `json:"customer_name,omitempty"`
	IdempotencyKey *string     `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	Items          []OrderItem `json:"items"`
}

// OrderItem represents batches of one recipe in an order
type OrderItem struct {
	ID          uuid.UUID `db:"id" json:"id"`
	OrderID     uuid.UUID `db:"order_id" json:"order_id"`
	RecipeID    uuid.UUID `db:"recipe_id" json:"recipe_id"`
	Quantity    int       `db:"quantity" json:"quantity"`
	RecipeTitle string    `db:"recipe_title" json:"recipe_title,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// DemandLine is one order item expanded through one recipe ingredient link.
// Stock fields are the ingredient's values at read time.
type DemandLine struct {
	OrderID        uuid.UUID       `db:"order_id"`
	ItemQuantity   int             `db:"item_quantity"`
	LinkQuantity   decimal.Decimal `db:"link_quantity"`
	LinkUnit       Unit            `db:"link_unit"`
	IngredientID   uuid.UUID       `db:"ingredient_id"`
	IngredientName string          `db:"ingredient_name"`
	StockQuantity  decimal.Decimal `db:"stock_quantity"`
	StockUnit      Unit            `db:"stock_unit"`
}

// IngredientRequirement is the aggregated demand for one ingredient (not persisted)
type IngredientRequirement struct {
	ID       uuid.UUID       `json:"id"`
	Name     string          `json:"name"`
	Required decimal.Decimal `json:"required"`
	Stock    decimal.Decimal `json:"stock"`
	Unit     Unit            `json:"unit"`
	Missing  decimal.Decimal `json:"missing"`
}

// StockDeduction is the amount to remove from one ingredient, in its stock unit
type StockDeduction struct {
	IngredientID uuid.UUID
	Amount       decimal.Decimal
}

// StockAlert is one ranked dashboard alert
type StockAlert struct {
	ID               uuid.UUID        `json:"id"`
	Name             string           `json:"name"`
	StockQuantity    decimal.Decimal  `json:"stock_quantity"`
	StockUnit        Unit             `json:"stock_unit"`
	StockLow         decimal.Decimal  `json:"stock_low"`
	StockStatus      StockStatus      `json:"stock_status"`
	MissingForOrders *decimal.Decimal `json:"missing_for_orders,omitempty"`
}

// MissingIngredient describes an ingredient without enough stock for a recipe
type MissingIngredient struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	Needed    decimal.Decimal `json:"needed"`
	Available decimal.Decimal `json:"available"`
	Unit      Unit            `json:"unit"`
}

// DashboardStats summarises an account's inventory
type DashboardStats struct {
	TotalRecipes        int             `json:"total_recipes"`
	TotalIngredients    int             `json:"total_ingredients"`
	LowStockIngredients int             `json:"low_stock_ingredients"`
	TotalInventoryValue decimal.Decimal `json:"total_inventory_value"`
}

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
