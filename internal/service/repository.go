package service

import (
	"context"
	"time"

	"bakery-inventory/internal/models"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DemandReader reads pending-order demand expanded through recipe links
type DemandReader interface {
	GetPendingDemand(ctx context.Context, accountID uuid.UUID, start, end civil.Date) ([]models.DemandLine, error)
}

// IngredientRepository persists ingredients and their cached stock status
type IngredientRepository interface {
	CreateIngredient(ctx context.Context, ing *models.Ingredient) error
	GetIngredient(ctx context.Context, accountID, id uuid.UUID) (*models.Ingredient, error)
	ListIngredients(ctx context.Context, accountID uuid.UUID) ([]models.Ingredient, error)
	GetIngredientsByIDs(ctx context.Context, accountID uuid.UUID, ids []uuid.UUID) ([]models.Ingredient, error)
	UpdateIngredient(ctx context.Context, ing *models.Ingredient) error
	DeleteIngredient(ctx context.Context, accountID, id uuid.UUID) error
	AdjustStock(ctx context.Context, accountID, id uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error)
	// CompareAndSetStatus writes status only if the ingredient still has the
	// snapshot's quantity, threshold and status. It reports whether a row changed.
	CompareAndSetStatus(ctx context.Context, snapshot *models.Ingredient, status models.StockStatus) (bool, error)
	ListAccountIDs(ctx context.Context) ([]uuid.UUID, error)
}

// RecipeRepository persists recipes and their ingredient links
type RecipeRepository interface {
	CreateRecipe(ctx context.Context, recipe *models.Recipe) error
	GetRecipe(ctx context.Context, accountID, id uuid.UUID) (*models.Recipe, error)
	ListRecipes(ctx context.Context, accountID uuid.UUID) ([]models.Recipe, error)
	GetRecipesByIDs(ctx context.Context, accountID uuid.UUID, ids []uuid.UUID) ([]models.Recipe, error)
	UpdateRecipe(ctx context.Context, recipe *models.Recipe) error
	DeleteRecipe(ctx context.Context, accountID, id uuid.UUID) error
	GetRecipeIngredients(ctx context.Context, recipeID uuid.UUID) ([]models.RecipeIngredient, error)
	ReplaceRecipeIngredients(ctx context.Context, recipeID uuid.UUID, links []models.RecipeIngredient) error
	GetIngredientIDsForRecipes(ctx context.Context, recipeIDs []uuid.UUID) ([]uuid.UUID, error)
}

// OrderRepository persists orders and applies their stock effects
type OrderRepository interface {
	DemandReader
	CreateOrder(ctx context.Context, order *models.Order) error
	CreateOrderItems(ctx context.Context, items []models.OrderItem) error
	GetOrder(ctx context.Context, accountID, id uuid.UUID) (*models.Order, error)
	// GetOrderByIdempotencyKey returns nil, nil when no order carries the key
	GetOrderByIdempotencyKey(ctx context.Context, accountID uuid.UUID, key string) (*models.Order, error)
	GetOrdersInRange(ctx context.Context, accountID uuid.UUID, start, end civil.Date) ([]models.Order, error)
	// GetNextPendingOrder returns nil, nil when no pending order is due on or after from
	GetNextPendingOrder(ctx context.Context, accountID uuid.UUID, from civil.Date) (*models.Order, error)
	DeleteOrder(ctx context.Context, accountID, id uuid.UUID) error
	GetOrderIngredientIDs(ctx context.Context, accountID, orderID uuid.UUID) ([]uuid.UUID, error)
	GetOrderDemand(ctx context.Context, accountID, orderID uuid.UUID) ([]models.DemandLine, error)
	// CompleteOrder deducts usage and marks the order completed atomically
	CompleteOrder(ctx context.Context, accountID, orderID uuid.UUID, usage []models.StockDeduction) error
	TransitionOrderStatus(ctx context.Context, accountID, orderID uuid.UUID, from, to models.OrderStatus) (bool, error)
}

// EventLog records consumed events for idempotent handling
type EventLog interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// Repository is everything the inventory services need from the store
type Repository interface {
	IngredientRepository
	RecipeRepository
	OrderRepository
	EventLog
}

// Locker serialises work on a key across processes
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// EventPublisher publishes domain events
type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, event *models.OrderEvent) error
	PublishStockStatusChanged(ctx context.Context, event *models.StockStatusChangedEvent) error
	PublishReconcileRequested(ctx context.Context, event *models.ReconcileRequestedEvent) error
}

type noopPublisher struct{}

func (noopPublisher) PublishOrderEvent(context.Context, *models.OrderEvent) error { return nil }
func (noopPublisher) PublishStockStatusChanged(context.Context, *models.StockStatusChangedEvent) error {
	return nil
}
func (noopPublisher) PublishReconcileRequested(context.Context, *models.ReconcileRequestedEvent) error {
	return nil
}
