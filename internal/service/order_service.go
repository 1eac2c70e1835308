package service

import (
	"context"
	"errors"
	"fmt"

	"bakery-inventory/internal/models"
	"bakery-inventory/internal/util"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// OrderService runs the order lifecycle and its effects on stock
type OrderService struct {
	repo         Repository
	aggregator   *RequirementAggregator
	synchronizer *StatusSynchronizer
	publisher    EventPublisher
	opts         Options
	logger       *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(
	repo Repository,
	aggregator *RequirementAggregator,
	synchronizer *StatusSynchronizer,
	publisher EventPublisher,
	opts Options,
) *OrderService {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &OrderService{
		repo:         repo,
		aggregator:   aggregator,
		synchronizer: synchronizer,
		publisher:    publisher,
		opts:         opts.withDefaults(),
		logger:       util.Named("orders"),
	}
}

// CreateOrderRequest represents a request to create an order
type CreateOrderRequest struct {
	DeliveryDate   civil.Date         `json:"delivery_date" binding:"required"`
	CustomerName   *string            `json:"customer_name,omitempty"`
	Items          []OrderItemRequest `json:"items" binding:"required,min=1,dive"`
	IdempotencyKey string             `json:"idempotency_key,omitempty"`
}

// OrderItemRequest represents an item in an order
type OrderItemRequest struct {
	RecipeID uuid.UUID `json:"recipe_id" binding:"required"`
	Quantity int       `json:"quantity" binding:"required,min=1"`
}

// CreateOrder inserts a pending order and its items, then resyncs every
// ingredient the ordered recipes use. If the items cannot be inserted the
// order is deleted again.
func (s *OrderService) CreateOrder(ctx context.Context, accountID uuid.UUID, req *CreateOrderRequest) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder", attribute.String("account_id", accountID.String()))
	defer span.End()

	if err := validateCreateOrder(req); err != nil {
		util.OrdersFailedTotal.WithLabelValues("create", "invalid_request").Inc()
		return nil, err
	}

	if req.IdempotencyKey != "" {
		existing, err := s.repo.GetOrderByIdempotencyKey(ctx, accountID, req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("failed to check idempotency: %w", err)
		}
		if existing != nil {
			s.logger.Info("Duplicate order request detected",
				zap.String("idempotency_key", req.IdempotencyKey),
				util.OrderField(existing.ID))
			return existing, nil
		}
	}

	recipeIDs, err := s.validateRecipes(ctx, accountID, req.Items)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("create", "invalid_items").Inc()
		return nil, err
	}

	order := &models.Order{
		AccountID:    accountID,
		DeliveryDate: req.DeliveryDate,
		Status:       models.OrderStatusPending,
		CustomerName: req.CustomerName,
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		order.IdempotencyKey = &key
	}

	if err := s.repo.CreateOrder(ctx, order); err != nil {
		if existing := s.concurrentDuplicate(ctx, accountID, req.IdempotencyKey, err); existing != nil {
			return existing, nil
		}
		util.OrdersFailedTotal.WithLabelValues("create", "db_error").Inc()
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	items := make([]models.OrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, models.OrderItem{
			OrderID:  order.ID,
			RecipeID: item.RecipeID,
			Quantity: item.Quantity,
		})
	}

	if err := s.repo.CreateOrderItems(ctx, items); err != nil {
		s.compensateCreate(ctx, accountID, order.ID)
		util.OrdersFailedTotal.WithLabelValues("create", "items_failed").Inc()
		return nil, fmt.Errorf("failed to create order items: %w", err)
	}
	order.Items = items

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		util.AccountField(accountID),
		util.OrderField(order.ID),
		zap.Stringer("delivery_date", order.DeliveryDate),
		zap.Int("items", len(items)))

	ingredientIDs, err := s.repo.GetIngredientIDsForRecipes(ctx, recipeIDs)
	if err != nil {
		s.logger.Warn("Failed to resolve ingredients for new order", zap.Error(err))
	} else {
		s.resync(ctx, accountID, ingredientIDs, "create")
	}

	s.publish(ctx, models.EventTypeOrderCreated, order, ingredientIDs)
	return order, nil
}

// concurrentDuplicate returns the order a concurrent request inserted with the
// same idempotency key, when that is why the insert was rejected
func (s *OrderService) concurrentDuplicate(ctx context.Context, accountID uuid.UUID, key string, err error) *models.Order {
	if key == "" || !errors.Is(err, models.ErrConflict) {
		return nil
	}
	existing, lookupErr := s.repo.GetOrderByIdempotencyKey(ctx, accountID, key)
	if lookupErr != nil || existing == nil {
		return nil
	}
	s.logger.Info("Duplicate order request detected after insert conflict",
		zap.String("idempotency_key", key),
		util.OrderField(existing.ID))
	return existing
}

// compensateCreate removes an order whose items failed to insert
func (s *OrderService) compensateCreate(ctx context.Context, accountID, orderID uuid.UUID) {
	util.OrderCreateCompensationsTotal.Inc()
	if err := s.repo.DeleteOrder(ctx, accountID, orderID); err != nil {
		s.logger.Error("Failed to compensate order creation",
			util.OrderField(orderID),
			zap.Error(err))
	}
}

// validateRecipes checks that every ordered recipe exists for the account
func (s *OrderService) validateRecipes(ctx context.Context, accountID uuid.UUID, items []OrderItemRequest) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.RecipeID)
	}
	ids = uniqueIDs(ids)

	recipes, err := s.repo.GetRecipesByIDs(ctx, accountID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load recipes: %w", err)
	}
	if len(recipes) != len(ids) {
		return nil, fmt.Errorf("%w: some recipes not found", models.ErrNotFound)
	}
	return ids, nil
}

func validateCreateOrder(req *CreateOrderRequest) error {
	if req == nil {
		return fmt.Errorf("%w: missing order", models.ErrValidation)
	}
	if !req.DeliveryDate.IsValid() {
		return fmt.Errorf("%w: invalid delivery date", models.ErrValidation)
	}
	if len(req.Items) == 0 {
		return fmt.Errorf("%w: order has no items", models.ErrValidation)
	}
	for _, item := range req.Items {
		if item.RecipeID == uuid.Nil {
			return fmt.Errorf("%w: item without recipe", models.ErrValidation)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: quantity must be positive, got %d", models.ErrValidation, item.Quantity)
		}
	}
	return nil
}

// CompleteOrder deducts the order's ingredient usage from stock (never below
// zero) and marks it completed in one atomic step, then resyncs statuses.
func (s *OrderService) CompleteOrder(ctx context.Context, accountID, orderID uuid.UUID) error {
	ctx, span := util.StartSpan(ctx, "OrderService.CompleteOrder", attribute.String("order_id", orderID.String()))
	defer span.End()

	order, err := s.repo.GetOrder(ctx, accountID, orderID)
	if err != nil {
		return err
	}
	switch order.Status {
	case models.OrderStatusCompleted:
		return models.ErrAlreadyCompleted
	case models.OrderStatusCancelled:
		return models.ErrCannotCompleteCancelled
	}

	lines, err := s.repo.GetOrderDemand(ctx, accountID, orderID)
	if err != nil {
		return fmt.Errorf("failed to read order usage: %w", err)
	}
	usage, err := usageFromDemand(lines)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("complete", "invalid_units").Inc()
		return err
	}

	if err := s.repo.CompleteOrder(ctx, accountID, orderID, usage); err != nil {
		util.RecordError(span, err)
		util.OrdersFailedTotal.WithLabelValues("complete", "db_error").Inc()
		return fmt.Errorf("failed to complete order: %w", err)
	}

	util.OrdersCompletedTotal.Inc()
	for _, u := range usage {
		s.logger.Info("Stock deducted",
			util.AccountField(accountID),
			util.OrderField(orderID),
			zap.String("ingredient_id", u.IngredientID.String()),
			zap.String("used", u.Amount.String()))
	}

	ids := make([]uuid.UUID, 0, len(usage))
	for _, u := range usage {
		ids = append(ids, u.IngredientID)
	}
	s.resync(ctx, accountID, ids, "complete")

	order.Status = models.OrderStatusCompleted
	s.publish(ctx, models.EventTypeOrderCompleted, order, ids)
	return nil
}

// CancelOrder moves a pending order to cancelled and resyncs the ingredients
// its recipes use, since their pending demand dropped.
func (s *OrderService) CancelOrder(ctx context.Context, accountID, orderID uuid.UUID) error {
	ctx, span := util.StartSpan(ctx, "OrderService.CancelOrder", attribute.String("order_id", orderID.String()))
	defer span.End()

	order, err := s.repo.GetOrder(ctx, accountID, orderID)
	if err != nil {
		return err
	}
	if err := cancelStateError(order.Status); err != nil {
		return err
	}

	ingredientIDs, err := s.repo.GetOrderIngredientIDs(ctx, accountID, orderID)
	if err != nil {
		s.logger.Warn("Failed to resolve ingredients for cancelled order", zap.Error(err))
	}

	changed, err := s.repo.TransitionOrderStatus(ctx, accountID, orderID, models.OrderStatusPending, models.OrderStatusCancelled)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("cancel", "db_error").Inc()
		return fmt.Errorf("failed to cancel order: %w", err)
	}
	if !changed {
		// lost a race with another transition; report what it became
		current, err := s.repo.GetOrder(ctx, accountID, orderID)
		if err != nil {
			return err
		}
		if err := cancelStateError(current.Status); err != nil {
			return err
		}
		return fmt.Errorf("%w: order %s could not be cancelled", models.ErrInvalidState, orderID)
	}

	util.OrdersCancelledTotal.Inc()
	s.logger.Info("Order cancelled", util.AccountField(accountID), util.OrderField(orderID))

	s.resync(ctx, accountID, ingredientIDs, "cancel")

	order.Status = models.OrderStatusCancelled
	s.publish(ctx, models.EventTypeOrderCancelled, order, ingredientIDs)
	return nil
}

func cancelStateError(status models.OrderStatus) error {
	switch status {
	case models.OrderStatusCancelled:
		return models.ErrAlreadyCancelled
	case models.OrderStatusCompleted:
		return models.ErrCannotCancelCompleted
	}
	return nil
}

// DeleteOrder removes an order with its items and resyncs the ingredients
// it referenced.
func (s *OrderService) DeleteOrder(ctx context.Context, accountID, orderID uuid.UUID) error {
	ctx, span := util.StartSpan(ctx, "OrderService.DeleteOrder", attribute.String("order_id", orderID.String()))
	defer span.End()

	order, err := s.repo.GetOrder(ctx, accountID, orderID)
	if err != nil {
		return err
	}

	ingredientIDs, err := s.repo.GetOrderIngredientIDs(ctx, accountID, orderID)
	if err != nil {
		s.logger.Warn("Failed to resolve ingredients for deleted order", zap.Error(err))
	}

	if err := s.repo.DeleteOrder(ctx, accountID, orderID); err != nil {
		util.OrdersFailedTotal.WithLabelValues("delete", "db_error").Inc()
		return fmt.Errorf("failed to delete order: %w", err)
	}

	util.OrdersDeletedTotal.Inc()
	s.logger.Info("Order deleted", util.AccountField(accountID), util.OrderField(orderID))

	s.resync(ctx, accountID, ingredientIDs, "delete")
	s.publish(ctx, models.EventTypeOrderDeleted, order, ingredientIDs)
	return nil
}

// GetOrder retrieves an order with its items
func (s *OrderService) GetOrder(ctx context.Context, accountID, orderID uuid.UUID) (*models.Order, error) {
	return s.repo.GetOrder(ctx, accountID, orderID)
}

// GetOrders lists orders delivered within [start, end] with their items
func (s *OrderService) GetOrders(ctx context.Context, accountID uuid.UUID, start, end civil.Date) ([]models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrders")
	defer span.End()

	if end.Before(start) {
		return nil, fmt.Errorf("%w: end date %s is before start date %s", models.ErrValidation, end, start)
	}
	return s.repo.GetOrdersInRange(ctx, accountID, start, end)
}

// GetOrderRequirements aggregates pending demand within [start, end]
func (s *OrderService) GetOrderRequirements(ctx context.Context, accountID uuid.UUID, start, end civil.Date) ([]models.IngredientRequirement, error) {
	return s.aggregator.ComputeRequirements(ctx, accountID, start, end)
}

// GetNextOrder returns today's pending order if there is one, otherwise the
// next pending order after today, or nil.
func (s *OrderService) GetNextOrder(ctx context.Context, accountID uuid.UUID) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetNextOrder")
	defer span.End()

	return s.repo.GetNextPendingOrder(ctx, accountID, s.opts.Today())
}

// resync downgrades synchronizer failures to warnings
func (s *OrderService) resync(ctx context.Context, accountID uuid.UUID, ingredientIDs []uuid.UUID, operation string) {
	if len(ingredientIDs) == 0 {
		return
	}
	if err := s.synchronizer.SyncStatuses(ctx, accountID, ingredientIDs); err != nil {
		s.logger.Warn("Stock status sync failed",
			util.AccountField(accountID),
			zap.String("operation", operation),
			zap.Int("ingredients", len(ingredientIDs)),
			zap.Error(err))
	}
}

func (s *OrderService) publish(ctx context.Context, eventType string, order *models.Order, ingredientIDs []uuid.UUID) {
	event := &models.OrderEvent{
		BaseEvent:     models.NewBaseEvent(eventType),
		OrderID:       order.ID,
		AccountID:     order.AccountID,
		DeliveryDate:  order.DeliveryDate,
		Status:        order.Status,
		IngredientIDs: ingredientIDs,
	}
	if err := s.publisher.PublishOrderEvent(ctx, event); err != nil {
		s.logger.Error("Failed to publish order event",
			zap.String("event_type", eventType),
			zap.Error(err))
	}
}

// IsClientError reports whether err was caused by the request rather than the system
func IsClientError(err error) bool {
	return errors.Is(err, models.ErrValidation) ||
		errors.Is(err, models.ErrNotFound) ||
		errors.Is(err, models.ErrInvalidState) ||
		errors.Is(err, models.ErrConflict) ||
		errors.Is(err, models.ErrNotAuthenticated)
}
