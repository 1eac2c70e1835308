package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bakery-inventory/internal/models"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const orderColumns = `id, user_id, delivery_date, status, customer_name, idempotency_key, created_at, updated_at`

// orderRow is the scan target for orders; DATE columns come back as time.Time
type orderRow struct {
	ID             uuid.UUID          `db:"id"`
	AccountID      uuid.UUID          `db:"user_id"`
	DeliveryDate   time.Time          `db:"delivery_date"`
	Status         models.OrderStatus `db:"status"`
	CustomerName   *string            `db:"customer_name"`
	IdempotencyKey *string            `db:"idempotency_key"`
	CreatedAt      time.Time          `db:"created_at"`
	UpdatedAt      time.Time          `db:"updated_at"`
}

func (r orderRow) toModel() models.Order {
	return models.Order{
		ID:             r.ID,
		AccountID:      r.AccountID,
		DeliveryDate:   civil.DateOf(r.DeliveryDate),
		Status:         r.Status,
		CustomerName:   r.CustomerName,
		IdempotencyKey: r.IdempotencyKey,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
		Items:          []models.OrderItem{},
	}
}

// CreateOrder creates a new order
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (user_id, delivery_date, status, customer_name, idempotency_key)
		VALUES ($1, $2::date, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	err := s.db.QueryRowxContext(ctx, query,
		order.AccountID, order.DeliveryDate.String(), order.Status, order.CustomerName, order.IdempotencyKey,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	return wrapErr("create order", err)
}

// CreateOrderItems inserts all items of an order, or none of them
func (s *Store) CreateOrderItems(ctx context.Context, items []models.OrderItem) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		for i := range items {
			item := &items[i]
			err := tx.QueryRowxContext(ctx, `
				INSERT INTO order_items (order_id, recipe_id, quantity)
				VALUES ($1, $2, $3)
				RETURNING id, created_at`,
				item.OrderID, item.RecipeID, item.Quantity,
			).Scan(&item.ID, &item.CreatedAt)
			if err != nil {
				return wrapErr("create order item", err)
			}
		}
		return nil
	})
}

// GetOrder retrieves one of the account's orders with its items
func (s *Store) GetOrder(ctx context.Context, accountID, id uuid.UUID) (*models.Order, error) {
	var row orderRow
	err := s.db.GetContext(ctx, &row,
		"SELECT "+orderColumns+" FROM orders WHERE id = $1 AND user_id = $2", id, accountID)
	if err != nil {
		return nil, wrapErr("get order", err)
	}

	order := row.toModel()
	items, err := s.getOrderItems(ctx, []uuid.UUID{order.ID})
	if err != nil {
		return nil, err
	}
	order.Items = append(order.Items, items...)
	return &order, nil
}

// GetOrderByIdempotencyKey retrieves an order by idempotency key
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, accountID uuid.UUID, key string) (*models.Order, error) {
	var id uuid.UUID
	err := s.db.GetContext(ctx, &id,
		"SELECT id FROM orders WHERE user_id = $1 AND idempotency_key = $2", accountID, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("get order by idempotency key", err)
	}
	return s.GetOrder(ctx, accountID, id)
}

// GetOrdersInRange retrieves orders of any status delivered within [start, end]
func (s *Store) GetOrdersInRange(ctx context.Context, accountID uuid.UUID, start, end civil.Date) ([]models.Order, error) {
	var rows []orderRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+orderColumns+` FROM orders
		WHERE user_id = $1 AND delivery_date BETWEEN $2::date AND $3::date
		ORDER BY delivery_date, created_at`,
		accountID, start.String(), end.String())
	if err != nil {
		return nil, wrapErr("get orders", err)
	}

	orders := make([]models.Order, 0, len(rows))
	ids := make([]uuid.UUID, 0, len(rows))
	index := make(map[uuid.UUID]int, len(rows))
	for _, row := range rows {
		index[row.ID] = len(orders)
		orders = append(orders, row.toModel())
		ids = append(ids, row.ID)
	}

	items, err := s.getOrderItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		i := index[item.OrderID]
		orders[i].Items = append(orders[i].Items, item)
	}
	return orders, nil
}

// GetNextPendingOrder returns the earliest pending order due on or after from
func (s *Store) GetNextPendingOrder(ctx context.Context, accountID uuid.UUID, from civil.Date) (*models.Order, error) {
	var id uuid.UUID
	err := s.db.GetContext(ctx, &id, `
		SELECT id FROM orders
		WHERE user_id = $1 AND status = $2 AND delivery_date >= $3::date
		ORDER BY delivery_date, created_at
		LIMIT 1`,
		accountID, models.OrderStatusPending, from.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("get next order", err)
	}
	return s.GetOrder(ctx, accountID, id)
}

// DeleteOrder removes an order; its items cascade
func (s *Store) DeleteOrder(ctx context.Context, accountID, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM orders WHERE id = $1 AND user_id = $2", id, accountID)
	if err != nil {
		return wrapErr("delete order", err)
	}
	return requireRow("delete order", res)
}

// GetOrderIngredientIDs returns the distinct ingredients used by an order's recipes
func (s *Store) GetOrderIngredientIDs(ctx context.Context, accountID, orderID uuid.UUID) ([]uuid.UUID, error) {
	ids := []uuid.UUID{}
	err := s.db.SelectContext(ctx, &ids, `
		SELECT DISTINCT ri.ingredient_id
		FROM orders o
		JOIN order_items oi ON oi.order_id = o.id
		JOIN recipe_ingredients ri ON ri.recipe_id = oi.recipe_id
		WHERE o.id = $1 AND o.user_id = $2`,
		orderID, accountID)
	if err != nil {
		return nil, wrapErr("get order ingredients", err)
	}
	return ids, nil
}

const demandSelect = `
	SELECT o.id AS order_id,
		oi.quantity AS item_quantity,
		ri.quantity AS link_quantity,
		ri.unit AS link_unit,
		i.id AS ingredient_id,
		i.name AS ingredient_name,
		i.stock_quantity,
		i.stock_unit
	FROM orders o
	JOIN order_items oi ON oi.order_id = o.id
	JOIN recipe_ingredients ri ON ri.recipe_id = oi.recipe_id
	JOIN ingredients i ON i.id = ri.ingredient_id AND i.user_id = o.user_id`

// GetPendingDemand expands every pending order delivered within [start, end]
// through its recipes' ingredient links
func (s *Store) GetPendingDemand(ctx context.Context, accountID uuid.UUID, start, end civil.Date) ([]models.DemandLine, error) {
	lines := []models.DemandLine{}
	err := s.db.SelectContext(ctx, &lines, demandSelect+`
		WHERE o.user_id = $1 AND o.status = $2
			AND o.delivery_date BETWEEN $3::date AND $4::date`,
		accountID, models.OrderStatusPending, start.String(), end.String())
	if err != nil {
		return nil, wrapErr("get pending demand", err)
	}
	return lines, nil
}

// GetOrderDemand expands a single order through its recipes' ingredient links
func (s *Store) GetOrderDemand(ctx context.Context, accountID, orderID uuid.UUID) ([]models.DemandLine, error) {
	lines := []models.DemandLine{}
	err := s.db.SelectContext(ctx, &lines, demandSelect+`
		WHERE o.id = $1 AND o.user_id = $2`,
		orderID, accountID)
	if err != nil {
		return nil, wrapErr("get order demand", err)
	}
	return lines, nil
}

// CompleteOrder locks the order, checks it is still pending, deducts usage
// clamped at zero and marks it completed. Ingredients deleted since the
// usage was read are skipped.
func (s *Store) CompleteOrder(ctx context.Context, accountID, orderID uuid.UUID, usage []models.StockDeduction) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var status models.OrderStatus
		err := tx.GetContext(ctx, &status,
			"SELECT status FROM orders WHERE id = $1 AND user_id = $2 FOR UPDATE", orderID, accountID)
		if err != nil {
			return wrapErr("lock order", err)
		}
		switch status {
		case models.OrderStatusCompleted:
			return models.ErrAlreadyCompleted
		case models.OrderStatusCancelled:
			return models.ErrCannotCompleteCancelled
		}

		for _, u := range usage {
			_, err := tx.ExecContext(ctx, `
				UPDATE ingredients
				SET stock_quantity = GREATEST(0, stock_quantity - $1), updated_at = NOW()
				WHERE id = $2 AND user_id = $3`,
				u.Amount, u.IngredientID, accountID)
			if err != nil {
				return wrapErr("deduct stock", err)
			}
		}

		_, err = tx.ExecContext(ctx,
			"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
			models.OrderStatusCompleted, orderID)
		return wrapErr("complete order", err)
	})
}

// TransitionOrderStatus moves an order from one status to another only if it
// is still in from. It reports whether the row changed.
func (s *Store) TransitionOrderStatus(ctx context.Context, accountID, orderID uuid.UUID, from, to models.OrderStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders SET status = $1, updated_at = NOW()
		WHERE id = $2 AND user_id = $3 AND status = $4`,
		to, orderID, accountID, from)
	if err != nil {
		return false, wrapErr("update order status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrapErr("update order status", err)
	}
	return n > 0, nil
}

func (s *Store) getOrderItems(ctx context.Context, orderIDs []uuid.UUID) ([]models.OrderItem, error) {
	if len(orderIDs) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`
		SELECT oi.id, oi.order_id, oi.recipe_id, oi.quantity, r.title AS recipe_title, oi.created_at
		FROM order_items oi
		JOIN recipes r ON r.id = oi.recipe_id
		WHERE oi.order_id IN (?)
		ORDER BY oi.created_at, oi.id`, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}

	var items []models.OrderItem
	if err := s.db.SelectContext(ctx, &items, s.db.Rebind(query), args...); err != nil {
		return nil, wrapErr("get order items", err)
	}
	return items, nil
}
