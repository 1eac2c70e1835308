package store

import (
	"context"

	"bakery-inventory/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const ingredientColumns = `id, user_id, name, cost_price, cost_quantity, cost_unit, cost_label,
	stock_quantity, stock_unit, stock_status, stock_low, created_at, updated_at`

// CreateIngredient inserts an ingredient. A duplicate name for the account is ErrConflict.
func (s *Store) CreateIngredient(ctx context.Context, ing *models.Ingredient) error {
	query := `
		INSERT INTO ingredients (user_id, name, cost_price, cost_quantity, cost_unit, cost_label,
			stock_quantity, stock_unit, stock_status, stock_low)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`

	err := s.db.QueryRowxContext(ctx, query,
		ing.AccountID, ing.Name, ing.CostPrice, ing.CostQuantity, ing.CostUnit, ing.CostLabel,
		ing.StockQuantity, ing.StockUnit, ing.StockStatus, ing.StockLow,
	).Scan(&ing.ID, &ing.CreatedAt, &ing.UpdatedAt)
	return wrapErr("create ingredient", err)
}

// GetIngredient retrieves one of the account's ingredients
func (s *Store) GetIngredient(ctx context.Context, accountID, id uuid.UUID) (*models.Ingredient, error) {
	var ing models.Ingredient
	err := s.db.GetContext(ctx, &ing,
		"SELECT "+ingredientColumns+" FROM ingredients WHERE id = $1 AND user_id = $2", id, accountID)
	if err != nil {
		return nil, wrapErr("get ingredient", err)
	}
	return &ing, nil
}

// ListIngredients retrieves the account's ingredients ordered by name
func (s *Store) ListIngredients(ctx context.Context, accountID uuid.UUID) ([]models.Ingredient, error) {
	ingredients := []models.Ingredient{}
	err := s.db.SelectContext(ctx, &ingredients,
		"SELECT "+ingredientColumns+" FROM ingredients WHERE user_id = $1 ORDER BY name", accountID)
	if err != nil {
		return nil, wrapErr("list ingredients", err)
	}
	return ingredients, nil
}

// GetIngredientsByIDs retrieves several of the account's ingredients in one read
func (s *Store) GetIngredientsByIDs(ctx context.Context, accountID uuid.UUID, ids []uuid.UUID) ([]models.Ingredient, error) {
	if len(ids) == 0 {
		return []models.Ingredient{}, nil
	}

	query, args, err := sqlx.In(
		"SELECT "+ingredientColumns+" FROM ingredients WHERE user_id = ? AND id IN (?) ORDER BY name",
		accountID, ids)
	if err != nil {
		return nil, wrapErr("get ingredients", err)
	}
	query = s.db.Rebind(query)

	ingredients := []models.Ingredient{}
	if err := s.db.SelectContext(ctx, &ingredients, query, args...); err != nil {
		return nil, wrapErr("get ingredients", err)
	}
	return ingredients, nil
}

// UpdateIngredient writes every editable field. The cached status is left
// to the synchronizer.
func (s *Store) UpdateIngredient(ctx context.Context, ing *models.Ingredient) error {
	query := `
		UPDATE ingredients
		SET name = $1, cost_price = $2, cost_quantity = $3, cost_unit = $4, cost_label = $5,
			stock_quantity = $6, stock_unit = $7, stock_low = $8, updated_at = NOW()
		WHERE id = $9 AND user_id = $10`

	res, err := s.db.ExecContext(ctx, query,
		ing.Name, ing.CostPrice, ing.CostQuantity, ing.CostUnit, ing.CostLabel,
		ing.StockQuantity, ing.StockUnit, ing.StockLow, ing.ID, ing.AccountID)
	if err != nil {
		return wrapErr("update ingredient", err)
	}
	return requireRow("update ingredient", res)
}

// DeleteIngredient removes an ingredient; its recipe links cascade
func (s *Store) DeleteIngredient(ctx context.Context, accountID, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM ingredients WHERE id = $1 AND user_id = $2", id, accountID)
	if err != nil {
		return wrapErr("delete ingredient", err)
	}
	return requireRow("delete ingredient", res)
}

// AdjustStock applies delta in a single atomic update and returns the new quantity
func (s *Store) AdjustStock(ctx context.Context, accountID, id uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error) {
	var quantity decimal.Decimal
	err := s.db.GetContext(ctx, &quantity, `
		UPDATE ingredients SET stock_quantity = stock_quantity + $1, updated_at = NOW()
		WHERE id = $2 AND user_id = $3
		RETURNING stock_quantity`,
		delta, id, accountID)
	if err != nil {
		return decimal.Zero, wrapErr("adjust stock", err)
	}
	return quantity, nil
}

// CompareAndSetStatus writes status only while quantity, threshold and status
// still match the snapshot the caller resolved it from
func (s *Store) CompareAndSetStatus(ctx context.Context, snapshot *models.Ingredient, status models.StockStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE ingredients SET stock_status = $1, updated_at = NOW()
		WHERE id = $2 AND user_id = $3
			AND stock_status = $4 AND stock_quantity = $5 AND stock_low = $6`,
		status, snapshot.ID, snapshot.AccountID,
		snapshot.StockStatus, snapshot.StockQuantity, snapshot.StockLow)
	if err != nil {
		return false, wrapErr("set stock status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrapErr("set stock status", err)
	}
	return n > 0, nil
}

// ListAccountIDs returns every account owning at least one ingredient
func (s *Store) ListAccountIDs(ctx context.Context) ([]uuid.UUID, error) {
	ids := []uuid.UUID{}
	if err := s.db.SelectContext(ctx, &ids, "SELECT DISTINCT user_id FROM ingredients"); err != nil {
		return nil, wrapErr("list accounts", err)
	}
	return ids, nil
}
