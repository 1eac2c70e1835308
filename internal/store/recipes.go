package store

import (
	"context"

	"bakery-inventory/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const recipeColumns = `id, user_id, title, portions, prep_minutes, price, created_at, updated_at`

// CreateRecipe creates a new recipe without ingredient links
func (s *Store) CreateRecipe(ctx context.Context, recipe *models.Recipe) error {
	query := `
		INSERT INTO recipes (user_id, title, portions, prep_minutes, price)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`

	err := s.db.QueryRowxContext(ctx, query,
		recipe.AccountID, recipe.Title, recipe.Portions, recipe.PrepMinutes, recipe.Price,
	).Scan(&recipe.ID, &recipe.CreatedAt, &recipe.UpdatedAt)
	return wrapErr("create recipe", err)
}

// GetRecipe retrieves one of the account's recipes
func (s *Store) GetRecipe(ctx context.Context, accountID, id uuid.UUID) (*models.Recipe, error) {
	var recipe models.Recipe
	err := s.db.GetContext(ctx, &recipe,
		"SELECT "+recipeColumns+" FROM recipes WHERE id = $1 AND user_id = $2", id, accountID)
	if err != nil {
		return nil, wrapErr("get recipe", err)
	}
	return &recipe, nil
}

// ListRecipes retrieves the account's recipes ordered by title
func (s *Store) ListRecipes(ctx context.Context, accountID uuid.UUID) ([]models.Recipe, error) {
	recipes := []models.Recipe{}
	err := s.db.SelectContext(ctx, &recipes,
		"SELECT "+recipeColumns+" FROM recipes WHERE user_id = $1 ORDER BY title", accountID)
	if err != nil {
		return nil, wrapErr("list recipes", err)
	}
	return recipes, nil
}

// GetRecipesByIDs retrieves the account's recipes among ids
func (s *Store) GetRecipesByIDs(ctx context.Context, accountID uuid.UUID, ids []uuid.UUID) ([]models.Recipe, error) {
	if len(ids) == 0 {
		return []models.Recipe{}, nil
	}

	query, args, err := sqlx.In(
		"SELECT "+recipeColumns+" FROM recipes WHERE user_id = ? AND id IN (?)", accountID, ids)
	if err != nil {
		return nil, wrapErr("get recipes", err)
	}

	recipes := []models.Recipe{}
	if err := s.db.SelectContext(ctx, &recipes, s.db.Rebind(query), args...); err != nil {
		return nil, wrapErr("get recipes", err)
	}
	return recipes, nil
}

// UpdateRecipe writes the recipe's editable fields. Its ingredient links are
// untouched.
func (s *Store) UpdateRecipe(ctx context.Context, recipe *models.Recipe) error {
	query := `
		UPDATE recipes
		SET title = $1, portions = $2, prep_minutes = $3, price = $4, updated_at = NOW()
		WHERE id = $5 AND user_id = $6
		RETURNING created_at, updated_at`

	err := s.db.QueryRowxContext(ctx, query,
		recipe.Title, recipe.Portions, recipe.PrepMinutes, recipe.Price, recipe.ID, recipe.AccountID,
	).Scan(&recipe.CreatedAt, &recipe.UpdatedAt)
	return wrapErr("update recipe", err)
}

// DeleteRecipe removes a recipe. A recipe still used by an order is ErrConflict.
func (s *Store) DeleteRecipe(ctx context.Context, accountID, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM recipes WHERE id = $1 AND user_id = $2", id, accountID)
	if err != nil {
		return wrapErr("delete recipe", err)
	}
	return requireRow("delete recipe", res)
}

// GetRecipeIngredients retrieves a recipe's ingredient links
func (s *Store) GetRecipeIngredients(ctx context.Context, recipeID uuid.UUID) ([]models.RecipeIngredient, error) {
	links := []models.RecipeIngredient{}
	err := s.db.SelectContext(ctx, &links, `
		SELECT id, recipe_id, ingredient_id, quantity, unit
		FROM recipe_ingredients WHERE recipe_id = $1
		ORDER BY id`, recipeID)
	if err != nil {
		return nil, wrapErr("get recipe ingredients", err)
	}
	return links, nil
}

// ReplaceRecipeIngredients swaps a recipe's whole link set in one transaction
func (s *Store) ReplaceRecipeIngredients(ctx context.Context, recipeID uuid.UUID, links []models.RecipeIngredient) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM recipe_ingredients WHERE recipe_id = $1", recipeID); err != nil {
			return wrapErr("clear recipe ingredients", err)
		}

		for i := range links {
			link := &links[i]
			link.RecipeID = recipeID
			err := tx.QueryRowxContext(ctx, `
				INSERT INTO recipe_ingredients (recipe_id, ingredient_id, quantity, unit)
				VALUES ($1, $2, $3, $4)
				RETURNING id`,
				recipeID, link.IngredientID, link.Quantity, link.Unit,
			).Scan(&link.ID)
			if err != nil {
				return wrapErr("insert recipe ingredient", err)
			}
		}
		return nil
	})
}

// GetIngredientIDsForRecipes returns the distinct ingredients linked to any of recipeIDs
func (s *Store) GetIngredientIDsForRecipes(ctx context.Context, recipeIDs []uuid.UUID) ([]uuid.UUID, error) {
	if len(recipeIDs) == 0 {
		return []uuid.UUID{}, nil
	}

	query, args, err := sqlx.In(
		"SELECT DISTINCT ingredient_id FROM recipe_ingredients WHERE recipe_id IN (?)", recipeIDs)
	if err != nil {
		return nil, wrapErr("get recipe ingredient ids", err)
	}

	ids := []uuid.UUID{}
	if err := s.db.SelectContext(ctx, &ids, s.db.Rebind(query), args...); err != nil {
		return nil, wrapErr("get recipe ingredient ids", err)
	}
	return ids, nil
}
