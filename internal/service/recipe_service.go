package service

import (
	"context"
	"fmt"
	"strings"

	"bakery-inventory/internal/models"
	"bakery-inventory/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RecipeStore is what the recipe service needs from the store
type RecipeStore interface {
	RecipeRepository
	GetIngredientsByIDs(ctx context.Context, accountID uuid.UUID, ids []uuid.UUID) ([]models.Ingredient, error)
}

// RecipeService manages recipes and their ingredient links
type RecipeService struct {
	repo         RecipeStore
	synchronizer *StatusSynchronizer
	logger       *zap.Logger
}

// NewRecipeService creates a new recipe service
func NewRecipeService(repo RecipeStore, synchronizer *StatusSynchronizer) *RecipeService {
	return &RecipeService{
		repo:         repo,
		synchronizer: synchronizer,
		logger:       util.Named("recipes"),
	}
}

// RecipeRequest carries the editable fields of a recipe
type RecipeRequest struct {
	Title       string          `json:"title" binding:"required"`
	Portions    int             `json:"portions"`
	PrepMinutes int             `json:"prep_minutes"`
	Price       decimal.Decimal `json:"price"`
}

// RecipeIngredientRequest is one ingredient line of a recipe
type RecipeIngredientRequest struct {
	IngredientID uuid.UUID       `json:"ingredient_id" binding:"required"`
	Quantity     decimal.Decimal `json:"quantity"`
	Unit         models.Unit     `json:"unit" binding:"required"`
}

func (r *RecipeRequest) validate() error {
	r.Title = strings.TrimSpace(r.Title)
	if r.Title == "" {
		return fmt.Errorf("%w: title is required", models.ErrValidation)
	}
	if r.Portions < 0 || r.PrepMinutes < 0 || r.Price.IsNegative() {
		return fmt.Errorf("%w: recipe values must not be negative", models.ErrValidation)
	}
	return nil
}

// CreateRecipe stores a new recipe without ingredients
func (s *RecipeService) CreateRecipe(ctx context.Context, accountID uuid.UUID, req *RecipeRequest) (*models.Recipe, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	recipe := &models.Recipe{
		AccountID:   accountID,
		Title:       req.Title,
		Portions:    req.Portions,
		PrepMinutes: req.PrepMinutes,
		Price:       req.Price,
	}
	if err := s.repo.CreateRecipe(ctx, recipe); err != nil {
		return nil, err
	}
	return recipe, nil
}

// UpdateRecipe replaces a recipe's title, portions, prep time and price and
// returns it with its ingredient links. Links and pending demand are
// unchanged, so no resync is needed.
func (s *RecipeService) UpdateRecipe(ctx context.Context, accountID, id uuid.UUID, req *RecipeRequest) (*models.Recipe, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	recipe := &models.Recipe{
		ID:          id,
		AccountID:   accountID,
		Title:       req.Title,
		Portions:    req.Portions,
		PrepMinutes: req.PrepMinutes,
		Price:       req.Price,
	}
	if err := s.repo.UpdateRecipe(ctx, recipe); err != nil {
		return nil, err
	}

	links, err := s.repo.GetRecipeIngredients(ctx, id)
	if err != nil {
		return nil, err
	}
	recipe.Ingredients = links
	return recipe, nil
}

// ListRecipes returns the account's recipes with their ingredient links
func (s *RecipeService) ListRecipes(ctx context.Context, accountID uuid.UUID) ([]models.Recipe, error) {
	recipes, err := s.repo.ListRecipes(ctx, accountID)
	if err != nil {
		return nil, err
	}
	for i := range recipes {
		links, err := s.repo.GetRecipeIngredients(ctx, recipes[i].ID)
		if err != nil {
			return nil, err
		}
		recipes[i].Ingredients = links
	}
	return recipes, nil
}

// DeleteRecipe removes a recipe and resyncs the ingredients it used
func (s *RecipeService) DeleteRecipe(ctx context.Context, accountID, id uuid.UUID) error {
	if _, err := s.repo.GetRecipe(ctx, accountID, id); err != nil {
		return err
	}
	ids, err := s.repo.GetIngredientIDsForRecipes(ctx, []uuid.UUID{id})
	if err != nil {
		return err
	}
	if err := s.repo.DeleteRecipe(ctx, accountID, id); err != nil {
		return err
	}
	s.resync(ctx, accountID, ids)
	return nil
}

// SetRecipeIngredients replaces the recipe's ingredient list wholesale and
// resyncs both the previous and the new ingredients, since pending orders for
// the recipe now demand different amounts.
func (s *RecipeService) SetRecipeIngredients(ctx context.Context, accountID, recipeID uuid.UUID, reqs []RecipeIngredientRequest) ([]models.RecipeIngredient, error) {
	ctx, span := util.StartSpan(ctx, "RecipeService.SetRecipeIngredients")
	defer span.End()

	if _, err := s.repo.GetRecipe(ctx, accountID, recipeID); err != nil {
		return nil, err
	}

	links, err := s.validateLinks(ctx, accountID, recipeID, reqs)
	if err != nil {
		return nil, err
	}

	previous, err := s.repo.GetIngredientIDsForRecipes(ctx, []uuid.UUID{recipeID})
	if err != nil {
		return nil, err
	}

	if err := s.repo.ReplaceRecipeIngredients(ctx, recipeID, links); err != nil {
		return nil, err
	}

	affected := previous
	for _, link := range links {
		affected = append(affected, link.IngredientID)
	}
	s.resync(ctx, accountID, affected)

	return s.repo.GetRecipeIngredients(ctx, recipeID)
}

func (s *RecipeService) validateLinks(ctx context.Context, accountID, recipeID uuid.UUID, reqs []RecipeIngredientRequest) ([]models.RecipeIngredient, error) {
	ids := make([]uuid.UUID, 0, len(reqs))
	for _, req := range reqs {
		if !req.Quantity.IsPositive() {
			return nil, fmt.Errorf("%w: ingredient quantity must be positive", models.ErrValidation)
		}
		ids = append(ids, req.IngredientID)
	}

	ingredients, err := s.repo.GetIngredientsByIDs(ctx, accountID, uniqueIDs(ids))
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]models.Ingredient, len(ingredients))
	for _, ing := range ingredients {
		byID[ing.ID] = ing
	}

	links := make([]models.RecipeIngredient, 0, len(reqs))
	for _, req := range reqs {
		ing, ok := byID[req.IngredientID]
		if !ok {
			return nil, fmt.Errorf("%w: ingredient %s", models.ErrNotFound, req.IngredientID)
		}
		if !req.Unit.Compatible(ing.StockUnit) {
			return nil, fmt.Errorf("%w: %s is stocked in %s, cannot use %s",
				models.ErrValidation, ing.Name, ing.StockUnit, req.Unit)
		}
		links = append(links, models.RecipeIngredient{
			RecipeID:     recipeID,
			IngredientID: req.IngredientID,
			Quantity:     req.Quantity,
			Unit:         req.Unit,
		})
	}
	return links, nil
}

// RecipeCost prices one batch of the recipe from its ingredients' cost
// references. Lines whose unit cannot be priced contribute nothing.
func (s *RecipeService) RecipeCost(ctx context.Context, accountID, recipeID uuid.UUID) (decimal.Decimal, error) {
	links, ingredients, err := s.recipeLines(ctx, accountID, recipeID)
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, link := range links {
		ing, ok := ingredients[link.IngredientID]
		if !ok {
			continue
		}
		total = total.Add(lineCost(link.Quantity, link.Unit, ing))
	}
	return total.Round(2), nil
}

// lineCost is amount priced at the ingredient's cost per reference quantity
func lineCost(amount decimal.Decimal, unit models.Unit, ing models.Ingredient) decimal.Decimal {
	if !ing.CostQuantity.IsPositive() {
		return decimal.Zero
	}
	converted, err := models.ConvertUnit(amount, unit, ing.CostUnit)
	if err != nil {
		return decimal.Zero
	}
	return ing.CostPrice.Div(ing.CostQuantity).Mul(converted)
}

// CanMakeRecipe lists the ingredients without enough stock for batches of the recipe
func (s *RecipeService) CanMakeRecipe(ctx context.Context, accountID, recipeID uuid.UUID, batches int) ([]models.MissingIngredient, error) {
	if batches <= 0 {
		return nil, fmt.Errorf("%w: batches must be positive", models.ErrValidation)
	}

	links, ingredients, err := s.recipeLines(ctx, accountID, recipeID)
	if err != nil {
		return nil, err
	}

	missing := make([]models.MissingIngredient, 0)
	for _, link := range links {
		ing, ok := ingredients[link.IngredientID]
		if !ok {
			continue
		}
		needed, err := models.ConvertUnit(link.Quantity.Mul(decimal.NewFromInt(int64(batches))), link.Unit, ing.StockUnit)
		if err != nil {
			return nil, fmt.Errorf("ingredient %q: %w", ing.Name, err)
		}
		if ing.StockQuantity.LessThan(needed) {
			missing = append(missing, models.MissingIngredient{
				ID:        ing.ID,
				Name:      ing.Name,
				Needed:    needed,
				Available: ing.StockQuantity,
				Unit:      ing.StockUnit,
			})
		}
	}
	return missing, nil
}

func (s *RecipeService) recipeLines(ctx context.Context, accountID, recipeID uuid.UUID) ([]models.RecipeIngredient, map[uuid.UUID]models.Ingredient, error) {
	if _, err := s.repo.GetRecipe(ctx, accountID, recipeID); err != nil {
		return nil, nil, err
	}
	links, err := s.repo.GetRecipeIngredients(ctx, recipeID)
	if err != nil {
		return nil, nil, err
	}
	ids := make([]uuid.UUID, 0, len(links))
	for _, link := range links {
		ids = append(ids, link.IngredientID)
	}
	list, err := s.repo.GetIngredientsByIDs(ctx, accountID, uniqueIDs(ids))
	if err != nil {
		return nil, nil, err
	}
	ingredients := make(map[uuid.UUID]models.Ingredient, len(list))
	for _, ing := range list {
		ingredients[ing.ID] = ing
	}
	return links, ingredients, nil
}

func (s *RecipeService) resync(ctx context.Context, accountID uuid.UUID, ids []uuid.UUID) {
	if err := s.synchronizer.SyncStatuses(ctx, accountID, ids); err != nil {
		s.logger.Warn("Stock status sync failed after recipe change",
			util.AccountField(accountID),
			zap.Error(err))
	}
}
