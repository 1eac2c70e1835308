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

// IngredientService manages ingredients and manual stock changes
type IngredientService struct {
	repo         IngredientRepository
	synchronizer *StatusSynchronizer
	logger       *zap.Logger
}

// NewIngredientService creates a new ingredient service
func NewIngredientService(repo IngredientRepository, synchronizer *StatusSynchronizer) *IngredientService {
	return &IngredientService{
		repo:         repo,
		synchronizer: synchronizer,
		logger:       util.Named("ingredients"),
	}
}

// IngredientRequest carries the editable fields of an ingredient
type IngredientRequest struct {
	Name          string          `json:"name" binding:"required"`
	CostPrice     decimal.Decimal `json:"cost_price"`
	CostQuantity  decimal.Decimal `json:"cost_quantity"`
	CostUnit      models.Unit     `json:"cost_unit" binding:"required"`
	CostLabel     *string         `json:"cost_label,omitempty"`
	StockQuantity decimal.Decimal `json:"stock_quantity"`
	StockUnit     models.Unit     `json:"stock_unit" binding:"required"`
	StockLow      decimal.Decimal `json:"stock_low"`
}

func (r *IngredientRequest) validate() error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return fmt.Errorf("%w: name is required", models.ErrValidation)
	}
	if !r.StockUnit.Valid() || !r.CostUnit.Valid() {
		return fmt.Errorf("%w: unsupported unit", models.ErrValidation)
	}
	if r.CostPrice.IsNegative() || r.CostQuantity.IsNegative() {
		return fmt.Errorf("%w: cost must not be negative", models.ErrValidation)
	}
	if r.StockLow.IsNegative() {
		return fmt.Errorf("%w: low stock threshold must not be negative", models.ErrValidation)
	}
	return nil
}

// CreateIngredient stores a new ingredient. A new ingredient has no pending
// demand yet, so its status follows from quantity and threshold alone.
func (s *IngredientService) CreateIngredient(ctx context.Context, accountID uuid.UUID, req *IngredientRequest) (*models.Ingredient, error) {
	ctx, span := util.StartSpan(ctx, "IngredientService.CreateIngredient")
	defer span.End()

	if err := req.validate(); err != nil {
		return nil, err
	}

	ing := &models.Ingredient{
		AccountID:     accountID,
		Name:          req.Name,
		CostPrice:     req.CostPrice,
		CostQuantity:  req.CostQuantity,
		CostUnit:      req.CostUnit,
		CostLabel:     req.CostLabel,
		StockQuantity: req.StockQuantity,
		StockUnit:     req.StockUnit,
		StockLow:      req.StockLow,
		StockStatus:   ResolveStatus(req.StockQuantity, req.StockLow, decimal.Zero),
	}
	if err := s.repo.CreateIngredient(ctx, ing); err != nil {
		return nil, err
	}

	s.logger.Info("Ingredient created", util.AccountField(accountID), zap.String("name", ing.Name))
	return ing, nil
}

// ListIngredients returns the account's ingredients ordered by name
func (s *IngredientService) ListIngredients(ctx context.Context, accountID uuid.UUID) ([]models.Ingredient, error) {
	return s.repo.ListIngredients(ctx, accountID)
}

// UpdateIngredient replaces the editable fields and resyncs the status.
// The stock unit may change only within its family.
func (s *IngredientService) UpdateIngredient(ctx context.Context, accountID, id uuid.UUID, req *IngredientRequest) (*models.Ingredient, error) {
	ctx, span := util.StartSpan(ctx, "IngredientService.UpdateIngredient")
	defer span.End()

	if err := req.validate(); err != nil {
		return nil, err
	}

	ing, err := s.repo.GetIngredient(ctx, accountID, id)
	if err != nil {
		return nil, err
	}
	if !ing.StockUnit.Compatible(req.StockUnit) {
		return nil, fmt.Errorf("%w: stock unit %s cannot change to %s", models.ErrValidation, ing.StockUnit, req.StockUnit)
	}

	ing.Name = req.Name
	ing.CostPrice = req.CostPrice
	ing.CostQuantity = req.CostQuantity
	ing.CostUnit = req.CostUnit
	ing.CostLabel = req.CostLabel
	ing.StockQuantity = req.StockQuantity
	ing.StockUnit = req.StockUnit
	ing.StockLow = req.StockLow

	if err := s.repo.UpdateIngredient(ctx, ing); err != nil {
		return nil, err
	}

	return s.refresh(ctx, accountID, id)
}

// DeleteIngredient removes an ingredient and its recipe links
func (s *IngredientService) DeleteIngredient(ctx context.Context, accountID, id uuid.UUID) error {
	if err := s.repo.DeleteIngredient(ctx, accountID, id); err != nil {
		return err
	}
	s.logger.Info("Ingredient deleted", util.AccountField(accountID), zap.String("ingredient_id", id.String()))
	return nil
}

// AdjustStock adds delta (possibly negative) to the stock quantity in one
// atomic store update. Manual adjustments may drive stock below zero.
func (s *IngredientService) AdjustStock(ctx context.Context, accountID, id uuid.UUID, delta decimal.Decimal) (*models.Ingredient, error) {
	ctx, span := util.StartSpan(ctx, "IngredientService.AdjustStock")
	defer span.End()

	quantity, err := s.repo.AdjustStock(ctx, accountID, id, delta)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Stock adjusted",
		util.AccountField(accountID),
		zap.String("ingredient_id", id.String()),
		zap.String("delta", delta.String()),
		zap.String("quantity", quantity.String()))

	return s.refresh(ctx, accountID, id)
}

// SyncStatuses resyncs the given ingredients, or all of them when ids is empty
func (s *IngredientService) SyncStatuses(ctx context.Context, accountID uuid.UUID, ids []uuid.UUID) (SyncResult, error) {
	if len(ids) == 0 {
		ingredients, err := s.repo.ListIngredients(ctx, accountID)
		if err != nil {
			return SyncResult{}, err
		}
		for _, ing := range ingredients {
			ids = append(ids, ing.ID)
		}
	}
	return s.synchronizer.Sync(ctx, accountID, ids)
}

// refresh resyncs one ingredient and rereads it
func (s *IngredientService) refresh(ctx context.Context, accountID, id uuid.UUID) (*models.Ingredient, error) {
	if err := s.synchronizer.SyncStatuses(ctx, accountID, []uuid.UUID{id}); err != nil {
		s.logger.Warn("Stock status sync failed",
			util.AccountField(accountID),
			zap.String("ingredient_id", id.String()),
			zap.Error(err))
	}
	return s.repo.GetIngredient(ctx, accountID, id)
}
