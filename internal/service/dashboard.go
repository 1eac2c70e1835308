package service

import (
	"context"

	"bakery-inventory/internal/models"
	"bakery-inventory/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DashboardStore is what the dashboard reads
type DashboardStore interface {
	ListIngredients(ctx context.Context, accountID uuid.UUID) ([]models.Ingredient, error)
	ListRecipes(ctx context.Context, accountID uuid.UUID) ([]models.Recipe, error)
}

// DashboardService summarises an account's inventory
type DashboardService struct {
	repo DashboardStore
}

// NewDashboardService creates a new dashboard service
func NewDashboardService(repo DashboardStore) *DashboardService {
	return &DashboardService{repo: repo}
}

// GetStats counts recipes and ingredients, the ingredients needing attention,
// and values the stock on hand at cost.
func (s *DashboardService) GetStats(ctx context.Context, accountID uuid.UUID) (*models.DashboardStats, error) {
	ctx, span := util.StartSpan(ctx, "DashboardService.GetStats")
	defer span.End()

	recipes, err := s.repo.ListRecipes(ctx, accountID)
	if err != nil {
		return nil, err
	}
	ingredients, err := s.repo.ListIngredients(ctx, accountID)
	if err != nil {
		return nil, err
	}

	stats := &models.DashboardStats{
		TotalRecipes:     len(recipes),
		TotalIngredients: len(ingredients),
	}

	value := decimal.Zero
	for _, ing := range ingredients {
		switch ing.StockStatus {
		case models.StockStatusUnavailable, models.StockStatusShortage, models.StockStatusLow:
			stats.LowStockIngredients++
		}
		if ing.StockQuantity.IsPositive() {
			value = value.Add(lineCost(ing.StockQuantity, ing.StockUnit, ing))
		}
	}
	stats.TotalInventoryValue = value.Round(2)
	return stats, nil
}
