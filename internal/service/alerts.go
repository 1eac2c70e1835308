package service

import (
	"context"
	"sort"

	"bakery-inventory/internal/models"
	"bakery-inventory/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultAlertLimit caps the alert list when the caller passes no limit
const DefaultAlertLimit = 5

// IngredientLister lists every ingredient of an account
type IngredientLister interface {
	ListIngredients(ctx context.Context, accountID uuid.UUID) ([]models.Ingredient, error)
}

// AlertRanker builds the prioritised stock alert list shown on dashboards
type AlertRanker struct {
	ingredients IngredientLister
	aggregator  *RequirementAggregator
	opts        Options
	logger      *zap.Logger
}

// NewAlertRanker creates a new alert ranker
func NewAlertRanker(ingredients IngredientLister, aggregator *RequirementAggregator, opts Options) *AlertRanker {
	return &AlertRanker{
		ingredients: ingredients,
		aggregator:  aggregator,
		opts:        opts.withDefaults(),
		logger:      util.Named("alerts"),
	}
}

// GetAlerts returns at most limit alerts. An ingredient alerts when its
// status is low or shortage, when it sits at or under a positive threshold,
// or when upcoming orders need more than is in stock. Ingredients missing
// stock for orders come first, then lowest quantity.
func (r *AlertRanker) GetAlerts(ctx context.Context, accountID uuid.UUID, limit int) ([]models.StockAlert, error) {
	ctx, span := util.StartSpan(ctx, "AlertRanker.GetAlerts")
	defer span.End()

	if limit <= 0 {
		limit = DefaultAlertLimit
	}

	ingredients, err := r.ingredients.ListIngredients(ctx, accountID)
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	missing := make(map[uuid.UUID]decimal.Decimal)
	from, to := r.opts.DemandWindow()
	reqs, err := r.aggregator.ComputeRequirements(ctx, accountID, from, to)
	if err != nil {
		// shortfall unknown; fall back to status and threshold triggers
		r.logger.Warn("Upcoming requirements unavailable for alerts",
			util.AccountField(accountID),
			zap.Error(err))
	}
	for _, req := range reqs {
		if req.Missing.GreaterThan(decimal.Zero) {
			missing[req.ID] = req.Missing
		}
	}

	alerts := make([]models.StockAlert, 0)
	for _, ing := range ingredients {
		amount, short := missing[ing.ID]
		if !isAlert(ing, short) {
			continue
		}
		alert := models.StockAlert{
			ID:            ing.ID,
			Name:          ing.Name,
			StockQuantity: ing.StockQuantity,
			StockUnit:     ing.StockUnit,
			StockLow:      ing.StockLow,
			StockStatus:   ing.StockStatus,
		}
		if short {
			m := amount
			alert.MissingForOrders = &m
		}
		alerts = append(alerts, alert)
	}

	rankAlerts(alerts)
	if len(alerts) > limit {
		alerts = alerts[:limit]
	}
	return alerts, nil
}

func isAlert(ing models.Ingredient, missingForOrders bool) bool {
	if ing.StockStatus == models.StockStatusLow || ing.StockStatus == models.StockStatusShortage {
		return true
	}
	if ing.StockLow.GreaterThan(decimal.Zero) && ing.StockQuantity.LessThanOrEqual(ing.StockLow) {
		return true
	}
	return missingForOrders
}

func rankAlerts(alerts []models.StockAlert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		a, b := alerts[i], alerts[j]
		if (a.MissingForOrders != nil) != (b.MissingForOrders != nil) {
			return a.MissingForOrders != nil
		}
		return a.StockQuantity.LessThan(b.StockQuantity)
	})
}
