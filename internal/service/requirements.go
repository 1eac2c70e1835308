package service

import (
	"context"
	"fmt"
	"sort"

	"bakery-inventory/internal/models"
	"bakery-inventory/internal/util"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// RequirementAggregator sums the ingredients needed by pending orders
type RequirementAggregator struct {
	demand DemandReader
	logger *zap.Logger
}

// NewRequirementAggregator creates a new requirement aggregator
func NewRequirementAggregator(demand DemandReader) *RequirementAggregator {
	return &RequirementAggregator{
		demand: demand,
		logger: util.Named("requirements"),
	}
}

// ComputeRequirements aggregates the demand of every pending order delivered
// within [start, end]. A failed read returns no requirements at all.
func (a *RequirementAggregator) ComputeRequirements(ctx context.Context, accountID uuid.UUID, start, end civil.Date) ([]models.IngredientRequirement, error) {
	ctx, span := util.StartSpan(ctx, "RequirementAggregator.ComputeRequirements",
		attribute.String("start", start.String()),
		attribute.String("end", end.String()))
	defer span.End()

	if !start.IsValid() || !end.IsValid() {
		return nil, fmt.Errorf("%w: invalid date range", models.ErrValidation)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end date %s is before start date %s", models.ErrValidation, end, start)
	}

	lines, err := a.demand.GetPendingDemand(ctx, accountID, start, end)
	if err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to read pending demand: %w", err)
	}

	reqs, err := aggregateDemand(lines)
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	a.logger.Debug("Requirements computed",
		util.AccountField(accountID),
		zap.Stringer("start", start),
		zap.Stringer("end", end),
		zap.Int("ingredients", len(reqs)))
	return reqs, nil
}

// aggregateDemand accumulates link quantity × item quantity per ingredient,
// converted into the ingredient's stock unit. Stock is taken from the first
// line seen for the ingredient.
func aggregateDemand(lines []models.DemandLine) ([]models.IngredientRequirement, error) {
	totals := make(map[uuid.UUID]*models.IngredientRequirement)

	for _, line := range lines {
		amount, err := lineAmount(line)
		if err != nil {
			return nil, err
		}

		req, ok := totals[line.IngredientID]
		if !ok {
			req = &models.IngredientRequirement{
				ID:       line.IngredientID,
				Name:     line.IngredientName,
				Required: decimal.Zero,
				Stock:    line.StockQuantity,
				Unit:     line.StockUnit,
			}
			totals[line.IngredientID] = req
		}
		req.Required = req.Required.Add(amount)
	}

	reqs := make([]models.IngredientRequirement, 0, len(totals))
	for _, req := range totals {
		req.Missing = decimal.Max(decimal.Zero, req.Required.Sub(req.Stock))
		reqs = append(reqs, *req)
	}

	sort.Slice(reqs, func(i, j int) bool {
		if reqs[i].Name != reqs[j].Name {
			return reqs[i].Name < reqs[j].Name
		}
		return reqs[i].ID.String() < reqs[j].ID.String()
	})
	return reqs, nil
}

// lineAmount is the stock-unit amount one demand line consumes. Links
// without a unit are taken to be in the ingredient's stock unit.
func lineAmount(line models.DemandLine) (decimal.Decimal, error) {
	amount := line.LinkQuantity.Mul(decimal.NewFromInt(int64(line.ItemQuantity)))
	if line.LinkUnit == "" {
		return amount, nil
	}
	converted, err := models.ConvertUnit(amount, line.LinkUnit, line.StockUnit)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ingredient %q: %w", line.IngredientName, err)
	}
	return converted, nil
}

// usageFromDemand turns aggregated requirements into stock deductions
func usageFromDemand(lines []models.DemandLine) ([]models.StockDeduction, error) {
	reqs, err := aggregateDemand(lines)
	if err != nil {
		return nil, err
	}
	usage := make([]models.StockDeduction, 0, len(reqs))
	for _, req := range reqs {
		usage = append(usage, models.StockDeduction{IngredientID: req.ID, Amount: req.Required})
	}
	return usage, nil
}

func requirementIndex(reqs []models.IngredientRequirement) map[uuid.UUID]models.IngredientRequirement {
	idx := make(map[uuid.UUID]models.IngredientRequirement, len(reqs))
	for _, req := range reqs {
		idx[req.ID] = req
	}
	return idx
}
