package service

import (
	"bakery-inventory/internal/models"

	"github.com/shopspring/decimal"
)

// ResolveStatus derives an ingredient's stock status from its quantity, its
// low-stock threshold and the amount required by pending orders.
//
// The checks are ordered and the first match wins:
//  1. no physical stock: unavailable
//  2. stock does not cover pending demand: shortage
//  3. at or under the threshold and still tight after demand: low
//  4. otherwise: available
func ResolveStatus(quantity, low, required decimal.Decimal) models.StockStatus {
	if quantity.LessThanOrEqual(decimal.Zero) {
		return models.StockStatusUnavailable
	}

	remaining := quantity.Sub(required)
	if remaining.LessThanOrEqual(decimal.Zero) && required.GreaterThan(decimal.Zero) {
		return models.StockStatusShortage
	}

	if low.GreaterThan(decimal.Zero) && quantity.LessThanOrEqual(low) &&
		(required.GreaterThan(quantity) || remaining.LessThanOrEqual(low)) {
		return models.StockStatusLow
	}

	return models.StockStatusAvailable
}
