package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Unit is a measurement unit for stock, recipe links and cost references
type Unit string

// Supported units
const (
	UnitGram       Unit = "g"
	UnitKilogram   Unit = "kg"
	UnitMilliliter Unit = "ml"
	UnitLiter      Unit = "L"
	UnitPiece      Unit = "pc"
)

// UnitFamily groups units that can be converted into each other
type UnitFamily string

// Unit families
const (
	FamilyMass   UnitFamily = "mass"
	FamilyVolume UnitFamily = "volume"
	FamilyCount  UnitFamily = "count"
)

var unitFamilies = map[Unit]UnitFamily{
	UnitGram:       FamilyMass,
	UnitKilogram:   FamilyMass,
	UnitMilliliter: FamilyVolume,
	UnitLiter:      FamilyVolume,
	UnitPiece:      FamilyCount,
}

// base unit multipliers: g, ml and pc are 1
var unitFactors = map[Unit]decimal.Decimal{
	UnitGram:       decimal.NewFromInt(1),
	UnitKilogram:   decimal.NewFromInt(1000),
	UnitMilliliter: decimal.NewFromInt(1),
	UnitLiter:      decimal.NewFromInt(1000),
	UnitPiece:      decimal.NewFromInt(1),
}

// Family returns the unit's family
func (u Unit) Family() (UnitFamily, error) {
	f, ok := unitFamilies[u]
	if !ok {
		return "", fmt.Errorf("%w: unknown unit %q", ErrValidation, u)
	}
	return f, nil
}

// Valid reports whether the unit is supported
func (u Unit) Valid() bool {
	_, ok := unitFamilies[u]
	return ok
}

// Compatible reports whether both units belong to the same family
func (u Unit) Compatible(other Unit) bool {
	a, errA := u.Family()
	b, errB := other.Family()
	return errA == nil && errB == nil && a == b
}

// ConvertUnit converts amount from one unit to another of the same family.
// Converting across families fails with ErrValidation.
func ConvertUnit(amount decimal.Decimal, from, to Unit) (decimal.Decimal, error) {
	if from == to {
		return amount, nil
	}
	fromFamily, err := from.Family()
	if err != nil {
		return decimal.Zero, err
	}
	toFamily, err := to.Family()
	if err != nil {
		return decimal.Zero, err
	}
	if fromFamily != toFamily {
		return decimal.Zero, fmt.Errorf("%w: cannot convert %s (%s) to %s (%s)",
			ErrValidation, from, fromFamily, to, toFamily)
	}
	return amount.Mul(unitFactors[from]).Div(unitFactors[to]), nil
}
