package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Unit is the measurement unit of a quantity
type Unit string

const (
	UnitGrams      Unit = "g"
	UnitKilograms  Unit = "kg"
	UnitMillilitre Unit = "ml"
	UnitLitre      Unit = "L"
	UnitCount      Unit = "units"
)

// Dimension groups units that can be converted into one another
type Dimension string

const (
	DimensionMass   Dimension = "mass"
	DimensionVolume Dimension = "volume"
	DimensionCount  Dimension = "count"
)

var thousand = decimal.NewFromInt(1000)

// IsValid checks if the unit is known
func (u Unit) IsValid() bool {
	switch u {
	case UnitGrams, UnitKilograms, UnitMillilitre, UnitLitre, UnitCount:
		return true
	}
	return false
}

// Dimension returns the unit's dimension
func (u Unit) Dimension() Dimension {
	switch u {
	case UnitGrams, UnitKilograms:
		return DimensionMass
	case UnitMillilitre, UnitLitre:
		return DimensionVolume
	default:
		return DimensionCount
	}
}

// toBase returns the factor that converts one of u into the dimension's base
// unit (grams, millilitres or units)
func (u Unit) toBase() decimal.Decimal {
	if u == UnitKilograms || u == UnitLitre {
		return thousand
	}
	return decimal.NewFromInt(1)
}

// Normalize converts q in unit u into the base unit of its dimension
func Normalize(q decimal.Decimal, u Unit) decimal.Decimal {
	return q.Mul(u.toBase())
}

// ConvertQuantity converts q from one unit to another of the same dimension
func ConvertQuantity(q decimal.Decimal, from, to Unit) (decimal.Decimal, error) {
	if from == to {
		return q, nil
	}
	if !from.IsValid() || !to.IsValid() {
		return decimal.Zero, fmt.Errorf("%w: %q to %q", ErrUnitMismatch, from, to)
	}
	if from.Dimension() != to.Dimension() {
		return decimal.Zero, fmt.Errorf("%w: %q to %q", ErrUnitMismatch, from, to)
	}
	return q.Mul(from.toBase()).Div(to.toBase()), nil
}
