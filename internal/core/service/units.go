package service

import (
	"fmt"

	"github.com/berfenger/powergroup2mqtt/internal/core/domain"
	"github.com/shopspring/decimal"
)

type UnitPrefix string

const (
	UnitPrefixNone UnitPrefix = "none"
	UnitPrefixKilo UnitPrefix = "kilo"
	UnitPrefixMega UnitPrefix = "mega"

	POWER_UNIT = "W"
)

// power of ten relative to W and Wh
var (
	powerExponents = map[string]int32{
		"mW": -3,
		"W":  0,
		"kW": 3,
		"MW": 6,
	}
	energyExponents = map[string]int32{
		"Wh":  0,
		"kWh": 3,
		"MWh": 6,
	}
	prefixEnergyUnits = map[UnitPrefix]string{
		UnitPrefixNone: "Wh",
		UnitPrefixKilo: "kWh",
		UnitPrefixMega: "MWh",
	}
)

// UnitNormalizer converts readings to W and to the configured energy unit.
// Conversions are exact decimal shifts.
type UnitNormalizer struct {
	energyUnit string
}

func NewUnitNormalizer(prefix UnitPrefix) (*UnitNormalizer, error) {
	unit, ok := prefixEnergyUnits[prefix]
	if !ok {
		return nil, fmt.Errorf("%w: energy unit prefix %q", domain.ErrUnknownUnit, prefix)
	}
	return &UnitNormalizer{energyUnit: unit}, nil
}

func (n *UnitNormalizer) PowerUnit() string {
	return POWER_UNIT
}

func (n *UnitNormalizer) EnergyUnit() string {
	return n.energyUnit
}

func (n *UnitNormalizer) NormalizePower(value decimal.Decimal, unit string) (decimal.Decimal, error) {
	exp, ok := powerExponents[unit]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: power unit %q", domain.ErrUnknownUnit, unit)
	}
	return value.Shift(exp), nil
}

func (n *UnitNormalizer) NormalizeEnergy(value decimal.Decimal, unit string) (decimal.Decimal, error) {
	exp, ok := energyExponents[unit]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: energy unit %q", domain.ErrUnknownUnit, unit)
	}
	return value.Shift(exp - energyExponents[n.energyUnit]), nil
}

// Normalize dispatches on the entity kind.
func (n *UnitNormalizer) Normalize(kind domain.EntityKind, value decimal.Decimal, unit string) (decimal.Decimal, error) {
	switch kind {
	case domain.EntityKindPower:
		return n.NormalizePower(value, unit)
	case domain.EntityKindEnergy:
		return n.NormalizeEnergy(value, unit)
	}
	return decimal.Zero, fmt.Errorf("%w: entity kind %q", domain.ErrUnknownUnit, kind)
}

func IsPowerUnit(unit string) bool {
	_, ok := powerExponents[unit]
	return ok
}

func IsEnergyUnit(unit string) bool {
	_, ok := energyExponents[unit]
	return ok
}
