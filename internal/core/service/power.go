package service

import (
	"github.com/berfenger/powergroup2mqtt/internal/core/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PowerAggregator sums the latest readings of a group's power members.
type PowerAggregator struct {
	normalizer *UnitNormalizer
	logger     *zap.Logger
}

func NewPowerAggregator(normalizer *UnitNormalizer, logger *zap.Logger) *PowerAggregator {
	return &PowerAggregator{
		normalizer: normalizer,
		logger:     logger,
	}
}

// Recompute derives the group power from scratch. A member with no reading, an
// unavailable state or a value that cannot be normalized counts as unavailable.
//
// With IgnoreUnavailable unset any unavailable member makes the group
// unavailable. When every member is unavailable the AllUnavailable policy
// decides between 0 and unavailable. Subtract groups report members[0] minus
// the rest and need the base to be available.
func (a *PowerAggregator) Recompute(def domain.GroupDefinition, members []string, readings map[string]domain.Reading) domain.PowerResult {
	values := make([]*decimal.Decimal, len(members))
	unavailable := 0
	for i, member := range members {
		v, ok := a.value(readings, member)
		if !ok {
			unavailable++
			continue
		}
		values[i] = &v
	}

	if len(members) == 0 || unavailable == len(members) {
		if def.AllUnavailable == domain.AllUnavailableUnavailable {
			return domain.UnavailablePower()
		}
		return domain.PowerResult{Value: decimal.Zero, Available: true}
	}
	if unavailable > 0 && !def.IgnoreUnavailable {
		return domain.UnavailablePower()
	}

	if def.IsSubtract() {
		if values[0] == nil {
			return domain.UnavailablePower()
		}
		total := *values[0]
		for _, v := range values[1:] {
			if v != nil {
				total = total.Sub(*v)
			}
		}
		return domain.PowerResult{Value: total, Available: true}
	}

	total := decimal.Zero
	for _, v := range values {
		if v != nil {
			total = total.Add(*v)
		}
	}
	return domain.PowerResult{Value: total, Available: true}
}

func (a *PowerAggregator) value(readings map[string]domain.Reading, member string) (decimal.Decimal, bool) {
	r, ok := readings[member]
	if !ok || !r.Available() {
		return decimal.Zero, false
	}
	v, err := r.Decimal()
	if err != nil {
		a.logger.Warn("power reading rejected", zap.String("entity", member), zap.Error(err))
		return decimal.Zero, false
	}
	unit := r.Unit
	if unit == "" {
		unit = POWER_UNIT
	}
	w, err := a.normalizer.NormalizePower(v, unit)
	if err != nil {
		a.logger.Warn("power reading rejected", zap.String("entity", member), zap.Error(err))
		return decimal.Zero, false
	}
	return w, true
}
