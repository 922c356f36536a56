package service

import (
	"fmt"

	"github.com/berfenger/powergroup2mqtt/internal/core/domain"
	"github.com/berfenger/powergroup2mqtt/internal/core/port"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// EnergyDelta is the outcome of observing one cumulative energy reading.
type EnergyDelta struct {
	// Value is never negative.
	Value decimal.Decimal
	// Current is the normalized reading that became the new baseline.
	Current decimal.Decimal
	// FirstSighting is set when the member had no baseline yet.
	FirstSighting bool
	// Reset is set when the member counter went backwards.
	Reset bool
	// Skipped is set for unavailable readings, which leave the baseline alone.
	Skipped bool
}

// EnergyDeltaTracker turns cumulative member counters into non-negative
// increments using the per (group, member) baselines of a BaselineStore.
type EnergyDeltaTracker struct {
	store      port.BaselineStore
	normalizer *UnitNormalizer
	logger     *zap.Logger
}

func NewEnergyDeltaTracker(store port.BaselineStore, normalizer *UnitNormalizer, logger *zap.Logger) *EnergyDeltaTracker {
	return &EnergyDeltaTracker{
		store:      store,
		normalizer: normalizer,
		logger:     logger,
	}
}

// Observe compares the reading against the member baseline and stores the reading
// as the new baseline:
//   - no baseline: delta 0 (first sighting)
//   - value >= baseline: delta value - baseline
//   - value < baseline: delta 0, the counter was reset and only later
//     increases count
func (t *EnergyDeltaTracker) Observe(groupId string, r domain.Reading) (EnergyDelta, error) {
	if !r.Available() {
		return EnergyDelta{Skipped: true}, nil
	}
	current, err := t.normalize(r)
	if err != nil {
		return EnergyDelta{}, err
	}

	next := domain.MemberBaseline{
		Value:     current,
		Unit:      t.normalizer.EnergyUnit(),
		Timestamp: r.Timestamp,
	}

	baseline, ok := t.baseline(groupId, r.EntityId)
	t.store.SetBaseline(groupId, r.EntityId, next)
	if !ok {
		return EnergyDelta{Value: decimal.Zero, Current: current, FirstSighting: true}, nil
	}
	if current.LessThan(baseline) {
		t.logger.Info("energy counter reset detected", zap.String("group", groupId),
			zap.String("entity", r.EntityId), zap.String("previous", baseline.String()), zap.String("current", current.String()))
		return EnergyDelta{Value: decimal.Zero, Current: current, Reset: true}, nil
	}
	return EnergyDelta{Value: current.Sub(baseline), Current: current}, nil
}

// Rebaseline makes the given readings the new baselines of a group, used on
// reset. Members without a usable reading lose their baseline and start unseen.
func (t *EnergyDeltaTracker) Rebaseline(groupId string, members []string, current map[string]domain.Reading) {
	for _, member := range members {
		r, ok := current[member]
		if ok && r.Available() {
			v, err := t.normalize(r)
			if err == nil {
				t.store.SetBaseline(groupId, member, domain.MemberBaseline{
					Value:     v,
					Unit:      t.normalizer.EnergyUnit(),
					Timestamp: r.Timestamp,
				})
				continue
			}
		}
		t.store.DeleteBaseline(groupId, member)
	}
}

// HasBaseline reports whether the member has been seen by the group.
func (t *EnergyDeltaTracker) HasBaseline(groupId, memberId string) bool {
	_, ok := t.baseline(groupId, memberId)
	return ok
}

func (t *EnergyDeltaTracker) Evict(groupId, memberId string) bool {
	return t.store.DeleteBaseline(groupId, memberId)
}

// baseline loads a stored baseline in the canonical energy unit. A baseline in
// a unit that cannot be converted is treated as missing.
func (t *EnergyDeltaTracker) baseline(groupId, memberId string) (decimal.Decimal, bool) {
	b, ok := t.store.Baseline(groupId, memberId)
	if !ok {
		return decimal.Zero, false
	}
	if b.Unit == t.normalizer.EnergyUnit() {
		return b.Value, true
	}
	v, err := t.normalizer.NormalizeEnergy(b.Value, b.Unit)
	if err != nil {
		t.logger.Warn("dropping baseline with unknown unit", zap.String("group", groupId),
			zap.String("entity", memberId), zap.Error(err))
		return decimal.Zero, false
	}
	return v, true
}

func (t *EnergyDeltaTracker) normalize(r domain.Reading) (decimal.Decimal, error) {
	v, err := r.Decimal()
	if err != nil {
		return decimal.Zero, err
	}
	if v.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %s: negative energy counter %s", domain.ErrInvalidValue, r.EntityId, r.State)
	}
	return t.normalizer.NormalizeEnergy(v, r.Unit)
}
