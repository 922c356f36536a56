package service

import (
	"time"

	"github.com/berfenger/powergroup2mqtt/internal/core/domain"
	"github.com/berfenger/powergroup2mqtt/internal/core/port"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var msPerHour = decimal.NewFromInt(3_600_000)

type GroupDeps struct {
	Normalizer      *UnitNormalizer
	Power           *PowerAggregator
	Tracker         *EnergyDeltaTracker
	Store           port.BaselineStore
	DefaultInterval time.Duration
}

type GroupUpdate struct {
	PowerChanged  bool
	EnergyChanged bool
}

func (u GroupUpdate) Changed() bool {
	return u.PowerChanged || u.EnergyChanged
}

// GroupAggregate is the runtime state of one group: latest member readings,
// current power, accumulated energy and its throttle.
//
// total always includes every observed increment. visible is what has been
// published; the difference is held by the throttle.
type GroupAggregate struct {
	def      domain.GroupDefinition
	members  domain.ResolvedMembers
	readings map[string]domain.Reading
	deps     GroupDeps
	throttle *Throttle

	power   domain.PowerResult
	powerAt time.Time

	total   decimal.Decimal
	visible decimal.Decimal
	// seeding groups add the absolute value of first sightings until every
	// energy member has a baseline
	seeding bool

	logger *zap.Logger
}

func NewGroupAggregate(def domain.GroupDefinition, members domain.ResolvedMembers, deps GroupDeps, logger *zap.Logger) *GroupAggregate {
	g := &GroupAggregate{
		def:      def,
		members:  members,
		readings: make(map[string]domain.Reading),
		deps:     deps,
		throttle: NewThrottle(def.EffectiveUpdateInterval(deps.DefaultInterval)),
		total:    decimal.Zero,
		visible:  decimal.Zero,
		logger:   logger.With(zap.String("group", def.Id)),
	}
	g.power = deps.Power.Recompute(def, members.Power, g.readings)

	if stored, ok := deps.Store.Total(def.Id); ok {
		v, err := deps.Normalizer.NormalizeEnergy(stored.Value, stored.Unit)
		if err == nil {
			g.total = v
			g.visible = v
			g.seeding = stored.Seeding && !def.StartEnergyAtZero && len(members.Energy) > 0
			return g
		}
		g.logger.Warn("ignoring stored energy total", zap.Error(err))
	}
	g.seeding = !def.StartEnergyAtZero && len(members.Energy) > 0
	return g
}

func (g *GroupAggregate) Id() string {
	return g.def.Id
}

func (g *GroupAggregate) Definition() domain.GroupDefinition {
	return g.def
}

func (g *GroupAggregate) Members() domain.ResolvedMembers {
	return g.members
}

// Observe applies a reading of a power or energy member.
func (g *GroupAggregate) Observe(r domain.Reading, now time.Time) (GroupUpdate, error) {
	var upd GroupUpdate
	isPower := g.members.IsPowerMember(r.EntityId)
	isEnergy := g.members.IsEnergyMember(r.EntityId)
	if !isPower && !isEnergy {
		return upd, nil
	}
	g.readings[r.EntityId] = r

	if isPower {
		upd.PowerChanged, upd.EnergyChanged = g.recomputePower(now)
	}
	if isEnergy && g.tracksEnergy() {
		er := r
		if er.Unit == "" {
			er.Unit = g.deps.Normalizer.EnergyUnit()
		}
		delta, err := g.deps.Tracker.Observe(g.def.Id, er)
		if err != nil {
			return upd, err
		}
		if delta.Skipped {
			return upd, nil
		}
		inc := delta.Value
		if delta.FirstSighting && g.seeding {
			inc = delta.Current
		}
		if g.seeding && g.allEnergySeen() {
			g.seeding = false
		}
		if g.accumulate(inc, now) {
			upd.EnergyChanged = true
		}
	}
	return upd, nil
}

// SetMembers swaps in a new definition and member set. Readings of members that
// left are dropped, their baselines are kept.
func (g *GroupAggregate) SetMembers(def domain.GroupDefinition, members domain.ResolvedMembers, now time.Time) GroupUpdate {
	g.def = def
	g.members = members
	g.throttle.SetInterval(def.EffectiveUpdateInterval(g.deps.DefaultInterval))
	for id := range g.readings {
		if !members.IsPowerMember(id) && !members.IsEnergyMember(id) {
			delete(g.readings, id)
		}
	}
	var upd GroupUpdate
	upd.PowerChanged, upd.EnergyChanged = g.recomputePower(now)
	return upd
}

// Tick publishes throttled increments that became due.
func (g *GroupAggregate) Tick(now time.Time) bool {
	amount, ok := g.throttle.Tick(now)
	if ok {
		g.visible = g.visible.Add(amount)
	}
	return ok
}

func (g *GroupAggregate) NextFlush() (time.Time, bool) {
	return g.throttle.NextFlush()
}

// Reset zeroes the total and re-baselines the members at their current readings.
func (g *GroupAggregate) Reset(now time.Time) {
	g.deps.Tracker.Rebaseline(g.def.Id, g.members.Energy, g.readings)
	g.overwriteTotal(decimal.Zero, now)
}

// Calibrate overwrites the total. value is in the configured energy unit.
func (g *GroupAggregate) Calibrate(value decimal.Decimal, now time.Time) {
	g.overwriteTotal(value, now)
}

// EvictMember drops the baseline of a member.
func (g *GroupAggregate) EvictMember(memberId string) bool {
	return g.deps.Tracker.Evict(g.def.Id, memberId)
}

func (g *GroupAggregate) Snapshot() domain.GroupSnapshot {
	return domain.GroupSnapshot{
		Id:              g.def.Id,
		Name:            g.def.DisplayName(),
		Kind:            domain.KindName(g.def.Kind),
		Power:           g.power.Value,
		PowerAvailable:  g.power.Available,
		PowerUnit:       g.deps.Normalizer.PowerUnit(),
		PowerPrecision:  g.def.PowerPrecision,
		HasEnergy:       g.tracksEnergy(),
		Energy:          g.visible,
		EnergyUnit:      g.deps.Normalizer.EnergyUnit(),
		EnergyPrecision: g.def.EnergyPrecision,
		LastFlush:       g.throttle.lastFlush,
		Members:         g.members,
		HideMembers:     g.def.HideMembers,
	}
}

// Total returns the internal, unthrottled total.
func (g *GroupAggregate) Total() decimal.Decimal {
	return g.total
}

func (g *GroupAggregate) tracksEnergy() bool {
	return g.def.CreateEnergySensor && !g.def.IsSubtract()
}

func (g *GroupAggregate) integratesPower() bool {
	return g.def.CreateEnergySensor && g.def.ForceCalculateEnergy && len(g.members.Energy) == 0
}

// recomputePower refreshes the power result. Groups that derive energy from
// power integrate the previous value over the elapsed time (left Riemann sum).
func (g *GroupAggregate) recomputePower(now time.Time) (bool, bool) {
	prev, prevAt := g.power, g.powerAt
	g.power = g.deps.Power.Recompute(g.def, g.members.Power, g.readings)
	g.powerAt = now

	energyChanged := false
	if g.integratesPower() && prev.Available && !prevAt.IsZero() && now.After(prevAt) && prev.Value.IsPositive() {
		wh := prev.Value.Mul(decimal.NewFromInt(now.Sub(prevAt).Milliseconds())).Div(msPerHour)
		inc, err := g.deps.Normalizer.NormalizeEnergy(wh, "Wh")
		if err == nil {
			energyChanged = g.accumulate(inc, now)
		}
	}
	return !prev.Equal(g.power), energyChanged
}

func (g *GroupAggregate) accumulate(inc decimal.Decimal, now time.Time) bool {
	g.total = g.total.Add(inc)
	g.persistTotal(now)
	amount, ok := g.throttle.Add(inc, now)
	if ok {
		g.visible = g.visible.Add(amount)
	}
	return ok
}

func (g *GroupAggregate) overwriteTotal(value decimal.Decimal, now time.Time) {
	g.total = value
	g.visible = value
	g.seeding = false
	g.throttle.Discard(now)
	g.persistTotal(now)
}

func (g *GroupAggregate) persistTotal(now time.Time) {
	g.deps.Store.SetTotal(g.def.Id, domain.EnergyTotal{
		Value:     g.total,
		Unit:      g.deps.Normalizer.EnergyUnit(),
		Timestamp: now,
		Seeding:   g.seeding,
	})
}

func (g *GroupAggregate) allEnergySeen() bool {
	for _, m := range g.members.Energy {
		if !g.deps.Tracker.HasBaseline(g.def.Id, m) {
			return false
		}
	}
	return true
}
