package service

import (
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/berfenger/powergroup2mqtt/internal/core/domain"
	"github.com/berfenger/powergroup2mqtt/internal/core/port"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type EngineOptions struct {
	Registry              *EntityRegistry
	Store                 port.BaselineStore
	GroupStore            port.GroupConfigStore
	Sink                  port.GroupSink
	Normalizer            *UnitNormalizer
	DefaultUpdateInterval time.Duration
	Clock                 func() time.Time
	Logger                *zap.Logger
}

// Engine ties the group index to one GroupAggregate per group. Every method
// runs under a single lock so a reading is applied to all its groups atomically.
type Engine struct {
	mu         sync.Mutex
	registry   *EntityRegistry
	index      *GroupIndex
	groupStore port.GroupConfigStore
	sink       port.GroupSink
	deps       GroupDeps
	groups     map[string]*GroupAggregate
	hidden     map[string]bool
	running    bool
	clock      func() time.Time
	logger     *zap.Logger
}

var _ port.ReadingObserver = (*Engine)(nil)

func NewEngine(opts EngineOptions) *Engine {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Registry == nil {
		opts.Registry = NewEntityRegistry()
	}
	logger := opts.Logger.With(zap.String("component", "engine"))
	return &Engine{
		registry:   opts.Registry,
		index:      NewGroupIndex(NewGroupResolver(opts.Registry, opts.Registry), logger),
		groupStore: opts.GroupStore,
		sink:       opts.Sink,
		deps: GroupDeps{
			Normalizer:      opts.Normalizer,
			Power:           NewPowerAggregator(opts.Normalizer, logger),
			Tracker:         NewEnergyDeltaTracker(opts.Store, opts.Normalizer, logger),
			Store:           opts.Store,
			DefaultInterval: opts.DefaultUpdateInterval,
		},
		groups: make(map[string]*GroupAggregate),
		hidden: make(map[string]bool),
		clock:  opts.Clock,
		logger: logger,
	}
}

// Start loads the initial definitions. Rejected definitions are returned, the
// rest of the groups start anyway.
func (e *Engine) Start(defs []domain.GroupDefinition) []error {
	e.mu.Lock()
	defer e.mu.Unlock()

	errs := e.index.Load(defs)
	e.running = true
	for _, def := range e.index.List() {
		members, _ := e.index.Resolved(def.Id)
		e.groups[def.Id] = NewGroupAggregate(def, members, e.deps, e.logger)
		e.logger.Info("group started", zap.String("group", def.Id),
			zap.Strings("power", members.Power), zap.Strings("energy", members.Energy))
	}
	e.publishAllLocked()
	return errs
}

// Running reports whether Start was called and Close was not.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Republish emits definitions, states and visibility again, e.g. after an MQTT reconnect.
func (e *Engine) Republish() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hidden = make(map[string]bool)
	e.publishAllLocked()
}

func (e *Engine) ObserveReading(r domain.Reading) {
	e.mu.Lock()
	defer e.mu.Unlock()

	groups := e.index.GroupsContaining(r.EntityId)
	if len(groups) == 0 {
		e.logger.Debug("reading for entity outside any group", zap.String("entity", r.EntityId))
		return
	}
	now := e.clock()
	if r.Timestamp.IsZero() {
		r.Timestamp = now
	}
	if r.Unit == "" {
		if ent, ok := e.registry.Entity(r.EntityId); ok {
			r.Unit = ent.Unit
		}
	}
	for _, id := range groups {
		g, ok := e.groups[id]
		if !ok {
			continue
		}
		upd, err := g.Observe(r, now)
		if err != nil {
			e.logger.Warn("reading rejected", zap.String("group", id), zap.String("entity", r.EntityId), zap.Error(err))
		}
		if upd.Changed() {
			e.publishLocked(g)
		}
	}
}

func (e *Engine) Groups() []domain.GroupDefinition {
	return e.index.List()
}

func (e *Engine) Entities() []domain.Entity {
	return e.registry.List()
}

func (e *Engine) ResolvedMembers(groupId string) (domain.ResolvedMembers, error) {
	members, ok := e.index.Resolved(groupId)
	if !ok {
		return domain.ResolvedMembers{}, fmt.Errorf("%w: %s", domain.ErrUnknownGroup, groupId)
	}
	return members, nil
}

func (e *Engine) GroupState(groupId string) (domain.GroupSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	g, err := e.groupLocked(groupId)
	if err != nil {
		return domain.GroupSnapshot{}, err
	}
	return g.Snapshot(), nil
}

// PutGroup creates or edits a group and re-resolves every ancestor.
func (e *Engine) PutGroup(def domain.GroupDefinition) (domain.GroupSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	changed, err := e.index.Put(def)
	if err != nil {
		return domain.GroupSnapshot{}, err
	}
	e.logger.Info("group updated", zap.String("group", def.Id), zap.Strings("affected", changed))
	e.applyMembershipLocked(changed)
	e.saveGroupsLocked()
	e.publishGroupsChangedLocked([]domain.GroupDefinition{def}, nil)
	e.refreshVisibilityLocked()
	return e.groups[def.Id].Snapshot(), nil
}

// DeleteGroup removes a group together with its baselines and total.
func (e *Engine) DeleteGroup(groupId string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	def, changed, err := e.index.Remove(groupId)
	if err != nil {
		return err
	}
	delete(e.groups, groupId)
	e.deps.Store.DeleteGroup(groupId)
	e.logger.Info("group deleted", zap.String("group", groupId), zap.Strings("affected", changed))
	e.applyMembershipLocked(changed)
	e.saveGroupsLocked()
	e.publishGroupsChangedLocked(nil, []domain.GroupDefinition{def})
	e.refreshVisibilityLocked()
	return nil
}

func (e *Engine) ResetEnergy(groupId string) (domain.GroupSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	g, err := e.groupLocked(groupId)
	if err != nil {
		return domain.GroupSnapshot{}, err
	}
	g.Reset(e.clock())
	e.logger.Info("energy reset", zap.String("group", groupId))
	e.publishLocked(g)
	return g.Snapshot(), nil
}

func (e *Engine) CalibrateEnergy(groupId string, value decimal.Decimal) (domain.GroupSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if value.IsNegative() {
		return domain.GroupSnapshot{}, fmt.Errorf("%w: energy cannot be negative", domain.ErrInvalidValue)
	}
	g, err := e.groupLocked(groupId)
	if err != nil {
		return domain.GroupSnapshot{}, err
	}
	g.Calibrate(value, e.clock())
	e.logger.Info("energy calibrated", zap.String("group", groupId), zap.String("value", value.String()))
	e.publishLocked(g)
	return g.Snapshot(), nil
}

// EvictBaseline forgets a member baseline so its next reading is a first sighting.
func (e *Engine) EvictBaseline(groupId, memberId string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	g, err := e.groupLocked(groupId)
	if err != nil {
		return false, err
	}
	return g.EvictMember(memberId), nil
}

func (e *Engine) PutEntity(ent domain.Entity) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	updated, err := e.registry.Put(ent)
	if err != nil || !updated {
		return nil, err
	}
	return e.refreshLocked(), nil
}

func (e *Engine) DeleteEntity(entityId string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.registry.Remove(entityId); !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownEntity, entityId)
	}
	return e.refreshLocked(), nil
}

// Tick publishes throttled energy whose window elapsed.
func (e *Engine) Tick() {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock()
	for _, id := range slices.Sorted(maps.Keys(e.groups)) {
		g := e.groups[id]
		if g.Tick(now) {
			e.publishLocked(g)
		}
	}
}

// NextFlush returns the earliest time a throttled group has something to publish.
func (e *Engine) NextFlush() (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var next time.Time
	found := false
	for _, g := range e.groups {
		if t, ok := g.NextFlush(); ok && (!found || t.Before(next)) {
			next = t
			found = true
		}
	}
	return next, found
}

func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.index.Close()
	e.running = false
	clear(e.groups)
	clear(e.hidden)
}

func (e *Engine) groupLocked(groupId string) (*GroupAggregate, error) {
	g, ok := e.groups[groupId]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownGroup, groupId)
	}
	return g, nil
}

func (e *Engine) refreshLocked() []string {
	changed := e.index.Refresh()
	if len(changed) > 0 {
		e.logger.Info("entity registry changed group members", zap.Strings("groups", changed))
		e.applyMembershipLocked(changed)
		e.refreshVisibilityLocked()
	}
	return changed
}

func (e *Engine) applyMembershipLocked(groupIds []string) {
	now := e.clock()
	for _, id := range groupIds {
		def, ok := e.index.Get(id)
		if !ok {
			continue
		}
		members, _ := e.index.Resolved(id)
		if g, ok := e.groups[id]; ok {
			g.SetMembers(def, members, now)
			e.publishLocked(g)
			continue
		}
		g := NewGroupAggregate(def, members, e.deps, e.logger)
		e.groups[id] = g
		e.publishLocked(g)
	}
}

func (e *Engine) publishLocked(g *GroupAggregate) {
	if e.sink != nil {
		e.sink.PublishGroupState(g.Snapshot())
	}
}

func (e *Engine) publishGroupsChangedLocked(upserted, removed []domain.GroupDefinition) {
	if e.sink != nil {
		e.sink.PublishGroupsChanged(upserted, removed)
	}
}

func (e *Engine) publishAllLocked() {
	if e.sink == nil {
		return
	}
	e.sink.PublishGroupsChanged(e.index.List(), nil)
	for _, id := range slices.Sorted(maps.Keys(e.groups)) {
		e.publishLocked(e.groups[id])
	}
	e.refreshVisibilityLocked()
}

// refreshVisibilityLocked hides members of hide_members groups and shows them
// again once no such group contains them.
func (e *Engine) refreshVisibilityLocked() {
	want := make(map[string]bool)
	for _, g := range e.groups {
		if !g.Definition().HideMembers {
			continue
		}
		for _, m := range g.Members().All() {
			want[m] = true
		}
	}
	if e.sink != nil {
		for _, id := range slices.Sorted(maps.Keys(want)) {
			if !e.hidden[id] {
				e.sink.PublishVisibility(id, true)
			}
		}
		for _, id := range slices.Sorted(maps.Keys(e.hidden)) {
			if !want[id] {
				e.sink.PublishVisibility(id, false)
			}
		}
	}
	e.hidden = want
}

func (e *Engine) saveGroupsLocked() {
	if e.groupStore == nil {
		return
	}
	if err := e.groupStore.Save(e.index.List()); err != nil {
		e.logger.Error("could not persist group definitions", zap.Error(err))
	}
}
