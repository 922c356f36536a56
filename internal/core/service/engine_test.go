package service

import (
	"testing"
	"time"

	"github.com/berfenger/powergroup2mqtt/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testEngine(store *memoryStore, sink *recordingSink, clock *fakeClock, reg *EntityRegistry) *Engine {
	n, _ := NewUnitNormalizer(UnitPrefixKilo)
	return NewEngine(EngineOptions{
		Registry:   reg,
		Store:      store,
		Sink:       sink,
		Normalizer: n,
		Clock:      clock.Now,
		Logger:     zap.NewNop(),
	})
}

func TestEngineNestedGroupFollowsChildEdit(t *testing.T) {

	require := require.New(t)

	sink := newRecordingSink()
	e := testEngine(newMemoryStore(), sink, newFakeClock(), nil)
	errs := e.Start([]domain.GroupDefinition{
		group("a", []string{"sensor.p1"}, nil),
		group("b", []string{"sensor.p2"}, nil, "a"),
	})
	require.Empty(errs)

	e.ObserveReading(reading("sensor.p1", "10", "W"))
	e.ObserveReading(reading("sensor.p2", "5", "W"))
	e.ObserveReading(reading("sensor.p3", "20", "W"))
	state, err := e.GroupState("b")
	require.NoError(err)
	require.Equal("15.00", state.PowerState())

	_, err = e.PutGroup(group("a", []string{"sensor.p1", "sensor.p3"}, nil))
	require.NoError(err)

	members, err := e.ResolvedMembers("b")
	require.NoError(err)
	require.Equal([]string{"sensor.p2", "sensor.p1", "sensor.p3"}, members.Power)

	// sensor.p3 had no reading when it joined, b waits for it
	state, _ = e.GroupState("b")
	require.False(state.PowerAvailable)

	e.ObserveReading(reading("sensor.p3", "20", "W"))
	last, ok := sink.last("b")
	require.True(ok)
	require.Equal("35.00", last.PowerState())
}

func TestEngineSharedMemberUpdatesEveryGroup(t *testing.T) {

	assert := assert.New(t)

	sink := newRecordingSink()
	e := testEngine(newMemoryStore(), sink, newFakeClock(), nil)
	e.Start([]domain.GroupDefinition{
		group("x", []string{"sensor.shared"}, []string{"sensor.e"}),
		group("y", []string{"sensor.shared"}, []string{"sensor.e"}),
	})

	e.ObserveReading(reading("sensor.shared", "42", "W"))
	e.ObserveReading(reading("sensor.e", "1", "kWh"))
	e.ObserveReading(reading("sensor.e", "3", "kWh"))

	for _, id := range []string{"x", "y"} {
		state, err := e.GroupState(id)
		assert.NoError(err)
		assert.Equal("42.00", state.PowerState(), id)
		assert.Equal("2.0000", state.EnergyState(), id)
	}
}

func TestEngineDomainGroupPicksUpNewEntities(t *testing.T) {

	assert := assert.New(t)

	reg := testRegistry()
	sink := newRecordingSink()
	e := testEngine(newMemoryStore(), sink, newFakeClock(), reg)
	lights := domain.NewGroupDefinition("lights", "Lights")
	lights.Kind = domain.DomainGroup{Domain: "light"}
	lights.IgnoreUnavailable = true
	e.Start([]domain.GroupDefinition{lights})

	changed, err := e.PutEntity(domain.Entity{Id: "light.porch_power", Kind: domain.EntityKindPower, Unit: "kW"})
	assert.NoError(err)
	assert.Equal([]string{"lights"}, changed)

	// unit comes from the registry
	e.ObserveReading(domain.Reading{EntityId: "light.porch_power", State: "0.1"})
	state, _ := e.GroupState("lights")
	assert.Equal("100.00", state.PowerState())

	changed, err = e.DeleteEntity("light.porch_power")
	assert.NoError(err)
	assert.Equal([]string{"lights"}, changed)
	state, _ = e.GroupState("lights")
	assert.Equal("0.00", state.PowerState())

	_, err = e.DeleteEntity("light.porch_power")
	assert.ErrorIs(err, domain.ErrUnknownEntity)
}

func TestEngineHideMembers(t *testing.T) {

	assert := assert.New(t)

	sink := newRecordingSink()
	e := testEngine(newMemoryStore(), sink, newFakeClock(), nil)
	def := group("g", []string{"sensor.p1", "sensor.p2"}, nil)
	def.HideMembers = true
	e.Start([]domain.GroupDefinition{def})
	assert.Equal(map[string]bool{"sensor.p1": true, "sensor.p2": true}, sink.visibility)

	assert.NoError(e.DeleteGroup("g"))
	assert.Equal(map[string]bool{"sensor.p1": false, "sensor.p2": false}, sink.visibility)
	assert.Equal([]string{"g"}, sink.removed)

	_, err := e.GroupState("g")
	assert.ErrorIs(err, domain.ErrUnknownGroup)
}

func TestEngineDeleteGroupDropsStoredState(t *testing.T) {

	assert := assert.New(t)

	store := newMemoryStore()
	e := testEngine(store, newRecordingSink(), newFakeClock(), nil)
	e.Start([]domain.GroupDefinition{group("g", nil, []string{"sensor.e"})})
	e.ObserveReading(reading("sensor.e", "1", "kWh"))

	_, ok := store.Baseline("g", "sensor.e")
	assert.True(ok)
	assert.NoError(e.DeleteGroup("g"))
	_, ok = store.Baseline("g", "sensor.e")
	assert.False(ok)
	_, ok = store.Total("g")
	assert.False(ok)
}

func TestEngineThrottleTick(t *testing.T) {

	assert := assert.New(t)

	clock := newFakeClock()
	sink := newRecordingSink()
	n, _ := NewUnitNormalizer(UnitPrefixKilo)
	e := NewEngine(EngineOptions{
		Store:                 newMemoryStore(),
		Sink:                  sink,
		Normalizer:            n,
		DefaultUpdateInterval: 10 * time.Second,
		Clock:                 clock.Now,
		Logger:                zap.NewNop(),
	})
	e.Start([]domain.GroupDefinition{group("g", nil, []string{"sensor.e"})})

	e.ObserveReading(reading("sensor.e", "1", "kWh"))
	clock.Advance(time.Second)
	e.ObserveReading(reading("sensor.e", "2", "kWh"))

	next, ok := e.NextFlush()
	assert.True(ok)
	assert.Equal(clock.Now().Add(9*time.Second), next)

	e.Tick()
	last, _ := sink.last("g")
	assert.Equal("0.0000", last.EnergyState())

	clock.Advance(9 * time.Second)
	e.Tick()
	last, _ = sink.last("g")
	assert.Equal("1.0000", last.EnergyState())
	_, ok = e.NextFlush()
	assert.False(ok)
}

func TestEngineResetAndCalibrate(t *testing.T) {

	assert := assert.New(t)

	e := testEngine(newMemoryStore(), newRecordingSink(), newFakeClock(), nil)
	e.Start([]domain.GroupDefinition{group("g", nil, []string{"sensor.e"})})
	e.ObserveReading(reading("sensor.e", "1", "kWh"))
	e.ObserveReading(reading("sensor.e", "4", "kWh"))

	state, err := e.ResetEnergy("g")
	assert.NoError(err)
	assert.Equal("0.0000", state.EnergyState())

	state, err = e.CalibrateEnergy("g", d("12.5"))
	assert.NoError(err)
	assert.Equal("12.5000", state.EnergyState())

	_, err = e.CalibrateEnergy("g", d("-1"))
	assert.ErrorIs(err, domain.ErrInvalidValue)
	_, err = e.ResetEnergy("nope")
	assert.ErrorIs(err, domain.ErrUnknownGroup)

	e.ObserveReading(reading("sensor.e", "5", "kWh"))
	state, _ = e.GroupState("g")
	assert.Equal("13.5000", state.EnergyState())
}

func TestEngineWithoutSink(t *testing.T) {

	require := require.New(t)

	n, _ := NewUnitNormalizer(UnitPrefixKilo)
	e := NewEngine(EngineOptions{
		Store:      newMemoryStore(),
		Normalizer: n,
		Logger:     zap.NewNop(),
	})
	require.Empty(e.Start(nil))

	_, err := e.PutGroup(group("a", []string{"sensor.p1"}, nil))
	require.NoError(err)
	e.ObserveReading(reading("sensor.p1", "10", "W"))
	state, err := e.GroupState("a")
	require.NoError(err)
	require.Equal("10.00", state.PowerState())

	require.NoError(e.DeleteGroup("a"))
	_, err = e.GroupState("a")
	require.ErrorIs(err, domain.ErrUnknownGroup)
}
