package service

import (
	"errors"
	"testing"

	"github.com/berfenger/powergroup2mqtt/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry() *EntityRegistry {
	return NewEntityRegistry(
		domain.Entity{Id: "light.kitchen_power", Kind: domain.EntityKindPower, Unit: "W", Domain: "light", Area: "kitchen"},
		domain.Entity{Id: "light.kitchen_energy", Kind: domain.EntityKindEnergy, Unit: "kWh", Domain: "light", Area: "kitchen"},
		domain.Entity{Id: "light.hall_power", Kind: domain.EntityKindPower, Unit: "W", Domain: "light", Area: "hall"},
		domain.Entity{Id: "sensor.fridge_power", Kind: domain.EntityKindPower, Unit: "W", Area: "kitchen", ConfigEntry: "fridge_entry"},
		domain.Entity{Id: "sensor.fridge_energy", Kind: domain.EntityKindEnergy, Unit: "kWh", Area: "kitchen", ConfigEntry: "fridge_entry"},
	)
}

func lookupOf(defs ...domain.GroupDefinition) GroupLookup {
	m := map[string]domain.GroupDefinition{}
	for _, d := range defs {
		m[d.Id] = d
	}
	return func(id string) (domain.GroupDefinition, bool) {
		d, ok := m[id]
		return d, ok
	}
}

func group(id string, power []string, energy []string, subs ...string) domain.GroupDefinition {
	def := domain.NewGroupDefinition(id, id)
	def.PowerMembers = power
	def.EnergyMembers = energy
	def.SubGroups = subs
	return def
}

func TestResolveNestedGroups(t *testing.T) {

	assert := assert.New(t)

	a := group("a", []string{"sensor.p1", "sensor.p2"}, []string{"sensor.e1"})
	b := group("b", []string{"sensor.p3", "sensor.p1"}, nil, "a")
	r := NewGroupResolver(nil, nil)

	members, warnings := r.Resolve(b, lookupOf(a, b))
	assert.Empty(warnings)
	assert.Equal([]string{"sensor.p3", "sensor.p1", "sensor.p2"}, members.Power, "deduplicated, own members first")
	assert.Equal([]string{"sensor.e1"}, members.Energy)
}

func TestResolveDomainAreaAndConfigEntries(t *testing.T) {

	assert := assert.New(t)

	reg := testRegistry()
	r := NewGroupResolver(reg, reg)

	lights := domain.NewGroupDefinition("lights", "All lights")
	lights.Kind = domain.DomainGroup{Domain: "light"}
	members, warnings := r.Resolve(lights, lookupOf(lights))
	assert.Empty(warnings)
	assert.Equal([]string{"light.hall_power", "light.kitchen_power"}, members.Power)
	assert.Equal([]string{"light.kitchen_energy"}, members.Energy)

	kitchen := domain.NewGroupDefinition("kitchen", "Kitchen")
	kitchen.Kind = domain.AreaGroup{Area: "kitchen"}
	members, _ = r.Resolve(kitchen, lookupOf(kitchen))
	assert.Equal([]string{"light.kitchen_power", "sensor.fridge_power"}, members.Power)
	assert.Equal([]string{"light.kitchen_energy", "sensor.fridge_energy"}, members.Energy)

	fridge := domain.NewGroupDefinition("fridge", "Fridge")
	fridge.ConfigEntries = []string{"fridge_entry"}
	members, _ = r.Resolve(fridge, lookupOf(fridge))
	assert.Equal([]string{"sensor.fridge_power"}, members.Power)
	assert.Equal([]string{"sensor.fridge_energy"}, members.Energy)
}

func TestResolveSubtractBaseFirst(t *testing.T) {

	assert := assert.New(t)

	def := domain.NewGroupDefinition("rest", "Rest of house")
	def.Kind = domain.SubtractGroup{Base: "sensor.mains", Subtrahends: []string{"sensor.heatpump", "sensor.ev"}}
	members, warnings := NewGroupResolver(nil, nil).Resolve(def, lookupOf(def))
	assert.Empty(warnings)
	assert.Equal([]string{"sensor.mains", "sensor.heatpump", "sensor.ev"}, members.Power)
	assert.Empty(members.Energy)
}

func TestResolveSkipsUnknownSubgroup(t *testing.T) {

	assert := assert.New(t)

	a := group("a", []string{"sensor.p1"}, nil, "missing")
	members, warnings := NewGroupResolver(nil, nil).Resolve(a, lookupOf(a))
	assert.Equal([]string{"sensor.p1"}, members.Power)
	assert.Len(warnings, 1)
	assert.True(errors.Is(warnings[0], domain.ErrUnknownGroup))
}

func TestResolveStopsOnCycle(t *testing.T) {

	assert := assert.New(t)

	a := group("a", []string{"sensor.p1"}, nil, "b")
	b := group("b", []string{"sensor.p2"}, nil, "a")
	members, warnings := NewGroupResolver(nil, nil).Resolve(a, lookupOf(a, b))
	assert.Equal([]string{"sensor.p1", "sensor.p2"}, members.Power, "terminates with the members seen so far")
	assert.Len(warnings, 1)
	assert.True(errors.Is(warnings[0], domain.ErrCyclicGroup))
}

func TestFindCycle(t *testing.T) {

	require := require.New(t)

	a := group("a", nil, nil, "b")
	b := group("b", nil, nil, "c")
	c := group("c", nil, nil, "a")
	require.Equal([]string{"a", "b", "c", "a"}, findCycle("a", lookupOf(a, b, c)))

	c.SubGroups = nil
	require.Nil(findCycle("a", lookupOf(a, b, c)))
}
