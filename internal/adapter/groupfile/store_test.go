package groupfile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/berfenger/powergroup2mqtt/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const sampleGroups = `
groups:
  - id: kitchen
    name: Kitchen
    power_entities: [sensor.fridge_power, sensor.oven_power]
    energy_entities: [sensor.fridge_energy]
    hide_members: true
  - id: lights
    type: domain
    domain: light
    start_energy_at_zero: false
    update_interval_seconds: 0
  - id: house
    sub_groups: [kitchen, lights]
    power_precision: 0
  - id: rest
    type: subtract
    base: sensor.mains_power
    subtract: [sensor.fridge_power]
    all_unavailable: unavailable
  - id: bad-id
    power_entities: [sensor.x]
  - id: weird
    type: pyramid
`

func TestLoadGroups(t *testing.T) {

	require := require.New(t)

	path := filepath.Join(t.TempDir(), "groups.yaml")
	require.NoError(os.WriteFile(path, []byte(sampleGroups), 0o644))

	defs, err := NewStore(path, zap.NewNop()).Load()
	require.NoError(err)
	require.Len(defs, 4, "invalid entries are skipped")

	kitchen := defs[0]
	require.Equal("Kitchen", kitchen.Name)
	require.Equal(domain.CustomGroup{}, kitchen.Kind)
	require.True(kitchen.HideMembers)
	require.True(kitchen.StartEnergyAtZero)
	require.Nil(kitchen.UpdateInterval)
	require.Equal(int32(domain.DEFAULT_ENERGY_PRECISION), kitchen.EnergyPrecision)

	lights := defs[1]
	require.Equal(domain.DomainGroup{Domain: "light"}, lights.Kind)
	require.False(lights.StartEnergyAtZero)
	require.NotNil(lights.UpdateInterval)
	require.Equal(time.Duration(0), *lights.UpdateInterval)

	require.Equal(int32(0), defs[2].PowerPrecision)
	require.Equal([]string{"kitchen", "lights"}, defs[2].SubGroups)

	rest := defs[3]
	require.Equal(domain.SubtractGroup{Base: "sensor.mains_power", Subtrahends: []string{"sensor.fridge_power"}}, rest.Kind)
	require.Equal(domain.AllUnavailableUnavailable, rest.AllUnavailable)
}

func TestLoadMissingFile(t *testing.T) {

	assert := assert.New(t)

	defs, err := NewStore(filepath.Join(t.TempDir(), "none.yaml"), zap.NewNop()).Load()
	assert.NoError(err)
	assert.Empty(defs)
}

func TestLoadMalformedFile(t *testing.T) {

	assert := assert.New(t)

	path := filepath.Join(t.TempDir(), "groups.yaml")
	assert.NoError(os.WriteFile(path, []byte("groups: [unclosed"), 0o644))
	_, err := NewStore(path, zap.NewNop()).Load()
	assert.Error(err)
}

func TestSaveAndReload(t *testing.T) {

	require := require.New(t)

	path := filepath.Join(t.TempDir(), "groups.yaml")
	store := NewStore(path, zap.NewNop())

	interval := 10 * time.Second
	area := domain.NewGroupDefinition("upstairs", "Upstairs")
	area.Kind = domain.AreaGroup{Area: "upstairs"}
	area.UpdateInterval = &interval
	area.CreateEnergySensor = false

	custom := domain.NewGroupDefinition("desk", "")
	custom.PowerMembers = []string{"sensor.pc_power"}
	custom.EnergyPrecision = 2

	require.NoError(store.Save([]domain.GroupDefinition{area, custom}))

	raw, err := os.ReadFile(path)
	require.NoError(err)
	require.NotContains(string(raw), "start_energy_at_zero", "defaults are not written")

	defs, err := store.Load()
	require.NoError(err)
	require.Len(defs, 2)
	require.Equal(area, defs[0])
	require.Equal(custom, defs[1])
}

func TestFromDefinitionKeepsKindFields(t *testing.T) {

	assert := assert.New(t)

	def := domain.NewGroupDefinition("rest", "")
	def.Kind = domain.SubtractGroup{Base: "sensor.mains", Subtrahends: []string{"sensor.a"}}
	c := FromDefinition(def)
	assert.Equal(TYPE_SUBTRACT, c.Type)
	assert.Equal("sensor.mains", c.Base)
	assert.Equal([]string{"sensor.a"}, c.Subtrahends)
}
