package service

import (
	"errors"
	"testing"

	"github.com/berfenger/powergroup2mqtt/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testIndex(reg *EntityRegistry) *GroupIndex {
	return NewGroupIndex(NewGroupResolver(reg, reg), zap.NewNop())
}

func TestIndexLoadDropsCycles(t *testing.T) {

	assert := assert.New(t)

	ix := testIndex(nil)
	errs := ix.Load([]domain.GroupDefinition{
		group("a", []string{"sensor.p1"}, nil, "b"),
		group("b", []string{"sensor.p2"}, nil, "a"),
		group("c", []string{"sensor.p3"}, nil),
	})
	assert.Len(errs, 1)
	assert.True(errors.Is(errs[0], domain.ErrCyclicGroup))

	_, okA := ix.Get("a")
	_, okB := ix.Get("b")
	_, okC := ix.Get("c")
	assert.False(okA, "first group of the cycle is dropped")
	assert.True(okB)
	assert.True(okC)
}

func TestIndexPutRejectsCycle(t *testing.T) {

	require := require.New(t)

	ix := testIndex(nil)
	require.Empty(ix.Load([]domain.GroupDefinition{
		group("a", []string{"sensor.p1"}, nil),
		group("b", []string{"sensor.p2"}, nil, "a"),
	}))

	_, err := ix.Put(group("a", []string{"sensor.p1"}, nil, "b"))
	require.ErrorIs(err, domain.ErrCyclicGroup)

	_, err = ix.Put(group("a", nil, nil, "a"))
	require.ErrorIs(err, domain.ErrCyclicGroup)

	_, err = ix.Put(group("d", nil, nil, "nope"))
	require.ErrorIs(err, domain.ErrUnknownGroup)

	def, ok := ix.Get("a")
	require.True(ok)
	require.Empty(def.SubGroups, "rejected edit leaves the group untouched")
}

func TestIndexPropagatesToAncestors(t *testing.T) {

	assert := assert.New(t)

	ix := testIndex(nil)
	assert.Empty(ix.Load([]domain.GroupDefinition{
		group("a", []string{"sensor.p1"}, nil),
		group("b", []string{"sensor.p2"}, nil, "a"),
		group("c", nil, nil, "b"),
	}))
	assert.Equal([]string{"b", "c"}, ix.Ancestors("a"))

	changed, err := ix.Put(group("a", []string{"sensor.p1", "sensor.p9"}, nil))
	assert.NoError(err)
	assert.ElementsMatch([]string{"a", "b", "c"}, changed)

	members, _ := ix.Resolved("c")
	assert.Equal([]string{"sensor.p2", "sensor.p1", "sensor.p9"}, members.Power)
	assert.Equal([]string{"a", "b", "c"}, ix.GroupsContaining("sensor.p9"))

	_, changed, err = ix.Remove("a")
	assert.NoError(err)
	assert.ElementsMatch([]string{"b", "c"}, changed)
	assert.Empty(ix.GroupsContaining("sensor.p9"))
	assert.Equal([]string{"b", "c"}, ix.GroupsContaining("sensor.p2"))

	_, _, err = ix.Remove("a")
	assert.ErrorIs(err, domain.ErrUnknownGroup)
}

func TestIndexRefreshAfterRegistryChange(t *testing.T) {

	assert := assert.New(t)

	reg := testRegistry()
	ix := testIndex(reg)
	lights := domain.NewGroupDefinition("lights", "Lights")
	lights.Kind = domain.DomainGroup{Domain: "light"}
	parent := group("house", nil, nil, "lights")
	assert.Empty(ix.Load([]domain.GroupDefinition{lights, parent}))

	assert.Empty(ix.Refresh(), "nothing changed")

	_, err := reg.Put(domain.Entity{Id: "light.porch_power", Kind: domain.EntityKindPower, Unit: "W"})
	assert.NoError(err)
	assert.Equal([]string{"house", "lights"}, ix.Refresh())
	assert.Equal([]string{"house", "lights"}, ix.GroupsContaining("light.porch_power"))
}

func TestIndexRejectsNestedSubtract(t *testing.T) {

	assert := assert.New(t)

	ix := testIndex(nil)
	sub := domain.NewGroupDefinition("rest", "Rest")
	sub.Kind = domain.SubtractGroup{Base: "sensor.mains"}
	assert.Empty(ix.Load([]domain.GroupDefinition{sub}))

	_, err := ix.Put(group("house", nil, nil, "rest"))
	assert.ErrorIs(err, domain.ErrInvalidGroup)
}
