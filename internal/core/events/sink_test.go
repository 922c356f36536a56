package events

import (
	"sync"
	"testing"

	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/berfenger/powergroup2mqtt/internal/core/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

type collector struct {
	mu     sync.Mutex
	events []any
}

func (c *collector) subscribe(es *eventstream.EventStream) {
	es.Subscribe(func(evt any) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.events = append(c.events, evt)
	})
}

func (c *collector) take() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.events
	c.events = nil
	return out
}

func snapshot(power string, available bool) domain.GroupSnapshot {
	return domain.GroupSnapshot{
		Id:              "kitchen",
		Power:           decimal.RequireFromString(power),
		PowerAvailable:  available,
		PowerPrecision:  2,
		HasEnergy:       true,
		Energy:          decimal.RequireFromString("1.5"),
		EnergyPrecision: 4,
		Members: domain.ResolvedMembers{
			Power:  []string{"sensor.fridge_power"},
			Energy: []string{"sensor.fridge_energy"},
		},
	}
}

func TestGroupStateToUpdateEvents(t *testing.T) {

	assert := assert.New(t)

	evs := GroupStateToUpdateEvents(snapshot("120", true))
	assert.Len(evs, 6)
	power, ok := evs[0].(domain.DecimalSensorUpdateEvent)
	assert.True(ok)
	assert.Equal("kitchen_power", power.Id)
	assert.Equal(int32(2), power.Decimals)

	unavailable := GroupStateToUpdateEvents(snapshot("0", false))
	assert.Len(unavailable, 5, "no power value while unavailable")
	av, ok := unavailable[0].(domain.SensorAvailabilityUpdateEvent)
	assert.True(ok)
	assert.False(av.Available)

	noEnergy := snapshot("1", true)
	noEnergy.HasEnergy = false
	assert.Len(GroupStateToUpdateEvents(noEnergy), 3)
}

func TestSinkSuppressesRepeatedMetadata(t *testing.T) {

	assert := assert.New(t)

	es := &eventstream.EventStream{}
	c := &collector{}
	c.subscribe(es)
	sink := NewEventStreamSink(es)

	sink.PublishGroupState(snapshot("120", true))
	assert.Len(c.take(), 6)

	sink.PublishGroupState(snapshot("130", true))
	assert.Len(c.take(), 2, "only the two values")

	sink.PublishGroupState(snapshot("130", false))
	evs := c.take()
	assert.Len(evs, 2, "energy value and power availability")

	sink.Forget()
	sink.PublishGroupState(snapshot("130", true))
	assert.Len(c.take(), 6)
}

func TestSinkGroupsChangedAndVisibility(t *testing.T) {

	assert := assert.New(t)

	es := &eventstream.EventStream{}
	c := &collector{}
	c.subscribe(es)
	sink := NewEventStreamSink(es)

	def := domain.NewGroupDefinition("kitchen", "Kitchen")
	sink.PublishGroupsChanged(nil, []domain.GroupDefinition{def})
	sink.PublishVisibility("sensor.fridge_power", true)

	evs := c.take()
	assert.Len(evs, 2)
	changed, ok := evs[0].(domain.GroupsChangedEvent)
	assert.True(ok)
	assert.Equal("kitchen", changed.Removed[0].Id)
	vis, ok := evs[1].(domain.EntityVisibilityUpdateEvent)
	assert.True(ok)
	assert.Equal("sensor.fridge_power", vis.Id)
	assert.True(vis.Hidden)
}

func TestGroupSensorsAndButtons(t *testing.T) {

	assert := assert.New(t)

	bridge := BridgeDevice("powergroup")
	def := domain.NewGroupDefinition("kitchen", "Kitchen")

	sensors := GroupSensors(bridge, def, "W", "kWh")
	assert.Len(sensors, 2)
	assert.Equal("kitchen_power", sensors[0].Id)
	assert.Equal(STATE_CLASS_TOTAL_INCREASING, sensors[1].StateClass)
	assert.Equal("kWh", sensors[1].UnitOfMeasurement)
	assert.Equal(bridge.Id, sensors[0].Device.ViaDevice)
	assert.Len(GroupButtons(bridge, def), 1)

	sub := domain.NewGroupDefinition("rest", "")
	sub.Kind = domain.SubtractGroup{Base: "sensor.mains"}
	assert.Len(GroupSensors(bridge, sub, "W", "kWh"), 1, "subtract groups are power only")
	assert.Empty(GroupButtons(bridge, sub))

	groupId, ok := GroupIdFromResetButton("kitchen_reset")
	assert.True(ok)
	assert.Equal("kitchen", groupId)
	_, ok = GroupIdFromResetButton("_reset")
	assert.False(ok)
}
