package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type SensorUpdateEventMixIn struct {
	Id string
}

type SensorUpdateEvent interface {
	SensorUpdateEvent() string
	SensorId() string
}

func (e SensorUpdateEventMixIn) SensorUpdateEvent() string {
	return fmt.Sprintf("%T", e)
}

func (e SensorUpdateEventMixIn) SensorId() string {
	return e.Id
}

type DecimalSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value    decimal.Decimal
	Decimals int32
}

type SensorAvailabilityUpdateEvent struct {
	SensorUpdateEventMixIn
	Available bool
}

type SensorAttributesUpdateEvent struct {
	SensorUpdateEventMixIn
	Attributes map[string]any
}

// EntityVisibilityUpdateEvent hides or shows a member entity. Id is the entity id.
type EntityVisibilityUpdateEvent struct {
	SensorUpdateEventMixIn
	Hidden bool
}

type BridgeStateUpdateEvent struct {
	SensorUpdateEventMixIn
	Value bool
}

// GroupsChangedEvent is published whenever group definitions are created, edited or deleted.
type GroupsChangedEvent struct {
	Upserted []GroupDefinition
	Removed  []GroupDefinition
}
