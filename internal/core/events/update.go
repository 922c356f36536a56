package events

import (
	"github.com/berfenger/powergroup2mqtt/internal/core/domain"
)

// GroupStateToUpdateEvents maps a group snapshot to sensor events: value,
// availability and attributes of the power sensor and, if present, of the
// energy sensor. An unavailable power value only emits availability.
func GroupStateToUpdateEvents(s domain.GroupSnapshot) []any {
	var events []any

	powerId := PowerSensorId(s.Id)
	if s.PowerAvailable {
		events = append(events, domain.DecimalSensorUpdateEvent{
			SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: powerId},
			Value:                  s.Power,
			Decimals:               s.PowerPrecision,
		})
	}
	events = append(events, domain.SensorAvailabilityUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: powerId},
		Available:              s.PowerAvailable,
	})
	events = append(events, domain.SensorAttributesUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: powerId},
		Attributes:             groupAttributes(s.Members.Power, s.HideMembers),
	})

	if s.HasEnergy {
		energyId := EnergySensorId(s.Id)
		events = append(events, domain.DecimalSensorUpdateEvent{
			SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: energyId},
			Value:                  s.Energy,
			Decimals:               s.EnergyPrecision,
		})
		events = append(events, domain.SensorAvailabilityUpdateEvent{
			SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: energyId},
			Available:              true,
		})
		events = append(events, domain.SensorAttributesUpdateEvent{
			SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: energyId},
			Attributes:             groupAttributes(s.Members.Energy, s.HideMembers),
		})
	}

	return events
}

func groupAttributes(entities []string, hidden bool) map[string]any {
	if entities == nil {
		entities = []string{}
	}
	return map[string]any{
		"is_group":       true,
		"entities":       entities,
		"hidden_members": hidden,
	}
}
