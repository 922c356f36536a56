package events

import (
	"maps"
	"slices"
	"sync"

	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/berfenger/powergroup2mqtt/internal/core/domain"
	"github.com/berfenger/powergroup2mqtt/internal/core/port"
)

// EventStreamSink publishes engine outputs on the actor system event stream.
// Availability and attribute events are only repeated when they change.
type EventStreamSink struct {
	mu           sync.Mutex
	eventStream  *eventstream.EventStream
	availability map[string]bool
	attributes   map[string]map[string]any
}

var _ port.GroupSink = (*EventStreamSink)(nil)

func NewEventStreamSink(eventStream *eventstream.EventStream) *EventStreamSink {
	return &EventStreamSink{
		eventStream:  eventStream,
		availability: make(map[string]bool),
		attributes:   make(map[string]map[string]any),
	}
}

func (s *EventStreamSink) PublishGroupState(state domain.GroupSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ev := range GroupStateToUpdateEvents(state) {
		switch e := ev.(type) {
		case domain.SensorAvailabilityUpdateEvent:
			if prev, ok := s.availability[e.Id]; ok && prev == e.Available {
				continue
			}
			s.availability[e.Id] = e.Available
		case domain.SensorAttributesUpdateEvent:
			if prev, ok := s.attributes[e.Id]; ok && attributesEqual(prev, e.Attributes) {
				continue
			}
			s.attributes[e.Id] = e.Attributes
		}
		s.eventStream.Publish(ev)
	}
}

func (s *EventStreamSink) PublishGroupsChanged(upserted []domain.GroupDefinition, removed []domain.GroupDefinition) {
	s.mu.Lock()
	for _, def := range removed {
		for _, id := range []string{PowerSensorId(def.Id), EnergySensorId(def.Id)} {
			delete(s.availability, id)
			delete(s.attributes, id)
		}
	}
	s.mu.Unlock()

	s.eventStream.Publish(domain.GroupsChangedEvent{
		Upserted: upserted,
		Removed:  removed,
	})
}

func (s *EventStreamSink) PublishVisibility(entityId string, hidden bool) {
	s.eventStream.Publish(domain.EntityVisibilityUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: entityId},
		Hidden:                 hidden,
	})
}

// Forget drops the change cache so the next state of every group is published
// in full, used after the MQTT connection comes back.
func (s *EventStreamSink) Forget() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.availability = make(map[string]bool)
	s.attributes = make(map[string]map[string]any)
}

func attributesEqual(a, b map[string]any) bool {
	return maps.EqualFunc(a, b, func(x, y any) bool {
		xs, xok := x.([]string)
		ys, yok := y.([]string)
		if xok || yok {
			return xok && yok && slices.Equal(xs, ys)
		}
		return x == y
	})
}
