package actor

import (
	"time"

	"github.com/berfenger/powergroup2mqtt/internal/adapter/store"
	"github.com/berfenger/powergroup2mqtt/internal/core/domain"
	"github.com/berfenger/powergroup2mqtt/internal/core/events"
	"github.com/berfenger/powergroup2mqtt/internal/core/service"

	"github.com/asynkron/protoactor-go/eventstream"
	"go.uber.org/zap"
)

// newTestEngineActor builds an engine actor over an in-memory baseline store.
func newTestEngineActor(es *eventstream.EventStream, interval time.Duration, groups ...domain.GroupDefinition) func(*eventstream.EventStream) *EngineActor {
	logger := zap.NewNop()
	normalizer, _ := service.NewUnitNormalizer(service.UnitPrefixKilo)
	sink := events.NewEventStreamSink(es)
	engine := service.NewEngine(service.EngineOptions{
		Registry: service.NewEntityRegistry(
			domain.Entity{Id: "sensor.heatpump_power", Kind: domain.EntityKindPower, Unit: "W"}.Normalized(),
		),
		Store:                 store.NewPreviousStateStore(nil, logger),
		Sink:                  sink,
		Normalizer:            normalizer,
		DefaultUpdateInterval: interval,
		Logger:                logger,
	})
	groupStore := &memoryGroupStore{groups: groups}
	return func(*eventstream.EventStream) *EngineActor {
		return NewEngineActor(engine, groupStore, sink, logger)
	}
}

type memoryGroupStore struct {
	groups []domain.GroupDefinition
	saves  int
}

func (s *memoryGroupStore) Load() ([]domain.GroupDefinition, error) {
	return s.groups, nil
}

func (s *memoryGroupStore) Save(groups []domain.GroupDefinition) error {
	s.groups = groups
	s.saves++
	return nil
}

func testGroup(id string, power []string, energy []string) domain.GroupDefinition {
	def := domain.NewGroupDefinition(id, id)
	def.PowerMembers = power
	def.EnergyMembers = energy
	return def
}

func testReading(entityId, state, unit string) domain.Reading {
	return domain.Reading{
		EntityId:  entityId,
		State:     state,
		Unit:      unit,
		Timestamp: time.Now(),
	}
}
