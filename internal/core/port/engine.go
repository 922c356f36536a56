package port

import "github.com/berfenger/powergroup2mqtt/internal/core/domain"

// EntityDirectory answers membership queries for domain and config-entry groups.
type EntityDirectory interface {
	Entity(entityId string) (domain.Entity, bool)
	EntitiesInDomain(domainName string) []domain.Entity
	EntitiesForConfigEntry(entry string) []domain.Entity
}

// AreaIndex answers membership queries for area groups.
type AreaIndex interface {
	EntitiesInArea(area string) []domain.Entity
}

// ReadingObserver is fed every state change of a source entity.
type ReadingObserver interface {
	ObserveReading(reading domain.Reading)
}

// GroupSink receives the engine's outputs.
type GroupSink interface {
	PublishGroupState(state domain.GroupSnapshot)
	PublishGroupsChanged(upserted []domain.GroupDefinition, removed []domain.GroupDefinition)
	PublishVisibility(entityId string, hidden bool)
}
