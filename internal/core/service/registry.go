package service

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/berfenger/powergroup2mqtt/internal/core/domain"
)

// EntityRegistry is the in-memory entity directory and area index.
type EntityRegistry struct {
	mu       sync.RWMutex
	entities map[string]domain.Entity
}

func NewEntityRegistry(entities ...domain.Entity) *EntityRegistry {
	r := &EntityRegistry{entities: make(map[string]domain.Entity)}
	for _, e := range entities {
		e = e.Normalized()
		r.entities[e.Id] = e
	}
	return r
}

// Put adds or replaces an entity and reports whether anything changed.
func (r *EntityRegistry) Put(e domain.Entity) (bool, error) {
	if err := e.Validate(); err != nil {
		return false, err
	}
	if err := checkEntityUnit(e); err != nil {
		return false, err
	}
	e = e.Normalized()
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.entities[e.Id]
	r.entities[e.Id] = e
	return !ok || prev != e, nil
}

func (r *EntityRegistry) Remove(entityId string) (domain.Entity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entities[entityId]
	delete(r.entities, entityId)
	return e, ok
}

func (r *EntityRegistry) Entity(entityId string) (domain.Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entities[entityId]
	return e, ok
}

func (r *EntityRegistry) List() []domain.Entity {
	return r.filter(func(domain.Entity) bool { return true })
}

func (r *EntityRegistry) EntitiesInDomain(domainName string) []domain.Entity {
	return r.filter(func(e domain.Entity) bool { return e.Domain == domainName })
}

func (r *EntityRegistry) EntitiesInArea(area string) []domain.Entity {
	return r.filter(func(e domain.Entity) bool { return e.Area == area })
}

func (r *EntityRegistry) EntitiesForConfigEntry(entry string) []domain.Entity {
	return r.filter(func(e domain.Entity) bool { return e.ConfigEntry == entry })
}

// filter returns matches ordered by entity id so resolution is deterministic.
func (r *EntityRegistry) filter(pred func(domain.Entity) bool) []domain.Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Entity
	for _, id := range slices.Sorted(maps.Keys(r.entities)) {
		if e := r.entities[id]; pred(e) {
			out = append(out, e)
		}
	}
	return out
}

// checkEntityUnit rejects a declared unit that does not fit the entity kind.
// An empty unit is taken from each reading instead.
func checkEntityUnit(e domain.Entity) error {
	if e.Unit == "" {
		return nil
	}
	if e.Kind == domain.EntityKindPower && !IsPowerUnit(e.Unit) ||
		e.Kind == domain.EntityKindEnergy && !IsEnergyUnit(e.Unit) {
		return fmt.Errorf("%w: %s: %q is not a %s unit", domain.ErrUnknownUnit, e.Id, e.Unit, e.Kind)
	}
	return nil
}
