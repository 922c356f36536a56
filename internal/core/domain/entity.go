package domain

import (
	"fmt"
	"strings"
)

type EntityKind string

const (
	EntityKindPower  EntityKind = "power"
	EntityKindEnergy EntityKind = "energy"
)

// Entity is a source sensor known to the registry. Domain, area and config
// entry drive membership of domain, area and config-entry based groups.
type Entity struct {
	Id          string     `json:"entity_id"`
	Kind        EntityKind `json:"kind"`
	Unit        string     `json:"unit,omitempty"`
	Domain      string     `json:"domain,omitempty"`
	Area        string     `json:"area,omitempty"`
	ConfigEntry string     `json:"config_entry,omitempty"`
}

// DomainOf returns the part of an entity id before the first dot.
func DomainOf(entityId string) string {
	if i := strings.IndexByte(entityId, '.'); i > 0 {
		return entityId[:i]
	}
	return ""
}

// Normalized fills Domain from the entity id when it is not set explicitly.
func (e Entity) Normalized() Entity {
	if e.Domain == "" {
		e.Domain = DomainOf(e.Id)
	}
	return e
}

func (e Entity) Validate() error {
	if e.Id == "" {
		return fmt.Errorf("%w: empty entity id", ErrInvalidEntity)
	}
	switch e.Kind {
	case EntityKindPower, EntityKindEnergy:
	default:
		return fmt.Errorf("%w: %s: kind must be power or energy, got %q", ErrInvalidEntity, e.Id, e.Kind)
	}
	return nil
}
