package service

import (
	"fmt"
	"slices"
	"strings"

	"github.com/berfenger/powergroup2mqtt/internal/core/domain"
	"github.com/berfenger/powergroup2mqtt/internal/core/port"
)

type GroupLookup func(groupId string) (domain.GroupDefinition, bool)

// GroupResolver flattens a group definition into its leaf power and energy members.
type GroupResolver struct {
	entities port.EntityDirectory
	areas    port.AreaIndex
}

func NewGroupResolver(entities port.EntityDirectory, areas port.AreaIndex) *GroupResolver {
	return &GroupResolver{
		entities: entities,
		areas:    areas,
	}
}

// Resolve walks the subgroup graph depth first. Unknown subgroups and cycles
// are skipped and returned as warnings, the rest of the group still resolves.
func (r *GroupResolver) Resolve(def domain.GroupDefinition, lookup GroupLookup) (domain.ResolvedMembers, []error) {
	power := newMemberSet()
	energy := newMemberSet()
	var warnings []error
	r.collect(def, lookup, nil, power, energy, &warnings)
	return domain.ResolvedMembers{
		Power:  power.ids,
		Energy: energy.ids,
	}, warnings
}

func (r *GroupResolver) collect(def domain.GroupDefinition, lookup GroupLookup, path []string,
	power, energy *memberSet, warnings *[]error) {

	if slices.Contains(path, def.Id) {
		*warnings = append(*warnings, fmt.Errorf("%w: %s", domain.ErrCyclicGroup, strings.Join(append(path, def.Id), " -> ")))
		return
	}
	path = append(path, def.Id)

	switch k := def.Kind.(type) {
	case nil, domain.CustomGroup:
	case domain.DomainGroup:
		if r.entities != nil {
			addEntities(r.entities.EntitiesInDomain(k.Domain), power, energy)
		}
	case domain.AreaGroup:
		if r.areas != nil {
			addEntities(r.areas.EntitiesInArea(k.Area), power, energy)
		}
	case domain.SubtractGroup:
		// base first
		power.add(k.Base)
		power.add(k.Subtrahends...)
	default:
		*warnings = append(*warnings, fmt.Errorf("%w: %s: unsupported kind %T", domain.ErrInvalidGroup, def.Id, k))
	}

	power.add(def.PowerMembers...)
	energy.add(def.EnergyMembers...)

	if r.entities != nil {
		for _, entry := range def.ConfigEntries {
			addEntities(r.entities.EntitiesForConfigEntry(entry), power, energy)
		}
	}

	for _, subId := range def.SubGroups {
		sub, ok := lookup(subId)
		if !ok {
			*warnings = append(*warnings, fmt.Errorf("%w: %s references %s", domain.ErrUnknownGroup, def.Id, subId))
			continue
		}
		if sub.IsSubtract() {
			*warnings = append(*warnings, fmt.Errorf("%w: %s: subtract group %s cannot be nested", domain.ErrInvalidGroup, def.Id, subId))
			continue
		}
		r.collect(sub, lookup, path, power, energy, warnings)
	}
}

func addEntities(entities []domain.Entity, power, energy *memberSet) {
	for _, e := range entities {
		switch e.Kind {
		case domain.EntityKindPower:
			power.add(e.Id)
		case domain.EntityKindEnergy:
			energy.add(e.Id)
		}
	}
}

// findCycle returns the subgroup path leading from start back to start, if any.
func findCycle(start string, lookup GroupLookup) []string {
	var path []string
	visited := map[string]bool{}
	var visit func(id string) bool
	visit = func(id string) bool {
		def, ok := lookup(id)
		if !ok {
			return false
		}
		path = append(path, id)
		for _, sub := range def.SubGroups {
			if sub == start {
				path = append(path, sub)
				return true
			}
			if visited[sub] {
				continue
			}
			visited[sub] = true
			if visit(sub) {
				return true
			}
		}
		path = path[:len(path)-1]
		return false
	}
	if visit(start) {
		return path
	}
	return nil
}

// memberSet keeps insertion order and drops duplicates.
type memberSet struct {
	ids  []string
	seen map[string]struct{}
}

func newMemberSet() *memberSet {
	return &memberSet{seen: make(map[string]struct{})}
}

func (s *memberSet) add(ids ...string) {
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := s.seen[id]; ok {
			continue
		}
		s.seen[id] = struct{}{}
		s.ids = append(s.ids, id)
	}
}
