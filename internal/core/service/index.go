package service

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/berfenger/powergroup2mqtt/internal/core/domain"
	"go.uber.org/zap"
)

// GroupIndex owns every group definition, its resolved members and the
// reverse entity -> groups mapping. All mutation goes through it.
type GroupIndex struct {
	mu         sync.RWMutex
	resolver   *GroupResolver
	groups     map[string]domain.GroupDefinition
	resolved   map[string]domain.ResolvedMembers
	containing map[string][]string
	parents    map[string][]string
	logger     *zap.Logger
}

func NewGroupIndex(resolver *GroupResolver, logger *zap.Logger) *GroupIndex {
	return &GroupIndex{
		resolver:   resolver,
		groups:     make(map[string]domain.GroupDefinition),
		resolved:   make(map[string]domain.ResolvedMembers),
		containing: make(map[string][]string),
		parents:    make(map[string][]string),
		logger:     logger,
	}
}

// Load replaces the whole index. Invalid and cyclic definitions are dropped and
// reported, the remaining groups are loaded.
func (ix *GroupIndex) Load(defs []domain.GroupDefinition) []error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	var errs []error
	groups := make(map[string]domain.GroupDefinition, len(defs))
	for _, def := range defs {
		if err := def.CheckShape(); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := groups[def.Id]; dup {
			errs = append(errs, fmt.Errorf("%w: duplicate group id %s", domain.ErrInvalidGroup, def.Id))
			continue
		}
		groups[def.Id] = def
	}
	lookup := func(id string) (domain.GroupDefinition, bool) {
		def, ok := groups[id]
		return def, ok
	}
	for _, id := range slices.Sorted(maps.Keys(groups)) {
		if cycle := findCycle(id, lookup); cycle != nil {
			errs = append(errs, fmt.Errorf("%w: %s", domain.ErrCyclicGroup, strings.Join(cycle, " -> ")))
			delete(groups, id)
		}
	}

	ix.groups = groups
	ix.resolved = make(map[string]domain.ResolvedMembers, len(groups))
	for id := range groups {
		ix.resolveLocked(id)
	}
	ix.reindexLocked()
	return errs
}

// Put creates or replaces a definition. It returns the ids of the group and of
// every ancestor whose resolved members changed.
func (ix *GroupIndex) Put(def domain.GroupDefinition) ([]string, error) {
	if err := def.CheckShape(); err != nil {
		return nil, err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	for _, sub := range def.SubGroups {
		subDef, ok := ix.groups[sub]
		if !ok {
			return nil, fmt.Errorf("%w: %s references %s", domain.ErrUnknownGroup, def.Id, sub)
		}
		if subDef.IsSubtract() {
			return nil, fmt.Errorf("%w: subtract group %s cannot be nested", domain.ErrInvalidGroup, sub)
		}
	}
	if def.IsSubtract() && len(ix.parents[def.Id]) > 0 {
		return nil, fmt.Errorf("%w: %s is nested in %s and cannot become a subtract group",
			domain.ErrInvalidGroup, def.Id, strings.Join(ix.parents[def.Id], ", "))
	}
	lookup := func(id string) (domain.GroupDefinition, bool) {
		if id == def.Id {
			return def, true
		}
		d, ok := ix.groups[id]
		return d, ok
	}
	if cycle := findCycle(def.Id, lookup); cycle != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrCyclicGroup, strings.Join(cycle, " -> "))
	}

	ix.groups[def.Id] = def
	ix.reindexLocked()

	changed := []string{def.Id}
	ix.resolveLocked(def.Id)
	for _, anc := range ix.ancestorsLocked(def.Id) {
		if ix.resolveLocked(anc) {
			changed = append(changed, anc)
		}
	}
	ix.reindexLocked()
	return changed, nil
}

// Remove deletes a group. Parents keep their dangling reference and are re-resolved.
func (ix *GroupIndex) Remove(groupId string) (domain.GroupDefinition, []string, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	def, ok := ix.groups[groupId]
	if !ok {
		return domain.GroupDefinition{}, nil, fmt.Errorf("%w: %s", domain.ErrUnknownGroup, groupId)
	}
	ancestors := ix.ancestorsLocked(groupId)
	delete(ix.groups, groupId)
	delete(ix.resolved, groupId)

	var changed []string
	for _, anc := range ancestors {
		if ix.resolveLocked(anc) {
			changed = append(changed, anc)
		}
	}
	ix.reindexLocked()
	return def, changed, nil
}

// Refresh re-resolves every group, used after the entity registry changed.
func (ix *GroupIndex) Refresh() []string {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	var changed []string
	for _, id := range slices.Sorted(maps.Keys(ix.groups)) {
		if ix.resolveLocked(id) {
			changed = append(changed, id)
		}
	}
	ix.reindexLocked()
	return changed
}

func (ix *GroupIndex) Get(groupId string) (domain.GroupDefinition, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	def, ok := ix.groups[groupId]
	return def, ok
}

func (ix *GroupIndex) List() []domain.GroupDefinition {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]domain.GroupDefinition, 0, len(ix.groups))
	for _, id := range slices.Sorted(maps.Keys(ix.groups)) {
		out = append(out, ix.groups[id])
	}
	return out
}

func (ix *GroupIndex) Resolved(groupId string) (domain.ResolvedMembers, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	m, ok := ix.resolved[groupId]
	return m, ok
}

// GroupsContaining returns the groups with entityId among their resolved members.
func (ix *GroupIndex) GroupsContaining(entityId string) []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return slices.Clone(ix.containing[entityId])
}

// Ancestors returns every group that nests groupId, directly or transitively.
func (ix *GroupIndex) Ancestors(groupId string) []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.ancestorsLocked(groupId)
}

func (ix *GroupIndex) Close() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	clear(ix.groups)
	clear(ix.resolved)
	clear(ix.containing)
	clear(ix.parents)
}

func (ix *GroupIndex) ancestorsLocked(groupId string) []string {
	var out []string
	seen := map[string]bool{groupId: true}
	queue := []string{groupId}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, p := range ix.parents[id] {
			if seen[p] {
				continue
			}
			seen[p] = true
			out = append(out, p)
			queue = append(queue, p)
		}
	}
	return out
}

// resolveLocked recomputes one group and reports whether its members changed.
func (ix *GroupIndex) resolveLocked(groupId string) bool {
	def, ok := ix.groups[groupId]
	if !ok {
		return false
	}
	lookup := func(id string) (domain.GroupDefinition, bool) {
		d, ok := ix.groups[id]
		return d, ok
	}
	members, warnings := ix.resolver.Resolve(def, lookup)
	for _, w := range warnings {
		ix.logger.Warn("group resolution", zap.String("group", groupId), zap.Error(w))
	}
	prev, existed := ix.resolved[groupId]
	ix.resolved[groupId] = members
	return !existed || !prev.Equal(members)
}

func (ix *GroupIndex) reindexLocked() {
	parents := make(map[string][]string)
	for _, id := range slices.Sorted(maps.Keys(ix.groups)) {
		for _, sub := range ix.groups[id].SubGroups {
			parents[sub] = append(parents[sub], id)
		}
	}
	containing := make(map[string][]string)
	for _, id := range slices.Sorted(maps.Keys(ix.resolved)) {
		for _, member := range ix.resolved[id].All() {
			containing[member] = append(containing[member], id)
		}
	}
	ix.parents = parents
	ix.containing = containing
}
