package service

import (
	"sync"
	"time"

	"github.com/berfenger/powergroup2mqtt/internal/core/domain"
	"go.uber.org/zap"
)

type memoryStore struct {
	mu        sync.Mutex
	baselines map[string]map[string]domain.MemberBaseline
	totals    map[string]domain.EnergyTotal
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		baselines: map[string]map[string]domain.MemberBaseline{},
		totals:    map[string]domain.EnergyTotal{},
	}
}

func (s *memoryStore) Baseline(groupId, memberId string) (domain.MemberBaseline, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.baselines[groupId][memberId]
	return b, ok
}

func (s *memoryStore) SetBaseline(groupId, memberId string, baseline domain.MemberBaseline) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.baselines[groupId] == nil {
		s.baselines[groupId] = map[string]domain.MemberBaseline{}
	}
	s.baselines[groupId][memberId] = baseline
}

func (s *memoryStore) DeleteBaseline(groupId, memberId string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.baselines[groupId][memberId]
	delete(s.baselines[groupId], memberId)
	return ok
}

func (s *memoryStore) Total(groupId string) (domain.EnergyTotal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.totals[groupId]
	return t, ok
}

func (s *memoryStore) SetTotal(groupId string, total domain.EnergyTotal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totals[groupId] = total
}

func (s *memoryStore) DeleteGroup(groupId string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.baselines, groupId)
	delete(s.totals, groupId)
}

type recordingSink struct {
	states     []domain.GroupSnapshot
	upserted   []string
	removed    []string
	visibility map[string]bool
}

func newRecordingSink() *recordingSink {
	return &recordingSink{visibility: map[string]bool{}}
}

func (s *recordingSink) PublishGroupState(state domain.GroupSnapshot) {
	s.states = append(s.states, state)
}

func (s *recordingSink) PublishGroupsChanged(upserted []domain.GroupDefinition, removed []domain.GroupDefinition) {
	for _, g := range upserted {
		s.upserted = append(s.upserted, g.Id)
	}
	for _, g := range removed {
		s.removed = append(s.removed, g.Id)
	}
}

func (s *recordingSink) PublishVisibility(entityId string, hidden bool) {
	s.visibility[entityId] = hidden
}

// last returns the most recent published state of a group.
func (s *recordingSink) last(groupId string) (domain.GroupSnapshot, bool) {
	for i := len(s.states) - 1; i >= 0; i-- {
		if s.states[i].Id == groupId {
			return s.states[i], true
		}
	}
	return domain.GroupSnapshot{}, false
}

// fakeClock is advanced by hand.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func testDeps(store *memoryStore, interval time.Duration) GroupDeps {
	n, _ := NewUnitNormalizer(UnitPrefixKilo)
	return GroupDeps{
		Normalizer:      n,
		Power:           NewPowerAggregator(n, zap.NewNop()),
		Tracker:         NewEnergyDeltaTracker(store, n, zap.NewNop()),
		Store:           store,
		DefaultInterval: interval,
	}
}
