package store

import (
	"maps"
	"sync"

	"github.com/berfenger/powergroup2mqtt/internal/core/domain"
	"github.com/berfenger/powergroup2mqtt/internal/core/port"
	"go.uber.org/zap"
)

// Snapshot is everything a backend persists.
type Snapshot struct {
	Baselines map[string]map[string]domain.MemberBaseline
	Totals    map[string]domain.EnergyTotal
}

func NewSnapshot() Snapshot {
	return Snapshot{
		Baselines: make(map[string]map[string]domain.MemberBaseline),
		Totals:    make(map[string]domain.EnergyTotal),
	}
}

// Backend loads and saves whole snapshots.
type Backend interface {
	Load() (Snapshot, error)
	Save(snapshot Snapshot) error
	Close() error
}

// PreviousStateStore serves baselines from memory and writes them to a backend
// on Dump. A nil backend keeps everything in memory.
type PreviousStateStore struct {
	mu        sync.Mutex
	dumpMu    sync.Mutex
	backend   Backend
	baselines map[string]map[string]domain.MemberBaseline
	totals    map[string]domain.EnergyTotal
	dirty     bool
	logger    *zap.Logger
}

var _ port.BaselineStore = (*PreviousStateStore)(nil)

func NewPreviousStateStore(backend Backend, logger *zap.Logger) *PreviousStateStore {
	return &PreviousStateStore{
		backend:   backend,
		baselines: make(map[string]map[string]domain.MemberBaseline),
		totals:    make(map[string]domain.EnergyTotal),
		logger:    logger.With(zap.String("component", "store")),
	}
}

// Load replaces the in-memory state with the backend contents. On error the
// store stays empty and usable.
func (s *PreviousStateStore) Load() error {
	if s.backend == nil {
		return nil
	}
	snap, err := s.backend.Load()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap.Baselines != nil {
		s.baselines = snap.Baselines
	}
	if snap.Totals != nil {
		s.totals = snap.Totals
	}
	s.dirty = false
	s.logger.Info("baselines loaded", zap.Int("groups", len(s.baselines)), zap.Int("totals", len(s.totals)))
	return nil
}

func (s *PreviousStateStore) Baseline(groupId, memberId string) (domain.MemberBaseline, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.baselines[groupId][memberId]
	return b, ok
}

func (s *PreviousStateStore) SetBaseline(groupId, memberId string, baseline domain.MemberBaseline) {
	s.mu.Lock()
	defer s.mu.Unlock()
	group, ok := s.baselines[groupId]
	if !ok {
		group = make(map[string]domain.MemberBaseline)
		s.baselines[groupId] = group
	}
	group[memberId] = baseline
	s.dirty = true
}

func (s *PreviousStateStore) DeleteBaseline(groupId, memberId string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	group, ok := s.baselines[groupId]
	if !ok {
		return false
	}
	if _, ok := group[memberId]; !ok {
		return false
	}
	delete(group, memberId)
	if len(group) == 0 {
		delete(s.baselines, groupId)
	}
	s.dirty = true
	return true
}

func (s *PreviousStateStore) Total(groupId string) (domain.EnergyTotal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.totals[groupId]
	return t, ok
}

func (s *PreviousStateStore) SetTotal(groupId string, total domain.EnergyTotal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totals[groupId] = total
	s.dirty = true
}

func (s *PreviousStateStore) DeleteGroup(groupId string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.baselines, groupId)
	delete(s.totals, groupId)
	s.dirty = true
}

// Dump writes the state to the backend if anything changed since the last dump.
// It reports whether a write happened.
func (s *PreviousStateStore) Dump() (bool, error) {
	if s.backend == nil {
		return false, nil
	}
	s.dumpMu.Lock()
	defer s.dumpMu.Unlock()

	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return false, nil
	}
	snap := s.snapshotLocked()
	s.dirty = false
	s.mu.Unlock()

	if err := s.backend.Save(snap); err != nil {
		s.mu.Lock()
		s.dirty = true
		s.mu.Unlock()
		return false, err
	}
	return true, nil
}

func (s *PreviousStateStore) Close() error {
	if s.backend == nil {
		return nil
	}
	return s.backend.Close()
}

func (s *PreviousStateStore) snapshotLocked() Snapshot {
	snap := NewSnapshot()
	for group, members := range s.baselines {
		snap.Baselines[group] = maps.Clone(members)
	}
	maps.Copy(snap.Totals, s.totals)
	return snap
}
