package store

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/berfenger/powergroup2mqtt/internal/core/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingBackend struct {
	mu    sync.Mutex
	saves int
	fail  bool
	last  Snapshot
}

func (b *countingBackend) Load() (Snapshot, error) { return NewSnapshot(), nil }
func (b *countingBackend) Close() error            { return nil }
func (b *countingBackend) Save(s Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail {
		return errors.New("disk full")
	}
	b.saves++
	b.last = s
	return nil
}

func (b *countingBackend) Saves() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saves
}

func baseline(v string) domain.MemberBaseline {
	return domain.MemberBaseline{
		Value:     decimal.RequireFromString(v),
		Unit:      "kWh",
		Timestamp: time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC),
	}
}

func TestStoreDumpsOnlyWhenDirty(t *testing.T) {

	assert := assert.New(t)

	backend := &countingBackend{}
	s := NewPreviousStateStore(backend, zap.NewNop())

	wrote, err := s.Dump()
	assert.NoError(err)
	assert.False(wrote)

	s.SetBaseline("g", "sensor.a", baseline("1.5"))
	wrote, err = s.Dump()
	assert.NoError(err)
	assert.True(wrote)
	assert.Equal(1, backend.Saves())
	assert.Equal("1.5", backend.last.Baselines["g"]["sensor.a"].Value.String())

	wrote, _ = s.Dump()
	assert.False(wrote)

	backend.fail = true
	s.SetTotal("g", domain.EnergyTotal{Value: decimal.NewFromInt(3), Unit: "kWh"})
	_, err = s.Dump()
	assert.Error(err)

	backend.fail = false
	wrote, err = s.Dump()
	assert.NoError(err)
	assert.True(wrote, "failed dump is retried")
}

func TestStoreDeleteOperations(t *testing.T) {

	assert := assert.New(t)

	s := NewPreviousStateStore(nil, zap.NewNop())
	s.SetBaseline("g", "sensor.a", baseline("1"))
	s.SetBaseline("g", "sensor.b", baseline("2"))
	s.SetTotal("g", domain.EnergyTotal{Value: decimal.NewFromInt(3), Unit: "kWh"})

	assert.True(s.DeleteBaseline("g", "sensor.a"))
	assert.False(s.DeleteBaseline("g", "sensor.a"))
	_, ok := s.Baseline("g", "sensor.b")
	assert.True(ok)

	s.DeleteGroup("g")
	_, ok = s.Baseline("g", "sensor.b")
	assert.False(ok)
	_, ok = s.Total("g")
	assert.False(ok)

	wrote, err := s.Dump()
	assert.NoError(err)
	assert.False(wrote, "memory only store never writes")
}

func TestStoreRestartDurability(t *testing.T) {

	require := require.New(t)

	path := filepath.Join(t.TempDir(), "state.json")
	s := NewPreviousStateStore(NewFileBackend(path, zap.NewNop()), zap.NewNop())
	require.NoError(s.Load())
	s.SetBaseline("kitchen", "sensor.fridge_energy", baseline("1197.865543"))
	s.SetTotal("kitchen", domain.EnergyTotal{Value: decimal.RequireFromString("0.002478"), Unit: "kWh"})
	_, err := s.Dump()
	require.NoError(err)

	restarted := NewPreviousStateStore(NewFileBackend(path, zap.NewNop()), zap.NewNop())
	require.NoError(restarted.Load())
	b, ok := restarted.Baseline("kitchen", "sensor.fridge_energy")
	require.True(ok)
	require.Equal("1197.865543", b.Value.String(), "exact decimal survives the restart")
	require.Equal("kWh", b.Unit)
	total, ok := restarted.Total("kitchen")
	require.True(ok)
	require.Equal("0.002478", total.Value.String())
}
