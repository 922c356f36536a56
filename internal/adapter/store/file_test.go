package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/berfenger/powergroup2mqtt/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeFile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFileBackendMissingFile(t *testing.T) {

	assert := assert.New(t)

	b := NewFileBackend(filepath.Join(t.TempDir(), "none.json"), zap.NewNop())
	snap, err := b.Load()
	assert.NoError(err)
	assert.Empty(snap.Baselines)
}

func TestFileBackendLegacyVersionNotMigrated(t *testing.T) {

	assert := assert.New(t)

	path := writeFile(t, `{"version":1,"data":{"sensor.a":{"value":"12.5","unit":"kWh","timestamp":"2024-01-01T00:00:00Z"}}}`)
	snap, err := NewFileBackend(path, zap.NewNop()).Load()
	assert.NoError(err, "version 1 is recognized")
	assert.Empty(snap.Baselines, "and deliberately not carried over")
}

func TestFileBackendDropsCorruptRecords(t *testing.T) {

	assert := assert.New(t)

	path := writeFile(t, `{
		"version": 2,
		"groups": {
			"g": {
				"sensor.ok": {"value": "3.25", "unit": "kWh", "timestamp": "2024-01-01T00:00:00Z"},
				"sensor.bad": {"value": "three", "unit": "kWh", "timestamp": "2024-01-01T00:00:00Z"},
				"sensor.nounit": {"value": "1", "timestamp": "2024-01-01T00:00:00Z"}
			}
		},
		"totals": {
			"g": {"value": "7", "unit": "kWh", "timestamp": "2024-01-01T00:00:00Z"},
			"h": 12
		}
	}`)
	snap, err := NewFileBackend(path, zap.NewNop()).Load()
	assert.NoError(err)
	assert.Len(snap.Baselines["g"], 1)
	assert.Equal("3.25", snap.Baselines["g"]["sensor.ok"].Value.String())
	assert.Len(snap.Totals, 1)
	assert.Equal("7", snap.Totals["g"].Value.String())
}

func TestFileBackendDropsCorruptGroups(t *testing.T) {

	assert := assert.New(t)

	path := writeFile(t, `{"version": 2,
		"groups": {
			"good": {"sensor.a": {"value": "12.5", "unit": "kWh", "timestamp": "2024-05-01T10:00:00Z"}},
			"bad": "junk",
			"worse": [1, 2]
		},
		"totals": {
			"good": {"value": "3", "unit": "kWh", "timestamp": "2024-05-01T10:00:00Z"},
			"bad": 42
		}}`)
	snap, err := NewFileBackend(path, zap.NewNop()).Load()
	assert.NoError(err)
	assert.Len(snap.Baselines, 1)
	assert.Equal("12.5", snap.Baselines["good"]["sensor.a"].Value.String())
	assert.Len(snap.Totals, 1)
	assert.Equal("3", snap.Totals["good"].Value.String())

	snap, err = NewFileBackend(writeFile(t, `{"version": 2, "groups": "junk", "totals": {"g": {"value": "1", "unit": "kWh"}}}`), zap.NewNop()).Load()
	assert.NoError(err)
	assert.Empty(snap.Baselines)
	assert.Equal("1", snap.Totals["g"].Value.String())
}

func TestFileBackendRejectsGarbage(t *testing.T) {

	assert := assert.New(t)

	_, err := NewFileBackend(writeFile(t, `not json`), zap.NewNop()).Load()
	assert.ErrorIs(err, ErrCorruptStore)

	_, err = NewFileBackend(writeFile(t, `{"version":7}`), zap.NewNop()).Load()
	assert.ErrorIs(err, ErrUnsupportedVersion)

	// the store stays usable and the unreadable file survives the next dump
	path := writeFile(t, `not json`)
	s := NewPreviousStateStore(NewFileBackend(path, zap.NewNop()), zap.NewNop())
	assert.Error(s.Load())
	s.SetBaseline("g", "sensor.a", baseline("1"))
	_, ok := s.Baseline("g", "sensor.a")
	assert.True(ok)

	dumped, err := s.Dump()
	assert.NoError(err)
	assert.True(dumped)
	kept, err := os.ReadFile(path + UNREADABLE_SUFFIX)
	assert.NoError(err)
	assert.Equal("not json", string(kept))
}

func TestFileBackendSaveWritesVersion2(t *testing.T) {

	require := require.New(t)

	path := filepath.Join(t.TempDir(), "state.json")
	b := NewFileBackend(path, zap.NewNop())
	snap := NewSnapshot()
	snap.Baselines["g"] = map[string]domain.MemberBaseline{"sensor.a": baseline("0.1")}
	require.NoError(b.Save(snap))

	raw, err := os.ReadFile(path)
	require.NoError(err)
	require.Contains(string(raw), `"version": 2`)
	require.Contains(string(raw), `"value": "0.1"`)

	entries, _ := os.ReadDir(filepath.Dir(path))
	require.Len(entries, 1, "no temp files left behind")
}
