package store

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/berfenger/powergroup2mqtt/internal/core/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSQLiteBackendRoundtrip(t *testing.T) {

	require := require.New(t)

	path := filepath.Join(t.TempDir(), "state.db")
	b, err := NewSQLiteBackend(path, zap.NewNop())
	require.NoError(err)

	snap := NewSnapshot()
	snap.Baselines["g"] = map[string]domain.MemberBaseline{
		"sensor.a": baseline("1197.865543"),
		"sensor.b": baseline("0.000001"),
	}
	snap.Totals["g"] = domain.EnergyTotal{
		Value:     decimal.RequireFromString("12.3456"),
		Unit:      "kWh",
		Timestamp: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
		Seeding:   true,
	}
	require.NoError(b.Save(snap))
	require.NoError(b.Close())

	reopened, err := NewSQLiteBackend(path, zap.NewNop())
	require.NoError(err)
	defer reopened.Close()
	loaded, err := reopened.Load()
	require.NoError(err)
	require.Len(loaded.Baselines["g"], 2)
	require.Equal("1197.865543", loaded.Baselines["g"]["sensor.a"].Value.String())
	require.True(loaded.Baselines["g"]["sensor.a"].Timestamp.Equal(baseline("1").Timestamp))
	require.Equal("12.3456", loaded.Totals["g"].Value.String())
	require.True(loaded.Totals["g"].Seeding)
}

func TestSQLiteBackendAddsSeedingColumn(t *testing.T) {

	require := require.New(t)

	path := filepath.Join(t.TempDir(), "state.db")
	old, err := sql.Open("sqlite3", path)
	require.NoError(err)
	_, err = old.Exec(`CREATE TABLE group_totals (
		group_id TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		unit TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	)`)
	require.NoError(err)
	_, err = old.Exec(`INSERT INTO group_totals VALUES ('g', '4.5', 'kWh', 0)`)
	require.NoError(err)
	require.NoError(old.Close())

	b, err := NewSQLiteBackend(path, zap.NewNop())
	require.NoError(err)
	defer b.Close()
	loaded, err := b.Load()
	require.NoError(err)
	require.Equal("4.5", loaded.Totals["g"].Value.String())
	require.False(loaded.Totals["g"].Seeding)
}

func TestSQLiteBackendSaveReplacesContents(t *testing.T) {

	assert := assert.New(t)

	b, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "state.db"), zap.NewNop())
	assert.NoError(err)
	defer b.Close()

	first := NewSnapshot()
	first.Baselines["g"] = map[string]domain.MemberBaseline{"sensor.a": baseline("1")}
	assert.NoError(b.Save(first))
	assert.NoError(b.Save(NewSnapshot()))

	loaded, err := b.Load()
	assert.NoError(err)
	assert.Empty(loaded.Baselines)
}

func TestSQLiteBackendDropsCorruptRows(t *testing.T) {

	assert := assert.New(t)

	b, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "state.db"), zap.NewNop())
	assert.NoError(err)
	defer b.Close()

	_, err = b.db.Exec(`INSERT INTO group_baselines (group_id, member_id, value, unit, updated_at) VALUES
		('g', 'sensor.ok', '2.5', 'kWh', 0),
		('g', 'sensor.bad', 'n/a', 'kWh', 0),
		('g', 'sensor.nounit', '1', '', 0)`)
	assert.NoError(err)

	loaded, err := b.Load()
	assert.NoError(err)
	assert.Len(loaded.Baselines["g"], 1)
	assert.Equal("2.5", loaded.Baselines["g"]["sensor.ok"].Value.String())
}

func TestSQLiteBackendUnsupportedVersion(t *testing.T) {

	assert := assert.New(t)

	b, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "state.db"), zap.NewNop())
	assert.NoError(err)
	defer b.Close()

	_, err = b.db.Exec(`UPDATE store_meta SET value = '9' WHERE key = 'schema_version'`)
	assert.NoError(err)

	_, err = b.Load()
	assert.ErrorIs(err, ErrUnsupportedVersion)
}
