package store

import (
	"fmt"
	"time"

	"github.com/berfenger/powergroup2mqtt/internal/core/domain"
	"github.com/berfenger/powergroup2mqtt/internal/db"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// version 1 databases had a single member keyed table
const legacyBaselineTable = "baselines"

// SQLiteBackend keeps the snapshot in the group_baselines and group_totals tables.
type SQLiteBackend struct {
	db     *db.DB
	logger *zap.Logger
}

func NewSQLiteBackend(path string, logger *zap.Logger) (*SQLiteBackend, error) {
	database, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteBackend{
		db:     database,
		logger: logger.With(zap.String("backend", "sqlite"), zap.String("path", path)),
	}, nil
}

func (b *SQLiteBackend) Load() (Snapshot, error) {
	snap := NewSnapshot()

	version, err := b.db.SchemaVersion()
	if err != nil {
		return snap, err
	}
	if version != db.SCHEMA_VERSION {
		return snap, fmt.Errorf("%w: %s", ErrUnsupportedVersion, version)
	}
	b.warnLegacy()

	rows, err := b.db.Query(`SELECT group_id, member_id, value, unit, updated_at FROM group_baselines`)
	if err != nil {
		return snap, fmt.Errorf("failed to query baselines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var group, member, value, unit string
		var updatedAt int64
		if err := rows.Scan(&group, &member, &value, &unit, &updatedAt); err != nil {
			return snap, err
		}
		v, err := decimal.NewFromString(value)
		if err != nil || unit == "" {
			b.logger.Warn("dropping corrupt baseline", zap.String("group", group), zap.String("entity", member), zap.String("value", value))
			continue
		}
		if snap.Baselines[group] == nil {
			snap.Baselines[group] = make(map[string]domain.MemberBaseline)
		}
		snap.Baselines[group][member] = domain.MemberBaseline{
			Value:     v,
			Unit:      unit,
			Timestamp: time.UnixMilli(updatedAt).UTC(),
		}
	}
	if err := rows.Err(); err != nil {
		return snap, err
	}

	totals, err := b.db.Query(`SELECT group_id, value, unit, updated_at, seeding FROM group_totals`)
	if err != nil {
		return snap, fmt.Errorf("failed to query totals: %w", err)
	}
	defer totals.Close()
	for totals.Next() {
		var group, value, unit string
		var updatedAt int64
		var seeding bool
		if err := totals.Scan(&group, &value, &unit, &updatedAt, &seeding); err != nil {
			return snap, err
		}
		v, err := decimal.NewFromString(value)
		if err != nil || unit == "" {
			b.logger.Warn("dropping corrupt energy total", zap.String("group", group), zap.String("value", value))
			continue
		}
		snap.Totals[group] = domain.EnergyTotal{
			Value:     v,
			Unit:      unit,
			Timestamp: time.UnixMilli(updatedAt).UTC(),
			Seeding:   seeding,
		}
	}
	return snap, totals.Err()
}

// Save replaces the stored snapshot in one transaction.
func (b *SQLiteBackend) Save(snap Snapshot) error {
	tx, err := b.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM group_baselines`); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM group_totals`); err != nil {
		return err
	}

	insBaseline, err := tx.Prepare(`INSERT INTO group_baselines (group_id, member_id, value, unit, updated_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer insBaseline.Close()
	for group, members := range snap.Baselines {
		for member, baseline := range members {
			if _, err := insBaseline.Exec(group, member, baseline.Value.String(), baseline.Unit, baseline.Timestamp.UnixMilli()); err != nil {
				return fmt.Errorf("failed to save baseline %s/%s: %w", group, member, err)
			}
		}
	}

	insTotal, err := tx.Prepare(`INSERT INTO group_totals (group_id, value, unit, updated_at, seeding) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer insTotal.Close()
	for group, total := range snap.Totals {
		if _, err := insTotal.Exec(group, total.Value.String(), total.Unit, total.Timestamp.UnixMilli(), total.Seeding); err != nil {
			return fmt.Errorf("failed to save total %s: %w", group, err)
		}
	}

	return tx.Commit()
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

func (b *SQLiteBackend) warnLegacy() {
	ok, err := b.db.HasTable(legacyBaselineTable)
	if err != nil || !ok {
		return
	}
	var n int
	if err := b.db.QueryRow(`SELECT COUNT(*) FROM ` + legacyBaselineTable).Scan(&n); err == nil && n > 0 {
		b.logger.Warn("version 1 baselines are not migrated, members restart unseen", zap.Int("members", n))
	}
}
