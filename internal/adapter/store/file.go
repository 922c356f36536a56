package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/berfenger/powergroup2mqtt/internal/core/domain"
	"go.uber.org/zap"
)

const (
	FILE_STORE_VERSION        = 2
	FILE_STORE_LEGACY_VERSION = 1

	UNREADABLE_SUFFIX = ".unreadable"
)

var (
	ErrCorruptStore       = errors.New("corrupt previous state store")
	ErrUnsupportedVersion = errors.New("unsupported previous state store version")
)

type fileHeader struct {
	Version int `json:"version"`
}

// version 1 keyed baselines by member only
type fileV1 struct {
	Version int                        `json:"version"`
	Data    map[string]json.RawMessage `json:"data"`
}

// sections stay raw so a bad entry only drops itself
type fileV2 struct {
	Version int             `json:"version"`
	Groups  json.RawMessage `json:"groups"`
	Totals  json.RawMessage `json:"totals,omitempty"`
}

type fileV2Out struct {
	Version int                                         `json:"version"`
	Groups  map[string]map[string]domain.MemberBaseline `json:"groups"`
	Totals  map[string]domain.EnergyTotal               `json:"totals,omitempty"`
}

// FileBackend keeps the snapshot in a single JSON document.
type FileBackend struct {
	path   string
	logger *zap.Logger
}

func NewFileBackend(path string, logger *zap.Logger) *FileBackend {
	return &FileBackend{
		path:   path,
		logger: logger.With(zap.String("backend", "file"), zap.String("path", path)),
	}
}

// Load reads the snapshot. A file that cannot be read as a whole is moved
// aside to <path>.unreadable so the next dump does not overwrite it.
func (b *FileBackend) Load() (Snapshot, error) {
	snap, err := b.load()
	if errors.Is(err, ErrCorruptStore) || errors.Is(err, ErrUnsupportedVersion) {
		aside := b.path + UNREADABLE_SUFFIX
		if rerr := os.Rename(b.path, aside); rerr != nil {
			b.logger.Error("could not move unreadable state file aside", zap.Error(rerr))
		} else {
			b.logger.Warn("unreadable state file moved aside", zap.String("moved_to", aside))
		}
	}
	return snap, err
}

func (b *FileBackend) load() (Snapshot, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		b.logger.Info("no previous state file, starting empty")
		return NewSnapshot(), nil
	}
	if err != nil {
		return NewSnapshot(), err
	}

	var header fileHeader
	if err := json.Unmarshal(data, &header); err != nil {
		return NewSnapshot(), fmt.Errorf("%w: %w", ErrCorruptStore, err)
	}
	switch header.Version {
	case FILE_STORE_LEGACY_VERSION:
		var v1 fileV1
		if err := json.Unmarshal(data, &v1); err != nil {
			return NewSnapshot(), fmt.Errorf("%w: %w", ErrCorruptStore, err)
		}
		for member := range v1.Data {
			b.logger.Warn("version 1 baseline is not migrated, member restarts unseen", zap.String("entity", member))
		}
		return NewSnapshot(), nil
	case FILE_STORE_VERSION:
		return b.decodeV2(data)
	default:
		return NewSnapshot(), fmt.Errorf("%w: %d", ErrUnsupportedVersion, header.Version)
	}
}

func (b *FileBackend) decodeV2(data []byte) (Snapshot, error) {
	var v2 fileV2
	if err := json.Unmarshal(data, &v2); err != nil {
		return NewSnapshot(), fmt.Errorf("%w: %w", ErrCorruptStore, err)
	}
	snap := NewSnapshot()
	for group, raw := range b.decodeSection(v2.Groups, "groups") {
		var members map[string]json.RawMessage
		if err := json.Unmarshal(raw, &members); err != nil {
			b.logger.Warn("dropping corrupt group", zap.String("group", group), zap.Error(err))
			continue
		}
		for member, raw := range members {
			var baseline domain.MemberBaseline
			if err := decodeRecord(raw, &baseline.Unit, &baseline); err != nil {
				b.logger.Warn("dropping corrupt baseline", zap.String("group", group), zap.String("entity", member), zap.Error(err))
				continue
			}
			if snap.Baselines[group] == nil {
				snap.Baselines[group] = make(map[string]domain.MemberBaseline)
			}
			snap.Baselines[group][member] = baseline
		}
	}
	for group, raw := range b.decodeSection(v2.Totals, "totals") {
		var total domain.EnergyTotal
		if err := decodeRecord(raw, &total.Unit, &total); err != nil {
			b.logger.Warn("dropping corrupt energy total", zap.String("group", group), zap.Error(err))
			continue
		}
		snap.Totals[group] = total
	}
	return snap, nil
}

// decodeSection splits a top level object into its entries. A section that is
// not an object is dropped as a whole.
func (b *FileBackend) decodeSection(raw json.RawMessage, name string) map[string]json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		b.logger.Warn("dropping corrupt section", zap.String("section", name), zap.Error(err))
		return nil
	}
	return entries
}

func decodeRecord(raw json.RawMessage, unit *string, into any) error {
	if err := json.Unmarshal(raw, into); err != nil {
		return err
	}
	if *unit == "" {
		return errors.New("missing unit")
	}
	return nil
}

// Save writes to a temporary file and renames it over the old one.
func (b *FileBackend) Save(snap Snapshot) error {
	payload, err := json.MarshalIndent(fileV2Out{
		Version: FILE_STORE_VERSION,
		Groups:  snap.Baselines,
		Totals:  snap.Totals,
	}, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(b.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(b.path)+".tmp*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), b.path)
}

func (b *FileBackend) Close() error {
	return nil
}
