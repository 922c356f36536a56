package groupfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/berfenger/powergroup2mqtt/internal/core/domain"
	"github.com/berfenger/powergroup2mqtt/internal/core/port"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type document struct {
	Groups []GroupConfig `yaml:"groups"`
}

// Store keeps the group definitions in a yaml file.
type Store struct {
	path   string
	mu     sync.Mutex
	logger *zap.Logger
}

var _ port.GroupConfigStore = (*Store)(nil)

func NewStore(path string, logger *zap.Logger) *Store {
	return &Store{
		path:   path,
		logger: logger.With(zap.String("component", "groupfile"), zap.String("path", path)),
	}
}

// Load returns the groups of the file. A missing file is an empty group list.
// Entries that fail to convert are logged and skipped.
func (s *Store) Load() ([]domain.GroupDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Info("groups file not found, starting without groups")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read groups file: %w", err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse groups file: %w", err)
	}

	defs := make([]domain.GroupDefinition, 0, len(doc.Groups))
	for _, c := range doc.Groups {
		def, err := c.ToDefinition()
		if err != nil {
			s.logger.Warn("skipping invalid group", zap.String("group", c.Id), zap.Error(err))
			continue
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func (s *Store) Save(groups []domain.GroupDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := document{Groups: make([]GroupConfig, 0, len(groups))}
	for _, g := range groups {
		doc.Groups = append(doc.Groups, FromDefinition(g))
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".groups-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to write groups file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write groups file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace groups file: %w", err)
	}
	s.logger.Debug("groups saved", zap.Int("groups", len(groups)))
	return nil
}
