package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"jan-server/services/chat-api/internal/infrastructure/logger"
)

// ModelEntry is one model a client may target.
type ModelEntry struct {
	ID          string `yaml:"id"`
	DisplayName string `yaml:"display_name"`
}

// ModelCatalog lists the models exposed to clients and the one selected by default.
type ModelCatalog struct {
	Default string       `yaml:"default"`
	Models  []ModelEntry `yaml:"models"`
}

// IDs returns the model identifiers in catalog order.
func (c *ModelCatalog) IDs() []string {
	if c == nil {
		return nil
	}
	ids := make([]string, 0, len(c.Models))
	for _, m := range c.Models {
		ids = append(ids, m.ID)
	}
	return ids
}

// LoadModelCatalog parses the yaml file at the provided path.
func LoadModelCatalog(path string) (*ModelCatalog, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("model catalog path is empty")
	}
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("read model catalog %q: %w", cleanPath, err)
	}
	log := logger.GetLogger()
	log.Info().Str("path", cleanPath).Msg("loading model catalog")
	return ParseModelCatalog(data)
}

// ParseModelCatalog decodes and validates catalog yaml.
func ParseModelCatalog(data []byte) (*ModelCatalog, error) {
	var catalog ModelCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("parse model catalog: %w", err)
	}

	seen := make(map[string]struct{}, len(catalog.Models))
	kept := catalog.Models[:0]
	for _, m := range catalog.Models {
		m.ID = strings.TrimSpace(m.ID)
		if m.ID == "" {
			continue
		}
		if _, dup := seen[m.ID]; dup {
			return nil, fmt.Errorf("duplicate model %q in catalog", m.ID)
		}
		seen[m.ID] = struct{}{}
		kept = append(kept, m)
	}
	catalog.Models = kept

	if len(catalog.Models) == 0 {
		return nil, errors.New("model catalog has no models")
	}
	if catalog.Default == "" {
		catalog.Default = catalog.Models[0].ID
	}
	if _, ok := seen[catalog.Default]; !ok {
		return nil, fmt.Errorf("default model %q is not in the catalog", catalog.Default)
	}
	return &catalog, nil
}
