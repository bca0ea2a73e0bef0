package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/couchcryptid/monitoring-gap-etl/internal/domain"
	"gopkg.in/yaml.v3"
)

// Manifest lists the monitoring sources to analyze and the coordinate tables
// used for spatial clustering.
type Manifest struct {
	Sources     []SourceSpec    `yaml:"sources"`
	Coordinates CoordinatesSpec `yaml:"coordinates"`
}

// SourceSpec names one source. Its files are concatenated in order.
type SourceSpec struct {
	Label   string                    `yaml:"label"`
	Paths   []string                  `yaml:"paths"`
	Columns domain.ObservationColumns `yaml:"columns"`
}

// CoordinatesSpec lists site coordinate tables. When Paths is empty the
// coordinates are taken from source tables that carry latitude and longitude
// columns.
type CoordinatesSpec struct {
	Paths   []string                 `yaml:"paths"`
	Columns domain.CoordinateColumns `yaml:"columns"`
}

// LoadManifest reads and validates a YAML manifest. Relative paths are
// resolved against the manifest's directory.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}

	base := filepath.Dir(path)
	for i := range m.Sources {
		m.Sources[i].Paths = resolvePaths(base, m.Sources[i].Paths)
	}
	m.Coordinates.Paths = resolvePaths(base, m.Coordinates.Paths)
	return &m, nil
}

// Validate checks that every source has a unique label and at least one file.
func (m *Manifest) Validate() error {
	if len(m.Sources) == 0 {
		return errors.New("no sources configured")
	}
	seen := make(map[string]bool, len(m.Sources))
	for i, s := range m.Sources {
		if s.Label == "" {
			return fmt.Errorf("source %d: label is required", i)
		}
		if seen[s.Label] {
			return fmt.Errorf("source %q: duplicate label", s.Label)
		}
		seen[s.Label] = true
		if len(s.Paths) == 0 {
			return fmt.Errorf("source %q: at least one path is required", s.Label)
		}
	}
	return nil
}

func resolvePaths(base string, paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		if filepath.IsAbs(p) {
			out[i] = p
			continue
		}
		out[i] = filepath.Join(base, p)
	}
	return out
}
