package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/leapview/pkg/schema"
	"github.com/leapstack-labs/leapview/pkg/source"
)

// Manifest is a saved dataset definition: one or more files opened
// together, plus an optional database target for table-backed files.
//
//	name: sensors
//	files:
//	  - path: data/north.csv
//	    columns: [ts, temp]
//	  - path: data/south.csv
//	    columns: [ts, temp]
type Manifest struct {
	Name        string               `yaml:"name"`
	Description string               `yaml:"description,omitempty"`
	Target      *TargetConfig        `yaml:"target,omitempty"`
	Files       []*source.FileConfig `yaml:"files"`
}

// IsManifest reports whether path names a manifest file.
func IsManifest(path string) bool {
	return strings.HasSuffix(path, ManifestSuffix)
}

// LoadManifest reads and validates a manifest. Relative file paths are
// resolved against the manifest's directory.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}

	if m.Name == "" {
		m.Name = strings.TrimSuffix(filepath.Base(path), ManifestSuffix)
	}
	if m.Target != nil {
		ApplyTargetDefaults(m.Target)
		m.Target.ExpandEnv()
	}
	base := filepath.Dir(path)
	for _, f := range m.Files {
		if f == nil {
			continue
		}
		if f.Type == "" {
			f.Type = source.FileTypeDelimited
		}
		if f.Type == source.FileTypeTable && m.Target != nil {
			if f.Adapter == "" {
				f.Adapter = m.Target.Type
			}
			if f.Path == "" {
				f.Path = m.Target.Database
			}
		}
		f.Path = ExpandEnvVars(f.Path)
		if isLocalPath(f) && !filepath.IsAbs(f.Path) {
			f.Path = filepath.Join(base, f.Path)
		}
		if len(f.Nulls.Patterns) == 0 && !f.Nulls.Trim && !f.Nulls.CaseSensitive {
			f.Nulls = schema.DefaultNullConfig()
		}
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", path, err)
	}
	return &m, nil
}

// isLocalPath reports whether f.Path names a file on disk.
func isLocalPath(f *source.FileConfig) bool {
	if f.Path == "" || f.Path == ":memory:" {
		return false
	}
	return f.Type != source.FileTypeTable || f.Adapter != "postgres"
}

// Validate checks that the manifest can be opened.
func (m *Manifest) Validate() error {
	if len(m.Files) == 0 {
		return fmt.Errorf("no files listed")
	}
	tables := 0
	for i, f := range m.Files {
		if f == nil {
			return fmt.Errorf("file %d: empty entry", i)
		}
		if err := f.Validate(); err != nil {
			return fmt.Errorf("file %d: %w", i, err)
		}
		if f.Type == source.FileTypeTable {
			tables++
		}
	}
	if tables > 0 && len(m.Files) > 1 {
		return fmt.Errorf("a table-backed file cannot be combined with other files")
	}
	if m.Target != nil {
		if err := m.Target.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// FileConfigs returns copies of the manifest's files.
func (m *Manifest) FileConfigs() []*source.FileConfig {
	out := make([]*source.FileConfig, len(m.Files))
	for i, f := range m.Files {
		out[i] = f.Clone()
	}
	return out
}

// SaveManifest writes m to path. File paths under the manifest's directory
// are stored relative to it.
func SaveManifest(path string, m *Manifest) error {
	base, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return err
	}
	out := *m
	out.Files = m.FileConfigs()
	for _, f := range out.Files {
		if !isLocalPath(f) {
			continue
		}
		abs, err := filepath.Abs(f.Path)
		if err != nil {
			continue
		}
		if rel, err := filepath.Rel(base, abs); err == nil && !strings.HasPrefix(rel, "..") {
			f.Path = rel
		}
	}

	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating manifest directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
