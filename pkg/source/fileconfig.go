package source

import (
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"sync"

	"github.com/leapstack-labs/leapview/pkg/schema"
)

// FileType selects the backend used to open a FileConfig.
type FileType string

// Supported backends.
const (
	FileTypeDelimited FileType = "delimited"
	FileTypeTable     FileType = "table"
)

// FileConfig describes how to open one file or table.
type FileConfig struct {
	Path string   `yaml:"path" json:"path"`
	Type FileType `yaml:"type" json:"type"`

	// HeaderLine is the number of lines skipped before the header record.
	HeaderLine int `yaml:"header_line,omitempty" json:"header_line,omitempty"`
	// Delimiter is a single character; empty means sniff from the header.
	Delimiter string `yaml:"delimiter,omitempty" json:"delimiter,omitempty"`

	// Adapter and Table identify a table-backed source.
	Adapter string `yaml:"adapter,omitempty" json:"adapter,omitempty"`
	Table   string `yaml:"table,omitempty" json:"table,omitempty"`

	SelectedColumns []string                   `yaml:"columns,omitempty" json:"columns,omitempty"`
	ColumnTypes     map[string]schema.DataType `yaml:"column_types,omitempty" json:"column_types,omitempty"`
	Nulls           schema.NullConfig          `yaml:"nulls" json:"nulls"`
	SampleSize      int                        `yaml:"sample_size,omitempty" json:"sample_size,omitempty"`

	// DetectedColumns is filled from a preview before columns are selected.
	DetectedColumns []string `yaml:"detected_columns,omitempty" json:"detected_columns,omitempty"`
}

// NewFileConfig returns a delimited-file config with default settings.
func NewFileConfig(path string) *FileConfig {
	return &FileConfig{
		Path:       path,
		Type:       FileTypeDelimited,
		Nulls:      schema.DefaultNullConfig(),
		SampleSize: DefaultSampleSize,
	}
}

// FileName returns the base name of Path.
func (c *FileConfig) FileName() string {
	return filepath.Base(c.Path)
}

// EffectiveSampleSize returns SampleSize bounded to (0, MaxSampleSize].
func (c *FileConfig) EffectiveSampleSize() int {
	if c.SampleSize <= 0 {
		return DefaultSampleSize
	}
	return min(c.SampleSize, MaxSampleSize)
}

// Select adds columns to the selection, ignoring duplicates.
func (c *FileConfig) Select(names ...string) {
	for _, n := range names {
		if !slices.Contains(c.SelectedColumns, n) {
			c.SelectedColumns = append(c.SelectedColumns, n)
		}
	}
}

// Deselect removes a column from the selection.
func (c *FileConfig) Deselect(name string) {
	c.SelectedColumns = slices.DeleteFunc(c.SelectedColumns, func(s string) bool { return s == name })
}

// SelectAll selects every detected column.
func (c *FileConfig) SelectAll() {
	c.SelectedColumns = nil
	c.Select(c.DetectedColumns...)
}

// IsSelected reports whether name is part of the projection.
func (c *FileConfig) IsSelected(name string) bool {
	return slices.Contains(c.SelectedColumns, name)
}

// ColumnType returns the declared type of name, or detected when none is declared.
func (c *FileConfig) ColumnType(name string, detected schema.DataType) schema.DataType {
	if t, ok := c.ColumnTypes[name]; ok {
		return t
	}
	return detected
}

// SetColumnType declares the type of a column.
func (c *FileConfig) SetColumnType(name string, t schema.DataType) {
	if c.ColumnTypes == nil {
		c.ColumnTypes = make(map[string]schema.DataType)
	}
	c.ColumnTypes[name] = t
}

// HasChanged reports whether any setting that affects analysis differs.
func (c *FileConfig) HasChanged(o *FileConfig) bool {
	if o == nil {
		return true
	}
	return c.Path != o.Path ||
		c.Type != o.Type ||
		c.HeaderLine != o.HeaderLine ||
		c.Delimiter != o.Delimiter ||
		c.Adapter != o.Adapter ||
		c.Table != o.Table ||
		c.SampleSize != o.SampleSize ||
		!slices.Equal(c.SelectedColumns, o.SelectedColumns) ||
		!maps.Equal(c.ColumnTypes, o.ColumnTypes) ||
		!slices.Equal(c.Nulls.Patterns, o.Nulls.Patterns) ||
		c.Nulls.Trim != o.Nulls.Trim ||
		c.Nulls.CaseSensitive != o.Nulls.CaseSensitive
}

// Validate checks the settings that must hold before a source is opened.
func (c *FileConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("path is required")
	}
	switch c.Type {
	case FileTypeDelimited, "":
		if len([]rune(c.Delimiter)) > 1 {
			return fmt.Errorf("delimiter must be a single character, got %q", c.Delimiter)
		}
	case FileTypeTable:
		if c.Table == "" {
			return fmt.Errorf("table is required for %s", c.FileName())
		}
	default:
		return fmt.Errorf("unknown file type %q", c.Type)
	}
	if c.HeaderLine < 0 {
		return fmt.Errorf("header_line must not be negative")
	}
	return nil
}

// Clone returns a deep copy.
func (c *FileConfig) Clone() *FileConfig {
	cp := *c
	cp.SelectedColumns = slices.Clone(c.SelectedColumns)
	cp.DetectedColumns = slices.Clone(c.DetectedColumns)
	cp.ColumnTypes = maps.Clone(c.ColumnTypes)
	cp.Nulls.Patterns = slices.Clone(c.Nulls.Patterns)
	return &cp
}

// FileConfigManager keeps the configs of every opened file and tracks which
// one is active.
type FileConfigManager struct {
	mu     sync.RWMutex
	order  []string
	files  map[string]*FileConfig
	active string
}

// NewFileConfigManager creates an empty manager.
func NewFileConfigManager() *FileConfigManager {
	return &FileConfigManager{files: make(map[string]*FileConfig)}
}

// Add stores cfg keyed by its path, replacing an existing entry. The first
// config added becomes active.
func (m *FileConfigManager) Add(cfg *FileConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[cfg.Path]; !ok {
		m.order = append(m.order, cfg.Path)
	}
	m.files[cfg.Path] = cfg
	if m.active == "" {
		m.active = cfg.Path
	}
}

// Remove drops the config for path. If it was active, the first remaining
// config becomes active.
func (m *FileConfigManager) Remove(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
	m.order = slices.DeleteFunc(m.order, func(p string) bool { return p == path })
	if m.active == path {
		m.active = ""
		if len(m.order) > 0 {
			m.active = m.order[0]
		}
	}
}

// Get returns the config for path.
func (m *FileConfigManager) Get(path string) (*FileConfig, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.files[path]
	return c, ok
}

// SetActive marks path as the active file.
func (m *FileConfigManager) SetActive(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[path]; !ok {
		return fmt.Errorf("file %s is not configured", path)
	}
	m.active = path
	return nil
}

// Active returns the active config.
func (m *FileConfigManager) Active() (*FileConfig, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.files[m.active]
	return c, ok
}

// Files returns all configs in insertion order.
func (m *FileConfigManager) Files() []*FileConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*FileConfig, 0, len(m.order))
	for _, p := range m.order {
		out = append(out, m.files[p])
	}
	return out
}

// FileNames returns the base names of all configs in insertion order.
func (m *FileConfigManager) FileNames() []string {
	files := m.Files()
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.FileName()
	}
	return out
}

// Len returns the number of configs.
func (m *FileConfigManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files)
}
