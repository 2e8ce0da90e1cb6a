// Package config loads leapview CLI settings from defaults, the project's
// leapview.yaml, LEAPVIEW_* environment variables and command-line flags.
//
// Shared types such as TargetConfig live in internal/config and are
// re-exported here so commands need a single import.
package config

import (
	"slices"

	sharedcfg "github.com/leapstack-labs/leapview/internal/config"
	"github.com/leapstack-labs/leapview/pkg/cache"
	"github.com/leapstack-labs/leapview/pkg/schema"
	"github.com/leapstack-labs/leapview/pkg/source"
)

// TargetConfig is an alias for the shared target configuration.
type TargetConfig = sharedcfg.TargetConfig

// Config holds all CLI configuration options.
type Config struct {
	SampleSize    int `koanf:"sample_size"`
	WindowSize    int `koanf:"window_size"`
	ChunkSize     int `koanf:"chunk_size"`
	MaxChunks     int `koanf:"max_chunks"`
	MemoryLimitMB int `koanf:"memory_limit_mb"`
	Workers       int `koanf:"workers"`

	NullPatterns       []string `koanf:"null_patterns"`
	NullsCaseSensitive bool     `koanf:"nulls_case_sensitive"`
	// Delimiter is "auto", "tab" or a single character.
	Delimiter   string                     `koanf:"delimiter"`
	HeaderLine  int                        `koanf:"header_line"`
	ColumnTypes map[string]schema.DataType `koanf:"column_types"`

	StatePath    string        `koanf:"state_path"`
	OutputFormat string        `koanf:"output"`
	LogLevel     string        `koanf:"log_level"`
	Verbose      bool          `koanf:"verbose"`
	Target       *TargetConfig `koanf:"target"`

	// ProjectRoot is the directory relative paths are resolved against.
	ProjectRoot string `koanf:"-"`
	// ConfigFile is the config file that was loaded, if any.
	ConfigFile string `koanf:"-"`
}

// Default configuration values.
const (
	DefaultStateFile     = sharedcfg.DefaultStateFile
	DefaultOutput        = "auto" // TTY=text, otherwise markdown
	DefaultDelimiter     = "auto"
	DefaultLogLevel      = "info"
	DefaultWorkers       = 4
	DefaultMemoryLimitMB = 1024
)

func defaults() map[string]any {
	return map[string]any{
		"sample_size":     source.DefaultSampleSize,
		"window_size":     source.DefaultWindowSize,
		"chunk_size":      cache.DefaultChunkSize,
		"max_chunks":      cache.DefaultMaxChunks,
		"memory_limit_mb": DefaultMemoryLimitMB,
		"workers":         DefaultWorkers,
		"null_patterns":   slices.Clone(schema.DefaultNullPatterns),
		"delimiter":       DefaultDelimiter,
		"state_path":      DefaultStateFile,
		"output":          DefaultOutput,
		"log_level":       DefaultLogLevel,
		"verbose":         false,
	}
}
