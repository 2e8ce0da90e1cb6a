package config

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/leapstack-labs/leapview/internal/session"
	"github.com/leapstack-labs/leapview/pkg/schema"
	"github.com/leapstack-labs/leapview/pkg/source"
)

var outputModes = []string{"auto", "text", "table", "markdown", "json", "csv"}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	for key, v := range map[string]int{
		"sample_size":     c.SampleSize,
		"window_size":     c.WindowSize,
		"chunk_size":      c.ChunkSize,
		"max_chunks":      c.MaxChunks,
		"memory_limit_mb": c.MemoryLimitMB,
		"workers":         c.Workers,
	} {
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", key, v)
		}
	}
	if c.HeaderLine < 0 {
		return fmt.Errorf("header_line must not be negative")
	}
	if !slices.Contains(outputModes, c.OutputFormat) {
		return fmt.Errorf("invalid output format %q (expected one of %v)", c.OutputFormat, outputModes)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if _, err := c.delimiter(); err != nil {
		return err
	}
	return nil
}

// Level returns the log level: debug when verbose, else log_level.
func (c *Config) Level() (slog.Level, error) {
	if c.Verbose {
		return slog.LevelDebug, nil
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}

// delimiter returns the configured delimiter as a FileConfig value; empty
// means sniff.
func (c *Config) delimiter() (string, error) {
	switch c.Delimiter {
	case "", DefaultDelimiter:
		return "", nil
	case "tab", `\t`:
		return "\t", nil
	}
	if len([]rune(c.Delimiter)) != 1 {
		return "", fmt.Errorf("delimiter must be auto, tab or a single character, got %q", c.Delimiter)
	}
	return c.Delimiter, nil
}

// NullConfig builds the null-sentinel settings for new files.
func (c *Config) NullConfig() schema.NullConfig {
	n := schema.DefaultNullConfig()
	if c.NullPatterns != nil {
		n.Patterns = slices.Clone(c.NullPatterns)
	}
	n.CaseSensitive = c.NullsCaseSensitive
	return n
}

// NewFileConfig returns a delimited FileConfig for path carrying the
// configured defaults.
func (c *Config) NewFileConfig(path string) *source.FileConfig {
	f := source.NewFileConfig(path)
	f.SampleSize = 0
	f.Nulls = schema.NullConfig{}
	c.ApplyToFile(f)
	return f
}

// ApplyToFile fills unset fields of f from the configuration. Settings the
// file already carries win.
func (c *Config) ApplyToFile(f *source.FileConfig) {
	if f.SampleSize <= 0 {
		f.SampleSize = c.SampleSize
	}
	if f.Delimiter == "" {
		f.Delimiter, _ = c.delimiter()
	}
	if f.HeaderLine == 0 {
		f.HeaderLine = c.HeaderLine
	}
	for name, t := range c.ColumnTypes {
		if _, ok := f.ColumnTypes[name]; !ok {
			f.SetColumnType(name, t)
		}
	}
	if len(f.Nulls.Patterns) == 0 {
		f.Nulls = c.NullConfig()
	}
}

// SessionOptions returns session settings derived from the configuration.
func (c *Config) SessionOptions(logger *slog.Logger) session.Options {
	return session.Options{
		Logger:        logger,
		Workers:       c.Workers,
		MemoryLimitMB: c.MemoryLimitMB,
		ChunkSize:     c.ChunkSize,
		MaxChunks:     c.MaxChunks,
		WindowSize:    c.WindowSize,
	}
}
