// Package config holds configuration shared by every leapview entry point:
// database targets, dataset manifests and file discovery. It is independent
// of the CLI flag and environment layering.
package config

import (
	"fmt"
	"maps"
	"os"
	"regexp"
	"strings"

	"github.com/leapstack-labs/leapview/pkg/adapter"
)

// TargetConfig describes the database a table-backed source reads from.
type TargetConfig struct {
	Type string `koanf:"type" yaml:"type"` // sqlite, duckdb, postgres

	// Database is a file path for sqlite and duckdb, a database name for postgres.
	Database string `koanf:"database" yaml:"database,omitempty"`

	Host     string `koanf:"host" yaml:"host,omitempty"`
	Port     int    `koanf:"port" yaml:"port,omitempty"`
	User     string `koanf:"user" yaml:"user,omitempty"`
	Password string `koanf:"password" yaml:"password,omitempty"`
	Schema   string `koanf:"schema" yaml:"schema,omitempty"`

	// Options are extra driver connection settings, e.g. sslmode.
	Options map[string]string `koanf:"options" yaml:"options,omitempty"`
	// Params holds adapter-specific settings such as DuckDB extensions.
	Params map[string]any `koanf:"params" yaml:"params,omitempty"`
}

// Validate checks the type against the adapter registry.
func (t *TargetConfig) Validate() error {
	if t.Type == "" {
		return fmt.Errorf("target type is required")
	}
	if !adapter.IsRegistered(strings.ToLower(t.Type)) {
		return &adapter.UnknownAdapterError{
			Type:      t.Type,
			Available: adapter.ListAdapters(),
		}
	}
	return nil
}

// ToAdapterConfig converts the target into an adapter connection config.
func (t *TargetConfig) ToAdapterConfig() *adapter.Config {
	cfg := &adapter.Config{
		Type:     strings.ToLower(t.Type),
		Host:     t.Host,
		Port:     t.Port,
		Database: t.Database,
		Username: t.User,
		Password: t.Password,
		Schema:   t.Schema,
		Options:  maps.Clone(t.Options),
		Params:   maps.Clone(t.Params),
	}
	if cfg.Type != "postgres" {
		cfg.Path = t.Database
	}
	return cfg
}

// ExpandEnv replaces ${VAR} references in the connection fields.
func (t *TargetConfig) ExpandEnv() {
	t.Password = ExpandEnvVars(t.Password)
	t.User = ExpandEnvVars(t.User)
	t.Host = ExpandEnvVars(t.Host)
	t.Database = ExpandEnvVars(t.Database)
}

// Clone returns a deep copy of t. Params values are copied shallowly.
func (t *TargetConfig) Clone() *TargetConfig {
	if t == nil {
		return nil
	}
	cp := *t
	cp.Options = maps.Clone(t.Options)
	cp.Params = maps.Clone(t.Params)
	return &cp
}

// MergeTargetConfig overlays the non-zero fields of override on base.
func MergeTargetConfig(base, override *TargetConfig) *TargetConfig {
	if base == nil {
		return override.Clone()
	}
	if override == nil {
		return base.Clone()
	}
	merged := base.Clone()
	if override.Type != "" {
		merged.Type = override.Type
	}
	if override.Database != "" {
		merged.Database = override.Database
	}
	if override.Host != "" {
		merged.Host = override.Host
	}
	if override.Port != 0 {
		merged.Port = override.Port
	}
	if override.User != "" {
		merged.User = override.User
	}
	if override.Password != "" {
		merged.Password = override.Password
	}
	if override.Schema != "" {
		merged.Schema = override.Schema
	}
	if len(override.Options) > 0 {
		if merged.Options == nil {
			merged.Options = make(map[string]string)
		}
		maps.Copy(merged.Options, override.Options)
	}
	if len(override.Params) > 0 {
		if merged.Params == nil {
			merged.Params = make(map[string]any)
		}
		maps.Copy(merged.Params, override.Params)
	}
	return merged
}

var envRef = regexp.MustCompile(`\$\{([^}]+)\}`)

// ExpandEnvVars expands ${VAR} patterns. Unset variables are left as-is.
func ExpandEnvVars(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(match string) string {
		if val := os.Getenv(match[2 : len(match)-1]); val != "" {
			return val
		}
		return match
	})
}
