package config

import "strings"

// Default file locations and names.
const (
	ConfigFileName    = "leapview.yaml"
	ConfigFileNameAlt = "leapview.yml"
	DefaultStateFile  = ".leapview/state.db"
	// ManifestSuffix marks a dataset manifest file.
	ManifestSuffix = ".leapview.yaml"
)

var defaultSchemas = map[string]string{
	"duckdb":   "main",
	"sqlite":   "main",
	"postgres": "public",
}

// DefaultSchemaForType returns the schema tables live in when none is
// configured. Unknown types fall back to "main".
func DefaultSchemaForType(dbType string) string {
	if s, ok := defaultSchemas[strings.ToLower(dbType)]; ok {
		return s
	}
	return "main"
}

// ApplyTargetDefaults fills in the schema and, for postgres, the port.
func ApplyTargetDefaults(t *TargetConfig) {
	if t == nil {
		return
	}
	t.Type = strings.ToLower(t.Type)
	if t.Schema == "" {
		t.Schema = DefaultSchemaForType(t.Type)
	}
	if t.Type == "postgres" && t.Port == 0 {
		t.Port = 5432
	}
}
