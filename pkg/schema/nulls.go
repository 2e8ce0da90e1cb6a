package schema

import (
	"slices"
	"strings"
)

// NullConfig decides which raw strings count as missing values.
type NullConfig struct {
	Patterns      []string `yaml:"patterns" json:"patterns"`
	Trim          bool     `yaml:"trim" json:"trim"`
	CaseSensitive bool     `yaml:"case_sensitive" json:"case_sensitive"`
}

// DefaultNullPatterns are the sentinels treated as null unless configured otherwise.
var DefaultNullPatterns = []string{"", "-", "N/A", "n/a", "null", "NULL", "None", "none"}

// DefaultNullConfig trims values and matches the default patterns case-insensitively.
func DefaultNullConfig() NullConfig {
	return NullConfig{
		Patterns: slices.Clone(DefaultNullPatterns),
		Trim:     true,
	}
}

// IsNull reports whether value matches one of the configured patterns.
func (c NullConfig) IsNull(value string) bool {
	v := value
	if c.Trim {
		v = strings.TrimSpace(v)
	}
	for _, p := range c.Patterns {
		if c.CaseSensitive {
			if v == p {
				return true
			}
		} else if strings.EqualFold(v, p) {
			return true
		}
	}
	return false
}

// AddPattern adds p unless it is already present.
func (c *NullConfig) AddPattern(p string) {
	if !slices.Contains(c.Patterns, p) {
		c.Patterns = append(c.Patterns, p)
	}
}

// RemovePattern drops every occurrence of p.
func (c *NullConfig) RemovePattern(p string) {
	c.Patterns = slices.DeleteFunc(c.Patterns, func(s string) bool { return s == p })
}

// ClearPatterns removes all patterns so that no value is treated as null.
func (c *NullConfig) ClearPatterns() {
	c.Patterns = nil
}
