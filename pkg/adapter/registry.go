package adapter

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
)

// Factory builds an unconnected adapter. A nil logger discards output.
type Factory func(*slog.Logger) Adapter

// drivers maps lower-cased adapter names to their factories. Adapter
// packages fill it from init, so importing a driver package is enough to
// make it available to sources and the CLI.
var drivers = struct {
	sync.RWMutex
	byName map[string]Factory
}{byName: map[string]Factory{}}

// Register makes an adapter available under name. Registering the same
// name twice replaces the earlier factory.
func Register(name string, factory Factory) {
	drivers.Lock()
	drivers.byName[strings.ToLower(name)] = factory
	drivers.Unlock()
}

// Get looks up the factory registered under name.
func Get(name string) (Factory, bool) {
	drivers.RLock()
	defer drivers.RUnlock()
	f, ok := drivers.byName[strings.ToLower(name)]
	return f, ok
}

// IsRegistered reports whether an adapter named name has been imported.
func IsRegistered(name string) bool {
	_, ok := Get(name)
	return ok
}

// ListAdapters returns the registered names in lexical order.
func ListAdapters() []string {
	drivers.RLock()
	defer drivers.RUnlock()
	return slices.Sorted(maps.Keys(drivers.byName))
}

var errNoAdapterType = errors.New("adapter type not specified")

// NewAdapter returns an unconnected adapter for cfg.Type. Call Connect on
// the result before issuing queries.
func NewAdapter(cfg Config, logger *slog.Logger) (Adapter, error) {
	if cfg.Type == "" {
		return nil, errNoAdapterType
	}
	factory, ok := Get(cfg.Type)
	if !ok {
		return nil, &UnknownAdapterError{Type: cfg.Type, Available: ListAdapters()}
	}
	return factory(logger), nil
}

// UnknownAdapterError names an adapter type nobody registered.
type UnknownAdapterError struct {
	Type      string
	Available []string
}

func (e *UnknownAdapterError) Error() string {
	available := "none"
	if len(e.Available) > 0 {
		available = strings.Join(e.Available, ", ")
	}
	return fmt.Sprintf("unknown adapter type %q (registered: %s); set the dataset manifest target or pass --adapter", e.Type, available)
}
