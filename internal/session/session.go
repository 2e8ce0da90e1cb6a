// Package session ties a navigation engine to the data source it browses.
//
// A Session is passed explicitly to whatever needs it; there is no global
// instance. Loading a source seeds the engine from the source's navigation
// spec and tells listeners about it.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/leapstack-labs/leapview/pkg/adapter"
	"github.com/leapstack-labs/leapview/pkg/cache"
	"github.com/leapstack-labs/leapview/pkg/navigation"
	"github.com/leapstack-labs/leapview/pkg/source"
	"github.com/leapstack-labs/leapview/pkg/sources/combined"
	"github.com/leapstack-labs/leapview/pkg/sources/delimited"
	"github.com/leapstack-labs/leapview/pkg/sources/table"
)

// ErrNoSource is returned by reads when no source is loaded.
var ErrNoSource = errors.New("no data source loaded")

// Options configures a Session. Zero values select defaults.
type Options struct {
	Logger        *slog.Logger
	Allocator     memory.Allocator
	Workers       int
	MemoryLimitMB int
	ChunkSize     int
	MaxChunks     int
	WindowSize    int

	// Connection is the database table-backed files are read from. When nil
	// a file's Adapter and Path select the database.
	Connection *adapter.Config
}

// Session holds the engine, the active source and shared resources.
type Session struct {
	opts   Options
	logger *slog.Logger
	engine *navigation.Engine
	memory *cache.MemoryManager
	pool   *source.WorkPool
	events *notifier

	mu    sync.RWMutex
	src   source.DataSource
	files *source.FileConfigManager
}

// New creates an empty session.
func New(opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	mem := cache.NewMemoryManager(cache.DefaultMemoryLimit)
	if opts.MemoryLimitMB > 0 {
		mem.SetLimitMB(opts.MemoryLimitMB)
	}
	return &Session{
		opts:   opts,
		logger: opts.Logger,
		engine: navigation.New(opts.Logger),
		memory: mem,
		pool:   source.NewWorkPool(opts.Workers),
		events: newNotifier(),
		files:  source.NewFileConfigManager(),
	}
}

// Engine returns the navigation engine.
func (s *Session) Engine() *navigation.Engine { return s.engine }

// Memory returns the shared memory manager.
func (s *Session) Memory() *cache.MemoryManager { return s.memory }

// Source returns the active source, or nil.
func (s *Session) Source() source.DataSource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.src
}

// Files returns the configs behind the most recently opened source. The
// first file is active.
func (s *Session) Files() *source.FileConfigManager {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.files
}

// Subscribe returns a channel of session events. Call Unsubscribe when done.
func (s *Session) Subscribe() <-chan Event {
	return s.events.subscribe(8)
}

// Unsubscribe stops delivery to ch and closes it.
func (s *Session) Unsubscribe(ch <-chan Event) {
	s.events.mu.RLock()
	var found chan Event
	for c := range s.events.listeners {
		if (<-chan Event)(c) == ch {
			found = c
			break
		}
	}
	s.events.mu.RUnlock()
	if found != nil {
		s.events.unsubscribe(found)
	}
}

func (s *Session) delimitedOptions() delimited.Options {
	return delimited.Options{
		Logger:     s.logger,
		Allocator:  s.opts.Allocator,
		Pool:       s.pool,
		Memory:     s.memory,
		ChunkSize:  s.opts.ChunkSize,
		MaxChunks:  s.opts.MaxChunks,
		WindowSize: s.opts.WindowSize,
	}
}

// OpenSource builds a source for cfgs: one delimited file, one table, or
// several delimited files combined. On success the configs are recorded
// and available from Files.
func (s *Session) OpenSource(ctx context.Context, cfgs ...*source.FileConfig) (source.DataSource, error) {
	src, err := s.openSource(ctx, cfgs)
	if err != nil {
		return nil, err
	}
	files := source.NewFileConfigManager()
	for _, c := range cfgs {
		files.Add(c.Clone())
	}
	s.mu.Lock()
	s.files = files
	s.mu.Unlock()
	return src, nil
}

func (s *Session) openSource(ctx context.Context, cfgs []*source.FileConfig) (source.DataSource, error) {
	switch {
	case len(cfgs) == 0:
		return nil, fmt.Errorf("no files to open")
	case len(cfgs) > 1:
		for _, c := range cfgs {
			if c.Type == source.FileTypeTable {
				return nil, fmt.Errorf("%s: tables cannot be combined", c.Table)
			}
		}
		return combined.Open(ctx, cfgs, combined.Options{Options: s.delimitedOptions(), Parallelism: s.pool.Size()})
	case cfgs[0].Type == source.FileTypeTable:
		o := s.delimitedOptions()
		return table.Open(ctx, cfgs[0], table.Options{
			Logger:     o.Logger,
			Allocator:  o.Allocator,
			Pool:       o.Pool,
			Memory:     o.Memory,
			ChunkSize:  o.ChunkSize,
			MaxChunks:  o.MaxChunks,
			WindowSize: o.WindowSize,
			Connection: s.opts.Connection,
		})
	default:
		return delimited.Open(ctx, cfgs[0], s.delimitedOptions())
	}
}

// PrepareFile fills cfg.DetectedColumns from the file header and, when no
// columns are selected yet, selects all of them. Table-backed files are left
// untouched.
func PrepareFile(ctx context.Context, cfg *source.FileConfig) error {
	if cfg.Type == source.FileTypeTable {
		return nil
	}
	p, err := delimited.ReadPreview(ctx, cfg, 0)
	if err != nil {
		return err
	}
	cfg.DetectedColumns = p.Header
	if len(cfg.SelectedColumns) == 0 {
		cfg.SelectAll()
	}
	return nil
}

// Load makes src the active source. The previous source is closed, the
// engine is reset to src's navigation spec, and listeners get SourceLoaded.
func (s *Session) Load(ctx context.Context, src source.DataSource) error {
	spec, err := src.NavigationSpec(ctx)
	if err != nil {
		return fmt.Errorf("reading navigation spec of %s: %w", src.SourceName(), err)
	}

	s.mu.Lock()
	prev := s.src
	s.src = src
	s.mu.Unlock()

	closeSource(prev, s.logger)
	s.engine.UpdateSpec(spec)

	s.logger.Info("loaded source",
		slog.String("source", src.SourceName()),
		slog.Int("rows", spec.TotalRows),
		slog.String("mode", spec.Mode.String()))
	s.events.broadcast(Event{Kind: SourceLoaded, Source: src.SourceName(), Rows: spec.TotalRows})
	return nil
}

// Clear closes the active source and resets the engine.
func (s *Session) Clear() {
	s.mu.Lock()
	prev := s.src
	s.src = nil
	s.mu.Unlock()
	if prev == nil {
		return
	}
	closeSource(prev, s.logger)
	s.engine.UpdateSpec(navigation.Spec{Mode: navigation.SequentialMode()})
	s.events.broadcast(Event{Kind: SourceCleared, Source: prev.SourceName()})
}

func closeSource(src source.DataSource, logger *slog.Logger) {
	if c, ok := src.(io.Closer); ok {
		if err := c.Close(); err != nil {
			logger.Warn("closing source", slog.String("source", src.SourceName()), slog.Any("error", err))
		}
	}
}

// Current returns the window around the engine's position.
func (s *Session) Current(ctx context.Context) (arrow.Record, error) {
	src := s.Source()
	if src == nil {
		return nil, ErrNoSource
	}
	return src.QueryAt(ctx, s.engine.Context().Position)
}

// Selection returns the engine's range, or the current window when no
// range is set.
func (s *Session) Selection(ctx context.Context) (arrow.Record, error) {
	src := s.Source()
	if src == nil {
		return nil, ErrNoSource
	}
	c := s.engine.Context()
	if c.Range == nil {
		return src.QueryAt(ctx, c.Position)
	}
	return src.QueryRange(ctx, *c.Range)
}

// Close releases the active source and closes every listener.
func (s *Session) Close() {
	s.Clear()
	s.events.closeAll()
}
