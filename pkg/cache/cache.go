// Package cache bounds how many decoded row windows a source keeps in memory.
package cache

import (
	"context"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow"
	"golang.org/x/sync/singleflight"
)

// Defaults for delimited sources.
const (
	DefaultChunkSize = 10_000
	DefaultMaxChunks = 50
)

// ChunkInfo describes a cached chunk to an EvictionPolicy.
type ChunkInfo struct {
	ID         int
	Bytes      int64
	LastAccess uint64
	Hits       int64
}

// EvictionPolicy chooses which chunks to drop.
type EvictionPolicy interface {
	// ChunksToEvict returns up to n chunk ids from chunks.
	ChunksToEvict(chunks []ChunkInfo, n int) []int
}

// LRUPolicy evicts the least recently accessed chunks first.
type LRUPolicy struct{}

// ChunksToEvict implements EvictionPolicy.
func (LRUPolicy) ChunksToEvict(chunks []ChunkInfo, n int) []int {
	sorted := slices.Clone(chunks)
	slices.SortFunc(sorted, func(a, b ChunkInfo) int {
		switch {
		case a.LastAccess < b.LastAccess:
			return -1
		case a.LastAccess > b.LastAccess:
			return 1
		}
		return a.ID - b.ID
	})
	n = min(n, len(sorted))
	ids := make([]int, n)
	for i := range n {
		ids[i] = sorted[i].ID
	}
	return ids
}

type entry struct {
	rec        arrow.Record
	bytes      int64
	lastAccess uint64
	hits       int64
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Chunks    int   `json:"chunks"`
	Bytes     int64 `json:"bytes"`
}

// ChunkCache holds decoded chunks keyed by chunk id. The cache owns one
// reference to every record it holds and releases it on eviction or Clear.
type ChunkCache struct {
	mu        sync.Mutex
	maxChunks int
	entries   map[int]*entry
	tick      uint64
	bytes     int64

	policy EvictionPolicy
	memory *MemoryManager
	logger *slog.Logger
	group  singleflight.Group

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// Option configures a ChunkCache.
type Option func(*ChunkCache)

// WithPolicy replaces the LRU policy.
func WithPolicy(p EvictionPolicy) Option {
	return func(c *ChunkCache) { c.policy = p }
}

// WithMemoryManager reports cached bytes to m.
func WithMemoryManager(m *MemoryManager) Option {
	return func(c *ChunkCache) { c.memory = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *ChunkCache) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewChunkCache creates a cache holding at most maxChunks chunks.
// maxChunks <= 0 uses DefaultMaxChunks.
func NewChunkCache(maxChunks int, opts ...Option) *ChunkCache {
	if maxChunks <= 0 {
		maxChunks = DefaultMaxChunks
	}
	c := &ChunkCache{
		maxChunks: maxChunks,
		entries:   make(map[int]*entry, maxChunks),
		policy:    LRUPolicy{},
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// MaxChunks returns the capacity.
func (c *ChunkCache) MaxChunks() int { return c.maxChunks }

// Get returns the chunk with id, retained for the caller, who must release it.
func (c *ChunkCache) Get(id int) (arrow.Record, bool) {
	rec, ok := c.lookup(id)
	if ok {
		c.hits.Add(1)
		chunkHits.Inc()
	} else {
		c.misses.Add(1)
		chunkMisses.Inc()
	}
	return rec, ok
}

func (c *ChunkCache) lookup(id int) (arrow.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	c.tick++
	e.lastAccess = c.tick
	e.hits++
	e.rec.Retain()
	return e.rec, true
}

// Put stores rec under id, retaining it. When the cache is full and id is
// new, exactly one chunk chosen by the policy is evicted first.
func (c *ChunkCache) Put(id int, rec arrow.Record) {
	rec.Retain()
	size := EstimateRecordBytes(rec)

	c.mu.Lock()
	c.tick++
	if old, ok := c.entries[id]; ok {
		c.dropLocked(id, old)
	} else if len(c.entries) >= c.maxChunks {
		c.evictOneLocked()
	}
	c.entries[id] = &entry{rec: rec, bytes: size, lastAccess: c.tick}
	c.bytes += size
	c.mu.Unlock()

	if c.memory != nil {
		c.memory.ChunkAdded(size)
	}
}

func (c *ChunkCache) evictOneLocked() {
	infos := make([]ChunkInfo, 0, len(c.entries))
	for id, e := range c.entries {
		infos = append(infos, ChunkInfo{ID: id, Bytes: e.bytes, LastAccess: e.lastAccess, Hits: e.hits})
	}
	victims := c.policy.ChunksToEvict(infos, 1)
	if len(victims) == 0 {
		// A policy that declines still may not grow the cache.
		victims = LRUPolicy{}.ChunksToEvict(infos, 1)
	}
	id := victims[0]
	e, ok := c.entries[id]
	if !ok {
		id = infos[0].ID
		e = c.entries[id]
	}
	c.dropLocked(id, e)
	c.evictions.Add(1)
	chunkEvictions.Inc()
	c.logger.Debug("evicted chunk", slog.Int("chunk", id), slog.Int64("bytes", e.bytes))
}

func (c *ChunkCache) dropLocked(id int, e *entry) {
	delete(c.entries, id)
	c.bytes -= e.bytes
	e.rec.Release()
	if c.memory != nil {
		c.memory.ChunkRemoved(e.bytes)
	}
}

// GetOrLoad returns the chunk with id, calling load on a miss and caching
// the result. Concurrent misses for the same id share one load.
func (c *ChunkCache) GetOrLoad(ctx context.Context, id int, load func(context.Context) (arrow.Record, error)) (arrow.Record, error) {
	if rec, ok := c.Get(id); ok {
		return rec, nil
	}
	c.logger.Debug("chunk cache miss", slog.Int("chunk", id))

	_, err, _ := c.group.Do(strconv.Itoa(id), func() (any, error) {
		if _, ok := c.peek(id); ok {
			return nil, nil
		}
		rec, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.Put(id, rec)
		rec.Release()
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	if rec, ok := c.lookup(id); ok {
		return rec, nil
	}
	// Evicted between the shared load and this lookup.
	return load(ctx)
}

func (c *ChunkCache) peek(id int) (*entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	return e, ok
}

// Contains reports whether id is cached without touching its recency.
func (c *ChunkCache) Contains(id int) bool {
	_, ok := c.peek(id)
	return ok
}

// Len returns the number of cached chunks.
func (c *ChunkCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear releases every chunk. Counters are kept.
func (c *ChunkCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, e := range c.entries {
		c.dropLocked(id, e)
	}
	c.bytes = 0
}

// Stats returns a snapshot of the cache counters.
func (c *ChunkCache) Stats() Stats {
	c.mu.Lock()
	n, b := len(c.entries), c.bytes
	c.mu.Unlock()
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Chunks:    n,
		Bytes:     b,
	}
}
