package cache

import (
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
)

// DefaultMemoryLimit is 1 GiB.
const DefaultMemoryLimit int64 = 1 << 30

// Usage is a snapshot of tracked memory.
type Usage struct {
	DataBytes    int64 `json:"data_bytes"`
	CacheBytes   int64 `json:"cache_bytes"`
	CachedChunks int   `json:"cached_chunks"`
	LimitBytes   int64 `json:"limit_bytes"`
}

// Total returns data plus cache bytes.
func (u Usage) Total() int64 { return u.DataBytes + u.CacheBytes }

// MemoryManager tracks how much memory loaded data and cached chunks hold.
// It only advises; callers decide what to free.
type MemoryManager struct {
	mu     sync.Mutex
	limit  int64
	data   int64
	cache  int64
	chunks int
}

// NewMemoryManager creates a manager with the given limit in bytes.
// A limit <= 0 uses DefaultMemoryLimit.
func NewMemoryManager(limit int64) *MemoryManager {
	if limit <= 0 {
		limit = DefaultMemoryLimit
	}
	return &MemoryManager{limit: limit}
}

// SetLimitMB changes the limit, expressed in mebibytes.
func (m *MemoryManager) SetLimitMB(mb int) {
	if mb <= 0 {
		return
	}
	m.mu.Lock()
	m.limit = int64(mb) << 20
	m.mu.Unlock()
}

// TrackData adjusts the data total by delta bytes.
func (m *MemoryManager) TrackData(delta int64) {
	m.mu.Lock()
	m.data = max(m.data+delta, 0)
	m.mu.Unlock()
	trackedBytes.WithLabelValues("data").Add(float64(delta))
}

// ChunkAdded records a cached chunk of n bytes.
func (m *MemoryManager) ChunkAdded(n int64) {
	m.mu.Lock()
	m.cache += n
	m.chunks++
	m.mu.Unlock()
	trackedBytes.WithLabelValues("cache").Add(float64(n))
}

// ChunkRemoved records that a cached chunk of n bytes was dropped.
func (m *MemoryManager) ChunkRemoved(n int64) {
	m.mu.Lock()
	m.cache = max(m.cache-n, 0)
	m.chunks = max(m.chunks-1, 0)
	m.mu.Unlock()
	trackedBytes.WithLabelValues("cache").Sub(float64(n))
}

// ShouldEvict reports whether tracked memory exceeds the limit.
func (m *MemoryManager) ShouldEvict() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data+m.cache > m.limit
}

// Usage returns the current totals.
func (m *MemoryManager) Usage() Usage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Usage{
		DataBytes:    m.data,
		CacheBytes:   m.cache,
		CachedChunks: m.chunks,
		LimitBytes:   m.limit,
	}
}

// EstimateRecordBytes estimates the memory held by a record's buffers.
func EstimateRecordBytes(r arrow.Record) int64 {
	if r == nil {
		return 0
	}
	var n int64
	for _, c := range r.Columns() {
		n += arrayBytes(c.Data())
	}
	return n
}

func arrayBytes(d arrow.ArrayData) int64 {
	var n int64
	for _, b := range d.Buffers() {
		if b != nil {
			n += int64(b.Len())
		}
	}
	for _, child := range d.Children() {
		n += arrayBytes(child)
	}
	return n
}
