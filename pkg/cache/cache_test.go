package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var intSchema = arrow.NewSchema([]arrow.Field{{Name: "n", Type: arrow.PrimitiveTypes.Int64}}, nil)

func makeRecord(mem memory.Allocator, vals ...int64) arrow.Record {
	b := array.NewRecordBuilder(mem, intSchema)
	defer b.Release()
	b.Field(0).(*array.Int64Builder).AppendValues(vals, nil)
	return b.NewRecord()
}

func TestChunkCache_NeverExceedsCapacity(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	c := NewChunkCache(3)
	for id := range 20 {
		rec := makeRecord(mem, int64(id))
		c.Put(id, rec)
		rec.Release()
		assert.LessOrEqual(t, c.Len(), 3)
	}
	assert.Equal(t, 3, c.Len())
	assert.EqualValues(t, 17, c.Stats().Evictions)
	c.Clear()
	assert.Zero(t, c.Len())
}

func TestChunkCache_EvictsLeastRecentlyUsed(t *testing.T) {
	mem := memory.NewGoAllocator()
	c := NewChunkCache(2)

	for _, id := range []int{1, 2} {
		rec := makeRecord(mem, int64(id))
		c.Put(id, rec)
		rec.Release()
	}
	got, ok := c.Get(1)
	require.True(t, ok)
	got.Release()

	rec := makeRecord(mem, 3)
	c.Put(3, rec)
	rec.Release()

	assert.True(t, c.Contains(1), "recently read chunk survives")
	assert.False(t, c.Contains(2))
	assert.True(t, c.Contains(3))
}

func TestChunkCache_ReplaceDoesNotEvict(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	c := NewChunkCache(2)
	for _, id := range []int{1, 2, 2, 1} {
		rec := makeRecord(mem, int64(id))
		c.Put(id, rec)
		rec.Release()
	}
	assert.Equal(t, 2, c.Len())
	assert.Zero(t, c.Stats().Evictions)
	c.Clear()
}

func TestChunkCache_GetReturnsOwnedRecord(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	c := NewChunkCache(1)
	rec := makeRecord(mem, 7, 8)
	c.Put(0, rec)
	rec.Release()

	got, ok := c.Get(0)
	require.True(t, ok)

	// Evict while the caller still holds the record.
	other := makeRecord(mem, 9)
	c.Put(1, other)
	other.Release()

	assert.Equal(t, int64(8), got.Column(0).(*array.Int64).Value(1))
	got.Release()
	c.Clear()
}

func TestChunkCache_GetOrLoad(t *testing.T) {
	mem := memory.NewGoAllocator()
	c := NewChunkCache(4)

	var loads atomic.Int32
	load := func(context.Context) (arrow.Record, error) {
		loads.Add(1)
		return makeRecord(mem, 1, 2, 3), nil
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := c.GetOrLoad(context.Background(), 5, load)
			if assert.NoError(t, err) {
				assert.EqualValues(t, 3, rec.NumRows())
				rec.Release()
			}
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, loads.Load(), int32(8))
	assert.GreaterOrEqual(t, loads.Load(), int32(1))

	before := loads.Load()
	rec, err := c.GetOrLoad(context.Background(), 5, load)
	require.NoError(t, err)
	rec.Release()
	assert.Equal(t, before, loads.Load(), "cached chunk is not reloaded")

	boom := errors.New("boom")
	_, err = c.GetOrLoad(context.Background(), 6, func(context.Context) (arrow.Record, error) { return nil, boom })
	require.ErrorIs(t, err, boom)
	assert.False(t, c.Contains(6))
}

func TestChunkCache_Metrics(t *testing.T) {
	hits, misses := testutil.ToFloat64(chunkHits), testutil.ToFloat64(chunkMisses)

	c := NewChunkCache(2)
	rec := makeRecord(memory.NewGoAllocator(), 1)
	c.Put(0, rec)
	rec.Release()

	got, ok := c.Get(0)
	require.True(t, ok)
	got.Release()
	_, ok = c.Get(99)
	require.False(t, ok)

	assert.Equal(t, hits+1, testutil.ToFloat64(chunkHits))
	assert.Equal(t, misses+1, testutil.ToFloat64(chunkMisses))
	s := c.Stats()
	assert.EqualValues(t, 1, s.Hits)
	assert.EqualValues(t, 1, s.Misses)
	assert.Equal(t, 1, s.Chunks)
	assert.Positive(t, s.Bytes)
}

type pickHighest struct{}

func (pickHighest) ChunksToEvict(chunks []ChunkInfo, n int) []int {
	best := chunks[0].ID
	for _, c := range chunks {
		best = max(best, c.ID)
	}
	return []int{best}
}

func TestChunkCache_CustomPolicy(t *testing.T) {
	mem := memory.NewGoAllocator()
	c := NewChunkCache(2, WithPolicy(pickHighest{}))
	for _, id := range []int{1, 9, 3} {
		rec := makeRecord(mem, int64(id))
		c.Put(id, rec)
		rec.Release()
	}
	assert.True(t, c.Contains(1))
	assert.False(t, c.Contains(9))
	assert.True(t, c.Contains(3))
}

func TestLRUPolicy(t *testing.T) {
	ids := LRUPolicy{}.ChunksToEvict([]ChunkInfo{
		{ID: 4, LastAccess: 10},
		{ID: 2, LastAccess: 3},
		{ID: 7, LastAccess: 5},
	}, 2)
	assert.Equal(t, []int{2, 7}, ids)
	assert.Empty(t, LRUPolicy{}.ChunksToEvict(nil, 1))
}

func TestMemoryManager(t *testing.T) {
	m := NewMemoryManager(0)
	assert.Equal(t, DefaultMemoryLimit, m.Usage().LimitBytes)

	m.SetLimitMB(1)
	assert.Equal(t, int64(1<<20), m.Usage().LimitBytes)

	m.TrackData(600 << 10)
	assert.False(t, m.ShouldEvict())
	m.ChunkAdded(500 << 10)
	assert.True(t, m.ShouldEvict())

	u := m.Usage()
	assert.Equal(t, 1, u.CachedChunks)
	assert.Equal(t, int64(1100<<10), u.Total())

	m.ChunkRemoved(500 << 10)
	assert.False(t, m.ShouldEvict())
	assert.Zero(t, m.Usage().CachedChunks)
}

func TestChunkCache_ReportsToMemoryManager(t *testing.T) {
	m := NewMemoryManager(0)
	c := NewChunkCache(1, WithMemoryManager(m))
	mem := memory.NewGoAllocator()

	rec := makeRecord(mem, 1, 2, 3, 4)
	c.Put(0, rec)
	rec.Release()
	assert.Equal(t, 1, m.Usage().CachedChunks)
	assert.Equal(t, c.Stats().Bytes, m.Usage().CacheBytes)

	rec = makeRecord(mem, 5)
	c.Put(1, rec)
	rec.Release()
	assert.Equal(t, 1, m.Usage().CachedChunks)

	c.Clear()
	assert.Zero(t, m.Usage().CacheBytes)
}

func TestEstimateRecordBytes(t *testing.T) {
	rec := makeRecord(memory.NewGoAllocator(), 1, 2, 3, 4, 5, 6, 7, 8)
	defer rec.Release()
	assert.GreaterOrEqual(t, EstimateRecordBytes(rec), int64(64))
	assert.Zero(t, EstimateRecordBytes(nil))
}
