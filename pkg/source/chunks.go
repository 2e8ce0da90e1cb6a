package source

import (
	"context"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// ChunkStore hands out fixed-size chunks of rows, loading missing ones.
// Returned records are retained for the caller.
type ChunkStore interface {
	GetOrLoad(ctx context.Context, id int, load func(context.Context) (arrow.Record, error)) (arrow.Record, error)
}

// ChunkLoader decodes chunk id from the backend.
type ChunkLoader func(ctx context.Context, id int) (arrow.Record, error)

// ReadChunked assembles rows [start, end) of s from chunks of size rows,
// loading through store.
func ReadChunked(ctx context.Context, mem memory.Allocator, s *arrow.Schema, store ChunkStore, size, start, end int, load ChunkLoader) (arrow.Record, error) {
	if start >= end {
		return EmptyRecord(mem, s), nil
	}
	var parts []arrow.Record
	defer func() {
		for _, p := range parts {
			p.Release()
		}
	}()
	for id := start / size; id*size < end; id++ {
		chunk, err := store.GetOrLoad(ctx, id, func(ctx context.Context) (arrow.Record, error) {
			return load(ctx, id)
		})
		if err != nil {
			return nil, err
		}
		base := id * size
		lo := min(max(start-base, 0), int(chunk.NumRows()))
		hi := min(end-base, int(chunk.NumRows()))
		parts = append(parts, chunk.NewSlice(int64(lo), int64(hi)))
		chunk.Release()
	}
	return Concat(mem, s, parts)
}
