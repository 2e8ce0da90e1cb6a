package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	chunkHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leapview_chunk_cache_hits_total",
		Help: "Chunk cache lookups served from memory",
	})

	chunkMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leapview_chunk_cache_misses_total",
		Help: "Chunk cache lookups that had to load from the source",
	})

	chunkEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leapview_chunk_cache_evictions_total",
		Help: "Chunks evicted to stay within capacity",
	})

	// trackedBytes is labelled by kind: data or cache.
	trackedBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "leapview_memory_tracked_bytes",
		Help: "Bytes tracked by memory managers",
	}, []string{"kind"})
)
