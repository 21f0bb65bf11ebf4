package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline counters. Registered once on the default registry and exposed
// through the API server's /metrics endpoint.
var (
	SourceFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nextday",
		Name:      "source_fetches_total",
		Help:      "Bar fetches attempted against external sources.",
	}, []string{"source", "outcome"})

	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "nextday",
		Name:      "cache_hits_total",
		Help:      "Price series served from the local cache.",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "nextday",
		Name:      "cache_misses_total",
		Help:      "Price series cache misses, including stale and corrupt entries.",
	})

	InstrumentsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nextday",
		Name:      "instruments_skipped_total",
		Help:      "Instruments dropped from a run, by reason.",
	}, []string{"reason"})

	PipelineDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "nextday",
		Name:      "pipeline_duration_seconds",
		Help:      "Wall time of full pipeline runs.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	})
)
