package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	ParsingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "apidoc_parsing_seconds",
		Help:    "Time spent parsing a source module.",
		Buckets: prometheus.DefBuckets,
	})

	BuildDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "apidoc_build_phase_seconds",
		Help:    "Time spent in a pipeline phase.",
		Buckets: prometheus.DefBuckets,
	}, []string{"phase"})

	ModulesBuilt = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apidoc_modules_built_total",
		Help: "Total number of modules built, by origin (source or binary).",
	}, []string{"origin"})

	DocumentablesTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "apidoc_documentables_total",
		Help: "Number of entities in the registry after the last build.",
	})

	WarningsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apidoc_warnings_total",
		Help: "Total number of build warnings, by category.",
	}, []string{"category"})

	ResolveCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "apidoc_resolve_cache_hits_total",
		Help: "Total number of memoized name resolutions served.",
	})

	InventoryFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apidoc_inventory_fetches_total",
		Help: "Total number of external inventory loads, by outcome.",
	}, []string{"outcome"})

	WatcherEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "apidoc_watcher_events_total",
		Help: "Total number of file system events received by the watcher.",
	})

	RebuildsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "apidoc_rebuilds_total",
		Help: "Total number of watch-mode rebuilds.",
	})
)
