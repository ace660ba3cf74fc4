package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every muzzle collector. Binaries expose or push it.
var Registry = prometheus.NewRegistry()

var (
	MatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "muzzle_match_total",
			Help: "Number of reference checks by instrumentation module and verdict.",
		},
		[]string{"module", "result"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "muzzle_cache_hits_total",
			Help: "Number of verdicts served from the per-loader result cache.",
		},
		[]string{"module"},
	)
	CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "muzzle_cache_misses_total",
			Help: "Number of verdicts computed because the loader was not cached yet.",
		},
		[]string{"module"},
	)
	MismatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "muzzle_mismatches_total",
			Help: "Number of mismatches reported by exhaustive checks, by kind.",
		},
		[]string{"module", "kind"},
	)
	MatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "muzzle_match_duration_seconds",
			Help:    "Time taken to compute an uncached verdict.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"module"},
	)
	TypeResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "muzzle_type_resolutions_total",
			Help: "Number of class descriptions read from class paths, by outcome.",
		},
		[]string{"result"},
	)
)

// Resolution outcomes.
const (
	ResultResolved   = "resolved"
	ResultUnresolved = "unresolved"
	ResultFailed     = "failed"
)

func init() {
	Registry.MustRegister(
		MatchTotal,
		CacheHitsTotal,
		CacheMissesTotal,
		MismatchesTotal,
		MatchDuration,
		TypeResolutionsTotal,
	)
}
