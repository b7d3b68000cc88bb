package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SegmentResolutions counts resolutions by outcome:
	// trivial, cache_hit, computed, stale_reuse, error.
	SegmentResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "road_segment_resolutions_total",
			Help: "Road segment resolutions by outcome",
		},
		[]string{"outcome"},
	)

	// ProviderRequests counts routing provider attempts by outcome:
	// success, transient, structural, fatal.
	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routing_provider_requests_total",
			Help: "Routing provider HTTP attempts by outcome",
		},
		[]string{"outcome"},
	)

	// FallbackEstimates counts geometric estimates returned instead of a provider route.
	FallbackEstimates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routing_fallback_estimates_total",
			Help: "Geometric fallback estimates by reason",
		},
		[]string{"reason"},
	)

	// LockAcquisitions counts segment lock attempts by result:
	// acquired, contended, unsupported.
	LockAcquisitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "road_segment_lock_acquisitions_total",
			Help: "Segment lock attempts by result",
		},
		[]string{"result"},
	)

	CascadeRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "location_cascade_runs_total",
		Help: "Coordinate-change cascades started",
	})

	CascadeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "location_cascade_errors_total",
		Help: "Per-segment and per-point failures inside cascades",
	})
)
