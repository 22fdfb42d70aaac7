package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Scheduler metrics - Track the resolution loop
var (
	TicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oracle_ticks_total",
		Help: "Total number of scheduler ticks executed",
	})

	PendingCalls = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "oracle_pending_calls",
		Help: "Calls past their deadline reported by the feed on the last tick",
	})

	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "oracle_tick_duration_seconds",
		Help:    "Time taken to process a full scheduler tick",
		Buckets: prometheus.DefBuckets,
	})

	AttemptsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_attempts_started_total",
			Help: "Resolution attempts started by role",
		},
		[]string{"role"},
	)
)

// Resolution metrics - Track attempt outcomes
var (
	Resolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_resolutions_total",
			Help: "Resolution attempts by result (submitted, already_resolved, no_consensus, failed)",
		},
		[]string{"result"},
	)

	ConsensusOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_consensus_outcomes_total",
			Help: "Agreed outcomes reached by this node as coordinator",
		},
		[]string{"outcome"},
	)

	SignaturesCollected = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "oracle_signatures_collected",
		Help:    "Number of valid signatures gathered per attempt",
		Buckets: []float64{0, 1, 2, 3},
	})
)

// Peer metrics - Track node-to-node RPC
var (
	PeerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_peer_requests_total",
			Help: "Outbound peer RPC requests by method and status",
		},
		[]string{"method", "status"},
	)

	PeerRequestsServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_peer_requests_served_total",
			Help: "Inbound peer RPC requests served by method",
		},
		[]string{"method"},
	)

	SignaturesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_signatures_rejected_total",
			Help: "Peer signatures dropped from the quorum by reason",
		},
		[]string{"reason"},
	)
)

// Market data metrics
var (
	ProviderErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_provider_errors_total",
			Help: "Price provider failures by provider",
		},
		[]string{"provider"},
	)

	ValidationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oracle_validation_duration_seconds",
			Help:    "Time taken to validate a call by category",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"category"},
	)
)

// Dedupe cache metrics
var (
	DedupeEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "oracle_dedupe_entries",
		Help: "Calls currently remembered as resolved",
	})

	DedupeEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oracle_dedupe_evictions_total",
		Help: "Resolved calls evicted from the bounded dedupe cache",
	})

	InFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "oracle_attempts_in_flight",
		Help: "Resolution attempts currently running on this node",
	})
)
