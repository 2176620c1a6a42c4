package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Search pipeline counters and histograms, partitioned by agent.

var (
	SearchCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "walletsearch",
		Subsystem: "agent",
		Name:      "calls_total",
		Help:      "Search service calls by agent and outcome",
	}, []string{"agent", "outcome"})

	SearchCallLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "walletsearch",
		Subsystem: "agent",
		Name:      "call_duration_seconds",
		Help:      "Search service call duration",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
	}, []string{"agent"})

	RateLimitRejections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "walletsearch",
		Subsystem: "ratelimit",
		Name:      "rejections_total",
		Help:      "Quota rejections reported by the search service",
	})

	RateLimitWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "walletsearch",
		Subsystem: "ratelimit",
		Name:      "window_wait_seconds",
		Help:      "Time spent waiting for the request window",
		Buckets:   []float64{0.1, 1, 5, 15, 30, 60},
	})

	VerdictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "walletsearch",
		Subsystem: "search",
		Name:      "verdicts_total",
		Help:      "Verdicts produced by confidence and degradation",
	}, []string{"confidence", "degraded"})

	BatchesCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "walletsearch",
		Subsystem: "search",
		Name:      "sub_batches_total",
		Help:      "Completed sub-batches",
	})

	CheckpointSaves = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "walletsearch",
		Subsystem: "service",
		Name:      "checkpoint_saves_total",
		Help:      "Checkpoint writes by result",
	}, []string{"result"})

	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "walletsearch",
		Subsystem: "service",
		Name:      "runs_total",
		Help:      "Search runs by final status",
	}, []string{"status"})
)
