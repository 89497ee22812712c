// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics declares the Prometheus collectors for generation and
// expansion. Collectors register with the default registry on init.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "image_tree"

var (
	// NodesTotal counts finished orchestration runs.
	// Labels: status (accepted, failed)
	NodesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "nodes_total",
			Help:      "Total number of orchestration runs by terminal status",
		},
		[]string{"status"},
	)

	// AttemptsTotal counts generation attempts.
	// Labels: outcome (accepted, retrying, exhausted, backend_failed, fatal)
	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "attempts_total",
			Help:      "Total number of generation attempts by outcome",
		},
		[]string{"outcome"},
	)

	// RunDuration tracks the wall time of one orchestration run.
	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "run_duration_seconds",
			Help:      "Duration of orchestration runs in seconds",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~34m
		},
	)

	// QualityScore records every evaluated score.
	QualityScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "quality",
			Name:      "score",
			Help:      "Quality scores returned by the advisory service",
			Buckets:   prometheus.LinearBuckets(0, 1, 11),
		},
	)

	// ActiveRuns is the number of orchestration runs holding a worker slot.
	ActiveRuns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tree",
			Name:      "active_runs",
			Help:      "Orchestration runs currently in progress",
		},
	)

	// ExpansionsTotal counts expand calls.
	// Labels: result (ok, empty, cancelled, error)
	ExpansionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tree",
			Name:      "expansions_total",
			Help:      "Total number of node expansions by result",
		},
		[]string{"result"},
	)

	// BackendRequests counts synthesis backend calls.
	// Labels: op (submit, status, fetch), result (ok, error)
	BackendRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "synthesis",
			Name:      "requests_total",
			Help:      "Total number of synthesis backend requests",
		},
		[]string{"op", "result"},
	)

	// AdvisoryRequests counts advisory gateway calls.
	// Labels: op (keywords, score), result (ok, unavailable, invalid, cached)
	AdvisoryRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "advisory",
			Name:      "requests_total",
			Help:      "Total number of advisory requests by result",
		},
		[]string{"op", "result"},
	)
)

// Result maps an error to the ok/error label pair used by request counters.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
