// Dropdeck - Queue Intelligence and Batch-Drop Recommendations for Food Service
// Copyright 2026 Quickserve Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quickserve-labs/dropdeck

// Package metrics provides Prometheus instrumentation for Dropdeck:
// recommendation cycle latency, decision churn, feedback volume, outcome
// evaluation, upstream stream health, and API throughput.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Recommendation cycle metrics
	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dropdeck_cycle_duration_seconds",
			Help:    "Duration of a full recommendation recompute cycle",
			Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05},
		},
	)

	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dropdeck_cycles_total",
			Help: "Total recommendation cycles by outcome",
		},
		[]string{"result"}, // "published", "fallback", "skipped"
	)

	DecisionsCommitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dropdeck_decisions_committed_total",
			Help: "Total per-item decisions committed at lock boundaries",
		},
		[]string{"item", "urgency"},
	)

	SnapshotAge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dropdeck_snapshot_age_seconds",
			Help: "Age of the currently published recommendation snapshot",
		},
	)

	ForecastConfidence = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dropdeck_forecast_confidence",
			Help: "Confidence of the latest forecast in [0,1]",
		},
	)

	QueueStateInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dropdeck_queue_state",
			Help: "Current queue state (1 for the active state, 0 otherwise)",
		},
		[]string{"state"}, // "surging", "stable", "falling", "unavailable"
	)

	// Feedback & adaptation metrics
	FeedbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dropdeck_feedback_total",
			Help: "Total feedback submissions by action",
		},
		[]string{"action"}, // "accept", "override", "ignore"
	)

	FeedbackRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dropdeck_feedback_rejected_total",
			Help: "Total feedback submissions rejected by validation",
		},
	)

	OutcomeEvaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dropdeck_outcome_evaluations_total",
			Help: "Total feedback outcome evaluations by status",
		},
		[]string{"status"}, // "evaluated", "insufficient_data"
	)

	ItemMultiplier = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dropdeck_item_multiplier",
			Help: "Current learned demand multiplier per menu item",
		},
		[]string{"item"},
	)

	// Upstream stream metrics
	StreamFetchErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dropdeck_stream_fetch_errors_total",
			Help: "Total failed fetches from the upstream metrics source",
		},
	)

	StreamBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dropdeck_stream_breaker_open",
			Help: "1 when the upstream circuit breaker is open",
		},
	)

	// Analytics store metrics
	StoreQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dropdeck_store_query_duration_seconds",
			Help:    "Duration of analytics store queries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dropdeck_store_errors_total",
			Help: "Total analytics store errors",
		},
		[]string{"operation"},
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dropdeck_api_requests_total",
			Help: "Total API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dropdeck_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint"},
	)

	// Live hub metrics
	LiveClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dropdeck_live_clients",
			Help: "Current number of connected live dashboard clients",
		},
	)
)

// ObserveCycle records a completed recompute cycle.
func ObserveCycle(start time.Time, result string) {
	CycleDuration.Observe(time.Since(start).Seconds())
	CyclesTotal.WithLabelValues(result).Inc()
}

// ObserveAPIRequest records an API request with its response code.
func ObserveAPIRequest(method, endpoint string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// SetQueueState flips the queue state gauge vector so exactly one state
// label carries 1.
func SetQueueState(state string) {
	for _, s := range []string{"surging", "stable", "falling", "unavailable"} {
		v := 0.0
		if s == state {
			v = 1.0
		}
		QueueStateInfo.WithLabelValues(s).Set(v)
	}
}
