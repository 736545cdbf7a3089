// Dropdeck - Queue Intelligence and Batch-Drop Recommendations for Food Service
// Copyright 2026 Quickserve Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quickserve-labs/dropdeck

// Package forecast turns a rolling window of queue occupancy samples into a
// short-horizon demand projection.
//
// The forecaster is deliberately a deterministic heuristic, not a demand
// model: trend is the slope across the retained window, the projection is a
// linear extrapolation over the configured horizon, and confidence degrades
// with sparse windows or an unhealthy upstream stream. It never fails;
// insufficient data yields a stable, low-confidence snapshot.
package forecast

import (
	"math"
	"sync"
	"time"
)

// QueueState classifies the demand trend.
type QueueState string

const (
	// StateSurging indicates the queue is growing faster than the surge threshold.
	StateSurging QueueState = "surging"
	// StateStable indicates the queue is roughly flat.
	StateStable QueueState = "stable"
	// StateFalling indicates the queue is draining faster than the fall threshold.
	StateFalling QueueState = "falling"
	// StateUnavailable is reported only when the upstream stream is down
	// and no live forecast can be produced.
	StateUnavailable QueueState = "unavailable"
)

// StreamHealth describes upstream sample quality as reported by the metrics
// collaborator.
type StreamHealth string

const (
	HealthOK           StreamHealth = "ok"
	HealthDegraded     StreamHealth = "degraded"
	HealthError        StreamHealth = "error"
	HealthInitializing StreamHealth = "initializing"
)

// Sample is one aggregate occupancy reading.
type Sample struct {
	Timestamp      time.Time
	TotalCustomers float64
}

// Snapshot is the forecaster output for one cycle. Immutable once computed.
type Snapshot struct {
	HorizonMin         float64    `json:"horizon_min"`
	QueueState         QueueState `json:"queue_state"`
	TrendPerMin        float64    `json:"trend_customers_per_min"`
	CurrentCustomers   float64    `json:"current_customers"`
	ProjectedCustomers float64    `json:"projected_customers"`
	Confidence         float64    `json:"confidence"`
}

// Config tunes the forecaster. See config.ForecastConfig for defaults.
type Config struct {
	WindowSize        int
	HorizonMin        float64
	SurgeThreshold    float64
	FallThreshold     float64
	BaseConfidence    float64
	MaxConfidence     float64
	FullWindowSamples int
	DegradedPenalty   float64
}

// Forecaster retains a bounded sample window and derives forecast snapshots
// from it. Safe for concurrent use.
type Forecaster struct {
	cfg Config

	mu     sync.Mutex
	window []Sample
}

// New creates a forecaster with the given configuration.
func New(cfg Config) *Forecaster {
	if cfg.WindowSize < 2 {
		cfg.WindowSize = 2
	}
	if cfg.FullWindowSamples < 1 {
		cfg.FullWindowSamples = 1
	}
	return &Forecaster{
		cfg:    cfg,
		window: make([]Sample, 0, cfg.WindowSize),
	}
}

// Observe appends a sample, evicting the oldest once the window is full.
// Samples are expected in time order; out-of-order samples are dropped so a
// collaborator clock hiccup cannot produce a negative span.
func (f *Forecaster) Observe(s Sample) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if n := len(f.window); n > 0 && !s.Timestamp.After(f.window[n-1].Timestamp) {
		return
	}

	if len(f.window) == cap(f.window) {
		copy(f.window, f.window[1:])
		f.window = f.window[:len(f.window)-1]
	}
	f.window = append(f.window, s)
}

// WindowLen returns the current number of retained samples.
func (f *Forecaster) WindowLen() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.window)
}

// Reset drops all retained samples.
func (f *Forecaster) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.window = f.window[:0]
}

// Snapshot computes the forecast for the current window. The health of the
// upstream stream only affects confidence, never correctness: a degraded
// stream lowers confidence, and an empty window degrades to a stable
// zero-trend snapshot.
func (f *Forecaster) Snapshot(health StreamHealth) Snapshot {
	f.mu.Lock()
	window := make([]Sample, len(f.window))
	copy(window, f.window)
	f.mu.Unlock()

	var current float64
	if len(window) > 0 {
		current = window[len(window)-1].TotalCustomers
	}

	trend := trendPerMin(window)
	projected := math.Max(0, current+trend*f.cfg.HorizonMin)

	return Snapshot{
		HorizonMin:         round1(f.cfg.HorizonMin),
		QueueState:         f.classify(trend),
		TrendPerMin:        round2(trend),
		CurrentCustomers:   round1(current),
		ProjectedCustomers: round1(projected),
		Confidence:         f.confidence(len(window), health),
	}
}

// trendPerMin is the slope across the whole window in customers per minute.
func trendPerMin(window []Sample) float64 {
	if len(window) < 2 {
		return 0
	}

	oldest := window[0]
	newest := window[len(window)-1]
	spanMin := newest.Timestamp.Sub(oldest.Timestamp).Minutes()
	if spanMin <= 0 {
		return 0
	}

	return (newest.TotalCustomers - oldest.TotalCustomers) / spanMin
}

func (f *Forecaster) classify(trend float64) QueueState {
	switch {
	case trend >= f.cfg.SurgeThreshold:
		return StateSurging
	case trend <= f.cfg.FallThreshold:
		return StateFalling
	default:
		return StateStable
	}
}

// confidence starts at the base value, grows toward the maximum as the
// window fills, and is penalized while the stream is degraded. Always
// clamped to [0, 1].
func (f *Forecaster) confidence(samples int, health StreamHealth) float64 {
	windowFactor := math.Min(1, float64(samples)/float64(f.cfg.FullWindowSamples))
	c := f.cfg.BaseConfidence + (f.cfg.MaxConfidence-f.cfg.BaseConfidence)*windowFactor

	if health != HealthOK {
		c -= f.cfg.DegradedPenalty
	}

	return round2(clamp(c, 0, 1))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

func round2(v float64) float64 { return math.Round(v*100) / 100 }
