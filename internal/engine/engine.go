// Dropdeck - Queue Intelligence and Batch-Drop Recommendations for Food Service
// Copyright 2026 Quickserve Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quickserve-labs/dropdeck

// Package engine orchestrates one recommendation cycle: occupancy sample in,
// forecast, inventory advance, per-item decisions, impact estimate, published
// snapshot out.
//
// The engine owns no goroutines. The collector service calls Observe on its
// poll cadence and the API reads the latest snapshot through an atomically
// swapped pointer, so readers never see a half-built cycle.
package engine

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/quickserve-labs/dropdeck/internal/adaptation"
	"github.com/quickserve-labs/dropdeck/internal/decision"
	"github.com/quickserve-labs/dropdeck/internal/forecast"
	"github.com/quickserve-labs/dropdeck/internal/impact"
	"github.com/quickserve-labs/dropdeck/internal/inventory"
	"github.com/quickserve-labs/dropdeck/internal/logging"
	"github.com/quickserve-labs/dropdeck/internal/metrics"
	"github.com/quickserve-labs/dropdeck/internal/profile"
	"github.com/quickserve-labs/dropdeck/internal/store"
	"github.com/quickserve-labs/dropdeck/internal/stream"
)

// ErrInvalidFeedback marks validation failures on feedback submissions. The
// API maps it to 422; nothing is mutated when it is returned.
var ErrInvalidFeedback = errors.New("invalid feedback")

// ErrNotReady is returned while no profile or cycle exists yet.
var ErrNotReady = errors.New("engine not ready")

// Config aggregates the engine component configurations.
type Config struct {
	Forecast forecast.Config
	Decision decision.Config
	Impact   impact.Config
}

// Business is the site identity echoed in every snapshot.
type Business struct {
	BusinessName string  `json:"business_name"`
	BusinessType string  `json:"business_type"`
	Location     string  `json:"location"`
	ServiceModel string  `json:"service_model"`
	AvgTicketUSD float64 `json:"avg_ticket_usd"`
}

// UrgencyThresholds surfaces the shortfall-ratio tiers in the assumptions
// payload.
type UrgencyThresholds struct {
	Medium float64 `json:"medium"`
	High   float64 `json:"high"`
}

// Assumptions documents the operating parameters behind the recommendations.
type Assumptions struct {
	DropCadenceMin      float64           `json:"drop_cadence_min"`
	DecisionIntervalSec int               `json:"decision_interval_sec"`
	CookTimeSec         int               `json:"cook_time_sec"`
	AvgTicketUSD        float64           `json:"avg_ticket_usd"`
	UrgencyThresholds   UrgencyThresholds `json:"urgency_thresholds"`
	Notes               []string          `json:"notes"`
}

// Snapshot is one published recommendation cycle.
type Snapshot struct {
	Timestamp       time.Time           `json:"timestamp"`
	Business        Business            `json:"business"`
	Forecast        forecast.Snapshot   `json:"forecast"`
	Recommendations []decision.Decision `json:"recommendations"`
	Impact          impact.Impact       `json:"impact"`
	Assumptions     Assumptions         `json:"assumptions"`
}

// FeedbackStore persists feedback events. Satisfied by *store.Store.
type FeedbackStore interface {
	InsertFeedback(ctx context.Context, ev store.FeedbackEvent) (store.FeedbackEvent, error)
}

// Engine wires the cycle components together.
type Engine struct {
	cfg        Config
	profiles   *profile.Store
	forecaster *forecast.Forecaster
	tracker    *inventory.Tracker
	decisions  *decision.Engine
	estimator  impact.Estimator
	adapt      *adaptation.Manager
	feedback   FeedbackStore

	mu         sync.Mutex
	latest     *Snapshot
	lastStream *stream.Snapshot
	lastWait   float64
}

// New builds an engine around an already-opened adaptation manager and
// feedback store.
func New(cfg Config, profiles *profile.Store, adapt *adaptation.Manager, feedback FeedbackStore) *Engine {
	return &Engine{
		cfg:        cfg,
		profiles:   profiles,
		forecaster: forecast.New(cfg.Forecast),
		tracker:    inventory.NewTracker(inventory.Config{HorizonMin: cfg.Forecast.HorizonMin}),
		decisions:  decision.NewEngine(cfg.Decision),
		estimator:  impact.NewEstimator(cfg.Impact),
		adapt:      adapt,
		feedback:   feedback,
	}
}

// SetProfile installs a new business profile and resets cycle state that
// depends on the menu: decision locks and inventory seeding. The forecast
// window survives because queue occupancy is menu-independent.
func (e *Engine) SetProfile(p profile.BusinessProfile) (profile.BusinessProfile, error) {
	cleaned, err := e.profiles.Set(p)
	if err != nil {
		return profile.BusinessProfile{}, err
	}

	e.decisions.Reset()
	e.tracker.Reset(cleaned.MenuItems)

	logging.Info().
		Str("business", cleaned.BusinessName).
		Int("menu_items", len(cleaned.MenuItems)).
		Msg("business profile installed")
	return cleaned, nil
}

// ResetProfile reinstalls the built-in sample profile.
func (e *Engine) ResetProfile() (profile.BusinessProfile, error) {
	return e.SetProfile(profile.Sample())
}

// Profile returns the active profile.
func (e *Engine) Profile() (profile.BusinessProfile, bool) {
	return e.profiles.Get()
}

// Ready reports whether the engine has a profile and a published cycle.
func (e *Engine) Ready() bool {
	if _, ok := e.profiles.Get(); !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.latest != nil
}

// Latest returns the most recently published snapshot.
func (e *Engine) Latest() (Snapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.latest == nil {
		return Snapshot{}, false
	}
	return *e.latest, true
}

// LatestStream returns the most recent upstream metrics reading, live or not.
func (e *Engine) LatestStream() (stream.Snapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastStream == nil {
		return stream.Snapshot{}, false
	}
	return *e.lastStream, true
}

// Adaptations returns the learned multiplier table for the summary payload.
func (e *Engine) Adaptations() (map[string]adaptation.State, error) {
	return e.adapt.All()
}

// Observe runs one recommendation cycle against a fresh occupancy reading
// and publishes the resulting snapshot. Returns ok=false when no profile is
// configured yet.
func (e *Engine) Observe(ms stream.Snapshot) (Snapshot, bool) {
	start := time.Now()

	p, ok := e.profiles.Get()
	if !ok {
		metrics.ObserveCycle(start, "skipped")
		return Snapshot{}, false
	}

	ts := ms.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	var snap Snapshot
	if ms.Live() {
		snap = e.liveCycle(ts, ms, p)
		metrics.ObserveCycle(start, "published")
	} else {
		snap = e.fallbackCycle(ts, p)
		metrics.ObserveCycle(start, "fallback")
	}

	metrics.ForecastConfidence.Set(snap.Forecast.Confidence)
	metrics.SetQueueState(string(snap.Forecast.QueueState))

	e.mu.Lock()
	e.latest = &snap
	e.lastStream = &ms
	if ms.Live() {
		e.lastWait = ms.EstimatedWaitMin
	}
	e.mu.Unlock()

	return snap, true
}

func (e *Engine) liveCycle(ts time.Time, ms stream.Snapshot, p profile.BusinessProfile) Snapshot {
	e.forecaster.Observe(forecast.Sample{
		Timestamp:      ts,
		TotalCustomers: ms.TotalCustomers,
	})
	f := e.forecaster.Snapshot(healthFor(ms.Status))

	e.tracker.Sync(p.MenuItems)
	e.tracker.Advance(ts, f.ProjectedCustomers, p.MenuItems)

	decisions := e.decisions.Evaluate(ts, f, p.MenuItems, e.tracker, multiplierSource{e.adapt})
	est := e.estimator.Estimate(decisions, p.MenuItems, f, p.AvgTicketUSD, ms.EstimatedWaitMin)

	return e.assemble(ts, p, f, decisions, est)
}

// fallbackCycle holds the last committed quantities while the stream is down
// so the dashboard keeps showing an actionable number.
func (e *Engine) fallbackCycle(ts time.Time, p profile.BusinessProfile) Snapshot {
	f := forecast.Snapshot{
		HorizonMin: math.Round(e.cfg.Forecast.HorizonMin*10) / 10,
		QueueState: forecast.StateUnavailable,
	}

	e.tracker.Sync(p.MenuItems)
	decisions := e.decisions.EvaluateUnavailable(ts, p.MenuItems, e.tracker)

	e.mu.Lock()
	wait := e.lastWait
	e.mu.Unlock()

	return e.assemble(ts, p, f, decisions, impact.Unavailable(wait))
}

func (e *Engine) assemble(ts time.Time, p profile.BusinessProfile, f forecast.Snapshot, decisions []decision.Decision, est impact.Impact) Snapshot {
	return Snapshot{
		Timestamp: ts,
		Business: Business{
			BusinessName: p.BusinessName,
			BusinessType: p.BusinessType,
			Location:     p.Location,
			ServiceModel: p.ServiceModel,
			AvgTicketUSD: p.AvgTicketUSD,
		},
		Forecast:        f,
		Recommendations: decisions,
		Impact:          est,
		Assumptions: Assumptions{
			DropCadenceMin:      e.cfg.Decision.DropCadenceMin,
			DecisionIntervalSec: int(math.Round(e.cfg.Decision.Interval.Seconds())),
			CookTimeSec:         int(math.Round(e.cfg.Decision.CookTime.Seconds())),
			AvgTicketUSD:        p.AvgTicketUSD,
			UrgencyThresholds: UrgencyThresholds{
				Medium: e.cfg.Decision.MediumShortfall,
				High:   e.cfg.Decision.HighShortfall,
			},
			Notes: []string{
				"Impact figures are directional estimates derived from queue pressure and projected demand.",
				"Recommendations hold for the decision interval once committed.",
			},
		},
	}
}

func healthFor(status stream.Status) forecast.StreamHealth {
	switch status {
	case stream.StatusOK:
		return forecast.HealthOK
	case stream.StatusDegraded:
		return forecast.HealthDegraded
	case stream.StatusInitializing:
		return forecast.HealthInitializing
	default:
		return forecast.HealthError
	}
}

// multiplierSource adapts the adaptation manager to the decision engine's
// Multipliers interface.
type multiplierSource struct {
	adapt *adaptation.Manager
}

func (s multiplierSource) Multiplier(item string) (float64, int) {
	state := s.adapt.Get(item)
	return state.Multiplier, state.FeedbackEvents
}
