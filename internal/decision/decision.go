// Dropdeck - Queue Intelligence and Batch-Drop Recommendations for Food Service
// Copyright 2026 Quickserve Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quickserve-labs/dropdeck

// Package decision computes per-item batch-drop recommendations and holds
// them locked for the decision cadence.
//
// Each item runs an explicit two-state machine: Unlocked cycles recompute
// demand against on-hand inventory, commit a drop quantity, and lock it for
// the configured interval; Locked cycles only republish the committed
// numbers with a decremented countdown. Only interval expiry unlocks an item
// so operators always see a number that holds for a fixed, auditable window.
package decision

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/quickserve-labs/dropdeck/internal/forecast"
	"github.com/quickserve-labs/dropdeck/internal/metrics"
	"github.com/quickserve-labs/dropdeck/internal/profile"
)

// Urgency classifies how badly an item needs production.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// Config tunes the decision engine.
type Config struct {
	// Interval is the decision lock cadence.
	Interval time.Duration
	// DropCadenceMin is the nominal fryer drop cadence; the coverage window
	// is the larger of this and the interval.
	DropCadenceMin float64
	// CookTime is how long a committed drop spends in the fryer.
	CookTime time.Duration
	// HorizonMin mirrors the forecaster horizon for window demand display.
	HorizonMin float64
	// MediumShortfall and HighShortfall are the monotonic urgency
	// thresholds on shortfall ratio, HighShortfall > MediumShortfall.
	MediumShortfall float64
	HighShortfall   float64
}

// Decision is one item's recommendation for the current cycle. Field names
// are part of the API contract.
type Decision struct {
	Item                      string  `json:"item"`
	Label                     string  `json:"label"`
	UnitLabel                 string  `json:"unit_label"`
	RecommendedUnits          int     `json:"recommended_units"`
	BaselineUnits             int     `json:"baseline_units"`
	MaxUnitSize               int     `json:"max_unit_size"`
	DeltaUnits                int     `json:"delta_units"`
	ReadyInventoryUnits       int     `json:"ready_inventory_units"`
	FryerInventoryUnits       int     `json:"fryer_inventory_units"`
	ForecastWindowDemandUnits float64 `json:"forecast_window_demand_units"`
	DecisionLocked            bool    `json:"decision_locked"`
	NextDecisionInSec         int     `json:"next_decision_in_sec"`
	FeedbackMultiplier        float64 `json:"feedback_multiplier"`
	FeedbackEvents            int     `json:"feedback_events"`
	Urgency                   Urgency `json:"urgency"`
	Reason                    string  `json:"reason"`
}

// Inventory is the on-hand state consulted per cycle. Enqueue schedules the
// fryer lot for a committed positive recommendation.
type Inventory interface {
	OnHand(item string) (ready float64, fryer int)
	FryerReadyBefore(item string, deadline time.Time) int
	Enqueue(item string, units int, readyAt time.Time)
}

// Multipliers resolves the learned per-item demand multiplier.
type Multipliers interface {
	Multiplier(item string) (value float64, feedbackEvents int)
}

type itemLock struct {
	deadline  time.Time
	committed Decision
}

// Engine owns the per-item lock state. Safe for concurrent use; Evaluate is
// expected to be called from a single recompute loop, reads may come from
// anywhere.
type Engine struct {
	cfg Config

	mu    sync.Mutex
	locks map[string]*itemLock
}

// NewEngine creates a decision engine.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		cfg:   cfg,
		locks: make(map[string]*itemLock),
	}
}

// Reset drops all lock state. Called when the business profile is replaced.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.locks = make(map[string]*itemLock)
}

// Committed returns the currently locked decision for an item, if any. The
// feedback path uses this to resolve recommended_units at submission time.
func (e *Engine) Committed(item string) (Decision, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	lock, ok := e.locks[item]
	if !ok {
		return Decision{}, false
	}
	return lock.committed, true
}

// UrgencyFor maps a shortfall ratio onto an urgency tier. Monotonic
// non-decreasing in the ratio.
func (e *Engine) UrgencyFor(shortfallRatio float64) Urgency {
	switch {
	case shortfallRatio >= e.cfg.HighShortfall:
		return UrgencyHigh
	case shortfallRatio >= e.cfg.MediumShortfall:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}

// windowMin is the coverage window for one committed decision.
func (e *Engine) windowMin() float64 {
	return math.Max(e.cfg.DropCadenceMin, e.cfg.Interval.Minutes())
}

// Evaluate produces the cycle's decisions. Unlocked items recompute and
// commit; locked items republish with an updated countdown and refreshed
// inventory display. Committed positive drops are enqueued into the fryer.
func (e *Engine) Evaluate(ts time.Time, f forecast.Snapshot, items []profile.MenuItem, inv Inventory, mult Multipliers) []Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	decisions := make([]Decision, 0, len(items))
	for _, item := range items {
		lock, ok := e.locks[item.Key]
		if ok && ts.Before(lock.deadline) {
			decisions = append(decisions, e.republish(ts, lock, item, inv))
			continue
		}
		decisions = append(decisions, e.commit(ts, f, item, inv, mult))
	}

	// Items that left the menu drop their lock state.
	active := make(map[string]struct{}, len(items))
	for _, item := range items {
		active[item.Key] = struct{}{}
	}
	for key := range e.locks {
		if _, ok := active[key]; !ok {
			delete(e.locks, key)
		}
	}

	return decisions
}

// republish re-emits a locked decision. Recommended units, baseline, urgency
// and multiplier stay frozen; only the countdown and inventory display move.
func (e *Engine) republish(ts time.Time, lock *itemLock, item profile.MenuItem, inv Inventory) Decision {
	d := lock.committed

	remaining := int(math.Ceil(lock.deadline.Sub(ts).Seconds()))
	if remaining < 0 {
		remaining = 0
	}
	d.DecisionLocked = true
	d.NextDecisionInSec = remaining

	ready, fryer := inv.OnHand(item.Key)
	d.ReadyInventoryUnits = int(math.Round(ready))
	d.FryerInventoryUnits = fryer
	d.Reason = fmt.Sprintf(
		"Decision locked on %ds cadence; next refresh in %ds. Inventory ready %s, fryer %s.",
		int(math.Round(e.cfg.Interval.Seconds())), remaining,
		qty(d.ReadyInventoryUnits, item.UnitLabel), qty(fryer, item.UnitLabel))

	return d
}

// commit recomputes the item's decision and locks it for the interval.
func (e *Engine) commit(ts time.Time, f forecast.Snapshot, item profile.MenuItem, inv Inventory, mult Multipliers) Decision {
	multiplier, events := mult.Multiplier(item.Key)

	demand := math.Max(0, f.ProjectedCustomers-f.CurrentCustomers) * item.UnitsPerOrder * multiplier
	if f.QueueState == forecast.StateStable || f.QueueState == forecast.StateFalling {
		// Baseline floor: stable and falling queues still need steady
		// production, otherwise demand collapses to zero and the next
		// surge starts from an empty lamp.
		demand = math.Max(demand, float64(item.BaselineDropUnits)*multiplier)
	}

	ready, fryer := inv.OnHand(item.Key)
	windowDeadline := ts.Add(time.Duration(e.windowMin() * float64(time.Minute)))
	onHand := ready + float64(inv.FryerReadyBefore(item.Key, windowDeadline))

	shortfallUnits := math.Max(0, demand-onHand)
	shortfallRatio := shortfallUnits / math.Max(1, demand)
	urgency := e.UrgencyFor(shortfallRatio)

	recommended := roundUpToBatch(shortfallUnits, item.BatchSize)
	capped := recommended > item.MaxUnitSize
	if capped {
		recommended = item.MaxUnitSize
	}

	baseline := item.BaselineDropUnits
	if baseline > item.MaxUnitSize {
		baseline = item.MaxUnitSize
	}
	if baseline < 0 {
		baseline = 0
	}

	if recommended > 0 {
		inv.Enqueue(item.Key, recommended, ts.Add(e.cfg.CookTime))
		fryer += recommended
	}

	rate := math.Max(0, f.ProjectedCustomers) / math.Max(0.5, e.cfg.HorizonMin) * item.UnitsPerOrder
	windowDemand := rate * e.windowMin()

	readyDisplay := int(math.Round(ready))
	reason := e.commitReason(item, recommended, capped, readyDisplay, fryer, windowDemand)

	d := Decision{
		Item:                      item.Key,
		Label:                     item.Label,
		UnitLabel:                 item.UnitLabel,
		RecommendedUnits:          recommended,
		BaselineUnits:             baseline,
		MaxUnitSize:               item.MaxUnitSize,
		DeltaUnits:                recommended - baseline,
		ReadyInventoryUnits:       readyDisplay,
		FryerInventoryUnits:       fryer,
		ForecastWindowDemandUnits: math.Round(windowDemand*10) / 10,
		DecisionLocked:            true,
		NextDecisionInSec:         int(math.Round(e.cfg.Interval.Seconds())),
		FeedbackMultiplier:        math.Round(multiplier*1000) / 1000,
		FeedbackEvents:            events,
		Urgency:                   urgency,
		Reason:                    reason,
	}

	e.locks[item.Key] = &itemLock{
		deadline:  ts.Add(e.cfg.Interval),
		committed: d,
	}
	metrics.DecisionsCommitted.WithLabelValues(item.Key, string(urgency)).Inc()
	return d
}

func (e *Engine) commitReason(item profile.MenuItem, recommended int, capped bool, ready, fryer int, windowDemand float64) string {
	var reason string
	if recommended > 0 {
		reason = fmt.Sprintf(
			"Inventory ready %s, fryer %s. Forecast %s over next %.1f min; drop %s now.",
			qty(ready, item.UnitLabel), qty(fryer, item.UnitLabel),
			qtyF(windowDemand, item.UnitLabel), e.windowMin(),
			qty(recommended, item.UnitLabel))
	} else {
		reason = fmt.Sprintf(
			"Inventory ready %s, fryer %s already covers %s forecast over next %.1f min.",
			qty(ready, item.UnitLabel), qty(fryer, item.UnitLabel),
			qtyF(windowDemand, item.UnitLabel), e.windowMin())
	}
	if capped {
		reason = fmt.Sprintf("%s Capped at %s based on configured max unit size.",
			reason, qty(item.MaxUnitSize, item.UnitLabel))
	}
	return reason
}

// EvaluateUnavailable produces holding decisions while the upstream stream
// is down: committed quantities are republished unchanged, items with no
// committed decision fall back to their baseline.
func (e *Engine) EvaluateUnavailable(ts time.Time, items []profile.MenuItem, inv Inventory) []Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	decisions := make([]Decision, 0, len(items))
	for _, item := range items {
		baseline := item.BaselineDropUnits
		if baseline > item.MaxUnitSize {
			baseline = item.MaxUnitSize
		}
		if baseline < 0 {
			baseline = 0
		}

		ready, fryer := inv.OnHand(item.Key)

		recommended := baseline
		locked := false
		remaining := 0
		multiplier := 1.0
		events := 0
		urgency := UrgencyLow

		if lock, ok := e.locks[item.Key]; ok {
			recommended = lock.committed.RecommendedUnits
			multiplier = lock.committed.FeedbackMultiplier
			events = lock.committed.FeedbackEvents
			urgency = lock.committed.Urgency
			if ts.Before(lock.deadline) {
				locked = true
				remaining = int(math.Ceil(lock.deadline.Sub(ts).Seconds()))
			}
		}
		if recommended > item.MaxUnitSize {
			recommended = item.MaxUnitSize
		}
		if recommended < 0 {
			recommended = 0
		}

		decisions = append(decisions, Decision{
			Item:                item.Key,
			Label:               item.Label,
			UnitLabel:           item.UnitLabel,
			RecommendedUnits:    recommended,
			BaselineUnits:       baseline,
			MaxUnitSize:         item.MaxUnitSize,
			DeltaUnits:          recommended - baseline,
			ReadyInventoryUnits: int(math.Round(ready)),
			FryerInventoryUnits: fryer,
			DecisionLocked:      locked,
			NextDecisionInSec:   remaining,
			FeedbackMultiplier:  multiplier,
			FeedbackEvents:      events,
			Urgency:             urgency,
			Reason:              "Live stream is unavailable; holding the latest recommendation cycle.",
		})
	}
	return decisions
}

// roundUpToBatch rounds raw up to the next multiple of batch. Non-positive
// raw yields zero.
func roundUpToBatch(raw float64, batch int) int {
	if raw <= 0 {
		return 0
	}
	if batch < 1 {
		batch = 1
	}
	return int(math.Ceil(raw/float64(batch))) * batch
}

func qty(value int, unitLabel string) string {
	return fmt.Sprintf("%d %s", value, label(unitLabel))
}

func qtyF(value float64, unitLabel string) string {
	return fmt.Sprintf("%.1f %s", value, label(unitLabel))
}

func label(unitLabel string) string {
	if unitLabel == "" {
		return "units"
	}
	return unitLabel
}
