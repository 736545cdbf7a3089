// Dropdeck - Queue Intelligence and Batch-Drop Recommendations for Food Service
// Copyright 2026 Quickserve Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quickserve-labs/dropdeck

// Package inventory tracks per-item production state between recommendation
// cycles: units sitting ready under the heat lamp and units still cooking in
// the fryer.
//
// Ready inventory drains continuously at the projected demand rate; fryer
// lots mature into ready inventory once their cook time elapses. A committed
// drop recommendation enqueues a new fryer lot. The tracker carries this
// state forward cycle to cycle so consecutive recommendations see the
// production they already scheduled.
package inventory

import (
	"math"
	"sync"
	"time"

	"github.com/quickserve-labs/dropdeck/internal/profile"
)

// readyCapFactor bounds ready inventory at a multiple of the item's max drop
// size so a long falling period cannot accumulate unbounded phantom stock.
const readyCapFactor = 6

// Lot is a batch of units cooking in the fryer, ready at ReadyAt.
type Lot struct {
	Units   int
	ReadyAt time.Time
}

type itemState struct {
	ready float64
	lots  []Lot
}

// Config tunes the tracker.
type Config struct {
	// HorizonMin is the forecast horizon used to convert a projected
	// customer count into a per-minute demand rate.
	HorizonMin float64
}

// Tracker holds per-item inventory state. Safe for concurrent use.
type Tracker struct {
	cfg Config

	mu          sync.Mutex
	items       map[string]*itemState
	lastAdvance time.Time
}

// NewTracker creates an empty tracker.
func NewTracker(cfg Config) *Tracker {
	return &Tracker{
		cfg:   cfg,
		items: make(map[string]*itemState),
	}
}

// Reset discards all state and seeds each item's ready inventory at its
// baseline drop quantity. Called when the business profile is replaced.
func (t *Tracker) Reset(items []profile.MenuItem) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.items = make(map[string]*itemState, len(items))
	for _, item := range items {
		t.items[item.Key] = seedState(item)
	}
	t.lastAdvance = time.Time{}
}

// Sync reconciles tracked items with the active menu: new items are seeded
// at their baseline, items removed from the menu are dropped. Existing state
// is untouched.
func (t *Tracker) Sync(items []profile.MenuItem) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.syncLocked(items)
}

func (t *Tracker) syncLocked(items []profile.MenuItem) {
	active := make(map[string]profile.MenuItem, len(items))
	for _, item := range items {
		active[item.Key] = item
	}

	for key := range t.items {
		if _, ok := active[key]; !ok {
			delete(t.items, key)
		}
	}
	for key, item := range active {
		if _, ok := t.items[key]; !ok {
			t.items[key] = seedState(item)
		}
	}
}

func seedState(item profile.MenuItem) *itemState {
	baseline := item.BaselineDropUnits
	if baseline > item.MaxUnitSize {
		baseline = item.MaxUnitSize
	}
	if baseline < 0 {
		baseline = 0
	}
	return &itemState{ready: float64(baseline)}
}

// Advance moves inventory forward to ts: fryer lots whose cook time has
// elapsed mature into ready units, then ready units drain at the projected
// demand rate over the elapsed interval. The first call only records the
// reference timestamp.
func (t *Tracker) Advance(ts time.Time, projectedCustomers float64, items []profile.MenuItem) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.syncLocked(items)

	if t.lastAdvance.IsZero() {
		t.lastAdvance = ts
		return
	}
	elapsed := ts.Sub(t.lastAdvance)
	if elapsed <= 0 {
		return
	}

	for _, item := range items {
		state := t.items[item.Key]

		for len(state.lots) > 0 && !state.lots[0].ReadyAt.After(ts) {
			if state.lots[0].Units > 0 {
				state.ready += float64(state.lots[0].Units)
			}
			state.lots = state.lots[1:]
		}

		rate := t.demandRatePerMin(projectedCustomers, item)
		state.ready = math.Max(0, state.ready-rate*elapsed.Minutes())
		state.ready = math.Min(state.ready, float64(item.MaxUnitSize*readyCapFactor))
	}

	t.lastAdvance = ts
}

// Enqueue schedules a fryer lot for the item, maturing at readyAt. Unknown
// items and non-positive lots are ignored.
func (t *Tracker) Enqueue(key string, units int, readyAt time.Time) {
	if units <= 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.items[key]
	if !ok {
		return
	}
	state.lots = append(state.lots, Lot{Units: units, ReadyAt: readyAt})
}

// OnHand reports the item's ready units and total in-fryer units. Unknown
// items report zero.
func (t *Tracker) OnHand(key string) (ready float64, fryer int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.items[key]
	if !ok {
		return 0, 0
	}
	return math.Max(0, state.ready), fryerUnits(state.lots, time.Time{})
}

// FryerReadyBefore reports the in-fryer units that will mature on or before
// the deadline, i.e. the production already scheduled inside the coverage
// window.
func (t *Tracker) FryerReadyBefore(key string, deadline time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.items[key]
	if !ok {
		return 0
	}
	return fryerUnits(state.lots, deadline)
}

func fryerUnits(lots []Lot, readyBefore time.Time) int {
	total := 0
	for _, lot := range lots {
		if lot.Units <= 0 {
			continue
		}
		if !readyBefore.IsZero() && lot.ReadyAt.After(readyBefore) {
			continue
		}
		total += lot.Units
	}
	return total
}

// demandRatePerMin converts a projected customer count over the horizon into
// units consumed per minute for the item.
func (t *Tracker) demandRatePerMin(projectedCustomers float64, item profile.MenuItem) float64 {
	horizon := math.Max(0.5, t.cfg.HorizonMin)
	return math.Max(0, projectedCustomers) / horizon * item.UnitsPerOrder
}
