// Dropdeck - Queue Intelligence and Batch-Drop Recommendations for Food Service
// Copyright 2026 Quickserve Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quickserve-labs/dropdeck

package inventory

import (
	"math"
	"testing"
	"time"

	"github.com/quickserve-labs/dropdeck/internal/profile"
)

func testItems() []profile.MenuItem {
	return []profile.MenuItem{
		{Key: "fillets", Label: "Chicken Fillets", UnitsPerOrder: 0.5, BatchSize: 8, MaxUnitSize: 24, BaselineDropUnits: 16, UnitCostUSD: 0.92},
		{Key: "fries", Label: "Fries", UnitsPerOrder: 0.72, BatchSize: 10, MaxUnitSize: 28, BaselineDropUnits: 18, UnitCostUSD: 0.44},
	}
}

func TestResetSeedsBaselineReadyUnits(t *testing.T) {
	tr := NewTracker(Config{HorizonMin: 8})
	tr.Reset(testItems())

	ready, fryer := tr.OnHand("fillets")
	if ready != 16 {
		t.Errorf("ready = %g, want baseline 16", ready)
	}
	if fryer != 0 {
		t.Errorf("fryer = %d, want 0", fryer)
	}
}

func TestSeedClampsBaselineToMax(t *testing.T) {
	tr := NewTracker(Config{HorizonMin: 8})
	tr.Reset([]profile.MenuItem{
		{Key: "wings", UnitsPerOrder: 0.3, BatchSize: 6, MaxUnitSize: 10, BaselineDropUnits: 40},
	})

	ready, _ := tr.OnHand("wings")
	if ready != 10 {
		t.Errorf("ready = %g, want clamp to max_unit_size 10", ready)
	}
}

func TestAdvanceDrainsAtDemandRate(t *testing.T) {
	items := testItems()
	tr := NewTracker(Config{HorizonMin: 8})
	tr.Reset(items)

	start := time.Date(2026, 3, 14, 11, 0, 0, 0, time.UTC)
	tr.Advance(start, 16, items) // first call only anchors the clock
	tr.Advance(start.Add(2*time.Minute), 16, items)

	// projected 16 over 8 min horizon = 2 customers/min; fillets consume
	// 2 * 0.5 = 1 unit/min, so 2 minutes drain 2 units from the 16 baseline.
	ready, _ := tr.OnHand("fillets")
	if math.Abs(ready-14) > 1e-9 {
		t.Errorf("ready = %g, want 14", ready)
	}
}

func TestAdvanceNeverDrainsBelowZero(t *testing.T) {
	items := testItems()
	tr := NewTracker(Config{HorizonMin: 8})
	tr.Reset(items)

	start := time.Date(2026, 3, 14, 11, 0, 0, 0, time.UTC)
	tr.Advance(start, 400, items)
	tr.Advance(start.Add(30*time.Minute), 400, items)

	ready, _ := tr.OnHand("fries")
	if ready != 0 {
		t.Errorf("ready = %g, want 0 after heavy drain", ready)
	}
}

func TestFryerLotsMatureIntoReadyUnits(t *testing.T) {
	items := testItems()
	tr := NewTracker(Config{HorizonMin: 8})
	tr.Reset(items)

	start := time.Date(2026, 3, 14, 11, 0, 0, 0, time.UTC)
	tr.Advance(start, 0, items)
	tr.Enqueue("fillets", 8, start.Add(4*time.Minute))

	_, fryer := tr.OnHand("fillets")
	if fryer != 8 {
		t.Fatalf("fryer = %d, want 8 before cook time", fryer)
	}

	// Before maturity the lot stays in the fryer.
	tr.Advance(start.Add(2*time.Minute), 0, items)
	ready, fryer := tr.OnHand("fillets")
	if ready != 16 || fryer != 8 {
		t.Errorf("before maturity: ready=%g fryer=%d, want 16/8", ready, fryer)
	}

	// After cook time the units move to ready inventory.
	tr.Advance(start.Add(5*time.Minute), 0, items)
	ready, fryer = tr.OnHand("fillets")
	if ready != 24 || fryer != 0 {
		t.Errorf("after maturity: ready=%g fryer=%d, want 24/0", ready, fryer)
	}
}

func TestFryerReadyBeforeCountsOnlyWindowLots(t *testing.T) {
	items := testItems()
	tr := NewTracker(Config{HorizonMin: 8})
	tr.Reset(items)

	start := time.Date(2026, 3, 14, 11, 0, 0, 0, time.UTC)
	tr.Enqueue("fries", 10, start.Add(3*time.Minute))
	tr.Enqueue("fries", 10, start.Add(9*time.Minute))

	if got := tr.FryerReadyBefore("fries", start.Add(4*time.Minute)); got != 10 {
		t.Errorf("FryerReadyBefore = %d, want 10", got)
	}
	if got := tr.FryerReadyBefore("fries", start.Add(10*time.Minute)); got != 20 {
		t.Errorf("FryerReadyBefore = %d, want 20", got)
	}
}

func TestReadyInventoryIsCapped(t *testing.T) {
	items := []profile.MenuItem{
		{Key: "fries", UnitsPerOrder: 0.72, BatchSize: 10, MaxUnitSize: 28, BaselineDropUnits: 18},
	}
	tr := NewTracker(Config{HorizonMin: 8})
	tr.Reset(items)

	start := time.Date(2026, 3, 14, 11, 0, 0, 0, time.UTC)
	tr.Advance(start, 0, items)
	for i := 0; i < 20; i++ {
		tr.Enqueue("fries", 28, start.Add(time.Duration(i)*time.Second))
	}
	tr.Advance(start.Add(time.Minute), 0, items)

	ready, _ := tr.OnHand("fries")
	if want := float64(28 * readyCapFactor); ready != want {
		t.Errorf("ready = %g, want cap %g", ready, want)
	}
}

func TestSyncDropsRemovedAndSeedsNewItems(t *testing.T) {
	tr := NewTracker(Config{HorizonMin: 8})
	tr.Reset(testItems())

	next := []profile.MenuItem{
		{Key: "fries", Label: "Fries", UnitsPerOrder: 0.72, BatchSize: 10, MaxUnitSize: 28, BaselineDropUnits: 18},
		{Key: "tenders", Label: "Tenders", UnitsPerOrder: 0.2, BatchSize: 4, MaxUnitSize: 12, BaselineDropUnits: 6},
	}
	tr.Sync(next)

	if ready, fryer := tr.OnHand("fillets"); ready != 0 || fryer != 0 {
		t.Errorf("removed item still tracked: ready=%g fryer=%d", ready, fryer)
	}
	if ready, _ := tr.OnHand("tenders"); ready != 6 {
		t.Errorf("new item ready = %g, want baseline 6", ready)
	}
	if ready, _ := tr.OnHand("fries"); ready != 18 {
		t.Errorf("surviving item ready = %g, want untouched 18", ready)
	}
}

func TestEnqueueIgnoresUnknownItemAndZeroUnits(t *testing.T) {
	tr := NewTracker(Config{HorizonMin: 8})
	tr.Reset(testItems())

	tr.Enqueue("ghost", 8, time.Now())
	tr.Enqueue("fillets", 0, time.Now())

	if _, fryer := tr.OnHand("fillets"); fryer != 0 {
		t.Errorf("fryer = %d, want 0", fryer)
	}
}
