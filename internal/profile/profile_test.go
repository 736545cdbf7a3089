// Dropdeck - Queue Intelligence and Batch-Drop Recommendations for Food Service
// Copyright 2026 Quickserve Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quickserve-labs/dropdeck

package profile

import (
	"strings"
	"sync"
	"testing"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Chicken Fillets", "chicken_fillets"},
		{"  Spicy--Wings! ", "spicy_wings"},
		{"fries", "fries"},
		{"***", "item"},
		{"", "item"},
	}

	for _, tt := range tests {
		if got := Slugify(tt.input); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestNormalizeDerivesAndDedupesKeys(t *testing.T) {
	p := Sample()
	p.MenuItems = append(p.MenuItems,
		MenuItem{Label: "Chicken Fillets", UnitsPerOrder: 0.5, BatchSize: 4, MaxUnitSize: 16, BaselineDropUnits: 8, UnitCostUSD: 0.5},
	)
	// Collides with the existing "fillets"? No: derived from label.
	cleaned, err := Normalize(p)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	keys := make(map[string]int)
	for _, item := range cleaned.MenuItems {
		keys[item.Key]++
	}
	for key, n := range keys {
		if n > 1 {
			t.Errorf("duplicate key %q after normalization", key)
		}
	}

	last := cleaned.MenuItems[len(cleaned.MenuItems)-1]
	if last.Key != "chicken_fillets" {
		t.Errorf("derived key = %q, want chicken_fillets", last.Key)
	}
	if last.UnitLabel != "units" {
		t.Errorf("missing unit label should default to units, got %q", last.UnitLabel)
	}
}

func TestNormalizeDedupesIdenticalLabels(t *testing.T) {
	p := Sample()
	p.MenuItems = []MenuItem{
		{Label: "Wings", UnitsPerOrder: 0.3, BatchSize: 6, MaxUnitSize: 18, BaselineDropUnits: 6, UnitCostUSD: 0.7},
		{Label: "Wings", UnitsPerOrder: 0.3, BatchSize: 6, MaxUnitSize: 18, BaselineDropUnits: 6, UnitCostUSD: 0.7},
	}

	cleaned, err := Normalize(p)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	if cleaned.MenuItems[0].Key == cleaned.MenuItems[1].Key {
		t.Errorf("identical labels must receive distinct keys, both %q", cleaned.MenuItems[0].Key)
	}
	if !strings.HasPrefix(cleaned.MenuItems[1].Key, "wings") {
		t.Errorf("suffixed key should keep its base, got %q", cleaned.MenuItems[1].Key)
	}
}

func TestNormalizeRejectsBatchLargerThanMax(t *testing.T) {
	p := Sample()
	p.MenuItems[0].BatchSize = 30
	p.MenuItems[0].MaxUnitSize = 24

	if _, err := Normalize(p); err == nil {
		t.Fatal("expected error for batch_size > max_unit_size")
	}
}

func TestNormalizeRejectsEmptyProfile(t *testing.T) {
	p := Sample()
	p.MenuItems = nil
	if _, err := Normalize(p); err == nil {
		t.Fatal("expected error for empty menu")
	}

	p = Sample()
	p.BusinessName = "   "
	if _, err := Normalize(p); err == nil {
		t.Fatal("expected error for blank business name")
	}

	p = Sample()
	p.AvgTicketUSD = 0
	if _, err := Normalize(p); err == nil {
		t.Fatal("expected error for zero average ticket")
	}
}

func TestStoreLifecycle(t *testing.T) {
	s := NewStore()

	if _, ok := s.Get(); ok {
		t.Fatal("empty store must not report a profile")
	}
	if _, ok := s.Item("fillets"); ok {
		t.Fatal("empty store must not resolve items")
	}

	if _, err := s.Set(Sample()); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, ok := s.Get()
	if !ok {
		t.Fatal("store must report configured profile")
	}
	if got.BusinessName != "Steel City Chicken" {
		t.Errorf("unexpected business name %q", got.BusinessName)
	}

	item, ok := s.Item("nuggets")
	if !ok || item.Label != "Nuggets" {
		t.Errorf("Item(nuggets) = %+v, ok=%v", item, ok)
	}
}

func TestStoreConcurrentReadsDuringSwap(t *testing.T) {
	s := NewStore()
	if _, err := s.Set(Sample()); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				p, ok := s.Get()
				if !ok {
					t.Error("profile vanished during swap")
					return
				}
				// A swapped profile is always complete.
				if len(p.MenuItems) == 0 {
					t.Error("observed empty menu")
					return
				}
			}
		}()
	}

	for j := 0; j < 200; j++ {
		if _, err := s.Set(Sample()); err != nil {
			t.Fatal(err)
		}
	}
	wg.Wait()
}
