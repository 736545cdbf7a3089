// Dropdeck - Queue Intelligence and Batch-Drop Recommendations for Food Service
// Copyright 2026 Quickserve Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quickserve-labs/dropdeck

// Package profile defines the validated business profile consumed by the
// recommendation engine: the menu items with their production parameters and
// the site-level economics.
//
// Profiles arrive from the API layer as untrusted payloads and are validated
// here before they can reach the decision engine. The active profile is held
// behind an atomically swapped pointer so hot reloads never expose a
// half-updated menu to a running cycle.
package profile

import (
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
)

// MenuItem describes one producible menu item.
type MenuItem struct {
	Key               string  `json:"key"                 validate:"omitempty,max=64"`
	Label             string  `json:"label"               validate:"required,max=80"`
	UnitLabel         string  `json:"unit_label"          validate:"omitempty,max=24"`
	UnitsPerOrder     float64 `json:"units_per_order"     validate:"gt=0,lte=10"`
	BatchSize         int     `json:"batch_size"          validate:"gte=1,lte=500"`
	MaxUnitSize       int     `json:"max_unit_size"       validate:"gte=1,lte=5000"`
	BaselineDropUnits int     `json:"baseline_drop_units" validate:"gte=0,lte=5000"`
	UnitCostUSD       float64 `json:"unit_cost_usd"       validate:"gte=0,lte=1000"`
}

// BusinessProfile is the full site configuration.
type BusinessProfile struct {
	BusinessName string     `json:"business_name" validate:"required,max=120"`
	BusinessType string     `json:"business_type" validate:"required,max=80"`
	Location     string     `json:"location"      validate:"required,max=120"`
	ServiceModel string     `json:"service_model" validate:"required,max=80"`
	AvgTicketUSD float64    `json:"avg_ticket_usd" validate:"gt=0,lte=500"`
	MenuItems    []MenuItem `json:"menu_items"    validate:"required,min=1,max=24,dive"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify converts a label into a stable item key.
func Slugify(value string) string {
	token := strings.Trim(slugPattern.ReplaceAllString(strings.ToLower(value), "_"), "_")
	if token == "" {
		return "item"
	}
	return token
}

// Normalize validates the profile, trims text fields, derives missing item
// keys from labels, and de-duplicates keys. It returns the cleaned profile or
// a validation error describing the first offending field.
func Normalize(p BusinessProfile) (BusinessProfile, error) {
	p.BusinessName = strings.TrimSpace(p.BusinessName)
	p.BusinessType = strings.TrimSpace(p.BusinessType)
	p.Location = strings.TrimSpace(p.Location)
	p.ServiceModel = strings.TrimSpace(p.ServiceModel)

	if err := validate.Struct(p); err != nil {
		return BusinessProfile{}, fmt.Errorf("invalid business profile: %w", err)
	}

	seen := make(map[string]struct{}, len(p.MenuItems))
	items := make([]MenuItem, 0, len(p.MenuItems))
	for _, item := range p.MenuItems {
		item.Label = strings.TrimSpace(item.Label)
		if item.Label == "" {
			return BusinessProfile{}, fmt.Errorf("invalid business profile: item label must not be empty")
		}
		if item.BatchSize > item.MaxUnitSize {
			return BusinessProfile{}, fmt.Errorf("invalid business profile: item %q batch_size (%d) exceeds max_unit_size (%d)",
				item.Label, item.BatchSize, item.MaxUnitSize)
		}

		base := item.Key
		if strings.TrimSpace(base) == "" {
			base = item.Label
		}
		key := Slugify(base)
		suffix := 2
		for {
			if _, dup := seen[key]; !dup {
				break
			}
			key = fmt.Sprintf("%s_%d", Slugify(base), suffix)
			suffix++
		}
		seen[key] = struct{}{}
		item.Key = key

		if strings.TrimSpace(item.UnitLabel) == "" {
			item.UnitLabel = "units"
		}

		items = append(items, item)
	}
	p.MenuItems = items

	return p, nil
}

// Store holds the active profile behind an atomic pointer. A nil active
// profile means the engine is not ready to publish recommendations.
type Store struct {
	current atomic.Pointer[BusinessProfile]
}

// NewStore returns an empty profile store.
func NewStore() *Store {
	return &Store{}
}

// Set validates, normalizes, and atomically installs a new profile.
func (s *Store) Set(p BusinessProfile) (BusinessProfile, error) {
	cleaned, err := Normalize(p)
	if err != nil {
		return BusinessProfile{}, err
	}
	s.current.Store(&cleaned)
	return cleaned, nil
}

// Get returns the active profile, or ok=false when none is configured.
func (s *Store) Get() (BusinessProfile, bool) {
	p := s.current.Load()
	if p == nil {
		return BusinessProfile{}, false
	}
	return *p, true
}

// Item looks up a menu item by key in the active profile.
func (s *Store) Item(key string) (MenuItem, bool) {
	p := s.current.Load()
	if p == nil {
		return MenuItem{}, false
	}
	for _, item := range p.MenuItems {
		if item.Key == key {
			return item, true
		}
	}
	return MenuItem{}, false
}

// Sample returns the built-in demo profile used when no profile has been
// configured yet.
func Sample() BusinessProfile {
	return BusinessProfile{
		BusinessName: "Steel City Chicken",
		BusinessType: "Fast Food",
		Location:     "Pittsburgh, PA",
		ServiceModel: "Drive-thru + Counter",
		AvgTicketUSD: 10.5,
		MenuItems: []MenuItem{
			{Key: "fillets", Label: "Chicken Fillets", UnitLabel: "fillets", UnitsPerOrder: 0.58, BatchSize: 8, MaxUnitSize: 24, BaselineDropUnits: 16, UnitCostUSD: 0.92},
			{Key: "nuggets", Label: "Nuggets", UnitLabel: "cups", UnitsPerOrder: 0.36, BatchSize: 6, MaxUnitSize: 20, BaselineDropUnits: 12, UnitCostUSD: 0.68},
			{Key: "fries", Label: "Fries", UnitLabel: "cups", UnitsPerOrder: 0.72, BatchSize: 10, MaxUnitSize: 28, BaselineDropUnits: 18, UnitCostUSD: 0.44},
			{Key: "strips", Label: "Strips", UnitLabel: "strips", UnitsPerOrder: 0.15, BatchSize: 8, MaxUnitSize: 20, BaselineDropUnits: 8, UnitCostUSD: 0.86},
		},
	}
}
