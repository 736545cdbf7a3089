// Dropdeck - Queue Intelligence and Batch-Drop Recommendations for Food Service
// Copyright 2026 Quickserve Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quickserve-labs/dropdeck

// Package impact converts the gap between recommended and baseline
// production into directional business figures: waste avoided, cost saved,
// wait-time reduction, and revenue protected.
//
// These are calibrated heuristics for decision support, not guarantees. The
// API contract documents them as directional estimates and that framing must
// be preserved.
package impact

import (
	"math"

	"github.com/quickserve-labs/dropdeck/internal/decision"
	"github.com/quickserve-labs/dropdeck/internal/forecast"
	"github.com/quickserve-labs/dropdeck/internal/profile"
)

// Config calibrates the heuristic mappings.
type Config struct {
	// WaitPerUnitMin converts avoided waste units into wait minutes.
	WaitPerUnitMin float64
	// QueuePressureRef is the projected customer count treated as full
	// queue pressure.
	QueuePressureRef float64
	// PressureWaitWeight scales the queue-pressure contribution to wait
	// reduction.
	PressureWaitWeight float64
	// MinWaitReductionMin and MaxWaitReductionMin clamp the wait estimate.
	MinWaitReductionMin float64
	MaxWaitReductionMin float64
	// ConversionLiftPerMin converts a wait-minute saved into a conversion
	// lift fraction, capped at MaxConversionLift.
	ConversionLiftPerMin float64
	MaxConversionLift    float64
}

// Impact is the cycle-level estimate exposed through the API.
type Impact struct {
	EstimatedWaitReductionMin    float64 `json:"estimated_wait_reduction_min"`
	EstimatedWasteAvoidedUnits   float64 `json:"estimated_waste_avoided_units"`
	EstimatedCostSavedUSD        float64 `json:"estimated_cost_saved_usd"`
	EstimatedRevenueProtectedUSD float64 `json:"estimated_revenue_protected_usd"`
	CurrentWaitTimeMin           float64 `json:"current_wait_time_min"`
}

// Estimator computes impact figures. Pure and stateless.
type Estimator struct {
	cfg Config
}

// NewEstimator creates an estimator.
func NewEstimator(cfg Config) Estimator {
	return Estimator{cfg: cfg}
}

// Estimate aggregates impact across the cycle's decisions. currentWaitMin is
// passed through from the upstream metrics collaborator.
func (e Estimator) Estimate(decisions []decision.Decision, items []profile.MenuItem, f forecast.Snapshot, avgTicketUSD, currentWaitMin float64) Impact {
	costs := make(map[string]float64, len(items))
	for _, item := range items {
		costs[item.Key] = item.UnitCostUSD
	}

	var wasteUnits, costUSD float64
	for _, d := range decisions {
		saved := float64(d.BaselineUnits - d.RecommendedUnits)
		if saved <= 0 {
			continue
		}
		wasteUnits += saved
		costUSD += saved * costs[d.Item]
	}

	pressure := clamp(f.ProjectedCustomers/math.Max(1, e.cfg.QueuePressureRef), 0, 1)
	waitMin := clamp(
		wasteUnits*e.cfg.WaitPerUnitMin+pressure*e.cfg.PressureWaitWeight,
		e.cfg.MinWaitReductionMin, e.cfg.MaxWaitReductionMin)

	lift := clamp(waitMin*e.cfg.ConversionLiftPerMin, 0, e.cfg.MaxConversionLift)
	revenueUSD := f.ProjectedCustomers * lift * avgTicketUSD

	return Impact{
		EstimatedWaitReductionMin:    round1(waitMin),
		EstimatedWasteAvoidedUnits:   round1(wasteUnits),
		EstimatedCostSavedUSD:        round2(costUSD),
		EstimatedRevenueProtectedUSD: round2(revenueUSD),
		CurrentWaitTimeMin:           round1(currentWaitMin),
	}
}

// Unavailable returns the zero impact published while the stream is down.
func Unavailable(currentWaitMin float64) Impact {
	return Impact{CurrentWaitTimeMin: round1(currentWaitMin)}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

func round2(v float64) float64 { return math.Round(v*100) / 100 }
