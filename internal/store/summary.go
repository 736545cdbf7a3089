// Dropdeck - Queue Intelligence and Batch-Drop Recommendations for Food Service
// Copyright 2026 Quickserve Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quickserve-labs/dropdeck

package store

import (
	"context"
	"math"
	"time"
)

// Adoption aggregates operator responses inside the summary window.
type Adoption struct {
	Accepted     int     `json:"accepted"`
	Overridden   int     `json:"overridden"`
	Ignored      int     `json:"ignored"`
	Adopted      int     `json:"adopted"`
	AdoptionRate float64 `json:"adoption_rate"`
}

// Outcomes aggregates expected vs realized effects.
type Outcomes struct {
	Evaluated                 int     `json:"evaluated"`
	Pending                   int     `json:"pending"`
	InsufficientData          int     `json:"insufficient_data"`
	ExpectedCostSavedUSD      float64 `json:"expected_cost_saved_usd"`
	RealizedCostDeltaUSD      float64 `json:"realized_cost_delta_usd"`
	ExpectedWasteAvoidedUnits float64 `json:"expected_waste_avoided_units"`
	RealizedWasteDeltaUnits   float64 `json:"realized_waste_delta_units"`
	RealizedRevenueDeltaUSD   float64 `json:"realized_revenue_delta_usd"`
	RealizedVsExpectedRatio   float64 `json:"realized_vs_expected_ratio"`
}

// PredictionImpact summarizes forecast accuracy over evaluated events.
type PredictionImpact struct {
	ForecastMAECustomers  float64 `json:"forecast_mae_customers"`
	ForecastBiasCustomers float64 `json:"forecast_bias_customers"`
	Direction             string  `json:"direction"`
}

// Summary is the feedback summary payload, minus the per-item multiplier
// table which the API layer merges in from the adaptation store.
type Summary struct {
	Timestamp        time.Time        `json:"timestamp"`
	WindowMinutes    int              `json:"window_minutes"`
	Count            int              `json:"count"`
	Adoption         Adoption         `json:"adoption"`
	Outcomes         Outcomes         `json:"outcomes"`
	PredictionImpact PredictionImpact `json:"prediction_impact"`
	Events           []FeedbackEvent  `json:"events"`
}

// FeedbackSummary aggregates recent events into the summary payload.
func (s *Store) FeedbackSummary(ctx context.Context, minutes, limit int) (Summary, error) {
	minutes = clampInt(minutes, 5, 10080)

	events, err := s.RecentFeedback(ctx, minutes, limit)
	if err != nil {
		return Summary{}, err
	}
	return summarize(events, time.Now().UTC(), minutes), nil
}

// biasDirectionThreshold separates calibrated forecasts from systematic
// over/under prediction, in customers.
const biasDirectionThreshold = 0.2

func summarize(events []FeedbackEvent, now time.Time, windowMinutes int) Summary {
	sum := Summary{
		Timestamp:     now,
		WindowMinutes: windowMinutes,
		Count:         len(events),
		Events:        events,
	}
	if sum.Events == nil {
		sum.Events = []FeedbackEvent{}
	}

	var forecastErrors []float64
	for _, ev := range events {
		switch ev.Action {
		case "accept":
			sum.Adoption.Accepted++
		case "override":
			sum.Adoption.Overridden++
		case "ignore":
			sum.Adoption.Ignored++
		}

		sum.Outcomes.ExpectedCostSavedUSD += ev.ExpectedCostSavedUSD
		sum.Outcomes.ExpectedWasteAvoidedUnits += ev.ExpectedWasteAvoidedUnits

		switch ev.OutcomeStatus {
		case OutcomeEvaluated:
			sum.Outcomes.Evaluated++
			if ev.RealizedCostDeltaUSD != nil {
				sum.Outcomes.RealizedCostDeltaUSD += *ev.RealizedCostDeltaUSD
			}
			if ev.RealizedWasteDeltaUnits != nil {
				sum.Outcomes.RealizedWasteDeltaUnits += *ev.RealizedWasteDeltaUnits
			}
			if ev.RealizedRevenueDeltaUSD != nil {
				sum.Outcomes.RealizedRevenueDeltaUSD += *ev.RealizedRevenueDeltaUSD
			}
			if ev.ForecastErrorCustomers != nil {
				forecastErrors = append(forecastErrors, *ev.ForecastErrorCustomers)
			}
		case OutcomePending:
			sum.Outcomes.Pending++
		case OutcomeInsufficient:
			sum.Outcomes.InsufficientData++
		}
	}

	sum.Adoption.Adopted = sum.Adoption.Accepted + sum.Adoption.Overridden
	if len(events) > 0 {
		sum.Adoption.AdoptionRate = round4(float64(sum.Adoption.Adopted) / float64(len(events)))
	}

	if math.Abs(sum.Outcomes.ExpectedCostSavedUSD) > 1e-6 {
		sum.Outcomes.RealizedVsExpectedRatio = round3(
			sum.Outcomes.RealizedCostDeltaUSD / sum.Outcomes.ExpectedCostSavedUSD)
	}
	sum.Outcomes.ExpectedCostSavedUSD = round2(sum.Outcomes.ExpectedCostSavedUSD)
	sum.Outcomes.RealizedCostDeltaUSD = round2(sum.Outcomes.RealizedCostDeltaUSD)
	sum.Outcomes.ExpectedWasteAvoidedUnits = round2(sum.Outcomes.ExpectedWasteAvoidedUnits)
	sum.Outcomes.RealizedWasteDeltaUnits = round2(sum.Outcomes.RealizedWasteDeltaUnits)
	sum.Outcomes.RealizedRevenueDeltaUSD = round2(sum.Outcomes.RealizedRevenueDeltaUSD)

	if len(forecastErrors) > 0 {
		var mae, bias float64
		for _, e := range forecastErrors {
			mae += math.Abs(e)
			bias += e
		}
		sum.PredictionImpact.ForecastMAECustomers = round3(mae / float64(len(forecastErrors)))
		sum.PredictionImpact.ForecastBiasCustomers = round3(bias / float64(len(forecastErrors)))
	}

	switch {
	case sum.PredictionImpact.ForecastBiasCustomers > biasDirectionThreshold:
		sum.PredictionImpact.Direction = "under-predicting"
	case sum.PredictionImpact.ForecastBiasCustomers < -biasDirectionThreshold:
		sum.PredictionImpact.Direction = "over-predicting"
	default:
		sum.PredictionImpact.Direction = "well-calibrated"
	}

	return sum
}

func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
