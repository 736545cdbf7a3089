// Dropdeck - Queue Intelligence and Batch-Drop Recommendations for Food Service
// Copyright 2026 Quickserve Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quickserve-labs/dropdeck

package store

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/quickserve-labs/dropdeck/internal/metrics"
)

// Outcome status values for a feedback event.
const (
	OutcomePending      = "pending"
	OutcomeEvaluated    = "evaluated"
	OutcomeInsufficient = "insufficient_data"
)

// FeedbackEvent is one operator response with the forecast context captured
// at submission time. Outcome fields are nil until evaluation runs.
type FeedbackEvent struct {
	ID                        int64      `json:"id"`
	Timestamp                 time.Time  `json:"timestamp"`
	ItemKey                   string     `json:"item_key"`
	ItemLabel                 string     `json:"item_label"`
	Action                    string     `json:"action"`
	Note                      *string    `json:"note"`
	RecommendedUnits          int        `json:"recommended_units"`
	ChosenUnits               int        `json:"chosen_units"`
	BaselineUnits             int        `json:"baseline_units"`
	MaxUnitSize               int        `json:"max_unit_size"`
	UnitCostUSD               float64    `json:"unit_cost_usd"`
	UnitsPerOrder             float64    `json:"units_per_order"`
	ForecastHorizonMin        float64    `json:"forecast_horizon_min"`
	ProjectedCustomers        float64    `json:"projected_customers"`
	QueueState                string     `json:"queue_state"`
	AvgTicketUSD              float64    `json:"avg_ticket_usd"`
	ExpectedCostSavedUSD      float64    `json:"expected_cost_saved_usd"`
	ExpectedWasteAvoidedUnits float64    `json:"expected_waste_avoided_units"`
	OutcomeStatus             string     `json:"outcome_status"`
	EvaluatedAt               *time.Time `json:"evaluated_at"`
	ActualCustomers           *float64   `json:"actual_customers"`
	ForecastErrorCustomers    *float64   `json:"forecast_error_customers"`
	RealizedWasteDeltaUnits   *float64   `json:"realized_waste_delta_units"`
	RealizedCostDeltaUSD      *float64   `json:"realized_cost_delta_usd"`
	RealizedRevenueDeltaUSD   *float64   `json:"realized_revenue_delta_usd"`
}

// InsertFeedback persists a new event with a pending outcome. Bounds are
// normalized the same way regardless of caller: unit counts clamped to
// [0, max_unit_size], expected savings derived from baseline vs chosen.
func (s *Store) InsertFeedback(ctx context.Context, ev FeedbackEvent) (FeedbackEvent, error) {
	start := time.Now()
	defer func() {
		metrics.StoreQueryDuration.WithLabelValues("insert_feedback").Observe(time.Since(start).Seconds())
	}()

	if ev.MaxUnitSize < 1 {
		ev.MaxUnitSize = 1
	}
	ev.RecommendedUnits = clampInt(ev.RecommendedUnits, 0, ev.MaxUnitSize)
	ev.ChosenUnits = clampInt(ev.ChosenUnits, 0, ev.MaxUnitSize)
	ev.BaselineUnits = clampInt(ev.BaselineUnits, 0, ev.MaxUnitSize)
	ev.UnitCostUSD = math.Max(0, ev.UnitCostUSD)
	ev.UnitsPerOrder = math.Max(0.01, ev.UnitsPerOrder)
	ev.ForecastHorizonMin = math.Max(0.5, ev.ForecastHorizonMin)
	ev.ProjectedCustomers = math.Max(0, ev.ProjectedCustomers)
	ev.AvgTicketUSD = math.Max(0, ev.AvgTicketUSD)
	if ev.QueueState == "" {
		ev.QueueState = "unknown"
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	ev.ExpectedWasteAvoidedUnits = math.Max(0, float64(ev.BaselineUnits-ev.ChosenUnits))
	ev.ExpectedCostSavedUSD = ev.ExpectedWasteAvoidedUnits * ev.UnitCostUSD
	ev.OutcomeStatus = OutcomePending

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO recommendation_feedback (
			timestamp, item_key, item_label, action, note,
			recommended_units, chosen_units, baseline_units, max_unit_size,
			unit_cost_usd, units_per_order, forecast_horizon_min,
			projected_customers, queue_state, avg_ticket_usd,
			expected_cost_saved_usd, expected_waste_avoided_units, outcome_status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		ev.Timestamp.UTC(), ev.ItemKey, ev.ItemLabel, ev.Action, ev.Note,
		ev.RecommendedUnits, ev.ChosenUnits, ev.BaselineUnits, ev.MaxUnitSize,
		ev.UnitCostUSD, ev.UnitsPerOrder, ev.ForecastHorizonMin,
		ev.ProjectedCustomers, ev.QueueState, ev.AvgTicketUSD,
		ev.ExpectedCostSavedUSD, ev.ExpectedWasteAvoidedUnits, ev.OutcomeStatus,
	).Scan(&ev.ID)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("insert_feedback").Inc()
		return FeedbackEvent{}, fmt.Errorf("insert feedback event: %w", err)
	}
	return ev, nil
}

// outcome is the realized result of one evaluated feedback event.
type outcome struct {
	actualCustomers float64
	forecastError   float64
	wasteDeltaUnits float64
	costDeltaUSD    float64
	revenueDeltaUSD float64
}

// evaluateOutcome substitutes the realized customer average into the same
// waste/cost/revenue formulas the estimator uses with projections.
func evaluateOutcome(ev FeedbackEvent, actualCustomers float64) outcome {
	unitsPerOrder := math.Max(0.01, ev.UnitsPerOrder)
	requiredUnits := int(math.Max(0, math.Round(actualCustomers*unitsPerOrder)))

	baselineOver := maxInt(0, ev.BaselineUnits-requiredUnits)
	chosenOver := maxInt(0, ev.ChosenUnits-requiredUnits)
	wasteDelta := float64(baselineOver - chosenOver)

	baselineShort := maxInt(0, requiredUnits-ev.BaselineUnits)
	chosenShort := maxInt(0, requiredUnits-ev.ChosenUnits)
	shortfallDelta := float64(baselineShort - chosenShort)

	return outcome{
		actualCustomers: actualCustomers,
		forecastError:   actualCustomers - ev.ProjectedCustomers,
		wasteDeltaUnits: wasteDelta,
		costDeltaUSD:    wasteDelta * math.Max(0, ev.UnitCostUSD),
		revenueDeltaUSD: shortfallDelta / unitsPerOrder * math.Max(0, ev.AvgTicketUSD),
	}
}

// EvaluatePendingOutcomes resolves pending events whose horizon has elapsed:
// the actual customer level is the sample average over [submission,
// submission+horizon] across live (ok/degraded) samples. Events with no
// usable samples are marked insufficient_data rather than retried forever.
func (s *Store) EvaluatePendingOutcomes(ctx context.Context, now time.Time) (evaluated, insufficient int, err error) {
	start := time.Now()
	defer func() {
		metrics.StoreQueryDuration.WithLabelValues("evaluate_outcomes").Observe(time.Since(start).Seconds())
	}()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, baseline_units, chosen_units, units_per_order,
			unit_cost_usd, avg_ticket_usd, forecast_horizon_min, projected_customers
		FROM recommendation_feedback
		WHERE outcome_status = ?
		ORDER BY id ASC
		LIMIT 1000`, OutcomePending)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("evaluate_outcomes").Inc()
		return 0, 0, fmt.Errorf("query pending feedback: %w", err)
	}

	var pending []FeedbackEvent
	for rows.Next() {
		var ev FeedbackEvent
		if err := rows.Scan(&ev.ID, &ev.Timestamp, &ev.BaselineUnits, &ev.ChosenUnits,
			&ev.UnitsPerOrder, &ev.UnitCostUSD, &ev.AvgTicketUSD,
			&ev.ForecastHorizonMin, &ev.ProjectedCustomers); err != nil {
			_ = rows.Close()
			metrics.StoreErrors.WithLabelValues("evaluate_outcomes").Inc()
			return 0, 0, fmt.Errorf("scan pending feedback: %w", err)
		}
		pending = append(pending, ev)
	}
	if err := rows.Close(); err != nil {
		return 0, 0, fmt.Errorf("close pending feedback rows: %w", err)
	}

	for _, ev := range pending {
		horizon := time.Duration(math.Max(0.5, ev.ForecastHorizonMin) * float64(time.Minute))
		cutoff := ev.Timestamp.Add(horizon)
		if now.Before(cutoff) {
			continue
		}

		var avg *float64
		var count int
		err := s.db.QueryRowContext(ctx, `
			SELECT AVG(total_customers), COUNT(*)
			FROM analytics_samples
			WHERE timestamp >= ? AND timestamp <= ?
			  AND stream_status IN ('ok', 'degraded')`,
			ev.Timestamp, cutoff,
		).Scan(&avg, &count)
		if err != nil {
			metrics.StoreErrors.WithLabelValues("evaluate_outcomes").Inc()
			return evaluated, insufficient, fmt.Errorf("sample actuals for feedback %d: %w", ev.ID, err)
		}

		if count <= 0 || avg == nil {
			if _, err := s.db.ExecContext(ctx, `
				UPDATE recommendation_feedback
				SET outcome_status = ?, evaluated_at = ?
				WHERE id = ?`, OutcomeInsufficient, now.UTC(), ev.ID); err != nil {
				return evaluated, insufficient, fmt.Errorf("mark feedback %d insufficient: %w", ev.ID, err)
			}
			insufficient++
			metrics.OutcomeEvaluations.WithLabelValues(OutcomeInsufficient).Inc()
			continue
		}

		o := evaluateOutcome(ev, *avg)
		if _, err := s.db.ExecContext(ctx, `
			UPDATE recommendation_feedback
			SET outcome_status = ?, evaluated_at = ?, actual_customers = ?,
				forecast_error_customers = ?, realized_waste_delta_units = ?,
				realized_cost_delta_usd = ?, realized_revenue_delta_usd = ?
			WHERE id = ?`,
			OutcomeEvaluated, now.UTC(), o.actualCustomers, o.forecastError,
			o.wasteDeltaUnits, o.costDeltaUSD, o.revenueDeltaUSD, ev.ID); err != nil {
			return evaluated, insufficient, fmt.Errorf("mark feedback %d evaluated: %w", ev.ID, err)
		}
		evaluated++
		metrics.OutcomeEvaluations.WithLabelValues(OutcomeEvaluated).Inc()
	}

	return evaluated, insufficient, nil
}

// RecentFeedback returns events inside the window, newest first.
func (s *Store) RecentFeedback(ctx context.Context, minutes, limit int) ([]FeedbackEvent, error) {
	start := time.Now()
	defer func() {
		metrics.StoreQueryDuration.WithLabelValues("recent_feedback").Observe(time.Since(start).Seconds())
	}()

	minutes = clampInt(minutes, 5, 10080)
	limit = clampInt(limit, 10, 2000)
	since := time.Now().UTC().Add(-time.Duration(minutes) * time.Minute)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, item_key, item_label, action, note,
			recommended_units, chosen_units, baseline_units, max_unit_size,
			unit_cost_usd, units_per_order, forecast_horizon_min,
			projected_customers, queue_state, avg_ticket_usd,
			expected_cost_saved_usd, expected_waste_avoided_units,
			outcome_status, evaluated_at, actual_customers,
			forecast_error_customers, realized_waste_delta_units,
			realized_cost_delta_usd, realized_revenue_delta_usd
		FROM recommendation_feedback
		WHERE timestamp >= ?
		ORDER BY id DESC
		LIMIT ?`, since, limit)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("recent_feedback").Inc()
		return nil, fmt.Errorf("query feedback events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []FeedbackEvent
	for rows.Next() {
		var ev FeedbackEvent
		if err := rows.Scan(&ev.ID, &ev.Timestamp, &ev.ItemKey, &ev.ItemLabel,
			&ev.Action, &ev.Note, &ev.RecommendedUnits, &ev.ChosenUnits,
			&ev.BaselineUnits, &ev.MaxUnitSize, &ev.UnitCostUSD, &ev.UnitsPerOrder,
			&ev.ForecastHorizonMin, &ev.ProjectedCustomers, &ev.QueueState,
			&ev.AvgTicketUSD, &ev.ExpectedCostSavedUSD, &ev.ExpectedWasteAvoidedUnits,
			&ev.OutcomeStatus, &ev.EvaluatedAt, &ev.ActualCustomers,
			&ev.ForecastErrorCustomers, &ev.RealizedWasteDeltaUnits,
			&ev.RealizedCostDeltaUSD, &ev.RealizedRevenueDeltaUSD); err != nil {
			metrics.StoreErrors.WithLabelValues("recent_feedback").Inc()
			return nil, fmt.Errorf("scan feedback event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feedback events: %w", err)
	}
	return events, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
