// Dropdeck - Queue Intelligence and Batch-Drop Recommendations for Food Service
// Copyright 2026 Quickserve Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quickserve-labs/dropdeck

package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/quickserve-labs/dropdeck/internal/adaptation"
	"github.com/quickserve-labs/dropdeck/internal/forecast"
	"github.com/quickserve-labs/dropdeck/internal/logging"
	"github.com/quickserve-labs/dropdeck/internal/metrics"
	"github.com/quickserve-labs/dropdeck/internal/store"
)

// FeedbackRequest is an operator response to a committed recommendation.
type FeedbackRequest struct {
	Item          string  `json:"item"`
	Action        string  `json:"action"`
	OverrideUnits *int    `json:"override_units"`
	Note          *string `json:"note"`
}

// AdaptationResult reports the multiplier movement one submission caused.
type AdaptationResult struct {
	Item             string  `json:"item"`
	Action           string  `json:"action"`
	MultiplierBefore float64 `json:"multiplier_before"`
	MultiplierAfter  float64 `json:"multiplier_after"`
	FeedbackEvents   int     `json:"feedback_events"`
}

// FeedbackResponse is returned to the submitting client.
type FeedbackResponse struct {
	Timestamp  time.Time           `json:"timestamp"`
	Feedback   store.FeedbackEvent `json:"feedback"`
	Adaptation AdaptationResult    `json:"adaptation"`
}

// SubmitFeedback validates a submission, applies it to the item's learned
// multiplier, and persists the event for outcome evaluation. Validation runs
// to completion before any state changes; a rejected submission mutates
// nothing.
func (e *Engine) SubmitFeedback(ctx context.Context, req FeedbackRequest) (FeedbackResponse, error) {
	action := adaptation.Action(req.Action)
	if !adaptation.ValidAction(action) {
		metrics.FeedbackRejected.Inc()
		return FeedbackResponse{}, fmt.Errorf("%w: action must be accept, override or ignore, got %q",
			ErrInvalidFeedback, req.Action)
	}

	p, ok := e.profiles.Get()
	if !ok {
		return FeedbackResponse{}, ErrNotReady
	}
	item, ok := e.profiles.Item(req.Item)
	if !ok {
		metrics.FeedbackRejected.Inc()
		return FeedbackResponse{}, fmt.Errorf("%w: unknown menu item %q", ErrInvalidFeedback, req.Item)
	}

	recommended, baseline, f := e.feedbackContext(item.Key, item.BaselineDropUnits, item.MaxUnitSize)

	chosen := recommended
	switch action {
	case adaptation.ActionOverride:
		if req.OverrideUnits == nil {
			metrics.FeedbackRejected.Inc()
			return FeedbackResponse{}, fmt.Errorf("%w: override_units is required for override", ErrInvalidFeedback)
		}
		units := *req.OverrideUnits
		if units < 0 {
			metrics.FeedbackRejected.Inc()
			return FeedbackResponse{}, fmt.Errorf("%w: override_units must not be negative, got %d",
				ErrInvalidFeedback, units)
		}
		if units > item.MaxUnitSize {
			metrics.FeedbackRejected.Inc()
			return FeedbackResponse{}, fmt.Errorf("%w: override_units %d exceeds max unit size %d",
				ErrInvalidFeedback, units, item.MaxUnitSize)
		}
		chosen = units
	case adaptation.ActionIgnore:
		// Ignoring the recommendation means the operator dropped the usual
		// baseline instead.
		chosen = baseline
	}

	ratio := float64(chosen) / math.Max(1, float64(recommended))
	before, after, err := e.adapt.Record(item.Key, action, ratio)
	if err != nil {
		return FeedbackResponse{}, fmt.Errorf("record feedback for %q: %w", item.Key, err)
	}

	metrics.FeedbackTotal.WithLabelValues(string(action)).Inc()
	metrics.ItemMultiplier.WithLabelValues(item.Key).Set(after.Multiplier)

	now := time.Now().UTC()
	ev, err := e.feedback.InsertFeedback(ctx, store.FeedbackEvent{
		Timestamp:          now,
		ItemKey:            item.Key,
		ItemLabel:          item.Label,
		Action:             string(action),
		Note:               req.Note,
		RecommendedUnits:   recommended,
		ChosenUnits:        chosen,
		BaselineUnits:      baseline,
		MaxUnitSize:        item.MaxUnitSize,
		UnitCostUSD:        item.UnitCostUSD,
		UnitsPerOrder:      item.UnitsPerOrder,
		ForecastHorizonMin: f.HorizonMin,
		ProjectedCustomers: f.ProjectedCustomers,
		QueueState:         string(f.QueueState),
		AvgTicketUSD:       p.AvgTicketUSD,
	})
	if err != nil {
		// The multiplier already moved; losing the audit row is the lesser
		// failure and the operator still gets a coherent response.
		logging.Error().Err(err).Str("item", item.Key).Msg("failed to persist feedback event")
		return FeedbackResponse{}, fmt.Errorf("persist feedback: %w", err)
	}

	logging.Info().
		Str("item", item.Key).
		Str("action", string(action)).
		Int("recommended_units", recommended).
		Int("chosen_units", chosen).
		Float64("multiplier_after", after.Multiplier).
		Msg("feedback recorded")

	return FeedbackResponse{
		Timestamp: now,
		Feedback:  ev,
		Adaptation: AdaptationResult{
			Item:             item.Key,
			Action:           string(action),
			MultiplierBefore: round3(before.Multiplier),
			MultiplierAfter:  round3(after.Multiplier),
			FeedbackEvents:   after.FeedbackEvents,
		},
	}, nil
}

// feedbackContext resolves what the engine was recommending when the
// operator responded: the locked decision when one exists, otherwise the
// latest snapshot, otherwise the clamped baseline.
func (e *Engine) feedbackContext(key string, baselineUnits, maxUnitSize int) (recommended, baseline int, f forecast.Snapshot) {
	baseline = baselineUnits
	if baseline > maxUnitSize {
		baseline = maxUnitSize
	}
	if baseline < 0 {
		baseline = 0
	}
	recommended = baseline

	if d, ok := e.decisions.Committed(key); ok {
		recommended = d.RecommendedUnits
		baseline = d.BaselineUnits
	}

	e.mu.Lock()
	if e.latest != nil {
		f = e.latest.Forecast
	} else {
		f = forecast.Snapshot{HorizonMin: e.cfg.Forecast.HorizonMin, QueueState: forecast.StateStable}
	}
	e.mu.Unlock()

	return recommended, baseline, f
}

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
