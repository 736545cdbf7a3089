// Dropdeck - Queue Intelligence and Batch-Drop Recommendations for Food Service
// Copyright 2026 Quickserve Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quickserve-labs/dropdeck

package services

import (
	"context"
	"time"

	"github.com/quickserve-labs/dropdeck/internal/logging"
)

// OutcomeEvaluator resolves pending feedback outcomes once their forecast
// horizon has elapsed. Satisfied by *store.Store.
type OutcomeEvaluator interface {
	EvaluatePendingOutcomes(ctx context.Context, now time.Time) (evaluated, insufficient int, err error)
}

// EvaluatorService periodically re-examines pending feedback events against
// the realized occupancy samples.
type EvaluatorService struct {
	store    OutcomeEvaluator
	interval time.Duration
}

// NewEvaluatorService builds the evaluator.
func NewEvaluatorService(store OutcomeEvaluator, interval time.Duration) *EvaluatorService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &EvaluatorService{store: store, interval: interval}
}

// Serve implements suture.Service.
func (s *EvaluatorService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			evaluated, insufficient, err := s.store.EvaluatePendingOutcomes(ctx, time.Now().UTC())
			if err != nil {
				logging.Error().Err(err).Msg("outcome evaluation failed")
				continue
			}
			if evaluated > 0 || insufficient > 0 {
				logging.Info().
					Int("evaluated", evaluated).
					Int("insufficient_data", insufficient).
					Msg("feedback outcomes evaluated")
			}
		}
	}
}

// String implements fmt.Stringer for suture logging.
func (s *EvaluatorService) String() string { return "outcome-evaluator" }
