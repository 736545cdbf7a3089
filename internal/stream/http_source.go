// Dropdeck - Queue Intelligence and Batch-Drop Recommendations for Food Service
// Copyright 2026 Quickserve Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quickserve-labs/dropdeck

package stream

import (
	"context"
	"net/http"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/quickserve-labs/dropdeck/internal/logging"
	"github.com/quickserve-labs/dropdeck/internal/metrics"
)

// HTTPConfig tunes the polling source.
type HTTPConfig struct {
	URL     string
	Timeout time.Duration

	// BreakerMaxFailures consecutive fetch failures open the breaker;
	// while open, Fetch fails fast for BreakerOpenFor before probing again.
	BreakerMaxFailures uint32
	BreakerOpenFor     time.Duration
}

// HTTPSource polls the vision collaborator's metrics endpoint. A circuit
// breaker keeps a dead collaborator from being hammered every sample tick;
// while the breaker is open the caller receives fast errors and publishes
// error snapshots instead.
type HTTPSource struct {
	cfg     HTTPConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[Snapshot]
}

// NewHTTPSource creates a polling source for the given endpoint.
func NewHTTPSource(cfg HTTPConfig) *HTTPSource {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.BreakerMaxFailures == 0 {
		cfg.BreakerMaxFailures = 5
	}
	if cfg.BreakerOpenFor <= 0 {
		cfg.BreakerOpenFor = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:    "metrics-stream",
		Timeout: cfg.BreakerOpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerMaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("stream breaker state change")
			if to == gobreaker.StateOpen {
				metrics.StreamBreakerState.Set(1)
			} else {
				metrics.StreamBreakerState.Set(0)
			}
		},
	}

	return &HTTPSource{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker[Snapshot](settings),
	}
}

// Fetch polls the endpoint through the breaker.
func (s *HTTPSource) Fetch(ctx context.Context) (Snapshot, error) {
	snap, err := s.breaker.Execute(func() (Snapshot, error) {
		return fetchHTTP(ctx, s.client, s.cfg.URL)
	})
	if err != nil {
		metrics.StreamFetchErrors.Inc()
		return Snapshot{}, err
	}
	return snap, nil
}
