// Dropdeck - Queue Intelligence and Batch-Drop Recommendations for Food Service
// Copyright 2026 Quickserve Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quickserve-labs/dropdeck

// Package services contains the suture.Service wrappers that make up the
// Dropdeck supervisor tree.
package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/quickserve-labs/dropdeck/internal/bus"
	"github.com/quickserve-labs/dropdeck/internal/engine"
	"github.com/quickserve-labs/dropdeck/internal/live"
	"github.com/quickserve-labs/dropdeck/internal/logging"
	"github.com/quickserve-labs/dropdeck/internal/metrics"
	"github.com/quickserve-labs/dropdeck/internal/store"
	"github.com/quickserve-labs/dropdeck/internal/stream"
)

// CycleEngine runs one recommendation cycle per occupancy reading.
// Satisfied by *engine.Engine.
type CycleEngine interface {
	Observe(ms stream.Snapshot) (engine.Snapshot, bool)
}

// PointRecorder persists analytics points. Satisfied by *store.Store.
type PointRecorder interface {
	RecordPoint(ctx context.Context, p store.Point) (int64, error)
}

// Broadcaster pushes messages to connected dashboards. Satisfied by
// *live.Hub.
type Broadcaster interface {
	BroadcastJSON(messageType string, data any)
}

// Publisher forwards analytics points onto the message bus. Satisfied by
// *bus.Bus.
type Publisher interface {
	PublishJSON(topic string, v any) error
}

// CollectorService polls the upstream metrics source on a fixed cadence and
// drives the full pipeline: engine cycle, DuckDB point, bus publish and the
// live recommendation broadcast. Fetch failures degrade into fallback
// cycles instead of crashing the service.
type CollectorService struct {
	source   stream.Source
	engine   CycleEngine
	recorder PointRecorder
	hub      Broadcaster
	events   Publisher
	interval time.Duration
	timeout  time.Duration
	log      zerolog.Logger
}

// NewCollectorService builds the collector. hub and events may be nil.
func NewCollectorService(source stream.Source, eng CycleEngine, recorder PointRecorder, hub Broadcaster, events Publisher, interval, timeout time.Duration) *CollectorService {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if timeout <= 0 || timeout > interval {
		timeout = interval
	}
	return &CollectorService{
		source:   source,
		engine:   eng,
		recorder: recorder,
		hub:      hub,
		events:   events,
		interval: interval,
		timeout:  timeout,
		log:      logging.With("collector"),
	}
}

// Serve implements suture.Service. It runs one cycle immediately so the
// first snapshot does not wait a full poll interval, then ticks.
func (s *CollectorService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.cycle(ctx)
		}
	}
}

func (s *CollectorService) cycle(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	ms, err := s.source.Fetch(fetchCtx)
	cancel()
	if err != nil {
		s.log.Warn().Err(err).Msg("metrics fetch failed, running fallback cycle")
		ms = stream.ErrorSnapshot(err)
	}

	snap, ok := s.engine.Observe(ms)
	if !ok {
		s.log.Debug().Msg("no business profile yet, cycle skipped")
		return
	}
	metrics.SnapshotAge.Set(time.Since(snap.Timestamp).Seconds())

	point := pointFrom(ms, snap)
	if id, err := s.recorder.RecordPoint(ctx, point); err != nil {
		s.log.Error().Err(err).Msg("failed to record analytics point")
	} else {
		point.ID = id
	}

	if s.events != nil {
		if err := s.events.PublishJSON(bus.TopicAnalyticsPoints, point); err != nil {
			s.log.Warn().Err(err).Msg("failed to publish analytics point")
		}
	}
	if s.hub != nil {
		s.hub.BroadcastJSON(live.MessageTypeRecommendations, snap)
	}
}

// pointFrom flattens one cycle into the analytics row shape.
func pointFrom(ms stream.Snapshot, snap engine.Snapshot) store.Point {
	return store.Point{
		Timestamp:           snap.Timestamp,
		StreamStatus:        string(ms.Status),
		TotalCustomers:      ms.TotalCustomers,
		WaitMinutes:         ms.EstimatedWaitMin,
		Trend:               snap.Forecast.TrendPerMin,
		Confidence:          snap.Forecast.Confidence,
		ProcessingFPS:       ms.ProcessingFPS,
		QueueState:          string(snap.Forecast.QueueState),
		ProjectedCustomers:  snap.Forecast.ProjectedCustomers,
		RevenueProtectedUSD: snap.Impact.EstimatedRevenueProtectedUSD,
		WaitReductionMin:    snap.Impact.EstimatedWaitReductionMin,
	}
}

// String implements fmt.Stringer for suture logging.
func (s *CollectorService) String() string { return "metrics-collector" }
