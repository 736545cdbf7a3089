// Dropdeck - Queue Intelligence and Batch-Drop Recommendations for Food Service
// Copyright 2026 Quickserve Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quickserve-labs/dropdeck

// Package main is the entry point for the Dropdeck server.
//
// Dropdeck turns a live queue-occupancy stream from a vision pipeline into
// batch-drop recommendations for food service kitchens: how many units of
// each menu item to drop into the fryer right now, with business impact
// estimates and a feedback loop that adapts per-item demand multipliers.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: environment variables and optional YAML file (Koanf v2)
//  2. Analytics store: DuckDB for occupancy samples and feedback events
//  3. Adaptation store: BadgerDB for learned per-item multipliers
//  4. Engine: forecast, inventory, decision and impact components
//  5. Supervisor tree: collector, outcome evaluator, live hub, bus relays
//     and the HTTP server under Suture supervision
//
// # Configuration
//
// All settings use the DROPDECK_ environment prefix, e.g.:
//
//	export DROPDECK_SERVER_PORT=8090
//	export DROPDECK_STREAM_MODE=simulated
//	./dropdeck
//
// Polling a real vision pipeline aggregate:
//
//	export DROPDECK_STREAM_MODE=http
//	export DROPDECK_STREAM_URL=http://vision-gateway:9000/api/metrics
//	./dropdeck
//
// # Signal Handling
//
// The server shuts down gracefully on SIGINT and SIGTERM: the HTTP server
// drains in-flight requests, websocket clients are closed, and both stores
// are flushed before exit.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quickserve-labs/dropdeck/internal/adaptation"
	"github.com/quickserve-labs/dropdeck/internal/api"
	"github.com/quickserve-labs/dropdeck/internal/bus"
	"github.com/quickserve-labs/dropdeck/internal/config"
	"github.com/quickserve-labs/dropdeck/internal/decision"
	"github.com/quickserve-labs/dropdeck/internal/engine"
	"github.com/quickserve-labs/dropdeck/internal/forecast"
	"github.com/quickserve-labs/dropdeck/internal/impact"
	"github.com/quickserve-labs/dropdeck/internal/live"
	"github.com/quickserve-labs/dropdeck/internal/logging"
	"github.com/quickserve-labs/dropdeck/internal/profile"
	"github.com/quickserve-labs/dropdeck/internal/store"
	"github.com/quickserve-labs/dropdeck/internal/stream"
	"github.com/quickserve-labs/dropdeck/internal/supervisor"
	"github.com/quickserve-labs/dropdeck/internal/supervisor/services"
)

func main() {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("stream_mode", cfg.Stream.Mode).
		Str("db_path", cfg.Database.Path).
		Msg("Starting Dropdeck")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Open(ctx, store.Config{
		Path:         cfg.Database.Path,
		MemoryPoints: cfg.Database.MemoryPoints,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open analytics store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing analytics store")
		}
	}()

	adapt, err := adaptation.Open(adaptation.Config{
		MinMultiplier:   cfg.Adaptation.MinMultiplier,
		MaxMultiplier:   cfg.Adaptation.MaxMultiplier,
		AcceptStep:      cfg.Adaptation.AcceptStep,
		OverrideDamping: cfg.Adaptation.OverrideDamping,
		IgnoreDecay:     cfg.Adaptation.IgnoreDecay,
		StatePath:       cfg.Adaptation.StatePath,
		InMemory:        cfg.Adaptation.StatePath == "",
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open adaptation store")
	}
	defer func() {
		if err := adapt.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing adaptation store")
		}
	}()

	eng := engine.New(engine.Config{
		Forecast: forecast.Config{
			WindowSize:        cfg.Forecast.WindowSize,
			HorizonMin:        cfg.Forecast.HorizonMin,
			SurgeThreshold:    cfg.Forecast.SurgeThreshold,
			FallThreshold:     cfg.Forecast.FallThreshold,
			BaseConfidence:    cfg.Forecast.BaseConfidence,
			MaxConfidence:     cfg.Forecast.MaxConfidence,
			FullWindowSamples: cfg.Forecast.FullWindowSamples,
			DegradedPenalty:   cfg.Forecast.DegradedPenalty,
		},
		Decision: decision.Config{
			Interval:        cfg.Decision.Interval,
			DropCadenceMin:  cfg.Decision.DropCadenceMin,
			CookTime:        cfg.Decision.CookTime,
			HorizonMin:      cfg.Forecast.HorizonMin,
			MediumShortfall: cfg.Decision.MediumShortfallRatio,
			HighShortfall:   cfg.Decision.HighShortfallRatio,
		},
		Impact: impact.Config{
			WaitPerUnitMin:       cfg.Impact.WaitPerUnitMin,
			QueuePressureRef:     cfg.Impact.QueuePressureRef,
			PressureWaitWeight:   cfg.Impact.PressureWaitWeight,
			MinWaitReductionMin:  cfg.Impact.MinWaitReductionMin,
			MaxWaitReductionMin:  cfg.Impact.MaxWaitReductionMin,
			ConversionLiftPerMin: cfg.Impact.ConversionLiftPerMin,
			MaxConversionLift:    cfg.Impact.MaxConversionLift,
		},
	}, profile.NewStore(), adapt, st)

	if _, err := eng.SetProfile(profile.Sample()); err != nil {
		logging.Fatal().Err(err).Msg("Failed to install sample business profile")
	}

	hub := live.NewHub()
	b := bus.New(bus.Config{BufferSize: 256})
	defer func() {
		if err := b.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing message bus")
		}
	}()

	source := buildSource(cfg.Stream)

	router := api.NewRouter(cfg.Server, eng, st, hub, b)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddDataService(services.NewEvaluatorService(st, cfg.Adaptation.EvaluateInterval))
	tree.AddPipelineService(services.NewHubService(hub))
	tree.AddPipelineService(services.NewRelayService(b, hub, bus.TopicAnalyticsPoints, live.MessageTypeAnalyticsPoint))
	tree.AddPipelineService(services.NewRelayService(b, hub, bus.TopicFeedbackEvents, live.MessageTypeFeedback))
	tree.AddPipelineService(services.NewCollectorService(source, eng, st, hub, b, cfg.Stream.PollInterval, cfg.Stream.Timeout))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Dropdeck stopped gracefully")
}

// buildSource selects the upstream metrics source. Config validation has
// already constrained the mode.
func buildSource(cfg config.StreamConfig) stream.Source {
	if cfg.Mode == "http" {
		logging.Info().Str("url", cfg.URL).Msg("Polling vision pipeline over HTTP")
		return stream.NewHTTPSource(stream.HTTPConfig{
			URL:                cfg.URL,
			Timeout:            cfg.Timeout,
			BreakerMaxFailures: cfg.BreakerMaxFailures,
			BreakerOpenFor:     cfg.BreakerOpenFor,
		})
	}
	logging.Info().Msg("Using simulated queue source")
	return stream.NewSimulatedSource(time.Now().UnixNano())
}
