// Dropdeck - Queue Intelligence and Batch-Drop Recommendations for Food Service
// Copyright 2026 Quickserve Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quickserve-labs/dropdeck

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quickserve-labs/dropdeck/internal/config"
	"github.com/quickserve-labs/dropdeck/internal/engine"
	"github.com/quickserve-labs/dropdeck/internal/live"
	"github.com/quickserve-labs/dropdeck/internal/store"
)

// AnalyticsStore is the slice of the analytics store the API reads from.
// Satisfied by *store.Store.
type AnalyticsStore interface {
	GetHistory(ctx context.Context, minutes, limit, bucketSec int) (store.History, error)
	FeedbackSummary(ctx context.Context, minutes, limit int) (store.Summary, error)
}

// EventPublisher forwards accepted feedback onto the message bus so the
// live feed and any other consumers see it. Satisfied by *bus.Bus.
type EventPublisher interface {
	PublishJSON(topic string, v any) error
}

// Router assembles the HTTP surface around the engine and its stores.
type Router struct {
	cfg       config.ServerConfig
	engine    *engine.Engine
	analytics AnalyticsStore
	hub       *live.Hub
	events    EventPublisher
}

// NewRouter creates a router. hub and events may be nil when the live feed
// is disabled.
func NewRouter(cfg config.ServerConfig, eng *engine.Engine, analytics AnalyticsStore, hub *live.Hub, events EventPublisher) *Router {
	return &Router{
		cfg:       cfg,
		engine:    eng,
		analytics: analytics,
		hub:       hub,
		events:    events,
	}
}

// Handler builds the chi mux with the full middleware stack and route tree.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(RequestID())
	r.Use(chimiddleware.Recoverer)
	r.Use(SecurityHeaders())
	r.Use(CORS(rt.cfg.CORSOrigins))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).NotFound("resource not found")
	})

	r.Route("/api", func(r chi.Router) {
		// Health and the live feed carry their own permissive limit so
		// monitoring probes and websocket upgrades are not starved by
		// dashboard traffic.
		r.Group(func(r chi.Router) {
			r.Use(RateLimit(1000, time.Minute))
			r.Get("/health/live", rt.handleHealthLive)
			r.Get("/health/ready", rt.handleHealthReady)
			r.Get("/live", rt.handleLive)
		})

		r.Group(func(r chi.Router) {
			r.Use(RequestLogger())
			r.Use(RateLimit(rt.cfg.RateLimitReqs, rt.cfg.RateLimitWindow))

			r.Get("/recommendations", rt.handleRecommendations)
			r.Route("/recommendation-feedback", func(r chi.Router) {
				r.Post("/", rt.handleSubmitFeedback)
				r.Get("/summary", rt.handleFeedbackSummary)
			})
			r.Get("/metrics", rt.handleUpstreamMetrics)
			r.Get("/analytics/history", rt.handleAnalyticsHistory)
			r.Route("/business-profile", func(r chi.Router) {
				r.Get("/", rt.handleGetProfile)
				r.Post("/", rt.handleSetProfile)
				r.Post("/reset", rt.handleResetProfile)
			})
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
