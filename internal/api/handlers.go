// Dropdeck - Queue Intelligence and Batch-Drop Recommendations for Food Service
// Copyright 2026 Quickserve Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quickserve-labs/dropdeck

package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/quickserve-labs/dropdeck/internal/adaptation"
	"github.com/quickserve-labs/dropdeck/internal/bus"
	"github.com/quickserve-labs/dropdeck/internal/engine"
	"github.com/quickserve-labs/dropdeck/internal/logging"
	"github.com/quickserve-labs/dropdeck/internal/profile"
	"github.com/quickserve-labs/dropdeck/internal/store"
)

// maxBodyBytes caps request bodies; feedback and profile payloads are small.
const maxBodyBytes = 1 << 20

// handleRecommendations returns the latest published recommendation cycle.
func (rt *Router) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	snap, ok := rt.engine.Latest()
	if !ok {
		rw.ServiceUnavailable("no recommendation cycle published yet")
		return
	}
	rw.Success(snap)
}

// handleSubmitFeedback records an operator response to a recommendation.
// Validation failures return 422 and mutate nothing.
func (rt *Router) handleSubmitFeedback(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req engine.FeedbackRequest
	if err := decodeBody(r, &req); err != nil {
		rw.BadRequest("invalid request body: " + err.Error())
		return
	}

	resp, err := rt.engine.SubmitFeedback(r.Context(), req)
	switch {
	case errors.Is(err, engine.ErrInvalidFeedback):
		rw.ValidationError(err.Error())
	case errors.Is(err, engine.ErrNotReady):
		rw.ServiceUnavailable("no business profile configured")
	case err != nil:
		logging.Error().Err(err).Msg("feedback submission failed")
		rw.InternalError("failed to record feedback")
	default:
		if rt.events != nil {
			if err := rt.events.PublishJSON(bus.TopicFeedbackEvents, resp); err != nil {
				logging.Warn().Err(err).Msg("failed to publish feedback event")
			}
		}
		rw.Created(resp)
	}
}

// summaryPayload is the feedback summary plus the learned multiplier table.
type summaryPayload struct {
	store.Summary
	ModelAdaptation map[string]adaptation.State `json:"model_adaptation"`
}

// handleFeedbackSummary aggregates recent feedback with outcome evaluation
// and the per-item adaptation state.
func (rt *Router) handleFeedbackSummary(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	minutes := intQuery(r, "minutes", 240)
	limit := intQuery(r, "limit", 200)

	summary, err := rt.analytics.FeedbackSummary(r.Context(), minutes, limit)
	if err != nil {
		logging.Error().Err(err).Msg("feedback summary query failed")
		rw.InternalError("failed to load feedback summary")
		return
	}

	adaptations, err := rt.engine.Adaptations()
	if err != nil {
		logging.Error().Err(err).Msg("adaptation state read failed")
		rw.InternalError("failed to load adaptation state")
		return
	}

	rw.Success(summaryPayload{Summary: summary, ModelAdaptation: adaptations})
}

// handleUpstreamMetrics returns the most recent upstream occupancy reading.
func (rt *Router) handleUpstreamMetrics(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	ms, ok := rt.engine.LatestStream()
	if !ok {
		rw.ServiceUnavailable("no metrics received yet")
		return
	}
	rw.Success(ms)
}

// handleAnalyticsHistory returns bucketed occupancy history for charting.
func (rt *Router) handleAnalyticsHistory(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	minutes := intQuery(r, "minutes", 60)
	limit := intQuery(r, "limit", 600)
	bucketSec := intQuery(r, "bucket_sec", 1)

	history, err := rt.analytics.GetHistory(r.Context(), minutes, limit, bucketSec)
	if err != nil {
		logging.Error().Err(err).Msg("history query failed")
		rw.InternalError("failed to load analytics history")
		return
	}
	rw.Success(history)
}

func (rt *Router) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	p, ok := rt.engine.Profile()
	if !ok {
		rw.ServiceUnavailable("no business profile configured")
		return
	}
	rw.Success(p)
}

// handleSetProfile hot-swaps the business profile. Decision locks and
// inventory reset; the forecast window survives.
func (rt *Router) handleSetProfile(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var p profile.BusinessProfile
	if err := decodeBody(r, &p); err != nil {
		rw.BadRequest("invalid request body: " + err.Error())
		return
	}

	cleaned, err := rt.engine.SetProfile(p)
	if err != nil {
		rw.ValidationError(err.Error())
		return
	}
	rw.Success(cleaned)
}

func (rt *Router) handleResetProfile(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	p, err := rt.engine.ResetProfile()
	if err != nil {
		logging.Error().Err(err).Msg("profile reset failed")
		rw.InternalError("failed to reset business profile")
		return
	}
	rw.Success(p)
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes)).Decode(v)
}

func intQuery(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
