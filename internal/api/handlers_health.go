// Dropdeck - Queue Intelligence and Batch-Drop Recommendations for Food Service
// Copyright 2026 Quickserve Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quickserve-labs/dropdeck

package api

import "net/http"

// handleHealthLive reports process liveness.
func (rt *Router) handleHealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]string{"status": "ok"})
}

// handleHealthReady reports readiness: a business profile is installed and
// at least one recommendation cycle has been published.
func (rt *Router) handleHealthReady(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if !rt.engine.Ready() {
		rw.Error(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "engine not ready")
		return
	}
	rw.Success(map[string]string{"status": "ready"})
}
