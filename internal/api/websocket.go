// Dropdeck - Queue Intelligence and Batch-Drop Recommendations for Food Service
// Copyright 2026 Quickserve Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quickserve-labs/dropdeck

package api

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/quickserve-labs/dropdeck/internal/live"
	"github.com/quickserve-labs/dropdeck/internal/logging"
)

// handleLive upgrades the connection and attaches it to the live hub, which
// then streams recommendation snapshots, analytics points and feedback
// events until the client disconnects.
func (rt *Router) handleLive(w http.ResponseWriter, r *http.Request) {
	if rt.hub == nil {
		NewResponseWriter(w, r).ServiceUnavailable("live feed disabled")
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     rt.originAllowed,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		logging.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	client := live.NewClient(rt.hub, conn)
	rt.hub.Register <- client
	client.Start()
}

// originAllowed permits same-origin requests, requests without an Origin
// header, and any origin on the configured CORS list. A "*" entry allows
// all origins.
func (rt *Router) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range rt.cfg.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}
