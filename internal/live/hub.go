// Dropdeck - Queue Intelligence and Batch-Drop Recommendations for Food Service
// Copyright 2026 Quickserve Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quickserve-labs/dropdeck

// Package live pushes recommendation cycles, analytics points and feedback
// events to dashboard clients over WebSocket.
//
// The hub owns the client set; clients talk to it only through the Register
// and Unregister channels, so the event loop is the single writer of hub
// state. Slow clients are dropped rather than allowed to stall a broadcast.
package live

import (
	"context"
	"sort"
	"sync"

	"github.com/goccy/go-json"

	"github.com/quickserve-labs/dropdeck/internal/logging"
	"github.com/quickserve-labs/dropdeck/internal/metrics"
)

// Message types pushed to dashboard clients.
const (
	MessageTypeRecommendations = "recommendations"
	MessageTypeAnalyticsPoint  = "analytics_point"
	MessageTypeFeedback        = "feedback"
	MessageTypePing            = "ping"
	MessageTypePong            = "pong"
)

// Message is one WebSocket frame.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub maintains the active client set and fans broadcasts out to it.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates an empty hub. Call Run to start the event loop.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// Run drives the hub until ctx is canceled, then closes every client and
// returns ctx.Err(). Lifecycle events take priority over broadcasts so the
// client set is settled before a message fans out.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.addClient(client)
			continue
		case client := <-h.Unregister:
			h.removeClient(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.addClient(client)
		case client := <-h.Unregister:
			h.removeClient(client)
		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	metrics.LiveClients.Set(float64(count))
	logging.Info().Int("total_clients", count).Msg("live client connected")
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	count := len(h.clients)
	h.mu.Unlock()

	metrics.LiveClients.Set(float64(count))
	logging.Info().Int("total_clients", count).Msg("live client disconnected")
}

func (h *Hub) shutdown(ctx context.Context) {
	h.mu.Lock()
	clients := sortedClients(h.clients)
	for _, client := range clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.mu.Unlock()

	metrics.LiveClients.Set(0)
	logging.Info().
		Str("component", "live-hub").
		Int("clients_closed", len(clients)).
		AnErr("cause", ctx.Err()).
		Msg("live hub stopped")
}

// broadcastToClients fans a message out in client-ID order. A client whose
// send buffer is full gets dropped; it will reconnect and resync from the
// latest snapshot.
func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var toRemove []*Client
	for _, client := range sortedClients(h.clients) {
		select {
		case client.send <- message:
		default:
			toRemove = append(toRemove, client)
		}
	}

	for _, client := range toRemove {
		close(client.send)
		delete(h.clients, client)
	}
	if len(toRemove) > 0 {
		metrics.LiveClients.Set(float64(len(h.clients)))
		logging.Warn().Int("dropped", len(toRemove)).Msg("dropped slow live clients")
	}
}

func sortedClients(set map[*Client]bool) []*Client {
	clients := make([]*Client, 0, len(set))
	for client := range set {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	return clients
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastJSON queues a typed message for all clients. Drops the message if
// the broadcast channel is full.
func (h *Hub) BroadcastJSON(messageType string, data any) {
	select {
	case h.broadcast <- Message{Type: messageType, Data: data}:
	default:
		logging.Warn().Str("message_type", messageType).Msg("broadcast channel full, dropping message")
	}
}

// BroadcastRaw unmarshals a bus payload and queues it under the given type.
// Used by the bus consumers so the hub never depends on producer types.
func (h *Hub) BroadcastRaw(messageType string, payload []byte) {
	var data map[string]any
	if err := json.Unmarshal(payload, &data); err != nil {
		logging.Warn().Err(err).Str("message_type", messageType).Msg("failed to unmarshal bus payload for broadcast")
		return
	}
	h.BroadcastJSON(messageType, data)
}
