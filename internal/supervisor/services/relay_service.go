// Dropdeck - Queue Intelligence and Batch-Drop Recommendations for Food Service
// Copyright 2026 Quickserve Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quickserve-labs/dropdeck

package services

import (
	"context"
)

// BusConsumer consumes one topic and invokes the handler per message.
// Satisfied by *bus.Bus.
type BusConsumer interface {
	Run(ctx context.Context, topic string, handle func(payload []byte) error) error
}

// RawBroadcaster forwards raw JSON payloads to the live hub. Satisfied by
// *live.Hub.
type RawBroadcaster interface {
	BroadcastRaw(messageType string, payload []byte)
}

// RelayService bridges one bus topic onto the live websocket feed, so bus
// producers need no knowledge of connected dashboards.
type RelayService struct {
	bus         BusConsumer
	hub         RawBroadcaster
	topic       string
	messageType string
}

// NewRelayService builds a relay from topic to websocket message type.
func NewRelayService(b BusConsumer, hub RawBroadcaster, topic, messageType string) *RelayService {
	return &RelayService{
		bus:         b,
		hub:         hub,
		topic:       topic,
		messageType: messageType,
	}
}

// Serve implements suture.Service.
func (s *RelayService) Serve(ctx context.Context) error {
	return s.bus.Run(ctx, s.topic, func(payload []byte) error {
		s.hub.BroadcastRaw(s.messageType, payload)
		return nil
	})
}

// String implements fmt.Stringer for suture logging.
func (s *RelayService) String() string { return "bus-relay-" + s.topic }
