// Dropdeck - Queue Intelligence and Batch-Drop Recommendations for Food Service
// Copyright 2026 Quickserve Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quickserve-labs/dropdeck

// Package bus is the in-process event bus connecting the collector loop to
// the live dashboard hub. Topics carry JSON payloads; subscribers ack after
// handling so slow consumers never stall the recommendation cycle.
package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/quickserve-labs/dropdeck/internal/logging"
)

// Topics published by the engine services.
const (
	TopicAnalyticsPoints = "analytics.points"
	TopicFeedbackEvents  = "feedback.events"
)

// Config tunes the in-process pub/sub.
type Config struct {
	// BufferSize bounds each topic's channel. Zero means unbuffered.
	BufferSize int64
}

// Bus wraps a gochannel pub/sub with JSON payload helpers.
type Bus struct {
	pubsub *gochannel.GoChannel

	mu     sync.RWMutex
	closed bool
}

// New creates the bus. Messages published with no subscriber are dropped,
// matching fire-and-forget dashboard semantics.
func New(cfg Config) *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: cfg.BufferSize,
		}, newLoggerAdapter()),
	}
}

// PublishJSON marshals v and publishes it on topic with a fresh message ID.
func (b *Bus) PublishJSON(topic string, v any) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return fmt.Errorf("bus is closed")
	}
	b.mu.RUnlock()

	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", topic, err)
	}

	msg := message.NewMessage(uuid.NewString(), payload)
	if err := b.pubsub.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe returns the message channel for topic. The channel closes when
// ctx is canceled or the bus shuts down.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, topic)
}

// Run consumes topic until ctx cancellation, acking after each handled
// message. Handler errors are logged, not retried; the next cycle carries
// fresher data anyway.
func (b *Bus) Run(ctx context.Context, topic string, handle func(payload []byte) error) error {
	messages, err := b.Subscribe(ctx, topic)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			if err := handle(msg.Payload); err != nil {
				logging.Error().Err(err).
					Str("topic", topic).
					Str("message_uuid", msg.UUID).
					Msg("bus handler failed")
			}
			msg.Ack()
		}
	}
}

// Close shuts the bus down, closing all subscriber channels.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.pubsub.Close()
}
