// Dropdeck - Queue Intelligence and Batch-Drop Recommendations for Food Service
// Copyright 2026 Quickserve Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quickserve-labs/dropdeck

package bus

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

type testPayload struct {
	Item  string `json:"item"`
	Units int    `json:"units"`
}

func TestPublishReachesSubscriber(t *testing.T) {
	b := New(Config{BufferSize: 8})
	defer func() { _ = b.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan testPayload, 1)
	go func() {
		_ = b.Run(ctx, TopicAnalyticsPoints, func(payload []byte) error {
			var p testPayload
			if err := json.Unmarshal(payload, &p); err != nil {
				return err
			}
			got <- p
			return nil
		})
	}()

	// Give the subscriber a moment to attach; gochannel drops messages
	// published before any subscription exists.
	time.Sleep(50 * time.Millisecond)

	if err := b.PublishJSON(TopicAnalyticsPoints, testPayload{Item: "fillets", Units: 16}); err != nil {
		t.Fatalf("PublishJSON: %v", err)
	}

	select {
	case p := <-got:
		if p.Item != "fillets" || p.Units != 16 {
			t.Errorf("payload = %+v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message never arrived")
	}
}

func TestHandlerErrorDoesNotStopRun(t *testing.T) {
	b := New(Config{BufferSize: 8})
	defer func() { _ = b.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seen := make(chan int, 2)
	go func() {
		n := 0
		_ = b.Run(ctx, TopicFeedbackEvents, func([]byte) error {
			n++
			seen <- n
			if n == 1 {
				return context.DeadlineExceeded
			}
			return nil
		})
	}()

	time.Sleep(50 * time.Millisecond)

	for i := 0; i < 2; i++ {
		if err := b.PublishJSON(TopicFeedbackEvents, testPayload{Units: i}); err != nil {
			t.Fatalf("PublishJSON %d: %v", i, err)
		}
	}

	for want := 1; want <= 2; want++ {
		select {
		case n := <-seen:
			if n != want {
				t.Fatalf("delivery %d, want %d", n, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("delivery %d never arrived", want)
		}
	}
}

func TestPublishAfterCloseFails(t *testing.T) {
	b := New(Config{})
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := b.PublishJSON(TopicAnalyticsPoints, testPayload{}); err == nil {
		t.Fatal("expected error publishing on closed bus")
	}
	if err := b.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestPublishWithoutSubscriberDoesNotBlock(t *testing.T) {
	b := New(Config{})
	defer func() { _ = b.Close() }()

	done := make(chan error, 1)
	go func() {
		done <- b.PublishJSON(TopicAnalyticsPoints, testPayload{Item: "fries"})
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("PublishJSON: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("publish blocked with no subscriber")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	b := New(Config{})
	defer func() { _ = b.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		errc <- b.Run(ctx, TopicAnalyticsPoints, func([]byte) error { return nil })
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		if err != context.Canceled {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}
