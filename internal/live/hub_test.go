// Dropdeck - Queue Intelligence and Batch-Drop Recommendations for Food Service
// Copyright 2026 Quickserve Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quickserve-labs/dropdeck

package live

import (
	"context"
	"testing"
	"time"
)

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()

	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = h.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("hub did not stop")
		}
	})
	return h, cancel
}

func register(t *testing.T, h *Hub, c *Client) {
	t.Helper()

	h.Register <- c
	waitFor(t, func() bool { return h.ClientCount() > 0 })
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never met")
}

func TestRegisterUnregister(t *testing.T) {
	h, _ := startHub(t)

	c := NewClient(h, nil)
	register(t, h, c)
	if h.ClientCount() != 1 {
		t.Fatalf("clients = %d, want 1", h.ClientCount())
	}

	h.Unregister <- c
	waitFor(t, func() bool { return h.ClientCount() == 0 })

	if _, ok := <-c.send; ok {
		t.Error("send channel not closed on unregister")
	}
}

func TestBroadcastReachesAllClients(t *testing.T) {
	h, _ := startHub(t)

	a := NewClient(h, nil)
	b := NewClient(h, nil)
	register(t, h, a)
	h.Register <- b
	waitFor(t, func() bool { return h.ClientCount() == 2 })

	h.BroadcastJSON(MessageTypeRecommendations, map[string]any{"cycle": 1})

	for _, c := range []*Client{a, b} {
		select {
		case msg := <-c.send:
			if msg.Type != MessageTypeRecommendations {
				t.Errorf("type = %s", msg.Type)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("broadcast never delivered")
		}
	}
}

func TestSlowClientIsDropped(t *testing.T) {
	h, _ := startHub(t)

	slow := NewClient(h, nil)
	register(t, h, slow)

	// Fill the client's send buffer, then overflow it.
	for i := 0; i < cap(slow.send)+1; i++ {
		h.BroadcastJSON(MessageTypeAnalyticsPoint, i)
	}

	waitFor(t, func() bool { return h.ClientCount() == 0 })
}

func TestShutdownClosesClients(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() { errc <- h.Run(ctx) }()

	c := NewClient(h, nil)
	h.Register <- c
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	cancel()
	select {
	case err := <-errc:
		if err != context.Canceled {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}

	if h.ClientCount() != 0 {
		t.Errorf("clients after shutdown = %d", h.ClientCount())
	}
}

func TestBroadcastRaw(t *testing.T) {
	h, _ := startHub(t)

	c := NewClient(h, nil)
	register(t, h, c)

	h.BroadcastRaw(MessageTypeFeedback, []byte(`{"item_key":"fillets","action":"accept"}`))

	select {
	case msg := <-c.send:
		data, ok := msg.Data.(map[string]any)
		if !ok || data["item_key"] != "fillets" {
			t.Errorf("data = %#v", msg.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("raw broadcast never delivered")
	}
}

func TestBroadcastRawRejectsGarbage(t *testing.T) {
	h, _ := startHub(t)

	c := NewClient(h, nil)
	register(t, h, c)

	h.BroadcastRaw(MessageTypeFeedback, []byte(`not json`))

	select {
	case msg := <-c.send:
		t.Fatalf("unexpected delivery: %+v", msg)
	case <-time.After(100 * time.Millisecond):
	}
}
