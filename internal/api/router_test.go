// Dropdeck - Queue Intelligence and Batch-Drop Recommendations for Food Service
// Copyright 2026 Quickserve Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quickserve-labs/dropdeck

package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/quickserve-labs/dropdeck/internal/adaptation"
	"github.com/quickserve-labs/dropdeck/internal/config"
	"github.com/quickserve-labs/dropdeck/internal/decision"
	"github.com/quickserve-labs/dropdeck/internal/engine"
	"github.com/quickserve-labs/dropdeck/internal/forecast"
	"github.com/quickserve-labs/dropdeck/internal/impact"
	"github.com/quickserve-labs/dropdeck/internal/profile"
	"github.com/quickserve-labs/dropdeck/internal/store"
	"github.com/quickserve-labs/dropdeck/internal/stream"
)

type fakeAnalytics struct {
	mu          sync.Mutex
	lastMinutes int
	lastLimit   int
	lastBucket  int
	history     store.History
	summary     store.Summary
	fail        bool
}

func (f *fakeAnalytics) GetHistory(_ context.Context, minutes, limit, bucketSec int) (store.History, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return store.History{}, context.DeadlineExceeded
	}
	f.lastMinutes, f.lastLimit, f.lastBucket = minutes, limit, bucketSec
	return f.history, nil
}

func (f *fakeAnalytics) FeedbackSummary(_ context.Context, minutes, limit int) (store.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return store.Summary{}, context.DeadlineExceeded
	}
	f.lastMinutes, f.lastLimit = minutes, limit
	return f.summary, nil
}

type fakeFeedbackStore struct {
	mu     sync.Mutex
	nextID int64
}

func (f *fakeFeedbackStore) InsertFeedback(_ context.Context, ev store.FeedbackEvent) (store.FeedbackEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	ev.ID = f.nextID
	ev.OutcomeStatus = store.OutcomePending
	return ev, nil
}

func engineConfig() engine.Config {
	return engine.Config{
		Forecast: forecast.Config{
			WindowSize:        30,
			HorizonMin:        8,
			SurgeThreshold:    0.8,
			FallThreshold:     -0.8,
			BaseConfidence:    0.35,
			MaxConfidence:     0.95,
			FullWindowSamples: 12,
			DegradedPenalty:   0.15,
		},
		Decision: decision.Config{
			Interval:        45 * time.Second,
			DropCadenceMin:  8,
			CookTime:        3 * time.Minute,
			HorizonMin:      8,
			MediumShortfall: 0.35,
			HighShortfall:   0.65,
		},
		Impact: impact.Config{
			WaitPerUnitMin:       0.125,
			QueuePressureRef:     24,
			PressureWaitWeight:   1.5,
			MinWaitReductionMin:  0.2,
			MaxWaitReductionMin:  3.2,
			ConversionLiftPerMin: 0.025,
			MaxConversionLift:    0.16,
		},
	}
}

func newTestRouter(t *testing.T) (*Router, *engine.Engine, *fakeAnalytics) {
	t.Helper()

	adapt, err := adaptation.Open(adaptation.Config{
		MinMultiplier:   0.5,
		MaxMultiplier:   2.0,
		AcceptStep:      0.02,
		OverrideDamping: 0.4,
		IgnoreDecay:     0.1,
		InMemory:        true,
	})
	if err != nil {
		t.Fatalf("open adaptation store: %v", err)
	}
	t.Cleanup(func() { _ = adapt.Close() })

	eng := engine.New(engineConfig(), profile.NewStore(), adapt, &fakeFeedbackStore{})
	analytics := &fakeAnalytics{}

	cfg := config.ServerConfig{
		CORSOrigins:     []string{"http://dashboard.local"},
		RateLimitReqs:   0, // disabled for tests
		RateLimitWindow: time.Minute,
	}
	return NewRouter(cfg, eng, analytics, nil, nil), eng, analytics
}

// publishCycle installs the sample profile and runs one live cycle so the
// engine has something to serve.
func publishCycle(t *testing.T, eng *engine.Engine) {
	t.Helper()

	if _, err := eng.SetProfile(profile.Sample()); err != nil {
		t.Fatalf("SetProfile: %v", err)
	}
	ts := time.Date(2026, 3, 14, 11, 30, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_, ok := eng.Observe(stream.Snapshot{
			Timestamp:        ts.Add(time.Duration(i) * 30 * time.Second),
			Status:           stream.StatusOK,
			TotalCustomers:   9,
			EstimatedWaitMin: 6.5,
		})
		if !ok {
			t.Fatal("Observe returned ok=false")
		}
	}
}

func doRequest(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()

	var rd *bytes.Reader
	if body == "" {
		rd = bytes.NewReader(nil)
	} else {
		rd = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, target, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp APIResponse
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, resp
}

func TestHealthEndpoints(t *testing.T) {
	rt, eng, _ := newTestRouter(t)
	h := rt.Handler()

	rec, resp := doRequest(t, h, http.MethodGet, "/api/health/live", "")
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("live: status=%d success=%v", rec.Code, resp.Success)
	}

	rec, _ = doRequest(t, h, http.MethodGet, "/api/health/ready", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready before first cycle: status=%d, want 503", rec.Code)
	}

	publishCycle(t, eng)

	rec, resp = doRequest(t, h, http.MethodGet, "/api/health/ready", "")
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("ready after cycle: status=%d success=%v", rec.Code, resp.Success)
	}
}

func TestRecommendationsLifecycle(t *testing.T) {
	rt, eng, _ := newTestRouter(t)
	h := rt.Handler()

	rec, resp := doRequest(t, h, http.MethodGet, "/api/recommendations", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d, want 503 before first cycle", rec.Code)
	}
	if resp.Error == nil || resp.Error.Code != ErrCodeServiceUnavailable {
		t.Fatalf("error = %+v", resp.Error)
	}

	publishCycle(t, eng)

	rec, resp = doRequest(t, h, http.MethodGet, "/api/recommendations", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", rec.Code)
	}
	data, _ := resp.Data.(map[string]any)
	if data["forecast"] == nil || data["recommendations"] == nil || data["impact"] == nil {
		t.Fatalf("snapshot missing sections: %v", data)
	}
	biz, _ := data["business"].(map[string]any)
	if biz["business_name"] != "Steel City Chicken" {
		t.Errorf("business_name = %v", biz["business_name"])
	}
}

func TestSubmitFeedbackStatusCodes(t *testing.T) {
	rt, eng, _ := newTestRouter(t)
	h := rt.Handler()

	// Not ready yet.
	rec, _ := doRequest(t, h, http.MethodPost, "/api/recommendation-feedback",
		`{"item":"fillets","action":"accept"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d, want 503 without profile", rec.Code)
	}

	publishCycle(t, eng)

	// Malformed body.
	rec, _ = doRequest(t, h, http.MethodPost, "/api/recommendation-feedback", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400 for malformed body", rec.Code)
	}

	// Invalid action.
	rec, resp := doRequest(t, h, http.MethodPost, "/api/recommendation-feedback",
		`{"item":"fillets","action":"shrug"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d, want 422 for invalid action", rec.Code)
	}
	if resp.Error == nil || resp.Error.Code != ErrCodeValidationFailed {
		t.Fatalf("error = %+v", resp.Error)
	}

	// Valid accept.
	rec, resp = doRequest(t, h, http.MethodPost, "/api/recommendation-feedback",
		`{"item":"fillets","action":"accept"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status=%d, want 201", rec.Code)
	}
	data, _ := resp.Data.(map[string]any)
	adapt, _ := data["adaptation"].(map[string]any)
	if adapt["multiplier_after"] != 1.02 {
		t.Errorf("multiplier_after = %v, want 1.02", adapt["multiplier_after"])
	}
}

func TestFeedbackSummaryMergesAdaptation(t *testing.T) {
	rt, eng, analytics := newTestRouter(t)
	h := rt.Handler()
	publishCycle(t, eng)

	analytics.summary = store.Summary{
		WindowMinutes: 240,
		Count:         1,
		Events:        []store.FeedbackEvent{},
	}

	_, _ = doRequest(t, h, http.MethodPost, "/api/recommendation-feedback",
		`{"item":"nuggets","action":"accept"}`)

	rec, resp := doRequest(t, h, http.MethodGet, "/api/recommendation-feedback/summary?minutes=120&limit=50", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", rec.Code)
	}
	if analytics.lastMinutes != 120 || analytics.lastLimit != 50 {
		t.Errorf("query params passed = (%d, %d)", analytics.lastMinutes, analytics.lastLimit)
	}

	data, _ := resp.Data.(map[string]any)
	ma, _ := data["model_adaptation"].(map[string]any)
	entry, _ := ma["nuggets"].(map[string]any)
	if entry == nil {
		t.Fatalf("model_adaptation missing nuggets: %v", data["model_adaptation"])
	}
	if entry["feedback_events"] != float64(1) {
		t.Errorf("feedback_events = %v, want 1", entry["feedback_events"])
	}
}

func TestAnalyticsHistoryDefaults(t *testing.T) {
	rt, _, analytics := newTestRouter(t)
	h := rt.Handler()

	analytics.history = store.History{WindowMinutes: 60, BucketSec: 1, Count: 0, Points: []store.Point{}}

	rec, _ := doRequest(t, h, http.MethodGet, "/api/analytics/history", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", rec.Code)
	}
	if analytics.lastMinutes != 60 || analytics.lastLimit != 600 || analytics.lastBucket != 1 {
		t.Errorf("defaults = (%d, %d, %d)", analytics.lastMinutes, analytics.lastLimit, analytics.lastBucket)
	}

	rec, _ = doRequest(t, h, http.MethodGet, "/api/analytics/history?minutes=30&limit=100&bucket_sec=15", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", rec.Code)
	}
	if analytics.lastMinutes != 30 || analytics.lastLimit != 100 || analytics.lastBucket != 15 {
		t.Errorf("params = (%d, %d, %d)", analytics.lastMinutes, analytics.lastLimit, analytics.lastBucket)
	}
}

func TestUpstreamMetricsEndpoint(t *testing.T) {
	rt, eng, _ := newTestRouter(t)
	h := rt.Handler()

	rec, _ := doRequest(t, h, http.MethodGet, "/api/metrics", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d, want 503 before first reading", rec.Code)
	}

	publishCycle(t, eng)

	rec, resp := doRequest(t, h, http.MethodGet, "/api/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", rec.Code)
	}
	data, _ := resp.Data.(map[string]any)
	if data["stream_status"] != "ok" {
		t.Errorf("stream_status = %v", data["stream_status"])
	}
	if data["total_customers"] != float64(9) {
		t.Errorf("total_customers = %v", data["total_customers"])
	}
}

func TestBusinessProfileEndpoints(t *testing.T) {
	rt, eng, _ := newTestRouter(t)
	h := rt.Handler()

	rec, _ := doRequest(t, h, http.MethodGet, "/api/business-profile", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d, want 503 without profile", rec.Code)
	}

	// Invalid profile: no menu items.
	rec, resp := doRequest(t, h, http.MethodPost, "/api/business-profile",
		`{"business_name":"Empty Diner"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d, want 422 for invalid profile", rec.Code)
	}
	if resp.Error == nil || resp.Error.Code != ErrCodeValidationFailed {
		t.Fatalf("error = %+v", resp.Error)
	}

	// Reset installs the sample.
	rec, resp = doRequest(t, h, http.MethodPost, "/api/business-profile/reset", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("reset status=%d, want 200", rec.Code)
	}
	data, _ := resp.Data.(map[string]any)
	if data["business_name"] != "Steel City Chicken" {
		t.Errorf("business_name = %v", data["business_name"])
	}

	rec, _ = doRequest(t, h, http.MethodGet, "/api/business-profile", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status=%d, want 200", rec.Code)
	}

	if _, ok := eng.Profile(); !ok {
		t.Error("engine has no profile after reset")
	}
}

func TestSecurityHeadersAndRequestID(t *testing.T) {
	rt, _, _ := newTestRouter(t)
	h := rt.Handler()

	rec, _ := doRequest(t, h, http.MethodGet, "/api/health/live", "")
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing X-Content-Type-Options")
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("missing X-Frame-Options")
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}

	// Inbound request IDs are honored.
	req := httptest.NewRequest(http.MethodGet, "/api/health/live", nil)
	req.Header.Set("X-Request-ID", "trace-me-123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Header().Get("X-Request-ID") != "trace-me-123" {
		t.Errorf("X-Request-ID = %q", rr.Header().Get("X-Request-ID"))
	}
}

func TestPrometheusEndpoint(t *testing.T) {
	rt, _, _ := newTestRouter(t)
	h := rt.Handler()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "dropdeck_") {
		t.Error("metrics exposition missing dropdeck_ series")
	}
}

func TestUnknownRouteReturnsEnvelope(t *testing.T) {
	rt, _, _ := newTestRouter(t)
	h := rt.Handler()

	rec, resp := doRequest(t, h, http.MethodGet, "/api/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want 404", rec.Code)
	}
	if resp.Error == nil || resp.Error.Code != ErrCodeNotFound {
		t.Fatalf("error = %+v", resp.Error)
	}
}

func TestRequestCounterRecordsStatusCode(t *testing.T) {
	rt, _, _ := newTestRouter(t)
	h := rt.Handler()

	// No cycle published yet, so recommendations answers 503.
	doRequest(t, h, http.MethodGet, "/api/recommendations", "")

	rec, _ := doRequest(t, h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", rec.Code)
	}
	want := `dropdeck_api_requests_total{endpoint="/api/recommendations",method="GET",status_code="503"}`
	if !strings.Contains(rec.Body.String(), want) {
		t.Errorf("exposition missing %s", want)
	}
}

func TestRateLimitReturnsEnvelope(t *testing.T) {
	rt, _, _ := newTestRouter(t)
	rt.cfg.RateLimitReqs = 2
	h := rt.Handler()

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last, _ = doRequest(t, h, http.MethodGet, "/api/recommendations", "")
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("status=%d, want 429 on third request", last.Code)
	}
	var resp APIResponse
	if err := json.Unmarshal(last.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode 429 body: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != ErrCodeTooManyRequests {
		t.Fatalf("error = %+v", resp.Error)
	}
}
