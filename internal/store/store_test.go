// Dropdeck - Queue Intelligence and Batch-Drop Recommendations for Food Service
// Copyright 2026 Quickserve Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quickserve-labs/dropdeck

package store

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(context.Background(), Config{
		Path:         filepath.Join(t.TempDir(), "dropdeck-test.duckdb"),
		MemoryPoints: 300,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordPointAssignsIncreasingIDs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	first, err := s.RecordPoint(ctx, Point{Timestamp: now, StreamStatus: "ok", TotalCustomers: 8, QueueState: "stable"})
	if err != nil {
		t.Fatalf("RecordPoint: %v", err)
	}
	second, err := s.RecordPoint(ctx, Point{Timestamp: now.Add(time.Second), StreamStatus: "ok", TotalCustomers: 9, QueueState: "stable"})
	if err != nil {
		t.Fatalf("RecordPoint: %v", err)
	}
	if second <= first {
		t.Errorf("ids not increasing: %d then %d", first, second)
	}
}

func TestGetHistoryReturnsAscendingWindow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		_, err := s.RecordPoint(ctx, Point{
			Timestamp:      now.Add(time.Duration(i-4) * time.Minute),
			StreamStatus:   "ok",
			TotalCustomers: float64(i),
			QueueState:     "stable",
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	h, err := s.GetHistory(ctx, 60, 100, 1)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if h.Count != 5 {
		t.Fatalf("count = %d, want 5", h.Count)
	}
	for i := 1; i < len(h.Points); i++ {
		if h.Points[i].Timestamp.Before(h.Points[i-1].Timestamp) {
			t.Fatal("history not in ascending time order")
		}
	}
}

func TestFeedbackInsertAndEvaluate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	submitted := time.Now().UTC().Add(-20 * time.Minute)

	// Live samples inside the event's horizon window averaging 10 customers.
	for i := 0; i < 4; i++ {
		_, err := s.RecordPoint(ctx, Point{
			Timestamp:      submitted.Add(time.Duration(i) * time.Minute),
			StreamStatus:   "ok",
			TotalCustomers: 10,
			QueueState:     "surging",
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	ev, err := s.InsertFeedback(ctx, FeedbackEvent{
		Timestamp:          submitted,
		ItemKey:            "fillets",
		ItemLabel:          "Chicken Fillets",
		Action:             "override",
		RecommendedUnits:   16,
		ChosenUnits:        8,
		BaselineUnits:      16,
		MaxUnitSize:        24,
		UnitCostUSD:        0.92,
		UnitsPerOrder:      0.5,
		ForecastHorizonMin: 8,
		ProjectedCustomers: 20.6,
		QueueState:         "surging",
		AvgTicketUSD:       10.5,
	})
	if err != nil {
		t.Fatalf("InsertFeedback: %v", err)
	}
	if ev.ID == 0 || ev.OutcomeStatus != OutcomePending {
		t.Fatalf("inserted event = %+v", ev)
	}
	if ev.ExpectedWasteAvoidedUnits != 8 {
		t.Errorf("expected waste = %g, want 8", ev.ExpectedWasteAvoidedUnits)
	}

	evaluated, insufficient, err := s.EvaluatePendingOutcomes(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("EvaluatePendingOutcomes: %v", err)
	}
	if evaluated != 1 || insufficient != 0 {
		t.Fatalf("evaluated=%d insufficient=%d, want 1/0", evaluated, insufficient)
	}

	events, err := s.RecentFeedback(ctx, 60, 100)
	if err != nil {
		t.Fatalf("RecentFeedback: %v", err)
	}
	got := events[0]
	if got.OutcomeStatus != OutcomeEvaluated {
		t.Fatalf("status = %s, want evaluated", got.OutcomeStatus)
	}
	if got.ActualCustomers == nil || math.Abs(*got.ActualCustomers-10) > 1e-9 {
		t.Errorf("actual = %v, want 10", got.ActualCustomers)
	}
	if got.ForecastErrorCustomers == nil || math.Abs(*got.ForecastErrorCustomers-(10-20.6)) > 1e-9 {
		t.Errorf("forecast error = %v, want -10.6", got.ForecastErrorCustomers)
	}
}

func TestEvaluateMarksInsufficientWithoutSamples(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.InsertFeedback(ctx, FeedbackEvent{
		Timestamp:          time.Now().UTC().Add(-30 * time.Minute),
		ItemKey:            "fries",
		ItemLabel:          "Fries",
		Action:             "accept",
		RecommendedUnits:   10,
		ChosenUnits:        10,
		BaselineUnits:      18,
		MaxUnitSize:        28,
		UnitsPerOrder:      0.72,
		ForecastHorizonMin: 8,
	})
	if err != nil {
		t.Fatal(err)
	}

	evaluated, insufficient, err := s.EvaluatePendingOutcomes(ctx, time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if evaluated != 0 || insufficient != 1 {
		t.Errorf("evaluated=%d insufficient=%d, want 0/1", evaluated, insufficient)
	}
}

func TestEvaluateSkipsEventsInsideHorizon(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.InsertFeedback(ctx, FeedbackEvent{
		Timestamp:          time.Now().UTC(),
		ItemKey:            "fries",
		ItemLabel:          "Fries",
		Action:             "ignore",
		ForecastHorizonMin: 8,
		MaxUnitSize:        28,
	})
	if err != nil {
		t.Fatal(err)
	}

	evaluated, insufficient, err := s.EvaluatePendingOutcomes(ctx, time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if evaluated != 0 || insufficient != 0 {
		t.Errorf("fresh event resolved early: %d/%d", evaluated, insufficient)
	}
}

func TestEvaluateOutcomeFormulas(t *testing.T) {
	ev := FeedbackEvent{
		BaselineUnits:      16,
		ChosenUnits:        8,
		UnitsPerOrder:      0.5,
		UnitCostUSD:        0.92,
		AvgTicketUSD:       10.0,
		ProjectedCustomers: 20,
	}

	// Actual 10 customers require round(10*0.5) = 5 units. Baseline
	// overproduces 11, chosen overproduces 3: waste delta 8, cost 7.36.
	o := evaluateOutcome(ev, 10)
	if o.wasteDeltaUnits != 8 {
		t.Errorf("waste delta = %g, want 8", o.wasteDeltaUnits)
	}
	if math.Abs(o.costDeltaUSD-7.36) > 1e-9 {
		t.Errorf("cost delta = %g, want 7.36", o.costDeltaUSD)
	}
	if o.forecastError != -10 {
		t.Errorf("forecast error = %g, want -10", o.forecastError)
	}
	if o.revenueDeltaUSD != 0 {
		t.Errorf("revenue delta = %g, want 0 with no shortfall change", o.revenueDeltaUSD)
	}

	// Actual 60 customers require 30 units: chosen shorts by 22 vs
	// baseline's 14, so the override cost revenue.
	o = evaluateOutcome(ev, 60)
	if want := (14.0 - 22.0) / 0.5 * 10.0; math.Abs(o.revenueDeltaUSD-want) > 1e-9 {
		t.Errorf("revenue delta = %g, want %g", o.revenueDeltaUSD, want)
	}
}

func TestBucketPointsAverages(t *testing.T) {
	base := time.Date(2026, 3, 14, 11, 0, 0, 0, time.UTC)
	points := []Point{
		{ID: 1, Timestamp: base, TotalCustomers: 10, StreamStatus: "ok", QueueState: "stable"},
		{ID: 2, Timestamp: base.Add(5 * time.Second), TotalCustomers: 14, StreamStatus: "ok", QueueState: "surging"},
		{ID: 3, Timestamp: base.Add(30 * time.Second), TotalCustomers: 20, StreamStatus: "ok", QueueState: "surging"},
	}

	out := bucketPoints(points, 30)
	if len(out) != 2 {
		t.Fatalf("buckets = %d, want 2", len(out))
	}
	if out[0].TotalCustomers != 12 {
		t.Errorf("first bucket avg = %g, want 12", out[0].TotalCustomers)
	}
	if out[0].ID != 2 || out[0].QueueState != "surging" {
		t.Errorf("first bucket carries id=%d state=%s, want latest members", out[0].ID, out[0].QueueState)
	}
	if out[1].TotalCustomers != 20 {
		t.Errorf("second bucket avg = %g, want 20", out[1].TotalCustomers)
	}
}

func TestSummarize(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	now := time.Now().UTC()

	events := []FeedbackEvent{
		{Action: "accept", OutcomeStatus: OutcomeEvaluated, ExpectedCostSavedUSD: 4,
			RealizedCostDeltaUSD: f(2), RealizedWasteDeltaUnits: f(3), ForecastErrorCustomers: f(1.0)},
		{Action: "override", OutcomeStatus: OutcomeEvaluated, ExpectedCostSavedUSD: 4,
			RealizedCostDeltaUSD: f(2), RealizedRevenueDeltaUSD: f(5), ForecastErrorCustomers: f(-0.4)},
		{Action: "ignore", OutcomeStatus: OutcomePending},
		{Action: "ignore", OutcomeStatus: OutcomeInsufficient},
	}

	sum := summarize(events, now, 60)
	if sum.Adoption.Accepted != 1 || sum.Adoption.Overridden != 1 || sum.Adoption.Ignored != 2 {
		t.Errorf("adoption counts = %+v", sum.Adoption)
	}
	if sum.Adoption.AdoptionRate != 0.5 {
		t.Errorf("adoption rate = %g, want 0.5", sum.Adoption.AdoptionRate)
	}
	if sum.Outcomes.Evaluated != 2 || sum.Outcomes.Pending != 1 || sum.Outcomes.InsufficientData != 1 {
		t.Errorf("outcome counts = %+v", sum.Outcomes)
	}
	if sum.Outcomes.RealizedVsExpectedRatio != 0.5 {
		t.Errorf("ratio = %g, want 0.5", sum.Outcomes.RealizedVsExpectedRatio)
	}
	if got := sum.PredictionImpact.ForecastMAECustomers; math.Abs(got-0.7) > 1e-9 {
		t.Errorf("mae = %g, want 0.7", got)
	}
	if sum.PredictionImpact.Direction != "under-predicting" {
		t.Errorf("direction = %s, want under-predicting", sum.PredictionImpact.Direction)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	sum := summarize(nil, time.Now().UTC(), 60)
	if sum.Count != 0 || sum.Adoption.AdoptionRate != 0 {
		t.Errorf("empty summary = %+v", sum)
	}
	if sum.PredictionImpact.Direction != "well-calibrated" {
		t.Errorf("direction = %s", sum.PredictionImpact.Direction)
	}
	if sum.Events == nil {
		t.Error("events must serialize as [], not null")
	}
}
