// Dropdeck - Queue Intelligence and Batch-Drop Recommendations for Food Service
// Copyright 2026 Quickserve Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quickserve-labs/dropdeck

// Package stream supplies queue-occupancy snapshots from the upstream vision
// collaborator. The collaborator itself (camera ingest, detection, tracking)
// is out of scope; this package only polls its metrics endpoint, or
// synthesizes an equivalent signal for standalone runs.
package stream

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/goccy/go-json"
)

// Status describes the health of the upstream signal.
type Status string

const (
	StatusOK           Status = "ok"
	StatusDegraded     Status = "degraded"
	StatusError        Status = "error"
	StatusInitializing Status = "initializing"
)

// Snapshot is one occupancy reading from the upstream collaborator.
type Snapshot struct {
	Timestamp        time.Time `json:"timestamp"`
	Status           Status    `json:"stream_status"`
	Err              string    `json:"stream_error,omitempty"`
	DriveThruCars    int       `json:"drive_thru_car_count"`
	DriveThruEstPax  float64   `json:"drive_thru_est_passengers"`
	InStorePersons   int       `json:"in_store_person_count"`
	TotalCustomers   float64   `json:"total_customers"`
	EstimatedWaitMin float64   `json:"estimated_wait_time_min"`
	ProcessingFPS    float64   `json:"processing_fps"`
}

// Live reports whether the snapshot carries usable occupancy data.
func (s Snapshot) Live() bool {
	return s.Status == StatusOK || s.Status == StatusDegraded
}

// ErrorSnapshot wraps a fetch failure as an error-status snapshot so the
// downstream pipeline degrades instead of halting.
func ErrorSnapshot(err error) Snapshot {
	msg := "upstream metrics unavailable"
	if err != nil {
		msg = err.Error()
	}
	return Snapshot{
		Timestamp: time.Now().UTC(),
		Status:    StatusError,
		Err:       msg,
	}
}

// Source produces occupancy snapshots. Fetch must never block past the
// context deadline; errors are reported, never panicked.
type Source interface {
	Fetch(ctx context.Context) (Snapshot, error)
}

// wirePayload is the metrics endpoint's JSON shape.
type wirePayload struct {
	Timestamp    string  `json:"timestamp"`
	StreamStatus string  `json:"stream_status"`
	StreamError  *string `json:"stream_error"`
	DriveThru    struct {
		CarCount      int     `json:"car_count"`
		EstPassengers float64 `json:"est_passengers"`
	} `json:"drive_thru"`
	InStore struct {
		PersonCount int `json:"person_count"`
	} `json:"in_store"`
	Aggregates struct {
		TotalCustomers       float64 `json:"total_customers"`
		EstimatedWaitTimeMin float64 `json:"estimated_wait_time_min"`
	} `json:"aggregates"`
	Performance struct {
		ProcessingFPS float64 `json:"processing_fps"`
	} `json:"performance"`
}

func decodeSnapshot(body []byte) (Snapshot, error) {
	var payload wirePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return Snapshot{}, fmt.Errorf("decode metrics payload: %w", err)
	}

	ts, err := time.Parse(time.RFC3339, payload.Timestamp)
	if err != nil {
		ts = time.Now().UTC()
	}

	status := Status(payload.StreamStatus)
	switch status {
	case StatusOK, StatusDegraded, StatusError, StatusInitializing:
	default:
		status = StatusDegraded
	}

	snap := Snapshot{
		Timestamp:        ts,
		Status:           status,
		DriveThruCars:    payload.DriveThru.CarCount,
		DriveThruEstPax:  payload.DriveThru.EstPassengers,
		InStorePersons:   payload.InStore.PersonCount,
		TotalCustomers:   math.Max(0, payload.Aggregates.TotalCustomers),
		EstimatedWaitMin: math.Max(0, payload.Aggregates.EstimatedWaitTimeMin),
		ProcessingFPS:    math.Max(0, payload.Performance.ProcessingFPS),
	}
	if payload.StreamError != nil {
		snap.Err = *payload.StreamError
	}
	return snap, nil
}

func fetchHTTP(ctx context.Context, client *http.Client, url string) (Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("build metrics request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch metrics: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Snapshot{}, fmt.Errorf("metrics endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Snapshot{}, fmt.Errorf("read metrics body: %w", err)
	}
	return decodeSnapshot(body)
}
