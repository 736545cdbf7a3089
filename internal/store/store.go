// Dropdeck - Queue Intelligence and Batch-Drop Recommendations for Food Service
// Copyright 2026 Quickserve Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quickserve-labs/dropdeck

// Package store persists analytics samples and recommendation feedback in
// DuckDB and serves the history and feedback-summary read paths.
//
// The recompute hot path never touches this package; writes happen in the
// collector and evaluator services.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/quickserve-labs/dropdeck/internal/logging"
	"github.com/quickserve-labs/dropdeck/internal/metrics"
)

// Config tunes the analytics store.
type Config struct {
	// Path is the DuckDB database file.
	Path string
	// MemoryPoints bounds the default history fetch size.
	MemoryPoints int
}

// Store wraps the DuckDB connection.
type Store struct {
	db  *sql.DB
	cfg Config
}

// Open opens the database, creating the file and schema as needed.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.MemoryPoints < 300 {
		cfg.MemoryPoints = 300
	}

	if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("duckdb", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open analytics database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, cfg: cfg}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	logging.Info().Str("path", cfg.Path).Msg("analytics store ready")
	return s, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	queries := []string{
		`CREATE SEQUENCE IF NOT EXISTS analytics_samples_id_seq`,
		`CREATE TABLE IF NOT EXISTS analytics_samples (
			id BIGINT PRIMARY KEY DEFAULT nextval('analytics_samples_id_seq'),
			timestamp TIMESTAMP NOT NULL,
			stream_status TEXT NOT NULL,
			total_customers DOUBLE NOT NULL,
			wait_minutes DOUBLE NOT NULL,
			trend DOUBLE NOT NULL,
			confidence DOUBLE NOT NULL,
			processing_fps DOUBLE NOT NULL,
			queue_state TEXT NOT NULL,
			projected_customers DOUBLE NOT NULL,
			revenue_protected_usd DOUBLE NOT NULL,
			wait_reduction_min DOUBLE NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_analytics_samples_timestamp
			ON analytics_samples(timestamp)`,

		`CREATE SEQUENCE IF NOT EXISTS recommendation_feedback_id_seq`,
		`CREATE TABLE IF NOT EXISTS recommendation_feedback (
			id BIGINT PRIMARY KEY DEFAULT nextval('recommendation_feedback_id_seq'),
			timestamp TIMESTAMP NOT NULL,
			item_key TEXT NOT NULL,
			item_label TEXT NOT NULL,
			action TEXT NOT NULL,
			note TEXT,
			recommended_units INTEGER NOT NULL,
			chosen_units INTEGER NOT NULL,
			baseline_units INTEGER NOT NULL,
			max_unit_size INTEGER NOT NULL,
			unit_cost_usd DOUBLE NOT NULL,
			units_per_order DOUBLE NOT NULL,
			forecast_horizon_min DOUBLE NOT NULL,
			projected_customers DOUBLE NOT NULL,
			queue_state TEXT NOT NULL,
			avg_ticket_usd DOUBLE NOT NULL,
			expected_cost_saved_usd DOUBLE NOT NULL,
			expected_waste_avoided_units DOUBLE NOT NULL,
			outcome_status TEXT NOT NULL DEFAULT 'pending',
			evaluated_at TIMESTAMP,
			actual_customers DOUBLE,
			forecast_error_customers DOUBLE,
			realized_waste_delta_units DOUBLE,
			realized_cost_delta_usd DOUBLE,
			realized_revenue_delta_usd DOUBLE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_feedback_timestamp
			ON recommendation_feedback(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_feedback_outcome_status
			ON recommendation_feedback(outcome_status)`,
	}

	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("migrate analytics schema: %w", err)
		}
	}
	return nil
}

// Point is one persisted analytics sample joining the upstream occupancy
// reading with the recommendation cycle it produced.
type Point struct {
	ID                  int64     `json:"id"`
	Timestamp           time.Time `json:"timestamp"`
	StreamStatus        string    `json:"stream_status"`
	TotalCustomers      float64   `json:"total_customers"`
	WaitMinutes         float64   `json:"wait_minutes"`
	Trend               float64   `json:"trend"`
	Confidence          float64   `json:"confidence"`
	ProcessingFPS       float64   `json:"processing_fps"`
	QueueState          string    `json:"queue_state"`
	ProjectedCustomers  float64   `json:"projected_customers"`
	RevenueProtectedUSD float64   `json:"revenue_protected_usd"`
	WaitReductionMin    float64   `json:"wait_reduction_min"`
}

// RecordPoint inserts one sample and returns its assigned id.
func (s *Store) RecordPoint(ctx context.Context, p Point) (int64, error) {
	start := time.Now()
	defer func() {
		metrics.StoreQueryDuration.WithLabelValues("record_point").Observe(time.Since(start).Seconds())
	}()

	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO analytics_samples (
			timestamp, stream_status, total_customers, wait_minutes, trend,
			confidence, processing_fps, queue_state, projected_customers,
			revenue_protected_usd, wait_reduction_min
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		p.Timestamp.UTC(), p.StreamStatus, p.TotalCustomers, p.WaitMinutes, p.Trend,
		p.Confidence, p.ProcessingFPS, p.QueueState, p.ProjectedCustomers,
		p.RevenueProtectedUSD, p.WaitReductionMin,
	).Scan(&id)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("record_point").Inc()
		return 0, fmt.Errorf("record analytics point: %w", err)
	}
	return id, nil
}

// History is the bucketed sample history payload.
type History struct {
	Timestamp     time.Time `json:"timestamp"`
	WindowMinutes int       `json:"window_minutes"`
	BucketSec     int       `json:"bucket_sec"`
	Count         int       `json:"count"`
	Points        []Point   `json:"points"`
}

// HistoryBounds clamp the query parameters to sane ranges.
const (
	minHistoryMinutes = 1
	maxHistoryMinutes = 1440
	minHistoryLimit   = 60
	maxHistoryLimit   = 20000
	minBucketSec      = 1
	maxBucketSec      = 120
)

// GetHistory returns recent samples, optionally averaged into fixed-width
// time buckets.
func (s *Store) GetHistory(ctx context.Context, minutes, limit, bucketSec int) (History, error) {
	start := time.Now()
	defer func() {
		metrics.StoreQueryDuration.WithLabelValues("history").Observe(time.Since(start).Seconds())
	}()

	minutes = clampInt(minutes, minHistoryMinutes, maxHistoryMinutes)
	limit = clampInt(limit, minHistoryLimit, maxHistoryLimit)
	bucketSec = clampInt(bucketSec, minBucketSec, maxBucketSec)

	since := time.Now().UTC().Add(-time.Duration(minutes) * time.Minute)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, stream_status, total_customers, wait_minutes,
			trend, confidence, processing_fps, queue_state,
			projected_customers, revenue_protected_usd, wait_reduction_min
		FROM analytics_samples
		WHERE timestamp >= ?
		ORDER BY id DESC
		LIMIT ?`, since, limit)
	if err != nil {
		metrics.StoreErrors.WithLabelValues("history").Inc()
		return History{}, fmt.Errorf("query analytics history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var points []Point
	for rows.Next() {
		var p Point
		if err := rows.Scan(&p.ID, &p.Timestamp, &p.StreamStatus, &p.TotalCustomers,
			&p.WaitMinutes, &p.Trend, &p.Confidence, &p.ProcessingFPS, &p.QueueState,
			&p.ProjectedCustomers, &p.RevenueProtectedUSD, &p.WaitReductionMin); err != nil {
			metrics.StoreErrors.WithLabelValues("history").Inc()
			return History{}, fmt.Errorf("scan analytics point: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		metrics.StoreErrors.WithLabelValues("history").Inc()
		return History{}, fmt.Errorf("iterate analytics history: %w", err)
	}

	// Rows arrive newest-first; history reads oldest-first.
	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}

	if bucketSec > 1 {
		points = bucketPoints(points, bucketSec)
	}

	return History{
		Timestamp:     time.Now().UTC(),
		WindowMinutes: minutes,
		BucketSec:     bucketSec,
		Count:         len(points),
		Points:        points,
	}, nil
}

// bucketPoints averages points into bucketSec-wide windows aligned to the
// epoch. Points must be in ascending time order.
func bucketPoints(points []Point, bucketSec int) []Point {
	if len(points) == 0 || bucketSec <= 1 {
		return points
	}

	type bucket struct {
		point Point
		sums  [8]float64
		count int
	}

	order := make([]int64, 0)
	buckets := make(map[int64]*bucket)

	for _, p := range points {
		epoch := p.Timestamp.Unix()
		key := epoch - epoch%int64(bucketSec)

		b, ok := buckets[key]
		if !ok {
			b = &bucket{point: Point{
				Timestamp: time.Unix(key, 0).UTC(),
			}}
			buckets[key] = b
			order = append(order, key)
		}

		if p.ID > b.point.ID {
			b.point.ID = p.ID
		}
		b.point.StreamStatus = p.StreamStatus
		b.point.QueueState = p.QueueState
		b.sums[0] += p.TotalCustomers
		b.sums[1] += p.WaitMinutes
		b.sums[2] += p.Trend
		b.sums[3] += p.Confidence
		b.sums[4] += p.ProcessingFPS
		b.sums[5] += p.ProjectedCustomers
		b.sums[6] += p.RevenueProtectedUSD
		b.sums[7] += p.WaitReductionMin
		b.count++
	}

	out := make([]Point, 0, len(order))
	for _, key := range order {
		b := buckets[key]
		n := float64(b.count)
		b.point.TotalCustomers = round2(b.sums[0] / n)
		b.point.WaitMinutes = round2(b.sums[1] / n)
		b.point.Trend = round3(b.sums[2] / n)
		b.point.Confidence = round3(b.sums[3] / n)
		b.point.ProcessingFPS = round2(b.sums[4] / n)
		b.point.ProjectedCustomers = round2(b.sums[5] / n)
		b.point.RevenueProtectedUSD = round2(b.sums[6] / n)
		b.point.WaitReductionMin = round2(b.sums[7] / n)
		out = append(out, b.point)
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
