// Dropdeck - Queue Intelligence and Batch-Drop Recommendations for Food Service
// Copyright 2026 Quickserve Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quickserve-labs/dropdeck

// Package config provides layered configuration loading for Dropdeck.
//
// Configuration is resolved in order of precedence: environment variables,
// then an optional YAML config file, then built-in defaults. See koanf.go
// for the loading machinery.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the Dropdeck server.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
	Stream     StreamConfig     `koanf:"stream"`
	Forecast   ForecastConfig   `koanf:"forecast"`
	Decision   DecisionConfig   `koanf:"decision"`
	Impact     ImpactConfig     `koanf:"impact"`
	Adaptation AdaptationConfig `koanf:"adaptation"`
	Database   DatabaseConfig   `koanf:"database"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// CORSOrigins lists allowed dashboard origins.
	CORSOrigins []string `koanf:"cors_origins"`

	// RateLimitReqs requests per RateLimitWindow per client IP.
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// StreamConfig configures the upstream metrics source (the vision pipeline
// aggregate). Mode "simulated" runs a built-in queue simulator for standalone
// and demo deployments; mode "http" polls a collaborator endpoint.
type StreamConfig struct {
	Mode         string        `koanf:"mode"`
	URL          string        `koanf:"url"`
	PollInterval time.Duration `koanf:"poll_interval"`
	Timeout      time.Duration `koanf:"timeout"`

	// Circuit breaker settings for the HTTP poller. When the breaker is
	// open the stream is reported as unavailable rather than retried.
	BreakerMaxFailures uint32        `koanf:"breaker_max_failures"`
	BreakerOpenFor     time.Duration `koanf:"breaker_open_for"`
}

// ForecastConfig tunes the queue forecaster.
type ForecastConfig struct {
	// WindowSize is the maximum number of samples retained for trend
	// computation.
	WindowSize int `koanf:"window_size"`

	// HorizonMin is the projection horizon in minutes.
	HorizonMin float64 `koanf:"horizon_min"`

	// SurgeThreshold and FallThreshold classify the trend (customers/min).
	// FallThreshold must be negative.
	SurgeThreshold float64 `koanf:"surge_threshold"`
	FallThreshold  float64 `koanf:"fall_threshold"`

	// BaseConfidence through MaxConfidence bound the confidence score.
	// FullWindowSamples is the sample count at which the window no longer
	// penalizes confidence.
	BaseConfidence    float64 `koanf:"base_confidence"`
	MaxConfidence     float64 `koanf:"max_confidence"`
	FullWindowSamples int     `koanf:"full_window_samples"`

	// DegradedPenalty is subtracted from confidence while the upstream
	// stream reports degraded health.
	DegradedPenalty float64 `koanf:"degraded_penalty"`
}

// DecisionConfig tunes the inventory-aware decision engine.
type DecisionConfig struct {
	// Interval is the decision lock cadence. Committed decisions are held
	// constant for this long.
	Interval time.Duration `koanf:"interval"`

	// DropCadenceMin is the operational drop cadence surfaced in the
	// assumptions payload.
	DropCadenceMin float64 `koanf:"drop_cadence_min"`

	// CookTime is how long a dropped batch spends in the fryer before it
	// counts as ready inventory.
	CookTime time.Duration `koanf:"cook_time"`

	// MediumShortfallRatio and HighShortfallRatio map shortfall ratio to
	// urgency tiers. High must exceed medium.
	MediumShortfallRatio float64 `koanf:"medium_shortfall_ratio"`
	HighShortfallRatio   float64 `koanf:"high_shortfall_ratio"`
}

// ImpactConfig calibrates the directional business impact heuristics.
type ImpactConfig struct {
	// WaitPerUnitMin converts closed shortfall units into minutes of wait
	// reduction.
	WaitPerUnitMin float64 `koanf:"wait_per_unit_min"`

	// QueuePressureRef is the projected customer count treated as full
	// queue pressure.
	QueuePressureRef float64 `koanf:"queue_pressure_ref"`

	// PressureWaitWeight scales queue pressure into the wait estimate.
	PressureWaitWeight float64 `koanf:"pressure_wait_weight"`

	// MinWaitReductionMin and MaxWaitReductionMin clamp the wait estimate.
	MinWaitReductionMin float64 `koanf:"min_wait_reduction_min"`
	MaxWaitReductionMin float64 `koanf:"max_wait_reduction_min"`

	// ConversionLiftPerMin and MaxConversionLift translate wait reduction
	// into an averted-stockout conversion lift.
	ConversionLiftPerMin float64 `koanf:"conversion_lift_per_min"`
	MaxConversionLift    float64 `koanf:"max_conversion_lift"`
}

// AdaptationConfig tunes the feedback-driven multiplier loop.
type AdaptationConfig struct {
	// MinMultiplier and MaxMultiplier bound every item multiplier.
	MinMultiplier float64 `koanf:"min_multiplier"`
	MaxMultiplier float64 `koanf:"max_multiplier"`

	// AcceptStep is the small reinforcement applied on accept.
	AcceptStep float64 `koanf:"accept_step"`

	// OverrideDamping is the fraction of the distance toward the override
	// ratio applied per event.
	OverrideDamping float64 `koanf:"override_damping"`

	// IgnoreDecay is the fraction of the distance back toward neutral
	// (1.0) applied on ignore.
	IgnoreDecay float64 `koanf:"ignore_decay"`

	// StatePath is the Badger directory holding per-item multiplier state
	// across restarts.
	StatePath string `koanf:"state_path"`

	// EvaluateInterval is how often pending feedback outcomes are
	// re-examined.
	EvaluateInterval time.Duration `koanf:"evaluate_interval"`
}

// DatabaseConfig holds analytics store settings.
type DatabaseConfig struct {
	// Path is the DuckDB database file. Empty means in-memory.
	Path string `koanf:"path"`

	// MemoryPoints is the number of recent analytics points kept in the
	// in-memory ring for live streaming.
	MemoryPoints int `koanf:"memory_points"`
}

// Validate checks cross-field invariants. It is called by LoadWithKoanf and
// again by the server on hot-reloadable sections.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [1, 65535], got %d", c.Server.Port)
	}

	if c.Stream.Mode != "simulated" && c.Stream.Mode != "http" {
		return fmt.Errorf("stream.mode must be \"simulated\" or \"http\", got %q", c.Stream.Mode)
	}
	if c.Stream.Mode == "http" && c.Stream.URL == "" {
		return fmt.Errorf("stream.url is required when stream.mode is \"http\"")
	}
	if c.Stream.PollInterval <= 0 {
		return fmt.Errorf("stream.poll_interval must be positive")
	}

	if c.Forecast.WindowSize < 2 {
		return fmt.Errorf("forecast.window_size must be at least 2, got %d", c.Forecast.WindowSize)
	}
	if c.Forecast.HorizonMin <= 0 {
		return fmt.Errorf("forecast.horizon_min must be positive, got %g", c.Forecast.HorizonMin)
	}
	if c.Forecast.FallThreshold >= 0 {
		return fmt.Errorf("forecast.fall_threshold must be negative, got %g", c.Forecast.FallThreshold)
	}
	if c.Forecast.SurgeThreshold <= 0 {
		return fmt.Errorf("forecast.surge_threshold must be positive, got %g", c.Forecast.SurgeThreshold)
	}

	if c.Decision.Interval < 5*time.Second {
		return fmt.Errorf("decision.interval must be at least 5s, got %s", c.Decision.Interval)
	}
	if c.Decision.HighShortfallRatio <= c.Decision.MediumShortfallRatio {
		return fmt.Errorf("decision.high_shortfall_ratio (%g) must exceed medium_shortfall_ratio (%g)",
			c.Decision.HighShortfallRatio, c.Decision.MediumShortfallRatio)
	}

	if c.Adaptation.MinMultiplier <= 0 || c.Adaptation.MaxMultiplier <= c.Adaptation.MinMultiplier {
		return fmt.Errorf("adaptation multiplier bounds invalid: [%g, %g]",
			c.Adaptation.MinMultiplier, c.Adaptation.MaxMultiplier)
	}
	if c.Adaptation.OverrideDamping <= 0 || c.Adaptation.OverrideDamping > 1 {
		return fmt.Errorf("adaptation.override_damping must be in (0, 1], got %g", c.Adaptation.OverrideDamping)
	}

	if c.Impact.MaxWaitReductionMin < c.Impact.MinWaitReductionMin {
		return fmt.Errorf("impact wait reduction bounds invalid: [%g, %g]",
			c.Impact.MinWaitReductionMin, c.Impact.MaxWaitReductionMin)
	}

	return nil
}
