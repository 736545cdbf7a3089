// Dropdeck - Queue Intelligence and Batch-Drop Recommendations for Food Service
// Copyright 2026 Quickserve Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quickserve-labs/dropdeck

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order
// of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/dropdeck/config.yaml",
	"/etc/dropdeck/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "DROPDECK_CONFIG"

// envPrefix namespaces all environment overrides, e.g.
// DROPDECK_SERVER_PORT=8080 -> server.port.
const envPrefix = "DROPDECK_"

// defaultConfig returns a Config with all defaults applied. These are
// overridden by config file and environment variables in that order.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"http://localhost:3000", "http://127.0.0.1:3000"},
			RateLimitReqs:   300,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Stream: StreamConfig{
			Mode:               "simulated",
			URL:                "",
			PollInterval:       time.Second,
			Timeout:            5 * time.Second,
			BreakerMaxFailures: 5,
			BreakerOpenFor:     15 * time.Second,
		},
		Forecast: ForecastConfig{
			WindowSize:        90,
			HorizonMin:        8.0,
			SurgeThreshold:    0.85,
			FallThreshold:     -0.75,
			BaseConfidence:    0.45,
			MaxConfidence:     0.95,
			FullWindowSamples: 18,
			DegradedPenalty:   0.15,
		},
		Decision: DecisionConfig{
			Interval:             30 * time.Second,
			DropCadenceMin:       4.0,
			CookTime:             4 * time.Minute,
			MediumShortfallRatio: 0.35,
			HighShortfallRatio:   0.65,
		},
		Impact: ImpactConfig{
			WaitPerUnitMin:       0.125,
			QueuePressureRef:     24.0,
			PressureWaitWeight:   1.5,
			MinWaitReductionMin:  0.2,
			MaxWaitReductionMin:  3.2,
			ConversionLiftPerMin: 0.025,
			MaxConversionLift:    0.16,
		},
		Adaptation: AdaptationConfig{
			MinMultiplier:    0.5,
			MaxMultiplier:    2.0,
			AcceptStep:       0.02,
			OverrideDamping:  0.4,
			IgnoreDecay:      0.1,
			StatePath:        "/data/adaptation",
			EvaluateInterval: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path:         "/data/dropdeck.duckdb",
			MemoryPoints: 7200,
		},
	}
}

// LoadWithKoanf loads configuration using koanf v2 with layered sources:
//
//  1. Defaults: built-in sensible defaults
//  2. Config file: optional YAML file (if present)
//  3. Environment variables: DROPDECK_* overrides any setting
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// DROPDECK_DECISION_INTERVAL -> decision.interval. Section names never
	// contain underscores, so only the first separator becomes a dot.
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		trimmed := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.Replace(trimmed, "_", ".", 1)
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths. Returns the
// first file found, or empty string.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}
