// Dropdeck - Queue Intelligence and Batch-Drop Recommendations for Food Service
// Copyright 2026 Quickserve Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quickserve-labs/dropdeck

package stream

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

// peoplePerCar mirrors the vision collaborator's passenger estimate for a
// detected drive-thru vehicle.
const peoplePerCar = 1.6

// avgServiceTimeSec converts occupancy into an estimated wait.
const avgServiceTimeSec = 48.0

// SimulatedSource synthesizes a plausible queue signal for standalone and
// development runs: a slow lunch-rush wave with per-tick jitter, plus
// periodic degraded windows so downstream confidence handling is exercised.
type SimulatedSource struct {
	mu    sync.Mutex
	rng   *rand.Rand
	start time.Time
	now   func() time.Time
}

// NewSimulatedSource creates a deterministic simulated source for the seed.
func NewSimulatedSource(seed int64) *SimulatedSource {
	return &SimulatedSource{
		rng:   rand.New(rand.NewSource(seed)),
		start: time.Now().UTC(),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Fetch synthesizes the next snapshot. Never fails.
func (s *SimulatedSource) Fetch(_ context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.now()
	elapsedMin := ts.Sub(s.start).Minutes()

	// A 40 minute wave between roughly 4 and 20 customers, with jitter.
	base := 12 + 8*math.Sin(2*math.Pi*elapsedMin/40)
	jitter := s.rng.NormFloat64() * 1.2
	total := math.Max(0, base+jitter)

	cars := int(math.Round(total * 0.4 / peoplePerCar))
	if cars < 0 {
		cars = 0
	}
	estPax := math.Round(float64(cars)*peoplePerCar*10) / 10
	persons := int(math.Max(0, math.Round(total-estPax)))
	total = math.Round((estPax+float64(persons))*10) / 10

	status := StatusOK
	// A short degraded window once per wave keeps the confidence penalty
	// path honest in demos.
	if phase := math.Mod(elapsedMin, 40); phase >= 35 && phase < 37 {
		status = StatusDegraded
	}

	return Snapshot{
		Timestamp:        ts,
		Status:           status,
		DriveThruCars:    cars,
		DriveThruEstPax:  estPax,
		InStorePersons:   persons,
		TotalCustomers:   total,
		EstimatedWaitMin: math.Round(total*avgServiceTimeSec/60*10) / 10,
		ProcessingFPS:    14 + s.rng.Float64()*4,
	}, nil
}
