// Dropdeck - Queue Intelligence and Batch-Drop Recommendations for Food Service
// Copyright 2026 Quickserve Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quickserve-labs/dropdeck

// Package adaptation maintains the per-item demand multiplier learned from
// operator feedback.
//
// The multiplier is a small bounded recurrence, not a model: accepts nudge it
// up, overrides pull it a damped fraction toward the operator's chosen ratio,
// ignores decay it toward neutral. State is persisted in Badger so learned
// multipliers survive restarts.
package adaptation

import (
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// Action is an operator response to a recommendation.
type Action string

const (
	ActionAccept   Action = "accept"
	ActionOverride Action = "override"
	ActionIgnore   Action = "ignore"
)

// ValidAction reports whether the action is one of accept/override/ignore.
func ValidAction(a Action) bool {
	switch a {
	case ActionAccept, ActionOverride, ActionIgnore:
		return true
	}
	return false
}

// Config tunes the multiplier recurrence and the state store location.
type Config struct {
	MinMultiplier   float64
	MaxMultiplier   float64
	AcceptStep      float64
	OverrideDamping float64
	IgnoreDecay     float64

	// StatePath is the Badger directory. Ignored when InMemory is set.
	StatePath string
	InMemory  bool
}

// State is the learned adaptation state for one menu item.
type State struct {
	Multiplier     float64 `json:"multiplier"`
	FeedbackEvents int     `json:"feedback_events"`
}

// Apply computes the next multiplier for a feedback action. Pure function:
// ratio is chosen_units / max(1, recommended_units) and only matters for
// overrides. The result is always clamped to [MinMultiplier, MaxMultiplier].
func Apply(cfg Config, old float64, action Action, ratio float64) float64 {
	next := old
	switch action {
	case ActionAccept:
		next = old + cfg.AcceptStep
	case ActionOverride:
		next = old + cfg.OverrideDamping*(old*ratio-old)
	case ActionIgnore:
		next = old + cfg.IgnoreDecay*(1.0-old)
	}
	return math.Max(cfg.MinMultiplier, math.Min(cfg.MaxMultiplier, next))
}

const keyPrefix = "adaptation/"

// stripeCount shards the per-item write locks. Feedback for the same item is
// serialized; different items proceed independently.
const stripeCount = 16

// Manager owns the persisted per-item adaptation state.
type Manager struct {
	cfg     Config
	db      *badger.DB
	stripes [stripeCount]sync.Mutex
}

// Open opens (or creates) the adaptation state store.
func Open(cfg Config) (*Manager, error) {
	opts := badger.DefaultOptions(cfg.StatePath).
		WithInMemory(cfg.InMemory).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open adaptation store: %w", err)
	}
	return &Manager{cfg: cfg, db: db}, nil
}

// Close releases the underlying store.
func (m *Manager) Close() error {
	return m.db.Close()
}

// Get returns the item's current state. Items never seen before start at a
// neutral multiplier of 1.0 with zero events.
func (m *Manager) Get(item string) State {
	state := State{Multiplier: 1.0}

	err := m.db.View(func(txn *badger.Txn) error {
		entry, err := txn.Get([]byte(keyPrefix + item))
		if err != nil {
			return err
		}
		return entry.Value(func(val []byte) error {
			return json.Unmarshal(val, &state)
		})
	})
	if err != nil {
		return State{Multiplier: 1.0}
	}
	return state
}

// Record applies one feedback action to the item's multiplier and persists
// the result. Updates for the same item are serialized so concurrent
// submissions cannot lose increments.
func (m *Manager) Record(item string, action Action, ratio float64) (before, after State, err error) {
	if !ValidAction(action) {
		return State{}, State{}, fmt.Errorf("invalid feedback action %q", action)
	}

	stripe := &m.stripes[stripeFor(item)]
	stripe.Lock()
	defer stripe.Unlock()

	before = m.Get(item)
	after = State{
		Multiplier:     Apply(m.cfg, before.Multiplier, action, ratio),
		FeedbackEvents: before.FeedbackEvents + 1,
	}

	payload, err := json.Marshal(after)
	if err != nil {
		return State{}, State{}, fmt.Errorf("encode adaptation state: %w", err)
	}

	err = m.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+item), payload)
	})
	if err != nil {
		return State{}, State{}, fmt.Errorf("persist adaptation state for %q: %w", item, err)
	}
	return before, after, nil
}

// All returns the persisted state for every item that has received feedback.
func (m *Manager) All() (map[string]State, error) {
	states := make(map[string]State)

	err := m.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(keyPrefix)})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			entry := it.Item()
			item := string(entry.Key()[len(keyPrefix):])
			var state State
			if err := entry.Value(func(val []byte) error {
				return json.Unmarshal(val, &state)
			}); err != nil {
				return err
			}
			states[item] = state
		}
		return nil
	})
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("list adaptation state: %w", err)
	}
	return states, nil
}

func stripeFor(item string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(item))
	return h.Sum32() % stripeCount
}
