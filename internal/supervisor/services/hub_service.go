// Dropdeck - Queue Intelligence and Batch-Drop Recommendations for Food Service
// Copyright 2026 Quickserve Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/quickserve-labs/dropdeck

package services

import "context"

// ContextRunner matches *live.Hub's Run method without importing the live
// package types into the service signature.
type ContextRunner interface {
	Run(ctx context.Context) error
}

// HubService wraps the live websocket hub as a supervised service. The
// hub's Run already follows the suture.Service pattern, so this only adds
// a stable name for logging.
type HubService struct {
	hub ContextRunner
}

// NewHubService wraps a hub.
func NewHubService(hub ContextRunner) *HubService {
	return &HubService{hub: hub}
}

// Serve implements suture.Service.
func (s *HubService) Serve(ctx context.Context) error {
	return s.hub.Run(ctx)
}

// String implements fmt.Stringer for suture logging.
func (s *HubService) String() string { return "live-hub" }
