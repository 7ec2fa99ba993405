// Custodia - Backup and Disaster Recovery Orchestrator
// Copyright 2026 Custodia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/custodia-ops/custodia

package api

import (
	"net/http"
	"time"
)

// HealthLive handles GET /api/v1/health/live: process liveness only.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]any{"status": "ok"})
}

// HealthReady handles GET /api/v1/health/ready: the catalog must be
// answering queries before the orchestrator accepts work.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if _, err := h.catalog.Stats(r.Context()); err != nil {
		rw.Error(http.StatusServiceUnavailable, ErrCodeInternalError, "catalog unavailable")
		return
	}
	rw.Success(map[string]any{"status": "ready"})
}

// Health handles GET /api/v1/health: a summary for dashboards.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	stats, err := h.catalog.Stats(r.Context())
	if err != nil {
		rw.Error(http.StatusServiceUnavailable, ErrCodeInternalError, "catalog unavailable")
		return
	}

	rw.Success(map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
		"running_jobs":   h.scheduler.Running(),
		"stats":          stats,
	})
}
