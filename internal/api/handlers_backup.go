// Custodia - Backup and Disaster Recovery Orchestrator
// Copyright 2026 Custodia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/custodia-ops/custodia

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/custodia-ops/custodia/internal/catalog"
	"github.com/custodia-ops/custodia/internal/scheduler"
)

// DispatchBackup handles POST /api/v1/policies/{id}/backup: an
// immediate manual backup job. The job runs asynchronously; poll the
// records endpoint for the outcome.
func (h *Handler) DispatchBackup(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id := chi.URLParam(r, "id")

	policy, err := h.catalog.GetPolicy(r.Context(), id)
	if err != nil {
		if errors.Is(err, catalog.ErrPolicyNotFound) {
			rw.NotFound("policy not found")
			return
		}
		rw.InternalError(err)
		return
	}

	if err := h.scheduler.Dispatch(r.Context(), policy); err != nil {
		if errors.Is(err, scheduler.ErrAlreadyRunning) {
			rw.Conflict("a job for this policy is already running")
			return
		}
		rw.InternalError(err)
		return
	}
	rw.Accepted(map[string]any{"policy_id": id, "dispatched": true})
}

// RunningJobs handles GET /api/v1/jobs: policies with a job in flight.
func (h *Handler) RunningJobs(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	running := h.scheduler.Running()
	rw.SuccessList(running, len(running))
}

// ListTargets handles GET /api/v1/targets.
func (h *Handler) ListTargets(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	targets := h.targets.Targets()
	rw.SuccessList(targets, len(targets))
}
