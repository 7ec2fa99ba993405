// Custodia - Backup and Disaster Recovery Orchestrator
// Copyright 2026 Custodia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/custodia-ops/custodia

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/custodia-ops/custodia/internal/audit"
	"github.com/custodia-ops/custodia/internal/catalog"
	"github.com/custodia-ops/custodia/internal/models"
)

// DeclareIncident handles POST /api/v1/incidents: declares a disaster
// and returns the recovery plans whose trigger tags match it, in
// priority order.
func (h *Handler) DeclareIncident(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var incident models.Incident
	if err := decodeJSON(r, &incident); err != nil {
		rw.BadRequest("invalid incident payload: " + err.Error())
		return
	}
	if incident.Summary == "" {
		rw.BadRequest("summary is required")
		return
	}

	plans, err := h.recovery.DeclareIncident(r.Context(), &incident)
	if err != nil {
		rw.InternalError(err)
		return
	}
	rw.Created(map[string]any{
		"incident":      incident,
		"matched_plans": plans,
	})
}

// executeRequest is the POST /api/v1/plans/{id}/execute body.
type executeRequest struct {
	Incident *models.Incident `json:"incident,omitempty"`
}

// ExecutePlan handles POST /api/v1/plans/{id}/execute: runs the plan's
// procedures against a declared incident and returns the outcome.
func (h *Handler) ExecutePlan(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	plan, err := h.catalog.GetPlan(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, catalog.ErrPlanNotFound) {
			rw.NotFound("plan not found")
			return
		}
		rw.InternalError(err)
		return
	}

	var req executeRequest
	if err := decodeJSON(r, &req); err != nil {
		rw.BadRequest("invalid execute payload: " + err.Error())
		return
	}

	outcome, err := h.recovery.Execute(r.Context(), plan, req.Incident)
	if err != nil {
		rw.InternalError(err)
		return
	}
	rw.Success(outcome)
}

// GetObjectives handles GET /api/v1/objectives.
func (h *Handler) GetObjectives(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	objectives, err := h.catalog.GetObjectives(r.Context())
	if err != nil {
		rw.InternalError(err)
		return
	}
	rw.Success(objectives)
}

// PutObjectives handles PUT /api/v1/objectives.
func (h *Handler) PutObjectives(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var objectives models.RecoveryObjectives
	if err := decodeJSON(r, &objectives); err != nil {
		rw.BadRequest("invalid objectives payload: " + err.Error())
		return
	}

	if err := h.catalog.PutObjectives(r.Context(), objectives); err != nil {
		rw.ValidationError(err.Error(), nil)
		return
	}
	h.recordChange(r.Context(), audit.EventObjectivesChanged, "updated recovery objectives", "", "")
	rw.Success(objectives)
}
