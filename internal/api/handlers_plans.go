// Custodia - Backup and Disaster Recovery Orchestrator
// Copyright 2026 Custodia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/custodia-ops/custodia

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/custodia-ops/custodia/internal/audit"
	"github.com/custodia-ops/custodia/internal/catalog"
	"github.com/custodia-ops/custodia/internal/models"
)

// ListPlans handles GET /api/v1/plans.
func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	plans, err := h.catalog.ListPlans(r.Context())
	if err != nil {
		rw.InternalError(err)
		return
	}
	rw.SuccessList(plans, len(plans))
}

// GetPlan handles GET /api/v1/plans/{id}.
func (h *Handler) GetPlan(w http.ResponseWriter, r *http.Request) {
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
	rw.Success(plan)
}

// CreatePlan handles POST /api/v1/plans.
func (h *Handler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var plan models.RecoveryPlan
	if err := decodeJSON(r, &plan); err != nil {
		rw.BadRequest("invalid plan payload: " + err.Error())
		return
	}
	if plan.ID == "" {
		plan.ID = uuid.New().String()
	}
	if err := models.ValidatePlan(&plan); err != nil {
		rw.ValidationError(err.Error(), nil)
		return
	}

	if err := h.catalog.PutPlan(r.Context(), &plan); err != nil {
		rw.InternalError(err)
		return
	}
	h.recordChange(r.Context(), audit.EventPlanChanged, "created plan "+plan.ID, "", plan.ID)
	rw.Created(plan)
}

// UpdatePlan handles PUT /api/v1/plans/{id}.
func (h *Handler) UpdatePlan(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id := chi.URLParam(r, "id")

	existing, err := h.catalog.GetPlan(r.Context(), id)
	if err != nil {
		if errors.Is(err, catalog.ErrPlanNotFound) {
			rw.NotFound("plan not found")
			return
		}
		rw.InternalError(err)
		return
	}

	var plan models.RecoveryPlan
	if err := decodeJSON(r, &plan); err != nil {
		rw.BadRequest("invalid plan payload: " + err.Error())
		return
	}
	plan.ID = id
	// Test history belongs to the engine, not the client.
	plan.LastTested = existing.LastTested
	plan.NextTested = existing.NextTested
	plan.TestHistory = existing.TestHistory
	if err := models.ValidatePlan(&plan); err != nil {
		rw.ValidationError(err.Error(), nil)
		return
	}

	if err := h.catalog.PutPlan(r.Context(), &plan); err != nil {
		rw.InternalError(err)
		return
	}
	h.recordChange(r.Context(), audit.EventPlanChanged, "updated plan "+id, "", id)
	rw.Success(plan)
}

// DeletePlan handles DELETE /api/v1/plans/{id}.
func (h *Handler) DeletePlan(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id := chi.URLParam(r, "id")

	if err := h.catalog.DeletePlan(r.Context(), id); err != nil {
		if errors.Is(err, catalog.ErrPlanNotFound) {
			rw.NotFound("plan not found")
			return
		}
		rw.InternalError(err)
		return
	}
	h.recordChange(r.Context(), audit.EventPlanChanged, "deleted plan "+id, "", id)
	rw.NoContent()
}

// TestPlan handles POST /api/v1/plans/{id}/test: a dry run scored
// against the declared objectives.
func (h *Handler) TestPlan(w http.ResponseWriter, r *http.Request) {
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

	result, err := h.recovery.Test(r.Context(), plan)
	if err != nil {
		rw.InternalError(err)
		return
	}
	rw.Success(result)
}
