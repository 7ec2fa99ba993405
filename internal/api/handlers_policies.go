// Custodia - Backup and Disaster Recovery Orchestrator
// Copyright 2026 Custodia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/custodia-ops/custodia

package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/custodia-ops/custodia/internal/audit"
	"github.com/custodia-ops/custodia/internal/catalog"
	"github.com/custodia-ops/custodia/internal/logging"
	"github.com/custodia-ops/custodia/internal/models"
)

// ListPolicies handles GET /api/v1/policies.
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	policies, err := h.catalog.ListPolicies(r.Context())
	if err != nil {
		rw.InternalError(err)
		return
	}
	rw.SuccessList(policies, len(policies))
}

// GetPolicy handles GET /api/v1/policies/{id}.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	policy, err := h.catalog.GetPolicy(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, catalog.ErrPolicyNotFound) {
			rw.NotFound("policy not found")
			return
		}
		rw.InternalError(err)
		return
	}
	rw.Success(policy)
}

// CreatePolicy handles POST /api/v1/policies.
func (h *Handler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var policy models.BackupPolicy
	if err := decodeJSON(r, &policy); err != nil {
		rw.BadRequest("invalid policy payload: " + err.Error())
		return
	}
	if policy.ID == "" {
		policy.ID = uuid.New().String()
	}
	if err := models.ValidatePolicy(&policy, h.targets.Resolve(policy.TargetIDs)); err != nil {
		rw.ValidationError(err.Error(), nil)
		return
	}

	if err := h.catalog.PutPolicy(r.Context(), &policy); err != nil {
		rw.InternalError(err)
		return
	}
	h.recordChange(r.Context(), audit.EventPolicyChanged, "created policy "+policy.ID, policy.ID, "")
	rw.Created(policy)
}

// UpdatePolicy handles PUT /api/v1/policies/{id}.
func (h *Handler) UpdatePolicy(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id := chi.URLParam(r, "id")

	if _, err := h.catalog.GetPolicy(r.Context(), id); err != nil {
		if errors.Is(err, catalog.ErrPolicyNotFound) {
			rw.NotFound("policy not found")
			return
		}
		rw.InternalError(err)
		return
	}

	var policy models.BackupPolicy
	if err := decodeJSON(r, &policy); err != nil {
		rw.BadRequest("invalid policy payload: " + err.Error())
		return
	}
	policy.ID = id
	if err := models.ValidatePolicy(&policy, h.targets.Resolve(policy.TargetIDs)); err != nil {
		rw.ValidationError(err.Error(), nil)
		return
	}

	if err := h.catalog.PutPolicy(r.Context(), &policy); err != nil {
		rw.InternalError(err)
		return
	}
	h.recordChange(r.Context(), audit.EventPolicyChanged, "updated policy "+id, id, "")
	rw.Success(policy)
}

// DeletePolicy handles DELETE /api/v1/policies/{id}. Policies with
// existing backup records are refused unless ?force=true.
func (h *Handler) DeletePolicy(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id := chi.URLParam(r, "id")
	force := r.URL.Query().Get("force") == "true"

	err := h.catalog.DeletePolicy(r.Context(), id, force)
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrPolicyNotFound):
			rw.NotFound("policy not found")
		case errors.Is(err, catalog.ErrPolicyInUse):
			rw.Conflict("policy has backup records; delete with ?force=true to orphan them")
		default:
			rw.InternalError(err)
		}
		return
	}
	h.recordChange(r.Context(), audit.EventPolicyChanged, "deleted policy "+id, id, "")
	rw.NoContent()
}

// PreviewRetention handles GET /api/v1/policies/{id}/retention. It
// reports which records the next sweep would keep or delete, without
// deleting anything.
func (h *Handler) PreviewRetention(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	policy, err := h.catalog.GetPolicy(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, catalog.ErrPolicyNotFound) {
			rw.NotFound("policy not found")
			return
		}
		rw.InternalError(err)
		return
	}

	decisions, err := h.catalog.PreviewSweep(r.Context(), policy)
	if err != nil {
		rw.InternalError(err)
		return
	}
	rw.SuccessList(decisions, len(decisions))
}

// SweepPolicy handles POST /api/v1/policies/{id}/sweep: an immediate
// operator-triggered retention sweep.
func (h *Handler) SweepPolicy(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	policy, err := h.catalog.GetPolicy(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, catalog.ErrPolicyNotFound) {
			rw.NotFound("policy not found")
			return
		}
		rw.InternalError(err)
		return
	}

	result, err := h.catalog.Sweep(r.Context(), policy, func(ctx context.Context, record *models.BackupRecord) error {
		return h.targets.Delete(ctx, record.Location)
	})
	if err != nil {
		rw.InternalError(err)
		return
	}
	rw.Success(result)
}

// recordChange writes a configuration-change audit event. Mutating
// endpoints write to the store synchronously so config changes are
// never lost to a dropped async buffer.
func (h *Handler) recordChange(ctx context.Context, eventType audit.EventType, message, policyID, planID string) {
	event := &audit.Event{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		Severity:  audit.SeverityInfo,
		Component: "api",
		Action:    "change",
		PolicyID:  policyID,
		PlanID:    planID,
		Outcome:   audit.OutcomeSuccess,
		Message:   message,
	}
	if err := h.events.Save(ctx, event); err != nil {
		logging.Warn().Err(err).Str("type", string(eventType)).Msg("Failed to record audit event")
	}
}
