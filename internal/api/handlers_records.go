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
	"github.com/custodia-ops/custodia/internal/models"
	"github.com/custodia-ops/custodia/internal/restore"
)

// ListRecords handles GET /api/v1/records. Filters: policy_id,
// status, kind, since, until, limit.
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	filter := catalog.QueryFilter{
		PolicyID: r.URL.Query().Get("policy_id"),
		Status:   models.RecordStatus(r.URL.Query().Get("status")),
		Kind:     models.BackupKind(r.URL.Query().Get("kind")),
		Limit:    queryInt(r, "limit", 100),
	}
	var err error
	if filter.Since, err = queryTime(r, "since"); err != nil {
		rw.BadRequest("since must be an RFC3339 timestamp")
		return
	}
	if filter.Until, err = queryTime(r, "until"); err != nil {
		rw.BadRequest("until must be an RFC3339 timestamp")
		return
	}

	records, err := h.catalog.Query(r.Context(), filter)
	if err != nil {
		rw.InternalError(err)
		return
	}
	rw.SuccessList(records, len(records))
}

// GetRecord handles GET /api/v1/records/{id}.
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	record, err := h.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, catalog.ErrRecordNotFound) {
			rw.NotFound("record not found")
			return
		}
		rw.InternalError(err)
		return
	}
	rw.Success(record)
}

// VerifyRecord handles POST /api/v1/records/{id}/verify: re-reads the
// stored artifact and checks its checksum.
func (h *Handler) VerifyRecord(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id := chi.URLParam(r, "id")

	err := h.restorer.VerifyRecord(r.Context(), id)
	if err != nil {
		var rejected *restore.RejectedError
		var verification *restore.VerificationError
		switch {
		case errors.Is(err, catalog.ErrRecordNotFound):
			rw.NotFound("record not found")
		case errors.As(err, &rejected):
			rw.Conflict(err.Error())
		case errors.As(err, &verification):
			rw.Success(map[string]any{
				"record_id": id,
				"verified":  false,
				"expected":  verification.Expected,
				"actual":    verification.Actual,
			})
		default:
			rw.InternalError(err)
		}
		return
	}
	rw.Success(map[string]any{"record_id": id, "verified": true})
}

// Stats handles GET /api/v1/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	stats, err := h.catalog.Stats(r.Context())
	if err != nil {
		rw.InternalError(err)
		return
	}
	rw.Success(stats)
}
