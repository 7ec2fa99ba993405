// Custodia - Backup and Disaster Recovery Orchestrator
// Copyright 2026 Custodia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/custodia-ops/custodia

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/custodia-ops/custodia/internal/catalog"
	"github.com/custodia-ops/custodia/internal/models"
	"github.com/custodia-ops/custodia/internal/restore"
)

// restoreRequest is the POST /api/v1/restore body.
type restoreRequest struct {
	RecordID        string     `json:"record_id"`
	TargetLocation  string     `json:"target_location,omitempty"`
	PointInTime     *time.Time `json:"point_in_time,omitempty"`
	PartialEntities []string   `json:"partial_entities,omitempty"`
	VerifyFirst     bool       `json:"verify_first"`
}

// Restore handles POST /api/v1/restore. The restore runs synchronously
// and returns its outcome.
func (h *Handler) Restore(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req restoreRequest
	if err := decodeJSON(r, &req); err != nil {
		rw.BadRequest("invalid restore payload: " + err.Error())
		return
	}
	if req.RecordID == "" {
		rw.BadRequest("record_id is required")
		return
	}

	root := h.restoreRoot
	if req.TargetLocation != "" {
		root = req.TargetLocation
	}
	sink := &restore.DirectorySink{Root: root}

	opts := models.RestoreOptions{
		TargetLocation:  req.TargetLocation,
		PointInTime:     req.PointInTime,
		PartialEntities: req.PartialEntities,
		VerifyFirst:     req.VerifyFirst,
	}

	outcome, err := h.restorer.Restore(r.Context(), req.RecordID, sink, opts)
	if err != nil {
		var rejected *restore.RejectedError
		switch {
		case errors.Is(err, catalog.ErrRecordNotFound):
			rw.NotFound("record not found")
		case errors.As(err, &rejected):
			rw.Conflict(err.Error())
		default:
			// The outcome carries the per-link errors for the client.
			if outcome != nil {
				rw.ErrorWithDetails(http.StatusInternalServerError, ErrCodeInternalError, "restore failed", outcome)
				return
			}
			rw.InternalError(err)
		}
		return
	}
	rw.Success(outcome)
}
