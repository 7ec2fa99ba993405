// Custodia - Backup and Disaster Recovery Orchestrator
// Copyright 2026 Custodia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/custodia-ops/custodia

package api

import (
	"net/http"
	"strings"

	"github.com/custodia-ops/custodia/internal/audit"
)

// QueryAudit handles GET /api/v1/audit. Filters: types (comma
// separated), severities, policy_id, plan_id, since, until, limit.
func (h *Handler) QueryAudit(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	filter := audit.QueryFilter{
		PolicyID: r.URL.Query().Get("policy_id"),
		PlanID:   r.URL.Query().Get("plan_id"),
		Limit:    queryInt(r, "limit", 100),
	}
	for _, raw := range splitParam(r.URL.Query().Get("types")) {
		filter.Types = append(filter.Types, audit.EventType(raw))
	}
	for _, raw := range splitParam(r.URL.Query().Get("severities")) {
		filter.Severities = append(filter.Severities, audit.Severity(raw))
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

	events, err := h.events.Query(r.Context(), filter)
	if err != nil {
		rw.InternalError(err)
		return
	}
	rw.SuccessList(events, len(events))
}

func splitParam(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
