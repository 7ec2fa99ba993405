// Custodia - Backup and Disaster Recovery Orchestrator
// Copyright 2026 Custodia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/custodia-ops/custodia

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/custodia-ops/custodia/internal/audit"
	"github.com/custodia-ops/custodia/internal/catalog"
	"github.com/custodia-ops/custodia/internal/recovery"
	"github.com/custodia-ops/custodia/internal/restore"
	"github.com/custodia-ops/custodia/internal/scheduler"
	"github.com/custodia-ops/custodia/internal/target"
)

// maxRequestBody bounds JSON request bodies.
const maxRequestBody = 1 << 20

// Handler holds the dependencies for all API endpoints.
type Handler struct {
	catalog   *catalog.Catalog
	targets   *target.Registry
	scheduler *scheduler.Scheduler
	restorer  *restore.Engine
	recovery  *recovery.Engine
	events    audit.Store

	// restoreRoot is the default directory restores extract into.
	restoreRoot string

	startTime time.Time
}

// NewHandler creates the API handler.
func NewHandler(
	cat *catalog.Catalog,
	targets *target.Registry,
	sched *scheduler.Scheduler,
	restorer *restore.Engine,
	rec *recovery.Engine,
	events audit.Store,
	restoreRoot string,
) *Handler {
	return &Handler{
		catalog:     cat,
		targets:     targets,
		scheduler:   sched,
		restorer:    restorer,
		recovery:    rec,
		events:      events,
		restoreRoot: restoreRoot,
		startTime:   time.Now(),
	}
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

// queryTime parses an optional RFC3339 query parameter.
func queryTime(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
