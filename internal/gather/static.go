// Custodia - Backup and Disaster Recovery Orchestrator
// Copyright 2026 Custodia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/custodia-ops/custodia

package gather

import (
	"context"

	"github.com/custodia-ops/custodia/internal/models"
)

// StaticGatherer returns a fixed payload, for tests and dry runs.
type StaticGatherer struct {
	Payload  []byte
	Metadata models.SourceMetadata
	Err      error

	// Calls counts Gather invocations; LastBaseline captures the most
	// recent baseline handed in.
	Calls        int
	LastBaseline Baseline
}

// Gather returns the configured payload or error.
func (g *StaticGatherer) Gather(ctx context.Context, policy *models.BackupPolicy, baseline Baseline) ([]byte, models.SourceMetadata, error) {
	g.Calls++
	g.LastBaseline = baseline
	if g.Err != nil {
		return nil, models.SourceMetadata{}, &Error{Source: policy.ID, Err: g.Err}
	}
	return g.Payload, g.Metadata, nil
}
