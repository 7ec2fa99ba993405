// Custodia - Backup and Disaster Recovery Orchestrator
// Copyright 2026 Custodia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/custodia-ops/custodia

// Package gather collects the source payload for one backup job.
//
// A Gatherer owns the semantics of the backup kind: full gathers
// everything, incremental and differential gather changes since the
// supplied baseline, transaction_log gathers the log tail. Gather
// failure is a distinct failure class from pipeline and storage
// failures so that job post-mortems can tell "the source was broken"
// apart from "the copy was broken".
package gather

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-ops/custodia/internal/models"
)

// Error reports a gather failure and the source that caused it.
type Error struct {
	Source string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("gather %s: %v", e.Source, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Baseline tells a gatherer what "changes since" means for one job.
type Baseline struct {
	// Since is the reference instant for incremental and differential
	// gathering. Nil means no prior backup exists and the gather
	// degrades to a full capture.
	Since *time.Time
}

// Gatherer produces the raw payload for a backup job.
type Gatherer interface {
	// Gather collects the payload for the policy's sources. The
	// returned bytes are the pre-transform payload; metadata describes
	// what was captured.
	Gather(ctx context.Context, policy *models.BackupPolicy, baseline Baseline) ([]byte, models.SourceMetadata, error)
}
