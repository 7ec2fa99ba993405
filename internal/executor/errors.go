// Custodia - Backup and Disaster Recovery Orchestrator
// Copyright 2026 Custodia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/custodia-ops/custodia

package executor

import (
	"errors"
	"fmt"

	"github.com/custodia-ops/custodia/internal/models"
)

// VerificationError indicates the read-back check after a store found
// bytes that do not match the checksum computed at transform time.
type VerificationError struct {
	RecordID string
	Expected string
	Actual   string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verification mismatch for record %s: expected %s, got %s", e.RecordID, e.Expected, e.Actual)
}

// classify maps a job failure to its terminal status. Verification
// mismatches become corrupted; every other failure class (gather,
// pipeline, store) becomes failed.
func classify(err error) models.RecordStatus {
	var verr *VerificationError
	if errors.As(err, &verr) {
		return models.StatusCorrupted
	}
	return models.StatusFailed
}
