// Custodia - Backup and Disaster Recovery Orchestrator
// Copyright 2026 Custodia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/custodia-ops/custodia

// Package restore turns cataloged backup records back into live data.
//
// The engine refuses to restore anything but a completed record, and it
// refuses before touching any target store: a rejected restore performs
// zero artifact reads. Point-in-time restores replay a transaction-log
// chain in ascending order on top of its base backup, stopping at the
// requested instant.
package restore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-ops/custodia/internal/audit"
	"github.com/custodia-ops/custodia/internal/catalog"
	"github.com/custodia-ops/custodia/internal/logging"
	"github.com/custodia-ops/custodia/internal/metrics"
	"github.com/custodia-ops/custodia/internal/models"
	"github.com/custodia-ops/custodia/internal/pipeline"
	"github.com/custodia-ops/custodia/internal/target"
)

// RejectedError indicates a restore request for a record that is not
// in completed status. No target store was contacted.
type RejectedError struct {
	RecordID string
	Status   models.RecordStatus
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("restore rejected: record %s has status %s, only completed records are restorable", e.RecordID, e.Status)
}

// VerificationError indicates the stored artifact's checksum no longer
// matches the checksum captured at backup time.
type VerificationError struct {
	RecordID string
	Expected string
	Actual   string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verification mismatch for record %s: expected %s, got %s", e.RecordID, e.Expected, e.Actual)
}

// Sink applies a recovered payload to its destination.
type Sink interface {
	// Apply consumes the recovered (pre-transform) payload of one
	// record and returns the number of bytes applied.
	Apply(ctx context.Context, record *models.BackupRecord, payload []byte, opts models.RestoreOptions) (int64, error)
}

// Engine coordinates record lookup, artifact retrieval, pipeline
// reversal and payload application.
type Engine struct {
	catalog *catalog.Catalog
	targets *target.Registry
	auditor *audit.Logger

	// pipelineOpts supplies the secret and compression settings used to
	// rebuild the reverse pipeline for each record's flags.
	pipelineOpts pipeline.Options
}

// NewEngine creates a restore engine.
func NewEngine(cat *catalog.Catalog, targets *target.Registry, auditor *audit.Logger, pipelineOpts pipeline.Options) *Engine {
	return &Engine{
		catalog:      cat,
		targets:      targets,
		auditor:      auditor,
		pipelineOpts: pipelineOpts,
	}
}

// Restore recovers the record's payload and applies it through the
// sink. With a PointInTime option and a transaction-log record, the
// whole chain (base plus logs) is replayed in ascending order.
func (e *Engine) Restore(ctx context.Context, recordID string, sink Sink, opts models.RestoreOptions) (*models.RestoreOutcome, error) {
	start := time.Now()

	record, err := e.catalog.Get(ctx, recordID)
	if err != nil {
		return nil, err
	}

	if record.Status != models.StatusCompleted {
		rejection := &RejectedError{RecordID: record.ID, Status: record.Status}
		e.auditor.Record(&audit.Event{
			Type:      audit.EventRestoreRejected,
			Severity:  audit.SeverityWarning,
			Component: "restore",
			Action:    "restore",
			RecordID:  record.ID,
			PolicyID:  record.PolicyID,
			Outcome:   audit.OutcomeFailure,
			Message:   rejection.Error(),
		})
		metrics.RecordRestore("rejected", 0)
		return nil, rejection
	}

	e.auditor.Record(&audit.Event{
		Type:      audit.EventRestoreStarted,
		Component: "restore",
		Action:    "restore",
		RecordID:  record.ID,
		PolicyID:  record.PolicyID,
		Outcome:   audit.OutcomeSuccess,
	})

	chain, err := e.chainFor(ctx, record, opts.PointInTime)
	if err != nil {
		return e.fail(record, start, err)
	}

	outcome := &models.RestoreOutcome{RecordID: record.ID}
	for _, link := range chain {
		payload, err := e.fetch(ctx, link, opts.VerifyFirst)
		if err != nil {
			return e.fail(record, start, err)
		}

		applied, err := sink.Apply(ctx, link, payload, opts)
		if err != nil {
			return e.fail(record, start, fmt.Errorf("apply record %s: %w", link.ID, err))
		}
		outcome.BytesRestored += applied
	}

	outcome.Success = true
	outcome.Duration = time.Since(start)

	e.auditor.Record(&audit.Event{
		Type:      audit.EventRestoreCompleted,
		Component: "restore",
		Action:    "restore",
		RecordID:  record.ID,
		PolicyID:  record.PolicyID,
		Outcome:   audit.OutcomeSuccess,
		Details: map[string]any{
			"chain_length":   len(chain),
			"bytes_restored": outcome.BytesRestored,
		},
	})
	metrics.RecordRestore("completed", outcome.Duration)

	logging.Info().
		Str("record_id", record.ID).
		Int("chain_length", len(chain)).
		Int64("bytes_restored", outcome.BytesRestored).
		Dur("duration", outcome.Duration).
		Msg("Restore completed")
	return outcome, nil
}

// VerifyRecord re-reads a completed record's artifact and checks its
// checksum, without applying anything.
func (e *Engine) VerifyRecord(ctx context.Context, recordID string) error {
	record, err := e.catalog.Get(ctx, recordID)
	if err != nil {
		return err
	}
	if record.Status != models.StatusCompleted {
		return &RejectedError{RecordID: record.ID, Status: record.Status}
	}

	data, err := e.targets.Load(ctx, record.Location)
	if err != nil {
		return err
	}
	if actual := pipeline.Checksum(data); actual != record.Checksum {
		verr := &VerificationError{RecordID: record.ID, Expected: record.Checksum, Actual: actual}
		e.auditor.Record(&audit.Event{
			Type:      audit.EventRestoreFailed,
			Severity:  audit.SeverityCritical,
			Component: "restore",
			Action:    "verify",
			RecordID:  record.ID,
			PolicyID:  record.PolicyID,
			Outcome:   audit.OutcomeFailure,
			Message:   verr.Error(),
		})
		return verr
	}
	return nil
}

// fail records the failure outcome for a restore attempt.
func (e *Engine) fail(record *models.BackupRecord, start time.Time, err error) (*models.RestoreOutcome, error) {
	severity := audit.SeverityError
	var verr *VerificationError
	if errors.As(err, &verr) {
		severity = audit.SeverityCritical
	}

	e.auditor.Record(&audit.Event{
		Type:      audit.EventRestoreFailed,
		Severity:  severity,
		Component: "restore",
		Action:    "restore",
		RecordID:  record.ID,
		PolicyID:  record.PolicyID,
		Outcome:   audit.OutcomeFailure,
		Message:   err.Error(),
	})
	metrics.RecordRestore("failed", 0)

	return &models.RestoreOutcome{
		RecordID: record.ID,
		Duration: time.Since(start),
		Errors:   []string{err.Error()},
	}, err
}

// fetch loads a record's artifact, optionally verifies it, and
// reverses the pipeline back to the raw payload.
func (e *Engine) fetch(ctx context.Context, record *models.BackupRecord, verifyFirst bool) ([]byte, error) {
	data, err := e.targets.Load(ctx, record.Location)
	if err != nil {
		return nil, err
	}

	if verifyFirst {
		if actual := pipeline.Checksum(data); actual != record.Checksum {
			return nil, &VerificationError{RecordID: record.ID, Expected: record.Checksum, Actual: actual}
		}
	}

	p, err := pipeline.Build(pipeline.Options{
		Compress:  record.Compressed,
		Algorithm: e.pipelineOpts.Algorithm,
		Level:     e.pipelineOpts.Level,
		Encrypt:   record.Encrypted,
		Secret:    e.pipelineOpts.Secret,
		KeyID:     e.pipelineOpts.KeyID,
	})
	if err != nil {
		return nil, err
	}
	return p.Reverse(data)
}

// chainFor resolves which records have to be replayed, in order.
//
// A plain restore replays just the record. A point-in-time restore of
// a transaction-log record replays the newest completed full or
// differential base at or before the instant, then every completed
// transaction-log record after the base up to the instant, ascending.
func (e *Engine) chainFor(ctx context.Context, record *models.BackupRecord, pointInTime *time.Time) ([]*models.BackupRecord, error) {
	if pointInTime == nil || record.Kind != models.KindTransactionLog {
		return []*models.BackupRecord{record}, nil
	}

	completed, err := e.catalog.Query(ctx, catalog.QueryFilter{
		PolicyID: record.PolicyID,
		Status:   models.StatusCompleted,
		Until:    pointInTime,
	})
	if err != nil {
		return nil, err
	}

	// Newest-first: the first non-log record is the base.
	var base *models.BackupRecord
	for _, r := range completed {
		if r.Kind == models.KindFull || r.Kind == models.KindDifferential {
			base = r
			break
		}
	}
	if base == nil {
		return nil, fmt.Errorf("no completed full or differential base exists at or before %s", pointInTime.Format(time.RFC3339))
	}

	chain := []*models.BackupRecord{base}
	// Walk backwards so the chain comes out ascending.
	for i := len(completed) - 1; i >= 0; i-- {
		r := completed[i]
		if r.Kind == models.KindTransactionLog && r.StartedAt.After(base.StartedAt) {
			chain = append(chain, r)
		}
	}
	return chain, nil
}
