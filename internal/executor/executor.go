// Custodia - Backup and Disaster Recovery Orchestrator
// Copyright 2026 Custodia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/custodia-ops/custodia

// Package executor runs one backup job end to end: gather, transform,
// store, verify, catalog, sweep.
//
// Every attempt gets its own immutable record moving through
// pending, running and exactly one terminal state. Failures are
// classified by which phase produced them (gather, pipeline, target
// store, verification) so post-mortems can tell a broken source apart
// from a broken copy. The job writes to exactly one target, the
// lowest-priority-number one; there is no fallback on store failure.
// After every terminal state the policy's retention sweep runs.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-ops/custodia/internal/audit"
	"github.com/custodia-ops/custodia/internal/catalog"
	"github.com/custodia-ops/custodia/internal/gather"
	"github.com/custodia-ops/custodia/internal/logging"
	"github.com/custodia-ops/custodia/internal/metrics"
	"github.com/custodia-ops/custodia/internal/models"
	"github.com/custodia-ops/custodia/internal/pipeline"
	"github.com/custodia-ops/custodia/internal/target"
)

// Executor materializes backup policies into backup records.
type Executor struct {
	catalog  *catalog.Catalog
	targets  *target.Registry
	gatherer gather.Gatherer
	auditor  *audit.Logger

	// pipelineOpts supplies the secret and compression settings shared
	// by every policy; per-policy flags select which stages engage.
	pipelineOpts pipeline.Options
}

// New creates an executor.
func New(cat *catalog.Catalog, targets *target.Registry, gatherer gather.Gatherer, auditor *audit.Logger, pipelineOpts pipeline.Options) *Executor {
	return &Executor{
		catalog:      cat,
		targets:      targets,
		gatherer:     gatherer,
		auditor:      auditor,
		pipelineOpts: pipelineOpts,
	}
}

// Run executes one backup job for the policy. The returned record is
// always terminal; err is non-nil when the record is failed or
// corrupted.
func (e *Executor) Run(ctx context.Context, policy *models.BackupPolicy) (*models.BackupRecord, error) {
	record := &models.BackupRecord{
		ID:         uuid.New().String(),
		PolicyID:   policy.ID,
		Kind:       policy.Kind,
		Status:     models.StatusPending,
		StartedAt:  time.Now().UTC(),
		Encrypted:  policy.Encrypt,
		Compressed: policy.Compress,
	}
	if err := e.catalog.Append(ctx, record); err != nil {
		return nil, fmt.Errorf("catalog job record: %w", err)
	}

	e.event(audit.EventJobDispatched, audit.SeverityInfo, audit.OutcomeSuccess, record, "")

	metrics.BackupJobsActive.Inc()
	defer metrics.BackupJobsActive.Dec()

	if err := e.transition(ctx, record, models.StatusRunning); err != nil {
		return record, err
	}
	e.event(audit.EventJobStarted, audit.SeverityInfo, audit.OutcomeSuccess, record, "")

	runErr := e.execute(ctx, policy, record)

	e.finish(ctx, policy, record, runErr)
	return record, runErr
}

// execute runs the gather → transform → store → verify phases,
// mutating record in place. The caller finalizes status.
func (e *Executor) execute(ctx context.Context, policy *models.BackupPolicy, record *models.BackupRecord) error {
	baseline, err := e.baselineFor(ctx, policy)
	if err != nil {
		return err
	}

	payload, metadata, err := e.gatherer.Gather(ctx, policy, baseline)
	if err != nil {
		return err
	}
	record.RawSizeBytes = int64(len(payload))
	record.Metadata = metadata

	p, err := pipeline.Build(pipeline.Options{
		Compress:  policy.Compress,
		Algorithm: e.pipelineOpts.Algorithm,
		Level:     e.pipelineOpts.Level,
		Encrypt:   policy.Encrypt,
		Secret:    e.pipelineOpts.Secret,
		KeyID:     e.pipelineOpts.KeyID,
	})
	if err != nil {
		return err
	}

	artifact, err := p.Transform(payload)
	if err != nil {
		return err
	}
	record.SizeBytes = int64(len(artifact))
	record.Checksum = pipeline.Checksum(artifact)

	selected, err := e.targets.Select(policy)
	if err != nil {
		return err
	}
	record.TargetID = selected.ID

	location, err := e.targets.Store(ctx, selected.ID, record.ID, artifact)
	if err != nil {
		return err
	}
	record.Location = location

	if policy.Verify {
		if err := e.verify(ctx, record); err != nil {
			return err
		}
		record.Verified = true
	}
	return nil
}

// verify reads the stored artifact back and compares checksums.
func (e *Executor) verify(ctx context.Context, record *models.BackupRecord) error {
	stored, err := e.targets.Load(ctx, record.Location)
	if err != nil {
		return fmt.Errorf("verification read-back: %w", err)
	}
	if actual := pipeline.Checksum(stored); actual != record.Checksum {
		return &VerificationError{RecordID: record.ID, Expected: record.Checksum, Actual: actual}
	}
	return nil
}

// baselineFor resolves what "changes since" means for the policy kind.
func (e *Executor) baselineFor(ctx context.Context, policy *models.BackupPolicy) (gather.Baseline, error) {
	switch policy.Kind {
	case models.KindIncremental, models.KindTransactionLog:
		// Changes since the last successful backup of any kind.
		last, err := e.catalog.LastCompleted(ctx, policy.ID)
		if err != nil {
			return gather.Baseline{}, err
		}
		if last == nil {
			return gather.Baseline{}, nil
		}
		return gather.Baseline{Since: &last.StartedAt}, nil

	case models.KindDifferential:
		// Changes since the last successful full backup.
		fulls, err := e.catalog.Query(ctx, catalog.QueryFilter{
			PolicyID: policy.ID,
			Status:   models.StatusCompleted,
			Kind:     models.KindFull,
			Limit:    1,
		})
		if err != nil {
			return gather.Baseline{}, err
		}
		if len(fulls) == 0 {
			return gather.Baseline{}, nil
		}
		return gather.Baseline{Since: &fulls[0].StartedAt}, nil

	default:
		return gather.Baseline{}, nil
	}
}

// finish moves the record to its terminal state, emits audit and
// metrics, and runs the policy's retention sweep.
func (e *Executor) finish(ctx context.Context, policy *models.BackupPolicy, record *models.BackupRecord, runErr error) {
	status := models.StatusCompleted
	if runErr != nil {
		status = classify(runErr)
		record.Error = runErr.Error()
	}

	// Size and checksum describe a completed artifact. A failed job
	// records neither; a corrupted one keeps the checksum the artifact
	// no longer matches.
	if status == models.StatusFailed {
		record.SizeBytes = 0
		record.Checksum = ""
	}

	completedAt := time.Now().UTC()
	record.CompletedAt = &completedAt
	record.Status = status

	if err := e.catalog.Update(ctx, record.ID, func(stored *models.BackupRecord) error {
		*stored = *record
		return nil
	}); err != nil {
		logging.Error().Err(err).Str("record_id", record.ID).Msg("Failed to finalize job record")
	}

	duration := record.Duration()
	metrics.RecordJob(string(record.Kind), string(status), duration)

	switch status {
	case models.StatusCompleted:
		metrics.BackupBytesStored.Add(float64(record.SizeBytes))
		if record.RawSizeBytes > 0 {
			metrics.BackupCompressionRatio.Observe(float64(record.SizeBytes) / float64(record.RawSizeBytes))
		}
		e.event(audit.EventJobCompleted, audit.SeverityInfo, audit.OutcomeSuccess, record, "")
		logging.Info().
			Str("policy_id", policy.ID).
			Str("record_id", record.ID).
			Str("kind", string(record.Kind)).
			Int64("size_bytes", record.SizeBytes).
			Dur("duration", duration).
			Bool("verified", record.Verified).
			Msg("Backup job completed")

	case models.StatusCorrupted:
		e.event(audit.EventJobCorrupted, audit.SeverityCritical, audit.OutcomeFailure, record, record.Error)
		logging.Error().
			Str("policy_id", policy.ID).
			Str("record_id", record.ID).
			Str("error", record.Error).
			Msg("Backup job produced a corrupted artifact")

	default:
		e.event(audit.EventJobFailed, audit.SeverityError, audit.OutcomeFailure, record, record.Error)
		logging.Error().
			Str("policy_id", policy.ID).
			Str("record_id", record.ID).
			Str("error", record.Error).
			Msg("Backup job failed")
	}

	e.sweep(ctx, policy)
}

// sweep applies the policy's retention rule after a terminal job.
func (e *Executor) sweep(ctx context.Context, policy *models.BackupPolicy) {
	result, err := e.catalog.Sweep(ctx, policy, func(ctx context.Context, expired *models.BackupRecord) error {
		return e.targets.Delete(ctx, expired.Location)
	})
	if err != nil {
		logging.Error().Err(err).Str("policy_id", policy.ID).Msg("Retention sweep failed")
		return
	}

	metrics.RecordSweep(result.Deleted, result.DeletedBytes)
	if result.Deleted > 0 {
		e.auditor.Record(&audit.Event{
			Type:      audit.EventSweep,
			Component: "executor",
			Action:    "sweep",
			PolicyID:  policy.ID,
			Outcome:   audit.OutcomeSuccess,
			Details: map[string]any{
				"deleted":       result.Deleted,
				"deleted_bytes": result.DeletedBytes,
				"kept":          result.Kept,
			},
		})
	}
}

// transition advances the record's status in memory and in the catalog.
func (e *Executor) transition(ctx context.Context, record *models.BackupRecord, next models.RecordStatus) error {
	record.Status = next
	return e.catalog.Update(ctx, record.ID, func(stored *models.BackupRecord) error {
		stored.Status = next
		return nil
	})
}

// event emits one audit event for the record.
func (e *Executor) event(eventType audit.EventType, severity audit.Severity, outcome audit.Outcome, record *models.BackupRecord, message string) {
	e.auditor.Record(&audit.Event{
		Type:      eventType,
		Severity:  severity,
		Component: "executor",
		Action:    "run",
		PolicyID:  record.PolicyID,
		RecordID:  record.ID,
		Outcome:   outcome,
		Message:   message,
	})
}
