// Custodia - Backup and Disaster Recovery Orchestrator
// Copyright 2026 Custodia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/custodia-ops/custodia

// Package models defines the domain types shared by the orchestrator core:
// backup policies, storage targets, backup records, recovery plans and their
// test results. Policies and plans are owned by the configuration layer and
// are read-only to the runtime core; records and test results are owned by
// the orchestrator and form append-only history.
package models

import (
	"time"
)

// BackupKind defines the class of backup a policy produces.
type BackupKind string

const (
	// KindFull captures the entire dataset.
	KindFull BackupKind = "full"

	// KindIncremental captures changes since the last backup of any kind.
	KindIncremental BackupKind = "incremental"

	// KindDifferential captures changes since the last full backup.
	KindDifferential BackupKind = "differential"

	// KindTransactionLog captures the transaction log tail. Only valid for
	// hourly (or finer) cadences, and only restorable chained after a
	// full or differential base.
	KindTransactionLog BackupKind = "transaction_log"
)

// Valid reports whether k is a known backup kind.
func (k BackupKind) Valid() bool {
	switch k {
	case KindFull, KindIncremental, KindDifferential, KindTransactionLog:
		return true
	}
	return false
}

// Cadence defines how often a policy is due.
type Cadence string

const (
	CadenceHourly  Cadence = "hourly"
	CadenceDaily   Cadence = "daily"
	CadenceWeekly  Cadence = "weekly"
	CadenceMonthly Cadence = "monthly"
)

// Valid reports whether c is a known cadence.
func (c Cadence) Valid() bool {
	switch c {
	case CadenceHourly, CadenceDaily, CadenceWeekly, CadenceMonthly:
		return true
	}
	return false
}

// Interval returns the nominal wall-clock interval between runs.
// Monthly uses 30 days; due computation compares against the last
// successful record, so drift does not accumulate.
func (c Cadence) Interval() time.Duration {
	switch c {
	case CadenceHourly:
		return time.Hour
	case CadenceDaily:
		return 24 * time.Hour
	case CadenceWeekly:
		return 7 * 24 * time.Hour
	case CadenceMonthly:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// RetentionRule defines how many historical backups to keep per bucket.
// A record survives a sweep if it falls into at least one bucket; it is
// deleted only when it satisfies none.
type RetentionRule struct {
	// Daily keeps one backup per day for the last N days.
	Daily int `json:"daily"`

	// Weekly keeps one backup per ISO week for the last N weeks.
	Weekly int `json:"weekly"`

	// Monthly keeps one backup per month for the last N months.
	Monthly int `json:"monthly"`

	// Yearly keeps one backup per year for the last N years.
	Yearly int `json:"yearly"`
}

// IsZero reports whether no bucket is configured. A zero rule disables
// sweeping entirely rather than deleting everything.
func (r RetentionRule) IsZero() bool {
	return r.Daily == 0 && r.Weekly == 0 && r.Monthly == 0 && r.Yearly == 0
}

// BackupPolicy is the configuration for one recurring backup class.
// Policies are created and edited by operators; the scheduler and
// executor treat them as read-only.
type BackupPolicy struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// Kind of backup this policy produces.
	Kind BackupKind `json:"kind"`

	// Cadence determines when the policy is due.
	Cadence Cadence `json:"cadence"`

	// CronExpr optionally overrides the cadence with a cron expression
	// (standard 5-field syntax). Cadence still bounds the stuck-job
	// ceiling and the transaction_log validity check.
	CronExpr string `json:"cron_expr,omitempty"`

	// Retention buckets applied by the catalog sweep after each run.
	Retention RetentionRule `json:"retention"`

	// TargetIDs is the ordered list of storage targets. The executor
	// always writes to the lowest-priority-number target; there is no
	// implicit fallback to the others.
	TargetIDs []string `json:"target_ids"`

	// SourcePaths declares the data sources handed to the gatherer.
	SourcePaths []string `json:"source_paths,omitempty"`

	Encrypt  bool `json:"encrypt"`
	Compress bool `json:"compress"`
	Verify   bool `json:"verify"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TargetKind classifies where a backup target lives.
type TargetKind string

const (
	TargetLocal   TargetKind = "local"
	TargetCloud   TargetKind = "cloud"
	TargetOffsite TargetKind = "offsite"
)

// Valid reports whether k is a known target kind.
func (k TargetKind) Valid() bool {
	switch k {
	case TargetLocal, TargetCloud, TargetOffsite:
		return true
	}
	return false
}

// BackupTarget is a storage destination for backup artifacts.
type BackupTarget struct {
	ID   string     `json:"id"`
	Name string     `json:"name"`
	Kind TargetKind `json:"kind"`

	// Location is a URI understood by the target store implementation
	// (e.g. a directory path for local targets).
	Location string `json:"location"`

	// Priority orders targets within a policy; lower is preferred.
	// Priorities must be distinct within one policy's target list.
	Priority int `json:"priority"`

	// MaxCapacityBytes is advisory: checked before a store call, not
	// enforced atomically. Zero means unlimited.
	MaxCapacityBytes int64 `json:"max_capacity_bytes,omitempty"`

	// CredentialRef is an opaque handle resolved by the hosting
	// application; the core never inspects credential contents.
	CredentialRef string `json:"credential_ref,omitempty"`
}

// RecordStatus is the state of one backup execution.
type RecordStatus string

const (
	StatusPending   RecordStatus = "pending"
	StatusRunning   RecordStatus = "running"
	StatusCompleted RecordStatus = "completed"
	StatusFailed    RecordStatus = "failed"
	StatusCorrupted RecordStatus = "corrupted"
)

// Terminal reports whether s is a final state. Status is monotonic:
// no transition ever leaves a terminal state.
func (s RecordStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCorrupted:
		return true
	}
	return false
}

// CanTransitionTo reports whether the pending→running→terminal state
// machine permits moving from s to next.
func (s RecordStatus) CanTransitionTo(next RecordStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusRunning || next == StatusFailed
	case StatusRunning:
		return next.Terminal()
	default:
		return false
	}
}

// SourceMetadata describes what the gatherer collected for one job.
type SourceMetadata struct {
	// Entities are the affected entity names (tables, directories, ...).
	Entities []string `json:"entities,omitempty"`

	// RecordCount is the number of source records captured, if known.
	RecordCount int64 `json:"record_count,omitempty"`

	// SchemaVersion is the source schema version at gather time.
	SchemaVersion string `json:"schema_version,omitempty"`
}

// BackupRecord is the immutable-once-finalized result of one backup
// execution. Every attempt keeps its own record; failed or corrupted
// runs are never retried into a new identity.
type BackupRecord struct {
	ID       string       `json:"id"`
	PolicyID string       `json:"policy_id"`
	Kind     BackupKind   `json:"kind"`
	Status   RecordStatus `json:"status"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// SizeBytes is the stored artifact size. Set only on completion.
	SizeBytes int64 `json:"size_bytes,omitempty"`

	// RawSizeBytes is the gathered payload size before transformation.
	RawSizeBytes int64 `json:"raw_size_bytes,omitempty"`

	// TargetID and Location identify where the artifact was stored.
	TargetID string `json:"target_id,omitempty"`
	Location string `json:"location,omitempty"`

	// Checksum is the SHA-256 digest of the stored (post-transform)
	// bytes. Set only on completion.
	Checksum string `json:"checksum,omitempty"`

	Encrypted  bool `json:"encrypted"`
	Compressed bool `json:"compressed"`

	// Verified is true only for completed records whose read-back
	// check passed.
	Verified bool `json:"verified"`

	// Error is the captured failure message for failed and corrupted
	// records.
	Error string `json:"error,omitempty"`

	Metadata SourceMetadata `json:"metadata"`
}

// Duration returns how long the job ran, or zero while still in flight.
func (r *BackupRecord) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}
