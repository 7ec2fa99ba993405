// Custodia - Backup and Disaster Recovery Orchestrator
// Copyright 2026 Custodia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/custodia-ops/custodia

// Package audit records every job state transition and every recovery
// step as structured events for external observability tooling. Events
// form an append-only trail; terminal errors are always audited with
// full context before being surfaced to any caller.
package audit

import (
	"context"
	"time"
)

// EventType categorizes audit events.
type EventType string

const (
	// Backup job lifecycle
	EventJobDispatched EventType = "backup.job_dispatched"
	EventJobStarted    EventType = "backup.job_started"
	EventJobCompleted  EventType = "backup.job_completed"
	EventJobFailed     EventType = "backup.job_failed"
	EventJobCorrupted  EventType = "backup.job_corrupted"
	EventJobStuck      EventType = "backup.job_stuck"
	EventSweep         EventType = "backup.sweep"

	// Restore engine
	EventRestoreStarted   EventType = "restore.started"
	EventRestoreCompleted EventType = "restore.completed"
	EventRestoreRejected  EventType = "restore.rejected"
	EventRestoreFailed    EventType = "restore.failed"

	// Recovery plan engine
	EventIncidentDeclared EventType = "recovery.incident_declared"
	EventPlanExecuted     EventType = "recovery.plan_executed"
	EventPlanHalted       EventType = "recovery.plan_halted"
	EventPlanTested       EventType = "recovery.plan_tested"
	EventStepExecuted     EventType = "recovery.step_executed"
	EventStepFailed       EventType = "recovery.step_failed"
	EventContactNotified  EventType = "recovery.contact_notified"

	// Operator configuration
	EventPolicyChanged     EventType = "config.policy_changed"
	EventPlanChanged       EventType = "config.plan_changed"
	EventObjectivesChanged EventType = "config.objectives_changed"
)

// Severity indicates the severity level of an audit event.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Outcome indicates whether the audited action succeeded.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Event is one structured audit record.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Severity  Severity  `json:"severity"`

	// Component is the emitting subsystem (scheduler, executor,
	// restore, recovery, catalog, api).
	Component string `json:"component"`

	// Action is the operation that was performed.
	Action string `json:"action"`

	PolicyID   string `json:"policy_id,omitempty"`
	PlanID     string `json:"plan_id,omitempty"`
	RecordID   string `json:"record_id,omitempty"`
	IncidentID string `json:"incident_id,omitempty"`

	Outcome Outcome `json:"outcome"`
	Message string  `json:"message,omitempty"`

	// Details carries event-specific context.
	Details map[string]any `json:"details,omitempty"`
}

// Store persists audit events.
type Store interface {
	// Save persists one event.
	Save(ctx context.Context, event *Event) error

	// Query returns events matching the filter, newest first.
	Query(ctx context.Context, filter QueryFilter) ([]Event, error)

	// Close releases store resources.
	Close() error
}

// QueryFilter selects audit events.
type QueryFilter struct {
	Types      []EventType `json:"types,omitempty"`
	Severities []Severity  `json:"severities,omitempty"`
	PolicyID   string      `json:"policy_id,omitempty"`
	PlanID     string      `json:"plan_id,omitempty"`
	Since      *time.Time  `json:"since,omitempty"`
	Until      *time.Time  `json:"until,omitempty"`
	Limit      int         `json:"limit,omitempty"`
}
