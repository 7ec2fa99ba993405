// Custodia - Backup and Disaster Recovery Orchestrator
// Copyright 2026 Custodia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/custodia-ops/custodia

package models

import (
	"time"
)

// PriorityClass ranks recovery plans for triage.
type PriorityClass string

const (
	PriorityCritical PriorityClass = "critical"
	PriorityHigh     PriorityClass = "high"
	PriorityMedium   PriorityClass = "medium"
	PriorityLow      PriorityClass = "low"
)

// Valid reports whether p is a known priority class.
func (p PriorityClass) Valid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// TestCadence defines how often a recovery plan must be exercised.
type TestCadence string

const (
	TestMonthly   TestCadence = "monthly"
	TestQuarterly TestCadence = "quarterly"
	TestAnnually  TestCadence = "annually"
)

// Valid reports whether c is a known test cadence.
func (c TestCadence) Valid() bool {
	switch c {
	case TestMonthly, TestQuarterly, TestAnnually:
		return true
	}
	return false
}

// NextAfter returns the deterministic next-test date following a test
// run at t: monthly +30d, quarterly +90d, annually +365d.
func (c TestCadence) NextAfter(t time.Time) time.Time {
	switch c {
	case TestMonthly:
		return t.AddDate(0, 0, 30)
	case TestQuarterly:
		return t.AddDate(0, 0, 90)
	case TestAnnually:
		return t.AddDate(0, 0, 365)
	default:
		return t.AddDate(0, 0, 90)
	}
}

// Contact is a person or channel notified when a plan executes.
type Contact struct {
	Name string `json:"name"`
	Role string `json:"role,omitempty"`

	// Channel is the notification mechanism (email, sms, pager, webhook).
	Channel string `json:"channel"`

	// Endpoint is the channel-specific address.
	Endpoint string `json:"endpoint"`

	// Priority orders notification delivery; lower is notified first.
	Priority int `json:"priority"`
}

// RecoveryProcedure is one runbook step within a plan.
type RecoveryProcedure struct {
	// Step numbers are strictly increasing within a plan.
	Step int `json:"step"`

	Title string `json:"title"`

	// EstimatedTime is used for reporting and alerting only, never
	// enforcement.
	EstimatedTime time.Duration `json:"estimated_time"`

	RequiredRoles []string `json:"required_roles,omitempty"`

	// DependsOn lists prior step numbers that must have executed
	// before this step may run. Forward or cyclic references are
	// rejected at validation time.
	DependsOn []int `json:"depends_on,omitempty"`

	// Verification describes the predicate that confirms the step.
	Verification string `json:"verification,omitempty"`

	// Rollback describes how to undo the step, when possible.
	Rollback string `json:"rollback,omitempty"`
}

// TestResult is the outcome of one dry-run execution of a plan.
type TestResult struct {
	TestedAt time.Time `json:"tested_at"`
	Success  bool      `json:"success"`

	// MeasuredRTOMinutes is the elapsed wall time of the dry run.
	MeasuredRTOMinutes float64 `json:"measured_rto_minutes"`

	// MeasuredRPOMinutes is the sampled data-loss window, taken from
	// the age of the newest completed backup at test time.
	MeasuredRPOMinutes float64 `json:"measured_rpo_minutes"`

	Issues          []string `json:"issues,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// RecoveryPlan is a named, ordered disaster-response runbook.
type RecoveryPlan struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Priority PriorityClass `json:"priority"`

	// TriggerTags activate this plan when a declared incident carries
	// any matching tag.
	TriggerTags []string `json:"trigger_tags,omitempty"`

	Procedures []RecoveryProcedure `json:"procedures"`
	Contacts   []Contact           `json:"contacts,omitempty"`

	// Resources lists required resources (hosts, credentials, spares).
	Resources []string `json:"resources,omitempty"`

	TestCadence TestCadence  `json:"test_cadence"`
	LastTested  *time.Time   `json:"last_tested,omitempty"`
	NextTested  *time.Time   `json:"next_tested,omitempty"`
	TestHistory []TestResult `json:"test_history,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Matches reports whether the plan's trigger predicates match any of
// the incident tags.
func (p *RecoveryPlan) Matches(tags []string) bool {
	for _, want := range p.TriggerTags {
		for _, got := range tags {
			if want == got {
				return true
			}
		}
	}
	return false
}

// Incident is a declared disaster event that activates recovery plans.
type Incident struct {
	ID         string    `json:"id"`
	Summary    string    `json:"summary"`
	Tags       []string  `json:"tags,omitempty"`
	DeclaredAt time.Time `json:"declared_at"`
	DeclaredBy string    `json:"declared_by,omitempty"`
}

// RecoveryObjectives are the declared RTO/RPO targets that plan tests
// are scored against.
type RecoveryObjectives struct {
	// RTOMinutes is the maximum acceptable time to restore service.
	RTOMinutes float64 `json:"rto_minutes"`

	// RPOMinutes is the maximum acceptable data-loss window.
	RPOMinutes float64 `json:"rpo_minutes"`
}

// RecoveryOutcome is the result of a real plan execution.
type RecoveryOutcome struct {
	PlanID        string        `json:"plan_id"`
	IncidentID    string        `json:"incident_id,omitempty"`
	Success       bool          `json:"success"`
	ExecutedSteps int           `json:"executed_steps"`
	TotalSteps    int           `json:"total_steps"`
	Duration      time.Duration `json:"duration_ms"`
	Issues        []string      `json:"issues,omitempty"`
}

// RestoreOptions configures a restore engine invocation.
type RestoreOptions struct {
	// TargetLocation optionally redirects where the recovered payload
	// is applied; empty means the sink's default.
	TargetLocation string `json:"target_location,omitempty"`

	// PointInTime replays transaction_log records chained after the
	// base record in ascending timestamp order, up to and not beyond
	// this instant. Meaningful only for transaction_log chains.
	PointInTime *time.Time `json:"point_in_time,omitempty"`

	// PartialEntities restricts the restore to the named entities.
	PartialEntities []string `json:"partial_entities,omitempty"`

	// VerifyFirst re-verifies the artifact checksum before any target
	// state is touched.
	VerifyFirst bool `json:"verify_first"`
}

// RestoreOutcome is the result of a restore engine invocation.
type RestoreOutcome struct {
	Success       bool          `json:"success"`
	RecordID      string        `json:"record_id"`
	BytesRestored int64         `json:"bytes_restored"`
	Duration      time.Duration `json:"duration_ms"`
	Errors        []string      `json:"errors,omitempty"`
}
