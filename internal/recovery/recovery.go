// Custodia - Backup and Disaster Recovery Orchestrator
// Copyright 2026 Custodia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/custodia-ops/custodia

// Package recovery orchestrates disaster-recovery plans: incident
// declaration, contact notification, ordered runbook execution with
// dependency gating, and periodic dry-run testing scored against the
// declared RTO/RPO objectives.
package recovery

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-ops/custodia/internal/audit"
	"github.com/custodia-ops/custodia/internal/catalog"
	"github.com/custodia-ops/custodia/internal/logging"
	"github.com/custodia-ops/custodia/internal/metrics"
	"github.com/custodia-ops/custodia/internal/models"
	"github.com/custodia-ops/custodia/internal/notify"
)

// testHistoryLimit caps how many dry-run results a plan retains.
const testHistoryLimit = 24

// StepRunner executes one runbook procedure.
type StepRunner interface {
	RunStep(ctx context.Context, plan *models.RecoveryPlan, proc models.RecoveryProcedure) error
}

// LogRunner is the production runner. Runbook steps are operator
// actions; the engine's job is ordering, notification, and the audit
// trail, so the runner records the step for the on-call operator.
type LogRunner struct{}

// RunStep logs the step.
func (LogRunner) RunStep(_ context.Context, plan *models.RecoveryPlan, proc models.RecoveryProcedure) error {
	logging.Info().
		Str("plan_id", plan.ID).
		Int("step", proc.Step).
		Str("title", proc.Title).
		Dur("estimated_time", proc.EstimatedTime).
		Strs("required_roles", proc.RequiredRoles).
		Msg("Recovery step ready")
	return nil
}

// SimulatedRunner is the dry-run runner used by plan tests. StepDelay
// optionally slows each step to exercise timing paths.
type SimulatedRunner struct {
	StepDelay time.Duration
}

// RunStep simulates the step.
func (r SimulatedRunner) RunStep(ctx context.Context, _ *models.RecoveryPlan, _ models.RecoveryProcedure) error {
	if r.StepDelay <= 0 {
		return nil
	}
	select {
	case <-time.After(r.StepDelay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Engine drives recovery-plan execution and testing.
type Engine struct {
	catalog  *catalog.Catalog
	notifier notify.Notifier
	auditor  *audit.Logger
	runner   StepRunner

	// sim is the runner used by Test; swappable for tests.
	sim StepRunner
}

// NewEngine creates a recovery engine. A nil runner defaults to
// LogRunner.
func NewEngine(cat *catalog.Catalog, notifier notify.Notifier, auditor *audit.Logger, runner StepRunner) *Engine {
	if runner == nil {
		runner = LogRunner{}
	}
	return &Engine{
		catalog:  cat,
		notifier: notifier,
		auditor:  auditor,
		runner:   runner,
		sim:      SimulatedRunner{},
	}
}

// priorityRank orders plans critical first.
func priorityRank(p models.PriorityClass) int {
	switch p {
	case models.PriorityCritical:
		return 0
	case models.PriorityHigh:
		return 1
	case models.PriorityMedium:
		return 2
	case models.PriorityLow:
		return 3
	default:
		return 4
	}
}

// DeclareIncident records the incident and returns the plans whose
// trigger tags match it, critical priority first.
func (e *Engine) DeclareIncident(ctx context.Context, incident *models.Incident) ([]*models.RecoveryPlan, error) {
	if incident.ID == "" {
		incident.ID = uuid.New().String()
	}
	if incident.DeclaredAt.IsZero() {
		incident.DeclaredAt = time.Now().UTC()
	}

	e.auditor.Record(&audit.Event{
		Type:       audit.EventIncidentDeclared,
		Severity:   audit.SeverityCritical,
		Component:  "recovery",
		Action:     "declare",
		IncidentID: incident.ID,
		Outcome:    audit.OutcomeSuccess,
		Message:    incident.Summary,
		Details:    map[string]any{"tags": incident.Tags, "declared_by": incident.DeclaredBy},
	})

	plans, err := e.catalog.MatchPlans(ctx, incident.Tags)
	if err != nil {
		return nil, fmt.Errorf("match plans for incident %s: %w", incident.ID, err)
	}
	sort.SliceStable(plans, func(i, j int) bool {
		return priorityRank(plans[i].Priority) < priorityRank(plans[j].Priority)
	})
	return plans, nil
}

// Execute runs the plan's procedures in step order against the
// declared incident. Contacts are notified first, lowest priority
// number first. Execution halts at the first failed step; steps whose
// dependencies have not executed are treated as failures.
func (e *Engine) Execute(ctx context.Context, plan *models.RecoveryPlan, incident *models.Incident) (*models.RecoveryOutcome, error) {
	start := time.Now()
	outcome := &models.RecoveryOutcome{
		PlanID:     plan.ID,
		TotalSteps: len(plan.Procedures),
	}
	if incident != nil {
		outcome.IncidentID = incident.ID
	}

	e.notifyContacts(ctx, plan, incident, outcome)

	executed := make(map[int]bool, len(plan.Procedures))
	for _, proc := range sortedProcedures(plan) {
		if err := e.runStep(ctx, plan, proc, executed); err != nil {
			outcome.Issues = append(outcome.Issues, fmt.Sprintf("step %d (%s): %v", proc.Step, proc.Title, err))
			outcome.ExecutedSteps = len(executed)
			outcome.Duration = time.Since(start)
			e.halt(plan, outcome, proc)
			metrics.RecoveryExecutionsTotal.WithLabelValues("halted").Inc()
			return outcome, nil
		}
		executed[proc.Step] = true
	}

	outcome.Success = true
	outcome.ExecutedSteps = len(executed)
	outcome.Duration = time.Since(start)

	e.auditor.Record(&audit.Event{
		Type:       audit.EventPlanExecuted,
		Component:  "recovery",
		Action:     "execute",
		PlanID:     plan.ID,
		IncidentID: outcome.IncidentID,
		Outcome:    audit.OutcomeSuccess,
		Message:    fmt.Sprintf("executed %d of %d steps", outcome.ExecutedSteps, outcome.TotalSteps),
	})
	metrics.RecoveryExecutionsTotal.WithLabelValues("completed").Inc()
	return outcome, nil
}

func (e *Engine) runStep(ctx context.Context, plan *models.RecoveryPlan, proc models.RecoveryProcedure, executed map[int]bool) error {
	for _, dep := range proc.DependsOn {
		if !executed[dep] {
			err := fmt.Errorf("dependency step %d has not executed", dep)
			e.recordStep(plan, proc, err)
			return err
		}
	}

	err := e.runner.RunStep(ctx, plan, proc)
	e.recordStep(plan, proc, err)
	return err
}

func (e *Engine) recordStep(plan *models.RecoveryPlan, proc models.RecoveryProcedure, err error) {
	event := &audit.Event{
		Type:      audit.EventStepExecuted,
		Component: "recovery",
		Action:    "step",
		PlanID:    plan.ID,
		Outcome:   audit.OutcomeSuccess,
		Message:   proc.Title,
		Details:   map[string]any{"step": proc.Step},
	}
	if err != nil {
		event.Type = audit.EventStepFailed
		event.Severity = audit.SeverityError
		event.Outcome = audit.OutcomeFailure
		event.Message = fmt.Sprintf("%s: %v", proc.Title, err)
	}
	e.auditor.Record(event)
}

func (e *Engine) halt(plan *models.RecoveryPlan, outcome *models.RecoveryOutcome, failed models.RecoveryProcedure) {
	e.auditor.Record(&audit.Event{
		Type:       audit.EventPlanHalted,
		Severity:   audit.SeverityCritical,
		Component:  "recovery",
		Action:     "execute",
		PlanID:     plan.ID,
		IncidentID: outcome.IncidentID,
		Outcome:    audit.OutcomeFailure,
		Message:    fmt.Sprintf("halted at step %d after %d of %d steps", failed.Step, outcome.ExecutedSteps, outcome.TotalSteps),
	})
	logging.Error().
		Str("plan_id", plan.ID).
		Int("failed_step", failed.Step).
		Str("rollback", failed.Rollback).
		Msg("Recovery plan halted")
}

// notifyContacts delivers activation notices in ascending contact
// priority. Delivery failures are recorded as issues but never block
// the plan.
func (e *Engine) notifyContacts(ctx context.Context, plan *models.RecoveryPlan, incident *models.Incident, outcome *models.RecoveryOutcome) {
	if e.notifier == nil || len(plan.Contacts) == 0 {
		return
	}

	contacts := make([]models.Contact, len(plan.Contacts))
	copy(contacts, plan.Contacts)
	sort.SliceStable(contacts, func(i, j int) bool { return contacts[i].Priority < contacts[j].Priority })

	msg := notify.Message{
		PlanID:   plan.ID,
		PlanName: plan.Name,
		Summary:  fmt.Sprintf("recovery plan %s activated", plan.Name),
		Severity: string(plan.Priority),
		SentAt:   time.Now().UTC(),
	}
	if incident != nil {
		msg.IncidentID = incident.ID
		msg.Summary = incident.Summary
	}

	for _, contact := range contacts {
		err := e.notifier.Notify(ctx, contact, msg)
		event := &audit.Event{
			Type:       audit.EventContactNotified,
			Component:  "recovery",
			Action:     "notify",
			PlanID:     plan.ID,
			IncidentID: msg.IncidentID,
			Outcome:    audit.OutcomeSuccess,
			Message:    fmt.Sprintf("notified %s via %s", contact.Name, contact.Channel),
		}
		if err != nil {
			event.Severity = audit.SeverityWarning
			event.Outcome = audit.OutcomeFailure
			event.Message = fmt.Sprintf("notify %s via %s: %v", contact.Name, contact.Channel, err)
			outcome.Issues = append(outcome.Issues, event.Message)
		}
		e.auditor.Record(event)
	}
}
