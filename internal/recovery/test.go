// Custodia - Backup and Disaster Recovery Orchestrator
// Copyright 2026 Custodia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/custodia-ops/custodia

package recovery

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-ops/custodia/internal/audit"
	"github.com/custodia-ops/custodia/internal/catalog"
	"github.com/custodia-ops/custodia/internal/metrics"
	"github.com/custodia-ops/custodia/internal/models"
)

// Test dry-runs the plan with the simulated runner, measures RTO from
// the run's wall time and RPO from the age of the newest completed
// backup, scores the result against the declared objectives, and
// persists the updated test history on the plan.
func (e *Engine) Test(ctx context.Context, plan *models.RecoveryPlan) (*models.TestResult, error) {
	objectives, err := e.catalog.GetObjectives(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result := &models.TestResult{TestedAt: start.UTC()}

	executed := make(map[int]bool, len(plan.Procedures))
	stepsOK := true
	for _, proc := range sortedProcedures(plan) {
		if err := e.testStep(ctx, plan, proc, executed); err != nil {
			result.Issues = append(result.Issues, fmt.Sprintf("step %d (%s): %v", proc.Step, proc.Title, err))
			stepsOK = false
			break
		}
		executed[proc.Step] = true
	}

	result.MeasuredRTOMinutes = time.Since(start).Minutes()
	result.MeasuredRPOMinutes, err = e.measureRPO(ctx)
	if err != nil {
		result.Issues = append(result.Issues, err.Error())
		stepsOK = false
	}

	ok, recommendations := Score(result, objectives)
	result.Success = stepsOK && ok
	result.Recommendations = recommendations

	if err := e.persistTest(ctx, plan, result); err != nil {
		return nil, err
	}

	outcome := audit.OutcomeSuccess
	label := "passed"
	if !result.Success {
		outcome = audit.OutcomeFailure
		label = "failed"
	}
	e.auditor.Record(&audit.Event{
		Type:      audit.EventPlanTested,
		Component: "recovery",
		Action:    "test",
		PlanID:    plan.ID,
		Outcome:   outcome,
		Message:   fmt.Sprintf("dry run %s: RTO %.1f min, RPO %.1f min", label, result.MeasuredRTOMinutes, result.MeasuredRPOMinutes),
	})
	metrics.RecoveryTestsTotal.WithLabelValues(label).Inc()

	return result, nil
}

func (e *Engine) testStep(ctx context.Context, plan *models.RecoveryPlan, proc models.RecoveryProcedure, executed map[int]bool) error {
	for _, dep := range proc.DependsOn {
		if !executed[dep] {
			return fmt.Errorf("dependency step %d has not executed", dep)
		}
	}
	return e.sim.RunStep(ctx, plan, proc)
}

// measureRPO samples the current data-loss window: the age of the
// newest completed backup across all policies.
func (e *Engine) measureRPO(ctx context.Context) (float64, error) {
	records, err := e.catalog.Query(ctx, catalog.QueryFilter{
		Status: models.StatusCompleted,
		Limit:  1,
	})
	if err != nil {
		return 0, fmt.Errorf("measure recovery point: %w", err)
	}
	if len(records) == 0 {
		return 0, fmt.Errorf("measure recovery point: no completed backups exist")
	}
	newest := records[0].StartedAt
	if records[0].CompletedAt != nil {
		newest = *records[0].CompletedAt
	}
	return time.Since(newest).Minutes(), nil
}

// Score compares a measured test result against the declared
// objectives. It returns whether both objectives were met and the
// recommendations for any that were missed. A zero objective is
// treated as unset and always passes.
func Score(result *models.TestResult, objectives models.RecoveryObjectives) (bool, []string) {
	ok := true
	var recommendations []string

	if objectives.RTOMinutes > 0 && result.MeasuredRTOMinutes > objectives.RTOMinutes {
		ok = false
		recommendations = append(recommendations, fmt.Sprintf(
			"measured RTO %.1f minutes exceeds the %.1f minute objective; shorten or parallelize long procedures, or pre-stage required resources",
			result.MeasuredRTOMinutes, objectives.RTOMinutes))
	}
	if objectives.RPOMinutes > 0 && result.MeasuredRPOMinutes > objectives.RPOMinutes {
		ok = false
		recommendations = append(recommendations, fmt.Sprintf(
			"measured RPO %.1f minutes exceeds the %.1f minute objective; increase backup cadence or add transaction_log policies",
			result.MeasuredRPOMinutes, objectives.RPOMinutes))
	}
	return ok, recommendations
}

func (e *Engine) persistTest(ctx context.Context, plan *models.RecoveryPlan, result *models.TestResult) error {
	now := result.TestedAt
	next := plan.TestCadence.NextAfter(now)
	plan.LastTested = &now
	plan.NextTested = &next
	plan.TestHistory = append(plan.TestHistory, *result)
	if len(plan.TestHistory) > testHistoryLimit {
		plan.TestHistory = plan.TestHistory[len(plan.TestHistory)-testHistoryLimit:]
	}
	if err := e.catalog.PutPlan(ctx, plan); err != nil {
		return fmt.Errorf("persist test result for plan %s: %w", plan.ID, err)
	}
	return nil
}

func sortedProcedures(plan *models.RecoveryPlan) []models.RecoveryProcedure {
	procs := make([]models.RecoveryProcedure, len(plan.Procedures))
	copy(procs, plan.Procedures)
	for i := 1; i < len(procs); i++ {
		for j := i; j > 0 && procs[j].Step < procs[j-1].Step; j-- {
			procs[j], procs[j-1] = procs[j-1], procs[j]
		}
	}
	return procs
}
