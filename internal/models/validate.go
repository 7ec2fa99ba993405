// Custodia - Backup and Disaster Recovery Orchestrator
// Copyright 2026 Custodia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/custodia-ops/custodia

package models

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// cronParser accepts the standard 5-field cron syntax used by policy
// schedule overrides.
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// ValidatePolicy checks the BackupPolicy invariants. The resolved
// targets for the policy's TargetIDs must be supplied so that priority
// distinctness can be checked.
func ValidatePolicy(p *BackupPolicy, targets []BackupTarget) error {
	if p.ID == "" {
		return fmt.Errorf("policy id is required")
	}
	if p.Name == "" {
		return fmt.Errorf("policy %s: name is required", p.ID)
	}
	if !p.Kind.Valid() {
		return fmt.Errorf("policy %s: unknown backup kind %q", p.ID, p.Kind)
	}
	if !p.Cadence.Valid() {
		return fmt.Errorf("policy %s: unknown cadence %q", p.ID, p.Cadence)
	}

	// transaction_log backups only make sense at hourly (or finer)
	// cadence; anything slower defeats the point of log shipping.
	if p.Kind == KindTransactionLog && p.Cadence != CadenceHourly {
		return fmt.Errorf("policy %s: transaction_log kind requires hourly cadence, got %q", p.ID, p.Cadence)
	}

	if len(p.TargetIDs) == 0 {
		return fmt.Errorf("policy %s: at least one target is required", p.ID)
	}
	if len(targets) != len(p.TargetIDs) {
		return fmt.Errorf("policy %s: %d of %d targets could not be resolved",
			p.ID, len(p.TargetIDs)-len(targets), len(p.TargetIDs))
	}

	seen := make(map[int]string, len(targets))
	for _, t := range targets {
		if prev, dup := seen[t.Priority]; dup {
			return fmt.Errorf("policy %s: targets %s and %s share priority %d", p.ID, prev, t.ID, t.Priority)
		}
		seen[t.Priority] = t.ID
	}

	if p.Retention.Daily < 0 || p.Retention.Weekly < 0 || p.Retention.Monthly < 0 || p.Retention.Yearly < 0 {
		return fmt.Errorf("policy %s: retention counts must be >= 0", p.ID)
	}

	if p.CronExpr != "" {
		if _, err := cronParser.Parse(p.CronExpr); err != nil {
			return fmt.Errorf("policy %s: invalid cron expression %q: %w", p.ID, p.CronExpr, err)
		}
	}

	return nil
}

// ValidateTarget checks a BackupTarget definition.
func ValidateTarget(t *BackupTarget) error {
	if t.ID == "" {
		return fmt.Errorf("target id is required")
	}
	if !t.Kind.Valid() {
		return fmt.Errorf("target %s: unknown kind %q", t.ID, t.Kind)
	}
	if t.Location == "" {
		return fmt.Errorf("target %s: location is required", t.ID)
	}
	if t.MaxCapacityBytes < 0 {
		return fmt.Errorf("target %s: max capacity must be >= 0", t.ID)
	}
	return nil
}

// ValidatePlan checks the RecoveryPlan invariants: strictly increasing
// step numbers and dependencies that reference only earlier steps.
func ValidatePlan(p *RecoveryPlan) error {
	if p.ID == "" {
		return fmt.Errorf("plan id is required")
	}
	if p.Name == "" {
		return fmt.Errorf("plan %s: name is required", p.ID)
	}
	if !p.Priority.Valid() {
		return fmt.Errorf("plan %s: unknown priority class %q", p.ID, p.Priority)
	}
	if !p.TestCadence.Valid() {
		return fmt.Errorf("plan %s: unknown test cadence %q", p.ID, p.TestCadence)
	}
	if len(p.Procedures) == 0 {
		return fmt.Errorf("plan %s: at least one procedure is required", p.ID)
	}

	prev := 0
	known := make(map[int]bool, len(p.Procedures))
	for _, proc := range p.Procedures {
		if proc.Step <= prev {
			return fmt.Errorf("plan %s: step numbers must be strictly increasing, %d follows %d", p.ID, proc.Step, prev)
		}
		for _, dep := range proc.DependsOn {
			if !known[dep] {
				return fmt.Errorf("plan %s: step %d depends on step %d which is not an earlier step", p.ID, proc.Step, dep)
			}
		}
		known[proc.Step] = true
		prev = proc.Step
	}

	return nil
}

// ValidateObjectives checks declared recovery objectives.
func ValidateObjectives(o RecoveryObjectives) error {
	if o.RTOMinutes <= 0 {
		return fmt.Errorf("rto_minutes must be > 0")
	}
	if o.RPOMinutes <= 0 {
		return fmt.Errorf("rpo_minutes must be > 0")
	}
	return nil
}
