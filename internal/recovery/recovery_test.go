// Custodia - Backup and Disaster Recovery Orchestrator
// Copyright 2026 Custodia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/custodia-ops/custodia

package recovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/custodia-ops/custodia/internal/audit"
	"github.com/custodia-ops/custodia/internal/catalog"
	"github.com/custodia-ops/custodia/internal/models"
	"github.com/custodia-ops/custodia/internal/notify"
)

// funcRunner adapts a function to StepRunner.
type funcRunner func(proc models.RecoveryProcedure) error

func (f funcRunner) RunStep(_ context.Context, _ *models.RecoveryPlan, proc models.RecoveryProcedure) error {
	return f(proc)
}

// captureNotifier records delivery order.
type captureNotifier struct {
	notified []string
	err      error
}

func (c *captureNotifier) Notify(_ context.Context, contact models.Contact, _ notify.Message) error {
	c.notified = append(c.notified, contact.Name)
	return c.err
}

type harness struct {
	catalog  *catalog.Catalog
	events   *audit.MemoryStore
	notifier *captureNotifier
	engine   *Engine
}

func newHarness(t *testing.T, runner StepRunner) *harness {
	t.Helper()

	cat, err := catalog.Open(catalog.Config{InMemory: true})
	if err != nil {
		t.Fatalf("catalog.Open() error = %v", err)
	}
	t.Cleanup(func() { cat.Close() })

	events := audit.NewMemoryStore(1000)
	auditor := audit.NewLogger(events, &audit.Config{Enabled: true, BufferSize: 1000})
	t.Cleanup(auditor.Close)

	notifier := &captureNotifier{}
	return &harness{
		catalog:  cat,
		events:   events,
		notifier: notifier,
		engine:   NewEngine(cat, notifier, auditor, runner),
	}
}

func threeStepPlan() *models.RecoveryPlan {
	return &models.RecoveryPlan{
		ID:       "plan-1",
		Name:     "database-loss",
		Priority: models.PriorityCritical,
		Procedures: []models.RecoveryProcedure{
			{Step: 1, Title: "declare maintenance window"},
			{Step: 2, Title: "restore latest full backup", DependsOn: []int{1}},
			{Step: 3, Title: "replay transaction logs", DependsOn: []int{2}},
		},
		TestCadence: models.TestQuarterly,
	}
}

func waitForEvent(t *testing.T, store *audit.MemoryStore, eventType audit.EventType) []audit.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		events, err := store.Query(context.Background(), audit.QueryFilter{Types: []audit.EventType{eventType}})
		if err != nil {
			t.Fatalf("Query() error = %v", err)
		}
		if len(events) > 0 {
			return events
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s event", eventType)
	return nil
}

func TestDeclareIncidentMatchesPlansByPriority(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	low := &models.RecoveryPlan{
		ID: "plan-low", Name: "cache-loss", Priority: models.PriorityLow,
		TriggerTags: []string{"datacenter"},
		Procedures:  []models.RecoveryProcedure{{Step: 1, Title: "rebuild cache"}},
		TestCadence: models.TestAnnually,
	}
	critical := &models.RecoveryPlan{
		ID: "plan-critical", Name: "database-loss", Priority: models.PriorityCritical,
		TriggerTags: []string{"database", "datacenter"},
		Procedures:  []models.RecoveryProcedure{{Step: 1, Title: "restore database"}},
		TestCadence: models.TestQuarterly,
	}
	unrelated := &models.RecoveryPlan{
		ID: "plan-other", Name: "dns-loss", Priority: models.PriorityHigh,
		TriggerTags: []string{"dns"},
		Procedures:  []models.RecoveryProcedure{{Step: 1, Title: "repoint dns"}},
		TestCadence: models.TestAnnually,
	}
	for _, plan := range []*models.RecoveryPlan{low, critical, unrelated} {
		if err := h.catalog.PutPlan(ctx, plan); err != nil {
			t.Fatalf("PutPlan(%s) error = %v", plan.ID, err)
		}
	}

	incident := &models.Incident{Summary: "datacenter power loss", Tags: []string{"datacenter"}}
	plans, err := h.engine.DeclareIncident(ctx, incident)
	if err != nil {
		t.Fatalf("DeclareIncident() error = %v", err)
	}
	if incident.ID == "" || incident.DeclaredAt.IsZero() {
		t.Error("incident ID and DeclaredAt should be stamped")
	}
	if len(plans) != 2 {
		t.Fatalf("matched plans = %d, want 2", len(plans))
	}
	if plans[0].ID != "plan-critical" || plans[1].ID != "plan-low" {
		t.Errorf("plan order = [%s %s], want critical first", plans[0].ID, plans[1].ID)
	}

	waitForEvent(t, h.events, audit.EventIncidentDeclared)
}

func TestExecuteRunsAllStepsInOrder(t *testing.T) {
	var order []int
	h := newHarness(t, funcRunner(func(proc models.RecoveryProcedure) error {
		order = append(order, proc.Step)
		return nil
	}))

	plan := threeStepPlan()
	plan.Contacts = []models.Contact{
		{Name: "secondary", Channel: "email", Endpoint: "b@example.com", Priority: 2},
		{Name: "primary", Channel: "pager", Endpoint: "a@example.com", Priority: 1},
	}

	outcome, err := h.engine.Execute(context.Background(), plan, &models.Incident{ID: "inc-1", Summary: "db down"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !outcome.Success {
		t.Errorf("outcome.Success = false, issues = %v", outcome.Issues)
	}
	if outcome.ExecutedSteps != 3 || outcome.TotalSteps != 3 {
		t.Errorf("steps = %d/%d, want 3/3", outcome.ExecutedSteps, outcome.TotalSteps)
	}
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("step order = %v, want [1 2 3]", order)
	}
	if len(h.notifier.notified) != 2 || h.notifier.notified[0] != "primary" || h.notifier.notified[1] != "secondary" {
		t.Errorf("notification order = %v, want [primary secondary]", h.notifier.notified)
	}

	waitForEvent(t, h.events, audit.EventPlanExecuted)
	waitForEvent(t, h.events, audit.EventContactNotified)
}

func TestExecuteHaltsOnFirstFailure(t *testing.T) {
	h := newHarness(t, funcRunner(func(proc models.RecoveryProcedure) error {
		if proc.Step == 2 {
			return errors.New("restore target unreachable")
		}
		return nil
	}))

	outcome, err := h.engine.Execute(context.Background(), threeStepPlan(), nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if outcome.Success {
		t.Error("outcome.Success = true, want false")
	}
	if outcome.ExecutedSteps != 1 {
		t.Errorf("ExecutedSteps = %d, want 1", outcome.ExecutedSteps)
	}
	if len(outcome.Issues) == 0 {
		t.Error("outcome.Issues is empty, want the step failure recorded")
	}

	waitForEvent(t, h.events, audit.EventPlanHalted)
	waitForEvent(t, h.events, audit.EventStepFailed)
}

func TestExecuteNotificationFailureDoesNotBlock(t *testing.T) {
	h := newHarness(t, funcRunner(func(models.RecoveryProcedure) error { return nil }))
	h.notifier.err = errors.New("endpoint refused connection")

	plan := threeStepPlan()
	plan.Contacts = []models.Contact{{Name: "ops", Channel: "webhook", Endpoint: "http://down", Priority: 1}}

	outcome, err := h.engine.Execute(context.Background(), plan, nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !outcome.Success {
		t.Errorf("outcome.Success = false, issues = %v", outcome.Issues)
	}
	if len(outcome.Issues) != 1 {
		t.Errorf("issues = %v, want the notification failure recorded", outcome.Issues)
	}
}

func TestScoreObjectiveMisses(t *testing.T) {
	objectives := models.RecoveryObjectives{RTOMinutes: 240, RPOMinutes: 60}

	ok, recs := Score(&models.TestResult{MeasuredRTOMinutes: 300, MeasuredRPOMinutes: 30}, objectives)
	if ok {
		t.Error("Score() ok = true for RTO 300 vs objective 240")
	}
	if len(recs) == 0 {
		t.Error("Score() recommendations empty for a missed RTO")
	}

	ok, recs = Score(&models.TestResult{MeasuredRTOMinutes: 100, MeasuredRPOMinutes: 90}, objectives)
	if ok || len(recs) == 0 {
		t.Errorf("Score() = (%v, %v) for a missed RPO, want failure with recommendations", ok, recs)
	}

	ok, recs = Score(&models.TestResult{MeasuredRTOMinutes: 100, MeasuredRPOMinutes: 30}, objectives)
	if !ok || len(recs) != 0 {
		t.Errorf("Score() = (%v, %v) for met objectives, want success", ok, recs)
	}
}

func seedCompletedBackup(t *testing.T, cat *catalog.Catalog, age time.Duration) {
	t.Helper()
	start := time.Now().UTC().Add(-age)
	done := start.Add(time.Minute)
	err := cat.Append(context.Background(), &models.BackupRecord{
		ID: "rec-1", PolicyID: "pol-1", Kind: models.KindFull,
		Status: models.StatusCompleted, StartedAt: start, CompletedAt: &done,
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
}

func TestPlanTestPassesAndPersistsHistory(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	seedCompletedBackup(t, h.catalog, 10*time.Minute)
	if err := h.catalog.PutObjectives(ctx, models.RecoveryObjectives{RTOMinutes: 60, RPOMinutes: 60}); err != nil {
		t.Fatalf("PutObjectives() error = %v", err)
	}
	plan := threeStepPlan()
	if err := h.catalog.PutPlan(ctx, plan); err != nil {
		t.Fatalf("PutPlan() error = %v", err)
	}

	result, err := h.engine.Test(ctx, plan)
	if err != nil {
		t.Fatalf("Test() error = %v", err)
	}
	if !result.Success {
		t.Errorf("result.Success = false, issues = %v, recommendations = %v", result.Issues, result.Recommendations)
	}
	if result.MeasuredRPOMinutes < 10 || result.MeasuredRPOMinutes > 12 {
		t.Errorf("MeasuredRPOMinutes = %.1f, want about 10", result.MeasuredRPOMinutes)
	}

	stored, err := h.catalog.GetPlan(ctx, plan.ID)
	if err != nil {
		t.Fatalf("GetPlan() error = %v", err)
	}
	if stored.LastTested == nil || len(stored.TestHistory) != 1 {
		t.Fatalf("persisted plan: LastTested = %v, history = %d entries", stored.LastTested, len(stored.TestHistory))
	}
	wantNext := stored.LastTested.AddDate(0, 0, 90)
	if stored.NextTested == nil || !stored.NextTested.Equal(wantNext) {
		t.Errorf("NextTested = %v, want %v for a quarterly cadence", stored.NextTested, wantNext)
	}

	waitForEvent(t, h.events, audit.EventPlanTested)
}

func TestPlanTestFailsWhenRPOExceeded(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	seedCompletedBackup(t, h.catalog, 3*time.Hour)
	if err := h.catalog.PutObjectives(ctx, models.RecoveryObjectives{RTOMinutes: 60, RPOMinutes: 30}); err != nil {
		t.Fatalf("PutObjectives() error = %v", err)
	}
	plan := threeStepPlan()
	if err := h.catalog.PutPlan(ctx, plan); err != nil {
		t.Fatalf("PutPlan() error = %v", err)
	}

	result, err := h.engine.Test(ctx, plan)
	if err != nil {
		t.Fatalf("Test() error = %v", err)
	}
	if result.Success {
		t.Error("result.Success = true with a 3 hour old newest backup and a 30 minute RPO objective")
	}
	if len(result.Recommendations) == 0 {
		t.Error("result.Recommendations is empty for a missed RPO")
	}
}

func TestPlanTestWithoutBackupsFails(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if err := h.catalog.PutObjectives(ctx, models.RecoveryObjectives{RTOMinutes: 60, RPOMinutes: 60}); err != nil {
		t.Fatalf("PutObjectives() error = %v", err)
	}
	plan := threeStepPlan()
	if err := h.catalog.PutPlan(ctx, plan); err != nil {
		t.Fatalf("PutPlan() error = %v", err)
	}

	result, err := h.engine.Test(ctx, plan)
	if err != nil {
		t.Fatalf("Test() error = %v", err)
	}
	if result.Success {
		t.Error("result.Success = true with no completed backups")
	}
	if len(result.Issues) == 0 {
		t.Error("result.Issues is empty, want the missing-backup issue")
	}
}
