// Custodia - Backup and Disaster Recovery Orchestrator
// Copyright 2026 Custodia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/custodia-ops/custodia

package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/custodia-ops/custodia/internal/models"
)

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(Config{InMemory: true})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		if err := c.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return c
}

func testRecord(id, policyID string, startedAt time.Time, status models.RecordStatus) *models.BackupRecord {
	return &models.BackupRecord{
		ID:        id,
		PolicyID:  policyID,
		Kind:      models.KindFull,
		Status:    status,
		StartedAt: startedAt,
		SizeBytes: 1024,
	}
}

func TestAppendAndGet(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	record := testRecord("rec-1", "pol-1", time.Now().UTC(), models.StatusPending)
	if err := c.Append(ctx, record); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	got, err := c.Get(ctx, "rec-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.PolicyID != "pol-1" || got.Status != models.StatusPending {
		t.Errorf("Get() = %+v, want pol-1/pending", got)
	}
}

func TestAppendDuplicateRejected(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	record := testRecord("rec-1", "pol-1", time.Now().UTC(), models.StatusPending)
	if err := c.Append(ctx, record); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := c.Append(ctx, record); err == nil {
		t.Error("Append() duplicate should fail")
	}
}

func TestGetUnknownRecord(t *testing.T) {
	c := openTestCatalog(t)

	_, err := c.Get(context.Background(), "nope")
	if !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("Get() error = %v, want ErrRecordNotFound", err)
	}
}

func TestUpdateEnforcesMonotonicStatus(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	record := testRecord("rec-1", "pol-1", time.Now().UTC(), models.StatusPending)
	if err := c.Append(ctx, record); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	setStatus := func(s models.RecordStatus) func(*models.BackupRecord) error {
		return func(r *models.BackupRecord) error {
			r.Status = s
			return nil
		}
	}

	if err := c.Update(ctx, "rec-1", setStatus(models.StatusRunning)); err != nil {
		t.Fatalf("Update(pending->running) error = %v", err)
	}
	if err := c.Update(ctx, "rec-1", setStatus(models.StatusCompleted)); err != nil {
		t.Fatalf("Update(running->completed) error = %v", err)
	}

	err := c.Update(ctx, "rec-1", setStatus(models.StatusFailed))
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Update(completed->failed) error = %v, want ErrInvalidTransition", err)
	}

	got, err := c.Get(ctx, "rec-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != models.StatusCompleted {
		t.Errorf("status after rejected transition = %s, want completed", got.Status)
	}
}

func TestQueryNewestFirstWithFilter(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		status := models.StatusCompleted
		if i == 2 {
			status = models.StatusFailed
		}
		record := testRecord(fmt.Sprintf("rec-%d", i), "pol-1", now.Add(time.Duration(-i)*time.Hour), status)
		if err := c.Append(ctx, record); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	records, err := c.Query(ctx, QueryFilter{PolicyID: "pol-1"})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("Query() returned %d records, want 5", len(records))
	}
	for i := 1; i < len(records); i++ {
		if records[i].StartedAt.After(records[i-1].StartedAt) {
			t.Errorf("records not newest-first at index %d", i)
		}
	}

	completed, err := c.Query(ctx, QueryFilter{PolicyID: "pol-1", Status: models.StatusCompleted})
	if err != nil {
		t.Fatalf("Query(completed) error = %v", err)
	}
	if len(completed) != 4 {
		t.Errorf("Query(completed) returned %d records, want 4", len(completed))
	}

	limited, err := c.Query(ctx, QueryFilter{PolicyID: "pol-1", Limit: 2})
	if err != nil {
		t.Fatalf("Query(limit) error = %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("Query(limit=2) returned %d records, want 2", len(limited))
	}
	if limited[0].ID != "rec-0" {
		t.Errorf("newest record = %s, want rec-0", limited[0].ID)
	}
}

func TestQueryOrdersRecordsWithinTheSameSecond(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	// An exact-second timestamp and later sub-second ones in the same
	// second. A layout that trims fractional zeros would sort the
	// exact-second key after the others.
	second := time.Date(2026, time.March, 14, 9, 26, 53, 0, time.UTC)
	starts := []time.Time{
		second,
		second.Add(500 * time.Microsecond),
		second.Add(250 * time.Millisecond),
	}
	for i, at := range starts {
		record := testRecord(fmt.Sprintf("rec-%d", i), "pol-1", at, models.StatusCompleted)
		if err := c.Append(ctx, record); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	records, err := c.Query(ctx, QueryFilter{PolicyID: "pol-1"})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Query() returned %d records, want 3", len(records))
	}
	for i, want := range []string{"rec-2", "rec-1", "rec-0"} {
		if records[i].ID != want {
			t.Errorf("records[%d] = %s, want %s", i, records[i].ID, want)
		}
	}
}

func TestLastCompleted(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()
	now := time.Now().UTC()

	got, err := c.LastCompleted(ctx, "pol-1")
	if err != nil {
		t.Fatalf("LastCompleted() error = %v", err)
	}
	if got != nil {
		t.Errorf("LastCompleted() with no records = %+v, want nil", got)
	}

	if err := c.Append(ctx, testRecord("rec-old", "pol-1", now.Add(-2*time.Hour), models.StatusCompleted)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := c.Append(ctx, testRecord("rec-new", "pol-1", now.Add(-time.Hour), models.StatusCompleted)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := c.Append(ctx, testRecord("rec-fail", "pol-1", now, models.StatusFailed)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	got, err = c.LastCompleted(ctx, "pol-1")
	if err != nil {
		t.Fatalf("LastCompleted() error = %v", err)
	}
	if got == nil || got.ID != "rec-new" {
		t.Errorf("LastCompleted() = %+v, want rec-new", got)
	}
}

func TestSweepKeepsClaimedRecords(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// Completed backups 1, 2, 3 and 10 days old with a daily=2 rule:
	// only the two most recent days fall inside the window.
	for _, age := range []int{1, 2, 3, 10} {
		record := testRecord(fmt.Sprintf("rec-%dd", age), "pol-1", now.AddDate(0, 0, -age), models.StatusCompleted)
		if err := c.Append(ctx, record); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	policy := &models.BackupPolicy{
		ID:        "pol-1",
		Retention: models.RetentionRule{Daily: 2},
	}

	var deleted atomic.Int32
	result, err := c.Sweep(ctx, policy, func(ctx context.Context, r *models.BackupRecord) error {
		deleted.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}

	if result.Kept != 2 || result.Deleted != 2 {
		t.Errorf("Sweep() kept=%d deleted=%d, want 2/2", result.Kept, result.Deleted)
	}
	if deleted.Load() != 2 {
		t.Errorf("artifact deleter called %d times, want 2", deleted.Load())
	}

	for _, id := range []string{"rec-1d", "rec-2d"} {
		if _, err := c.Get(ctx, id); err != nil {
			t.Errorf("Get(%s) after sweep error = %v, want kept", id, err)
		}
	}
	for _, id := range []string{"rec-3d", "rec-10d"} {
		if _, err := c.Get(ctx, id); !errors.Is(err, ErrRecordNotFound) {
			t.Errorf("Get(%s) after sweep error = %v, want ErrRecordNotFound", id, err)
		}
	}
}

func TestSweepZeroRetentionKeepsEverything(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, age := range []int{1, 100, 1000} {
		record := testRecord(fmt.Sprintf("rec-%dd", age), "pol-1", now.AddDate(0, 0, -age), models.StatusCompleted)
		if err := c.Append(ctx, record); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	policy := &models.BackupPolicy{ID: "pol-1"}
	result, err := c.Sweep(ctx, policy, func(ctx context.Context, r *models.BackupRecord) error {
		t.Errorf("artifact deleter called for %s with zero retention", r.ID)
		return nil
	})
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if result.Kept != 3 || result.Deleted != 0 {
		t.Errorf("Sweep() kept=%d deleted=%d, want 3/0", result.Kept, result.Deleted)
	}
}

func TestSweepIgnoresNonCompletedRecords(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := c.Append(ctx, testRecord("rec-fail", "pol-1", now.AddDate(0, 0, -30), models.StatusFailed)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := c.Append(ctx, testRecord("rec-run", "pol-1", now.AddDate(0, 0, -29), models.StatusRunning)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	policy := &models.BackupPolicy{ID: "pol-1", Retention: models.RetentionRule{Daily: 1}}
	result, err := c.Sweep(ctx, policy, func(ctx context.Context, r *models.BackupRecord) error {
		t.Errorf("artifact deleter called for non-completed record %s", r.ID)
		return nil
	})
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if result.Examined != 0 {
		t.Errorf("Sweep() examined %d records, want 0 completed candidates", result.Examined)
	}

	for _, id := range []string{"rec-fail", "rec-run"} {
		if _, err := c.Get(ctx, id); err != nil {
			t.Errorf("Get(%s) after sweep error = %v, want kept", id, err)
		}
	}
}

func TestSweepKeepsRecordWhenArtifactDeleteFails(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	record := testRecord("rec-1", "pol-1", time.Now().UTC().AddDate(0, 0, -30), models.StatusCompleted)
	if err := c.Append(ctx, record); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	policy := &models.BackupPolicy{ID: "pol-1", Retention: models.RetentionRule{Daily: 1}}
	result, err := c.Sweep(ctx, policy, func(ctx context.Context, r *models.BackupRecord) error {
		return errors.New("target unreachable")
	})
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if result.Deleted != 0 {
		t.Errorf("Sweep() deleted = %d, want 0 when artifact deletion fails", result.Deleted)
	}
	if _, err := c.Get(ctx, "rec-1"); err != nil {
		t.Errorf("Get() after failed deletion error = %v, want record retained for retry", err)
	}
}

func TestPolicyCRUD(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	policy := &models.BackupPolicy{
		ID:      "pol-1",
		Name:    "nightly",
		Kind:    models.KindFull,
		Cadence: models.CadenceDaily,
	}
	if err := c.PutPolicy(ctx, policy); err != nil {
		t.Fatalf("PutPolicy() error = %v", err)
	}
	if policy.CreatedAt.IsZero() || policy.UpdatedAt.IsZero() {
		t.Error("PutPolicy() should stamp created/updated times")
	}

	got, err := c.GetPolicy(ctx, "pol-1")
	if err != nil {
		t.Fatalf("GetPolicy() error = %v", err)
	}
	if got.Name != "nightly" {
		t.Errorf("GetPolicy().Name = %s, want nightly", got.Name)
	}

	policies, err := c.ListPolicies(ctx)
	if err != nil {
		t.Fatalf("ListPolicies() error = %v", err)
	}
	if len(policies) != 1 {
		t.Errorf("ListPolicies() returned %d, want 1", len(policies))
	}

	if err := c.DeletePolicy(ctx, "pol-1", false); err != nil {
		t.Fatalf("DeletePolicy() error = %v", err)
	}
	if _, err := c.GetPolicy(ctx, "pol-1"); !errors.Is(err, ErrPolicyNotFound) {
		t.Errorf("GetPolicy() after delete error = %v, want ErrPolicyNotFound", err)
	}
}

func TestDeletePolicyInUse(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	policy := &models.BackupPolicy{ID: "pol-1", Name: "nightly"}
	if err := c.PutPolicy(ctx, policy); err != nil {
		t.Fatalf("PutPolicy() error = %v", err)
	}
	if err := c.Append(ctx, testRecord("rec-1", "pol-1", time.Now().UTC(), models.StatusCompleted)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	if err := c.DeletePolicy(ctx, "pol-1", false); !errors.Is(err, ErrPolicyInUse) {
		t.Errorf("DeletePolicy() error = %v, want ErrPolicyInUse", err)
	}

	if err := c.DeletePolicy(ctx, "pol-1", true); err != nil {
		t.Fatalf("DeletePolicy(force) error = %v", err)
	}
	// Orphaned records stay queryable after a forced deletion.
	if _, err := c.Get(ctx, "rec-1"); err != nil {
		t.Errorf("Get() orphaned record error = %v", err)
	}
}

func TestPlanCRUDAndMatching(t *testing.T) {
	c := openTestCatalog(t)
	ctx := context.Background()

	plan := &models.RecoveryPlan{
		ID:          "plan-1",
		Name:        "db-loss",
		TriggerTags: []string{"database", "corruption"},
	}
	if err := c.PutPlan(ctx, plan); err != nil {
		t.Fatalf("PutPlan() error = %v", err)
	}

	got, err := c.GetPlan(ctx, "plan-1")
	if err != nil {
		t.Fatalf("GetPlan() error = %v", err)
	}
	if got.Name != "db-loss" {
		t.Errorf("GetPlan().Name = %s, want db-loss", got.Name)
	}

	matched, err := c.MatchPlans(ctx, []string{"corruption"})
	if err != nil {
		t.Fatalf("MatchPlans() error = %v", err)
	}
	if len(matched) != 1 || matched[0].ID != "plan-1" {
		t.Errorf("MatchPlans(corruption) = %v, want plan-1", matched)
	}

	matched, err = c.MatchPlans(ctx, []string{"network"})
	if err != nil {
		t.Fatalf("MatchPlans() error = %v", err)
	}
	if len(matched) != 0 {
		t.Errorf("MatchPlans(network) = %v, want empty", matched)
	}

	if err := c.DeletePlan(ctx, "plan-1"); err != nil {
		t.Fatalf("DeletePlan() error = %v", err)
	}
	if _, err := c.GetPlan(ctx, "plan-1"); !errors.Is(err, ErrPlanNotFound) {
		t.Errorf("GetPlan() after delete error = %v, want ErrPlanNotFound", err)
	}
}
