// Custodia - Backup and Disaster Recovery Orchestrator
// Copyright 2026 Custodia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/custodia-ops/custodia

package executor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/custodia-ops/custodia/internal/audit"
	"github.com/custodia-ops/custodia/internal/catalog"
	"github.com/custodia-ops/custodia/internal/gather"
	"github.com/custodia-ops/custodia/internal/models"
	"github.com/custodia-ops/custodia/internal/pipeline"
	"github.com/custodia-ops/custodia/internal/target"
)

var testPipelineOpts = pipeline.Options{Algorithm: "gzip", Secret: "test-secret"}

// compressiblePayload shrinks under gzip, so completed jobs can assert
// stored size < raw size.
var compressiblePayload = []byte(strings.Repeat("orders table row data\n", 256))

type harness struct {
	catalog  *catalog.Catalog
	store    *target.MemoryStore
	targets  *target.Registry
	gatherer *gather.StaticGatherer
	executor *Executor
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cat, err := catalog.Open(catalog.Config{InMemory: true})
	if err != nil {
		t.Fatalf("catalog.Open() error = %v", err)
	}
	t.Cleanup(func() { cat.Close() })

	store := target.NewMemoryStore()
	targets := target.NewRegistry()
	targets.RegisterStore(models.TargetLocal, store)
	if err := targets.PutTarget(models.BackupTarget{
		ID: "t1", Kind: models.TargetLocal, Location: "/backups", Priority: 1,
	}); err != nil {
		t.Fatalf("PutTarget() error = %v", err)
	}

	auditor := audit.NewLogger(audit.NewMemoryStore(1000), &audit.Config{Enabled: true, BufferSize: 1000})
	t.Cleanup(auditor.Close)

	gatherer := &gather.StaticGatherer{Payload: compressiblePayload}
	return &harness{
		catalog:  cat,
		store:    store,
		targets:  targets,
		gatherer: gatherer,
		executor: New(cat, targets, gatherer, auditor, testPipelineOpts),
	}
}

func testPolicy() *models.BackupPolicy {
	return &models.BackupPolicy{
		ID:        "pol-1",
		Name:      "hourly-orders",
		Kind:      models.KindIncremental,
		Cadence:   models.CadenceHourly,
		TargetIDs: []string{"t1"},
		Encrypt:   true,
		Compress:  true,
		Verify:    true,
	}
}

func TestRunCompletesEndToEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	record, err := h.executor.Run(ctx, testPolicy())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if record.Status != models.StatusCompleted {
		t.Errorf("status = %s, want completed", record.Status)
	}
	if !record.Verified || !record.Encrypted || !record.Compressed {
		t.Errorf("flags = verified:%v encrypted:%v compressed:%v, want all true",
			record.Verified, record.Encrypted, record.Compressed)
	}
	if record.SizeBytes <= 0 || record.SizeBytes >= record.RawSizeBytes {
		t.Errorf("SizeBytes = %d, want 0 < stored < raw %d", record.SizeBytes, record.RawSizeBytes)
	}
	if record.Checksum == "" || record.Location == "" || record.TargetID != "t1" {
		t.Errorf("record = %+v, want checksum, location and target set", record)
	}
	if record.CompletedAt == nil {
		t.Error("CompletedAt not set on terminal record")
	}

	persisted, err := h.catalog.Get(ctx, record.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if persisted.Status != models.StatusCompleted || persisted.Checksum != record.Checksum {
		t.Errorf("persisted record = %+v, want finalized copy", persisted)
	}

	// The stored artifact reverses back to the gathered payload.
	data, err := h.targets.Load(ctx, record.Location)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	p, err := pipeline.Build(pipeline.Options{
		Compress: true, Algorithm: "gzip", Encrypt: true, Secret: testPipelineOpts.Secret,
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	recovered, err := p.Reverse(data)
	if err != nil {
		t.Fatalf("Reverse() error = %v", err)
	}
	if string(recovered) != string(compressiblePayload) {
		t.Error("stored artifact does not reverse to the gathered payload")
	}
}

func TestRunGatherFailureIsFailed(t *testing.T) {
	h := newHarness(t)
	h.gatherer.Err = errors.New("source database unreachable")

	record, err := h.executor.Run(context.Background(), testPolicy())
	if err == nil {
		t.Fatal("Run() should return the gather error")
	}

	var gatherErr *gather.Error
	if !errors.As(err, &gatherErr) {
		t.Errorf("Run() error = %v, want *gather.Error", err)
	}
	if record.Status != models.StatusFailed {
		t.Errorf("status = %s, want failed", record.Status)
	}
	if record.Error == "" {
		t.Error("failed record should capture the error message")
	}

	// Nothing was stored for the failed gather.
	if stores, _, _ := h.store.Counts(); stores != 0 {
		t.Errorf("gather failure performed %d store calls, want 0", stores)
	}
}

func TestRunStoreFailureIsFailed(t *testing.T) {
	h := newHarness(t)
	h.store.FailWith(errors.New("bucket unavailable"))

	record, err := h.executor.Run(context.Background(), testPolicy())
	if err == nil {
		t.Fatal("Run() should return the store error")
	}

	var targetErr *target.Error
	if !errors.As(err, &targetErr) {
		t.Errorf("Run() error = %v, want *target.Error", err)
	}
	if record.Status != models.StatusFailed {
		t.Errorf("status = %s, want failed", record.Status)
	}

	// The artifact never reached the target, so the record carries no
	// size or checksum even though both were computed before the store.
	persisted, err := h.catalog.Get(context.Background(), record.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if persisted.SizeBytes != 0 || persisted.Checksum != "" {
		t.Errorf("failed record persisted size = %d, checksum = %q, want both empty",
			persisted.SizeBytes, persisted.Checksum)
	}
}

// corruptOnLoad mutates artifact bytes on every read, simulating a
// target that silently corrupts data at rest.
type corruptOnLoad struct {
	inner target.Store
}

func (c *corruptOnLoad) Store(ctx context.Context, t models.BackupTarget, artifactID string, data []byte) (string, error) {
	return c.inner.Store(ctx, t, artifactID, data)
}

func (c *corruptOnLoad) Load(ctx context.Context, t models.BackupTarget, ref string) ([]byte, error) {
	data, err := c.inner.Load(ctx, t, ref)
	if err != nil {
		return nil, err
	}
	data[0] ^= 0xff
	return data, nil
}

func (c *corruptOnLoad) Delete(ctx context.Context, t models.BackupTarget, ref string) error {
	return c.inner.Delete(ctx, t, ref)
}

func TestRunVerificationMismatchIsCorrupted(t *testing.T) {
	h := newHarness(t)
	h.targets.RegisterStore(models.TargetLocal, &corruptOnLoad{inner: h.store})

	record, err := h.executor.Run(context.Background(), testPolicy())
	if err == nil {
		t.Fatal("Run() should return the verification error")
	}

	var verr *VerificationError
	if !errors.As(err, &verr) {
		t.Fatalf("Run() error = %v, want *VerificationError", err)
	}
	if record.Status != models.StatusCorrupted {
		t.Errorf("status = %s, want corrupted", record.Status)
	}
	if record.Verified {
		t.Error("corrupted record must not be marked verified")
	}
	if record.Checksum == "" || record.SizeBytes == 0 {
		t.Error("corrupted record must keep the checksum the artifact no longer matches")
	}
}

func TestRunSweepsAfterCompletion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	policy := testPolicy()
	policy.Retention = models.RetentionRule{Daily: 1}

	// An old completed record whose day is outside the daily window.
	oldArtifact := []byte("old artifact")
	location, err := h.targets.Store(ctx, "t1", "rec-old", oldArtifact)
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	oldStart := time.Now().UTC().AddDate(0, 0, -30)
	oldDone := oldStart.Add(time.Minute)
	if err := h.catalog.Append(ctx, &models.BackupRecord{
		ID:          "rec-old",
		PolicyID:    policy.ID,
		Kind:        policy.Kind,
		Status:      models.StatusCompleted,
		StartedAt:   oldStart,
		CompletedAt: &oldDone,
		Location:    location,
		Checksum:    pipeline.Checksum(oldArtifact),
	}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	if _, err := h.executor.Run(ctx, policy); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if _, err := h.catalog.Get(ctx, "rec-old"); !errors.Is(err, catalog.ErrRecordNotFound) {
		t.Errorf("Get(rec-old) error = %v, want swept away", err)
	}
	if _, err := h.targets.Load(ctx, location); !errors.Is(err, target.ErrNotFound) {
		t.Errorf("Load(old artifact) error = %v, want deleted", err)
	}
}

func TestRunIncrementalBaselineIsLastCompleted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	policy := testPolicy()

	if _, err := h.executor.Run(ctx, policy); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	first, err := h.catalog.LastCompleted(ctx, policy.ID)
	if err != nil || first == nil {
		t.Fatalf("LastCompleted() = %v, %v", first, err)
	}

	if _, err := h.executor.Run(ctx, policy); err != nil {
		t.Fatalf("second Run() error = %v", err)
	}

	since := h.gatherer.LastBaseline.Since
	if since == nil || !since.Equal(first.StartedAt) {
		t.Errorf("second run baseline = %v, want first run start %v", since, first.StartedAt)
	}
}

func TestRunFirstIncrementalHasNoBaseline(t *testing.T) {
	h := newHarness(t)

	if _, err := h.executor.Run(context.Background(), testPolicy()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if h.gatherer.LastBaseline.Since != nil {
		t.Error("first incremental run should have no baseline")
	}
}
