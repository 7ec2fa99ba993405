// Custodia - Backup and Disaster Recovery Orchestrator
// Copyright 2026 Custodia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/custodia-ops/custodia

package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-ops/custodia/internal/logging"
	"github.com/custodia-ops/custodia/internal/models"
)

// sweepDeleteConcurrency bounds parallel artifact deletions during a
// sweep so a large expiry batch cannot saturate a target.
const sweepDeleteConcurrency = 4

// ArtifactDeleter removes the stored artifact behind a record. The
// catalog deletes its own metadata; artifact bytes live in a target
// store the catalog knows nothing about.
type ArtifactDeleter func(ctx context.Context, record *models.BackupRecord) error

// SweepResult reports the outcome of one retention sweep.
type SweepResult struct {
	PolicyID     string    `json:"policy_id"`
	Examined     int       `json:"examined"`
	Kept         int       `json:"kept"`
	Deleted      int       `json:"deleted"`
	DeletedBytes int64     `json:"deleted_bytes"`
	SweptAt      time.Time `json:"swept_at"`
}

// SweepDecision explains what a sweep would do with one record.
type SweepDecision struct {
	Record  *models.BackupRecord `json:"record"`
	Keep    bool                 `json:"keep"`
	Buckets []string             `json:"buckets,omitempty"`
}

// Sweep applies the policy's retention rule to its completed records,
// deleting every record (and its artifact) retained by no bucket.
//
// Bucket semantics: for each configured bucket the newest record per
// calendar period is retained, for periods inside the bucket's window
// (daily=7 covers the last 7 days, weekly=4 the last 4 ISO weeks, and
// so on). A record survives if at least one bucket claims it. Only
// completed records are candidates; in-flight records are never
// touched, and failed or corrupted records stay as permanent history
// since they hold no artifact worth reclaiming.
//
// A zero-valued retention rule means keep everything.
//
// Sweeps for the same policy are serialized. Metadata is removed only
// after the artifact deletion succeeds, so a failed deletion leaves
// the record discoverable for a retry on the next sweep.
func (c *Catalog) Sweep(ctx context.Context, policy *models.BackupPolicy, deleteArtifact ArtifactDeleter) (*SweepResult, error) {
	mu := c.policySweepLock(policy.ID)
	mu.Lock()
	defer mu.Unlock()

	result := &SweepResult{PolicyID: policy.ID, SweptAt: time.Now().UTC()}

	decisions, err := c.planSweep(ctx, policy)
	if err != nil {
		return nil, err
	}
	result.Examined = len(decisions)

	if policy.Retention.IsZero() {
		result.Kept = len(decisions)
		return result, nil
	}

	var expired []*models.BackupRecord
	for _, d := range decisions {
		if d.Keep {
			result.Kept++
			continue
		}
		expired = append(expired, d.Record)
	}

	var (
		resultMu sync.Mutex
		g, gctx  = errgroup.WithContext(ctx)
	)
	g.SetLimit(sweepDeleteConcurrency)

	for _, record := range expired {
		g.Go(func() error {
			if err := deleteArtifact(gctx, record); err != nil {
				logging.Warn().
					Err(err).
					Str("record_id", record.ID).
					Str("policy_id", policy.ID).
					Str("location", record.Location).
					Msg("Retention sweep failed to delete artifact, keeping record for retry")
				return nil
			}
			if err := c.delete(record); err != nil {
				return err
			}

			resultMu.Lock()
			result.Deleted++
			result.DeletedBytes += record.SizeBytes
			resultMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}

	logging.Info().
		Str("policy_id", policy.ID).
		Int("examined", result.Examined).
		Int("kept", result.Kept).
		Int("deleted", result.Deleted).
		Int64("deleted_bytes", result.DeletedBytes).
		Msg("Retention sweep completed")
	return result, nil
}

// PreviewSweep reports what a sweep would keep and delete without
// modifying anything.
func (c *Catalog) PreviewSweep(ctx context.Context, policy *models.BackupPolicy) ([]SweepDecision, error) {
	return c.planSweep(ctx, policy)
}

// planSweep computes the per-record keep/delete decision for one
// policy.
func (c *Catalog) planSweep(ctx context.Context, policy *models.BackupPolicy) ([]SweepDecision, error) {
	records, err := c.Query(ctx, QueryFilter{
		PolicyID: policy.ID,
		Status:   models.StatusCompleted,
	})
	if err != nil {
		return nil, err
	}

	if policy.Retention.IsZero() {
		decisions := make([]SweepDecision, 0, len(records))
		for _, r := range records {
			decisions = append(decisions, SweepDecision{Record: r, Keep: true, Buckets: []string{"unlimited"}})
		}
		return decisions, nil
	}

	now := time.Now().UTC()
	buckets := map[string]map[string]string{
		"daily":   selectByPeriod(records, now.AddDate(0, 0, -policy.Retention.Daily), "2006-01-02", policy.Retention.Daily),
		"weekly":  selectByWeek(records, now.AddDate(0, 0, -7*policy.Retention.Weekly), policy.Retention.Weekly),
		"monthly": selectByPeriod(records, now.AddDate(0, -policy.Retention.Monthly, 0), "2006-01", policy.Retention.Monthly),
		"yearly":  selectByPeriod(records, now.AddDate(-policy.Retention.Yearly, 0, 0), "2006", policy.Retention.Yearly),
	}

	decisions := make([]SweepDecision, 0, len(records))
	for _, r := range records {
		var claimed []string
		for name, bucket := range buckets {
			for _, id := range bucket {
				if id == r.ID {
					claimed = append(claimed, name)
					break
				}
			}
		}
		decisions = append(decisions, SweepDecision{
			Record:  r,
			Keep:    len(claimed) > 0,
			Buckets: claimed,
		})
	}
	return decisions, nil
}

// selectByPeriod picks the newest record per calendar period (keyed by
// layout) for records at or after cutoff. Records must be newest
// first. A zero count disables the bucket.
func selectByPeriod(records []*models.BackupRecord, cutoff time.Time, layout string, count int) map[string]string {
	selected := make(map[string]string)
	if count <= 0 {
		return selected
	}
	for _, r := range records {
		if r.StartedAt.Before(cutoff) {
			continue
		}
		key := r.StartedAt.UTC().Format(layout)
		if _, ok := selected[key]; !ok {
			selected[key] = r.ID
		}
	}
	return selected
}

// selectByWeek is selectByPeriod keyed by ISO year and week, which has
// no Format layout.
func selectByWeek(records []*models.BackupRecord, cutoff time.Time, count int) map[string]string {
	selected := make(map[string]string)
	if count <= 0 {
		return selected
	}
	for _, r := range records {
		if r.StartedAt.Before(cutoff) {
			continue
		}
		year, week := r.StartedAt.UTC().ISOWeek()
		key := fmt.Sprintf("%04d-W%02d", year, week)
		if _, ok := selected[key]; !ok {
			selected[key] = r.ID
		}
	}
	return selected
}

// policySweepLock returns the mutex serializing sweeps for one policy.
func (c *Catalog) policySweepLock(policyID string) *sync.Mutex {
	c.sweepMu.Lock()
	defer c.sweepMu.Unlock()
	mu, ok := c.sweeping[policyID]
	if !ok {
		mu = &sync.Mutex{}
		c.sweeping[policyID] = mu
	}
	return mu
}
