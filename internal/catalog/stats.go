// Custodia - Backup and Disaster Recovery Orchestrator
// Copyright 2026 Custodia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/custodia-ops/custodia

package catalog

import (
	"context"
	"time"

	"github.com/custodia-ops/custodia/internal/models"
)

// Stats aggregates catalog-wide backup health numbers.
type Stats struct {
	TotalRecords    int                            `json:"total_records"`
	TotalSizeBytes  int64                          `json:"total_size_bytes"`
	ActiveJobs      int                            `json:"active_jobs"`
	SuccessRate     float64                        `json:"success_rate"`
	AvgDuration     time.Duration                  `json:"avg_duration_ns"`
	ByStatus        map[models.RecordStatus]int    `json:"by_status"`
	ByKind          map[models.BackupKind]int      `json:"by_kind"`
	LastCompletedAt *time.Time                     `json:"last_completed_at,omitempty"`
}

// Stats walks every record and aggregates totals, the terminal success
// rate and the average completed-job duration.
func (c *Catalog) Stats(ctx context.Context) (*Stats, error) {
	records, err := c.Query(ctx, QueryFilter{})
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		ByStatus: make(map[models.RecordStatus]int),
		ByKind:   make(map[models.BackupKind]int),
	}

	var (
		terminal      int
		completed     int
		totalDuration time.Duration
	)
	for _, r := range records {
		stats.TotalRecords++
		stats.ByStatus[r.Status]++
		stats.ByKind[r.Kind]++

		switch r.Status {
		case models.StatusPending, models.StatusRunning:
			stats.ActiveJobs++
		case models.StatusCompleted:
			terminal++
			completed++
			stats.TotalSizeBytes += r.SizeBytes
			totalDuration += r.Duration()
			if r.CompletedAt != nil && (stats.LastCompletedAt == nil || r.CompletedAt.After(*stats.LastCompletedAt)) {
				stats.LastCompletedAt = r.CompletedAt
			}
		case models.StatusFailed, models.StatusCorrupted:
			terminal++
		}
	}

	if terminal > 0 {
		stats.SuccessRate = float64(completed) / float64(terminal)
	}
	if completed > 0 {
		stats.AvgDuration = totalDuration / time.Duration(completed)
	}
	return stats, nil
}
