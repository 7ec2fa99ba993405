// Custodia - Backup and Disaster Recovery Orchestrator
// Copyright 2026 Custodia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/custodia-ops/custodia

// Package metrics exposes Prometheus instrumentation for the
// orchestrator: job throughput and latency, stored artifact volume,
// retention sweeps, restores, recovery plan activity and the HTTP API.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Backup job metrics
	BackupJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custodia_backup_jobs_total",
			Help: "Total number of backup jobs by kind and terminal status",
		},
		[]string{"kind", "status"},
	)

	BackupJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "custodia_backup_job_duration_seconds",
			Help:    "Duration of backup jobs in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"kind"},
	)

	BackupJobsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "custodia_backup_jobs_active",
			Help: "Number of backup jobs currently in flight",
		},
	)

	BackupBytesStored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "custodia_backup_bytes_stored_total",
			Help: "Total artifact bytes written to targets",
		},
	)

	BackupCompressionRatio = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "custodia_backup_compression_ratio",
			Help:    "Stored size divided by raw size per completed job",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 0.75, 0.9, 1.0, 1.1},
		},
	)

	// Retention sweep metrics
	SweepRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "custodia_sweep_runs_total",
			Help: "Total number of retention sweeps",
		},
	)

	SweepDeletionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "custodia_sweep_deletions_total",
			Help: "Total number of records deleted by retention sweeps",
		},
	)

	SweepBytesReclaimed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "custodia_sweep_bytes_reclaimed_total",
			Help: "Total artifact bytes reclaimed by retention sweeps",
		},
	)

	// Restore metrics
	RestoresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custodia_restores_total",
			Help: "Total number of restore attempts by outcome",
		},
		[]string{"outcome"}, // "completed", "rejected", "failed"
	)

	RestoreDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "custodia_restore_duration_seconds",
			Help:    "Duration of restore operations in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
	)

	// Recovery plan metrics
	RecoveryExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custodia_recovery_executions_total",
			Help: "Total number of recovery plan executions by outcome",
		},
		[]string{"outcome"}, // "completed", "halted"
	)

	RecoveryTestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "custodia_recovery_tests_total",
			Help: "Total number of recovery plan tests by outcome",
		},
		[]string{"outcome"}, // "passed", "failed"
	)

	// Scheduler metrics
	SchedulerTicksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "custodia_scheduler_ticks_total",
			Help: "Total number of scheduler evaluation ticks",
		},
	)

	SchedulerDispatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "custodia_scheduler_dispatches_total",
			Help: "Total number of jobs dispatched by the scheduler",
		},
	)

	StuckJobWarningsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "custodia_stuck_job_warnings_total",
			Help: "Total number of stuck-job warnings emitted",
		},
	)

	// HTTP API metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "custodia_http_request_duration_seconds",
			Help:    "Duration of HTTP API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// RecordJob records the terminal outcome of one backup job.
func RecordJob(kind, status string, duration time.Duration) {
	BackupJobsTotal.WithLabelValues(kind, status).Inc()
	BackupJobDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordSweep records the outcome of one retention sweep.
func RecordSweep(deleted int, bytesReclaimed int64) {
	SweepRunsTotal.Inc()
	SweepDeletionsTotal.Add(float64(deleted))
	SweepBytesReclaimed.Add(float64(bytesReclaimed))
}

// RecordRestore records one restore attempt.
func RecordRestore(outcome string, duration time.Duration) {
	RestoresTotal.WithLabelValues(outcome).Inc()
	if outcome == "completed" {
		RestoreDuration.Observe(duration.Seconds())
	}
}

// RecordHTTPRequest records one API request.
func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}
