// Custodia - Backup and Disaster Recovery Orchestrator
// Copyright 2026 Custodia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/custodia-ops/custodia

// Package main is the entry point for the Custodia server.
//
// Custodia orchestrates scheduled backups, verified restores, and
// disaster-recovery plans for self-hosted infrastructure. Backup
// policies drive a cron-aware scheduler; artifacts flow through a
// compress-then-encrypt pipeline into prioritized targets; the catalog
// tracks every record for retention sweeps, point-in-time restores,
// and RTO/RPO-scored recovery-plan tests.
//
// # Startup order
//
//  1. Configuration: defaults, optional YAML file, environment (Koanf v2)
//  2. Catalog: BadgerDB record, policy, and plan storage
//  3. Targets: registry of configured backup destinations
//  4. Audit trail: Badger-backed event log with retention TTL
//  5. Engines: executor, scheduler, restore, recovery
//  6. HTTP API: chi router under /api/v1, Prometheus at /metrics
//  7. Supervisor tree: suture-supervised scheduler and HTTP server
//
// # Configuration
//
// Highest priority wins: environment variables (CUSTODIA_*), a config
// file (custodia.yaml, or the path in CUSTODIA_CONFIG), then built-in
// defaults. See internal/config for the complete surface.
//
// # Signal handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the HTTP server drains
// in-flight requests, the scheduler waits for running backup jobs, and
// the audit buffer is flushed before the catalog closes.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/custodia-ops/custodia/internal/api"
	"github.com/custodia-ops/custodia/internal/audit"
	"github.com/custodia-ops/custodia/internal/catalog"
	"github.com/custodia-ops/custodia/internal/config"
	"github.com/custodia-ops/custodia/internal/executor"
	"github.com/custodia-ops/custodia/internal/gather"
	"github.com/custodia-ops/custodia/internal/logging"
	"github.com/custodia-ops/custodia/internal/models"
	"github.com/custodia-ops/custodia/internal/notify"
	"github.com/custodia-ops/custodia/internal/recovery"
	"github.com/custodia-ops/custodia/internal/restore"
	"github.com/custodia-ops/custodia/internal/scheduler"
	"github.com/custodia-ops/custodia/internal/supervisor"
	"github.com/custodia-ops/custodia/internal/target"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("catalog_path", cfg.Catalog.Path).
		Int("targets", len(cfg.Targets)).
		Bool("scheduler_enabled", cfg.Scheduler.Enabled).
		Msg("Configuration loaded")

	cat, err := catalog.Open(cfg.Catalog)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open catalog")
	}
	defer func() {
		if err := cat.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing catalog")
		}
	}()

	targets := target.NewRegistry()
	// Cloud and offsite targets are reached through mounted paths (NFS,
	// rclone mounts, object-storage gateways), so every kind shares the
	// filesystem store.
	store := target.NewLocalStore()
	targets.RegisterStore(models.TargetLocal, store)
	targets.RegisterStore(models.TargetCloud, store)
	targets.RegisterStore(models.TargetOffsite, store)
	for _, tc := range cfg.Targets {
		if err := targets.PutTarget(tc.Model()); err != nil {
			logging.Fatal().Err(err).Str("target_id", tc.ID).Msg("Failed to register target")
		}
	}

	auditStore := audit.NewBadgerStore(cat.DB(), cfg.Audit.Retention)
	auditor := audit.NewLogger(auditStore, &audit.Config{
		Enabled:     cfg.Audit.Enabled,
		BufferSize:  cfg.Audit.BufferSize,
		LogToStdout: cfg.Audit.LogToStdout,
	})
	defer auditor.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seedObjectives(ctx, cat, cfg)

	pipelineOpts := cfg.PipelineOptions()
	exec := executor.New(cat, targets, gather.NewDirectoryGatherer(), auditor, pipelineOpts)
	sched := scheduler.New(cat, exec, auditor, cfg.Scheduler)
	restorer := restore.NewEngine(cat, targets, auditor, pipelineOpts)

	notifier := notify.NewRouter(notify.NewWebhookNotifier(cfg.Webhook))
	rec := recovery.NewEngine(cat, notifier, auditor, nil)

	handler := api.NewHandler(cat, targets, sched, restorer, rec, auditStore, cfg.Restore.Root)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.Router(handler),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	tree := supervisor.NewTree(supervisor.DefaultTreeConfig())
	if cfg.Scheduler.Enabled {
		tree.AddJobService(sched)
	} else {
		logging.Info().Msg("Automatic scheduling disabled; manual dispatch only")
	}
	tree.AddAPIService(supervisor.NewHTTPService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server added to supervisor tree")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Custodia stopped")
}

// seedObjectives writes configured RTO/RPO targets into the catalog
// when none have been declared yet. The catalog copy wins once the API
// has set it.
func seedObjectives(ctx context.Context, cat *catalog.Catalog, cfg *config.Config) {
	if cfg.Objectives.RTOMinutes <= 0 || cfg.Objectives.RPOMinutes <= 0 {
		return
	}

	existing, err := cat.GetObjectives(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("Could not read recovery objectives")
		return
	}
	if existing.RTOMinutes > 0 || existing.RPOMinutes > 0 {
		return
	}

	objectives := models.RecoveryObjectives{
		RTOMinutes: cfg.Objectives.RTOMinutes,
		RPOMinutes: cfg.Objectives.RPOMinutes,
	}
	if err := cat.PutObjectives(ctx, objectives); err != nil {
		logging.Warn().Err(err).Msg("Could not seed recovery objectives")
		return
	}
	logging.Info().
		Float64("rto_minutes", objectives.RTOMinutes).
		Float64("rpo_minutes", objectives.RPOMinutes).
		Msg("Recovery objectives seeded from configuration")
}
