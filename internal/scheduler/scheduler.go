// Custodia - Backup and Disaster Recovery Orchestrator
// Copyright 2026 Custodia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/custodia-ops/custodia

// Package scheduler decides when backup policies run. On every tick it
// evaluates each stored policy against its cadence (or cron override)
// and dispatches due jobs to the executor.
//
// A policy never has two jobs in flight: the in-flight set is held
// until the executor returns, which includes the post-job retention
// sweep, so cadence exclusion covers the sweep too. A job that outlives
// its own cadence interval triggers a stuck-job warning but is never
// killed. Dispatch failures are contained to the affected policy; the
// tick loop keeps running.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/custodia-ops/custodia/internal/audit"
	"github.com/custodia-ops/custodia/internal/catalog"
	"github.com/custodia-ops/custodia/internal/executor"
	"github.com/custodia-ops/custodia/internal/logging"
	"github.com/custodia-ops/custodia/internal/metrics"
	"github.com/custodia-ops/custodia/internal/models"
)

// ErrAlreadyRunning indicates a dispatch request for a policy that has
// a job in flight.
var ErrAlreadyRunning = fmt.Errorf("policy already has a job in flight")

// Config holds scheduler configuration.
type Config struct {
	// Enabled toggles automatic scheduling; manual dispatch through the
	// API works either way.
	Enabled bool `koanf:"enabled"`

	// TickInterval is how often policies are evaluated.
	TickInterval time.Duration `koanf:"tick_interval" validate:"min=1s"`
}

// DefaultConfig returns production scheduler defaults.
func DefaultConfig() Config {
	return Config{Enabled: true, TickInterval: time.Minute}
}

// Ticker abstracts time.Ticker so tests can drive ticks manually.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) Chan() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()                  { r.t.Stop() }

// NewTicker returns a Ticker backed by time.Ticker.
func NewTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// inflight tracks one running job for the stuck-job check.
type inflight struct {
	startedAt time.Time
	warned    bool
}

// Scheduler evaluates policies and dispatches due jobs.
type Scheduler struct {
	catalog  *catalog.Catalog
	executor *executor.Executor
	auditor  *audit.Logger
	cfg      Config

	// newTicker is swappable for tests.
	newTicker func(time.Duration) Ticker

	mu      sync.Mutex
	running map[string]*inflight
	wg      sync.WaitGroup
}

// New creates a scheduler.
func New(cat *catalog.Catalog, exec *executor.Executor, auditor *audit.Logger, cfg Config) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Minute
	}
	return &Scheduler{
		catalog:   cat,
		executor:  exec,
		auditor:   auditor,
		cfg:       cfg,
		newTicker: NewTicker,
		running:   make(map[string]*inflight),
	}
}

// String names the scheduler in supervisor logs.
func (s *Scheduler) String() string { return "backup-scheduler" }

// Serve runs the tick loop until the context is canceled. It
// implements suture.Service.
func (s *Scheduler) Serve(ctx context.Context) error {
	logging.Info().
		Dur("tick_interval", s.cfg.TickInterval).
		Msg("Backup scheduler started")

	ticker := s.newTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			logging.Info().Msg("Backup scheduler stopped")
			return ctx.Err()
		case <-ticker.Chan():
			s.tick(ctx)
		}
	}
}

// tick evaluates every policy once.
func (s *Scheduler) tick(ctx context.Context) {
	metrics.SchedulerTicksTotal.Inc()

	policies, err := s.catalog.ListPolicies(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("Scheduler could not list policies")
		return
	}

	now := time.Now().UTC()
	for _, policy := range policies {
		s.evaluate(ctx, policy, now)
	}
}

// evaluate checks one policy: stuck warning if a job is in flight,
// dispatch if due.
func (s *Scheduler) evaluate(ctx context.Context, policy *models.BackupPolicy, now time.Time) {
	if job, busy := s.inflightFor(policy.ID); busy {
		s.checkStuck(policy, job, now)
		return
	}

	due, err := s.isDue(ctx, policy, now)
	if err != nil {
		logging.Error().Err(err).Str("policy_id", policy.ID).Msg("Due check failed")
		return
	}
	if !due {
		return
	}

	if err := s.Dispatch(ctx, policy); err != nil {
		logging.Error().Err(err).Str("policy_id", policy.ID).Msg("Dispatch failed")
	}
}

// Dispatch starts a job for the policy, enforcing single-job-per-policy
// exclusion. The job (and its retention sweep) runs asynchronously.
func (s *Scheduler) Dispatch(ctx context.Context, policy *models.BackupPolicy) error {
	s.mu.Lock()
	if _, busy := s.running[policy.ID]; busy {
		s.mu.Unlock()
		return fmt.Errorf("policy %s: %w", policy.ID, ErrAlreadyRunning)
	}
	s.running[policy.ID] = &inflight{startedAt: time.Now().UTC()}
	s.mu.Unlock()

	metrics.SchedulerDispatchesTotal.Inc()

	// The job must outlive the dispatching request; only process
	// shutdown cancels it.
	jobCtx := context.WithoutCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.clearInflight(policy.ID)

		if _, err := s.executor.Run(jobCtx, policy); err != nil {
			logging.Error().
				Err(err).
				Str("policy_id", policy.ID).
				Msg("Dispatched job finished with error")
		}
	}()
	return nil
}

// isDue decides whether the policy should run now. A cron override
// beats the cadence; without one, the policy is due when its cadence
// interval has elapsed since the last completed run. A policy with no
// completed run is due immediately.
func (s *Scheduler) isDue(ctx context.Context, policy *models.BackupPolicy, now time.Time) (bool, error) {
	last, err := s.catalog.LastCompleted(ctx, policy.ID)
	if err != nil {
		return false, err
	}

	if policy.CronExpr != "" {
		schedule, err := cronParser.Parse(policy.CronExpr)
		if err != nil {
			return false, fmt.Errorf("policy %s: invalid cron expression: %w", policy.ID, err)
		}
		anchor := policy.CreatedAt
		if last != nil {
			anchor = last.StartedAt
		}
		if anchor.IsZero() {
			return true, nil
		}
		return !now.Before(schedule.Next(anchor)), nil
	}

	if last == nil {
		return true, nil
	}
	return now.Sub(last.StartedAt) >= policy.Cadence.Interval(), nil
}

// checkStuck emits a one-shot warning when a job outlives the policy's
// cadence interval.
func (s *Scheduler) checkStuck(policy *models.BackupPolicy, job inflight, now time.Time) {
	if now.Sub(job.startedAt) < policy.Cadence.Interval() || !s.markWarned(policy.ID) {
		return
	}

	metrics.StuckJobWarningsTotal.Inc()
	s.auditor.Record(&audit.Event{
		Type:      audit.EventJobStuck,
		Severity:  audit.SeverityWarning,
		Component: "scheduler",
		Action:    "evaluate",
		PolicyID:  policy.ID,
		Outcome:   audit.OutcomeFailure,
		Message:   fmt.Sprintf("job running since %s, longer than the %s cadence interval", job.startedAt.Format(time.RFC3339), policy.Cadence),
	})
	logging.Warn().
		Str("policy_id", policy.ID).
		Time("started_at", job.startedAt).
		Dur("cadence_interval", policy.Cadence.Interval()).
		Msg("Backup job appears stuck")
}

// Running reports the policy IDs with jobs currently in flight.
func (s *Scheduler) Running() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.running))
	for id := range s.running {
		ids = append(ids, id)
	}
	return ids
}

// inflightFor returns a snapshot of the policy's in-flight job.
func (s *Scheduler) inflightFor(policyID string) (inflight, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.running[policyID]
	if !ok {
		return inflight{}, false
	}
	return *job, true
}

// markWarned flips the in-flight job's warned flag, reporting true on
// the first call only.
func (s *Scheduler) markWarned(policyID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.running[policyID]
	if !ok || job.warned {
		return false
	}
	job.warned = true
	return true
}

func (s *Scheduler) clearInflight(policyID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, policyID)
}
