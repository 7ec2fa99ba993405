// Custodia - Backup and Disaster Recovery Orchestrator
// Copyright 2026 Custodia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/custodia-ops/custodia

// Package catalog is the durable record of every backup attempt. It is
// backed by BadgerDB and holds three keyspaces: backup records, backup
// policies and recovery plans.
//
// Records are append-only history: each attempt keeps its own record
// forever unless removed by a retention sweep, and status transitions
// are monotonic (no transition out of a terminal state). The executor
// task that created a record is its single writer; every other
// component reads only.
//
// Key layout:
//
//	record:<policyID>:<startedAt>:<recordID>  -> BackupRecord
//	recidx:<recordID>                         -> record key
//	policy:<policyID>                         -> BackupPolicy
//	plan:<planID>                             -> RecoveryPlan
//	audit:...                                 -> audit events (internal/audit)
//
// Key timestamps use a fixed-width RFC 3339 layout so lexicographic key
// order is chronological even across records in the same second.
//
// Timestamped record keys make reverse iteration return newest-first
// ordering without an explicit sort.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/custodia-ops/custodia/internal/models"
)

const (
	recordPrefix = "record:"
	recordIndex  = "recidx:"
)

var (
	// ErrRecordNotFound indicates an unknown backup record ID.
	ErrRecordNotFound = errors.New("backup record not found")

	// ErrInvalidTransition indicates an update that violates status
	// monotonicity.
	ErrInvalidTransition = errors.New("invalid record status transition")
)

// Config holds catalog storage configuration.
type Config struct {
	// Path is the BadgerDB directory.
	Path string `koanf:"path"`

	// SyncWrites forces fsync on every write. Slower, but a completed
	// record is never lost to a crash.
	SyncWrites bool `koanf:"sync_writes"`

	// InMemory runs Badger without disk persistence (tests only).
	InMemory bool `koanf:"in_memory"`
}

// Catalog provides access to records, policies and plans.
type Catalog struct {
	db *badger.DB

	// sweepMu serializes sweeps per policy. Scheduler-driven sweeps are
	// already covered by per-policy job exclusion; this guards
	// operator-triggered sweeps racing a running job's sweep.
	sweepMu  sync.Mutex
	sweeping map[string]*sync.Mutex
}

// Open opens (or creates) the catalog database.
func Open(cfg Config) (*Catalog, error) {
	if cfg.Path == "" && !cfg.InMemory {
		return nil, fmt.Errorf("catalog path is required")
	}

	opts := badger.DefaultOptions(cfg.Path)
	opts.SyncWrites = cfg.SyncWrites
	opts.InMemory = cfg.InMemory
	if cfg.InMemory {
		opts.Dir = ""
		opts.ValueDir = ""
	}

	// Reduce logging verbosity; badger's own logger is noisy.
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open catalog database: %w", err)
	}

	return &Catalog{
		db:       db,
		sweeping: make(map[string]*sync.Mutex),
	}, nil
}

// DB exposes the underlying BadgerDB for sibling stores (audit) that
// share the instance.
func (c *Catalog) DB() *badger.DB { return c.db }

// Close closes the underlying database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// RunGC runs one round of Badger value-log garbage collection. Returns
// badger.ErrNoRewrite when there was nothing to collect.
func (c *Catalog) RunGC() error {
	return c.db.RunValueLogGC(0.5)
}

// keyTimeLayout is RFC 3339 with fixed-width nanoseconds. RFC3339Nano
// trims trailing zeros, which breaks lexicographic ordering for
// timestamps that share a second.
const keyTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// recordKey builds the primary key for a record.
func recordKey(policyID string, startedAt time.Time, id string) []byte {
	return []byte(recordPrefix + policyID + ":" + startedAt.UTC().Format(keyTimeLayout) + ":" + id)
}

// Append inserts a new backup record. The record must not exist yet;
// every execution attempt gets a fresh identity.
func (c *Catalog) Append(ctx context.Context, record *models.BackupRecord) error {
	if record.ID == "" || record.PolicyID == "" {
		return fmt.Errorf("record id and policy id are required")
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	key := recordKey(record.PolicyID, record.StartedAt, record.ID)

	err = c.db.Update(func(txn *badger.Txn) error {
		idxKey := []byte(recordIndex + record.ID)
		if _, err := txn.Get(idxKey); err == nil {
			return fmt.Errorf("record %s already exists", record.ID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set(idxKey, key)
	})
	if err != nil {
		return fmt.Errorf("append record %s: %w", record.ID, err)
	}
	return nil
}

// Update applies mutate to the stored record, enforcing status
// monotonicity: a terminal record never changes status again, and
// non-terminal transitions must follow pending→running→terminal.
func (c *Catalog) Update(ctx context.Context, id string, mutate func(*models.BackupRecord) error) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		key, record, err := getByIndex(txn, id)
		if err != nil {
			return err
		}

		oldStatus := record.Status
		if err := mutate(record); err != nil {
			return err
		}
		record.ID = id // mutators must not change identity

		if record.Status != oldStatus && !oldStatus.CanTransitionTo(record.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, oldStatus, record.Status)
		}

		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		return txn.Set(key, data)
	})
	if err != nil {
		return fmt.Errorf("update record %s: %w", id, err)
	}
	return nil
}

// Get returns one record by ID.
func (c *Catalog) Get(ctx context.Context, id string) (*models.BackupRecord, error) {
	var record *models.BackupRecord
	err := c.db.View(func(txn *badger.Txn) error {
		_, r, err := getByIndex(txn, id)
		record = r
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// getByIndex resolves a record through its ID index.
func getByIndex(txn *badger.Txn, id string) ([]byte, *models.BackupRecord, error) {
	item, err := txn.Get([]byte(recordIndex + id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
		}
		return nil, nil, err
	}

	var key []byte
	if err := item.Value(func(val []byte) error {
		key = append([]byte(nil), val...)
		return nil
	}); err != nil {
		return nil, nil, err
	}

	item, err = txn.Get(key)
	if err != nil {
		return nil, nil, fmt.Errorf("record index points at missing key: %w", err)
	}

	var record models.BackupRecord
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &record)
	}); err != nil {
		return nil, nil, fmt.Errorf("decode record: %w", err)
	}
	return key, &record, nil
}

// QueryFilter selects backup records.
type QueryFilter struct {
	PolicyID string
	Status   models.RecordStatus
	Kind     models.BackupKind
	Since    *time.Time
	Until    *time.Time
	Limit    int
}

// Query returns records matching the filter, newest first.
func (c *Catalog) Query(ctx context.Context, filter QueryFilter) ([]*models.BackupRecord, error) {
	prefix := recordPrefix
	if filter.PolicyID != "" {
		prefix += filter.PolicyID + ":"
	}

	var results []*models.BackupRecord
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(prefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append([]byte(prefix), 0xff)
		for it.Seek(seek); it.ValidForPrefix([]byte(prefix)); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var record models.BackupRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			})
			if err != nil {
				return fmt.Errorf("decode record: %w", err)
			}

			if !matchesRecord(&record, &filter) {
				continue
			}
			results = append(results, &record)
			// Cross-policy scans interleave per-policy key ranges, so
			// the limit can only be applied after the global re-sort.
			if filter.PolicyID != "" && filter.Limit > 0 && len(results) >= filter.Limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Cross-policy queries interleave per-policy key ranges; restore
	// global newest-first ordering.
	if filter.PolicyID == "" {
		sortRecordsNewestFirst(results)
		if filter.Limit > 0 && len(results) > filter.Limit {
			results = results[:filter.Limit]
		}
	}
	return results, nil
}

// matchesRecord returns true if the record matches all filter criteria.
func matchesRecord(r *models.BackupRecord, f *QueryFilter) bool {
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.Kind != "" && r.Kind != f.Kind {
		return false
	}
	if f.Since != nil && r.StartedAt.Before(*f.Since) {
		return false
	}
	if f.Until != nil && r.StartedAt.After(*f.Until) {
		return false
	}
	return true
}

// sortRecordsNewestFirst orders records by start time descending.
func sortRecordsNewestFirst(records []*models.BackupRecord) {
	for i := 1; i < len(records); i++ {
		for j := i; j > 0 && records[j].StartedAt.After(records[j-1].StartedAt); j-- {
			records[j], records[j-1] = records[j-1], records[j]
		}
	}
}

// LastCompleted returns the newest completed record for a policy, or
// nil when the policy has never completed a backup.
func (c *Catalog) LastCompleted(ctx context.Context, policyID string) (*models.BackupRecord, error) {
	records, err := c.Query(ctx, QueryFilter{
		PolicyID: policyID,
		Status:   models.StatusCompleted,
		Limit:    1,
	})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// delete removes a record and its index entry.
func (c *Catalog) delete(record *models.BackupRecord) error {
	key := recordKey(record.PolicyID, record.StartedAt, record.ID)
	return c.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(key); err != nil {
			return err
		}
		return txn.Delete([]byte(recordIndex + record.ID))
	})
}
