// Custodia - Backup and Disaster Recovery Orchestrator
// Copyright 2026 Custodia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/custodia-ops/custodia

package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// auditPrefix namespaces audit keys inside the shared BadgerDB.
// Keys are "audit:<timestamp>:<event id>", so reverse iteration yields
// newest-first ordering for free. The timestamp layout is fixed-width;
// RFC3339Nano trims trailing zeros and misorders same-second keys.
const (
	auditPrefix   = "audit:"
	keyTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// BadgerStore implements Store on a shared BadgerDB instance. Events
// are written with a retention TTL so that the audit trail prunes
// itself without a sweep goroutine.
type BadgerStore struct {
	db  *badger.DB
	ttl time.Duration
}

// NewBadgerStore wraps db as an audit store. retention of zero disables
// TTL-based pruning.
func NewBadgerStore(db *badger.DB, retention time.Duration) *BadgerStore {
	return &BadgerStore{db: db, ttl: retention}
}

// Save persists one event.
func (s *BadgerStore) Save(ctx context.Context, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	key := []byte(auditPrefix + event.Timestamp.UTC().Format(keyTimeLayout) + ":" + event.ID)

	err = s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(key, data)
		if s.ttl > 0 {
			entry = entry.WithTTL(s.ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("save audit event: %w", err)
	}
	return nil
}

// Query scans events in reverse key order (newest first).
func (s *BadgerStore) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	var results []Event

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(auditPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		// In reverse mode iteration starts from the key just past the
		// prefix range.
		seek := append([]byte(auditPrefix), 0xff)
		for it.Seek(seek); it.ValidForPrefix([]byte(auditPrefix)); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var event Event
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &event)
			})
			if err != nil {
				return fmt.Errorf("decode audit event: %w", err)
			}

			if !matchesFilter(&event, &filter) {
				continue
			}
			results = append(results, event)
			if filter.Limit > 0 && len(results) >= filter.Limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Close is a no-op; the shared BadgerDB is owned by the catalog.
func (s *BadgerStore) Close() error { return nil }
