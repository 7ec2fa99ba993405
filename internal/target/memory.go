// Custodia - Backup and Disaster Recovery Orchestrator
// Copyright 2026 Custodia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/custodia-ops/custodia

package target

import (
	"context"
	"sync"

	"github.com/custodia-ops/custodia/internal/models"
)

// MemoryStore keeps artifacts in memory. Suitable for development and
// testing; data is lost on restart. Per-call failure injection and
// operation counters support exercising store failure paths.
type MemoryStore struct {
	mu       sync.RWMutex
	data     map[string][]byte
	failWith error

	// Operation counters, readable via Counts.
	stores  int
	loads   int
	deletes int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// FailWith makes every subsequent operation return err. Pass nil to
// restore normal behavior.
func (s *MemoryStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWith = err
}

// Counts returns how many store/load/delete calls have been made.
func (s *MemoryStore) Counts() (stores, loads, deletes int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stores, s.loads, s.deletes
}

// Store keeps the artifact under "<targetID>:<artifactID>".
func (s *MemoryStore) Store(ctx context.Context, target models.BackupTarget, artifactID string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stores++
	if s.failWith != nil {
		return "", s.failWith
	}

	if target.MaxCapacityBytes > 0 {
		var used int64
		for _, b := range s.data {
			used += int64(len(b))
		}
		if used+int64(len(data)) > target.MaxCapacityBytes {
			return "", ErrCapacityExceeded
		}
	}

	cp := make([]byte, len(data))
	copy(cp, data)
	s.data[target.ID+":"+artifactID] = cp
	return artifactID, nil
}

// Load returns a copy of the stored artifact.
func (s *MemoryStore) Load(ctx context.Context, target models.BackupTarget, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	if s.failWith != nil {
		return nil, s.failWith
	}

	data, ok := s.data[target.ID+":"+ref]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

// Delete removes the artifact. Missing artifacts are ignored.
func (s *MemoryStore) Delete(ctx context.Context, target models.BackupTarget, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	if s.failWith != nil {
		return s.failWith
	}

	delete(s.data, target.ID+":"+ref)
	return nil
}

// Corrupt overwrites a stored artifact's bytes in place, for exercising
// verification mismatch paths.
func (s *MemoryStore) Corrupt(targetID, ref string, mutate func([]byte) []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := targetID + ":" + ref
	data, ok := s.data[key]
	if !ok {
		return false
	}
	s.data[key] = mutate(data)
	return true
}
