// Custodia - Backup and Disaster Recovery Orchestrator
// Copyright 2026 Custodia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/custodia-ops/custodia

// Package target abstracts where a backup artifact lives. A Registry
// resolves BackupTarget definitions to Store implementations and selects
// the preferred target for a policy (lowest priority number first).
//
// Failure semantics are deliberately simple and auditable: a failed
// store call fails the whole job. There is no implicit fallback to
// lower-priority targets and no implicit multi-target write, which would
// produce partially-replicated, inconsistent backups.
//
// Artifact locations are opaque strings of the form "<targetID>/<ref>",
// where ref is meaningful only to the owning store implementation.
package target

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-ops/custodia/internal/models"
)

var (
	// ErrCapacityExceeded indicates the advisory capacity check failed
	// before the write. Capacity is checked, not enforced atomically.
	ErrCapacityExceeded = errors.New("target capacity exceeded")

	// ErrNotFound indicates the artifact does not exist at the location.
	ErrNotFound = errors.New("artifact not found")

	// ErrUnknownTarget indicates a target ID with no registered definition.
	ErrUnknownTarget = errors.New("unknown target")
)

// Error wraps a target store failure with the target and operation that
// produced it.
type Error struct {
	TargetID string
	Op       string // "store", "load" or "delete"
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("target %s: %s failed: %v", e.TargetID, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Store is one storage backend (local disk, cloud bucket, offsite
// vault). Implementations receive the full target definition so they
// can honor location URIs and advisory capacity limits. Credential
// handles are passed through opaquely; the core never inspects them.
type Store interface {
	// Store writes the artifact and returns a ref for later loads.
	Store(ctx context.Context, target models.BackupTarget, artifactID string, data []byte) (ref string, err error)

	// Load reads the artifact bytes back.
	Load(ctx context.Context, target models.BackupTarget, ref string) ([]byte, error)

	// Delete removes the artifact. Deleting a missing artifact is not
	// an error; retention sweeps must be idempotent.
	Delete(ctx context.Context, target models.BackupTarget, ref string) error
}

// Registry maps target definitions to store implementations by kind.
type Registry struct {
	mu      sync.RWMutex
	targets map[string]models.BackupTarget
	stores  map[models.TargetKind]Store
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		targets: make(map[string]models.BackupTarget),
		stores:  make(map[models.TargetKind]Store),
	}
}

// RegisterStore installs the store implementation for a target kind.
func (r *Registry) RegisterStore(kind models.TargetKind, store Store) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores[kind] = store
}

// PutTarget registers or replaces a target definition.
func (r *Registry) PutTarget(t models.BackupTarget) error {
	if err := models.ValidateTarget(&t); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.stores[t.Kind]; !ok {
		return fmt.Errorf("no store registered for target kind %q", t.Kind)
	}
	r.targets[t.ID] = t
	return nil
}

// Target returns a target definition by ID.
func (r *Registry) Target(id string) (models.BackupTarget, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.targets[id]
	return t, ok
}

// Targets returns all registered target definitions, sorted by ID.
func (r *Registry) Targets() []models.BackupTarget {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.BackupTarget, 0, len(r.targets))
	for _, t := range r.targets {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Resolve returns the target definitions for the given IDs, skipping
// unknown ones. Callers compare lengths to detect unresolved targets.
func (r *Registry) Resolve(ids []string) []models.BackupTarget {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.BackupTarget, 0, len(ids))
	for _, id := range ids {
		if t, ok := r.targets[id]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Select returns the preferred target for a policy: the resolvable
// target with the lowest priority number.
func (r *Registry) Select(policy *models.BackupPolicy) (models.BackupTarget, error) {
	candidates := r.Resolve(policy.TargetIDs)
	if len(candidates) == 0 {
		return models.BackupTarget{}, fmt.Errorf("policy %s: %w: none of %v registered", policy.ID, ErrUnknownTarget, policy.TargetIDs)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Priority < candidates[j].Priority
	})
	return candidates[0], nil
}

// Store writes an artifact to the given target and returns its opaque
// location.
func (r *Registry) Store(ctx context.Context, targetID, artifactID string, data []byte) (string, error) {
	t, store, err := r.lookup(targetID)
	if err != nil {
		return "", &Error{TargetID: targetID, Op: "store", Err: err}
	}

	ref, err := store.Store(ctx, t, artifactID, data)
	if err != nil {
		return "", &Error{TargetID: targetID, Op: "store", Err: err}
	}
	return t.ID + "/" + ref, nil
}

// Load reads an artifact back from its location.
func (r *Registry) Load(ctx context.Context, location string) ([]byte, error) {
	targetID, ref, err := splitLocation(location)
	if err != nil {
		return nil, err
	}

	t, store, err := r.lookup(targetID)
	if err != nil {
		return nil, &Error{TargetID: targetID, Op: "load", Err: err}
	}

	data, err := store.Load(ctx, t, ref)
	if err != nil {
		return nil, &Error{TargetID: targetID, Op: "load", Err: err}
	}
	return data, nil
}

// Delete removes an artifact at the given location. Missing artifacts
// are ignored.
func (r *Registry) Delete(ctx context.Context, location string) error {
	targetID, ref, err := splitLocation(location)
	if err != nil {
		return err
	}

	t, store, err := r.lookup(targetID)
	if err != nil {
		return &Error{TargetID: targetID, Op: "delete", Err: err}
	}

	if err := store.Delete(ctx, t, ref); err != nil {
		return &Error{TargetID: targetID, Op: "delete", Err: err}
	}
	return nil
}

// lookup resolves a target and its store implementation.
func (r *Registry) lookup(targetID string) (models.BackupTarget, Store, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.targets[targetID]
	if !ok {
		return models.BackupTarget{}, nil, ErrUnknownTarget
	}
	store, ok := r.stores[t.Kind]
	if !ok {
		return models.BackupTarget{}, nil, fmt.Errorf("no store registered for target kind %q", t.Kind)
	}
	return t, store, nil
}

// splitLocation separates "<targetID>/<ref>".
func splitLocation(location string) (targetID, ref string, err error) {
	targetID, ref, ok := strings.Cut(location, "/")
	if !ok || targetID == "" || ref == "" {
		return "", "", fmt.Errorf("malformed artifact location: %q", location)
	}
	return targetID, ref, nil
}
