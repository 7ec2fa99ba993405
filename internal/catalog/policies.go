// Custodia - Backup and Disaster Recovery Orchestrator
// Copyright 2026 Custodia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/custodia-ops/custodia

package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/custodia-ops/custodia/internal/models"
)

const policyPrefix = "policy:"

var (
	// ErrPolicyNotFound indicates an unknown policy ID.
	ErrPolicyNotFound = errors.New("backup policy not found")

	// ErrPolicyInUse indicates a policy that still has backup records
	// referencing it.
	ErrPolicyInUse = errors.New("backup policy has existing records")
)

// PutPolicy inserts or replaces a policy. Callers validate before
// storing; the catalog only persists.
func (c *Catalog) PutPolicy(ctx context.Context, policy *models.BackupPolicy) error {
	if policy.ID == "" {
		return fmt.Errorf("policy id is required")
	}

	now := time.Now().UTC()
	if policy.CreatedAt.IsZero() {
		policy.CreatedAt = now
	}
	policy.UpdatedAt = now

	data, err := json.Marshal(policy)
	if err != nil {
		return fmt.Errorf("marshal policy: %w", err)
	}

	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(policyPrefix+policy.ID), data)
	})
	if err != nil {
		return fmt.Errorf("store policy %s: %w", policy.ID, err)
	}
	return nil
}

// GetPolicy returns one policy by ID.
func (c *Catalog) GetPolicy(ctx context.Context, id string) (*models.BackupPolicy, error) {
	var policy models.BackupPolicy
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(policyPrefix + id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", ErrPolicyNotFound, id)
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &policy)
		})
	})
	if err != nil {
		return nil, err
	}
	return &policy, nil
}

// ListPolicies returns every stored policy, ordered by name.
func (c *Catalog) ListPolicies(ctx context.Context) ([]*models.BackupPolicy, error) {
	var policies []*models.BackupPolicy
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(policyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			var policy models.BackupPolicy
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &policy)
			})
			if err != nil {
				return fmt.Errorf("decode policy: %w", err)
			}
			policies = append(policies, &policy)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(policies, func(i, j int) bool {
		return policies[i].Name < policies[j].Name
	})
	return policies, nil
}

// DeletePolicy removes a policy. Policies with surviving backup
// records are refused unless force is set; forced deletion leaves the
// orphaned records queryable.
func (c *Catalog) DeletePolicy(ctx context.Context, id string, force bool) error {
	if _, err := c.GetPolicy(ctx, id); err != nil {
		return err
	}

	if !force {
		records, err := c.Query(ctx, QueryFilter{PolicyID: id, Limit: 1})
		if err != nil {
			return err
		}
		if len(records) > 0 {
			return fmt.Errorf("%w: %s", ErrPolicyInUse, id)
		}
	}

	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(policyPrefix + id))
	})
	if err != nil {
		return fmt.Errorf("delete policy %s: %w", id, err)
	}
	return nil
}
