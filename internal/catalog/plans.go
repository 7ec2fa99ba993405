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

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/custodia-ops/custodia/internal/models"
)

const planPrefix = "plan:"

// ErrPlanNotFound indicates an unknown recovery plan ID.
var ErrPlanNotFound = errors.New("recovery plan not found")

// PutPlan inserts or replaces a recovery plan.
func (c *Catalog) PutPlan(ctx context.Context, plan *models.RecoveryPlan) error {
	if plan.ID == "" {
		return fmt.Errorf("plan id is required")
	}

	data, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}

	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(planPrefix+plan.ID), data)
	})
	if err != nil {
		return fmt.Errorf("store plan %s: %w", plan.ID, err)
	}
	return nil
}

// GetPlan returns one recovery plan by ID.
func (c *Catalog) GetPlan(ctx context.Context, id string) (*models.RecoveryPlan, error) {
	var plan models.RecoveryPlan
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(planPrefix + id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", ErrPlanNotFound, id)
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &plan)
		})
	})
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// ListPlans returns every stored recovery plan, ordered by name.
func (c *Catalog) ListPlans(ctx context.Context) ([]*models.RecoveryPlan, error) {
	var plans []*models.RecoveryPlan
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(planPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			var plan models.RecoveryPlan
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &plan)
			})
			if err != nil {
				return fmt.Errorf("decode plan: %w", err)
			}
			plans = append(plans, &plan)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(plans, func(i, j int) bool {
		return plans[i].Name < plans[j].Name
	})
	return plans, nil
}

// DeletePlan removes a recovery plan.
func (c *Catalog) DeletePlan(ctx context.Context, id string) error {
	if _, err := c.GetPlan(ctx, id); err != nil {
		return err
	}
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(planPrefix + id))
	})
	if err != nil {
		return fmt.Errorf("delete plan %s: %w", id, err)
	}
	return nil
}

// MatchPlans returns plans whose trigger tags intersect the incident
// tags, ordered by name.
func (c *Catalog) MatchPlans(ctx context.Context, tags []string) ([]*models.RecoveryPlan, error) {
	plans, err := c.ListPlans(ctx)
	if err != nil {
		return nil, err
	}
	var matched []*models.RecoveryPlan
	for _, p := range plans {
		if p.Matches(tags) {
			matched = append(matched, p)
		}
	}
	return matched, nil
}
