// Custodia - Backup and Disaster Recovery Orchestrator
// Copyright 2026 Custodia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/custodia-ops/custodia

package catalog

import (
	"context"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/custodia-ops/custodia/internal/models"
)

var objectivesKey = []byte("objectives")

// PutObjectives persists the declared RTO/RPO targets.
func (c *Catalog) PutObjectives(ctx context.Context, obj models.RecoveryObjectives) error {
	if err := models.ValidateObjectives(obj); err != nil {
		return err
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("marshal objectives: %w", err)
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(objectivesKey, data)
	})
	if err != nil {
		return fmt.Errorf("store objectives: %w", err)
	}
	return ctx.Err()
}

// GetObjectives returns the declared RTO/RPO targets, or the zero
// value when none have been set.
func (c *Catalog) GetObjectives(ctx context.Context) (models.RecoveryObjectives, error) {
	var obj models.RecoveryObjectives
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(objectivesKey)
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &obj)
		})
	})
	if err != nil {
		return obj, fmt.Errorf("read objectives: %w", err)
	}
	return obj, ctx.Err()
}
