// Custodia - Backup and Disaster Recovery Orchestrator
// Copyright 2026 Custodia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/custodia-ops/custodia

// Package config loads and validates the Custodia configuration from
// layered sources: built-in defaults, an optional YAML file, and
// environment variables, in ascending precedence.
package config

import (
	"fmt"
	"time"

	"github.com/custodia-ops/custodia/internal/catalog"
	"github.com/custodia-ops/custodia/internal/models"
	"github.com/custodia-ops/custodia/internal/notify"
	"github.com/custodia-ops/custodia/internal/pipeline"
	"github.com/custodia-ops/custodia/internal/scheduler"
	"github.com/custodia-ops/custodia/internal/validation"
)

// Config is the full Custodia configuration.
type Config struct {
	Server     ServerConfig         `koanf:"server"`
	Catalog    catalog.Config       `koanf:"catalog"`
	Scheduler  scheduler.Config     `koanf:"scheduler"`
	Audit      AuditConfig          `koanf:"audit"`
	Logging    LoggingConfig        `koanf:"logging"`
	Pipeline   PipelineConfig       `koanf:"pipeline"`
	Webhook    notify.WebhookConfig `koanf:"webhook"`
	Objectives ObjectivesConfig     `koanf:"objectives"`
	Restore    RestoreConfig        `koanf:"restore"`
	Targets    []TargetConfig       `koanf:"targets"`
}

// ServerConfig configures the HTTP API listener.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port" validate:"gte=1,lte=65535"`
	Timeout time.Duration `koanf:"timeout"`
}

// AuditConfig configures the audit trail.
type AuditConfig struct {
	Enabled     bool `koanf:"enabled"`
	BufferSize  int  `koanf:"buffer_size" validate:"gte=0"`
	LogToStdout bool `koanf:"log_to_stdout"`

	// Retention prunes audit events older than this; zero keeps them
	// forever.
	Retention time.Duration `koanf:"retention"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// PipelineConfig configures the artifact transform pipeline defaults.
// Per-policy flags decide whether each job compresses or encrypts;
// this section supplies the algorithm and key material.
type PipelineConfig struct {
	Algorithm string `koanf:"algorithm" validate:"oneof=gzip zstd"`
	Level     int    `koanf:"level"`

	// Secret is the encryption passphrase. Required when any policy
	// sets encrypt.
	Secret string `koanf:"secret"`
	KeyID  string `koanf:"key_id"`
}

// ObjectivesConfig seeds the declared RTO/RPO targets. The API can
// overwrite them at runtime; the catalog copy wins once set.
type ObjectivesConfig struct {
	RTOMinutes float64 `koanf:"rto_minutes" validate:"gte=0"`
	RPOMinutes float64 `koanf:"rpo_minutes" validate:"gte=0"`
}

// RestoreConfig configures the restore sink.
type RestoreConfig struct {
	// Root is the default directory restores are applied under.
	Root string `koanf:"root"`
}

// TargetConfig declares one backup target. Targets are configuration,
// not API state: they name infrastructure that must exist before the
// orchestrator can use it.
type TargetConfig struct {
	ID               string `koanf:"id" validate:"required"`
	Name             string `koanf:"name"`
	Kind             string `koanf:"kind" validate:"oneof=local cloud offsite"`
	Location         string `koanf:"location" validate:"required"`
	Priority         int    `koanf:"priority" validate:"gte=0"`
	MaxCapacityBytes int64  `koanf:"max_capacity_bytes" validate:"gte=0"`
	CredentialRef    string `koanf:"credential_ref"`
}

// Default returns the built-in configuration defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8320,
			Timeout: 30 * time.Second,
		},
		Catalog: catalog.Config{
			Path:       "/data/custodia/catalog",
			SyncWrites: true,
		},
		Scheduler: scheduler.DefaultConfig(),
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1000,
			Retention:  90 * 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Pipeline: PipelineConfig{
			Algorithm: "gzip",
		},
		Webhook: notify.DefaultWebhookConfig(),
		Restore: RestoreConfig{
			Root: "/data/custodia/restore",
		},
	}
}

// Validate checks the configuration, including the cross-field rules
// the struct tags cannot express.
func (c *Config) Validate() error {
	if err := validation.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	seen := make(map[string]bool, len(c.Targets))
	for _, t := range c.Targets {
		if seen[t.ID] {
			return fmt.Errorf("invalid configuration: duplicate target id %q", t.ID)
		}
		seen[t.ID] = true

		target := t.Model()
		if err := models.ValidateTarget(&target); err != nil {
			return fmt.Errorf("invalid target %q: %w", t.ID, err)
		}
	}
	return nil
}

// Model converts the target declaration to its domain form.
func (t TargetConfig) Model() models.BackupTarget {
	return models.BackupTarget{
		ID:               t.ID,
		Name:             t.Name,
		Kind:             models.TargetKind(t.Kind),
		Location:         t.Location,
		Priority:         t.Priority,
		MaxCapacityBytes: t.MaxCapacityBytes,
		CredentialRef:    t.CredentialRef,
	}
}

// PipelineOptions returns the transform defaults for the executor and
// restore engine. Per-policy flags still gate each stage.
func (c *Config) PipelineOptions() pipeline.Options {
	return pipeline.Options{
		Algorithm: c.Pipeline.Algorithm,
		Level:     c.Pipeline.Level,
		Secret:    c.Pipeline.Secret,
		KeyID:     c.Pipeline.KeyID,
	}
}
