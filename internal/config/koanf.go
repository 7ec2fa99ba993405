// Custodia - Backup and Disaster Recovery Orchestrator
// Copyright 2026 Custodia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/custodia-ops/custodia

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"custodia.yaml",
	"custodia.yml",
	"/etc/custodia/custodia.yaml",
	"/etc/custodia/custodia.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CUSTODIA_CONFIG"

// Load builds the configuration from layered sources:
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. Environment variables (highest priority)
func Load() (*Config, error) {
	return loadFrom(findConfigFile())
}

// LoadFile is Load with an explicit config file path.
func LoadFile(path string) (*Config, error) {
	return loadFrom(path)
}

func loadFrom(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps environment variable names to config paths.
// Unmapped variables are dropped so unrelated environment noise never
// reaches the configuration.
func envTransformFunc(key string) string {
	envMappings := map[string]string{
		"CUSTODIA_HOST":         "server.host",
		"CUSTODIA_PORT":         "server.port",
		"CUSTODIA_HTTP_TIMEOUT": "server.timeout",

		"CATALOG_PATH":        "catalog.path",
		"CATALOG_SYNC_WRITES": "catalog.sync_writes",

		"SCHEDULER_ENABLED":       "scheduler.enabled",
		"SCHEDULER_TICK_INTERVAL": "scheduler.tick_interval",

		"AUDIT_ENABLED":     "audit.enabled",
		"AUDIT_BUFFER_SIZE": "audit.buffer_size",
		"AUDIT_LOG_STDOUT":  "audit.log_to_stdout",
		"AUDIT_RETENTION":   "audit.retention",

		"LOG_LEVEL":  "logging.level",
		"LOG_FORMAT": "logging.format",
		"LOG_CALLER": "logging.caller",

		"PIPELINE_ALGORITHM": "pipeline.algorithm",
		"PIPELINE_LEVEL":     "pipeline.level",
		"PIPELINE_SECRET":    "pipeline.secret",
		"PIPELINE_KEY_ID":    "pipeline.key_id",

		"WEBHOOK_TIMEOUT": "webhook.timeout",
		"WEBHOOK_RATE":    "webhook.rate_per_second",
		"WEBHOOK_BURST":   "webhook.burst",

		"OBJECTIVE_RTO_MINUTES": "objectives.rto_minutes",
		"OBJECTIVE_RPO_MINUTES": "objectives.rpo_minutes",

		"RESTORE_ROOT": "restore.root",
	}

	if mapped, ok := envMappings[strings.ToUpper(key)]; ok {
		return mapped
	}
	return ""
}
