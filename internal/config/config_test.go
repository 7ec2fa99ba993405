// Custodia - Backup and Disaster Recovery Orchestrator
// Copyright 2026 Custodia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/custodia-ops/custodia

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/custodia-ops/custodia/internal/models"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "custodia.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultsValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
	if cfg.Server.Port != 8320 {
		t.Errorf("default port = %d, want 8320", cfg.Server.Port)
	}
	if cfg.Pipeline.Algorithm != "gzip" {
		t.Errorf("default algorithm = %s, want gzip", cfg.Pipeline.Algorithm)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
  timeout: 45s
pipeline:
  algorithm: zstd
  secret: hunter2-hunter2
targets:
  - id: t1
    name: local-disk
    kind: local
    location: /backups/primary
    priority: 1
  - id: t2
    kind: offsite
    location: vault.example.com/custodia
    priority: 2
objectives:
  rto_minutes: 240
  rpo_minutes: 60
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Server.Timeout != 45*time.Second {
		t.Errorf("timeout = %s, want 45s", cfg.Server.Timeout)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("host = %s, want the default kept", cfg.Server.Host)
	}
	if cfg.Pipeline.Algorithm != "zstd" {
		t.Errorf("algorithm = %s, want zstd", cfg.Pipeline.Algorithm)
	}
	if len(cfg.Targets) != 2 {
		t.Fatalf("targets = %d, want 2", len(cfg.Targets))
	}
	if got := cfg.Targets[0].Model(); got.Kind != models.TargetLocal || got.Priority != 1 {
		t.Errorf("target model = %+v", got)
	}
	if cfg.Objectives.RTOMinutes != 240 || cfg.Objectives.RPOMinutes != 60 {
		t.Errorf("objectives = %+v", cfg.Objectives)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9000\n")
	t.Setenv("CUSTODIA_PORT", "9100")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("UNRELATED_VARIABLE", "ignored")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("port = %d, want the env override 9100", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %s, want debug", cfg.Logging.Level)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
		{"unknown log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"unknown algorithm", func(c *Config) { c.Pipeline.Algorithm = "lz77" }},
		{"target without location", func(c *Config) {
			c.Targets = []TargetConfig{{ID: "t1", Kind: "local"}}
		}},
		{"unknown target kind", func(c *Config) {
			c.Targets = []TargetConfig{{ID: "t1", Kind: "tape", Location: "/mnt"}}
		}},
		{"duplicate target ids", func(c *Config) {
			c.Targets = []TargetConfig{
				{ID: "t1", Kind: "local", Location: "/a", Priority: 1},
				{ID: "t1", Kind: "local", Location: "/b", Priority: 2},
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() error = nil, want non-nil")
			}
		})
	}
}

func TestMissingFileFailsLoudly(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("LoadFile() error = nil for a missing file")
	}
}
