// Custodia - Backup and Disaster Recovery Orchestrator
// Copyright 2026 Custodia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/custodia-ops/custodia

package gather

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/custodia-ops/custodia/internal/models"
)

func writeSourceTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"data/users.db":   "users",
		"data/orders.db":  "orders",
		"config/app.yaml": "settings",
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			t.Fatalf("MkdirAll() error = %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o640); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
	}
	return dir
}

func archiveNames(t *testing.T, payload []byte) []string {
	t.Helper()
	var names []string
	tr := tar.NewReader(bytes.NewReader(payload))
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return names
		}
		if err != nil {
			t.Fatalf("tar.Next() error = %v", err)
		}
		names = append(names, header.Name)
	}
}

func TestDirectoryGathererFullCapture(t *testing.T) {
	dir := writeSourceTree(t)
	g := NewDirectoryGatherer()

	policy := &models.BackupPolicy{
		ID:          "pol-1",
		Kind:        models.KindFull,
		SourcePaths: []string{filepath.Join(dir, "data"), filepath.Join(dir, "config")},
	}

	payload, metadata, err := g.Gather(context.Background(), policy, Baseline{})
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	names := archiveNames(t, payload)
	want := map[string]bool{
		"data/users.db":   true,
		"data/orders.db":  true,
		"config/app.yaml": true,
		manifestName:      true,
	}
	if len(names) != len(want) {
		t.Fatalf("archive entries = %v, want %d entries", names, len(want))
	}
	for _, name := range names {
		if !want[name] {
			t.Errorf("unexpected archive entry %s", name)
		}
	}

	if metadata.RecordCount != 3 {
		t.Errorf("metadata.RecordCount = %d, want 3", metadata.RecordCount)
	}
	if len(metadata.Entities) != 2 {
		t.Errorf("metadata.Entities = %v, want data and config", metadata.Entities)
	}
}

func TestDirectoryGathererIncrementalFiltersByBaseline(t *testing.T) {
	dir := writeSourceTree(t)
	g := NewDirectoryGatherer()

	cutoff := time.Now().Add(time.Hour)
	fresh := filepath.Join(dir, "data", "fresh.db")
	if err := os.WriteFile(fresh, []byte("fresh"), 0o640); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	future := cutoff.Add(time.Hour)
	if err := os.Chtimes(fresh, future, future); err != nil {
		t.Fatalf("Chtimes() error = %v", err)
	}

	policy := &models.BackupPolicy{
		ID:          "pol-1",
		Kind:        models.KindIncremental,
		SourcePaths: []string{filepath.Join(dir, "data")},
	}

	payload, metadata, err := g.Gather(context.Background(), policy, Baseline{Since: &cutoff})
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	if metadata.RecordCount != 1 {
		t.Errorf("incremental RecordCount = %d, want only the fresh file", metadata.RecordCount)
	}

	names := archiveNames(t, payload)
	if len(names) != 2 || names[0] != "data/fresh.db" {
		t.Errorf("archive entries = %v, want fresh.db plus manifest", names)
	}
}

func TestDirectoryGathererIncrementalWithoutBaselineIsFull(t *testing.T) {
	dir := writeSourceTree(t)
	g := NewDirectoryGatherer()

	policy := &models.BackupPolicy{
		ID:          "pol-1",
		Kind:        models.KindIncremental,
		SourcePaths: []string{filepath.Join(dir, "data")},
	}

	_, metadata, err := g.Gather(context.Background(), policy, Baseline{})
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	if metadata.RecordCount != 2 {
		t.Errorf("RecordCount = %d, want full capture without baseline", metadata.RecordCount)
	}
}

func TestDirectoryGathererMissingSource(t *testing.T) {
	g := NewDirectoryGatherer()
	policy := &models.BackupPolicy{
		ID:          "pol-1",
		Kind:        models.KindFull,
		SourcePaths: []string{"/does/not/exist"},
	}

	_, _, err := g.Gather(context.Background(), policy, Baseline{})
	var gatherErr *Error
	if !errors.As(err, &gatherErr) {
		t.Fatalf("Gather() error = %v, want *Error", err)
	}
	if gatherErr.Source != "/does/not/exist" {
		t.Errorf("gather error source = %s, want the missing path", gatherErr.Source)
	}
}

func TestDirectoryGathererNoSources(t *testing.T) {
	g := NewDirectoryGatherer()
	policy := &models.BackupPolicy{ID: "pol-1", Kind: models.KindFull}

	_, _, err := g.Gather(context.Background(), policy, Baseline{})
	if err == nil {
		t.Error("Gather() should fail when the policy declares no sources")
	}
}

func TestReadManifest(t *testing.T) {
	dir := writeSourceTree(t)
	g := NewDirectoryGatherer()

	policy := &models.BackupPolicy{
		ID:          "pol-1",
		Kind:        models.KindFull,
		SourcePaths: []string{filepath.Join(dir, "data")},
	}

	payload, _, err := g.Gather(context.Background(), policy, Baseline{})
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	m, err := ReadManifest(payload)
	if err != nil {
		t.Fatalf("ReadManifest() error = %v", err)
	}
	if m.Kind != models.KindFull {
		t.Errorf("manifest kind = %s, want full", m.Kind)
	}
	if len(m.Files) != 2 {
		t.Fatalf("manifest files = %d, want 2", len(m.Files))
	}
	for _, f := range m.Files {
		if len(f.Checksum) != 64 {
			t.Errorf("file %s checksum = %q, want sha256 hex", f.Path, f.Checksum)
		}
		if EntityOf(f.Path) != "data" {
			t.Errorf("EntityOf(%s) = %s, want data", f.Path, EntityOf(f.Path))
		}
	}
}
