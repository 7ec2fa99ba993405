// Custodia - Backup and Disaster Recovery Orchestrator
// Copyright 2026 Custodia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/custodia-ops/custodia

package target

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/custodia-ops/custodia/internal/models"
)

// LocalStore keeps artifacts as files under the target's Location
// directory. Artifact files are written with restricted permissions and
// named by artifact ID, so refs never contain path separators.
type LocalStore struct{}

// NewLocalStore creates a filesystem-backed store.
func NewLocalStore() *LocalStore {
	return &LocalStore{}
}

// Store writes the artifact to <location>/<artifactID>.bak.
func (s *LocalStore) Store(ctx context.Context, target models.BackupTarget, artifactID string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := os.MkdirAll(target.Location, 0o750); err != nil {
		return "", fmt.Errorf("create target directory %s: %w", target.Location, err)
	}

	if target.MaxCapacityBytes > 0 {
		used, err := dirSize(target.Location)
		if err != nil {
			return "", fmt.Errorf("check capacity of %s: %w", target.Location, err)
		}
		if used+int64(len(data)) > target.MaxCapacityBytes {
			return "", fmt.Errorf("%w: %d used + %d requested > %d max",
				ErrCapacityExceeded, used, len(data), target.MaxCapacityBytes)
		}
	}

	ref := sanitizeRef(artifactID) + ".bak"
	path := filepath.Join(target.Location, ref)

	// Write via a temp file and rename so a crashed write never leaves
	// a truncated artifact at the final path.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil { //nolint:gosec // artifact permissions are intentionally restricted
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) //nolint:errcheck // best effort cleanup
		return "", fmt.Errorf("finalize artifact: %w", err)
	}

	return ref, nil
}

// Load reads the artifact bytes back from disk.
func (s *LocalStore) Load(ctx context.Context, target models.BackupTarget, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := filepath.Join(target.Location, sanitizeRef(ref))
	data, err := os.ReadFile(path) //nolint:gosec // path is built from target config and a sanitized ref
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return data, nil
}

// Delete removes the artifact file. A missing file is not an error.
func (s *LocalStore) Delete(ctx context.Context, target models.BackupTarget, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path := filepath.Join(target.Location, sanitizeRef(ref))
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete artifact: %w", err)
	}
	return nil
}

// sanitizeRef strips path separators so refs cannot escape the target
// directory.
func sanitizeRef(ref string) string {
	ref = strings.ReplaceAll(ref, "/", "_")
	ref = strings.ReplaceAll(ref, "\\", "_")
	return filepath.Base(ref)
}

// dirSize sums the file sizes directly under dir.
func dirSize(dir string) (int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		total += info.Size()
	}
	return total, nil
}
