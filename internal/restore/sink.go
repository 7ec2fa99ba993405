// Custodia - Backup and Disaster Recovery Orchestrator
// Copyright 2026 Custodia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/custodia-ops/custodia

package restore

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/custodia-ops/custodia/internal/gather"
	"github.com/custodia-ops/custodia/internal/models"
)

// DirectorySink unpacks gathered tar payloads into a directory tree.
type DirectorySink struct {
	// Root is the default destination when the restore options carry no
	// TargetLocation.
	Root string
}

// Apply extracts the payload's files. PartialEntities, when set,
// restricts extraction to the named top-level entities.
func (s *DirectorySink) Apply(ctx context.Context, record *models.BackupRecord, payload []byte, opts models.RestoreOptions) (int64, error) {
	root := s.Root
	if opts.TargetLocation != "" {
		root = opts.TargetLocation
	}
	if root == "" {
		return 0, fmt.Errorf("no restore destination configured")
	}

	wanted := make(map[string]bool, len(opts.PartialEntities))
	for _, entity := range opts.PartialEntities {
		wanted[entity] = true
	}

	var written int64
	tr := tar.NewReader(bytes.NewReader(payload))
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		header, err := tr.Next()
		if err == io.EOF {
			return written, nil
		}
		if err != nil {
			return written, fmt.Errorf("read archive: %w", err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}
		if header.Name == "gather-manifest.json" {
			continue
		}
		if len(wanted) > 0 && !wanted[gather.EntityOf(header.Name)] {
			continue
		}

		n, err := extractFile(root, header.Name, tr)
		if err != nil {
			return written, err
		}
		written += n
	}
}

// extractFile writes one archive entry under root, refusing paths that
// escape it.
//
//nolint:gosec // G304: dest is confined to root below
func extractFile(root, name string, r io.Reader) (int64, error) {
	clean := filepath.Clean(name)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(os.PathSeparator)) || filepath.IsAbs(clean) {
		return 0, fmt.Errorf("archive entry %q escapes the restore root", name)
	}

	dest := filepath.Join(root, clean)
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return 0, fmt.Errorf("create directory for %s: %w", dest, err)
	}

	file, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", dest, err)
	}

	n, err := io.Copy(file, r)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return n, fmt.Errorf("write %s: %w", dest, err)
	}
	return n, nil
}

// MemorySink captures applied payloads, for tests and dry runs.
type MemorySink struct {
	mu      sync.Mutex
	applied []AppliedPayload
	failErr error
}

// AppliedPayload is one Apply call captured by a MemorySink.
type AppliedPayload struct {
	RecordID string
	Payload  []byte
}

// FailWith makes subsequent Apply calls return err.
func (s *MemorySink) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr = err
}

// Applied returns the captured payloads in application order.
func (s *MemorySink) Applied() []AppliedPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AppliedPayload, len(s.applied))
	copy(out, s.applied)
	return out
}

// Apply captures the payload.
func (s *MemorySink) Apply(ctx context.Context, record *models.BackupRecord, payload []byte, opts models.RestoreOptions) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return 0, s.failErr
	}

	cp := make([]byte, len(payload))
	copy(cp, payload)
	s.applied = append(s.applied, AppliedPayload{RecordID: record.ID, Payload: cp})
	return int64(len(cp)), nil
}
