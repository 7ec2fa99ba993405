// Custodia - Backup and Disaster Recovery Orchestrator
// Copyright 2026 Custodia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/custodia-ops/custodia

package gather

import (
	"archive/tar"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/custodia-ops/custodia/internal/models"
)

// manifestName is the final tar entry describing what was captured.
const manifestName = "gather-manifest.json"

// ManifestEntry records one captured file for restore-time integrity
// checks.
type ManifestEntry struct {
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	ModTime  time.Time `json:"mod_time"`
	Checksum string    `json:"checksum"`
}

// Manifest is the archive's self-description.
type Manifest struct {
	GatheredAt time.Time       `json:"gathered_at"`
	Kind       models.BackupKind `json:"kind"`
	Since      *time.Time      `json:"since,omitempty"`
	Files      []ManifestEntry `json:"files"`
}

// DirectoryGatherer captures a policy's source paths into a tar
// archive with per-file SHA-256 checksums and a trailing manifest.
//
// Full and transaction_log kinds capture every regular file under the
// source paths. Incremental and differential capture only files
// modified after the baseline; with no baseline they degrade to a full
// capture.
type DirectoryGatherer struct{}

// NewDirectoryGatherer creates a filesystem-backed gatherer.
func NewDirectoryGatherer() *DirectoryGatherer {
	return &DirectoryGatherer{}
}

// Gather walks every source path and produces the tar payload.
func (g *DirectoryGatherer) Gather(ctx context.Context, policy *models.BackupPolicy, baseline Baseline) ([]byte, models.SourceMetadata, error) {
	if len(policy.SourcePaths) == 0 {
		return nil, models.SourceMetadata{}, &Error{Source: policy.ID, Err: fmt.Errorf("policy declares no source paths")}
	}

	since := baseline.Since
	if policy.Kind == models.KindFull {
		since = nil
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	m := Manifest{
		GatheredAt: time.Now().UTC(),
		Kind:       policy.Kind,
		Since:      since,
	}

	var entities []string
	for _, root := range policy.SourcePaths {
		entities = append(entities, filepath.Base(root))
		if err := g.addTree(ctx, tw, root, since, &m); err != nil {
			return nil, models.SourceMetadata{}, err
		}
	}

	if err := writeManifest(tw, &m); err != nil {
		return nil, models.SourceMetadata{}, &Error{Source: manifestName, Err: err}
	}
	if err := tw.Close(); err != nil {
		return nil, models.SourceMetadata{}, &Error{Source: policy.ID, Err: fmt.Errorf("close archive: %w", err)}
	}

	metadata := models.SourceMetadata{
		Entities:    entities,
		RecordCount: int64(len(m.Files)),
	}
	return buf.Bytes(), metadata, nil
}

// addTree walks one source root and adds every eligible regular file.
func (g *DirectoryGatherer) addTree(ctx context.Context, tw *tar.Writer, root string, since *time.Time, m *Manifest) error {
	base := filepath.Base(root)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if since != nil && !info.ModTime().After(*since) {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		name := base + "/" + filepath.ToSlash(rel)

		return addFile(tw, path, name, info, m)
	})
	if err != nil {
		return &Error{Source: root, Err: err}
	}
	return nil
}

// addFile streams one file into the archive, hashing as it copies.
//
//nolint:gosec // G304: path comes from operator-declared source paths
func addFile(tw *tar.Writer, path, name string, info fs.FileInfo, m *Manifest) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close() //nolint:errcheck // Best effort cleanup

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("tar header for %s: %w", path, err)
	}
	header.Name = name

	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("write tar header for %s: %w", path, err)
	}

	hasher := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tw, hasher), file); err != nil {
		return fmt.Errorf("copy %s into archive: %w", path, err)
	}

	m.Files = append(m.Files, ManifestEntry{
		Path:     name,
		Size:     info.Size(),
		ModTime:  info.ModTime(),
		Checksum: hex.EncodeToString(hasher.Sum(nil)),
	})
	return nil
}

// writeManifest appends the manifest as the archive's final entry.
func writeManifest(tw *tar.Writer, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	header := &tar.Header{
		Name:    manifestName,
		Size:    int64(len(data)),
		Mode:    0o640,
		ModTime: time.Now(),
	}
	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("write manifest header: %w", err)
	}
	if _, err := tw.Write(data); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// ReadManifest extracts the manifest from a gathered archive, for
// restore-time entity filtering and integrity checks.
func ReadManifest(payload []byte) (*Manifest, error) {
	tr := tar.NewReader(bytes.NewReader(payload))
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil, fmt.Errorf("archive has no %s entry", manifestName)
		}
		if err != nil {
			return nil, fmt.Errorf("read archive: %w", err)
		}
		if header.Name != manifestName {
			continue
		}

		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("read manifest: %w", err)
		}
		var m Manifest
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode manifest: %w", err)
		}
		return &m, nil
	}
}

// EntityOf returns the top-level entity a captured file belongs to.
func EntityOf(name string) string {
	entity, _, _ := strings.Cut(name, "/")
	return entity
}
