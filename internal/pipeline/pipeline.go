// Custodia - Backup and Disaster Recovery Orchestrator
// Copyright 2026 Custodia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/custodia-ops/custodia

// Package pipeline transforms raw backup payloads through an ordered set
// of reversible stages and computes artifact checksums.
//
// Stage order is fixed: compress, then encrypt, so that encryption always
// operates on the smallest possible payload. Reverse applies the exact
// inverse in the opposite order: decrypt, then decompress. Checksums are
// computed over the final (post-transform) bytes so that verification
// detects corruption introduced anywhere in storage or transit.
package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Stage is one reversible payload transformation.
type Stage interface {
	// Name identifies the stage in errors and audit events.
	Name() string

	// Apply transforms the payload in the forward direction.
	Apply(data []byte) ([]byte, error)

	// Reverse undoes Apply byte-exactly.
	Reverse(data []byte) ([]byte, error)
}

// Error reports which stage of the pipeline failed and in which
// direction. A job must never be cataloged as completed when any stage
// fails.
type Error struct {
	Stage string
	Op    string // "apply" or "reverse"
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("pipeline stage %s: %s failed: %v", e.Stage, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Pipeline applies stages in order and reverses them in opposite order.
type Pipeline struct {
	stages []Stage
}

// New creates a pipeline from the given stages. Stage order is the
// forward (transform) order.
func New(stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages}
}

// Options selects which stages a policy's flags enable.
type Options struct {
	// Compress enables the compression stage.
	Compress bool

	// Algorithm is the compression algorithm: gzip or zstd.
	Algorithm string

	// Level is the compression level (gzip 1-9; zstd fastest..best).
	Level int

	// Encrypt enables the AES-256-GCM encryption stage.
	Encrypt bool

	// Secret is the key material the encryption key is derived from.
	Secret string

	// KeyID labels the key for rotation support.
	KeyID string
}

// Build assembles a pipeline from policy flags: compression first, then
// encryption.
func Build(opts Options) (*Pipeline, error) {
	var stages []Stage

	if opts.Compress {
		stage, err := newCompressionStage(opts.Algorithm, opts.Level)
		if err != nil {
			return nil, err
		}
		stages = append(stages, stage)
	}

	if opts.Encrypt {
		stage, err := NewEncryptionStage(opts.Secret, opts.KeyID)
		if err != nil {
			return nil, err
		}
		stages = append(stages, stage)
	}

	return New(stages...), nil
}

// Transform applies all stages in order.
func (p *Pipeline) Transform(data []byte) ([]byte, error) {
	out := data
	for _, stage := range p.stages {
		next, err := stage.Apply(out)
		if err != nil {
			return nil, &Error{Stage: stage.Name(), Op: "apply", Err: err}
		}
		out = next
	}
	return out, nil
}

// Reverse applies the inverse of every stage in opposite order,
// recovering the original payload byte-exactly.
func (p *Pipeline) Reverse(data []byte) ([]byte, error) {
	out := data
	for i := len(p.stages) - 1; i >= 0; i-- {
		stage := p.stages[i]
		next, err := stage.Reverse(out)
		if err != nil {
			return nil, &Error{Stage: stage.Name(), Op: "reverse", Err: err}
		}
		out = next
	}
	return out, nil
}

// StageNames returns the forward-order stage names.
func (p *Pipeline) StageNames() []string {
	names := make([]string, len(p.stages))
	for i, stage := range p.stages {
		names[i] = stage.Name()
	}
	return names
}

// Checksum returns the hex-encoded SHA-256 digest of data. It is
// computed over post-transform bytes when sealing an artifact and over
// stored bytes when verifying one.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
