// Custodia - Backup and Disaster Recovery Orchestrator
// Copyright 2026 Custodia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/custodia-ops/custodia

package pipeline

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

// testPayload is compressible enough that the gzip and zstd stages
// must shrink it.
var testPayload = []byte(strings.Repeat("custodia backup payload line\n", 512))

func TestBuildRoundTripAllFlagCombinations(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"passthrough", Options{}},
		{"gzip only", Options{Compress: true, Algorithm: "gzip"}},
		{"zstd only", Options{Compress: true, Algorithm: "zstd"}},
		{"encrypt only", Options{Encrypt: true, Secret: "test-secret", KeyID: "k1"}},
		{"gzip and encrypt", Options{Compress: true, Algorithm: "gzip", Encrypt: true, Secret: "test-secret"}},
		{"zstd and encrypt", Options{Compress: true, Algorithm: "zstd", Level: 3, Encrypt: true, Secret: "test-secret"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Build(tt.opts)
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}

			transformed, err := p.Transform(testPayload)
			if err != nil {
				t.Fatalf("Transform() error = %v", err)
			}
			if tt.opts.Compress && len(transformed) >= len(testPayload) {
				t.Errorf("Transform() produced %d bytes, want smaller than %d", len(transformed), len(testPayload))
			}

			recovered, err := p.Reverse(transformed)
			if err != nil {
				t.Fatalf("Reverse() error = %v", err)
			}
			if !bytes.Equal(recovered, testPayload) {
				t.Error("Reverse(Transform()) did not recover original payload byte-exactly")
			}
		})
	}
}

func TestBuildStageOrder(t *testing.T) {
	p, err := Build(Options{Compress: true, Algorithm: "gzip", Encrypt: true, Secret: "s"})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	names := p.StageNames()
	if len(names) != 2 || names[0] != "gzip" || names[1] != "aes-256-gcm" {
		t.Errorf("StageNames() = %v, want compression before encryption", names)
	}
}

func TestBuildRejectsUnknownAlgorithm(t *testing.T) {
	if _, err := Build(Options{Compress: true, Algorithm: "lz77"}); err == nil {
		t.Error("Build() should reject unknown compression algorithm")
	}
}

func TestBuildRejectsEmptySecret(t *testing.T) {
	if _, err := Build(Options{Encrypt: true}); !errors.Is(err, ErrEmptySecret) {
		t.Errorf("Build() error = %v, want ErrEmptySecret", err)
	}
}

func TestEncryptionRejectsTamperedCiphertext(t *testing.T) {
	p, err := Build(Options{Encrypt: true, Secret: "test-secret"})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	sealed, err := p.Transform(testPayload)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	sealed[len(sealed)-1] ^= 0xff

	_, err = p.Reverse(sealed)
	if !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("Reverse() error = %v, want ErrDecryptionFailed", err)
	}

	var pipeErr *Error
	if !errors.As(err, &pipeErr) {
		t.Fatalf("Reverse() error type = %T, want *Error", err)
	}
	if pipeErr.Op != "reverse" {
		t.Errorf("pipeline error op = %s, want reverse", pipeErr.Op)
	}
}

func TestEncryptionWrongSecret(t *testing.T) {
	sealer, err := Build(Options{Encrypt: true, Secret: "right-secret"})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	opener, err := Build(Options{Encrypt: true, Secret: "wrong-secret"})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	sealed, err := sealer.Transform(testPayload)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if _, err := opener.Reverse(sealed); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("Reverse() with wrong secret error = %v, want ErrDecryptionFailed", err)
	}
}

func TestChecksumDetectsCorruption(t *testing.T) {
	sum := Checksum(testPayload)
	if len(sum) != 64 {
		t.Fatalf("Checksum() length = %d, want 64 hex chars", len(sum))
	}
	if Checksum(testPayload) != sum {
		t.Error("Checksum() is not deterministic")
	}

	corrupted := append([]byte(nil), testPayload...)
	corrupted[0] ^= 0x01
	if Checksum(corrupted) == sum {
		t.Error("Checksum() should change when any byte changes")
	}
}

func TestReverseCorruptedCompressedData(t *testing.T) {
	for _, algorithm := range []string{"gzip", "zstd"} {
		t.Run(algorithm, func(t *testing.T) {
			p, err := Build(Options{Compress: true, Algorithm: algorithm})
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			if _, err := p.Reverse([]byte("not compressed data")); err == nil {
				t.Error("Reverse() should fail on garbage input")
			}
		})
	}
}
