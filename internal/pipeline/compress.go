// Custodia - Backup and Disaster Recovery Orchestrator
// Copyright 2026 Custodia Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/custodia-ops/custodia

package pipeline

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// newCompressionStage selects the compression implementation by name.
func newCompressionStage(algorithm string, level int) (Stage, error) {
	switch algorithm {
	case "", "gzip":
		return newGzipStage(level)
	case "zstd":
		return newZstdStage(level)
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", algorithm)
	}
}

// gzipStage compresses with compress/gzip at a fixed level.
type gzipStage struct {
	level int
}

func newGzipStage(level int) (*gzipStage, error) {
	if level == 0 {
		level = gzip.DefaultCompression
	}
	if level < gzip.BestSpeed || level > gzip.BestCompression {
		return nil, fmt.Errorf("gzip level must be between %d and %d, got %d", gzip.BestSpeed, gzip.BestCompression, level)
	}
	return &gzipStage{level: level}, nil
}

func (s *gzipStage) Name() string { return "gzip" }

func (s *gzipStage) Apply(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gz, err := gzip.NewWriterLevel(&buf, s.level)
	if err != nil {
		return nil, err
	}
	if _, err := gz.Write(data); err != nil {
		gz.Close() //nolint:errcheck // write error takes precedence
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *gzipStage) Reverse(data []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gz.Close() //nolint:errcheck // reader close cannot fail after ReadAll

	out, err := io.ReadAll(gz)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// zstdStage compresses with klauspost/compress zstd. The encoder and
// decoder are created once and reused; EncodeAll/DecodeAll are safe for
// concurrent use.
type zstdStage struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newZstdStage(level int) (*zstdStage, error) {
	if level == 0 {
		level = 3
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &zstdStage{enc: enc, dec: dec}, nil
}

func (s *zstdStage) Name() string { return "zstd" }

func (s *zstdStage) Apply(data []byte) ([]byte, error) {
	return s.enc.EncodeAll(data, nil), nil
}

func (s *zstdStage) Reverse(data []byte) ([]byte, error) {
	return s.dec.DecodeAll(data, nil)
}
