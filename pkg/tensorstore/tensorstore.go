// Package tensorstore persists serialized tensors to local disk or object
// storage, per spec §6's "an optional kernel-source cache on disk is
// permitted" sibling requirement for tensors themselves: Save/Load wrap
// pkg/tensorcodec's wire format with an optional compression pass before
// handing bytes to an internal/storage.Storage backend.
package tensorstore

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/flint-go/flint/internal/storage"
	"github.com/flint-go/flint/pkg/compression"
	"github.com/flint-go/flint/pkg/config"
	"github.com/flint-go/flint/pkg/tensorcodec"
)

// Store saves and loads tensors against a local or object storage backend,
// with an optional compression pass over the wire-format bytes.
type Store struct {
	backend    storage.Storage
	compressor compression.Compressor
}

// New builds a Store from the engine's storage configuration, dispatching
// to local disk or Tencent COS exactly like internal/storage.NewStorage,
// and selecting a compressor by cfg.Compress: "" or "none" (no
// compression, the default), "gzip", or "zstd"; any other value is an
// error.
func New(cfg *config.StorageConfig) (*Store, error) {
	backend, err := storage.NewStorage(cfg)
	if err != nil {
		return nil, fmt.Errorf("tensorstore: %w", err)
	}

	var c compression.Compressor
	switch cfg.Compress {
	case "", "none":
		c = compression.NewNoOpCompressor()
	case "gzip":
		c = compression.NewGzipCompressor(compression.LevelDefault)
	case "zstd":
		c, err = compression.NewZstdCompressor(compression.LevelDefault)
		if err != nil {
			return nil, fmt.Errorf("tensorstore: %w", err)
		}
	default:
		return nil, fmt.Errorf("tensorstore: unknown compression %q", cfg.Compress)
	}

	return &Store{backend: backend, compressor: c}, nil
}

// Save encodes t in the wire format, compresses it, and uploads it under
// key.
func (s *Store) Save(ctx context.Context, key string, t *tensorcodec.Tensor) error {
	var buf bytes.Buffer
	if err := tensorcodec.Encode(&buf, t); err != nil {
		return fmt.Errorf("tensorstore: encode: %w", err)
	}
	compressed, err := s.compressor.Compress(buf.Bytes())
	if err != nil {
		return fmt.Errorf("tensorstore: compress: %w", err)
	}
	if err := s.backend.Upload(ctx, key, bytes.NewReader(compressed)); err != nil {
		return fmt.Errorf("tensorstore: %w", err)
	}
	return nil
}

// Load downloads the object at key, decompresses it, and decodes it as a
// tensor.
func (s *Store) Load(ctx context.Context, key string) (*tensorcodec.Tensor, error) {
	rc, err := s.backend.Download(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("tensorstore: %w", err)
	}
	defer rc.Close()

	compressed, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("tensorstore: read: %w", err)
	}
	raw, err := s.compressor.Decompress(compressed)
	if err != nil {
		return nil, fmt.Errorf("tensorstore: decompress: %w", err)
	}
	t, err := tensorcodec.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("tensorstore: decode: %w", err)
	}
	return t, nil
}

// Delete removes the object at key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.backend.Delete(ctx, key); err != nil {
		return fmt.Errorf("tensorstore: %w", err)
	}
	return nil
}

// Exists reports whether an object exists at key.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := s.backend.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("tensorstore: %w", err)
	}
	return ok, nil
}
