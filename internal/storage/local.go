package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/flint-go/flint/pkg/ferrors"
)

// LocalStorage persists serialized tensors (pkg/tensorstore's encoded
// wire-format bytes) and, potentially, cached kernel artifacts as plain
// files under a base directory, one file per key.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a LocalStorage rooted at basePath, creating the
// directory if it does not yet exist.
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if basePath == "" {
		basePath = "./storage"
	}

	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, ferrors.Wrap(ferrors.IOError, "creating local tensor store directory", err)
	}

	return &LocalStorage{basePath: basePath}, nil
}

// Upload writes a tensor's encoded bytes (read from reader) to key.
func (s *LocalStorage) Upload(ctx context.Context, key string, reader io.Reader) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	fullPath := s.getFullPath(key)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return ferrors.Wrap(ferrors.IOError, "creating tensor object directory", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return ferrors.Wrap(ferrors.IOError, "creating tensor object "+key, err)
	}
	defer file.Close()

	if _, err := io.Copy(file, reader); err != nil {
		return ferrors.Wrap(ferrors.IOError, "writing tensor object "+key, err)
	}

	return nil
}

// UploadFile uploads the tensor object already encoded on disk at localPath
// to key, without holding the whole object in memory.
func (s *LocalStorage) UploadFile(ctx context.Context, key string, localPath string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	fullPath := s.getFullPath(key)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return ferrors.Wrap(ferrors.IOError, "creating tensor object directory", err)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return ferrors.Wrap(ferrors.IOError, "opening source tensor file "+localPath, err)
	}
	defer src.Close()

	dst, err := os.Create(fullPath)
	if err != nil {
		return ferrors.Wrap(ferrors.IOError, "creating tensor object "+key, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return ferrors.Wrap(ferrors.IOError, "copying tensor object "+key, err)
	}

	return nil
}

// Download opens the tensor object at key for reading; the caller decodes
// it with pkg/tensorcodec.
func (s *LocalStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	fullPath := s.getFullPath(key)
	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ferrors.New(ferrors.IOError, "tensor object not found: "+key)
		}
		return nil, ferrors.Wrap(ferrors.IOError, "opening tensor object "+key, err)
	}

	return file, nil
}

// DownloadFile downloads the tensor object at key to a local file.
func (s *LocalStorage) DownloadFile(ctx context.Context, key string, localPath string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	fullPath := s.getFullPath(key)

	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return ferrors.Wrap(ferrors.IOError, "creating destination directory", err)
	}

	src, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return ferrors.New(ferrors.IOError, "tensor object not found: "+key)
		}
		return ferrors.Wrap(ferrors.IOError, "opening tensor object "+key, err)
	}
	defer src.Close()

	dst, err := os.Create(localPath)
	if err != nil {
		return ferrors.Wrap(ferrors.IOError, "creating destination file "+localPath, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return ferrors.Wrap(ferrors.IOError, "copying tensor object "+key, err)
	}

	return nil
}

// Delete removes the tensor object at key. Deleting an already-absent
// object is not an error, matching pkg/tensorstore's expectation that a
// superseded tensor can be cleaned up idempotently.
func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	fullPath := s.getFullPath(key)
	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return ferrors.Wrap(ferrors.IOError, "deleting tensor object "+key, err)
	}

	return nil
}

// Exists reports whether a tensor object is present at key.
func (s *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	fullPath := s.getFullPath(key)
	_, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, ferrors.Wrap(ferrors.IOError, "checking tensor object "+key, err)
	}

	return true, nil
}

// GetURL returns the filesystem path backing key, standing in for a public
// URL the way the COS-backed implementation returns an HTTP(S) one.
func (s *LocalStorage) GetURL(key string) string {
	return s.getFullPath(key)
}

// getFullPath resolves key against the store's base directory.
func (s *LocalStorage) getFullPath(key string) string {
	return filepath.Join(s.basePath, key)
}

// GetBasePath returns the directory tensor objects are stored under.
func (s *LocalStorage) GetBasePath() string {
	return s.basePath
}
