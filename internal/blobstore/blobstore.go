// Package blobstore is the Blob Layer: it persists object payloads under
// base_path/<bucket>/<key> on the local filesystem. It does not read or
// interpret keys beyond validating them for path safety; it never touches
// the Catalog.
package blobstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/mehdy/anbar/internal/errs"
)

// Store is the Blob Layer rooted at BasePath.
type Store struct {
	BasePath string
}

// New returns a Store rooted at basePath. basePath is created if absent.
func New(basePath string) (*Store, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, errs.Wrap(errs.KindIO, "create base path", err)
	}
	return &Store{BasePath: basePath}, nil
}

// validateComponent rejects path traversal, absolute-path escape, and NUL
// bytes in a bucket name or object key. Path segments become filesystem
// components verbatim, so the caller cannot be trusted to pre-sanitize
// them.
func validateComponent(name string) error {
	if name == "" {
		return errs.New(errs.KindMalformedAuth, "empty path component")
	}
	if strings.ContainsRune(name, 0) {
		return errs.New(errs.KindMalformedAuth, "path component contains NUL")
	}
	clean := filepath.Clean(name)
	if clean != name || clean == ".." || strings.HasPrefix(clean, "../") || filepath.IsAbs(clean) {
		return errs.New(errs.KindMalformedAuth, "path component escapes its parent")
	}
	return nil
}

func (s *Store) bucketDir(bucket string) (string, error) {
	if err := validateComponent(bucket); err != nil {
		return "", err
	}
	return filepath.Join(s.BasePath, bucket), nil
}

func (s *Store) objectPath(bucket, key string) (string, error) {
	dir, err := s.bucketDir(bucket)
	if err != nil {
		return "", err
	}
	// A key may contain internal slashes (S3 keys commonly do); each
	// slash-delimited segment is validated independently so ".." cannot
	// hide inside a deeper segment.
	for _, seg := range strings.Split(key, "/") {
		if err := validateComponent(seg); err != nil {
			return "", err
		}
	}
	return filepath.Join(dir, filepath.FromSlash(key)), nil
}

// EnsureBucketDir creates base_path/<name> if absent; no-op if present.
func (s *Store) EnsureBucketDir(_ context.Context, name string) error {
	dir, err := s.bucketDir(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.Wrap(errs.KindIO, "create bucket directory", err)
	}
	return nil
}

// WriteBlob writes all of data to a new temp file beside
// base_path/<bucket>/<key>, forces a sync, and only then makes the write
// visible by atomically renaming the temp file over the target — partial
// writes are never observable as success.
func (s *Store) WriteBlob(_ context.Context, bucket, key string, data []byte) error {
	path, err := s.objectPath(bucket, key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.Wrap(errs.KindIO, "create object parent directory", err)
	}

	tmp, err := os.CreateTemp(dir, ".anbar-tmp-*")
	if err != nil {
		return errs.Wrap(errs.KindIO, "create temp file", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errs.Wrap(errs.KindIO, "write blob", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errs.Wrap(errs.KindIO, "sync blob", err)
	}
	if err := tmp.Close(); err != nil {
		return errs.Wrap(errs.KindIO, "close blob", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errs.Wrap(errs.KindIO, "commit blob", err)
	}
	return nil
}

// ReadBlob reads the entire payload at (bucket, key), or NotFound if the
// file is absent.
func (s *Store) ReadBlob(_ context.Context, bucket, key string) ([]byte, error) {
	path, err := s.objectPath(bucket, key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errs.New(errs.KindNotFound, "object not found")
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindIO, "read blob", err)
	}
	return data, nil
}

// RemoveBlob removes the file at (bucket, key), or NotFound if absent.
func (s *Store) RemoveBlob(_ context.Context, bucket, key string) error {
	path, err := s.objectPath(bucket, key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); os.IsNotExist(err) {
		return errs.New(errs.KindNotFound, "object not found")
	} else if err != nil {
		return errs.Wrap(errs.KindIO, "remove blob", err)
	}
	return nil
}

// RemoveBucketDir recursively removes base_path/<name>.
func (s *Store) RemoveBucketDir(_ context.Context, name string) error {
	dir, err := s.bucketDir(name)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return errs.Wrap(errs.KindIO, "remove bucket directory", err)
	}
	return nil
}
