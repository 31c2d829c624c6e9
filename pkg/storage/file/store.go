// Package file implements storage.Store over the local filesystem.
//
// Buckets map to directories under BaseDir; keys are relative paths below
// a bucket. This backend drives the local deployment mode and the pipeline
// tests.
package file

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/threeoaks/csvpipe/pkg/storage"
)

// Store implements storage.Store for local filesystem paths.
type Store struct {
	baseDir string
}

var _ storage.Store = (*Store)(nil)

type Config struct {
	BaseDir string
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseDir) == "" {
		return fmt.Errorf("base dir is required")
	}
	return nil
}

func New(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Store{baseDir: filepath.Clean(cfg.BaseDir)}, nil
}

func (s *Store) Close() error { return nil }

func (s *Store) Get(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error) {
	_ = ctx
	full, err := s.fullPath(bucket, key)
	if err != nil {
		return nil, 0, s.wrapError("Get", bucket, key, err)
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, 0, s.wrapError("Get", bucket, key, err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, s.wrapError("Get", bucket, key, err)
	}
	if st.IsDir() {
		_ = f.Close()
		return nil, 0, &storage.StorageError{Op: "Get", Backend: storage.BackendFile, Bucket: bucket, Key: key, Err: storage.ErrNotFound}
	}
	return f, st.Size(), nil
}

func (s *Store) Put(ctx context.Context, bucket, key string, body io.Reader, contentLength int64, contentType string) error {
	_ = ctx
	_ = contentLength
	_ = contentType // no metadata store for local files
	full, err := s.fullPath(bucket, key)
	if err != nil {
		return s.wrapError("Put", bucket, key, err)
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return s.wrapError("Put", bucket, key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), "csvpipe-put-*")
	if err != nil {
		return s.wrapError("Put", bucket, key, err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := io.Copy(tmp, body); err != nil {
		return s.wrapError("Put", bucket, key, err)
	}
	if err := tmp.Close(); err != nil {
		return s.wrapError("Put", bucket, key, err)
	}

	if err := os.Rename(tmpName, full); err != nil {
		return s.wrapError("Put", bucket, key, err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, bucket string, opts storage.ListOptions) (*storage.ListResult, error) {
	_ = ctx
	maxKeys := opts.MaxKeys
	if maxKeys <= 0 {
		maxKeys = 1000
	}

	prefix := strings.TrimPrefix(opts.Prefix, "/")
	keys, err := s.collectKeys(bucket, prefix)
	if err != nil {
		return nil, s.wrapError("List", bucket, opts.Prefix, err)
	}
	sort.Strings(keys)

	start := 0
	if opts.ContinuationToken != "" {
		// Start strictly after the last returned key.
		idx := sort.SearchStrings(keys, opts.ContinuationToken)
		for idx < len(keys) && keys[idx] <= opts.ContinuationToken {
			idx++
		}
		start = idx
	}

	end := start + maxKeys
	if end > len(keys) {
		end = len(keys)
	}

	objects := make([]storage.ObjectSummary, 0, end-start)
	for _, k := range keys[start:end] {
		full, err := s.fullPath(bucket, k)
		if err != nil {
			continue
		}
		st, err := os.Stat(full)
		if err != nil || st.IsDir() {
			continue
		}
		objects = append(objects, storage.ObjectSummary{Key: k, Size: st.Size(), LastModified: st.ModTime()})
	}

	res := &storage.ListResult{Objects: objects}
	if end < len(keys) {
		res.IsTruncated = true
		res.ContinuationToken = keys[end-1]
	}
	return res, nil
}

func (s *Store) fullPath(bucket, key string) (string, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" || strings.ContainsAny(bucket, "/\\") {
		return "", fmt.Errorf("invalid bucket name")
	}
	key = strings.TrimPrefix(strings.TrimSpace(key), "/")
	// Prevent path traversal.
	clean := filepath.Clean("/" + key)
	clean = strings.TrimPrefix(clean, "/")
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("invalid key path")
	}
	return filepath.Join(s.baseDir, bucket, filepath.FromSlash(clean)), nil
}

func (s *Store) collectKeys(bucket, prefix string) ([]string, error) {
	root, err := s.fullPath(bucket, prefix)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(root); err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}

	bucketRoot := filepath.Join(s.baseDir, bucket)
	var keys []string
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(bucketRoot, path)
		if err != nil {
			return nil
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	return keys, nil
}

func (s *Store) wrapError(op, bucket, key string, err error) error {
	wrapped := &storage.StorageError{Op: op, Backend: storage.BackendFile, Bucket: bucket, Key: key, Err: err}
	if err == nil {
		wrapped.Err = fmt.Errorf("unknown error")
	}
	// Normalize common filesystem errors to storage sentinels.
	if os.IsNotExist(err) {
		wrapped.Err = storage.ErrNotFound
	}
	if os.IsPermission(err) {
		wrapped.Err = storage.ErrAccessDenied
	}
	return wrapped
}
