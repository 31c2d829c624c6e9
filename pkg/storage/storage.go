// Package storage defines the object store boundary used by both pipeline
// stages and the uploads watcher.
//
// Backends implement a minimal surface: get, put, and prefix listing.
// Authentication uses SDK default credential chains - backends should not
// implement custom auth logic.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// Store abstracts object storage operations.
//
// Implementations should:
//   - Surface failures through the sentinel errors below
//   - Be safe for concurrent use
type Store interface {
	// Get returns the object body and its length.
	// Returns ErrNotFound if the object does not exist.
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error)

	// Put creates or overwrites an object. Overwrites are idempotent by
	// construction; a redelivered converter invocation rewrites the same
	// bytes.
	Put(ctx context.Context, bucket, key string, body io.Reader, contentLength int64, contentType string) error

	// List returns a page of objects with the given prefix.
	// Use ContinuationToken from ListResult for subsequent pages.
	List(ctx context.Context, bucket string, opts ListOptions) (*ListResult, error)

	// Close releases any resources held by the store.
	Close() error
}

// ListOptions configures a List operation.
type ListOptions struct {
	// Prefix filters results to keys starting with this value.
	Prefix string

	// ContinuationToken resumes listing from a previous ListResult.
	ContinuationToken string

	// MaxKeys limits the number of objects returned per page.
	// Zero uses the backend default (typically 1000).
	MaxKeys int
}

// ListResult contains a page of objects from a List operation.
type ListResult struct {
	Objects []ObjectSummary

	// ContinuationToken is used to retrieve the next page.
	// Empty string indicates no more pages.
	ContinuationToken string

	IsTruncated bool
}

// ObjectSummary contains basic metadata returned from List operations.
type ObjectSummary struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

// Backend identifies a storage backend.
type Backend string

const (
	// BackendS3 represents AWS S3 or S3-compatible storage.
	BackendS3 Backend = "s3"

	// BackendFile represents a local filesystem tree (buckets as
	// directories under a base dir).
	BackendFile Backend = "file"
)

func (b Backend) String() string {
	return string(b)
}

// Sentinel errors for storage operations.
var (
	// ErrNotFound indicates the requested object does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrAccessDenied indicates insufficient permissions.
	ErrAccessDenied = errors.New("access denied")

	// ErrBucketNotFound indicates the bucket does not exist.
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrThrottled indicates the request was rate limited by the backend.
	ErrThrottled = errors.New("request throttled")

	// ErrUnavailable indicates the backend service is unavailable.
	ErrUnavailable = errors.New("storage unavailable")
)

// StorageError wraps backend-specific errors with context.
type StorageError struct {
	// Op is the operation that failed (e.g., "Get", "Put").
	Op string

	// Backend is the backend type (e.g., "s3").
	Backend Backend

	// Bucket is the bucket name, if applicable.
	Bucket string

	// Key is the object key, if applicable.
	Key string

	// Err is the underlying error.
	Err error
}

func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s %s: %s/%s: %v", e.Backend, e.Op, e.Bucket, e.Key, e.Err)
	}
	if e.Bucket != "" {
		return fmt.Sprintf("%s %s: %s: %v", e.Backend, e.Op, e.Bucket, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if the error indicates an object was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAccessDenied returns true if the error indicates insufficient permissions.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}
