package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threeoaks/csvpipe/pkg/jobstore"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newJob(id string) *jobstore.Job {
	return &jobstore.Job{
		JobID:          id,
		Status:         jobstore.StatusValidating,
		SourceLocation: "s3://bucket/uploads/" + id + ".csv",
		StartedAt:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Message:        "Validating CSV structure",
	}
}

func TestCreateAndGet(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newJob("orders")))

	got, err := store.Get(ctx, "orders")
	require.NoError(t, err)

	assert.Equal(t, "orders", got.JobID)
	assert.Equal(t, jobstore.StatusValidating, got.Status)
	assert.Equal(t, "s3://bucket/uploads/orders.csv", got.SourceLocation)
	assert.Nil(t, got.OutputPrefix)
	assert.Nil(t, got.FinishedAt)
	assert.Zero(t, got.RowCount)
	assert.Zero(t, got.ErrorCount)
	assert.True(t, got.StartedAt.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestGetNotFound(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, jobstore.ErrNotFound)
}

func TestCreateOverwritesPriorRecord(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first := newJob("orders")
	require.NoError(t, store.Create(ctx, first))
	require.NoError(t, store.Update(ctx, "orders", jobstore.Update{
		Status:     jobstore.StatusPtr(jobstore.StatusFailed),
		Message:    jobstore.StringPtr("Missing required columns: [timestamp]"),
		FinishedAt: jobstore.TimePtr(time.Now().UTC()),
	}))

	// Duplicate upload of the same filename: the prior run is silently
	// replaced.
	require.NoError(t, store.Create(ctx, newJob("orders")))

	got, err := store.Get(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, jobstore.StatusValidating, got.Status)
	assert.Nil(t, got.FinishedAt)
	assert.Equal(t, "Validating CSV structure", got.Message)
}

func TestUpdateIsFieldLevel(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newJob("orders")))

	require.NoError(t, store.Update(ctx, "orders", jobstore.Update{
		Status:  jobstore.StatusPtr(jobstore.StatusPending),
		Message: jobstore.StringPtr("Queued for processing"),
	}))

	got, err := store.Get(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, jobstore.StatusPending, got.Status)
	assert.Equal(t, "Queued for processing", got.Message)
	// Untouched fields survive.
	assert.Equal(t, "s3://bucket/uploads/orders.csv", got.SourceLocation)
	assert.Nil(t, got.FinishedAt)

	finished := time.Date(2024, 1, 1, 0, 5, 0, 0, time.UTC)
	prefix := "processed/orders/"
	require.NoError(t, store.Update(ctx, "orders", jobstore.Update{
		Status:       jobstore.StatusPtr(jobstore.StatusCompleted),
		Message:      jobstore.StringPtr("Processed 3 rows"),
		RowCount:     jobstore.IntPtr(3),
		ErrorCount:   jobstore.IntPtr(0),
		OutputPrefix: &prefix,
		FinishedAt:   &finished,
	}))

	got, err = store.Get(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, jobstore.StatusCompleted, got.Status)
	assert.Equal(t, 3, got.RowCount)
	require.NotNil(t, got.OutputPrefix)
	assert.Equal(t, "processed/orders/", *got.OutputPrefix)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, got.FinishedAt.Equal(finished))
}

func TestUpdateMissingJob(t *testing.T) {
	store := openTestStore(t)

	err := store.Update(context.Background(), "ghost", jobstore.Update{
		Status: jobstore.StatusPtr(jobstore.StatusProcessing),
	})
	assert.ErrorIs(t, err, jobstore.ErrNotFound)
}

func TestUpdateEmptyIsNoop(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newJob("orders")))
	require.NoError(t, store.Update(ctx, "orders", jobstore.Update{}))

	got, err := store.Get(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, jobstore.StatusValidating, got.Status)
}

func TestOpenCreatesParentDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "jobs.db")

	store, err := Open(context.Background(), path)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	require.NoError(t, store.Create(context.Background(), newJob("orders")))

	got, err := store.Get(context.Background(), "orders")
	require.NoError(t, err)
	assert.Equal(t, "orders", got.JobID)
}
