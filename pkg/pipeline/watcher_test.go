package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threeoaks/csvpipe/pkg/jobstore"
	jobsqlite "github.com/threeoaks/csvpipe/pkg/jobstore/sqlite"
	"github.com/threeoaks/csvpipe/pkg/match"
	queuemem "github.com/threeoaks/csvpipe/pkg/queue/memory"
	filestore "github.com/threeoaks/csvpipe/pkg/storage/file"
)

func newTestWatcher(t *testing.T, env *testEnv, matcher *match.Matcher) *Watcher {
	t.Helper()
	w, err := NewWatcher(env.objects, env.validator, matcher, WatcherConfig{
		Bucket: testBucket,
	}, nil)
	require.NoError(t, err)
	return w
}

func TestWatcherRequiresBucket(t *testing.T) {
	env := newTestEnv(t)
	_, err := NewWatcher(env.objects, env.validator, nil, WatcherConfig{}, nil)
	require.Error(t, err)
}

func TestWatcherDispatchesNewUploads(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w := newTestWatcher(t, env, nil)

	env.putUpload(t, "uploads/a.csv", "id,value,timestamp\n1,10,t\n")
	env.putUpload(t, "uploads/b.csv", "id,value,timestamp\n2,20,t\n")
	// Outside the watched prefix.
	env.putUpload(t, "archive/c.csv", "id,value,timestamp\n3,30,t\n")

	n, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, id := range []string{"a", "b"} {
		job, err := env.jobs.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, jobstore.StatusPending, job.Status)
	}
	_, err = env.jobs.Get(ctx, "c")
	assert.ErrorIs(t, err, jobstore.ErrNotFound)
}

func TestWatcherSkipsSeenKeys(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w := newTestWatcher(t, env, nil)

	env.putUpload(t, "uploads/a.csv", "id,value,timestamp\n1,10,t\n")

	n, err := w.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// Second cycle sees the same listing but dispatches nothing.
	n, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// A new key is picked up alongside the old one.
	env.putUpload(t, "uploads/b.csv", "id,value,timestamp\n2,20,t\n")
	n, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestWatcherPrunesRemovedKeys(t *testing.T) {
	baseDir := t.TempDir()
	objects, err := filestore.New(filestore.Config{BaseDir: baseDir})
	require.NoError(t, err)

	jobs, err := jobsqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = jobs.Close() })

	validator := NewValidator(objects, jobs, queuemem.New(), nil)
	w, err := NewWatcher(objects, validator, nil, WatcherConfig{Bucket: testBucket}, nil)
	require.NoError(t, err)

	ctx := context.Background()
	content := "id,value,timestamp\n1,10,t\n"
	require.NoError(t, objects.Put(ctx, testBucket, "uploads/a.csv", strings.NewReader(content), int64(len(content)), "text/csv"))

	n, err := w.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.Len(t, w.seen, 1)

	// The upload is removed; the next complete cycle forgets it.
	require.NoError(t, os.Remove(filepath.Join(baseDir, testBucket, "uploads", "a.csv")))
	n, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, w.seen)

	// Re-uploading the same key dispatches it again.
	require.NoError(t, objects.Put(ctx, testBucket, "uploads/a.csv", strings.NewReader(content), int64(len(content)), "text/csv"))
	n, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestWatcherAppliesMatcher(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	matcher, err := match.New(match.Config{
		Includes: []string{"**/*.csv"},
		Excludes: []string{"tmp/**"},
	})
	require.NoError(t, err)
	w := newTestWatcher(t, env, matcher)

	env.putUpload(t, "uploads/orders.csv", "id,value,timestamp\n1,10,t\n")
	env.putUpload(t, "uploads/notes.txt", "not a csv")
	env.putUpload(t, "uploads/tmp/scratch.csv", "id,value,timestamp\n9,90,t\n")

	n, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = env.jobs.Get(ctx, "orders")
	assert.NoError(t, err)
	_, err = env.jobs.Get(ctx, "notes")
	assert.ErrorIs(t, err, jobstore.ErrNotFound)
	_, err = env.jobs.Get(ctx, "scratch")
	assert.ErrorIs(t, err, jobstore.ErrNotFound)
}
