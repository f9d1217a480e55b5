package worker

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/jobintel/internal/config"
	"github.com/sells-group/jobintel/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

// seedJob creates a posting and returns its ID.
func seedJob(t *testing.T, st store.Store, url string) string {
	t.Helper()
	job, err := st.CreateOrGetJob(context.Background(), url)
	require.NoError(t, err)
	return job.ID
}

func TestDrainOnce_ProcessesDueItems(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	job1 := seedJob(t, st, "https://acme.com/jobs/1")
	job2 := seedJob(t, st, "https://acme.com/jobs/2")
	job3 := seedJob(t, st, "https://acme.com/jobs/3")

	past := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, st.Enqueue(ctx, job1, "https://acme.com/jobs/1", past))
	require.NoError(t, st.Enqueue(ctx, job2, "https://acme.com/jobs/2", past))
	// Not yet due; must stay queued.
	require.NoError(t, st.Enqueue(ctx, job3, "https://acme.com/jobs/3", time.Now().UTC().Add(time.Hour)))

	var mu sync.Mutex
	seen := map[string]bool{}
	w := New(st, func(_ context.Context, jobID, _ string) error {
		mu.Lock()
		defer mu.Unlock()
		seen[jobID] = true
		return nil
	}, config.WorkerConfig{Concurrency: 2, BatchSize: 10})

	n, err := w.DrainOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, seen[job1])
	assert.True(t, seen[job2])
	assert.False(t, seen[job3])

	// Claimed items are gone; the future item remains.
	n, err = w.DrainOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDrainOnce_ExtractionFailureKeepsDraining(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	job1 := seedJob(t, st, "https://acme.com/jobs/1")
	job2 := seedJob(t, st, "https://acme.com/jobs/2")

	past := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, st.Enqueue(ctx, job1, "https://acme.com/jobs/1", past))
	require.NoError(t, st.Enqueue(ctx, job2, "https://acme.com/jobs/2", past))

	var calls int
	var mu sync.Mutex
	w := New(st, func(_ context.Context, jobID, _ string) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if jobID == job1 {
			return eris.New("fetch timed out")
		}
		return nil
	}, config.WorkerConfig{Concurrency: 1, BatchSize: 10})

	n, err := w.DrainOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, calls)
}

func TestStart_StopsOnContextCancel(t *testing.T) {
	st := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	w := New(st, func(context.Context, string, string) error { return nil },
		config.WorkerConfig{PollSecs: 1})

	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("worker did not stop on cancel")
	}
}
