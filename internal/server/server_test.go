package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/jobintel/internal/config"
	"github.com/sells-group/jobintel/internal/model"
	"github.com/sells-group/jobintel/internal/store"
)

type fakePipeline struct {
	delay time.Duration
	calls chan string
}

func (f *fakePipeline) Run(ctx context.Context, jobID, _ string) (*model.Attempt, error) {
	if f.calls != nil {
		f.calls <- jobID
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &model.Attempt{ID: "a1", JobID: jobID, Status: model.AttemptStatusCompleted}, nil
}

func newTestServer(t *testing.T, pipeline Pipeline, extract config.ExtractConfig) (*httptest.Server, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	srv := httptest.NewServer(New(st, pipeline, config.ServerConfig{}, extract).Handler())
	t.Cleanup(srv.Close)
	return srv, st
}

func postExtract(t *testing.T, srv *httptest.Server, body map[string]any) (*http.Response, map[string]json.RawMessage) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+"/api/extract", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestExtract_SyncCompletesWithinBound(t *testing.T) {
	srv, _ := newTestServer(t, &fakePipeline{},
		config.ExtractConfig{QuickWaitSecs: 5})

	resp, body := postExtract(t, srv, map[string]any{"url": "https://acme.com/jobs/1"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var status string
	require.NoError(t, json.Unmarshal(body["status"], &status))
	assert.Equal(t, "done", status)
	assert.Contains(t, body, "attempt")
	assert.Contains(t, body, "job")
}

func TestExtract_SyncTimeoutQueuesFollowUp(t *testing.T) {
	pipeline := &fakePipeline{delay: 3 * time.Second}
	srv, st := newTestServer(t, pipeline,
		config.ExtractConfig{QuickWaitSecs: 1, FollowUpDelaySecs: 1})

	resp, body := postExtract(t, srv, map[string]any{"url": "https://acme.com/jobs/2"})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var status string
	require.NoError(t, json.Unmarshal(body["status"], &status))
	assert.Equal(t, "pending", status)

	// The follow-up check lands on the queue with its delay applied.
	time.Sleep(1500 * time.Millisecond)
	items, err := st.DequeueDue(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func TestExtract_AsyncEnqueues(t *testing.T) {
	calls := make(chan string, 1)
	srv, st := newTestServer(t, &fakePipeline{calls: calls}, config.ExtractConfig{})

	resp, body := postExtract(t, srv, map[string]any{"url": "https://acme.com/jobs/3", "async": true})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var status string
	require.NoError(t, json.Unmarshal(body["status"], &status))
	assert.Equal(t, "queued", status)

	select {
	case <-calls:
		t.Fatal("async path must not run the pipeline inline")
	default:
	}

	items, err := st.DequeueDue(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func TestExtract_BadRequests(t *testing.T) {
	srv, _ := newTestServer(t, &fakePipeline{}, config.ExtractConfig{})

	resp, err := http.Post(srv.URL+"/api/extract", "application/json", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp2, _ := postExtract(t, srv, map[string]any{"url": ""})
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}

func TestGetJobAndAttempts(t *testing.T) {
	srv, st := newTestServer(t, &fakePipeline{}, config.ExtractConfig{})
	ctx := context.Background()

	job, err := st.CreateOrGetJob(ctx, "https://acme.com/jobs/4")
	require.NoError(t, err)
	attempt, err := st.CreateAttempt(ctx, job.ID, job.URL)
	require.NoError(t, err)
	require.NoError(t, st.AppendEvent(ctx, &model.PipelineEvent{
		AttemptID: attempt.ID,
		EventType: model.StepFetch,
		StepOrder: 1,
		Status:    model.EventStatusSuccess,
		StartedAt: time.Now().UTC(),
	}))

	resp, err := http.Get(srv.URL + "/api/jobs/" + job.ID)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var got model.JobPosting
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, job.URL, got.URL)

	resp2, err := http.Get(srv.URL + "/api/attempts/" + attempt.ID)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)

	var detail struct {
		Attempt model.Attempt         `json:"attempt"`
		Events  []model.PipelineEvent `json:"events"`
	}
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&detail))
	assert.Equal(t, attempt.ID, detail.Attempt.ID)
	require.Len(t, detail.Events, 1)

	resp3, err := http.Get(srv.URL + "/api/jobs/missing")
	require.NoError(t, err)
	resp3.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp3.StatusCode)
}

func TestListAttempts_StatusFilter(t *testing.T) {
	srv, st := newTestServer(t, &fakePipeline{}, config.ExtractConfig{})
	ctx := context.Background()

	job, err := st.CreateOrGetJob(ctx, "https://acme.com/jobs/5")
	require.NoError(t, err)

	dead, err := st.CreateAttempt(ctx, job.ID, job.URL)
	require.NoError(t, err)
	require.NoError(t, dead.Transition(model.AttemptStatusFetching))
	dead.RecordFailure(model.StepFetch, "timeout")
	require.NoError(t, dead.Transition(model.AttemptStatusFailed))
	require.NoError(t, dead.Transition(model.AttemptStatusRetrying))
	require.NoError(t, dead.Transition(model.AttemptStatusDeadLetter))
	require.NoError(t, st.UpdateAttempt(ctx, dead))

	_, err = st.CreateAttempt(ctx, job.ID, job.URL)
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/api/attempts?status=dead_letter")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var attempts []model.Attempt
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&attempts))
	require.Len(t, attempts, 1)
	assert.Equal(t, dead.ID, attempts[0].ID)
}
