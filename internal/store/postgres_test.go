package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/jobintel/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := NewPostgresWithPool(mock)
	return s, mock
}

func TestPostgresStore_GetAttempt_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .* FROM extraction_attempts WHERE id = \$1`).
		WithArgs("nonexistent-attempt").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetAttempt(context.Background(), "nonexistent-attempt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get attempt")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetValidCachedHTML_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .* FROM html_cache`).
		WithArgs("job-1", "https://unknown.com/job").
		WillReturnError(pgx.ErrNoRows)

	result, err := s.GetValidCachedHTML(context.Background(), "job-1", "https://unknown.com/job")
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateOrGetJob_Idempotent(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	url := "https://boards.greenhouse.io/acme/jobs/123"
	now := time.Now().UTC()

	mock.ExpectExec(`INSERT INTO job_postings .* ON CONFLICT \(url\) DO NOTHING`).
		WithArgs(pgxmock.AnyArg(), url, "none", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0)) // conflict, row exists

	mock.ExpectQuery(`SELECT .* FROM job_postings WHERE url = \$1`).
		WithArgs(url).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "url", "title", "company_name", "description", "location", "remote_type",
			"salary_min", "salary_max", "salary_currency", "sections", "extraction_status",
			"last_extracted_at", "created_at", "updated_at",
		}).AddRow(
			"existing-id", url, "", "", "", "", "unknown",
			nil, nil, "", nil, "none",
			nil, now, now,
		))

	job, err := s.CreateOrGetJob(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, "existing-id", job.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateAttempt_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE extraction_attempts SET`).
		WithArgs("failed", 1, "html_fetch", "timeout", "", 0.0, int64(0), pgxmock.AnyArg(), "missing-id").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateAttempt(context.Background(), &model.Attempt{
		ID:           "missing-id",
		Status:       model.AttemptStatusFailed,
		RetryCount:   1,
		FailedStep:   model.StepFetch,
		ErrorMessage: "timeout",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FinalizeEvent_AlreadyClosed(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE pipeline_events`).
		WithArgs("success", pgxmock.AnyArg(), int64(150), pgxmock.AnyArg(), "", "ev-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	done := time.Now().UTC()
	err := s.FinalizeEvent(context.Background(), &model.PipelineEvent{
		ID:          "ev-1",
		Status:      model.EventStatusSuccess,
		CompletedAt: &done,
		DurationMS:  150,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not open")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateOrFindCachedHTML(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()
	exp := now.Add(24 * time.Hour)

	mock.ExpectExec(`INSERT INTO html_cache .* ON CONFLICT \(job_id, normalized_url, content_hash\) DO NOTHING`).
		WithArgs(pgxmock.AnyArg(), "job-1", "https://example.com/job", "hash-1",
			"<html></html>", "cleaned", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	mock.ExpectQuery(`SELECT .* FROM html_cache`).
		WithArgs("job-1", "https://example.com/job", "hash-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "job_id", "normalized_url", "content_hash", "raw_html", "cleaned_html", "fetched_at", "expires_at",
		}).AddRow("cache-1", "job-1", "https://example.com/job", "hash-1", "<html></html>", "cleaned", now, exp))

	got, err := s.CreateOrFindCachedHTML(context.Background(), &model.CachedHTML{
		JobID:         "job-1",
		NormalizedURL: "https://example.com/job",
		ContentHash:   "hash-1",
		RawHTML:       "<html></html>",
		CleanedHTML:   "cleaned",
		FetchedAt:     now,
		ExpiresAt:     exp,
	})
	require.NoError(t, err)
	assert.Equal(t, "cache-1", got.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Enqueue(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO extraction_queue`).
		WithArgs(pgxmock.AnyArg(), "job-1", "https://example.com/job", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.Enqueue(context.Background(), "job-1", "https://example.com/job", time.Now().UTC())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
