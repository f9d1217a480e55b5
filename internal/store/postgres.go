package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/jobintel/internal/db"
	"github.com/sells-group/jobintel/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool, used by tests.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS job_postings (
	id                TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	url               TEXT NOT NULL UNIQUE,
	title             TEXT NOT NULL DEFAULT '',
	company_name      TEXT NOT NULL DEFAULT '',
	description       TEXT NOT NULL DEFAULT '',
	location          TEXT NOT NULL DEFAULT '',
	remote_type       TEXT NOT NULL DEFAULT 'unknown',
	salary_min        DOUBLE PRECISION,
	salary_max        DOUBLE PRECISION,
	salary_currency   TEXT NOT NULL DEFAULT '',
	sections          JSONB,
	extraction_status TEXT NOT NULL DEFAULT 'none',
	last_extracted_at TIMESTAMPTZ,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS extraction_attempts (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	job_id        TEXT NOT NULL REFERENCES job_postings(id),
	url           TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'pending',
	retry_count   INTEGER NOT NULL DEFAULT 0,
	failed_step   TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	method        TEXT NOT NULL DEFAULT '',
	confidence    DOUBLE PRECISION NOT NULL DEFAULT 0,
	duration_ms   BIGINT NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS html_cache (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	job_id         TEXT NOT NULL REFERENCES job_postings(id),
	normalized_url TEXT NOT NULL,
	content_hash   TEXT NOT NULL,
	raw_html       TEXT NOT NULL,
	cleaned_html   TEXT NOT NULL,
	fetched_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at     TIMESTAMPTZ NOT NULL,
	UNIQUE (job_id, normalized_url, content_hash)
);

CREATE TABLE IF NOT EXISTS pipeline_events (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	attempt_id   TEXT NOT NULL REFERENCES extraction_attempts(id),
	event_type   TEXT NOT NULL,
	step_order   INTEGER NOT NULL,
	status       TEXT NOT NULL DEFAULT 'started',
	started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ,
	duration_ms  BIGINT NOT NULL DEFAULT 0,
	input        JSONB,
	output       JSONB,
	error_detail TEXT NOT NULL DEFAULT '',
	UNIQUE (attempt_id, step_order)
);

CREATE TABLE IF NOT EXISTS extraction_queue (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	job_id     TEXT NOT NULL REFERENCES job_postings(id),
	url        TEXT NOT NULL,
	run_after  TIMESTAMPTZ NOT NULL DEFAULT now(),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_attempts_job_id ON extraction_attempts(job_id);
CREATE INDEX IF NOT EXISTS idx_attempts_status ON extraction_attempts(status);
CREATE INDEX IF NOT EXISTS idx_html_cache_lookup ON html_cache(job_id, normalized_url, expires_at DESC);
CREATE INDEX IF NOT EXISTS idx_events_attempt ON pipeline_events(attempt_id, step_order);
CREATE INDEX IF NOT EXISTS idx_queue_run_after ON extraction_queue(run_after);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateOrGetJob(ctx context.Context, url string) (*model.JobPosting, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO job_postings (id, url, extraction_status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (url) DO NOTHING`,
		id, url, string(model.ExtractionStatusNone), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert job")
	}

	return s.getJobWhere(ctx, `url = $1`, url)
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*model.JobPosting, error) {
	return s.getJobWhere(ctx, `id = $1`, id)
}

const jobColumns = `id, url, title, company_name, description, location, remote_type,
	salary_min, salary_max, salary_currency, sections, extraction_status,
	last_extracted_at, created_at, updated_at`

func (s *PostgresStore) getJobWhere(ctx context.Context, where string, arg any) (*model.JobPosting, error) {
	var j model.JobPosting
	var sectionsJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM job_postings WHERE `+where,
		arg,
	).Scan(&j.ID, &j.URL, &j.Title, &j.CompanyName, &j.Description, &j.Location,
		&j.RemoteType, &j.SalaryMin, &j.SalaryMax, &j.SalaryCurrency, &sectionsJSON,
		&j.ExtractionStatus, &j.LastExtractedAt, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get job")
	}
	if len(sectionsJSON) > 0 {
		if err := json.Unmarshal(sectionsJSON, &j.Sections); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal sections")
		}
	}
	return &j, nil
}

func (s *PostgresStore) UpdateJob(ctx context.Context, job *model.JobPosting) error {
	var sectionsJSON []byte
	if len(job.Sections) > 0 {
		var err error
		sectionsJSON, err = json.Marshal(job.Sections)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal sections")
		}
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE job_postings SET
			title = $1, company_name = $2, description = $3, location = $4,
			remote_type = $5, salary_min = $6, salary_max = $7, salary_currency = $8,
			sections = $9, extraction_status = $10, last_extracted_at = $11, updated_at = $12
		 WHERE id = $13`,
		job.Title, job.CompanyName, job.Description, job.Location,
		string(job.RemoteType), job.SalaryMin, job.SalaryMax, job.SalaryCurrency,
		sectionsJSON, string(job.ExtractionStatus), job.LastExtractedAt, time.Now().UTC(),
		job.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update job %s", job.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("job not found: %s", job.ID)
	}
	return nil
}

func (s *PostgresStore) CreateAttempt(ctx context.Context, jobID, url string) (*model.Attempt, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO extraction_attempts (id, job_id, url, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		id, jobID, url, string(model.AttemptStatusPending), now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert attempt for job %s", jobID)
	}

	return &model.Attempt{
		ID:        id,
		JobID:     jobID,
		URL:       url,
		Status:    model.AttemptStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

const attemptColumns = `id, job_id, url, status, retry_count, failed_step,
	error_message, method, confidence, duration_ms, created_at, updated_at`

func (s *PostgresStore) GetAttempt(ctx context.Context, id string) (*model.Attempt, error) {
	var a model.Attempt
	err := s.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM extraction_attempts WHERE id = $1`,
		id,
	).Scan(&a.ID, &a.JobID, &a.URL, &a.Status, &a.RetryCount, &a.FailedStep,
		&a.ErrorMessage, &a.Method, &a.Confidence, &a.DurationMS, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get attempt %s", id)
	}
	return &a, nil
}

func (s *PostgresStore) UpdateAttempt(ctx context.Context, attempt *model.Attempt) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE extraction_attempts SET
			status = $1, retry_count = $2, failed_step = $3, error_message = $4,
			method = $5, confidence = $6, duration_ms = $7, updated_at = $8
		 WHERE id = $9`,
		string(attempt.Status), attempt.RetryCount, attempt.FailedStep, attempt.ErrorMessage,
		string(attempt.Method), attempt.Confidence, attempt.DurationMS, time.Now().UTC(),
		attempt.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update attempt %s", attempt.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("attempt not found: %s", attempt.ID)
	}
	return nil
}

func (s *PostgresStore) ListAttempts(ctx context.Context, filter AttemptFilter) ([]model.Attempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM extraction_attempts WHERE true`
	args := []any{}
	argIdx := 1

	if filter.JobID != "" {
		query += fmt.Sprintf(` AND job_id = $%d`, argIdx)
		args = append(args, filter.JobID)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list attempts")
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		var a model.Attempt
		if err := rows.Scan(&a.ID, &a.JobID, &a.URL, &a.Status, &a.RetryCount,
			&a.FailedStep, &a.ErrorMessage, &a.Method, &a.Confidence, &a.DurationMS,
			&a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan attempt")
		}
		attempts = append(attempts, a)
	}
	return attempts, eris.Wrap(rows.Err(), "postgres: list attempts iterate")
}

const cacheColumns = `id, job_id, normalized_url, content_hash, raw_html, cleaned_html, fetched_at, expires_at`

func (s *PostgresStore) GetValidCachedHTML(ctx context.Context, jobID, normalizedURL string) (*model.CachedHTML, error) {
	var c model.CachedHTML
	err := s.pool.QueryRow(ctx,
		`SELECT `+cacheColumns+` FROM html_cache
		 WHERE job_id = $1 AND normalized_url = $2 AND expires_at > now()
		 ORDER BY fetched_at DESC LIMIT 1`,
		jobID, normalizedURL,
	).Scan(&c.ID, &c.JobID, &c.NormalizedURL, &c.ContentHash, &c.RawHTML,
		&c.CleanedHTML, &c.FetchedAt, &c.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get cached html")
	}
	return &c, nil
}

func (s *PostgresStore) CreateOrFindCachedHTML(ctx context.Context, entry *model.CachedHTML) (*model.CachedHTML, error) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	// Idempotent create-or-find: identical bytes for the same key reuse
	// the existing row, so concurrent writers do not conflict.
	_, err := s.pool.Exec(ctx,
		`INSERT INTO html_cache (id, job_id, normalized_url, content_hash, raw_html, cleaned_html, fetched_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (job_id, normalized_url, content_hash) DO NOTHING`,
		entry.ID, entry.JobID, entry.NormalizedURL, entry.ContentHash,
		entry.RawHTML, entry.CleanedHTML, entry.FetchedAt, entry.ExpiresAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert cached html")
	}

	var c model.CachedHTML
	err = s.pool.QueryRow(ctx,
		`SELECT `+cacheColumns+` FROM html_cache
		 WHERE job_id = $1 AND normalized_url = $2 AND content_hash = $3`,
		entry.JobID, entry.NormalizedURL, entry.ContentHash,
	).Scan(&c.ID, &c.JobID, &c.NormalizedURL, &c.ContentHash, &c.RawHTML,
		&c.CleanedHTML, &c.FetchedAt, &c.ExpiresAt)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find cached html")
	}
	return &c, nil
}

func (s *PostgresStore) DeleteExpiredCache(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM html_cache WHERE expires_at <= now()`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired cache")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) AppendEvent(ctx context.Context, ev *model.PipelineEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO pipeline_events
		 (id, attempt_id, event_type, step_order, status, started_at, completed_at, duration_ms, input, output, error_detail)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		ev.ID, ev.AttemptID, ev.EventType, ev.StepOrder, string(ev.Status),
		ev.StartedAt, ev.CompletedAt, ev.DurationMS, ev.Input, ev.Output, ev.ErrorDetail,
	)
	return eris.Wrapf(err, "postgres: append event for attempt %s", ev.AttemptID)
}

func (s *PostgresStore) FinalizeEvent(ctx context.Context, ev *model.PipelineEvent) error {
	// Only a started event may be finalized; finalized events are immutable.
	tag, err := s.pool.Exec(ctx,
		`UPDATE pipeline_events
		 SET status = $1, completed_at = $2, duration_ms = $3, output = $4, error_detail = $5
		 WHERE id = $6 AND status = 'started'`,
		string(ev.Status), ev.CompletedAt, ev.DurationMS, ev.Output, ev.ErrorDetail, ev.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finalize event %s", ev.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("event not open: %s", ev.ID)
	}
	return nil
}

func (s *PostgresStore) NextStepOrder(ctx context.Context, attemptID string) (int, error) {
	var next int
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(step_order), 0) + 1 FROM pipeline_events WHERE attempt_id = $1`,
		attemptID,
	).Scan(&next)
	return next, eris.Wrapf(err, "postgres: next step order for attempt %s", attemptID)
}

func (s *PostgresStore) ListEvents(ctx context.Context, attemptID string) ([]model.PipelineEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, attempt_id, event_type, step_order, status, started_at, completed_at, duration_ms, input, output, error_detail
		 FROM pipeline_events WHERE attempt_id = $1 ORDER BY step_order ASC`,
		attemptID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list events")
	}
	defer rows.Close()

	var events []model.PipelineEvent
	for rows.Next() {
		var ev model.PipelineEvent
		if err := rows.Scan(&ev.ID, &ev.AttemptID, &ev.EventType, &ev.StepOrder,
			&ev.Status, &ev.StartedAt, &ev.CompletedAt, &ev.DurationMS,
			&ev.Input, &ev.Output, &ev.ErrorDetail); err != nil {
			return nil, eris.Wrap(err, "postgres: scan event")
		}
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "postgres: list events iterate")
}

func (s *PostgresStore) Enqueue(ctx context.Context, jobID, url string, runAfter time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO extraction_queue (id, job_id, url, run_after, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		uuid.New().String(), jobID, url, runAfter, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: enqueue job %s", jobID)
}

func (s *PostgresStore) DequeueDue(ctx context.Context, limit int) ([]QueueItem, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.pool.Query(ctx,
		`DELETE FROM extraction_queue
		 WHERE id IN (
			SELECT id FROM extraction_queue
			WHERE run_after <= now()
			ORDER BY run_after ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, job_id, url, run_after, created_at`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: dequeue")
	}
	defer rows.Close()

	var items []QueueItem
	for rows.Next() {
		var it QueueItem
		if err := rows.Scan(&it.ID, &it.JobID, &it.URL, &it.RunAfter, &it.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan queue item")
		}
		items = append(items, it)
	}
	return items, eris.Wrap(rows.Err(), "postgres: dequeue iterate")
}
