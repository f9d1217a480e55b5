package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/jobintel/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Intended for
// local development and tests; production deployments use Postgres.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS job_postings (
	id                TEXT PRIMARY KEY,
	url               TEXT NOT NULL UNIQUE,
	title             TEXT NOT NULL DEFAULT '',
	company_name      TEXT NOT NULL DEFAULT '',
	description       TEXT NOT NULL DEFAULT '',
	location          TEXT NOT NULL DEFAULT '',
	remote_type       TEXT NOT NULL DEFAULT 'unknown',
	salary_min        REAL,
	salary_max        REAL,
	salary_currency   TEXT NOT NULL DEFAULT '',
	sections          TEXT,
	extraction_status TEXT NOT NULL DEFAULT 'none',
	last_extracted_at DATETIME,
	created_at        DATETIME NOT NULL,
	updated_at        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS extraction_attempts (
	id            TEXT PRIMARY KEY,
	job_id        TEXT NOT NULL REFERENCES job_postings(id),
	url           TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'pending',
	retry_count   INTEGER NOT NULL DEFAULT 0,
	failed_step   TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	method        TEXT NOT NULL DEFAULT '',
	confidence    REAL NOT NULL DEFAULT 0,
	duration_ms   INTEGER NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL,
	updated_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS html_cache (
	id             TEXT PRIMARY KEY,
	job_id         TEXT NOT NULL REFERENCES job_postings(id),
	normalized_url TEXT NOT NULL,
	content_hash   TEXT NOT NULL,
	raw_html       TEXT NOT NULL,
	cleaned_html   TEXT NOT NULL,
	fetched_at     DATETIME NOT NULL,
	expires_at     DATETIME NOT NULL,
	UNIQUE (job_id, normalized_url, content_hash)
);

CREATE TABLE IF NOT EXISTS pipeline_events (
	id           TEXT PRIMARY KEY,
	attempt_id   TEXT NOT NULL REFERENCES extraction_attempts(id),
	event_type   TEXT NOT NULL,
	step_order   INTEGER NOT NULL,
	status       TEXT NOT NULL DEFAULT 'started',
	started_at   DATETIME NOT NULL,
	completed_at DATETIME,
	duration_ms  INTEGER NOT NULL DEFAULT 0,
	input        TEXT,
	output       TEXT,
	error_detail TEXT NOT NULL DEFAULT '',
	UNIQUE (attempt_id, step_order)
);

CREATE TABLE IF NOT EXISTS extraction_queue (
	id         TEXT PRIMARY KEY,
	job_id     TEXT NOT NULL REFERENCES job_postings(id),
	url        TEXT NOT NULL,
	run_after  DATETIME NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_attempts_job_id ON extraction_attempts(job_id);
CREATE INDEX IF NOT EXISTS idx_attempts_status ON extraction_attempts(status);
CREATE INDEX IF NOT EXISTS idx_html_cache_lookup ON html_cache(job_id, normalized_url, expires_at);
CREATE INDEX IF NOT EXISTS idx_events_attempt ON pipeline_events(attempt_id, step_order);
CREATE INDEX IF NOT EXISTS idx_queue_run_after ON extraction_queue(run_after);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateOrGetJob(ctx context.Context, url string) (*model.JobPosting, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO job_postings (id, url, extraction_status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (url) DO NOTHING`,
		id, url, string(model.ExtractionStatusNone), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert job")
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM job_postings WHERE url = ?`, url)
	return scanJob(row)
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*model.JobPosting, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM job_postings WHERE id = ?`, id)
	return scanJob(row)
}

func (s *SQLiteStore) UpdateJob(ctx context.Context, job *model.JobPosting) error {
	var sectionsJSON sql.NullString
	if len(job.Sections) > 0 {
		b, err := json.Marshal(job.Sections)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal sections")
		}
		sectionsJSON = sql.NullString{String: string(b), Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE job_postings SET
			title = ?, company_name = ?, description = ?, location = ?,
			remote_type = ?, salary_min = ?, salary_max = ?, salary_currency = ?,
			sections = ?, extraction_status = ?, last_extracted_at = ?, updated_at = ?
		 WHERE id = ?`,
		job.Title, job.CompanyName, job.Description, job.Location,
		string(job.RemoteType), job.SalaryMin, job.SalaryMax, job.SalaryCurrency,
		sectionsJSON, string(job.ExtractionStatus), job.LastExtractedAt, time.Now().UTC(),
		job.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update job %s", job.ID)
	}
	return checkRowsAffected(res, "job", job.ID)
}

func (s *SQLiteStore) CreateAttempt(ctx context.Context, jobID, url string) (*model.Attempt, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO extraction_attempts (id, job_id, url, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, jobID, url, string(model.AttemptStatusPending), now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert attempt for job %s", jobID)
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

func (s *SQLiteStore) GetAttempt(ctx context.Context, id string) (*model.Attempt, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+attemptColumns+` FROM extraction_attempts WHERE id = ?`, id)
	return scanAttempt(row)
}

func (s *SQLiteStore) UpdateAttempt(ctx context.Context, attempt *model.Attempt) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE extraction_attempts SET
			status = ?, retry_count = ?, failed_step = ?, error_message = ?,
			method = ?, confidence = ?, duration_ms = ?, updated_at = ?
		 WHERE id = ?`,
		string(attempt.Status), attempt.RetryCount, attempt.FailedStep, attempt.ErrorMessage,
		string(attempt.Method), attempt.Confidence, attempt.DurationMS, time.Now().UTC(),
		attempt.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update attempt %s", attempt.ID)
	}
	return checkRowsAffected(res, "attempt", attempt.ID)
}

func (s *SQLiteStore) ListAttempts(ctx context.Context, filter AttemptFilter) ([]model.Attempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM extraction_attempts WHERE 1=1`
	var args []any

	if filter.JobID != "" {
		query += ` AND job_id = ?`
		args = append(args, filter.JobID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list attempts")
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, eris.Wrap(rows.Err(), "sqlite: list attempts iterate")
}

func (s *SQLiteStore) GetValidCachedHTML(ctx context.Context, jobID, normalizedURL string) (*model.CachedHTML, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+cacheColumns+` FROM html_cache
		 WHERE job_id = ? AND normalized_url = ? AND expires_at > ?
		 ORDER BY fetched_at DESC LIMIT 1`,
		jobID, normalizedURL, time.Now().UTC(),
	)

	var c model.CachedHTML
	err := row.Scan(&c.ID, &c.JobID, &c.NormalizedURL, &c.ContentHash, &c.RawHTML,
		&c.CleanedHTML, &c.FetchedAt, &c.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get cached html")
	}
	return &c, nil
}

func (s *SQLiteStore) CreateOrFindCachedHTML(ctx context.Context, entry *model.CachedHTML) (*model.CachedHTML, error) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO html_cache (id, job_id, normalized_url, content_hash, raw_html, cleaned_html, fetched_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (job_id, normalized_url, content_hash) DO NOTHING`,
		entry.ID, entry.JobID, entry.NormalizedURL, entry.ContentHash,
		entry.RawHTML, entry.CleanedHTML, entry.FetchedAt, entry.ExpiresAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert cached html")
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+cacheColumns+` FROM html_cache
		 WHERE job_id = ? AND normalized_url = ? AND content_hash = ?`,
		entry.JobID, entry.NormalizedURL, entry.ContentHash,
	)

	var c model.CachedHTML
	err = row.Scan(&c.ID, &c.JobID, &c.NormalizedURL, &c.ContentHash, &c.RawHTML,
		&c.CleanedHTML, &c.FetchedAt, &c.ExpiresAt)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find cached html")
	}
	return &c, nil
}

func (s *SQLiteStore) DeleteExpiredCache(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM html_cache WHERE expires_at <= ?`, time.Now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired cache")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) AppendEvent(ctx context.Context, ev *model.PipelineEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pipeline_events
		 (id, attempt_id, event_type, step_order, status, started_at, completed_at, duration_ms, input, output, error_detail)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.AttemptID, ev.EventType, ev.StepOrder, string(ev.Status),
		ev.StartedAt, ev.CompletedAt, ev.DurationMS, nullBytes(ev.Input), nullBytes(ev.Output), ev.ErrorDetail,
	)
	return eris.Wrapf(err, "sqlite: append event for attempt %s", ev.AttemptID)
}

func (s *SQLiteStore) FinalizeEvent(ctx context.Context, ev *model.PipelineEvent) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pipeline_events
		 SET status = ?, completed_at = ?, duration_ms = ?, output = ?, error_detail = ?
		 WHERE id = ? AND status = 'started'`,
		string(ev.Status), ev.CompletedAt, ev.DurationMS, nullBytes(ev.Output), ev.ErrorDetail, ev.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finalize event %s", ev.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("event not open: %s", ev.ID)
	}
	return nil
}

func (s *SQLiteStore) NextStepOrder(ctx context.Context, attemptID string) (int, error) {
	var next int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(step_order), 0) + 1 FROM pipeline_events WHERE attempt_id = ?`,
		attemptID,
	).Scan(&next)
	return next, eris.Wrapf(err, "sqlite: next step order for attempt %s", attemptID)
}

func (s *SQLiteStore) ListEvents(ctx context.Context, attemptID string) ([]model.PipelineEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, attempt_id, event_type, step_order, status, started_at, completed_at, duration_ms, input, output, error_detail
		 FROM pipeline_events WHERE attempt_id = ? ORDER BY step_order ASC`,
		attemptID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list events")
	}
	defer rows.Close()

	var events []model.PipelineEvent
	for rows.Next() {
		var ev model.PipelineEvent
		var input, output sql.NullString
		if err := rows.Scan(&ev.ID, &ev.AttemptID, &ev.EventType, &ev.StepOrder,
			&ev.Status, &ev.StartedAt, &ev.CompletedAt, &ev.DurationMS,
			&input, &output, &ev.ErrorDetail); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan event")
		}
		if input.Valid {
			ev.Input = []byte(input.String)
		}
		if output.Valid {
			ev.Output = []byte(output.String)
		}
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "sqlite: list events iterate")
}

func (s *SQLiteStore) Enqueue(ctx context.Context, jobID, url string, runAfter time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO extraction_queue (id, job_id, url, run_after, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), jobID, url, runAfter.UTC(), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: enqueue job %s", jobID)
}

func (s *SQLiteStore) DequeueDue(ctx context.Context, limit int) ([]QueueItem, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`DELETE FROM extraction_queue
		 WHERE id IN (
			SELECT id FROM extraction_queue
			WHERE run_after <= ?
			ORDER BY run_after ASC
			LIMIT %d
		 )
		 RETURNING id, job_id, url, run_after, created_at`, limit),
		time.Now().UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: dequeue")
	}
	defer rows.Close()

	var items []QueueItem
	for rows.Next() {
		var it QueueItem
		if err := rows.Scan(&it.ID, &it.JobID, &it.URL, &it.RunAfter, &it.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan queue item")
		}
		items = append(items, it)
	}
	return items, eris.Wrap(rows.Err(), "sqlite: dequeue iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

type scannable interface {
	Scan(dest ...any) error
}

func scanJob(row scannable) (*model.JobPosting, error) {
	var j model.JobPosting
	var sectionsJSON sql.NullString

	err := row.Scan(&j.ID, &j.URL, &j.Title, &j.CompanyName, &j.Description, &j.Location,
		&j.RemoteType, &j.SalaryMin, &j.SalaryMax, &j.SalaryCurrency, &sectionsJSON,
		&j.ExtractionStatus, &j.LastExtractedAt, &j.CreatedAt, &j.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("job not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan job")
	}

	if sectionsJSON.Valid {
		if err := json.Unmarshal([]byte(sectionsJSON.String), &j.Sections); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal sections")
		}
	}
	return &j, nil
}

func scanAttempt(row scannable) (*model.Attempt, error) {
	var a model.Attempt
	err := row.Scan(&a.ID, &a.JobID, &a.URL, &a.Status, &a.RetryCount, &a.FailedStep,
		&a.ErrorMessage, &a.Method, &a.Confidence, &a.DurationMS, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("attempt not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan attempt")
	}
	return &a, nil
}
