// Package store provides durable persistence for postings, attempts,
// cached pages, and the pipeline event trail.
package store

import (
	"context"
	"time"

	"github.com/sells-group/jobintel/internal/model"
)

// AttemptFilter specifies criteria for listing attempts.
type AttemptFilter struct {
	JobID  string              `json:"job_id,omitempty"`
	Status model.AttemptStatus `json:"status,omitempty"`
	Limit  int                 `json:"limit,omitempty"`
	Offset int                 `json:"offset,omitempty"`
}

// QueueItem is one queued extraction request for the background worker.
type QueueItem struct {
	ID        string    `json:"id"`
	JobID     string    `json:"job_id"`
	URL       string    `json:"url"`
	RunAfter  time.Time `json:"run_after"`
	CreatedAt time.Time `json:"created_at"`
}

// Store defines the persistence interface for the extraction pipeline.
// Implementations must provide read-your-writes consistency; cache dedup
// and attempt-state observability rely on it.
type Store interface {
	// Job postings
	CreateOrGetJob(ctx context.Context, url string) (*model.JobPosting, error)
	GetJob(ctx context.Context, id string) (*model.JobPosting, error)
	UpdateJob(ctx context.Context, job *model.JobPosting) error

	// Attempts
	CreateAttempt(ctx context.Context, jobID, url string) (*model.Attempt, error)
	GetAttempt(ctx context.Context, id string) (*model.Attempt, error)
	UpdateAttempt(ctx context.Context, attempt *model.Attempt) error
	ListAttempts(ctx context.Context, filter AttemptFilter) ([]model.Attempt, error)

	// HTML cache. CreateOrFindCachedHTML is idempotent: concurrent writers
	// caching identical bytes converge on one row.
	GetValidCachedHTML(ctx context.Context, jobID, normalizedURL string) (*model.CachedHTML, error)
	CreateOrFindCachedHTML(ctx context.Context, entry *model.CachedHTML) (*model.CachedHTML, error)
	DeleteExpiredCache(ctx context.Context) (int, error)

	// Pipeline events. AppendEvent inserts a new row at the next step_order;
	// FinalizeEvent closes a started event exactly once.
	AppendEvent(ctx context.Context, ev *model.PipelineEvent) error
	FinalizeEvent(ctx context.Context, ev *model.PipelineEvent) error
	NextStepOrder(ctx context.Context, attemptID string) (int, error)
	ListEvents(ctx context.Context, attemptID string) ([]model.PipelineEvent, error)

	// Extraction queue for the async trigger surface.
	Enqueue(ctx context.Context, jobID, url string, runAfter time.Time) error
	DequeueDue(ctx context.Context, limit int) ([]QueueItem, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
