package orchestrator

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/jobintel/internal/config"
	"github.com/sells-group/jobintel/internal/model"
	"github.com/sells-group/jobintel/internal/store"
	"github.com/sells-group/jobintel/internal/urlnorm"
)

// RetryService resumes failed attempts from the appropriate step. The
// Retryable guard on the attempt is the only cross-worker protection;
// an attempt another worker already picked up is simply not retryable.
type RetryService struct {
	store store.Store
	orch  *Orchestrator
	cfg   config.ExtractConfig
}

// NewRetryService creates a RetryService sharing the orchestrator's store.
func NewRetryService(st store.Store, orch *Orchestrator, cfg config.ExtractConfig) *RetryService {
	return &RetryService{store: st, orch: orch, cfg: cfg}
}

// RetryHTMLFetch re-runs an attempt from the fetch step. The fetcher
// reuses a still-valid cache entry itself, so this touches the network
// only when the cached page has expired.
func (s *RetryService) RetryHTMLFetch(ctx context.Context, attemptID string) (*model.Attempt, error) {
	attempt, err := s.claim(ctx, attemptID)
	if err != nil {
		return attempt, err
	}
	return attempt, s.orch.Execute(ctx, attempt)
}

// RetryExtraction re-runs only the cascade, requiring a valid cached
// page. Valid only when the prior failure happened at the extraction
// stage; with no usable cache it fails fast rather than silently
// re-fetching.
func (s *RetryService) RetryExtraction(ctx context.Context, attemptID string) (*model.Attempt, error) {
	attempt, err := s.claim(ctx, attemptID)
	if err != nil {
		return attempt, err
	}
	if attempt.FailedStep != model.StepExtract {
		return attempt, eris.Errorf("retry: attempt %s failed at %q, not at extraction", attemptID, attempt.FailedStep)
	}

	entry, err := s.store.GetValidCachedHTML(ctx, attempt.JobID, urlnorm.Normalize(attempt.URL))
	if err != nil {
		return attempt, eris.Wrap(err, "retry: cache lookup")
	}
	if entry == nil {
		return attempt, eris.Errorf("retry: attempt %s has no valid cached page; use a full retry", attemptID)
	}

	if err := s.orch.transition(ctx, attempt, model.AttemptStatusExtracting); err != nil {
		return attempt, err
	}
	return attempt, s.orch.ExecuteExtraction(ctx, attempt, entry, time.Now())
}

// RetryFull re-invokes the orchestrator end to end for the attempt.
func (s *RetryService) RetryFull(ctx context.Context, attemptID string) (*model.Attempt, error) {
	attempt, err := s.claim(ctx, attemptID)
	if err != nil {
		return attempt, err
	}
	return attempt, s.orch.Execute(ctx, attempt)
}

// Resolve parks a failed or retrying attempt in manual, taking it out of
// the retry loop for operator handling. Manual is terminal for the
// attempt; the posting can still be requeued for a fresh one.
func (s *RetryService) Resolve(ctx context.Context, attemptID string) (*model.Attempt, error) {
	attempt, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, eris.Wrap(err, "resolve: load attempt")
	}
	if err := attempt.Transition(model.AttemptStatusManual); err != nil {
		return attempt, err
	}
	if err := s.store.UpdateAttempt(ctx, attempt); err != nil {
		return attempt, eris.Wrap(err, "resolve: persist manual transition")
	}
	zap.L().Info("attempt marked for manual handling",
		zap.String("attempt_id", attempt.ID),
		zap.String("job_id", attempt.JobID),
		zap.String("failed_step", attempt.FailedStep),
	)
	return attempt, nil
}

// claim moves a failed attempt into retrying, enforcing the retry
// budget. Exhausting the budget parks the attempt in dead letter with
// its original failure intact for operator review.
func (s *RetryService) claim(ctx context.Context, attemptID string) (*model.Attempt, error) {
	attempt, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, eris.Wrap(err, "retry: load attempt")
	}
	if !attempt.Retryable() {
		return attempt, eris.Errorf("retry: attempt %s is %s, not retryable", attemptID, attempt.Status)
	}

	if attempt.Status == model.AttemptStatusFailed {
		if err := attempt.Transition(model.AttemptStatusRetrying); err != nil {
			return attempt, err
		}
		if attempt.RetryCount > s.maxRetries() {
			if err := attempt.Transition(model.AttemptStatusDeadLetter); err != nil {
				return attempt, err
			}
			if err := s.store.UpdateAttempt(ctx, attempt); err != nil {
				return attempt, eris.Wrap(err, "retry: persist dead letter")
			}
			zap.L().Warn("attempt moved to dead letter",
				zap.String("attempt_id", attempt.ID),
				zap.String("job_id", attempt.JobID),
				zap.Int("retry_count", attempt.RetryCount),
			)
			return attempt, eris.Errorf("retry: attempt %s exhausted %d retries, moved to dead letter", attemptID, s.maxRetries())
		}
		if err := s.store.UpdateAttempt(ctx, attempt); err != nil {
			return attempt, eris.Wrap(err, "retry: persist retrying transition")
		}
	}

	return attempt, nil
}

func (s *RetryService) maxRetries() int {
	if s.cfg.MaxRetries > 0 {
		return s.cfg.MaxRetries
	}
	return 3
}
