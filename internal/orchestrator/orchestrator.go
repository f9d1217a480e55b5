// Package orchestrator drives one extraction attempt through the
// confidence cascade and the attempt state machine.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/jobintel/internal/config"
	"github.com/sells-group/jobintel/internal/extract"
	"github.com/sells-group/jobintel/internal/fetch"
	"github.com/sells-group/jobintel/internal/model"
	"github.com/sells-group/jobintel/internal/resilience"
	"github.com/sells-group/jobintel/internal/store"
)

// Expected extraction outcomes. These mark the attempt failed but never
// page anyone; the record simply keeps its last good data.
var (
	ErrLowConfidence = eris.New("confidence below threshold")
	ErrNoData        = eris.New("no extraction method produced data")
)

// Alerter forwards unexpected failures to an error-notification channel.
type Alerter interface {
	Notify(ctx context.Context, summary string, fields map[string]string)
}

// Loader resolves posting HTML, cache-first.
type Loader interface {
	Load(ctx context.Context, jobID, rawURL string) (*fetch.Result, error)
}

// Orchestrator owns the ordered extractor list and is the only component
// that moves an attempt into completed or failed.
type Orchestrator struct {
	store      store.Store
	loader     Loader
	extractors []extract.Extractor
	recorder   *Recorder
	alerter    Alerter
	cfg        config.ExtractConfig
}

// New assembles an Orchestrator. Extractors are tried in slice order;
// alerter may be nil.
func New(st store.Store, loader Loader, extractors []extract.Extractor, alerter Alerter, cfg config.ExtractConfig) *Orchestrator {
	return &Orchestrator{
		store:      st,
		loader:     loader,
		extractors: extractors,
		recorder:   NewRecorder(st),
		alerter:    alerter,
		cfg:        cfg,
	}
}

// Run opens a fresh attempt for the posting and executes it end to end.
// The returned error is the failure cause already persisted on the
// attempt; callers surface it to operators, never to end users.
func (o *Orchestrator) Run(ctx context.Context, jobID, url string) (*model.Attempt, error) {
	attempt, err := o.store.CreateAttempt(ctx, jobID, url)
	if err != nil {
		return nil, eris.Wrap(err, "orchestrator: create attempt")
	}
	return attempt, o.Execute(ctx, attempt)
}

// Execute drives an attempt from its current state through fetch and
// extraction. Legal entry states are pending and retrying; every run
// passes through fetching even on a full cache hit.
func (o *Orchestrator) Execute(ctx context.Context, attempt *model.Attempt) error {
	start := time.Now()

	if err := o.transition(ctx, attempt, model.AttemptStatusFetching); err != nil {
		return err
	}

	var page *fetch.Result
	err := o.recorder.Record(ctx, attempt.ID, model.StepFetch,
		map[string]string{"url": attempt.URL},
		func(ctx context.Context) (any, error) {
			var err error
			page, err = o.loader.Load(ctx, attempt.JobID, attempt.URL)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"from_cache":   page.FromCache,
				"content_hash": page.Entry.ContentHash,
				"raw_bytes":    len(page.Entry.RawHTML),
			}, nil
		})
	if err != nil {
		return o.fail(ctx, attempt, model.StepFetch, err, start)
	}

	if err := o.transition(ctx, attempt, model.AttemptStatusExtracting); err != nil {
		return err
	}

	return o.ExecuteExtraction(ctx, attempt, page.Entry, start)
}

// ExecuteExtraction runs the cascade over already-resolved HTML and
// finishes the attempt. The attempt must be in extracting; start anchors
// the attempt's duration.
func (o *Orchestrator) ExecuteExtraction(ctx context.Context, attempt *model.Attempt, entry *model.CachedHTML, start time.Time) error {
	in := extract.Input{
		JobID:       attempt.JobID,
		URL:         attempt.URL,
		RawHTML:     entry.RawHTML,
		CleanedText: entry.CleanedHTML,
	}

	best, lastErr := o.cascade(ctx, attempt.ID, in)
	if best == nil || best.Fields.IsEmpty() {
		cause := ErrNoData
		if lastErr != nil {
			cause = eris.Wrap(lastErr, "no extraction method produced data")
		}
		return o.fail(ctx, attempt, model.StepExtract, cause, start)
	}

	attempt.Method = best.Method
	attempt.Confidence = best.Confidence

	if best.Confidence < o.threshold() {
		return o.fail(ctx, attempt, model.StepExtract,
			eris.Wrapf(ErrLowConfidence, "best %s confidence %.2f, threshold %.2f",
				best.Method, best.Confidence, o.threshold()),
			start)
	}

	err := o.recorder.Record(ctx, attempt.ID, model.StepPersist, best.Fields,
		func(ctx context.Context) (any, error) {
			job, err := o.store.GetJob(ctx, attempt.JobID)
			if err != nil {
				return nil, err
			}
			job.Apply(best.Fields)
			job.ExtractionStatus = model.ExtractionStatusExtracted
			now := time.Now().UTC()
			job.LastExtractedAt = &now
			if err := o.store.UpdateJob(ctx, job); err != nil {
				return nil, err
			}
			return map[string]any{"fields_applied": best.Fields.CountProduced()}, nil
		})
	if err != nil {
		return o.fail(ctx, attempt, model.StepPersist, err, start)
	}

	if err := attempt.Transition(model.AttemptStatusCompleted); err != nil {
		return err
	}
	attempt.DurationMS = time.Since(start).Milliseconds()
	if err := o.store.UpdateAttempt(ctx, attempt); err != nil {
		return eris.Wrap(err, "orchestrator: persist completed attempt")
	}

	zap.L().Info("extraction completed",
		zap.String("attempt_id", attempt.ID),
		zap.String("job_id", attempt.JobID),
		zap.String("method", string(attempt.Method)),
		zap.Float64("confidence", attempt.Confidence),
		zap.Int64("duration_ms", attempt.DurationMS),
	)
	return nil
}

// cascade tries each extractor in order, recording one event per stage.
// It stops at the first result clearing the threshold; otherwise it
// keeps the highest-confidence result as the floor. A stage error means
// "no data from this method" and the cascade continues.
func (o *Orchestrator) cascade(ctx context.Context, attemptID string, in extract.Input) (*extract.Result, error) {
	var best *extract.Result
	var lastErr error

	for _, ex := range o.extractors {
		eventType := model.StepExtract + ":" + ex.Name()

		if !ex.Supports(in) {
			o.recorder.Skip(ctx, attemptID, eventType, "input not supported")
			continue
		}

		var res *extract.Result
		err := o.recorder.Record(ctx, attemptID, eventType,
			map[string]string{"url": in.URL},
			func(ctx context.Context) (any, error) {
				var err error
				res, err = ex.Extract(ctx, in)
				if err != nil {
					return nil, err
				}
				return map[string]any{
					"confidence":      res.Confidence,
					"fields_produced": res.Fields.CountProduced(),
				}, nil
			})
		if err != nil {
			if ctx.Err() != nil {
				return best, ctx.Err()
			}
			zap.L().Warn("extraction stage failed",
				zap.String("attempt_id", attemptID),
				zap.String("stage", ex.Name()),
				zap.Error(err),
			)
			lastErr = err
			continue
		}

		if best == nil || res.Confidence > best.Confidence {
			best = res
		}
		if res.Confidence >= o.threshold() {
			break
		}
	}
	return best, lastErr
}

// fail stamps the failure on the attempt and persists the failed
// transition. Unexpected causes additionally go to the alert channel.
func (o *Orchestrator) fail(ctx context.Context, attempt *model.Attempt, step string, cause error, start time.Time) error {
	attempt.RecordFailure(step, cause.Error())
	if err := attempt.Transition(model.AttemptStatusFailed); err != nil {
		return err
	}
	attempt.DurationMS = time.Since(start).Milliseconds()
	if err := o.store.UpdateAttempt(ctx, attempt); err != nil {
		return eris.Wrap(err, "orchestrator: persist failed attempt")
	}

	zap.L().Warn("extraction attempt failed",
		zap.String("attempt_id", attempt.ID),
		zap.String("job_id", attempt.JobID),
		zap.String("failed_step", step),
		zap.Int("retry_count", attempt.RetryCount),
		zap.Error(cause),
	)

	if o.alerter != nil && alertable(cause) {
		o.alerter.Notify(ctx, "extraction failure: "+cause.Error(), map[string]string{
			"attempt_id": attempt.ID,
			"job_id":     attempt.JobID,
			"url":        attempt.URL,
			"step":       step,
		})
	}
	return cause
}

// alertable filters the failure taxonomy down to the class that should
// page a human: not routine transport errors, not transient blips, not
// an honest low-confidence or empty cascade.
func alertable(err error) bool {
	if errors.Is(err, ErrLowConfidence) || errors.Is(err, ErrNoData) {
		return false
	}
	var fe *fetch.Error
	if errors.As(err, &fe) && fe.StatusCode > 0 {
		return false
	}
	return !resilience.IsTransient(err)
}

func (o *Orchestrator) threshold() float64 {
	if o.cfg.ConfidenceThreshold > 0 {
		return o.cfg.ConfidenceThreshold
	}
	return 0.7
}

func (o *Orchestrator) transition(ctx context.Context, attempt *model.Attempt, to model.AttemptStatus) error {
	if err := attempt.Transition(to); err != nil {
		return err
	}
	if err := o.store.UpdateAttempt(ctx, attempt); err != nil {
		return eris.Wrapf(err, "orchestrator: persist %s transition", to)
	}
	return nil
}
