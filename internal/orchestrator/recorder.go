package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/jobintel/internal/model"
	"github.com/sells-group/jobintel/internal/store"
)

// Recorder writes the append-only event trail for an attempt. Each unit
// of work gets a started row at the next step_order, finalized exactly
// once as success or failed. Failures re-raise; the recorder never
// swallows an error.
type Recorder struct {
	store store.Store
}

// NewRecorder creates a Recorder over the given store.
func NewRecorder(st store.Store) *Recorder {
	return &Recorder{store: st}
}

// Record runs fn under a named event. Elapsed time comes from the
// monotonic clock; the input and output payloads are truncated before
// storage.
func (r *Recorder) Record(ctx context.Context, attemptID, eventType string, input any, fn func(context.Context) (any, error)) error {
	order, err := r.store.NextStepOrder(ctx, attemptID)
	if err != nil {
		return eris.Wrap(err, "recorder: next step order")
	}

	ev := &model.PipelineEvent{
		ID:        uuid.New().String(),
		AttemptID: attemptID,
		EventType: eventType,
		StepOrder: order,
		Status:    model.EventStatusStarted,
		StartedAt: time.Now().UTC(),
		Input:     TruncatePayload(input),
	}
	if err := r.store.AppendEvent(ctx, ev); err != nil {
		return eris.Wrap(err, "recorder: append event")
	}

	start := time.Now()
	out, workErr := fn(ctx)
	done := time.Now().UTC()
	ev.CompletedAt = &done
	ev.DurationMS = time.Since(start).Milliseconds()

	if workErr != nil {
		ev.Status = model.EventStatusFailed
		ev.ErrorDetail = workErr.Error()
		if ferr := r.store.FinalizeEvent(ctx, ev); ferr != nil {
			// The original failure is the one worth propagating.
			zap.L().Error("failed to finalize failed event",
				zap.String("attempt_id", attemptID),
				zap.String("event_type", eventType),
				zap.Error(ferr),
			)
		}
		return workErr
	}

	ev.Status = model.EventStatusSuccess
	ev.Output = TruncatePayload(out)
	if err := r.store.FinalizeEvent(ctx, ev); err != nil {
		return eris.Wrap(err, "recorder: finalize event")
	}
	return nil
}

// Skip appends an instantaneous skipped event for a stage that was
// consulted but not run.
func (r *Recorder) Skip(ctx context.Context, attemptID, eventType, reason string) {
	order, err := r.store.NextStepOrder(ctx, attemptID)
	if err != nil {
		zap.L().Error("failed to record skipped event",
			zap.String("attempt_id", attemptID),
			zap.String("event_type", eventType),
			zap.Error(err),
		)
		return
	}

	now := time.Now().UTC()
	ev := &model.PipelineEvent{
		ID:          uuid.New().String(),
		AttemptID:   attemptID,
		EventType:   eventType,
		StepOrder:   order,
		Status:      model.EventStatusSkipped,
		StartedAt:   now,
		CompletedAt: &now,
		Output:      TruncatePayload(map[string]string{"reason": reason}),
	}
	if err := r.store.AppendEvent(ctx, ev); err != nil {
		zap.L().Error("failed to record skipped event",
			zap.String("attempt_id", attemptID),
			zap.String("event_type", eventType),
			zap.Error(err),
		)
	}
}
