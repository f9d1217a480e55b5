package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// AttemptStatus is the state of one extraction run.
type AttemptStatus string

const (
	AttemptStatusPending    AttemptStatus = "pending"
	AttemptStatusFetching   AttemptStatus = "fetching"
	AttemptStatusExtracting AttemptStatus = "extracting"
	AttemptStatusCompleted  AttemptStatus = "completed"
	AttemptStatusFailed     AttemptStatus = "failed"
	AttemptStatusRetrying   AttemptStatus = "retrying"
	AttemptStatusDeadLetter AttemptStatus = "dead_letter"
	AttemptStatusManual     AttemptStatus = "manual"
)

// ExtractionMethod identifies which cascade stage produced the accepted result.
type ExtractionMethod string

const (
	MethodStructuredAPI ExtractionMethod = "structured_api"
	MethodAI            ExtractionMethod = "ai"
	MethodHTML          ExtractionMethod = "html_heuristic"
)

// Pipeline step names recorded in failed_step and event types.
const (
	StepFetch   = "html_fetch"
	StepExtract = "extraction"
	StepPersist = "persist"
)

// attemptTransitions is the full edge set of the attempt state machine.
// Every entry into fetching passes through here even on a full cache hit,
// so timing data stays comparable across attempts.
var attemptTransitions = map[AttemptStatus][]AttemptStatus{
	AttemptStatusPending:    {AttemptStatusFetching},
	AttemptStatusFetching:   {AttemptStatusExtracting, AttemptStatusFailed},
	AttemptStatusExtracting: {AttemptStatusCompleted, AttemptStatusFailed},
	AttemptStatusFailed:     {AttemptStatusRetrying, AttemptStatusManual},
	AttemptStatusRetrying:   {AttemptStatusFetching, AttemptStatusExtracting, AttemptStatusDeadLetter, AttemptStatusManual},
}

// CanTransition reports whether the edge from→to exists in the state machine.
func CanTransition(from, to AttemptStatus) bool {
	for _, next := range attemptTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no edges leave the given status.
func (s AttemptStatus) IsTerminal() bool {
	return len(attemptTransitions[s]) == 0
}

// Attempt is one extraction run for a posting+URL, retained indefinitely
// for audit. Mutated only through its state machine.
type Attempt struct {
	ID           string           `json:"id"`
	JobID        string           `json:"job_id"`
	URL          string           `json:"url"`
	Status       AttemptStatus    `json:"status"`
	RetryCount   int              `json:"retry_count"`
	FailedStep   string           `json:"failed_step,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	Method       ExtractionMethod `json:"method,omitempty"`
	Confidence   float64          `json:"confidence"`
	DurationMS   int64            `json:"duration_ms"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// Transition moves the attempt to the given status, rejecting edges not in
// the state machine. retry_count increments on each failed→retrying edge.
func (a *Attempt) Transition(to AttemptStatus) error {
	if !CanTransition(a.Status, to) {
		return eris.Errorf("attempt %s: illegal transition %s -> %s", a.ID, a.Status, to)
	}
	if a.Status == AttemptStatusFailed && to == AttemptStatusRetrying {
		a.RetryCount++
	}
	a.Status = to
	return nil
}

// Retryable reports whether the attempt may be picked up by the retry
// service. This guard is the only protection against two workers acting
// on the same attempt.
func (a *Attempt) Retryable() bool {
	return a.Status == AttemptStatusFailed || a.Status == AttemptStatusRetrying
}

// RecordFailure stamps the failed step and error message. Called on every
// entry into failed and on every retry path.
func (a *Attempt) RecordFailure(step, msg string) {
	a.FailedStep = step
	a.ErrorMessage = msg
}
