package model

import "time"

// EventStatus is the lifecycle state of a pipeline event.
type EventStatus string

const (
	EventStatusStarted EventStatus = "started"
	EventStatusSuccess EventStatus = "success"
	EventStatusFailed  EventStatus = "failed"
	EventStatusSkipped EventStatus = "skipped"
)

// PipelineEvent is one audited step within an attempt. Events are append
// only and never mutated once finalized; step_order is gapless and strictly
// increasing within an attempt, starting at 1.
type PipelineEvent struct {
	ID          string      `json:"id"`
	AttemptID   string      `json:"attempt_id"`
	EventType   string      `json:"event_type"`
	StepOrder   int         `json:"step_order"`
	Status      EventStatus `json:"status"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	DurationMS  int64       `json:"duration_ms"`
	Input       []byte      `json:"input,omitempty"`
	Output      []byte      `json:"output,omitempty"`
	ErrorDetail string      `json:"error_detail,omitempty"`
}
