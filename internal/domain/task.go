package domain

import (
	"encoding/json"
	"time"
)

// TaskStatus represents the states a task record can be in.
type TaskStatus string

const (
	TaskQueued      TaskStatus = "queued"
	TaskProcessing  TaskStatus = "processing"
	TaskDone        TaskStatus = "done"
	TaskError       TaskStatus = "error"
	TaskNeedsReview TaskStatus = "needs_review"
)

// IsTerminal returns true if no further automatic transitions are possible.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskDone || s == TaskNeedsReview
}

// ErrorKind classifies a stage failure for the retry policy.
type ErrorKind string

const (
	// ErrTransient covers network failures, rate limits, and timeouts —
	// eligible for retry with backoff.
	ErrTransient ErrorKind = "transient"
	// ErrPermanent covers malformed or missing input detected before any
	// external call. Retrying cannot change the outcome.
	ErrPermanent ErrorKind = "permanent"
	// ErrConfig covers programming or configuration faults such as an
	// unknown stage name. Fatal for the record, never retried.
	ErrConfig ErrorKind = "config"
)

// Retryable reports whether failures of this kind should be backed off and
// retried rather than escalated immediately.
func (k ErrorKind) Retryable() bool { return k == ErrTransient }

// TaskRecord is one attempt to execute one stage for one content piece.
// Retries spawn fresh records; retry_count carries the attempt number
// through the lineage.
type TaskRecord struct {
	ID         string          `json:"id"`
	ContentID  string          `json:"content_id"`
	Stage      string          `json:"stage"`
	Status     TaskStatus      `json:"status"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	Errors     []string        `json:"errors,omitempty"`
	RetryCount int             `json:"retry_count"`
	NotBefore  *time.Time      `json:"not_before,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// StageResult is the tagged outcome of one work-unit invocation.
// Exactly one of Output (success) or Err (failure) is meaningful.
type StageResult struct {
	Output json.RawMessage
	Err    *StageError
}

// OK reports whether the invocation succeeded.
func (r StageResult) OK() bool { return r.Err == nil }

// Succeed builds a successful StageResult.
func Succeed(output json.RawMessage) StageResult {
	return StageResult{Output: output}
}

// Fail builds a failed StageResult with the given kind and message.
func Fail(kind ErrorKind, message string) StageResult {
	return StageResult{Err: &StageError{Kind: kind, Message: message}}
}
