package domain

import "fmt"

// StageError is a classified failure returned by a work-unit invocation.
type StageError struct {
	Kind    ErrorKind
	Message string
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// UnknownStageError is returned when a status outside the registry's domain
// is encountered. This is a programming error, not a business failure.
type UnknownStageError struct {
	Stage string
}

func (e *UnknownStageError) Error() string {
	return fmt.Sprintf("unknown pipeline stage: %q", e.Stage)
}

// ContentNotFoundError is returned when a content piece ID does not exist.
type ContentNotFoundError struct {
	ContentID string
}

func (e *ContentNotFoundError) Error() string {
	return fmt.Sprintf("content piece not found: %s", e.ContentID)
}

// TaskNotFoundError is returned when a task record ID does not exist.
type TaskNotFoundError struct {
	TaskID string
}

func (e *TaskNotFoundError) Error() string {
	return fmt.Sprintf("task record not found: %s", e.TaskID)
}

// PlanNotFoundError is returned when a strategic plan ID does not exist.
type PlanNotFoundError struct {
	PlanID string
}

func (e *PlanNotFoundError) Error() string {
	return fmt.Sprintf("strategic plan not found: %s", e.PlanID)
}

// TaskNotClaimableError is returned when a claim attempt finds the record no
// longer queued, or a sibling record already processing. Losing a claim race
// surfaces as this error and is a no-op for the caller.
type TaskNotClaimableError struct {
	TaskID string
}

func (e *TaskNotClaimableError) Error() string {
	return fmt.Sprintf("task record %s is not claimable", e.TaskID)
}
