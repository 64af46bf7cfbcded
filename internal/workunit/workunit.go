// Package workunit contains the opaque units of work the orchestrator
// schedules: thin clients over the external agent service and the WordPress
// REST API. A work unit transforms an input snapshot into structured output;
// it never touches the task store or the content-piece status.
package workunit

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/artisanal-iq/wordpress-content-generator/internal/domain"
)

// WorkUnit performs one pipeline stage's transformation for one content
// piece. Implementations classify their own failures by returning
// *domain.StageError; any other error is treated as transient.
type WorkUnit interface {
	Stage() string
	Invoke(ctx context.Context, input json.RawMessage) (json.RawMessage, error)
}

// Classify maps an invocation error to an ErrorKind. Deadline expiry counts
// as transient: a timeout says nothing about the input.
func Classify(err error) domain.ErrorKind {
	var stageErr *domain.StageError
	if errors.As(err, &stageErr) {
		return stageErr.Kind
	}
	var unknown *domain.UnknownStageError
	if errors.As(err, &unknown) {
		return domain.ErrConfig
	}
	return domain.ErrTransient
}

// Func adapts a plain function to the WorkUnit interface. Used in tests and
// for the synchronous advance command.
type Func struct {
	Name string
	Fn   func(ctx context.Context, input json.RawMessage) (json.RawMessage, error)
}

func (f Func) Stage() string { return f.Name }

func (f Func) Invoke(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	return f.Fn(ctx, input)
}
