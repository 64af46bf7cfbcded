// Package executor runs a single work-unit invocation with a per-stage
// timeout and converts whatever comes back into a tagged StageResult. All
// business logic lives in the work units; all sequencing lives in the
// scheduler.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/artisanal-iq/wordpress-content-generator/internal/domain"
	"github.com/artisanal-iq/wordpress-content-generator/internal/workunit"
	"github.com/artisanal-iq/wordpress-content-generator/pkg/telemetry"
)

// UnitResolver is the slice of the stage registry the executor needs.
type UnitResolver interface {
	WorkUnitFor(stage string) (workunit.WorkUnit, error)
}

// Executor invokes work units. The at-most-one-in-flight-per-piece
// invariant is enforced upstream by the scheduler's atomic claim; the
// executor only guarantees the timeout and the failure classification.
type Executor struct {
	units   UnitResolver
	timeout time.Duration
}

// New builds an Executor. timeout bounds every invocation; overruns surface
// as transient failures so the retry policy backs off.
func New(units UnitResolver, timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Executor{units: units, timeout: timeout}
}

// Execute runs the work unit mapped to stage with the given input snapshot.
// It never returns an error: every failure mode is folded into the result.
func (e *Executor) Execute(ctx context.Context, piece *domain.ContentPiece, stage string, input json.RawMessage) domain.StageResult {
	ctx, span := otel.Tracer("executor").Start(ctx, "executor.execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("content.id", piece.ID),
		attribute.String("stage", stage),
	)

	unit, err := e.units.WorkUnitFor(stage)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "no work unit for stage")
		return domain.Fail(domain.ErrConfig, err.Error())
	}

	telemetry.StagesInFlight.Inc()
	defer telemetry.StagesInFlight.Dec()

	start := time.Now()
	invokeCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	output, err := unit.Invoke(invokeCtx, input)
	telemetry.StageDurationSeconds.WithLabelValues(stage).Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(invokeCtx.Err(), context.DeadlineExceeded) {
			msg := fmt.Sprintf("stage %s timed out after %s", stage, e.timeout)
			span.SetStatus(codes.Error, "timeout")
			return domain.Fail(domain.ErrTransient, msg)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "work unit failed")
		return domain.Fail(workunit.Classify(err), err.Error())
	}

	if len(output) > 0 && !json.Valid(output) {
		// Malformed output is a failure, not something to repair.
		span.SetStatus(codes.Error, "malformed output")
		return domain.Fail(domain.ErrPermanent, fmt.Sprintf("stage %s produced malformed output", stage))
	}

	return domain.Succeed(output)
}
