// Package orchestrator is the control loop of the content pipeline: it
// polls the task store for due work, claims records atomically, runs the
// mapped work unit through the executor, and commits the outcome — advance,
// retry with backoff, or escalate to human review.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/artisanal-iq/wordpress-content-generator/internal/domain"
	"github.com/artisanal-iq/wordpress-content-generator/internal/executor"
	"github.com/artisanal-iq/wordpress-content-generator/internal/kafka"
	"github.com/artisanal-iq/wordpress-content-generator/internal/pipeline"
	"github.com/artisanal-iq/wordpress-content-generator/internal/postgres"
	redisstore "github.com/artisanal-iq/wordpress-content-generator/internal/redis"
	"github.com/artisanal-iq/wordpress-content-generator/pkg/telemetry"
)

// Leader gates the poll loop when multiple orchestrator instances run.
type Leader interface {
	AcquireOrRenew(ctx context.Context) (bool, error)
}

// Scheduler drives the pipeline. One logical loop; due records are
// dispatched to a bounded worker pool and coordinated only through atomic
// claims on the task store.
type Scheduler struct {
	tasks    postgres.TaskRepository
	content  postgres.ContentRepository
	plans    postgres.PlanRepository
	registry *pipeline.Registry
	exec     *executor.Executor
	policy   pipeline.Policy

	mirror  redisstore.StateStore  // nil = no fast-read mirror
	events  *kafka.EventPublisher  // nil = no event stream
	elector Leader                 // nil = always leader

	interval      time.Duration
	maxConcurrent int
	batchSize     int
	logger        *slog.Logger

	poke chan struct{}
	sem  chan struct{}
	wg   sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

func WithInterval(d time.Duration) Option        { return func(s *Scheduler) { s.interval = d } }
func WithMaxConcurrent(n int) Option             { return func(s *Scheduler) { s.maxConcurrent = n } }
func WithBatchSize(n int) Option                 { return func(s *Scheduler) { s.batchSize = n } }
func WithLogger(l *slog.Logger) Option           { return func(s *Scheduler) { s.logger = l } }
func WithPolicy(p pipeline.Policy) Option        { return func(s *Scheduler) { s.policy = p } }
func WithMirror(m redisstore.StateStore) Option  { return func(s *Scheduler) { s.mirror = m } }
func WithEvents(e *kafka.EventPublisher) Option  { return func(s *Scheduler) { s.events = e } }
func WithElector(e Leader) Option                { return func(s *Scheduler) { s.elector = e } }

// NewScheduler constructs a Scheduler with the given dependencies and options.
func NewScheduler(
	tasks postgres.TaskRepository,
	content postgres.ContentRepository,
	plans postgres.PlanRepository,
	registry *pipeline.Registry,
	exec *executor.Executor,
	opts ...Option,
) *Scheduler {
	s := &Scheduler{
		tasks:         tasks,
		content:       content,
		plans:         plans,
		registry:      registry,
		exec:          exec,
		policy:        pipeline.DefaultPolicy(),
		interval:      30 * time.Second,
		maxConcurrent: 3,
		batchSize:     20,
		logger:        slog.Default(),
		poke:          make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sem = make(chan struct{}, s.maxConcurrent)
	return s
}

// Run is the main polling loop. Blocks until ctx is cancelled, then waits
// for in-flight stages to finish.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run once immediately before waiting for the first tick.
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return
		case <-ticker.C:
			s.tick(ctx)
		case <-s.poke:
			s.tick(ctx)
		}
	}
}

// TriggerPoll requests an immediate poll cycle. Non-blocking; coalesces
// with an already-pending trigger.
func (s *Scheduler) TriggerPoll() {
	select {
	case s.poke <- struct{}{}:
	default:
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if s.elector != nil {
		leader, err := s.elector.AcquireOrRenew(ctx)
		if err != nil {
			s.logger.Error("leader election", slog.String("error", err.Error()))
			return
		}
		if !leader {
			return
		}
	}

	telemetry.SchedulerCyclesTotal.Inc()

	due, err := s.tasks.ListDue(ctx, time.Now().UTC(), s.batchSize)
	if err != nil {
		s.logger.Error("list due task records", slog.String("error", err.Error()))
		return
	}

	for _, task := range due {
		select {
		case <-ctx.Done():
			return
		case s.sem <- struct{}{}:
		}

		s.wg.Add(1)
		go func(task *domain.TaskRecord) {
			defer func() {
				<-s.sem
				s.wg.Done()
			}()
			s.process(ctx, task)
		}(task)
	}
}

// process claims one due record and runs it to a committed outcome. Every
// failure path is caught and recorded; one bad item never stops the loop.
func (s *Scheduler) process(ctx context.Context, task *domain.TaskRecord) {
	ctx, span := otel.Tracer("scheduler").Start(ctx, "scheduler.process_task")
	defer span.End()
	span.SetAttributes(
		attribute.String("task.id", task.ID),
		attribute.String("content.id", task.ContentID),
		attribute.String("stage", task.Stage),
	)

	log := s.logger.With(
		slog.String("task_id", task.ID),
		slog.String("content_id", task.ContentID),
		slog.String("stage", task.Stage),
	)

	// Atomic claim. Losing the race to a concurrent cycle is a no-op.
	if err := s.tasks.Claim(ctx, task.ID); err != nil {
		var notClaimable *domain.TaskNotClaimableError
		if errors.As(err, &notClaimable) {
			telemetry.SchedulerClaimLost.Inc()
			log.Debug("claim lost, skipping")
			return
		}
		log.Error("claim failed", slog.String("error", err.Error()))
		return
	}
	telemetry.SchedulerTasksClaimed.WithLabelValues(task.Stage).Inc()
	s.mirrorTask(ctx, task.ID, domain.TaskProcessing)

	piece, err := s.content.GetByID(ctx, task.ContentID)
	if err != nil {
		log.Error("load content piece", slog.String("error", err.Error()))
		span.RecordError(err)
		s.commitFailure(ctx, log, task, nil, domain.Fail(domain.ErrConfig, fmt.Sprintf("load content piece: %v", err)))
		return
	}
	if piece.Status.IsTerminal() {
		// A human abandoned or force-published the piece after this record
		// was queued. Stop here rather than running a stage against it.
		s.commitFailure(ctx, log, task, piece, domain.Fail(domain.ErrPermanent,
			fmt.Sprintf("content piece is %s, stage %s not run", piece.Status, task.Stage)))
		return
	}

	result := s.exec.Execute(ctx, piece, task.Stage, task.Input)
	if result.OK() {
		s.commitSuccess(ctx, log, task, piece, result.Output)
		return
	}
	span.SetStatus(codes.Error, result.Err.Message)
	s.commitFailure(ctx, log, task, piece, result)
}

// commitSuccess marks the record done, applies the stage's output to the
// content piece, advances its status, and queues the next stage — or marks
// the piece published after the terminal stage.
func (s *Scheduler) commitSuccess(ctx context.Context, log *slog.Logger, task *domain.TaskRecord, piece *domain.ContentPiece, output json.RawMessage) {
	if err := s.tasks.MarkDone(ctx, task.ID, output); err != nil {
		log.Error("mark done", slog.String("error", err.Error()))
		return
	}
	s.mirrorTask(ctx, task.ID, domain.TaskDone)

	fields, wp := parseStageOutput(output)
	if fields != (postgres.StageFields{}) {
		if err := s.content.ApplyStageFields(ctx, piece.ID, fields); err != nil {
			log.Error("apply stage fields", slog.String("error", err.Error()))
		}
	}

	next, err := s.registry.NextStage(task.Stage)
	if err != nil {
		// Unknown stage on a committed record is a configuration fault;
		// there is nothing sensible to queue next.
		log.Error("next stage lookup", slog.String("error", err.Error()))
		return
	}

	if next == domain.ContentPublished {
		if err := s.content.MarkPublished(ctx, piece.ID, wp.PostID, wp.URL); err != nil {
			log.Error("mark published", slog.String("error", err.Error()))
			return
		}
		s.mirrorContent(ctx, piece.ID, domain.ContentPublished)
		telemetry.ContentPublishedTotal.Inc()
		s.emit(ctx, kafka.PipelineEvent{Type: kafka.EventPublished, ContentID: piece.ID, Stage: task.Stage, TaskID: task.ID})
		log.Info("content piece published",
			slog.Int64("wp_post_id", wp.PostID),
			slog.String("wp_url", wp.URL),
		)
		return
	}

	if err := s.content.UpdateStatus(ctx, piece.ID, next); err != nil {
		log.Error("advance content status", slog.String("error", err.Error()))
		return
	}
	s.mirrorContent(ctx, piece.ID, next)

	if err := s.queueStage(ctx, piece.ID, string(next)); err != nil {
		log.Error("queue next stage", slog.String("error", err.Error()))
		return
	}

	s.emit(ctx, kafka.PipelineEvent{Type: kafka.EventStageDone, ContentID: piece.ID, Stage: task.Stage, TaskID: task.ID})
	log.Info("stage done", slog.String("next", string(next)))
}

// commitFailure persists the failure on the record's audit trail, then
// either reschedules a fresh queued record after backoff or escalates.
func (s *Scheduler) commitFailure(ctx context.Context, log *slog.Logger, task *domain.TaskRecord, piece *domain.ContentPiece, result domain.StageResult) {
	attempt := task.RetryCount + 1
	decision := s.policy.Decide(attempt, result.Err.Kind)

	if decision.Escalate {
		if err := s.tasks.MarkNeedsReview(ctx, task.ID, attempt, result.Err.Error()); err != nil {
			log.Error("mark needs_review", slog.String("error", err.Error()))
			return
		}
		s.mirrorTask(ctx, task.ID, domain.TaskNeedsReview)
		telemetry.StageEscalationsTotal.WithLabelValues(task.Stage, string(result.Err.Kind)).Inc()
		s.emit(ctx, kafka.PipelineEvent{
			Type: kafka.EventStageEscalate, ContentID: task.ContentID,
			Stage: task.Stage, TaskID: task.ID, RetryCount: attempt, Error: result.Err.Message,
		})
		log.Warn("stage escalated to review",
			slog.Int("attempt", attempt),
			slog.String("kind", string(result.Err.Kind)),
			slog.String("error", result.Err.Message),
		)
		return
	}

	if err := s.tasks.MarkError(ctx, task.ID, attempt, result.Err.Error()); err != nil {
		log.Error("mark error", slog.String("error", err.Error()))
		return
	}
	s.mirrorTask(ctx, task.ID, domain.TaskError)

	notBefore := time.Now().UTC().Add(decision.Delay)
	retry := &domain.TaskRecord{
		ContentID:  task.ContentID,
		Stage:      task.Stage,
		Status:     domain.TaskQueued,
		Input:      task.Input,
		RetryCount: attempt,
		NotBefore:  &notBefore,
	}
	if err := s.tasks.Create(ctx, retry); err != nil {
		log.Error("create retry record", slog.String("error", err.Error()))
		return
	}

	telemetry.StageRetriesTotal.WithLabelValues(task.Stage).Inc()
	s.emit(ctx, kafka.PipelineEvent{
		Type: kafka.EventStageRetry, ContentID: task.ContentID,
		Stage: task.Stage, TaskID: task.ID, RetryCount: attempt, Error: result.Err.Message,
	})
	log.Warn("stage failed, retry scheduled",
		slog.Int("attempt", attempt),
		slog.Duration("backoff", decision.Delay),
		slog.String("error", result.Err.Message),
	)
}

// queueStage creates the queued record for a stage, snapshotting the input
// at creation time. No-op if an unfinished record for the pair exists.
func (s *Scheduler) queueStage(ctx context.Context, contentID, stage string) error {
	unfinished, err := s.tasks.HasUnfinished(ctx, contentID, stage)
	if err != nil {
		return err
	}
	if unfinished {
		return nil
	}

	input, err := s.buildInput(ctx, contentID, stage)
	if err != nil {
		return fmt.Errorf("build input for %s/%s: %w", contentID, stage, err)
	}

	return s.tasks.Create(ctx, &domain.TaskRecord{
		ContentID: contentID,
		Stage:     stage,
		Status:    domain.TaskQueued,
		Input:     input,
	})
}

// inputSnapshot is the structured input handed to every work unit: the
// content piece's current fields, the plan's editorial brief, and the
// previous stage's output.
type inputSnapshot struct {
	ContentID  string          `json:"content_id"`
	Stage      string          `json:"stage"`
	Title      string          `json:"title,omitempty"`
	Slug       string          `json:"slug,omitempty"`
	DraftText  string          `json:"draft_text,omitempty"`
	FinalText  string          `json:"final_text,omitempty"`
	Plan       planBrief       `json:"plan"`
	PrevOutput json.RawMessage `json:"prev_output,omitempty"`
}

type planBrief struct {
	Domain   string `json:"domain"`
	Audience string `json:"audience"`
	Tone     string `json:"tone"`
	Niche    string `json:"niche"`
	Goal     string `json:"goal"`
}

func (s *Scheduler) buildInput(ctx context.Context, contentID, stage string) (json.RawMessage, error) {
	piece, err := s.content.GetByID(ctx, contentID)
	if err != nil {
		return nil, err
	}

	snap := inputSnapshot{
		ContentID: piece.ID,
		Stage:     stage,
		Title:     piece.Title,
		Slug:      piece.Slug,
		DraftText: piece.DraftText,
		FinalText: piece.FinalText,
	}

	if plan, err := s.plans.GetByID(ctx, piece.PlanID); err == nil {
		snap.Plan = planBrief{
			Domain: plan.Domain, Audience: plan.Audience,
			Tone: plan.Tone, Niche: plan.Niche, Goal: plan.Goal,
		}
	}

	if prev, err := s.registry.Prev(stage); err == nil && prev != "" {
		output, err := s.tasks.LatestOutput(ctx, contentID, prev)
		if err != nil {
			return nil, err
		}
		snap.PrevOutput = output
	}

	return json.Marshal(snap)
}

// stageOutput is the set of well-known output fields the scheduler applies
// to the content piece. Anything else in the output stays opaque on the
// task record.
type stageOutput struct {
	Title         string `json:"title"`
	SelectedTitle string `json:"selected_title"`
	Slug          string `json:"slug"`
	DraftHTML     string `json:"draft_html"`
	FinalHTML     string `json:"final_html"`
	WPPostID      int64  `json:"wp_post_id"`
	WPURL         string `json:"wp_url"`
}

type wpRef struct {
	PostID int64
	URL    string
}

func parseStageOutput(output json.RawMessage) (postgres.StageFields, wpRef) {
	var out stageOutput
	if len(output) == 0 || json.Unmarshal(output, &out) != nil {
		return postgres.StageFields{}, wpRef{}
	}

	var fields postgres.StageFields
	if out.SelectedTitle != "" {
		fields.Title = &out.SelectedTitle
	} else if out.Title != "" {
		fields.Title = &out.Title
	}
	if out.Slug != "" {
		fields.Slug = &out.Slug
	}
	if out.DraftHTML != "" {
		fields.DraftText = &out.DraftHTML
	}
	if out.FinalHTML != "" {
		fields.FinalText = &out.FinalHTML
	}
	return fields, wpRef{PostID: out.WPPostID, URL: out.WPURL}
}

func (s *Scheduler) mirrorTask(ctx context.Context, taskID string, status domain.TaskStatus) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror.SetTaskStatus(ctx, taskID, status); err != nil {
		s.logger.Error("mirror task status", slog.String("task_id", taskID), slog.String("error", err.Error()))
	}
}

func (s *Scheduler) mirrorContent(ctx context.Context, contentID string, status domain.ContentStatus) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror.SetContentStatus(ctx, contentID, status); err != nil {
		s.logger.Error("mirror content status", slog.String("content_id", contentID), slog.String("error", err.Error()))
	}
}

// emit publishes a pipeline event. Best effort: the event stream is
// observability, not state.
func (s *Scheduler) emit(ctx context.Context, ev kafka.PipelineEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.Emit(ctx, ev); err != nil {
		s.logger.Error("emit pipeline event", slog.String("type", ev.Type), slog.String("error", err.Error()))
	}
}
