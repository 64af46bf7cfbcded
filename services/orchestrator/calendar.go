package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/artisanal-iq/wordpress-content-generator/internal/domain"
	"github.com/artisanal-iq/wordpress-content-generator/internal/postgres"
	"github.com/artisanal-iq/wordpress-content-generator/pkg/telemetry"
)

// PieceCreator is the slice of the scheduler the calendar needs.
type PieceCreator interface {
	CreatePiece(ctx context.Context, planID string) (*domain.ContentPiece, error)
	TriggerPoll()
}

// Calendar turns publish schedules into content pieces: each cron firing
// creates one piece under the schedule's plan and pokes the scheduler so
// the entry stage runs without waiting for the next poll interval.
type Calendar struct {
	schedules postgres.ScheduleRepository
	creator   PieceCreator
	elector   Leader
	parser    cron.Parser
	interval  time.Duration
	logger    *slog.Logger
}

// NewCalendar builds a Calendar checking schedules every interval.
func NewCalendar(schedules postgres.ScheduleRepository, creator PieceCreator, elector Leader, interval time.Duration, logger *slog.Logger) *Calendar {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Calendar{
		schedules: schedules,
		creator:   creator,
		elector:   elector,
		parser:    cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		interval:  interval,
		logger:    logger,
	}
}

// Run blocks until ctx is cancelled, firing due schedules on each check.
func (c *Calendar) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.check(ctx)
		}
	}
}

func (c *Calendar) check(ctx context.Context) {
	if c.elector != nil {
		leader, err := c.elector.AcquireOrRenew(ctx)
		if err != nil || !leader {
			return
		}
	}

	now := time.Now().UTC()
	due, err := c.schedules.ListDue(ctx, now)
	if err != nil {
		c.logger.Error("list due schedules", slog.String("error", err.Error()))
		return
	}

	for _, schedule := range due {
		c.fire(ctx, schedule, now)
	}
}

// fire runs one due schedule. A freshly created schedule (no next_run_at)
// only gets its first firing time computed; pieces start on the firing
// after that.
func (c *Calendar) fire(ctx context.Context, schedule *domain.PublishSchedule, now time.Time) {
	log := c.logger.With(
		slog.String("schedule_id", schedule.ID),
		slog.String("schedule", schedule.Name),
	)

	spec, err := c.parser.Parse(schedule.CronExpr)
	if err != nil {
		log.Error("bad cron expression, disabling schedule",
			slog.String("cron_expr", schedule.CronExpr),
			slog.String("error", err.Error()),
		)
		if err := c.schedules.SetEnabled(ctx, schedule.ID, false); err != nil {
			log.Error("disable schedule", slog.String("error", err.Error()))
		}
		return
	}
	next := spec.Next(now)

	if schedule.NextRunAt == nil {
		if err := c.schedules.MarkRan(ctx, schedule.ID, now, next); err != nil {
			log.Error("prime schedule", slog.String("error", err.Error()))
		}
		return
	}

	piece, err := c.creator.CreatePiece(ctx, schedule.PlanID)
	if err != nil {
		// Leave next_run_at in the past so the next check retries.
		log.Error("create scheduled piece", slog.String("error", err.Error()))
		return
	}
	telemetry.CalendarPiecesCreated.Inc()

	if err := c.schedules.MarkRan(ctx, schedule.ID, now, next); err != nil {
		log.Error("mark schedule ran", slog.String("error", err.Error()))
	}

	c.creator.TriggerPoll()
	log.Info("scheduled piece created",
		slog.String("content_id", piece.ID),
		slog.Time("next_run", next),
	)
}
