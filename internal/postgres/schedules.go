package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/artisanal-iq/wordpress-content-generator/internal/domain"
)

// ScheduleRepository persists the content calendar.
type ScheduleRepository interface {
	Create(ctx context.Context, schedule *domain.PublishSchedule) error
	GetByID(ctx context.Context, id string) (*domain.PublishSchedule, error)
	List(ctx context.Context) ([]*domain.PublishSchedule, error)
	ListDue(ctx context.Context, now time.Time) ([]*domain.PublishSchedule, error)
	MarkRan(ctx context.Context, id string, lastRun, nextRun time.Time) error
	SetEnabled(ctx context.Context, id string, enabled bool) error
}

type scheduleRepository struct {
	pool *pgxpool.Pool
}

// NewScheduleRepository wraps a pgxpool with the ScheduleRepository interface.
func NewScheduleRepository(pool *pgxpool.Pool) ScheduleRepository {
	return &scheduleRepository{pool: pool}
}

func (r *scheduleRepository) Create(ctx context.Context, schedule *domain.PublishSchedule) error {
	if schedule.ID == "" {
		schedule.ID = uuid.New().String()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO publish_schedules
			(id, plan_id, name, cron_expr, enabled, last_run_at, next_run_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7)
	`,
		schedule.ID, schedule.PlanID, schedule.Name, schedule.CronExpr,
		schedule.Enabled, schedule.LastRunAt, schedule.NextRunAt,
	)
	if err != nil {
		return fmt.Errorf("create publish schedule %s: %w", schedule.ID, err)
	}
	return nil
}

func (r *scheduleRepository) GetByID(ctx context.Context, id string) (*domain.PublishSchedule, error) {
	row := r.pool.QueryRow(ctx, scheduleSelect+` WHERE id = $1`, id)
	schedule, err := scanSchedule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("publish schedule %s not found", id)
		}
		return nil, err
	}
	return schedule, nil
}

func (r *scheduleRepository) List(ctx context.Context) ([]*domain.PublishSchedule, error) {
	rows, err := r.pool.Query(ctx, scheduleSelect+` ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list publish schedules: %w", err)
	}
	defer rows.Close()
	return collectSchedules(rows)
}

// ListDue returns enabled schedules whose next firing time has passed.
// Schedules with no next_run_at yet (freshly created) are due immediately
// so the calendar computes their first firing.
func (r *scheduleRepository) ListDue(ctx context.Context, now time.Time) ([]*domain.PublishSchedule, error) {
	rows, err := r.pool.Query(ctx, scheduleSelect+`
		WHERE enabled = TRUE AND (next_run_at IS NULL OR next_run_at <= $1)
		ORDER BY next_run_at ASC NULLS FIRST
	`, now)
	if err != nil {
		return nil, fmt.Errorf("list due publish schedules: %w", err)
	}
	defer rows.Close()
	return collectSchedules(rows)
}

func (r *scheduleRepository) MarkRan(ctx context.Context, id string, lastRun, nextRun time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE publish_schedules
		SET last_run_at = $1, next_run_at = $2
		WHERE id = $3
	`, lastRun, nextRun, id)
	if err != nil {
		return fmt.Errorf("mark schedule %s ran: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("publish schedule %s not found", id)
	}
	return nil
}

func (r *scheduleRepository) SetEnabled(ctx context.Context, id string, enabled bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE publish_schedules SET enabled = $1 WHERE id = $2
	`, enabled, id)
	if err != nil {
		return fmt.Errorf("set schedule %s enabled: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("publish schedule %s not found", id)
	}
	return nil
}

const scheduleSelect = `
	SELECT id, plan_id, name, cron_expr, enabled, last_run_at, next_run_at
	FROM publish_schedules`

func scanSchedule(row interface {
	Scan(...any) error
}) (*domain.PublishSchedule, error) {
	var schedule domain.PublishSchedule
	err := row.Scan(
		&schedule.ID, &schedule.PlanID, &schedule.Name, &schedule.CronExpr,
		&schedule.Enabled, &schedule.LastRunAt, &schedule.NextRunAt,
	)
	if err != nil {
		return nil, err
	}
	return &schedule, nil
}

func collectSchedules(rows pgx.Rows) ([]*domain.PublishSchedule, error) {
	var schedules []*domain.PublishSchedule
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan publish schedule: %w", err)
		}
		schedules = append(schedules, schedule)
	}
	return schedules, rows.Err()
}
