// Package postgres is the durable side of the pipeline: content pieces,
// task records, and strategic plans, accessed through pgx v5 repositories.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/artisanal-iq/wordpress-content-generator/internal/domain"
)

// TaskRepository abstracts all database access for task records. These are
// the only query shapes the scheduler needs: list due, claim, commit, and
// history by content piece.
type TaskRepository interface {
	Create(ctx context.Context, task *domain.TaskRecord) error
	GetByID(ctx context.Context, id string) (*domain.TaskRecord, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.TaskRecord, error)
	Claim(ctx context.Context, id string) error
	MarkDone(ctx context.Context, id string, output json.RawMessage) error
	MarkError(ctx context.Context, id string, retryCount int, errMsg string) error
	MarkNeedsReview(ctx context.Context, id string, retryCount int, errMsg string) error
	ListByContent(ctx context.Context, contentID string) ([]*domain.TaskRecord, error)
	HasUnfinished(ctx context.Context, contentID, stage string) (bool, error)
	LatestOutput(ctx context.Context, contentID, stage string) (json.RawMessage, error)
}

type taskRepository struct {
	pool *pgxpool.Pool
}

// NewTaskRepository wraps a pgxpool with the TaskRepository interface.
func NewTaskRepository(pool *pgxpool.Pool) TaskRepository {
	return &taskRepository{pool: pool}
}

// NewPool creates a pgxpool and verifies connectivity.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

func (r *taskRepository) Create(ctx context.Context, task *domain.TaskRecord) error {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	if task.UpdatedAt.IsZero() {
		task.UpdatedAt = now
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO task_records
			(id, content_id, stage, status, input, output, errors, retry_count, not_before, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		task.ID, task.ContentID, task.Stage, string(task.Status),
		task.Input, task.Output, task.Errors, task.RetryCount,
		task.NotBefore, task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create task record %s: %w", task.ID, err)
	}
	return nil
}

func (r *taskRepository) GetByID(ctx context.Context, id string) (*domain.TaskRecord, error) {
	row := r.pool.QueryRow(ctx, taskSelect+` WHERE id = $1`, id)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.TaskNotFoundError{TaskID: id}
		}
		return nil, err
	}
	return task, nil
}

// ListDue returns queued records whose backoff delay (if any) has elapsed,
// oldest first. FIFO, no priority.
func (r *taskRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*domain.TaskRecord, error) {
	rows, err := r.pool.Query(ctx, taskSelect+`
		WHERE status = $1 AND (not_before IS NULL OR not_before <= $2)
		ORDER BY created_at ASC
		LIMIT $3
	`, string(domain.TaskQueued), now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due task records: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// Claim transitions one record queued → processing, refusing if the record
// is no longer queued or any sibling record of the same content piece is
// already processing. The advisory xact lock serializes concurrent claims
// for one content piece so the sibling check and the update are atomic;
// a lost race returns TaskNotClaimableError and nothing changes.
func (r *taskRepository) Claim(ctx context.Context, id string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("claim begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `
		SELECT pg_advisory_xact_lock(hashtext(content_id::text))
		FROM task_records WHERE id = $1
	`, id); err != nil {
		return fmt.Errorf("claim lock for %s: %w", id, err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE task_records t
		SET status = $1, updated_at = $2
		WHERE t.id = $3
		  AND t.status = $4
		  AND NOT EXISTS (
			SELECT 1 FROM task_records s
			WHERE s.content_id = t.content_id AND s.status = $1
		  )
	`, string(domain.TaskProcessing), time.Now().UTC(), id, string(domain.TaskQueued))
	if err != nil {
		return fmt.Errorf("claim task record %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.TaskNotClaimableError{TaskID: id}
	}
	return tx.Commit(ctx)
}

func (r *taskRepository) MarkDone(ctx context.Context, id string, output json.RawMessage) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE task_records
		SET status = $1, output = $2, updated_at = $3
		WHERE id = $4 AND status = $5
	`, string(domain.TaskDone), output, time.Now().UTC(), id, string(domain.TaskProcessing))
	if err != nil {
		return fmt.Errorf("mark done %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.TaskNotFoundError{TaskID: id}
	}
	return nil
}

func (r *taskRepository) MarkError(ctx context.Context, id string, retryCount int, errMsg string) error {
	return r.finishFailed(ctx, id, domain.TaskError, retryCount, errMsg)
}

func (r *taskRepository) MarkNeedsReview(ctx context.Context, id string, retryCount int, errMsg string) error {
	return r.finishFailed(ctx, id, domain.TaskNeedsReview, retryCount, errMsg)
}

// finishFailed appends the error message to the record's audit trail and
// sets the failure status. Conditional on processing so a lost race is a
// no-op, mirroring the claim.
func (r *taskRepository) finishFailed(ctx context.Context, id string, status domain.TaskStatus, retryCount int, errMsg string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE task_records
		SET status = $1, retry_count = $2, errors = array_append(errors, $3), updated_at = $4
		WHERE id = $5 AND status = $6
	`, string(status), retryCount, errMsg, time.Now().UTC(), id, string(domain.TaskProcessing))
	if err != nil {
		return fmt.Errorf("mark %s %s: %w", status, id, err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.TaskNotFoundError{TaskID: id}
	}
	return nil
}

func (r *taskRepository) ListByContent(ctx context.Context, contentID string) ([]*domain.TaskRecord, error) {
	rows, err := r.pool.Query(ctx, taskSelect+`
		WHERE content_id = $1
		ORDER BY created_at ASC
	`, contentID)
	if err != nil {
		return nil, fmt.Errorf("list task records for content %s: %w", contentID, err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// HasUnfinished reports whether any non-terminal record exists for the
// (content piece, stage) pair. Guards against double-queueing a stage.
func (r *taskRepository) HasUnfinished(ctx context.Context, contentID, stage string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM task_records
			WHERE content_id = $1 AND stage = $2 AND status IN ($3, $4)
		)
	`, contentID, stage, string(domain.TaskQueued), string(domain.TaskProcessing)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check unfinished for %s/%s: %w", contentID, stage, err)
	}
	return exists, nil
}

// LatestOutput returns the output of the most recent done record for the
// (content piece, stage) pair, or nil if the stage has not completed.
func (r *taskRepository) LatestOutput(ctx context.Context, contentID, stage string) (json.RawMessage, error) {
	var output json.RawMessage
	err := r.pool.QueryRow(ctx, `
		SELECT output FROM task_records
		WHERE content_id = $1 AND stage = $2 AND status = $3
		ORDER BY updated_at DESC
		LIMIT 1
	`, contentID, stage, string(domain.TaskDone)).Scan(&output)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest output for %s/%s: %w", contentID, stage, err)
	}
	return output, nil
}

const taskSelect = `
	SELECT id, content_id, stage, status, input, output, errors,
	       retry_count, not_before, created_at, updated_at
	FROM task_records`

// scanTask reads a task record row from any pgx row type.
func scanTask(row interface {
	Scan(...any) error
}) (*domain.TaskRecord, error) {
	var task domain.TaskRecord
	var statusStr string
	err := row.Scan(
		&task.ID, &task.ContentID, &task.Stage, &statusStr,
		&task.Input, &task.Output, &task.Errors,
		&task.RetryCount, &task.NotBefore, &task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	task.Status = domain.TaskStatus(statusStr)
	return &task, nil
}

func collectTasks(rows pgx.Rows) ([]*domain.TaskRecord, error) {
	var tasks []*domain.TaskRecord
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task record: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}
