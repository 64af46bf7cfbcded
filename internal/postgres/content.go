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

// ContentRepository abstracts database access for content pieces.
type ContentRepository interface {
	Create(ctx context.Context, piece *domain.ContentPiece) error
	GetByID(ctx context.Context, id string) (*domain.ContentPiece, error)
	List(ctx context.Context, limit int) ([]*domain.ContentPiece, error)
	UpdateStatus(ctx context.Context, id string, status domain.ContentStatus) error
	ApplyStageFields(ctx context.Context, id string, fields StageFields) error
	MarkPublished(ctx context.Context, id string, wpPostID int64, wpURL string) error
}

// StageFields carries the well-known output fields the scheduler applies to
// a content piece after a stage succeeds. Nil pointers leave the column
// untouched.
type StageFields struct {
	Title     *string
	Slug      *string
	DraftText *string
	FinalText *string
}

type contentRepository struct {
	pool *pgxpool.Pool
}

// NewContentRepository wraps a pgxpool with the ContentRepository interface.
func NewContentRepository(pool *pgxpool.Pool) ContentRepository {
	return &contentRepository{pool: pool}
}

func (r *contentRepository) Create(ctx context.Context, piece *domain.ContentPiece) error {
	if piece.ID == "" {
		piece.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if piece.CreatedAt.IsZero() {
		piece.CreatedAt = now
	}
	piece.UpdatedAt = now
	_, err := r.pool.Exec(ctx, `
		INSERT INTO content_pieces
			(id, plan_id, title, slug, draft_text, final_text, status, wp_post_id, wp_url, created_at, updated_at, published_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		piece.ID, piece.PlanID, piece.Title, piece.Slug,
		piece.DraftText, piece.FinalText, string(piece.Status),
		piece.WPPostID, piece.WPURL, piece.CreatedAt, piece.UpdatedAt, piece.PublishedAt,
	)
	if err != nil {
		return fmt.Errorf("create content piece %s: %w", piece.ID, err)
	}
	return nil
}

func (r *contentRepository) GetByID(ctx context.Context, id string) (*domain.ContentPiece, error) {
	row := r.pool.QueryRow(ctx, contentSelect+` WHERE id = $1`, id)
	piece, err := scanPiece(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.ContentNotFoundError{ContentID: id}
		}
		return nil, err
	}
	return piece, nil
}

func (r *contentRepository) List(ctx context.Context, limit int) ([]*domain.ContentPiece, error) {
	rows, err := r.pool.Query(ctx, contentSelect+`
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list content pieces: %w", err)
	}
	defer rows.Close()

	var pieces []*domain.ContentPiece
	for rows.Next() {
		piece, err := scanPiece(rows)
		if err != nil {
			return nil, fmt.Errorf("scan content piece: %w", err)
		}
		pieces = append(pieces, piece)
	}
	return pieces, rows.Err()
}

func (r *contentRepository) UpdateStatus(ctx context.Context, id string, status domain.ContentStatus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE content_pieces
		SET status = $1, updated_at = $2
		WHERE id = $3
	`, string(status), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update status for content %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.ContentNotFoundError{ContentID: id}
	}
	return nil
}

// ApplyStageFields writes the text columns a stage produced. COALESCE keeps
// unset fields at their current value so partial outputs are safe.
func (r *contentRepository) ApplyStageFields(ctx context.Context, id string, fields StageFields) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE content_pieces
		SET title      = COALESCE($1, title),
		    slug       = COALESCE($2, slug),
		    draft_text = COALESCE($3, draft_text),
		    final_text = COALESCE($4, final_text),
		    updated_at = $5
		WHERE id = $6
	`, fields.Title, fields.Slug, fields.DraftText, fields.FinalText, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("apply stage fields for content %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.ContentNotFoundError{ContentID: id}
	}
	return nil
}

func (r *contentRepository) MarkPublished(ctx context.Context, id string, wpPostID int64, wpURL string) error {
	now := time.Now().UTC()
	tag, err := r.pool.Exec(ctx, `
		UPDATE content_pieces
		SET status = $1, wp_post_id = $2, wp_url = $3, published_at = $4, updated_at = $4
		WHERE id = $5
	`, string(domain.ContentPublished), wpPostID, wpURL, now, id)
	if err != nil {
		return fmt.Errorf("mark published %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.ContentNotFoundError{ContentID: id}
	}
	return nil
}

const contentSelect = `
	SELECT id, plan_id, title, slug, draft_text, final_text, status,
	       wp_post_id, wp_url, created_at, updated_at, published_at
	FROM content_pieces`

func scanPiece(row interface {
	Scan(...any) error
}) (*domain.ContentPiece, error) {
	var piece domain.ContentPiece
	var statusStr string
	err := row.Scan(
		&piece.ID, &piece.PlanID, &piece.Title, &piece.Slug,
		&piece.DraftText, &piece.FinalText, &statusStr,
		&piece.WPPostID, &piece.WPURL, &piece.CreatedAt, &piece.UpdatedAt, &piece.PublishedAt,
	)
	if err != nil {
		return nil, err
	}
	piece.Status = domain.ContentStatus(statusStr)
	return &piece, nil
}
