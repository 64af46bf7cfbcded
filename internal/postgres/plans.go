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

// PlanRepository reads and writes strategic plans.
type PlanRepository interface {
	Create(ctx context.Context, plan *domain.StrategicPlan) error
	GetByID(ctx context.Context, id string) (*domain.StrategicPlan, error)
}

type planRepository struct {
	pool *pgxpool.Pool
}

// NewPlanRepository wraps a pgxpool with the PlanRepository interface.
func NewPlanRepository(pool *pgxpool.Pool) PlanRepository {
	return &planRepository{pool: pool}
}

func (r *planRepository) Create(ctx context.Context, plan *domain.StrategicPlan) error {
	if plan.ID == "" {
		plan.ID = uuid.New().String()
	}
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO strategic_plans (id, domain, audience, tone, niche, goal, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, plan.ID, plan.Domain, plan.Audience, plan.Tone, plan.Niche, plan.Goal, plan.CreatedAt)
	if err != nil {
		return fmt.Errorf("create strategic plan %s: %w", plan.ID, err)
	}
	return nil
}

func (r *planRepository) GetByID(ctx context.Context, id string) (*domain.StrategicPlan, error) {
	var plan domain.StrategicPlan
	err := r.pool.QueryRow(ctx, `
		SELECT id, domain, audience, tone, niche, goal, created_at
		FROM strategic_plans
		WHERE id = $1
	`, id).Scan(&plan.ID, &plan.Domain, &plan.Audience, &plan.Tone, &plan.Niche, &plan.Goal, &plan.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.PlanNotFoundError{PlanID: id}
		}
		return nil, fmt.Errorf("get strategic plan %s: %w", id, err)
	}
	return &plan, nil
}
