package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/artisanal-iq/wordpress-content-generator/internal/domain"
)

// CreatePiece creates a content piece under the given strategic plan and
// queues the entry stage for it. The returned piece is ready to be picked
// up by the next poll cycle.
func (s *Scheduler) CreatePiece(ctx context.Context, planID string) (*domain.ContentPiece, error) {
	if _, err := s.plans.GetByID(ctx, planID); err != nil {
		return nil, err
	}

	piece := &domain.ContentPiece{
		PlanID: planID,
		Status: domain.ContentStatus(s.registry.EntryStage()),
	}
	if err := s.content.Create(ctx, piece); err != nil {
		return nil, err
	}

	if err := s.queueStage(ctx, piece.ID, s.registry.EntryStage()); err != nil {
		return nil, fmt.Errorf("queue entry stage for %s: %w", piece.ID, err)
	}

	s.mirrorContent(ctx, piece.ID, piece.Status)
	s.logger.Info("content piece created",
		slog.String("content_id", piece.ID),
		slog.String("plan_id", planID),
		slog.String("stage", s.registry.EntryStage()),
	)
	return piece, nil
}

// AdvanceOne synchronously runs the next due record for one content piece,
// bypassing the poll interval. Used by the CLI and the control API for
// stepping a piece through the pipeline by hand.
func (s *Scheduler) AdvanceOne(ctx context.Context, contentID string) (*domain.TaskRecord, error) {
	records, err := s.tasks.ListByContent(ctx, contentID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for _, task := range records {
		if task.Status != domain.TaskQueued {
			continue
		}
		if task.NotBefore != nil && task.NotBefore.After(now) {
			continue
		}
		s.process(ctx, task)
		return s.tasks.GetByID(ctx, task.ID)
	}
	return nil, fmt.Errorf("no due task record for content piece %s", contentID)
}

// Resume re-queues an escalated stage with a fresh retry budget. The
// needs_review record stays in the history as the escalation marker.
func (s *Scheduler) Resume(ctx context.Context, contentID, stage string) error {
	if !s.registry.Contains(stage) {
		return &domain.UnknownStageError{Stage: stage}
	}
	piece, err := s.content.GetByID(ctx, contentID)
	if err != nil {
		return err
	}
	if piece.Status == domain.ContentPublished {
		return fmt.Errorf("content piece %s is already published", contentID)
	}
	if piece.Status == domain.ContentNeedsReview {
		if err := s.content.UpdateStatus(ctx, contentID, domain.ContentStatus(stage)); err != nil {
			return err
		}
		s.mirrorContent(ctx, contentID, domain.ContentStatus(stage))
	}
	return s.queueStage(ctx, contentID, stage)
}

// Abandon stops the pipeline for a piece: no new records are queued and the
// piece is marked needs_review so the terminal check skips any stragglers.
func (s *Scheduler) Abandon(ctx context.Context, contentID string) error {
	piece, err := s.content.GetByID(ctx, contentID)
	if err != nil {
		return err
	}
	if piece.Status.IsTerminal() {
		return fmt.Errorf("content piece %s is already %s", contentID, piece.Status)
	}
	if err := s.content.UpdateStatus(ctx, contentID, domain.ContentNeedsReview); err != nil {
		return err
	}
	s.mirrorContent(ctx, contentID, domain.ContentNeedsReview)
	return nil
}
