package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/artisanal-iq/wordpress-content-generator/internal/kafka"
	"github.com/artisanal-iq/wordpress-content-generator/pkg/telemetry"
)

// Resolver applies human review decisions to escalated content pieces.
type Resolver interface {
	Resume(ctx context.Context, contentID, stage string) error
	Abandon(ctx context.Context, contentID string) error
	TriggerPoll()
}

// ReviewConsumer applies decisions arriving on the content.reviews topic.
// Decisions come from the review tooling after a stage escalated; resume
// re-queues the stage with a fresh retry budget, abandon stops the piece.
type ReviewConsumer struct {
	consumer kafka.Consumer
	resolver Resolver
	logger   *slog.Logger
}

// NewReviewConsumer builds a ReviewConsumer over an existing Kafka consumer.
func NewReviewConsumer(consumer kafka.Consumer, resolver Resolver, logger *slog.Logger) *ReviewConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReviewConsumer{consumer: consumer, resolver: resolver, logger: logger}
}

// Run consumes review decisions until ctx is cancelled.
func (r *ReviewConsumer) Run(ctx context.Context) error {
	return r.consumer.Subscribe(ctx, r.handle)
}

// handle applies one decision. Malformed decisions are committed and
// dropped — re-delivering them cannot make them valid.
func (r *ReviewConsumer) handle(ctx context.Context, msg kafka.Message) error {
	var decision kafka.ReviewDecision
	if err := json.Unmarshal(msg.Value, &decision); err != nil {
		r.logger.Error("malformed review decision, dropping",
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)
		return nil
	}

	log := r.logger.With(
		slog.String("content_id", decision.ContentID),
		slog.String("stage", decision.Stage),
		slog.String("action", decision.Action),
		slog.String("actor", decision.Actor),
	)

	switch decision.Action {
	case "resume":
		if err := r.resolver.Resume(ctx, decision.ContentID, decision.Stage); err != nil {
			log.Error("resume failed", slog.String("error", err.Error()))
			return fmt.Errorf("resume %s/%s: %w", decision.ContentID, decision.Stage, err)
		}
		r.resolver.TriggerPoll()
	case "abandon":
		if err := r.resolver.Abandon(ctx, decision.ContentID); err != nil {
			log.Error("abandon failed", slog.String("error", err.Error()))
			return fmt.Errorf("abandon %s: %w", decision.ContentID, err)
		}
	default:
		log.Error("unknown review action, dropping")
		return nil
	}

	telemetry.ReviewDecisionsTotal.WithLabelValues(decision.Action).Inc()
	log.Info("review decision applied")
	return nil
}
