package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const (
	// TopicEvents carries the pipeline event stream consumed by dashboards.
	TopicEvents = "content.events"
	// TopicReviews carries human review decisions back into the orchestrator.
	TopicReviews = "content.reviews"
)

// Pipeline event types.
const (
	EventStageDone     = "stage.done"
	EventStageRetry    = "stage.retry"
	EventStageEscalate = "stage.escalated"
	EventPublished     = "content.published"
)

// PipelineEvent is one entry on the content.events topic.
type PipelineEvent struct {
	Type       string    `json:"type"`
	ContentID  string    `json:"content_id"`
	Stage      string    `json:"stage,omitempty"`
	TaskID     string    `json:"task_id,omitempty"`
	RetryCount int       `json:"retry_count,omitempty"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ReviewDecision is a human resolution of an escalated piece, published on
// content.reviews by the review tooling.
type ReviewDecision struct {
	ContentID string `json:"content_id"`
	Stage     string `json:"stage"`
	// Action is "resume" (re-queue the stage with a fresh retry budget) or
	// "abandon" (stop the pipeline for this piece).
	Action string `json:"action"`
	Actor  string `json:"actor,omitempty"`
}

// EventPublisher emits pipeline events, keyed by content ID so events for
// one piece stay ordered.
type EventPublisher struct {
	producer Producer
}

// NewEventPublisher wraps a Producer.
func NewEventPublisher(producer Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// Emit publishes one event. The caller decides whether a failure matters;
// the scheduler treats event publishing as best effort.
func (e *EventPublisher) Emit(ctx context.Context, ev PipelineEvent) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal pipeline event: %w", err)
	}
	return e.producer.Publish(ctx, TopicEvents, ev.ContentID, payload)
}
