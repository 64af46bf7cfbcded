package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingProducer struct {
	topic   string
	key     string
	payload []byte
	err     error
}

func (p *recordingProducer) Publish(_ context.Context, topic, key string, value []byte) error {
	if p.err != nil {
		return p.err
	}
	p.topic, p.key, p.payload = topic, key, value
	return nil
}

func (p *recordingProducer) Close() error { return nil }

func TestEventPublisher_KeyedByContentID(t *testing.T) {
	prod := &recordingProducer{}
	pub := NewEventPublisher(prod)

	err := pub.Emit(context.Background(), PipelineEvent{
		Type:      EventStageDone,
		ContentID: "content-1",
		Stage:     "draft",
		TaskID:    "task-9",
	})
	require.NoError(t, err)

	assert.Equal(t, TopicEvents, prod.topic)
	assert.Equal(t, "content-1", prod.key, "events for one piece must stay ordered")

	var ev PipelineEvent
	require.NoError(t, json.Unmarshal(prod.payload, &ev))
	assert.Equal(t, EventStageDone, ev.Type)
	assert.False(t, ev.OccurredAt.IsZero(), "timestamp filled in when absent")
}

func TestEventPublisher_ProducerError(t *testing.T) {
	pub := NewEventPublisher(&recordingProducer{err: errors.New("broker down")})

	err := pub.Emit(context.Background(), PipelineEvent{Type: EventStageRetry, ContentID: "c"})
	require.Error(t, err)
}
