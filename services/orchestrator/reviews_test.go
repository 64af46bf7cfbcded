package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artisanal-iq/wordpress-content-generator/internal/kafka"
)

type fakeResolver struct {
	resumed   [][2]string
	abandoned []string
	poked     int
	err       error
}

func (f *fakeResolver) Resume(_ context.Context, contentID, stage string) error {
	if f.err != nil {
		return f.err
	}
	f.resumed = append(f.resumed, [2]string{contentID, stage})
	return nil
}

func (f *fakeResolver) Abandon(_ context.Context, contentID string) error {
	if f.err != nil {
		return f.err
	}
	f.abandoned = append(f.abandoned, contentID)
	return nil
}

func (f *fakeResolver) TriggerPoll() { f.poked++ }

func decisionMsg(value string) kafka.Message {
	return kafka.Message{Topic: kafka.TopicReviews, Value: []byte(value)}
}

func TestReviewConsumer_Resume(t *testing.T) {
	resolver := &fakeResolver{}
	rc := NewReviewConsumer(nil, resolver, slog.Default())

	err := rc.handle(context.Background(), decisionMsg(
		`{"content_id":"content-1","stage":"draft","action":"resume","actor":"editor@example.com"}`,
	))
	require.NoError(t, err)
	require.Equal(t, [][2]string{{"content-1", "draft"}}, resolver.resumed)
	assert.Equal(t, 1, resolver.poked, "poll triggered so the re-queued stage runs promptly")
}

func TestReviewConsumer_Abandon(t *testing.T) {
	resolver := &fakeResolver{}
	rc := NewReviewConsumer(nil, resolver, slog.Default())

	err := rc.handle(context.Background(), decisionMsg(
		`{"content_id":"content-2","action":"abandon"}`,
	))
	require.NoError(t, err)
	assert.Equal(t, []string{"content-2"}, resolver.abandoned)
	assert.Zero(t, resolver.poked)
}

func TestReviewConsumer_MalformedDecision_Committed(t *testing.T) {
	resolver := &fakeResolver{}
	rc := NewReviewConsumer(nil, resolver, slog.Default())

	err := rc.handle(context.Background(), decisionMsg(`not-json`))
	require.NoError(t, err, "malformed decisions are dropped, not re-delivered")
	assert.Empty(t, resolver.resumed)
	assert.Empty(t, resolver.abandoned)
}

func TestReviewConsumer_UnknownAction_Committed(t *testing.T) {
	resolver := &fakeResolver{}
	rc := NewReviewConsumer(nil, resolver, slog.Default())

	err := rc.handle(context.Background(), decisionMsg(
		`{"content_id":"content-3","action":"escalate-harder"}`,
	))
	require.NoError(t, err)
	assert.Empty(t, resolver.resumed)
	assert.Empty(t, resolver.abandoned)
}

func TestReviewConsumer_ResolverError_NotCommitted(t *testing.T) {
	resolver := &fakeResolver{err: errors.New("pg down")}
	rc := NewReviewConsumer(nil, resolver, slog.Default())

	err := rc.handle(context.Background(), decisionMsg(
		`{"content_id":"content-4","stage":"draft","action":"resume"}`,
	))
	require.Error(t, err, "failed decisions must be re-delivered")
}
