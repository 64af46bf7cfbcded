//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artisanal-iq/wordpress-content-generator/internal/domain"
	redisstore "github.com/artisanal-iq/wordpress-content-generator/internal/redis"
)

// newRedisClient returns a client connected to the test container and flushes
// the database on test cleanup so tests don't interfere with each other.
func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: testRedisAddr})
	t.Cleanup(func() {
		client.FlushDB(context.Background()) //nolint:errcheck
		client.Close()                       //nolint:errcheck
	})
	return client
}

func TestRedis_ContentStatus_RoundTrip(t *testing.T) {
	store := redisstore.NewStateStore(newRedisClient(t))
	ctx := context.Background()

	require.NoError(t, store.SetContentStatus(ctx, "content-1", domain.ContentDraft))

	got, err := store.GetContentStatus(ctx, "content-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ContentDraft, got)
}

func TestRedis_ContentStatus_NotFound(t *testing.T) {
	store := redisstore.NewStateStore(newRedisClient(t))

	_, err := store.GetContentStatus(context.Background(), "does-not-exist")
	var notFound *domain.ContentNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "does-not-exist", notFound.ContentID)
}

func TestRedis_PieceMeta_RoundTrip(t *testing.T) {
	store := redisstore.NewStateStore(newRedisClient(t))
	ctx := context.Background()

	piece := &domain.ContentPiece{
		ID:     "content-meta-1",
		PlanID: "plan-1",
		Title:  "Hello",
		Status: domain.ContentResearch,
	}
	require.NoError(t, store.SetPieceMeta(ctx, piece))

	got, err := store.GetPieceMeta(ctx, piece.ID)
	require.NoError(t, err)
	assert.Equal(t, piece.Title, got.Title)
	assert.Equal(t, piece.Status, got.Status)
}

func TestRedis_TaskStatus_PipelineTransitions(t *testing.T) {
	store := redisstore.NewStateStore(newRedisClient(t))
	ctx := context.Background()

	transitions := []domain.TaskStatus{
		domain.TaskQueued,
		domain.TaskProcessing,
		domain.TaskError,
		domain.TaskNeedsReview,
	}
	for _, status := range transitions {
		require.NoError(t, store.SetTaskStatus(ctx, "task-fsm", status))
		got, err := store.GetTaskStatus(ctx, "task-fsm")
		require.NoError(t, err)
		assert.Equal(t, status, got, "status should be %s", status)
	}
}

// ── Leader election ──────────────────────────────────────────────────────────

func TestElector_SingleLeader(t *testing.T) {
	client := newRedisClient(t)
	ctx := context.Background()

	a := redisstore.NewElector(client, "test:leader", "instance-a", time.Second)
	b := redisstore.NewElector(client, "test:leader", "instance-b", time.Second)

	leaderA, err := a.AcquireOrRenew(ctx)
	require.NoError(t, err)
	assert.True(t, leaderA)

	leaderB, err := b.AcquireOrRenew(ctx)
	require.NoError(t, err)
	assert.False(t, leaderB, "second instance must not also lead")

	// The holder renews its own lease.
	stillA, err := a.AcquireOrRenew(ctx)
	require.NoError(t, err)
	assert.True(t, stillA)
}

func TestElector_ResignHandsOver(t *testing.T) {
	client := newRedisClient(t)
	ctx := context.Background()

	a := redisstore.NewElector(client, "test:leader", "instance-a", time.Second)
	b := redisstore.NewElector(client, "test:leader", "instance-b", time.Second)

	leaderA, err := a.AcquireOrRenew(ctx)
	require.NoError(t, err)
	require.True(t, leaderA)

	require.NoError(t, a.Resign(ctx))

	leaderB, err := b.AcquireOrRenew(ctx)
	require.NoError(t, err)
	assert.True(t, leaderB, "lease released by resign")
}

// ── Rate limiter ─────────────────────────────────────────────────────────────

func TestRateLimiter_AllowsWithinLimit(t *testing.T) {
	limiter := redisstore.NewRateLimiter(newRedisClient(t), 5, time.Second)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ok, err := limiter.Allow(ctx, "within-limit")
		require.NoError(t, err)
		assert.True(t, ok, "request %d should be allowed", i+1)
	}
}

func TestRateLimiter_BlocksOverLimit(t *testing.T) {
	limiter := redisstore.NewRateLimiter(newRedisClient(t), 3, time.Second)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := limiter.Allow(ctx, "over-limit")
		require.NoError(t, err)
		require.True(t, ok)
	}

	ok, err := limiter.Allow(ctx, "over-limit")
	require.NoError(t, err)
	assert.False(t, ok, "4th request should be rate-limited")
}

func TestRateLimiter_WindowExpiry(t *testing.T) {
	// Use a short window so the test doesn't take too long.
	window := 200 * time.Millisecond
	limiter := redisstore.NewRateLimiter(newRedisClient(t), 2, window)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := limiter.Allow(ctx, "expiry-key")
		require.NoError(t, err)
		require.True(t, ok)
	}

	ok, err := limiter.Allow(ctx, "expiry-key")
	require.NoError(t, err)
	assert.False(t, ok, "should be blocked within window")

	time.Sleep(window + 50*time.Millisecond)

	ok, err = limiter.Allow(ctx, "expiry-key")
	require.NoError(t, err)
	assert.True(t, ok, "should be allowed after window expires")
}
