// Package redis holds the fast-read side of the pipeline: a live status
// mirror for dashboards, scheduler leader election, and the rate limiter in
// front of the WordPress API. Postgres stays the source of truth; everything
// here is disposable state with a TTL.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/artisanal-iq/wordpress-content-generator/internal/domain"
)

const (
	mirrorTTL = 24 * time.Hour
)

func contentKey(contentID string) string { return "content:status:" + contentID }
func pieceKey(contentID string) string   { return "content:meta:" + contentID }
func taskKey(taskID string) string       { return "task:status:" + taskID }

// StateStore mirrors pipeline state into Redis for cheap dashboard reads.
type StateStore interface {
	SetContentStatus(ctx context.Context, contentID string, status domain.ContentStatus) error
	GetContentStatus(ctx context.Context, contentID string) (domain.ContentStatus, error)
	SetPieceMeta(ctx context.Context, piece *domain.ContentPiece) error
	GetPieceMeta(ctx context.Context, contentID string) (*domain.ContentPiece, error)
	SetTaskStatus(ctx context.Context, taskID string, status domain.TaskStatus) error
	GetTaskStatus(ctx context.Context, taskID string) (domain.TaskStatus, error)
}

type stateStore struct {
	client *redis.Client
}

// NewStateStore creates a Redis-backed StateStore.
func NewStateStore(client *redis.Client) StateStore {
	return &stateStore{client: client}
}

// NewClient creates and returns a new Redis client.
func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
		PoolSize:     10,
	})
}

func (s *stateStore) SetContentStatus(ctx context.Context, contentID string, status domain.ContentStatus) error {
	if err := s.client.Set(ctx, contentKey(contentID), string(status), mirrorTTL).Err(); err != nil {
		return fmt.Errorf("redis set content status for %s: %w", contentID, err)
	}
	return nil
}

func (s *stateStore) GetContentStatus(ctx context.Context, contentID string) (domain.ContentStatus, error) {
	val, err := s.client.Get(ctx, contentKey(contentID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", &domain.ContentNotFoundError{ContentID: contentID}
		}
		return "", fmt.Errorf("redis get content status for %s: %w", contentID, err)
	}
	return domain.ContentStatus(val), nil
}

func (s *stateStore) SetPieceMeta(ctx context.Context, piece *domain.ContentPiece) error {
	data, err := json.Marshal(piece)
	if err != nil {
		return fmt.Errorf("marshal piece meta: %w", err)
	}
	if err := s.client.Set(ctx, pieceKey(piece.ID), data, mirrorTTL).Err(); err != nil {
		return fmt.Errorf("redis set piece meta for %s: %w", piece.ID, err)
	}
	return nil
}

func (s *stateStore) GetPieceMeta(ctx context.Context, contentID string) (*domain.ContentPiece, error) {
	data, err := s.client.Get(ctx, pieceKey(contentID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, &domain.ContentNotFoundError{ContentID: contentID}
		}
		return nil, fmt.Errorf("redis get piece meta for %s: %w", contentID, err)
	}
	var piece domain.ContentPiece
	if err := json.Unmarshal(data, &piece); err != nil {
		return nil, fmt.Errorf("unmarshal piece meta: %w", err)
	}
	return &piece, nil
}

func (s *stateStore) SetTaskStatus(ctx context.Context, taskID string, status domain.TaskStatus) error {
	if err := s.client.Set(ctx, taskKey(taskID), string(status), mirrorTTL).Err(); err != nil {
		return fmt.Errorf("redis set task status for %s: %w", taskID, err)
	}
	return nil
}

func (s *stateStore) GetTaskStatus(ctx context.Context, taskID string) (domain.TaskStatus, error) {
	val, err := s.client.Get(ctx, taskKey(taskID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", &domain.TaskNotFoundError{TaskID: taskID}
		}
		return "", fmt.Errorf("redis get task status for %s: %w", taskID, err)
	}
	return domain.TaskStatus(val), nil
}
