package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Elector provides scheduler leader election so multiple orchestrator
// instances can run while only one drives the poll loop. Ownership is a
// Redis key with a TTL; renewal is an atomic check-and-expire.
type Elector struct {
	client     *redis.Client
	key        string
	instanceID string
	ttl        time.Duration
}

// NewElector builds an Elector for the given lock key.
func NewElector(client *redis.Client, key, instanceID string, ttl time.Duration) *Elector {
	return &Elector{client: client, key: key, instanceID: instanceID, ttl: ttl}
}

// renewScript extends the TTL only if this instance still owns the key.
// Running it as a Lua script keeps get+expire atomic.
var renewScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	end
	return 0
`)

// AcquireOrRenew attempts to become leader, or renews an existing
// leadership. Returns true if this instance holds the lock after the call.
func (e *Elector) AcquireOrRenew(ctx context.Context) (bool, error) {
	ok, err := e.client.SetNX(ctx, e.key, e.instanceID, e.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("leader election SetNX: %w", err)
	}
	if ok {
		return true, nil
	}

	result, err := renewScript.Run(ctx, e.client, []string{e.key}, e.instanceID, e.ttl.Milliseconds()).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("leader renewal: %w", err)
	}
	return result == 1, nil
}

// Resign releases the lock if this instance owns it. Best effort on shutdown.
func (e *Elector) Resign(ctx context.Context) error {
	release := redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		end
		return 0
	`)
	if err := release.Run(ctx, e.client, []string{e.key}, e.instanceID).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("leader resign: %w", err)
	}
	return nil
}
