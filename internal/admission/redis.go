package admission

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrScript increments a counter and sets its expiry on first use, atomically
var incrScript = redis.NewScript(`
	local current = redis.call("incr", KEYS[1])
	if current == 1 then
		redis.call("expire", KEYS[1], ARGV[1])
	end
	return current
`)

// RedisCounter is a SharedCounter backed by redis.
// Every askgate process pointed at the same redis shares one count per key.
type RedisCounter struct {
	client redis.UniversalClient
}

// NewRedisCounter wraps an existing client
func NewRedisCounter(client redis.UniversalClient) *RedisCounter {
	return &RedisCounter{client: client}
}

// DialRedis connects to addr and verifies the connection
func DialRedis(ctx context.Context, addr string) (*RedisCounter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return NewRedisCounter(client), nil
}

// Allow increments key and reports whether the new count is within limit.
// The key expires window after its first increment.
func (r *RedisCounter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, error) {
	seconds := int(window.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	n, err := incrScript.Run(ctx, r.client, []string{key}, seconds).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to increment %s: %w", key, err)
	}
	return n <= limit, nil
}

// Close releases the redis connection
func (r *RedisCounter) Close() error {
	return r.client.Close()
}
