package api

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the marker only while it still carries the caller's
// token, so a request that outlived the TTL cannot free a newer holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisGuard keeps one in-flight marker per user and control in Redis so a
// double submit is refused on every replica.
type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisGuard creates a guard. ttl bounds how long a crashed request can
// keep a control blocked.
func NewRedisGuard(client *redis.Client, ttl time.Duration) *RedisGuard {
	return &RedisGuard{client: client, ttl: ttl}
}

func (g *RedisGuard) key(userID, control string) string {
	return fmt.Sprintf("inflight:%s:%s", userID, control)
}

// Acquire sets the marker to a fresh token. The token is empty when the
// control is already held.
func (g *RedisGuard) Acquire(ctx context.Context, userID, control string) (string, bool, error) {
	token := uuid.NewString()
	ok, err := g.client.SetNX(ctx, g.key(userID, control), token, g.ttl).Result()
	if err != nil || !ok {
		return "", false, err
	}
	return token, true, nil
}

func (g *RedisGuard) Release(ctx context.Context, userID, control, token string) error {
	return releaseScript.Run(ctx, g.client, []string{g.key(userID, control)}, token).Err()
}
