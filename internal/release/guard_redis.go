package release

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const guardKeyPrefix = "lifekey:release:consumed:"

// RedisGuard fences redemptions across instances with SET NX. The key lives
// only as long as the release could still be redeemed.
type RedisGuard struct {
	client *redis.Client
}

func NewRedisGuard(client *redis.Client) *RedisGuard {
	return &RedisGuard{client: client}
}

func (g *RedisGuard) Acquire(ctx context.Context, token string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = time.Minute
	}
	ok, err := g.client.SetNX(ctx, guardKeyPrefix+token, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire consume guard: %w", err)
	}
	return ok, nil
}
