package token

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	pkgerrors "github.com/pkg/errors"
)

const redisBlacklistPrefix = "revoked_jti:"

// RedisBlacklist stores revoked token IDs in Redis, relying on native key TTL
// for expiry. Purge is a no-op.
type RedisBlacklist struct {
	client  *redis.Client
	nowFunc func() time.Time
}

var _ Blacklist = (*RedisBlacklist)(nil)

func NewRedisBlacklist(client *redis.Client) *RedisBlacklist {
	return &RedisBlacklist{
		client:  client,
		nowFunc: time.Now,
	}
}

func (c *RedisBlacklist) Add(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(c.nowFunc())
	if ttl <= 0 {
		return nil
	}
	if err := c.client.Set(ctx, redisBlacklistPrefix+jti, "1", ttl).Err(); err != nil {
		return pkgerrors.Wrap(err, "RedisBlacklist.Add")
	}
	return nil
}

func (c *RedisBlacklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := c.client.Exists(ctx, redisBlacklistPrefix+jti).Result()
	if err != nil {
		return false, pkgerrors.Wrap(err, "RedisBlacklist.IsRevoked")
	}
	return n > 0, nil
}

func (c *RedisBlacklist) Purge(context.Context) (int, error) {
	return 0, nil // Redis expires keys itself
}
