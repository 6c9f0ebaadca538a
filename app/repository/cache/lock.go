package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"storefront-service/app/domain"

	"github.com/gofrs/uuid/v5"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisLocker struct {
	client *redis.Client
	prefix string
}

func NewRedisLocker(client *redis.Client) domain.Locker {
	return &redisLocker{
		client: client,
		prefix: "storefront:lock:",
	}
}

func (l *redisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	token, err := uuid.NewV4()
	if err != nil {
		return nil, false, err
	}

	lockKey := l.prefix + key
	acquired, err := l.client.SetNX(ctx, lockKey, token.String(), ttl).Result()
	if err != nil {
		slog.ErrorContext(ctx, "[redisLocker] TryLock", "setNX", err)
		return nil, false, fmt.Errorf("redis setnx failed: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}

	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{lockKey}, token.String()).Err(); err != nil {
			slog.ErrorContext(ctx, "[redisLocker] Release", "eval", err)
			return fmt.Errorf("redis release failed: %w", err)
		}
		return nil
	}

	return release, true, nil
}
