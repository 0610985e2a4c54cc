package cache

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisAdapter 把缓存条目写入 Redis. TTL 仍由 Manager 的信封承载,
// Redis 侧不设置过期时间, 这样换后端时过期语义不变.
type RedisAdapter struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisAdapter 创建 Redis 后端. prefix 用于和同库的其它业务隔离.
func NewRedisAdapter(client redis.UniversalClient, prefix string) *RedisAdapter {
	if prefix == "" {
		prefix = "personaflow:cache:"
	}
	return &RedisAdapter{client: client, prefix: prefix}
}

func (a *RedisAdapter) Name() string { return "redis" }

func (a *RedisAdapter) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := a.client.Get(ctx, a.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (a *RedisAdapter) Set(ctx context.Context, key, value string) error {
	return a.client.Set(ctx, a.prefix+key, value, 0).Err()
}

func (a *RedisAdapter) Delete(ctx context.Context, key string) error {
	return a.client.Del(ctx, a.prefix+key).Err()
}
