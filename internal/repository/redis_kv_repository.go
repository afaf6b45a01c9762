package repository

import (
	"context"
	"errors"
	"oabt_client/internal/util"

	"github.com/go-redis/redis/v8"
)

// RedisKVRepository 把本地存储放在 redis 上，多个客户端进程共享同一份登录态时使用
type RedisKVRepository struct {
	Redis  *redis.Client
	Prefix string
}

func NewRedisKVRepository(rdb *redis.Client, prefix string) *RedisKVRepository {
	return &RedisKVRepository{Redis: rdb, Prefix: prefix}
}

func (r *RedisKVRepository) key(k string) string {
	return r.Prefix + k
}

func (r *RedisKVRepository) Get(ctx context.Context, key string) (string, error) {
	v, err := r.Redis.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", util.ErrKeyNotFound
	}
	return v, err
}

func (r *RedisKVRepository) Set(ctx context.Context, key, value string) error {
	return r.Redis.Set(ctx, r.key(key), value, 0).Err()
}

func (r *RedisKVRepository) Remove(ctx context.Context, key string) error {
	return r.Redis.Del(ctx, r.key(key)).Err()
}

func (r *RedisKVRepository) MultiSet(ctx context.Context, pairs map[string]string) error {
	_, err := r.Redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range pairs {
			pipe.Set(ctx, r.key(k), v, 0)
		}
		return nil
	})
	return err
}

func (r *RedisKVRepository) MultiRemove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.key(k)
	}
	return r.Redis.Del(ctx, full...).Err()
}

func (r *RedisKVRepository) Ping(ctx context.Context) error {
	return r.Redis.Ping(ctx).Err()
}
