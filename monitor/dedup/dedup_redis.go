package dedup

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

var redisDedupPrefix = "dedup/"

type RedisTracker struct {
	Client    *redis.Client
	Retention time.Duration
}

func NewRedisTracker(redisURL string, retention time.Duration) (*RedisTracker, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	_, err = rdb.Ping(context.TODO()).Result()
	if err != nil {
		return nil, err
	}
	return &RedisTracker{Client: rdb, Retention: retention}, nil
}

func (t *RedisTracker) HasReported(ctx context.Context, key string) (bool, error) {
	_, err := t.Client.Get(ctx, redisDedupPrefix+key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (t *RedisTracker) MarkReported(ctx context.Context, key string) error {
	return t.Client.Set(ctx, redisDedupPrefix+key, "1", t.Retention).Err()
}
