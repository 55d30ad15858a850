package checkpoint

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

var redisCursorKey = "pkgwatch/cursor"

// generous TTL; the cursor is refreshed on every save, expiry only matters
// for an abandoned deployment
var redisCursorTTL = 30 * 24 * time.Hour

type RedisStore struct {
	Client *redis.Client
}

func NewRedisStore(redisURL string) (*RedisStore, error) {
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
	return &RedisStore{Client: rdb}, nil
}

func (s *RedisStore) Load(ctx context.Context) (Cursor, error) {
	val, err := s.Client.Get(ctx, redisCursorKey).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return Cursor(val), nil
}

func (s *RedisStore) Save(ctx context.Context, c Cursor) error {
	return s.Client.Set(ctx, redisCursorKey, string(c), redisCursorTTL).Err()
}
