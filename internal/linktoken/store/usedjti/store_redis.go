package usedjti

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "used_jti:"

// RedisStore is a Redis-backed single-use ledger for multi-instance
// deployments. SET NX makes the first-use check atomic across replicas.
type RedisStore struct {
	client *redis.Client
}

// NewRedis constructs a Redis-backed ledger.
func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) MarkUsed(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = time.Second
	}
	first, err := s.client.SetNX(ctx, keyPrefix+jti, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark jti used: %w", err)
	}
	return first, nil
}
