package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/ramyshaaban/video-library/internal/domain"
)

// RedisStore shares signed URLs between replicas. Each key carries a Redis
// TTL equal to the remaining lifetime of the URL.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisClient connects and pings.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, now: time.Now}
}

func (s *RedisStore) Get(ctx context.Context, key string) (domain.SignedAccess, bool, error) {
	val, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.SignedAccess{}, false, nil
	} else if err != nil {
		return domain.SignedAccess{}, false, fmt.Errorf("failed to get signed url: %w", err)
	}

	var access domain.SignedAccess
	if err := json.Unmarshal(val, &access); err != nil {
		return domain.SignedAccess{}, false, fmt.Errorf("failed to unmarshal signed url: %w", err)
	}
	return access, true, nil
}

// Set skips entries that are already expired; Redis rejects a non-positive TTL
// as "no expiry", which would keep a dead URL forever.
func (s *RedisStore) Set(ctx context.Context, key string, access domain.SignedAccess) error {
	ttl := access.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(access)
	if err != nil {
		return fmt.Errorf("failed to marshal signed url: %w", err)
	}
	return s.client.Set(ctx, s.prefix+key, data, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}
