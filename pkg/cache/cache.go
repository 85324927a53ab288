package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const keyPrefix = "catalog:"

var ErrUnavailable = errors.New("redis client not available")

// RedisCache keeps raw source payloads between catalog loads. A nil *RedisCache
// is valid and behaves as an always-missing cache.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache connects to redisURL and returns nil when Redis is unreachable,
// so callers run uncached.
func NewRedisCache(redisURL string, db int, ttl time.Duration) *RedisCache {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Warnf("Failed to parse Redis URL: %v", err)
		return nil
	}
	opt.DB = db

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warnf("Redis connection failed: %v", err)
		_ = client.Close()
		return nil
	}

	log.Infof("Redis connected successfully, DB: %d, TTL: %s", db, ttl)
	return NewRedisCacheFromClient(client, ttl)
}

func NewRedisCacheFromClient(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// GetPayload returns nil, nil on a cache miss.
func (r *RedisCache) GetPayload(ctx context.Context, key string) ([]byte, error) {
	if r == nil || r.client == nil {
		return nil, ErrUnavailable
	}

	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get error: %w", err)
	}
	return val, nil
}

func (r *RedisCache) SetPayload(ctx context.Context, key string, payload []byte) error {
	if r == nil || r.client == nil {
		return ErrUnavailable
	}
	return r.client.Set(ctx, key, payload, r.ttl).Err()
}

func (r *RedisCache) GenerateSourceKey(source, url string) string {
	return fmt.Sprintf("%sraw:%s:%s", keyPrefix, source, url)
}

func (r *RedisCache) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}

func (r *RedisCache) IsAvailable() bool {
	return r != nil && r.client != nil
}

func (r *RedisCache) GetStats(ctx context.Context) map[string]interface{} {
	if r == nil || r.client == nil {
		return map[string]interface{}{
			"status": "unavailable",
		}
	}

	stats := map[string]interface{}{
		"status":      "connected",
		"ttl_seconds": int(r.ttl.Seconds()),
		"keys":        len(r.GetAllKeys(ctx)),
	}
	if info, err := r.client.Info(ctx, "memory").Result(); err == nil {
		stats["memory_info"] = info
	}
	return stats
}

// GetAllKeys lists the keys this service owns.
func (r *RedisCache) GetAllKeys(ctx context.Context) []string {
	if r == nil || r.client == nil {
		return []string{}
	}

	keys := []string{}
	iter := r.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		log.Warnf("redis scan error: %v", err)
	}
	return keys
}

// FlushCache deletes the catalog keys only; the rest of the database is untouched.
func (r *RedisCache) FlushCache(ctx context.Context) (int, error) {
	if r == nil || r.client == nil {
		return 0, ErrUnavailable
	}

	keys := r.GetAllKeys(ctx)
	if len(keys) == 0 {
		return 0, nil
	}
	deleted, err := r.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis del error: %w", err)
	}
	return int(deleted), nil
}

func (r *RedisCache) GetKeyTTL(ctx context.Context, key string) time.Duration {
	if r == nil || r.client == nil {
		return 0
	}
	ttl, err := r.client.TTL(ctx, key).Result()
	if err != nil {
		return 0
	}
	return ttl
}
