package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tillsync/internal/config"
	"tillsync/internal/domain"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a document cache in front of the durable store. Keys are
// namespaced as doc:{collection}:{key} and carry a TTL so a cold cache
// self-heals from the authoritative store.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient creates a redis client from configuration.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func docKey(collection, key string) string {
	return fmt.Sprintf("doc:%s:%s", collection, key)
}

func (r *RedisStore) Get(ctx context.Context, collection, key string) ([]byte, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, docKey(collection, key)).Bytes()
	if err == redis.Nil {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document from redis: %w", err)
	}
	return val, nil
}

func (r *RedisStore) Put(ctx context.Context, collection, key string, content []byte) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Set(ctx, docKey(collection, key), content, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set document in redis: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, collection, key string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Del(ctx, docKey(collection, key)).Err(); err != nil {
		return fmt.Errorf("failed to delete document from redis: %w", err)
	}
	return nil
}

func (r *RedisStore) Keys(ctx context.Context, collection, suffix string) ([]string, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}

	prefix := fmt.Sprintf("doc:%s:", collection)
	var keys []string
	iter := r.client.Scan(ctx, 0, prefix+"*"+suffix, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan redis keys: %w", err)
	}
	return keys, nil
}

// Ping verifies the redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	return nil
}

// Close closes the redis connection.
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
