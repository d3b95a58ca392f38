package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"storefront/internal/domain"
)

type RedisStorage struct {
	client  *redis.Client
	baseTTL time.Duration
	log     zerolog.Logger
}

func NewRedisStorage(client *redis.Client, log zerolog.Logger) *RedisStorage {
	return &RedisStorage{
		client:  client,
		baseTTL: 30 * 24 * time.Hour,
		log:     log,
	}
}

func (r *RedisStorage) Load(ctx context.Context, key string) ([]domain.CartItem, error) {
	data, err := r.client.Get(ctx, storageKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCartNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var items []domain.CartItem
	if err2 := json.Unmarshal(data, &items); err2 != nil {
		// Malformed payloads fail safe to an empty cart.
		r.log.Warn().Err(err2).Str("cart_key", key).Msg("discarding malformed cart payload")
		return nil, nil
	}

	return items, nil
}

func (r *RedisStorage) Save(ctx context.Context, key string, items []domain.CartItem) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	jitter := time.Duration(rand.Intn(3600)) * time.Second
	ttl := r.baseTTL + jitter
	if err := r.client.Set(ctx, storageKey(key), string(data), ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisStorage) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, storageKey(key)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func storageKey(key string) string {
	return fmt.Sprintf("cart:%s", key)
}
