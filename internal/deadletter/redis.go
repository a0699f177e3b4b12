package deadletter

import (
	"context"
	"encoding/json"
	"fmt"

	"finqueue/internal/config"
	"finqueue/internal/models"

	"github.com/redis/go-redis/v9"
)

const deadLetterKey = "finqueue:deadletter"

type RedisStore struct {
	client *redis.Client
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Push(ctx context.Context, entry *models.QueueEntry) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}
	if err := r.client.LPush(ctx, deadLetterKey, data).Err(); err != nil {
		return fmt.Errorf("failed to push dead letter: %w", err)
	}
	return nil
}

func (r *RedisStore) List(ctx context.Context) ([]models.QueueEntry, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	values, err := r.client.LRange(ctx, deadLetterKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}

	var entries []models.QueueEntry
	for _, v := range values {
		var e models.QueueEntry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal dead letter: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (r *RedisStore) Remove(ctx context.Context, id int64) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	values, err := r.client.LRange(ctx, deadLetterKey, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to list dead letters: %w", err)
	}

	for _, v := range values {
		var e models.QueueEntry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			continue
		}
		if e.ID == id {
			if err := r.client.LRem(ctx, deadLetterKey, 1, v).Err(); err != nil {
				return fmt.Errorf("failed to remove dead letter: %w", err)
			}
			return nil
		}
	}
	return nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}
