package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue pushes messages onto a Redis list consumed by the worker.
type RedisQueue struct {
	client *redis.Client
	name   string
}

// NewRedisConnector returns a Connector that dials Redis and verifies the connection.
func NewRedisConnector(config Config) Connector {
	return func(ctx context.Context) (Queue, error) {
		client := redis.NewClient(&redis.Options{
			Addr:     config.Address,
			Password: config.Password,
			DB:       config.DB,
		})

		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to ping redis at %s: %w", config.Address, err)
		}
		slog.Info("connected to redis queue", "address", config.Address, "queue", config.Name)

		return &RedisQueue{
			client: client,
			name:   config.Name,
		}, nil
	}
}

func (q *RedisQueue) Send(ctx context.Context, body string, retention time.Duration) error {
	pipe := q.client.TxPipeline()
	pipe.RPush(ctx, q.name, body)
	if retention <= RetainForever {
		pipe.Persist(ctx, q.name)
	} else {
		// Lists expire as a whole; each send extends the window.
		pipe.Expire(ctx, q.name, retention)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to push message onto %s: %w", q.name, err)
	}
	return nil
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
