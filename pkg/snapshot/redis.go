package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/mattpat48/se4iot-se4as/pkg/config"
)

// RedisConfig holds the Redis connection settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisStore keeps each snapshot as a JSON string under city:snapshot:<agent>
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     4,
		MinIdleConns: 1,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func snapshotKey(agentID string) string {
	return fmt.Sprintf("city:snapshot:%s", agentID)
}

// Save implements Store
func (r *RedisStore) Save(ctx context.Context, agentID string, snap config.Snapshot) error {
	data, err := encode(snap)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, snapshotKey(agentID), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set snapshot failed: %w", err)
	}
	return nil
}

// Load implements Store
func (r *RedisStore) Load(ctx context.Context, agentID string) (*config.Snapshot, error) {
	data, err := r.client.Get(ctx, snapshotKey(agentID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get snapshot failed: %w", err)
	}
	return decode(data)
}

// Ping checks the connection
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the client
func (r *RedisStore) Close() error {
	return r.client.Close()
}
