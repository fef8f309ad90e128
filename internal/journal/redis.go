package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fleetforge/fleetforge/internal/config"
)

// Redis journals placement history into per-session Redis lists.
type Redis struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedis creates a Redis-backed journal and verifies the connection.
func NewRedis(cfg config.RedisConfig, logger *zap.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Journal connected to Redis", zap.String("addr", cfg.Address()))

	return &Redis{client: client, logger: logger}, nil
}

// RecordPlacements appends the batch as JSON entries to the session's
// placement list.
func (r *Redis) RecordPlacements(ctx context.Context, sessionID string, placements []Placement) error {
	key := placementsKey(sessionID)

	entries := make([]interface{}, len(placements))
	for i, p := range placements {
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to marshal placement: %w", err)
		}
		entries[i] = data
	}

	if err := r.client.RPush(ctx, key, entries...).Err(); err != nil {
		return fmt.Errorf("redis rpush error: %w", err)
	}
	return nil
}

// RecordDeletions appends the deleted indices to the session's deletion
// list.
func (r *Redis) RecordDeletions(ctx context.Context, sessionID string, vmIndices []int) error {
	key := deletionsKey(sessionID)

	entries := make([]interface{}, len(vmIndices))
	for i, idx := range vmIndices {
		entries[i] = idx
	}

	if err := r.client.RPush(ctx, key, entries...).Err(); err != nil {
		return fmt.Errorf("redis rpush error: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}

func placementsKey(sessionID string) string {
	return fmt.Sprintf("journal:%s:placements", sessionID)
}

func deletionsKey(sessionID string) string {
	return fmt.Sprintf("journal:%s:deletions", sessionID)
}
