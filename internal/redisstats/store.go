package redisstats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sdbsm/1CSessionManager-sub000/internal/models"
)

// DefaultPrefix namespaces every key written by the store.
const DefaultPrefix = "sessionmanager"

// ErrNoStats is returned when no snapshot is cached.
var ErrNoStats = errors.New("no cluster statistics in redis")

// Store writes the latest cluster snapshot under a single key and
// publishes a notification for subscribers.
type Store struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewStore creates a Store. A zero ttl keeps the snapshot until overwritten.
func NewStore(client redis.UniversalClient, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix, ttl: ttl}
}

// StatsKey is the key holding the JSON snapshot.
func (s *Store) StatsKey() string {
	return s.prefix + ":cluster:stats"
}

// Channel is the pub/sub channel notified after every save.
func (s *Store) Channel() string {
	return s.prefix + ":cluster:stats:updates"
}

// SaveStats stores the snapshot and notifies subscribers.
func (s *Store) SaveStats(ctx context.Context, stats *models.ClusterStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.StatsKey(), data, s.ttl)
		pipe.Publish(ctx, s.Channel(), stats.UpdatedAt.UTC().Format(time.RFC3339))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write stats to redis: %w", err)
	}
	return nil
}

// Latest returns the cached snapshot.
func (s *Store) Latest(ctx context.Context) (*models.ClusterStats, error) {
	data, err := s.client.Get(ctx, s.StatsKey()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNoStats
		}
		return nil, fmt.Errorf("failed to get stats from redis: %w", err)
	}

	var stats models.ClusterStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stats from redis: %w", err)
	}
	return &stats, nil
}

// Close releases the client.
func (s *Store) Close() error {
	return s.client.Close()
}
