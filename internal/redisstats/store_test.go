package redisstats

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sdbsm/1CSessionManager-sub000/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUniversalClient(t *testing.T) {
	t.Run("host and port", func(t *testing.T) {
		client, err := NewUniversalClient("localhost:6379")
		require.NoError(t, err)
		require.NotNil(t, client)
		defer client.Close()
	})

	t.Run("url with options", func(t *testing.T) {
		client, err := NewUniversalClient("redis://localhost:6379/2", WithPassword("secret"), WithDB(3))
		require.NoError(t, err)
		defer client.Close()
	})

	t.Run("empty address", func(t *testing.T) {
		client, err := NewUniversalClient(" ")
		require.Error(t, err)
		assert.Nil(t, client)
	})

	t.Run("invalid url", func(t *testing.T) {
		client, err := NewUniversalClient("://invalid")
		require.Error(t, err)
		assert.Nil(t, client)
	})
}

func TestStore_Keys(t *testing.T) {
	s := NewStore(nil, "", 0)
	assert.Equal(t, "sessionmanager:cluster:stats", s.StatsKey())
	assert.Equal(t, "sessionmanager:cluster:stats:updates", s.Channel())

	s = NewStore(nil, "prod", time.Minute)
	assert.Equal(t, "prod:cluster:stats", s.StatsKey())
}

func TestStore_UnreachableServer(t *testing.T) {
	client, err := NewUniversalClient("127.0.0.1:1", func(o *redis.Options) {
		o.DialTimeout = 100 * time.Millisecond
		o.MaxRetries = -1
	})
	require.NoError(t, err)
	store := NewStore(client, "test", time.Minute)
	defer store.Close()

	err = store.SaveStats(context.Background(), models.OfflineStats(time.Now()))
	assert.Error(t, err)
}

// TestStore_RoundTrip needs a live server: SESSIONMANAGER_TEST_REDIS=localhost:6379.
func TestStore_RoundTrip(t *testing.T) {
	addr := os.Getenv("SESSIONMANAGER_TEST_REDIS")
	if addr == "" {
		t.Skip("SESSIONMANAGER_TEST_REDIS not set")
	}

	client, err := NewUniversalClient(addr)
	require.NoError(t, err)
	store := NewStore(client, "sessionmanager-test", time.Minute)
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client.Del(ctx, store.StatsKey())

	_, err = store.Latest(ctx)
	require.ErrorIs(t, err, ErrNoStats)

	stats := &models.ClusterStats{
		Online:        true,
		ClusterID:     "cl-1",
		TotalSessions: 2,
		ByInfobase:    map[string]int{"acme_buh": 2},
		ByAppKind:     map[string]int{"1CV8C": 2},
		UpdatedAt:     time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.SaveStats(ctx, stats))

	got, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, stats.ClusterID, got.ClusterID)
	assert.Equal(t, stats.ByInfobase, got.ByInfobase)
	assert.True(t, stats.UpdatedAt.Equal(got.UpdatedAt))

	ttl, err := client.TTL(ctx, store.StatsKey()).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}
