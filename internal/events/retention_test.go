package events

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sdbsm/1CSessionManager-sub000/internal/config"
	"github.com/sdbsm/1CSessionManager-sub000/internal/models"
	"github.com/sdbsm/1CSessionManager-sub000/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func newRetentionConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Global.DataDir = t.TempDir()
	cfg.EventRetention.MaxAge = 24 * time.Hour
	cfg.EventRetention.BatchSize = 2
	return cfg
}

func seedEvents(t *testing.T, env *testutil.TestDBEnv, ages ...time.Duration) {
	t.Helper()
	for i, age := range ages {
		require.NoError(t, env.EventRepo.Append(context.Background(), &models.Event{
			Timestamp: fixedNow.Add(-age),
			Severity:  models.EventSeverityInfo,
			Message:   "event " + string(rune('a'+i)),
		}))
	}
}

func TestRunCleanupDeletesInBatches(t *testing.T) {
	env := testutil.NewTestDBEnv(t)
	ctx := context.Background()
	seedEvents(t, env, 96*time.Hour, 72*time.Hour, 48*time.Hour, 30*time.Hour, 50*time.Hour, time.Hour)

	svc := NewRetentionService(newRetentionConfig(t), env.EventRepo, env.StatsRepo)
	svc.now = func() time.Time { return fixedNow }

	result, err := svc.RunCleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), result.EventsDeleted)
	assert.Zero(t, result.EventsArchived)
	assert.Equal(t, fixedNow.Add(-24*time.Hour), result.Cutoff)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.EventCount)
	assert.Equal(t, int64(5), stats.TotalDeleted)
	require.NotNil(t, stats.OldestEvent)
	assert.True(t, stats.OldestEvent.Equal(fixedNow.Add(-time.Hour)))
	assert.Equal(t, fixedNow, stats.LastCleanup)
}

func TestRunCleanupArchivesBeforeDelete(t *testing.T) {
	env := testutil.NewTestDBEnv(t)
	ctx := context.Background()
	seedEvents(t, env, 72*time.Hour, 49*time.Hour, 48*time.Hour+time.Minute, time.Hour)

	cfg := newRetentionConfig(t)
	cfg.EventRetention.ArchiveBeforeDelete = true
	svc := NewRetentionService(cfg, env.EventRepo, nil)
	svc.now = func() time.Time { return fixedNow }

	result, err := svc.RunCleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.EventsDeleted)
	assert.Equal(t, int64(3), result.EventsArchived)

	dir := filepath.Join(cfg.Global.DataDir, "archives")
	assert.Equal(t, dir, svc.ArchiveDir())

	assert.Equal(t, 1, countLines(t, filepath.Join(dir, "events_2026-10-12.jsonl")))
	assert.Equal(t, 2, countLines(t, filepath.Join(dir, "events_2026-10-13.jsonl")))

	remaining, err := env.EventRepo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), remaining)
}

func TestRunCleanupPrunesStatisticsKeepingLatest(t *testing.T) {
	env := testutil.NewTestDBEnv(t)
	ctx := context.Background()

	for _, age := range []time.Duration{72 * time.Hour, 48 * time.Hour} {
		require.NoError(t, env.StatsRepo.SaveStats(ctx, &models.ClusterStats{
			Online:        true,
			ClusterID:     "c-1",
			TotalSessions: 3,
			UpdatedAt:     fixedNow.Add(-age),
		}))
	}

	svc := NewRetentionService(newRetentionConfig(t), env.EventRepo, env.StatsRepo)
	svc.now = func() time.Time { return fixedNow }

	result, err := svc.RunCleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.SnapshotsDeleted)

	latest, err := env.StatsRepo.Latest(ctx)
	require.NoError(t, err)
	assert.True(t, latest.UpdatedAt.Equal(fixedNow.Add(-48*time.Hour)))
}

func TestStartDisabledDoesNothing(t *testing.T) {
	env := testutil.NewTestDBEnv(t)
	ctx := context.Background()
	seedEvents(t, env, 72*time.Hour)

	cfg := newRetentionConfig(t)
	cfg.EventRetention.Enabled = false
	svc := NewRetentionService(cfg, env.EventRepo, env.StatsRepo)

	require.NoError(t, svc.Start(ctx))
	assert.ErrorIs(t, svc.Start(ctx), ErrAlreadyRunning)
	svc.Stop()

	count, err := env.EventRepo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestStartRunsInitialCleanup(t *testing.T) {
	env := testutil.NewTestDBEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	seedEvents(t, env, 72*time.Hour, time.Hour)

	svc := NewRetentionService(newRetentionConfig(t), env.EventRepo, env.StatsRepo)
	svc.now = func() time.Time { return fixedNow }

	require.NoError(t, svc.Start(ctx))
	svc.Stop()

	count, err := env.EventRepo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	lines := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var event models.Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &event))
		lines++
	}
	require.NoError(t, scanner.Err())
	return lines
}
