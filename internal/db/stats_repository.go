package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sdbsm/1CSessionManager-sub000/internal/models"
)

// ErrNoStats is returned by Latest before the first cycle has completed.
var ErrNoStats = errors.New("no cluster statistics recorded")

// StatsRepository stores the per-cycle aggregate snapshots.
type StatsRepository struct {
	db *DB
}

// NewStatsRepository creates a new StatsRepository.
func NewStatsRepository(db *DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// SaveStats records a snapshot.
func (r *StatsRepository) SaveStats(ctx context.Context, stats *models.ClusterStats) error {
	byInfobase, err := json.Marshal(nonNilCounts(stats.ByInfobase))
	if err != nil {
		return fmt.Errorf("failed to marshal infobase counts: %w", err)
	}
	byAppKind, err := json.Marshal(nonNilCounts(stats.ByAppKind))
	if err != nil {
		return fmt.Errorf("failed to marshal app kind counts: %w", err)
	}

	updatedAt := stats.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	var clusterID *string
	if stats.ClusterID != "" {
		clusterID = &stats.ClusterID
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO cluster_stats (online, cluster_id, total_sessions, by_infobase_json, by_app_kind_json, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		boolToInt(stats.Online),
		clusterID,
		stats.TotalSessions,
		string(byInfobase),
		string(byAppKind),
		formatTime(updatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert cluster stats: %w", err)
	}
	return nil
}

// Latest returns the most recent snapshot.
func (r *StatsRepository) Latest(ctx context.Context) (*models.ClusterStats, error) {
	var (
		stats      models.ClusterStats
		online     int
		clusterID  sql.NullString
		byInfobase sql.NullString
		byAppKind  sql.NullString
		updatedAt  string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT online, cluster_id, total_sessions, by_infobase_json, by_app_kind_json, updated_at
		FROM cluster_stats ORDER BY id DESC LIMIT 1
	`).Scan(&online, &clusterID, &stats.TotalSessions, &byInfobase, &byAppKind, &updatedAt)
	if err != nil {
		return nil, notFound(err, ErrNoStats)
	}

	stats.Online = online != 0
	stats.ClusterID = clusterID.String
	if stats.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if stats.ByInfobase, err = decodeCounts(byInfobase); err != nil {
		return nil, err
	}
	if stats.ByAppKind, err = decodeCounts(byAppKind); err != nil {
		return nil, err
	}
	return &stats, nil
}

// DeleteOlderThan prunes snapshots recorded before cutoff, always keeping the latest.
func (r *StatsRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM cluster_stats
		WHERE updated_at < ? AND id <> (SELECT MAX(id) FROM cluster_stats)
	`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to delete cluster stats: %w", err)
	}
	return result.RowsAffected()
}

func nonNilCounts(m map[string]int) map[string]int {
	if m == nil {
		return map[string]int{}
	}
	return m
}

func decodeCounts(value sql.NullString) (map[string]int, error) {
	counts := map[string]int{}
	if !value.Valid || value.String == "" {
		return counts, nil
	}
	if err := json.Unmarshal([]byte(value.String), &counts); err != nil {
		return nil, fmt.Errorf("failed to decode counts: %w", err)
	}
	return counts, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
