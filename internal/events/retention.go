// Package events prunes the event log and statistics history.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sdbsm/1CSessionManager-sub000/internal/config"
	"github.com/sdbsm/1CSessionManager-sub000/internal/db"
	"github.com/sdbsm/1CSessionManager-sub000/internal/logging"
	"github.com/sdbsm/1CSessionManager-sub000/internal/models"
)

// ErrAlreadyRunning is returned by Start when the sweeper is active.
var ErrAlreadyRunning = errors.New("retention service already running")

// RetentionService periodically removes events and statistics snapshots
// older than the configured age.
type RetentionService struct {
	cfg     config.EventRetentionConfig
	dataDir string
	events  *db.EventRepository
	stats   *db.StatsRepository
	logger  zerolog.Logger
	now     func() time.Time

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool

	lastCleanup    time.Time
	totalDeleted   int64
	totalArchived  int64
	totalSnapshots int64
}

// RetentionStats reports what the sweeper has done so far.
type RetentionStats struct {
	LastCleanup      time.Time  `json:"last_cleanup"`
	TotalDeleted     int64      `json:"total_deleted"`
	TotalArchived    int64      `json:"total_archived"`
	SnapshotsDeleted int64      `json:"snapshots_deleted"`
	EventCount       int64      `json:"event_count"`
	OldestEvent      *time.Time `json:"oldest_event,omitempty"`
}

// CleanupResult is the outcome of one sweep.
type CleanupResult struct {
	Cutoff           time.Time `json:"cutoff"`
	EventsDeleted    int64     `json:"events_deleted"`
	EventsArchived   int64     `json:"events_archived"`
	SnapshotsDeleted int64     `json:"snapshots_deleted"`
}

// NewRetentionService creates a sweeper. stats may be nil to leave the
// statistics history untouched.
func NewRetentionService(cfg *config.Config, events *db.EventRepository, stats *db.StatsRepository) *RetentionService {
	retention := cfg.EventRetention
	if retention.BatchSize <= 0 {
		retention.BatchSize = 1000
	}
	if retention.CleanupInterval <= 0 {
		retention.CleanupInterval = time.Hour
	}
	return &RetentionService{
		cfg:     retention,
		dataDir: cfg.Global.DataDir,
		events:  events,
		stats:   stats,
		logger:  logging.Component("retention"),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
}

// Start runs one sweep and then schedules further sweeps every cleanup interval.
func (s *RetentionService) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	if !s.cfg.Enabled {
		s.logger.Info().Msg("event retention is disabled")
		return nil
	}

	s.logger.Info().
		Dur("cleanup_interval", s.cfg.CleanupInterval).
		Dur("max_age", s.cfg.MaxAge).
		Bool("archive_before_delete", s.cfg.ArchiveBeforeDelete).
		Msg("starting retention service")

	if _, err := s.RunCleanup(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("initial cleanup failed")
	}

	s.wg.Add(1)
	go s.cleanupLoop(ctx)
	return nil
}

// Stop halts the background sweeps and waits for the current one to finish.
func (s *RetentionService) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info().Msg("retention service stopped")
}

// RunCleanup performs a single sweep.
func (s *RetentionService) RunCleanup(ctx context.Context) (*CleanupResult, error) {
	start := s.now()
	result := &CleanupResult{}
	if s.cfg.MaxAge <= 0 {
		return result, nil
	}
	result.Cutoff = start.Add(-s.cfg.MaxAge)

	deleted, archived, err := s.cleanupEvents(ctx, result.Cutoff)
	result.EventsDeleted = deleted
	result.EventsArchived = archived
	if err != nil {
		return result, fmt.Errorf("event cleanup failed: %w", err)
	}

	if s.stats != nil {
		snapshots, err := s.stats.DeleteOlderThan(ctx, result.Cutoff)
		if err != nil {
			return result, fmt.Errorf("statistics cleanup failed: %w", err)
		}
		result.SnapshotsDeleted = snapshots
	}

	s.mu.Lock()
	s.lastCleanup = start
	s.totalDeleted += result.EventsDeleted
	s.totalArchived += result.EventsArchived
	s.totalSnapshots += result.SnapshotsDeleted
	s.mu.Unlock()

	if result.EventsDeleted > 0 || result.SnapshotsDeleted > 0 {
		s.logger.Info().
			Int64("events", result.EventsDeleted).
			Int64("archived", result.EventsArchived).
			Int64("snapshots", result.SnapshotsDeleted).
			Time("cutoff", result.Cutoff).
			Dur("duration", time.Since(start)).
			Msg("cleanup completed")
	} else {
		s.logger.Debug().Msg("cleanup completed, nothing to remove")
	}
	return result, nil
}

// Stats returns cumulative sweep counters and the current event log size.
func (s *RetentionService) Stats(ctx context.Context) (*RetentionStats, error) {
	s.mu.Lock()
	stats := &RetentionStats{
		LastCleanup:      s.lastCleanup,
		TotalDeleted:     s.totalDeleted,
		TotalArchived:    s.totalArchived,
		SnapshotsDeleted: s.totalSnapshots,
	}
	s.mu.Unlock()

	count, err := s.events.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}
	stats.EventCount = count

	oldest, err := s.events.OldestTimestamp(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get oldest event: %w", err)
	}
	stats.OldestEvent = oldest
	return stats, nil
}

func (s *RetentionService) cleanupLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if _, err := s.RunCleanup(ctx); err != nil {
				s.logger.Error().Err(err).Msg("cleanup cycle failed")
			}
		}
	}
}

// cleanupEvents removes expired events in batches, archiving each batch first
// when configured.
func (s *RetentionService) cleanupEvents(ctx context.Context, cutoff time.Time) (deleted, archived int64, err error) {
	batch := s.cfg.BatchSize
	for {
		if err := ctx.Err(); err != nil {
			return deleted, archived, err
		}

		var count int64
		if s.cfg.ArchiveBeforeDelete {
			expired, err := s.events.ListOlderThan(ctx, cutoff, batch)
			if err != nil {
				return deleted, archived, err
			}
			if len(expired) == 0 {
				return deleted, archived, nil
			}
			if err := s.archive(expired); err != nil {
				return deleted, archived, fmt.Errorf("archive failed: %w", err)
			}
			archived += int64(len(expired))

			ids := make([]string, len(expired))
			for i, e := range expired {
				ids[i] = e.ID
			}
			count, err = s.events.DeleteByIDs(ctx, ids)
			if err != nil {
				return deleted, archived, err
			}
		} else {
			count, err = s.events.DeleteOlderThan(ctx, cutoff, batch)
			if err != nil {
				return deleted, archived, err
			}
		}

		deleted += count
		if count < int64(batch) {
			return deleted, archived, nil
		}
	}
}

// ArchiveDir returns the directory that receives archived events.
func (s *RetentionService) ArchiveDir() string {
	if s.cfg.ArchiveDir != "" {
		return s.cfg.ArchiveDir
	}
	return filepath.Join(s.dataDir, "archives")
}

// archive appends events as JSON lines to one file per event date.
func (s *RetentionService) archive(expired []*models.Event) error {
	dir := s.ArchiveDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	byDate := make(map[string][]*models.Event)
	for _, event := range expired {
		date := event.Timestamp.UTC().Format("2006-01-02")
		byDate[date] = append(byDate[date], event)
	}

	for date, dated := range byDate {
		path := filepath.Join(dir, fmt.Sprintf("events_%s.jsonl", date))
		if err := appendJSONLines(path, dated); err != nil {
			return err
		}
	}
	return nil
}

func appendJSONLines(path string, events []*models.Event) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open archive file: %w", err)
	}

	enc := json.NewEncoder(file)
	for _, event := range events {
		if err := enc.Encode(event); err != nil {
			file.Close()
			return fmt.Errorf("failed to write event: %w", err)
		}
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close archive file: %w", err)
	}
	return nil
}
