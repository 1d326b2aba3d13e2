package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sdbsm/1CSessionManager-sub000/internal/models"
)

// DefaultEventLimit caps ListRecent when no limit is given.
const DefaultEventLimit = 100

// EventRepository persists the append-only audit log.
type EventRepository struct {
	db  *DB
	now func() time.Time
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db, now: time.Now}
}

// Append records an event, assigning its ID and timestamp when missing.
func (r *EventRepository) Append(ctx context.Context, event *models.Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = r.now().UTC()
	}
	if event.Severity == "" {
		event.Severity = models.EventSeverityInfo
	}

	var clientID *string
	if event.ClientID != "" {
		clientID = &event.ClientID
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO events (id, timestamp, severity, message, client_id)
		VALUES (?, ?, ?, ?, ?)
	`,
		event.ID,
		formatTime(event.Timestamp),
		string(event.Severity),
		event.Message,
		clientID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// EventQuery filters ListRecent.
type EventQuery struct {
	// ClientID restricts results to one client.
	ClientID string

	// Severity restricts results to one severity.
	Severity models.EventSeverity

	// Since excludes events older than this time.
	Since time.Time

	// Limit caps the number of results.
	Limit int
}

// ListRecent returns events newest first.
func (r *EventRepository) ListRecent(ctx context.Context, q EventQuery) ([]*models.Event, error) {
	query := "SELECT id, timestamp, severity, message, client_id FROM events WHERE 1=1"
	var args []any

	if q.ClientID != "" {
		query += " AND client_id = ?"
		args = append(args, q.ClientID)
	}
	if q.Severity != "" {
		query += " AND severity = ?"
		args = append(args, string(q.Severity))
	}
	if !q.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, formatTime(q.Since))
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultEventLimit
	}
	query += " ORDER BY timestamp DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// DeleteOlderThan removes up to limit events recorded before cutoff, oldest
// first. A non-positive limit removes all of them.
func (r *EventRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	query := "DELETE FROM events WHERE timestamp < ?"
	args := []any{formatTime(cutoff)}
	if limit > 0 {
		query = `DELETE FROM events WHERE id IN (
			SELECT id FROM events WHERE timestamp < ? ORDER BY timestamp, rowid LIMIT ?
		)`
		args = append(args, limit)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete events: %w", err)
	}
	return result.RowsAffected()
}

// ListOlderThan returns up to limit events recorded before cutoff, oldest first.
func (r *EventRepository) ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*models.Event, error) {
	if limit <= 0 {
		limit = DefaultEventLimit
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, timestamp, severity, message, client_id FROM events
		WHERE timestamp < ? ORDER BY timestamp, rowid LIMIT ?
	`, formatTime(cutoff), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// DeleteByIDs removes the given events.
func (r *EventRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	result, err := r.db.ExecContext(ctx, "DELETE FROM events WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete events: %w", err)
	}
	return result.RowsAffected()
}

// Count returns the number of stored events.
func (r *EventRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

// OldestTimestamp returns the time of the oldest event, or nil when empty.
func (r *EventRepository) OldestTimestamp(ctx context.Context) (*time.Time, error) {
	var value sql.NullString
	if err := r.db.QueryRowContext(ctx, "SELECT MIN(timestamp) FROM events").Scan(&value); err != nil {
		return nil, fmt.Errorf("failed to query oldest event: %w", err)
	}
	if !value.Valid {
		return nil, nil
	}
	ts, err := parseTime(value.String)
	if err != nil {
		return nil, err
	}
	return &ts, nil
}

func scanEvents(rows *sql.Rows) ([]*models.Event, error) {
	var events []*models.Event
	for rows.Next() {
		var (
			event     models.Event
			timestamp string
			severity  string
			clientID  sql.NullString
		)
		if err := rows.Scan(&event.ID, &timestamp, &severity, &event.Message, &clientID); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ts, err := parseTime(timestamp)
		if err != nil {
			return nil, err
		}
		event.Timestamp = ts
		event.Severity = models.EventSeverity(severity)
		event.ClientID = clientID.String
		events = append(events, &event)
	}
	return events, rows.Err()
}
