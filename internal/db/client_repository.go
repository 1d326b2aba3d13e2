package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sdbsm/1CSessionManager-sub000/internal/models"
)

// Client repository errors.
var (
	ErrClientNotFound      = errors.New("client not found")
	ErrClientAlreadyExists = errors.New("client already exists")
	ErrInfobaseAssigned    = errors.New("infobase is already assigned to a client")
	ErrInfobaseNotAssigned = errors.New("infobase is not assigned to this client")
)

// ClientRepository handles client registry persistence.
type ClientRepository struct {
	db *DB
}

// NewClientRepository creates a new ClientRepository.
func NewClientRepository(db *DB) *ClientRepository {
	return &ClientRepository{db: db}
}

// Create adds a client together with its initial infobase assignments.
func (r *ClientRepository) Create(ctx context.Context, client *models.Client) error {
	if client.Status == "" {
		client.Status = models.ClientStatusActive
	}
	if err := client.Validate(); err != nil {
		return fmt.Errorf("invalid client: %w", err)
	}
	infobases, err := normalizeInfobases(client.Infobases)
	if err != nil {
		return err
	}

	if client.ID == "" {
		client.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	client.CreatedAt = now
	client.UpdatedAt = now
	client.Infobases = infobases

	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO clients (id, name, quota, status, active_sessions, created_at, updated_at)
			VALUES (?, ?, ?, ?, 0, ?, ?)
		`,
			client.ID,
			strings.TrimSpace(client.Name),
			client.Quota,
			string(client.Status),
			formatTime(client.CreatedAt),
			formatTime(client.UpdatedAt),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return ErrClientAlreadyExists
			}
			return fmt.Errorf("failed to insert client: %w", err)
		}

		for i, name := range infobases {
			if err := insertInfobase(ctx, tx, client.ID, name, i); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get retrieves a client by ID.
func (r *ClientRepository) Get(ctx context.Context, id string) (*models.Client, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, quota, status, active_sessions, created_at, updated_at
		FROM clients WHERE id = ?
	`, id)
	return r.load(ctx, row)
}

// GetByName retrieves a client by name, ignoring case.
func (r *ClientRepository) GetByName(ctx context.Context, name string) (*models.Client, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, quota, status, active_sessions, created_at, updated_at
		FROM clients WHERE name = ?
	`, strings.TrimSpace(name))
	return r.load(ctx, row)
}

// List retrieves all clients in creation order.
func (r *ClientRepository) List(ctx context.Context) ([]*models.Client, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, quota, status, active_sessions, created_at, updated_at
		FROM clients ORDER BY created_at, name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query clients: %w", err)
	}
	defer rows.Close()

	var clients []*models.Client
	byID := make(map[string]*models.Client)
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, client)
		byID[client.ID] = client
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate clients: %w", err)
	}

	ibRows, err := r.db.QueryContext(ctx, `
		SELECT client_id, infobase_name, active_sessions
		FROM client_infobases ORDER BY client_id, position
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query client infobases: %w", err)
	}
	defer ibRows.Close()

	for ibRows.Next() {
		var clientID, name string
		var active int
		if err := ibRows.Scan(&clientID, &name, &active); err != nil {
			return nil, fmt.Errorf("failed to scan client infobase: %w", err)
		}
		if client, ok := byID[clientID]; ok {
			addInfobase(client, name, active)
		}
	}
	return clients, ibRows.Err()
}

// Update saves name, quota and status changes.
func (r *ClientRepository) Update(ctx context.Context, client *models.Client) error {
	if err := client.Validate(); err != nil {
		return fmt.Errorf("invalid client: %w", err)
	}
	client.UpdatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx, `
		UPDATE clients SET name = ?, quota = ?, status = ?, updated_at = ?
		WHERE id = ?
	`,
		strings.TrimSpace(client.Name),
		client.Quota,
		string(client.Status),
		formatTime(client.UpdatedAt),
		client.ID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrClientAlreadyExists
		}
		return fmt.Errorf("failed to update client: %w", err)
	}
	return requireAffected(result, ErrClientNotFound)
}

// Delete removes a client and its infobase assignments.
func (r *ClientRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM clients WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	return requireAffected(result, ErrClientNotFound)
}

// AssignInfobase adds an infobase name to a client. A name can only belong
// to one client.
func (r *ClientRepository) AssignInfobase(ctx context.Context, clientID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.ErrInvalidInfobaseName
	}

	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		var position int
		err := tx.QueryRowContext(ctx, `
			SELECT COALESCE((SELECT MAX(position) + 1 FROM client_infobases WHERE client_id = c.id), 0)
			FROM clients c WHERE c.id = ?
		`, clientID).Scan(&position)
		if err != nil {
			return notFound(err, ErrClientNotFound)
		}
		if err := insertInfobase(ctx, tx, clientID, name, position); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, "UPDATE clients SET updated_at = ? WHERE id = ?", formatTime(time.Now()), clientID)
		return err
	})
}

// UnassignInfobase removes an infobase name from a client.
func (r *ClientRepository) UnassignInfobase(ctx context.Context, clientID, name string) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM client_infobases WHERE client_id = ? AND infobase_name = ?",
		clientID, strings.TrimSpace(name))
	if err != nil {
		return fmt.Errorf("failed to unassign infobase: %w", err)
	}
	return requireAffected(result, ErrInfobaseNotAssigned)
}

// UpdateCounters stores the session counts observed by the last cycle.
// Infobases missing from perInfobase are reset to zero.
func (r *ClientRepository) UpdateCounters(ctx context.Context, clientID string, active int, perInfobase map[string]int) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			"UPDATE clients SET active_sessions = ? WHERE id = ?", active, clientID)
		if err != nil {
			return fmt.Errorf("failed to update client counters: %w", err)
		}
		if err := requireAffected(result, ErrClientNotFound); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			"UPDATE client_infobases SET active_sessions = 0 WHERE client_id = ?", clientID); err != nil {
			return fmt.Errorf("failed to reset infobase counters: %w", err)
		}
		for name, count := range perInfobase {
			if _, err := tx.ExecContext(ctx,
				"UPDATE client_infobases SET active_sessions = ? WHERE client_id = ? AND infobase_name = ?",
				count, clientID, name); err != nil {
				return fmt.Errorf("failed to update infobase counter: %w", err)
			}
		}
		return nil
	})
}

func (r *ClientRepository) load(ctx context.Context, row *sql.Row) (*models.Client, error) {
	client, err := scanClient(row)
	if err != nil {
		return nil, notFound(err, ErrClientNotFound)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT infobase_name, active_sessions
		FROM client_infobases WHERE client_id = ? ORDER BY position
	`, client.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query client infobases: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var active int
		if err := rows.Scan(&name, &active); err != nil {
			return nil, fmt.Errorf("failed to scan client infobase: %w", err)
		}
		addInfobase(client, name, active)
	}
	return client, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row rowScanner) (*models.Client, error) {
	var (
		client    models.Client
		status    string
		createdAt string
		updatedAt string
	)
	if err := row.Scan(
		&client.ID,
		&client.Name,
		&client.Quota,
		&status,
		&client.ActiveSessions,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	client.Status = models.ClientStatus(status)
	client.Infobases = []string{}
	client.InfobaseSessions = map[string]int{}

	var err error
	if client.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if client.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &client, nil
}

func addInfobase(client *models.Client, name string, active int) {
	client.Infobases = append(client.Infobases, name)
	if active > 0 {
		client.InfobaseSessions[name] = active
	}
}

func insertInfobase(ctx context.Context, tx *sql.Tx, clientID, name string, position int) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO client_infobases (client_id, infobase_name, position) VALUES (?, ?, ?)
	`, clientID, name, position)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: %s", ErrInfobaseAssigned, name)
		}
		return fmt.Errorf("failed to assign infobase: %w", err)
	}
	return nil
}

// normalizeInfobases trims names and rejects blanks and case-insensitive duplicates.
func normalizeInfobases(names []string) ([]string, error) {
	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, models.ErrInvalidInfobaseName
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			return nil, fmt.Errorf("%w: %s", ErrInfobaseAssigned, name)
		}
		seen[key] = struct{}{}
		out = append(out, name)
	}
	return out, nil
}

func requireAffected(result sql.Result, sentinel error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return sentinel
	}
	return nil
}
