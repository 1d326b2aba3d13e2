// Package testutil provides shared test helpers.
package testutil

import (
	"context"
	"testing"

	"github.com/sdbsm/1CSessionManager-sub000/internal/db"
	"github.com/stretchr/testify/require"
)

// NewTestDB creates a migrated in-memory SQLite database for testing.
// It returns a cleanup function.
func NewTestDB(t *testing.T) (*db.DB, func()) {
	t.Helper()

	database, err := db.OpenInMemory()
	require.NoError(t, err, "failed to open test database")

	err = database.Migrate(context.Background())
	require.NoError(t, err, "failed to run migrations")

	cleanup := func() {
		_ = database.Close()
	}
	return database, cleanup
}

// TestDBEnv provides a database test environment with all repositories.
type TestDBEnv struct {
	DB           *db.DB
	ClientRepo   *db.ClientRepository
	EventRepo    *db.EventRepository
	StatsRepo    *db.StatsRepository
	SettingsRepo *db.SettingsRepository
	cleanup      func()
}

// NewTestDBEnv creates a test database environment, closed at test end.
func NewTestDBEnv(t *testing.T) *TestDBEnv {
	t.Helper()
	database, cleanup := NewTestDB(t)

	env := &TestDBEnv{
		DB:           database,
		ClientRepo:   db.NewClientRepository(database),
		EventRepo:    db.NewEventRepository(database),
		StatsRepo:    db.NewStatsRepository(database),
		SettingsRepo: db.NewSettingsRepository(database),
		cleanup:      cleanup,
	}
	t.Cleanup(env.Close)
	return env
}

// Close cleans up the test environment. Safe to call twice.
func (e *TestDBEnv) Close() {
	if e.cleanup != nil {
		e.cleanup()
		e.cleanup = nil
	}
}
