package monitor

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/sdbsm/1CSessionManager-sub000/internal/logging"
	"github.com/sdbsm/1CSessionManager-sub000/internal/models"
)

// SessionKiller terminates a cluster session.
type SessionKiller interface {
	TerminateSession(ctx context.Context, clusterID, sessionID, reason string) error
}

// EventSink receives audit events.
type EventSink interface {
	Append(ctx context.Context, event *models.Event) error
}

// Terminator issues termination requests and records them in the event log.
type Terminator struct {
	killer SessionKiller
	events EventSink
	logger zerolog.Logger
}

// NewTerminator creates a new Terminator.
func NewTerminator(killer SessionKiller, events EventSink) *Terminator {
	return &Terminator{
		killer: killer,
		events: events,
		logger: logging.Component("terminator"),
	}
}

// Terminate kills one session. A failure is returned for the caller to log;
// it never affects other terminations.
func (t *Terminator) Terminate(ctx context.Context, clusterID string, client *models.Client, session models.Session, reason string) error {
	if err := t.killer.TerminateSession(ctx, clusterID, session.ID, reason); err != nil {
		return fmt.Errorf("failed to terminate session %s: %w", session.ID, err)
	}

	infobase := orUnknown(session.InfobaseName)
	user := orUnknown(session.UserName)

	t.logger.Info().
		Str("client", client.Name).
		Str("session_id", session.ID).
		Str("infobase", infobase).
		Str("user", user).
		Str("reason", reason).
		Msg("session terminated")

	event := &models.Event{
		Severity: models.EventSeverityWarning,
		Message: fmt.Sprintf("Session terminated: client %q, infobase %q, user %q: %s",
			client.Name, infobase, user, reason),
		ClientID: client.ID,
	}
	if err := t.events.Append(ctx, event); err != nil {
		t.logger.Warn().Err(err).Str("session_id", session.ID).Msg("failed to record termination event")
	}
	return nil
}

func orUnknown(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
