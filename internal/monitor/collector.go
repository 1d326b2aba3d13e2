package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sdbsm/1CSessionManager-sub000/internal/models"
	"github.com/sdbsm/1CSessionManager-sub000/internal/rac"
)

// ErrSnapshotUnavailable means the session list could not be fetched; the
// cycle must abort without enforcement.
var ErrSnapshotUnavailable = errors.New("session snapshot unavailable")

// Interactive client application kinds. Designer, COM and service
// connections are never counted or terminated.
const (
	AppThickClient = "1CV8"
	AppThinClient  = "1CV8C"
	AppWebClient   = "WebClient"
	AppGeneric     = "App"
)

var interactiveApps = map[string]struct{}{
	AppThickClient: {},
	AppThinClient:  {},
	AppWebClient:   {},
	AppGeneric:     {},
}

// IsInteractiveApp reports whether appID is one of the counted client kinds.
func IsInteractiveApp(appID string) bool {
	_, ok := interactiveApps[appID]
	return ok
}

var startedAtLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// SessionLister lists sessions of a cluster.
type SessionLister interface {
	ListSessions(ctx context.Context, clusterID string) ([]rac.Record, error)
}

// Collector fetches the live session snapshot.
type Collector struct {
	lister   SessionLister
	location *time.Location
}

// NewCollector creates a new Collector. Start times are interpreted in the local zone.
func NewCollector(lister SessionLister) *Collector {
	return &Collector{lister: lister, location: time.Local}
}

// Collect returns the interactive sessions of clusterID.
func (c *Collector) Collect(ctx context.Context, clusterID string) ([]models.Session, error) {
	records, err := c.lister.ListSessions(ctx, clusterID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSnapshotUnavailable, err)
	}

	sessions := make([]models.Session, 0, len(records))
	for _, record := range records {
		appID := strings.TrimSpace(record.First(rac.KeyAppID))
		if !IsInteractiveApp(appID) {
			continue
		}
		sessions = append(sessions, models.Session{
			ID:         record.First(rac.KeySession),
			InfobaseID: record.First(rac.KeyInfobase),
			AppID:      appID,
			StartedAt:  c.parseStartedAt(record.First(rac.KeyStartedAt)),
			UserName:   record.First(rac.KeyUserName),
			Host:       record.First(rac.KeyHost),
		})
	}
	return sessions, nil
}

func (c *Collector) parseStartedAt(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	for _, layout := range startedAtLayouts {
		if ts, err := time.ParseInLocation(layout, value, c.location); err == nil {
			return ts
		}
	}
	return time.Time{}
}
