package monitor

import (
	"strings"

	"github.com/rs/zerolog"
	"github.com/sdbsm/1CSessionManager-sub000/internal/models"
)

// NameResolver resolves infobase identifiers to display names.
type NameResolver interface {
	Name(id string) string
}

// ClientUsage is one client's share of the session snapshot.
type ClientUsage struct {
	Client      *models.Client
	Sessions    []models.Session
	PerInfobase map[string]int
}

// Count returns the client's active session count.
func (u *ClientUsage) Count() int {
	return len(u.Sessions)
}

// Mapping is the result of attributing a snapshot to clients.
type Mapping struct {
	// Usage has one entry per client, in registry order.
	Usage []*ClientUsage

	// ByInfobase counts every usable session per infobase display name.
	ByInfobase map[string]int

	// ByAppKind counts every usable session per application kind.
	ByAppKind map[string]int

	// Total is the number of usable sessions.
	Total int

	// Unattributed counts sessions matching no client.
	Unattributed int

	// Skipped counts sessions without a usable identifier.
	Skipped int

	// Conflicts counts sessions whose infobase is assigned to several clients.
	Conflicts int
}

// MapSessions attributes sessions to clients by case-insensitive infobase
// name. The first client owning the name wins.
func MapSessions(clients []*models.Client, names NameResolver, sessions []models.Session, logger zerolog.Logger) *Mapping {
	m := &Mapping{
		Usage:      make([]*ClientUsage, len(clients)),
		ByInfobase: map[string]int{},
		ByAppKind:  map[string]int{},
	}
	owners := make(map[string][]int)
	for i, client := range clients {
		m.Usage[i] = &ClientUsage{Client: client, PerInfobase: map[string]int{}}
		for _, ib := range client.Infobases {
			key := strings.ToLower(strings.TrimSpace(ib))
			if key == "" {
				continue
			}
			owners[key] = appendUnique(owners[key], i)
		}
	}

	for _, session := range sessions {
		if strings.TrimSpace(session.ID) == "" {
			m.Skipped++
			logger.Warn().
				Str("infobase_id", session.InfobaseID).
				Str("user", session.UserName).
				Msg("skipping session without identifier")
			continue
		}

		session.InfobaseName = names.Name(session.InfobaseID)
		m.Total++
		m.ByInfobase[session.InfobaseName]++
		m.ByAppKind[session.AppID]++

		matches := owners[strings.ToLower(session.InfobaseName)]
		if len(matches) == 0 {
			m.Unattributed++
			continue
		}
		if len(matches) > 1 {
			m.Conflicts++
			owned := make([]string, 0, len(matches))
			for _, idx := range matches {
				owned = append(owned, clients[idx].Name)
			}
			logger.Warn().
				Str("session_id", session.ID).
				Str("infobase", session.InfobaseName).
				Strs("clients", owned).
				Msg("infobase is assigned to more than one client; using first match")
		}

		usage := m.Usage[matches[0]]
		usage.Sessions = append(usage.Sessions, session)
		usage.PerInfobase[session.InfobaseName]++
	}

	return m
}

func appendUnique(list []int, v int) []int {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
