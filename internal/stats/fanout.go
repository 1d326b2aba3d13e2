// Package stats distributes per-cycle cluster statistics to several stores.
package stats

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/sdbsm/1CSessionManager-sub000/internal/logging"
	"github.com/sdbsm/1CSessionManager-sub000/internal/models"
)

// Store persists a snapshot.
type Store interface {
	SaveStats(ctx context.Context, stats *models.ClusterStats) error
}

// Fanout writes to a primary store and best-effort mirrors. Only primary
// failures are returned; mirror failures are logged.
type Fanout struct {
	primary Store
	mirrors []Store
	logger  zerolog.Logger
}

// NewFanout creates a Fanout. Nil mirrors are ignored.
func NewFanout(primary Store, mirrors ...Store) *Fanout {
	f := &Fanout{primary: primary, logger: logging.Component("stats")}
	for _, m := range mirrors {
		if m != nil {
			f.mirrors = append(f.mirrors, m)
		}
	}
	return f
}

// SaveStats implements Store.
func (f *Fanout) SaveStats(ctx context.Context, stats *models.ClusterStats) error {
	for _, mirror := range f.mirrors {
		if err := mirror.SaveStats(ctx, stats); err != nil {
			f.logger.Warn().Err(err).Msg("failed to mirror cluster statistics")
		}
	}
	return f.primary.SaveStats(ctx, stats)
}
