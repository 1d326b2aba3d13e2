package cluster

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sdbsm/1CSessionManager-sub000/internal/logging"
	"github.com/sdbsm/1CSessionManager-sub000/internal/rac"
)

// InfobaseLister lists infobases registered in a cluster.
type InfobaseLister interface {
	ListInfobases(ctx context.Context, clusterID string) ([]rac.Record, error)
}

// Directory maps infobase identifiers to display names. It is rebuilt in
// full on every refresh; a failed refresh leaves it empty, never stale.
type Directory struct {
	lister InfobaseLister
	logger zerolog.Logger

	mu    sync.RWMutex
	names map[string]string
}

// NewDirectory creates an empty directory.
func NewDirectory(lister InfobaseLister) *Directory {
	return &Directory{
		lister: lister,
		logger: logging.Component("infobase-directory"),
		names:  map[string]string{},
	}
}

// Refresh replaces the directory with the infobases of clusterID.
func (d *Directory) Refresh(ctx context.Context, clusterID string) error {
	records, err := d.lister.ListInfobases(ctx, clusterID)
	if err != nil {
		d.replace(map[string]string{})
		return fmt.Errorf("failed to list infobases: %w", err)
	}

	names := make(map[string]string, len(records))
	for _, record := range records {
		id := record.First(rac.KeyInfobase, rac.KeyUUID)
		name := record.First(rac.KeyName)
		if id == "" || name == "" {
			d.logger.Debug().Str("id", id).Str("name", name).Msg("skipping incomplete infobase record")
			continue
		}
		names[id] = name
	}

	d.replace(names)
	d.logger.Debug().Int("infobases", len(names)).Msg("infobase directory refreshed")
	return nil
}

func (d *Directory) replace(names map[string]string) {
	d.mu.Lock()
	d.names = names
	d.mu.Unlock()
}

// Lookup returns the display name for id.
func (d *Directory) Lookup(id string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	name, ok := d.names[id]
	return name, ok
}

// Name returns the display name for id, falling back to id itself.
func (d *Directory) Name(id string) string {
	if name, ok := d.Lookup(id); ok {
		return name
	}
	return id
}

// Len returns the number of known infobases.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.names)
}

// Infobases returns a copy of the directory as id → name.
func (d *Directory) Infobases() map[string]string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]string, len(d.names))
	for id, name := range d.names {
		out[id] = name
	}
	return out
}
