// Package cluster holds the soft-cached cluster state shared across monitor
// cycles: the active cluster identifier and the infobase name directory.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sdbsm/1CSessionManager-sub000/internal/logging"
	"github.com/sdbsm/1CSessionManager-sub000/internal/rac"
)

// ErrClusterOffline means no cluster identifier could be resolved.
var ErrClusterOffline = errors.New("cluster is offline")

// ClusterLister lists clusters known to the administration server.
type ClusterLister interface {
	ListClusters(ctx context.Context) ([]rac.Record, error)
}

// State is the cache state of the cluster identity.
type State int

const (
	StateUnresolved State = iota
	StateResolved
)

func (s State) String() string {
	if s == StateResolved {
		return "resolved"
	}
	return "unresolved"
}

// Identity caches the single administered cluster's identifier.
type Identity struct {
	lister ClusterLister
	logger zerolog.Logger

	mu sync.Mutex
	id string
}

// NewIdentity creates an unresolved identity cache.
func NewIdentity(lister ClusterLister) *Identity {
	return &Identity{
		lister: lister,
		logger: logging.Component("cluster-identity"),
	}
}

// Resolve returns the cached identifier, querying the console only when unresolved.
func (i *Identity) Resolve(ctx context.Context) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.id != "" {
		return i.id, nil
	}

	records, err := i.lister.ListClusters(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list clusters: %w", err)
	}

	var id string
	if len(records) > 0 {
		id = records[0].First(rac.KeyCluster)
	}
	if id == "" {
		i.logger.Warn().Int("records", len(records)).Msg("cluster list returned no identifier")
		return "", ErrClusterOffline
	}

	i.id = id
	i.logger.Info().Str("cluster_id", id).Msg("cluster identity resolved")
	return id, nil
}

// Invalidate drops the cached identifier so the next Resolve re-queries.
func (i *Identity) Invalidate() {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.id != "" {
		i.logger.Info().Str("cluster_id", i.id).Msg("cluster identity invalidated")
	}
	i.id = ""
}

// ReportFailure invalidates the identity when err indicates lost connectivity.
// It returns true if the identity was invalidated.
func (i *Identity) ReportFailure(err error) bool {
	if !rac.IsConnectivityError(err) {
		return false
	}
	i.Invalidate()
	return true
}

// Current returns the cached identifier without querying.
func (i *Identity) Current() (string, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.id, i.id != ""
}

// State returns the cache state.
func (i *Identity) State() State {
	if _, ok := i.Current(); ok {
		return StateResolved
	}
	return StateUnresolved
}
