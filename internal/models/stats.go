package models

import "time"

// ClusterStats is the per-cycle aggregate snapshot published for dashboards.
type ClusterStats struct {
	// Online is false when the cluster could not be resolved or queried.
	Online bool `json:"online"`

	// ClusterID is the resolved cluster identifier, empty when offline.
	ClusterID string `json:"cluster_id,omitempty"`

	// TotalSessions counts all interactive sessions, attributed or not.
	TotalSessions int `json:"total_sessions"`

	// ByInfobase counts sessions per infobase display name.
	ByInfobase map[string]int `json:"by_infobase"`

	// ByAppKind counts sessions per application kind.
	ByAppKind map[string]int `json:"by_app_kind"`

	UpdatedAt time.Time `json:"updated_at"`
}

// OfflineStats returns a snapshot describing an unreachable cluster.
func OfflineStats(now time.Time) *ClusterStats {
	return &ClusterStats{
		Online:     false,
		ByInfobase: map[string]int{},
		ByAppKind:  map[string]int{},
		UpdatedAt:  now,
	}
}
