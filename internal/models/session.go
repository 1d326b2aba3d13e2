package models

import "time"

// Session is one live interactive connection, rebuilt every monitor cycle.
type Session struct {
	// ID is the cluster-assigned session identifier.
	ID string `json:"id"`

	// InfobaseID is the owning infobase identifier.
	InfobaseID string `json:"infobase_id"`

	// InfobaseName is the resolved display name, or InfobaseID when unresolved.
	InfobaseName string `json:"infobase_name,omitempty"`

	// AppID is the client application kind (1CV8, 1CV8C, WebClient, App).
	AppID string `json:"app_id"`

	// StartedAt is when the session was opened.
	StartedAt time.Time `json:"started_at"`

	// UserName is the infobase user, if reported.
	UserName string `json:"user_name,omitempty"`

	// Host is the client host, if reported.
	Host string `json:"host,omitempty"`
}

// Infobase is a named data partition hosted on the cluster.
type Infobase struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
