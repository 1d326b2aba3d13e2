// Package models defines the core domain types for the session manager.
package models

import (
	"strings"
	"time"
)

// ClientStatus is the administrative state of a client organization.
type ClientStatus string

const (
	ClientStatusActive  ClientStatus = "active"
	ClientStatusWarning ClientStatus = "warning"
	ClientStatusBlocked ClientStatus = "blocked"
)

// ParseClientStatus validates a status string.
func ParseClientStatus(value string) (ClientStatus, error) {
	switch ClientStatus(strings.ToLower(strings.TrimSpace(value))) {
	case ClientStatusActive:
		return ClientStatusActive, nil
	case ClientStatusWarning:
		return ClientStatusWarning, nil
	case ClientStatusBlocked:
		return ClientStatusBlocked, nil
	default:
		return "", ErrInvalidClientStatus
	}
}

// Client is a registered organization that owns one or more infobases.
type Client struct {
	// ID is the unique identifier for the client.
	ID string `json:"id"`

	// Name is the display name.
	Name string `json:"name"`

	// Quota is the session ceiling. Zero means unlimited.
	Quota int `json:"quota"`

	// Status controls enforcement (active, warning, blocked).
	Status ClientStatus `json:"status"`

	// Infobases are the assigned infobase names, in assignment order.
	Infobases []string `json:"infobases"`

	// ActiveSessions is the session count computed by the last monitor cycle.
	ActiveSessions int `json:"active_sessions"`

	// InfobaseSessions is the per-infobase breakdown of ActiveSessions.
	InfobaseSessions map[string]int `json:"infobase_sessions,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks if the client is valid.
func (c *Client) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrInvalidClientName
	}
	if c.Quota < 0 {
		return ErrInvalidQuota
	}
	if _, err := ParseClientStatus(string(c.Status)); err != nil {
		return err
	}
	return nil
}

// Unlimited reports whether the client has no session ceiling.
func (c *Client) Unlimited() bool {
	return c.Quota == 0
}

// OwnsInfobase reports whether name is assigned to the client, ignoring case.
func (c *Client) OwnsInfobase(name string) bool {
	for _, ib := range c.Infobases {
		if strings.EqualFold(ib, name) {
			return true
		}
	}
	return false
}
