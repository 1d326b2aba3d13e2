package models

import "errors"

// Validation errors for models
var (
	ErrInvalidClientName   = errors.New("client name is required")
	ErrInvalidQuota        = errors.New("quota must be zero (unlimited) or positive")
	ErrInvalidClientStatus = errors.New("client status must be one of active, warning, blocked")
	ErrInvalidInfobaseName = errors.New("infobase name is required")
)
