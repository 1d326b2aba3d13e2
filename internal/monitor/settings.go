package monitor

import (
	"context"
	"time"
)

// Poll interval bounds.
const (
	MinPollInterval = 5 * time.Second
	MaxPollInterval = time.Hour
)

// Settings are the options re-read at the start of every cycle.
type Settings struct {
	// PollInterval is the delay between the end of one cycle and the next.
	PollInterval time.Duration

	// KillMode enables termination; when off, counts are still updated.
	KillMode bool
}

// ClampPollInterval bounds d to the supported range.
func ClampPollInterval(d time.Duration) time.Duration {
	if d < MinPollInterval {
		return MinPollInterval
	}
	if d > MaxPollInterval {
		return MaxPollInterval
	}
	return d
}

// SettingsProvider supplies the current settings.
type SettingsProvider interface {
	MonitorSettings(ctx context.Context) (Settings, error)
}

// StaticSettings is a SettingsProvider that never changes.
type StaticSettings Settings

// MonitorSettings returns the fixed settings.
func (s StaticSettings) MonitorSettings(ctx context.Context) (Settings, error) {
	return Settings(s), nil
}
