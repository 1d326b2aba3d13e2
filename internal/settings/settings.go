// Package settings layers stored runtime overrides on top of the static
// monitor configuration.
package settings

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sdbsm/1CSessionManager-sub000/internal/monitor"
)

// Setting keys that may be overridden at runtime.
const (
	KeyPollInterval = "monitor.poll_interval"
	KeyKillMode     = "monitor.kill_mode"
)

// ErrUnknownKey is returned for keys that cannot be overridden.
var ErrUnknownKey = errors.New("unknown setting")

// Store reads and writes raw overrides.
type Store interface {
	All(ctx context.Context) (map[string]string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Provider implements monitor.SettingsProvider.
type Provider struct {
	defaults monitor.Settings
	store    Store
}

// NewProvider creates a provider backed by store with the given defaults.
func NewProvider(defaults monitor.Settings, store Store) *Provider {
	return &Provider{defaults: defaults, store: store}
}

// Keys lists the supported override keys.
func Keys() []string {
	keys := []string{KeyPollInterval, KeyKillMode}
	sort.Strings(keys)
	return keys
}

// MonitorSettings returns defaults merged with stored overrides. An invalid
// stored value is reported as an error so the monitor keeps its last
// known settings.
func (p *Provider) MonitorSettings(ctx context.Context) (monitor.Settings, error) {
	settings := p.defaults

	overrides, err := p.store.All(ctx)
	if err != nil {
		return settings, fmt.Errorf("failed to read settings: %w", err)
	}

	if raw, ok := overrides[KeyPollInterval]; ok {
		interval, err := ParsePollInterval(raw)
		if err != nil {
			return settings, err
		}
		settings.PollInterval = interval
	}
	if raw, ok := overrides[KeyKillMode]; ok {
		killMode, err := ParseKillMode(raw)
		if err != nil {
			return settings, err
		}
		settings.KillMode = killMode
	}

	settings.PollInterval = monitor.ClampPollInterval(settings.PollInterval)
	return settings, nil
}

// Set validates and stores an override, returning the normalized value.
func (p *Provider) Set(ctx context.Context, key, value string) (string, error) {
	normalized, err := Normalize(key, value)
	if err != nil {
		return "", err
	}
	if err := p.store.Set(ctx, key, normalized); err != nil {
		return "", err
	}
	return normalized, nil
}

// Reset removes an override so the configured default applies again.
func (p *Provider) Reset(ctx context.Context, key string) error {
	if _, err := Normalize(key, ""); errors.Is(err, ErrUnknownKey) {
		return err
	}
	return p.store.Delete(ctx, key)
}

// Normalize validates value for key and returns its canonical form.
func Normalize(key, value string) (string, error) {
	switch key {
	case KeyPollInterval:
		interval, err := ParsePollInterval(value)
		if err != nil {
			return "", err
		}
		return interval.String(), nil
	case KeyKillMode:
		killMode, err := ParseKillMode(value)
		if err != nil {
			return "", err
		}
		return strconv.FormatBool(killMode), nil
	default:
		return "", fmt.Errorf("%w: %s (supported: %s)", ErrUnknownKey, key, strings.Join(Keys(), ", "))
	}
}

// ParsePollInterval accepts a Go duration ("30s") or plain seconds ("30").
// The result must lie within the supported poll interval bounds.
func ParsePollInterval(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)

	var interval time.Duration
	if seconds, err := strconv.Atoi(value); err == nil {
		interval = time.Duration(seconds) * time.Second
	} else {
		interval, err = time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid %s %q: %w", KeyPollInterval, value, err)
		}
	}

	if interval < monitor.MinPollInterval || interval > monitor.MaxPollInterval {
		return 0, fmt.Errorf("%s must be between %s and %s", KeyPollInterval, monitor.MinPollInterval, monitor.MaxPollInterval)
	}
	return interval, nil
}

// ParseKillMode accepts the usual boolean spellings plus on/off.
func ParseKillMode(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "on", "yes", "enabled":
		return true, nil
	case "off", "no", "disabled":
		return false, nil
	}
	killMode, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: expected true or false", KeyKillMode, value)
	}
	return killMode, nil
}
