// Package redisstats mirrors cluster statistics into Redis for external
// dashboards.
package redisstats

import (
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
)

// ConfigOption configures the client.
type ConfigOption func(*redis.Options)

// WithPassword sets the password when it is not part of the address.
func WithPassword(password string) ConfigOption {
	return func(o *redis.Options) {
		if password != "" {
			o.Password = password
		}
	}
}

// WithDB selects the logical database.
func WithDB(db int) ConfigOption {
	return func(o *redis.Options) {
		if db > 0 {
			o.DB = db
		}
	}
}

// NewUniversalClient creates a client from "host:port" or a redis:// URL.
func NewUniversalClient(addr string, options ...ConfigOption) (redis.UniversalClient, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	if !strings.Contains(addr, "://") {
		addr = "redis://" + addr
	}

	redisOptions, err := redis.ParseURL(addr)
	if err != nil {
		return nil, fmt.Errorf("cant parse redis url: %w", err)
	}
	for _, opt := range options {
		opt(redisOptions)
	}
	return redis.NewUniversalClient(universalOptions(redisOptions)), nil
}

func universalOptions(options *redis.Options) *redis.UniversalOptions {
	return &redis.UniversalOptions{
		Addrs:        []string{options.Addr},
		DB:           options.DB,
		Username:     options.Username,
		Password:     options.Password,
		WriteTimeout: options.WriteTimeout,
		ReadTimeout:  options.ReadTimeout,
		DialTimeout:  options.DialTimeout,
		MaxRetries:   options.MaxRetries,
		PoolSize:     options.PoolSize,
		PoolTimeout:  options.PoolTimeout,
		MinIdleConns: options.MinIdleConns,
		IdleTimeout:  options.IdleTimeout,
	}
}
