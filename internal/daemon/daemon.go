// Package daemon assembles the session monitor from configuration and runs it
// together with the retention sweeper.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/sdbsm/1CSessionManager-sub000/internal/cluster"
	"github.com/sdbsm/1CSessionManager-sub000/internal/config"
	"github.com/sdbsm/1CSessionManager-sub000/internal/db"
	"github.com/sdbsm/1CSessionManager-sub000/internal/events"
	"github.com/sdbsm/1CSessionManager-sub000/internal/models"
	"github.com/sdbsm/1CSessionManager-sub000/internal/monitor"
	"github.com/sdbsm/1CSessionManager-sub000/internal/rac"
	"github.com/sdbsm/1CSessionManager-sub000/internal/redisstats"
	"github.com/sdbsm/1CSessionManager-sub000/internal/settings"
	"github.com/sdbsm/1CSessionManager-sub000/internal/stats"
)

// Options configure the daemon runtime.
type Options struct {
	// Database is the opened, migrated store. Required.
	Database *db.DB

	// Runner overrides the console runner built from config (for testing).
	Runner rac.Runner

	// Redis overrides the statistics mirror client built from config.
	Redis redis.UniversalClient

	Version string
}

// Daemon owns the monitor and its collaborators.
type Daemon struct {
	cfg    *config.Config
	logger zerolog.Logger
	opts   Options

	console  *rac.Client
	monitor  *monitor.Monitor
	settings *settings.Provider

	clientRepo *db.ClientRepository
	eventRepo  *db.EventRepository
	statsRepo  *db.StatsRepository
	redisStore *redisstats.Store
	retention  *events.RetentionService
}

// NewConsole builds a console client from configuration.
func NewConsole(cfg *config.Config, runner rac.Runner) *rac.Client {
	if runner == nil {
		runner = rac.NewLocalRunner(cfg.Console.Path, cfg.Console.CommandTimeout, cfg.Console.Encoding)
	}
	return rac.NewClient(runner, rac.ConnectionOptions{
		Host:            cfg.Console.Host,
		ClusterUser:     cfg.Console.ClusterUser,
		ClusterPassword: cfg.Console.ClusterPassword,
	})
}

// DefaultSettings returns the monitor settings configured in cfg.
func DefaultSettings(cfg *config.Config) monitor.Settings {
	return monitor.Settings{
		PollInterval: cfg.Monitor.PollInterval,
		KillMode:     cfg.Monitor.KillMode,
	}
}

// New constructs a daemon with the provided configuration.
func New(cfg *config.Config, logger zerolog.Logger, opts Options) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if opts.Database == nil {
		return nil, errors.New("database is required")
	}

	d := &Daemon{
		cfg:        cfg,
		logger:     logger,
		opts:       opts,
		console:    NewConsole(cfg, opts.Runner),
		clientRepo: db.NewClientRepository(opts.Database),
		eventRepo:  db.NewEventRepository(opts.Database),
		statsRepo:  db.NewStatsRepository(opts.Database),
	}
	d.retention = events.NewRetentionService(cfg, d.eventRepo, d.statsRepo)
	d.settings = settings.NewProvider(DefaultSettings(cfg), db.NewSettingsRepository(opts.Database))

	var mirrors []stats.Store
	redisClient := opts.Redis
	if redisClient == nil && cfg.Redis.Enabled() {
		client, err := redisstats.NewUniversalClient(cfg.Redis.Addr,
			redisstats.WithPassword(cfg.Redis.Password),
			redisstats.WithDB(cfg.Redis.DB),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to configure redis: %w", err)
		}
		redisClient = client
	}
	if redisClient != nil {
		d.redisStore = redisstats.NewStore(redisClient, cfg.Redis.Prefix, cfg.Redis.TTL)
		mirrors = append(mirrors, d.redisStore)
		logger.Info().Str("key", d.redisStore.StatsKey()).Msg("redis statistics mirror configured")
	}

	d.monitor = monitor.New(d.console, d.clientRepo, d.settings,
		monitor.WithStatsStore(stats.NewFanout(d.statsRepo, mirrors...)),
		monitor.WithEventSink(d.eventRepo),
		monitor.WithPolicy(monitor.Policy{
			BlockedReason: cfg.Monitor.KillMessageBlocked,
			QuotaReason:   cfg.Monitor.KillMessageQuota,
		}),
		monitor.WithMaxParallelKills(cfg.Monitor.MaxParallelKills),
	)

	return d, nil
}

// Monitor returns the underlying monitor.
func (d *Daemon) Monitor() *monitor.Monitor {
	return d.monitor
}

// Settings returns the runtime settings provider.
func (d *Daemon) Settings() *settings.Provider {
	return d.settings
}

// Retention returns the event and statistics sweeper.
func (d *Daemon) Retention() *events.RetentionService {
	return d.retention
}

// Run starts the monitor and blocks until the context is canceled.
func (d *Daemon) Run(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}

	d.logger.Info().
		Str("host", d.cfg.Console.Host).
		Str("version", d.opts.Version).
		Msg("session manager starting")

	d.recordEvent(ctx, models.EventSeverityInfo, "Session manager started")

	if err := d.monitor.Start(ctx); err != nil {
		return fmt.Errorf("failed to start monitor: %w", err)
	}

	if err := d.retention.Start(ctx); err != nil {
		d.logger.Warn().Err(err).Msg("failed to start retention service")
	}

	<-ctx.Done()
	d.logger.Info().Msg("session manager shutting down...")

	if err := d.monitor.Stop(); err != nil && !errors.Is(err, monitor.ErrMonitorNotRunning) {
		d.logger.Warn().Err(err).Msg("failed to stop monitor")
	}
	d.retention.Stop()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	d.recordEvent(stopCtx, models.EventSeverityInfo, "Session manager stopped")

	d.logger.Info().Msg("session manager shutdown complete")
	return nil
}

// Close releases the statistics mirror connection.
func (d *Daemon) Close() error {
	if d.redisStore != nil {
		return d.redisStore.Close()
	}
	return nil
}

func (d *Daemon) recordEvent(ctx context.Context, severity models.EventSeverity, message string) {
	if err := d.eventRepo.Append(ctx, &models.Event{Severity: severity, Message: message}); err != nil {
		d.logger.Warn().Err(err).Msg("failed to record event")
	}
}

// CheckReport summarizes a read-only probe of the cluster.
type CheckReport struct {
	ClusterID string               `json:"cluster_id"`
	Infobases map[string]string    `json:"infobases"`
	Sessions  []models.Session     `json:"sessions"`
	Cycle     *monitor.CycleReport `json:"cycle,omitempty"`
}

// Check resolves the cluster and lists its infobases and interactive sessions
// without terminating anything. With dryCycle it also runs one cycle with
// termination disabled, which refreshes the stored session counters.
func Check(ctx context.Context, cfg *config.Config, runner rac.Runner, registry monitor.ClientRegistry, dryCycle bool) (*CheckReport, error) {
	console := NewConsole(cfg, runner)

	identity := cluster.NewIdentity(console)
	clusterID, err := identity.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	directory := cluster.NewDirectory(console)
	if err := directory.Refresh(ctx, clusterID); err != nil {
		return nil, err
	}

	sessions, err := monitor.NewCollector(console).Collect(ctx, clusterID)
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		sessions[i].InfobaseName = directory.Name(sessions[i].InfobaseID)
	}

	report := &CheckReport{
		ClusterID: clusterID,
		Infobases: directory.Infobases(),
		Sessions:  sessions,
	}

	if dryCycle && registry != nil {
		dry := monitor.New(console, registry,
			monitor.StaticSettings{PollInterval: cfg.Monitor.PollInterval, KillMode: false},
			monitor.WithIdentity(identity),
			monitor.WithDirectory(directory),
		)
		cycle, err := dry.RunCycle(ctx)
		if err != nil {
			return report, err
		}
		report.Cycle = cycle
	}

	return report, nil
}
