// Package monitor implements the session quota enforcement loop: it reads live
// cluster state through the administration console, attributes sessions to
// registered clients and terminates sessions that violate client policy.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sdbsm/1CSessionManager-sub000/internal/cluster"
	"github.com/sdbsm/1CSessionManager-sub000/internal/logging"
	"github.com/sdbsm/1CSessionManager-sub000/internal/models"
	"golang.org/x/sync/errgroup"
)

// Monitor errors.
var (
	ErrMonitorAlreadyRunning = errors.New("monitor already running")
	ErrMonitorNotRunning     = errors.New("monitor not running")
	ErrCycleInProgress       = errors.New("monitor cycle already in progress")
)

// DefaultMaxParallelKills bounds how many clients are enforced concurrently.
const DefaultMaxParallelKills = 4

// State is the cycle state of the monitor.
type State int

const (
	StateIdle State = iota
	StateRunning
)

func (s State) String() string {
	if s == StateRunning {
		return "running"
	}
	return "idle"
}

// Console is the subset of the administration console the monitor needs.
type Console interface {
	cluster.ClusterLister
	cluster.InfobaseLister
	SessionLister
	SessionKiller
}

// ClientRegistry supplies clients and stores their per-cycle counters.
type ClientRegistry interface {
	List(ctx context.Context) ([]*models.Client, error)
	UpdateCounters(ctx context.Context, clientID string, active int, perInfobase map[string]int) error
}

// StatsStore receives the aggregate snapshot at the end of every cycle.
type StatsStore interface {
	SaveStats(ctx context.Context, stats *models.ClusterStats) error
}

// CycleOutcome summarizes how a cycle ended.
type CycleOutcome string

const (
	OutcomeCompleted CycleOutcome = "completed"
	OutcomeOffline   CycleOutcome = "offline"
	OutcomeFailed    CycleOutcome = "failed"
)

// ClientResult is the per-client part of a CycleReport.
type ClientResult struct {
	ClientID   string       `json:"client_id"`
	ClientName string       `json:"client_name"`
	Sessions   int          `json:"sessions"`
	Decision   DecisionKind `json:"decision,omitempty"`
	Terminated int          `json:"terminated"`
	Failed     int          `json:"failed"`
}

// CycleReport describes one completed cycle.
type CycleReport struct {
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   time.Time      `json:"finished_at"`
	Outcome      CycleOutcome   `json:"outcome"`
	ClusterID    string         `json:"cluster_id,omitempty"`
	KillMode     bool           `json:"kill_mode"`
	Sessions     int            `json:"sessions"`
	Unattributed int            `json:"unattributed"`
	Skipped      int            `json:"skipped"`
	Conflicts    int            `json:"conflicts"`
	Terminated   int            `json:"terminated"`
	FailedKills  int            `json:"failed_kills"`
	Clients      []ClientResult `json:"clients,omitempty"`
	Error        string         `json:"error,omitempty"`

	Err error `json:"-"`
}

func (r *CycleReport) fail(outcome CycleOutcome, err error) {
	r.Outcome = outcome
	r.Err = err
	if err != nil {
		r.Error = err.Error()
	}
}

// Monitor runs enforcement cycles one at a time.
type Monitor struct {
	identity         *cluster.Identity
	directory        *cluster.Directory
	collector        *Collector
	terminator       *Terminator
	registry         ClientRegistry
	settings         SettingsProvider
	stats            StatsStore
	events           EventSink
	policy           Policy
	maxParallelKills int
	now              func() time.Time
	logger           zerolog.Logger

	stateMu      sync.Mutex
	state        State
	lastSettings Settings
	lastReport   *CycleReport

	loopMu  sync.Mutex
	looping bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithIdentity injects the cluster identity cache.
func WithIdentity(identity *cluster.Identity) Option {
	return func(m *Monitor) {
		m.identity = identity
	}
}

// WithDirectory injects the infobase directory.
func WithDirectory(directory *cluster.Directory) Option {
	return func(m *Monitor) {
		m.directory = directory
	}
}

// WithStatsStore sets where aggregate statistics are published.
func WithStatsStore(store StatsStore) Option {
	return func(m *Monitor) {
		m.stats = store
	}
}

// WithEventSink sets the audit event log.
func WithEventSink(sink EventSink) Option {
	return func(m *Monitor) {
		m.events = sink
	}
}

// WithPolicy overrides the enforcement messages.
func WithPolicy(policy Policy) Option {
	return func(m *Monitor) {
		m.policy = policy
	}
}

// WithMaxParallelKills bounds concurrent per-client enforcement.
func WithMaxParallelKills(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.maxParallelKills = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}

// New creates a new Monitor.
func New(console Console, registry ClientRegistry, settings SettingsProvider, opts ...Option) *Monitor {
	m := &Monitor{
		registry:         registry,
		settings:         settings,
		stats:            nopStats{},
		events:           nopEvents{},
		policy:           DefaultPolicy(),
		maxParallelKills: DefaultMaxParallelKills,
		now:              time.Now,
		logger:           logging.Component("monitor"),
		lastSettings:     Settings{PollInterval: time.Minute},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.identity == nil {
		m.identity = cluster.NewIdentity(console)
	}
	if m.directory == nil {
		m.directory = cluster.NewDirectory(console)
	}
	m.collector = NewCollector(console)
	m.terminator = NewTerminator(console, m.events)
	return m
}

// Identity returns the cluster identity cache.
func (m *Monitor) Identity() *cluster.Identity {
	return m.identity
}

// State returns the current cycle state.
func (m *Monitor) State() State {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.state
}

// LastReport returns the report of the last finished cycle, or nil.
func (m *Monitor) LastReport() *CycleReport {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	if m.lastReport == nil {
		return nil
	}
	report := *m.lastReport
	return &report
}

// Start launches the scheduling loop in the background.
func (m *Monitor) Start(ctx context.Context) error {
	m.loopMu.Lock()
	defer m.loopMu.Unlock()

	if m.looping {
		return ErrMonitorAlreadyRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.looping = true

	m.logger.Info().Msg("monitor starting")

	m.wg.Add(1)
	go m.runLoop(loopCtx)
	return nil
}

// Stop halts the loop, waiting for an in-flight cycle to finish.
func (m *Monitor) Stop() error {
	m.loopMu.Lock()
	if !m.looping {
		m.loopMu.Unlock()
		return ErrMonitorNotRunning
	}
	m.logger.Info().Msg("monitor stopping")
	m.cancel()
	m.looping = false
	m.loopMu.Unlock()

	m.wg.Wait()
	m.logger.Info().Msg("monitor stopped")
	return nil
}

// Run blocks running cycles until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return m.Stop()
}

// runLoop runs a cycle, then waits the configured interval, regardless of
// how the cycle ended. Cancellation is only observed between cycles.
func (m *Monitor) runLoop(ctx context.Context) {
	defer m.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		_, _ = m.RunCycle(context.WithoutCancel(ctx))

		timer := time.NewTimer(m.pollInterval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (m *Monitor) pollInterval() time.Duration {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.lastSettings.PollInterval
}

func (m *Monitor) begin() bool {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	if m.state == StateRunning {
		return false
	}
	m.state = StateRunning
	return true
}

func (m *Monitor) end(report *CycleReport) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	m.state = StateIdle
	m.lastReport = report
}

// RunCycle executes one cycle. If a cycle is already running the call is a
// no-op returning ErrCycleInProgress.
func (m *Monitor) RunCycle(ctx context.Context) (report *CycleReport, err error) {
	if !m.begin() {
		m.logger.Debug().Msg("cycle already running; trigger ignored")
		return nil, ErrCycleInProgress
	}

	report = &CycleReport{StartedAt: m.now()}
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error().Interface("panic", r).Msg("monitor cycle panicked")
			report.fail(OutcomeFailed, fmt.Errorf("cycle panic: %v", r))
		}
		report.FinishedAt = m.now()
		m.end(report)
		m.logReport(report)
		err = report.Err
	}()

	m.cycle(ctx, report)
	return report, report.Err
}

func (m *Monitor) cycle(ctx context.Context, report *CycleReport) {
	settings := m.loadSettings(ctx)
	report.KillMode = settings.KillMode

	clusterID, err := m.identity.Resolve(ctx)
	if err != nil {
		m.identity.ReportFailure(err)
		m.logger.Warn().Err(err).Msg("cluster unavailable; skipping cycle")
		report.fail(OutcomeOffline, err)
		m.saveStats(ctx, models.OfflineStats(m.now()))
		return
	}
	report.ClusterID = clusterID

	var (
		sessions []models.Session
		dirErr   error
		snapErr  error
		g        errgroup.Group
	)
	g.Go(func() error {
		dirErr = m.directory.Refresh(ctx, clusterID)
		return nil
	})
	g.Go(func() error {
		sessions, snapErr = m.collector.Collect(ctx, clusterID)
		return nil
	})
	_ = g.Wait()

	if dirErr != nil {
		m.identity.ReportFailure(dirErr)
		m.logger.Warn().Err(dirErr).Msg("infobase directory unavailable; using raw identifiers")
	}
	if snapErr != nil {
		outcome := OutcomeFailed
		if m.identity.ReportFailure(snapErr) {
			outcome = OutcomeOffline
		}
		m.logger.Error().Err(snapErr).Str("cluster_id", clusterID).Msg("session snapshot failed; cycle aborted")
		report.fail(outcome, snapErr)
		m.saveStats(ctx, models.OfflineStats(m.now()))
		return
	}

	clients, registryErr := m.registry.List(ctx)
	if registryErr != nil {
		m.logger.Error().Err(registryErr).Msg("failed to list clients; enforcement skipped")
		report.fail(OutcomeFailed, fmt.Errorf("failed to list clients: %w", registryErr))
		clients = nil
	}

	mapping := MapSessions(clients, m.directory, sessions, m.logger)
	report.Sessions = mapping.Total
	report.Unattributed = mapping.Unattributed
	report.Skipped = mapping.Skipped
	report.Conflicts = mapping.Conflicts

	if registryErr == nil {
		report.Clients = m.enforce(ctx, clusterID, mapping, settings.KillMode)
		for _, result := range report.Clients {
			report.Terminated += result.Terminated
			report.FailedKills += result.Failed
		}
		m.persistCounters(ctx, mapping)
	}

	m.saveStats(ctx, &models.ClusterStats{
		Online:        true,
		ClusterID:     clusterID,
		TotalSessions: mapping.Total,
		ByInfobase:    mapping.ByInfobase,
		ByAppKind:     mapping.ByAppKind,
		UpdatedAt:     m.now(),
	})

	if report.Outcome == "" {
		report.Outcome = OutcomeCompleted
	}
}

func (m *Monitor) loadSettings(ctx context.Context) Settings {
	settings, err := m.settings.MonitorSettings(ctx)

	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	if err != nil {
		m.logger.Warn().Err(err).Msg("failed to read settings; keeping previous values")
		return m.lastSettings
	}
	settings.PollInterval = ClampPollInterval(settings.PollInterval)
	m.lastSettings = settings
	return settings
}

// enforce decides and executes terminations. Clients are handled
// concurrently; one client's sessions are terminated sequentially.
func (m *Monitor) enforce(ctx context.Context, clusterID string, mapping *Mapping, killMode bool) []ClientResult {
	results := make([]ClientResult, len(mapping.Usage))

	var g errgroup.Group
	g.SetLimit(m.maxParallelKills)

	for i, usage := range mapping.Usage {
		results[i] = ClientResult{
			ClientID:   usage.Client.ID,
			ClientName: usage.Client.Name,
			Sessions:   usage.Count(),
		}
		if !killMode {
			continue
		}

		decision := m.policy.Decide(usage.Client.Status, usage.Client.Quota, usage.Sessions)
		if decision.Empty() {
			continue
		}
		results[i].Decision = decision.Kind

		i, usage := i, usage
		g.Go(func() error {
			results[i].Terminated, results[i].Failed = m.enforceClient(ctx, clusterID, usage, decision)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (m *Monitor) enforceClient(ctx context.Context, clusterID string, usage *ClientUsage, decision Decision) (terminated, failed int) {
	client := usage.Client

	switch decision.Kind {
	case DecisionBlocked:
		m.recordEvent(ctx, models.EventSeverityWarning, client.ID,
			fmt.Sprintf("Client %q is blocked: terminating %d session(s)", client.Name, len(decision.Kill)))
	case DecisionQuota:
		m.logger.Info().
			Str("client", client.Name).
			Int("sessions", usage.Count()).
			Int("quota", client.Quota).
			Int("excess", len(decision.Kill)).
			Msg("client over quota")
	}

	for _, session := range decision.Kill {
		if err := m.terminator.Terminate(ctx, clusterID, client, session, decision.Reason); err != nil {
			failed++
			m.identity.ReportFailure(err)
			m.logger.Error().Err(err).
				Str("client", client.Name).
				Str("session_id", session.ID).
				Msg("termination failed")
			continue
		}
		terminated++
	}

	if decision.Kind == DecisionQuota && failed == 0 {
		m.recordEvent(ctx, models.EventSeverityInfo, client.ID,
			fmt.Sprintf("Quota excess resolved for client %q: %d session(s) over limit %d terminated",
				client.Name, terminated, client.Quota))
	}
	return terminated, failed
}

func (m *Monitor) persistCounters(ctx context.Context, mapping *Mapping) {
	for _, usage := range mapping.Usage {
		client := usage.Client
		client.ActiveSessions = usage.Count()
		client.InfobaseSessions = usage.PerInfobase
		if err := m.registry.UpdateCounters(ctx, client.ID, usage.Count(), usage.PerInfobase); err != nil {
			m.logger.Warn().Err(err).Str("client", client.Name).Msg("failed to persist client counters")
		}
	}
}

func (m *Monitor) saveStats(ctx context.Context, stats *models.ClusterStats) {
	if err := m.stats.SaveStats(ctx, stats); err != nil {
		m.logger.Warn().Err(err).Msg("failed to save cluster statistics")
	}
}

func (m *Monitor) recordEvent(ctx context.Context, severity models.EventSeverity, clientID, message string) {
	event := &models.Event{Severity: severity, Message: message, ClientID: clientID}
	if err := m.events.Append(ctx, event); err != nil {
		m.logger.Warn().Err(err).Msg("failed to record event")
	}
}

func (m *Monitor) logReport(report *CycleReport) {
	event := m.logger.Debug()
	if report.Err != nil || report.FailedKills > 0 {
		event = m.logger.Info()
	}
	event.
		Str("outcome", string(report.Outcome)).
		Str("cluster_id", report.ClusterID).
		Int("sessions", report.Sessions).
		Int("unattributed", report.Unattributed).
		Int("terminated", report.Terminated).
		Int("failed_kills", report.FailedKills).
		Dur("duration", report.FinishedAt.Sub(report.StartedAt)).
		Msg("monitor cycle finished")
}

type nopStats struct{}

func (nopStats) SaveStats(context.Context, *models.ClusterStats) error { return nil }

type nopEvents struct{}

func (nopEvents) Append(context.Context, *models.Event) error { return nil }
