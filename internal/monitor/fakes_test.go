package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/sdbsm/1CSessionManager-sub000/internal/models"
	"github.com/sdbsm/1CSessionManager-sub000/internal/rac"
)

type terminateCall struct {
	ClusterID string
	SessionID string
	Reason    string
}

type fakeConsole struct {
	mu sync.Mutex

	clusters    []rac.Record
	clusterErr  error
	infobases   []rac.Record
	infobaseErr error
	sessions    []rac.Record
	sessionErr  error
	killErrs    map[string]error

	clusterCalls int
	terminated   []terminateCall

	// block, when set, is waited on inside ListSessions.
	block chan struct{}
}

func (f *fakeConsole) ListClusters(ctx context.Context) ([]rac.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clusterCalls++
	return f.clusters, f.clusterErr
}

func (f *fakeConsole) ListInfobases(ctx context.Context, clusterID string) ([]rac.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.infobases, f.infobaseErr
}

func (f *fakeConsole) ListSessions(ctx context.Context, clusterID string) ([]rac.Record, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions, f.sessionErr
}

func (f *fakeConsole) TerminateSession(ctx context.Context, clusterID, sessionID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.killErrs[sessionID]; err != nil {
		return err
	}
	f.terminated = append(f.terminated, terminateCall{ClusterID: clusterID, SessionID: sessionID, Reason: reason})
	return nil
}

func (f *fakeConsole) terminatedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.terminated))
	for _, call := range f.terminated {
		ids = append(ids, call.SessionID)
	}
	return ids
}

type counterUpdate struct {
	Active      int
	PerInfobase map[string]int
}

type fakeRegistry struct {
	mu       sync.Mutex
	clients  []*models.Client
	listErr  error
	counters map[string]counterUpdate
}

func (r *fakeRegistry) List(ctx context.Context) ([]*models.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	out := make([]*models.Client, 0, len(r.clients))
	for _, c := range r.clients {
		copied := *c
		out = append(out, &copied)
	}
	return out, nil
}

func (r *fakeRegistry) UpdateCounters(ctx context.Context, clientID string, active int, perInfobase map[string]int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counters == nil {
		r.counters = map[string]counterUpdate{}
	}
	r.counters[clientID] = counterUpdate{Active: active, PerInfobase: perInfobase}
	return nil
}

type fakeStats struct {
	mu    sync.Mutex
	saved []*models.ClusterStats
}

func (s *fakeStats) SaveStats(ctx context.Context, stats *models.ClusterStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, stats)
	return nil
}

func (s *fakeStats) last() *models.ClusterStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.saved) == 0 {
		return nil
	}
	return s.saved[len(s.saved)-1]
}

type fakeEvents struct {
	mu     sync.Mutex
	events []*models.Event
	err    error
}

func (e *fakeEvents) Append(ctx context.Context, event *models.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.events = append(e.events, event)
	return nil
}

func (e *fakeEvents) messages() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.Message)
	}
	return out
}

var baseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.Local)

func sessionRecord(id, infobaseID, appID string, startedAt time.Time) rac.Record {
	return rac.Record{
		rac.KeySession:   id,
		rac.KeyInfobase:  infobaseID,
		rac.KeyAppID:     appID,
		rac.KeyStartedAt: startedAt.Format("2006-01-02T15:04:05"),
		rac.KeyUserName:  "user-" + id,
		rac.KeyHost:      "pc-" + id,
	}
}

func session(id string, startedAt time.Time) models.Session {
	return models.Session{ID: id, StartedAt: startedAt}
}
