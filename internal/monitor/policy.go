package monitor

import (
	"sort"

	"github.com/sdbsm/1CSessionManager-sub000/internal/models"
)

// Default user-visible termination messages.
const (
	ReasonBlocked       = "Access blocked by administrator"
	ReasonQuotaExceeded = "Session limit for your organization exceeded"
)

// DecisionKind describes why sessions are being terminated.
type DecisionKind string

const (
	DecisionNone    DecisionKind = ""
	DecisionBlocked DecisionKind = "blocked"
	DecisionQuota   DecisionKind = "quota"
)

// Decision is the ordered kill list for one client in one cycle.
type Decision struct {
	Kind   DecisionKind
	Kill   []models.Session
	Reason string
}

// Empty reports whether no sessions should be terminated.
func (d Decision) Empty() bool {
	return len(d.Kill) == 0
}

// Policy turns a client's state into a Decision.
type Policy struct {
	BlockedReason string
	QuotaReason   string
}

// DefaultPolicy uses the default termination messages.
func DefaultPolicy() Policy {
	return Policy{BlockedReason: ReasonBlocked, QuotaReason: ReasonQuotaExceeded}
}

// Decide applies the default policy.
func Decide(status models.ClientStatus, quota int, sessions []models.Session) Decision {
	return DefaultPolicy().Decide(status, quota, sessions)
}

// Decide returns the sessions to terminate. Blocked clients lose every
// session; clients over quota lose their newest sessions first.
func (p Policy) Decide(status models.ClientStatus, quota int, sessions []models.Session) Decision {
	if len(sessions) == 0 {
		return Decision{}
	}

	if status == models.ClientStatusBlocked {
		kill := make([]models.Session, len(sessions))
		copy(kill, sessions)
		return Decision{Kind: DecisionBlocked, Kill: kill, Reason: p.BlockedReason}
	}

	if quota <= 0 || len(sessions) <= quota {
		return Decision{}
	}

	ordered := make([]models.Session, len(sessions))
	copy(ordered, sessions)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].StartedAt.After(ordered[j].StartedAt)
	})

	excess := len(sessions) - quota
	return Decision{Kind: DecisionQuota, Kill: ordered[:excess], Reason: p.QuotaReason}
}
