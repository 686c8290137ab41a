package permit

import (
	"time"

	"github.com/oarkflow/permit/utils"
)

// ============================================================================
// DELEGATION
// ============================================================================

// DelegationState is the lifecycle state of a delegation. Active may pass to
// Expired (derived from the clock, never written) or to Revoked (an explicit
// write); both are terminal.
type DelegationState string

const (
	DelegationActive  DelegationState = "active"
	DelegationExpired DelegationState = "expired"
	DelegationRevoked DelegationState = "revoked"
)

// DelegationScope bounds what a delegation covers: resource patterns, action
// patterns and an optional domain. Patterns follow the policy wildcard rules
// (literal, "*", "prefix:*").
type DelegationScope struct {
	Resources []string `json:"resources" yaml:"resources"`
	Actions   []string `json:"actions" yaml:"actions"`
	Domain    string   `json:"domain,omitempty" yaml:"domain,omitempty"`
}

// Matches reports whether the scope covers the resource/action pair: at least
// one resource pattern and at least one action pattern must match. The domain
// clause is checked by the caller against the request's domain context.
func (s *DelegationScope) Matches(resourceID, actionName string) bool {
	return utils.MatchAny(resourceID, s.Resources) && utils.MatchAny(actionName, s.Actions)
}

// Pairs expands the scope into every (resource pattern, action pattern)
// combination it implies. Ownership validation checks each pair.
func (s *DelegationScope) Pairs() [][2]string {
	pairs := make([][2]string, 0, len(s.Resources)*len(s.Actions))
	for _, r := range s.Resources {
		for _, a := range s.Actions {
			pairs = append(pairs, [2]string{r, a})
		}
	}
	return pairs
}

// Delegation is a time-bounded, scoped grant letting the delegate act with a
// subset of the delegator's permissions.
type Delegation struct {
	ID           string          `json:"id" yaml:"id"`
	DelegatorID  string          `json:"delegator_id" yaml:"delegator_id"`
	DelegateID   string          `json:"delegate_id" yaml:"delegate_id"`
	Scope        DelegationScope `json:"scope" yaml:"scope"`
	CreatedAt    time.Time       `json:"created_at" yaml:"created_at"`
	ExpiresAt    *time.Time      `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
	RevokedAt    *time.Time      `json:"revoked_at,omitempty" yaml:"revoked_at,omitempty"`
	IsTransitive bool            `json:"is_transitive" yaml:"is_transitive"`
	Status       DelegationState `json:"status" yaml:"status"`
	Metadata     Attributes      `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// IsActive applies the currently-active invariant: stored status Active and
// not past expiry at the given instant.
func (d *Delegation) IsActive(now time.Time) bool {
	if d.Status != DelegationActive {
		return false
	}
	return d.ExpiresAt == nil || d.ExpiresAt.After(now)
}

// EffectiveState derives the state at the given instant; an Active
// delegation past its expiry reads as Expired without a write.
func (d *Delegation) EffectiveState(now time.Time) DelegationState {
	if d.Status == DelegationActive && d.ExpiresAt != nil && !d.ExpiresAt.After(now) {
		return DelegationExpired
	}
	return d.Status
}

// TerminalAt returns when the delegation reached a terminal state: RevokedAt
// for revoked ones, ExpiresAt for expired ones, zero for active ones.
// Cleanup retention is measured from this instant.
func (d *Delegation) TerminalAt(now time.Time) time.Time {
	switch d.EffectiveState(now) {
	case DelegationRevoked:
		if d.RevokedAt != nil {
			return *d.RevokedAt
		}
		return d.CreatedAt
	case DelegationExpired:
		return *d.ExpiresAt
	}
	return time.Time{}
}
