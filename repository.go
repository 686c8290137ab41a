package permit

import (
	"context"
	"time"
)

// ============================================================================
// COLLABORATOR CONTRACTS
// ============================================================================

// The engine never persists anything itself; hosts plug in implementations
// of these interfaces (see stores/ for SQL, Redis and in-memory ones).

// PolicyQuery identifies one (subject, resource) pair for batch lookups.
type PolicyQuery struct {
	SubjectID  string
	ResourceID string
}

// PolicyRepository supplies the rules relevant to a request and manages rule
// persistence with soft deletion.
type PolicyRepository interface {
	// GetPoliciesFor returns the policy governing the subject/resource pair.
	// Pattern filtering is the matcher's job; repositories may over-return.
	GetPoliciesFor(ctx context.Context, subjectID, resourceID string) (*Policy, error)
	GetPoliciesForBatch(ctx context.Context, queries []PolicyQuery) ([]*Policy, error)
	Save(ctx context.Context, rule *PolicyRule) error
	// SoftDelete hides a rule from GetPoliciesFor without destroying it.
	SoftDelete(ctx context.Context, ruleID string) error
	Restore(ctx context.Context, ruleID string) error
	ListTrashed(ctx context.Context) ([]*PolicyRule, error)
}

// DelegationRepository persists delegations. Create must be serialized per
// delegator/delegate pair by the implementation (transaction or row lock), so
// two concurrent grants cannot jointly form a cycle that neither validator
// snapshot saw.
type DelegationRepository interface {
	Create(ctx context.Context, d *Delegation) error
	FindByID(ctx context.Context, id string) (*Delegation, error)
	// FindActiveForDelegate returns delegations with Status Active whose
	// delegate is the given subject. Expiry filtering happens at read time in
	// the manager; repositories only filter on stored status.
	FindActiveForDelegate(ctx context.Context, delegateID string) ([]*Delegation, error)
	Revoke(ctx context.Context, id string, at time.Time) error
	// Cleanup removes revoked or expired delegations whose terminal timestamp
	// is before cutoff and returns how many were removed.
	Cleanup(ctx context.Context, cutoff time.Time) (int, error)
}

// AttributeProvider resolves attributes the request objects don't carry
// themselves. Used by the ABAC matcher; entityID is a subject or resource ID.
type AttributeProvider interface {
	GetAttribute(entityID, name string) (any, bool)
}

// AuditEntry records one authorization decision.
type AuditEntry struct {
	ID           string     `json:"id"`
	Timestamp    time.Time  `json:"timestamp"`
	SubjectID    string     `json:"subject_id"`
	ResourceID   string     `json:"resource_id"`
	ResourceType string     `json:"resource_type"`
	Action       Action     `json:"action"`
	Decision     *Decision  `json:"decision"`
	Metadata     Attributes `json:"metadata,omitempty"`
}

// AuditFilter selects audit entries for retrieval.
type AuditFilter struct {
	SubjectID  string
	ResourceID string
	Action     Action
	StartTime  time.Time
	EndTime    time.Time
	Limit      int
}

// AuditLogger is a fire-and-forget observability hook; failures are logged,
// never surfaced to the decision path.
type AuditLogger interface {
	LogAccess(ctx context.Context, entry *AuditEntry) error
}

// RateLimiter guards the evaluator's caller, not the evaluator itself.
// Keys are host-defined (typically subject ID or subject+resource).
type RateLimiter interface {
	// Attempt registers a hit and reports whether the caller is still within
	// maxAttempts for the window.
	Attempt(ctx context.Context, key string, maxAttempts int, window time.Duration) (bool, error)
	TooManyAttempts(ctx context.Context, key string, maxAttempts int) (bool, error)
	// Hit increments the counter and returns the new count.
	Hit(ctx context.Context, key string, window time.Duration) (int, error)
	Clear(ctx context.Context, key string) error
	// AvailableIn reports how long until the key's window resets.
	AvailableIn(ctx context.Context, key string) (time.Duration, error)
}
