package permit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/oarkflow/permit/logger"
)

// DelegationManager orchestrates the delegation lifecycle: validated grants,
// idempotent revocation, active lookups and terminal-state cleanup. It holds
// no state of its own; persistence and write serialization belong to the
// DelegationRepository.
type DelegationManager struct {
	validator *DelegationValidator
	repo      DelegationRepository
	retention time.Duration
	logger    logger.Logger
	clock     func() time.Time

	limiter       RateLimiter
	maxGrants     int
	limiterWindow time.Duration
}

// ManagerOption configures a DelegationManager.
type ManagerOption func(*DelegationManager)

// WithRetention sets how long revoked/expired delegations are kept before
// Cleanup removes them.
func WithRetention(d time.Duration) ManagerOption {
	return func(m *DelegationManager) { m.retention = d }
}

// WithManagerLogger installs a structured logger on the manager.
func WithManagerLogger(l logger.Logger) ManagerOption {
	return func(m *DelegationManager) { m.logger = l }
}

// WithClock overrides the time source; tests use this to cross expiries.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *DelegationManager) { m.clock = now }
}

// WithGrantRateLimit throttles Grant per delegator: at most maxGrants
// attempts per window. Rejected and accepted grants both count.
func WithGrantRateLimit(limiter RateLimiter, maxGrants int, window time.Duration) ManagerOption {
	return func(m *DelegationManager) {
		m.limiter = limiter
		m.maxGrants = maxGrants
		m.limiterWindow = window
	}
}

// NewDelegationManager builds a manager with a 30-day default retention and a
// no-op logger.
func NewDelegationManager(validator *DelegationValidator, repo DelegationRepository, opts ...ManagerOption) *DelegationManager {
	m := &DelegationManager{
		validator: validator,
		repo:      repo,
		retention: 30 * 24 * time.Hour,
		logger:    logger.NewNullLogger(),
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	// validator and manager must agree on "now" or expiry checks drift
	if validator != nil {
		validator.clock = m.clock
	}
	return m
}

// GrantRequest describes a proposed delegation.
type GrantRequest struct {
	DelegatorID string
	DelegateID  string
	Scope       DelegationScope
	ExpiresAt   *time.Time
	Transitive  bool
	Metadata    Attributes
}

// Grant validates the request and, only if every constraint holds, persists a
// new Active delegation. On validation failure it returns the accumulated
// *ValidationFailure and persists nothing.
func (m *DelegationManager) Grant(ctx context.Context, req GrantRequest) (*Delegation, error) {
	if m.limiter != nil {
		key := "delegation:grant:" + req.DelegatorID
		ok, err := m.limiter.Attempt(ctx, key, m.maxGrants, m.limiterWindow)
		if err != nil {
			return nil, fmt.Errorf("grant rate limit: %w", err)
		}
		if !ok {
			retry, err := m.limiter.AvailableIn(ctx, key)
			if err != nil {
				return nil, fmt.Errorf("grant rate limit: %w", err)
			}
			return nil, &RateLimitError{Key: key, RetryAfter: retry}
		}
	}
	if err := m.validator.Validate(ctx, req.DelegatorID, req.DelegateID, req.Scope, req.ExpiresAt, req.Transitive); err != nil {
		m.logger.Debug("delegation rejected",
			"delegator", req.DelegatorID, "delegate", req.DelegateID, "error", err.Error())
		return nil, err
	}

	d := &Delegation{
		ID:           uuid.NewString(),
		DelegatorID:  req.DelegatorID,
		DelegateID:   req.DelegateID,
		Scope:        req.Scope,
		CreatedAt:    m.clock(),
		ExpiresAt:    req.ExpiresAt,
		IsTransitive: req.Transitive,
		Status:       DelegationActive,
		Metadata:     req.Metadata,
	}
	if err := m.repo.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("persist delegation: %w", err)
	}
	m.logger.Info("delegation granted",
		"id", d.ID, "delegator", d.DelegatorID, "delegate", d.DelegateID, "transitive", d.IsTransitive)
	return d, nil
}

// Revoke flips a delegation to Revoked. Revoking an already-revoked
// delegation is not an error.
func (m *DelegationManager) Revoke(ctx context.Context, id string) error {
	d, err := m.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if d.Status == DelegationRevoked {
		return nil
	}
	if err := m.repo.Revoke(ctx, id, m.clock()); err != nil {
		return fmt.Errorf("revoke delegation %s: %w", id, err)
	}
	m.logger.Info("delegation revoked", "id", id, "delegator", d.DelegatorID, "delegate", d.DelegateID)
	return nil
}

// FindActiveDelegations returns the delegations currently usable by the
// subject as delegate. Expiry is applied at read time against the manager's
// clock; nothing is written.
func (m *DelegationManager) FindActiveDelegations(ctx context.Context, subject *Subject) ([]*Delegation, error) {
	stored, err := m.repo.FindActiveForDelegate(ctx, subject.ID)
	if err != nil {
		return nil, err
	}
	now := m.clock()
	active := make([]*Delegation, 0, len(stored))
	for _, d := range stored {
		if d.IsActive(now) {
			active = append(active, d)
		}
	}
	return active, nil
}

// CanDelegate probes whether the delegator currently holds every permission
// the scope implies, without persisting anything.
func (m *DelegationManager) CanDelegate(ctx context.Context, delegatorID string, scope DelegationScope) (bool, error) {
	if len(scope.Resources) == 0 || len(scope.Actions) == 0 {
		return false, nil
	}
	return m.validator.CheckOwnership(ctx, delegatorID, scope)
}

// Cleanup removes delegations that have been revoked or expired for longer
// than the retention window and returns how many were removed. The engine
// exposes the sweep; scheduling it is the host's job.
func (m *DelegationManager) Cleanup(ctx context.Context) (int, error) {
	cutoff := m.clock().Add(-m.retention)
	removed, err := m.repo.Cleanup(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delegation cleanup: %w", err)
	}
	if removed > 0 {
		m.logger.Info("delegation cleanup", "removed", removed)
	}
	return removed, nil
}
