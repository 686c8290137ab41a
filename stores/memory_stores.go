package stores

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oarkflow/permit"
)

// ============================================================================
// MEMORY POLICY REPOSITORY
// ============================================================================

// MemoryPolicyRepository implements rule persistence in-memory for
// testing/demo. Soft-deleted rules move to a trash map and stay restorable.
type MemoryPolicyRepository struct {
	mu      sync.RWMutex
	rules   map[string]*permit.PolicyRule
	trashed map[string]*permit.PolicyRule
}

func NewMemoryPolicyRepository() *MemoryPolicyRepository {
	return &MemoryPolicyRepository{
		rules:   make(map[string]*permit.PolicyRule),
		trashed: make(map[string]*permit.PolicyRule),
	}
}

// GetPoliciesFor returns every active rule. Rule subjects may be role names
// or wildcards the store cannot resolve, so narrowing is left to the matcher.
func (s *MemoryPolicyRepository) GetPoliciesFor(ctx context.Context, subjectID, resourceID string) (*permit.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	policy := &permit.Policy{Rules: make([]permit.PolicyRule, 0, len(s.rules))}
	for _, rule := range s.rules {
		policy.Rules = append(policy.Rules, *rule)
	}
	return policy, nil
}

func (s *MemoryPolicyRepository) GetPoliciesForBatch(ctx context.Context, queries []permit.PolicyQuery) ([]*permit.Policy, error) {
	out := make([]*permit.Policy, 0, len(queries))
	for _, q := range queries {
		p, err := s.GetPoliciesFor(ctx, q.SubjectID, q.ResourceID)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *MemoryPolicyRepository) Save(ctx context.Context, rule *permit.PolicyRule) error {
	if rule.ID == "" {
		return fmt.Errorf("rule id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cop := *rule
	s.rules[rule.ID] = &cop
	return nil
}

func (s *MemoryPolicyRepository) SoftDelete(ctx context.Context, ruleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rule, ok := s.rules[ruleID]
	if !ok {
		return fmt.Errorf("rule not found: %s", ruleID)
	}
	delete(s.rules, ruleID)
	s.trashed[ruleID] = rule
	return nil
}

func (s *MemoryPolicyRepository) Restore(ctx context.Context, ruleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rule, ok := s.trashed[ruleID]
	if !ok {
		return fmt.Errorf("rule not in trash: %s", ruleID)
	}
	delete(s.trashed, ruleID)
	s.rules[ruleID] = rule
	return nil
}

func (s *MemoryPolicyRepository) ListTrashed(ctx context.Context) ([]*permit.PolicyRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*permit.PolicyRule, 0, len(s.trashed))
	for _, rule := range s.trashed {
		cop := *rule
		out = append(out, &cop)
	}
	return out, nil
}

// ============================================================================
// MEMORY DELEGATION REPOSITORY
// ============================================================================

// MemoryDelegationRepository keeps delegations in a mutex-guarded map. The
// lock serializes individual Create calls; it does not make validate+create
// atomic, so concurrent grants validated against the same snapshot can both
// land.
type MemoryDelegationRepository struct {
	mu   sync.RWMutex
	byID map[string]*permit.Delegation
}

func NewMemoryDelegationRepository() *MemoryDelegationRepository {
	return &MemoryDelegationRepository{byID: make(map[string]*permit.Delegation)}
}

func (s *MemoryDelegationRepository) Create(ctx context.Context, d *permit.Delegation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[d.ID]; exists {
		return fmt.Errorf("delegation already exists: %s", d.ID)
	}
	cop := *d
	s.byID[d.ID] = &cop
	return nil
}

func (s *MemoryDelegationRepository) FindByID(ctx context.Context, id string) (*permit.Delegation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("delegation not found: %s", id)
	}
	cop := *d
	return &cop, nil
}

func (s *MemoryDelegationRepository) FindActiveForDelegate(ctx context.Context, delegateID string) ([]*permit.Delegation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*permit.Delegation, 0)
	for _, d := range s.byID {
		if d.DelegateID == delegateID && d.Status == permit.DelegationActive {
			cop := *d
			out = append(out, &cop)
		}
	}
	return out, nil
}

func (s *MemoryDelegationRepository) Revoke(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("delegation not found: %s", id)
	}
	d.Status = permit.DelegationRevoked
	d.RevokedAt = &at
	return nil
}

func (s *MemoryDelegationRepository) Cleanup(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, d := range s.byID {
		term := d.TerminalAt(cutoff)
		if !term.IsZero() && term.Before(cutoff) {
			delete(s.byID, id)
			removed++
		}
	}
	return removed, nil
}

// ============================================================================
// MEMORY AUDIT STORE
// ============================================================================

// MemoryAuditStore keeps audit entries in a slice; for tests and demos only.
type MemoryAuditStore struct {
	mu      sync.RWMutex
	entries []*permit.AuditEntry
}

func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{}
}

func (s *MemoryAuditStore) LogAccess(ctx context.Context, entry *permit.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cop := *entry
	s.entries = append(s.entries, &cop)
	return nil
}

func (s *MemoryAuditStore) GetAccessLog(ctx context.Context, filter permit.AuditFilter) ([]*permit.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*permit.AuditEntry, 0)
	for _, e := range s.entries {
		if filter.SubjectID != "" && e.SubjectID != filter.SubjectID {
			continue
		}
		if filter.ResourceID != "" && e.ResourceID != filter.ResourceID {
			continue
		}
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		if !filter.StartTime.IsZero() && e.Timestamp.Before(filter.StartTime) {
			continue
		}
		if !filter.EndTime.IsZero() && e.Timestamp.After(filter.EndTime) {
			continue
		}
		cop := *e
		out = append(out, &cop)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// ============================================================================
// MEMORY RATE LIMITER
// ============================================================================

type rateWindow struct {
	count   int
	resetAt time.Time
}

// MemoryRateLimiter is a fixed-window counter for single-process hosts.
type MemoryRateLimiter struct {
	mu      sync.Mutex
	windows map[string]*rateWindow
	clock   func() time.Time
}

func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{windows: make(map[string]*rateWindow), clock: time.Now}
}

func (l *MemoryRateLimiter) Attempt(ctx context.Context, key string, maxAttempts int, window time.Duration) (bool, error) {
	count, err := l.Hit(ctx, key, window)
	if err != nil {
		return false, err
	}
	return count <= maxAttempts, nil
}

func (l *MemoryRateLimiter) TooManyAttempts(ctx context.Context, key string, maxAttempts int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.windows[key]
	if !ok || !w.resetAt.After(l.clock()) {
		return false, nil
	}
	return w.count >= maxAttempts, nil
}

func (l *MemoryRateLimiter) Hit(ctx context.Context, key string, window time.Duration) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock()
	w, ok := l.windows[key]
	if !ok || !w.resetAt.After(now) {
		w = &rateWindow{resetAt: now.Add(window)}
		l.windows[key] = w
	}
	w.count++
	return w.count, nil
}

func (l *MemoryRateLimiter) Clear(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key)
	return nil
}

func (l *MemoryRateLimiter) AvailableIn(ctx context.Context, key string) (time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.windows[key]
	if !ok {
		return 0, nil
	}
	remaining := w.resetAt.Sub(l.clock())
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}
