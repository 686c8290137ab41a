package permit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oarkflow/permit/logger"
)

// ============================================================================
// POLICY EVALUATOR
// ============================================================================

// PolicyEvaluator answers one question: does this policy allow the subject to
// perform the action on the resource? It is pure and deterministic — the same
// inputs always produce the same effect regardless of rule order.
type PolicyEvaluator struct {
	matcher  RuleMatcher
	resolver *EffectResolver
}

// NewPolicyEvaluator pairs a matching strategy with an effect resolver.
func NewPolicyEvaluator(matcher RuleMatcher, resolver *EffectResolver) *PolicyEvaluator {
	if resolver == nil {
		resolver = NewEffectResolver(EffectDeny)
	}
	return &PolicyEvaluator{matcher: matcher, resolver: resolver}
}

// Evaluate returns the governing effect for the request.
func (e *PolicyEvaluator) Evaluate(policy *Policy, subject *Subject, resource *Resource, action Action) Effect {
	effect, _ := e.resolver.Resolve(e.matchedRules(policy, subject, resource, action))
	return effect
}

// Decide is Evaluate plus an explanation: which rule governed and why.
func (e *PolicyEvaluator) Decide(policy *Policy, subject *Subject, resource *Resource, action Action) *Decision {
	matched := e.matchedRules(policy, subject, resource, action)
	effect, rule := e.resolver.Resolve(matched)

	d := &Decision{
		Effect:    effect,
		Allowed:   effect == EffectAllow,
		Timestamp: time.Now(),
	}
	if rule == nil {
		d.Reason = fmt.Sprintf("no rule matched; default effect is %s", e.resolver.DefaultEffect())
		return d
	}
	d.MatchedBy = ruleRef(rule)
	d.Reason = fmt.Sprintf("rule %s (priority %d) says %s", d.MatchedBy, rule.Priority, rule.Effect)
	return d
}

func (e *PolicyEvaluator) matchedRules(policy *Policy, subject *Subject, resource *Resource, action Action) []*PolicyRule {
	if policy == nil {
		return nil
	}
	var matched []*PolicyRule
	for i := range policy.Rules {
		rule := &policy.Rules[i]
		if e.matcher.Matches(rule, subject, resource, action) {
			matched = append(matched, rule)
		}
	}
	return matched
}

func ruleRef(rule *PolicyRule) string {
	if rule.ID != "" {
		return rule.ID
	}
	return rule.GroupKey()
}

// ============================================================================
// DELEGATION-AWARE EVALUATOR
// ============================================================================

// DelegationAwarePolicyEvaluator layers delegated permissions on top of
// direct policy evaluation. An explicit Deny matched by a rule always stands;
// delegation can only add permissions, never strip a denial.
type DelegationAwarePolicyEvaluator struct {
	direct  *PolicyEvaluator
	manager *DelegationManager
	logger  logger.Logger
	clock   func() time.Time

	// asynchronous audit channel to keep LogAccess off the decision path
	auditLogger AuditLogger
	auditCh     chan AuditEntry
	closeOnce   sync.Once
	done        chan struct{}
}

// EvaluatorOption configures a DelegationAwarePolicyEvaluator.
type EvaluatorOption func(*DelegationAwarePolicyEvaluator)

// WithLogger installs a structured logger on the evaluator.
func WithLogger(l logger.Logger) EvaluatorOption {
	return func(e *DelegationAwarePolicyEvaluator) { e.logger = l }
}

// WithAuditLogger enables async auditing of every decision. Entries are
// dropped, not blocked on, when the audit queue is full.
func WithAuditLogger(a AuditLogger) EvaluatorOption {
	return func(e *DelegationAwarePolicyEvaluator) { e.auditLogger = a }
}

// WithEvaluatorClock overrides the time source used for decision timestamps.
func WithEvaluatorClock(now func() time.Time) EvaluatorOption {
	return func(e *DelegationAwarePolicyEvaluator) { e.clock = now }
}

// NewDelegationAwareEvaluator wraps a direct evaluator with delegation
// lookups through the manager. Call Close when done to drain the audit queue.
func NewDelegationAwareEvaluator(direct *PolicyEvaluator, manager *DelegationManager, opts ...EvaluatorOption) *DelegationAwarePolicyEvaluator {
	e := &DelegationAwarePolicyEvaluator{
		direct:  direct,
		manager: manager,
		logger:  logger.NewNullLogger(),
		clock:   time.Now,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.auditCh = make(chan AuditEntry, 1024)
	go e.auditWorker()
	return e
}

func (e *DelegationAwarePolicyEvaluator) auditWorker() {
	defer close(e.done)
	bg := context.Background()
	for entry := range e.auditCh {
		if e.auditLogger == nil {
			continue
		}
		if err := e.auditLogger.LogAccess(bg, &entry); err != nil {
			e.logger.Error("audit write failed", "entry", entry.ID, "error", err.Error())
		}
	}
}

// Close stops the audit worker after draining queued entries. The evaluator
// must not be used after Close.
func (e *DelegationAwarePolicyEvaluator) Close() {
	e.closeOnce.Do(func() {
		close(e.auditCh)
		<-e.done
	})
}

// Decide evaluates the direct policy first, then consults active delegations
// only when the direct answer is a default deny. The ordering encodes two
// rules: an explicit Deny is final, and delegation never needs to run when
// the subject is already allowed.
func (e *DelegationAwarePolicyEvaluator) Decide(ctx context.Context, policy *Policy, subject *Subject, resource *Resource, action Action) *Decision {
	decision := e.direct.Decide(policy, subject, resource, action)

	switch {
	case decision.Allowed:
		// direct allow, delegation irrelevant
	case decision.MatchedBy != "":
		// explicit deny: delegation must not override it
	default:
		if delegated := e.delegatedDecision(ctx, subject, resource, action); delegated != nil {
			decision = delegated
		}
	}

	e.audit(subject, resource, action, decision)
	return decision
}

// Evaluate is Decide reduced to its effect.
func (e *DelegationAwarePolicyEvaluator) Evaluate(ctx context.Context, policy *Policy, subject *Subject, resource *Resource, action Action) Effect {
	return e.Decide(ctx, policy, subject, resource, action).Effect
}

func (e *DelegationAwarePolicyEvaluator) delegatedDecision(ctx context.Context, subject *Subject, resource *Resource, action Action) *Decision {
	if e.manager == nil {
		return nil
	}
	delegations, err := e.manager.FindActiveDelegations(ctx, subject)
	if err != nil {
		// fail closed: a broken delegation lookup cannot grant anything
		e.logger.Error("delegation lookup failed", "subject", subject.ID, "error", err.Error())
		return nil
	}
	for _, d := range delegations {
		if d.Scope.Domain != "" && d.Scope.Domain != subject.Domain() {
			continue
		}
		if !d.Scope.Matches(resource.ID, string(action)) {
			continue
		}
		return &Decision{
			Effect:    EffectAllow,
			Allowed:   true,
			Reason:    fmt.Sprintf("delegated by %s via delegation %s", d.DelegatorID, d.ID),
			MatchedBy: d.ID,
			Timestamp: e.clock(),
		}
	}
	return nil
}

func (e *DelegationAwarePolicyEvaluator) audit(subject *Subject, resource *Resource, action Action, decision *Decision) {
	if e.auditLogger == nil {
		return
	}
	entry := AuditEntry{
		ID:           uuid.NewString(),
		Timestamp:    e.clock(),
		SubjectID:    subject.ID,
		ResourceID:   resource.ID,
		ResourceType: resource.Type,
		Action:       action,
		Decision:     decision,
	}

	e.logger.Debug("decision",
		"subject", subject.ID, "resource", resource.ID, "action", string(action),
		"allowed", decision.Allowed, "matched_by", decision.MatchedBy)

	select {
	case e.auditCh <- entry:
		// queued
	default:
		// drop if channel is full to avoid blocking hot path
	}
}
