package permit

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// DelegationValidator enforces the delegation invariants before a grant is
// persisted: ownership, acyclicity and duration. All failures accumulate into
// one ValidationFailure so the caller sees every problem at once.
type DelegationValidator struct {
	evaluator   *PolicyEvaluator
	policies    PolicyRepository
	delegations DelegationRepository
	maxDuration time.Duration // 0 = unbounded
	clock       func() time.Time
}

// NewDelegationValidator wires the validator to the direct-policy evaluator
// and the repositories it consults. maxDuration of 0 disables the
// maximum-duration check.
func NewDelegationValidator(evaluator *PolicyEvaluator, policies PolicyRepository, delegations DelegationRepository, maxDuration time.Duration) *DelegationValidator {
	return &DelegationValidator{
		evaluator:   evaluator,
		policies:    policies,
		delegations: delegations,
		maxDuration: maxDuration,
		clock:       time.Now,
	}
}

// Validate checks a proposed delegation. It returns nil when the grant is
// admissible, a *ValidationFailure listing every violated constraint when it
// is not, or a plain error when a repository lookup failed.
func (v *DelegationValidator) Validate(ctx context.Context, delegatorID, delegateID string, scope DelegationScope, expiresAt *time.Time, transitive bool) error {
	failure := &ValidationFailure{}
	now := v.clock()

	if len(scope.Resources) == 0 || len(scope.Actions) == 0 {
		failure.add(ViolationEmptyScope, "scope must name at least one resource and one action pattern")
	}

	ownership, err := v.ownershipViolations(ctx, delegatorID, scope)
	if err != nil {
		return fmt.Errorf("ownership check for %s: %w", delegatorID, err)
	}
	failure.Violations = append(failure.Violations, ownership...)

	if delegateID == delegatorID {
		failure.add(ViolationCycle, "subject %s cannot delegate to itself", delegatorID)
	} else {
		ancestors, err := v.ancestorDelegators(ctx, delegatorID)
		if err != nil {
			return fmt.Errorf("cycle check for %s: %w", delegatorID, err)
		}
		if ancestors[delegateID] {
			failure.add(ViolationCycle, "delegate %s is already an ancestor delegator of %s", delegateID, delegatorID)
		}
	}

	failure.Violations = append(failure.Violations, v.durationViolations(expiresAt, now)...)

	if len(failure.Violations) > 0 {
		return failure
	}
	return nil
}

// CheckOwnership runs only the ownership portion of validation; the manager
// uses it for CanDelegate probes.
func (v *DelegationValidator) CheckOwnership(ctx context.Context, delegatorID string, scope DelegationScope) (bool, error) {
	violations, err := v.ownershipViolations(ctx, delegatorID, scope)
	if err != nil {
		return false, err
	}
	return len(violations) == 0, nil
}

// ownershipViolations verifies that every (resource pattern, action) pair the
// scope implies is already granted to the delegator. The direct policy is the
// source of truth; an active transitive delegation held by the delegator also
// counts, which is what lets transitive chains re-delegate. A non-transitive
// delegate fails here, never at a dedicated check.
func (v *DelegationValidator) ownershipViolations(ctx context.Context, delegatorID string, scope DelegationScope) ([]Violation, error) {
	held, err := v.delegations.FindActiveForDelegate(ctx, delegatorID)
	if err != nil {
		return nil, err
	}
	now := v.clock()

	var violations []Violation
	for _, pair := range scope.Pairs() {
		resource, action := pair[0], pair[1]
		ok, err := v.delegatorHolds(ctx, delegatorID, resource, action)
		if err != nil {
			return nil, err
		}
		if ok {
			continue
		}
		if transitiveCovers(held, resource, action, now) {
			continue
		}
		violations = append(violations, Violation{
			Code:    ViolationOwnership,
			Message: fmt.Sprintf("delegator %s does not hold %q on %q", delegatorID, action, resource),
		})
	}
	return violations, nil
}

func (v *DelegationValidator) delegatorHolds(ctx context.Context, delegatorID, resourcePattern, action string) (bool, error) {
	policy, err := v.policies.GetPoliciesFor(ctx, delegatorID, resourcePattern)
	if err != nil {
		return false, err
	}
	subject := &Subject{ID: delegatorID}
	resource := &Resource{ID: resourcePattern, Type: patternType(resourcePattern)}
	return v.evaluator.Evaluate(policy, subject, resource, Action(action)) == EffectAllow, nil
}

func transitiveCovers(held []*Delegation, resource, action string, now time.Time) bool {
	for _, d := range held {
		if d.IsTransitive && d.IsActive(now) && d.Scope.Matches(resource, action) {
			return true
		}
	}
	return false
}

// ancestorDelegators walks active delegations upward from subjectID and
// collects every delegator reachable through them. If the proposed delegate
// already appears there, granting would let control flow back to its origin.
func (v *DelegationValidator) ancestorDelegators(ctx context.Context, subjectID string) (map[string]bool, error) {
	now := v.clock()
	ancestors := make(map[string]bool)
	visited := map[string]bool{subjectID: true}
	frontier := []string{subjectID}

	for len(frontier) > 0 {
		current := frontier[0]
		frontier = frontier[1:]

		incoming, err := v.delegations.FindActiveForDelegate(ctx, current)
		if err != nil {
			return nil, err
		}
		for _, d := range incoming {
			if !d.IsActive(now) {
				continue
			}
			ancestors[d.DelegatorID] = true
			if !visited[d.DelegatorID] {
				visited[d.DelegatorID] = true
				frontier = append(frontier, d.DelegatorID)
			}
		}
	}
	return ancestors, nil
}

func (v *DelegationValidator) durationViolations(expiresAt *time.Time, now time.Time) []Violation {
	if expiresAt == nil {
		return nil
	}
	var violations []Violation
	if !expiresAt.After(now) {
		violations = append(violations, Violation{
			Code:    ViolationExpiry,
			Message: fmt.Sprintf("expiry %s is not in the future", expiresAt.Format(time.RFC3339)),
		})
	} else if v.maxDuration > 0 && expiresAt.Sub(now) > v.maxDuration {
		violations = append(violations, Violation{
			Code:    ViolationDuration,
			Message: fmt.Sprintf("duration %s exceeds the configured maximum %s", expiresAt.Sub(now).Round(time.Second), v.maxDuration),
		})
	}
	return violations
}

// patternType extracts the resource type a "type:id" or "type:*" pattern is
// scoped to.
func patternType(pattern string) string {
	if idx := strings.IndexByte(pattern, ':'); idx != -1 {
		return pattern[:idx]
	}
	return ""
}
