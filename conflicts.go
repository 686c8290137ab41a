package permit

import (
	"fmt"
	"sort"
)

// ============================================================================
// STATIC POLICY ANALYSIS
// ============================================================================

// Design-time tools: they inspect a Policy without mutating it and never run
// on the request path. Findings accumulate; analysis does not stop at the
// first problem.

// Severity classifies a Finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Finding is one problem located in a policy.
type Finding struct {
	Severity Severity `json:"severity"`
	GroupKey string   `json:"group_key"`
	Priority int      `json:"priority,omitempty"`
	RuleID   string   `json:"rule_id,omitempty"`
	Message  string   `json:"message"`
}

func (f Finding) String() string {
	return fmt.Sprintf("[%s] %s: %s", f.Severity, f.GroupKey, f.Message)
}

// PolicyValidator checks a policy for internal consistency.
type PolicyValidator struct{}

// NewPolicyValidator returns a stateless validator.
func NewPolicyValidator() *PolicyValidator { return &PolicyValidator{} }

// EnsureConsistentPriorities groups rules by (subject, resource, action) and
// reports an error for every priority level that carries both an Allow and a
// Deny within one group. Such a pair makes the tie-break rule, not the policy
// author, decide the outcome.
func (v *PolicyValidator) EnsureConsistentPriorities(policy *Policy) []Finding {
	var findings []Finding
	for _, key := range groupKeys(policy) {
		byPriority := map[int][]*PolicyRule{}
		for _, rule := range groupRules(policy, key) {
			byPriority[rule.Priority] = append(byPriority[rule.Priority], rule)
		}
		priorities := make([]int, 0, len(byPriority))
		for p := range byPriority {
			priorities = append(priorities, p)
		}
		sort.Ints(priorities)
		for _, p := range priorities {
			if hasBothEffects(byPriority[p]) {
				findings = append(findings, Finding{
					Severity: SeverityError,
					GroupKey: key,
					Priority: p,
					Message:  fmt.Sprintf("rules for %s carry conflicting effects at priority %d", key, p),
				})
			}
		}
	}
	return findings
}

// CheckForConflicts warns about groups that mix Allow and Deny where the
// highest-priority rule is not the Deny. The policy still resolves, but one
// priority edit away from flipping access open.
func (v *PolicyValidator) CheckForConflicts(policy *Policy) []Finding {
	var findings []Finding
	for _, key := range groupKeys(policy) {
		rules := groupRules(policy, key)
		if !hasBothEffects(rules) {
			continue
		}
		maxPriority := rules[0].Priority
		for _, rule := range rules[1:] {
			if rule.Priority > maxPriority {
				maxPriority = rule.Priority
			}
		}
		// any Allow at the top priority is warning-worthy, regardless of
		// where it sits in the slice
		for _, rule := range rules {
			if rule.Priority == maxPriority && rule.Effect == EffectAllow {
				findings = append(findings, Finding{
					Severity: SeverityWarning,
					GroupKey: key,
					Priority: maxPriority,
					RuleID:   rule.ID,
					Message:  fmt.Sprintf("group %s mixes allow and deny but the highest-priority rule allows", key),
				})
				break
			}
		}
	}
	return findings
}

// ConflictReport is the combined output of ConflictDetector.Detect.
type ConflictReport struct {
	AllowDenyConflicts []Finding `json:"allow_deny_conflicts"`
	PriorityCollisions []Finding `json:"priority_collisions"`
	UnreachableRules   []Finding `json:"unreachable_rules"`
}

// Empty reports whether the analysis found nothing.
func (r *ConflictReport) Empty() bool {
	return len(r.AllowDenyConflicts) == 0 && len(r.PriorityCollisions) == 0 && len(r.UnreachableRules) == 0
}

// ConflictDetector surfaces structural problems a validator pass alone would
// miss: dead rules and silent priority sharing.
type ConflictDetector struct{}

// NewConflictDetector returns a stateless detector.
func NewConflictDetector() *ConflictDetector { return &ConflictDetector{} }

// Detect runs all three analyses over the policy.
func (d *ConflictDetector) Detect(policy *Policy) *ConflictReport {
	report := &ConflictReport{}
	for _, key := range groupKeys(policy) {
		rules := groupRules(policy, key)

		if hasBothEffects(rules) {
			report.AllowDenyConflicts = append(report.AllowDenyConflicts, Finding{
				Severity: SeverityError,
				GroupKey: key,
				Message:  fmt.Sprintf("group %s contains both allow and deny rules", key),
			})
		}

		byPriority := map[int]int{}
		for _, rule := range rules {
			byPriority[rule.Priority]++
		}
		priorities := make([]int, 0, len(byPriority))
		for p := range byPriority {
			priorities = append(priorities, p)
		}
		sort.Ints(priorities)
		for _, p := range priorities {
			if byPriority[p] >= 2 {
				report.PriorityCollisions = append(report.PriorityCollisions, Finding{
					Severity: SeverityWarning,
					GroupKey: key,
					Priority: p,
					Message:  fmt.Sprintf("%d rules in group %s share priority %d", byPriority[p], key, p),
				})
			}
		}

		maxDeny, hasDeny := 0, false
		for _, rule := range rules {
			if rule.Effect == EffectDeny && (!hasDeny || rule.Priority > maxDeny) {
				maxDeny, hasDeny = rule.Priority, true
			}
		}
		if hasDeny {
			for _, rule := range rules {
				if rule.Effect == EffectAllow && rule.Priority < maxDeny {
					report.UnreachableRules = append(report.UnreachableRules, Finding{
						Severity: SeverityWarning,
						GroupKey: key,
						Priority: rule.Priority,
						RuleID:   rule.ID,
						Message:  fmt.Sprintf("allow rule at priority %d is shadowed by a deny at priority %d", rule.Priority, maxDeny),
					})
				}
			}
		}
	}
	return report
}

// groupKeys returns the distinct group keys in first-appearance order so
// findings come out in a stable, diffable order.
func groupKeys(policy *Policy) []string {
	if policy == nil {
		return nil
	}
	seen := map[string]bool{}
	var keys []string
	for i := range policy.Rules {
		key := policy.Rules[i].GroupKey()
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	return keys
}

func groupRules(policy *Policy, key string) []*PolicyRule {
	var rules []*PolicyRule
	for i := range policy.Rules {
		if policy.Rules[i].GroupKey() == key {
			rules = append(rules, &policy.Rules[i])
		}
	}
	return rules
}

func hasBothEffects(rules []*PolicyRule) bool {
	var allow, deny bool
	for _, rule := range rules {
		switch rule.Effect {
		case EffectAllow:
			allow = true
		case EffectDeny:
			deny = true
		}
	}
	return allow && deny
}
