package permit

import (
	"fmt"
	"strings"

	"github.com/oarkflow/permit/utils"
)

// ============================================================================
// RULE MATCHING STRATEGIES
// ============================================================================

// Strategy names a rule-matching implementation. The strategy is fixed at
// construction time; there is no runtime type sniffing.
type Strategy string

const (
	StrategyACL     Strategy = "acl"
	StrategyRBAC    Strategy = "rbac"
	StrategyABAC    Strategy = "abac"
	StrategyRESTful Strategy = "restful"
)

// RuleMatcher decides whether one rule applies to one request. Matches must
// be side-effect free and short-circuit on the first failing clause.
type RuleMatcher interface {
	Matches(rule *PolicyRule, subject *Subject, resource *Resource, action Action) bool
}

// NewRuleMatcher constructs the matcher for a strategy. provider is only
// consulted by the ABAC strategy and may be nil for the others.
func NewRuleMatcher(s Strategy, provider AttributeProvider) (RuleMatcher, error) {
	switch s {
	case StrategyACL:
		return &ACLMatcher{}, nil
	case StrategyRBAC:
		return &RBACMatcher{}, nil
	case StrategyABAC:
		return &ABACMatcher{Provider: provider}, nil
	case StrategyRESTful:
		return &RESTfulMatcher{}, nil
	}
	return nil, fmt.Errorf("unknown matching strategy: %s", s)
}

// domainApplies checks a rule's domain scope against the subject's current
// domain. A rule without a domain applies everywhere.
func domainApplies(rule *PolicyRule, subject *Subject) bool {
	if rule.Domain == nil {
		return true
	}
	return subject.Domain() == rule.Domain.ID
}

// ACLMatcher matches on direct identity: subject ID, resource ID and action
// name, each optionally wildcarded with "*".
type ACLMatcher struct{}

func (m *ACLMatcher) Matches(rule *PolicyRule, subject *Subject, resource *Resource, action Action) bool {
	if !domainApplies(rule, subject) {
		return false
	}
	if rule.Subject != "*" && rule.Subject != subject.ID {
		return false
	}
	if rule.Resource != "" && rule.Resource != "*" && rule.Resource != resource.ID {
		return false
	}
	return rule.Action == "*" || rule.Action == string(action)
}

// RBACMatcher matches rule subjects against role names, optionally scoped to
// the subject's domain, and rule resources against IDs, "type:*" wildcards or
// resource role attributes. Direct subject-ID equality still works, so RBAC
// policies can carry ACL-style rules.
type RBACMatcher struct{}

func (m *RBACMatcher) Matches(rule *PolicyRule, subject *Subject, resource *Resource, action Action) bool {
	if !domainApplies(rule, subject) {
		return false
	}
	if !m.subjectMatches(rule, subject) {
		return false
	}
	if !m.resourceMatches(rule, resource) {
		return false
	}
	return rule.Action == "*" || rule.Action == string(action)
}

func (m *RBACMatcher) subjectMatches(rule *PolicyRule, subject *Subject) bool {
	if rule.Subject == "*" || rule.Subject == subject.ID {
		return true
	}
	for _, role := range subject.Roles() {
		if role == rule.Subject {
			return true
		}
	}
	if domain := subject.Domain(); domain != "" {
		for _, role := range subject.DomainRoles(domain) {
			if role == rule.Subject {
				return true
			}
		}
	}
	return false
}

func (m *RBACMatcher) resourceMatches(rule *PolicyRule, resource *Resource) bool {
	switch {
	case rule.Resource == "", rule.Resource == "*", rule.Resource == resource.ID:
		return true
	}
	// "type:*" scopes the rule to every resource of one type.
	if prefix, ok := strings.CutSuffix(rule.Resource, ":*"); ok && prefix == resource.Type {
		return true
	}
	// Fall back to roles granted on the resource itself.
	roles, _ := resource.Attrs.StringSlice(AttrRoles)
	for _, role := range roles {
		if role == rule.Resource {
			return true
		}
	}
	return false
}

// ABACMatcher matches on evaluated attribute conditions instead of identity.
// The rule's resource/action clauses gate which requests the rule covers;
// every Condition must then hold. Attributes come from the entity itself
// first, then from the Provider.
type ABACMatcher struct {
	Provider AttributeProvider
}

func (m *ABACMatcher) Matches(rule *PolicyRule, subject *Subject, resource *Resource, action Action) bool {
	if !domainApplies(rule, subject) {
		return false
	}
	if rule.Subject != "" && rule.Subject != "*" && rule.Subject != subject.ID {
		return false
	}
	if rule.Resource != "" && rule.Resource != "*" && !utils.Match(resource.ID, rule.Resource) {
		return false
	}
	if rule.Action != "*" && rule.Action != string(action) {
		return false
	}
	for i := range rule.Conditions {
		if !m.conditionHolds(&rule.Conditions[i], subject, resource, action) {
			return false
		}
	}
	return true
}

func (m *ABACMatcher) conditionHolds(c *Condition, subject *Subject, resource *Resource, action Action) bool {
	val, ok := m.lookup(c.Entity, c.Attribute, subject, resource)
	if !ok {
		return false
	}
	switch c.Operator {
	case OpEq:
		return valuesEqual(val, c.Value)
	case OpNe:
		return !valuesEqual(val, c.Value)
	case OpIn:
		values, ok := c.Value.([]any)
		if !ok {
			if ss, sok := c.Value.([]string); sok {
				for _, s := range ss {
					if valuesEqual(val, s) {
						return true
					}
				}
			}
			return false
		}
		for _, v := range values {
			if valuesEqual(val, v) {
				return true
			}
		}
		return false
	case OpRef:
		field, _ := c.Value.(string)
		ref, ok := resolveRef(field, subject, resource, action)
		if !ok {
			return false
		}
		return valuesEqual(val, ref)
	}
	return false
}

func (m *ABACMatcher) lookup(entity, attribute string, subject *Subject, resource *Resource) (any, bool) {
	switch entity {
	case "subject":
		if v, ok := subject.Attrs[attribute]; ok {
			return v, true
		}
		if m.Provider != nil {
			return m.Provider.GetAttribute(subject.ID, attribute)
		}
	case "resource":
		if v, ok := resource.Attrs[attribute]; ok {
			return v, true
		}
		if m.Provider != nil {
			return m.Provider.GetAttribute(resource.ID, attribute)
		}
	}
	return nil, false
}

// resolveRef resolves a field reference used by OpRef conditions.
func resolveRef(field string, subject *Subject, resource *Resource, action Action) (any, bool) {
	switch field {
	case "subject.id":
		return subject.ID, true
	case "resource.id":
		return resource.ID, true
	case "resource.type":
		return resource.Type, true
	case "action":
		return string(action), true
	}
	return nil, false
}

// valuesEqual compares attribute values loosely enough to survive JSON/YAML
// decoding (ints arrive as float64) without coercing across kinds. A string
// slice equals a string when it contains it.
func valuesEqual(a, b any) bool {
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case int:
		return numEqual(float64(av), b)
	case int64:
		return numEqual(float64(av), b)
	case float64:
		return numEqual(av, b)
	case []string:
		if bs, ok := b.(string); ok {
			for _, v := range av {
				if v == bs {
					return true
				}
			}
		}
		return false
	case []any:
		if bs, ok := b.(string); ok {
			for _, v := range av {
				if s, sok := v.(string); sok && s == bs {
					return true
				}
			}
		}
		return false
	}
	return false
}

func numEqual(a float64, b any) bool {
	switch bv := b.(type) {
	case int:
		return a == float64(bv)
	case int64:
		return a == float64(bv)
	case float64:
		return a == bv
	}
	return false
}

// httpMethods are the action tokens the RESTful strategy understands.
var httpMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true,
}

// RESTfulMatcher is ACL matching with HTTP-method-shaped actions. Resource
// patterns may be route templates ("GET /users/:id", "/admin/*").
type RESTfulMatcher struct{}

func (m *RESTfulMatcher) Matches(rule *PolicyRule, subject *Subject, resource *Resource, action Action) bool {
	if !domainApplies(rule, subject) {
		return false
	}
	if rule.Subject != "*" && rule.Subject != subject.ID {
		return false
	}
	if rule.Resource != "" && rule.Resource != "*" && rule.Resource != resource.ID &&
		!utils.Match(resource.ID, rule.Resource) {
		return false
	}
	if rule.Action == "*" {
		return httpMethods[strings.ToUpper(string(action))]
	}
	return httpMethods[strings.ToUpper(rule.Action)] && strings.EqualFold(rule.Action, string(action))
}
