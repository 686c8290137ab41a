package permit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// ============================================================================
// DOMAIN OBJECTS
// ============================================================================

// Well-known attribute keys. Matchers look these up on Subject/Resource
// attributes; hosts may attach any additional keys.
const (
	AttrRoles       = "roles"        // []string
	AttrDomain      = "domain"       // string
	AttrDomainRoles = "domain_roles" // map[string][]string, keyed by domain ID
)

// Attributes is a dynamic key/value bag with typed accessors. Accessors
// return (value, ok) instead of coercing, so a mistyped attribute is an
// absent attribute rather than a silent mismatch.
type Attributes map[string]any

func (a Attributes) String(key string) (string, bool) {
	if a == nil {
		return "", false
	}
	v, ok := a[key].(string)
	return v, ok
}

func (a Attributes) Bool(key string) (bool, bool) {
	if a == nil {
		return false, false
	}
	v, ok := a[key].(bool)
	return v, ok
}

func (a Attributes) Int(key string) (int, bool) {
	if a == nil {
		return 0, false
	}
	switch v := a[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// StringSlice accepts []string directly or []any holding strings (the shape
// JSON/YAML decoding produces).
func (a Attributes) StringSlice(key string) ([]string, bool) {
	if a == nil {
		return nil, false
	}
	switch v := a[key].(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

// StringSliceMap accepts map[string][]string or the decoded-JSON shape
// map[string]any with []any values.
func (a Attributes) StringSliceMap(key string) (map[string][]string, bool) {
	if a == nil {
		return nil, false
	}
	switch v := a[key].(type) {
	case map[string][]string:
		return v, true
	case map[string]any:
		out := make(map[string][]string, len(v))
		for k, item := range v {
			switch vv := item.(type) {
			case []string:
				out[k] = vv
			case []any:
				arr := make([]string, 0, len(vv))
				for _, it := range vv {
					s, ok := it.(string)
					if !ok {
						return nil, false
					}
					arr = append(arr, s)
				}
				out[k] = arr
			default:
				return nil, false
			}
		}
		return out, true
	}
	return nil, false
}

// Subject represents who is requesting access
type Subject struct {
	ID    string     `json:"id" yaml:"id"`
	Attrs Attributes `json:"attrs,omitempty" yaml:"attrs,omitempty"`
}

// Roles returns the subject's global role names (AttrRoles).
func (s *Subject) Roles() []string {
	roles, _ := s.Attrs.StringSlice(AttrRoles)
	return roles
}

// Domain returns the subject's current domain scope, if any (AttrDomain).
func (s *Subject) Domain() string {
	d, _ := s.Attrs.String(AttrDomain)
	return d
}

// DomainRoles returns role names the subject holds within the given domain
// (AttrDomainRoles).
func (s *Subject) DomainRoles(domain string) []string {
	m, ok := s.Attrs.StringSliceMap(AttrDomainRoles)
	if !ok {
		return nil
	}
	return m[domain]
}

// Resource represents what is being accessed
type Resource struct {
	ID    string     `json:"id" yaml:"id"`
	Type  string     `json:"type" yaml:"type"`
	Attrs Attributes `json:"attrs,omitempty" yaml:"attrs,omitempty"`
}

// Action represents how the resource is being accessed
type Action string

// Domain is an optional tenant/organization scope a rule can be pinned to.
type Domain struct {
	ID    string     `json:"id" yaml:"id"`
	Attrs Attributes `json:"attrs,omitempty" yaml:"attrs,omitempty"`
}

// Effect represents the outcome of a policy evaluation
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// ============================================================================
// POLICY SYSTEM
// ============================================================================

// PolicyRule is one grant or denial. Subject, Resource and Action are
// patterns: a literal, "*" (match-all) or "type:*" (type-scoped wildcard).
// An empty Resource means the rule applies regardless of resource
// (a type/action-only permission).
type PolicyRule struct {
	ID         string      `json:"id,omitempty" yaml:"id,omitempty"`
	Subject    string      `json:"subject" yaml:"subject"`
	Resource   string      `json:"resource,omitempty" yaml:"resource,omitempty"`
	Action     string      `json:"action" yaml:"action"`
	Effect     Effect      `json:"effect" yaml:"effect"`
	Priority   int         `json:"priority" yaml:"priority"`
	Domain     *Domain     `json:"domain,omitempty" yaml:"domain,omitempty"`
	Conditions []Condition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// GroupKey identifies the (subject, resource, action) group a rule belongs
// to. Conflict analysis groups rules by this key.
func (r *PolicyRule) GroupKey() string {
	return r.Subject + ":" + r.Resource + ":" + r.Action
}

// Policy is a flat, ordered list of rules. Order carries no precedence;
// only Priority does.
type Policy struct {
	Rules []PolicyRule `json:"rules" yaml:"rules"`
}

// Checksum returns a deterministic hash of the policy's rules, used as a
// cache-key component by the cached evaluator.
func (p *Policy) Checksum() string {
	data, _ := json.Marshal(p.Rules)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// ConditionOp is a comparison operator for ABAC conditions.
type ConditionOp string

const (
	OpEq ConditionOp = "eq" // attribute equals literal value
	OpNe ConditionOp = "ne" // attribute differs from literal value
	OpIn ConditionOp = "in" // attribute is (or contains) one of the values
	// OpRef compares the attribute against another request field, e.g.
	// resource.owner == subject.id. Value names the field: "subject.id",
	// "resource.id", "resource.type" or "action".
	OpRef ConditionOp = "ref"
)

// Condition is one attribute check of an ABAC rule. Entity selects whose
// attribute is inspected ("subject" or "resource").
type Condition struct {
	Entity    string      `json:"entity" yaml:"entity"`
	Attribute string      `json:"attribute" yaml:"attribute"`
	Operator  ConditionOp `json:"operator" yaml:"operator"`
	Value     any         `json:"value" yaml:"value"`
}

// ============================================================================
// DECISIONS
// ============================================================================

// Decision is the outcome of an evaluation plus enough context to audit it.
type Decision struct {
	Effect    Effect    `json:"effect"`
	Allowed   bool      `json:"allowed"`
	Reason    string    `json:"reason"`
	MatchedBy string    `json:"matched_by"` // rule ID, group key or delegation ID
	Timestamp time.Time `json:"timestamp"`
}
