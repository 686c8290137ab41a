package permit

import (
	"fmt"
	"time"
)

// Builders provide a fluent API for creating PolicyRules, DelegationScopes
// and GrantRequests

// RuleBuilder builds a PolicyRule. Build fails when subject, action or
// effect is missing; everything else has a sensible zero value.
type RuleBuilder struct {
	r *PolicyRule
}

func NewRuleBuilder() *RuleBuilder {
	return &RuleBuilder{r: &PolicyRule{Effect: "", Priority: 0}}
}

func (b *RuleBuilder) ID(id string) *RuleBuilder           { b.r.ID = id; return b }
func (b *RuleBuilder) Subject(s string) *RuleBuilder       { b.r.Subject = s; return b }
func (b *RuleBuilder) Resource(r string) *RuleBuilder      { b.r.Resource = r; return b }
func (b *RuleBuilder) Action(a string) *RuleBuilder        { b.r.Action = a; return b }
func (b *RuleBuilder) Effect(e Effect) *RuleBuilder        { b.r.Effect = e; return b }
func (b *RuleBuilder) Priority(p int) *RuleBuilder         { b.r.Priority = p; return b }
func (b *RuleBuilder) Domain(id string) *RuleBuilder       { b.r.Domain = &Domain{ID: id}; return b }
func (b *RuleBuilder) Allow() *RuleBuilder                 { b.r.Effect = EffectAllow; return b }
func (b *RuleBuilder) Deny() *RuleBuilder                  { b.r.Effect = EffectDeny; return b }
func (b *RuleBuilder) Condition(c Condition) *RuleBuilder {
	b.r.Conditions = append(b.r.Conditions, c)
	return b
}

func (b *RuleBuilder) Build() (*PolicyRule, error) {
	if b.r.Subject == "" {
		return nil, fmt.Errorf("rule builder: subject is required")
	}
	if b.r.Action == "" {
		return nil, fmt.Errorf("rule builder: action is required")
	}
	if b.r.Effect != EffectAllow && b.r.Effect != EffectDeny {
		return nil, fmt.Errorf("rule builder: effect must be %q or %q", EffectAllow, EffectDeny)
	}
	return b.r, nil
}

// MustBuild is Build for static rule tables; it panics on a malformed rule.
func (b *RuleBuilder) MustBuild() *PolicyRule {
	rule, err := b.Build()
	if err != nil {
		panic(err)
	}
	return rule
}

// ScopeBuilder builds a DelegationScope
type ScopeBuilder struct {
	s DelegationScope
}

func NewScopeBuilder() *ScopeBuilder { return &ScopeBuilder{} }

func (b *ScopeBuilder) Resources(r ...string) *ScopeBuilder {
	b.s.Resources = append(b.s.Resources, r...)
	return b
}
func (b *ScopeBuilder) Actions(a ...string) *ScopeBuilder {
	b.s.Actions = append(b.s.Actions, a...)
	return b
}
func (b *ScopeBuilder) Domain(d string) *ScopeBuilder { b.s.Domain = d; return b }
func (b *ScopeBuilder) Build() DelegationScope        { return b.s }

// DelegationBuilder builds a GrantRequest for DelegationManager.Grant.
type DelegationBuilder struct {
	req GrantRequest
}

func NewDelegationBuilder() *DelegationBuilder { return &DelegationBuilder{} }

func (b *DelegationBuilder) From(delegatorID string) *DelegationBuilder {
	b.req.DelegatorID = delegatorID
	return b
}
func (b *DelegationBuilder) To(delegateID string) *DelegationBuilder {
	b.req.DelegateID = delegateID
	return b
}
func (b *DelegationBuilder) Scope(s DelegationScope) *DelegationBuilder {
	b.req.Scope = s
	return b
}
func (b *DelegationBuilder) ExpiresAt(t time.Time) *DelegationBuilder {
	b.req.ExpiresAt = &t
	return b
}
func (b *DelegationBuilder) ExpiresIn(d time.Duration) *DelegationBuilder {
	t := time.Now().Add(d)
	b.req.ExpiresAt = &t
	return b
}
func (b *DelegationBuilder) Transitive() *DelegationBuilder {
	b.req.Transitive = true
	return b
}
func (b *DelegationBuilder) Metadata(key string, value any) *DelegationBuilder {
	if b.req.Metadata == nil {
		b.req.Metadata = Attributes{}
	}
	b.req.Metadata[key] = value
	return b
}
func (b *DelegationBuilder) Build() GrantRequest { return b.req }
