package permit

import "time"

// ConfigBuilder provides a fluent API for assembling a Config in code, for
// hosts that generate their setup instead of loading a file.
type ConfigBuilder struct {
	cfg *Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{
		cfg: &Config{
			Version: 1,
			Rules:   []*PolicyRule{},
			Engine: EngineConfig{
				Strategy:            StrategyACL,
				DefaultEffect:       EffectDeny,
				DecisionCacheTTL:    1000,
				RistrettoNumCounter: 1_000_000,
				RistrettoMaxCost:    100_000,
				RistrettoBuffer:     64,
			},
		},
	}
}

func (b *ConfigBuilder) Version(v uint16) *ConfigBuilder {
	b.cfg.Version = v
	return b
}

func (b *ConfigBuilder) AddRule(rule *PolicyRule) *ConfigBuilder {
	if rule != nil {
		b.cfg.Rules = append(b.cfg.Rules, rule)
	}
	return b
}

// AddDelegation seeds a delegation that Apply will grant through the manager,
// subject to the same validation as a runtime grant.
func (b *ConfigBuilder) AddDelegation(delegator, delegate string, scope DelegationScope) *ConfigBuilder {
	b.cfg.Delegations = append(b.cfg.Delegations, DelegationConfig{
		Delegator: delegator,
		Delegate:  delegate,
		Scope:     scope,
	})
	return b
}

// AddTimedDelegation is AddDelegation with an expiry.
func (b *ConfigBuilder) AddTimedDelegation(delegator, delegate string, scope DelegationScope, expiresAt time.Time) *ConfigBuilder {
	b.cfg.Delegations = append(b.cfg.Delegations, DelegationConfig{
		Delegator: delegator,
		Delegate:  delegate,
		Scope:     scope,
		ExpiresAt: &expiresAt,
	})
	return b
}

func (b *ConfigBuilder) Strategy(s Strategy) *ConfigBuilder {
	b.cfg.Engine.Strategy = s
	return b
}

func (b *ConfigBuilder) EngineSettings(fn func(*EngineConfig)) *ConfigBuilder {
	fn(&b.cfg.Engine)
	return b
}

func (b *ConfigBuilder) Build() *Config {
	return b.cfg
}

func (b *ConfigBuilder) ToYAML() ([]byte, error) {
	return b.cfg.ToYAML()
}

func (b *ConfigBuilder) ToJSON() ([]byte, error) {
	return b.cfg.ToJSON()
}
