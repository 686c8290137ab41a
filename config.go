package permit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents a complete permit setup: the policy rules, optional
// pre-seeded delegations, and engine tuning.
type Config struct {
	Version     uint16             `json:"version" yaml:"version"`
	Rules       []*PolicyRule      `json:"rules" yaml:"rules"`
	Delegations []DelegationConfig `json:"delegations,omitempty" yaml:"delegations,omitempty"`
	Engine      EngineConfig       `json:"engine" yaml:"engine"`
}

// DelegationConfig is the file form of a GrantRequest.
type DelegationConfig struct {
	Delegator  string          `json:"delegator" yaml:"delegator"`
	Delegate   string          `json:"delegate" yaml:"delegate"`
	Scope      DelegationScope `json:"scope" yaml:"scope"`
	ExpiresAt  *time.Time      `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
	Transitive bool            `json:"transitive,omitempty" yaml:"transitive,omitempty"`
	Metadata   Attributes      `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

type EngineConfig struct {
	Strategy            Strategy `json:"strategy" yaml:"strategy"`
	DefaultEffect       Effect   `json:"default_effect" yaml:"default_effect"`
	MaxDurationHours    int      `json:"max_delegation_hours" yaml:"max_delegation_hours"`
	RetentionHours      int      `json:"retention_hours" yaml:"retention_hours"`
	DecisionCacheTTL    int64    `json:"decision_cache_ttl_ms" yaml:"decision_cache_ttl_ms"`
	RistrettoNumCounter int64    `json:"ristretto_num_counter" yaml:"ristretto_num_counter"`
	RistrettoMaxCost    int64    `json:"ristretto_max_cost" yaml:"ristretto_max_cost"`
	RistrettoBuffer     int64    `json:"ristretto_buffer" yaml:"ristretto_buffer"`
}

// ConfigLoader loads configuration from various formats
type ConfigLoader struct{}

func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{}
}

func (l *ConfigLoader) LoadYAML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *ConfigLoader) LoadJSON(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile picks the codec from the file extension (.yaml/.yml/.json).
func (l *ConfigLoader) LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch {
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		return l.LoadYAML(data)
	case strings.HasSuffix(path, ".json"):
		return l.LoadJSON(data)
	default:
		return nil, fmt.Errorf("unsupported config format: %s", path)
	}
}

// ToYAML exports config to YAML
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// ToJSON exports config to JSON
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// BuildPolicy converts the configured rules into a Policy ready for
// evaluation.
func (c *Config) BuildPolicy() *Policy {
	policy := &Policy{Rules: make([]PolicyRule, 0, len(c.Rules))}
	for _, rule := range c.Rules {
		if rule != nil {
			policy.Rules = append(policy.Rules, *rule)
		}
	}
	return policy
}

// Validate runs structural checks plus the priority-consistency analyzer
// over the configured rules, before anything touches a store.
func (c *Config) Validate() []Finding {
	var findings []Finding
	for i, rule := range c.Rules {
		if rule == nil {
			findings = append(findings, Finding{
				Severity: SeverityError,
				Message:  fmt.Sprintf("rule %d: null rule entry", i),
			})
			continue
		}
		if rule.Subject == "" || rule.Action == "" {
			findings = append(findings, Finding{
				Severity: SeverityError,
				GroupKey: rule.GroupKey(),
				RuleID:   rule.ID,
				Message:  fmt.Sprintf("rule %d: subject and action are required", i),
			})
		}
		if rule.Effect != EffectAllow && rule.Effect != EffectDeny {
			findings = append(findings, Finding{
				Severity: SeverityError,
				GroupKey: rule.GroupKey(),
				RuleID:   rule.ID,
				Message:  fmt.Sprintf("rule %d: effect %q is not %q or %q", i, rule.Effect, EffectAllow, EffectDeny),
			})
		}
	}
	findings = append(findings, NewPolicyValidator().EnsureConsistentPriorities(c.BuildPolicy())...)
	return findings
}

// Apply persists the configured rules through the policy repository and
// grants the configured delegations through the manager. Rules are saved
// unconditionally; repositories upsert on rule ID.
func (c *Config) Apply(ctx context.Context, policies PolicyRepository, manager *DelegationManager) error {
	if findings := c.Validate(); hasErrors(findings) {
		return fmt.Errorf("config has %d validation errors; first: %s", countErrors(findings), firstError(findings))
	}

	for _, rule := range c.Rules {
		if err := policies.Save(ctx, rule); err != nil {
			return fmt.Errorf("save rule %s: %w", rule.ID, err)
		}
	}

	for _, dc := range c.Delegations {
		_, err := manager.Grant(ctx, GrantRequest{
			DelegatorID: dc.Delegator,
			DelegateID:  dc.Delegate,
			Scope:       dc.Scope,
			ExpiresAt:   dc.ExpiresAt,
			Transitive:  dc.Transitive,
			Metadata:    dc.Metadata,
		})
		if err != nil {
			return fmt.Errorf("grant delegation %s->%s: %w", dc.Delegator, dc.Delegate, err)
		}
	}
	return nil
}

// MaxDelegationDuration returns the configured ceiling, zero meaning
// unlimited.
func (c *EngineConfig) MaxDelegationDuration() time.Duration {
	return time.Duration(c.MaxDurationHours) * time.Hour
}

// Retention returns how long terminal delegations are kept before cleanup.
func (c *EngineConfig) Retention() time.Duration {
	if c.RetentionHours <= 0 {
		return 30 * 24 * time.Hour
	}
	return time.Duration(c.RetentionHours) * time.Hour
}

func hasErrors(findings []Finding) bool {
	for _, f := range findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}

func countErrors(findings []Finding) int {
	n := 0
	for _, f := range findings {
		if f.Severity == SeverityError {
			n++
		}
	}
	return n
}

func firstError(findings []Finding) string {
	for _, f := range findings {
		if f.Severity == SeverityError {
			return f.Message
		}
	}
	return ""
}
