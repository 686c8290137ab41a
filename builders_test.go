package permit

import (
	"testing"
	"time"
)

func TestRuleBuilderBuildsRule(t *testing.T) {
	rule, err := NewRuleBuilder().
		ID("r1").
		Subject("editor").
		Resource("document:*").
		Action("write").
		Allow().
		Priority(5).
		Domain("org-1").
		Condition(Condition{Entity: "resource", Attribute: "owner", Operator: OpRef, Value: "subject.id"}).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if rule.ID != "r1" || rule.Subject != "editor" || rule.Effect != EffectAllow || rule.Priority != 5 {
		t.Fatalf("unexpected rule: %+v", rule)
	}
	if rule.Domain == nil || rule.Domain.ID != "org-1" {
		t.Fatalf("expected domain org-1, got %+v", rule.Domain)
	}
	if len(rule.Conditions) != 1 {
		t.Fatalf("expected one condition, got %d", len(rule.Conditions))
	}
}

func TestRuleBuilderRequiresFields(t *testing.T) {
	if _, err := NewRuleBuilder().Action("read").Allow().Build(); err == nil {
		t.Fatalf("expected error for missing subject")
	}
	if _, err := NewRuleBuilder().Subject("user").Allow().Build(); err == nil {
		t.Fatalf("expected error for missing action")
	}
	if _, err := NewRuleBuilder().Subject("user").Action("read").Build(); err == nil {
		t.Fatalf("expected error for missing effect")
	}
}

func TestRuleBuilderMustBuildPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on malformed rule")
		}
	}()
	NewRuleBuilder().MustBuild()
}

func TestScopeBuilder(t *testing.T) {
	scope := NewScopeBuilder().
		Resources("document:*", "invoice:7").
		Actions("read").
		Domain("org-1").
		Build()
	if len(scope.Resources) != 2 || len(scope.Actions) != 1 || scope.Domain != "org-1" {
		t.Fatalf("unexpected scope: %+v", scope)
	}
	if !scope.Matches("document:12", "read") {
		t.Fatalf("expected built scope to match")
	}
}

func TestDelegationBuilder(t *testing.T) {
	expiry := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	req := NewDelegationBuilder().
		From("alice").
		To("bob").
		Scope(NewScopeBuilder().Resources("document:*").Actions("read").Build()).
		ExpiresAt(expiry).
		Transitive().
		Metadata("reason", "vacation cover").
		Build()

	if req.DelegatorID != "alice" || req.DelegateID != "bob" || !req.Transitive {
		t.Fatalf("unexpected request: %+v", req)
	}
	if req.ExpiresAt == nil || !req.ExpiresAt.Equal(expiry) {
		t.Fatalf("expected expiry %s, got %v", expiry, req.ExpiresAt)
	}
	if reason, _ := req.Metadata.String("reason"); reason != "vacation cover" {
		t.Fatalf("expected metadata to round-trip, got %v", req.Metadata)
	}
}

func TestConfigBuilder(t *testing.T) {
	cfg := NewConfigBuilder().
		Version(2).
		Strategy(StrategyRBAC).
		AddRule(NewRuleBuilder().ID("r1").Subject("editor").Resource("document:*").Action("write").Allow().MustBuild()).
		AddDelegation("alice", "bob", NewScopeBuilder().Resources("document:*").Actions("read").Build()).
		EngineSettings(func(e *EngineConfig) {
			e.MaxDurationHours = 48
		}).
		Build()

	if cfg.Version != 2 || cfg.Engine.Strategy != StrategyRBAC {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if len(cfg.Rules) != 1 || len(cfg.Delegations) != 1 {
		t.Fatalf("expected 1 rule and 1 delegation, got %d/%d", len(cfg.Rules), len(cfg.Delegations))
	}
	if cfg.Engine.MaxDelegationDuration() != 48*time.Hour {
		t.Fatalf("engine settings not applied: %+v", cfg.Engine)
	}
	if findings := cfg.Validate(); len(findings) != 0 {
		t.Fatalf("expected clean validation, got %v", findings)
	}

	data, err := cfg.ToYAML()
	if err != nil {
		t.Fatalf("to yaml: %v", err)
	}
	reloaded, err := NewConfigLoader().LoadYAML(data)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(reloaded.Rules) != 1 || reloaded.Rules[0].ID != "r1" {
		t.Fatalf("builder output did not round-trip: %+v", reloaded.Rules)
	}
}
