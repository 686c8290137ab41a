package permit

import (
	"encoding/json"
	"testing"
	"time"
)

func TestAttributesTypedAccessors(t *testing.T) {
	attrs := Attributes{
		"name":   "alice",
		"active": true,
		"age":    42,
	}
	if v, ok := attrs.String("name"); !ok || v != "alice" {
		t.Fatalf("String: got %q, %v", v, ok)
	}
	if v, ok := attrs.Bool("active"); !ok || !v {
		t.Fatalf("Bool: got %v, %v", v, ok)
	}
	if v, ok := attrs.Int("age"); !ok || v != 42 {
		t.Fatalf("Int: got %d, %v", v, ok)
	}
	if _, ok := attrs.String("missing"); ok {
		t.Fatalf("expected absent key to report !ok")
	}
	if _, ok := attrs.String("age"); ok {
		t.Fatalf("expected type mismatch to report !ok, not coerce")
	}
}

func TestAttributesSurviveJSONDecoding(t *testing.T) {
	raw := `{"roles":["admin","editor"],"age":42,"domain_roles":{"org-1":["admin"]}}`
	var attrs Attributes
	if err := json.Unmarshal([]byte(raw), &attrs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	roles, ok := attrs.StringSlice("roles")
	if !ok || len(roles) != 2 || roles[0] != "admin" {
		t.Fatalf("StringSlice over []any: got %v, %v", roles, ok)
	}
	// JSON numbers decode as float64
	if age, ok := attrs.Int("age"); !ok || age != 42 {
		t.Fatalf("Int over float64: got %d, %v", age, ok)
	}
	dr, ok := attrs.StringSliceMap("domain_roles")
	if !ok || len(dr["org-1"]) != 1 {
		t.Fatalf("StringSliceMap: got %v, %v", dr, ok)
	}
}

func TestSubjectHelpers(t *testing.T) {
	s := &Subject{ID: "alice", Attrs: Attributes{
		AttrRoles:       []string{"editor"},
		AttrDomain:      "org-1",
		AttrDomainRoles: map[string][]string{"org-1": {"admin"}},
	}}
	if roles := s.Roles(); len(roles) != 1 || roles[0] != "editor" {
		t.Fatalf("Roles: %v", roles)
	}
	if s.Domain() != "org-1" {
		t.Fatalf("Domain: %q", s.Domain())
	}
	if dr := s.DomainRoles("org-1"); len(dr) != 1 || dr[0] != "admin" {
		t.Fatalf("DomainRoles: %v", dr)
	}
	if dr := s.DomainRoles("org-2"); len(dr) != 0 {
		t.Fatalf("expected no roles in org-2, got %v", dr)
	}

	bare := &Subject{ID: "bob"}
	if len(bare.Roles()) != 0 || bare.Domain() != "" {
		t.Fatalf("expected zero values for attribute-less subject")
	}
}

func TestPolicyChecksumTracksContent(t *testing.T) {
	a := &Policy{Rules: []PolicyRule{{ID: "r1", Subject: "u", Action: "read", Effect: EffectAllow}}}
	b := &Policy{Rules: []PolicyRule{{ID: "r1", Subject: "u", Action: "read", Effect: EffectAllow}}}
	if a.Checksum() != b.Checksum() {
		t.Fatalf("identical policies should share a checksum")
	}
	c := &Policy{Rules: []PolicyRule{{ID: "r1", Subject: "u", Action: "read", Effect: EffectDeny}}}
	if a.Checksum() == c.Checksum() {
		t.Fatalf("different policies must not collide")
	}
}

func TestDelegationScopeMatches(t *testing.T) {
	scope := DelegationScope{Resources: []string{"document:*", "invoice:7"}, Actions: []string{"read", "write"}}
	if !scope.Matches("document:55", "read") {
		t.Fatalf("expected wildcard resource + listed action to match")
	}
	if !scope.Matches("invoice:7", "write") {
		t.Fatalf("expected exact resource to match")
	}
	if scope.Matches("invoice:8", "read") {
		t.Fatalf("expected unlisted resource to miss")
	}
	if scope.Matches("document:55", "delete") {
		t.Fatalf("expected unlisted action to miss")
	}
}

func TestDelegationScopePairs(t *testing.T) {
	scope := DelegationScope{Resources: []string{"a", "b"}, Actions: []string{"read", "write"}}
	pairs := scope.Pairs()
	if len(pairs) != 4 {
		t.Fatalf("expected 4 pairs, got %d", len(pairs))
	}
}

func TestDelegationStates(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	later := now.Add(time.Hour)

	open := &Delegation{Status: DelegationActive}
	if !open.IsActive(now) {
		t.Fatalf("delegation without expiry should be active")
	}
	if !open.TerminalAt(now).IsZero() {
		t.Fatalf("active delegation has no terminal instant")
	}

	expiring := &Delegation{Status: DelegationActive, ExpiresAt: &later}
	if !expiring.IsActive(now) {
		t.Fatalf("expected active before expiry")
	}
	if expiring.IsActive(later) {
		t.Fatalf("expected inactive at the expiry instant")
	}
	if expiring.EffectiveState(later.Add(time.Minute)) != DelegationExpired {
		t.Fatalf("expected derived expired state")
	}
	if expiring.Status != DelegationActive {
		t.Fatalf("deriving state must not write")
	}

	revokedAt := now
	revoked := &Delegation{Status: DelegationRevoked, RevokedAt: &revokedAt}
	if revoked.IsActive(now) {
		t.Fatalf("revoked delegation is never active")
	}
	if !revoked.TerminalAt(later).Equal(revokedAt) {
		t.Fatalf("expected terminal instant to be the revocation time")
	}
}

func TestValidationFailureError(t *testing.T) {
	f := &ValidationFailure{}
	f.add(ViolationOwnership, "delegator %s does not hold %q", "bob", "read")
	f.add(ViolationCycle, "cycle via %s", "alice")

	if !f.Has(ViolationOwnership) || !f.Has(ViolationCycle) {
		t.Fatalf("expected both violations present")
	}
	if f.Has(ViolationDuration) {
		t.Fatalf("unexpected violation reported")
	}
	msg := f.Error()
	if msg == "" {
		t.Fatalf("expected a combined message")
	}
}
