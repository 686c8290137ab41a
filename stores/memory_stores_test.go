package stores

import (
	"context"
	"testing"
	"time"

	"github.com/oarkflow/permit"
)

func TestMemoryPolicyRepositorySoftDeleteRestore(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryPolicyRepository()

	rule := &permit.PolicyRule{ID: "r1", Subject: "alice", Resource: "doc-1", Action: "read", Effect: permit.EffectAllow}
	if err := repo.Save(ctx, rule); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := repo.Save(ctx, &permit.PolicyRule{Subject: "bob", Action: "read", Effect: permit.EffectAllow}); err == nil {
		t.Fatalf("expected save without ID to fail")
	}

	policy, err := repo.GetPoliciesFor(ctx, "alice", "doc-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(policy.Rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(policy.Rules))
	}

	if err := repo.SoftDelete(ctx, "r1"); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	policy, _ = repo.GetPoliciesFor(ctx, "alice", "doc-1")
	if len(policy.Rules) != 0 {
		t.Fatalf("soft-deleted rule still served")
	}
	trashed, err := repo.ListTrashed(ctx)
	if err != nil {
		t.Fatalf("list trashed: %v", err)
	}
	if len(trashed) != 1 || trashed[0].ID != "r1" {
		t.Fatalf("expected r1 in trash, got %v", trashed)
	}

	if err := repo.Restore(ctx, "r1"); err != nil {
		t.Fatalf("restore: %v", err)
	}
	policy, _ = repo.GetPoliciesFor(ctx, "alice", "doc-1")
	if len(policy.Rules) != 1 {
		t.Fatalf("restored rule not served")
	}
	if err := repo.Restore(ctx, "r1"); err == nil {
		t.Fatalf("expected restore of non-trashed rule to fail")
	}
	if err := repo.SoftDelete(ctx, "missing"); err == nil {
		t.Fatalf("expected soft delete of unknown rule to fail")
	}
}

func TestMemoryPolicyRepositoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryPolicyRepository()
	rule := &permit.PolicyRule{ID: "r1", Subject: "alice", Action: "read", Effect: permit.EffectAllow}
	if err := repo.Save(ctx, rule); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Mutating the caller's rule after Save must not leak into the store.
	rule.Effect = permit.EffectDeny
	policy, _ := repo.GetPoliciesFor(ctx, "alice", "")
	if policy.Rules[0].Effect != permit.EffectAllow {
		t.Fatalf("store shares memory with caller")
	}
}

func TestMemoryPolicyRepositoryBatch(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryPolicyRepository()
	_ = repo.Save(ctx, &permit.PolicyRule{ID: "r1", Subject: "alice", Action: "read", Effect: permit.EffectAllow})

	policies, err := repo.GetPoliciesForBatch(ctx, []permit.PolicyQuery{
		{SubjectID: "alice", ResourceID: "doc-1"},
		{SubjectID: "bob", ResourceID: "doc-2"},
	})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(policies) != 2 {
		t.Fatalf("expected 2 policies, got %d", len(policies))
	}
}

func TestMemoryDelegationRepositoryLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryDelegationRepository()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	d := &permit.Delegation{
		ID:          "del-1",
		DelegatorID: "alice",
		DelegateID:  "bob",
		Scope:       permit.DelegationScope{Resources: []string{"document:*"}, Actions: []string{"read"}},
		CreatedAt:   now,
		Status:      permit.DelegationActive,
	}
	if err := repo.Create(ctx, d); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(ctx, d); err == nil {
		t.Fatalf("expected duplicate ID to fail")
	}

	got, err := repo.FindByID(ctx, "del-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.DelegateID != "bob" {
		t.Fatalf("wrong delegation: %+v", got)
	}
	got.Status = permit.DelegationRevoked
	if again, _ := repo.FindByID(ctx, "del-1"); again.Status != permit.DelegationActive {
		t.Fatalf("FindByID shares memory with caller")
	}

	active, err := repo.FindActiveForDelegate(ctx, "bob")
	if err != nil {
		t.Fatalf("find active: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected 1 active delegation, got %d", len(active))
	}

	if err := repo.Revoke(ctx, "del-1", now.Add(time.Hour)); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	active, _ = repo.FindActiveForDelegate(ctx, "bob")
	if len(active) != 0 {
		t.Fatalf("revoked delegation still reported active")
	}
	if err := repo.Revoke(ctx, "missing", now); err == nil {
		t.Fatalf("expected revoke of unknown delegation to fail")
	}
}

func TestMemoryDelegationRepositoryCleanup(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryDelegationRepository()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	oldRevokedAt := now.Add(-40 * 24 * time.Hour)
	freshRevokedAt := now.Add(-time.Hour)
	oldExpiry := now.Add(-35 * 24 * time.Hour)

	_ = repo.Create(ctx, &permit.Delegation{ID: "old-revoked", Status: permit.DelegationRevoked, RevokedAt: &oldRevokedAt})
	_ = repo.Create(ctx, &permit.Delegation{ID: "fresh-revoked", Status: permit.DelegationRevoked, RevokedAt: &freshRevokedAt})
	_ = repo.Create(ctx, &permit.Delegation{ID: "old-expired", Status: permit.DelegationActive, ExpiresAt: &oldExpiry})
	_ = repo.Create(ctx, &permit.Delegation{ID: "still-active", Status: permit.DelegationActive})

	cutoff := now.Add(-30 * 24 * time.Hour)
	removed, err := repo.Cleanup(ctx, cutoff)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	if _, err := repo.FindByID(ctx, "old-revoked"); err == nil {
		t.Fatalf("old revoked delegation survived cleanup")
	}
	if _, err := repo.FindByID(ctx, "fresh-revoked"); err != nil {
		t.Fatalf("recently revoked delegation removed too early: %v", err)
	}
	if _, err := repo.FindByID(ctx, "still-active"); err != nil {
		t.Fatalf("active delegation removed: %v", err)
	}
}

func TestMemoryAuditStoreFilter(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryAuditStore()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	entries := []*permit.AuditEntry{
		{ID: "a1", Timestamp: base, SubjectID: "alice", ResourceID: "doc-1", Action: "read"},
		{ID: "a2", Timestamp: base.Add(time.Minute), SubjectID: "alice", ResourceID: "doc-2", Action: "write"},
		{ID: "a3", Timestamp: base.Add(2 * time.Minute), SubjectID: "bob", ResourceID: "doc-1", Action: "read"},
	}
	for _, e := range entries {
		if err := store.LogAccess(ctx, e); err != nil {
			t.Fatalf("log: %v", err)
		}
	}

	got, err := store.GetAccessLog(ctx, permit.AuditFilter{SubjectID: "alice"})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("subject filter: expected 2, got %d", len(got))
	}

	got, _ = store.GetAccessLog(ctx, permit.AuditFilter{ResourceID: "doc-1", Action: "read"})
	if len(got) != 2 {
		t.Fatalf("resource+action filter: expected 2, got %d", len(got))
	}

	got, _ = store.GetAccessLog(ctx, permit.AuditFilter{StartTime: base.Add(30 * time.Second)})
	if len(got) != 2 {
		t.Fatalf("start time filter: expected 2, got %d", len(got))
	}

	got, _ = store.GetAccessLog(ctx, permit.AuditFilter{Limit: 1})
	if len(got) != 1 {
		t.Fatalf("limit: expected 1, got %d", len(got))
	}
}

func TestMemoryRateLimiterWindow(t *testing.T) {
	ctx := context.Background()
	limiter := NewMemoryRateLimiter()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter.clock = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		ok, err := limiter.Attempt(ctx, "alice", 3, time.Minute)
		if err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
		if !ok {
			t.Fatalf("attempt %d rejected within limit", i)
		}
	}
	ok, _ := limiter.Attempt(ctx, "alice", 3, time.Minute)
	if ok {
		t.Fatalf("expected 4th attempt to be rejected")
	}
	if blocked, _ := limiter.TooManyAttempts(ctx, "alice", 3); !blocked {
		t.Fatalf("expected TooManyAttempts to report blocked")
	}
	if wait, _ := limiter.AvailableIn(ctx, "alice"); wait != time.Minute {
		t.Fatalf("expected full window remaining, got %s", wait)
	}

	// Advancing past the window resets the counter.
	now = now.Add(61 * time.Second)
	if blocked, _ := limiter.TooManyAttempts(ctx, "alice", 3); blocked {
		t.Fatalf("expired window still blocking")
	}
	if ok, _ := limiter.Attempt(ctx, "alice", 3, time.Minute); !ok {
		t.Fatalf("fresh window rejected first attempt")
	}

	if err := limiter.Clear(ctx, "alice"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if wait, _ := limiter.AvailableIn(ctx, "alice"); wait != 0 {
		t.Fatalf("cleared key still has a window: %s", wait)
	}
}
