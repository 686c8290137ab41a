package permit

import (
	"context"
	"testing"
	"time"
)

type countingDelegationRepo struct {
	*fakeDelegationRepo
	lookups int
}

func (c *countingDelegationRepo) FindActiveForDelegate(ctx context.Context, delegateID string) ([]*Delegation, error) {
	c.lookups++
	return c.fakeDelegationRepo.FindActiveForDelegate(ctx, delegateID)
}

func newCachedHarness(t *testing.T) (*CachedPolicyEvaluator, *countingDelegationRepo) {
	t.Helper()
	policies := &fakePolicyRepo{rules: aliceDocumentRules()}
	repo := &countingDelegationRepo{fakeDelegationRepo: newFakeDelegationRepo()}

	matcher, err := NewRuleMatcher(StrategyRBAC, nil)
	if err != nil {
		t.Fatalf("build matcher: %v", err)
	}
	direct := NewPolicyEvaluator(matcher, NewEffectResolver(EffectDeny))
	validator := NewDelegationValidator(direct, policies, repo, 0)
	manager := NewDelegationManager(validator, repo)
	inner := NewDelegationAwareEvaluator(direct, manager)

	cached, err := NewCachedPolicyEvaluator(inner, DefaultCacheConfig())
	if err != nil {
		t.Fatalf("build cache: %v", err)
	}
	t.Cleanup(cached.Close)
	return cached, repo
}

func TestCachedEvaluatorMemoizes(t *testing.T) {
	cached, repo := newCachedHarness(t)
	ctx := context.Background()
	policy := &Policy{Rules: aliceDocumentRules()}
	bob := &Subject{ID: "bob"}
	doc := &Resource{ID: "document:1", Type: "document"}

	// no direct policy for bob, so the miss path consults delegations
	first := cached.Decide(ctx, policy, bob, doc, "read")
	if first.Allowed {
		t.Fatalf("expected deny, got %+v", first)
	}
	if repo.lookups != 1 {
		t.Fatalf("expected one delegation lookup, got %d", repo.lookups)
	}

	cached.cache.Wait()

	second := cached.Decide(ctx, policy, bob, doc, "read")
	if second.Effect != first.Effect {
		t.Fatalf("cached decision diverged: %s vs %s", second.Effect, first.Effect)
	}
	if repo.lookups != 1 {
		t.Fatalf("expected cache hit to skip the delegation lookup, got %d lookups", repo.lookups)
	}
}

func TestCachedEvaluatorKeyedByPolicy(t *testing.T) {
	cached, _ := newCachedHarness(t)
	ctx := context.Background()
	alice := &Subject{ID: "alice"}
	doc := &Resource{ID: "document:1", Type: "document"}

	allowPolicy := &Policy{Rules: aliceDocumentRules()}
	if d := cached.Decide(ctx, allowPolicy, alice, doc, "read"); !d.Allowed {
		t.Fatalf("expected allow, got %+v", d)
	}
	cached.cache.Wait()

	// an edited policy has a different checksum and must not hit stale entries
	emptyPolicy := &Policy{}
	if d := cached.Decide(ctx, emptyPolicy, alice, doc, "read"); d.Allowed {
		t.Fatalf("expected deny under the empty policy, got %+v", d)
	}
}

func TestCachedEvaluatorInvalidate(t *testing.T) {
	cached, repo := newCachedHarness(t)
	ctx := context.Background()
	policy := &Policy{Rules: aliceDocumentRules()}
	bob := &Subject{ID: "bob"}
	doc := &Resource{ID: "document:1", Type: "document"}

	cached.Decide(ctx, policy, bob, doc, "read")
	cached.cache.Wait()
	cached.Invalidate()
	time.Sleep(10 * time.Millisecond) // give ristretto time to settle

	cached.Decide(ctx, policy, bob, doc, "read")
	if repo.lookups != 2 {
		t.Fatalf("expected invalidation to force re-evaluation, got %d lookups", repo.lookups)
	}
}
