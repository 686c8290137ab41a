package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oarkflow/permit"
	"github.com/oarkflow/squealx"
)

// SQLPolicyRepository persists policy rules in SQL (squealx)
type SQLPolicyRepository struct {
	db *squealx.DB
}

func NewSQLPolicyRepository(db *squealx.DB) *SQLPolicyRepository {
	return &SQLPolicyRepository{db: db}
}

const selectRuleColumns = `id, subject, resource, action, effect, priority, domain_id, conditions_json`

// GetPoliciesFor returns all active rules. Rule subjects can be role names
// the store cannot resolve against the subject, so the matcher narrows.
func (s *SQLPolicyRepository) GetPoliciesFor(ctx context.Context, subjectID, resourceID string) (*permit.Policy, error) {
	q := `SELECT ` + selectRuleColumns + ` FROM policy_rules WHERE deleted_at IS NULL`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	policy := &permit.Policy{}
	for r.Next() {
		rule, err := scanRule(r)
		if err != nil {
			return nil, err
		}
		policy.Rules = append(policy.Rules, *rule)
	}
	return policy, nil
}

func (s *SQLPolicyRepository) GetPoliciesForBatch(ctx context.Context, queries []permit.PolicyQuery) ([]*permit.Policy, error) {
	out := make([]*permit.Policy, 0, len(queries))
	for _, q := range queries {
		p, err := s.GetPoliciesFor(ctx, q.SubjectID, q.ResourceID)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *SQLPolicyRepository) Save(ctx context.Context, rule *permit.PolicyRule) error {
	if rule.ID == "" {
		return fmt.Errorf("rule id is required")
	}
	conditions, _ := json.Marshal(rule.Conditions)
	domainID := ""
	if rule.Domain != nil {
		domainID = rule.Domain.ID
	}
	now := time.Now()
	q := `INSERT INTO policy_rules(id, subject, resource, action, effect, priority, domain_id, conditions_json, created_at, updated_at)
VALUES(:id, :subject, :resource, :action, :effect, :priority, :domain_id, :conditions_json, :now, :now)
ON CONFLICT(id) DO UPDATE SET subject=:subject, resource=:resource, action=:action, effect=:effect, priority=:priority, domain_id=:domain_id, conditions_json=:conditions_json, updated_at=:now`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":              rule.ID,
		"subject":         rule.Subject,
		"resource":        rule.Resource,
		"action":          rule.Action,
		"effect":          string(rule.Effect),
		"priority":        rule.Priority,
		"domain_id":       domainID,
		"conditions_json": string(conditions),
		"now":             now,
	})
	return err
}

func (s *SQLPolicyRepository) SoftDelete(ctx context.Context, ruleID string) error {
	q := `UPDATE policy_rules SET deleted_at = :now WHERE id = :id AND deleted_at IS NULL`
	res, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": ruleID, "now": time.Now()})
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("rule not found: %s", ruleID)
	}
	return nil
}

func (s *SQLPolicyRepository) Restore(ctx context.Context, ruleID string) error {
	q := `UPDATE policy_rules SET deleted_at = NULL, updated_at = :now WHERE id = :id AND deleted_at IS NOT NULL`
	res, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": ruleID, "now": time.Now()})
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("rule not in trash: %s", ruleID)
	}
	return nil
}

func (s *SQLPolicyRepository) ListTrashed(ctx context.Context) ([]*permit.PolicyRule, error) {
	q := `SELECT ` + selectRuleColumns + ` FROM policy_rules WHERE deleted_at IS NOT NULL`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*permit.PolicyRule, 0)
	for r.Next() {
		rule, err := scanRule(r)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

// rowScanner is the slice of the rows API the scan helpers need.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(r rowScanner) (*permit.PolicyRule, error) {
	var id, subject, resource, action, effect, domainID, conditionsJSON string
	var priority int
	if err := r.Scan(&id, &subject, &resource, &action, &effect, &priority, &domainID, &conditionsJSON); err != nil {
		return nil, err
	}
	rule := &permit.PolicyRule{
		ID:       id,
		Subject:  subject,
		Resource: resource,
		Action:   action,
		Effect:   permit.Effect(effect),
		Priority: priority,
	}
	if domainID != "" {
		rule.Domain = &permit.Domain{ID: domainID}
	}
	_ = json.Unmarshal([]byte(conditionsJSON), &rule.Conditions)
	return rule, nil
}
