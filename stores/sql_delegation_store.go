package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oarkflow/permit"
	"github.com/oarkflow/squealx"
)

// SQLDelegationRepository persists delegations in SQL (squealx). Create is a
// single INSERT; the primary key rejects duplicate IDs, but serializing
// concurrent grants against each other is left to the database isolation
// level or the host.
type SQLDelegationRepository struct {
	db *squealx.DB
}

func NewSQLDelegationRepository(db *squealx.DB) *SQLDelegationRepository {
	return &SQLDelegationRepository{db: db}
}

const selectDelegationColumns = `id, delegator_id, delegate_id, resources_json, actions_json, domain_id, created_at, expires_at, revoked_at, is_transitive, status, metadata_json`

func (s *SQLDelegationRepository) Create(ctx context.Context, d *permit.Delegation) error {
	resources, _ := json.Marshal(d.Scope.Resources)
	actions, _ := json.Marshal(d.Scope.Actions)
	metadata, _ := json.Marshal(d.Metadata)
	q := `INSERT INTO delegations(id, delegator_id, delegate_id, resources_json, actions_json, domain_id, created_at, expires_at, revoked_at, is_transitive, status, metadata_json)
VALUES(:id, :delegator_id, :delegate_id, :resources_json, :actions_json, :domain_id, :created_at, :expires_at, :revoked_at, :is_transitive, :status, :metadata_json)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":             d.ID,
		"delegator_id":   d.DelegatorID,
		"delegate_id":    d.DelegateID,
		"resources_json": string(resources),
		"actions_json":   string(actions),
		"domain_id":      d.Scope.Domain,
		"created_at":     d.CreatedAt,
		"expires_at":     timeOrNil(d.ExpiresAt),
		"revoked_at":     timeOrNil(d.RevokedAt),
		"is_transitive":  boolToInt(d.IsTransitive),
		"status":         string(d.Status),
		"metadata_json":  string(metadata),
	})
	return err
}

func (s *SQLDelegationRepository) FindByID(ctx context.Context, id string) (*permit.Delegation, error) {
	q := `SELECT ` + selectDelegationColumns + ` FROM delegations WHERE id = :id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, fmt.Errorf("delegation not found: %s", id)
	}
	return scanDelegation(r)
}

func (s *SQLDelegationRepository) FindActiveForDelegate(ctx context.Context, delegateID string) ([]*permit.Delegation, error) {
	q := `SELECT ` + selectDelegationColumns + ` FROM delegations WHERE delegate_id = :delegate_id AND status = :status`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{
		"delegate_id": delegateID,
		"status":      string(permit.DelegationActive),
	})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*permit.Delegation, 0)
	for r.Next() {
		d, err := scanDelegation(r)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *SQLDelegationRepository) Revoke(ctx context.Context, id string, at time.Time) error {
	q := `UPDATE delegations SET status = :status, revoked_at = :revoked_at WHERE id = :id`
	res, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":         id,
		"status":     string(permit.DelegationRevoked),
		"revoked_at": at,
	})
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("delegation not found: %s", id)
	}
	return nil
}

// Cleanup removes delegations whose terminal timestamp (revocation, or
// expiry for still-stored-as-active rows) is before the cutoff.
func (s *SQLDelegationRepository) Cleanup(ctx context.Context, cutoff time.Time) (int, error) {
	q := `DELETE FROM delegations WHERE (revoked_at IS NOT NULL AND revoked_at < :cutoff) OR (revoked_at IS NULL AND expires_at IS NOT NULL AND expires_at < :cutoff)`
	res, err := s.db.NamedExecContext(ctx, q, map[string]any{"cutoff": cutoff})
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func scanDelegation(r rowScanner) (*permit.Delegation, error) {
	var id, delegator, delegate, resourcesJSON, actionsJSON, domainID, status, metadataJSON string
	var createdRaw, expiresRaw, revokedRaw any
	var transitiveInt int
	if err := r.Scan(&id, &delegator, &delegate, &resourcesJSON, &actionsJSON, &domainID, &createdRaw, &expiresRaw, &revokedRaw, &transitiveInt, &status, &metadataJSON); err != nil {
		return nil, err
	}
	d := &permit.Delegation{
		ID:           id,
		DelegatorID:  delegator,
		DelegateID:   delegate,
		IsTransitive: transitiveInt != 0,
		Status:       permit.DelegationState(status),
	}
	d.Scope.Domain = domainID
	_ = json.Unmarshal([]byte(resourcesJSON), &d.Scope.Resources)
	_ = json.Unmarshal([]byte(actionsJSON), &d.Scope.Actions)
	_ = json.Unmarshal([]byte(metadataJSON), &d.Metadata)
	if t, ok := scanTime(createdRaw); ok {
		d.CreatedAt = t
	}
	d.ExpiresAt = scanTimePtr(expiresRaw)
	d.RevokedAt = scanTimePtr(revokedRaw)
	return d, nil
}
