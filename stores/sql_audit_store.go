package stores

import (
	"context"
	"encoding/json"

	"github.com/oarkflow/permit"
	"github.com/oarkflow/squealx"
)

// SQLAuditStore persists audit entries in SQL
type SQLAuditStore struct {
	db *squealx.DB
}

func NewSQLAuditStore(db *squealx.DB) (*SQLAuditStore, error) {
	return &SQLAuditStore{db: db}, nil
}

func (s *SQLAuditStore) LogAccess(ctx context.Context, entry *permit.AuditEntry) error {
	metaB, _ := json.Marshal(entry.Metadata)
	effect, allowed, matchedBy, reason := "", false, "", ""
	if entry.Decision != nil {
		effect = string(entry.Decision.Effect)
		allowed = entry.Decision.Allowed
		matchedBy = entry.Decision.MatchedBy
		reason = entry.Decision.Reason
	}
	q := `INSERT INTO audit_log(id, timestamp, subject_id, resource_id, resource_type, action, effect, allowed, matched_by, reason, metadata_json) VALUES(:id, :timestamp, :subject_id, :resource_id, :resource_type, :action, :effect, :allowed, :matched_by, :reason, :metadata_json)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":            entry.ID,
		"timestamp":     entry.Timestamp,
		"subject_id":    entry.SubjectID,
		"resource_id":   entry.ResourceID,
		"resource_type": entry.ResourceType,
		"action":        string(entry.Action),
		"effect":        effect,
		"allowed":       boolToInt(allowed),
		"matched_by":    matchedBy,
		"reason":        reason,
		"metadata_json": string(metaB),
	})
	return err
}

func (s *SQLAuditStore) GetAccessLog(ctx context.Context, filter permit.AuditFilter) ([]*permit.AuditEntry, error) {
	q := `SELECT id, timestamp, subject_id, resource_id, resource_type, action, effect, allowed, matched_by, reason, metadata_json FROM audit_log WHERE 1=1`
	params := map[string]any{}
	if filter.SubjectID != "" {
		q += " AND subject_id = :subject_id"
		params["subject_id"] = filter.SubjectID
	}
	if filter.ResourceID != "" {
		q += " AND resource_id = :resource_id"
		params["resource_id"] = filter.ResourceID
	}
	if filter.Action != "" {
		q += " AND action = :action"
		params["action"] = string(filter.Action)
	}
	if !filter.StartTime.IsZero() {
		q += " AND timestamp >= :start"
		params["start"] = filter.StartTime
	}
	if !filter.EndTime.IsZero() {
		q += " AND timestamp <= :end"
		params["end"] = filter.EndTime
	}
	if filter.Limit > 0 {
		q += " LIMIT :limit"
		params["limit"] = filter.Limit
	} else {
		q += " LIMIT 100"
	}
	r, err := s.db.NamedQueryContext(ctx, q, params)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*permit.AuditEntry, 0)
	for r.Next() {
		var id, subject, resource, resourceType, action, effect, matchedBy, reason, metaJSON string
		var timestampRaw any
		var allowedInt int
		if err := r.Scan(&id, &timestampRaw, &subject, &resource, &resourceType, &action, &effect, &allowedInt, &matchedBy, &reason, &metaJSON); err != nil {
			return nil, err
		}
		entry := &permit.AuditEntry{
			ID:           id,
			SubjectID:    subject,
			ResourceID:   resource,
			ResourceType: resourceType,
			Action:       permit.Action(action),
		}
		if t, ok := scanTime(timestampRaw); ok {
			entry.Timestamp = t
		}
		entry.Decision = &permit.Decision{
			Effect:    permit.Effect(effect),
			Allowed:   allowedInt != 0,
			MatchedBy: matchedBy,
			Reason:    reason,
		}
		_ = json.Unmarshal([]byte(metaJSON), &entry.Metadata)
		out = append(out, entry)
	}
	return out, nil
}
