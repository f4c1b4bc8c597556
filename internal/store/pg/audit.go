package pg

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"adminkit.org/internal/auth"
)

func (s *Store) AppendAudit(ctx context.Context, entry auth.AuditEntry) error {
	if s.db == nil {
		return errNoDB
	}
	fields := entry.Fields
	if fields == nil {
		fields = map[string]string{}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode audit fields: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		insert into audit_log (id, occurred_at, actor_id, event, resource_type, resource_id, request_id, fields)
		values ($1, $2, $3, $4, $5, $6, $7, $8::jsonb)
	`, entry.ID, entry.OccurredAt, nullIfEmpty(entry.ActorID), entry.Event,
		nullIfEmpty(entry.ResourceType), nullIfEmpty(entry.ResourceID), nullIfEmpty(entry.RequestID), string(raw))
	return err
}

func (s *Store) ListAudit(ctx context.Context, filter auth.AuditFilter) ([]auth.AuditEntry, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	var (
		conds []string
		args  []any
	)
	if filter.ActorID != "" {
		args = append(args, filter.ActorID)
		conds = append(conds, fmt.Sprintf("actor_id = $%d", len(args)))
	}
	if filter.Event != "" {
		args = append(args, filter.Event)
		conds = append(conds, fmt.Sprintf("event = $%d", len(args)))
	}
	query := `
		select id, occurred_at, coalesce(actor_id, ''), event, coalesce(resource_type, ''),
		       coalesce(resource_id, ''), coalesce(request_id, ''), fields::text
		from audit_log`
	if len(conds) > 0 {
		query += ` where ` + strings.Join(conds, " and ")
	}
	query += ` order by occurred_at desc, id desc`
	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset)
		query += fmt.Sprintf(` limit $%d offset $%d`, len(args)-1, len(args))
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []auth.AuditEntry
	for rows.Next() {
		var (
			e   auth.AuditEntry
			raw string
		)
		if err := rows.Scan(&e.ID, &e.OccurredAt, &e.ActorID, &e.Event, &e.ResourceType, &e.ResourceID, &e.RequestID, &raw); err != nil {
			return nil, err
		}
		if raw != "" && raw != "{}" {
			if err := json.Unmarshal([]byte(raw), &e.Fields); err != nil {
				return nil, fmt.Errorf("decode audit fields: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
