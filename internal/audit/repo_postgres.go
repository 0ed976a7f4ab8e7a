package audit

import (
	"context"
	"database/sql"
)

const eventColumns = `id, tenant_id, type, COALESCE(actor_user_id, ''), COALESCE(actor_role, ''), COALESCE(ip_address, ''),
  COALESCE(external_assistant_id, ''), message, COALESCE(metadata::text, ''), created_at`

// PostgresRepo appends to audit_events. The table has no UPDATE/DELETE grants in production.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events
  (id, tenant_id, type, actor_user_id, actor_role, ip_address, external_assistant_id, message, metadata, created_at)
VALUES ($1,$2,$3,NULLIF($4,''),NULLIF($5,''),NULLIF($6,''),NULLIF($7,''),$8,NULLIF($9,'')::jsonb,$10)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.TenantID,
		string(e.Type),
		e.ActorUserID,
		e.ActorRole,
		e.IPAddress,
		e.ExternalAssistantID,
		e.Message,
		e.Metadata,
		e.CreatedAt,
	)
	return err
}

func (r *PostgresRepo) List(ctx context.Context, tenantID string, limit int) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM audit_events WHERE tenant_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`,
		tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var typ string
		if err := rows.Scan(&e.ID, &e.TenantID, &typ, &e.ActorUserID, &e.ActorRole, &e.IPAddress,
			&e.ExternalAssistantID, &e.Message, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Type = EventType(typ)
		out = append(out, e)
	}
	return out, rows.Err()
}
