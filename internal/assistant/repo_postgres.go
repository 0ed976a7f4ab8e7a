package assistant

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"receptionist-platform/pkg/utils"

	"github.com/google/uuid"
)

// PostgresRepo stores assistants in `assistants` and their tools in `assistant_tools`.
// external_id is UNIQUE (NULL when unprovisioned), which backs the
// one-external-assistant-per-tenant invariant at the storage level.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Get(ctx context.Context, tenantID string) (Assistant, error) {
	const q = `
SELECT id, tenant_id, name, prompt, custom_prompt, first_message, language,
       voice, model, transcriber, COALESCE(external_id, ''), required_fields, created_at, updated_at
FROM assistants
WHERE tenant_id = $1
`
	var (
		a                         Assistant
		voice, model, transcriber []byte
		requiredFields            []byte
	)
	if err := r.db.QueryRowContext(ctx, q, tenantID).Scan(
		&a.ID,
		&a.TenantID,
		&a.Name,
		&a.Prompt,
		&a.CustomPrompt,
		&a.FirstMessage,
		&a.Language,
		&voice,
		&model,
		&transcriber,
		&a.ExternalID,
		&requiredFields,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Assistant{}, ErrNotFound
		}
		return Assistant{}, err
	}
	for _, f := range []struct {
		raw []byte
		dst any
	}{{voice, &a.Voice}, {model, &a.Model}, {transcriber, &a.Transcriber}, {requiredFields, &a.RequiredFields}} {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return Assistant{}, err
		}
	}

	tools, err := listTools(ctx, r.db, a.ID)
	if err != nil {
		return Assistant{}, err
	}
	a.Tools = tools
	return a, nil
}

func (r *PostgresRepo) Save(ctx context.Context, a Assistant) (Assistant, error) {
	if a.TenantID == "" {
		return Assistant{}, ErrInvalidArgument
	}
	voice, err := json.Marshal(a.Voice)
	if err != nil {
		return Assistant{}, err
	}
	model, err := json.Marshal(a.Model)
	if err != nil {
		return Assistant{}, err
	}
	transcriber, err := json.Marshal(a.Transcriber)
	if err != nil {
		return Assistant{}, err
	}
	requiredFields, err := json.Marshal(a.RequiredFields)
	if err != nil {
		return Assistant{}, err
	}

	now := time.Now().UTC()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.UpdatedAt = now

	err = utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		const upsert = `
INSERT INTO assistants (
  id, tenant_id, name, prompt, custom_prompt, first_message, language,
  voice, model, transcriber, external_id, required_fields, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NULLIF($11, ''),$12,$13,$13
)
ON CONFLICT (tenant_id) DO UPDATE SET
  name = EXCLUDED.name,
  prompt = EXCLUDED.prompt,
  custom_prompt = EXCLUDED.custom_prompt,
  first_message = EXCLUDED.first_message,
  language = EXCLUDED.language,
  voice = EXCLUDED.voice,
  model = EXCLUDED.model,
  transcriber = EXCLUDED.transcriber,
  external_id = EXCLUDED.external_id,
  required_fields = EXCLUDED.required_fields,
  updated_at = EXCLUDED.updated_at
RETURNING id, created_at
`
		if err := tx.QueryRowContext(ctx, upsert,
			a.ID, a.TenantID, a.Name, a.Prompt, a.CustomPrompt, a.FirstMessage, a.Language,
			string(voice), string(model), string(transcriber), a.ExternalID, string(requiredFields), now,
		).Scan(&a.ID, &a.CreatedAt); err != nil {
			return err
		}
		return replaceTools(ctx, tx, a.ID, a.Tools)
	})
	if err != nil {
		return Assistant{}, err
	}
	return a, nil
}

func listTools(ctx context.Context, q utils.Querier, assistantID string) ([]Tool, error) {
	const sel = `
SELECT name, description, parameters, enabled, strategy, method, path, webhook_url, COALESCE(external_id, '')
FROM assistant_tools
WHERE assistant_id = $1
ORDER BY position
`
	rows, err := q.QueryContext(ctx, sel, assistantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Tool
	for rows.Next() {
		var (
			t      Tool
			params []byte
		)
		if err := rows.Scan(
			&t.Name,
			&t.Description,
			&params,
			&t.Enabled,
			&t.Strategy,
			&t.Method,
			&t.Path,
			&t.WebhookURL,
			&t.ExternalID,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(params, &t.Parameters); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func replaceTools(ctx context.Context, tx *sql.Tx, assistantID string, tools []Tool) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM assistant_tools WHERE assistant_id = $1`, assistantID); err != nil {
		return err
	}
	const ins = `
INSERT INTO assistant_tools (
  assistant_id, position, name, description, parameters, enabled, strategy, method, path, webhook_url, external_id
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NULLIF($11, '')
)
`
	for i, t := range tools {
		params, err := json.Marshal(t.Parameters)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, ins,
			assistantID, i, t.Name, t.Description, string(params), t.Enabled, t.Strategy,
			t.Method, t.Path, t.WebhookURL, t.ExternalID,
		); err != nil {
			return err
		}
	}
	return nil
}
