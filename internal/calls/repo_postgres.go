package calls

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"receptionist-platform/pkg/utils"
)

// PostgresRepo stores call events in call_events (UNIQUE (tenant_id, provider_call_id)).
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const callColumns = `
id, tenant_id, provider, provider_call_id, direction, from_number, to_number,
status, raw_status, ended_reason, duration_seconds, started_at, ended_at,
transcript, summary, sentiment, recording_url, extracted_data, ai_responses,
cost, tokens_used, created_at, updated_at`

func (r *PostgresRepo) Get(ctx context.Context, tenantID, providerCallID string) (CallEvent, error) {
	q := `SELECT` + callColumns + ` FROM call_events WHERE tenant_id = $1 AND provider_call_id = $2`
	return scanCall(r.db.QueryRowContext(ctx, q, tenantID, providerCallID))
}

func (r *PostgresRepo) FindByCallID(ctx context.Context, providerCallID string) (CallEvent, error) {
	q := `SELECT` + callColumns + ` FROM call_events WHERE provider_call_id = $1 LIMIT 2`
	rows, err := r.db.QueryContext(ctx, q, providerCallID)
	if err != nil {
		return CallEvent{}, err
	}
	defer rows.Close()

	var out []CallEvent
	for rows.Next() {
		e, err := scanCall(rows)
		if err != nil {
			return CallEvent{}, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return CallEvent{}, err
	}
	switch len(out) {
	case 0:
		return CallEvent{}, ErrNotFound
	case 1:
		return out[0], nil
	default:
		return CallEvent{}, ErrAmbiguousCallID
	}
}

func (r *PostgresRepo) Create(ctx context.Context, e CallEvent) error {
	extracted, responses, err := encodeJSONColumns(e)
	if err != nil {
		return err
	}
	q := `INSERT INTO call_events (` + callColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)`
	_, err = r.db.ExecContext(ctx, q,
		e.ID, e.TenantID, string(e.Provider), e.ProviderCallID, string(e.Direction), e.From, e.To,
		string(e.Status), e.RawStatus, e.EndedReason, e.DurationSeconds, e.StartedAt, e.EndedAt,
		e.Transcript, e.Summary, e.Sentiment, e.RecordingURL, extracted, responses,
		e.Cost, e.TokensUsed, e.CreatedAt, e.UpdatedAt,
	)
	if utils.IsUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *PostgresRepo) Update(ctx context.Context, e CallEvent) error {
	extracted, responses, err := encodeJSONColumns(e)
	if err != nil {
		return err
	}
	const q = `
UPDATE call_events SET
  provider = $3, direction = $4, from_number = $5, to_number = $6,
  status = $7, raw_status = $8, ended_reason = $9, duration_seconds = $10,
  started_at = $11, ended_at = $12, transcript = $13, summary = $14, sentiment = $15,
  recording_url = $16, extracted_data = $17, ai_responses = $18, cost = $19, tokens_used = $20,
  updated_at = $21
WHERE tenant_id = $1 AND provider_call_id = $2
`
	res, err := r.db.ExecContext(ctx, q,
		e.TenantID, e.ProviderCallID, string(e.Provider), string(e.Direction), e.From, e.To,
		string(e.Status), e.RawStatus, e.EndedReason, e.DurationSeconds,
		e.StartedAt, e.EndedAt, e.Transcript, e.Summary, e.Sentiment,
		e.RecordingURL, extracted, responses, e.Cost, e.TokensUsed,
		e.UpdatedAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) ListByTenant(ctx context.Context, tenantID string, from, to time.Time) ([]CallEvent, error) {
	q := `SELECT` + callColumns + `
FROM call_events
WHERE tenant_id = $1
  AND ($2::timestamptz IS NULL OR created_at >= $2)
  AND ($3::timestamptz IS NULL OR created_at < $3)
ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, q, tenantID, nullTime(from), nullTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CallEvent
	for rows.Next() {
		e, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (CallEvent, error) {
	var (
		e                    CallEvent
		provider, direction  string
		status               string
		startedAt, endedAt   sql.NullTime
		extracted, responses []byte
	)
	if err := row.Scan(
		&e.ID, &e.TenantID, &provider, &e.ProviderCallID, &direction, &e.From, &e.To,
		&status, &e.RawStatus, &e.EndedReason, &e.DurationSeconds, &startedAt, &endedAt,
		&e.Transcript, &e.Summary, &e.Sentiment, &e.RecordingURL, &extracted, &responses,
		&e.Cost, &e.TokensUsed, &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallEvent{}, ErrNotFound
		}
		return CallEvent{}, err
	}
	e.Provider = Provider(provider)
	e.Direction = Direction(direction)
	e.Status = Status(status)
	if startedAt.Valid {
		e.StartedAt = &startedAt.Time
	}
	if endedAt.Valid {
		e.EndedAt = &endedAt.Time
	}
	if len(extracted) > 0 {
		if err := json.Unmarshal(extracted, &e.ExtractedData); err != nil {
			return CallEvent{}, err
		}
	}
	if len(responses) > 0 {
		e.AIResponses = json.RawMessage(responses)
	}
	return e, nil
}

func encodeJSONColumns(e CallEvent) (extracted, responses any, err error) {
	if len(e.ExtractedData) > 0 {
		b, err := json.Marshal(e.ExtractedData)
		if err != nil {
			return nil, nil, err
		}
		extracted = string(b)
	}
	if len(e.AIResponses) > 0 {
		responses = string(e.AIResponses)
	}
	return extracted, responses, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
