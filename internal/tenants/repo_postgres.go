package tenants

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"receptionist-platform/pkg/utils"
)

// PostgresRepo reads tenants and memberships from Postgres.
//
// Assumes tables (see migrations/0001_init.sql):
// - tenants (phone_digits UNIQUE, services JSONB, calendar JSONB NULL)
// - tenant_memberships (PRIMARY KEY (tenant_id, user_id))
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

// phoneDigitsConstraint is the unique index that backs phone-based tenant resolution.
const phoneDigitsConstraint = "tenants_phone_digits_key"

const tenantColumns = `
id, name, phone, email, address, website, industry, status, language, timezone, hours,
services, calendar, plan_id, created_at, updated_at`

func (r *PostgresRepo) Get(ctx context.Context, tenantID string) (Tenant, error) {
	q := `SELECT` + tenantColumns + ` FROM tenants WHERE id = $1`
	return scanTenant(r.db.QueryRowContext(ctx, q, tenantID))
}

func (r *PostgresRepo) GetByPhone(ctx context.Context, phone string) (Tenant, error) {
	p := NormalizePhone(phone)
	if p == "" {
		return Tenant{}, ErrNotFound
	}
	q := `SELECT` + tenantColumns + ` FROM tenants WHERE phone_digits = $1`
	return scanTenant(r.db.QueryRowContext(ctx, q, p))
}

func (r *PostgresRepo) GetMembership(ctx context.Context, tenantID, userID string) (Membership, error) {
	const q = `
SELECT tenant_id, user_id, role, status, created_at
FROM tenant_memberships
WHERE tenant_id = $1 AND user_id = $2
`
	var m Membership
	if err := r.db.QueryRowContext(ctx, q, tenantID, userID).Scan(
		&m.TenantID,
		&m.UserID,
		&m.Role,
		&m.Status,
		&m.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Membership{}, ErrMembershipAbsent
		}
		return Membership{}, err
	}
	return m, nil
}

func (r *PostgresRepo) UpdateCalendar(ctx context.Context, tenantID string, creds *CalendarCredentials) error {
	var raw []byte
	if creds != nil {
		b, err := json.Marshal(creds)
		if err != nil {
			return err
		}
		raw = b
	}
	const q = `UPDATE tenants SET calendar = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, tenantID, nullJSON(raw), time.Now().UTC())
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

// Insert stores a new tenant. Used by seeding and integration tests; tenant CRUD
// proper is owned by the dashboard API.
func (r *PostgresRepo) Insert(ctx context.Context, t Tenant) error {
	services, err := json.Marshal(t.Services)
	if err != nil {
		return err
	}
	var cal []byte
	if t.Calendar != nil {
		if cal, err = json.Marshal(t.Calendar); err != nil {
			return err
		}
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = now
	}
	const q = `
INSERT INTO tenants (
  id, name, phone, phone_digits, email, address, website, industry, status, language, timezone, hours,
  services, calendar, plan_id, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17
)
`
	_, err = r.db.ExecContext(ctx, q,
		t.ID, t.Name, t.Phone, NormalizePhone(t.Phone), t.Email, t.Address, t.Website, t.Industry,
		t.Status, t.Language, t.Timezone, t.Hours, services, nullJSON(cal), t.PlanID,
		t.CreatedAt, t.UpdatedAt,
	)
	if utils.IsUniqueViolationOn(err, phoneDigitsConstraint) {
		return ErrPhoneTaken
	}
	return err
}

func scanTenant(row *sql.Row) (Tenant, error) {
	var (
		t        Tenant
		services []byte
		calendar []byte
	)
	if err := row.Scan(
		&t.ID,
		&t.Name,
		&t.Phone,
		&t.Email,
		&t.Address,
		&t.Website,
		&t.Industry,
		&t.Status,
		&t.Language,
		&t.Timezone,
		&t.Hours,
		&services,
		&calendar,
		&t.PlanID,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Tenant{}, ErrNotFound
		}
		return Tenant{}, err
	}
	if len(services) > 0 {
		if err := json.Unmarshal(services, &t.Services); err != nil {
			return Tenant{}, err
		}
	}
	if len(calendar) > 0 {
		var c CalendarCredentials
		if err := json.Unmarshal(calendar, &c); err != nil {
			return Tenant{}, err
		}
		t.Calendar = &c
	}
	return t, nil
}

func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
