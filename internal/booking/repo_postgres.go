package booking

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"receptionist-platform/pkg/utils"
)

// PostgresRepo stores appointments in the appointments table.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const appointmentColumns = `
id, tenant_id, client_name, client_email, client_phone, service, date, time,
duration_minutes, notes, custom, source, call_id, status, calendar_event_id, created_at`

func (r *PostgresRepo) Create(ctx context.Context, a Appointment) error {
	var custom any
	if len(a.Custom) > 0 {
		b, err := json.Marshal(a.Custom)
		if err != nil {
			return err
		}
		custom = string(b)
	}
	q := `INSERT INTO appointments (` + appointmentColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NULLIF($13,''),$14,NULLIF($15,''),$16)`
	_, err := r.db.ExecContext(ctx, q,
		a.ID, a.TenantID, a.ClientName, a.ClientEmail, a.ClientPhone, a.Service, a.Date, a.Time,
		a.DurationMinutes, a.Notes, custom, string(a.Source), a.CallID, string(a.Status), a.CalendarEventID, a.CreatedAt,
	)
	if utils.IsForeignKeyViolation(err) {
		return fmt.Errorf("%w: unknown tenant %q", ErrInvalidArgument, a.TenantID)
	}
	return err
}

func (r *PostgresRepo) Get(ctx context.Context, tenantID, id string) (Appointment, error) {
	q := `SELECT` + appointmentColumns + ` FROM appointments WHERE tenant_id = $1 AND id = $2`
	return scanAppointment(r.db.QueryRowContext(ctx, q, tenantID, id))
}

func (r *PostgresRepo) ListByDate(ctx context.Context, tenantID, date string) ([]Appointment, error) {
	q := `SELECT` + appointmentColumns + `
FROM appointments
WHERE tenant_id = $1 AND date = $2 AND status = 'confirmed'
ORDER BY time`
	rows, err := r.db.QueryContext(ctx, q, tenantID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) SetCalendarEventID(ctx context.Context, tenantID, id, eventID string) error {
	const q = `UPDATE appointments SET calendar_event_id = $3 WHERE tenant_id = $1 AND id = $2`
	res, err := r.db.ExecContext(ctx, q, tenantID, id, eventID)
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

func (r *PostgresRepo) CountCreated(ctx context.Context, tenantID string, from, to time.Time, source Source) (int, error) {
	const q = `
SELECT count(*)
FROM appointments
WHERE tenant_id = $1
  AND status = 'confirmed'
  AND created_at >= $2 AND created_at < $3
  AND ($4 = '' OR source = $4)`
	var n int
	err := r.db.QueryRowContext(ctx, q, tenantID, from, to, string(source)).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row rowScanner) (Appointment, error) {
	var (
		a              Appointment
		custom         []byte
		source, status string
		callID, event  sql.NullString
	)
	if err := row.Scan(
		&a.ID, &a.TenantID, &a.ClientName, &a.ClientEmail, &a.ClientPhone, &a.Service, &a.Date, &a.Time,
		&a.DurationMinutes, &a.Notes, &custom, &source, &callID, &status, &event, &a.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Appointment{}, ErrNotFound
		}
		return Appointment{}, err
	}
	a.Source = Source(source)
	a.Status = Status(status)
	a.CallID = callID.String
	a.CalendarEventID = event.String
	if len(custom) > 0 {
		if err := json.Unmarshal(custom, &a.Custom); err != nil {
			return Appointment{}, err
		}
	}
	return a, nil
}
