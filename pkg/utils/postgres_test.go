package utils

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation(t *testing.T) {
	wrapped := fmt.Errorf("insert call: %w", &pgconn.PgError{Code: "23505"})
	if !IsUniqueViolation(wrapped) {
		t.Fatalf("expected wrapped 23505 to be a unique violation")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Fatalf("foreign key violation is not a unique violation")
	}
	if IsUniqueViolation(errors.New("x")) {
		t.Fatalf("plain error is not a unique violation")
	}
}

func TestPoolDefaults(t *testing.T) {
	c := PostgresPoolConfig{}.withDefaults()
	if c.MaxOpenConns != 20 || c.MaxIdleConns != 10 || c.PingTimeout <= 0 || c.ApplicationName == "" {
		t.Fatalf("unexpected defaults: %+v", c)
	}

	c = PostgresPoolConfig{MaxOpenConns: 4, MaxIdleConns: 8}.withDefaults()
	if c.MaxIdleConns != 4 {
		t.Fatalf("idle conns must not exceed open conns, got %d", c.MaxIdleConns)
	}
}

func TestOpenPostgresRejectsBadDSN(t *testing.T) {
	if _, err := OpenPostgres(context.Background(), "host=localhost port=notaport", PostgresPoolConfig{}); err == nil {
		t.Fatalf("expected dsn parse error")
	}
}

func TestConstraintHelpers(t *testing.T) {
	err := fmt.Errorf("insert tenant: %w", &pgconn.PgError{Code: "23505", ConstraintName: "tenants_phone_digits_key"})
	if !IsUniqueViolationOn(err, "tenants_phone_digits_key") {
		t.Fatalf("expected match on named constraint")
	}
	if IsUniqueViolationOn(err, "assistants_tenant_id_key") {
		t.Fatalf("other constraint must not match")
	}
	if !IsForeignKeyViolation(&pgconn.PgError{Code: "23503"}) || IsForeignKeyViolation(err) {
		t.Fatalf("foreign key detection wrong")
	}
}
