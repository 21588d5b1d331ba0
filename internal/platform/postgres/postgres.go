// Package postgres opens the PostgreSQL pool and owns the schema.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	// Registers the "postgres" database/sql driver.
	_ "github.com/lib/pq"

	"devcompliance/internal/platform/config"
)

// Schema is the idempotent DDL for every table this service owns.
const Schema = `
CREATE TABLE IF NOT EXISTS compliance_records (
	device_id             TEXT PRIMARY KEY,
	last_maintenance_date TIMESTAMPTZ NULL,
	next_required_date    TIMESTAMPTZ NOT NULL,
	compliance_status     TEXT NOT NULL CHECK (compliance_status IN ('pending', 'compliant')),
	certification_id      TEXT NULL,
	certification_expiry  TIMESTAMPTZ NULL,
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CHECK ((certification_id IS NULL) = (certification_expiry IS NULL))
);
`

// Open creates the connection pool and pings it once.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database URL is not configured")
	}
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return db, nil
}

// Migrate applies Schema. Safe to run on every startup.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
