package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaStatements create the intake tables if they do not exist. The
// service owns email_intakes; contacts and appointments are shared with the
// rest of the CRM and created here only for standalone deployments.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS email_intakes (
		id               UUID PRIMARY KEY,
		document         JSONB NOT NULL,
		status           TEXT NOT NULL,
		sender_email     TEXT NOT NULL,
		subject          TEXT NOT NULL DEFAULT '',
		confidence_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_email_intakes_status_confidence
		ON email_intakes (status, confidence_score)`,
	`CREATE INDEX IF NOT EXISTS idx_email_intakes_sender_created
		ON email_intakes (sender_email, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS contacts (
		id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		name       TEXT NOT NULL,
		email      TEXT NOT NULL UNIQUE,
		phone      TEXT,
		company    TEXT,
		notes      TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_contacts_email_lower
		ON contacts (LOWER(email))`,
	`CREATE TABLE IF NOT EXISTS appointments (
		id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		contact_id  UUID NOT NULL REFERENCES contacts(id),
		kind        TEXT NOT NULL DEFAULT 'appointment',
		subject     TEXT,
		notes       TEXT,
		occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_appointments_contact_occurred
		ON appointments (contact_id, occurred_at DESC)`,
}

// EnsureSchema creates the intake tables and indexes if they are missing.
// Safe to run on every startup.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}
