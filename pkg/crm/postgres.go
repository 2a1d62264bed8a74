package crm

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brightlane/crm-intake/pkg/logging"
)

// PostgresLookup reads contacts and appointments from the CRM database.
type PostgresLookup struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

// NewPostgresLookup creates a Lookup over the given connection pool.
func NewPostgresLookup(pool *pgxpool.Pool, logger logging.Logger) *PostgresLookup {
	return &PostgresLookup{
		pool:   pool,
		logger: logger.With(logging.F("component", "crm_lookup")),
	}
}

// ContactByEmail finds the contact with the given email, matched
// case-insensitively. Returns nil when no contact matches.
func (l *PostgresLookup) ContactByEmail(ctx context.Context, email string) (*Contact, error) {
	query := `
		SELECT id, name, email,
		       COALESCE(phone, ''), COALESCE(company, ''), COALESCE(notes, ''),
		       created_at
		FROM contacts
		WHERE LOWER(email) = LOWER($1)
		LIMIT 1
	`

	var c Contact
	err := l.pool.QueryRow(ctx, query, email).Scan(
		&c.ID, &c.Name, &c.Email, &c.Phone, &c.Company, &c.Notes, &c.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query contact by email: %w", err)
	}
	return &c, nil
}

// RecentInteractions returns the contact's most recent appointments, newest
// first.
func (l *PostgresLookup) RecentInteractions(ctx context.Context, contactID string, limit int) ([]Interaction, error) {
	if limit <= 0 {
		limit = DefaultInteractionLimit
	}

	query := `
		SELECT id, contact_id, kind, COALESCE(subject, ''), COALESCE(notes, ''), occurred_at
		FROM appointments
		WHERE contact_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`

	rows, err := l.pool.Query(ctx, query, contactID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query interactions: %w", err)
	}
	defer rows.Close()

	var out []Interaction
	for rows.Next() {
		var in Interaction
		if err := rows.Scan(&in.ID, &in.ContactID, &in.Kind, &in.Subject, &in.Notes, &in.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan interaction: %w", err)
		}
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read interactions: %w", err)
	}

	l.logger.Debug("fetched CRM interactions",
		logging.F("contact_id", contactID),
		logging.F("count", len(out)),
	)
	return out, nil
}
