package intake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	cierrors "github.com/brightlane/crm-intake/pkg/errors"
	"github.com/brightlane/crm-intake/pkg/logging"
)

// PostgresRepository stores intake records in the email_intakes table. The
// full record lives in a JSONB document column; a handful of columns are
// denormalized out of it for filtering and sorting.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

// NewPostgresRepository creates a repository over the given pool.
func NewPostgresRepository(pool *pgxpool.Pool, logger logging.Logger) *PostgresRepository {
	return &PostgresRepository{
		pool:   pool,
		logger: logger.With(logging.F("component", "intake_repository")),
	}
}

// Save inserts a new record.
func (r *PostgresRepository) Save(ctx context.Context, record *Record) error {
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	doc, err := encodeRecord(record)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO email_intakes (
			id, document, status, sender_email, subject, confidence_score,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.pool.Exec(ctx, query,
		record.ID,
		doc,
		string(record.Status),
		record.SenderEmail,
		record.Subject,
		record.ConfidenceScore,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert intake record: %w", err)
	}

	r.logger.Debug("intake record saved",
		logging.F("intake_id", record.ID),
		logging.F("status", string(record.Status)),
	)
	return nil
}

// FindByID loads a record by id.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*Record, error) {
	var doc []byte
	err := r.pool.QueryRow(ctx,
		`SELECT document FROM email_intakes WHERE id = $1`, id,
	).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: intake record %s", cierrors.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query intake record: %w", err)
	}
	return decodeRecord(doc)
}

// ListByStatus returns records with the given status, newest first.
func (r *PostgresRepository) ListByStatus(ctx context.Context, status Status, offset, limit int) (*Page, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var total int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM email_intakes WHERE status = $1`, string(status),
	).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("failed to count intake records: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT document FROM email_intakes
		WHERE status = $1
		ORDER BY created_at DESC
		OFFSET $2 LIMIT $3
	`, string(status), offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query intake records: %w", err)
	}
	defer rows.Close()

	page := &Page{Total: total}
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan intake record: %w", err)
		}
		record, err := decodeRecord(doc)
		if err != nil {
			return nil, err
		}
		page.Records = append(page.Records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read intake records: %w", err)
	}
	return page, nil
}

// UpdateDecision records an operator decision with a compare-and-set on the
// current status. The row is locked for the duration of the transaction, so
// concurrent submissions serialize and exactly one sees pending_review.
func (r *PostgresRepository) UpdateDecision(ctx context.Context, id string, status Status, decision *Decision) (*Record, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var doc []byte
	var current string
	err = tx.QueryRow(ctx,
		`SELECT document, status FROM email_intakes WHERE id = $1 FOR UPDATE`, id,
	).Scan(&doc, &current)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: intake record %s", cierrors.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock intake record: %w", err)
	}

	if Status(current) != StatusPendingReview {
		return nil, fmt.Errorf("%w: intake record %s is %s, not pending_review",
			cierrors.ErrInvalidState, id, current)
	}

	record, err := decodeRecord(doc)
	if err != nil {
		return nil, err
	}
	record.Status = status
	record.Decision = decision
	record.UpdatedAt = time.Now().UTC()

	updated, err := encodeRecord(record)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE email_intakes
		SET document = $2, status = $3, updated_at = $4
		WHERE id = $1
	`, id, updated, string(status), record.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update intake record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit decision: %w", err)
	}

	r.logger.Info("decision recorded",
		logging.F("intake_id", id),
		logging.F("status", string(status)),
	)
	return record, nil
}
