package intake

import (
	"context"
	"encoding/json"
	"fmt"
)

// Page is one page of a status-filtered listing.
type Page struct {
	Records []*Record `json:"records"`
	Total   int       `json:"total"`
}

// Repository stores intake records. The full record is persisted as one JSON
// document so that every analysis detail survives a round trip unchanged.
type Repository interface {
	// Save inserts a new record.
	Save(ctx context.Context, record *Record) error

	// FindByID loads a record, or ErrNotFound.
	FindByID(ctx context.Context, id string) (*Record, error)

	// ListByStatus returns records with the given status, newest first,
	// along with the total count for that status.
	ListByStatus(ctx context.Context, status Status, offset, limit int) (*Page, error)

	// UpdateDecision atomically records an operator decision. Only records
	// still in pending_review can be updated; any other current status
	// yields ErrInvalidState, a missing record ErrNotFound. Returns the
	// updated record.
	UpdateDecision(ctx context.Context, id string, status Status, decision *Decision) (*Record, error)
}

// encodeRecord serializes a record to its stored document form.
func encodeRecord(record *Record) ([]byte, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal intake record: %w", err)
	}
	return data, nil
}

// decodeRecord deserializes a stored document.
func decodeRecord(data []byte) (*Record, error) {
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal intake record: %w", err)
	}
	return &record, nil
}
