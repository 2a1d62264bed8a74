package intake

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	cierrors "github.com/brightlane/crm-intake/pkg/errors"
)

// MemoryRepository is an in-memory Repository. Used by tests and by CLI runs
// that have no database configured. Records are stored in their document
// form, so it exercises the same codec as the Postgres implementation.
type MemoryRepository struct {
	mu   sync.Mutex
	docs map[string][]byte
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{docs: make(map[string][]byte)}
}

// Save inserts a new record.
func (r *MemoryRepository) Save(_ context.Context, record *Record) error {
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	doc, err := encodeRecord(record)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.docs[record.ID]; exists {
		return fmt.Errorf("intake record %s already exists", record.ID)
	}
	r.docs[record.ID] = doc
	return nil
}

// FindByID loads a record by id.
func (r *MemoryRepository) FindByID(_ context.Context, id string) (*Record, error) {
	r.mu.Lock()
	doc, ok := r.docs[id]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: intake record %s", cierrors.ErrNotFound, id)
	}
	return decodeRecord(doc)
}

// ListByStatus returns records with the given status, newest first.
func (r *MemoryRepository) ListByStatus(_ context.Context, status Status, offset, limit int) (*Page, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	r.mu.Lock()
	var matched []*Record
	for _, doc := range r.docs {
		record, err := decodeRecord(doc)
		if err != nil {
			r.mu.Unlock()
			return nil, err
		}
		if record.Status == status {
			matched = append(matched, record)
		}
	}
	r.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	page := &Page{Total: len(matched)}
	if offset >= len(matched) {
		return page, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	page.Records = matched[offset:end]
	return page, nil
}

// UpdateDecision records an operator decision under the repository lock, so
// concurrent submissions for the same record see exactly one winner.
func (r *MemoryRepository) UpdateDecision(_ context.Context, id string, status Status, decision *Decision) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: intake record %s", cierrors.ErrNotFound, id)
	}

	record, err := decodeRecord(doc)
	if err != nil {
		return nil, err
	}
	if record.Status != StatusPendingReview {
		return nil, fmt.Errorf("%w: intake record %s is %s, not pending_review",
			cierrors.ErrInvalidState, id, record.Status)
	}

	record.Status = status
	record.Decision = decision
	record.UpdatedAt = time.Now().UTC()

	updated, err := encodeRecord(record)
	if err != nil {
		return nil, err
	}
	r.docs[id] = updated
	return record, nil
}
