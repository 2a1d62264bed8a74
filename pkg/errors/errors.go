// Package errors provides common domain error types for the intake service.
//
// This package defines sentinel errors for the intake workflow conditions like
// "not found" or "invalid state" that can be used across all packages. Using
// typed errors enables consistent error handling patterns with errors.Is()
// checks.
//
// Usage:
//
//	import cierrors "github.com/brightlane/crm-intake/pkg/errors"
//
//	// Return a domain error
//	return nil, cierrors.ErrNotFound
//
//	// Check for domain errors
//	if cierrors.IsNotFound(err) {
//	    // handle not found case
//	}
package errors

import (
	"errors"
	"fmt"
)

// Domain errors - sentinel errors for the intake workflow.
var (
	// ErrNotFound indicates the requested intake record was not found.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates invalid input, such as a recommendation index
	// outside the bounds of the recommendation list.
	ErrValidation = errors.New("validation error")

	// ErrInvalidState indicates the operation is not valid for the record's
	// current status, e.g. deciding an already-decided intake.
	ErrInvalidState = errors.New("invalid state")

	// ErrNormalization indicates the raw email payload was structurally
	// unparseable. The workflow aborts and nothing is persisted.
	ErrNormalization = errors.New("normalization error")

	// ErrAIAnalysis indicates the AI provider exhausted its retries or
	// returned output that could not be parsed after one reparse attempt.
	// The workflow aborts and nothing is persisted.
	ErrAIAnalysis = errors.New("ai analysis error")
)

// IsNotFound reports whether any error in err's chain is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether any error in err's chain is ErrValidation.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsInvalidState reports whether any error in err's chain is ErrInvalidState.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

// IsNormalization reports whether any error in err's chain is ErrNormalization.
func IsNormalization(err error) bool {
	return errors.Is(err, ErrNormalization)
}

// IsAIAnalysis reports whether any error in err's chain is ErrAIAnalysis.
func IsAIAnalysis(err error) bool {
	return errors.Is(err, ErrAIAnalysis)
}

// PartialDispatchError reports that some approved recommendations were
// dispatched to their collaborator before a later one failed. There is no
// transactional rollback across the task and deal services, so the error
// carries the indices that succeeded so an operator can retry only the
// remainder.
type PartialDispatchError struct {
	// SucceededTaskIndices are the task recommendation indices that were
	// created before the failure.
	SucceededTaskIndices []int

	// SucceededDealIndices are the deal recommendation indices that were
	// created before the failure.
	SucceededDealIndices []int

	// FailedKind is "task" or "deal".
	FailedKind string

	// FailedIndex is the recommendation index that failed.
	FailedIndex int

	// Cause is the underlying collaborator error.
	Cause error
}

func (e *PartialDispatchError) Error() string {
	return fmt.Sprintf("partial dispatch: %s recommendation %d failed after %d tasks and %d deals were created: %v",
		e.FailedKind, e.FailedIndex, len(e.SucceededTaskIndices), len(e.SucceededDealIndices), e.Cause)
}

func (e *PartialDispatchError) Unwrap() error {
	return e.Cause
}

// IsPartialDispatch reports whether err is a PartialDispatchError and returns it.
func IsPartialDispatch(err error) (*PartialDispatchError, bool) {
	var pde *PartialDispatchError
	if errors.As(err, &pde) {
		return pde, true
	}
	return nil, false
}
