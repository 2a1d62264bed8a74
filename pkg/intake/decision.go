package intake

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	cierrors "github.com/brightlane/crm-intake/pkg/errors"
	"github.com/brightlane/crm-intake/pkg/intake/observability"
	"github.com/brightlane/crm-intake/pkg/logging"
)

// DecisionRequest is an operator's ruling on a pending intake. Approving no
// items at all rejects the intake.
type DecisionRequest struct {
	IntakeID            string `json:"intake_id"`
	ApprovedTaskIndices []int  `json:"approved_task_indices"`
	ApprovedDealIndices []int  `json:"approved_deal_indices"`
	DecidedBy           string `json:"decided_by"`
}

// DecisionWorkflow applies operator decisions: it validates the approved
// indices, dispatches task and deal creation, and records the outcome.
type DecisionWorkflow struct {
	repo      Repository
	tasks     TaskService
	deals     DealService
	publisher EventPublisher
	metrics   *observability.Metrics
	logger    logging.Logger
	now       func() time.Time
}

// NewDecisionWorkflow assembles the decision workflow.
func NewDecisionWorkflow(repo Repository, tasks TaskService, deals DealService, publisher EventPublisher, metrics *observability.Metrics, logger logging.Logger) *DecisionWorkflow {
	if metrics == nil {
		metrics = observability.NewTestMetrics()
	}
	return &DecisionWorkflow{
		repo:      repo,
		tasks:     tasks,
		deals:     deals,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger.With(logging.F("component", "decision_workflow")),
		now:       time.Now,
	}
}

// Submit applies one operator decision. All approved indices are validated
// before any task or deal is created. A dispatch failure partway through
// returns a PartialDispatchError naming what succeeded; the record stays
// pending_review so the operator can retry the remainder.
func (w *DecisionWorkflow) Submit(ctx context.Context, req DecisionRequest) (*Record, error) {
	ctx, span := observability.StartSpan(ctx, "intake.SubmitDecision",
		attribute.String("intake_id", req.IntakeID))
	var retErr error
	defer func() { observability.EndSpan(span, retErr) }()

	record, err := w.repo.FindByID(ctx, req.IntakeID)
	if err != nil {
		retErr = err
		return nil, err
	}
	if record.Status != StatusPendingReview {
		retErr = fmt.Errorf("%w: intake record %s is %s, not pending_review",
			cierrors.ErrInvalidState, record.ID, record.Status)
		return nil, retErr
	}

	if err := validateIndices(req.ApprovedTaskIndices, len(record.Recommendations.Tasks), "task"); err != nil {
		retErr = err
		return nil, err
	}
	if err := validateIndices(req.ApprovedDealIndices, len(record.Recommendations.Deals), "deal"); err != nil {
		retErr = err
		return nil, err
	}

	decision := &Decision{
		ApprovedTaskIndices: req.ApprovedTaskIndices,
		ApprovedDealIndices: req.ApprovedDealIndices,
		DecidedBy:           req.DecidedBy,
		DecidedAt:           w.now().UTC(),
	}

	if err := w.dispatch(ctx, record, decision); err != nil {
		w.metrics.DecisionsSubmitted.WithLabelValues("partial_failure").Inc()
		retErr = err
		return nil, err
	}

	status := StatusRejected
	if decision.HasApprovals() {
		status = StatusUserApproved
	}

	updated, err := w.repo.UpdateDecision(ctx, record.ID, status, decision)
	if err != nil {
		retErr = err
		return nil, err
	}
	w.metrics.DecisionsSubmitted.WithLabelValues(string(status)).Inc()

	w.publishDecision(ctx, updated)

	w.logger.Info("decision submitted",
		logging.F("intake_id", updated.ID),
		logging.F("status", string(updated.Status)),
		logging.F("decided_by", req.DecidedBy),
		logging.F("tasks_created", len(decision.CreatedTaskIDs)),
		logging.F("deals_created", len(decision.CreatedDealIDs)),
	)
	return updated, nil
}

// dispatch creates every approved task, then every approved deal, recording
// created ids on the decision. On the first failure it reports everything
// that already succeeded.
func (w *DecisionWorkflow) dispatch(ctx context.Context, record *Record, decision *Decision) error {
	var doneTasks, doneDeals []int

	for _, idx := range decision.ApprovedTaskIndices {
		id, err := w.tasks.CreateTask(ctx, record.Recommendations.Tasks[idx])
		if err != nil {
			return &cierrors.PartialDispatchError{
				SucceededTaskIndices: doneTasks,
				SucceededDealIndices: doneDeals,
				FailedKind:           "task",
				FailedIndex:          idx,
				Cause:                err,
			}
		}
		decision.CreatedTaskIDs = append(decision.CreatedTaskIDs, id)
		doneTasks = append(doneTasks, idx)
	}

	for _, idx := range decision.ApprovedDealIndices {
		id, err := w.deals.CreateDeal(ctx, record.Recommendations.Deals[idx])
		if err != nil {
			return &cierrors.PartialDispatchError{
				SucceededTaskIndices: doneTasks,
				SucceededDealIndices: doneDeals,
				FailedKind:           "deal",
				FailedIndex:          idx,
				Cause:                err,
			}
		}
		decision.CreatedDealIDs = append(decision.CreatedDealIDs, id)
		doneDeals = append(doneDeals, idx)
	}

	return nil
}

// validateIndices checks that every index is in [0, count) and appears only
// once.
func validateIndices(indices []int, count int, kind string) error {
	seen := make(map[int]bool, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= count {
			return fmt.Errorf("%w: %s index %d out of range, have %d recommendations",
				cierrors.ErrValidation, kind, idx, count)
		}
		if seen[idx] {
			return fmt.Errorf("%w: duplicate %s index %d", cierrors.ErrValidation, kind, idx)
		}
		seen[idx] = true
	}
	return nil
}

// publishDecision emits the decision event, swallowing failures.
func (w *DecisionWorkflow) publishDecision(ctx context.Context, record *Record) {
	if w.publisher == nil {
		return
	}
	if err := w.publisher.PublishDecisionSubmitted(ctx, record); err != nil {
		w.metrics.PublishFailures.Inc()
		w.logger.Warn("failed to publish decision event",
			logging.F("intake_id", record.ID),
			logging.Err(err),
		)
	}
}
