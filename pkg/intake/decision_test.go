package intake

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cierrors "github.com/brightlane/crm-intake/pkg/errors"
	"github.com/brightlane/crm-intake/pkg/logging"
)

// recordingTaskService creates ids and can fail after a set number of calls.
type recordingTaskService struct {
	mu        sync.Mutex
	created   []TaskRecommendation
	failAfter int
}

func (s *recordingTaskService) CreateTask(_ context.Context, rec TaskRecommendation) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAfter > 0 && len(s.created) >= s.failAfter {
		return "", errors.New("task backend unavailable")
	}
	s.created = append(s.created, rec)
	return fmt.Sprintf("task-%d", 1000+len(s.created)-1), nil
}

type recordingDealService struct {
	mu      sync.Mutex
	created []DealRecommendation
	fail    bool
}

func (s *recordingDealService) CreateDeal(_ context.Context, rec DealRecommendation) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return "", errors.New("deal backend unavailable")
	}
	s.created = append(s.created, rec)
	return fmt.Sprintf("deal-%d", 2000+len(s.created)-1), nil
}

func pendingRecord(t *testing.T, repo Repository) *Record {
	t.Helper()
	record := fullRecord()
	record.Recommendations = Recommendations{
		Tasks: []TaskRecommendation{
			{Title: "Send pricing", Priority: "high"},
			{Title: "Schedule call", Priority: "medium"},
		},
		Deals: []DealRecommendation{
			{ContactEmail: "jane@acme.example", Stage: "qualification", Value: 5000},
		},
	}
	require.NoError(t, repo.Save(context.Background(), record))
	return record
}

func newTestWorkflow(repo Repository, tasks TaskService, deals DealService, publisher EventPublisher) *DecisionWorkflow {
	return NewDecisionWorkflow(repo, tasks, deals, publisher, nil, logging.NewNopLogger())
}

func TestSubmitApprovesSubset(t *testing.T) {
	repo := NewMemoryRepository()
	record := pendingRecord(t, repo)
	tasks := &recordingTaskService{}
	deals := &recordingDealService{}
	publisher := &fakePublisher{}
	workflow := newTestWorkflow(repo, tasks, deals, publisher)

	updated, err := workflow.Submit(context.Background(), DecisionRequest{
		IntakeID:            record.ID,
		ApprovedTaskIndices: []int{1},
		ApprovedDealIndices: []int{0},
		DecidedBy:           "pat",
	})
	require.NoError(t, err)

	assert.Equal(t, StatusUserApproved, updated.Status)
	require.NotNil(t, updated.Decision)
	assert.Equal(t, []int{1}, updated.Decision.ApprovedTaskIndices)
	assert.Equal(t, []string{"task-1000"}, updated.Decision.CreatedTaskIDs)
	assert.Equal(t, []string{"deal-2000"}, updated.Decision.CreatedDealIDs)
	assert.Equal(t, "pat", updated.Decision.DecidedBy)

	require.Len(t, tasks.created, 1)
	assert.Equal(t, "Schedule call", tasks.created[0].Title, "only the approved task is created")
	assert.Len(t, deals.created, 1)

	require.Len(t, publisher.decisions, 1)
	assert.Equal(t, record.ID, publisher.decisions[0].ID)
}

func TestSubmitEmptyApprovalsRejects(t *testing.T) {
	repo := NewMemoryRepository()
	record := pendingRecord(t, repo)
	tasks := &recordingTaskService{}
	deals := &recordingDealService{}
	workflow := newTestWorkflow(repo, tasks, deals, &fakePublisher{})

	updated, err := workflow.Submit(context.Background(), DecisionRequest{
		IntakeID:  record.ID,
		DecidedBy: "pat",
	})
	require.NoError(t, err)

	assert.Equal(t, StatusRejected, updated.Status)
	assert.Empty(t, tasks.created, "nothing may be created on rejection")
	assert.Empty(t, deals.created)
}

func TestSubmitMissingRecord(t *testing.T) {
	workflow := newTestWorkflow(NewMemoryRepository(), &recordingTaskService{}, &recordingDealService{}, &fakePublisher{})

	_, err := workflow.Submit(context.Background(), DecisionRequest{IntakeID: uuid.NewString()})
	assert.True(t, cierrors.IsNotFound(err))
}

func TestSubmitAlreadyDecided(t *testing.T) {
	repo := NewMemoryRepository()
	record := fullRecord()
	record.Status = StatusAutoApproved
	require.NoError(t, repo.Save(context.Background(), record))
	workflow := newTestWorkflow(repo, &recordingTaskService{}, &recordingDealService{}, &fakePublisher{})

	_, err := workflow.Submit(context.Background(), DecisionRequest{IntakeID: record.ID})
	assert.True(t, cierrors.IsInvalidState(err))
}

func TestSubmitValidatesIndicesBeforeSideEffects(t *testing.T) {
	repo := NewMemoryRepository()
	record := pendingRecord(t, repo)
	tasks := &recordingTaskService{}
	deals := &recordingDealService{}
	workflow := newTestWorkflow(repo, tasks, deals, &fakePublisher{})

	tests := []struct {
		name string
		req  DecisionRequest
	}{
		{"task index out of range", DecisionRequest{IntakeID: record.ID, ApprovedTaskIndices: []int{0, 5}}},
		{"negative task index", DecisionRequest{IntakeID: record.ID, ApprovedTaskIndices: []int{-1}}},
		{"deal index out of range", DecisionRequest{IntakeID: record.ID, ApprovedTaskIndices: []int{0}, ApprovedDealIndices: []int{3}}},
		{"duplicate task index", DecisionRequest{IntakeID: record.ID, ApprovedTaskIndices: []int{0, 0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := workflow.Submit(context.Background(), tt.req)
			assert.True(t, cierrors.IsValidation(err), "want validation error, got %v", err)
		})
	}

	assert.Empty(t, tasks.created, "no side effects on validation failure")
	assert.Empty(t, deals.created)

	loaded, err := repo.FindByID(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPendingReview, loaded.Status, "record must remain pending")
}

func TestSubmitPartialDispatchFailure(t *testing.T) {
	repo := NewMemoryRepository()
	record := pendingRecord(t, repo)
	tasks := &recordingTaskService{failAfter: 1}
	deals := &recordingDealService{}
	workflow := newTestWorkflow(repo, tasks, deals, &fakePublisher{})

	_, err := workflow.Submit(context.Background(), DecisionRequest{
		IntakeID:            record.ID,
		ApprovedTaskIndices: []int{0, 1},
		ApprovedDealIndices: []int{0},
		DecidedBy:           "pat",
	})
	require.Error(t, err)

	partial, ok := cierrors.IsPartialDispatch(err)
	require.True(t, ok, "want PartialDispatchError, got %v", err)
	assert.Equal(t, []int{0}, partial.SucceededTaskIndices)
	assert.Empty(t, partial.SucceededDealIndices)
	assert.Equal(t, "task", partial.FailedKind)
	assert.Equal(t, 1, partial.FailedIndex)

	assert.Empty(t, deals.created, "deals are dispatched after tasks")

	loaded, err := repo.FindByID(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPendingReview, loaded.Status, "record stays pending after partial failure")
}

func TestSubmitDealDispatchFailure(t *testing.T) {
	repo := NewMemoryRepository()
	record := pendingRecord(t, repo)
	tasks := &recordingTaskService{}
	deals := &recordingDealService{fail: true}
	workflow := newTestWorkflow(repo, tasks, deals, &fakePublisher{})

	_, err := workflow.Submit(context.Background(), DecisionRequest{
		IntakeID:            record.ID,
		ApprovedTaskIndices: []int{0},
		ApprovedDealIndices: []int{0},
	})
	require.Error(t, err)

	partial, ok := cierrors.IsPartialDispatch(err)
	require.True(t, ok)
	assert.Equal(t, []int{0}, partial.SucceededTaskIndices)
	assert.Equal(t, "deal", partial.FailedKind)
	assert.Equal(t, 0, partial.FailedIndex)
}

func TestSubmitPublishFailureSwallowed(t *testing.T) {
	repo := NewMemoryRepository()
	record := pendingRecord(t, repo)
	workflow := newTestWorkflow(repo, &recordingTaskService{}, &recordingDealService{},
		&fakePublisher{err: errors.New("redis down")})

	updated, err := workflow.Submit(context.Background(), DecisionRequest{
		IntakeID:            record.ID,
		ApprovedTaskIndices: []int{0},
		DecidedBy:           "pat",
	})
	require.NoError(t, err, "publish failures must not fail the decision")
	assert.Equal(t, StatusUserApproved, updated.Status)
}

func TestSubmitConcurrentDoubleSubmit(t *testing.T) {
	repo := NewMemoryRepository()
	record := pendingRecord(t, repo)
	workflow := newTestWorkflow(repo, &recordingTaskService{}, &recordingDealService{}, &fakePublisher{})

	const submitters = 8
	var wg sync.WaitGroup
	results := make(chan error, submitters)

	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := workflow.Submit(context.Background(), DecisionRequest{
				IntakeID:            record.ID,
				ApprovedTaskIndices: []int{0},
				DecidedBy:           fmt.Sprintf("user-%d", n),
			})
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	var winners, conflicts int
	for err := range results {
		switch {
		case err == nil:
			winners++
		case cierrors.IsInvalidState(err):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, winners, "exactly one submission must win")
	assert.Equal(t, submitters-1, conflicts)
}
