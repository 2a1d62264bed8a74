package intake

import (
	"context"
	"fmt"
	"sync"

	"github.com/brightlane/crm-intake/pkg/logging"
)

// TaskService creates CRM tasks from approved recommendations.
type TaskService interface {
	// CreateTask creates a task and returns its id.
	CreateTask(ctx context.Context, rec TaskRecommendation) (string, error)
}

// DealService creates CRM deals from approved recommendations.
type DealService interface {
	// CreateDeal creates a deal and returns its id.
	CreateDeal(ctx context.Context, rec DealRecommendation) (string, error)
}

// StubTaskService logs task creations and hands out sequential ids. Stands
// in until the task module of the CRM grows a real API.
type StubTaskService struct {
	mu     sync.Mutex
	nextID int
	logger logging.Logger
}

// NewStubTaskService creates a stub task service.
func NewStubTaskService(logger logging.Logger) *StubTaskService {
	return &StubTaskService{
		nextID: 1000,
		logger: logger.With(logging.F("component", "task_service")),
	}
}

func (s *StubTaskService) CreateTask(_ context.Context, rec TaskRecommendation) (string, error) {
	s.mu.Lock()
	id := fmt.Sprintf("task-%d", s.nextID)
	s.nextID++
	s.mu.Unlock()

	s.logger.Info("task created",
		logging.F("task_id", id),
		logging.F("title", rec.Title),
		logging.F("priority", rec.Priority),
	)
	return id, nil
}

// StubDealService logs deal creations and hands out sequential ids.
type StubDealService struct {
	mu     sync.Mutex
	nextID int
	logger logging.Logger
}

// NewStubDealService creates a stub deal service.
func NewStubDealService(logger logging.Logger) *StubDealService {
	return &StubDealService{
		nextID: 2000,
		logger: logger.With(logging.F("component", "deal_service")),
	}
}

func (s *StubDealService) CreateDeal(_ context.Context, rec DealRecommendation) (string, error) {
	s.mu.Lock()
	id := fmt.Sprintf("deal-%d", s.nextID)
	s.nextID++
	s.mu.Unlock()

	s.logger.Info("deal created",
		logging.F("deal_id", id),
		logging.F("contact_email", rec.ContactEmail),
		logging.F("stage", rec.Stage),
	)
	return id, nil
}
