package intake

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightlane/crm-intake/pkg/crm"
	cierrors "github.com/brightlane/crm-intake/pkg/errors"
	"github.com/brightlane/crm-intake/pkg/logging"
)

// fakeAnalyzer returns a canned analysis or error.
type fakeAnalyzer struct {
	analysis *Analysis
	err      error
	seenCtx  crm.Context
}

func (f *fakeAnalyzer) Analyze(_ context.Context, _ *NormalizedEmail, crmCtx crm.Context) (*Analysis, error) {
	f.seenCtx = crmCtx
	if f.err != nil {
		return nil, f.err
	}
	return f.analysis, nil
}

// fakePublisher records published records and can fail on demand.
type fakePublisher struct {
	processed []*Record
	decisions []*Record
	err       error
}

func (f *fakePublisher) PublishIntakeProcessed(_ context.Context, record *Record) error {
	if f.err != nil {
		return f.err
	}
	f.processed = append(f.processed, record)
	return nil
}

func (f *fakePublisher) PublishDecisionSubmitted(_ context.Context, record *Record) error {
	if f.err != nil {
		return f.err
	}
	f.decisions = append(f.decisions, record)
	return nil
}

func cannedAnalysis(score float64) *Analysis {
	return &Analysis{
		Result: AIResult{
			Summary:    Summary{Text: "Pricing request.", KeyPoints: []string{"wants pricing"}},
			Intent:     IntentRequest,
			Confidence: Confidence{Score: score, Reasoning: "test"},
		},
		Recommendations: Recommendations{
			Tasks: []TaskRecommendation{
				{Title: "Send pricing", Priority: "high"},
				{Title: "Schedule call", Priority: "medium"},
			},
			Deals: []DealRecommendation{
				{ContactEmail: "jane@acme.example", Stage: "qualification", Value: 5000},
			},
		},
		Attempts: 1,
	}
}

func rawQuoteRequest() RawEmail {
	return RawEmail{
		From:    "Jane Carter <jane@acme.example>",
		To:      FlexStrings{"support@brightlane.example"},
		Subject: "Quote request",
		Text:    "Could you send pricing for the premium plan?",
	}
}

func newTestPipeline(analyzer Analyzer, repo Repository, publisher EventPublisher) *Pipeline {
	return NewPipeline(PipelineDeps{
		Analyzer:   analyzer,
		Policy:     DefaultPolicy(),
		Repository: repo,
		Publisher:  publisher,
		Logger:     logging.NewNopLogger(),
	})
}

func TestProcessHighConfidenceAutoApproves(t *testing.T) {
	repo := NewMemoryRepository()
	publisher := &fakePublisher{}
	pipeline := newTestPipeline(&fakeAnalyzer{analysis: cannedAnalysis(0.92)}, repo, publisher)

	record, err := pipeline.Process(context.Background(), rawQuoteRequest())
	require.NoError(t, err)

	assert.Equal(t, StatusAutoApproved, record.Status)
	assert.Equal(t, "jane@acme.example", record.SenderEmail)
	assert.Equal(t, 0.92, record.ConfidenceScore)
	assert.NotEmpty(t, record.ID)

	stored, err := repo.FindByID(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAutoApproved, stored.Status)

	require.Len(t, publisher.processed, 1)
	assert.Equal(t, record.ID, publisher.processed[0].ID)
}

func TestProcessMediumConfidencePendsReview(t *testing.T) {
	repo := NewMemoryRepository()
	pipeline := newTestPipeline(&fakeAnalyzer{analysis: cannedAnalysis(0.62)}, repo, &fakePublisher{})

	record, err := pipeline.Process(context.Background(), rawQuoteRequest())
	require.NoError(t, err)
	assert.Equal(t, StatusPendingReview, record.Status)
}

func TestProcessThresholdBoundaryAutoApproves(t *testing.T) {
	repo := NewMemoryRepository()
	pipeline := newTestPipeline(&fakeAnalyzer{analysis: cannedAnalysis(0.85)}, repo, &fakePublisher{})

	record, err := pipeline.Process(context.Background(), rawQuoteRequest())
	require.NoError(t, err)
	assert.Equal(t, StatusAutoApproved, record.Status)
}

func TestProcessNormalizationFailureAborts(t *testing.T) {
	repo := NewMemoryRepository()
	publisher := &fakePublisher{}
	pipeline := newTestPipeline(&fakeAnalyzer{analysis: cannedAnalysis(0.9)}, repo, publisher)

	_, err := pipeline.Process(context.Background(), RawEmail{Text: "no sender"})
	require.Error(t, err)
	assert.True(t, cierrors.IsNormalization(err))

	page, err := repo.ListByStatus(context.Background(), StatusPendingReview, 0, 10)
	require.NoError(t, err)
	assert.Zero(t, page.Total, "nothing may be stored on normalization failure")
	assert.Empty(t, publisher.processed)
}

func TestProcessAnalysisFailureAborts(t *testing.T) {
	repo := NewMemoryRepository()
	analyzer := &fakeAnalyzer{err: cierrors.ErrAIAnalysis}
	pipeline := newTestPipeline(analyzer, repo, &fakePublisher{})

	_, err := pipeline.Process(context.Background(), rawQuoteRequest())
	require.Error(t, err)
	assert.True(t, cierrors.IsAIAnalysis(err))

	page, err := repo.ListByStatus(context.Background(), StatusPendingReview, 0, 10)
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestProcessPublishFailureSwallowed(t *testing.T) {
	repo := NewMemoryRepository()
	publisher := &fakePublisher{err: errors.New("redis down")}
	pipeline := newTestPipeline(&fakeAnalyzer{analysis: cannedAnalysis(0.9)}, repo, publisher)

	record, err := pipeline.Process(context.Background(), rawQuoteRequest())
	require.NoError(t, err, "publish failures must not fail the workflow")

	stored, err := repo.FindByID(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAutoApproved, stored.Status)
}

type failingLookup struct{}

func (failingLookup) ContactByEmail(context.Context, string) (*crm.Contact, error) {
	return nil, errors.New("database unreachable")
}

func (failingLookup) RecentInteractions(context.Context, string, int) ([]crm.Interaction, error) {
	return nil, errors.New("database unreachable")
}

func TestProcessCRMLookupFailureIsBestEffort(t *testing.T) {
	repo := NewMemoryRepository()
	analyzer := &fakeAnalyzer{analysis: cannedAnalysis(0.9)}
	pipeline := NewPipeline(PipelineDeps{
		Lookup:     failingLookup{},
		Analyzer:   analyzer,
		Policy:     DefaultPolicy(),
		Repository: repo,
		Publisher:  &fakePublisher{},
		Logger:     logging.NewNopLogger(),
	})

	record, err := pipeline.Process(context.Background(), rawQuoteRequest())
	require.NoError(t, err, "CRM lookup failures must not fail the workflow")
	assert.Equal(t, StatusAutoApproved, record.Status)
	assert.False(t, analyzer.seenCtx.Known(), "analysis proceeds with empty context")
}

func TestProcessPassesCRMContextToAnalyzer(t *testing.T) {
	repo := NewMemoryRepository()
	analyzer := &fakeAnalyzer{analysis: cannedAnalysis(0.9)}
	lookup := &stubCRMLookup{
		contact: &crm.Contact{ID: "c-1", Name: "Jane Carter", Email: "jane@acme.example"},
	}
	pipeline := NewPipeline(PipelineDeps{
		Lookup:     lookup,
		Analyzer:   analyzer,
		Policy:     DefaultPolicy(),
		Repository: repo,
		Publisher:  &fakePublisher{},
		Logger:     logging.NewNopLogger(),
	})

	_, err := pipeline.Process(context.Background(), rawQuoteRequest())
	require.NoError(t, err)
	require.True(t, analyzer.seenCtx.Known())
	assert.Equal(t, "c-1", analyzer.seenCtx.Contact.ID)
}

type stubCRMLookup struct {
	contact *crm.Contact
}

func (s *stubCRMLookup) ContactByEmail(_ context.Context, email string) (*crm.Contact, error) {
	if s.contact != nil && s.contact.Email == email {
		return s.contact, nil
	}
	return nil, nil
}

func (s *stubCRMLookup) RecentInteractions(context.Context, string, int) ([]crm.Interaction, error) {
	return nil, nil
}
