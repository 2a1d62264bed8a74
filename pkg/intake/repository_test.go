package intake

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cierrors "github.com/brightlane/crm-intake/pkg/errors"
)

func fullRecord() *Record {
	return &Record{
		ID: uuid.NewString(),
		RawEmail: RawEmail{
			From:    "Jane Carter <jane@acme.example>",
			To:      FlexStrings{"support@brightlane.example"},
			Subject: "Quote request",
			Text:    "Could you send pricing?\n> old quoted reply",
			HTML:    "<p>Could you send pricing?</p>",
		},
		Email: NormalizedEmail{
			From: Address{Email: "jane@acme.example", Name: "Jane Carter"},
			To:   []Address{{Email: "support@brightlane.example"}},
			Headers: Headers{
				Subject: "Quote request",
				Date:    time.Date(2025, 3, 10, 8, 15, 0, 0, time.UTC),
			},
			Body: Body{
				RawHTML:        "<p>Could you send pricing?</p>",
				RawText:        "Could you send pricing?\n> old quoted reply",
				NormalizedText: "Could you send pricing?",
			},
			ReceivedAt: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
		},
		AI: AIResult{
			Summary: Summary{Text: "Pricing request.", KeyPoints: []string{"wants pricing"}},
			Intent:  IntentRequest,
			Entities: []Entity{
				{Type: EntityPerson, Value: "Jane Carter", Confidence: 0.95},
				{Type: EntityMoney, Value: "$5,000", Confidence: 0.7},
			},
			Confidence: Confidence{Score: 0.62, Reasoning: "some ambiguity in scope"},
		},
		Recommendations: Recommendations{
			Tasks: []TaskRecommendation{
				{Title: "Send pricing", Description: "Reply with premium pricing", Priority: "high", DueDate: "2025-03-12"},
			},
			Deals: []DealRecommendation{
				{ContactEmail: "jane@acme.example", Stage: "qualification", Value: 5000, Notes: "premium interest"},
			},
		},
		Status:          StatusPendingReview,
		SenderEmail:     "jane@acme.example",
		Subject:         "Quote request",
		ConfidenceScore: 0.62,
	}
}

func TestMemoryRepositoryRoundTrip(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	record := fullRecord()

	require.NoError(t, repo.Save(ctx, record))

	loaded, err := repo.FindByID(ctx, record.ID)
	require.NoError(t, err)

	assert.Equal(t, record.ID, loaded.ID)
	assert.Equal(t, record.RawEmail, loaded.RawEmail)
	assert.Equal(t, record.Email.Body, loaded.Email.Body)
	assert.Equal(t, record.AI, loaded.AI)
	assert.Equal(t, record.Recommendations, loaded.Recommendations)
	assert.Equal(t, record.Status, loaded.Status)
	assert.Equal(t, record.ConfidenceScore, loaded.ConfidenceScore)
	assert.Nil(t, loaded.Decision)
}

func TestMemoryRepositoryFindMissing(t *testing.T) {
	repo := NewMemoryRepository()
	_, err := repo.FindByID(context.Background(), uuid.NewString())
	assert.True(t, cierrors.IsNotFound(err))
}

func TestMemoryRepositoryDuplicateSave(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	record := fullRecord()

	require.NoError(t, repo.Save(ctx, record))
	assert.Error(t, repo.Save(ctx, record))
}

func TestMemoryRepositoryListByStatus(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		record := fullRecord()
		record.ID = uuid.NewString()
		record.CreatedAt = time.Date(2025, 3, 1+i, 12, 0, 0, 0, time.UTC)
		require.NoError(t, repo.Save(ctx, record))
	}
	approved := fullRecord()
	approved.ID = uuid.NewString()
	approved.Status = StatusAutoApproved
	require.NoError(t, repo.Save(ctx, approved))

	page, err := repo.ListByStatus(ctx, StatusPendingReview, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	require.Len(t, page.Records, 3)
	for i := 1; i < len(page.Records); i++ {
		assert.True(t, page.Records[i-1].CreatedAt.After(page.Records[i].CreatedAt),
			"records must be newest first")
	}

	rest, err := repo.ListByStatus(ctx, StatusPendingReview, 3, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, rest.Total)
	assert.Len(t, rest.Records, 2)

	beyond, err := repo.ListByStatus(ctx, StatusPendingReview, 10, 3)
	require.NoError(t, err)
	assert.Empty(t, beyond.Records)
	assert.Equal(t, 5, beyond.Total)
}

func TestUpdateDecisionHappyPath(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	record := fullRecord()
	require.NoError(t, repo.Save(ctx, record))

	decision := &Decision{
		ApprovedTaskIndices: []int{0},
		CreatedTaskIDs:      []string{"task-1000"},
		DecidedBy:           "pat",
		DecidedAt:           time.Now().UTC(),
	}
	updated, err := repo.UpdateDecision(ctx, record.ID, StatusUserApproved, decision)
	require.NoError(t, err)
	assert.Equal(t, StatusUserApproved, updated.Status)
	require.NotNil(t, updated.Decision)
	assert.Equal(t, "pat", updated.Decision.DecidedBy)

	loaded, err := repo.FindByID(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusUserApproved, loaded.Status)
	assert.Equal(t, []string{"task-1000"}, loaded.Decision.CreatedTaskIDs)
}

func TestUpdateDecisionMissingRecord(t *testing.T) {
	repo := NewMemoryRepository()
	_, err := repo.UpdateDecision(context.Background(), uuid.NewString(), StatusRejected, &Decision{})
	assert.True(t, cierrors.IsNotFound(err))
}

func TestUpdateDecisionNonPendingRecord(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	record := fullRecord()
	record.Status = StatusAutoApproved
	require.NoError(t, repo.Save(ctx, record))

	_, err := repo.UpdateDecision(ctx, record.ID, StatusUserApproved, &Decision{})
	assert.True(t, cierrors.IsInvalidState(err))
	assert.False(t, cierrors.IsNotFound(err))
}

func TestUpdateDecisionSecondSubmissionRejected(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	record := fullRecord()
	require.NoError(t, repo.Save(ctx, record))

	_, err := repo.UpdateDecision(ctx, record.ID, StatusUserApproved, &Decision{DecidedBy: "pat"})
	require.NoError(t, err)

	_, err = repo.UpdateDecision(ctx, record.ID, StatusRejected, &Decision{DecidedBy: "sam"})
	assert.True(t, cierrors.IsInvalidState(err))
}

func TestUpdateDecisionConcurrentExactlyOneWinner(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	record := fullRecord()
	require.NoError(t, repo.Save(ctx, record))

	const workers = 16
	var wg sync.WaitGroup
	results := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := repo.UpdateDecision(ctx, record.ID, StatusUserApproved, &Decision{
				DecidedBy: fmt.Sprintf("worker-%d", n),
				DecidedAt: time.Now().UTC(),
			})
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	var winners, losers int
	for err := range results {
		switch {
		case err == nil:
			winners++
		case cierrors.IsInvalidState(err):
			losers++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, winners, "exactly one submission must win")
	assert.Equal(t, workers-1, losers)

	loaded, err := repo.FindByID(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusUserApproved, loaded.Status)
	require.NotNil(t, loaded.Decision)
}
