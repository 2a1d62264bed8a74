package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/brightlane/crm-intake/pkg/crm"
	cierrors "github.com/brightlane/crm-intake/pkg/errors"
	"github.com/brightlane/crm-intake/pkg/intake"
	"github.com/brightlane/crm-intake/pkg/logging"
)

const (
	// maxAttempts bounds completion calls for transient provider failures.
	maxAttempts = 3

	// backoffBase is the delay before the second attempt; it doubles for
	// each attempt after that.
	backoffBase = 2 * time.Second
)

const systemPrompt = `You are an assistant for a small-office CRM. You analyze inbound customer emails and extract structured information to help staff triage them. You always respond with a single valid JSON object and nothing else.`

const jsonReinforcement = "\n\nIMPORTANT: Respond with valid JSON only. No markdown, no explanations."

// Engine turns a normalized email plus its CRM context into a structured
// analysis by prompting an LLM provider. It satisfies intake.Analyzer.
type Engine struct {
	provider Provider
	logger   logging.Logger

	// sleep is replaceable in tests to assert backoff without waiting.
	sleep func(context.Context, time.Duration) error
}

// NewEngine creates an analysis engine over the given provider.
func NewEngine(provider Provider, logger logging.Logger) *Engine {
	return &Engine{
		provider: provider,
		logger:   logger.With(logging.F("component", "ai_engine")),
		sleep:    sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// analysisPayload mirrors the JSON object the model is asked to produce.
type analysisPayload struct {
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"key_points"`
	Intent    string   `json:"intent"`
	Entities  []struct {
		Type       string  `json:"type"`
		Value      string  `json:"value"`
		Confidence float64 `json:"confidence"`
	} `json:"entities"`
	TaskRecommendations []intake.TaskRecommendation `json:"task_recommendations"`
	DealRecommendations []intake.DealRecommendation `json:"deal_recommendations"`
	Confidence          struct {
		Score     float64 `json:"score"`
		Reasoning string  `json:"reasoning"`
	} `json:"confidence"`
}

// Analyze runs the full analysis. Transient provider failures are retried
// up to maxAttempts times with doubling backoff. A response that is not
// valid JSON gets exactly one reparse attempt with a reinforced prompt
// before the analysis fails.
func (e *Engine) Analyze(ctx context.Context, email *intake.NormalizedEmail, crmCtx crm.Context) (*intake.Analysis, error) {
	req := CompletionRequest{
		SystemPrompt: systemPrompt,
		Prompt:       BuildPrompt(email, crmCtx),
	}

	resp, attempts, err := e.completeWithRetry(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cierrors.ErrAIAnalysis, err)
	}

	payload, parseErr := parsePayload(resp.Content)
	if parseErr != nil {
		e.logger.Warn("malformed analysis response, reparsing",
			logging.F("provider", e.provider.Name()),
			logging.Err(parseErr),
		)
		req.Prompt += jsonReinforcement
		resp, err = e.provider.Complete(ctx, req)
		attempts++
		if err != nil {
			return nil, fmt.Errorf("%w: reparse attempt failed: %v", cierrors.ErrAIAnalysis, err)
		}
		payload, parseErr = parsePayload(resp.Content)
		if parseErr != nil {
			return nil, fmt.Errorf("%w: malformed response after reparse: %v", cierrors.ErrAIAnalysis, parseErr)
		}
	}

	analysis := buildAnalysis(payload)
	analysis.Model = resp.Model
	analysis.Attempts = attempts

	e.logger.Info("email analyzed",
		logging.F("provider", e.provider.Name()),
		logging.F("intent", string(analysis.Result.Intent)),
		logging.F("confidence", analysis.Result.Confidence.Score),
		logging.F("recommendations", analysis.Recommendations.Total()),
		logging.F("attempts", attempts),
	)
	return analysis, nil
}

// completeWithRetry calls the provider, retrying transient failures with
// doubling backoff. Returns the attempt count alongside the response.
func (e *Engine) completeWithRetry(ctx context.Context, req CompletionRequest) (*CompletionResponse, int, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			delay := backoffBase * time.Duration(1<<(attempt-2))
			e.logger.Debug("retrying completion",
				logging.F("attempt", attempt),
				logging.F("delay", delay.String()),
			)
			if err := e.sleep(ctx, delay); err != nil {
				return nil, attempt, err
			}
		}

		resp, err := e.provider.Complete(ctx, req)
		if err == nil {
			return resp, attempt, nil
		}
		lastErr = err
		if !IsTransient(err) || ctx.Err() != nil {
			return nil, attempt, err
		}
	}
	return nil, maxAttempts, fmt.Errorf("analysis failed after %d attempts: %w", maxAttempts, lastErr)
}

// parsePayload parses the model response, tolerating markdown code fences.
func parsePayload(content string) (*analysisPayload, error) {
	cleaned := strings.TrimSpace(content)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var payload analysisPayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil, fmt.Errorf("parse JSON: %w", err)
	}
	return &payload, nil
}

// buildAnalysis converts the wire payload into domain types, clamping every
// confidence into [0, 1] and defaulting unknown intents.
func buildAnalysis(payload *analysisPayload) *intake.Analysis {
	result := intake.AIResult{
		Summary: intake.Summary{
			Text:      payload.Summary,
			KeyPoints: payload.KeyPoints,
		},
		Intent: intake.ParseIntent(payload.Intent),
		Confidence: intake.Confidence{
			Score:     clamp01(payload.Confidence.Score),
			Reasoning: payload.Confidence.Reasoning,
		},
	}
	for _, ent := range payload.Entities {
		result.Entities = append(result.Entities, intake.Entity{
			Type:       intake.EntityType(strings.ToUpper(ent.Type)),
			Value:      ent.Value,
			Confidence: clamp01(ent.Confidence),
		})
	}

	return &intake.Analysis{
		Result: result,
		Recommendations: intake.Recommendations{
			Tasks: payload.TaskRecommendations,
			Deals: payload.DealRecommendations,
		},
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// BuildPrompt renders the analysis prompt from the email and the sender's
// CRM context.
func BuildPrompt(email *intake.NormalizedEmail, crmCtx crm.Context) string {
	var b strings.Builder

	b.WriteString("Analyze the following inbound email for a small-office CRM.\n\n")

	b.WriteString("## Email\n")
	fmt.Fprintf(&b, "From: %s\n", email.From.String())
	fmt.Fprintf(&b, "Subject: %s\n", email.Headers.Subject)
	fmt.Fprintf(&b, "Date: %s\n", email.Headers.Date.Format(time.RFC1123Z))
	if email.IsReply() {
		b.WriteString("Note: this email is a reply in an existing thread.\n")
	}
	b.WriteString("\n")
	b.WriteString(email.Body.NormalizedText)
	b.WriteString("\n\n")

	b.WriteString("## Sender context\n")
	if crmCtx.Known() {
		fmt.Fprintf(&b, "Known contact: %s", crmCtx.Contact.Name)
		if crmCtx.Contact.Company != "" {
			fmt.Fprintf(&b, " (%s)", crmCtx.Contact.Company)
		}
		b.WriteString("\n")
		if len(crmCtx.RecentInteractions) > 0 {
			b.WriteString("Recent interactions, most recent first:\n")
			for _, in := range crmCtx.RecentInteractions {
				fmt.Fprintf(&b, "- %s %s: %s\n", in.OccurredAt.Format("2006-01-02"), in.Kind, in.Subject)
			}
		}
	} else {
		b.WriteString("Unknown sender: no CRM record exists for this address.\n")
	}
	b.WriteString("\n")

	b.WriteString(`## Instructions
Respond with a single JSON object with exactly these fields:
{
  "summary": "one or two sentence summary of the email",
  "key_points": ["short bullet points"],
  "intent": "one of: inquiry, complaint, request, follow_up, other",
  "entities": [{"type": "PERSON|DATE|MONEY|ORGANIZATION", "value": "...", "confidence": 0.0}],
  "task_recommendations": [{"title": "...", "description": "...", "priority": "low|medium|high", "due_date": "YYYY-MM-DD or empty"}],
  "deal_recommendations": [{"contact_email": "...", "stage": "...", "value": 0, "notes": "..."}],
  "confidence": {"score": 0.0, "reasoning": "why you are this confident"}
}
The confidence score is between 0 and 1. Recommend tasks and deals only when the email plainly calls for them.`)

	return b.String()
}
