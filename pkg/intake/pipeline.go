package intake

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/brightlane/crm-intake/pkg/crm"
	"github.com/brightlane/crm-intake/pkg/intake/observability"
	"github.com/brightlane/crm-intake/pkg/logging"
)

// Analysis is the complete output of one AI analysis run.
type Analysis struct {
	Result          AIResult
	Recommendations Recommendations
	Model           string
	Attempts        int
}

// Analyzer produces a structured Analysis for a normalized email.
type Analyzer interface {
	Analyze(ctx context.Context, email *NormalizedEmail, crmCtx crm.Context) (*Analysis, error)
}

// EventPublisher emits intake lifecycle events. Failures are logged and
// swallowed; workflow outcomes never depend on event delivery.
type EventPublisher interface {
	PublishIntakeProcessed(ctx context.Context, record *Record) error
	PublishDecisionSubmitted(ctx context.Context, record *Record) error
}

// Pipeline runs the inbound email workflow: normalize, gather CRM context,
// analyze, apply the confidence policy, persist, publish.
type Pipeline struct {
	normalizer *Normalizer
	lookup     crm.Lookup
	analyzer   Analyzer
	policy     Policy
	repo       Repository
	publisher  EventPublisher
	metrics    *observability.Metrics
	logger     logging.Logger
	newID      func() string
}

// PipelineDeps bundles the pipeline's collaborators.
type PipelineDeps struct {
	Normalizer *Normalizer
	Lookup     crm.Lookup
	Analyzer   Analyzer
	Policy     Policy
	Repository Repository
	Publisher  EventPublisher
	Metrics    *observability.Metrics
	Logger     logging.Logger
}

// NewPipeline assembles the inbound email pipeline.
func NewPipeline(deps PipelineDeps) *Pipeline {
	if deps.Normalizer == nil {
		deps.Normalizer = NewNormalizer()
	}
	if deps.Lookup == nil {
		deps.Lookup = crm.NopLookup{}
	}
	if deps.Metrics == nil {
		deps.Metrics = observability.NewTestMetrics()
	}
	return &Pipeline{
		normalizer: deps.Normalizer,
		lookup:     deps.Lookup,
		analyzer:   deps.Analyzer,
		policy:     deps.Policy,
		repo:       deps.Repository,
		publisher:  deps.Publisher,
		metrics:    deps.Metrics,
		logger:     deps.Logger.With(logging.F("component", "intake_pipeline")),
		newID:      uuid.NewString,
	}
}

// Process runs the full workflow for one inbound email and returns the
// stored record. Normalization and analysis failures abort the run;
// CRM lookup and event publishing are best effort.
func (p *Pipeline) Process(ctx context.Context, raw RawEmail) (*Record, error) {
	ctx, span := observability.StartSpan(ctx, "intake.Process")
	var retErr error
	defer func() { observability.EndSpan(span, retErr) }()

	email, err := p.normalizer.Normalize(raw)
	if err != nil {
		p.metrics.IntakeFailures.WithLabelValues("normalize").Inc()
		retErr = err
		return nil, err
	}
	span.SetAttributes(attribute.String("sender", email.From.Email))

	crmCtx, err := crm.ContextFor(ctx, p.lookup, email.From.Email)
	if err != nil {
		p.logger.Warn("CRM lookup failed, analyzing without context",
			logging.F("sender", email.From.Email),
			logging.Err(err),
		)
		crmCtx = crm.Context{}
	}

	start := time.Now()
	analysis, err := p.analyzer.Analyze(ctx, email, crmCtx)
	p.metrics.AnalysisDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		p.metrics.IntakeFailures.WithLabelValues("analysis").Inc()
		retErr = err
		return nil, err
	}
	p.metrics.AnalysisAttempts.Observe(float64(analysis.Attempts))

	status := p.policy.Decide(analysis.Result.Confidence.Score)

	record := &Record{
		ID:              p.newID(),
		RawEmail:        raw,
		Email:           *email,
		AI:              analysis.Result,
		Recommendations: analysis.Recommendations,
		Status:          status,
		SenderEmail:     email.From.Email,
		Subject:         email.Headers.Subject,
		ConfidenceScore: analysis.Result.Confidence.Score,
	}

	if err := p.repo.Save(ctx, record); err != nil {
		p.metrics.IntakeFailures.WithLabelValues("persist").Inc()
		retErr = fmt.Errorf("failed to store intake record: %w", err)
		return nil, retErr
	}
	p.metrics.IntakesProcessed.WithLabelValues(string(status)).Inc()

	p.publishProcessed(ctx, record)

	p.logger.Info("inbound email processed",
		logging.F("intake_id", record.ID),
		logging.F("sender", record.SenderEmail),
		logging.F("intent", string(record.AI.Intent)),
		logging.F("confidence", record.ConfidenceScore),
		logging.F("status", string(record.Status)),
	)
	return record, nil
}

// publishProcessed emits the processed event, swallowing failures.
func (p *Pipeline) publishProcessed(ctx context.Context, record *Record) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.PublishIntakeProcessed(ctx, record); err != nil {
		p.metrics.PublishFailures.Inc()
		p.logger.Warn("failed to publish intake event",
			logging.F("intake_id", record.ID),
			logging.Err(err),
		)
	}
}
