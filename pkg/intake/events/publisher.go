// Package events publishes intake lifecycle events to Redis pub/sub so that
// other office systems can react to processed emails and operator decisions.
// Publishing is best effort: intake outcomes never depend on it.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/brightlane/crm-intake/pkg/intake"
	"github.com/brightlane/crm-intake/pkg/logging"
)

// Redis channels for intake events.
const (
	ChannelEmailIntakeProcessed  = "events.email_intake.processed"
	ChannelUserDecisionSubmitted = "events.user_decision.submitted"
)

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	EventType     string    `json:"event_type"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID *string   `json:"correlation_id,omitempty"`
	Source        string    `json:"source"`
	Version       string    `json:"version"`
}

// NewBaseEvent creates a BaseEvent with sensible defaults.
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		Source:    "crm-intake",
		Version:   "1.0",
	}
}

// EmailIntakeProcessedEvent is published when an inbound email has been
// analyzed and stored.
type EmailIntakeProcessedEvent struct {
	BaseEvent

	IntakeID        string  `json:"intake_id"`
	SenderEmail     string  `json:"sender_email"`
	Subject         string  `json:"subject"`
	Intent          string  `json:"intent"`
	ConfidenceScore float64 `json:"confidence_score"`
	Status          string  `json:"status"`
	TaskCount       int     `json:"task_count"`
	DealCount       int     `json:"deal_count"`
}

// UserDecisionSubmittedEvent is published when an operator rules on a
// pending intake.
type UserDecisionSubmittedEvent struct {
	BaseEvent

	IntakeID       string   `json:"intake_id"`
	Status         string   `json:"status"`
	DecidedBy      string   `json:"decided_by"`
	ApprovedTasks  []int    `json:"approved_tasks"`
	ApprovedDeals  []int    `json:"approved_deals"`
	CreatedTaskIDs []string `json:"created_task_ids"`
	CreatedDealIDs []string `json:"created_deal_ids"`
}

// Publisher emits intake lifecycle events.
type Publisher interface {
	// PublishIntakeProcessed announces a stored intake record.
	PublishIntakeProcessed(ctx context.Context, record *intake.Record) error

	// PublishDecisionSubmitted announces an operator decision.
	PublishDecisionSubmitted(ctx context.Context, record *intake.Record) error

	// Close releases publisher resources.
	Close() error
}

// RedisPublisher publishes intake events to Redis pub/sub.
type RedisPublisher struct {
	client *redis.Client
	logger logging.Logger
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns the host:port address for the Redis client.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NewRedisPublisher creates a publisher over an existing Redis client.
func NewRedisPublisher(client *redis.Client, logger logging.Logger) *RedisPublisher {
	return &RedisPublisher{
		client: client,
		logger: logger.With(logging.F("component", "event_publisher")),
	}
}

// NewRedisPublisherFromConfig creates a publisher with a new Redis
// connection and verifies it.
func NewRedisPublisherFromConfig(cfg RedisConfig, logger logging.Logger) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisPublisher(client, logger), nil
}

// PublishIntakeProcessed publishes an event for a stored intake record.
func (p *RedisPublisher) PublishIntakeProcessed(ctx context.Context, record *intake.Record) error {
	event := EmailIntakeProcessedEvent{
		BaseEvent:       NewBaseEvent("email_intake.processed"),
		IntakeID:        record.ID,
		SenderEmail:     record.SenderEmail,
		Subject:         record.Subject,
		Intent:          string(record.AI.Intent),
		ConfidenceScore: record.ConfidenceScore,
		Status:          string(record.Status),
		TaskCount:       len(record.Recommendations.Tasks),
		DealCount:       len(record.Recommendations.Deals),
	}
	return p.publish(ctx, ChannelEmailIntakeProcessed, event)
}

// PublishDecisionSubmitted publishes an event for an operator decision.
func (p *RedisPublisher) PublishDecisionSubmitted(ctx context.Context, record *intake.Record) error {
	event := UserDecisionSubmittedEvent{
		BaseEvent: NewBaseEvent("user_decision.submitted"),
		IntakeID:  record.ID,
		Status:    string(record.Status),
	}
	if record.Decision != nil {
		event.DecidedBy = record.Decision.DecidedBy
		event.ApprovedTasks = record.Decision.ApprovedTaskIndices
		event.ApprovedDeals = record.Decision.ApprovedDealIndices
		event.CreatedTaskIDs = record.Decision.CreatedTaskIDs
		event.CreatedDealIDs = record.Decision.CreatedDealIDs
	}
	return p.publish(ctx, ChannelUserDecisionSubmitted, event)
}

// Close closes the Redis connection.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// publish serializes and publishes an event to Redis.
func (p *RedisPublisher) publish(ctx context.Context, channel string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.client.Publish(ctx, channel, data).Err(); err != nil {
		p.logger.Error("Failed to publish event",
			logging.Err(err),
			logging.F("channel", channel))
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}

	p.logger.Debug("Published event",
		logging.F("channel", channel))
	return nil
}

// LogPublisher writes events to the log instead of a broker. Used when
// Redis is not configured.
type LogPublisher struct {
	logger logging.Logger
}

// NewLogPublisher creates a log-only publisher.
func NewLogPublisher(logger logging.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With(logging.F("component", "event_publisher"))}
}

func (p *LogPublisher) PublishIntakeProcessed(_ context.Context, record *intake.Record) error {
	p.logger.Info("intake processed",
		logging.F("channel", ChannelEmailIntakeProcessed),
		logging.F("intake_id", record.ID),
		logging.F("status", string(record.Status)))
	return nil
}

func (p *LogPublisher) PublishDecisionSubmitted(_ context.Context, record *intake.Record) error {
	p.logger.Info("decision submitted",
		logging.F("channel", ChannelUserDecisionSubmitted),
		logging.F("intake_id", record.ID),
		logging.F("status", string(record.Status)))
	return nil
}

func (p *LogPublisher) Close() error {
	return nil
}
