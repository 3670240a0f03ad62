// Package events publishes triage outcomes to Redis so downstream tooling
// (ticketing, blocklist automation, dashboards) can react to them.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/otherjamesbrown/mailtriage/pkg/analysis"
	mterrors "github.com/otherjamesbrown/mailtriage/pkg/errors"
	"github.com/otherjamesbrown/mailtriage/pkg/logging"
)

// Redis channels for triage events
const (
	ChannelAnalysisCompleted = "events.triage.analysis_completed"
	ChannelBatchCompleted    = "events.triage.batch_completed"
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
		Source:    "mailtriage",
		Version:   "1.0",
	}
}

// AnalysisCompletedEvent is published for every triaged message.
type AnalysisCompletedEvent struct {
	BaseEvent

	Fingerprint string `json:"fingerprint"`
	ContentHash string `json:"content_hash"`
	JobID       string `json:"job_id,omitempty"`
	Origin      string `json:"origin"`

	From    string  `json:"from"`
	Subject *string `json:"subject,omitempty"`

	Score          int      `json:"score"`
	Level          string   `json:"level"`
	Indicators     []string `json:"indicators"`
	IOCCount       int      `json:"ioc_count"`
	RedactionCount int      `json:"redaction_count"`

	AttachmentCount int    `json:"attachment_count"`
	AnalyzedAt      string `json:"analyzed_at"`
}

// BatchCompletedEvent is published when a batch triage job finishes.
type BatchCompletedEvent struct {
	BaseEvent

	JobID string `json:"job_id"`
	Path  string `json:"path"`

	TotalFiles    int `json:"total_files"`
	AnalyzedCount int `json:"analyzed_count"`
	SkippedCount  int `json:"skipped_count"`
	FailedCount   int `json:"failed_count"`

	HighCount   int `json:"high_count"`
	MediumCount int `json:"medium_count"`
	LowCount    int `json:"low_count"`

	StartedAt       time.Time `json:"started_at"`
	CompletedAt     time.Time `json:"completed_at"`
	DurationSeconds float64   `json:"duration_seconds"`

	Success bool `json:"success"`
}

// Client is the subset of the Redis client used by this package.
type Client interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Close() error
}

// Publisher publishes triage events to Redis.
type Publisher struct {
	client Client
	logger logging.Logger
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewPublisher creates a new event publisher.
func NewPublisher(client Client, logger logging.Logger) *Publisher {
	return &Publisher{
		client: client,
		logger: logger.With(logging.Component("event_publisher")),
	}
}

// Connect opens a Redis connection and verifies it with PING.
func Connect(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// AnalysisCompletedParams contains parameters for publishing an analysis event.
type AnalysisCompletedParams struct {
	Result *analysis.Result
	JobID  string
	Origin string
}

// NewAnalysisCompletedEvent builds the event payload for a result.
func NewAnalysisCompletedEvent(params AnalysisCompletedParams) AnalysisCompletedEvent {
	r := params.Result

	indicators := make([]string, len(r.Threat.Indicators))
	for i, ind := range r.Threat.Indicators {
		indicators[i] = ind.Description
	}

	event := AnalysisCompletedEvent{
		BaseEvent:       NewBaseEvent("triage.analysis_completed"),
		Fingerprint:     r.Email.ID,
		ContentHash:     r.Email.ContentHash,
		JobID:           params.JobID,
		Origin:          params.Origin,
		From:            r.Email.From,
		Score:           r.Threat.Score,
		Level:           string(r.Threat.Level),
		Indicators:      indicators,
		IOCCount:        r.IOCs.Total(),
		RedactionCount:  r.Redaction.RedactionCount,
		AttachmentCount: len(r.Email.Attachments),
		AnalyzedAt:      r.AnalyzedAt,
	}
	if r.Email.Subject != "" {
		event.Subject = &r.Email.Subject
	}
	if params.JobID != "" {
		event.CorrelationID = &params.JobID
	}

	return event
}

// PublishAnalysisCompleted publishes an event for a triaged message.
func (p *Publisher) PublishAnalysisCompleted(ctx context.Context, params AnalysisCompletedParams) error {
	return p.publish(ctx, ChannelAnalysisCompleted, NewAnalysisCompletedEvent(params))
}

// HandleResult publishes r as an analysis event. The job ID, when present,
// is taken from ctx.
func (p *Publisher) HandleResult(ctx context.Context, origin string, r *analysis.Result) error {
	jobID, _ := ctx.Value(logging.JobIDKey).(string)
	err := p.PublishAnalysisCompleted(ctx, AnalysisCompletedParams{
		Result: r,
		JobID:  jobID,
		Origin: origin,
	})
	if err != nil {
		return mterrors.ClassifyError(err, mterrors.StagePublish)
	}
	return nil
}

// BatchCompletedParams contains parameters for publishing batch completion.
type BatchCompletedParams struct {
	JobID         string
	Path          string
	TotalFiles    int
	AnalyzedCount int
	SkippedCount  int
	FailedCount   int
	HighCount     int
	MediumCount   int
	LowCount      int
	StartedAt     time.Time
	CompletedAt   time.Time
	Success       bool
}

// PublishBatchCompleted publishes a completion event for a batch job.
func (p *Publisher) PublishBatchCompleted(ctx context.Context, params BatchCompletedParams) error {
	event := BatchCompletedEvent{
		BaseEvent:       NewBaseEvent("triage.batch_completed"),
		JobID:           params.JobID,
		Path:            params.Path,
		TotalFiles:      params.TotalFiles,
		AnalyzedCount:   params.AnalyzedCount,
		SkippedCount:    params.SkippedCount,
		FailedCount:     params.FailedCount,
		HighCount:       params.HighCount,
		MediumCount:     params.MediumCount,
		LowCount:        params.LowCount,
		StartedAt:       params.StartedAt,
		CompletedAt:     params.CompletedAt,
		DurationSeconds: params.CompletedAt.Sub(params.StartedAt).Seconds(),
		Success:         params.Success,
	}
	event.CorrelationID = &event.JobID

	return p.publish(ctx, ChannelBatchCompleted, event)
}

// publish serializes and publishes an event to Redis.
func (p *Publisher) publish(ctx context.Context, channel string, event interface{}) error {
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

	p.logger.Debug("Event published",
		logging.F("channel", channel),
		logging.F("payload_size", len(data)))

	return nil
}

// Close closes the Redis connection.
func (p *Publisher) Close() error {
	return p.client.Close()
}
