package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/mailtriage/pkg/analysis"
	"github.com/otherjamesbrown/mailtriage/pkg/eml"
	mterrors "github.com/otherjamesbrown/mailtriage/pkg/errors"
	"github.com/otherjamesbrown/mailtriage/pkg/ioc"
	"github.com/otherjamesbrown/mailtriage/pkg/logging"
	"github.com/otherjamesbrown/mailtriage/pkg/redact"
	"github.com/otherjamesbrown/mailtriage/pkg/threat"
)

type published struct {
	channel string
	payload []byte
}

// fakeClient records publishes and emulates SET NX in memory.
type fakeClient struct {
	published  []published
	keys       map[string]time.Duration
	publishErr error
	closed     bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{keys: map[string]time.Duration{}}
}

func (f *fakeClient) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if f.publishErr != nil {
		cmd.SetErr(f.publishErr)
		return cmd
	}
	f.published = append(f.published, published{channel: channel, payload: message.([]byte)})
	cmd.SetVal(1)
	return cmd
}

func (f *fakeClient) SetNX(ctx context.Context, key string, _ interface{}, ttl time.Duration) *redis.BoolCmd {
	cmd := redis.NewBoolCmd(ctx)
	if _, ok := f.keys[key]; ok {
		cmd.SetVal(false)
		return cmd
	}
	f.keys[key] = ttl
	cmd.SetVal(true)
	return cmd
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func sampleResult() *analysis.Result {
	details := "The email's DKIM signature could not be verified."
	return &analysis.Result{
		Email: &eml.ParsedEmail{
			ID:          "0123456789abcdef",
			ContentHash: "0123456789abcdef0123",
			From:        "bad@evil.test",
			Subject:     "Verify now",
			Attachments: []eml.Attachment{{Filename: "a.zip"}},
		},
		Redaction: &redact.Result{RedactionCount: 2},
		IOCs:      &ioc.Report{Domains: []string{"evil[.]test"}, URLs: []string{"hxxp://evil[.]test"}},
		Threat: &threat.Assessment{
			Level: threat.LevelMedium,
			Score: 35,
			Indicators: []threat.Indicator{
				{Category: threat.CategoryAuthentication, Description: "DKIM verification failed", Severity: "high", Details: &details},
			},
		},
		AnalyzedAt: "2025-01-04 15:30:00 UTC",
	}
}

func TestBaseEvent(t *testing.T) {
	event := NewBaseEvent("test.event")

	if event.EventType != "test.event" {
		t.Errorf("unexpected event type: %s", event.EventType)
	}
	if event.Source != "mailtriage" {
		t.Errorf("unexpected source: %s", event.Source)
	}
	if event.Version != "1.0" {
		t.Errorf("unexpected version: %s", event.Version)
	}
	if event.Timestamp.IsZero() {
		t.Error("timestamp should not be zero")
	}
}

func TestNewAnalysisCompletedEvent(t *testing.T) {
	event := NewAnalysisCompletedEvent(AnalysisCompletedParams{
		Result: sampleResult(),
		JobID:  "job-1",
		Origin: "/tmp/a.eml",
	})

	assert.Equal(t, "0123456789abcdef", event.Fingerprint)
	assert.Equal(t, "Medium", event.Level)
	assert.Equal(t, 35, event.Score)
	assert.Equal(t, []string{"DKIM verification failed"}, event.Indicators)
	assert.Equal(t, 2, event.IOCCount)
	assert.Equal(t, 2, event.RedactionCount)
	assert.Equal(t, 1, event.AttachmentCount)
	require.NotNil(t, event.Subject)
	assert.Equal(t, "Verify now", *event.Subject)
	require.NotNil(t, event.CorrelationID)
	assert.Equal(t, "job-1", *event.CorrelationID)
}

func TestPublisher_HandleResult(t *testing.T) {
	client := newFakeClient()
	p := NewPublisher(client, logging.NewNopLogger())
	ctx := context.WithValue(context.Background(), logging.JobIDKey, "job-42")

	require.NoError(t, p.HandleResult(ctx, "smtp", sampleResult()))

	require.Len(t, client.published, 1)
	assert.Equal(t, ChannelAnalysisCompleted, client.published[0].channel)

	var event AnalysisCompletedEvent
	require.NoError(t, json.Unmarshal(client.published[0].payload, &event))
	assert.Equal(t, "triage.analysis_completed", event.EventType)
	assert.Equal(t, "job-42", event.JobID)
	assert.Equal(t, "smtp", event.Origin)
}

func TestPublisher_PublishBatchCompleted(t *testing.T) {
	client := newFakeClient()
	p := NewPublisher(client, logging.NewNopLogger())
	start := time.Now().Add(-time.Minute)

	err := p.PublishBatchCompleted(context.Background(), BatchCompletedParams{
		JobID:         "job-7",
		TotalFiles:    3,
		AnalyzedCount: 2,
		FailedCount:   1,
		HighCount:     1,
		LowCount:      1,
		StartedAt:     start,
		CompletedAt:   start.Add(time.Minute),
	})
	require.NoError(t, err)

	require.Len(t, client.published, 1)
	assert.Equal(t, ChannelBatchCompleted, client.published[0].channel)

	var event BatchCompletedEvent
	require.NoError(t, json.Unmarshal(client.published[0].payload, &event))
	assert.Equal(t, 60.0, event.DurationSeconds)
	assert.Equal(t, "job-7", *event.CorrelationID)
	assert.False(t, event.Success)
}

func TestPublisher_PublishError(t *testing.T) {
	client := newFakeClient()
	client.publishErr = errors.New("connection refused")
	p := NewPublisher(client, logging.NewNopLogger())

	err := p.PublishAnalysisCompleted(context.Background(), AnalysisCompletedParams{Result: sampleResult()})

	require.Error(t, err)
	assert.Contains(t, err.Error(), ChannelAnalysisCompleted)
	assert.ErrorIs(t, err, client.publishErr)
}

func TestPublisher_HandleResultClassifiesErrors(t *testing.T) {
	client := newFakeClient()
	client.publishErr = errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")
	p := NewPublisher(client, logging.NewNopLogger())

	err := p.HandleResult(context.Background(), "a.eml", sampleResult())

	var pe *mterrors.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, mterrors.ErrPublishFailed, pe.Code)
	assert.Equal(t, mterrors.StagePublish, pe.Stage)
}

func TestPublisher_Close(t *testing.T) {
	client := newFakeClient()
	require.NoError(t, NewPublisher(client, logging.NewNopLogger()).Close())
	assert.True(t, client.closed)
}

func TestChannelConstants(t *testing.T) {
	if ChannelAnalysisCompleted != "events.triage.analysis_completed" {
		t.Errorf("unexpected channel: %s", ChannelAnalysisCompleted)
	}
	if ChannelBatchCompleted != "events.triage.batch_completed" {
		t.Errorf("unexpected channel: %s", ChannelBatchCompleted)
	}
}
