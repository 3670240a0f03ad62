// Package analysis runs the triage pipeline over one raw message: the email
// model is built first, then the IOC report, body redaction and threat score
// are derived from it.
package analysis

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/otherjamesbrown/mailtriage/pkg/eml"
	mterrors "github.com/otherjamesbrown/mailtriage/pkg/errors"
	"github.com/otherjamesbrown/mailtriage/pkg/ioc"
	"github.com/otherjamesbrown/mailtriage/pkg/logging"
	"github.com/otherjamesbrown/mailtriage/pkg/redact"
	"github.com/otherjamesbrown/mailtriage/pkg/threat"
)

// TimestampFormat is the layout of Result.AnalyzedAt.
const TimestampFormat = "2006-01-02 15:04:05 UTC"

// Config configures an Analyzer.
type Config struct {
	// Redaction selects what is scrubbed from the body text.
	Redaction redact.Options

	// Parse is passed to the email parser.
	Parse eml.ParseOptions

	// MaxMessageBytes rejects larger inputs (0 = unlimited).
	MaxMessageBytes int
}

// DefaultConfig redacts every category and parses with default options.
func DefaultConfig() Config {
	return Config{
		Redaction: redact.DefaultOptions(),
		Parse:     eml.DefaultParseOptions(),
	}
}

// Result is the full triage output for one message.
type Result struct {
	Email      *eml.ParsedEmail   `json:"email"`
	Redaction  *redact.Result     `json:"redaction"`
	IOCs       *ioc.Report        `json:"iocs"`
	Threat     *threat.Assessment `json:"threat"`
	Warnings   []string           `json:"warnings,omitempty"`
	AnalyzedAt string             `json:"analyzed_at"`
}

// Fingerprint returns the message identity used for dedup and storage.
func (r *Result) Fingerprint() string {
	return r.Email.ID
}

// Analyzer runs the pipeline. It is safe for concurrent use.
type Analyzer struct {
	cfg     Config
	parser  *eml.Parser
	logger  logging.Logger
	metrics *Metrics
	tracer  *Tracer
	now     func() time.Time
}

// New creates an Analyzer. metrics may be nil.
func New(logger logging.Logger, cfg Config, metrics *Metrics) *Analyzer {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if cfg.Redaction.CustomPatterns == nil {
		cfg.Redaction.CustomPatterns = []string{}
	}

	a := &Analyzer{
		cfg:     cfg,
		parser:  eml.NewParser(cfg.Parse),
		logger:  logger.With(logging.Component("analyzer")),
		metrics: metrics,
		tracer:  NewTracer(),
		now:     time.Now,
	}

	if bad := redact.InvalidPatterns(cfg.Redaction.CustomPatterns); len(bad) > 0 {
		a.logger.Debug("Ignoring custom redaction patterns that do not compile", logging.F("patterns", bad))
	}

	return a
}

// Config returns the analyzer configuration.
func (a *Analyzer) Config() Config {
	return a.cfg
}

// AnalyzeFile reads path and analyzes its contents.
func (a *Analyzer) AnalyzeFile(ctx context.Context, path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, mterrors.ClassifyError(fmt.Errorf("failed to read file: %w", err), mterrors.StageRead)
	}
	return a.Analyze(ctx, data)
}

// Analyze triages one raw message. Cancellation is honoured between stages;
// a stage that has started always completes.
func (a *Analyzer) Analyze(ctx context.Context, raw []byte) (*Result, error) {
	ctx, span := a.tracer.StartAnalysisSpan(ctx, len(raw))
	defer span.End()

	result, err := a.run(ctx, raw)
	if err != nil {
		pe := mterrors.ClassifyError(err, mterrors.StageRead)
		setError(span, pe, string(pe.Code))
		if a.metrics != nil {
			a.metrics.RecordAnalysis("none", string(pe.Code))
		}
		a.logger.WithContext(ctx).Warn("Analysis failed",
			logging.F("code", string(pe.Code)),
			logging.F("stage", pe.Stage),
			logging.Err(pe.Cause))
		return nil, pe
	}

	setResult(span, result)
	if a.metrics != nil {
		a.metrics.RecordAnalysis(string(result.Threat.Level), "ok")
		a.metrics.RecordResult(result)
	}

	a.logger.WithContext(ctx).Debug("Analysis complete",
		logging.F("fingerprint", result.Email.ID),
		logging.F("score", result.Threat.Score),
		logging.F("level", string(result.Threat.Level)),
		logging.F("redactions", result.Redaction.RedactionCount))

	return result, nil
}

func (a *Analyzer) run(ctx context.Context, raw []byte) (*Result, error) {
	if len(raw) == 0 {
		return nil, mterrors.ClassifyError(mterrors.ErrEmptyMessage, mterrors.StageRead)
	}
	if a.cfg.MaxMessageBytes > 0 && len(raw) > a.cfg.MaxMessageBytes {
		return nil, mterrors.ClassifyError(
			fmt.Errorf("%w: %d bytes exceeds limit of %d", mterrors.ErrMessageTooLarge, len(raw), a.cfg.MaxMessageBytes),
			mterrors.StageRead)
	}

	result := &Result{}

	err := a.stage(ctx, mterrors.StageParse, func() error {
		parsed, err := a.parser.ParseBytes(raw)
		if err != nil {
			return err
		}
		result.Email = parsed.Email
		result.Warnings = parsed.Warnings
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := a.stage(ctx, mterrors.StageExtract, func() error {
		result.IOCs = ioc.Extract(result.Email)
		return nil
	}); err != nil {
		return nil, err
	}

	if err := a.stage(ctx, mterrors.StageRedact, func() error {
		result.Redaction = redact.Redact(result.Email.BodyText, a.cfg.Redaction)
		return nil
	}); err != nil {
		return nil, err
	}

	if err := a.stage(ctx, mterrors.StageScore, func() error {
		result.Threat = threat.Analyze(result.Email)
		return nil
	}); err != nil {
		return nil, err
	}

	result.AnalyzedAt = a.now().UTC().Format(TimestampFormat)
	return result, nil
}

// stage runs fn inside a span and records its latency. It refuses to start
// once ctx is done.
func (a *Analyzer) stage(ctx context.Context, name string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return mterrors.ClassifyError(err, name)
	}

	_, span := a.tracer.StartStageSpan(ctx, name)
	defer span.End()

	start := time.Now()
	err := fn()
	elapsed := time.Since(start)

	if a.metrics != nil {
		a.metrics.RecordStageLatency(name, elapsed.Seconds())
	}
	if err != nil {
		pe := mterrors.ClassifyError(err, name).WithDuration(elapsed)
		setError(span, pe, string(pe.Code))
		return pe
	}
	return nil
}
