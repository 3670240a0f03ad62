package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/otherjamesbrown/mailtriage/pkg/analysis"
	mterrors "github.com/otherjamesbrown/mailtriage/pkg/errors"
	"github.com/otherjamesbrown/mailtriage/pkg/events"
	"github.com/otherjamesbrown/mailtriage/pkg/logging"
	"github.com/otherjamesbrown/mailtriage/pkg/threat"
)

// DefaultConcurrency is the default number of concurrent workers.
const DefaultConcurrency = 4

// Analyzer is the part of *analysis.Analyzer the processor needs.
type Analyzer interface {
	AnalyzeFile(ctx context.Context, path string) (*analysis.Result, error)
}

// Deduper reports whether a fingerprint was already triaged.
// *events.DedupFilter implements it.
type Deduper interface {
	Seen(ctx context.Context, fingerprint string) (bool, error)
}

// CompletionPublisher announces finished jobs. *events.Publisher implements it.
type CompletionPublisher interface {
	PublishBatchCompleted(ctx context.Context, params events.BatchCompletedParams) error
}

// ProcessorConfig configures the batch processor.
type ProcessorConfig struct {
	// Concurrency is the number of worker goroutines.
	Concurrency int

	// Dedup, when set, skips messages whose fingerprint was already seen.
	Dedup Deduper

	// Publisher, when set, receives a batch completed event.
	Publisher CompletionPublisher

	// OnProgress, when set, receives a snapshot after every progress change.
	// It may be called from several goroutines.
	OnProgress func(ProgressSnapshot)
}

// ProcessResult summarizes a batch run. Results and Errors are ordered by
// file path.
type ProcessResult struct {
	JobID         string       `json:"job_id"`
	Path          string       `json:"path"`
	TotalFiles    int          `json:"total_files"`
	AnalyzedCount int          `json:"analyzed_count"`
	SkippedCount  int          `json:"skipped_count"`
	FailedCount   int          `json:"failed_count"`
	HighCount     int          `json:"high_count"`
	MediumCount   int          `json:"medium_count"`
	LowCount      int          `json:"low_count"`
	SinkErrors    int          `json:"sink_errors"`
	StartedAt     time.Time    `json:"started_at"`
	CompletedAt   time.Time    `json:"completed_at"`
	Success       bool         `json:"success"`
	Results       []FileResult `json:"results"`
	Errors        []FileError  `json:"errors"`

	// Progress is the final snapshot of the run's progress tracker.
	Progress ProgressSnapshot `json:"-"`
}

// FileResult pairs a file with its analysis.
type FileResult struct {
	FilePath string           `json:"file_path"`
	Result   *analysis.Result `json:"result"`
}

// FileError records why a file failed.
type FileError struct {
	FilePath string             `json:"file_path" yaml:"file_path"`
	Code     mterrors.ErrorCode `json:"code" yaml:"code"`
	Error    string             `json:"error" yaml:"error"`
}

// Processor triages every .eml file under a path.
type Processor struct {
	cfg      ProcessorConfig
	analyzer Analyzer
	sinks    []analysis.Sink
	logger   logging.Logger
}

// NewProcessor creates a batch processor. Each analyzed result is handed to
// sinks in order.
func NewProcessor(analyzer Analyzer, logger logging.Logger, cfg ProcessorConfig, sinks ...analysis.Sink) *Processor {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	return &Processor{
		cfg:      cfg,
		analyzer: analyzer,
		sinks:    sinks,
		logger:   logger.With(logging.Component("batch_processor")),
	}
}

// Process analyzes the .eml file at path, or every .eml file below it when
// path is a directory. Cancelling ctx stops new files from being analyzed;
// those files are counted as skipped. Process is safe to call concurrently.
func (p *Processor) Process(ctx context.Context, path string) (*ProcessResult, error) {
	files, err := discoverFiles(path)
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}

	jobID := uuid.New().String()
	ctx = context.WithValue(ctx, logging.JobIDKey, jobID)
	logger := p.logger.WithContext(ctx)

	result := &ProcessResult{
		JobID:      jobID,
		Path:       path,
		TotalFiles: len(files),
		StartedAt:  time.Now(),
		Results:    []FileResult{},
		Errors:     []FileError{},
	}

	progress := NewProgress(len(files))
	if p.cfg.OnProgress != nil {
		progress.SetOnUpdate(p.cfg.OnProgress)
	}
	progress.Start()

	logger.Info("Batch started",
		logging.F("path", path),
		logging.F("files", len(files)),
		logging.F("concurrency", p.cfg.Concurrency))

	p.processParallel(ctx, files, result, progress)

	sort.Slice(result.Results, func(i, j int) bool { return result.Results[i].FilePath < result.Results[j].FilePath })
	sort.Slice(result.Errors, func(i, j int) bool { return result.Errors[i].FilePath < result.Errors[j].FilePath })

	result.CompletedAt = time.Now()
	result.Success = result.FailedCount == 0 && ctx.Err() == nil

	if ctx.Err() != nil {
		progress.Cancel()
	} else {
		progress.Complete(result.Success)
	}
	result.Progress = progress.Snapshot()

	if p.cfg.Publisher != nil {
		if err := p.cfg.Publisher.PublishBatchCompleted(ctx, events.BatchCompletedParams{
			JobID:         jobID,
			Path:          path,
			TotalFiles:    result.TotalFiles,
			AnalyzedCount: result.AnalyzedCount,
			SkippedCount:  result.SkippedCount,
			FailedCount:   result.FailedCount,
			HighCount:     result.HighCount,
			MediumCount:   result.MediumCount,
			LowCount:      result.LowCount,
			StartedAt:     result.StartedAt,
			CompletedAt:   result.CompletedAt,
			Success:       result.Success,
		}); err != nil {
			logger.Warn("Failed to publish batch completion", logging.Err(err))
		}
	}

	logger.Info("Batch finished",
		logging.F("analyzed", result.AnalyzedCount),
		logging.F("skipped", result.SkippedCount),
		logging.F("failed", result.FailedCount),
		logging.F("high", result.HighCount),
		logging.F("duration_ms", result.CompletedAt.Sub(result.StartedAt).Milliseconds()))

	return result, nil
}

// discoverFiles returns the absolute paths of .eml files at path.
func discoverFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if !info.IsDir() {
		if !isEML(path) {
			return nil, fmt.Errorf("file is not an .eml file: %s", path)
		}
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, err
		}
		return []string{absPath}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && isEML(d.Name()) {
			absPath, err := filepath.Abs(p)
			if err != nil {
				return err
			}
			files = append(files, absPath)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return files, nil
}

func isEML(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".eml")
}

func (p *Processor) processParallel(ctx context.Context, files []string, result *ProcessResult, progress *Progress) {
	filesCh := make(chan string)
	outcomes := make(chan fileOutcome)

	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for file := range filesCh {
				progress.SetCurrentFile(file)
				outcomes <- p.processFile(ctx, file)
			}
		}()
	}

	go func() {
		defer close(filesCh)
		for i, file := range files {
			select {
			case filesCh <- file:
			case <-ctx.Done():
				for _, rest := range files[i:] {
					outcomes <- fileOutcome{file: rest, status: statusSkipped}
				}
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	for fo := range outcomes {
		recordOutcome(fo, result, progress)
	}
}

const (
	statusAnalyzed = "analyzed"
	statusSkipped  = "skipped"
	statusFailed   = "failed"
)

type fileOutcome struct {
	file       string
	status     string
	result     *analysis.Result
	err        error
	sinkFailed bool
}

func (p *Processor) processFile(ctx context.Context, file string) fileOutcome {
	logger := p.logger.WithContext(ctx)

	if ctx.Err() != nil {
		return fileOutcome{file: file, status: statusSkipped}
	}

	res, err := p.analyzer.AnalyzeFile(ctx, file)
	if err != nil {
		if ctx.Err() != nil {
			return fileOutcome{file: file, status: statusSkipped}
		}
		logger.Warn("Failed to analyze message", logging.Err(err), logging.F("file", file))
		return fileOutcome{file: file, status: statusFailed, err: err}
	}

	if p.cfg.Dedup != nil {
		seen, err := p.cfg.Dedup.Seen(ctx, res.Fingerprint())
		if err != nil {
			logger.Warn("Dedup check failed, analyzing anyway", logging.Err(err), logging.F("file", file))
		} else if seen {
			logger.Debug("Duplicate message skipped",
				logging.F("file", file),
				logging.F("fingerprint", res.Fingerprint()))
			return fileOutcome{file: file, status: statusSkipped}
		}
	}

	out := fileOutcome{file: file, status: statusAnalyzed, result: res}
	if err := analysis.Dispatch(ctx, p.sinks, file, res); err != nil {
		logger.Warn("Result sink failed", logging.Err(err), logging.F("file", file))
		out.sinkFailed = true
	}

	logger.Debug("Message triaged",
		logging.F("file", file),
		logging.F("level", string(res.Threat.Level)),
		logging.F("score", res.Threat.Score))

	return out
}

// recordOutcome runs on the single goroutine draining outcomes.
func recordOutcome(o fileOutcome, result *ProcessResult, progress *Progress) {
	switch o.status {
	case statusAnalyzed:
		result.AnalyzedCount++
		switch o.result.Threat.Level {
		case threat.LevelHigh:
			result.HighCount++
		case threat.LevelMedium:
			result.MediumCount++
		default:
			result.LowCount++
		}
		if o.sinkFailed {
			result.SinkErrors++
		}
		result.Results = append(result.Results, FileResult{FilePath: o.file, Result: o.result})
		progress.RecordAnalyzed(o.result.Threat.Level)

	case statusSkipped:
		result.SkippedCount++
		progress.RecordSkipped()

	case statusFailed:
		pe := mterrors.ClassifyError(o.err, "")
		result.FailedCount++
		result.Errors = append(result.Errors, FileError{
			FilePath: o.file,
			Code:     pe.Code,
			Error:    o.err.Error(),
		})
		progress.RecordFailed()
	}
}
