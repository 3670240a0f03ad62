package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/mailtriage/config"
	"github.com/otherjamesbrown/mailtriage/pkg/batch"
	"github.com/otherjamesbrown/mailtriage/pkg/events"
	"github.com/otherjamesbrown/mailtriage/pkg/threat"
)

// Batch command flags
var (
	batchConcurrency int
	batchStore       bool
	batchPublish     bool
	batchDedup       bool
	batchNoProgress  bool
)

// batchFileSummary is one analyzed file in batch output.
type batchFileSummary struct {
	File        string       `json:"file" yaml:"file"`
	Fingerprint string       `json:"fingerprint" yaml:"fingerprint"`
	Subject     string       `json:"subject" yaml:"subject"`
	Level       threat.Level `json:"level" yaml:"level"`
	Score       int          `json:"score" yaml:"score"`
}

// batchReport is the batch result without the full per-file analyses.
type batchReport struct {
	JobID         string             `json:"job_id" yaml:"job_id"`
	Path          string             `json:"path" yaml:"path"`
	TotalFiles    int                `json:"total_files" yaml:"total_files"`
	AnalyzedCount int                `json:"analyzed_count" yaml:"analyzed_count"`
	SkippedCount  int                `json:"skipped_count" yaml:"skipped_count"`
	FailedCount   int                `json:"failed_count" yaml:"failed_count"`
	HighCount     int                `json:"high_count" yaml:"high_count"`
	MediumCount   int                `json:"medium_count" yaml:"medium_count"`
	LowCount      int                `json:"low_count" yaml:"low_count"`
	SinkErrors    int                `json:"sink_errors" yaml:"sink_errors"`
	DurationMs    int64              `json:"duration_ms" yaml:"duration_ms"`
	Success       bool               `json:"success" yaml:"success"`
	Files         []batchFileSummary `json:"files" yaml:"files"`
	Errors        []batch.FileError  `json:"errors" yaml:"errors"`
}

func newBatchReport(r *batch.ProcessResult) batchReport {
	out := batchReport{
		JobID:         r.JobID,
		Path:          r.Path,
		TotalFiles:    r.TotalFiles,
		AnalyzedCount: r.AnalyzedCount,
		SkippedCount:  r.SkippedCount,
		FailedCount:   r.FailedCount,
		HighCount:     r.HighCount,
		MediumCount:   r.MediumCount,
		LowCount:      r.LowCount,
		SinkErrors:    r.SinkErrors,
		DurationMs:    r.CompletedAt.Sub(r.StartedAt).Milliseconds(),
		Success:       r.Success,
		Files:         make([]batchFileSummary, 0, len(r.Results)),
		Errors:        r.Errors,
	}
	if out.Errors == nil {
		out.Errors = []batch.FileError{}
	}
	for _, fr := range r.Results {
		out.Files = append(out.Files, batchFileSummary{
			File:        fr.FilePath,
			Fingerprint: fr.Result.Fingerprint(),
			Subject:     fr.Result.Email.Subject,
			Level:       fr.Result.Threat.Level,
			Score:       fr.Result.Threat.Score,
		})
	}
	return out
}

// NewBatchCommand creates the batch command.
func NewBatchCommand(deps *CommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	cmd := &cobra.Command{
		Use:   "batch <path>",
		Short: "Triage every .eml file in a directory",
		Long: `Analyze a single .eml file or every .eml file below a directory
(recursively) using a pool of workers.

Results can be saved to the database (--store) and announced on Redis
(--publish). With --dedup, messages whose fingerprint Redis has already seen
are skipped. Files that fail to parse are reported and do not stop the run.

Examples:
  mailtriage batch ./reported/
  mailtriage batch ./reported/ --concurrency 8 --store
  mailtriage batch ./reported/ --publish --dedup --output json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd, deps, args[0])
		},
	}

	cmd.Flags().IntVarP(&batchConcurrency, "concurrency", "c", 0, "Number of concurrent workers (default from config)")
	cmd.Flags().BoolVar(&batchStore, "store", false, "Save analyses to the database")
	cmd.Flags().BoolVar(&batchPublish, "publish", false, "Publish analysis and batch events to Redis")
	cmd.Flags().BoolVar(&batchDedup, "dedup", false, "Skip messages already seen (requires Redis)")
	cmd.Flags().BoolVar(&batchNoProgress, "no-progress", false, "Do not print the progress line")

	return cmd
}

func runBatch(cmd *cobra.Command, deps *CommandDeps, path string) error {
	ctx := cmd.Context()
	cfg, err := deps.loadedConfig()
	if err != nil {
		return err
	}

	concurrency := cfg.Batch.Concurrency
	if batchConcurrency > 0 {
		concurrency = batchConcurrency
	}

	sinks, publisher, cleanup, err := deps.resultSinks(ctx, cfg, batchStore, batchPublish)
	defer cleanup()
	if err != nil {
		return err
	}

	pcfg := batch.ProcessorConfig{Concurrency: concurrency}
	if publisher != nil {
		pcfg.Publisher = publisher
	}
	if batchDedup {
		dedup, closeDedup, err := deps.dedupFilter(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeDedup()
		pcfg.Dedup = dedup
	}

	format := deps.format()
	showProgress := format == config.OutputFormatText && !batchNoProgress
	errOut := cmd.ErrOrStderr()
	if showProgress {
		fmt.Fprintf(errOut, "Batch triage: %s (%d workers)\n", path, concurrency)
		var mu sync.Mutex
		pcfg.OnProgress = func(s batch.ProgressSnapshot) {
			mu.Lock()
			defer mu.Unlock()
			printBatchProgress(errOut, s)
		}
	}

	processor := batch.NewProcessor(deps.newAnalyzer(cfg, nil), deps.logger(), pcfg, sinks...)
	result, err := processor.Process(ctx, path)
	if err != nil {
		return fmt.Errorf("batch triage: %w", err)
	}
	if showProgress {
		fmt.Fprintln(errOut)
	}

	report := newBatchReport(result)
	if err := output(cmd.OutOrStdout(), format, report, func(w io.Writer) error {
		return outputBatchText(w, report)
	}); err != nil {
		return err
	}

	if result.FailedCount > 0 {
		return fmt.Errorf("%d of %d files failed", result.FailedCount, result.TotalFiles)
	}
	return nil
}

// dedupFilter connects to Redis for fingerprint dedup.
func (d *CommandDeps) dedupFilter(ctx context.Context, cfg *config.Config) (*events.DedupFilter, func(), error) {
	if !cfg.Redis.Enabled() {
		return nil, nil, fmt.Errorf("--dedup requires redis.addr (or MAILTRIAGE_REDIS_ADDR)")
	}
	client, err := d.ConnectRedis(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return events.NewDedupFilter(client, cfg.Redis.DedupTTL), func() { client.Close() }, nil
}

func printBatchProgress(w io.Writer, s batch.ProgressSnapshot) {
	eta := ""
	if s.EstimatedRemainingSeconds != nil && !s.IsComplete() {
		eta = fmt.Sprintf(" ETA %s", (time.Duration(*s.EstimatedRemainingSeconds) * time.Second).String())
	}
	fmt.Fprintf(w, "\r  [%3.0f%%] %d/%d files (high: %d, medium: %d, low: %d, skipped: %d, failed: %d)%s   ",
		s.PercentComplete(), s.ProcessedCount, s.TotalFiles,
		s.HighCount, s.MediumCount, s.LowCount, s.SkippedCount, s.FailedCount, eta)
}

func outputBatchText(w io.Writer, r batchReport) error {
	fmt.Fprintf(w, "Job ID:       %s\n", r.JobID)
	fmt.Fprintf(w, "Total Files:  %d\n", r.TotalFiles)
	fmt.Fprintf(w, "Analyzed:     %d (\033[31mhigh %d\033[0m, \033[33mmedium %d\033[0m, \033[32mlow %d\033[0m)\n",
		r.AnalyzedCount, r.HighCount, r.MediumCount, r.LowCount)
	fmt.Fprintf(w, "Skipped:      %d\n", r.SkippedCount)
	fmt.Fprintf(w, "Failed:       %d\n", r.FailedCount)
	if r.SinkErrors > 0 {
		fmt.Fprintf(w, "Sink errors:  %d\n", r.SinkErrors)
	}
	fmt.Fprintf(w, "Duration:     %s\n", formatDurationMs(r.DurationMs))

	if len(r.Files) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  %-8s %-5s %-40s %s\n", "LEVEL", "SCORE", "FILE", "SUBJECT")
		for _, f := range r.Files {
			fmt.Fprintf(w, "  %-8s %-5d %-40s %s\n",
				f.Level, f.Score, truncate(filepath.Base(f.File), 40), truncate(f.Subject, 60))
		}
	}

	if len(r.Errors) > 0 {
		fmt.Fprintf(w, "\nErrors:\n")
		for _, e := range r.Errors {
			fmt.Fprintf(w, "  %s: [%s] %s\n", filepath.Base(e.FilePath), e.Code, e.Error)
		}
	}
	return nil
}
