package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/mailtriage/config"
	"github.com/otherjamesbrown/mailtriage/pkg/analysis"
	"github.com/otherjamesbrown/mailtriage/pkg/redact"
	"github.com/otherjamesbrown/mailtriage/pkg/report"
	"github.com/otherjamesbrown/mailtriage/pkg/threat"
)

// Analyze command flags
var (
	analyzeFormat  string
	analyzeStore   bool
	analyzePublish bool
)

// redactionFlags turns category switches into redact.Options.
type redactionFlags struct {
	noEmails, noPhones, noCards, noSSN, noNames bool
	patterns                                    []string
}

func (f *redactionFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.noEmails, "no-redact-emails", false, "Leave email addresses in the body")
	cmd.Flags().BoolVar(&f.noPhones, "no-redact-phones", false, "Leave phone numbers in the body")
	cmd.Flags().BoolVar(&f.noCards, "no-redact-cards", false, "Leave credit card numbers in the body")
	cmd.Flags().BoolVar(&f.noSSN, "no-redact-ssn", false, "Leave social security numbers in the body")
	cmd.Flags().BoolVar(&f.noNames, "no-redact-names", false, "Leave greeting names in the body")
	cmd.Flags().StringArrayVar(&f.patterns, "pattern", nil, "Extra regular expression to redact (repeatable)")
}

// apply switches off categories in base and appends extra patterns.
func (f *redactionFlags) apply(base redact.Options) redact.Options {
	opts := base
	opts.Emails = opts.Emails && !f.noEmails
	opts.Phones = opts.Phones && !f.noPhones
	opts.CreditCards = opts.CreditCards && !f.noCards
	opts.SSN = opts.SSN && !f.noSSN
	opts.Names = opts.Names && !f.noNames
	opts.CustomPatterns = append(append([]string{}, base.CustomPatterns...), f.patterns...)
	return opts
}

// analysisSummary is the condensed view printed by `analyze`.
type analysisSummary struct {
	File        string             `json:"file" yaml:"file"`
	Fingerprint string             `json:"fingerprint" yaml:"fingerprint"`
	Subject     string             `json:"subject" yaml:"subject"`
	From        string             `json:"from" yaml:"from"`
	Score       int                `json:"score" yaml:"score"`
	Level       threat.Level       `json:"level" yaml:"level"`
	Indicators  []threat.Indicator `json:"indicators" yaml:"indicators"`
	IOCs        iocCounts          `json:"iocs" yaml:"iocs"`
	Redactions  map[string]int     `json:"redactions" yaml:"redactions"`
	Warnings    []string           `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	AnalyzedAt  string             `json:"analyzed_at" yaml:"analyzed_at"`
}

type iocCounts struct {
	Domains    int `json:"domains" yaml:"domains"`
	URLs       int `json:"urls" yaml:"urls"`
	IPs        int `json:"ip_addresses" yaml:"ip_addresses"`
	Emails     int `json:"email_addresses" yaml:"email_addresses"`
	FileHashes int `json:"file_hashes" yaml:"file_hashes"`
}

func summarize(path string, r *analysis.Result) analysisSummary {
	return analysisSummary{
		File:        path,
		Fingerprint: r.Fingerprint(),
		Subject:     r.Email.Subject,
		From:        r.Email.From,
		Score:       r.Threat.Score,
		Level:       r.Threat.Level,
		Indicators:  r.Threat.Indicators,
		IOCs: iocCounts{
			Domains:    len(r.IOCs.Domains),
			URLs:       len(r.IOCs.URLs),
			IPs:        len(r.IOCs.IPAddresses),
			Emails:     len(r.IOCs.EmailAddresses),
			FileHashes: len(r.IOCs.FileHashes),
		},
		Redactions: r.Redaction.CountByType(),
		Warnings:   r.Warnings,
		AnalyzedAt: r.AnalyzedAt,
	}
}

// NewAnalyzeCommand creates the analyze command.
func NewAnalyzeCommand(deps *CommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}
	redaction := &redactionFlags{}

	cmd := &cobra.Command{
		Use:   "analyze <file.eml>",
		Short: "Triage a single reported message",
		Long: `Parse a raw .eml message and print its threat assessment.

The message is parsed, its indicators of compromise are extracted, the body
is redacted and a heuristic threat score (Low, Medium, High) is computed with
the evidence behind it.

Formats:
  text       Condensed summary (default)
  markdown   Full analyst report
  json       Full analysis result, suitable for tooling
  yaml       Condensed summary as YAML

Examples:
  mailtriage analyze suspicious.eml
  mailtriage analyze suspicious.eml --format markdown
  mailtriage analyze suspicious.eml --format json --no-redact-names
  mailtriage analyze suspicious.eml --pattern 'ACCT-[0-9]{6}' --store`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, deps, args[0], redaction)
		},
	}

	cmd.Flags().StringVarP(&analyzeFormat, "format", "f", "", "Output format: text, markdown, json, yaml (default from --output)")
	cmd.Flags().BoolVar(&analyzeStore, "store", false, "Save the analysis to the database")
	cmd.Flags().BoolVar(&analyzePublish, "publish", false, "Publish an analysis event to Redis")
	redaction.register(cmd)

	return cmd
}

func runAnalyze(cmd *cobra.Command, deps *CommandDeps, path string, redaction *redactionFlags) error {
	ctx := cmd.Context()
	cfg, err := deps.loadedConfig()
	if err != nil {
		return err
	}

	format := resolveFormat(analyzeFormat, deps.format())
	switch format {
	case "text", "markdown", "md", "json", "yaml":
	default:
		return fmt.Errorf("invalid format %q (must be text, markdown, json, or yaml)", format)
	}

	ac := cfg.AnalysisConfig()
	ac.Redaction = redaction.apply(ac.Redaction)
	warnInvalidPatterns(cmd.ErrOrStderr(), ac.Redaction.CustomPatterns)
	analyzer := analysis.New(deps.logger(), ac, nil)

	result, err := analyzer.AnalyzeFile(ctx, path)
	if err != nil {
		return fmt.Errorf("analyzing %s: %w", path, err)
	}

	sinks, _, cleanup, err := deps.resultSinks(ctx, cfg, analyzeStore, analyzePublish)
	defer cleanup()
	if err != nil {
		return err
	}
	sinkErr := analysis.Dispatch(ctx, sinks, path, result)

	if err := writeAnalysis(cmd.OutOrStdout(), format, path, result); err != nil {
		return err
	}
	return sinkErr
}

func writeAnalysis(out io.Writer, format, path string, result *analysis.Result) error {
	switch format {
	case "markdown", "md":
		_, err := io.WriteString(out, report.Markdown(result))
		return err
	case "json":
		data, err := report.JSON(result)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	case "yaml":
		return outputYAML(out, summarize(path, result))
	default:
		return outputAnalysisText(out, summarize(path, result))
	}
}

func warnInvalidPatterns(w io.Writer, exprs []string) {
	for _, bad := range redact.InvalidPatterns(exprs) {
		fmt.Fprintf(w, "Warning: ignoring redaction pattern that does not compile: %q\n", bad)
	}
}

func outputAnalysisText(w io.Writer, s analysisSummary) error {
	fmt.Fprintf(w, "File:         %s\n", filepath.Base(s.File))
	fmt.Fprintf(w, "Fingerprint:  %s\n", s.Fingerprint)
	fmt.Fprintf(w, "Subject:      %s\n", s.Subject)
	fmt.Fprintf(w, "From:         %s\n", s.From)
	fmt.Fprintf(w, "Threat:       %s %s (score %d)\n", report.LevelEmoji(s.Level), s.Level, s.Score)
	fmt.Fprintf(w, "              %s\n", s.Level.Summary())

	if len(s.Indicators) > 0 {
		fmt.Fprintf(w, "\nIndicators (%d):\n", len(s.Indicators))
		for _, ind := range s.Indicators {
			fmt.Fprintf(w, "  %s %-22s %s (+%d)\n",
				report.SeverityEmoji(ind.Severity), ind.Category, ind.Description, ind.Points)
		}
	}

	fmt.Fprintf(w, "\nIOCs:         %d domains, %d URLs, %d IPs, %d email addresses, %d file hashes\n",
		s.IOCs.Domains, s.IOCs.URLs, s.IOCs.IPs, s.IOCs.Emails, s.IOCs.FileHashes)

	total := 0
	for _, n := range s.Redactions {
		total += n
	}
	fmt.Fprintf(w, "Redactions:   %d\n", total)

	for _, warning := range s.Warnings {
		fmt.Fprintf(w, "Warning:      %s\n", warning)
	}
	return nil
}

// resolveFormat maps the global output format onto a command-specific one.
func resolveFormat(explicit string, global config.OutputFormat) string {
	if explicit != "" {
		return strings.ToLower(explicit)
	}
	return global.String()
}
