package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/mailtriage/config"
	mterrors "github.com/otherjamesbrown/mailtriage/pkg/errors"
	"github.com/otherjamesbrown/mailtriage/pkg/report"
	"github.com/otherjamesbrown/mailtriage/pkg/store"
)

// History command flags
var (
	historyLimit  int
	historyFormat string
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand(deps *CommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	cmd := &cobra.Command{
		Use:   "history [fingerprint]",
		Short: "Show stored analyses",
		Long: `List recent analyses saved with --store, or show one in full.

Without arguments the most recent analyses are listed, newest first. With a
fingerprint the stored report is printed; the text format renders it as the
markdown analyst report.

Examples:
  mailtriage history
  mailtriage history --limit 50 --format json
  mailtriage history 3f2a9c01d4e5b6a7`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return runHistoryShow(cmd, deps, args[0])
			}
			return runHistoryList(cmd, deps)
		},
	}

	cmd.Flags().IntVarP(&historyLimit, "limit", "n", store.DefaultListLimit, "Maximum number of analyses to list")
	cmd.Flags().StringVarP(&historyFormat, "format", "f", "", "Output format: text, json, yaml")

	return cmd
}

func runHistoryList(cmd *cobra.Command, deps *CommandDeps) error {
	ctx := cmd.Context()
	cfg, err := deps.loadedConfig()
	if err != nil {
		return err
	}

	st, closeStore, err := deps.OpenStore(ctx, cfg, deps.logger())
	defer closeStore()
	if err != nil {
		return fmt.Errorf("opening analysis store: %w", err)
	}

	records, err := st.ListRecent(ctx, historyLimit)
	if err != nil {
		return err
	}

	format := resolveFormat(historyFormat, deps.format())
	return output(cmd.OutOrStdout(), config.OutputFormat(format), records, func(w io.Writer) error {
		return outputHistoryText(w, records)
	})
}

func runHistoryShow(cmd *cobra.Command, deps *CommandDeps, fingerprint string) error {
	ctx := cmd.Context()
	cfg, err := deps.loadedConfig()
	if err != nil {
		return err
	}

	st, closeStore, err := deps.OpenStore(ctx, cfg, deps.logger())
	defer closeStore()
	if err != nil {
		return fmt.Errorf("opening analysis store: %w", err)
	}

	rec, err := st.GetAnalysis(ctx, strings.ToLower(fingerprint))
	if mterrors.IsNotFound(err) {
		return fmt.Errorf("no stored analysis with fingerprint %s", fingerprint)
	}
	if err != nil {
		return err
	}

	format := resolveFormat(historyFormat, deps.format())
	return output(cmd.OutOrStdout(), config.OutputFormat(format), rec, func(w io.Writer) error {
		if rec.Report != nil && rec.Report.Email != nil {
			_, err := io.WriteString(w, report.Markdown(rec.Report))
			return err
		}
		return outputHistoryText(w, []*store.Record{rec})
	})
}

func outputHistoryText(w io.Writer, records []*store.Record) error {
	if len(records) == 0 {
		fmt.Fprintln(w, "No stored analyses.")
		return nil
	}

	fmt.Fprintf(w, "%-16s  %-6s  %5s  %4s  %-19s  %s\n", "FINGERPRINT", "LEVEL", "SCORE", "SEEN", "ANALYZED", "SUBJECT")
	for _, r := range records {
		fmt.Fprintf(w, "%-16s  %s %-4s  %5d  %4d  %-19s  %s\n",
			r.Fingerprint,
			report.LevelEmoji(r.Level), r.Level,
			r.Score,
			r.TimesSeen,
			r.AnalyzedAt.UTC().Format("2006-01-02 15:04:05"),
			truncate(r.Subject, 50))
	}
	return nil
}
