package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/mailtriage/pkg/report"
)

// Export command flags
var (
	exportFormat string
	exportOut    string
)

// NewExportCommand creates the export command.
func NewExportCommand(deps *CommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	cmd := &cobra.Command{
		Use:   "export <file.eml>",
		Short: "Write an analysis report or a sanitized copy of a message",
		Long: `Analyze a message and export the result.

Formats:
  markdown   Analyst report (default)
  json       Full analysis result
  eml        The original message with every redacted value replaced,
             safe to forward to a vendor or attach to a ticket

Without --out the export is written to stdout. With --out pointing at a
directory, the file is named after the input with the format's extension.

Examples:
  mailtriage export suspicious.eml
  mailtriage export suspicious.eml --format eml --out sanitized.eml
  mailtriage export suspicious.eml --format json --out ./reports/`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := deps.loadedConfig()
			if err != nil {
				return err
			}

			result, err := deps.newAnalyzer(cfg, nil).AnalyzeFile(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("analyzing %s: %w", args[0], err)
			}

			data, err := report.Render(result, exportFormat)
			if err != nil {
				return err
			}

			if exportOut == "" {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}

			dest := exportPath(args[0], exportOut, exportFormat)
			if err := os.WriteFile(dest, data, 0600); err != nil {
				return fmt.Errorf("writing export: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported %s to %s\n", filepath.Base(args[0]), dest)
			return nil
		},
	}

	cmd.Flags().StringVarP(&exportFormat, "format", "f", report.FormatMarkdown, "Export format: markdown, json, eml")
	cmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output file or directory (default: stdout)")

	return cmd
}

// exportPath resolves --out. A directory gets "<input>.<ext>" inside it.
func exportPath(input, out, format string) string {
	info, err := os.Stat(out)
	if err != nil || !info.IsDir() {
		return out
	}

	ext := ".md"
	switch strings.ToLower(format) {
	case report.FormatJSON:
		ext = ".json"
	case report.FormatEML:
		ext = ".sanitized.eml"
	}
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return filepath.Join(out, base+ext)
}
