package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/mailtriage/pkg/ioc"
)

var iocsRaw bool

// NewIOCsCommand creates the iocs command.
func NewIOCsCommand(deps *CommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	cmd := &cobra.Command{
		Use:   "iocs <file.eml>",
		Short: "List indicators of compromise in a message",
		Long: `Extract domains, URLs, IP addresses, email addresses and attachment
hashes from a message, ready to paste into a ticket or blocklist request.

Indicators are defanged by default (hxxp://, [.], [@]) so they cannot be
clicked by accident. Use --raw to print them as found.

Examples:
  mailtriage iocs suspicious.eml
  mailtriage iocs suspicious.eml --raw
  mailtriage iocs suspicious.eml --output json`,
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

			report := result.IOCs
			if iocsRaw {
				report = refangReport(report)
			}

			return output(cmd.OutOrStdout(), deps.format(), report, func(w io.Writer) error {
				text := ioc.FormatForCopy(report)
				if text == "" {
					text = "No indicators found.\n"
				}
				_, err := io.WriteString(w, text)
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&iocsRaw, "raw", false, "Print indicators without defanging")

	return cmd
}

// refangReport returns a copy of r with every indicator string refanged.
func refangReport(r *ioc.Report) *ioc.Report {
	refang := func(items []string) []string {
		out := make([]string, len(items))
		for i, item := range items {
			out[i] = ioc.Refang(item)
		}
		return out
	}

	return &ioc.Report{
		Domains:           refang(r.Domains),
		URLs:              refang(r.URLs),
		IPAddresses:       refang(r.IPAddresses),
		EmailAddresses:    refang(r.EmailAddresses),
		FileHashes:        r.FileHashes,
		HeadersOfInterest: r.HeadersOfInterest,
	}
}
