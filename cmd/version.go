package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/mailtriage/config"
	"github.com/otherjamesbrown/mailtriage/pkg/buildinfo"
)

// ServiceName identifies this binary in build info, logs and events.
const ServiceName = "mailtriage"

var versionFormat string

// NewVersionCommand creates the version command. It does not load
// configuration, so it takes its own --format flag.
func NewVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long: `Print the version, commit hash and build time of mailtriage.

Examples:
  mailtriage version
  mailtriage version --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := buildinfo.Get(ServiceName)
			format := config.OutputFormat(strings.ToLower(versionFormat))
			if versionFormat == "" {
				format = config.OutputFormatText
			}
			if !format.IsValid() {
				return fmt.Errorf("invalid format %q (must be text, json, or yaml)", versionFormat)
			}
			return output(cmd.OutOrStdout(), format, info, func(w io.Writer) error {
				fmt.Fprintf(w, "%s %s\n", info.ServiceName, info.Version)
				fmt.Fprintf(w, "  Commit:     %s\n", info.Commit)
				fmt.Fprintf(w, "  Built:      %s\n", info.BuildTime)
				fmt.Fprintf(w, "  Go version: %s\n", info.GoVersion)
				fmt.Fprintf(w, "  Platform:   %s\n", info.Platform)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&versionFormat, "format", "f", "", "Output format: text, json, yaml")

	return cmd
}
