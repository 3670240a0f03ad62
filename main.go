// Package main provides the mailtriage CLI entry point.
// mailtriage triages reported phishing emails: it parses raw messages,
// extracts indicators of compromise, redacts personal data and scores the
// threat.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/mailtriage/cmd"
	"github.com/otherjamesbrown/mailtriage/config"
	mterrors "github.com/otherjamesbrown/mailtriage/pkg/errors"
	"github.com/otherjamesbrown/mailtriage/pkg/logging"
)

// Global flags.
var (
	cfgFile      string
	outputFormat string
	debug        bool
)

// deps is shared by every subcommand and filled in by PersistentPreRunE.
var deps = cmd.DefaultDeps()

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "mailtriage",
	Short: "Phishing email triage",
	Long: `mailtriage triages reported phishing emails.

Each raw message (.eml) is parsed into a structured email, its indicators of
compromise are extracted and defanged, personal data in the body is redacted,
and a heuristic threat score (Low, Medium, High) is computed with the
evidence behind it.

COMMON WORKFLOWS:
  Triage one report:    mailtriage analyze report.eml
  Share with analysts:  mailtriage export report.eml --format markdown
  Feed a blocklist:     mailtriage iocs report.eml --raw
  Triage a mailbox dump: mailtriage batch ./reports --store
  Run a report mailbox: mailtriage serve --store --publish --dedup`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(c *cobra.Command, args []string) error {
		// Skip initialization for commands that don't need it.
		switch c.Name() {
		case "version", "help", "completion", "init":
			return nil
		}

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}

		// Override with command-line flags.
		if outputFormat != "" {
			f := config.OutputFormat(outputFormat)
			if !f.IsValid() {
				return fmt.Errorf("invalid --output %q (must be text, json, or yaml)", outputFormat)
			}
			cfg.OutputFormat = f
			deps.OutputFormat = f
		}
		if debug {
			cfg.Debug = true
		}

		logCfg := cfg.LoggingConfig()
		logCfg.Output = c.ErrOrStderr()
		deps.Config = cfg
		deps.Logger = logging.NewLogger(logCfg)
		return nil
	},
}

func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		return config.LoadConfigFrom(cfgFile)
	}
	return config.LoadConfig()
}

// completionCmd generates shell completion scripts.
var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for mailtriage.

Bash:
  $ source <(mailtriage completion bash)

Zsh:
  $ mailtriage completion zsh > "${fpath[1]}/_mailtriage"

Fish:
  $ mailtriage completion fish | source

PowerShell:
  PS> mailtriage completion powershell | Out-String | Invoke-Expression
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(c *cobra.Command, args []string) error {
		out := c.OutOrStdout()
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletion(out)
		case "zsh":
			return rootCmd.GenZshCompletion(out)
		case "fish":
			return rootCmd.GenFishCompletion(out, true)
		default:
			return rootCmd.GenPowerShellCompletionWithDesc(out)
		}
	},
}

func init() {
	// Global flags.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.mailtriage/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "", "output format: text, json, yaml")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	// Add command groups for organized help output.
	rootCmd.AddGroup(
		&cobra.Group{ID: "triage", Title: "Triage:"},
		&cobra.Group{ID: "ops", Title: "Operations:"},
		&cobra.Group{ID: "setup", Title: "Setup:"},
	)

	// Triage
	for _, c := range []*cobra.Command{
		cmd.NewAnalyzeCommand(deps),
		cmd.NewIOCsCommand(deps),
		cmd.NewRedactCommand(deps),
		cmd.NewExportCommand(deps),
		cmd.NewBatchCommand(deps),
	} {
		c.GroupID = "triage"
		rootCmd.AddCommand(c)
	}

	// Operations
	for _, c := range []*cobra.Command{
		cmd.NewServeCommand(deps),
		cmd.NewHistoryCommand(deps),
		cmd.NewDbCommand(deps),
	} {
		c.GroupID = "ops"
		rootCmd.AddCommand(c)
	}

	// Setup
	for _, c := range []*cobra.Command{
		cmd.NewConfigCommand(deps),
		cmd.NewVersionCommand(),
		completionCmd,
	} {
		c.GroupID = "setup"
		rootCmd.AddCommand(c)
	}
}

// printError writes err to w, with the suggested action for pipeline
// failures.
func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %v\n", err)
	if action := mterrors.SuggestedAction(err); action != "" {
		fmt.Fprintf(w, "Suggestion: %s\n", action)
	}
}

func main() {
	// Set up signal handling for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		printError(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
