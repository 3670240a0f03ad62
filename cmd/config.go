package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/mailtriage/config"
)

const maskedSecret = "********"

// Config command flags
var (
	configInitForce bool
	configInitPath  string
)

// NewConfigCommand creates the config command with its subcommands.
func NewConfigCommand(deps *CommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage mailtriage configuration.

Settings are read from ~/.mailtriage/config.yaml (or $MAILTRIAGE_CONFIG_DIR),
then a .env file in the working directory, then MAILTRIAGE_*, DATABASE_URL and
DB_* environment variables. Later sources win.`,
	}

	cmd.AddCommand(newConfigShowCommand(deps))
	cmd.AddCommand(newConfigInitCommand(deps))

	return cmd
}

func newConfigShowCommand(deps *CommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Long: `Display the configuration after every source has been applied.
Passwords are masked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := deps.loadedConfig()
			if err != nil {
				return err
			}
			masked := maskSecrets(cfg)
			return output(cmd.OutOrStdout(), deps.format(), masked, func(w io.Writer) error {
				return outputConfigText(w, masked)
			})
		},
	}
}

func newConfigInitCommand(deps *CommandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Long: `Create a configuration file with default values.

An existing file is left alone unless --force is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			path := configInitPath
			if path == "" {
				var err error
				if path, err = config.ConfigPath(); err != nil {
					return fmt.Errorf("getting config path: %w", err)
				}
			}

			if _, err := os.Stat(path); err == nil && !configInitForce {
				fmt.Fprintf(out, "Configuration file already exists: %s\n", path)
				fmt.Fprintln(out, "Use --force to overwrite it, or 'mailtriage config show' to view current settings.")
				return nil
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("checking %s: %w", path, err)
			}

			save := deps.SaveConfig
			if save == nil {
				save = config.SaveConfig
			}
			if err := save(config.DefaultConfig(), path); err != nil {
				return fmt.Errorf("saving configuration: %w", err)
			}

			fmt.Fprintf(out, "Created configuration file: %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing configuration file")
	cmd.Flags().StringVar(&configInitPath, "path", "", "Write to this path instead of the default location")

	return cmd
}

// maskSecrets returns a copy of cfg with passwords replaced.
func maskSecrets(cfg *config.Config) *config.Config {
	masked := *cfg
	if masked.Database.Password != "" {
		masked.Database.Password = maskedSecret
	}
	if masked.Redis.Password != "" {
		masked.Redis.Password = maskedSecret
	}
	return &masked
}

func outputConfigText(w io.Writer, cfg *config.Config) error {
	path, _ := config.ConfigPath()
	r := cfg.Redaction

	fmt.Fprintln(w, "Current configuration:")
	fmt.Fprintf(w, "  Config file:       %s\n", path)
	fmt.Fprintf(w, "  Output format:     %s\n", cfg.OutputFormat)
	fmt.Fprintf(w, "  Log level:         %s (json: %t, debug: %t)\n", cfg.Log.Level, cfg.Log.JSON, cfg.Debug)
	fmt.Fprintf(w, "  Redaction:         emails=%t phones=%t cards=%t ssn=%t names=%t custom=%d\n",
		r.Emails, r.Phones, r.CreditCards, r.SSN, r.Names, len(r.CustomPatterns))
	if cfg.MaxMessageBytes > 0 {
		fmt.Fprintf(w, "  Max message bytes: %d\n", cfg.MaxMessageBytes)
	} else {
		fmt.Fprintln(w, "  Max message bytes: unlimited")
	}
	fmt.Fprintf(w, "  Batch workers:     %d\n", cfg.Batch.Concurrency)
	fmt.Fprintf(w, "  SMTP intake:       %s (%s, max %d bytes)\n", cfg.Intake.Addr, cfg.Intake.Domain, cfg.Intake.MaxMessageBytes)
	fmt.Fprintf(w, "  Metrics address:   %s\n", cfg.MetricsAddr)
	fmt.Fprintf(w, "  Database:          %s\n", cfg.Database.Redacted())
	if cfg.Redis.Enabled() {
		fmt.Fprintf(w, "  Redis:             %s (db %d, dedup ttl %s)\n", cfg.Redis.Addr, cfg.Redis.DB, cfg.Redis.DedupTTL)
	} else {
		fmt.Fprintln(w, "  Redis:             (not set)")
	}
	return nil
}
