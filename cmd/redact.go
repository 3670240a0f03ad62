package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/mailtriage/pkg/eml"
	"github.com/otherjamesbrown/mailtriage/pkg/redact"
)

// Redact command flags
var (
	redactEmails   bool
	redactPhones   bool
	redactCards    bool
	redactSSN      bool
	redactNames    bool
	redactPatterns []string
	redactEML      bool
	redactShowLog  bool
)

// NewRedactCommand creates the redact command.
func NewRedactCommand(deps *CommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	cmd := &cobra.Command{
		Use:   "redact [file|-]",
		Short: "Scrub personal data from text",
		Long: `Replace email addresses, phone numbers, credit card numbers, social
security numbers and greeting names with redaction tokens.

Input is read from the named file, or from stdin when the argument is "-" or
omitted. With --eml the input is parsed as a message and only its body text
is redacted.

Selecting one or more categories (--emails, --phones, --cards, --ssn, --names)
redacts only those; otherwise the categories enabled in the configuration are
used.

Examples:
  mailtriage redact notes.txt
  cat body.txt | mailtriage redact --emails --phones
  mailtriage redact --eml suspicious.eml --pattern 'EMP-[0-9]{5}'
  mailtriage redact notes.txt --output json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			return runRedact(cmd, deps, path)
		},
	}

	cmd.Flags().BoolVar(&redactEmails, "emails", false, "Redact email addresses")
	cmd.Flags().BoolVar(&redactPhones, "phones", false, "Redact phone numbers")
	cmd.Flags().BoolVar(&redactCards, "cards", false, "Redact credit card numbers")
	cmd.Flags().BoolVar(&redactSSN, "ssn", false, "Redact social security numbers")
	cmd.Flags().BoolVar(&redactNames, "names", false, "Redact names after greetings")
	cmd.Flags().StringArrayVar(&redactPatterns, "pattern", nil, "Extra regular expression to redact (repeatable)")
	cmd.Flags().BoolVar(&redactEML, "eml", false, "Parse input as a message and redact its body text")
	cmd.Flags().BoolVar(&redactShowLog, "show-redactions", false, "List each redaction on stderr")

	return cmd
}

func runRedact(cmd *cobra.Command, deps *CommandDeps, path string) error {
	cfg, err := deps.loadedConfig()
	if err != nil {
		return err
	}

	data, err := readInput(cmd.InOrStdin(), path)
	if err != nil {
		return err
	}

	text := string(data)
	if redactEML {
		parsed, err := eml.ParseBytes(data)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
		text = parsed.Email.BodyText
	}

	opts := cfg.Redaction
	if redactEmails || redactPhones || redactCards || redactSSN || redactNames {
		opts = redact.Options{
			Emails:      redactEmails,
			Phones:      redactPhones,
			CreditCards: redactCards,
			SSN:         redactSSN,
			Names:       redactNames,
		}
	}
	opts.CustomPatterns = append(append([]string{}, cfg.Redaction.CustomPatterns...), redactPatterns...)
	warnInvalidPatterns(cmd.ErrOrStderr(), opts.CustomPatterns)

	result := redact.Redact(text, opts)

	if redactShowLog {
		errOut := cmd.ErrOrStderr()
		for _, rd := range result.Redactions {
			fmt.Fprintf(errOut, "%-14s %q -> %s\n", rd.Type, rd.Original, rd.Redacted)
		}
		fmt.Fprintf(errOut, "%d redaction(s)\n", result.RedactionCount)
	}

	return output(cmd.OutOrStdout(), deps.format(), result, func(w io.Writer) error {
		_, err := io.WriteString(w, result.RedactedText)
		return err
	})
}

// readInput reads path, or stdin when path is "-".
func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}
