// Package report renders analysis results for people and tools: a Markdown
// write-up, pretty-printed JSON and a sanitized copy of the original message.
package report

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/otherjamesbrown/mailtriage/pkg/analysis"
	"github.com/otherjamesbrown/mailtriage/pkg/threat"
)

// Format names accepted by Render.
const (
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
	FormatEML      = "eml"
)

// Formats lists the supported export formats.
var Formats = []string{FormatMarkdown, FormatJSON, FormatEML}

// Render exports r in the named format.
func Render(r *analysis.Result, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case FormatMarkdown, "md":
		return []byte(Markdown(r)), nil
	case FormatJSON:
		return JSON(r)
	case FormatEML:
		return []byte(SanitizedEML(r)), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q (want one of %s)", format, strings.Join(Formats, ", "))
	}
}

// JSON returns r as indented JSON.
func JSON(r *analysis.Result) ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize to JSON: %w", err)
	}
	return data, nil
}

// SanitizedEML returns the raw message with every redacted substring
// replaced, applying the redaction log in order.
func SanitizedEML(r *analysis.Result) string {
	sanitized := string(r.Email.RawContent)
	for _, rd := range r.Redaction.Redactions {
		sanitized = strings.ReplaceAll(sanitized, rd.Original, rd.Redacted)
	}
	return sanitized
}

// LevelEmoji returns the traffic-light marker for a threat level.
func LevelEmoji(level threat.Level) string {
	switch level {
	case threat.LevelHigh:
		return "🔴"
	case threat.LevelMedium:
		return "🟡"
	default:
		return "🟢"
	}
}

// SeverityEmoji returns the traffic-light marker for an indicator severity.
func SeverityEmoji(severity string) string {
	switch severity {
	case threat.SeverityHigh:
		return "🔴"
	case threat.SeverityMedium:
		return "🟡"
	default:
		return "🟢"
	}
}

func orDefault(v *string, def string) string {
	if v == nil {
		return def
	}
	return *v
}

// Markdown renders the analyst write-up.
func Markdown(r *analysis.Result) string {
	var b strings.Builder
	email := r.Email

	fmt.Fprintf(&b, "# %s Analysis\n\n", email.Subject)
	fmt.Fprintf(&b, "**Analysis Date:** %s\n", r.AnalyzedAt)
	fmt.Fprintf(&b, "**Threat Level:** %s %s\n\n", LevelEmoji(r.Threat.Level), r.Threat.Level)

	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "%s\n\n", r.Threat.Summary)

	b.WriteString("## Email Details\n\n")
	b.WriteString("| Field | Value |\n|-------|-------|\n")
	fmt.Fprintf(&b, "| From | %s |\n", email.From)
	fmt.Fprintf(&b, "| To | %s |\n", email.To)
	fmt.Fprintf(&b, "| Subject | %s |\n", email.Subject)
	fmt.Fprintf(&b, "| Date | %s |\n", orDefault(email.Date, "Unknown"))
	fmt.Fprintf(&b, "| Reply-To | %s |\n", orDefault(email.ReplyTo, "Not specified"))
	fmt.Fprintf(&b, "| Return-Path | %s |\n\n", orDefault(email.ReturnPath, "Not specified"))

	b.WriteString("## Authentication Results\n\n")
	b.WriteString("| Check | Status |\n|-------|--------|\n")
	fmt.Fprintf(&b, "| SPF | %s |\n", strings.ToUpper(email.Authentication.SPFStatus))
	fmt.Fprintf(&b, "| DKIM | %s |\n", strings.ToUpper(email.Authentication.DKIMStatus))
	fmt.Fprintf(&b, "| DMARC | %s |\n\n", strings.ToUpper(email.Authentication.DMARCStatus))

	if len(r.Threat.Indicators) > 0 {
		b.WriteString("## Threat Indicators\n\n")
		for _, ind := range r.Threat.Indicators {
			fmt.Fprintf(&b, "- %s **%s**: %s\n", SeverityEmoji(ind.Severity), ind.Category, ind.Description)
			if ind.Details != nil {
				fmt.Fprintf(&b, "  - %s\n", *ind.Details)
			}
		}
		b.WriteString("\n")
	}

	if len(email.Attachments) > 0 {
		b.WriteString("## Attachments\n\n")
		b.WriteString("| Filename | Type | Size | Preview |\n|----------|------|------|---------|\n")
		for _, a := range email.Attachments {
			preview := a.PreviewType()
			if a.PreviewError != "" {
				preview += " (" + a.PreviewError + ")"
			}
			fmt.Fprintf(&b, "| %s | %s | %d | %s |\n", a.Filename, a.ContentType, a.Size, preview)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Indicators of Compromise\n\n")

	section := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(&b, "### %s\n", title)
		for _, item := range items {
			fmt.Fprintf(&b, "- %s\n", item)
		}
		b.WriteString("\n")
	}

	section("Domains", r.IOCs.Domains)
	section("URLs", r.IOCs.URLs)
	section("IP Addresses", r.IOCs.IPAddresses)
	section("Email Addresses", r.IOCs.EmailAddresses)

	hashes := make([]string, len(r.IOCs.FileHashes))
	for i, h := range r.IOCs.FileHashes {
		hashes[i] = fmt.Sprintf("%s: SHA256: %s", h.Filename, h.SHA256)
	}
	section("File Hashes", hashes)

	headers := make([]string, len(r.IOCs.HeadersOfInterest))
	for i, h := range r.IOCs.HeadersOfInterest {
		headers[i] = fmt.Sprintf("%s: %s", h.Name, h.Value)
	}
	section("Headers of Interest", headers)

	b.WriteString("## Email Body (Redacted)\n\n")
	b.WriteString("```\n")
	b.WriteString(r.Redaction.RedactedText)
	b.WriteString("\n```\n")

	return b.String()
}
