// Package redact scrubs personal data from message text before it is shared.
//
// Categories run in a fixed order (emails, phones, credit cards, SSNs,
// greeting names, then custom patterns) and each pass scans the text left by
// the previous one. Logged Start/End values are byte offsets into the text as
// it stood when that category's pass began, so they are not positions in the
// final output once an earlier pass has changed the text length.
package redact

import (
	"regexp"
	"strings"

	"github.com/otherjamesbrown/mailtriage/pkg/patterns"
)

// Category tags recorded on each Redaction.
const (
	TypeEmail      = "email"
	TypePhone      = "phone"
	TypeCreditCard = "credit_card"
	TypeSSN        = "ssn"
	TypeName       = "name"
	TypeCustom     = "custom"
)

// Replacement tokens.
const (
	TokenEmail      = "[REDACTED-EMAIL]"
	TokenPhone      = "[REDACTED-PHONE]"
	TokenCreditCard = "[REDACTED-CC]"
	TokenSSN        = "[REDACTED-SSN]"
	TokenName       = "[REDACTED-NAME]"
	TokenCustom     = "[REDACTED-CUSTOM]"
)

// Options selects which categories are redacted.
type Options struct {
	Emails         bool     `json:"redact_emails" yaml:"emails"`
	Phones         bool     `json:"redact_phones" yaml:"phones"`
	CreditCards    bool     `json:"redact_credit_cards" yaml:"credit_cards"`
	SSN            bool     `json:"redact_ssn" yaml:"ssn"`
	Names          bool     `json:"redact_names" yaml:"names"`
	CustomPatterns []string `json:"custom_patterns" yaml:"custom_patterns"`
}

// DefaultOptions enables every built-in category and no custom patterns.
func DefaultOptions() Options {
	return Options{
		Emails:         true,
		Phones:         true,
		CreditCards:    true,
		SSN:            true,
		Names:          true,
		CustomPatterns: []string{},
	}
}

// Redaction records one substitution.
type Redaction struct {
	Original string `json:"original" yaml:"original"`
	Redacted string `json:"redacted" yaml:"redacted"`
	Type     string `json:"redaction_type" yaml:"redaction_type"`
	Start    int    `json:"start" yaml:"start"`
	End      int    `json:"end" yaml:"end"`
}

// Result is the rewritten text and the log of substitutions.
type Result struct {
	RedactedText   string      `json:"redacted_text" yaml:"redacted_text"`
	RedactionCount int         `json:"redaction_count" yaml:"redaction_count"`
	Redactions     []Redaction `json:"redactions" yaml:"redactions"`
}

// CountByType tallies redactions per category tag.
func (r *Result) CountByType() map[string]int {
	counts := make(map[string]int)
	for _, rd := range r.Redactions {
		counts[rd.Type]++
	}
	return counts
}

// pass is one category's scan over the text.
type pass struct {
	kind    string
	re      *regexp.Regexp
	group   int
	replace func(original string) string
}

func fixed(token string) func(string) string {
	return func(string) string { return token }
}

func redactEmail(original string) string {
	parts := strings.Split(original, "@")
	if len(parts) != 2 {
		return TokenEmail
	}
	return "[REDACTED]@" + parts[1]
}

// Redact rewrites text according to opts. Custom patterns that do not
// compile are skipped.
func Redact(text string, opts Options) *Result {
	lib := patterns.Get()

	var passes []pass
	if opts.Emails {
		passes = append(passes, pass{kind: TypeEmail, re: lib.Email, replace: redactEmail})
	}
	if opts.Phones {
		passes = append(passes, pass{kind: TypePhone, re: lib.Phone, replace: fixed(TokenPhone)})
	}
	if opts.CreditCards {
		passes = append(passes, pass{kind: TypeCreditCard, re: lib.CreditCard, replace: fixed(TokenCreditCard)})
	}
	if opts.SSN {
		passes = append(passes, pass{kind: TypeSSN, re: lib.SSN, replace: fixed(TokenSSN)})
	}
	if opts.Names {
		passes = append(passes, pass{kind: TypeName, re: lib.GreetingName, group: 1, replace: fixed(TokenName)})
	}
	for _, expr := range opts.CustomPatterns {
		re, err := regexp.Compile(expr)
		if err != nil {
			continue
		}
		passes = append(passes, pass{kind: TypeCustom, re: re, replace: fixed(TokenCustom)})
	}

	result := &Result{Redactions: []Redaction{}}
	current := text
	for _, p := range passes {
		current, result.Redactions = p.apply(current, result.Redactions)
	}

	result.RedactedText = current
	result.RedactionCount = len(result.Redactions)
	return result
}

// apply rewrites every non-overlapping match in text, left to right, and
// appends one log entry per match with offsets into text.
func (p pass) apply(text string, log []Redaction) (string, []Redaction) {
	matches := p.re.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text, log
	}

	var b strings.Builder
	b.Grow(len(text))
	last := 0

	for _, m := range matches {
		start, end := m[2*p.group], m[2*p.group+1]
		if start < 0 || start == end {
			continue
		}

		original := text[start:end]
		replacement := p.replace(original)

		b.WriteString(text[last:start])
		b.WriteString(replacement)
		last = end

		log = append(log, Redaction{
			Original: original,
			Redacted: replacement,
			Type:     p.kind,
			Start:    start,
			End:      end,
		})
	}

	b.WriteString(text[last:])
	return b.String(), log
}

// InvalidPatterns returns the custom patterns Redact would skip.
func InvalidPatterns(exprs []string) []string {
	var bad []string
	for _, expr := range exprs {
		if _, err := regexp.Compile(expr); err != nil {
			bad = append(bad, expr)
		}
	}
	return bad
}
