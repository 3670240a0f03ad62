// Package patterns holds the compiled regular expressions and rule tables
// shared by the extraction, redaction and scoring engines.
//
// The set is built once on first use and never mutated afterwards, so a
// *Library can be shared freely between goroutines.
package patterns

import (
	"path"
	"regexp"
	"slices"
	"strings"
	"sync"
)

// Library is the compiled pattern set.
type Library struct {
	// Indicators.
	URL    *regexp.Regexp
	Email  *regexp.Regexp
	IPv4   *regexp.Regexp
	Domain *regexp.Regexp

	// PII.
	Phone        *regexp.Regexp
	CreditCard   *regexp.Regexp
	SSN          *regexp.Regexp
	GreetingName *regexp.Regexp

	// Markup and header helpers.
	HTMLTag             *regexp.Regexp
	Whitespace          *regexp.Regexp
	DispositionFilename *regexp.Regexp
	HeaderFold          *regexp.Regexp

	// Phrase rules, evaluated in order; each rule stops at its first match.
	Urgency       []*regexp.Regexp
	Credential    []*regexp.Regexp
	Impersonation []*regexp.Regexp
}

// Get returns the process-wide pattern library.
var Get = sync.OnceValue(build)

func build() *Library {
	return &Library{
		URL:    regexp.MustCompile(`https?://[^\s<>"'\)}\]>]+`),
		Email:  regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
		IPv4:   regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\b`),
		Domain: regexp.MustCompile(`(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}`),

		Phone:        regexp.MustCompile(`(?:\+?1[-.\s]?)?\(?[0-9]{3}\)?[-.\s]?[0-9]{3}[-.\s]?[0-9]{4}`),
		CreditCard:   regexp.MustCompile(`\b(?:4[0-9]{12}(?:[0-9]{3})?|5[1-5][0-9]{14}|3[47][0-9]{13}|6(?:011|5[0-9]{2})[0-9]{12})\b`),
		SSN:          regexp.MustCompile(`\b[0-9]{3}[-\s]?[0-9]{2}[-\s]?[0-9]{4}\b`),
		GreetingName: regexp.MustCompile(`(?i:\b(?:dear|hello|hi|hey))\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)`),

		HTMLTag:             regexp.MustCompile(`<[^>]+>`),
		Whitespace:          regexp.MustCompile(`\s+`),
		DispositionFilename: regexp.MustCompile(`filename="?([^";\s]+)"?`),
		HeaderFold:          regexp.MustCompile(`\r?\n[ \t]+`),

		Urgency: mustCompileAll(
			`(?i)\b(urgent|immediately|asap|right away|act now|limited time)\b`,
			`(?i)\b(expire|suspend|terminate|deactivate|close your account)\b`,
			`(?i)\b(within 24 hours|within 48 hours|today only)\b`,
			`(?i)\b(final notice|last warning|immediate action required)\b`,
		),
		Credential: mustCompileAll(
			`(?i)\b(verify your|confirm your|update your)\s+(account|password|credentials|identity)\b`,
			`(?i)\b(login|sign in|log in)\s+(here|now|to)\b`,
			`(?i)\b(enter your|provide your)\s+(password|credentials|ssn|social security)\b`,
			`(?i)\b(click here to|click the link|click below)\b`,
		),
		Impersonation: mustCompileAll(
			`(?i)\b(paypal|microsoft|apple|amazon|netflix|bank of|wells fargo|chase)\b`,
			`(?i)\b(security team|support team|customer service|help desk)\b`,
			`(?i)\b(official|authorized|verified)\b`,
		),
	}
}

func mustCompileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, expr := range exprs {
		out[i] = regexp.MustCompile(expr)
	}
	return out
}

// URLShorteners lists hosts of common link-shortening services.
var URLShorteners = []string{
	"bit.ly", "tinyurl.com", "goo.gl", "t.co", "ow.ly", "is.gd",
	"buff.ly", "adf.ly", "bit.do", "mcaf.ee", "su.pr", "tiny.cc",
}

// DangerousExtensions are executable or script attachment types.
var DangerousExtensions = []string{"exe", "scr", "bat", "cmd", "ps1", "vbs", "js", "jar", "msi"}

// ArchiveExtensions are container types that commonly smuggle payloads.
var ArchiveExtensions = []string{"zip", "rar", "7z", "iso", "img"}

// NonDomainSuffixes are filename endings that look like domains but are not.
var NonDomainSuffixes = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".ico", ".css"}

// PrivateIPPrefixes are address prefixes treated as internal relay noise.
var PrivateIPPrefixes = []string{"10.", "192.168.", "127.", "0."}

// Extension returns the lowercased text after the last '.' in filename, or
// the whole name when it has no dot.
func Extension(filename string) string {
	if i := strings.LastIndexByte(filename, '.'); i >= 0 {
		return strings.ToLower(filename[i+1:])
	}
	return strings.ToLower(filename)
}

// IsDangerousExtension reports whether ext (without the dot) is executable.
func IsDangerousExtension(ext string) bool {
	return slices.Contains(DangerousExtensions, strings.ToLower(ext))
}

// IsArchiveExtension reports whether ext (without the dot) is an archive type.
func IsArchiveExtension(ext string) bool {
	return slices.Contains(ArchiveExtensions, strings.ToLower(ext))
}

// IsNonDomainToken reports whether a domain-shaped token is really a filename.
func IsNonDomainToken(token string) bool {
	return slices.Contains(NonDomainSuffixes, path.Ext(strings.ToLower(token)))
}

// IsPrivateIP reports whether an IPv4 literal falls in a suppressed range.
func IsPrivateIP(ip string) bool {
	for _, prefix := range PrivateIPPrefixes {
		if strings.HasPrefix(ip, prefix) {
			return true
		}
	}
	return false
}

// ShortenerFor returns the shortener service whose domain appears anywhere in
// host, if any. Substring matching also catches hosts like bit.ly.evil.example.
func ShortenerFor(host string) (string, bool) {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	for _, s := range URLShorteners {
		if strings.Contains(host, s) {
			return s, true
		}
	}
	return "", false
}
