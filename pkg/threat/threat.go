// Package threat scores a parsed email against a fixed set of phishing
// heuristics and explains every point it awards.
package threat

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/otherjamesbrown/mailtriage/pkg/eml"
	"github.com/otherjamesbrown/mailtriage/pkg/extract"
	"github.com/otherjamesbrown/mailtriage/pkg/patterns"
)

// Level is the overall classification of a message.
type Level string

const (
	LevelLow    Level = "Low"
	LevelMedium Level = "Medium"
	LevelHigh   Level = "High"
)

// Score thresholds.
const (
	HighThreshold   = 50
	MediumThreshold = 25
)

// Severity values carried on indicators.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Indicator categories.
const (
	CategoryAuthentication       = "Authentication"
	CategoryHeaderAnomaly        = "Header Anomaly"
	CategorySocialEngineering    = "Social Engineering"
	CategoryCredentialHarvesting = "Credential Harvesting"
	CategoryImpersonation        = "Impersonation"
	CategorySuspiciousURL        = "Suspicious URL"
	CategoryMaliciousAttachment  = "Malicious Attachment"
	CategorySuspiciousAttachment = "Suspicious Attachment"
)

var summaries = map[Level]string{
	LevelHigh:   "This email shows multiple high-risk indicators consistent with phishing or malicious intent.",
	LevelMedium: "This email shows some suspicious characteristics that warrant caution.",
	LevelLow:    "This email shows minimal suspicious indicators but should still be verified.",
}

// Summary returns the fixed one-line description of a level.
func (l Level) Summary() string {
	return summaries[l]
}

// LevelFor classifies a score.
func LevelFor(score int) Level {
	switch {
	case score >= HighThreshold:
		return LevelHigh
	case score >= MediumThreshold:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Indicator is one piece of evidence behind the score.
type Indicator struct {
	Category    string  `json:"category"`
	Description string  `json:"description"`
	Severity    string  `json:"severity"`
	Details     *string `json:"details"`
	Points      int     `json:"points"`
}

// Assessment is the outcome of scoring one message.
type Assessment struct {
	Level      Level       `json:"level"`
	Score      int         `json:"score"`
	Indicators []Indicator `json:"indicators"`
	Summary    string      `json:"summary"`
}

// CountBySeverity tallies indicators per severity.
func (a *Assessment) CountBySeverity() map[string]int {
	counts := make(map[string]int)
	for _, ind := range a.Indicators {
		counts[ind.Severity]++
	}
	return counts
}

type scorer struct {
	score      int
	indicators []Indicator
}

func (s *scorer) add(points int, category, severity, description, details string) {
	s.score += points
	s.indicators = append(s.indicators, Indicator{
		Category:    category,
		Description: description,
		Severity:    severity,
		Details:     &details,
		Points:      points,
	})
}

// Analyze scores email. Rules are evaluated independently and in a fixed
// order, and the indicator list keeps that order. No rule lowers the score.
func Analyze(email *eml.ParsedEmail) *Assessment {
	s := &scorer{indicators: []Indicator{}}
	lib := patterns.Get()

	checkAuthentication(s, email.Authentication)
	checkHeaders(s, email)

	combined := email.Subject + " " + email.BodyText + " " + email.BodyHTML

	if firstMatch(lib.Urgency, combined) != "" {
		s.add(10, CategorySocialEngineering, SeverityMedium, "Urgency language detected",
			"The email uses urgent or pressure tactics common in phishing.")
	}
	if firstMatch(lib.Credential, combined) != "" {
		s.add(20, CategoryCredentialHarvesting, SeverityHigh, "Credential request detected",
			"The email contains language requesting login or personal information.")
	}
	checkImpersonation(s, lib, email.From, combined)

	checkURLs(s, email)
	checkAttachments(s, email.Attachments)

	level := LevelFor(s.score)
	return &Assessment{
		Level:      level,
		Score:      s.score,
		Indicators: s.indicators,
		Summary:    level.Summary(),
	}
}

func checkAuthentication(s *scorer, auth eml.AuthenticationResult) {
	switch auth.SPFStatus {
	case eml.StatusFail:
		s.add(25, CategoryAuthentication, SeverityHigh, "SPF check failed",
			"The sender's domain did not authorize this server to send emails on its behalf.")
	case eml.StatusSoftFail:
		s.add(10, CategoryAuthentication, SeverityMedium, "SPF soft fail",
			"The sender's SPF policy indicates this server may not be authorized.")
	}

	if auth.DKIMStatus == eml.StatusFail {
		s.add(25, CategoryAuthentication, SeverityHigh, "DKIM verification failed",
			"The email's DKIM signature could not be verified.")
	}
	if auth.DMARCStatus == eml.StatusFail {
		s.add(25, CategoryAuthentication, SeverityHigh, "DMARC check failed",
			"The email failed DMARC policy validation.")
	}
}

func checkHeaders(s *scorer, email *eml.ParsedEmail) {
	from := strings.ToLower(email.From)

	if email.ReturnPath != nil && *email.ReturnPath != "" {
		rp := strings.ToLower(*email.ReturnPath)
		if !strings.Contains(from, rp) && !strings.Contains(rp, from) {
			s.add(15, CategoryHeaderAnomaly, SeverityMedium, "Return-Path mismatch",
				fmt.Sprintf("From: %s differs from Return-Path: %s", email.From, *email.ReturnPath))
		}
	}

	if email.ReplyTo != nil && *email.ReplyTo != "" {
		if !strings.Contains(from, strings.ToLower(*email.ReplyTo)) {
			s.add(15, CategoryHeaderAnomaly, SeverityMedium, "Reply-To mismatch",
				fmt.Sprintf("Replies would go to %s instead of %s", *email.ReplyTo, email.From))
		}
	}
}

// checkImpersonation takes the first match of each pattern in turn and flags
// the first brand that does not appear in the From header.
func checkImpersonation(s *scorer, lib *patterns.Library, from, text string) {
	from = strings.ToLower(from)
	for _, re := range lib.Impersonation {
		brand := strings.ToLower(re.FindString(text))
		if brand == "" || strings.Contains(from, brand) {
			continue
		}
		s.add(15, CategoryImpersonation, SeverityHigh, fmt.Sprintf("Possible %s impersonation", brand),
			fmt.Sprintf("Email mentions %s but sender domain doesn't match.", brand))
		return
	}
}

func checkURLs(s *scorer, email *eml.ParsedEmail) {
	for _, u := range email.URLs {
		if shortener, ok := patterns.ShortenerFor(extract.Host(u)); ok {
			s.add(10, CategorySuspiciousURL, SeverityMedium, "URL shortener detected",
				fmt.Sprintf("URL shortener used: %s (may hide malicious destination)", shortener))
			break
		}
	}

	sender := email.SenderDomain()
	if sender == "" {
		return
	}
	for _, u := range email.URLs {
		host := extract.Host(u)
		if host == "" {
			continue
		}
		if !strings.Contains(host, sender) && !strings.Contains(sender, host) {
			s.add(5, CategorySuspiciousURL, SeverityLow, "External domain in links",
				fmt.Sprintf("Link points to %s which differs from sender domain", host))
			break
		}
	}
}

func checkAttachments(s *scorer, attachments []eml.Attachment) {
	for _, att := range attachments {
		ext := patterns.Extension(att.Filename)
		switch {
		case patterns.IsDangerousExtension(ext):
			s.add(30, CategoryMaliciousAttachment, SeverityHigh, "Dangerous file type: ."+ext,
				fmt.Sprintf("Attachment '%s' is an executable file type", att.Filename))
		case patterns.IsArchiveExtension(ext):
			s.add(10, CategorySuspiciousAttachment, SeverityMedium, "Archive file type: ."+ext,
				fmt.Sprintf("Attachment '%s' is an archive that may contain malware", att.Filename))
		}
	}
}

func firstMatch(res []*regexp.Regexp, text string) string {
	for _, re := range res {
		if m := re.FindString(text); m != "" {
			return m
		}
	}
	return ""
}
