// Package ioc assembles the analyst-facing indicator report for a parsed
// email: defanged indicator sets, attachment hashes and the headers worth a
// second look.
package ioc

import (
	"fmt"
	"strings"

	"github.com/otherjamesbrown/mailtriage/pkg/eml"
)

// MaxReceivedHeaders caps how many Received hops are surfaced.
const MaxReceivedHeaders = 3

// Report is the IOC report. Indicator strings are defanged.
type Report struct {
	Domains           []string           `json:"domains" yaml:"domains"`
	URLs              []string           `json:"urls" yaml:"urls"`
	IPAddresses       []string           `json:"ip_addresses" yaml:"ip_addresses"`
	EmailAddresses    []string           `json:"email_addresses" yaml:"email_addresses"`
	FileHashes        []FileHash         `json:"file_hashes" yaml:"file_hashes"`
	HeadersOfInterest []HeaderOfInterest `json:"headers_of_interest" yaml:"headers_of_interest"`
}

// FileHash identifies an attachment by name and SHA-256.
type FileHash struct {
	Filename string `json:"filename" yaml:"filename"`
	SHA256   string `json:"sha256" yaml:"sha256"`
}

// HeaderOfInterest is a header, or a synthetic finding, flagged for review.
type HeaderOfInterest struct {
	Name   string `json:"name" yaml:"name"`
	Value  string `json:"value" yaml:"value"`
	Reason string `json:"reason" yaml:"reason"`
}

// Total returns the number of indicators in the report, excluding headers.
func (r *Report) Total() int {
	return len(r.Domains) + len(r.URLs) + len(r.IPAddresses) + len(r.EmailAddresses) + len(r.FileHashes)
}

// Extract builds the IOC report for email.
func Extract(email *eml.ParsedEmail) *Report {
	report := &Report{
		Domains:           mapStrings(email.Domains, DefangDomain),
		URLs:              mapStrings(email.URLs, DefangURL),
		IPAddresses:       mapStrings(email.IPAddresses, DefangIP),
		EmailAddresses:    mapStrings(email.EmailAddresses, DefangEmail),
		FileHashes:        make([]FileHash, 0, len(email.Attachments)),
		HeadersOfInterest: HeadersOfInterest(email),
	}

	for _, a := range email.Attachments {
		report.FileHashes = append(report.FileHashes, FileHash{Filename: a.Filename, SHA256: a.SHA256})
	}

	return report
}

// HeadersOfInterest selects the headers an analyst should look at and adds
// synthetic findings for sender mismatches and authentication outcomes.
func HeadersOfInterest(email *eml.ParsedEmail) []HeaderOfInterest {
	var out []HeaderOfInterest
	received := 0

	for _, h := range email.Headers {
		switch strings.ToLower(h.Name) {
		case "x-originating-ip":
			out = append(out, HeaderOfInterest{Name: h.Name, Value: h.Value, Reason: "Source IP of the email sender"})
		case "x-mailer":
			out = append(out, HeaderOfInterest{Name: h.Name, Value: h.Value, Reason: "Email client used to send the message"})
		case "received":
			if received < MaxReceivedHeaders && strings.Contains(strings.ToLower(h.Value), "from") {
				out = append(out, HeaderOfInterest{Name: h.Name, Value: h.Value, Reason: "Email routing information"})
				received++
			}
		}
	}

	// Comparisons below are case-sensitive.
	from := email.From
	if rp := deref(email.ReturnPath); from != "" && rp != "" && !strings.Contains(from, rp) && !strings.Contains(rp, from) {
		out = append(out, HeaderOfInterest{
			Name:   "Return-Path Mismatch",
			Value:  fmt.Sprintf("From: %s | Return-Path: %s", from, rp),
			Reason: "Return-Path does not match From address - possible spoofing",
		})
	}

	if rt := deref(email.ReplyTo); rt != "" && !strings.Contains(from, rt) {
		out = append(out, HeaderOfInterest{
			Name:   "Reply-To Mismatch",
			Value:  fmt.Sprintf("From: %s | Reply-To: %s", from, rt),
			Reason: "Reply-To does not match From address - possible redirect",
		})
	}

	auth := email.Authentication
	out = append(out,
		HeaderOfInterest{Name: "SPF", Value: auth.SPFStatus, Reason: "SPF validation result"},
		HeaderOfInterest{Name: "DKIM", Value: auth.DKIMStatus, Reason: "DKIM validation result"},
		HeaderOfInterest{Name: "DMARC", Value: auth.DMARCStatus, Reason: "DMARC validation result"},
	)

	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func mapStrings(in []string, fn func(string) string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = fn(s)
	}
	return out
}
