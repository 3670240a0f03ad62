// Package eml builds structured, analysis-ready emails from raw RFC 5322/MIME
// messages.
package eml

import (
	"encoding/json"
	"strings"
)

// Authentication status values.
const (
	StatusPass     = "pass"
	StatusFail     = "fail"
	StatusSoftFail = "softfail"
	StatusNeutral  = "neutral"
	StatusPresent  = "present"
	StatusNone     = "none"
	StatusUnknown  = "unknown"
)

// Header is one header field, in document order, with folding removed and
// encoded-words decoded.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Attachment describes a non-body MIME leaf.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
	SHA256      string `json:"sha256"`

	// PreviewError is set when the declared type contradicts the content,
	// e.g. a "PDF" without a %PDF- header.
	PreviewError string `json:"preview_error,omitempty"`
}

// PreviewType classifies the attachment for safe rendering: pdf, image, text or unknown.
func (a Attachment) PreviewType() string {
	ct := strings.ToLower(a.ContentType)
	switch {
	case ct == "":
		return "unknown"
	case ct == "application/pdf":
		return "pdf"
	case strings.HasPrefix(ct, "image/"):
		return "image"
	case strings.HasPrefix(ct, "text/"), ct == "application/json":
		return "text"
	default:
		return "unknown"
	}
}

// AuthenticationResult holds the raw authentication evidence found in headers
// and a normalized status per mechanism. The core never re-verifies anything.
type AuthenticationResult struct {
	SPF   *string `json:"spf"`
	DKIM  *string `json:"dkim"`
	DMARC *string `json:"dmarc"`

	SPFStatus   string `json:"spf_status"`
	DKIMStatus  string `json:"dkim_status"`
	DMARCStatus string `json:"dmarc_status"`
}

// RawMessage is the original message bytes. It marshals to JSON as a string
// so exported reports keep the message readable.
type RawMessage []byte

func (r RawMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(r))
}

func (r *RawMessage) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*r = RawMessage(s)
	return nil
}

// ParsedEmail is the structured form of one message. It is not modified after
// ParseBytes returns.
type ParsedEmail struct {
	// ID is the first 8 bytes of the SHA-256 of the raw message, hex encoded.
	ID          string `json:"id"`
	ContentHash string `json:"content_hash"`

	Subject    string  `json:"subject"`
	From       string  `json:"from"`
	To         string  `json:"to"`
	ReplyTo    *string `json:"reply_to"`
	ReturnPath *string `json:"return_path"`
	Date       *string `json:"date"`

	Headers []Header `json:"headers"`

	BodyText string `json:"body_text"`
	BodyHTML string `json:"body_html"`

	URLs           []string `json:"urls"`
	Domains        []string `json:"domains"`
	IPAddresses    []string `json:"ip_addresses"`
	EmailAddresses []string `json:"email_addresses"`

	Attachments    []Attachment         `json:"attachments"`
	Authentication AuthenticationResult `json:"authentication"`

	RawContent RawMessage `json:"raw_content"`
}

// Header returns the first value of the named header, matched case-insensitively.
func (e *ParsedEmail) Header(name string) (string, bool) {
	for _, h := range e.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

// HeaderValues returns every header value in document order.
func (e *ParsedEmail) HeaderValues() []string {
	values := make([]string, len(e.Headers))
	for i, h := range e.Headers {
		values[i] = h.Value
	}
	return values
}

// SenderDomain returns the lowercased domain of the From address, or "".
func (e *ParsedEmail) SenderDomain() string {
	i := strings.LastIndexByte(e.From, '@')
	if i < 0 {
		return ""
	}
	domain := strings.TrimSpace(e.From[i+1:])
	domain = strings.TrimRight(domain, "> \t")
	return strings.ToLower(domain)
}

// ParseOptions configures email parsing behavior.
type ParseOptions struct {
	// MaxBodySize truncates text and HTML bodies to this many bytes (0 = unlimited).
	// Attachment digests always cover the full content.
	MaxBodySize int

	// MaxDepth bounds multipart nesting (0 = DefaultMaxDepth).
	MaxDepth int
}

// DefaultMaxDepth is the multipart nesting limit used when ParseOptions.MaxDepth is 0.
const DefaultMaxDepth = 32

// DefaultParseOptions returns sensible default parsing options.
func DefaultParseOptions() ParseOptions {
	return ParseOptions{
		MaxBodySize: 0,
		MaxDepth:    DefaultMaxDepth,
	}
}

// ParseResult contains the parsed email and any non-fatal warnings.
type ParseResult struct {
	Email    *ParsedEmail
	Warnings []string
}
