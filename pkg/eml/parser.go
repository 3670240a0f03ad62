package eml

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-message"

	mterrors "github.com/otherjamesbrown/mailtriage/pkg/errors"
	"github.com/otherjamesbrown/mailtriage/pkg/extract"
	"github.com/otherjamesbrown/mailtriage/pkg/patterns"
)

// Parser builds ParsedEmail values from raw messages.
type Parser struct {
	opts ParseOptions
}

// NewParser creates a new email parser with the given options.
func NewParser(opts ParseOptions) *Parser {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	return &Parser{opts: opts}
}

// ParseFile parses an email from a file path.
func (p *Parser) ParseFile(path string) (*ParseResult, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return p.ParseBytes(data)
}

// ParseBytes parses an email from raw bytes. It fails only when the data is
// not decodable as MIME; missing headers and odd parts become empty fields
// and warnings.
func (p *Parser) ParseBytes(data []byte) (*ParseResult, error) {
	result := &ParseResult{
		Email:    &ParsedEmail{},
		Warnings: []string{},
	}

	email := result.Email
	email.RawContent = RawMessage(data)

	sum := sha256.Sum256(data)
	email.ContentHash = hex.EncodeToString(sum[:])
	email.ID = hex.EncodeToString(sum[:8])

	if len(bytes.TrimSpace(data)) > 0 {
		entity, err := message.Read(bytes.NewReader(data))
		if entity == nil || (err != nil && !recoverable(err)) {
			return nil, mterrors.NewParseError("reading message header", err)
		}
		if err != nil {
			result.warnf("top-level part: %v", err)
		}

		email.Headers = collectHeaders(entity.Header)

		w := &walker{opts: p.opts, email: email, result: result}
		if err := w.walk(entity, 0); err != nil {
			return nil, err
		}
	}

	if email.Headers == nil {
		email.Headers = []Header{}
	}

	if email.BodyText == "" && email.BodyHTML != "" {
		email.BodyText = StripHTML(email.BodyHTML)
	}

	p.fillCanonical(email)
	email.Authentication = parseAuthentication(email)

	headerValues := email.HeaderValues()
	email.URLs = extract.URLs(email.BodyText, email.BodyHTML)
	email.Domains = extract.Domains(email.URLs, email.BodyText)
	email.IPAddresses = extract.IPs(headerValues)
	email.EmailAddresses = extract.EmailAddresses(email.BodyText, headerValues)

	if email.Attachments == nil {
		email.Attachments = []Attachment{}
	}

	return result, nil
}

func (r *ParseResult) warnf(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// recoverable reports whether a go-message error still left a usable entity.
func recoverable(err error) bool {
	return message.IsUnknownCharset(err) || message.IsUnknownEncoding(err)
}

func collectHeaders(h message.Header) []Header {
	var headers []Header
	fields := h.Fields()
	for fields.Next() {
		headers = append(headers, Header{
			Name:  rawFieldName(fields),
			Value: decodeHeaderValue(fields.Value()),
		})
	}
	return headers
}

// rawFieldName returns the field name as written in the message. Key() is
// canonicalised (Message-ID becomes Message-Id).
func rawFieldName(fields message.HeaderFields) string {
	raw, err := fields.Raw()
	if err != nil {
		return fields.Key()
	}
	i := bytes.IndexByte(raw, ':')
	if i <= 0 {
		return fields.Key()
	}
	return string(bytes.TrimSpace(raw[:i]))
}

func (p *Parser) fillCanonical(email *ParsedEmail) {
	email.Subject, _ = email.Header("Subject")
	email.From, _ = email.Header("From")
	email.To, _ = email.Header("To")
	email.ReplyTo = optionalHeader(email, "Reply-To")
	email.ReturnPath = optionalHeader(email, "Return-Path")
	email.Date = optionalHeader(email, "Date")
}

func optionalHeader(email *ParsedEmail, name string) *string {
	if v, ok := email.Header(name); ok {
		return &v
	}
	return nil
}

// walker performs the depth-first traversal of the MIME tree.
type walker struct {
	opts   ParseOptions
	email  *ParsedEmail
	result *ParseResult
}

func (w *walker) walk(e *message.Entity, depth int) error {
	if depth > w.opts.MaxDepth {
		w.result.warnf("multipart nesting deeper than %d levels skipped", w.opts.MaxDepth)
		return nil
	}

	mediaType, params := mediaTypeOf(e.Header)

	mr := e.MultipartReader()
	if mr == nil {
		w.leaf(e, mediaType, params)
		return nil
	}

	parts := 0
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil && !recoverable(err) {
			if parts == 0 {
				return mterrors.NewParseError(fmt.Sprintf("reading %s body", mediaType), err)
			}
			// Truncated after at least one complete part: keep what was read.
			w.result.warnf("multipart body truncated after %d parts: %v", parts, err)
			return nil
		}
		if part == nil {
			return mterrors.NewParseError(fmt.Sprintf("reading %s body", mediaType), err)
		}
		if err != nil {
			w.result.warnf("part %d: %v", parts+1, err)
		}
		parts++

		if err := w.walk(part, depth+1); err != nil {
			return err
		}
	}
}

func (w *walker) leaf(e *message.Entity, mediaType string, params map[string]string) {
	body, err := io.ReadAll(e.Body)
	if err != nil {
		w.result.warnf("reading %s part: %v", mediaType, err)
	}

	switch mediaType {
	case "text/plain":
		w.email.BodyText = w.decodeText(body, params["charset"])
	case "text/html":
		w.email.BodyHTML = w.decodeText(body, params["charset"])
	}

	disposition := decodeHeaderValue(e.Header.Get("Content-Disposition"))
	if isAttachment(mediaType, disposition) {
		w.email.Attachments = append(w.email.Attachments, newAttachment(e.Header, body, mediaType, params, disposition))
	}
}

func (w *walker) decodeText(body []byte, charset string) string {
	decoded, err := decodeCharset(body, charset)
	if err != nil {
		w.result.warnf("charset warning: %v", err)
	}

	text := string(decoded)
	if w.opts.MaxBodySize > 0 && len(text) > w.opts.MaxBodySize {
		cut := w.opts.MaxBodySize
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	return text
}

// mediaTypeOf returns the lowercased media type and its parameters,
// defaulting to text/plain when the header is absent.
func mediaTypeOf(h message.Header) (string, map[string]string) {
	raw := strings.TrimSpace(h.Get("Content-Type"))
	if raw == "" {
		return "text/plain", map[string]string{}
	}

	mediaType, params, err := h.ContentType()
	if err != nil || mediaType == "" {
		// Malformed parameters: keep the type token and drop the rest.
		mediaType = strings.TrimSpace(strings.SplitN(raw, ";", 2)[0])
		params = map[string]string{}
	}
	if params == nil {
		params = map[string]string{}
	}
	return strings.ToLower(mediaType), params
}

func isAttachment(mediaType, disposition string) bool {
	if strings.Contains(strings.ToLower(disposition), "attachment") {
		return true
	}
	return !strings.HasPrefix(mediaType, "text/") && !strings.HasPrefix(mediaType, "multipart/")
}

func newAttachment(h message.Header, body []byte, mediaType string, params map[string]string, disposition string) Attachment {
	sum := sha256.Sum256(body)
	att := Attachment{
		Filename:    attachmentFilename(h, params, disposition),
		ContentType: mediaType,
		Size:        len(body),
		SHA256:      hex.EncodeToString(sum[:]),
	}

	if looksLikePDF(att) && !bytes.HasPrefix(body, []byte("%PDF-")) {
		att.PreviewError = "Attachment is labeled PDF but does not contain a valid PDF header (%PDF-)."
	}
	return att
}

// attachmentFilename picks the Content-Type name parameter, then the
// disposition filename token, then any RFC 2231 filename, then "unknown".
func attachmentFilename(h message.Header, params map[string]string, disposition string) string {
	if name := strings.TrimSpace(params["name"]); name != "" {
		return name
	}
	if m := patterns.Get().DispositionFilename.FindStringSubmatch(disposition); m != nil {
		return m[1]
	}
	if _, dparams, err := h.ContentDisposition(); err == nil {
		if name := strings.TrimSpace(dparams["filename"]); name != "" {
			return name
		}
	}
	return "unknown"
}

func looksLikePDF(a Attachment) bool {
	return a.ContentType == "application/pdf" || strings.HasSuffix(strings.ToLower(a.Filename), ".pdf")
}

// StripHTML removes tags, collapses whitespace runs to single spaces and trims.
func StripHTML(html string) string {
	lib := patterns.Get()
	text := lib.HTMLTag.ReplaceAllString(html, " ")
	text = lib.Whitespace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// ParseFile is a convenience function for parsing a single file with default options.
func ParseFile(path string) (*ParseResult, error) {
	return NewParser(DefaultParseOptions()).ParseFile(path)
}

// ParseBytes is a convenience function for parsing raw bytes with default options.
func ParseBytes(data []byte) (*ParseResult, error) {
	return NewParser(DefaultParseOptions()).ParseBytes(data)
}
