package intake

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/emersion/go-smtp"
	"github.com/google/uuid"

	"github.com/otherjamesbrown/mailtriage/pkg/analysis"
	mterrors "github.com/otherjamesbrown/mailtriage/pkg/errors"
	"github.com/otherjamesbrown/mailtriage/pkg/logging"
)

var (
	errUnparseable = &smtp.SMTPError{
		Code:         554,
		EnhancedCode: smtp.EnhancedCode{5, 6, 0},
		Message:      "Message could not be parsed",
	}
	errEmpty = &smtp.SMTPError{
		Code:         554,
		EnhancedCode: smtp.EnhancedCode{5, 6, 0},
		Message:      "Message is empty",
	}
	errTooLarge = &smtp.SMTPError{
		Code:         552,
		EnhancedCode: smtp.EnhancedCode{5, 3, 4},
		Message:      "Message exceeds size limit",
	}
	errTemporary = &smtp.SMTPError{
		Code:         451,
		EnhancedCode: smtp.EnhancedCode{4, 3, 0},
		Message:      "Temporary failure, please try again later",
	}
)

// Stats counts what the intake did with received messages.
type Stats struct {
	Received   int `json:"received"`
	Analyzed   int `json:"analyzed"`
	Duplicates int `json:"duplicates"`
	Rejected   int `json:"rejected"`
}

type stats struct {
	mu sync.Mutex
	s  Stats
}

func (s *stats) add(fn func(*Stats)) {
	s.mu.Lock()
	fn(&s.s)
	s.mu.Unlock()
}

func (s *stats) snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.s
}

type backend struct {
	ctx      context.Context
	analyzer Analyzer
	dedup    Deduper
	sinks    []analysis.Sink
	logger   logging.Logger
	stats    stats
}

func (b *backend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	remote := ""
	if addr := c.Conn().RemoteAddr(); addr != nil {
		remote = addr.String()
	}
	return &session{backend: b, id: uuid.NewString(), remote: remote}, nil
}

type session struct {
	backend *backend
	id      string
	remote  string
	from    string
	to      []string
}

func (s *session) Mail(from string, _ *smtp.MailOptions) error {
	s.from = normalizeAddress(from)
	return nil
}

func (s *session) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.to = append(s.to, normalizeAddress(to))
	return nil
}

func (s *session) Data(r io.Reader) error {
	b := s.backend
	ctx := context.WithValue(b.ctx, logging.SessionIDKey, s.id)
	logger := b.logger.WithContext(ctx).With(
		logging.F("from", s.from),
		logging.F("remote", s.remote))

	raw, err := io.ReadAll(r)
	if err != nil {
		b.stats.add(func(st *Stats) { st.Rejected++ })
		if errors.Is(err, smtp.ErrDataTooLarge) {
			logger.Warn("Rejected oversized message")
			return errTooLarge
		}
		logger.Warn("Failed to read message data", logging.Err(err))
		return err
	}
	b.stats.add(func(st *Stats) { st.Received++ })

	res, err := b.analyzer.Analyze(ctx, raw)
	if err != nil {
		b.stats.add(func(st *Stats) { st.Rejected++ })
		logger.Warn("Rejected message", logging.Err(err), logging.F("size_bytes", len(raw)))
		return smtpErrorFor(err)
	}

	if b.dedup != nil {
		seen, err := b.dedup.Seen(ctx, res.Fingerprint())
		if err != nil {
			logger.Warn("Dedup check failed, triaging anyway", logging.Err(err))
		} else if seen {
			b.stats.add(func(st *Stats) { st.Duplicates++ })
			logger.Info("Duplicate report accepted without triage",
				logging.F("fingerprint", res.Fingerprint()))
			return nil
		}
	}

	if err := analysis.Dispatch(ctx, b.sinks, "smtp:"+s.from, res); err != nil {
		logger.Warn("Result sink failed", logging.Err(err), logging.F("fingerprint", res.Fingerprint()))
	}
	b.stats.add(func(st *Stats) { st.Analyzed++ })

	logger.Info("Report triaged",
		logging.F("fingerprint", res.Fingerprint()),
		logging.F("level", string(res.Threat.Level)),
		logging.F("score", res.Threat.Score))

	return nil
}

func (s *session) Reset() {
	s.from = ""
	s.to = nil
}

func (s *session) Logout() error {
	return nil
}

// smtpErrorFor maps an analysis failure to an SMTP reply. Problems with the
// message itself are permanent; anything else asks the client to retry.
func smtpErrorFor(err error) *smtp.SMTPError {
	switch {
	case mterrors.IsParse(err):
		return errUnparseable
	case mterrors.IsEmptyMessage(err):
		return errEmpty
	case mterrors.IsMessageTooLarge(err):
		return errTooLarge
	default:
		return errTemporary
	}
}

func normalizeAddress(addr string) string {
	return strings.TrimSpace(strings.ToLower(addr))
}
