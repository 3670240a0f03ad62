// Package intake runs the "report phishing" mailbox: an SMTP listener that
// triages every message it receives.
package intake

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/emersion/go-smtp"

	"github.com/otherjamesbrown/mailtriage/pkg/analysis"
	"github.com/otherjamesbrown/mailtriage/pkg/logging"
)

// Config configures the SMTP listener.
type Config struct {
	Addr            string
	Domain          string
	MaxMessageBytes int64
	MaxRecipients   int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration

	// Dedup, when set, accepts repeat reports without re-triaging them.
	Dedup Deduper
}

// DefaultConfig returns the listener defaults.
func DefaultConfig() Config {
	return Config{
		Addr:            ":2525",
		Domain:          "mailtriage",
		MaxMessageBytes: 25 << 20,
		MaxRecipients:   50,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
	}
}

// Analyzer is the part of *analysis.Analyzer the server needs.
type Analyzer interface {
	Analyze(ctx context.Context, raw []byte) (*analysis.Result, error)
}

// Deduper reports whether a fingerprint was already triaged.
type Deduper interface {
	Seen(ctx context.Context, fingerprint string) (bool, error)
}

// Server is an SMTP server that feeds received messages to the analyzer.
type Server struct {
	smtp    *smtp.Server
	backend *backend
	logger  logging.Logger
	cancel  context.CancelFunc
}

// New builds a server. Results are handed to sinks in order.
func New(analyzer Analyzer, logger logging.Logger, cfg Config, sinks ...analysis.Sink) *Server {
	defaults := DefaultConfig()
	if cfg.Domain == "" {
		cfg.Domain = defaults.Domain
	}
	if cfg.MaxMessageBytes <= 0 {
		cfg.MaxMessageBytes = defaults.MaxMessageBytes
	}
	if cfg.MaxRecipients <= 0 {
		cfg.MaxRecipients = defaults.MaxRecipients
	}

	logger = logger.With(logging.Component("smtp_intake"))
	ctx, cancel := context.WithCancel(context.Background())

	be := &backend{
		ctx:      ctx,
		analyzer: analyzer,
		dedup:    cfg.Dedup,
		sinks:    sinks,
		logger:   logger,
	}

	server := smtp.NewServer(be)
	server.Addr = cfg.Addr
	server.Domain = cfg.Domain
	server.MaxMessageBytes = cfg.MaxMessageBytes
	server.MaxRecipients = cfg.MaxRecipients
	server.ReadTimeout = cfg.ReadTimeout
	server.WriteTimeout = cfg.WriteTimeout
	server.AllowInsecureAuth = true

	return &Server{smtp: server, backend: be, logger: logger, cancel: cancel}
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.smtp.Addr
}

// Stats returns the message counters since start.
func (s *Server) Stats() Stats {
	return s.backend.stats.snapshot()
}

// ListenAndServe listens on the configured address. It returns nil after
// Close.
func (s *Server) ListenAndServe() error {
	s.logger.Info("SMTP intake listening", logging.F("addr", s.smtp.Addr))
	return ignoreClosed(s.smtp.ListenAndServe())
}

// Serve accepts connections on l. It returns nil after Close.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("SMTP intake listening", logging.F("addr", l.Addr().String()))
	return ignoreClosed(s.smtp.Serve(l))
}

// Close stops the listener and cancels in-flight analyses.
func (s *Server) Close() error {
	s.cancel()
	return s.smtp.Close()
}

func ignoreClosed(err error) error {
	if errors.Is(err, smtp.ErrServerClosed) {
		return nil
	}
	return err
}
