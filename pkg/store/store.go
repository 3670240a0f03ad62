// Package store persists analysis results in PostgreSQL so repeated reports
// of the same message can be looked up and counted.
package store

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/otherjamesbrown/mailtriage/pkg/analysis"
	mterrors "github.com/otherjamesbrown/mailtriage/pkg/errors"
	"github.com/otherjamesbrown/mailtriage/pkg/logging"
	"github.com/otherjamesbrown/mailtriage/pkg/threat"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations returns the schema migrations for the analyses table, for use
// with db.RunMigrations.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// DefaultListLimit caps ListRecent when no limit is given.
const DefaultListLimit = 20

// DB is the subset of *pgxpool.Pool used by the repository.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Record is a stored analysis summary. Report is only populated by
// GetAnalysis.
type Record struct {
	Fingerprint string           `json:"fingerprint" yaml:"fingerprint"`
	ContentHash string           `json:"content_hash" yaml:"content_hash"`
	Subject     string           `json:"subject" yaml:"subject"`
	Sender      string           `json:"sender" yaml:"sender"`
	Score       int              `json:"score" yaml:"score"`
	Level       threat.Level     `json:"level" yaml:"level"`
	Indicators  []string         `json:"indicators" yaml:"indicators"`
	Source      string           `json:"source" yaml:"source"`
	TimesSeen   int              `json:"times_seen" yaml:"times_seen"`
	AnalyzedAt  time.Time        `json:"analyzed_at" yaml:"analyzed_at"`
	Report      *analysis.Result `json:"report,omitempty" yaml:"-"`
}

// Repository reads and writes the analyses table.
type Repository struct {
	db     DB
	logger logging.Logger
	now    func() time.Time
}

// NewRepository creates a repository over db (normally a *pgxpool.Pool).
func NewRepository(db DB, logger logging.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger.With(logging.Component("analysis_store")),
		now:    time.Now,
	}
}

// NewRecord summarizes r for storage.
func NewRecord(r *analysis.Result, source string, fallback time.Time) *Record {
	indicators := make([]string, len(r.Threat.Indicators))
	for i, ind := range r.Threat.Indicators {
		indicators[i] = ind.Description
	}

	analyzedAt, err := time.Parse(analysis.TimestampFormat, r.AnalyzedAt)
	if err != nil {
		analyzedAt = fallback.UTC()
	}

	return &Record{
		Fingerprint: r.Fingerprint(),
		ContentHash: r.Email.ContentHash,
		Subject:     r.Email.Subject,
		Sender:      r.Email.From,
		Score:       r.Threat.Score,
		Level:       r.Threat.Level,
		Indicators:  indicators,
		Source:      source,
		TimesSeen:   1,
		AnalyzedAt:  analyzedAt,
	}
}

const upsertAnalysis = `
	INSERT INTO analyses (
		fingerprint, content_hash, subject, sender,
		score, level, indicators, report,
		source, analyzed_at
	) VALUES (
		$1, $2, $3, $4,
		$5, $6, $7, $8,
		$9, $10
	)
	ON CONFLICT (fingerprint) DO UPDATE SET
		score = EXCLUDED.score,
		level = EXCLUDED.level,
		indicators = EXCLUDED.indicators,
		report = EXCLUDED.report,
		source = EXCLUDED.source,
		analyzed_at = EXCLUDED.analyzed_at,
		times_seen = analyses.times_seen + 1,
		updated_at = NOW()
	RETURNING times_seen
`

// SaveAnalysis upserts r keyed on its fingerprint and returns the stored
// record. Saving the same message again refreshes the report and increments
// TimesSeen.
func (s *Repository) SaveAnalysis(ctx context.Context, r *analysis.Result, source string) (*Record, error) {
	rec := NewRecord(r, source, s.now())

	indicatorsJSON, err := json.Marshal(rec.Indicators)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal indicators: %w", err)
	}
	reportJSON, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}

	err = s.db.QueryRow(ctx, upsertAnalysis,
		rec.Fingerprint,
		rec.ContentHash,
		rec.Subject,
		rec.Sender,
		rec.Score,
		string(rec.Level),
		indicatorsJSON,
		reportJSON,
		rec.Source,
		rec.AnalyzedAt,
	).Scan(&rec.TimesSeen)
	if err != nil {
		s.logger.Error("Failed to save analysis",
			logging.Err(err),
			logging.F("fingerprint", rec.Fingerprint))
		return nil, mterrors.ClassifyError(fmt.Errorf("failed to save analysis %s: %w", rec.Fingerprint, err), mterrors.StageStore)
	}

	s.logger.Debug("Analysis saved",
		logging.F("fingerprint", rec.Fingerprint),
		logging.F("level", rec.Level),
		logging.F("times_seen", rec.TimesSeen))

	return rec, nil
}

// HandleResult implements analysis.Sink.
func (s *Repository) HandleResult(ctx context.Context, origin string, r *analysis.Result) error {
	_, err := s.SaveAnalysis(ctx, r, origin)
	return err
}

// GetAnalysis loads the record and full report for fingerprint. It returns
// an error matching mterrors.ErrNotFound when no row exists.
func (s *Repository) GetAnalysis(ctx context.Context, fingerprint string) (*Record, error) {
	query := `
		SELECT fingerprint, content_hash, subject, sender, score, level,
		       indicators, source, times_seen, analyzed_at, report
		FROM analyses
		WHERE fingerprint = $1
	`

	var (
		rec        Record
		level      string
		indicators []byte
		report     []byte
	)
	err := s.db.QueryRow(ctx, query, fingerprint).Scan(
		&rec.Fingerprint, &rec.ContentHash, &rec.Subject, &rec.Sender, &rec.Score, &level,
		&indicators, &rec.Source, &rec.TimesSeen, &rec.AnalyzedAt, &report,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("analysis %s: %w", fingerprint, mterrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis %s: %w", fingerprint, err)
	}

	rec.Level = threat.Level(level)
	if err := json.Unmarshal(indicators, &rec.Indicators); err != nil {
		return nil, fmt.Errorf("failed to decode indicators: %w", err)
	}
	rec.Report = &analysis.Result{}
	if err := json.Unmarshal(report, rec.Report); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}

	return &rec, nil
}

// ListRecent returns up to limit records ordered by analysis time, newest
// first. A non-positive limit uses DefaultListLimit.
func (s *Repository) ListRecent(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `
		SELECT fingerprint, content_hash, subject, sender, score, level,
		       indicators, source, times_seen, analyzed_at
		FROM analyses
		ORDER BY analyzed_at DESC, fingerprint
		LIMIT $1
	`

	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	records := []*Record{}
	for rows.Next() {
		var (
			rec        Record
			level      string
			indicators []byte
		)
		if err := rows.Scan(&rec.Fingerprint, &rec.ContentHash, &rec.Subject, &rec.Sender, &rec.Score,
			&level, &indicators, &rec.Source, &rec.TimesSeen, &rec.AnalyzedAt); err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		rec.Level = threat.Level(level)
		if err := json.Unmarshal(indicators, &rec.Indicators); err != nil {
			return nil, fmt.Errorf("failed to decode indicators: %w", err)
		}
		records = append(records, &rec)
	}

	return records, rows.Err()
}
