// Package cmd provides CLI commands for the mailtriage tool.
package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/otherjamesbrown/mailtriage/config"
	"github.com/otherjamesbrown/mailtriage/pkg/analysis"
	"github.com/otherjamesbrown/mailtriage/pkg/events"
	"github.com/otherjamesbrown/mailtriage/pkg/logging"
	"github.com/otherjamesbrown/mailtriage/pkg/store"
)

// AnalysisStore is the part of store.Repository the commands use.
type AnalysisStore interface {
	analysis.Sink
	GetAnalysis(ctx context.Context, fingerprint string) (*store.Record, error)
	ListRecent(ctx context.Context, limit int) ([]*store.Record, error)
}

// CommandDeps holds the dependencies shared by all commands.
type CommandDeps struct {
	Config       *config.Config
	OutputFormat config.OutputFormat
	Logger       logging.Logger

	LoadConfig   func() (*config.Config, error)
	SaveConfig   func(*config.Config, string) error
	ConnectToDB  func(context.Context, *config.Config) (*pgxpool.Pool, error)
	OpenStore    func(context.Context, *config.Config, logging.Logger) (AnalysisStore, func(), error)
	ConnectRedis func(context.Context, *config.Config) (events.Client, error)
}

// DefaultDeps returns the default dependencies for production use.
func DefaultDeps() *CommandDeps {
	return &CommandDeps{
		LoadConfig:   config.LoadConfig,
		SaveConfig:   config.SaveConfig,
		ConnectToDB:  connectToDatabase,
		OpenStore:    openStore,
		ConnectRedis: connectToRedis,
	}
}

// loadedConfig returns the loaded configuration, loading it on first use.
func (d *CommandDeps) loadedConfig() (*config.Config, error) {
	if d.Config != nil {
		return d.Config, nil
	}
	if d.LoadConfig == nil {
		d.Config = config.DefaultConfig()
		return d.Config, nil
	}
	cfg, err := d.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	d.Config = cfg
	return cfg, nil
}

func (d *CommandDeps) logger() logging.Logger {
	if d.Logger == nil {
		return logging.NewNopLogger()
	}
	return d.Logger
}

// format resolves the output format: an explicit --output wins over config.
func (d *CommandDeps) format() config.OutputFormat {
	if d.OutputFormat != "" {
		return d.OutputFormat
	}
	if d.Config != nil && d.Config.OutputFormat != "" {
		return d.Config.OutputFormat
	}
	return config.DefaultOutputFormat
}

// newAnalyzer builds an analyzer from cfg. metrics may be nil.
func (d *CommandDeps) newAnalyzer(cfg *config.Config, metrics *analysis.Metrics) *analysis.Analyzer {
	return analysis.New(d.logger(), cfg.AnalysisConfig(), metrics)
}

// resultSinks opens the optional store and event publisher. The returned
// cleanup closes whatever was opened.
func (d *CommandDeps) resultSinks(ctx context.Context, cfg *config.Config, useStore, publish bool) (sinks []analysis.Sink, publisher *events.Publisher, cleanup func(), err error) {
	var closers []func()
	cleanup = func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if useStore {
		st, closeStore, err := d.OpenStore(ctx, cfg, d.logger())
		if err != nil {
			return nil, nil, cleanup, fmt.Errorf("opening analysis store: %w", err)
		}
		closers = append(closers, closeStore)
		sinks = append(sinks, st)
	}

	if publish {
		if !cfg.Redis.Enabled() {
			return nil, nil, cleanup, fmt.Errorf("--publish requires redis.addr (or MAILTRIAGE_REDIS_ADDR)")
		}
		client, err := d.ConnectRedis(ctx, cfg)
		if err != nil {
			return nil, nil, cleanup, fmt.Errorf("connecting to redis: %w", err)
		}
		publisher = events.NewPublisher(client, d.logger())
		closers = append(closers, func() { publisher.Close() })
		sinks = append(sinks, publisher)
	}

	return sinks, publisher, cleanup, nil
}
