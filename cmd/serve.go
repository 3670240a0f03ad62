package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/mailtriage/config"
	"github.com/otherjamesbrown/mailtriage/pkg/analysis"
	"github.com/otherjamesbrown/mailtriage/pkg/db"
	"github.com/otherjamesbrown/mailtriage/pkg/events"
	"github.com/otherjamesbrown/mailtriage/pkg/intake"
	"github.com/otherjamesbrown/mailtriage/pkg/logging"
	"github.com/otherjamesbrown/mailtriage/pkg/store"
)

// Serve command flags
var (
	serveSMTPAddr    string
	serveMetricsAddr string
	serveStore       bool
	serveMigrate     bool
	servePublish     bool
	serveDedup       bool
)

// shutdownTimeout bounds how long in-flight HTTP requests get on exit.
const shutdownTimeout = 10 * time.Second

// NewServeCommand creates the serve command.
func NewServeCommand(deps *CommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the SMTP report mailbox",
		Long: `Run an SMTP listener that triages every message it receives, plus an
HTTP listener for operations.

Point the "report phishing" button or a forwarding rule at the SMTP address.
Unparseable messages are rejected with 554; everything else is accepted and
triaged. Results go to the database (--store) and Redis (--publish); with
--dedup, re-reported messages are accepted without being triaged again.

The operations listener serves:
  /metrics   Prometheus metrics
  /healthz   Dependency health and intake counters
  /version   Build information

Examples:
  mailtriage serve
  mailtriage serve --smtp-addr :25 --metrics-addr :9102
  mailtriage serve --store --migrate --publish --dedup`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), deps)
		},
	}

	cmd.Flags().StringVar(&serveSMTPAddr, "smtp-addr", "", "SMTP listen address (default from config)")
	cmd.Flags().StringVar(&serveMetricsAddr, "metrics-addr", "", "Operations HTTP listen address (default from config)")
	cmd.Flags().BoolVar(&serveStore, "store", false, "Save analyses to the database")
	cmd.Flags().BoolVar(&serveMigrate, "migrate", false, "Apply pending database migrations at startup (with --store)")
	cmd.Flags().BoolVar(&servePublish, "publish", false, "Publish analysis events to Redis")
	cmd.Flags().BoolVar(&serveDedup, "dedup", false, "Accept re-reported messages without triage (requires Redis)")

	return cmd
}

func runServe(ctx context.Context, deps *CommandDeps) error {
	cfg, err := deps.loadedConfig()
	if err != nil {
		return err
	}
	logger := deps.logger().With(logging.Component("serve"))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	analyzer := deps.newAnalyzer(cfg, analysis.NewMetrics(reg))

	var (
		sinks  []analysis.Sink
		checks []intake.HealthCheck
		icfg   = intakeConfig(cfg)
	)

	if serveStore {
		pool, err := deps.ConnectToDB(ctx, cfg)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer db.Close(pool)

		if serveMigrate {
			result, err := db.RunMigrations(ctx, pool, store.Migrations())
			if err != nil {
				return fmt.Errorf("applying migrations: %w", err)
			}
			logger.Info("Migrations checked",
				logging.F("applied", len(result.Applied)),
				logging.F("skipped", len(result.Skipped)))
		}

		if _, err := db.RegisterPoolStatsCollector(reg, pool, ServiceName); err != nil {
			return fmt.Errorf("registering pool metrics: %w", err)
		}
		sinks = append(sinks, store.NewRepository(pool, deps.logger()))
		checks = append(checks, intake.HealthCheck{Name: "database", Check: func(ctx context.Context) error {
			if status := db.Check(ctx, pool); !status.Healthy {
				return errors.New(status.Error)
			}
			return nil
		}})
	}

	if servePublish || serveDedup {
		if !cfg.Redis.Enabled() {
			return fmt.Errorf("--publish and --dedup require redis.addr (or MAILTRIAGE_REDIS_ADDR)")
		}
		client, err := deps.ConnectRedis(ctx, cfg)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer client.Close()

		if servePublish {
			sinks = append(sinks, events.NewPublisher(client, deps.logger()))
		}
		if serveDedup {
			icfg.Dedup = events.NewDedupFilter(client, cfg.Redis.DedupTTL)
		}
		if pinger, ok := client.(interface {
			Ping(context.Context) *redis.StatusCmd
		}); ok {
			checks = append(checks, intake.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
				return pinger.Ping(ctx).Err()
			}})
		}
	}

	srv := intake.New(analyzer, deps.logger(), icfg, sinks...)

	metricsAddr := cfg.MetricsAddr
	if serveMetricsAddr != "" {
		metricsAddr = serveMetricsAddr
	}
	httpSrv := &http.Server{
		Addr:              metricsAddr,
		Handler:           intake.NewOpsHandler(reg, srv, checks...),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	go func() {
		logger.Info("Operations listener started", logging.F("addr", metricsAddr))
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case runErr = <-errCh:
		if runErr != nil {
			logger.Error("Listener failed", logging.Err(runErr))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	srv.Close()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Operations listener did not shut down cleanly", logging.Err(err))
	}

	stats := srv.Stats()
	logger.Info("Intake stopped",
		logging.F("received", stats.Received),
		logging.F("analyzed", stats.Analyzed),
		logging.F("duplicates", stats.Duplicates),
		logging.F("rejected", stats.Rejected))

	return runErr
}

// intakeConfig maps the configuration and --smtp-addr onto the listener.
func intakeConfig(cfg *config.Config) intake.Config {
	ic := intake.Config{
		Addr:            cfg.Intake.Addr,
		Domain:          cfg.Intake.Domain,
		MaxMessageBytes: cfg.Intake.MaxMessageBytes,
		MaxRecipients:   cfg.Intake.MaxRecipients,
		ReadTimeout:     cfg.Intake.ReadTimeout,
		WriteTimeout:    cfg.Intake.WriteTimeout,
	}
	if serveSMTPAddr != "" {
		ic.Addr = serveSMTPAddr
	}
	return ic
}
