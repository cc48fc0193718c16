// Command pipeline runs the ETL that prepares the forecaster's model.
//
// Steps, in order:
//   - extract    hourly load from the configured source adapter
//   - transform  hourly readings to UTC daily means
//   - load       replace the daily_load table in PostgreSQL
//   - train      fit the configured model and write the JSON artifact
//
// Usage:
//
//	pipeline -source=csv -db-host=postgres -model=sarima -model-path=models/model.json
//	pipeline -steps=train -schedule="0 3 * * *"
//
// Without -schedule the pipeline runs once and exits non-zero on failure.
// Environment variables mirror the flags; SOURCE_* variables configure the
// source adapter (SOURCE_PATH, SOURCE_URL, SOURCE_QUERY, SOURCE_VALUE_PATH, ...).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/HatiCode/loadcast/cmd/pipeline/config"
	"github.com/HatiCode/loadcast/pkg/adapters"
	"github.com/HatiCode/loadcast/pkg/database"
	"github.com/HatiCode/loadcast/pkg/httpx"
	"github.com/HatiCode/loadcast/pkg/logger"
	"github.com/HatiCode/loadcast/pkg/pipeline"
	"github.com/HatiCode/loadcast/pkg/storage"
	"github.com/HatiCode/loadcast/pkg/tls"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	cfg, err := config.ParseFlags()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(2)
	}

	log := logger.New(cfg.LogFormat, cfg.LogLevel, nil)
	slog.SetDefault(log)

	log.Info("starting loadcast pipeline",
		"version", version,
		"source", cfg.Source,
		"steps", cfg.Steps,
		"model", cfg.Model.Kind,
		"schedule", cfg.Schedule,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("pipeline failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	client, err := httpx.NewClient(tls.Config{}, cfg.SourceTimeout)
	if err != nil {
		return err
	}
	source, err := adapters.New(cfg.Source, cfg.SourceConfig, client)
	if err != nil {
		return fmt.Errorf("create source adapter: %w", err)
	}

	p := &pipeline.Pipeline{
		Source:         source,
		Window:         adapters.Window{Start: cfg.WindowStart, End: cfg.WindowEnd},
		ExtractTimeout: cfg.SourceTimeout,
		Spec:           cfg.Model,
		ArtifactPath:   cfg.ArtifactPath,
		Logger:         log,
	}

	if cfg.Storage == "postgres" && (cfg.Has(pipeline.StepLoad) || cfg.Has(pipeline.StepTrain)) {
		closeRepo, err := openRepository(ctx, cfg, p, log)
		if err != nil {
			return err
		}
		defer closeRepo()
	}

	once := func(ctx context.Context) error {
		report, err := p.Run(ctx, cfg.Steps)
		if err != nil {
			return err
		}
		log.Info("pipeline run complete",
			"readings", report.Readings,
			"days", report.Days,
			"loaded", report.Loaded,
			"trained_on", report.TrainedOn,
			"artifact", report.Artifact,
			"duration_ms", report.Duration.Milliseconds(),
		)
		return nil
	}

	if cfg.Schedule == "" {
		return once(ctx)
	}

	s, err := newScheduler(ctx, cfg.Schedule, once, log)
	if err != nil {
		return err
	}
	s.Start()

	<-ctx.Done()
	log.Info("shutdown signal received, stopping scheduler")
	s.Stop()
	return nil
}

// openRepository connects PostgreSQL, applying migrations first, and wires
// the daily_load repository into p. An unreachable database after the
// configured retries aborts the run.
func openRepository(ctx context.Context, cfg *config.Config, p *pipeline.Pipeline, log *slog.Logger) (func(), error) {
	if cfg.Migrate {
		if _, err := database.Retry(ctx, cfg.Retry, "migrations", log, func(context.Context) (struct{}, error) {
			return struct{}{}, database.Migrate(cfg.Database, log)
		}); err != nil {
			return nil, err
		}
	}

	pool, err := database.Connect(ctx, cfg.Database, cfg.Retry, log)
	if err != nil {
		return nil, err
	}

	p.Repo = storage.NewPostgresStore(pool)
	return pool.Close, nil
}
