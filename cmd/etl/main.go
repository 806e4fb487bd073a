package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/quake-data-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/quake-data-etl/internal/adapter/kafka"
	"github.com/couchcryptid/quake-data-etl/internal/adapter/postgres"
	"github.com/couchcryptid/quake-data-etl/internal/adapter/usgs"
	"github.com/couchcryptid/quake-data-etl/internal/config"
	"github.com/couchcryptid/quake-data-etl/internal/domain"
	"github.com/couchcryptid/quake-data-etl/internal/observability"
	"github.com/couchcryptid/quake-data-etl/internal/pipeline"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run wires the service and returns the process exit code so deferred
// cleanup completes before main exits.
func run(args []string) int {
	fs := flag.NewFlagSet("etl", flag.ContinueOnError)
	once := fs.Bool("once", false, "run the pipeline a single time and exit")
	start := fs.String("start", "", "window start date (YYYY-MM-DD), requires -end")
	end := fs.String("end", "", "window end date (YYYY-MM-DD), requires -start")
	transformOnly := fs.Bool("transform-only", false, "re-derive staging from raw data without extracting")
	envFile := fs.String("env-file", ".env", "optional dotenv file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if err := config.LoadDotEnv(*envFile); err != nil {
		slog.Error("failed to load env file", "error", err)
		return 1
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return 1
	}
	defer pool.Close()

	if err := postgres.Migrate(pool, logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		return 1
	}

	rawStore := postgres.NewRawStore(pool, logger, metrics)
	transformer := pipeline.NewWindowedTransformer(
		postgres.NewSchemaManager(pool, logger, metrics),
		rawStore,
		postgres.NewStagingStore(pool),
		logger,
		metrics,
	)

	stages := pipeline.Stages{
		Extractor:   usgs.NewClient(cfg.FeedURL, cfg.FeedTimeout, logger, metrics),
		Loader:      rawStore,
		Transformer: transformer,
		Stats:       postgres.NewStatsReader(pool),
	}

	// Publishing is feature-flagged via KAFKA_BROKERS.
	var publisher *kafkaadapter.Publisher
	if cfg.PublishEnabled() {
		publisher = kafkaadapter.NewPublisher(cfg, logger)
		stages.Publisher = publisher
		logger.Info("kafka publishing enabled", "topic", cfg.KafkaSinkTopic, "brokers", cfg.KafkaBrokers)
	} else {
		logger.Info("kafka publishing disabled")
	}
	defer closePublisher(publisher, logger)

	p := pipeline.New(stages, cfg.ProcessDays, logger, metrics)

	if *once {
		return runOnce(ctx, p, cfg, *start, *end, *transformOnly, logger)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, postgres.NewReadiness(pool), p, cfg.RunTimeout, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return 0
}

func runOnce(ctx context.Context, p *pipeline.Pipeline, cfg *config.Config, start, end string, transformOnly bool, logger *slog.Logger) int {
	window := p.DefaultWindow()
	if start != "" || end != "" {
		w, err := domain.ParseWindow(start, end)
		if err != nil {
			logger.Error("invalid window", "error", err)
			return 2
		}
		window = w
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.RunTimeout)
	defer cancel()

	var err error
	if transformOnly {
		_, err = p.RunTransform(ctx, window)
	} else {
		_, err = p.Run(ctx, window)
	}
	if err != nil {
		return 1
	}
	return 0
}

func closePublisher(publisher *kafkaadapter.Publisher, logger *slog.Logger) {
	if publisher == nil {
		return
	}
	if err := publisher.Close(); err != nil {
		logger.Error("kafka publisher close error", "error", err)
	}
}
