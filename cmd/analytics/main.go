// Command analytics starts the standalone analytics aggregation service.
//
// It consumes query and index events from Kafka, aggregates them in memory
// (query volume, latency percentiles, no-evidence and degraded answers, cache
// hit rate, ingestion and rebuild counts, top queries), periodically
// snapshots the aggregate to PostgreSQL when enabled, and exposes
// GET /api/v1/analytics (plus /api/v1/analytics/history with PostgreSQL)
// for dashboards.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/postgres"
)

const snapshotInterval = time.Minute

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analytics service", "port", cfg.Analytics.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	agg := analytics.NewAggregator()
	checker := health.NewChecker()
	mux := http.NewServeMux()

	if cfg.Postgres.Enabled {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		store := aggregator.NewStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			slog.Error("failed to ensure snapshot schema", "error", err)
			os.Exit(1)
		}
		switch latest, err := store.LatestSnapshot(ctx); {
		case err != nil:
			slog.Warn("could not restore analytics counters", "error", err)
		case latest != nil:
			agg.Restore(*latest)
			slog.Info("analytics counters restored", "total_queries", latest.TotalQueries)
		}
		store.StartPeriodicSave(ctx, agg, snapshotInterval)
		checker.Register("postgres", health.DegradedOnError(db.Ping))
		mux.HandleFunc("GET /api/v1/analytics/history", store.HistoryHandler())
	}

	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, analytics.HandleEvent(agg))
	go func() {
		if err := agg.Start(ctx, consumer); err != nil {
			slog.Error("aggregator error", "error", err)
		}
	}()
	slog.Info("analytics aggregator started", "topic", cfg.Kafka.Topics.AnalyticsEvents)

	analyticsHandler := analytics.NewHandler(agg)

	mux.HandleFunc("GET /api/v1/analytics", analyticsHandler.Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Analytics.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Analytics.ReadTimeout,
		WriteTimeout: cfg.Analytics.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Analytics.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("analytics service stopped")
}
