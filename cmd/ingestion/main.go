// Command ingestion starts the chunk ingestion HTTP service.
//
// The service accepts policy documents or pre-chunked passages via
// POST /api/v1/chunks, stores them in PostgreSQL as the next corpus
// snapshot and publishes a corpus.updated event so query services rebuild.
//
// Usage:
//
//	go run ./cmd/ingestion [-config configs/development.yaml]
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

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/analytics/collector"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/chunk"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/vector"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/postgres"
)

// main connects to PostgreSQL, ensures the chunk schema, creates the Kafka
// producers and serves the ingestion API until SIGINT/SIGTERM.
func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting ingestion service", "port", cfg.Ingestion.Port, "chunking_mode", cfg.Corpus.ChunkingMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)

	db, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	store := corpus.NewStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		slog.Error("failed to ensure chunk schema", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to postgres")

	opts := chunk.SplitterOptions{
		Mode:                 chunk.Mode(cfg.Corpus.ChunkingMode),
		ChunkSize:            cfg.Corpus.ChunkSize,
		ChunkOverlap:         cfg.Corpus.ChunkOverlap,
		BreakpointPercentile: cfg.Corpus.BreakpointPercentile,
	}
	if opts.Mode == chunk.ModeSemantic {
		embedder, err := vector.NewOpenAIEmbedder(cfg.LLM)
		if err != nil {
			slog.Error("failed to create embedder", "error", err)
			os.Exit(1)
		}
		opts.Embedder = embedder
	}
	splitter, err := chunk.NewSplitter(opts)
	if err != nil {
		slog.Error("failed to create splitter", "error", err)
		os.Exit(1)
	}

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.CorpusUpdated)
	defer producer.Close()
	slog.Info("kafka producer initialized", "topic", cfg.Kafka.Topics.CorpusUpdated)

	analyticsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
	defer analyticsProducer.Close()
	events := collector.NewBatchCollector(analyticsProducer, 100, 5*time.Second)
	events.Start(ctx)
	defer events.Close()

	pub := publisher.New(store, splitter, producer, events, m)
	h := handler.New(pub)

	checker := health.NewChecker()
	checker.Register("postgres", health.PingCheck(db.Ping))

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/chunks", h.Ingest)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Ingestion.RequestTimeout)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Ingestion.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Ingestion.ReadTimeout,
		WriteTimeout: cfg.Ingestion.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Ingestion.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()
	slog.Info("ingestion service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("ingestion service stopped")
}
