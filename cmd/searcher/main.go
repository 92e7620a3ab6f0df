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

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/redis"
)

const (
	defaultLimit = 10
	maxResults   = 50
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting query service",
		"port", cfg.Server.Port,
		"corpus_source", cfg.Corpus.Source,
		"expansion_mode", cfg.Retrieval.ExpansionMode,
		"rerank", cfg.Rerank.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.Metrics.Enabled {
		metricsStopped := metrics.StartServer(ctx, cfg.Metrics.Port)
		defer func() { <-metricsStopped }()
	}

	checker := health.NewChecker()

	var db *postgres.Client
	if cfg.Postgres.Enabled {
		db, err = postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		checker.Register("postgres", health.PingCheck(db.Ping))
	}

	wired, err := pipeline.FromConfig(cfg, db, m)
	if err != nil {
		slog.Error("failed to assemble pipeline", "error", err)
		os.Exit(1)
	}
	rag := wired.Pipeline
	checker.Register("pipeline", health.PingCheck(rag.Ready))
	if wired.Rerank != nil {
		checker.Register("reranker", health.DegradedOnError(wired.Rerank.Ping))
	}

	go func() {
		if err := rag.Rebuild(ctx); err != nil {
			slog.Error("initial index build failed", "error", err)
			return
		}
		version, chunks := rag.Snapshot()
		slog.Info("pipeline ready", "snapshot_version", version, "chunks", chunks)
	}()

	var queryCache *cache.Cache
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, query caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
			checker.Register("redis", health.DegradedOnError(redisClient.Ping))
			slog.Info("query cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	var tracker handler.Tracker
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer producer.Close()
		collector := analytics.NewCollector(producer, 10000)
		collector.Start(ctx)
		defer collector.Close()
		tracker = collector
		slog.Info("analytics collector started", "topic", cfg.Kafka.Topics.AnalyticsEvents)

		opts := consumer.Options{Tracker: collector}
		if queryCache != nil {
			opts.Cache = queryCache
		}
		rebuilds := consumer.New(kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.CorpusUpdated, consumer.HandleMessage(rag, opts)))
		go func() {
			if err := rebuilds.Start(ctx); err != nil {
				slog.Error("corpus update consumer stopped", "error", err)
			}
		}()
		slog.Info("listening for corpus updates", "topic", cfg.Kafka.Topics.CorpusUpdated)
	}

	h := handler.New(rag, queryCache, tracker, defaultLimit, maxResults)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/query", h.Query)
	mux.HandleFunc("GET /api/v1/retrieve", h.Retrieve)
	mux.HandleFunc("POST /api/v1/index/rebuild", h.Rebuild)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.RequestTimeout)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("query service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("query service stopped")
}
