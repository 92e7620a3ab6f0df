// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. Every subsystem of the retrieval
// platform (HTTP server, Postgres chunk store, Kafka events, Redis cache,
// corpus loading, hybrid retrieval, re-ranking, LLM collaborators, vector
// index) has its own typed section.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/Adithya-Monish-Kumar-K/Policy-RAG-Platform/pkg/errors"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Ingestion ServerConfig    `yaml:"ingestion"`
	Analytics ServerConfig    `yaml:"analytics"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Corpus    CorpusConfig    `yaml:"corpus"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Rerank    RerankConfig    `yaml:"rerank"`
	LLM       LLMConfig       `yaml:"llm"`
	Vector    VectorConfig    `yaml:"vector"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters for the chunk store.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	CorpusUpdated   string `yaml:"corpusUpdated"`
	AnalyticsEvents string `yaml:"analyticsEvents"`
}

// RedisConfig holds Redis connection and retrieval-cache parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// CorpusConfig controls where policy documents come from and how they are
// split into chunks.
type CorpusConfig struct {
	// Source is "files" (walk Paths) or "postgres" (load the stored snapshot).
	Source       string   `yaml:"source"`
	Paths        []string `yaml:"paths"`
	ChunkingMode string   `yaml:"chunkingMode"`
	ChunkSize    int      `yaml:"chunkSize"`
	ChunkOverlap int      `yaml:"chunkOverlap"`
	// BreakpointPercentile is used by semantic chunking only.
	BreakpointPercentile float64 `yaml:"breakpointPercentile"`
}

// RetrievalConfig controls hybrid retrieval, query expansion and the
// re-rank hand-off.
type RetrievalConfig struct {
	TopK              int           `yaml:"topK"`
	Alpha             float64       `yaml:"alpha"`
	BM25CandidatePool int           `yaml:"bm25CandidatePool"`
	Tokenizer         string        `yaml:"tokenizer"`
	NumQueries        int           `yaml:"numQueries"`
	ExpansionMode     string        `yaml:"expansionMode"`
	RerankCandidates  int           `yaml:"rerankCandidates"`
	RerankTopN        int           `yaml:"rerankTopN"`
	Compression       bool          `yaml:"compression"`
	Timeout           time.Duration `yaml:"timeout"`
}

// RerankConfig points at the cross-encoder scoring service.
type RerankConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Endpoint  string        `yaml:"endpoint"`
	Model     string        `yaml:"model"`
	BatchSize int           `yaml:"batchSize"`
	Timeout   time.Duration `yaml:"timeout"`
}

// LLMConfig configures the OpenAI-compatible endpoint used for embeddings,
// query expansion, compression and answer generation.
type LLMConfig struct {
	BaseURL         string        `yaml:"baseUrl"`
	Token           string        `yaml:"token"`
	ChatModel       string        `yaml:"chatModel"`
	EmbeddingModel  string        `yaml:"embeddingModel"`
	Temperature     float64       `yaml:"temperature"`
	MaxContextChars int           `yaml:"maxContextChars"`
	CompressMaxDocs int           `yaml:"compressMaxDocs"`
	Timeout         time.Duration `yaml:"timeout"`
}

// VectorConfig tunes the in-memory HNSW graph and the embedding fan-out.
type VectorConfig struct {
	M              int `yaml:"m"`
	EfSearch       int `yaml:"efSearch"`
	EmbedBatchSize int `yaml:"embedBatchSize"`
	EmbedWorkers   int `yaml:"embedWorkers"`
	QueryCacheSize int `yaml:"queryCacheSize"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls span tracing of pipeline stages.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	SampleRate float64 `yaml:"sampleRate"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided), applies environment-variable
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration without reading files or the
// environment.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			RequestTimeout:  90 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Ingestion: ServerConfig{
			Port:            8081,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			RequestTimeout:  20 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Analytics: ServerConfig{
			Port:            8082,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			RequestTimeout:  5 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "policyrag",
			User:            "policyrag",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "policyrag-group",
			Topics: KafkaTopics{
				CorpusUpdated:   "corpus.updated",
				AnalyticsEvents: "analytics-events",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 5 * time.Minute,
		},
		Corpus: CorpusConfig{
			Source:               "files",
			Paths:                []string{"data/policies"},
			ChunkingMode:         "recursive",
			ChunkSize:            1000,
			ChunkOverlap:         200,
			BreakpointPercentile: 30,
		},
		Retrieval: RetrievalConfig{
			TopK:              10,
			Alpha:             0.5,
			BM25CandidatePool: 50,
			Tokenizer:         "whitespace",
			NumQueries:        2,
			ExpansionMode:     "template",
			RerankCandidates:  20,
			RerankTopN:        5,
			Timeout:           60 * time.Second,
		},
		Rerank: RerankConfig{
			Enabled:   true,
			Endpoint:  "http://localhost:9659",
			Model:     "cross-encoder/ms-marco-MiniLM-L-6-v2",
			BatchSize: 16,
			Timeout:   30 * time.Second,
		},
		LLM: LLMConfig{
			BaseURL:         "http://localhost:11434/v1",
			Token:           "ollama",
			ChatModel:       "mistral",
			EmbeddingModel:  "nomic-embed-text",
			MaxContextChars: 6000,
			CompressMaxDocs: 5,
			Timeout:         60 * time.Second,
		},
		Vector: VectorConfig{
			M:              16,
			EfSearch:       64,
			EmbedBatchSize: 32,
			EmbedWorkers:   4,
			QueryCacheSize: 1024,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			SampleRate: 1,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// Validate rejects configurations the pipeline cannot run with. All
// failures wrap ErrConfiguration.
func (c *Config) Validate() error {
	r := c.Retrieval
	switch {
	case r.TopK < 1:
		return apperrors.Configf("retrieval.topK must be >= 1, got %d", r.TopK)
	case r.Alpha < 0 || r.Alpha > 1:
		return apperrors.Configf("retrieval.alpha must be within [0,1], got %v", r.Alpha)
	case r.BM25CandidatePool < r.TopK:
		return apperrors.Configf("retrieval.bm25CandidatePool (%d) must be >= topK (%d)", r.BM25CandidatePool, r.TopK)
	case r.NumQueries < 1:
		return apperrors.Configf("retrieval.numQueries must be >= 1, got %d", r.NumQueries)
	case r.RerankTopN < 1:
		return apperrors.Configf("retrieval.rerankTopN must be >= 1, got %d", r.RerankTopN)
	case r.RerankCandidates < r.RerankTopN:
		return apperrors.Configf("retrieval.rerankCandidates (%d) must be >= rerankTopN (%d)", r.RerankCandidates, r.RerankTopN)
	}
	switch r.ExpansionMode {
	case "template", "llm", "none":
	default:
		return apperrors.Configf("retrieval.expansionMode %q is not one of template, llm, none", r.ExpansionMode)
	}
	switch r.Tokenizer {
	case "whitespace", "stemmed":
	default:
		return apperrors.Configf("retrieval.tokenizer %q is not one of whitespace, stemmed", r.Tokenizer)
	}
	switch c.Corpus.ChunkingMode {
	case "recursive", "semantic":
	default:
		return fmt.Errorf("corpus.chunkingMode %q: %w", c.Corpus.ChunkingMode, apperrors.ErrInvalidChunkingMode)
	}
	switch c.Corpus.Source {
	case "files", "postgres":
	default:
		return apperrors.Configf("corpus.source %q is not one of files, postgres", c.Corpus.Source)
	}
	if c.Corpus.ChunkSize <= 0 || c.Corpus.ChunkOverlap < 0 || c.Corpus.ChunkOverlap >= c.Corpus.ChunkSize {
		return apperrors.Configf("corpus chunk size %d / overlap %d are inconsistent", c.Corpus.ChunkSize, c.Corpus.ChunkOverlap)
	}
	if c.LLM.MaxContextChars <= 0 {
		return apperrors.Configf("llm.maxContextChars must be positive")
	}
	return nil
}

// applyEnvOverrides reads RAG_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RAG_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("RAG_INGESTION_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Ingestion.Port = port
		}
	}
	if v := os.Getenv("RAG_ANALYTICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Analytics.Port = port
		}
	}
	if v := os.Getenv("RAG_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("RAG_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("RAG_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("RAG_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("RAG_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("RAG_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("RAG_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("RAG_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("RAG_CORPUS_PATHS"); v != "" {
		cfg.Corpus.Paths = strings.Split(v, ",")
	}
	if v := os.Getenv("RAG_CORPUS_CHUNKING_MODE"); v != "" {
		cfg.Corpus.ChunkingMode = v
	}
	if v := os.Getenv("RAG_RETRIEVAL_ALPHA"); v != "" {
		if alpha, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Retrieval.Alpha = alpha
		}
	}
	if v := os.Getenv("RAG_RETRIEVAL_TOP_K"); v != "" {
		if k, err := strconv.Atoi(v); err == nil {
			cfg.Retrieval.TopK = k
		}
	}
	if v := os.Getenv("RAG_RERANK_ENDPOINT"); v != "" {
		cfg.Rerank.Endpoint = v
	}
	if v := os.Getenv("RAG_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("RAG_LLM_CHAT_MODEL"); v != "" {
		cfg.LLM.ChatModel = v
	}
	if v := os.Getenv("RAG_LLM_EMBEDDING_MODEL"); v != "" {
		cfg.LLM.EmbeddingModel = v
	}
	if v := os.Getenv("RAG_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("RAG_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
