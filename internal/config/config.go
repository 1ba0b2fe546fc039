package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Auth       AuthConfig
	LLM        LLMConfig
	Storage    StorageConfig
	Extractor  ExtractorConfig
	Pipeline   PipelineConfig
	Segmenter  SegmenterConfig
	Retrieval  RetrievalConfig
	Confidence ConfidenceConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type DatabaseConfig struct {
	URL            string
	MaxConns       int
	MinConns       int
	MigrationsPath string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret string
}

type LLMConfig struct {
	OpenAIKey        string
	AnthropicKey     string
	DefaultProvider  string
	DefaultModel     string
	FallbackProvider string
	MaxRetries       int
	EmbeddingModel   string
	StreamTimeout    time.Duration
}

type StorageConfig struct {
	BaseURL    string
	ServiceKey string
	Bucket     string
}

// ExtractorConfig points at the structural extractor service (docling-style
// /parse endpoint returning markdown with page markers).
type ExtractorConfig struct {
	BaseURL string
	Timeout time.Duration
}

type PipelineConfig struct {
	Workers           int
	PollInterval      time.Duration
	StaleAfter        time.Duration
	MaxRetries        int
	SweepSchedule     string
	StructuredTimeout time.Duration
	StructuredSchema  int
	ClassifyEnabled   bool
	StructuredEnabled bool
}

type SegmenterConfig struct {
	TargetTokens  int
	OverlapTokens int
	MinTokens     int
}

type RetrievalConfig struct {
	CandidatePool  int
	TopK           int
	VectorWeight   float64
	LexicalWeight  float64
	RerankURL      string
	RerankTimeout  time.Duration
	RerankTopN     int
	SchemaVersion  int
	HistoryWindow  int
	HistoryBudget  int
}

// ConfidenceConfig carries the two threshold tables. Vector similarity and
// reranker scores follow unrelated distributions, so each provenance gets its
// own table; values are product-tuned and change often, hence config.
type ConfidenceConfig struct {
	VectorHigh   float64
	VectorReview float64
	RerankHigh   float64
	RerankReview float64
}

func Load() (*Config, error) {
	port, err := getEnvInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	maxConns, err := getEnvInt("DB_MAX_CONNS", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}

	minConns, err := getEnvInt("DB_MIN_CONNS", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	llmRetries, err := getEnvInt("LLM_MAX_RETRIES", 3)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_MAX_RETRIES: %w", err)
	}

	workers, err := getEnvInt("PIPELINE_WORKERS", 4)
	if err != nil {
		return nil, fmt.Errorf("invalid PIPELINE_WORKERS: %w", err)
	}

	jobRetries, err := getEnvInt("JOB_MAX_RETRIES", 3)
	if err != nil {
		return nil, fmt.Errorf("invalid JOB_MAX_RETRIES: %w", err)
	}

	schemaVersion, err := getEnvInt("EMBEDDING_SCHEMA_VERSION", 2)
	if err != nil {
		return nil, fmt.Errorf("invalid EMBEDDING_SCHEMA_VERSION: %w", err)
	}

	structuredSchema, err := getEnvInt("STRUCTURED_SCHEMA_VERSION", 1)
	if err != nil {
		return nil, fmt.Errorf("invalid STRUCTURED_SCHEMA_VERSION: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: port,
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConns:       maxConns,
			MinConns:       minConns,
			MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		LLM: LLMConfig{
			OpenAIKey:        getEnv("OPENAI_API_KEY", ""),
			AnthropicKey:     getEnv("ANTHROPIC_API_KEY", ""),
			DefaultProvider:  getEnv("LLM_DEFAULT_PROVIDER", "openai"),
			DefaultModel:     getEnv("LLM_DEFAULT_MODEL", "gpt-4o"),
			FallbackProvider: getEnv("LLM_FALLBACK_PROVIDER", ""),
			MaxRetries:       llmRetries,
			EmbeddingModel:   getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
			StreamTimeout:    getEnvDuration("LLM_STREAM_TIMEOUT", 120*time.Second),
		},
		Storage: StorageConfig{
			BaseURL:    getEnv("STORAGE_URL", ""),
			ServiceKey: getEnv("STORAGE_SERVICE_KEY", ""),
			Bucket:     getEnv("STORAGE_BUCKET", "documents"),
		},
		Extractor: ExtractorConfig{
			BaseURL: getEnv("EXTRACTOR_URL", "http://localhost:8000"),
			Timeout: getEnvDuration("EXTRACTOR_TIMEOUT", 90*time.Second),
		},
		Pipeline: PipelineConfig{
			Workers:           workers,
			PollInterval:      getEnvDuration("JOB_POLL_INTERVAL", 2*time.Second),
			StaleAfter:        getEnvDuration("JOB_STALE_AFTER", 10*time.Minute),
			MaxRetries:        jobRetries,
			SweepSchedule:     getEnv("JOB_SWEEP_SCHEDULE", "@every 1m"),
			StructuredTimeout: getEnvDuration("STRUCTURED_TIMEOUT", 60*time.Second),
			StructuredSchema:  structuredSchema,
			ClassifyEnabled:   getEnvBool("CLASSIFY_ENABLED", true),
			StructuredEnabled: getEnvBool("STRUCTURED_ENABLED", true),
		},
		Segmenter: SegmenterConfig{
			TargetTokens:  mustEnvInt("SEGMENT_TARGET_TOKENS", 400),
			OverlapTokens: mustEnvInt("SEGMENT_OVERLAP_TOKENS", 50),
			MinTokens:     mustEnvInt("SEGMENT_MIN_TOKENS", 80),
		},
		Retrieval: RetrievalConfig{
			CandidatePool: mustEnvInt("RETRIEVAL_CANDIDATES", 20),
			TopK:          mustEnvInt("RETRIEVAL_TOP_K", 5),
			VectorWeight:  getEnvFloat("RETRIEVAL_VECTOR_WEIGHT", 0.7),
			LexicalWeight: getEnvFloat("RETRIEVAL_LEXICAL_WEIGHT", 0.3),
			RerankURL:     getEnv("RERANK_URL", ""),
			RerankTimeout: getEnvDuration("RERANK_TIMEOUT", 3*time.Second),
			RerankTopN:    mustEnvInt("RERANK_TOP_N", 10),
			SchemaVersion: schemaVersion,
			HistoryWindow: mustEnvInt("HISTORY_WINDOW", 10),
			HistoryBudget: mustEnvInt("HISTORY_TOKEN_BUDGET", 1500),
		},
		Confidence: ConfidenceConfig{
			VectorHigh:   getEnvFloat("CONFIDENCE_VECTOR_HIGH", 0.78),
			VectorReview: getEnvFloat("CONFIDENCE_VECTOR_REVIEW", 0.55),
			RerankHigh:   getEnvFloat("CONFIDENCE_RERANK_HIGH", 0.65),
			RerankReview: getEnvFloat("CONFIDENCE_RERANK_REVIEW", 0.35),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) Validate() error {
	var missing []string
	if c.Database.URL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.Auth.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	if c.Retrieval.VectorWeight+c.Retrieval.LexicalWeight <= 0 {
		return fmt.Errorf("retrieval fusion weights must sum to a positive value")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

// mustEnvInt is for tunables where a malformed value should fall back rather
// than abort startup.
func mustEnvInt(key string, fallback int) int {
	n, err := getEnvInt(key, fallback)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
