package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration parses YAML duration strings like "30s" or "2m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Address         string            `yaml:"address"`
	ReadTimeout     Duration          `yaml:"readTimeout"`
	ShutdownTimeout Duration          `yaml:"shutdownTimeout"`
	RateLimit       TokenBucketConfig `yaml:"rateLimit"`
}

// TokenBucketConfig configures per-server request rate limiting.
type TokenBucketConfig struct {
	Enabled  bool    `yaml:"enabled"`
	Rate     float64 `yaml:"rate"` // tokens per second
	Capacity int     `yaml:"capacity"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// IngestionConfig configures the document ingestion pipeline. ChunkOverlap
// is a pointer so an explicit zero disables overlap instead of selecting the
// default.
type IngestionConfig struct {
	ChunkSize        int   `yaml:"chunkSize"`    // runes per chunk
	ChunkOverlap     *int  `yaml:"chunkOverlap"` // runes shared between neighbors
	MaxDocumentBytes int64 `yaml:"maxDocumentBytes"`
}

// RetryConfig configures transient-failure retries for embedding calls.
type RetryConfig struct {
	MaxAttempts int      `yaml:"maxAttempts"`
	BaseDelay   Duration `yaml:"baseDelay"`
	MaxDelay    Duration `yaml:"maxDelay"`
}

// CircuitBreakerConfig configures the breaker in front of the embedding
// provider.
type CircuitBreakerConfig struct {
	Enabled          bool     `yaml:"enabled"`
	FailureThreshold int      `yaml:"failureThreshold"`
	SuccessThreshold int      `yaml:"successThreshold"`
	Cooldown         Duration `yaml:"cooldown"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	Provider       string               `yaml:"provider"` // "gemini", "openai" or "ollama"
	Model          string               `yaml:"model"`
	APIKey         string               `yaml:"apiKey"`
	BaseURL        string               `yaml:"baseURL"`
	Dimension      int                  `yaml:"dimension"`
	BatchSize      int                  `yaml:"batchSize"`
	Timeout        Duration             `yaml:"timeout"`
	Retry          RetryConfig          `yaml:"retry"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
}

// GenerationConfig configures the answer-generating model.
type GenerationConfig struct {
	Provider       string   `yaml:"provider"` // "gemini", "openai" or "ollama"
	Model          string   `yaml:"model"`
	APIKey         string   `yaml:"apiKey"`
	BaseURL        string   `yaml:"baseURL"`
	Temperature    float32  `yaml:"temperature"`
	Timeout        Duration `yaml:"timeout"`
	MaxPromptChars int      `yaml:"maxPromptChars"`
}

// RetrievalConfig configures vector search.
type RetrievalConfig struct {
	TopK int `yaml:"topK"`
}

// MilvusConfig configures the Milvus-backed index.
type MilvusConfig struct {
	Address    string `yaml:"address"`
	Collection string `yaml:"collection"`
}

// IndexConfig selects and configures the vector index backend.
type IndexConfig struct {
	Driver string       `yaml:"driver"` // "milvus" or "memory"
	Milvus MilvusConfig `yaml:"milvus"`
}

// Config is the root application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Ingestion  IngestionConfig  `yaml:"ingestion"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Index      IndexConfig      `yaml:"index"`
}

// Load reads, parses and validates the YAML configuration at path. Missing
// optional keys get defaults; API keys fall back to provider environment
// variables so secrets stay out of the file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Ingestion.ChunkSize <= 0 {
		c.Ingestion.ChunkSize = 1000
	}
	if c.Ingestion.ChunkOverlap == nil {
		// A fifth of the chunk size: 200 for the default 1000-rune chunks.
		overlap := c.Ingestion.ChunkSize / 5
		c.Ingestion.ChunkOverlap = &overlap
	}
	if c.Ingestion.MaxDocumentBytes <= 0 {
		c.Ingestion.MaxDocumentBytes = 10 << 20 // 10 MiB
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 16
	}
	if c.Embedding.Timeout <= 0 {
		c.Embedding.Timeout = Duration(30 * time.Second)
	}
	if c.Embedding.Retry.MaxAttempts <= 0 {
		c.Embedding.Retry.MaxAttempts = 3
	}
	if c.Embedding.Retry.BaseDelay <= 0 {
		c.Embedding.Retry.BaseDelay = Duration(500 * time.Millisecond)
	}
	if c.Embedding.Retry.MaxDelay <= 0 {
		c.Embedding.Retry.MaxDelay = Duration(8 * time.Second)
	}
	if c.Embedding.CircuitBreaker.FailureThreshold <= 0 {
		c.Embedding.CircuitBreaker.FailureThreshold = 5
	}
	if c.Embedding.CircuitBreaker.SuccessThreshold <= 0 {
		c.Embedding.CircuitBreaker.SuccessThreshold = 2
	}
	if c.Embedding.CircuitBreaker.Cooldown <= 0 {
		c.Embedding.CircuitBreaker.Cooldown = Duration(30 * time.Second)
	}
	if c.Generation.Temperature == 0 {
		c.Generation.Temperature = 0.1
	}
	if c.Generation.Timeout <= 0 {
		c.Generation.Timeout = Duration(2 * time.Minute)
	}
	if c.Retrieval.TopK <= 0 {
		c.Retrieval.TopK = 5
	}
	if c.Index.Driver == "" {
		c.Index.Driver = "memory"
	}
	if c.Index.Milvus.Address == "" {
		c.Index.Milvus.Address = "localhost:19530"
	}
	if c.Index.Milvus.Collection == "" {
		c.Index.Milvus.Collection = "knowledge_base"
	}

	if c.Embedding.APIKey == "" {
		c.Embedding.APIKey = apiKeyFromEnv(c.Embedding.Provider)
	}
	if c.Generation.APIKey == "" {
		c.Generation.APIKey = apiKeyFromEnv(c.Generation.Provider)
	}
}

func apiKeyFromEnv(provider string) string {
	switch provider {
	case "gemini":
		return os.Getenv("GOOGLE_API_KEY")
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	default:
		return ""
	}
}

func (c *Config) validate() error {
	if *c.Ingestion.ChunkOverlap < 0 {
		return fmt.Errorf("ingestion.chunkOverlap (%d) must not be negative", *c.Ingestion.ChunkOverlap)
	}
	if *c.Ingestion.ChunkOverlap >= c.Ingestion.ChunkSize {
		return fmt.Errorf("ingestion.chunkOverlap (%d) must be smaller than ingestion.chunkSize (%d)",
			*c.Ingestion.ChunkOverlap, c.Ingestion.ChunkSize)
	}
	if err := validProvider("embedding.provider", c.Embedding.Provider); err != nil {
		return err
	}
	if err := validProvider("generation.provider", c.Generation.Provider); err != nil {
		return err
	}
	switch c.Index.Driver {
	case "memory":
	case "milvus":
		if c.Embedding.Dimension <= 0 {
			return fmt.Errorf("embedding.dimension is required when index.driver is milvus")
		}
	default:
		return fmt.Errorf("index.driver must be \"milvus\" or \"memory\", got %q", c.Index.Driver)
	}
	return nil
}

func validProvider(key, provider string) error {
	switch provider {
	case "gemini", "openai", "ollama":
		return nil
	default:
		return fmt.Errorf("%s must be one of gemini, openai, ollama; got %q", key, provider)
	}
}
