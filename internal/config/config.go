package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the docqa configuration.
type Config struct {
	HTTP        HTTPConfig        `yaml:"http"`
	Auth        AuthConfig        `yaml:"auth"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Generation  GenerationConfig  `yaml:"generation"`
	VectorIndex VectorIndexConfig `yaml:"vector_index"`
	Cache       CacheConfig       `yaml:"cache"`
	Ingest      IngestConfig      `yaml:"ingest"`
	Answer      AnswerConfig      `yaml:"answer"`
	Tracing     TracingConfig     `yaml:"tracing"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error (default: determined by env)
	Format string `yaml:"format"` // json or console (default: determined by env)
}

// AuthConfig holds API authentication settings. An empty list disables auth.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"` // covers a full ingest
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
	MaxQuestions    int `yaml:"max_questions"`
}

// Provider names.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider            string `yaml:"provider"` // gemini, openai
	APIKey              string `yaml:"api_key"`
	BaseURL             string `yaml:"base_url"`
	Model               string `yaml:"model"`
	Dimensions          int    `yaml:"dimensions"`
	MaxBatchSize        int    `yaml:"max_batch_size"`
	MaxBatchChars       int    `yaml:"max_batch_chars"`
	TimeoutSec          int    `yaml:"timeout_sec"`
	DocumentInstruction string `yaml:"document_instruction"` // openai only
	QueryInstruction    string `yaml:"query_instruction"`    // openai only
}

// GenerationConfig holds answer generation settings.
type GenerationConfig struct {
	Provider    string  `yaml:"provider"` // gemini, openai
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"` // openai only
	MaxTokens   int     `yaml:"max_tokens"`
	TimeoutSec  int     `yaml:"timeout_sec"`
}

// Vector index drivers.
const (
	DriverQdrant = "qdrant"
	DriverValkey = "valkey"
	DriverMemory = "memory"
)

// VectorIndexConfig selects and configures the vector index backend.
type VectorIndexConfig struct {
	Driver          string       `yaml:"driver"` // qdrant, valkey, memory
	Prefix          string       `yaml:"prefix"`
	ReadyTimeoutSec int          `yaml:"ready_timeout_sec"`
	PollIntervalMs  int          `yaml:"poll_interval_ms"`
	Qdrant          QdrantConfig `yaml:"qdrant"`
	Valkey          ValkeyConfig `yaml:"valkey"`
}

// QdrantConfig holds Qdrant gRPC settings.
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	APIKey     string `yaml:"api_key"`
	UseTLS     bool   `yaml:"use_tls"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// ValkeyConfig holds Valkey connection settings.
type ValkeyConfig struct {
	Addrs               []string `yaml:"addrs"`
	Username            string   `yaml:"username"`
	Password            string   `yaml:"password"`
	DB                  int      `yaml:"db"`
	ReadinessTimeoutSec int      `yaml:"readiness_timeout_sec"`
}

// CacheConfig holds the embedding cache settings. The cache lives in Valkey.
type CacheConfig struct {
	Enabled  bool         `yaml:"enabled"`
	TTLHours int          `yaml:"ttl_hours"` // 0 = no expiry
	Valkey   ValkeyConfig `yaml:"valkey"`   // empty addrs reuse vector_index.valkey
}

// IngestConfig holds document ingest settings.
type IngestConfig struct {
	ChunkSize          int    `yaml:"chunk_size"`
	ChunkOverlap       int    `yaml:"chunk_overlap"`
	BatchSize          int    `yaml:"batch_size"`
	BatchIntervalMs    *int   `yaml:"batch_interval_ms"` // 0 disables pacing
	DownloadTimeoutSec int    `yaml:"download_timeout_sec"`
	MaxDownloadMB      int    `yaml:"max_download_mb"`
	TempDir            string `yaml:"temp_dir"`
}

// AnswerConfig holds retrieval and prompt settings.
type AnswerConfig struct {
	TopK              int `yaml:"top_k"`
	MaxContextMatches int `yaml:"max_context_matches"`
}

// TracingConfig holds OpenTelemetry settings. An empty endpoint disables export.
type TracingConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRate  float64 `yaml:"sample_rate"`
	ServiceName string  `yaml:"service_name"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse expands environment variables in data, decodes it and applies defaults.
func Parse(data []byte) (Config, error) {
	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port <= 0 {
		c.HTTP.Port = 8000
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 300
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.HTTP.MaxQuestions <= 0 {
		c.HTTP.MaxQuestions = 50
	}

	if c.Embedding.Provider == "" {
		c.Embedding.Provider = ProviderGemini
	}
	if c.Embedding.Model == "" && c.Embedding.Provider == ProviderGemini {
		c.Embedding.Model = "models/embedding-001"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 768
	}
	if c.Embedding.MaxBatchSize <= 0 {
		c.Embedding.MaxBatchSize = 100
	}
	if c.Embedding.TimeoutSec <= 0 {
		c.Embedding.TimeoutSec = 60
	}

	if c.Generation.Provider == "" {
		c.Generation.Provider = c.Embedding.Provider
	}
	if c.Generation.APIKey == "" && c.Generation.Provider == c.Embedding.Provider {
		c.Generation.APIKey = c.Embedding.APIKey
	}
	if c.Generation.Model == "" && c.Generation.Provider == ProviderGemini {
		c.Generation.Model = "gemini-1.5-flash"
	}
	if c.Generation.TimeoutSec <= 0 {
		c.Generation.TimeoutSec = 60
	}

	if c.VectorIndex.Driver == "" {
		c.VectorIndex.Driver = DriverQdrant
	}
	if c.VectorIndex.Prefix == "" {
		c.VectorIndex.Prefix = "hackrx-doc-"
	}
	if c.VectorIndex.ReadyTimeoutSec <= 0 {
		c.VectorIndex.ReadyTimeoutSec = 60
	}
	if c.VectorIndex.PollIntervalMs <= 0 {
		c.VectorIndex.PollIntervalMs = 1000
	}
	if c.VectorIndex.Qdrant.Port <= 0 {
		c.VectorIndex.Qdrant.Port = 6334
	}
	if c.VectorIndex.Qdrant.TimeoutSec <= 0 {
		c.VectorIndex.Qdrant.TimeoutSec = 30
	}
	if c.VectorIndex.Valkey.ReadinessTimeoutSec <= 0 {
		c.VectorIndex.Valkey.ReadinessTimeoutSec = 10
	}
	if len(c.Cache.Valkey.Addrs) == 0 {
		c.Cache.Valkey = c.VectorIndex.Valkey
	}
	if c.Cache.Valkey.ReadinessTimeoutSec <= 0 {
		c.Cache.Valkey.ReadinessTimeoutSec = 10
	}

	if c.Ingest.ChunkSize <= 0 {
		c.Ingest.ChunkSize = 1000
	}
	if c.Ingest.ChunkOverlap <= 0 {
		c.Ingest.ChunkOverlap = 100
	}
	if c.Ingest.BatchSize <= 0 {
		c.Ingest.BatchSize = 50
	}
	if c.Ingest.BatchIntervalMs == nil {
		ms := 1000
		c.Ingest.BatchIntervalMs = &ms
	}
	if c.Ingest.DownloadTimeoutSec <= 0 {
		c.Ingest.DownloadTimeoutSec = 60
	}
	if c.Ingest.MaxDownloadMB <= 0 {
		c.Ingest.MaxDownloadMB = 50
	}

	if c.Answer.TopK <= 0 {
		c.Answer.TopK = 5
	}
	if c.Answer.MaxContextMatches <= 0 {
		c.Answer.MaxContextMatches = 3
	}

	if c.Tracing.SampleRate <= 0 {
		c.Tracing.SampleRate = 1
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "docqa"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if err := validateProvider("embedding", c.Embedding.Provider, c.Embedding.APIKey, c.Embedding.Model); err != nil {
		return err
	}
	if err := validateProvider("generation", c.Generation.Provider, c.Generation.APIKey, c.Generation.Model); err != nil {
		return err
	}

	switch c.VectorIndex.Driver {
	case DriverQdrant:
		if c.VectorIndex.Qdrant.Host == "" {
			return errors.New("vector_index.qdrant.host is required")
		}
	case DriverValkey:
		if len(c.VectorIndex.Valkey.Addrs) == 0 {
			return errors.New("vector_index.valkey.addrs is required")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("vector_index.driver must be qdrant, valkey or memory, got %q", c.VectorIndex.Driver)
	}

	if c.Cache.Enabled && len(c.Cache.Valkey.Addrs) == 0 {
		return errors.New("cache.valkey.addrs is required when cache is enabled")
	}
	if c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("ingest.chunk_overlap (%d) must be smaller than ingest.chunk_size (%d)",
			c.Ingest.ChunkOverlap, c.Ingest.ChunkSize)
	}
	if c.Ingest.BatchIntervalMs != nil && *c.Ingest.BatchIntervalMs < 0 {
		return errors.New("ingest.batch_interval_ms must not be negative")
	}
	if c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing.sample_rate must be in (0, 1], got %g", c.Tracing.SampleRate)
	}
	return nil
}

func validateProvider(section, provider, apiKey, model string) error {
	switch provider {
	case ProviderGemini, ProviderOpenAI:
	default:
		return fmt.Errorf("%s.provider must be %q or %q, got %q", section, ProviderGemini, ProviderOpenAI, provider)
	}
	if apiKey == "" {
		return fmt.Errorf("%s.api_key is required", section)
	}
	if model == "" {
		return fmt.Errorf("%s.model is required", section)
	}
	return nil
}

// ReadTimeout returns the HTTP read timeout.
func (h HTTPConfig) ReadTimeout() time.Duration { return time.Duration(h.ReadTimeoutSec) * time.Second }

// WriteTimeout returns the HTTP write timeout.
func (h HTTPConfig) WriteTimeout() time.Duration { return time.Duration(h.WriteTimeoutSec) * time.Second }

// ShutdownTimeout returns the graceful shutdown budget.
func (h HTTPConfig) ShutdownTimeout() time.Duration { return time.Duration(h.ShutdownSec) * time.Second }

// BatchInterval returns the pause between embedding batches.
func (i IngestConfig) BatchInterval() time.Duration {
	if i.BatchIntervalMs == nil {
		return 0
	}
	return time.Duration(*i.BatchIntervalMs) * time.Millisecond
}

// CacheTTL returns the embedding cache TTL. Zero means no expiry.
func (c CacheConfig) CacheTTL() time.Duration { return time.Duration(c.TTLHours) * time.Hour }

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
