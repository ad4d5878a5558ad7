package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	cfg := Config{
		Embedding:   EmbeddingConfig{APIKey: "emb-key"},
		VectorIndex: VectorIndexConfig{Qdrant: QdrantConfig{Host: "localhost"}},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	cfg := validConfig()

	if cfg.HTTP.Port != 8000 || cfg.HTTP.WriteTimeout() != 300*time.Second {
		t.Errorf("http defaults: %+v", cfg.HTTP)
	}
	if cfg.Embedding.Provider != ProviderGemini || cfg.Embedding.Model != "models/embedding-001" {
		t.Errorf("embedding defaults: %+v", cfg.Embedding)
	}
	if cfg.Embedding.Dimensions != 768 || cfg.Embedding.MaxBatchSize != 100 {
		t.Errorf("embedding sizes: %+v", cfg.Embedding)
	}
	if cfg.Generation.Provider != ProviderGemini || cfg.Generation.APIKey != "emb-key" {
		t.Errorf("generation must inherit provider and key: %+v", cfg.Generation)
	}
	if cfg.VectorIndex.Driver != DriverQdrant || cfg.VectorIndex.Prefix != "hackrx-doc-" {
		t.Errorf("vector index defaults: %+v", cfg.VectorIndex)
	}
	if cfg.VectorIndex.ReadyTimeoutSec != 60 || cfg.VectorIndex.Qdrant.Port != 6334 {
		t.Errorf("vector index timings: %+v", cfg.VectorIndex)
	}
	if cfg.Ingest.ChunkSize != 1000 || cfg.Ingest.ChunkOverlap != 100 || cfg.Ingest.BatchSize != 50 {
		t.Errorf("ingest defaults: %+v", cfg.Ingest)
	}
	if cfg.Ingest.BatchInterval() != time.Second {
		t.Errorf("batch interval = %s, want 1s", cfg.Ingest.BatchInterval())
	}
	if cfg.Answer.TopK != 5 || cfg.Answer.MaxContextMatches != 3 {
		t.Errorf("answer defaults: %+v", cfg.Answer)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestParse_ZeroBatchIntervalDisablesPacing(t *testing.T) {
	cfg, err := Parse([]byte(`
embedding:
  api_key: k
vector_index:
  driver: memory
ingest:
  batch_interval_ms: 0
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Ingest.BatchInterval() != 0 {
		t.Errorf("batch interval = %s, want 0", cfg.Ingest.BatchInterval())
	}
}

func TestParse_ExpandsEnv(t *testing.T) {
	t.Setenv("DOCQA_TEST_KEY", "from-env")
	cfg, err := Parse([]byte(`
auth:
  api_keys: ["${DOCQA_TEST_KEY}"]
embedding:
  api_key: ${DOCQA_TEST_KEY}
vector_index:
  driver: ${DOCQA_TEST_DRIVER:-memory}
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Embedding.APIKey != "from-env" || cfg.Auth.APIKeys[0] != "from-env" {
		t.Errorf("env not expanded: %+v", cfg)
	}
	if cfg.VectorIndex.Driver != DriverMemory {
		t.Errorf("default not applied: %q", cfg.VectorIndex.Driver)
	}
}

func TestCache_ReusesVectorIndexValkey(t *testing.T) {
	cfg := Config{
		Embedding: EmbeddingConfig{APIKey: "k"},
		VectorIndex: VectorIndexConfig{
			Driver: DriverValkey,
			Valkey: ValkeyConfig{Addrs: []string{"valkey:6379"}, Password: "pw"},
		},
		Cache: CacheConfig{Enabled: true},
	}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if len(cfg.Cache.Valkey.Addrs) != 1 || cfg.Cache.Valkey.Password != "pw" {
		t.Errorf("cache valkey = %+v", cfg.Cache.Valkey)
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]struct {
		mutate func(*Config)
		want   string
	}{
		"port": {
			func(c *Config) { c.HTTP.Port = 70000 },
			"http.port",
		},
		"embedding provider": {
			func(c *Config) { c.Embedding.Provider = "cohere" },
			"embedding.provider",
		},
		"embedding key": {
			func(c *Config) { c.Embedding.APIKey = "" },
			"embedding.api_key is required",
		},
		"generation model": {
			func(c *Config) { c.Generation.Model = "" },
			"generation.model is required",
		},
		"driver": {
			func(c *Config) { c.VectorIndex.Driver = "pinecone" },
			"vector_index.driver",
		},
		"qdrant host": {
			func(c *Config) { c.VectorIndex.Qdrant.Host = "" },
			"vector_index.qdrant.host",
		},
		"valkey addrs": {
			func(c *Config) { c.VectorIndex.Driver = DriverValkey },
			"vector_index.valkey.addrs",
		},
		"cache addrs": {
			func(c *Config) { c.Cache.Enabled = true },
			"cache.valkey.addrs",
		},
		"overlap": {
			func(c *Config) { c.Ingest.ChunkOverlap = c.Ingest.ChunkSize },
			"ingest.chunk_overlap",
		},
		"negative interval": {
			func(c *Config) { ms := -1; c.Ingest.BatchIntervalMs = &ms },
			"ingest.batch_interval_ms",
		},
		"sample rate": {
			func(c *Config) { c.Tracing.SampleRate = 2 },
			"tracing.sample_rate",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestLoad_ShippedConfigs(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test")
	t.Setenv("QDRANT_HOST", "localhost")
	t.Setenv("VALKEY_ADDR", "localhost:6379")

	for _, env := range []string{"local", "prod"} {
		t.Run(env, func(t *testing.T) {
			if _, err := Load(env); err != nil {
				t.Fatalf("load %s: %v", env, err)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	dir := t.TempDir()
	wd, _ := os.Getwd()
	t.Cleanup(func() { _ = os.Chdir(wd) })
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	if _, err := Load("does-not-exist"); err == nil {
		t.Fatal("expected error for missing config")
	}
	if findConfigPath("x") != filepath.Join("config", "x.yaml") {
		t.Errorf("unexpected fallback path %q", findConfigPath("x"))
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("ENV", "")
	if GetEnv() != "local" {
		t.Errorf("GetEnv() = %q, want local", GetEnv())
	}
	t.Setenv("ENV", "prod")
	if GetEnv() != "prod" {
		t.Errorf("GetEnv() = %q, want prod", GetEnv())
	}
}
