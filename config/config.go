package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the indexing pipeline.
type Config struct {
	BatchSizeDocs      int              `yaml:"batch_size_docs"`
	BatchSizeTokens    int              `yaml:"batch_size_tokens"`
	APITokenLimit      int              `yaml:"api_token_limit"`
	TruncationStrategy string           `yaml:"truncation_strategy"` // "auto", "end", "start", "middle_out" or "sentences"
	ParallelPartitions int              `yaml:"parallel_partitions"`
	CollectionStrategy string           `yaml:"collection_strategy"` // "single" or "per_partition"
	Resume             bool             `yaml:"resume"`
	DeleteStale        bool             `yaml:"delete_stale"`
	SampleMode         bool             `yaml:"sample_mode"`
	Logging            LoggingConfig    `yaml:"logging"`
	Metrics            MetricsConfig    `yaml:"metrics"`
	Cluster            ClusterConfig    `yaml:"cluster"`
	RateLimit          RateLimitConfig  `yaml:"rate_limit"`
	Watch              WatchConfig      `yaml:"watch"`
	Embedding          EmbeddingConfig  `yaml:"embedding"`
}

// EmbeddingConfig selects the concrete embedding provider. The embedding
// function itself is an opaque external collaborator; this only selects
// which adapter invokes it.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"` // "openai", "deepseek", "jina", "ollama", "mock"
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
	BaseURL   string `yaml:"base_url,omitempty"`
	Dimension int    `yaml:"dimension"` // used only by the "mock" provider
}

// LoggingConfig controls structured log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

// MetricsConfig controls the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	BindAddr  string `yaml:"bind_addr"`
}

// ClusterConfig controls gossip-based clustered operation.
type ClusterConfig struct {
	Enabled         bool     `yaml:"enabled"`
	NodeID          string   `yaml:"node_id"`
	GossipBindAddr  string   `yaml:"gossip_bind_addr"`
	GossipSeedNodes []string `yaml:"gossip_seed_nodes"`
}

// RateLimitConfig throttles vector store write throughput.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// WatchConfig controls filesystem-triggered re-indexing.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BatchSizeDocs:      128,
		BatchSizeTokens:    0,
		APITokenLimit:      8192,
		TruncationStrategy: "auto",
		ParallelPartitions: 1,
		CollectionStrategy: "single",
		Resume:             false,
		DeleteStale:        false,
		SampleMode:         false,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			BindAddr: ":9090",
		},
		Cluster: ClusterConfig{
			Enabled: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 0, // 0 disables rate limiting
			Burst:             1,
		},
		Watch: WatchConfig{
			Enabled:  false,
			Debounce: 2 * time.Second,
		},
		Embedding: EmbeddingConfig{
			Provider:  "mock",
			Model:     "mock",
			Dimension: 16,
		},
	}
}

// Load loads configuration from a YAML file, layering it over the built-in
// defaults. A missing file is not an error — Load returns the defaults
// unchanged. A malformed file is.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromDir looks for idxr.yaml in dir, falling back to defaults.
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "idxr.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}
	return DefaultConfig(), nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
