// Package config loads the service configuration once at process start.
// Components receive the resulting struct explicitly; there is no ambient
// global state.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full configuration surface of the ingestion core.
type Config struct {
	DBPath      string `mapstructure:"db_path"`
	DLQDir      string `mapstructure:"dlq_dir"`
	HotIndexDir string `mapstructure:"hot_index_dir"`

	EmbedBaseURL string `mapstructure:"embed_base_url"`
	EmbedAPIKey  string `mapstructure:"embed_api_key"`
	EmbedModel   string `mapstructure:"embed_model"`
	EmbedDim     int    `mapstructure:"embed_dim"`
	EmbedBatch   int    `mapstructure:"embed_batch"`

	ChunkTokens  int `mapstructure:"chunk_tokens"`
	ChunkOverlap int `mapstructure:"chunk_overlap"`
	MinTokens    int `mapstructure:"min_tokens"`

	HotWindowMin int `mapstructure:"hot_window_min"`
	TopK         int `mapstructure:"topk"`

	HNSWDegree int `mapstructure:"hnsw_m"`
	HNSWEfCon  int `mapstructure:"hnsw_ef_con"`
	HNSWEf     int `mapstructure:"hnsw_ef"`

	WebhookSecret    string `mapstructure:"webhook_secret"`
	WebhookVerify    bool   `mapstructure:"webhook_verify"`
	ToleranceSeconds int    `mapstructure:"tolerance_seconds"`
}

// HotWindow returns the hot window as a duration.
func (c *Config) HotWindow() time.Duration {
	return time.Duration(c.HotWindowMin) * time.Minute
}

// Tolerance returns the signature timestamp tolerance as a duration.
func (c *Config) Tolerance() time.Duration {
	return time.Duration(c.ToleranceSeconds) * time.Second
}

// MetadataPath is where the hot index persists its metrics snapshot.
func (c *Config) MetadataPath() string {
	if c.HotIndexDir == "" {
		return ""
	}
	return filepath.Join(c.HotIndexDir, "metadata.json")
}

// Load reads configuration from the optional file path and ECHOMEM_*
// environment variables, applying defaults for everything unset.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("echomem")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("db_path", "echomem.db")
	v.SetDefault("dlq_dir", "dlq")
	v.SetDefault("hot_index_dir", "hot_index")
	v.SetDefault("embed_base_url", "")
	v.SetDefault("embed_api_key", "")
	v.SetDefault("embed_model", "text-embedding-3-small")
	v.SetDefault("embed_dim", 1536)
	v.SetDefault("embed_batch", 64)
	v.SetDefault("chunk_tokens", 400)
	v.SetDefault("chunk_overlap", 80)
	v.SetDefault("min_tokens", 20)
	v.SetDefault("hot_window_min", 15)
	v.SetDefault("topk", 5)
	v.SetDefault("hnsw_m", 64)
	v.SetDefault("hnsw_ef_con", 200)
	v.SetDefault("hnsw_ef", 120)
	v.SetDefault("webhook_secret", "")
	v.SetDefault("webhook_verify", true)
	v.SetDefault("tolerance_seconds", 300)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces construction-time constraints.
func (c *Config) Validate() error {
	if c.EmbedDim <= 0 {
		return fmt.Errorf("embed_dim must be positive, got %d", c.EmbedDim)
	}
	if c.ChunkTokens <= 0 {
		return fmt.Errorf("chunk_tokens must be positive, got %d", c.ChunkTokens)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkTokens {
		return fmt.Errorf("chunk_overlap %d must be non-negative and smaller than chunk_tokens %d", c.ChunkOverlap, c.ChunkTokens)
	}
	if c.HotWindowMin <= 0 {
		return fmt.Errorf("hot_window_min must be positive, got %d", c.HotWindowMin)
	}
	return nil
}
