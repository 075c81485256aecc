package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the service configuration, loaded from a TOML file.
type Config struct {
	NodeAddr                string `toml:"node_addr"`
	HTTPClientTimeoutSecs   uint32 `toml:"http_client_timeout_secs"`
	ChainSyncStartingHeight uint32 `toml:"chain_sync_starting_height"`
	ChainCacheDBPath        string `toml:"chain_cache_db_path"`
	MempoolCacheDBPath      string `toml:"mempool_cache_db_path"`
	ChainCacheRollbackDepth int    `toml:"chain_cache_rollback_depth"`
	DownstreamEndpoint      string `toml:"downstream_endpoint"`
	BlocksTopic             string `toml:"blocks_topic"`
	TxTopic                 string `toml:"tx_topic"`
	MempoolTopic            string `toml:"mempool_topic"`
	MempoolSyncIntervalMs   uint64 `toml:"mempool_sync_interval_ms"`
	MempoolPageLimit        int    `toml:"mempool_page_limit"`
	ChainSyncBatchSize      uint32 `toml:"chain_sync_batch_size"`
	ChainSyncChunkSize      int    `toml:"chain_sync_chunk_size"`
	ChainSyncThrottleMs     uint64 `toml:"chain_sync_throttle_ms"`
	MetricsAddr             string `toml:"metrics_addr"`
	LogLevel                string `toml:"log_level"`
}

// Defaults for knobs an operator rarely needs to touch.
const (
	DefaultRollbackDepth = 10
	DefaultBatchSize     = 16
	DefaultChunkSize     = 8
	DefaultThrottleMs    = 1000
	DefaultMempoolMs     = 2000
	DefaultPageLimit     = 100
	DefaultLogLevel      = "info"
)

func Load(path string) (Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("cannot load configuration file %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration file %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ChainCacheRollbackDepth == 0 {
		c.ChainCacheRollbackDepth = DefaultRollbackDepth
	}
	if c.ChainSyncBatchSize == 0 {
		c.ChainSyncBatchSize = DefaultBatchSize
	}
	if c.ChainSyncChunkSize == 0 {
		c.ChainSyncChunkSize = DefaultChunkSize
	}
	if c.ChainSyncThrottleMs == 0 {
		c.ChainSyncThrottleMs = DefaultThrottleMs
	}
	if c.MempoolSyncIntervalMs == 0 {
		c.MempoolSyncIntervalMs = DefaultMempoolMs
	}
	if c.MempoolPageLimit == 0 {
		c.MempoolPageLimit = DefaultPageLimit
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
}

func (c *Config) Validate() error {
	if c.NodeAddr == "" {
		return fmt.Errorf("node_addr is required")
	}
	if c.ChainCacheDBPath == "" {
		return fmt.Errorf("chain_cache_db_path is required")
	}
	if c.MempoolCacheDBPath == "" {
		return fmt.Errorf("mempool_cache_db_path is required")
	}
	if c.ChainCacheDBPath == c.MempoolCacheDBPath {
		return fmt.Errorf("chain_cache_db_path and mempool_cache_db_path must differ")
	}
	if c.DownstreamEndpoint == "" {
		return fmt.Errorf("downstream_endpoint is required")
	}
	if c.BlocksTopic == "" || c.TxTopic == "" || c.MempoolTopic == "" {
		return fmt.Errorf("blocks_topic, tx_topic and mempool_topic are required")
	}
	if c.ChainCacheRollbackDepth < 0 {
		return fmt.Errorf("chain_cache_rollback_depth must not be negative")
	}
	return nil
}

func (c *Config) HTTPClientTimeout() time.Duration {
	return time.Duration(c.HTTPClientTimeoutSecs) * time.Second
}

func (c *Config) ChainSyncThrottle() time.Duration {
	return time.Duration(c.ChainSyncThrottleMs) * time.Millisecond
}

func (c *Config) MempoolSyncInterval() time.Duration {
	return time.Duration(c.MempoolSyncIntervalMs) * time.Millisecond
}
