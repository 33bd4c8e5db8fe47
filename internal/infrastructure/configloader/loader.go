package configloader

import (
	"fmt"
	"os"

	"networth_aggregator/internal/domain/entity"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port         string `yaml:"port"`
	ReadTimeout  int    `yaml:"readTimeout"`
	WriteTimeout int    `yaml:"writeTimeout"`
	IdleTimeout  int    `yaml:"idleTimeout"`
}

// LoggingConfig holds the configuration for logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // e.g., "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// RPCClientConfig holds configuration for RPC clients.
type RPCClientConfig struct {
	ConnectionTimeoutMs int64   `yaml:"connectionTimeoutMs"`
	CallTimeoutMs       int64   `yaml:"callTimeoutMs"`
	RateLimit           float64 `yaml:"rateLimit"` // requests per second per chain
	BurstLimit          int     `yaml:"burstLimit"`
	MaxBatchSize        int     `yaml:"maxBatchSize"`
	RedialBackoffMs     int64   `yaml:"redialBackoffMs"`
}

// PriceIndexConfig holds the configuration for the external price index client.
type PriceIndexConfig struct {
	BaseURL          string `yaml:"baseURL"`
	RequestTimeoutMs int64  `yaml:"requestTimeoutMs"`
	SearchWidth      string `yaml:"searchWidth"`
}

// RefreshConfig controls polling and cache staleness.
type RefreshConfig struct {
	PollIntervalMs     int64 `yaml:"pollIntervalMs"`
	MaxStaleMultiplier int   `yaml:"maxStaleMultiplier"`
}

// AggregatorConfig holds configuration for the aggregation services.
type AggregatorConfig struct {
	MaxConcurrentRequests int   `yaml:"maxConcurrentRequests"`
	CycleTimeoutMs        int64 `yaml:"cycleTimeoutMs"`
}

// TrackerConfig configures the background tracker fed from the accounts file.
type TrackerConfig struct {
	Enabled  bool     `yaml:"enabled"`
	ChainIDs []uint64 `yaml:"chainIds"`
}

// ResolverConfig registers an extra named price resolver.
type ResolverConfig struct {
	Name  string `yaml:"name"`
	Kind  string `yaml:"kind"`  // market | stakingPool | ammShare | fixed
	Price string `yaml:"price"` // decimal USD price, fixed kind only
}

// NetworkConfig describes one chain. Empty fields are completed from the predefined chain table.
type NetworkConfig struct {
	ChainID        uint64                   `yaml:"chainId"`
	Name           string                   `yaml:"name"`
	Identifier     string                   `yaml:"identifier"`
	PriceNamespace string                   `yaml:"priceNamespace"`
	RPCEndpoints   []string                 `yaml:"rpcEndpoints"`
	Addresses      []entity.AddressSpec     `yaml:"addresses"`
}

// Config is the top-level configuration structure.
type Config struct {
	Server       ServerConfig     `yaml:"server"`
	Logging      LoggingConfig    `yaml:"logging"`
	RPCClient    RPCClientConfig  `yaml:"rpcClient"`
	PriceIndex   PriceIndexConfig `yaml:"priceIndex"`
	Refresh      RefreshConfig    `yaml:"refresh"`
	Aggregator   AggregatorConfig `yaml:"aggregator"`
	Tracker      TrackerConfig    `yaml:"tracker"`
	Resolvers    []ResolverConfig `yaml:"resolvers"`
	Networks     []NetworkConfig  `yaml:"networks"`
	ManifestDir  string           `yaml:"manifestDir"`
	AccountsFile string           `yaml:"accountsFile"`
}

// Descriptors converts the configured networks into chain descriptors.
func (c *Config) Descriptors() []entity.ChainDescriptor {
	out := make([]entity.ChainDescriptor, 0, len(c.Networks))
	for _, n := range c.Networks {
		named := make(map[string]entity.AddressMetadata, len(n.Addresses))
		for _, a := range n.Addresses {
			named[a.Alias] = a.Metadata()
		}
		out = append(out, entity.ChainDescriptor{
			ChainID:        n.ChainID,
			Name:           n.Name,
			Identifier:     n.Identifier,
			PriceNamespace: n.PriceNamespace,
			RPCEndpoints:   append([]string(nil), n.RPCEndpoints...),
			NamedAddresses: named,
		})
	}
	return out
}

// Load reads the YAML configuration file from the given path, applies defaults and validates it.
func Load(path string) (*Config, error) {
	logrus.Infof("Loading configuration from path: %s", path)
	data, err := os.ReadFile(path)
	if err != nil {
		logrus.Errorf("Failed to read config file %s: %v", path, err)
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		logrus.Errorf("Failed to unmarshal config data from %s: %v", path, err)
		return nil, fmt.Errorf("failed to unmarshal config data from %s: %w", path, err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		logrus.Errorf("Invalid configuration in %s: %v", path, err)
		return nil, err
	}

	logrus.Info("Configuration loaded successfully.")
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = ":8080"
	}
	if cfg.Server.ReadTimeout <= 0 {
		cfg.Server.ReadTimeout = 15
	}
	if cfg.Server.WriteTimeout <= 0 {
		cfg.Server.WriteTimeout = 30
	}
	if cfg.Server.IdleTimeout <= 0 {
		cfg.Server.IdleTimeout = 60
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.RPCClient.ConnectionTimeoutMs <= 0 {
		cfg.RPCClient.ConnectionTimeoutMs = 10000
	}
	if cfg.RPCClient.CallTimeoutMs <= 0 {
		cfg.RPCClient.CallTimeoutMs = 10000
		logrus.Infof("rpcClient.callTimeoutMs not set, defaulting to %d ms", cfg.RPCClient.CallTimeoutMs)
	}
	if cfg.RPCClient.RateLimit <= 0 {
		cfg.RPCClient.RateLimit = 10
	}
	if cfg.RPCClient.BurstLimit <= 0 {
		cfg.RPCClient.BurstLimit = 5
	}
	if cfg.RPCClient.MaxBatchSize <= 0 {
		cfg.RPCClient.MaxBatchSize = 100
	}
	if cfg.RPCClient.RedialBackoffMs <= 0 {
		cfg.RPCClient.RedialBackoffMs = 30000
	}

	if cfg.PriceIndex.BaseURL == "" {
		cfg.PriceIndex.BaseURL = "https://coins.llama.fi"
		logrus.Infof("priceIndex.baseURL not set, defaulting to %s", cfg.PriceIndex.BaseURL)
	}
	if cfg.PriceIndex.RequestTimeoutMs <= 0 {
		cfg.PriceIndex.RequestTimeoutMs = 10000
	}
	if cfg.PriceIndex.SearchWidth == "" {
		cfg.PriceIndex.SearchWidth = "4h"
	}

	if cfg.Refresh.PollIntervalMs <= 0 {
		cfg.Refresh.PollIntervalMs = 5000
		logrus.Infof("refresh.pollIntervalMs not set, defaulting to %d ms", cfg.Refresh.PollIntervalMs)
	}
	if cfg.Refresh.MaxStaleMultiplier <= 0 {
		cfg.Refresh.MaxStaleMultiplier = 12
	}

	if cfg.Aggregator.MaxConcurrentRequests <= 0 {
		cfg.Aggregator.MaxConcurrentRequests = 10
	}
	if cfg.Aggregator.CycleTimeoutMs <= 0 {
		cfg.Aggregator.CycleTimeoutMs = 30000
	}
}

func validate(cfg *Config) error {
	seen := make(map[uint64]struct{}, len(cfg.Networks))
	for _, n := range cfg.Networks {
		if n.ChainID == 0 {
			return fmt.Errorf("network %q has no chainId", n.Name)
		}
		if _, dup := seen[n.ChainID]; dup {
			return fmt.Errorf("network chainId %d is configured twice", n.ChainID)
		}
		seen[n.ChainID] = struct{}{}

		aliases := make(map[string]struct{}, len(n.Addresses))
		for _, a := range n.Addresses {
			if a.Alias == "" {
				return fmt.Errorf("network %d: address %s has no alias", n.ChainID, a.Address)
			}
			if _, dup := aliases[a.Alias]; dup {
				return fmt.Errorf("network %d: alias %q is configured twice", n.ChainID, a.Alias)
			}
			aliases[a.Alias] = struct{}{}
			if _, ok := entity.ParseAddress(a.Address); !ok {
				// Malformed addresses are treated as absent, not rejected.
				logrus.Warnf("Network %d: alias %q has an unusable address %q, it will be skipped", n.ChainID, a.Alias, a.Address)
			}
		}
	}
	for _, r := range cfg.Resolvers {
		if r.Name == "" {
			return fmt.Errorf("resolver entry without name")
		}
		if r.Kind == "fixed" && r.Price == "" {
			return fmt.Errorf("fixed resolver %q has no price", r.Name)
		}
	}
	return nil
}
