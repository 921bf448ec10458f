package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full relayer configuration tree. Values come from an
// optional YAML file with environment variable overrides on top; private
// keys are environment-only and never read from the file.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Endpoints EndpointsConfig `yaml:"endpoints"`
	Contracts ContractsConfig `yaml:"contracts"`

	// Token whitelist per chain, keyed by token address.
	TokenWhitelist TokenWhitelistConfig `yaml:"tokenWhitelist"`

	Indexer IndexerConfig `yaml:"indexer"`
	Workers WorkerConfig  `yaml:"workers"`

	NATS  NATSConfig  `yaml:"nats"`
	Admin AdminConfig `yaml:"admin"`

	LogLevel string `yaml:"logLevel"`

	// Signer keys, loaded from env only.
	Signers SignerConfig `yaml:"-"`
}

// ServerConfig HTTP server configuration.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig relational store configuration.
type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// EndpointsConfig chain RPC endpoints.
type EndpointsConfig struct {
	Validium string `yaml:"validium"`
	Host     string `yaml:"host"`
}

// ContractsConfig addresses of the bridged contracts.
type ContractsConfig struct {
	// HostChainID is the chain id of the host chain, also bound into the
	// permit signing domain.
	HostChainID int64 `yaml:"hostChainId"`

	HostFastWithdrawVault string `yaml:"hostFastWithdrawVault"`
	ValidiumMessageQueue  string `yaml:"validiumMessageQueue"`
	ValidiumERC20Gateway  string `yaml:"validiumERC20Gateway"`
}

// TokenPolicy describes one whitelisted token.
type TokenPolicy struct {
	Allowed bool `yaml:"allowed"`
	// Limit is parsed but not yet enforced during validation.
	Limit string `yaml:"limit"`
}

// TokenWhitelistConfig per-chain token whitelists.
type TokenWhitelistConfig struct {
	Host     map[string]TokenPolicy `yaml:"host"`
	Validium map[string]TokenPolicy `yaml:"validium"`
}

// Allowed reports whether the address is whitelisted on the given map.
// Address comparison is case-insensitive.
func lookupAllowed(m map[string]TokenPolicy, address string) bool {
	policy, ok := m[strings.ToLower(address)]
	return ok && policy.Allowed
}

// HostAllowed reports whether a host-chain token is whitelisted.
func (w *TokenWhitelistConfig) HostAllowed(address string) bool {
	return lookupAllowed(w.Host, address)
}

// ValidiumAllowed reports whether a validium-chain token is whitelisted.
func (w *TokenWhitelistConfig) ValidiumAllowed(address string) bool {
	return lookupAllowed(w.Validium, address)
}

// IndexerConfig chain event indexer tuning.
type IndexerConfig struct {
	// Confirmations is the block depth withheld from the tip before events
	// are treated as final.
	Confirmations uint64 `yaml:"confirmations"`
	// BatchSize bounds a single getLogs block range.
	BatchSize uint64 `yaml:"batchSize"`
	// PersistBlockCount is the number of processed blocks between
	// checkpoint flushes.
	PersistBlockCount uint64 `yaml:"persistBlockCount"`
	// PollInterval is the idle sleep between polls.
	PollInterval time.Duration `yaml:"pollInterval"`
}

// WorkerConfig processing loop tuning shared by the three processors.
type WorkerConfig struct {
	// BatchSize is the number of pending rows fetched per loop iteration.
	BatchSize int `yaml:"batchSize"`
	// PollInterval is the idle sleep when a batch comes back short.
	PollInterval time.Duration `yaml:"pollInterval"`
}

// NATSConfig optional lifecycle event publishing.
type NATSConfig struct {
	URL string `yaml:"url"`
}

// AdminConfig optional inspection API authentication.
type AdminConfig struct {
	TOTPSecret string `yaml:"-"`
	JWTSecret  string `yaml:"-"`
}

// Enabled reports whether admin authentication is configured.
func (a *AdminConfig) Enabled() bool {
	return a.TOTPSecret != "" && a.JWTSecret != ""
}

// SignerConfig private keys, hex-encoded without 0x prefix.
type SignerConfig struct {
	PermitPrivateKey string
	HostPrivateKey   string
}

// Load reads the configuration file at path (skipped if empty or
// missing), applies environment overrides and defaults, and validates
// the result.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	overrideString(&c.Database.DSN, "DATABASE_DSN")
	overrideString(&c.Database.Driver, "DATABASE_DRIVER")
	overrideString(&c.Endpoints.Validium, "VALIDIUM_ENDPOINT")
	overrideString(&c.Endpoints.Host, "HOST_ENDPOINT")
	overrideString(&c.Contracts.HostFastWithdrawVault, "HOST_FAST_WITHDRAW_VAULT")
	overrideString(&c.Contracts.ValidiumMessageQueue, "VALIDIUM_MESSAGE_QUEUE")
	overrideString(&c.Contracts.ValidiumERC20Gateway, "VALIDIUM_ERC20_GATEWAY")
	overrideString(&c.NATS.URL, "NATS_URL")
	overrideString(&c.LogLevel, "LOG_LEVEL")

	if v := os.Getenv("HOST_CHAIN_ID"); v != "" {
		var chainID int64
		if _, err := fmt.Sscanf(v, "%d", &chainID); err == nil {
			c.Contracts.HostChainID = chainID
		}
	}

	c.Signers.PermitPrivateKey = os.Getenv("PERMIT_SIGNER_PRIVATE_KEY")
	c.Signers.HostPrivateKey = os.Getenv("HOST_SIGNER_PRIVATE_KEY")
	c.Admin.TOTPSecret = os.Getenv("ADMIN_TOTP_SECRET")
	c.Admin.JWTSecret = os.Getenv("ADMIN_JWT_SECRET")
}

func overrideString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Indexer.Confirmations == 0 {
		c.Indexer.Confirmations = 3
	}
	if c.Indexer.BatchSize == 0 {
		c.Indexer.BatchSize = 1000
	}
	if c.Indexer.PersistBlockCount == 0 {
		c.Indexer.PersistBlockCount = 1000
	}
	if c.Indexer.PollInterval == 0 {
		c.Indexer.PollInterval = time.Second
	}
	if c.Workers.BatchSize == 0 {
		c.Workers.BatchSize = 10
	}
	if c.Workers.PollInterval == 0 {
		c.Workers.PollInterval = time.Second
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// normalize lowercases whitelist keys so lookups can be
// case-insensitive.
func (c *Config) normalize() {
	c.TokenWhitelist.Host = lowercaseKeys(c.TokenWhitelist.Host)
	c.TokenWhitelist.Validium = lowercaseKeys(c.TokenWhitelist.Validium)
}

func lowercaseKeys(m map[string]TokenPolicy) map[string]TokenPolicy {
	out := make(map[string]TokenPolicy, len(m))
	for k, v := range m {
		out[strings.ToLower(k)] = v
	}
	return out
}

// Validate checks that every required setting is present.
func (c *Config) Validate() error {
	required := []struct {
		value, name string
	}{
		{c.Database.DSN, "database.dsn / DATABASE_DSN"},
		{c.Endpoints.Validium, "endpoints.validium / VALIDIUM_ENDPOINT"},
		{c.Endpoints.Host, "endpoints.host / HOST_ENDPOINT"},
		{c.Contracts.HostFastWithdrawVault, "contracts.hostFastWithdrawVault / HOST_FAST_WITHDRAW_VAULT"},
		{c.Contracts.ValidiumMessageQueue, "contracts.validiumMessageQueue / VALIDIUM_MESSAGE_QUEUE"},
		{c.Contracts.ValidiumERC20Gateway, "contracts.validiumERC20Gateway / VALIDIUM_ERC20_GATEWAY"},
		{c.Signers.PermitPrivateKey, "PERMIT_SIGNER_PRIVATE_KEY"},
		{c.Signers.HostPrivateKey, "HOST_SIGNER_PRIVATE_KEY"},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("missing required configuration: %s", r.name)
		}
	}
	if c.Database.Driver != "postgres" && c.Database.Driver != "sqlite" {
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	if c.Contracts.HostChainID == 0 {
		return fmt.Errorf("missing required configuration: contracts.hostChainId / HOST_CHAIN_ID")
	}
	return nil
}
