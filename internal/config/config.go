// Package config defines the top-level configuration for yamkeeper and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by YAMKEEPER_* environment
// variables.
type Config struct {
	Chain        ChainConfig        `toml:"chain"`
	Wallet       WalletConfig       `toml:"wallet"`
	CryptoMarket CryptoMarketConfig `toml:"cryptomarket"`
	Registry     RegistryConfig     `toml:"registry"`
	MiningSite   MiningSiteConfig   `toml:"miningsite"`
	Database     DatabaseConfig     `toml:"database"`
	Redis        RedisConfig        `toml:"redis"`
	S3           S3Config           `toml:"s3"`
	Engine       EngineConfig       `toml:"engine"`
	Server       ServerConfig       `toml:"server"`
	Notify       NotifyConfig       `toml:"notify"`
	Mode         string             `toml:"mode"`
	LogLevel     string             `toml:"log_level"`
}

// ChainConfig holds RPC endpoints and the contract addresses the engine
// works against.
type ChainConfig struct {
	RPCURL             string `toml:"rpc_url"`
	WSURL              string `toml:"ws_url"`
	ChainID            int64  `toml:"chain_id"`
	MarketplaceAddress string `toml:"marketplace_address"`
	VaultAddress       string `toml:"vault_address"`
}

// Marketplace returns the parsed marketplace contract address.
func (c ChainConfig) Marketplace() common.Address {
	return common.HexToAddress(c.MarketplaceAddress)
}

// Vault returns the parsed strategy vault address.
func (c ChainConfig) Vault() common.Address {
	return common.HexToAddress(c.VaultAddress)
}

// WalletConfig holds the operator account credentials used to sign vault
// transactions.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// CryptoMarketConfig holds the centralized market data API parameters.
type CryptoMarketConfig struct {
	Host   string `toml:"host"`
	APIKey string `toml:"api_key"`
}

// RegistryConfig holds the real-estate token registry API parameters.
type RegistryConfig struct {
	Host   string `toml:"host"`
	APIKey string `toml:"api_key"`
}

// MiningSiteConfig holds the mining-site operational data API parameters.
type MiningSiteConfig struct {
	Host string `toml:"host"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters for the oracle price cache.
type RedisConfig struct {
	Addr            string `toml:"addr"`
	Password        string `toml:"password"`
	DB              int    `toml:"db"`
	PoolSize        int    `toml:"pool_size"`
	MaxRetries      int    `toml:"max_retries"`
	TLSEnabled      bool   `toml:"tls_enabled"`
	QuoteTTLSeconds int    `toml:"quote_ttl_seconds"`
}

// S3Config holds S3-compatible object storage parameters for the audit
// archiver.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// EngineConfig holds valuation and trigger parameters.
type EngineConfig struct {
	// MarginOfSafety is the integer percentage discount applied to the BTC
	// price before valuation; offers are only bought when they stay
	// profitable under the discounted figure.
	MarginOfSafety int64 `toml:"margin_of_safety"`
	// AutoExecute gates the buy instruction; when false the engine only
	// logs what it would have bought.
	AutoExecute bool `toml:"auto_execute"`
	// ArchiveRetention controls how far back audit rows are kept before the
	// archiver moves them to object storage.
	ArchiveRetentionDays int      `toml:"archive_retention_days"`
	ArchiveInterval      duration `toml:"archive_interval"`
}

// duration wraps time.Duration to support TOML string decoding ("5m", "12h").
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	// RateLimitPerMinute caps requests per client IP; zero disables the
	// limiter.
	RateLimitPerMinute int `toml:"rate_limit_per_minute"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			RPCURL:  "https://rpc.gnosischain.com",
			WSURL:   "wss://rpc.gnosischain.com/wss",
			ChainID: 100,
		},
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "yamkeeper",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:            "localhost:6379",
			PoolSize:        20,
			MaxRetries:      3,
			QuoteTTLSeconds: 60,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "yamkeeper-data",
			ForcePathStyle: true,
		},
		Engine: EngineConfig{
			MarginOfSafety:       30,
			AutoExecute:          true,
			ArchiveRetentionDays: 90,
			ArchiveInterval:      duration{24 * time.Hour},
		},
		Server: ServerConfig{
			Enabled:            true,
			Port:               8000,
			CORSOrigins:        []string{"http://localhost:3000"},
			RateLimitPerMinute: 300,
		},
		Notify: NotifyConfig{
			Events: []string{"offer_bought", "error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"watch":  true,
	"server": true,
	"sync":   true,
	"full":   true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: watch, server, sync, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Chain
	if c.Chain.RPCURL == "" {
		errs = append(errs, "chain: rpc_url must not be empty")
	}
	if c.Chain.ChainID <= 0 {
		errs = append(errs, "chain: chain_id must be positive")
	}
	// Event-following modes subscribe over websocket.
	needsWS := c.Mode == "watch" || c.Mode == "sync" || c.Mode == "full"
	if needsWS && c.Chain.WSURL == "" {
		errs = append(errs, "chain: ws_url must not be empty for mode "+c.Mode)
	}
	if !common.IsHexAddress(c.Chain.MarketplaceAddress) {
		errs = append(errs, fmt.Sprintf("chain: marketplace_address %q is not a hex address", c.Chain.MarketplaceAddress))
	}
	needsVault := c.Mode == "watch" || c.Mode == "sync" || c.Mode == "full"
	if needsVault && !common.IsHexAddress(c.Chain.VaultAddress) {
		errs = append(errs, fmt.Sprintf("chain: vault_address %q is not a hex address", c.Chain.VaultAddress))
	}

	// Wallet. Trigger modes sign transactions.
	needsWallet := (c.Mode == "watch" || c.Mode == "full") && c.Engine.AutoExecute
	if needsWallet {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for mode "+c.Mode)
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
	}

	// Price sources
	if c.CryptoMarket.Host == "" {
		errs = append(errs, "cryptomarket: host must not be empty")
	}
	if c.CryptoMarket.APIKey == "" {
		errs = append(errs, "cryptomarket: api_key must not be empty")
	}
	if c.MiningSite.Host == "" {
		errs = append(errs, "miningsite: host must not be empty")
	}

	// Database
	if strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database: host must not be empty (or set database.dsn)")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database must not be empty")
		}
	}
	if c.Database.PoolMaxConns < 1 {
		errs = append(errs, "database: pool_max_conns must be >= 1")
	}
	if c.Database.PoolMinConns < 0 {
		errs = append(errs, "database: pool_min_conns must be >= 0")
	}
	if c.Database.PoolMinConns > c.Database.PoolMaxConns {
		errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Engine
	if c.Engine.MarginOfSafety < 0 || c.Engine.MarginOfSafety > 100 {
		errs = append(errs, fmt.Sprintf("engine: margin_of_safety must be 0-100, got %d", c.Engine.MarginOfSafety))
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
