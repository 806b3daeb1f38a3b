package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies YAMKEEPER_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known YAMKEEPER_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "YAMKEEPER_CHAIN_RPC_URL")
	setStr(&cfg.Chain.WSURL, "YAMKEEPER_CHAIN_WS_URL")
	setInt64(&cfg.Chain.ChainID, "YAMKEEPER_CHAIN_ID")
	setStr(&cfg.Chain.MarketplaceAddress, "YAMKEEPER_CHAIN_MARKETPLACE_ADDRESS")
	setStr(&cfg.Chain.VaultAddress, "YAMKEEPER_CHAIN_VAULT_ADDRESS")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "YAMKEEPER_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "YAMKEEPER_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "YAMKEEPER_WALLET_KEY_PASSWORD")

	// ── Price sources ──
	setStr(&cfg.CryptoMarket.Host, "YAMKEEPER_CRYPTOMARKET_HOST")
	setStr(&cfg.CryptoMarket.APIKey, "YAMKEEPER_CRYPTOMARKET_API_KEY")
	setStr(&cfg.Registry.Host, "YAMKEEPER_REGISTRY_HOST")
	setStr(&cfg.Registry.APIKey, "YAMKEEPER_REGISTRY_API_KEY")
	setStr(&cfg.MiningSite.Host, "YAMKEEPER_MININGSITE_HOST")

	// ── Database ──
	setStr(&cfg.Database.DSN, "YAMKEEPER_DATABASE_DSN")
	setStr(&cfg.Database.Host, "YAMKEEPER_DATABASE_HOST")
	setInt(&cfg.Database.Port, "YAMKEEPER_DATABASE_PORT")
	setStr(&cfg.Database.Database, "YAMKEEPER_DATABASE_NAME")
	setStr(&cfg.Database.User, "YAMKEEPER_DATABASE_USER")
	setStr(&cfg.Database.Password, "YAMKEEPER_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "YAMKEEPER_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "YAMKEEPER_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "YAMKEEPER_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "YAMKEEPER_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "YAMKEEPER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "YAMKEEPER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "YAMKEEPER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "YAMKEEPER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "YAMKEEPER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "YAMKEEPER_REDIS_TLS_ENABLED")
	setInt(&cfg.Redis.QuoteTTLSeconds, "YAMKEEPER_REDIS_QUOTE_TTL_SECONDS")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "YAMKEEPER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "YAMKEEPER_S3_REGION")
	setStr(&cfg.S3.Bucket, "YAMKEEPER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "YAMKEEPER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "YAMKEEPER_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "YAMKEEPER_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "YAMKEEPER_S3_FORCE_PATH_STYLE")

	// ── Engine ──
	setInt64(&cfg.Engine.MarginOfSafety, "YAMKEEPER_ENGINE_MARGIN_OF_SAFETY")
	setBool(&cfg.Engine.AutoExecute, "YAMKEEPER_ENGINE_AUTO_EXECUTE")
	setInt(&cfg.Engine.ArchiveRetentionDays, "YAMKEEPER_ENGINE_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Engine.ArchiveInterval, "YAMKEEPER_ENGINE_ARCHIVE_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "YAMKEEPER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "YAMKEEPER_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "YAMKEEPER_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "YAMKEEPER_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "YAMKEEPER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "YAMKEEPER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "YAMKEEPER_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "YAMKEEPER_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "YAMKEEPER_MODE")
	setStr(&cfg.LogLevel, "YAMKEEPER_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
