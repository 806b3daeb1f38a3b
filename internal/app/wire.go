package app

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"time"

	"github.com/yamops/yamkeeper/internal/blob/s3"
	rediscache "github.com/yamops/yamkeeper/internal/cache/redis"
	"github.com/yamops/yamkeeper/internal/chain"
	"github.com/yamops/yamkeeper/internal/config"
	"github.com/yamops/yamkeeper/internal/crypto"
	"github.com/yamops/yamkeeper/internal/directory"
	"github.com/yamops/yamkeeper/internal/domain"
	"github.com/yamops/yamkeeper/internal/engine"
	"github.com/yamops/yamkeeper/internal/notify"
	"github.com/yamops/yamkeeper/internal/offers"
	"github.com/yamops/yamkeeper/internal/orders"
	"github.com/yamops/yamkeeper/internal/platform/cryptomarket"
	"github.com/yamops/yamkeeper/internal/platform/miningsite"
	"github.com/yamops/yamkeeper/internal/platform/realestate"
	"github.com/yamops/yamkeeper/internal/store/postgres"
	"github.com/yamops/yamkeeper/internal/valuation"
	"github.com/yamops/yamkeeper/internal/vault"
)

// Dependencies is the wired object graph shared by every mode.
type Dependencies struct {
	Postgres *postgres.Client
	Redis    *rediscache.Client
	Chain    *chain.Client
	S3       *s3blob.Client // nil unless the mode archives

	Audit *postgres.AuditStore

	Locks   *rediscache.LockManager
	Limiter *rediscache.RateLimiter
	Bus     *rediscache.SignalBus

	Dir              *directory.Service
	Book             *offers.Book
	MiningValuer     *valuation.MiningValuer
	RealEstateValuer *valuation.RealEstateValuer
	Engine           *engine.Engine
	Vault            *vault.Service
	Orders           *orders.Service
	Notifier         *notify.Notifier
	Archiver         *s3blob.Archiver
}

// Wire builds the dependency graph for the configured mode and returns it
// with a cleanup function that releases every connection in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	// Postgres.
	pg, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		return fail(err)
	}
	closers = append(closers, pg.Close)

	if cfg.Database.RunMigrations {
		if err := pg.RunMigrations(ctx); err != nil {
			return fail(err)
		}
	}

	assets := postgres.NewAssetStore(pg.Pool())
	strategies := postgres.NewStrategyStore(pg.Pool())
	holdings := postgres.NewHoldingStore(pg.Pool())
	orderStore := postgres.NewOrderStore(pg.Pool())
	audit := postgres.NewAuditStore(pg.Pool())

	// Redis.
	rds, err := rediscache.New(ctx, rediscache.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		return fail(err)
	}
	closers = append(closers, func() { _ = rds.Close() })

	quotes := rediscache.NewQuoteCache(rds, time.Duration(cfg.Redis.QuoteTTLSeconds)*time.Second)
	locks := rediscache.NewLockManager(rds)
	limiter := rediscache.NewRateLimiter(rds)
	bus := rediscache.NewSignalBus(rds)

	// Operator key, only for modes that spend.
	var key *ecdsa.PrivateKey
	if needsWallet(cfg) {
		key, err = crypto.LoadECDSA(crypto.KeyConfig{
			RawPrivateKey:    cfg.Wallet.PrivateKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			return fail(fmt.Errorf("app: load wallet key: %w", err))
		}
	}

	// Chain.
	chainClient, err := chain.Dial(ctx, cfg.Chain.RPCURL, cfg.Chain.WSURL, cfg.Chain.ChainID, cfg.Chain.Marketplace(), key, logger)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, chainClient.Close)

	// A typed nil must not leak into the interface; read-only modes carry
	// a nil trader.
	var trader domain.VaultTrader
	if key != nil {
		trader = chainClient
	}

	// Price sources.
	market := cryptomarket.New(cfg.CryptoMarket.Host, cfg.CryptoMarket.APIKey, quotes)
	registry := realestate.New(cfg.Registry.Host, cfg.Registry.APIKey, quotes)
	sites := miningsite.New(cfg.MiningSite.Host, quotes)

	// Domain services.
	dir := directory.New(assets, chainClient, logger)
	miningValuer := valuation.NewMiningValuer(market, sites, cfg.Engine.MarginOfSafety)
	realEstateValuer := valuation.NewRealEstateValuer(registry)
	book := offers.NewBook(chainClient, dir, logger)

	vaultSvc := vault.New(
		chainClient,
		trader,
		chainClient,
		chainClient,
		dir,
		strategies,
		holdings,
		cfg.Chain.Vault(),
		logger,
	)

	notifier := notify.NewNotifier(buildSenders(cfg, bus), cfg.Notify.Events, logger)

	eng := engine.New(engine.Config{
		Book:        book,
		Dir:         dir,
		Valuer:      miningValuer,
		Market:      market,
		Watcher:     chainClient,
		Trader:      trader,
		Vault:       cfg.Chain.Vault(),
		Audit:       audit,
		Syncer:      vaultSvc,
		Notifier:    notifier,
		Logger:      logger,
		AutoExecute: cfg.Engine.AutoExecute,
	})

	orderSvc := orders.New(orderStore, dir, realEstateValuer, logger)

	deps := &Dependencies{
		Postgres:         pg,
		Redis:            rds,
		Chain:            chainClient,
		Audit:            audit,
		Locks:            locks,
		Limiter:          limiter,
		Bus:              bus,
		Dir:              dir,
		Book:             book,
		MiningValuer:     miningValuer,
		RealEstateValuer: realEstateValuer,
		Engine:           eng,
		Vault:            vaultSvc,
		Orders:           orderSvc,
		Notifier:         notifier,
	}

	// Object storage, only for modes that archive.
	if needsS3(cfg.Mode) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(err)
		}
		deps.S3 = s3Client

		retention := time.Duration(cfg.Engine.ArchiveRetentionDays) * 24 * time.Hour
		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			audit,
			retention,
			cfg.Engine.ArchiveInterval.Duration,
			logger,
		)
	}

	return deps, cleanup, nil
}

// buildSenders assembles the configured notification channels. The bus
// sender is always present so the websocket feed sees every event even
// when no external channel is configured.
func buildSenders(cfg *config.Config, bus domain.SignalBus) []notify.Sender {
	senders := []notify.Sender{notify.NewBusSender(bus)}

	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	return senders
}

// needsS3 reports whether the mode runs the audit archiver.
func needsS3(mode string) bool {
	return mode == "sync" || mode == "full"
}

// needsWallet reports whether the mode signs transactions.
func needsWallet(cfg *config.Config) bool {
	return (cfg.Mode == "watch" || cfg.Mode == "full") && cfg.Engine.AutoExecute
}
