package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yamops/yamkeeper/internal/domain"
	"github.com/yamops/yamkeeper/internal/notify"
	"github.com/yamops/yamkeeper/internal/server"
	"github.com/yamops/yamkeeper/internal/server/handler"
	"github.com/yamops/yamkeeper/internal/server/ws"
)

// watchLockTTL is the marketplace watcher's single-instance lease. The
// holder refreshes it continuously; a crashed holder frees it within one
// TTL.
const watchLockTTL = 30 * time.Second

const shutdownTimeout = 10 * time.Second

// runWatch evaluates marketplace events and fires purchases. A Redis lock
// guarantees a single active watcher across deployments.
func (a *App) runWatch(ctx context.Context) error {
	release, err := a.acquireWatchLock(ctx)
	if err != nil {
		return err
	}
	defer release()

	g, gctx := errgroup.WithContext(ctx)
	a.startEngine(gctx, g)
	return g.Wait()
}

// runServer serves the HTTP and websocket API without touching the chain
// beyond reads.
func (a *App) runServer(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	a.startHTTPServer(gctx, g)
	return g.Wait()
}

// runSync keeps the stored strategy snapshot fresh and runs the audit
// archiver, without evaluating offers.
func (a *App) runSync(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	a.startVaultSync(gctx, g)
	a.startArchiver(gctx, g)
	return g.Wait()
}

// runFull runs everything in one process.
func (a *App) runFull(ctx context.Context) error {
	release, err := a.acquireWatchLock(ctx)
	if err != nil {
		return err
	}
	defer release()

	g, gctx := errgroup.WithContext(ctx)
	a.startEngine(gctx, g)
	a.startHTTPServer(gctx, g)
	a.startArchiver(gctx, g)
	return g.Wait()
}

func (a *App) acquireWatchLock(ctx context.Context) (func(), error) {
	release, err := a.deps.Locks.Acquire(ctx, "watch", watchLockTTL)
	if errors.Is(err, domain.ErrLockHeld) {
		return nil, fmt.Errorf("app: another watcher instance is active: %w", err)
	}
	if err != nil {
		return nil, err
	}
	return release, nil
}

// startEngine brings the offer book and strategy snapshot up to date, then
// follows marketplace and vault events until the context ends.
func (a *App) startEngine(ctx context.Context, g *errgroup.Group) {
	g.Go(func() error {
		if err := a.deps.Vault.Sync(ctx); err != nil {
			a.logger.Warn("initial strategy sync failed", "error", err)
		}
		if err := a.deps.Engine.EvaluateAll(ctx); err != nil {
			a.logger.Warn("initial offer evaluation failed", "error", err)
		}

		stopEngine, err := a.deps.Engine.Start(ctx)
		if err != nil {
			return err
		}
		defer stopEngine()

		stopVault, err := a.deps.Vault.Watch(ctx)
		if err != nil {
			return err
		}
		defer stopVault()

		<-ctx.Done()
		return ctx.Err()
	})
}

// startVaultSync performs one full sync and then follows vault activity.
func (a *App) startVaultSync(ctx context.Context, g *errgroup.Group) {
	g.Go(func() error {
		if err := a.deps.Vault.Sync(ctx); err != nil {
			return err
		}

		stop, err := a.deps.Vault.Watch(ctx)
		if err != nil {
			return err
		}
		defer stop()

		<-ctx.Done()
		return ctx.Err()
	})
}

func (a *App) startArchiver(ctx context.Context, g *errgroup.Group) {
	if a.deps.Archiver == nil {
		return
	}
	g.Go(func() error {
		return a.deps.Archiver.Run(ctx)
	})
}

// startHTTPServer builds the handlers, the websocket hub fed by the Redis
// event channel, and the server itself, and ties their lifetimes to the
// group's context.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group) {
	hub := ws.NewHub(a.deps.Bus, notify.EventsChannel, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	pingers := map[string]handler.Pinger{
		"postgres": a.deps.Postgres,
		"redis":    a.deps.Redis,
	}
	if a.deps.S3 != nil {
		pingers["s3"] = a.deps.S3
	}

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(pingers, a.logger),
		Assets:    handler.NewAssetHandler(a.deps.Dir, a.logger),
		Offers:    handler.NewOfferHandler(a.deps.Book, a.deps.Engine, a.logger),
		Valuation: handler.NewValuationHandler(a.deps.Dir, a.deps.MiningValuer, a.deps.RealEstateValuer, a.logger),
		Strategy:  handler.NewStrategyHandler(a.deps.Vault, a.logger),
		Orders:    handler.NewOrderHandler(a.deps.Orders, a.deps.Dir, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimiter:     a.deps.Limiter,
		RateLimit:       a.cfg.Server.RateLimitPerMinute,
		RateLimitWindow: time.Minute,
	}, handlers, hub, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
