// Package app wires yamkeeper's dependency graph and runs the mode the
// configuration selects: watch evaluates and buys, server exposes the
// HTTP and websocket API, sync mirrors the vault and archives audit
// history, full does all three.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/yamops/yamkeeper/internal/config"
)

// App owns the wired dependencies for one process lifetime.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	deps    *Dependencies
	cleanup func()
}

// New wires the dependency graph for cfg.Mode. Call Close when done.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	deps, cleanup, err := Wire(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &App{
		cfg:     cfg,
		logger:  logger,
		deps:    deps,
		cleanup: cleanup,
	}, nil
}

// Run blocks until the mode finishes or ctx is cancelled. Cancellation is
// the normal way to stop and is not reported as an error.
func (a *App) Run(ctx context.Context) error {
	mode := strings.ToLower(a.cfg.Mode)
	a.logger.Info("starting", "mode", mode)

	var err error
	switch mode {
	case "watch":
		err = a.runWatch(ctx)
	case "server":
		err = a.runServer(ctx)
	case "sync":
		err = a.runSync(ctx)
	case "full":
		err = a.runFull(ctx)
	default:
		return fmt.Errorf("app: unknown mode %q", a.cfg.Mode)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Close releases every connection Wire opened, in reverse order.
func (a *App) Close() {
	if a.cleanup != nil {
		a.cleanup()
		a.cleanup = nil
	}
}
