// Package server exposes the engine over HTTP: directory, offers and
// their profit estimates, vault strategy, and user orders, plus a
// websocket feed of engine events.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/yamops/yamkeeper/internal/domain"
	"github.com/yamops/yamkeeper/internal/server/handler"
	"github.com/yamops/yamkeeper/internal/server/middleware"
	"github.com/yamops/yamkeeper/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // empty disables authentication

	// RateLimiter throttles clients when non-nil.
	RateLimiter     domain.RateLimiter
	RateLimit       int
	RateLimitWindow time.Duration
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health    *handler.HealthHandler
	Assets    *handler.AssetHandler
	Offers    *handler.OfferHandler
	Valuation *handler.ValuationHandler
	Strategy  *handler.StrategyHandler
	Orders    *handler.OrderHandler
}

// Server is the HTTP + websocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers all routes and builds the middleware chain
// (CORS, request logging, rate limiting, auth).
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	mux.HandleFunc("GET /api/assets", handlers.Assets.ListAssets)
	mux.HandleFunc("GET /api/assets/{address}", handlers.Assets.GetAsset)
	mux.HandleFunc("POST /api/assets/refresh", handlers.Assets.RefreshAssets)
	mux.HandleFunc("GET /api/assets/{address}/value", handlers.Valuation.GetValue)

	mux.HandleFunc("GET /api/offers", handlers.Offers.ListOffers)
	mux.HandleFunc("GET /api/offers/selling", handlers.Offers.ListSellingOffers)
	mux.HandleFunc("GET /api/offers/{id}", handlers.Offers.GetOffer)
	mux.HandleFunc("GET /api/offers/{id}/pnl", handlers.Offers.GetOfferPnL)

	mux.HandleFunc("GET /api/strategy", handlers.Strategy.GetStrategy)
	mux.HandleFunc("POST /api/strategy/sync", handlers.Strategy.SyncStrategy)

	mux.HandleFunc("GET /api/orders", handlers.Orders.ListOrders)
	mux.HandleFunc("POST /api/orders", handlers.Orders.CreateOrder)
	mux.HandleFunc("POST /api/orders/{id}/reprice", handlers.Orders.RepriceOrder)
	mux.HandleFunc("DELETE /api/orders/{id}", handlers.Orders.DeactivateOrder)

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	if cfg.RateLimiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(cfg.RateLimiter, cfg.RateLimit, cfg.RateLimitWindow)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// Start listens for HTTP requests. It blocks until the server errors or
// is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
