package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/yamops/yamkeeper/internal/domain"
)

// StrategyService defines what the strategy handler needs from the vault
// service.
type StrategyService interface {
	Strategy(ctx context.Context) (domain.Strategy, error)
	Sync(ctx context.Context) error
}

// StrategyHandler serves vault strategy endpoints.
type StrategyHandler struct {
	vault  StrategyService
	logger *slog.Logger
}

// NewStrategyHandler creates a StrategyHandler.
func NewStrategyHandler(vault StrategyService, logger *slog.Logger) *StrategyHandler {
	return &StrategyHandler{vault: vault, logger: logger}
}

type holdingView struct {
	Asset      string `json:"asset"`
	Symbol     string `json:"symbol"`
	CostBasis  string `json:"cost_basis"`
	Amount     string `json:"amount"`
	Allocation string `json:"allocation"`
}

type strategyView struct {
	Name       string        `json:"name"`
	Share      assetView     `json:"share"`
	Underlying assetView     `json:"underlying"`
	IsPaused   bool          `json:"is_paused"`
	TVL        string        `json:"tvl"`
	Holdings   []holdingView `json:"holdings"`
}

// GetStrategy returns the latest stored strategy snapshot.
// GET /api/strategy
func (h *StrategyHandler) GetStrategy(w http.ResponseWriter, r *http.Request) {
	strategy, err := h.vault.Strategy(r.Context())
	if err != nil {
		writeFailure(w, r, h.logger, "get strategy", err)
		return
	}

	holdings := make([]holdingView, 0, len(strategy.Holdings))
	for _, hld := range strategy.Holdings {
		holdings = append(holdings, holdingView{
			Asset:      hld.AssetAddress.Hex(),
			Symbol:     hld.Symbol,
			CostBasis:  renderFixed(hld.CostBasis),
			Amount:     renderFixed(hld.Amount),
			Allocation: renderFixed(hld.Allocation),
		})
	}

	writeJSON(w, http.StatusOK, strategyView{
		Name:       strategy.Name,
		Share:      toAssetView(strategy.Share),
		Underlying: toAssetView(strategy.UnderlyingAsset),
		IsPaused:   strategy.IsPaused,
		TVL:        renderFixed(strategy.TVL),
		Holdings:   holdings,
	})
}

// SyncStrategy forces a fresh chain read of the vault snapshot.
// POST /api/strategy/sync
func (h *StrategyHandler) SyncStrategy(w http.ResponseWriter, r *http.Request) {
	if err := h.vault.Sync(r.Context()); err != nil {
		writeFailure(w, r, h.logger, "sync strategy", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "synced"})
}
