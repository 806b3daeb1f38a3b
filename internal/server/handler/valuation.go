package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/yamops/yamkeeper/internal/domain"
)

// MiningValuer computes the fundamental value of a mining token.
type MiningValuer interface {
	FundamentalValue(ctx context.Context, asset domain.Asset) (domain.Fixed, error)
}

// RealEstateValuer prices real-estate tokens off their registry quote.
type RealEstateValuer interface {
	BuyBackValue(ctx context.Context, asset domain.Asset) (domain.Fixed, error)
	TotalDiscount(ctx context.Context, asset domain.Asset) (domain.Fixed, error)
}

// ValuationHandler serves fundamental value endpoints.
type ValuationHandler struct {
	dir        AssetDirectory
	mining     MiningValuer
	realestate RealEstateValuer
	logger     *slog.Logger
}

// NewValuationHandler creates a ValuationHandler.
func NewValuationHandler(dir AssetDirectory, mining MiningValuer, realestate RealEstateValuer, logger *slog.Logger) *ValuationHandler {
	return &ValuationHandler{dir: dir, mining: mining, realestate: realestate, logger: logger}
}

// GetValue returns the fundamental valuation of an asset. Mining tokens
// get the treasury-backed figure; registry-listed tokens get the buy-back
// value and total discount.
// GET /api/assets/{address}/value
func (h *ValuationHandler) GetValue(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(pathParam(r, "address"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid asset address")
		return
	}

	asset, err := h.dir.ByAddress(r.Context(), addr)
	if err != nil {
		writeFailure(w, r, h.logger, "get asset", err)
		return
	}

	switch {
	case asset.IsMiningToken:
		value, err := h.mining.FundamentalValue(r.Context(), asset)
		if err != nil {
			writeFailure(w, r, h.logger, "value asset", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"address": asset.Address.Hex(),
			"symbol":  asset.Symbol,
			"kind":    "mining",
			"value":   renderFixed(value),
		})

	case asset.OracleRefs.RegistryID != domain.ZeroAddress:
		value, err := h.realestate.BuyBackValue(r.Context(), asset)
		if err != nil {
			writeFailure(w, r, h.logger, "value asset", err)
			return
		}
		discount, err := h.realestate.TotalDiscount(r.Context(), asset)
		if err != nil {
			writeFailure(w, r, h.logger, "value asset", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"address":          asset.Address.Hex(),
			"symbol":           asset.Symbol,
			"kind":             "realestate",
			"value":            renderFixed(value),
			"discount_percent": renderFixed(discount),
		})

	default:
		writeJSON(w, http.StatusOK, map[string]string{
			"error": "asset has no valuation source",
		})
	}
}
