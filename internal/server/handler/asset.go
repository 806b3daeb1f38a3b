package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/yamops/yamkeeper/internal/domain"
)

// AssetDirectory defines what the asset handler needs from the directory
// service. Declared locally so the handler package does not depend on the
// concrete implementation.
type AssetDirectory interface {
	Lookup(ctx context.Context, filter domain.AssetFilter) ([]domain.Asset, error)
	ByAddress(ctx context.Context, addr common.Address) (domain.Asset, error)
	Refresh(ctx context.Context, addr common.Address) (domain.Asset, error)
	RefreshAll(ctx context.Context) error
}

// AssetHandler serves asset directory endpoints.
type AssetHandler struct {
	dir    AssetDirectory
	logger *slog.Logger
}

// NewAssetHandler creates an AssetHandler.
func NewAssetHandler(dir AssetDirectory, logger *slog.Logger) *AssetHandler {
	return &AssetHandler{dir: dir, logger: logger}
}

// assetView is the JSON shape of an asset.
type assetView struct {
	Address       string `json:"address"`
	Symbol        string `json:"symbol"`
	Decimals      int    `json:"decimals"`
	TotalSupply   string `json:"total_supply"`
	IsERC20       bool   `json:"is_erc20"`
	IsStableCoin  bool   `json:"is_stablecoin"`
	IsMiningToken bool   `json:"is_mining_token"`
	LogoURL       string `json:"logo_url,omitempty"`
}

func toAssetView(a domain.Asset) assetView {
	supply := "0"
	if a.TotalSupply != nil {
		supply = a.TotalSupply.String()
	}
	return assetView{
		Address:       a.Address.Hex(),
		Symbol:        a.Symbol,
		Decimals:      a.Decimals,
		TotalSupply:   supply,
		IsERC20:       a.IsERC20,
		IsStableCoin:  a.IsStableCoin,
		IsMiningToken: a.IsMiningToken,
		LogoURL:       a.LogoURL,
	}
}

// ListAssets returns directory assets, optionally filtered by class.
// GET /api/assets?class=stable|mining
func (h *AssetHandler) ListAssets(w http.ResponseWriter, r *http.Request) {
	var filter domain.AssetFilter
	switch r.URL.Query().Get("class") {
	case "stable":
		filter.IsStableCoin = domain.BoolPtr(true)
	case "mining":
		filter.IsMiningToken = domain.BoolPtr(true)
	case "":
	default:
		writeError(w, http.StatusBadRequest, "unknown class (valid: stable, mining)")
		return
	}

	assets, err := h.dir.Lookup(r.Context(), filter)
	if err != nil {
		writeFailure(w, r, h.logger, "list assets", err)
		return
	}

	views := make([]assetView, 0, len(assets))
	for _, a := range assets {
		views = append(views, toAssetView(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"assets": views})
}

// GetAsset returns a single asset by address.
// GET /api/assets/{address}
func (h *AssetHandler) GetAsset(w http.ResponseWriter, r *http.Request) {
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
	writeJSON(w, http.StatusOK, toAssetView(asset))
}

// RefreshAssets re-reads chain metadata for the whole directory.
// POST /api/assets/refresh
func (h *AssetHandler) RefreshAssets(w http.ResponseWriter, r *http.Request) {
	if err := h.dir.RefreshAll(r.Context()); err != nil {
		writeFailure(w, r, h.logger, "refresh assets", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}
