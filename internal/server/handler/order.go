package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/yamops/yamkeeper/internal/domain"
	"github.com/yamops/yamkeeper/internal/orders"
)

// OrderService defines what the order handler needs from the order
// service.
type OrderService interface {
	Create(ctx context.Context, p orders.CreateParams) (domain.Order, error)
	List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error)
	Reprice(ctx context.Context, orderID string) (domain.Order, error)
	Deactivate(ctx context.Context, orderID string) (domain.Order, error)
}

// OrderHandler serves user order endpoints.
type OrderHandler struct {
	orders OrderService
	dir    AssetDirectory
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler. The directory resolves token
// decimals when parsing amounts.
func NewOrderHandler(svc OrderService, dir AssetDirectory, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{orders: svc, dir: dir, logger: logger}
}

type orderView struct {
	ID             string `json:"id"`
	UserAddress    string `json:"user_address"`
	OfferAsset     string `json:"offer_asset"`
	BuyerAsset     string `json:"buyer_asset"`
	BasePrice      string `json:"base_price"`
	Price          string `json:"price"`
	DisplayedPrice string `json:"displayed_price"`
	Amount         string `json:"amount"`
	IsActive       bool   `json:"is_active"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

func toOrderView(o domain.Order) orderView {
	return orderView{
		ID:             o.ID,
		UserAddress:    o.UserAddress.Hex(),
		OfferAsset:     o.OfferAssetAddress.Hex(),
		BuyerAsset:     o.BuyerAssetAddress.Hex(),
		BasePrice:      renderFixed(o.BasePrice),
		Price:          renderFixed(o.Price),
		DisplayedPrice: renderFixed(o.DisplayedPrice),
		Amount:         renderFixed(o.Amount),
		IsActive:       o.IsActive,
		CreatedAt:      o.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:      o.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// createOrderRequest is the POST body for a new order.
type createOrderRequest struct {
	UserAddress string `json:"user_address"`
	OfferAsset  string `json:"offer_asset"`
	BuyerAsset  string `json:"buyer_asset"`
	Amount      string `json:"amount"`
}

// ListOrders returns orders, optionally filtered by user and activity.
// GET /api/orders?user=0x...&active=true
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	var filter domain.OrderFilter
	q := r.URL.Query()
	if user := q.Get("user"); user != "" {
		addr, ok := parseAddress(user)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid user address")
			return
		}
		filter.UserAddresses = []common.Address{addr}
	}
	switch q.Get("active") {
	case "true":
		filter.IsActive = domain.BoolPtr(true)
	case "false":
		filter.IsActive = domain.BoolPtr(false)
	}

	list, err := h.orders.List(r.Context(), filter)
	if err != nil {
		writeFailure(w, r, h.logger, "list orders", err)
		return
	}

	views := make([]orderView, 0, len(list))
	for _, o := range list {
		views = append(views, toOrderView(o))
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": views})
}

// CreateOrder prices and stores a new order.
// POST /api/orders
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, ok := parseAddress(req.UserAddress)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid user_address")
		return
	}
	offerAsset, ok := parseAddress(req.OfferAsset)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid offer_asset")
		return
	}
	buyerAsset, ok := parseAddress(req.BuyerAsset)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid buyer_asset")
		return
	}

	asset, err := h.dir.ByAddress(r.Context(), offerAsset)
	if err != nil {
		writeFailure(w, r, h.logger, "resolve offer asset", err)
		return
	}

	amount, err := parseFixed(req.Amount, asset.Decimals)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	order, err := h.orders.Create(r.Context(), orders.CreateParams{
		UserAddress: user,
		OfferAsset:  offerAsset,
		BuyerAsset:  buyerAsset,
		Amount:      amount,
	})
	if err != nil {
		writeFailure(w, r, h.logger, "create order", err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderView(order))
}

// RepriceOrder recomputes an order's price tiers from a fresh quote.
// POST /api/orders/{id}/reprice
func (h *OrderHandler) RepriceOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.Reprice(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeFailure(w, r, h.logger, "reprice order", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderView(order))
}

// DeactivateOrder cancels an order; cancelling twice is a no-op.
// DELETE /api/orders/{id}
func (h *OrderHandler) DeactivateOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.Deactivate(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeFailure(w, r, h.logger, "deactivate order", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderView(order))
}

// parseFixed converts a decimal string into a Fixed at the given scale,
// truncating extra fractional digits.
func parseFixed(s string, scale int) (domain.Fixed, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return domain.Fixed{}, err
	}
	return domain.NewFixed(d.Shift(int32(scale)).BigInt(), scale), nil
}
