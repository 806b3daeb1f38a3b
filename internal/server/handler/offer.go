package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/yamops/yamkeeper/internal/domain"
)

// OfferBook defines what the offer handler needs from the offer book.
type OfferBook interface {
	All(ctx context.Context) ([]domain.Offer, error)
	Get(ctx context.Context, offerID uint64) (domain.Offer, error)
	Selling(ctx context.Context) ([]domain.Offer, error)
}

// Estimator computes the profit estimate for a selling offer.
type Estimator interface {
	SellingOfferPnL(ctx context.Context, offer domain.Offer) (domain.Fixed, error)
}

// OfferHandler serves marketplace offer endpoints.
type OfferHandler struct {
	book      OfferBook
	estimator Estimator
	logger    *slog.Logger
}

// NewOfferHandler creates an OfferHandler.
func NewOfferHandler(book OfferBook, estimator Estimator, logger *slog.Logger) *OfferHandler {
	return &OfferHandler{book: book, estimator: estimator, logger: logger}
}

// offerView is the JSON shape of an offer.
type offerView struct {
	OfferID          uint64 `json:"offer_id"`
	Seller           string `json:"seller"`
	Buyer            string `json:"buyer,omitempty"`
	OfferToken       string `json:"offer_token"`
	OfferTokenSymbol string `json:"offer_token_symbol"`
	BuyerToken       string `json:"buyer_token"`
	BuyerTokenSymbol string `json:"buyer_token_symbol"`
	Price            string `json:"price"`
	Amount           string `json:"amount"`
	Open             bool   `json:"open"`
	PnL              string `json:"pnl,omitempty"`
}

func toOfferView(o domain.Offer) offerView {
	v := offerView{
		OfferID:          o.OfferID,
		Seller:           o.Seller.Hex(),
		OfferToken:       o.OfferToken.Hex(),
		OfferTokenSymbol: o.OfferTokenSymbol,
		BuyerToken:       o.BuyerToken.Hex(),
		BuyerTokenSymbol: o.BuyerTokenSymbol,
		Price:            renderFixed(o.Price),
		Amount:           renderFixed(o.Amount),
		Open:             o.Open(),
	}
	if o.Buyer != domain.ZeroAddress {
		v.Buyer = o.Buyer.Hex()
	}
	if o.HasPnL {
		v.PnL = renderFixed(o.PnL)
	}
	return v
}

// ListOffers returns every eligible offer in the book.
// GET /api/offers
func (h *OfferHandler) ListOffers(w http.ResponseWriter, r *http.Request) {
	offers, err := h.book.All(r.Context())
	if err != nil {
		writeFailure(w, r, h.logger, "list offers", err)
		return
	}
	h.writeOffers(w, offers)
}

// ListSellingOffers returns open mining-token offers priced in stablecoins.
// GET /api/offers/selling
func (h *OfferHandler) ListSellingOffers(w http.ResponseWriter, r *http.Request) {
	offers, err := h.book.Selling(r.Context())
	if err != nil {
		writeFailure(w, r, h.logger, "list selling offers", err)
		return
	}
	h.writeOffers(w, offers)
}

// GetOffer returns a single offer by id.
// GET /api/offers/{id}
func (h *OfferHandler) GetOffer(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(pathParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid offer id")
		return
	}

	offer, err := h.book.Get(r.Context(), id)
	if err != nil {
		writeFailure(w, r, h.logger, "get offer", err)
		return
	}
	writeJSON(w, http.StatusOK, toOfferView(offer))
}

// GetOfferPnL computes the live profit estimate for an offer.
// GET /api/offers/{id}/pnl
func (h *OfferHandler) GetOfferPnL(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(pathParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid offer id")
		return
	}

	offer, err := h.book.Get(r.Context(), id)
	if err != nil {
		writeFailure(w, r, h.logger, "get offer", err)
		return
	}

	pnl, err := h.estimator.SellingOfferPnL(r.Context(), offer)
	if err != nil {
		writeFailure(w, r, h.logger, "estimate offer", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"offer_id": id,
		"pnl":      renderFixed(pnl),
	})
}

func (h *OfferHandler) writeOffers(w http.ResponseWriter, offers []domain.Offer) {
	views := make([]offerView, 0, len(offers))
	for _, o := range offers {
		views = append(views, toOfferView(o))
	}
	writeJSON(w, http.StatusOK, map[string]any{"offers": views})
}
