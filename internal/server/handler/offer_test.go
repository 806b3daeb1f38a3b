package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yamops/yamkeeper/internal/domain"
)

type fakeBook struct {
	offers map[uint64]domain.Offer
}

func (f *fakeBook) All(_ context.Context) ([]domain.Offer, error) {
	out := make([]domain.Offer, 0, len(f.offers))
	for _, o := range f.offers {
		out = append(out, o)
	}
	return out, nil
}

func (f *fakeBook) Get(_ context.Context, offerID uint64) (domain.Offer, error) {
	o, ok := f.offers[offerID]
	if !ok {
		return domain.Offer{}, fmt.Errorf("offers: offer %d: %w", offerID, domain.ErrOfferNotFound)
	}
	return o, nil
}

func (f *fakeBook) Selling(_ context.Context) ([]domain.Offer, error) {
	return f.All(context.Background())
}

type fakeEstimator struct {
	pnl domain.Fixed
	err error
}

func (f *fakeEstimator) SellingOfferPnL(_ context.Context, _ domain.Offer) (domain.Fixed, error) {
	return f.pnl, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func usd(cents int64) domain.Fixed {
	return domain.NewFixed(big.NewInt(cents), domain.USDScale)
}

func testOffer() domain.Offer {
	return domain.Offer{
		OfferID:          7,
		Seller:           common.HexToAddress("0x1111111111111111111111111111111111111111"),
		OfferToken:       common.HexToAddress("0x2222222222222222222222222222222222222222"),
		OfferTokenSymbol: "CSM-ALPHA",
		BuyerToken:       common.HexToAddress("0x3333333333333333333333333333333333333333"),
		BuyerTokenSymbol: "USDC",
		Price:            domain.NewFixed(big.NewInt(9_000_000), 6),
		Amount:           domain.NewFixed(big.NewInt(5_000_000_000), 9),
	}
}

func getOfferPnL(t *testing.T, h *OfferHandler, id string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/offers/{id}/pnl", h.GetOfferPnL)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/offers/"+id+"/pnl", nil))
	return rec
}

func TestGetOfferPnLRendersEstimate(t *testing.T) {
	book := &fakeBook{offers: map[uint64]domain.Offer{7: testOffer()}}
	h := NewOfferHandler(book, &fakeEstimator{pnl: usd(4200)}, discardLogger())

	rec := getOfferPnL(t, h, "7")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "42", body["pnl"])
}

func TestGetOfferPnLBusinessErrorIsAnAnswer(t *testing.T) {
	book := &fakeBook{offers: map[uint64]domain.Offer{7: testOffer()}}
	estimator := &fakeEstimator{err: fmt.Errorf("engine: offer 7 priced in WETH: %w", domain.ErrWrongOfferType)}
	h := NewOfferHandler(book, estimator, discardLogger())

	rec := getOfferPnL(t, h, "7")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "priced in WETH")
}

func TestGetOfferPnLExternalErrorIsAFailure(t *testing.T) {
	book := &fakeBook{offers: map[uint64]domain.Offer{7: testOffer()}}
	estimator := &fakeEstimator{err: domain.NewExternalError("cryptomarket", "quote", 502, errors.New("bad gateway"))}
	h := NewOfferHandler(book, estimator, discardLogger())

	rec := getOfferPnL(t, h, "7")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	// The upstream failure detail stays in the logs, not the response.
	assert.NotContains(t, rec.Body.String(), "bad gateway")
}

func TestGetOfferUnknownIDIsAnAnswer(t *testing.T) {
	h := NewOfferHandler(&fakeBook{}, &fakeEstimator{}, discardLogger())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/offers/{id}", h.GetOffer)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/offers/99", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "99")
}

func TestGetOfferBadIDIsBadRequest(t *testing.T) {
	h := NewOfferHandler(&fakeBook{}, &fakeEstimator{}, discardLogger())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/offers/{id}", h.GetOffer)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/offers/seven", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListOffersRendersViews(t *testing.T) {
	offer := testOffer()
	offer.PnL = usd(150)
	offer.HasPnL = true
	book := &fakeBook{offers: map[uint64]domain.Offer{7: offer}}
	h := NewOfferHandler(book, &fakeEstimator{}, discardLogger())

	rec := httptest.NewRecorder()
	h.ListOffers(rec, httptest.NewRequest(http.MethodGet, "/api/offers", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Offers []offerView `json:"offers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Offers, 1)

	got := body.Offers[0]
	assert.Equal(t, uint64(7), got.OfferID)
	assert.Equal(t, "CSM-ALPHA", got.OfferTokenSymbol)
	assert.Equal(t, "9", got.Price)
	assert.Equal(t, "5", got.Amount)
	assert.Equal(t, "1.5", got.PnL)
	assert.Empty(t, got.Buyer)
	assert.True(t, got.Open)
}
