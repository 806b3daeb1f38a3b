package offers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yamops/yamkeeper/internal/directory"
	"github.com/yamops/yamkeeper/internal/domain"
)

var (
	miningToken = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	stableToken = common.HexToAddress("0x0000000000000000000000000000000000000a02")
	strayToken  = common.HexToAddress("0x0000000000000000000000000000000000000a03")
	seller      = common.HexToAddress("0x0000000000000000000000000000000000000c01")
	buyer       = common.HexToAddress("0x0000000000000000000000000000000000000c02")
)

type fakeMarketplace struct {
	offers     map[uint64]domain.RawOffer
	failures   map[uint64]error
	countCalls atomic.Int32
}

func (f *fakeMarketplace) OfferCount(context.Context) (uint64, error) {
	f.countCalls.Add(1)
	var max uint64
	for id := range f.offers {
		if id >= max {
			max = id + 1
		}
	}
	return max, nil
}

func (f *fakeMarketplace) InitialOffer(ctx context.Context, id uint64) (domain.RawOffer, error) {
	return f.CurrentOffer(ctx, id)
}

func (f *fakeMarketplace) CurrentOffer(_ context.Context, id uint64) (domain.RawOffer, error) {
	if err, ok := f.failures[id]; ok {
		return domain.RawOffer{}, err
	}
	raw, ok := f.offers[id]
	if !ok {
		return domain.RawOffer{}, fmt.Errorf("%w: offer %d", domain.ErrOfferNotFound, id)
	}
	return raw, nil
}

type fakeAssetStore struct {
	assets []domain.Asset
}

func (f *fakeAssetStore) GetAssets(_ context.Context, filter domain.AssetFilter) ([]domain.Asset, error) {
	var out []domain.Asset
	for _, a := range f.assets {
		if filter.Matches(a) {
			out = append(out, a)
		}
	}
	if len(out) == 0 {
		if filter.IsConstrained() {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrEmptyDirectory
	}
	return out, nil
}

func (f *fakeAssetStore) UpdateAsset(_ context.Context, asset domain.Asset) (domain.Asset, error) {
	for i, a := range f.assets {
		if a.Address == asset.Address {
			f.assets[i] = asset
			return asset, nil
		}
	}
	f.assets = append(f.assets, asset)
	return asset, nil
}

type noopTokens struct{}

func (noopTokens) Symbol(context.Context, common.Address) (string, error)    { return "", nil }
func (noopTokens) Decimals(context.Context, common.Address) (int, error)     { return 0, nil }
func (noopTokens) TotalSupply(context.Context, common.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}
func (noopTokens) BalanceOf(context.Context, common.Address, common.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}
func (noopTokens) Allowance(context.Context, common.Address, common.Address, common.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDirectory() *directory.Service {
	store := &fakeAssetStore{assets: []domain.Asset{
		{
			Address:       miningToken,
			Symbol:        "SITE-1",
			Decimals:      9,
			TotalSupply:   big.NewInt(1000e9),
			IsERC20:       true,
			IsMiningToken: true,
		},
		{
			Address:      stableToken,
			Symbol:       "USDONE",
			Decimals:     6,
			TotalSupply:  big.NewInt(1_000_000e6),
			IsERC20:      true,
			IsStableCoin: true,
		},
	}}
	return directory.New(store, noopTokens{}, testLogger())
}

func rawOffer(s, b common.Address) domain.RawOffer {
	return domain.RawOffer{
		OfferToken: miningToken,
		BuyerToken: stableToken,
		Seller:     s,
		Buyer:      b,
		Price:      big.NewInt(55_000_000), // 55 USDONE at 6 decimals
		Amount:     big.NewInt(10e9),       // 10 tokens at 9 decimals
	}
}

func TestBookPopulateAdmitsOnlyEligibleOffers(t *testing.T) {
	strange := rawOffer(seller, domain.ZeroAddress)
	strange.OfferToken = strayToken

	market := &fakeMarketplace{offers: map[uint64]domain.RawOffer{
		0: rawOffer(seller, domain.ZeroAddress), // eligible
		1: strange,                              // token not in the directory
		2: rawOffer(seller, buyer),              // private offer
		3: rawOffer(domain.ZeroAddress, domain.ZeroAddress), // no seller
		// id 4 pruned on chain
		5: rawOffer(seller, domain.ZeroAddress), // eligible
	}}

	book := NewBook(market, testDirectory(), testLogger())
	all, err := book.All(context.Background())

	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, uint64(0), all[0].OfferID)
	assert.Equal(t, uint64(5), all[1].OfferID)

	got := all[0]
	assert.Equal(t, "SITE-1", got.OfferTokenSymbol)
	assert.Equal(t, "USDONE", got.BuyerTokenSymbol)
	assert.Equal(t, 6, got.Price.Scale(), "price carries the buyer token decimals")
	assert.Equal(t, 9, got.Amount.Scale(), "amount carries the offer token decimals")
	assert.Equal(t, "55.000000", got.Price.String())
	assert.True(t, got.Open())
}

func TestBookPopulateDropsUnreadableOffers(t *testing.T) {
	market := &fakeMarketplace{
		offers: map[uint64]domain.RawOffer{
			0: rawOffer(seller, domain.ZeroAddress),
			1: rawOffer(seller, domain.ZeroAddress),
			2: rawOffer(seller, domain.ZeroAddress),
		},
		failures: map[uint64]error{
			1: domain.NewExternalError("chain", "showOffer", 0, errors.New("connection reset")),
		},
	}

	book := NewBook(market, testDirectory(), testLogger())
	all, err := book.All(context.Background())

	require.NoError(t, err, "one unreadable offer must not fail the scan")
	require.Len(t, all, 2)
	assert.Equal(t, uint64(0), all[0].OfferID)
	assert.Equal(t, uint64(2), all[1].OfferID)
}

func TestBookPopulatesExactlyOnce(t *testing.T) {
	market := &fakeMarketplace{offers: map[uint64]domain.RawOffer{
		0: rawOffer(seller, domain.ZeroAddress),
	}}
	book := NewBook(market, testDirectory(), testLogger())

	_, err := book.All(context.Background())
	require.NoError(t, err)
	_, err = book.All(context.Background())
	require.NoError(t, err)
	_, err = book.Get(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, int32(1), market.countCalls.Load())
}

func TestBookUpsertIsIdempotent(t *testing.T) {
	market := &fakeMarketplace{offers: map[uint64]domain.RawOffer{}}
	book := NewBook(market, testDirectory(), testLogger())

	offer := domain.Offer{OfferID: 9, Seller: seller, OfferToken: miningToken, BuyerToken: stableToken}
	book.Upsert(offer)
	book.Upsert(offer)

	all, err := book.All(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestBookRefreshReplacesStoredOffer(t *testing.T) {
	market := &fakeMarketplace{offers: map[uint64]domain.RawOffer{
		0: rawOffer(seller, domain.ZeroAddress),
	}}
	book := NewBook(market, testDirectory(), testLogger())

	_, err := book.All(context.Background())
	require.NoError(t, err)

	stored, err := book.Get(context.Background(), 0)
	require.NoError(t, err)
	stored.PnL = domain.FixedFromInt64(150, 2)
	stored.HasPnL = true
	book.Upsert(stored)

	// A buy shrinks the amount remaining on chain, price untouched.
	shrunk := rawOffer(seller, domain.ZeroAddress)
	shrunk.Amount = big.NewInt(3e9)
	market.offers[0] = shrunk

	refreshed, err := book.Refresh(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, "3.000000000", refreshed.Amount.String())
	assert.True(t, refreshed.HasPnL, "an unchanged price keeps the estimate")
	assert.Equal(t, "1.50", refreshed.PnL.String())

	got, err := book.Get(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, "3.000000000", got.Amount.String())
}

func TestBookRefreshKeepsFilledOfferVisible(t *testing.T) {
	market := &fakeMarketplace{offers: map[uint64]domain.RawOffer{
		0: rawOffer(seller, domain.ZeroAddress),
	}}
	book := NewBook(market, testDirectory(), testLogger())

	_, err := book.All(context.Background())
	require.NoError(t, err)

	filled := rawOffer(seller, buyer)
	filled.Amount = big.NewInt(0)
	market.offers[0] = filled

	refreshed, err := book.Refresh(context.Background(), 0)
	require.NoError(t, err)
	assert.False(t, refreshed.Open())
	assert.Equal(t, buyer, refreshed.Buyer)
	assert.Equal(t, "0.000000000", refreshed.Amount.String())
	assert.Equal(t, "SITE-1", refreshed.OfferTokenSymbol, "identity survives the fill")
}

func TestBookRefreshUnknownOffer(t *testing.T) {
	market := &fakeMarketplace{offers: map[uint64]domain.RawOffer{}}
	book := NewBook(market, testDirectory(), testLogger())

	_, err := book.Refresh(context.Background(), 42)
	assert.ErrorIs(t, err, domain.ErrOfferNotFound)
}

func TestBookApplyUpdate(t *testing.T) {
	market := &fakeMarketplace{offers: map[uint64]domain.RawOffer{
		0: rawOffer(seller, domain.ZeroAddress),
	}}
	book := NewBook(market, testDirectory(), testLogger())

	updated, err := book.ApplyUpdate(context.Background(), domain.OfferUpdatedLog{
		OfferID:   0,
		NewPrice:  big.NewInt(50_000_000),
		NewAmount: big.NewInt(5e9),
	})

	require.NoError(t, err)
	assert.Equal(t, "50.000000", updated.Price.String())
	assert.Equal(t, "5.000000000", updated.Amount.String())
	assert.False(t, updated.HasPnL, "a price change invalidates the stored estimate")
}

func TestBookApplyUpdateUnknownOffer(t *testing.T) {
	market := &fakeMarketplace{offers: map[uint64]domain.RawOffer{}}
	book := NewBook(market, testDirectory(), testLogger())

	_, err := book.ApplyUpdate(context.Background(), domain.OfferUpdatedLog{
		OfferID:   42,
		NewPrice:  big.NewInt(1),
		NewAmount: big.NewInt(1),
	})

	assert.ErrorIs(t, err, domain.ErrOfferNotFound)
}

func TestBookSelling(t *testing.T) {
	reversed := rawOffer(seller, domain.ZeroAddress)
	reversed.OfferToken, reversed.BuyerToken = reversed.BuyerToken, reversed.OfferToken

	market := &fakeMarketplace{offers: map[uint64]domain.RawOffer{
		0: rawOffer(seller, domain.ZeroAddress), // mining for stable: selling
		1: reversed,                             // stable for mining: not selling
	}}
	book := NewBook(market, testDirectory(), testLogger())

	selling, err := book.Selling(context.Background())
	require.NoError(t, err)
	require.Len(t, selling, 1)
	assert.Equal(t, uint64(0), selling[0].OfferID)
}

func TestBookSellingEmpty(t *testing.T) {
	market := &fakeMarketplace{offers: map[uint64]domain.RawOffer{}}
	book := NewBook(market, testDirectory(), testLogger())

	_, err := book.Selling(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoOffers)
}
