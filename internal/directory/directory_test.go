package directory

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yamops/yamkeeper/internal/domain"
)

var (
	addrAlpha  = common.HexToAddress("0x1000000000000000000000000000000000000001")
	addrStable = common.HexToAddress("0x1000000000000000000000000000000000000002")
)

// fakeAssetStore is mutex-guarded because RefreshAll hits it from
// concurrent goroutines.
type fakeAssetStore struct {
	mu      sync.Mutex
	assets  map[common.Address]domain.Asset
	updates int
}

func (f *fakeAssetStore) GetAssets(_ context.Context, filter domain.AssetFilter) ([]domain.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

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
	f.mu.Lock()
	defer f.mu.Unlock()

	f.assets[asset.Address] = asset
	f.updates++
	return asset, nil
}

func (f *fakeAssetStore) updateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.updates
}

type fakeTokenReader struct {
	symbol   string
	decimals int
	supply   *big.Int
	err      error
}

func (f *fakeTokenReader) Symbol(_ context.Context, _ common.Address) (string, error) {
	return f.symbol, f.err
}

func (f *fakeTokenReader) Decimals(_ context.Context, _ common.Address) (int, error) {
	return f.decimals, f.err
}

func (f *fakeTokenReader) TotalSupply(_ context.Context, _ common.Address) (*big.Int, error) {
	return f.supply, f.err
}

func (f *fakeTokenReader) BalanceOf(_ context.Context, _, _ common.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (f *fakeTokenReader) Allowance(_ context.Context, _, _, _ common.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}

func newService(store *fakeAssetStore, tokens *fakeTokenReader) *Service {
	return New(store, tokens, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func seededStore() *fakeAssetStore {
	return &fakeAssetStore{assets: map[common.Address]domain.Asset{
		addrAlpha: {
			Address:       addrAlpha,
			Symbol:        "CSM-ALPHA",
			Decimals:      9,
			TotalSupply:   big.NewInt(1_000_000),
			IsERC20:       true,
			IsMiningToken: true,
		},
		addrStable: {
			Address:      addrStable,
			Symbol:       "USDC",
			Decimals:     6,
			TotalSupply:  big.NewInt(5_000_000),
			IsERC20:      true,
			IsStableCoin: true,
		},
	}}
}

func TestByAddressReturnsTheAsset(t *testing.T) {
	svc := newService(seededStore(), &fakeTokenReader{})

	asset, err := svc.ByAddress(context.Background(), addrAlpha)
	require.NoError(t, err)
	assert.Equal(t, "CSM-ALPHA", asset.Symbol)
}

func TestByAddressUnknownIsNotFound(t *testing.T) {
	svc := newService(seededStore(), &fakeTokenReader{})

	_, err := svc.ByAddress(context.Background(), common.HexToAddress("0xdead"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLookupEmptyCatalogIsEmptyDirectory(t *testing.T) {
	svc := newService(&fakeAssetStore{assets: map[common.Address]domain.Asset{}}, &fakeTokenReader{})

	_, err := svc.Lookup(context.Background(), domain.AssetFilter{})
	assert.ErrorIs(t, err, domain.ErrEmptyDirectory)
}

func TestClassificationLookups(t *testing.T) {
	svc := newService(seededStore(), &fakeTokenReader{})

	mining, err := svc.MiningTokens(context.Background())
	require.NoError(t, err)
	require.Len(t, mining, 1)
	assert.Equal(t, addrAlpha, mining[0].Address)

	stable, err := svc.StableCoins(context.Background())
	require.NoError(t, err)
	require.Len(t, stable, 1)
	assert.Equal(t, addrStable, stable[0].Address)
}

func TestRefreshUpdatesChainFieldsOnly(t *testing.T) {
	store := seededStore()
	tokens := &fakeTokenReader{symbol: "CSM-A", decimals: 8, supply: big.NewInt(2_000_000)}
	svc := newService(store, tokens)

	updated, err := svc.Refresh(context.Background(), addrAlpha)
	require.NoError(t, err)

	assert.Equal(t, "CSM-A", updated.Symbol)
	assert.Equal(t, 8, updated.Decimals)
	assert.Equal(t, big.NewInt(2_000_000), updated.TotalSupply)
	// Operator-owned classification survives the refresh.
	assert.True(t, updated.IsMiningToken)
}

func TestRefreshAllStopsOnChainFailure(t *testing.T) {
	store := seededStore()
	tokens := &fakeTokenReader{err: errors.New("rpc down")}
	svc := newService(store, tokens)

	err := svc.RefreshAll(context.Background())
	require.Error(t, err)
	assert.Zero(t, store.updateCount())
}

func TestRefreshAllTouchesEveryAsset(t *testing.T) {
	store := seededStore()
	tokens := &fakeTokenReader{symbol: "X", decimals: 6, supply: big.NewInt(1)}
	svc := newService(store, tokens)

	require.NoError(t, svc.RefreshAll(context.Background()))
	assert.Equal(t, 2, store.updateCount())
}
