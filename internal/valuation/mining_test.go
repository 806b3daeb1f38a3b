package valuation

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yamops/yamkeeper/internal/domain"
)

type stubMarket struct {
	quotes map[int64]domain.Fixed
	err    error
}

func (s stubMarket) QuoteUSD(_ context.Context, id int64) (domain.Fixed, error) {
	if s.err != nil {
		return domain.Fixed{}, s.err
	}
	return s.quotes[id], nil
}

type stubSite struct {
	price       domain.Fixed
	treasury    domain.Fixed
	priceErr    error
	treasuryErr error
}

func (s stubSite) SitePrice(context.Context, int64) (domain.Fixed, error) {
	return s.price, s.priceErr
}

func (s stubSite) SiteTreasury(context.Context, int64) (domain.Fixed, error) {
	return s.treasury, s.treasuryErr
}

func miningAsset(supply int64) domain.Asset {
	return domain.Asset{
		Address:       common.HexToAddress("0x0000000000000000000000000000000000000a01"),
		Symbol:        "SITE-1",
		Decimals:      0,
		TotalSupply:   big.NewInt(supply),
		IsERC20:       true,
		IsMiningToken: true,
		OracleRefs:    domain.OracleRefs{MiningSiteID: 7},
	}
}

func TestFundamentalValue_TreasuryShareAddedToSitePrice(t *testing.T) {
	// Site token quoted at 1.00 USD, treasury 0.1 BTC, BTC at 50000.00 USD,
	// 1000 tokens outstanding: each token carries 50.00 USD of treasury.
	market := stubMarket{quotes: map[int64]domain.Fixed{
		btcMarketID: domain.FixedFromInt64(5_000_000, 2),
	}}
	site := stubSite{
		price:    domain.FixedFromInt64(100, 2),
		treasury: domain.FixedFromInt64(10_000_000, 8),
	}

	v := NewMiningValuer(market, site, 0)
	fv, err := v.FundamentalValue(context.Background(), miningAsset(1000))

	require.NoError(t, err)
	assert.Equal(t, domain.USDScale, fv.Scale())
	assert.Equal(t, "51.00", fv.String())
}

func TestFundamentalValue_MarginOfSafetyDiscountsBTC(t *testing.T) {
	market := stubMarket{quotes: map[int64]domain.Fixed{
		btcMarketID: domain.FixedFromInt64(5_000_000, 2),
	}}
	site := stubSite{
		price:    domain.FixedFromInt64(100, 2),
		treasury: domain.FixedFromInt64(10_000_000, 8),
	}

	// 30% haircut: BTC counted at 35000.00, treasury share drops to 35.00.
	v := NewMiningValuer(market, site, 30)
	fv, err := v.FundamentalValue(context.Background(), miningAsset(1000))

	require.NoError(t, err)
	assert.Equal(t, "36.00", fv.String())
}

func TestFundamentalValue_MarginMonotonicity(t *testing.T) {
	market := stubMarket{quotes: map[int64]domain.Fixed{
		btcMarketID: domain.FixedFromInt64(5_000_000, 2),
	}}
	site := stubSite{
		price:    domain.FixedFromInt64(100, 2),
		treasury: domain.FixedFromInt64(10_000_000, 8),
	}

	prev := domain.Fixed{}
	for i, margin := range []int64{0, 10, 30, 50, 100} {
		fv, err := NewMiningValuer(market, site, margin).FundamentalValue(context.Background(), miningAsset(1000))
		require.NoError(t, err)
		if i > 0 {
			assert.Truef(t, fv.Cmp(prev) <= 0, "margin %d should not raise the value", margin)
		}
		prev = fv
	}

	// At full margin only the site price itself survives.
	assert.Equal(t, "1.00", prev.String())
}

func TestFundamentalValue_TruncatesTowardZero(t *testing.T) {
	market := stubMarket{quotes: map[int64]domain.Fixed{
		btcMarketID: domain.FixedFromInt64(5_000_000, 2),
	}}
	site := stubSite{
		price:    domain.FixedFromInt64(100, 2),
		treasury: domain.FixedFromInt64(10_000_000, 8),
	}

	// 0.1 BTC * 50000 USD * 10 / 3000 = 16.666... -> 16.66 truncated, never
	// rounded up, plus the 1.00 site price.
	v := NewMiningValuer(market, site, 0)
	fv, err := v.FundamentalValue(context.Background(), miningAsset(3000))

	require.NoError(t, err)
	assert.Equal(t, "17.66", fv.String())
}

func TestFundamentalValue_InputFailureShortCircuits(t *testing.T) {
	upstream := domain.NewExternalError("miningsite", "site 7", 503, errors.New("maintenance"))
	market := stubMarket{quotes: map[int64]domain.Fixed{
		btcMarketID: domain.FixedFromInt64(5_000_000, 2),
	}}
	site := stubSite{
		price:       domain.FixedFromInt64(100, 2),
		treasuryErr: upstream,
	}

	v := NewMiningValuer(market, site, 0)
	_, err := v.FundamentalValue(context.Background(), miningAsset(1000))

	require.Error(t, err)
	assert.True(t, domain.IsExternal(err))
}

func TestFundamentalValue_RejectsBadAssets(t *testing.T) {
	market := stubMarket{}
	site := stubSite{}
	v := NewMiningValuer(market, site, 0)

	notMining := miningAsset(1000)
	notMining.IsMiningToken = false
	_, err := v.FundamentalValue(context.Background(), notMining)
	assert.Error(t, err)

	noRef := miningAsset(1000)
	noRef.OracleRefs.MiningSiteID = 0
	_, err = v.FundamentalValue(context.Background(), noRef)
	assert.Error(t, err)

	_, err = v.FundamentalValue(context.Background(), miningAsset(0))
	assert.Error(t, err)
}
