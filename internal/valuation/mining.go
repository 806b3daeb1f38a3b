// Package valuation computes fundamental values for the tokens the engine
// trades. All arithmetic is fixed-point; every division truncates toward
// zero so computed values never overstate what a token is worth.
package valuation

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/yamops/yamkeeper/internal/domain"
)

// btcMarketID is the market data provider's id for bitcoin.
const btcMarketID = 1

// scaleFactor compensates for the unit mismatch between the operator's
// treasury reporting and the token supply denomination. It is a property of
// the upstream data, not a tunable.
var scaleFactor = domain.FixedFromInt64(10, 0)

// MiningValuer prices mining-site tokens from operational data: the site
// token's quoted price plus the per-token share of the site treasury,
// converted to USD at a margin-discounted BTC price.
type MiningValuer struct {
	market domain.MarketDataSource
	site   domain.MiningSiteSource

	// marginOfSafety is the integer percentage haircut on the BTC price.
	marginOfSafety int64
}

// NewMiningValuer creates a mining token valuer. marginOfSafety must be in
// [0, 100]; config validation enforces the range before this is reached.
func NewMiningValuer(market domain.MarketDataSource, site domain.MiningSiteSource, marginOfSafety int64) *MiningValuer {
	return &MiningValuer{
		market:         market,
		site:           site,
		marginOfSafety: marginOfSafety,
	}
}

// FundamentalValue returns the conservative USD value of one token of asset:
//
//	sitePrice + treasuryBTC * discountedBTCPrice * scaleFactor / totalSupply
//
// at cent precision. The first failing input aborts the computation; a value
// assembled from partial data would be worse than no value at all.
func (v *MiningValuer) FundamentalValue(ctx context.Context, asset domain.Asset) (domain.Fixed, error) {
	if !asset.IsMiningToken {
		return domain.Fixed{}, fmt.Errorf("valuation: %s is not a mining token", asset.Symbol)
	}
	if asset.OracleRefs.MiningSiteID == 0 {
		return domain.Fixed{}, fmt.Errorf("valuation: %s has no mining site reference", asset.Symbol)
	}
	supply := asset.Supply()
	if supply.IsZero() {
		return domain.Fixed{}, fmt.Errorf("valuation: %s has zero total supply", asset.Symbol)
	}

	var sitePrice, treasury, btcPrice domain.Fixed

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		sitePrice, err = v.site.SitePrice(gctx, asset.OracleRefs.MiningSiteID)
		return err
	})
	g.Go(func() (err error) {
		treasury, err = v.site.SiteTreasury(gctx, asset.OracleRefs.MiningSiteID)
		return err
	})
	g.Go(func() (err error) {
		btcPrice, err = v.market.QuoteUSD(gctx, btcMarketID)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.Fixed{}, fmt.Errorf("valuation: %s inputs: %w", asset.Symbol, err)
	}

	discounted := discountPercent(btcPrice, v.marginOfSafety)

	treasuryUSD := treasury.Mul(discounted).Mul(scaleFactor)
	perToken := treasuryUSD.Div(supply, domain.USDScale)

	return sitePrice.Add(perToken), nil
}

// discountPercent returns value * (100 - pct) / 100, truncated at the
// value's own scale.
func discountPercent(value domain.Fixed, pct int64) domain.Fixed {
	if pct <= 0 {
		return value
	}
	return value.
		Mul(domain.FixedFromInt64(100-pct, 0)).
		Div(domain.FixedFromInt64(100, 0), value.Scale())
}
