package valuation

import (
	"context"
	"fmt"

	"github.com/yamops/yamkeeper/internal/domain"
)

// Occupancy discount parameters, in basis points. Each vacant unit's share
// of the property knocks 5% off the buy-back value.
const (
	bpsWhole     = 10000
	vacancyBps   = 500
	lpFeePercent = 1
)

// RealEstateValuer prices tokenized real estate from registry data. The
// buy-back value haircuts the quoted price by the property's vacancy; the
// total discount expresses that haircut plus the liquidity fee as a
// percentage usable for order pricing.
type RealEstateValuer struct {
	registry domain.RegistrySource
}

// NewRealEstateValuer creates a real-estate token valuer.
func NewRealEstateValuer(registry domain.RegistrySource) *RealEstateValuer {
	return &RealEstateValuer{registry: registry}
}

// Quote returns the raw registry quote for asset.
func (v *RealEstateValuer) Quote(ctx context.Context, asset domain.Asset) (domain.RegistryQuote, error) {
	if asset.OracleRefs.RegistryID == domain.ZeroAddress {
		return domain.RegistryQuote{}, fmt.Errorf("valuation: %s has no registry reference", asset.Symbol)
	}
	quote, err := v.registry.TokenQuote(ctx, asset.OracleRefs.RegistryID.Hex())
	if err != nil {
		return domain.RegistryQuote{}, fmt.Errorf("valuation: %s quote: %w", asset.Symbol, err)
	}
	return quote, nil
}

// BuyBackValue returns the vacancy-discounted USD value of one token:
//
//	price * (10000 - 500 * vacantUnits / totalUnits) / 10000
//
// at cent precision. Tokens without occupancy data are worth their quoted
// price unchanged.
func (v *RealEstateValuer) BuyBackValue(ctx context.Context, asset domain.Asset) (domain.Fixed, error) {
	quote, err := v.Quote(ctx, asset)
	if err != nil {
		return domain.Fixed{}, err
	}
	return buyBackValue(quote), nil
}

// TotalDiscount returns the percentage gap between the quoted price and the
// buy-back value, plus the liquidity provider fee, at two decimals. The
// result is deliberately unclamped: a fully vacant property legitimately
// discounts past any fixed cap.
func (v *RealEstateValuer) TotalDiscount(ctx context.Context, asset domain.Asset) (domain.Fixed, error) {
	quote, err := v.Quote(ctx, asset)
	if err != nil {
		return domain.Fixed{}, err
	}
	if quote.PriceUSD.IsZero() {
		return domain.Fixed{}, fmt.Errorf("valuation: %s has a zero registry price", asset.Symbol)
	}

	buyBack := buyBackValue(quote)
	gap := quote.PriceUSD.Sub(buyBack).
		Mul(domain.FixedFromInt64(100, 0)).
		Div(quote.PriceUSD, domain.USDScale)

	return gap.Add(domain.FixedFromInt64(lpFeePercent, 0)), nil
}

func buyBackValue(quote domain.RegistryQuote) domain.Fixed {
	if !quote.HasOccupancy || quote.TotalUnits <= 0 {
		return quote.PriceUSD
	}
	vacant := quote.TotalUnits - quote.RentedUnits
	if vacant < 0 {
		vacant = 0
	}
	bps := bpsWhole - vacancyBps*vacant/quote.TotalUnits
	return quote.PriceUSD.
		Mul(domain.FixedFromInt64(bps, 0)).
		Div(domain.FixedFromInt64(bpsWhole, 0), domain.USDScale)
}
