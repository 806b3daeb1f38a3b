package valuation

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yamops/yamkeeper/internal/domain"
)

type stubRegistry struct {
	quote domain.RegistryQuote
	err   error
}

func (s stubRegistry) TokenQuote(context.Context, string) (domain.RegistryQuote, error) {
	return s.quote, s.err
}

func realEstateAsset() domain.Asset {
	return domain.Asset{
		Address:    common.HexToAddress("0x0000000000000000000000000000000000000b01"),
		Symbol:     "PROP-1",
		Decimals:   18,
		IsERC20:    true,
		OracleRefs: domain.OracleRefs{RegistryID: common.HexToAddress("0x0000000000000000000000000000000000000b02")},
	}
}

func TestBuyBackValue_VacancyHaircut(t *testing.T) {
	// 2 vacant units out of 10: 100 bps off, 50.00 becomes 49.50.
	v := NewRealEstateValuer(stubRegistry{quote: domain.RegistryQuote{
		PriceUSD:     domain.FixedFromInt64(5000, 2),
		RentedUnits:  8,
		TotalUnits:   10,
		HasOccupancy: true,
	}})

	buyBack, err := v.BuyBackValue(context.Background(), realEstateAsset())
	require.NoError(t, err)
	assert.Equal(t, "49.50", buyBack.String())
}

func TestBuyBackValue_FullOccupancyKeepsPrice(t *testing.T) {
	v := NewRealEstateValuer(stubRegistry{quote: domain.RegistryQuote{
		PriceUSD:     domain.FixedFromInt64(5000, 2),
		RentedUnits:  10,
		TotalUnits:   10,
		HasOccupancy: true,
	}})

	buyBack, err := v.BuyBackValue(context.Background(), realEstateAsset())
	require.NoError(t, err)
	assert.Equal(t, "50.00", buyBack.String())
}

func TestBuyBackValue_FullVacancyHitsFloor(t *testing.T) {
	// Entirely vacant: 500 bps off the whole value.
	v := NewRealEstateValuer(stubRegistry{quote: domain.RegistryQuote{
		PriceUSD:     domain.FixedFromInt64(5000, 2),
		RentedUnits:  0,
		TotalUnits:   10,
		HasOccupancy: true,
	}})

	buyBack, err := v.BuyBackValue(context.Background(), realEstateAsset())
	require.NoError(t, err)
	assert.Equal(t, "47.50", buyBack.String())
}

func TestBuyBackValue_NoOccupancyData(t *testing.T) {
	v := NewRealEstateValuer(stubRegistry{quote: domain.RegistryQuote{
		PriceUSD: domain.FixedFromInt64(5000, 2),
	}})

	buyBack, err := v.BuyBackValue(context.Background(), realEstateAsset())
	require.NoError(t, err)
	assert.Equal(t, "50.00", buyBack.String())
}

func TestTotalDiscount_IncludesLiquidityFee(t *testing.T) {
	// Vacancy gap of 1.00% plus the 1% liquidity fee.
	v := NewRealEstateValuer(stubRegistry{quote: domain.RegistryQuote{
		PriceUSD:     domain.FixedFromInt64(5000, 2),
		RentedUnits:  8,
		TotalUnits:   10,
		HasOccupancy: true,
	}})

	discount, err := v.TotalDiscount(context.Background(), realEstateAsset())
	require.NoError(t, err)
	assert.Equal(t, "2.00", discount.String())
}

func TestTotalDiscount_NoOccupancyIsJustTheFee(t *testing.T) {
	v := NewRealEstateValuer(stubRegistry{quote: domain.RegistryQuote{
		PriceUSD: domain.FixedFromInt64(5000, 2),
	}})

	discount, err := v.TotalDiscount(context.Background(), realEstateAsset())
	require.NoError(t, err)
	assert.Equal(t, "1.00", discount.String())
}

func TestTotalDiscount_ZeroPriceRejected(t *testing.T) {
	v := NewRealEstateValuer(stubRegistry{quote: domain.RegistryQuote{
		PriceUSD: domain.ZeroFixed(2),
	}})

	_, err := v.TotalDiscount(context.Background(), realEstateAsset())
	assert.Error(t, err)
}

func TestQuote_MissingRegistryReference(t *testing.T) {
	v := NewRealEstateValuer(stubRegistry{})
	asset := realEstateAsset()
	asset.OracleRefs.RegistryID = domain.ZeroAddress

	_, err := v.Quote(context.Background(), asset)
	assert.Error(t, err)
}
