package domain

import "context"

// USDScale is the scale of every USD quote in the system: prices go to the
// cent.
const USDScale = 2

// BTCScale is the scale of BTC amounts (1 satoshi = 1e-8 BTC).
const BTCScale = 8

// MarketDataSource quotes assets in USD at USDScale, keyed by the
// centralized market data provider's numeric id. Transport and payload
// failures come back as *ExternalError, never as a panic.
type MarketDataSource interface {
	QuoteUSD(ctx context.Context, oracleID int64) (Fixed, error)
}

// RegistryQuote is a real-estate registry answer: the token price in USD and
// the optional occupancy figures behind the buy-back discount.
type RegistryQuote struct {
	PriceUSD     Fixed
	RentedUnits  int64
	TotalUnits   int64
	HasOccupancy bool
}

// RegistrySource serves real-estate token prices and occupancy data.
type RegistrySource interface {
	TokenQuote(ctx context.Context, registryID string) (RegistryQuote, error)
}

// MiningSiteSource serves operational data for mining sites: the site
// token's USD price and the site treasury's BTC balance at BTCScale.
type MiningSiteSource interface {
	SitePrice(ctx context.Context, siteID int64) (Fixed, error)
	SiteTreasury(ctx context.Context, siteID int64) (Fixed, error)
}
