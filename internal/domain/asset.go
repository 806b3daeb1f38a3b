package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// OracleRefs holds the external identifiers used to query price data for an
// asset. Each field is optional; an asset only carries the references of the
// sources that cover it.
type OracleRefs struct {
	CryptoMarketID int64          // centralized market data numeric id
	RegistryID     common.Address // real-estate registry token id
	MiningSiteID   int64          // mining-site operational data id
}

// Asset is a token the system knows about: its on-chain identity plus the
// classification flags and oracle references valuation depends on. Assets
// are exclusively owned by the Asset Directory; everything else holds the
// address as a lookup key.
type Asset struct {
	Address       common.Address
	Symbol        string
	Decimals      int
	TotalSupply   *big.Int
	IsERC20       bool
	IsStableCoin  bool
	IsMiningToken bool
	OracleRefs    OracleRefs

	LogoURL string // display only, filled on demand
}

// Supply returns the total supply as a Fixed at the token's own decimals.
func (a Asset) Supply() Fixed {
	return NewFixed(a.TotalSupply, a.Decimals)
}

// AssetFilter selects assets by address set, symbol set, and classification
// predicates. All populated fields are ANDed; the zero filter matches the
// whole directory.
type AssetFilter struct {
	Addresses     []common.Address
	Symbols       []string
	IsERC20       *bool
	IsStableCoin  *bool
	IsMiningToken *bool
}

// IsConstrained reports whether the filter restricts the result set at all.
// A constrained query with zero rows is ErrNotFound; an unconstrained one on
// an empty directory is ErrEmptyDirectory.
func (f AssetFilter) IsConstrained() bool {
	return len(f.Addresses) > 0 || len(f.Symbols) > 0 ||
		f.IsERC20 != nil || f.IsStableCoin != nil || f.IsMiningToken != nil
}

// Matches reports whether the asset satisfies every populated constraint.
func (f AssetFilter) Matches(a Asset) bool {
	if len(f.Addresses) > 0 {
		found := false
		for _, addr := range f.Addresses {
			if addr == a.Address {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(f.Symbols) > 0 {
		found := false
		for _, sym := range f.Symbols {
			if sym == a.Symbol {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.IsERC20 != nil && *f.IsERC20 != a.IsERC20 {
		return false
	}
	if f.IsStableCoin != nil && *f.IsStableCoin != a.IsStableCoin {
		return false
	}
	if f.IsMiningToken != nil && *f.IsMiningToken != a.IsMiningToken {
		return false
	}
	return true
}

// BoolPtr is a convenience for building classification filters.
func BoolPtr(b bool) *bool { return &b }
