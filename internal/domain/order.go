package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Order is a user's standing buy order for a real-estate token, priced off
// the token's fundamental value with the vacancy and liquidity-provider
// discounts applied.
type Order struct {
	ID                string
	UserAddress       common.Address
	OfferAssetAddress common.Address
	BuyerAssetAddress common.Address
	BasePrice         Fixed // fundamental value in buyer-asset units
	Price             Fixed // base price minus total discount
	DisplayedPrice    Fixed // price minus the additional platform fee
	Amount            Fixed
	IsActive          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// OrderFilter selects orders; populated fields are ANDed.
type OrderFilter struct {
	IDs                 []string
	UserAddresses       []common.Address
	OfferAssetAddresses []common.Address
	IsActive            *bool
}
