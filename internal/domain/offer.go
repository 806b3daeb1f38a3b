package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ZeroAddress is the sentinel for "no buyer yet" on marketplace offers.
var ZeroAddress = common.Address{}

// Offer is an on-chain sell offer on the marketplace contract: a seller
// offers OfferToken priced in BuyerToken. Buyer equal to the zero address
// means the offer is still open; once filled it stays in the book for audit
// with the buyer set.
type Offer struct {
	OfferID          uint64
	Seller           common.Address
	Buyer            common.Address
	OfferToken       common.Address
	OfferTokenSymbol string
	BuyerToken       common.Address
	BuyerTokenSymbol string
	Price            Fixed // denominated in BuyerToken, at its decimals
	Amount           Fixed // denominated in OfferToken, at its decimals

	// PnL is the last computed profit estimate against fundamental value,
	// set opportunistically during discovery and re-evaluation.
	PnL    Fixed
	HasPnL bool
}

// Open reports whether the offer is still unfilled.
func (o Offer) Open() bool { return o.Buyer == ZeroAddress }

// RawOffer is the tuple layout of the marketplace contract's offer getters,
// decoded at the RPC boundary into concrete fields. Price and Amount stay as
// raw integers here; the offer book attaches token decimals from the asset
// directory when it builds an Offer.
type RawOffer struct {
	OfferToken common.Address
	BuyerToken common.Address
	Seller     common.Address
	Buyer      common.Address
	Price      *big.Int
	Amount     *big.Int
}

// OfferCreatedLog is a decoded OfferCreated event.
type OfferCreatedLog struct {
	OfferID    uint64
	OfferToken common.Address
	BuyerToken common.Address
	Seller     common.Address
	Buyer      common.Address
	Price      *big.Int
	Amount     *big.Int
}

// OfferUpdatedLog is a decoded OfferUpdated event. Only the mutable fields
// travel on the event; identity comes from the stored offer.
type OfferUpdatedLog struct {
	OfferID   uint64
	NewPrice  *big.Int
	NewAmount *big.Int
}
