package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// MarketplaceReader reads offer state from the marketplace contract. Every
// call decodes the untyped ABI payload into concrete records at the RPC
// boundary; nothing above this interface sees raw tuples.
type MarketplaceReader interface {
	OfferCount(ctx context.Context) (uint64, error)
	// InitialOffer reads the immutable record written at offer creation.
	InitialOffer(ctx context.Context, offerID uint64) (RawOffer, error)
	// CurrentOffer reads the mutable record with the live price and amount.
	CurrentOffer(ctx context.Context, offerID uint64) (RawOffer, error)
}

// OfferEventFilter narrows an OfferCreated subscription to the given token
// sets and buyer. Nil/empty fields mean "any".
type OfferEventFilter struct {
	OfferTokens []common.Address
	BuyerTokens []common.Address
	Buyer       *common.Address
}

// MarketplaceWatcher delivers decoded marketplace events. Callbacks receive
// one batch of logs per invocation and run sequentially within a
// subscription; separate subscriptions have no mutual ordering. The returned
// stop function cancels the subscription.
type MarketplaceWatcher interface {
	WatchOfferCreated(ctx context.Context, filter OfferEventFilter, onLogs func(context.Context, []OfferCreatedLog)) (func(), error)
	WatchOfferUpdated(ctx context.Context, onLogs func(context.Context, []OfferUpdatedLog)) (func(), error)
}

// TokenReader reads ERC-20 metadata and balances.
type TokenReader interface {
	Symbol(ctx context.Context, token common.Address) (string, error)
	Decimals(ctx context.Context, token common.Address) (int, error)
	TotalSupply(ctx context.Context, token common.Address) (*big.Int, error)
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
}

// VaultReader reads strategy vault contract state.
type VaultReader interface {
	VaultName(ctx context.Context, vault common.Address) (string, error)
	UnderlyingAsset(ctx context.Context, vault common.Address) (common.Address, error)
	Paused(ctx context.Context, vault common.Address) (bool, error)
	TVL(ctx context.Context, vault common.Address) (*big.Int, error)
	TotalAssets(ctx context.Context, vault common.Address) (*big.Int, error)
	HoldingsAddresses(ctx context.Context, vault common.Address) ([]common.Address, error)
	AverageBuyingPrice(ctx context.Context, vault, asset common.Address) (*big.Int, error)
}

// VaultTrader drives state-changing vault calls. Each method simulates the
// call first, then sends and waits for the receipt; a receipt with a failed
// status surfaces as ErrTxFailed.
type VaultTrader interface {
	BuyOfferMax(ctx context.Context, vault common.Address, offer Offer) error
	Approve(ctx context.Context, token, spender common.Address, amount *big.Int) error
	Deposit(ctx context.Context, vault common.Address, amount *big.Int, receiver common.Address) error
}

// VaultWatcher notifies on vault lifecycle events (pause state and share
// movements) so the stored strategy snapshot can be refreshed.
type VaultWatcher interface {
	WatchVaultActivity(ctx context.Context, vault common.Address, onEvent func(context.Context)) (func(), error)
}
