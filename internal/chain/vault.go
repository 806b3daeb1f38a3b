package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/yamops/yamkeeper/internal/domain"
)

// VaultName returns the vault's display name.
func (c *Client) VaultName(ctx context.Context, vault common.Address) (string, error) {
	vals, err := c.call(ctx, vault, vaultABI, "name")
	if err != nil {
		return "", err
	}
	name, ok := vals[0].(string)
	if !ok {
		return "", fmt.Errorf("chain: vault name %s: expected string, got %T", vault.Hex(), vals[0])
	}
	return name, nil
}

// UnderlyingAsset returns the vault's deposit asset address.
func (c *Client) UnderlyingAsset(ctx context.Context, vault common.Address) (common.Address, error) {
	vals, err := c.call(ctx, vault, vaultABI, "asset")
	if err != nil {
		return common.Address{}, err
	}
	return asAddress(vals, 0)
}

// Paused reports whether deposits and purchases are halted on the vault.
func (c *Client) Paused(ctx context.Context, vault common.Address) (bool, error) {
	vals, err := c.call(ctx, vault, vaultABI, "paused")
	if err != nil {
		return false, err
	}
	paused, ok := vals[0].(bool)
	if !ok {
		return false, fmt.Errorf("chain: vault paused %s: expected bool, got %T", vault.Hex(), vals[0])
	}
	return paused, nil
}

// TVL returns the vault's total value locked in underlying units.
func (c *Client) TVL(ctx context.Context, vault common.Address) (*big.Int, error) {
	vals, err := c.call(ctx, vault, vaultABI, "tvl")
	if err != nil {
		return nil, err
	}
	return asBig(vals, 0)
}

// TotalAssets returns the vault's uninvested underlying balance.
func (c *Client) TotalAssets(ctx context.Context, vault common.Address) (*big.Int, error) {
	vals, err := c.call(ctx, vault, vaultABI, "totalAssets")
	if err != nil {
		return nil, err
	}
	return asBig(vals, 0)
}

// HoldingsAddresses returns the token addresses the vault currently holds.
func (c *Client) HoldingsAddresses(ctx context.Context, vault common.Address) ([]common.Address, error) {
	vals, err := c.call(ctx, vault, vaultABI, "holdingsAddresses")
	if err != nil {
		return nil, err
	}
	addrs, ok := vals[0].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("chain: vault holdings %s: expected address[], got %T", vault.Hex(), vals[0])
	}
	return addrs, nil
}

// AverageBuyingPrice returns the vault's average acquisition price for asset,
// in underlying units per whole token. Zero means the vault never bought it.
func (c *Client) AverageBuyingPrice(ctx context.Context, vault, asset common.Address) (*big.Int, error) {
	vals, err := c.call(ctx, vault, vaultABI, "tokenAverageBuyingPrice", asset)
	if err != nil {
		return nil, err
	}
	return asBig(vals, 0)
}

// BuyOfferMax instructs the vault to buy as much of the offer as its
// uninvested balance allows. The call carries the full offer tuple, not just
// the id: the contract checks the tokens, price, and amount against current
// offer state, so a repricing that lands between evaluation and execution
// reverts instead of filling at terms the engine never saw.
func (c *Client) BuyOfferMax(ctx context.Context, vault common.Address, offer domain.Offer) error {
	return c.transact(ctx, vault, vaultABI, "buyMaxMiningTokenFromOffer",
		new(big.Int).SetUint64(offer.OfferID),
		offer.OfferToken,
		offer.BuyerToken,
		offer.Price.Mantissa(),
		offer.Amount.Mantissa(),
	)
}

// Deposit moves amount of the underlying into the vault, minting shares to
// receiver.
func (c *Client) Deposit(ctx context.Context, vault common.Address, amount *big.Int, receiver common.Address) error {
	return c.transact(ctx, vault, vaultABI, "deposit", amount, receiver)
}
