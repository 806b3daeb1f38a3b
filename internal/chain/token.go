package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Symbol returns the ERC-20 symbol of token.
func (c *Client) Symbol(ctx context.Context, token common.Address) (string, error) {
	vals, err := c.call(ctx, token, erc20ABI, "symbol")
	if err != nil {
		return "", err
	}
	sym, ok := vals[0].(string)
	if !ok {
		return "", fmt.Errorf("chain: symbol %s: expected string, got %T", token.Hex(), vals[0])
	}
	return sym, nil
}

// Decimals returns the ERC-20 decimals of token.
func (c *Client) Decimals(ctx context.Context, token common.Address) (int, error) {
	vals, err := c.call(ctx, token, erc20ABI, "decimals")
	if err != nil {
		return 0, err
	}
	dec, ok := vals[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("chain: decimals %s: expected uint8, got %T", token.Hex(), vals[0])
	}
	return int(dec), nil
}

// TotalSupply returns the ERC-20 total supply of token at its own decimals.
func (c *Client) TotalSupply(ctx context.Context, token common.Address) (*big.Int, error) {
	vals, err := c.call(ctx, token, erc20ABI, "totalSupply")
	if err != nil {
		return nil, err
	}
	return asBig(vals, 0)
}

// BalanceOf returns owner's balance of token.
func (c *Client) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	vals, err := c.call(ctx, token, erc20ABI, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return asBig(vals, 0)
}

// Allowance returns how much of owner's token the spender may move.
func (c *Client) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	vals, err := c.call(ctx, token, erc20ABI, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return asBig(vals, 0)
}

// Approve grants spender an allowance over the operator's token balance.
func (c *Client) Approve(ctx context.Context, token, spender common.Address, amount *big.Int) error {
	return c.transact(ctx, token, erc20ABI, "approve", spender, amount)
}
