package domain

import "github.com/ethereum/go-ethereum/common"

// Holding is a strategy's recorded position in one asset: its cost basis
// per token, the amount held, and the allocation weight relative to the
// strategy's total value locked. Allocations across a strategy's holdings
// sum to at most 1.
type Holding struct {
	AssetAddress common.Address
	Symbol       string
	CostBasis    Fixed // average buying price, at the underlying's decimals
	Amount       Fixed // at the held asset's decimals
	Allocation   Fixed // fraction of TVL, at the underlying's decimals
}

// Strategy is a snapshot of a vault strategy contract: the share token it
// issues, the underlying asset it is denominated in, and its current
// holdings.
type Strategy struct {
	Name            string
	Share           Asset
	UnderlyingAsset Asset
	IsPaused        bool
	TVL             Fixed // at the underlying asset's decimals
	Holdings        []Holding
}

// StrategyFilter selects strategies by share token address.
type StrategyFilter struct {
	Addresses []common.Address
}

// HoldingFilter selects holdings by owning strategy address.
type HoldingFilter struct {
	StrategyAddresses []common.Address
}
