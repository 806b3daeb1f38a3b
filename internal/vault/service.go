// Package vault mirrors the on-chain strategy vault into the local stores
// and drives deposits into it. The stored snapshot is what the HTTP API and
// the valuation reports read; it is refreshed on demand and whenever the
// vault emits activity.
package vault

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/yamops/yamkeeper/internal/directory"
	"github.com/yamops/yamkeeper/internal/domain"
)

// holdingConcurrency bounds parallel chain reads while syncing holdings.
const holdingConcurrency = 8

// Service keeps the stored strategy snapshot consistent with the vault
// contract.
type Service struct {
	reader     domain.VaultReader
	trader     domain.VaultTrader // nil in read-only mode
	tokens     domain.TokenReader
	watcher    domain.VaultWatcher
	dir        *directory.Service
	strategies domain.StrategyStore
	holdings   domain.HoldingStore
	vault      common.Address
	logger     *slog.Logger
}

// New creates the vault service for the given vault address.
func New(
	reader domain.VaultReader,
	trader domain.VaultTrader,
	tokens domain.TokenReader,
	watcher domain.VaultWatcher,
	dir *directory.Service,
	strategies domain.StrategyStore,
	holdings domain.HoldingStore,
	vault common.Address,
	logger *slog.Logger,
) *Service {
	return &Service{
		reader:     reader,
		trader:     trader,
		tokens:     tokens,
		watcher:    watcher,
		dir:        dir,
		strategies: strategies,
		holdings:   holdings,
		vault:      vault,
		logger:     logger.With("component", "vault"),
	}
}

// Sync re-reads the whole strategy from chain and persists the snapshot:
// name, pause state, TVL, and the per-asset holdings with their cost bases
// and allocations.
func (s *Service) Sync(ctx context.Context) error {
	strategy, err := s.readStrategy(ctx)
	if err != nil {
		return err
	}

	if _, err := s.strategies.UpdateStrategy(ctx, strategy); err != nil {
		return fmt.Errorf("vault: persist strategy: %w", err)
	}
	if err := s.holdings.DeleteHoldings(ctx, s.vault); err != nil {
		return fmt.Errorf("vault: clear holdings: %w", err)
	}
	for _, h := range strategy.Holdings {
		if err := s.holdings.UpsertHolding(ctx, s.vault, h); err != nil {
			return fmt.Errorf("vault: persist holding %s: %w", h.Symbol, err)
		}
	}

	s.logger.Info("strategy synced",
		"name", strategy.Name,
		"paused", strategy.IsPaused,
		"tvl", strategy.TVL.String(),
		"holdings", len(strategy.Holdings),
	)
	return nil
}

// Watch resubmits Sync whenever the vault emits pause or share-movement
// events. The returned stop function cancels the subscription.
func (s *Service) Watch(ctx context.Context) (func(), error) {
	if s.watcher == nil {
		return func() {}, nil
	}
	return s.watcher.WatchVaultActivity(ctx, s.vault, func(cbCtx context.Context) {
		if err := s.Sync(cbCtx); err != nil {
			s.logger.Warn("vault activity sync failed", "error", err)
		}
	})
}

// Strategy returns the stored snapshot.
func (s *Service) Strategy(ctx context.Context) (domain.Strategy, error) {
	stored, err := s.strategies.GetStrategies(ctx, domain.StrategyFilter{
		Addresses: []common.Address{s.vault},
	})
	if err != nil {
		return domain.Strategy{}, fmt.Errorf("vault: load strategy: %w", err)
	}
	return stored[0], nil
}

// Deposit approves and moves amount of the underlying into the vault for
// receiver.
func (s *Service) Deposit(ctx context.Context, amount domain.Fixed, receiver common.Address) error {
	if s.trader == nil {
		return fmt.Errorf("vault: deposit: no signing key configured")
	}

	underlying, err := s.reader.UnderlyingAsset(ctx, s.vault)
	if err != nil {
		return fmt.Errorf("vault: deposit: %w", err)
	}

	raw := amount.Mantissa()
	if err := s.trader.Approve(ctx, underlying, s.vault, raw); err != nil {
		return fmt.Errorf("vault: approve deposit: %w", err)
	}
	if err := s.trader.Deposit(ctx, s.vault, raw, receiver); err != nil {
		return fmt.Errorf("vault: deposit: %w", err)
	}

	s.logger.Info("deposit confirmed", "amount", amount.String(), "receiver", receiver.Hex())
	return s.Sync(ctx)
}

// readStrategy assembles the full snapshot from chain state. The scalar
// reads fan out; the holdings are read afterwards because they need the
// TVL for allocation weights.
func (s *Service) readStrategy(ctx context.Context) (domain.Strategy, error) {
	var (
		name       string
		underlying common.Address
		paused     bool
		tvlRaw     = new(big.Int)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		name, err = s.reader.VaultName(gctx, s.vault)
		return err
	})
	g.Go(func() (err error) {
		underlying, err = s.reader.UnderlyingAsset(gctx, s.vault)
		return err
	})
	g.Go(func() (err error) {
		paused, err = s.reader.Paused(gctx, s.vault)
		return err
	})
	g.Go(func() (err error) {
		raw, err := s.reader.TVL(gctx, s.vault)
		if err == nil {
			tvlRaw.Set(raw)
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.Strategy{}, fmt.Errorf("vault: read strategy: %w", err)
	}

	underlyingAsset, err := s.dir.ByAddress(ctx, underlying)
	if err != nil {
		return domain.Strategy{}, fmt.Errorf("vault: underlying %s: %w", underlying.Hex(), err)
	}

	shareAsset, err := s.dir.ByAddress(ctx, s.vault)
	if err != nil {
		return domain.Strategy{}, fmt.Errorf("vault: share token %s: %w", s.vault.Hex(), err)
	}

	tvl := domain.NewFixed(tvlRaw, underlyingAsset.Decimals)

	holdings, err := s.readHoldings(ctx, underlyingAsset, tvl)
	if err != nil {
		return domain.Strategy{}, err
	}

	return domain.Strategy{
		Name:            name,
		Share:           shareAsset,
		UnderlyingAsset: underlyingAsset,
		IsPaused:        paused,
		TVL:             tvl,
		Holdings:        holdings,
	}, nil
}

// readHoldings reads every held token's balance and cost basis. Tokens the
// vault never actually bought (zero cost basis) are dropped: they are dust
// or airdrops, not positions.
func (s *Service) readHoldings(ctx context.Context, underlying domain.Asset, tvl domain.Fixed) ([]domain.Holding, error) {
	addrs, err := s.reader.HoldingsAddresses(ctx, s.vault)
	if err != nil {
		return nil, fmt.Errorf("vault: holdings addresses: %w", err)
	}

	results := make([]*domain.Holding, len(addrs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(holdingConcurrency)
	for i, addr := range addrs {
		g.Go(func() error {
			h, err := s.readHolding(gctx, addr, underlying, tvl)
			if err != nil {
				return err
			}
			results[i] = h
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	holdings := make([]domain.Holding, 0, len(addrs))
	for _, h := range results {
		if h != nil {
			holdings = append(holdings, *h)
		}
	}
	return holdings, nil
}

// readHolding returns nil (no error) for positions with a zero cost basis.
func (s *Service) readHolding(ctx context.Context, addr common.Address, underlying domain.Asset, tvl domain.Fixed) (*domain.Holding, error) {
	costRaw, err := s.reader.AverageBuyingPrice(ctx, s.vault, addr)
	if err != nil {
		return nil, fmt.Errorf("vault: cost basis %s: %w", addr.Hex(), err)
	}
	if costRaw.Sign() <= 0 {
		return nil, nil
	}

	asset, err := s.dir.ByAddress(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("vault: holding %s: %w", addr.Hex(), err)
	}

	balRaw, err := s.tokens.BalanceOf(ctx, addr, s.vault)
	if err != nil {
		return nil, fmt.Errorf("vault: balance %s: %w", addr.Hex(), err)
	}

	cost := domain.NewFixed(costRaw, underlying.Decimals)
	amount := domain.NewFixed(balRaw, asset.Decimals)

	// allocation = amount * costBasis / tvl, as a fraction of total value.
	allocation := domain.ZeroFixed(underlying.Decimals)
	if !tvl.IsZero() {
		allocation = amount.Mul(cost).Div(tvl, underlying.Decimals)
	}

	return &domain.Holding{
		AssetAddress: addr,
		Symbol:       asset.Symbol,
		CostBasis:    cost,
		Amount:       amount,
		Allocation:   allocation,
	}, nil
}
