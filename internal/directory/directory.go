// Package directory owns the asset catalog: which tokens exist, how they
// are classified, and which oracle references price them. Every other
// component resolves token addresses through this service.
package directory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/yamops/yamkeeper/internal/domain"
)

// refreshConcurrency bounds parallel chain reads during a full refresh.
const refreshConcurrency = 8

// Service is the asset directory.
type Service struct {
	store  domain.AssetStore
	tokens domain.TokenReader
	logger *slog.Logger
}

// New creates the directory over the given asset store and token reader.
func New(store domain.AssetStore, tokens domain.TokenReader, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		tokens: tokens,
		logger: logger.With("component", "directory"),
	}
}

// Lookup returns the assets matching filter. A constrained filter with no
// matches yields ErrNotFound; an unconstrained lookup of an empty catalog
// yields ErrEmptyDirectory. The two cases are distinct on purpose: the first
// is a caller asking for something that does not exist, the second means the
// directory was never seeded.
func (s *Service) Lookup(ctx context.Context, filter domain.AssetFilter) ([]domain.Asset, error) {
	assets, err := s.store.GetAssets(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("directory: lookup: %w", err)
	}
	return assets, nil
}

// ByAddress returns the single asset registered at addr.
func (s *Service) ByAddress(ctx context.Context, addr common.Address) (domain.Asset, error) {
	assets, err := s.Lookup(ctx, domain.AssetFilter{Addresses: []common.Address{addr}})
	if err != nil {
		return domain.Asset{}, err
	}
	return assets[0], nil
}

// StableCoins returns every asset classified as a stablecoin.
func (s *Service) StableCoins(ctx context.Context) ([]domain.Asset, error) {
	return s.Lookup(ctx, domain.AssetFilter{IsStableCoin: domain.BoolPtr(true)})
}

// MiningTokens returns every asset classified as a mining-site token.
func (s *Service) MiningTokens(ctx context.Context) ([]domain.Asset, error) {
	return s.Lookup(ctx, domain.AssetFilter{IsMiningToken: domain.BoolPtr(true)})
}

// Refresh re-reads the asset's on-chain metadata (symbol, decimals, total
// supply) and persists it. Classification flags and oracle references are
// operator data and survive untouched.
func (s *Service) Refresh(ctx context.Context, addr common.Address) (domain.Asset, error) {
	asset, err := s.ByAddress(ctx, addr)
	if err != nil {
		return domain.Asset{}, err
	}

	symbol, err := s.tokens.Symbol(ctx, addr)
	if err != nil {
		return domain.Asset{}, fmt.Errorf("directory: refresh %s: %w", addr.Hex(), err)
	}
	decimals, err := s.tokens.Decimals(ctx, addr)
	if err != nil {
		return domain.Asset{}, fmt.Errorf("directory: refresh %s: %w", addr.Hex(), err)
	}
	supply, err := s.tokens.TotalSupply(ctx, addr)
	if err != nil {
		return domain.Asset{}, fmt.Errorf("directory: refresh %s: %w", addr.Hex(), err)
	}

	asset.Symbol = symbol
	asset.Decimals = decimals
	asset.TotalSupply = supply

	updated, err := s.store.UpdateAsset(ctx, asset)
	if err != nil {
		return domain.Asset{}, fmt.Errorf("directory: persist %s: %w", addr.Hex(), err)
	}

	s.logger.Debug("asset refreshed", "address", addr.Hex(), "symbol", symbol, "decimals", decimals)
	return updated, nil
}

// RefreshAll refreshes every cataloged asset concurrently. One failing asset
// fails the whole pass so a partial catalog is never mistaken for a fresh
// one.
func (s *Service) RefreshAll(ctx context.Context) error {
	assets, err := s.Lookup(ctx, domain.AssetFilter{})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(refreshConcurrency)
	for _, asset := range assets {
		g.Go(func() error {
			_, err := s.Refresh(gctx, asset.Address)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	s.logger.Info("directory refreshed", "assets", len(assets))
	return nil
}
