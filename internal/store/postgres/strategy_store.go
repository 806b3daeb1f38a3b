package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yamops/yamkeeper/internal/domain"
)

// StrategyStore implements domain.StrategyStore using PostgreSQL. Strategy
// rows reference the assets table for the share and underlying tokens and
// the holdings table for positions; reads hydrate the full snapshot.
type StrategyStore struct {
	pool *pgxpool.Pool
}

// NewStrategyStore creates a StrategyStore backed by the given pool.
func NewStrategyStore(pool *pgxpool.Pool) *StrategyStore {
	return &StrategyStore{pool: pool}
}

// GetStrategies returns the strategies matching filter with their share and
// underlying assets and holdings hydrated. ErrNotFound when a constrained
// filter matches nothing.
func (s *StrategyStore) GetStrategies(ctx context.Context, filter domain.StrategyFilter) ([]domain.Strategy, error) {
	query := `SELECT share_address, name, underlying_address, is_paused, tvl::text FROM strategies WHERE 1=1`
	args := []any{}
	if len(filter.Addresses) > 0 {
		query += " AND share_address = ANY($1)"
		args = append(args, lowerHex(filter.Addresses))
	}
	query += " ORDER BY name"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query strategies: %w", err)
	}
	defer rows.Close()

	type rawStrategy struct {
		share, underlying string
		name              string
		isPaused          bool
		tvlText           string
	}
	var raws []rawStrategy
	for rows.Next() {
		var r rawStrategy
		if err := rows.Scan(&r.share, &r.name, &r.underlying, &r.isPaused, &r.tvlText); err != nil {
			return nil, fmt.Errorf("postgres: scan strategy: %w", err)
		}
		raws = append(raws, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate strategies: %w", err)
	}
	if len(raws) == 0 && len(filter.Addresses) > 0 {
		return nil, domain.ErrNotFound
	}

	assetStore := NewAssetStore(s.pool)
	holdingStore := NewHoldingStore(s.pool)

	strategies := make([]domain.Strategy, 0, len(raws))
	for _, r := range raws {
		shareAddr := common.HexToAddress(r.share)

		share, err := s.assetByAddress(ctx, assetStore, shareAddr)
		if err != nil {
			return nil, err
		}
		underlying, err := s.assetByAddress(ctx, assetStore, common.HexToAddress(r.underlying))
		if err != nil {
			return nil, err
		}

		tvlRaw, err := parseBig(r.tvlText)
		if err != nil {
			return nil, err
		}

		holdings, err := holdingStore.GetHoldings(ctx, domain.HoldingFilter{
			StrategyAddresses: []common.Address{shareAddr},
		})
		if err != nil {
			return nil, err
		}

		strategies = append(strategies, domain.Strategy{
			Name:            r.name,
			Share:           share,
			UnderlyingAsset: underlying,
			IsPaused:        r.isPaused,
			TVL:             domain.NewFixed(tvlRaw, underlying.Decimals),
			Holdings:        holdings,
		})
	}
	return strategies, nil
}

// UpdateStrategy upserts the strategy row keyed by the share token address.
// Holdings travel through the holding store, not here.
func (s *StrategyStore) UpdateStrategy(ctx context.Context, strategy domain.Strategy) (domain.Strategy, error) {
	const query = `
		INSERT INTO strategies (share_address, name, underlying_address, is_paused, tvl, updated_at)
		VALUES ($1, $2, $3, $4, $5::numeric, NOW())
		ON CONFLICT (share_address) DO UPDATE SET
			name               = EXCLUDED.name,
			underlying_address = EXCLUDED.underlying_address,
			is_paused          = EXCLUDED.is_paused,
			tvl                = EXCLUDED.tvl,
			updated_at         = NOW()`

	_, err := s.pool.Exec(ctx, query,
		strings.ToLower(strategy.Share.Address.Hex()),
		strategy.Name,
		strings.ToLower(strategy.UnderlyingAsset.Address.Hex()),
		strategy.IsPaused,
		strategy.TVL.Mantissa().String(),
	)
	if err != nil {
		return domain.Strategy{}, fmt.Errorf("postgres: upsert strategy %s: %w", strategy.Name, err)
	}
	return strategy, nil
}

func (s *StrategyStore) assetByAddress(ctx context.Context, store *AssetStore, addr common.Address) (domain.Asset, error) {
	assets, err := store.GetAssets(ctx, domain.AssetFilter{Addresses: []common.Address{addr}})
	if err != nil {
		return domain.Asset{}, fmt.Errorf("postgres: strategy asset %s: %w", addr.Hex(), err)
	}
	return assets[0], nil
}
