package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yamops/yamkeeper/internal/domain"
)

// HoldingStore implements domain.HoldingStore using PostgreSQL. Each fixed
// value persists as a NUMERIC mantissa plus an explicit scale so rows
// round-trip without consulting token metadata.
type HoldingStore struct {
	pool *pgxpool.Pool
}

// NewHoldingStore creates a HoldingStore backed by the given pool.
func NewHoldingStore(pool *pgxpool.Pool) *HoldingStore {
	return &HoldingStore{pool: pool}
}

// GetHoldings returns the holdings matching filter, ordered by symbol.
func (s *HoldingStore) GetHoldings(ctx context.Context, filter domain.HoldingFilter) ([]domain.Holding, error) {
	query := `
		SELECT asset_address, symbol,
			cost_basis::text, cost_scale,
			amount::text, amount_scale,
			allocation::text, allocation_scale
		FROM holdings WHERE 1=1`
	args := []any{}
	if len(filter.StrategyAddresses) > 0 {
		query += " AND strategy_address = ANY($1)"
		args = append(args, lowerHex(filter.StrategyAddresses))
	}
	query += " ORDER BY symbol"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query holdings: %w", err)
	}
	defer rows.Close()

	var holdings []domain.Holding
	for rows.Next() {
		var (
			h                                  domain.Holding
			address                            string
			costText, amountText, allocText    string
			costScale, amountScale, allocScale int
		)
		err := rows.Scan(
			&address, &h.Symbol,
			&costText, &costScale,
			&amountText, &amountScale,
			&allocText, &allocScale,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan holding: %w", err)
		}

		h.AssetAddress = common.HexToAddress(address)
		if h.CostBasis, err = fixedFromText(costText, costScale); err != nil {
			return nil, err
		}
		if h.Amount, err = fixedFromText(amountText, amountScale); err != nil {
			return nil, err
		}
		if h.Allocation, err = fixedFromText(allocText, allocScale); err != nil {
			return nil, err
		}
		holdings = append(holdings, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate holdings: %w", err)
	}
	return holdings, nil
}

// UpsertHolding inserts or replaces the position keyed by strategy and
// asset.
func (s *HoldingStore) UpsertHolding(ctx context.Context, strategyAddress common.Address, h domain.Holding) error {
	const query = `
		INSERT INTO holdings (
			strategy_address, asset_address, symbol,
			cost_basis, cost_scale,
			amount, amount_scale,
			allocation, allocation_scale, updated_at
		) VALUES ($1, $2, $3, $4::numeric, $5, $6::numeric, $7, $8::numeric, $9, NOW())
		ON CONFLICT (strategy_address, asset_address) DO UPDATE SET
			symbol           = EXCLUDED.symbol,
			cost_basis       = EXCLUDED.cost_basis,
			cost_scale       = EXCLUDED.cost_scale,
			amount           = EXCLUDED.amount,
			amount_scale     = EXCLUDED.amount_scale,
			allocation       = EXCLUDED.allocation,
			allocation_scale = EXCLUDED.allocation_scale,
			updated_at       = NOW()`

	_, err := s.pool.Exec(ctx, query,
		strings.ToLower(strategyAddress.Hex()),
		strings.ToLower(h.AssetAddress.Hex()),
		h.Symbol,
		h.CostBasis.Mantissa().String(), h.CostBasis.Scale(),
		h.Amount.Mantissa().String(), h.Amount.Scale(),
		h.Allocation.Mantissa().String(), h.Allocation.Scale(),
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert holding %s: %w", h.Symbol, err)
	}
	return nil
}

// DeleteHoldings removes every position of the given strategy.
func (s *HoldingStore) DeleteHoldings(ctx context.Context, strategyAddress common.Address) error {
	_, err := s.pool.Exec(ctx,
		"DELETE FROM holdings WHERE strategy_address = $1",
		strings.ToLower(strategyAddress.Hex()),
	)
	if err != nil {
		return fmt.Errorf("postgres: delete holdings %s: %w", strategyAddress.Hex(), err)
	}
	return nil
}

func fixedFromText(text string, scale int) (domain.Fixed, error) {
	m, err := parseBig(text)
	if err != nil {
		return domain.Fixed{}, err
	}
	return domain.NewFixed(m, scale), nil
}
