package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yamops/yamkeeper/internal/domain"
)

// AssetStore implements domain.AssetStore using PostgreSQL.
type AssetStore struct {
	pool *pgxpool.Pool
}

// NewAssetStore creates an AssetStore backed by the given connection pool.
func NewAssetStore(pool *pgxpool.Pool) *AssetStore {
	return &AssetStore{pool: pool}
}

const assetColumns = `
	address, symbol, decimals, total_supply::text,
	is_erc20, is_stablecoin, is_mining_token,
	cryptomarket_id, registry_id, mining_site_id, logo_url`

// GetAssets returns the assets matching filter. Per the store contract, a
// constrained filter with no rows is ErrNotFound and an unconstrained query
// of an empty table is ErrEmptyDirectory.
func (s *AssetStore) GetAssets(ctx context.Context, filter domain.AssetFilter) ([]domain.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE 1=1`
	args := []any{}
	argIdx := 1

	if len(filter.Addresses) > 0 {
		query += fmt.Sprintf(" AND address = ANY($%d)", argIdx)
		args = append(args, lowerHex(filter.Addresses))
		argIdx++
	}
	if len(filter.Symbols) > 0 {
		query += fmt.Sprintf(" AND symbol = ANY($%d)", argIdx)
		args = append(args, filter.Symbols)
		argIdx++
	}
	if filter.IsERC20 != nil {
		query += fmt.Sprintf(" AND is_erc20 = $%d", argIdx)
		args = append(args, *filter.IsERC20)
		argIdx++
	}
	if filter.IsStableCoin != nil {
		query += fmt.Sprintf(" AND is_stablecoin = $%d", argIdx)
		args = append(args, *filter.IsStableCoin)
		argIdx++
	}
	if filter.IsMiningToken != nil {
		query += fmt.Sprintf(" AND is_mining_token = $%d", argIdx)
		args = append(args, *filter.IsMiningToken)
		argIdx++
	}
	query += " ORDER BY symbol"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query assets: %w", err)
	}
	defer rows.Close()

	assets, err := scanAssets(rows)
	if err != nil {
		return nil, err
	}
	if len(assets) == 0 {
		if filter.IsConstrained() {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrEmptyDirectory
	}
	return assets, nil
}

// UpdateAsset upserts the asset keyed by address and returns the stored row.
func (s *AssetStore) UpdateAsset(ctx context.Context, asset domain.Asset) (domain.Asset, error) {
	const query = `
		INSERT INTO assets (
			address, symbol, decimals, total_supply,
			is_erc20, is_stablecoin, is_mining_token,
			cryptomarket_id, registry_id, mining_site_id, logo_url, updated_at
		) VALUES (
			$1, $2, $3, $4::numeric,
			$5, $6, $7,
			$8, $9, $10, $11, NOW()
		)
		ON CONFLICT (address) DO UPDATE SET
			symbol          = EXCLUDED.symbol,
			decimals        = EXCLUDED.decimals,
			total_supply    = EXCLUDED.total_supply,
			is_erc20        = EXCLUDED.is_erc20,
			is_stablecoin   = EXCLUDED.is_stablecoin,
			is_mining_token = EXCLUDED.is_mining_token,
			cryptomarket_id = EXCLUDED.cryptomarket_id,
			registry_id     = EXCLUDED.registry_id,
			mining_site_id  = EXCLUDED.mining_site_id,
			logo_url        = EXCLUDED.logo_url,
			updated_at      = NOW()
		RETURNING ` + assetColumns

	row := s.pool.QueryRow(ctx, query,
		strings.ToLower(asset.Address.Hex()),
		asset.Symbol, asset.Decimals, asset.Supply().Mantissa().String(),
		asset.IsERC20, asset.IsStableCoin, asset.IsMiningToken,
		asset.OracleRefs.CryptoMarketID,
		strings.ToLower(asset.OracleRefs.RegistryID.Hex()),
		asset.OracleRefs.MiningSiteID,
		asset.LogoURL,
	)

	stored, err := scanAsset(row)
	if err != nil {
		return domain.Asset{}, fmt.Errorf("postgres: upsert asset %s: %w", asset.Address.Hex(), err)
	}
	return stored, nil
}

func scanAsset(row pgx.Row) (domain.Asset, error) {
	var (
		a                   domain.Asset
		address, registryID string
		supplyText          string
	)
	err := row.Scan(
		&address, &a.Symbol, &a.Decimals, &supplyText,
		&a.IsERC20, &a.IsStableCoin, &a.IsMiningToken,
		&a.OracleRefs.CryptoMarketID, &registryID, &a.OracleRefs.MiningSiteID,
		&a.LogoURL,
	)
	if err != nil {
		return domain.Asset{}, err
	}

	a.Address = common.HexToAddress(address)
	a.OracleRefs.RegistryID = common.HexToAddress(registryID)
	a.TotalSupply, err = parseBig(supplyText)
	if err != nil {
		return domain.Asset{}, err
	}
	return a, nil
}

func scanAssets(rows pgx.Rows) ([]domain.Asset, error) {
	var assets []domain.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan asset: %w", err)
		}
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate assets: %w", err)
	}
	return assets, nil
}

func lowerHex(addrs []common.Address) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = strings.ToLower(a.Hex())
	}
	return out
}
