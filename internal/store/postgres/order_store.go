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

// OrderStore implements domain.OrderStore using PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates an OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

const orderColumns = `
	id, user_address, offer_asset, buyer_asset,
	base_price::text, base_scale,
	price::text, price_scale,
	displayed_price::text, displayed_scale,
	amount::text, amount_scale,
	is_active, created_at, updated_at`

// GetOrders returns the orders matching filter, newest first.
func (s *OrderStore) GetOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE 1=1`
	args := []any{}
	argIdx := 1

	if len(filter.IDs) > 0 {
		query += fmt.Sprintf(" AND id = ANY($%d)", argIdx)
		args = append(args, filter.IDs)
		argIdx++
	}
	if len(filter.UserAddresses) > 0 {
		query += fmt.Sprintf(" AND user_address = ANY($%d)", argIdx)
		args = append(args, lowerHex(filter.UserAddresses))
		argIdx++
	}
	if len(filter.OfferAssetAddresses) > 0 {
		query += fmt.Sprintf(" AND offer_asset = ANY($%d)", argIdx)
		args = append(args, lowerHex(filter.OfferAssetAddresses))
		argIdx++
	}
	if filter.IsActive != nil {
		query += fmt.Sprintf(" AND is_active = $%d", argIdx)
		args = append(args, *filter.IsActive)
		argIdx++
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate orders: %w", err)
	}
	return orders, nil
}

// CreateOrder inserts a new order row.
func (s *OrderStore) CreateOrder(ctx context.Context, o domain.Order) (domain.Order, error) {
	const query = `
		INSERT INTO orders (
			id, user_address, offer_asset, buyer_asset,
			base_price, base_scale,
			price, price_scale,
			displayed_price, displayed_scale,
			amount, amount_scale,
			is_active, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5::numeric, $6,
			$7::numeric, $8,
			$9::numeric, $10,
			$11::numeric, $12,
			$13, $14, $15
		)`

	_, err := s.pool.Exec(ctx, query,
		o.ID,
		strings.ToLower(o.UserAddress.Hex()),
		strings.ToLower(o.OfferAssetAddress.Hex()),
		strings.ToLower(o.BuyerAssetAddress.Hex()),
		o.BasePrice.Mantissa().String(), o.BasePrice.Scale(),
		o.Price.Mantissa().String(), o.Price.Scale(),
		o.DisplayedPrice.Mantissa().String(), o.DisplayedPrice.Scale(),
		o.Amount.Mantissa().String(), o.Amount.Scale(),
		o.IsActive, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, fmt.Errorf("postgres: create order %s: %w", o.ID, err)
	}
	return o, nil
}

// UpdateOrder rewrites the mutable fields of an existing order.
func (s *OrderStore) UpdateOrder(ctx context.Context, o domain.Order) (domain.Order, error) {
	const query = `
		UPDATE orders SET
			base_price      = $2::numeric,
			base_scale      = $3,
			price           = $4::numeric,
			price_scale     = $5,
			displayed_price = $6::numeric,
			displayed_scale = $7,
			is_active       = $8,
			updated_at      = $9
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		o.ID,
		o.BasePrice.Mantissa().String(), o.BasePrice.Scale(),
		o.Price.Mantissa().String(), o.Price.Scale(),
		o.DisplayedPrice.Mantissa().String(), o.DisplayedPrice.Scale(),
		o.IsActive, o.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, fmt.Errorf("postgres: update order %s: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Order{}, fmt.Errorf("%w: order %s", domain.ErrNotFound, o.ID)
	}
	return o, nil
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var (
		o                                                  domain.Order
		userAddr, offerAsset, buyerAsset                   string
		baseText, priceText, displayedText, amountText     string
		baseScale, priceScale, displayedScale, amountScale int
	)
	err := row.Scan(
		&o.ID, &userAddr, &offerAsset, &buyerAsset,
		&baseText, &baseScale,
		&priceText, &priceScale,
		&displayedText, &displayedScale,
		&amountText, &amountScale,
		&o.IsActive, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}

	o.UserAddress = common.HexToAddress(userAddr)
	o.OfferAssetAddress = common.HexToAddress(offerAsset)
	o.BuyerAssetAddress = common.HexToAddress(buyerAsset)
	if o.BasePrice, err = fixedFromText(baseText, baseScale); err != nil {
		return domain.Order{}, err
	}
	if o.Price, err = fixedFromText(priceText, priceScale); err != nil {
		return domain.Order{}, err
	}
	if o.DisplayedPrice, err = fixedFromText(displayedText, displayedScale); err != nil {
		return domain.Order{}, err
	}
	if o.Amount, err = fixedFromText(amountText, amountScale); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}
