// Package orders manages standing buy orders for real-estate tokens. Order
// prices derive from the registry quote with the vacancy and liquidity
// discounts applied, plus a platform fee on the displayed figure.
package orders

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/yamops/yamkeeper/internal/directory"
	"github.com/yamops/yamkeeper/internal/domain"
	"github.com/yamops/yamkeeper/internal/valuation"
)

// platformFeePercent is charged on top of the total discount, displayed to
// the order's counterparty.
const platformFeePercent = 1

// Service prices and persists orders.
type Service struct {
	store  domain.OrderStore
	dir    *directory.Service
	valuer *valuation.RealEstateValuer
	logger *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// New creates the order service.
func New(store domain.OrderStore, dir *directory.Service, valuer *valuation.RealEstateValuer, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		dir:    dir,
		valuer: valuer,
		logger: logger.With("component", "orders"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreateParams are the caller-supplied fields of a new order.
type CreateParams struct {
	UserAddress common.Address
	OfferAsset  common.Address
	BuyerAsset  common.Address
	Amount      domain.Fixed
}

// Create prices and stores a new active order. A user may hold at most one
// active order per offer asset; a second one comes back as ErrAlreadyExists.
func (s *Service) Create(ctx context.Context, p CreateParams) (domain.Order, error) {
	if p.Amount.Sign() <= 0 {
		return domain.Order{}, fmt.Errorf("orders: amount must be positive")
	}

	existing, err := s.store.GetOrders(ctx, domain.OrderFilter{
		UserAddresses:       []common.Address{p.UserAddress},
		OfferAssetAddresses: []common.Address{p.OfferAsset},
		IsActive:            domain.BoolPtr(true),
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("orders: check existing: %w", err)
	}
	if len(existing) > 0 {
		return domain.Order{}, fmt.Errorf("orders: active order for %s: %w", p.OfferAsset.Hex(), domain.ErrAlreadyExists)
	}

	base, price, displayed, err := s.priceOrder(ctx, p.OfferAsset)
	if err != nil {
		return domain.Order{}, err
	}

	now := s.now()
	order := domain.Order{
		ID:                uuid.NewString(),
		UserAddress:       p.UserAddress,
		OfferAssetAddress: p.OfferAsset,
		BuyerAssetAddress: p.BuyerAsset,
		BasePrice:         base,
		Price:             price,
		DisplayedPrice:    displayed,
		Amount:            p.Amount,
		IsActive:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	created, err := s.store.CreateOrder(ctx, order)
	if err != nil {
		return domain.Order{}, fmt.Errorf("orders: create: %w", err)
	}

	s.logger.Info("order created",
		"order_id", created.ID,
		"user", p.UserAddress.Hex(),
		"base", base.String(),
		"displayed", displayed.String(),
	)
	return created, nil
}

// List returns the orders matching filter.
func (s *Service) List(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	orders, err := s.store.GetOrders(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("orders: list: %w", err)
	}
	return orders, nil
}

// Reprice refreshes the order's prices from the current registry quote.
func (s *Service) Reprice(ctx context.Context, orderID string) (domain.Order, error) {
	order, err := s.byID(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}

	base, price, displayed, err := s.priceOrder(ctx, order.OfferAssetAddress)
	if err != nil {
		return domain.Order{}, err
	}

	order.BasePrice = base
	order.Price = price
	order.DisplayedPrice = displayed
	order.UpdatedAt = s.now()

	updated, err := s.store.UpdateOrder(ctx, order)
	if err != nil {
		return domain.Order{}, fmt.Errorf("orders: reprice %s: %w", orderID, err)
	}
	return updated, nil
}

// Deactivate turns the order off without deleting it.
func (s *Service) Deactivate(ctx context.Context, orderID string) (domain.Order, error) {
	order, err := s.byID(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !order.IsActive {
		return order, nil
	}

	order.IsActive = false
	order.UpdatedAt = s.now()

	updated, err := s.store.UpdateOrder(ctx, order)
	if err != nil {
		return domain.Order{}, fmt.Errorf("orders: deactivate %s: %w", orderID, err)
	}

	s.logger.Info("order deactivated", "order_id", orderID)
	return updated, nil
}

// priceOrder derives the three price tiers for the given asset:
//
//	base      = registry quote
//	price     = base reduced by the total discount (vacancy + liquidity fee)
//	displayed = price reduced by the platform fee
func (s *Service) priceOrder(ctx context.Context, assetAddr common.Address) (base, price, displayed domain.Fixed, err error) {
	asset, err := s.dir.ByAddress(ctx, assetAddr)
	if err != nil {
		return domain.Fixed{}, domain.Fixed{}, domain.Fixed{}, fmt.Errorf("orders: asset %s: %w", assetAddr.Hex(), err)
	}

	quote, err := s.valuer.Quote(ctx, asset)
	if err != nil {
		return domain.Fixed{}, domain.Fixed{}, domain.Fixed{}, err
	}
	discount, err := s.valuer.TotalDiscount(ctx, asset)
	if err != nil {
		return domain.Fixed{}, domain.Fixed{}, domain.Fixed{}, err
	}

	base = quote.PriceUSD
	price = base.Sub(percentOf(base, discount))
	displayed = price.Sub(percentOf(price, domain.FixedFromInt64(platformFeePercent, 0)))
	return base, price, displayed, nil
}

// percentOf returns value * pct / 100 at the value's scale.
func percentOf(value, pct domain.Fixed) domain.Fixed {
	return value.Mul(pct).Div(domain.FixedFromInt64(100, 0), value.Scale())
}

func (s *Service) byID(ctx context.Context, orderID string) (domain.Order, error) {
	orders, err := s.store.GetOrders(ctx, domain.OrderFilter{IDs: []string{orderID}})
	if err != nil {
		return domain.Order{}, fmt.Errorf("orders: load %s: %w", orderID, err)
	}
	if len(orders) == 0 {
		return domain.Order{}, fmt.Errorf("%w: order %s", domain.ErrNotFound, orderID)
	}
	return orders[0], nil
}
