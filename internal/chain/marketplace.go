package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/yamops/yamkeeper/internal/domain"
)

// OfferCount returns the total number of offers ever created on the
// marketplace. Offer ids run from 0 to count-1.
func (c *Client) OfferCount(ctx context.Context) (uint64, error) {
	vals, err := c.call(ctx, c.marketplace, marketplaceABI, "getOfferCount")
	if err != nil {
		return 0, err
	}
	count, err := asBig(vals, 0)
	if err != nil {
		return 0, fmt.Errorf("chain: getOfferCount: %w", err)
	}
	return count.Uint64(), nil
}

// InitialOffer reads the record written when the offer was created.
func (c *Client) InitialOffer(ctx context.Context, offerID uint64) (domain.RawOffer, error) {
	return c.readOffer(ctx, "getInitialOffer", offerID)
}

// CurrentOffer reads the live record, reflecting later price and amount
// changes. Offers pruned by the contract come back as ErrOfferNotFound.
func (c *Client) CurrentOffer(ctx context.Context, offerID uint64) (domain.RawOffer, error) {
	return c.readOffer(ctx, "showOffer", offerID)
}

func (c *Client) readOffer(ctx context.Context, method string, offerID uint64) (domain.RawOffer, error) {
	vals, err := c.call(ctx, c.marketplace, marketplaceABI, method, new(big.Int).SetUint64(offerID))
	if err != nil {
		// A revert on the getter means the offer was pruned or never existed;
		// anything else is a transport problem and keeps its external wrapper.
		if strings.Contains(err.Error(), "execution reverted") {
			return domain.RawOffer{}, fmt.Errorf("%w: offer %d", domain.ErrOfferNotFound, offerID)
		}
		return domain.RawOffer{}, err
	}
	if len(vals) != 6 {
		return domain.RawOffer{}, fmt.Errorf("chain: %s: expected 6 outputs, got %d", method, len(vals))
	}

	raw := domain.RawOffer{}
	if raw.OfferToken, err = asAddress(vals, 0); err == nil {
		if raw.BuyerToken, err = asAddress(vals, 1); err == nil {
			if raw.Seller, err = asAddress(vals, 2); err == nil {
				if raw.Buyer, err = asAddress(vals, 3); err == nil {
					if raw.Price, err = asBig(vals, 4); err == nil {
						raw.Amount, err = asBig(vals, 5)
					}
				}
			}
		}
	}
	if err != nil {
		return domain.RawOffer{}, fmt.Errorf("chain: %s offer %d: %w", method, offerID, err)
	}
	return raw, nil
}

// asAddress extracts output i as an address.
func asAddress(vals []any, i int) (common.Address, error) {
	addr, ok := vals[i].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("output %d: expected address, got %T", i, vals[i])
	}
	return addr, nil
}

// asBig extracts output i as a big integer.
func asBig(vals []any, i int) (*big.Int, error) {
	n, ok := vals[i].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("output %d: expected uint256, got %T", i, vals[i])
	}
	return n, nil
}
