package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/yamops/yamkeeper/internal/domain"
)

// resubscribeDelay spaces reconnect attempts after a dropped subscription.
const resubscribeDelay = 5 * time.Second

var errNoWS = errors.New("chain: no websocket endpoint configured")

// WatchOfferCreated subscribes to marketplace OfferCreated events matching
// the filter. Token constraints narrow the subscription via log topics; the
// buyer constraint is checked client-side because it is not indexed.
// Callbacks run sequentially on a single goroutine per subscription.
func (c *Client) WatchOfferCreated(ctx context.Context, filter domain.OfferEventFilter, onLogs func(context.Context, []domain.OfferCreatedLog)) (func(), error) {
	if c.ws == nil {
		return nil, errNoWS
	}

	query := ethereum.FilterQuery{
		Addresses: []common.Address{c.marketplace},
		Topics: [][]common.Hash{
			{marketplaceABI.Events["OfferCreated"].ID},
			addressTopics(filter.OfferTokens),
			addressTopics(filter.BuyerTokens),
		},
	}

	return c.watch(ctx, query, "OfferCreated", func(cbCtx context.Context, logs []types.Log) {
		decoded := make([]domain.OfferCreatedLog, 0, len(logs))
		for _, lg := range logs {
			ev, err := decodeOfferCreated(lg)
			if err != nil {
				c.logger.Warn("dropping undecodable OfferCreated log", "tx", lg.TxHash.Hex(), "error", err)
				continue
			}
			if filter.Buyer != nil && ev.Buyer != *filter.Buyer {
				continue
			}
			decoded = append(decoded, ev)
		}
		if len(decoded) > 0 {
			onLogs(cbCtx, decoded)
		}
	})
}

// WatchOfferUpdated subscribes to marketplace OfferUpdated events.
func (c *Client) WatchOfferUpdated(ctx context.Context, onLogs func(context.Context, []domain.OfferUpdatedLog)) (func(), error) {
	if c.ws == nil {
		return nil, errNoWS
	}

	query := ethereum.FilterQuery{
		Addresses: []common.Address{c.marketplace},
		Topics: [][]common.Hash{
			{marketplaceABI.Events["OfferUpdated"].ID},
		},
	}

	return c.watch(ctx, query, "OfferUpdated", func(cbCtx context.Context, logs []types.Log) {
		decoded := make([]domain.OfferUpdatedLog, 0, len(logs))
		for _, lg := range logs {
			ev, err := decodeOfferUpdated(lg)
			if err != nil {
				c.logger.Warn("dropping undecodable OfferUpdated log", "tx", lg.TxHash.Hex(), "error", err)
				continue
			}
			decoded = append(decoded, ev)
		}
		if len(decoded) > 0 {
			onLogs(cbCtx, decoded)
		}
	})
}

// WatchVaultActivity subscribes to the vault's pause and share-movement
// events. The callback carries no payload; subscribers re-read vault state.
func (c *Client) WatchVaultActivity(ctx context.Context, vault common.Address, onEvent func(context.Context)) (func(), error) {
	if c.ws == nil {
		return nil, errNoWS
	}

	query := ethereum.FilterQuery{
		Addresses: []common.Address{vault},
		Topics: [][]common.Hash{
			{
				vaultABI.Events["Paused"].ID,
				vaultABI.Events["Unpaused"].ID,
				vaultABI.Events["Deposit"].ID,
				vaultABI.Events["Withdraw"].ID,
			},
		},
	}

	return c.watch(ctx, query, "VaultActivity", func(cbCtx context.Context, logs []types.Log) {
		onEvent(cbCtx)
	})
}

// watch runs a log subscription until the returned stop function is called
// or ctx is cancelled, resubscribing with a delay after transport errors.
// Logs arriving close together are drained into one callback batch.
func (c *Client) watch(ctx context.Context, query ethereum.FilterQuery, name string, deliver func(context.Context, []types.Log)) (func(), error) {
	subCtx, cancel := context.WithCancel(ctx)

	ch := make(chan types.Log, 64)
	sub, err := c.ws.SubscribeFilterLogs(subCtx, query, ch)
	if err != nil {
		cancel()
		return nil, domain.NewExternalError(source, "subscribe "+name, 0, err)
	}

	renew := func(cause error) ethereum.Subscription {
		if cause != nil {
			c.logger.Warn("subscription dropped, resubscribing", "name", name, "error", cause)
		}
		return c.resubscribe(subCtx, query, name, ch)
	}
	go pumpLogs(subCtx, sub, ch, renew, deliver)

	return cancel, nil
}

// pumpLogs consumes a subscription until ctx ends or renew gives up. renew
// returns nil when ctx ended mid-retry; the loop returns before the dead
// subscription can replace the live one, so the teardown never sees nil.
func pumpLogs(ctx context.Context, sub ethereum.Subscription, ch chan types.Log, renew func(error) ethereum.Subscription, deliver func(context.Context, []types.Log)) {
	defer func() { sub.Unsubscribe() }()
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-sub.Err():
			next := renew(err)
			if next == nil {
				return
			}
			sub = next
		case lg := <-ch:
			batch := drainLogs(ch, []types.Log{lg})
			deliver(ctx, batch)
		}
	}
}

// resubscribe retries the subscription until it succeeds or ctx ends.
func (c *Client) resubscribe(ctx context.Context, query ethereum.FilterQuery, name string, ch chan types.Log) ethereum.Subscription {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(resubscribeDelay):
		}
		sub, err := c.ws.SubscribeFilterLogs(ctx, query, ch)
		if err == nil {
			c.logger.Info("resubscribed", "name", name)
			return sub
		}
		c.logger.Warn("resubscribe failed", "name", name, "error", err)
	}
}

// drainLogs pulls whatever is already buffered without blocking.
func drainLogs(ch chan types.Log, batch []types.Log) []types.Log {
	for {
		select {
		case lg := <-ch:
			batch = append(batch, lg)
		default:
			return batch
		}
	}
}

func decodeOfferCreated(lg types.Log) (domain.OfferCreatedLog, error) {
	if len(lg.Topics) != 4 {
		return domain.OfferCreatedLog{}, fmt.Errorf("expected 4 topics, got %d", len(lg.Topics))
	}

	vals, err := marketplaceABI.Events["OfferCreated"].Inputs.NonIndexed().Unpack(lg.Data)
	if err != nil {
		return domain.OfferCreatedLog{}, fmt.Errorf("unpack data: %w", err)
	}
	if len(vals) != 4 {
		return domain.OfferCreatedLog{}, fmt.Errorf("expected 4 data fields, got %d", len(vals))
	}

	seller, err := asAddress(vals, 0)
	if err != nil {
		return domain.OfferCreatedLog{}, err
	}
	buyer, err := asAddress(vals, 1)
	if err != nil {
		return domain.OfferCreatedLog{}, err
	}
	price, err := asBig(vals, 2)
	if err != nil {
		return domain.OfferCreatedLog{}, err
	}
	amount, err := asBig(vals, 3)
	if err != nil {
		return domain.OfferCreatedLog{}, err
	}

	return domain.OfferCreatedLog{
		OfferID:    lg.Topics[3].Big().Uint64(),
		OfferToken: common.BytesToAddress(lg.Topics[1].Bytes()),
		BuyerToken: common.BytesToAddress(lg.Topics[2].Bytes()),
		Seller:     seller,
		Buyer:      buyer,
		Price:      price,
		Amount:     amount,
	}, nil
}

func decodeOfferUpdated(lg types.Log) (domain.OfferUpdatedLog, error) {
	if len(lg.Topics) != 4 {
		return domain.OfferUpdatedLog{}, fmt.Errorf("expected 4 topics, got %d", len(lg.Topics))
	}
	return domain.OfferUpdatedLog{
		OfferID:   lg.Topics[1].Big().Uint64(),
		NewPrice:  lg.Topics[2].Big(),
		NewAmount: lg.Topics[3].Big(),
	}, nil
}

// addressTopics widens addresses into 32-byte log topics. An empty slice
// comes back nil so the position matches any value.
func addressTopics(addrs []common.Address) []common.Hash {
	if len(addrs) == 0 {
		return nil
	}
	topics := make([]common.Hash, len(addrs))
	for i, a := range addrs {
		topics[i] = common.BytesToHash(a.Bytes())
	}
	return topics
}
