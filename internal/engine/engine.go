// Package engine evaluates marketplace offers against fundamental value and
// drives the vault's automatic purchases. It consumes marketplace events,
// keeps the offer book's profit estimates current, and fires a buy whenever
// an offer is strictly cheaper than what the token is worth.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/yamops/yamkeeper/internal/directory"
	"github.com/yamops/yamkeeper/internal/domain"
	"github.com/yamops/yamkeeper/internal/offers"
	"github.com/yamops/yamkeeper/internal/valuation"
)

// Notification event types.
const (
	EventOfferBought = "offer_bought"
	EventTrigger     = "trigger"
	EventError       = "error"
)

// StrategySyncer refreshes the stored strategy snapshot after the vault's
// balances change.
type StrategySyncer interface {
	Sync(ctx context.Context) error
}

// Notifier delivers operator notifications. The engine never fails an
// evaluation over a notification problem.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Config wires an Engine.
type Config struct {
	Book     *offers.Book
	Dir      *directory.Service
	Valuer   *valuation.MiningValuer
	Market   domain.MarketDataSource
	Watcher  domain.MarketplaceWatcher
	Trader   domain.VaultTrader // nil in read-only mode
	Vault    common.Address
	Audit    domain.AuditStore
	Syncer   StrategySyncer // optional
	Notifier Notifier       // optional
	Logger   *slog.Logger

	// AutoExecute gates the buy call. When false the engine evaluates and
	// records triggers but never spends.
	AutoExecute bool
}

// Engine is the offer evaluation and purchase loop.
type Engine struct {
	book     *offers.Book
	dir      *directory.Service
	valuer   *valuation.MiningValuer
	market   domain.MarketDataSource
	watcher  domain.MarketplaceWatcher
	trader   domain.VaultTrader
	vault    common.Address
	audit    domain.AuditStore
	syncer   StrategySyncer
	notifier Notifier
	logger   *slog.Logger

	autoExecute bool
}

// New creates an Engine from cfg.
func New(cfg Config) *Engine {
	return &Engine{
		book:        cfg.Book,
		dir:         cfg.Dir,
		valuer:      cfg.Valuer,
		market:      cfg.Market,
		watcher:     cfg.Watcher,
		trader:      cfg.Trader,
		vault:       cfg.Vault,
		audit:       cfg.Audit,
		syncer:      cfg.Syncer,
		notifier:    cfg.Notifier,
		logger:      cfg.Logger.With("component", "engine"),
		autoExecute: cfg.AutoExecute,
	}
}

// SellingOfferPnL returns the per-token profit of buying the offer at its
// asking price, in USD at cent precision:
//
//	fundamentalValue(offerToken) - price * stablecoinUSD
//
// Offers not denominated in a stablecoin come back as ErrWrongOfferType; the
// engine only reasons about prices it can convert to USD.
func (e *Engine) SellingOfferPnL(ctx context.Context, offer domain.Offer) (domain.Fixed, error) {
	buyerAsset, err := e.dir.ByAddress(ctx, offer.BuyerToken)
	if err != nil {
		return domain.Fixed{}, fmt.Errorf("engine: buyer token %s: %w", offer.BuyerToken.Hex(), err)
	}
	if !buyerAsset.IsStableCoin {
		return domain.Fixed{}, fmt.Errorf("engine: offer %d priced in %s: %w", offer.OfferID, buyerAsset.Symbol, domain.ErrWrongOfferType)
	}

	offerAsset, err := e.dir.ByAddress(ctx, offer.OfferToken)
	if err != nil {
		return domain.Fixed{}, fmt.Errorf("engine: offer token %s: %w", offer.OfferToken.Hex(), err)
	}

	stableUSD, err := e.market.QuoteUSD(ctx, buyerAsset.OracleRefs.CryptoMarketID)
	if err != nil {
		return domain.Fixed{}, fmt.Errorf("engine: offer %d: %w", offer.OfferID, err)
	}

	fundamental, err := e.valuer.FundamentalValue(ctx, offerAsset)
	if err != nil {
		return domain.Fixed{}, fmt.Errorf("engine: offer %d: %w", offer.OfferID, err)
	}

	priceUSD := offer.Price.Mul(stableUSD).Rescale(domain.USDScale)
	return fundamental.Sub(priceUSD), nil
}

// EvaluateAll recomputes the profit estimate for every selling offer in the
// book and stores the results. Offers that fail evaluation keep going; one
// broken oracle reference must not blind the engine to the rest.
func (e *Engine) EvaluateAll(ctx context.Context) error {
	selling, err := e.book.Selling(ctx)
	if errors.Is(err, domain.ErrNoOffers) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, offer := range selling {
		pnl, err := e.SellingOfferPnL(ctx, offer)
		if err != nil {
			e.logger.Warn("offer evaluation failed", "offer_id", offer.OfferID, "error", err)
			continue
		}
		offer.PnL = pnl
		offer.HasPnL = true
		e.book.Upsert(offer)
	}
	return nil
}

// Start subscribes to marketplace events and evaluates offers as they
// arrive. The OfferCreated subscription is narrowed to offers selling
// cataloged mining tokens against cataloged stablecoins. The returned stop
// function cancels both subscriptions.
func (e *Engine) Start(ctx context.Context) (func(), error) {
	mining, err := e.dir.MiningTokens(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: start: %w", err)
	}
	stable, err := e.dir.StableCoins(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: start: %w", err)
	}

	// Pinning the buyer to the zero address keeps private offers, which
	// name their buyer up front, out of the stream entirely.
	filter := domain.OfferEventFilter{
		OfferTokens: addresses(mining),
		BuyerTokens: addresses(stable),
		Buyer:       &domain.ZeroAddress,
	}

	stopCreated, err := e.watcher.WatchOfferCreated(ctx, filter, e.HandleCreated)
	if err != nil {
		return nil, fmt.Errorf("engine: start: %w", err)
	}
	stopUpdated, err := e.watcher.WatchOfferUpdated(ctx, e.HandleUpdated)
	if err != nil {
		stopCreated()
		return nil, fmt.Errorf("engine: start: %w", err)
	}

	e.logger.Info("watching marketplace",
		"mining_tokens", len(filter.OfferTokens),
		"stablecoins", len(filter.BuyerTokens),
		"auto_execute", e.autoExecute,
	)

	return func() {
		stopCreated()
		stopUpdated()
	}, nil
}

// HandleCreated processes a batch of OfferCreated events. Each offer is
// admitted to the book and evaluated independently; a failure on one never
// blocks the rest of the batch.
func (e *Engine) HandleCreated(ctx context.Context, batch []domain.OfferCreatedLog) {
	for _, ev := range batch {
		offer, ok, err := e.book.FromCreatedLog(ctx, ev)
		if err != nil {
			e.logger.Warn("skipping created offer", "offer_id", ev.OfferID, "error", err)
			continue
		}
		if !ok {
			e.logger.Debug("ignoring ineligible offer", "offer_id", ev.OfferID)
			continue
		}
		e.book.Upsert(offer)
		e.evaluate(ctx, offer)
	}
}

// HandleUpdated processes a batch of OfferUpdated events. Updates for offers
// the book never admitted are skipped: the event does not carry enough
// identity to reconstruct them, and guessing would poison the book.
func (e *Engine) HandleUpdated(ctx context.Context, batch []domain.OfferUpdatedLog) {
	for _, ev := range batch {
		offer, err := e.book.ApplyUpdate(ctx, ev)
		if errors.Is(err, domain.ErrOfferNotFound) {
			e.logger.Debug("update for unknown offer", "offer_id", ev.OfferID)
			continue
		}
		if err != nil {
			e.logger.Warn("skipping updated offer", "offer_id", ev.OfferID, "error", err)
			continue
		}
		e.evaluate(ctx, offer)
	}
}

// evaluate stores the offer's fresh profit estimate and fires a buy when the
// estimate is strictly positive. Break-even offers are left alone: with the
// margin of safety already applied, zero expected profit is not a trade.
func (e *Engine) evaluate(ctx context.Context, offer domain.Offer) {
	pnl, err := e.SellingOfferPnL(ctx, offer)
	if err != nil {
		e.logger.Warn("offer evaluation failed", "offer_id", offer.OfferID, "error", err)
		return
	}

	offer.PnL = pnl
	offer.HasPnL = true
	e.book.Upsert(offer)

	e.logger.Info("offer evaluated",
		"offer_id", offer.OfferID,
		"token", offer.OfferTokenSymbol,
		"price", offer.Price.String(),
		"pnl_usd", pnl.String(),
	)

	if pnl.Sign() <= 0 {
		return
	}
	e.trigger(ctx, offer, pnl)
}

// trigger records the profitable offer and, when execution is enabled, buys
// as much of it as the vault can afford.
func (e *Engine) trigger(ctx context.Context, offer domain.Offer, pnl domain.Fixed) {
	e.auditLog(ctx, "trigger_fired", map[string]any{
		"offer_id": offer.OfferID,
		"token":    offer.OfferTokenSymbol,
		"price":    offer.Price.String(),
		"pnl_usd":  pnl.String(),
	})
	e.notify(ctx, EventTrigger, "Profitable offer",
		fmt.Sprintf("offer %d: %s at %s %s, +%s USD per token",
			offer.OfferID, offer.OfferTokenSymbol, offer.Price.String(), offer.BuyerTokenSymbol, pnl.String()))

	if !e.autoExecute || e.trader == nil {
		e.logger.Info("auto-execute disabled, not buying", "offer_id", offer.OfferID)
		return
	}

	if err := e.trader.BuyOfferMax(ctx, e.vault, offer); err != nil {
		e.logger.Error("buy failed", "offer_id", offer.OfferID, "error", err)
		e.auditLog(ctx, "buy_failed", map[string]any{
			"offer_id": offer.OfferID,
			"error":    err.Error(),
		})
		e.notify(ctx, EventError, "Buy failed",
			fmt.Sprintf("offer %d: %v", offer.OfferID, err))
		return
	}

	e.logger.Info("offer bought", "offer_id", offer.OfferID, "token", offer.OfferTokenSymbol)
	e.auditLog(ctx, "offer_bought", map[string]any{
		"offer_id": offer.OfferID,
		"token":    offer.OfferTokenSymbol,
		"pnl_usd":  pnl.String(),
	})
	e.notify(ctx, EventOfferBought, "Offer bought",
		fmt.Sprintf("offer %d: %s at %s %s",
			offer.OfferID, offer.OfferTokenSymbol, offer.Price.String(), offer.BuyerTokenSymbol))

	// The purchase changed the offer on chain; re-read it so the book
	// reflects the remaining amount instead of the pre-buy record.
	if _, err := e.book.Refresh(ctx, offer.OfferID); err != nil {
		e.logger.Warn("offer refresh after buy failed", "offer_id", offer.OfferID, "error", err)
	}

	if e.syncer != nil {
		if err := e.syncer.Sync(ctx); err != nil {
			e.logger.Warn("strategy sync after buy failed", "error", err)
		}
	}
}

func (e *Engine) auditLog(ctx context.Context, event string, detail map[string]any) {
	if e.audit == nil {
		return
	}
	if err := e.audit.Log(ctx, event, detail); err != nil {
		e.logger.Warn("audit write failed", "event", event, "error", err)
	}
}

func (e *Engine) notify(ctx context.Context, event, title, message string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(ctx, event, title, message); err != nil {
		e.logger.Warn("notification failed", "event", event, "error", err)
	}
}

func addresses(assets []domain.Asset) []common.Address {
	out := make([]common.Address, len(assets))
	for i, a := range assets {
		out[i] = a.Address
	}
	return out
}
