// Package offers maintains the in-memory book of marketplace offers the
// engine cares about. The book is populated from chain state exactly once
// and then kept current from marketplace events.
package offers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/yamops/yamkeeper/internal/directory"
	"github.com/yamops/yamkeeper/internal/domain"
)

// populateConcurrency bounds parallel offer reads during the initial scan.
const populateConcurrency = 16

// Book holds the known offers keyed by offer id. Offers referencing tokens
// outside the asset directory never enter the book; everything downstream
// can therefore assume both legs are cataloged.
type Book struct {
	market domain.MarketplaceReader
	dir    *directory.Service
	logger *slog.Logger

	mu        sync.RWMutex
	offers    map[uint64]domain.Offer
	populated bool

	// populateMu serializes the initial scan so concurrent callers of All
	// trigger it exactly once.
	populateMu sync.Mutex
}

// NewBook creates an empty offer book.
func NewBook(market domain.MarketplaceReader, dir *directory.Service, logger *slog.Logger) *Book {
	return &Book{
		market: market,
		dir:    dir,
		logger: logger.With("component", "offers"),
	}
}

// All returns a snapshot of every offer in the book, ordered by offer id.
// The first call scans the whole marketplace; later calls serve from memory
// and never touch the chain again.
func (b *Book) All(ctx context.Context) ([]domain.Offer, error) {
	if err := b.ensurePopulated(ctx); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]domain.Offer, 0, len(b.offers))
	for _, o := range b.offers {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OfferID < out[j].OfferID })
	return out, nil
}

// Get returns the offer with the given id, or ErrOfferNotFound.
func (b *Book) Get(ctx context.Context, offerID uint64) (domain.Offer, error) {
	if err := b.ensurePopulated(ctx); err != nil {
		return domain.Offer{}, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	o, ok := b.offers[offerID]
	if !ok {
		return domain.Offer{}, fmt.Errorf("%w: offer %d", domain.ErrOfferNotFound, offerID)
	}
	return o, nil
}

// Upsert inserts or replaces an offer. Re-inserting the same offer id is
// idempotent.
func (b *Book) Upsert(offer domain.Offer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.offers == nil {
		b.offers = make(map[uint64]domain.Offer)
	}
	b.offers[offer.OfferID] = offer
}

// Selling returns the open offers selling mining tokens against stablecoins,
// ordered by offer id. ErrNoOffers means the book holds nothing matching.
func (b *Book) Selling(ctx context.Context) ([]domain.Offer, error) {
	all, err := b.All(ctx)
	if err != nil {
		return nil, err
	}

	mining, err := b.addressSet(ctx, domain.AssetFilter{IsMiningToken: domain.BoolPtr(true)})
	if err != nil {
		return nil, err
	}
	stable, err := b.addressSet(ctx, domain.AssetFilter{IsStableCoin: domain.BoolPtr(true)})
	if err != nil {
		return nil, err
	}

	var out []domain.Offer
	for _, o := range all {
		if o.Open() && mining[o.OfferToken] && stable[o.BuyerToken] {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return nil, domain.ErrNoOffers
	}
	return out, nil
}

// FromCreatedLog builds a book entry from an OfferCreated event. The second
// return is false when the offer is not eligible for the book (unknown
// tokens, private offer, or no seller).
func (b *Book) FromCreatedLog(ctx context.Context, ev domain.OfferCreatedLog) (domain.Offer, bool, error) {
	raw := domain.RawOffer{
		OfferToken: ev.OfferToken,
		BuyerToken: ev.BuyerToken,
		Seller:     ev.Seller,
		Buyer:      ev.Buyer,
		Price:      ev.Price,
		Amount:     ev.Amount,
	}
	return b.buildOffer(ctx, ev.OfferID, raw)
}

// ApplyUpdate folds an OfferUpdated event into the stored offer and returns
// the updated record. Events for offers the book never admitted come back as
// ErrOfferNotFound; callers skip those rather than guessing at identity the
// event does not carry.
func (b *Book) ApplyUpdate(ctx context.Context, ev domain.OfferUpdatedLog) (domain.Offer, error) {
	offer, err := b.Get(ctx, ev.OfferID)
	if err != nil {
		return domain.Offer{}, err
	}

	offer.Price = domain.NewFixed(ev.NewPrice, offer.Price.Scale())
	offer.Amount = domain.NewFixed(ev.NewAmount, offer.Amount.Scale())
	offer.HasPnL = false
	b.Upsert(offer)
	return offer, nil
}

// Refresh re-reads one offer from the chain and folds the result into the
// book, replacing the stored record by id. A stored profit estimate survives
// the refresh as long as the asking price did not move. When the offer no
// longer qualifies for the book (a buyer claimed it), the stored record keeps
// its identity and takes the fresh buyer, price, and amount, so a filled
// offer stays visible instead of silently reverting to its pre-fill state.
func (b *Book) Refresh(ctx context.Context, offerID uint64) (domain.Offer, error) {
	raw, err := b.market.CurrentOffer(ctx, offerID)
	if err != nil {
		return domain.Offer{}, fmt.Errorf("offers: refresh %d: %w", offerID, err)
	}

	offer, ok, err := b.buildOffer(ctx, offerID, raw)
	if err != nil {
		return domain.Offer{}, fmt.Errorf("offers: refresh %d: %w", offerID, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.offers == nil {
		b.offers = make(map[uint64]domain.Offer)
	}
	stored, exists := b.offers[offerID]

	if !ok {
		if !exists {
			return domain.Offer{}, fmt.Errorf("%w: offer %d", domain.ErrOfferNotFound, offerID)
		}
		stored.Buyer = raw.Buyer
		stored.Price = domain.NewFixed(raw.Price, stored.Price.Scale())
		stored.Amount = domain.NewFixed(raw.Amount, stored.Amount.Scale())
		stored.HasPnL = false
		b.offers[offerID] = stored
		return stored, nil
	}

	if exists && stored.HasPnL && stored.Price.Cmp(offer.Price) == 0 {
		offer.PnL = stored.PnL
		offer.HasPnL = true
	}
	b.offers[offerID] = offer
	return offer, nil
}

// ensurePopulated runs the initial marketplace scan once.
func (b *Book) ensurePopulated(ctx context.Context) error {
	b.populateMu.Lock()
	defer b.populateMu.Unlock()
	if b.populated {
		return nil
	}
	if err := b.populate(ctx); err != nil {
		return err
	}
	b.populated = true
	return nil
}

// populate reads every offer id from the marketplace concurrently and admits
// the eligible ones. Individually failed offers are logged and dropped, the
// same as ones pruned by the contract; one unreadable offer must not blind
// the book to the rest of the marketplace.
func (b *Book) populate(ctx context.Context) error {
	count, err := b.market.OfferCount(ctx)
	if err != nil {
		return fmt.Errorf("offers: populate: %w", err)
	}

	var (
		mu       sync.Mutex
		admitted = make(map[uint64]domain.Offer)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(populateConcurrency)
	for id := uint64(0); id < count; id++ {
		g.Go(func() error {
			raw, err := b.market.CurrentOffer(gctx, id)
			if errors.Is(err, domain.ErrOfferNotFound) {
				return nil
			}
			if err != nil {
				b.logger.Warn("dropping unreadable offer from scan", "offer_id", id, "error", err)
				return nil
			}

			offer, ok, err := b.buildOffer(gctx, id, raw)
			if err != nil {
				b.logger.Warn("dropping unreadable offer from scan", "offer_id", id, "error", err)
				return nil
			}
			if !ok {
				return nil
			}

			mu.Lock()
			admitted[id] = offer
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("offers: populate: %w", err)
	}

	// Events observed before the scan finished are fresher than the scan
	// itself; entries already in the book win over scanned ones.
	b.mu.Lock()
	for id, o := range b.offers {
		admitted[id] = o
	}
	b.offers = admitted
	b.mu.Unlock()

	b.logger.Info("offer book populated", "scanned", count, "admitted", len(admitted))
	return nil
}

// buildOffer turns a raw contract record into a book entry. Eligibility:
// both tokens cataloged, a real seller, and no designated buyer (a non-zero
// buyer marks a private offer reserved for someone else).
func (b *Book) buildOffer(ctx context.Context, offerID uint64, raw domain.RawOffer) (domain.Offer, bool, error) {
	if raw.Seller == domain.ZeroAddress || raw.Buyer != domain.ZeroAddress {
		return domain.Offer{}, false, nil
	}

	offerAsset, ok, err := b.lookupToken(ctx, raw.OfferToken)
	if err != nil || !ok {
		return domain.Offer{}, false, err
	}
	buyerAsset, ok, err := b.lookupToken(ctx, raw.BuyerToken)
	if err != nil || !ok {
		return domain.Offer{}, false, err
	}

	return domain.Offer{
		OfferID:          offerID,
		Seller:           raw.Seller,
		Buyer:            raw.Buyer,
		OfferToken:       raw.OfferToken,
		OfferTokenSymbol: offerAsset.Symbol,
		BuyerToken:       raw.BuyerToken,
		BuyerTokenSymbol: buyerAsset.Symbol,
		Price:            domain.NewFixed(raw.Price, buyerAsset.Decimals),
		Amount:           domain.NewFixed(raw.Amount, offerAsset.Decimals),
	}, true, nil
}

// lookupToken resolves addr through the directory. Unknown tokens are not an
// error here, just ineligibility.
func (b *Book) lookupToken(ctx context.Context, addr common.Address) (domain.Asset, bool, error) {
	asset, err := b.dir.ByAddress(ctx, addr)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Asset{}, false, nil
	}
	if err != nil {
		return domain.Asset{}, false, err
	}
	return asset, true, nil
}

func (b *Book) addressSet(ctx context.Context, filter domain.AssetFilter) (map[common.Address]bool, error) {
	assets, err := b.dir.Lookup(ctx, filter)
	if errors.Is(err, domain.ErrNotFound) {
		return map[common.Address]bool{}, nil
	}
	if err != nil {
		return nil, err
	}
	set := make(map[common.Address]bool, len(assets))
	for _, a := range assets {
		set[a.Address] = true
	}
	return set, nil
}
