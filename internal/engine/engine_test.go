package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yamops/yamkeeper/internal/directory"
	"github.com/yamops/yamkeeper/internal/domain"
	"github.com/yamops/yamkeeper/internal/offers"
	"github.com/yamops/yamkeeper/internal/valuation"
)

var (
	miningToken = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	stableToken = common.HexToAddress("0x0000000000000000000000000000000000000a02")
	vaultAddr   = common.HexToAddress("0x0000000000000000000000000000000000000d01")
	seller      = common.HexToAddress("0x0000000000000000000000000000000000000c01")
)

const stableMarketID = 825

// --------------------------------------------------------------------------
// Fakes
// --------------------------------------------------------------------------

type fakeAssetStore struct {
	assets []domain.Asset
}

func (f *fakeAssetStore) GetAssets(_ context.Context, filter domain.AssetFilter) ([]domain.Asset, error) {
	var out []domain.Asset
	for _, a := range f.assets {
		if filter.Matches(a) {
			out = append(out, a)
		}
	}
	if len(out) == 0 {
		if filter.IsConstrained() {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrEmptyDirectory
	}
	return out, nil
}

func (f *fakeAssetStore) UpdateAsset(_ context.Context, asset domain.Asset) (domain.Asset, error) {
	return asset, nil
}

type noopTokens struct{}

func (noopTokens) Symbol(context.Context, common.Address) (string, error) { return "", nil }
func (noopTokens) Decimals(context.Context, common.Address) (int, error)  { return 0, nil }
func (noopTokens) TotalSupply(context.Context, common.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}
func (noopTokens) BalanceOf(context.Context, common.Address, common.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}
func (noopTokens) Allowance(context.Context, common.Address, common.Address, common.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}

type fakeMarketplace struct {
	mu     sync.Mutex
	offers map[uint64]domain.RawOffer
}

func (f *fakeMarketplace) set(id uint64, raw domain.RawOffer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offers == nil {
		f.offers = make(map[uint64]domain.RawOffer)
	}
	f.offers[id] = raw
}

func (f *fakeMarketplace) OfferCount(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var max uint64
	for id := range f.offers {
		if id >= max {
			max = id + 1
		}
	}
	return max, nil
}

func (f *fakeMarketplace) InitialOffer(ctx context.Context, id uint64) (domain.RawOffer, error) {
	return f.CurrentOffer(ctx, id)
}

func (f *fakeMarketplace) CurrentOffer(_ context.Context, id uint64) (domain.RawOffer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.offers[id]
	if !ok {
		return domain.RawOffer{}, fmt.Errorf("%w: offer %d", domain.ErrOfferNotFound, id)
	}
	return raw, nil
}

type fakeWatcher struct {
	createdFilter domain.OfferEventFilter
}

func (f *fakeWatcher) WatchOfferCreated(_ context.Context, filter domain.OfferEventFilter, _ func(context.Context, []domain.OfferCreatedLog)) (func(), error) {
	f.createdFilter = filter
	return func() {}, nil
}

func (f *fakeWatcher) WatchOfferUpdated(context.Context, func(context.Context, []domain.OfferUpdatedLog)) (func(), error) {
	return func() {}, nil
}

type stubMarket struct {
	quotes map[int64]domain.Fixed
}

func (s stubMarket) QuoteUSD(_ context.Context, id int64) (domain.Fixed, error) {
	q, ok := s.quotes[id]
	if !ok {
		return domain.Fixed{}, domain.NewExternalError("cryptomarket", "quote", 404, errors.New("unknown id"))
	}
	return q, nil
}

type stubSite struct {
	price    domain.Fixed
	treasury domain.Fixed
}

func (s stubSite) SitePrice(context.Context, int64) (domain.Fixed, error)    { return s.price, nil }
func (s stubSite) SiteTreasury(context.Context, int64) (domain.Fixed, error) { return s.treasury, nil }

type fakeTrader struct {
	mu     sync.Mutex
	bought []uint64
	err    error
	// onBuy simulates the chain-side effect of a successful purchase.
	onBuy func(offerID uint64)
}

func (f *fakeTrader) BuyOfferMax(_ context.Context, _ common.Address, offer domain.Offer) error {
	f.mu.Lock()
	if f.err != nil {
		f.mu.Unlock()
		return f.err
	}
	f.bought = append(f.bought, offer.OfferID)
	onBuy := f.onBuy
	f.mu.Unlock()

	if onBuy != nil {
		onBuy(offer.OfferID)
	}
	return nil
}

func (f *fakeTrader) Approve(context.Context, common.Address, common.Address, *big.Int) error {
	return nil
}

func (f *fakeTrader) Deposit(context.Context, common.Address, *big.Int, common.Address) error {
	return nil
}

func (f *fakeTrader) boughtIDs() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint64(nil), f.bought...)
}

type fakeAudit struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeAudit) Log(_ context.Context, event string, _ map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeAudit) ListBefore(context.Context, time.Time, int) ([]domain.AuditEntry, error) {
	return nil, nil
}

func (f *fakeAudit) DeleteBefore(context.Context, time.Time) (int64, error) { return 0, nil }

func (f *fakeAudit) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

type fakeSyncer struct {
	calls int
}

func (f *fakeSyncer) Sync(context.Context) error {
	f.calls++
	return nil
}

type fakeNotifier struct {
	events []string
}

func (f *fakeNotifier) Notify(_ context.Context, event, _, _ string) error {
	f.events = append(f.events, event)
	return nil
}

// --------------------------------------------------------------------------
// Fixture
// --------------------------------------------------------------------------

type fixture struct {
	engine   *Engine
	book     *offers.Book
	market   *fakeMarketplace
	watcher  *fakeWatcher
	trader   *fakeTrader
	audit    *fakeAudit
	syncer   *fakeSyncer
	notifier *fakeNotifier
}

func newFixture(t *testing.T, autoExecute bool) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := &fakeAssetStore{assets: []domain.Asset{
		{
			Address:       miningToken,
			Symbol:        "SITE-1",
			Decimals:      9,
			TotalSupply:   big.NewInt(1000e9), // 1000 whole tokens
			IsERC20:       true,
			IsMiningToken: true,
			OracleRefs:    domain.OracleRefs{MiningSiteID: 7},
		},
		{
			Address:      stableToken,
			Symbol:       "USDONE",
			Decimals:     6,
			TotalSupply:  big.NewInt(1_000_000e6),
			IsERC20:      true,
			IsStableCoin: true,
			OracleRefs:   domain.OracleRefs{CryptoMarketID: stableMarketID},
		},
	}}
	dir := directory.New(store, noopTokens{}, logger)

	// BTC at 50000.00, the stablecoin at exactly 1.00. With a 1.00 site
	// price, 0.1 BTC treasury, and 1000 tokens, fundamental value is 51.00.
	market := stubMarket{quotes: map[int64]domain.Fixed{
		1:              domain.FixedFromInt64(5_000_000, 2),
		stableMarketID: domain.FixedFromInt64(100, 2),
	}}
	site := stubSite{
		price:    domain.FixedFromInt64(100, 2),
		treasury: domain.FixedFromInt64(10_000_000, 8),
	}

	marketplace := &fakeMarketplace{}
	watcher := &fakeWatcher{}
	book := offers.NewBook(marketplace, dir, logger)
	trader := &fakeTrader{}
	audit := &fakeAudit{}
	syncer := &fakeSyncer{}
	notifier := &fakeNotifier{}

	eng := New(Config{
		Book:        book,
		Dir:         dir,
		Valuer:      valuation.NewMiningValuer(market, site, 0),
		Market:      market,
		Watcher:     watcher,
		Trader:      trader,
		Vault:       vaultAddr,
		Audit:       audit,
		Syncer:      syncer,
		Notifier:    notifier,
		Logger:      logger,
		AutoExecute: autoExecute,
	})

	return &fixture{
		engine:   eng,
		book:     book,
		market:   marketplace,
		watcher:  watcher,
		trader:   trader,
		audit:    audit,
		syncer:   syncer,
		notifier: notifier,
	}
}

// createdLog prices the offer in USDONE cents-of-a-unit at 6 decimals.
func createdLog(id uint64, priceMicro int64) domain.OfferCreatedLog {
	return domain.OfferCreatedLog{
		OfferID:    id,
		OfferToken: miningToken,
		BuyerToken: stableToken,
		Seller:     seller,
		Buyer:      domain.ZeroAddress,
		Price:      big.NewInt(priceMicro),
		Amount:     big.NewInt(10e9),
	}
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestSellingOfferPnL(t *testing.T) {
	f := newFixture(t, true)

	offer := domain.Offer{
		OfferID:    1,
		OfferToken: miningToken,
		BuyerToken: stableToken,
		Price:      domain.FixedFromInt64(50_000_000, 6), // 50.00 USDONE
	}

	pnl, err := f.engine.SellingOfferPnL(context.Background(), offer)
	require.NoError(t, err)
	assert.Equal(t, "1.00", pnl.String(), "51.00 fundamental minus 50.00 asked")
}

func TestSellingOfferPnL_WrongOfferType(t *testing.T) {
	f := newFixture(t, true)

	// Priced in the mining token itself, not a stablecoin.
	offer := domain.Offer{
		OfferID:    1,
		OfferToken: miningToken,
		BuyerToken: miningToken,
		Price:      domain.FixedFromInt64(1, 9),
	}

	_, err := f.engine.SellingOfferPnL(context.Background(), offer)
	assert.ErrorIs(t, err, domain.ErrWrongOfferType)
}

func TestHandleCreated_BuysStrictlyProfitableOffer(t *testing.T) {
	f := newFixture(t, true)

	f.engine.HandleCreated(context.Background(), []domain.OfferCreatedLog{
		createdLog(1, 50_000_000), // 50.00, pnl +1.00
	})

	assert.Equal(t, []uint64{1}, f.trader.boughtIDs())
	assert.Contains(t, f.audit.recorded(), "trigger_fired")
	assert.Contains(t, f.audit.recorded(), "offer_bought")
	assert.Equal(t, 1, f.syncer.calls, "a buy refreshes the strategy snapshot")
	assert.Contains(t, f.notifier.events, EventOfferBought)

	stored, err := f.book.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, stored.HasPnL)
	assert.Equal(t, "1.00", stored.PnL.String())
}

func TestHandleCreated_BuyRefreshesBookFromChain(t *testing.T) {
	f := newFixture(t, true)

	liveOffer := func(amount int64) domain.RawOffer {
		return domain.RawOffer{
			OfferToken: miningToken,
			BuyerToken: stableToken,
			Seller:     seller,
			Buyer:      domain.ZeroAddress,
			Price:      big.NewInt(50_000_000),
			Amount:     big.NewInt(amount),
		}
	}

	// The chain starts with 10 tokens on the offer; a successful buy
	// leaves 3 of them.
	f.market.set(1, liveOffer(10e9))
	f.trader.onBuy = func(id uint64) {
		f.market.set(id, liveOffer(3e9))
	}

	f.engine.HandleCreated(context.Background(), []domain.OfferCreatedLog{
		createdLog(1, 50_000_000),
	})

	require.Equal(t, []uint64{1}, f.trader.boughtIDs())

	stored, err := f.book.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "3.000000000", stored.Amount.String(), "the book reflects post-buy chain state")
	assert.True(t, stored.HasPnL, "an unchanged price keeps the estimate")
}

func TestStartPinsSubscriptionToOpenOffers(t *testing.T) {
	f := newFixture(t, true)

	stop, err := f.engine.Start(context.Background())
	require.NoError(t, err)
	defer stop()

	filter := f.watcher.createdFilter
	require.NotNil(t, filter.Buyer, "private offers are filtered out at the subscription")
	assert.Equal(t, domain.ZeroAddress, *filter.Buyer)
	assert.Len(t, filter.OfferTokens, 1)
	assert.Len(t, filter.BuyerTokens, 1)
}

func TestHandleCreated_BreakEvenIsNotATrade(t *testing.T) {
	f := newFixture(t, true)

	f.engine.HandleCreated(context.Background(), []domain.OfferCreatedLog{
		createdLog(1, 51_000_000), // exactly fundamental value, pnl 0.00
	})
	assert.Empty(t, f.trader.boughtIDs())

	// One cent below fundamental is enough.
	f.engine.HandleCreated(context.Background(), []domain.OfferCreatedLog{
		createdLog(2, 50_990_000), // pnl +0.01
	})
	assert.Equal(t, []uint64{2}, f.trader.boughtIDs())
}

func TestHandleCreated_FailedEvaluationSkipsItem(t *testing.T) {
	f := newFixture(t, true)

	bad := createdLog(1, 50_000_000)
	bad.BuyerToken = miningToken // wrong offer type, evaluation fails

	f.engine.HandleCreated(context.Background(), []domain.OfferCreatedLog{
		bad,
		createdLog(2, 50_000_000),
	})

	assert.Equal(t, []uint64{2}, f.trader.boughtIDs(), "the rest of the batch still runs")
}

func TestHandleUpdated_UnknownOfferSkipped(t *testing.T) {
	f := newFixture(t, true)

	f.engine.HandleUpdated(context.Background(), []domain.OfferUpdatedLog{
		{OfferID: 42, NewPrice: big.NewInt(1), NewAmount: big.NewInt(1)},
	})

	assert.Empty(t, f.trader.boughtIDs())
	_, err := f.book.Get(context.Background(), 42)
	assert.ErrorIs(t, err, domain.ErrOfferNotFound)
}

func TestHandleUpdated_PriceDropTriggersBuy(t *testing.T) {
	f := newFixture(t, true)

	// Listed above fundamental value: evaluated but not bought.
	f.engine.HandleCreated(context.Background(), []domain.OfferCreatedLog{
		createdLog(1, 55_000_000),
	})
	assert.Empty(t, f.trader.boughtIDs())

	// Seller drops the price below fundamental value.
	f.engine.HandleUpdated(context.Background(), []domain.OfferUpdatedLog{
		{OfferID: 1, NewPrice: big.NewInt(49_000_000), NewAmount: big.NewInt(10e9)},
	})
	assert.Equal(t, []uint64{1}, f.trader.boughtIDs())

	stored, err := f.book.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "2.00", stored.PnL.String())
}

func TestAutoExecuteDisabled_RecordsTriggerWithoutBuying(t *testing.T) {
	f := newFixture(t, false)

	f.engine.HandleCreated(context.Background(), []domain.OfferCreatedLog{
		createdLog(1, 50_000_000),
	})

	assert.Empty(t, f.trader.boughtIDs())
	assert.Contains(t, f.audit.recorded(), "trigger_fired")
	assert.NotContains(t, f.audit.recorded(), "offer_bought")
	assert.Equal(t, 0, f.syncer.calls)
}

func TestBuyFailureIsAuditedAndNotified(t *testing.T) {
	f := newFixture(t, true)
	f.trader.err = fmt.Errorf("chain: buy: %w", domain.ErrTxFailed)

	f.engine.HandleCreated(context.Background(), []domain.OfferCreatedLog{
		createdLog(1, 50_000_000),
	})

	assert.Contains(t, f.audit.recorded(), "buy_failed")
	assert.Contains(t, f.notifier.events, EventError)
	assert.Equal(t, 0, f.syncer.calls)
}

func TestEvaluateAll(t *testing.T) {
	f := newFixture(t, true)

	// Seed the book directly; EvaluateAll only estimates, it never trades.
	f.book.Upsert(domain.Offer{
		OfferID:          1,
		Seller:           seller,
		OfferToken:       miningToken,
		OfferTokenSymbol: "SITE-1",
		BuyerToken:       stableToken,
		BuyerTokenSymbol: "USDONE",
		Price:            domain.FixedFromInt64(50_000_000, 6),
		Amount:           domain.FixedFromInt64(10e9, 9),
	})

	require.NoError(t, f.engine.EvaluateAll(context.Background()))

	stored, err := f.book.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, stored.HasPnL)
	assert.Equal(t, "1.00", stored.PnL.String())
	assert.Empty(t, f.trader.boughtIDs())
}
