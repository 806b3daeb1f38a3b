package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// AssetStore persists asset metadata. Lookups return ErrNotFound when a
// constrained filter yields no rows and ErrEmptyDirectory when an
// unconstrained query finds an empty table.
type AssetStore interface {
	GetAssets(ctx context.Context, filter AssetFilter) ([]Asset, error)
	// UpdateAsset persists chain-observed fields (symbol, decimals, supply)
	// idempotently keyed by address, inserting the row when missing.
	UpdateAsset(ctx context.Context, asset Asset) (Asset, error)
}

// StrategyStore persists strategy snapshots keyed by share token address.
type StrategyStore interface {
	GetStrategies(ctx context.Context, filter StrategyFilter) ([]Strategy, error)
	UpdateStrategy(ctx context.Context, strategy Strategy) (Strategy, error)
}

// HoldingStore persists per-strategy holdings.
type HoldingStore interface {
	GetHoldings(ctx context.Context, filter HoldingFilter) ([]Holding, error)
	UpsertHolding(ctx context.Context, strategyAddress common.Address, holding Holding) error
	DeleteHoldings(ctx context.Context, strategyAddress common.Address) error
}

// OrderStore persists user orders.
type OrderStore interface {
	GetOrders(ctx context.Context, filter OrderFilter) ([]Order, error)
	CreateOrder(ctx context.Context, order Order) (Order, error)
	UpdateOrder(ctx context.Context, order Order) (Order, error)
}

// AuditEntry is a single append-only audit row.
type AuditEntry struct {
	ID        string
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore records engine decisions (trigger fired, buy executed, batch
// item skipped) for offline inspection.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]AuditEntry, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// PriceCache caches oracle quotes between aggregator calls so a burst of
// offer evaluations does not hammer the upstream APIs. Misses return
// ErrNotFound.
type PriceCache interface {
	GetQuote(ctx context.Context, source, ref string) (Fixed, error)
	SetQuote(ctx context.Context, source, ref string, price Fixed) error
}

// LockManager hands out distributed mutual exclusion. Acquire returns
// ErrLockHeld when another process owns the key; the returned release
// function is safe to call more than once.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter throttles requests per key over a sliding window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// SignalBus fans engine events out to other processes. A watch-mode
// instance publishes, a server-mode instance subscribes and forwards to
// its websocket clients.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
