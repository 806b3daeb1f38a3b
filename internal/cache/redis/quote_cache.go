package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yamops/yamkeeper/internal/domain"
)

// QuoteCache implements domain.PriceCache using Redis string keys with a
// TTL. Each quote is stored at "quote:{source}:{ref}" as a JSON document
// carrying the decimal mantissa and scale, so values round-trip without
// floating-point drift.
type QuoteCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewQuoteCache creates a QuoteCache backed by the given Client. Quotes
// expire after ttl; a zero ttl keeps them until overwritten.
func NewQuoteCache(c *Client, ttl time.Duration) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying(), ttl: ttl}
}

func quoteKey(source, ref string) string {
	return "quote:" + source + ":" + ref
}

type cachedQuote struct {
	Value    string `json:"value"`
	Decimals int    `json:"decimals"`
}

// GetQuote returns the cached quote for source and ref, or
// domain.ErrNotFound when the key is missing or expired.
func (qc *QuoteCache) GetQuote(ctx context.Context, source, ref string) (domain.Fixed, error) {
	raw, err := qc.rdb.Get(ctx, quoteKey(source, ref)).Bytes()
	if err == redis.Nil {
		return domain.Fixed{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Fixed{}, fmt.Errorf("redis: get quote %s/%s: %w", source, ref, err)
	}

	var q cachedQuote
	if err := json.Unmarshal(raw, &q); err != nil {
		return domain.Fixed{}, fmt.Errorf("redis: decode quote %s/%s: %w", source, ref, err)
	}
	mantissa, ok := new(big.Int).SetString(q.Value, 10)
	if !ok {
		return domain.Fixed{}, fmt.Errorf("redis: quote %s/%s: bad mantissa %q", source, ref, q.Value)
	}
	return domain.NewFixed(mantissa, q.Decimals), nil
}

// SetQuote stores a quote under the source/ref pair.
func (qc *QuoteCache) SetQuote(ctx context.Context, source, ref string, price domain.Fixed) error {
	raw, err := json.Marshal(cachedQuote{
		Value:    price.Mantissa().String(),
		Decimals: price.Scale(),
	})
	if err != nil {
		return fmt.Errorf("redis: encode quote %s/%s: %w", source, ref, err)
	}
	if err := qc.rdb.Set(ctx, quoteKey(source, ref), raw, qc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set quote %s/%s: %w", source, ref, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*QuoteCache)(nil)
