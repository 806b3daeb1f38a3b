// Package cryptomarket is the REST client for the centralized market data
// API used to price liquid crypto assets (stablecoins, BTC) in USD.
package cryptomarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/yamops/yamkeeper/internal/domain"
)

const source = "cryptomarket"

// Client talks to the market data provider's quote endpoint. Quotes are
// keyed by the provider's numeric asset id, not by contract address.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	cache      domain.PriceCache
}

// New creates a market data client.
//
// baseURL is the API root, e.g. "https://pro-api.coinmarketcap.com".
// cache may be nil; when set, quotes are served read-through from it.
func New(baseURL, apiKey string, cache domain.PriceCache) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		cache: cache,
	}
}

// QuoteUSD returns the USD price of the asset with the given provider id,
// truncated to cents.
func (c *Client) QuoteUSD(ctx context.Context, oracleID int64) (domain.Fixed, error) {
	ref := strconv.FormatInt(oracleID, 10)

	if c.cache != nil {
		if price, err := c.cache.GetQuote(ctx, source, ref); err == nil {
			return price, nil
		}
	}

	params := url.Values{}
	params.Set("id", ref)
	path := "/v2/cryptocurrency/quotes/latest?" + params.Encode()

	body, status, err := c.doGet(ctx, path)
	if err != nil {
		return domain.Fixed{}, domain.NewExternalError(source, "quote "+ref, status, err)
	}

	var resp quotesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Fixed{}, domain.NewExternalError(source, "decode quote "+ref, 0, err)
	}

	entry, ok := resp.Data[ref]
	if !ok {
		return domain.Fixed{}, domain.NewExternalError(source, "quote "+ref, 0,
			fmt.Errorf("%w: id %s missing from payload", domain.ErrNotFound, ref))
	}

	price := domain.FixedFromFloat(entry.Quote.USD.Price, domain.USDScale)

	if c.cache != nil {
		_ = c.cache.SetQuote(ctx, source, ref, price)
	}

	return price, nil
}

// doGet sends an authenticated GET request and returns the body along with
// the HTTP status (0 when the request never reached the server).
func (c *Client) doGet(ctx context.Context, path string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-CMC_PRO_API_KEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	return body, resp.StatusCode, nil
}

// quotesResponse mirrors the provider's quote payload. Only the USD leg is
// read; everything else is ignored.
type quotesResponse struct {
	Data map[string]quoteEntry `json:"data"`
}

type quoteEntry struct {
	Quote struct {
		USD struct {
			Price float64 `json:"price"`
		} `json:"USD"`
	} `json:"quote"`
}
