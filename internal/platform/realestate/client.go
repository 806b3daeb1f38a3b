// Package realestate is the REST client for the tokenized real-estate
// registry, which serves per-token prices and occupancy figures.
package realestate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/yamops/yamkeeper/internal/domain"
)

const source = "realestate"

// Client talks to the registry's token endpoint. Tokens are keyed by their
// contract address as registered with the provider.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	cache      domain.PriceCache
}

// New creates a registry client.
//
// baseURL is the API root, e.g. "https://api.realtoken.community".
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

// TokenQuote returns the USD price and occupancy data for the token with the
// given registry id. Occupancy is optional on the provider side; callers
// must check HasOccupancy before applying vacancy discounts.
func (c *Client) TokenQuote(ctx context.Context, registryID string) (domain.RegistryQuote, error) {
	path := "/v1/token/" + url.PathEscape(registryID)

	body, status, err := c.doGet(ctx, path)
	if err != nil {
		return domain.RegistryQuote{}, domain.NewExternalError(source, "token "+registryID, status, err)
	}

	var tok apiToken
	if err := json.Unmarshal(body, &tok); err != nil {
		return domain.RegistryQuote{}, domain.NewExternalError(source, "decode token "+registryID, 0, err)
	}

	quote := domain.RegistryQuote{
		PriceUSD: domain.FixedFromFloat(tok.TokenPrice, domain.USDScale),
	}
	if tok.TotalUnits != nil && *tok.TotalUnits > 0 {
		quote.TotalUnits = *tok.TotalUnits
		quote.HasOccupancy = true
		if tok.RentedUnits != nil {
			quote.RentedUnits = *tok.RentedUnits
		}
	}

	if c.cache != nil {
		_ = c.cache.SetQuote(ctx, source, registryID, quote.PriceUSD)
	}

	return quote, nil
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-AUTH-REALT-TOKEN", c.apiKey)

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

// apiToken mirrors the registry payload. Unit counts are pointers because
// older listings omit them entirely.
type apiToken struct {
	TokenPrice  float64 `json:"tokenPrice"`
	RentedUnits *int64  `json:"rentedUnits"`
	TotalUnits  *int64  `json:"totalUnits"`
}
