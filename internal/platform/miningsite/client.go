// Package miningsite is the REST client for the mining operator's site API,
// which serves per-site token prices and treasury balances.
package miningsite

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/yamops/yamkeeper/internal/domain"
)

const source = "miningsite"

// Client talks to the mining operator's public site endpoint. Sites are
// keyed by the operator's numeric site id.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      domain.PriceCache
}

// New creates a mining-site client. The endpoint is unauthenticated.
// cache may be nil; when set, quotes are served read-through from it.
func New(baseURL string, cache domain.PriceCache) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		cache: cache,
	}
}

// SitePrice returns the USD price of the site token, truncated to cents.
func (c *Client) SitePrice(ctx context.Context, siteID int64) (domain.Fixed, error) {
	site, err := c.getSite(ctx, siteID)
	if err != nil {
		return domain.Fixed{}, err
	}
	return domain.FixedFromFloat(site.TokenPrice, domain.USDScale), nil
}

// SiteTreasury returns the site treasury's BTC balance in satoshi precision.
func (c *Client) SiteTreasury(ctx context.Context, siteID int64) (domain.Fixed, error) {
	ref := strconv.FormatInt(siteID, 10) + ":treasury"

	if c.cache != nil {
		if balance, err := c.cache.GetQuote(ctx, source, ref); err == nil {
			return balance, nil
		}
	}

	site, err := c.getSite(ctx, siteID)
	if err != nil {
		return domain.Fixed{}, err
	}

	balance := domain.FixedFromFloat(site.TreasuryBTC, domain.BTCScale)

	if c.cache != nil {
		_ = c.cache.SetQuote(ctx, source, ref, balance)
	}

	return balance, nil
}

func (c *Client) getSite(ctx context.Context, siteID int64) (apiSite, error) {
	ref := strconv.FormatInt(siteID, 10)
	path := "/api/sites/" + ref

	body, status, err := c.doGet(ctx, path)
	if err != nil {
		return apiSite{}, domain.NewExternalError(source, "site "+ref, status, err)
	}

	var site apiSite
	if err := json.Unmarshal(body, &site); err != nil {
		return apiSite{}, domain.NewExternalError(source, "decode site "+ref, 0, err)
	}

	return site, nil
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

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

// apiSite mirrors the operator's site payload.
type apiSite struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	TokenPrice  float64 `json:"tokenPrice"`
	TreasuryBTC float64 `json:"btcTreasury"`
}
