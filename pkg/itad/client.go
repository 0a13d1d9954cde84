// Package itad provides a client for the IsThereAnyDeal price-history API.
package itad

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// steamShopID is ITAD's shop identifier for the Steam storefront. History
// queries are filtered to it so aggregated deals from other shops don't
// pollute the Steam price series.
const steamShopID = 61

// Client defines the aggregator operations used by the history backfill.
type Client interface {
	// LookupGameID resolves a Steam app ID to the aggregator's game ID.
	// Returns "" when the aggregator does not know the app.
	LookupGameID(ctx context.Context, appID int64) (string, error)
	// PriceHistory returns discrete price-change events since the given
	// time, each with its own server-side timestamp. An app with no
	// recorded history yields an empty slice, not an error.
	PriceHistory(ctx context.Context, gameID string, since time.Time) ([]PriceEvent, error)
}

// PriceEvent is one recorded price change.
type PriceEvent struct {
	Timestamp time.Time
	Amount    decimal.Decimal
	Currency  string
}

// Option configures the ITAD client.
type Option func(*httpClient)

// WithBaseURL overrides the API base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithCountry sets the country used for regional pricing.
func WithCountry(cc string) Option {
	return func(c *httpClient) {
		if cc != "" {
			c.country = cc
		}
	}
}

// WithShopID overrides the storefront filter.
func WithShopID(id int) Option {
	return func(c *httpClient) {
		if id > 0 {
			c.shopID = id
		}
	}
}

// WithRateLimit overrides the default request rate (1 req/s). A zero or
// negative rps disables throttling.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		} else {
			c.limiter = nil
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	country string
	shopID  int
	limiter *rate.Limiter
	http    *http.Client
}

// NewClient creates an ITAD client. The aggregator is rate-sensitive, so
// calls are throttled to 1 req/s by default.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.isthereanydeal.com",
		country: "BR",
		shopID:  steamShopID,
		limiter: rate.NewLimiter(1, 1),
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// wait blocks until the rate limiter allows one event, or ctx is cancelled.
func (c *httpClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *httpClient) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	if err := c.wait(ctx); err != nil {
		return nil, eris.Wrap(err, "itad: rate limit")
	}

	q.Set("key", c.apiKey)
	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "itad: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "itad: GET %s", path)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "itad: read response body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("itad: %s status %d: %s", path, resp.StatusCode, string(body))
	}
	return body, nil
}

func (c *httpClient) LookupGameID(ctx context.Context, appID int64) (string, error) {
	q := url.Values{}
	q.Set("appid", strconv.FormatInt(appID, 10))

	body, err := c.get(ctx, "/games/lookup/v1", q)
	if err != nil {
		return "", eris.Wrapf(err, "itad: lookup game for appid %d", appID)
	}

	var payload struct {
		Game *struct {
			ID string `json:"id"`
		} `json:"game"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", eris.Wrapf(err, "itad: decode lookup for appid %d", appID)
	}
	if payload.Game == nil {
		return "", nil
	}
	return payload.Game.ID, nil
}

func (c *httpClient) PriceHistory(ctx context.Context, gameID string, since time.Time) ([]PriceEvent, error) {
	q := url.Values{}
	q.Set("id", gameID)
	q.Set("shops", strconv.Itoa(c.shopID))
	q.Set("country", c.country)
	q.Set("since", since.UTC().Format("2006-01-02T15:04:05Z"))

	body, err := c.get(ctx, "/games/history/v2", q)
	if err != nil {
		return nil, eris.Wrapf(err, "itad: price history for game %s", gameID)
	}

	var entries []struct {
		Timestamp time.Time `json:"timestamp"`
		Deal      struct {
			Price struct {
				Amount   decimal.Decimal `json:"amount"`
				Currency string          `json:"currency"`
			} `json:"price"`
		} `json:"deal"`
	}
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, eris.Wrapf(err, "itad: decode history for game %s", gameID)
	}

	events := make([]PriceEvent, 0, len(entries))
	for _, e := range entries {
		events = append(events, PriceEvent{
			Timestamp: e.Timestamp,
			Amount:    e.Deal.Price.Amount,
			Currency:  e.Deal.Price.Currency,
		})
	}
	return events, nil
}
