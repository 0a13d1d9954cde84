// Package steam provides a client for the Steam Web API wishlist service
// and the storefront appdetails endpoint.
package steam

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
)

// unknownAppName is the placeholder used when the storefront has no listing
// for an app. Lookups never fail on a missing app; they return this name
// with a nil price.
const unknownAppName = "Unknown App"

// Client defines the Steam operations used by the sync orchestrator.
type Client interface {
	// Wishlist returns the app IDs on the configured account's wishlist.
	Wishlist(ctx context.Context) ([]int64, error)
	// AppDetails returns the current name and price for an app. A missing
	// or delisted app yields a placeholder name and nil price, not an error.
	AppDetails(ctx context.Context, appID int64) (*AppDetails, error)
}

// AppDetails is one storefront lookup result. Price is nil when the app is
// free or has no listed price.
type AppDetails struct {
	AppID    int64
	Name     string
	Price    *decimal.Decimal
	Currency string
}

// Option configures the Steam client.
type Option func(*httpClient)

// WithAPIBaseURL overrides the Web API base URL (for testing).
func WithAPIBaseURL(u string) Option {
	return func(c *httpClient) {
		c.apiBaseURL = u
	}
}

// WithStoreBaseURL overrides the storefront base URL (for testing).
func WithStoreBaseURL(u string) Option {
	return func(c *httpClient) {
		c.storeBaseURL = u
	}
}

// WithCountry sets the storefront country code used for price lookups.
func WithCountry(cc string) Option {
	return func(c *httpClient) {
		if cc != "" {
			c.country = cc
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
	apiKey       string
	steamID      string
	country      string
	apiBaseURL   string
	storeBaseURL string
	http         *http.Client
}

// NewClient creates a Steam client for one account.
func NewClient(apiKey, steamID string, opts ...Option) Client {
	c := &httpClient{
		apiKey:       apiKey,
		steamID:      steamID,
		country:      "BR",
		apiBaseURL:   "https://api.steampowered.com",
		storeBaseURL: "https://store.steampowered.com",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// retryableStatusCode returns true if the HTTP status code should trigger a retry.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable
}

// retryDo executes a GET with exponential backoff on transient failures.
func (c *httpClient) retryDo(ctx context.Context, reqURL string) ([]byte, int, error) {
	const maxAttempts = 3
	backoff := 1 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, 0, eris.Wrap(err, "steam: create request")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			if attempt < maxAttempts {
				select {
				case <-ctx.Done():
					return nil, 0, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
				continue
			}
			return nil, 0, lastErr
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, resp.StatusCode, eris.Wrap(readErr, "steam: read response body")
		}

		if retryableStatusCode(resp.StatusCode) && attempt < maxAttempts {
			lastErr = eris.Errorf("steam: status %d: %s", resp.StatusCode, string(body))
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}

		return body, resp.StatusCode, nil
	}

	return nil, 0, lastErr
}

func (c *httpClient) Wishlist(ctx context.Context) ([]int64, error) {
	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("steamid", c.steamID)
	reqURL := fmt.Sprintf("%s/IWishlistService/GetWishlist/v1/?%s", c.apiBaseURL, q.Encode())

	body, status, err := c.retryDo(ctx, reqURL)
	if err != nil {
		return nil, eris.Wrap(err, "steam: fetch wishlist")
	}
	if status != http.StatusOK {
		return nil, eris.Errorf("steam: wishlist status %d: %s", status, string(body))
	}

	var payload struct {
		Response struct {
			Items []struct {
				AppID int64 `json:"appid"`
			} `json:"items"`
		} `json:"response"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, eris.Wrap(err, "steam: decode wishlist")
	}

	ids := make([]int64, 0, len(payload.Response.Items))
	for _, it := range payload.Response.Items {
		ids = append(ids, it.AppID)
	}
	return ids, nil
}

func (c *httpClient) AppDetails(ctx context.Context, appID int64) (*AppDetails, error) {
	q := url.Values{}
	q.Set("appids", strconv.FormatInt(appID, 10))
	q.Set("cc", c.country)
	reqURL := fmt.Sprintf("%s/api/appdetails?%s", c.storeBaseURL, q.Encode())

	body, status, err := c.retryDo(ctx, reqURL)
	if err != nil {
		return nil, eris.Wrapf(err, "steam: fetch appdetails %d", appID)
	}
	if status != http.StatusOK {
		return nil, eris.Errorf("steam: appdetails %d status %d: %s", appID, status, string(body))
	}

	// The response is keyed by the app ID as a string.
	var payload map[string]struct {
		Success bool `json:"success"`
		Data    struct {
			Name          string `json:"name"`
			PriceOverview *struct {
				Final    int64  `json:"final"` // cents
				Currency string `json:"currency"`
			} `json:"price_overview"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, eris.Wrapf(err, "steam: decode appdetails %d", appID)
	}

	entry, ok := payload[strconv.FormatInt(appID, 10)]
	if !ok || !entry.Success {
		return &AppDetails{AppID: appID, Name: unknownAppName}, nil
	}

	details := &AppDetails{AppID: appID, Name: entry.Data.Name}
	if details.Name == "" {
		details.Name = unknownAppName
	}
	if po := entry.Data.PriceOverview; po != nil {
		price := decimal.New(po.Final, -2)
		details.Price = &price
		details.Currency = po.Currency
	}
	return details, nil
}
