package steam

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWishlist_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/IWishlistService/GetWishlist/v1/", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		assert.Equal(t, "76561198000000000", r.URL.Query().Get("steamid"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"response":{"items":[{"appid":440,"priority":1},{"appid":570,"priority":2}]}}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", "76561198000000000", WithAPIBaseURL(srv.URL))
	ids, err := client.Wishlist(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []int64{440, 570}, ids)
}

func TestWishlist_Empty(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":{}}`))
	}))
	defer srv.Close()

	client := NewClient("k", "s", WithAPIBaseURL(srv.URL))
	ids, err := client.Wishlist(context.Background())

	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestWishlist_Unauthorized(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`Forbidden`))
	}))
	defer srv.Close()

	client := NewClient("bad-key", "s", WithAPIBaseURL(srv.URL))
	_, err := client.Wishlist(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestAppDetails_WithPrice(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/appdetails", r.URL.Path)
		assert.Equal(t, "440", r.URL.Query().Get("appids"))
		assert.Equal(t, "BR", r.URL.Query().Get("cc"))

		w.Write([]byte(`{"440":{"success":true,"data":{"name":"Team Fortress 2","price_overview":{"final":4599,"currency":"BRL"}}}}`))
	}))
	defer srv.Close()

	client := NewClient("k", "s", WithStoreBaseURL(srv.URL))
	details, err := client.AppDetails(context.Background(), 440)

	require.NoError(t, err)
	assert.Equal(t, "Team Fortress 2", details.Name)
	require.NotNil(t, details.Price)
	assert.Equal(t, "45.99", details.Price.StringFixed(2)) // cents to decimal
	assert.Equal(t, "BRL", details.Currency)
}

func TestAppDetails_FreeGame(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"570":{"success":true,"data":{"name":"Dota 2"}}}`))
	}))
	defer srv.Close()

	client := NewClient("k", "s", WithStoreBaseURL(srv.URL))
	details, err := client.AppDetails(context.Background(), 570)

	require.NoError(t, err)
	assert.Equal(t, "Dota 2", details.Name)
	assert.Nil(t, details.Price)
	assert.Empty(t, details.Currency)
}

func TestAppDetails_Delisted(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"999":{"success":false}}`))
	}))
	defer srv.Close()

	client := NewClient("k", "s", WithStoreBaseURL(srv.URL))
	details, err := client.AppDetails(context.Background(), 999)

	// A delisted app is a placeholder, never an error.
	require.NoError(t, err)
	assert.Equal(t, unknownAppName, details.Name)
	assert.Nil(t, details.Price)
}

func TestAppDetails_CountryOverride(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "US", r.URL.Query().Get("cc"))
		w.Write([]byte(`{"440":{"success":false}}`))
	}))
	defer srv.Close()

	client := NewClient("k", "s", WithStoreBaseURL(srv.URL), WithCountry("US"))
	_, err := client.AppDetails(context.Background(), 440)
	require.NoError(t, err)
}

func TestRetryDo_RecoversFromTransientError(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"response":{"items":[{"appid":440}]}}`))
	}))
	defer srv.Close()

	client := NewClient("k", "s", WithAPIBaseURL(srv.URL))
	ids, err := client.Wishlist(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []int64{440}, ids)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestRetryDo_NonRetryableStatusReturnsImmediately(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient("k", "s", WithAPIBaseURL(srv.URL))
	_, err := client.Wishlist(context.Background())

	require.Error(t, err)
	assert.Equal(t, int32(1), attempts.Load())
}
