package syncer

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricewatch/wishlist-cli/internal/model"
	"github.com/pricewatch/wishlist-cli/internal/store"
	"github.com/pricewatch/wishlist-cli/pkg/itad"
	"github.com/pricewatch/wishlist-cli/pkg/steam"
)

// fakeSteam serves canned wishlist and appdetails responses.
type fakeSteam struct {
	wishlist    []int64
	wishlistErr error
	details     map[int64]*steam.AppDetails
	detailErrs  map[int64]error
}

func (f *fakeSteam) Wishlist(ctx context.Context) ([]int64, error) {
	return f.wishlist, f.wishlistErr
}

func (f *fakeSteam) AppDetails(ctx context.Context, appID int64) (*steam.AppDetails, error) {
	if err, ok := f.detailErrs[appID]; ok {
		return nil, err
	}
	if d, ok := f.details[appID]; ok {
		return d, nil
	}
	return &steam.AppDetails{AppID: appID, Name: "Unknown App"}, nil
}

// fakeITAD resolves canned game IDs and history events.
type fakeITAD struct {
	gameIDs    map[int64]string
	lookupErrs map[int64]error
	history    map[string][]itad.PriceEvent
	historyErr error
	calls      int
}

func (f *fakeITAD) LookupGameID(ctx context.Context, appID int64) (string, error) {
	f.calls++
	if err, ok := f.lookupErrs[appID]; ok {
		return "", err
	}
	return f.gameIDs[appID], nil
}

func (f *fakeITAD) PriceHistory(ctx context.Context, gameID string, since time.Time) ([]itad.PriceEvent, error) {
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.history[gameID], nil
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestSyncWishlist_FullCycle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	fs := &fakeSteam{
		wishlist: []int64{10, 20},
		details: map[int64]*steam.AppDetails{
			10: {AppID: 10, Name: "First", Price: decPtr("19.99"), Currency: "BRL"},
			20: {AppID: 20, Name: "Second", Price: nil},
		},
	}
	s := New(st, fs, &fakeITAD{}, Options{})

	var progressCalls []model.ItemResult
	summary, err := s.SyncWishlist(ctx, func(completed, total int, r model.ItemResult) {
		assert.Equal(t, 2, total)
		progressCalls = append(progressCalls, r)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 2, summary.Successful)
	assert.Len(t, progressCalls, 2)

	// Every observation in the cycle shares the run's batch stamp.
	obs, err := st.ListObservations(ctx, store.ObservationFilter{})
	require.NoError(t, err)
	require.Len(t, obs, 2)
	assert.True(t, obs[0].ObservedAt.Equal(summary.BatchTime))
	assert.True(t, obs[1].ObservedAt.Equal(summary.BatchTime))

	runs, err := st.ListSyncRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.SyncRunComplete, runs[0].Status)
	assert.Equal(t, model.SyncKindWishlist, runs[0].Kind)
}

func TestSyncWishlist_PartialFailure(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	fs := &fakeSteam{
		wishlist: []int64{10, 20, 30},
		details: map[int64]*steam.AppDetails{
			10: {AppID: 10, Name: "First", Price: decPtr("10.00"), Currency: "BRL"},
			30: {AppID: 30, Name: "Third", Price: decPtr("30.00"), Currency: "BRL"},
		},
		detailErrs: map[int64]error{20: errors.New("storefront: 502")},
	}
	s := New(st, fs, &fakeITAD{}, Options{})

	summary, err := s.SyncWishlist(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.Successful)
	assert.Equal(t, 2, summary.Records)
	assert.Contains(t, summary.Results[1].Message, "price lookup failed")

	// The healthy items landed despite the bad one.
	obs, err := st.ListObservations(ctx, store.ObservationFilter{})
	require.NoError(t, err)
	assert.Len(t, obs, 2)
}

func TestSyncWishlist_EnumerationFailureIsFatal(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	fs := &fakeSteam{wishlistErr: errors.New("steam: wishlist status 503")}
	s := New(st, fs, &fakeITAD{}, Options{})

	_, err := s.SyncWishlist(ctx, nil)
	require.Error(t, err)

	runs, err := st.ListSyncRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.SyncRunFailed, runs[0].Status)
	assert.Contains(t, runs[0].Error, "503")
}

func TestSyncHistory_BackfillsCatalog(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertItem(ctx, 10, "First"))
	require.NoError(t, st.UpsertItem(ctx, 20, "Second"))

	fi := &fakeITAD{
		gameIDs: map[int64]string{10: "game-10", 20: "game-20"},
		history: map[string][]itad.PriceEvent{
			"game-10": {
				{Timestamp: time.Now().AddDate(0, -2, 0), Amount: decimal.RequireFromString("19.99"), Currency: "BRL"},
				{Timestamp: time.Now().AddDate(0, -1, 0), Amount: decimal.RequireFromString("9.99"), Currency: "BRL"},
			},
		},
	}
	s := New(st, &fakeSteam{}, fi, Options{})

	summary, err := s.SyncHistory(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 2, summary.Records)

	obs, err := st.ListObservations(ctx, store.ObservationFilter{AppID: 10})
	require.NoError(t, err)
	require.Len(t, obs, 2)
	assert.Equal(t, model.SourceHistory, obs[0].Source)

	// The item without history gets a zero-record entry, not a failure.
	var second model.ItemResult
	for _, r := range summary.Results {
		if r.AppID == 20 {
			second = r
		}
	}
	assert.Contains(t, second.Message, "no price history")
}

func TestSyncHistory_LookupMissIsPerItem(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertItem(ctx, 10, "Obscure Game"))

	fi := &fakeITAD{gameIDs: map[int64]string{}} // lookup resolves to ""
	s := New(st, &fakeSteam{}, fi, Options{})

	summary, err := s.SyncHistory(ctx, nil)
	require.NoError(t, err)
	require.Len(t, summary.Results, 1)
	assert.False(t, summary.Results[0].Success)
	assert.Contains(t, summary.Results[0].Message, "not found on aggregator")

	runs, err := st.ListSyncRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.SyncRunComplete, runs[0].Status)
}

func TestSyncHistory_LookupErrorIsPerItem(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertItem(ctx, 10, "Flaky Game"))

	fi := &fakeITAD{lookupErrs: map[int64]error{10: errors.New("itad: status 429")}}
	s := New(st, &fakeSteam{}, fi, Options{})

	summary, err := s.SyncHistory(ctx, nil)
	require.NoError(t, err)
	require.Len(t, summary.Results, 1)
	assert.Contains(t, summary.Results[0].Message, "lookup failed")
}

func TestSyncHistory_CancelledBetweenItems(t *testing.T) {
	st := newTestStore(t)

	require.NoError(t, st.UpsertItem(context.Background(), 10, "First"))
	require.NoError(t, st.UpsertItem(context.Background(), 20, "Second"))

	fi := &fakeITAD{gameIDs: map[int64]string{10: "game-10", 20: "game-20"}}
	s := New(st, &fakeSteam{}, fi, Options{HistoryDelay: time.Hour})

	// Cancel after the first item so the inter-item pause observes it.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := s.SyncHistory(ctx, func(completed, total int, r model.ItemResult) {
		cancel()
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	// First item was processed before the inter-item pause; the run is
	// recorded as failed.
	assert.Equal(t, 1, fi.calls)
	runs, listErr := st.ListSyncRuns(context.Background(), 10)
	require.NoError(t, listErr)
	require.Len(t, runs, 1)
	assert.Equal(t, model.SyncRunFailed, runs[0].Status)
}

func TestSyncHistoryForItem_NotCataloged(t *testing.T) {
	st := newTestStore(t)

	s := New(st, &fakeSteam{}, &fakeITAD{}, Options{})

	result, err := s.SyncHistoryForItem(context.Background(), 777)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "not in catalog")
}

func TestSyncHistoryForItem_Merges(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertItem(ctx, 10, "First"))
	fi := &fakeITAD{
		gameIDs: map[int64]string{10: "game-10"},
		history: map[string][]itad.PriceEvent{
			"game-10": {{Timestamp: time.Now().AddDate(0, -1, 0), Amount: decimal.RequireFromString("5.00"), Currency: "BRL"}},
		},
	}
	s := New(st, &fakeSteam{}, fi, Options{HistoryMonths: 6})

	result, err := s.SyncHistoryForItem(ctx, 10)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Records)
}

func TestNew_DefaultsHistoryMonths(t *testing.T) {
	s := New(newTestStore(t), &fakeSteam{}, &fakeITAD{}, Options{})
	assert.Equal(t, 12, s.opts.HistoryMonths)
}
