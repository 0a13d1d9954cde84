package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/pricewatch/wishlist-cli/internal/model"
)

// ErrUnknownItem is returned when an observation references an item that is
// not in the catalog. The history backfill path checks for it and reports a
// graceful zero-record result instead of aborting the batch.
var ErrUnknownItem = eris.New("store: unknown item")

// ObservationFilter scopes an observation listing. A zero AppID selects the
// full history across all items, most recent first; a set AppID selects that
// item's series in chronological order.
type ObservationFilter struct {
	AppID int64 `json:"app_id,omitempty"`
}

// Store is the persistence interface for the wishlist catalog, the price
// time series and the sync-run audit log.
type Store interface {
	// Catalog
	UpsertItem(ctx context.Context, appID int64, name string) error
	GetItem(ctx context.Context, appID int64) (*model.Item, error)
	ListItems(ctx context.Context) ([]model.Item, error)
	DeleteItem(ctx context.Context, appID int64) (bool, error)

	// Observations
	AppendObservation(ctx context.Context, obs model.Observation) error
	AppendObservations(ctx context.Context, obs []model.Observation) (int, error)
	ListObservations(ctx context.Context, filter ObservationFilter) ([]model.Observation, error)
	DeleteObservationsByBatch(ctx context.Context, observedAt time.Time) (bool, error)

	// Sync-run audit log
	StartSyncRun(ctx context.Context, kind model.SyncKind) (*model.SyncRun, error)
	CompleteSyncRun(ctx context.Context, runID string, summary *model.BatchSummary) error
	FailSyncRun(ctx context.Context, runID string, message string) error
	ListSyncRuns(ctx context.Context, limit int) ([]model.SyncRun, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
