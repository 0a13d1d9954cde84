// Package syncer drives end-to-end fetch cycles: wishlist enumeration,
// per-item price lookups, historical backfill, and reconciliation.
package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pricewatch/wishlist-cli/internal/model"
	"github.com/pricewatch/wishlist-cli/internal/reconcile"
	"github.com/pricewatch/wishlist-cli/internal/store"
	"github.com/pricewatch/wishlist-cli/pkg/itad"
	"github.com/pricewatch/wishlist-cli/pkg/steam"
)

// Progress is invoked after each processed item with the running completed
// count, the total, and that item's result.
type Progress func(completed, total int, result model.ItemResult)

// Options tunes a Syncer.
type Options struct {
	// HistoryMonths bounds how far back aggregator backfill reaches.
	HistoryMonths int
	// HistoryDelay is the courtesy pause between consecutive per-item
	// history requests. Price-only lookups are not delayed.
	HistoryDelay time.Duration
}

// Syncer runs sync cycles strictly sequentially: one outstanding external
// request at a time. Wishlists are small and the aggregator rate-sensitive,
// so there is nothing to win by fanning out.
type Syncer struct {
	store  store.Store
	steam  steam.Client
	itad   itad.Client
	engine *reconcile.Engine
	opts   Options
}

// New creates a Syncer.
func New(st store.Store, steamClient steam.Client, itadClient itad.Client, opts Options) *Syncer {
	if opts.HistoryMonths <= 0 {
		opts.HistoryMonths = 12
	}
	return &Syncer{
		store:  st,
		steam:  steamClient,
		itad:   itadClient,
		engine: reconcile.New(st),
		opts:   opts,
	}
}

// SyncWishlist runs one wishlist cycle: enumerate wishlist app IDs, fetch
// the current price for each, and merge every reading under one shared batch
// timestamp. A failed lookup is counted per item and never aborts the cycle;
// only a wishlist-enumeration failure or a store failure is fatal.
func (s *Syncer) SyncWishlist(ctx context.Context, progress Progress) (*model.BatchSummary, error) {
	run, err := s.store.StartSyncRun(ctx, model.SyncKindWishlist)
	if err != nil {
		return nil, eris.Wrap(err, "syncer: start wishlist run")
	}
	log := zap.L().With(zap.String("run_id", run.ID))

	ids, err := s.steam.Wishlist(ctx)
	if err != nil {
		s.failRun(ctx, run.ID, err)
		return nil, eris.Wrap(err, "syncer: fetch wishlist")
	}
	log.Info("wishlist fetched", zap.Int("items", len(ids)))

	batchTime := model.BatchTime(run.StartedAt)
	summary := &model.BatchSummary{Kind: model.SyncKindWishlist, BatchTime: batchTime}

	for i, appID := range ids {
		result := model.PriceResult{AppID: appID, Name: unknownName(appID)}
		details, err := s.steam.AppDetails(ctx, appID)
		if err != nil {
			result.Err = err
		} else {
			result.Name = details.Name
			result.Price = details.Price
			result.Currency = details.Currency
		}

		merged, err := s.engine.MergePriceBatch(ctx, []model.PriceResult{result}, batchTime)
		if err != nil {
			s.failRun(ctx, run.ID, err)
			return nil, err
		}
		r := merged.Results[0]
		summary.Add(r)
		if progress != nil {
			progress(i+1, len(ids), r)
		}
	}

	if err := s.store.CompleteSyncRun(ctx, run.ID, summary); err != nil {
		return nil, eris.Wrap(err, "syncer: complete wishlist run")
	}
	log.Info("wishlist cycle done",
		zap.Int("total", summary.Total),
		zap.Int("successful", summary.Successful),
	)
	return summary, nil
}

// SyncHistory backfills aggregator price history for every catalog item,
// pausing between consecutive history requests. Per-item lookup and network
// failures are captured in the summary; the cycle keeps going.
func (s *Syncer) SyncHistory(ctx context.Context, progress Progress) (*model.BatchSummary, error) {
	items, err := s.store.ListItems(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "syncer: list items")
	}

	run, err := s.store.StartSyncRun(ctx, model.SyncKindHistory)
	if err != nil {
		return nil, eris.Wrap(err, "syncer: start history run")
	}
	log := zap.L().With(zap.String("run_id", run.ID))

	since := run.StartedAt.AddDate(0, -s.opts.HistoryMonths, 0)
	summary := &model.BatchSummary{Kind: model.SyncKindHistory, BatchTime: model.BatchTime(run.StartedAt)}

	for i, it := range items {
		if i > 0 && s.opts.HistoryDelay > 0 {
			select {
			case <-ctx.Done():
				s.failRun(ctx, run.ID, ctx.Err())
				return nil, eris.Wrap(ctx.Err(), "syncer: history cycle cancelled")
			case <-time.After(s.opts.HistoryDelay):
			}
		}

		r, err := s.historyForItem(ctx, it.AppID, it.Name, since)
		if err != nil {
			s.failRun(ctx, run.ID, err)
			return nil, err
		}
		summary.Add(r)
		if progress != nil {
			progress(i+1, len(items), r)
		}
	}

	if err := s.store.CompleteSyncRun(ctx, run.ID, summary); err != nil {
		return nil, eris.Wrap(err, "syncer: complete history run")
	}
	log.Info("history cycle done",
		zap.Int("total", summary.Total),
		zap.Int("successful", summary.Successful),
		zap.Int("records", summary.Records),
	)
	return summary, nil
}

// SyncHistoryForItem backfills a single catalog item.
func (s *Syncer) SyncHistoryForItem(ctx context.Context, appID int64) (model.ItemResult, error) {
	item, err := s.store.GetItem(ctx, appID)
	if err != nil {
		return model.ItemResult{}, eris.Wrapf(err, "syncer: get item %d", appID)
	}
	if item == nil {
		return model.ItemResult{
			AppID:   appID,
			Message: fmt.Sprintf("item %d not in catalog", appID),
		}, nil
	}

	since := time.Now().UTC().AddDate(0, -s.opts.HistoryMonths, 0)
	return s.historyForItem(ctx, item.AppID, item.Name, since)
}

// historyForItem resolves the aggregator ID and merges that item's price
// events. Lookup misses and transient network failures come back as
// per-item results; only store failures return an error.
func (s *Syncer) historyForItem(ctx context.Context, appID int64, name string, since time.Time) (model.ItemResult, error) {
	gameID, err := s.itad.LookupGameID(ctx, appID)
	if err != nil {
		return model.ItemResult{
			AppID:   appID,
			Name:    name,
			Message: fmt.Sprintf("lookup failed: %v", err),
		}, nil
	}
	if gameID == "" {
		return model.ItemResult{
			AppID:   appID,
			Name:    name,
			Message: fmt.Sprintf("%s not found on aggregator", name),
		}, nil
	}

	events, err := s.itad.PriceHistory(ctx, gameID, since)
	if err != nil {
		return model.ItemResult{
			AppID:   appID,
			Name:    name,
			Message: fmt.Sprintf("history fetch failed: %v", err),
		}, nil
	}

	return s.engine.MergeHistory(ctx, appID, name, toPriceEvents(events))
}

func (s *Syncer) failRun(ctx context.Context, runID string, cause error) {
	// Detach from cancellation so an aborted cycle still gets its audit row.
	ctx = context.WithoutCancel(ctx)
	if err := s.store.FailSyncRun(ctx, runID, cause.Error()); err != nil {
		zap.L().Warn("failed to record sync run failure",
			zap.String("run_id", runID), zap.Error(err))
	}
}

func toPriceEvents(events []itad.PriceEvent) []model.PriceEvent {
	out := make([]model.PriceEvent, 0, len(events))
	for _, ev := range events {
		amount := ev.Amount
		out = append(out, model.PriceEvent{
			ObservedAt: ev.Timestamp,
			Price:      &amount,
			Currency:   ev.Currency,
		})
	}
	return out
}

func unknownName(appID int64) string {
	return fmt.Sprintf("app %d", appID)
}
