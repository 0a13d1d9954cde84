// Package reconcile merges external fetch results into the store under
// idempotency and referential-integrity guarantees.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pricewatch/wishlist-cli/internal/model"
	"github.com/pricewatch/wishlist-cli/internal/store"
)

// Engine orchestrates writes across the catalog and the observation time
// series. It owns no data itself.
type Engine struct {
	store store.Store
}

// New creates an Engine writing to the given store.
func New(st store.Store) *Engine {
	return &Engine{store: st}
}

// MergePriceBatch merges one current-price fetch cycle. Every result shares
// the single batch timestamp; results that carry a fetch error become failed
// per-item entries without aborting the rest of the batch. This path is also
// how new wishlist items first enter the catalog. Only a store-level failure
// aborts with an error.
func (e *Engine) MergePriceBatch(ctx context.Context, results []model.PriceResult, fetchedAt time.Time) (*model.BatchSummary, error) {
	batchTime := model.BatchTime(fetchedAt)
	summary := &model.BatchSummary{Kind: model.SyncKindWishlist, BatchTime: batchTime}

	for _, r := range results {
		if r.Err != nil {
			summary.Add(model.ItemResult{
				AppID:   r.AppID,
				Name:    r.Name,
				Message: fmt.Sprintf("price lookup failed: %v", r.Err),
			})
			continue
		}

		if err := e.store.UpsertItem(ctx, r.AppID, r.Name); err != nil {
			return nil, eris.Wrapf(err, "reconcile: upsert item %d", r.AppID)
		}
		err := e.store.AppendObservation(ctx, model.Observation{
			AppID:      r.AppID,
			Price:      r.Price,
			Currency:   r.Currency,
			ObservedAt: batchTime,
			Source:     model.SourcePrice,
		})
		if err != nil {
			return nil, eris.Wrapf(err, "reconcile: append observation for item %d", r.AppID)
		}

		summary.Add(model.ItemResult{
			AppID:   r.AppID,
			Name:    r.Name,
			Success: true,
			Records: 1,
		})
	}

	zap.L().Info("price batch merged",
		zap.Time("batch_time", batchTime),
		zap.Int("total", summary.Total),
		zap.Int("successful", summary.Successful),
	)
	return summary, nil
}

// MergeHistory merges aggregator price-change events for one item. Each
// event keeps its own server-provided timestamp. This path never creates
// items: an unknown item or an empty event list yields a graceful
// zero-record result, not an error.
func (e *Engine) MergeHistory(ctx context.Context, appID int64, name string, events []model.PriceEvent) (model.ItemResult, error) {
	if len(events) == 0 {
		return model.ItemResult{
			AppID:   appID,
			Name:    name,
			Message: fmt.Sprintf("no price history for %s", name),
		}, nil
	}

	obs := make([]model.Observation, 0, len(events))
	for _, ev := range events {
		obs = append(obs, model.Observation{
			AppID:      appID,
			Price:      ev.Price,
			Currency:   ev.Currency,
			ObservedAt: ev.ObservedAt.UTC(),
			Source:     model.SourceHistory,
		})
	}

	n, err := e.store.AppendObservations(ctx, obs)
	if err != nil {
		if eris.Is(err, store.ErrUnknownItem) {
			return model.ItemResult{
				AppID:   appID,
				Name:    name,
				Message: fmt.Sprintf("item %d not in catalog", appID),
			}, nil
		}
		return model.ItemResult{}, eris.Wrapf(err, "reconcile: merge history for item %d", appID)
	}

	zap.L().Debug("history merged",
		zap.Int64("app_id", appID),
		zap.Int("records", n),
	)
	return model.ItemResult{
		AppID:   appID,
		Name:    name,
		Success: true,
		Records: n,
		Message: fmt.Sprintf("%d price changes saved for %s", n, name),
	}, nil
}
