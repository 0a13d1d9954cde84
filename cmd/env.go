package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/pricewatch/wishlist-cli/internal/store"
	"github.com/pricewatch/wishlist-cli/internal/syncer"
	"github.com/pricewatch/wishlist-cli/pkg/itad"
	"github.com/pricewatch/wishlist-cli/pkg/steam"
)

// openStore opens the configured store backend. Callers own Close.
func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "", "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
	}
	return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
}

// openMigratedStore opens the store and brings the schema current.
func openMigratedStore(ctx context.Context) (store.Store, error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

// newSyncer wires the external clients and orchestrator from config.
func newSyncer(st store.Store) *syncer.Syncer {
	steamClient := steam.NewClient(cfg.Steam.APIKey, cfg.Steam.SteamID,
		steam.WithAPIBaseURL(cfg.Steam.APIBaseURL),
		steam.WithStoreBaseURL(cfg.Steam.StoreBaseURL),
		steam.WithCountry(cfg.Steam.Country),
	)
	itadClient := itad.NewClient(cfg.ITAD.APIKey,
		itad.WithBaseURL(cfg.ITAD.BaseURL),
		itad.WithCountry(cfg.ITAD.Country),
		itad.WithShopID(cfg.ITAD.ShopID),
		itad.WithRateLimit(cfg.ITAD.RateLimit),
	)
	return syncer.New(st, steamClient, itadClient, syncer.Options{
		HistoryMonths: cfg.Sync.HistoryMonths,
		HistoryDelay:  time.Duration(cfg.Sync.HistoryDelaySecs) * time.Second,
	})
}
