// Package series answers windowed time-series queries over an item's price
// observations for chart display.
package series

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/pricewatch/wishlist-cli/internal/model"
	"github.com/pricewatch/wishlist-cli/internal/store"
)

// Status classifies a windowed query outcome so callers can tell "no data
// yet" apart from "data exists but nothing priced in this window".
type Status string

const (
	StatusOK Status = "ok"
	// StatusNoObservations means the item has no observations at all.
	StatusNoObservations Status = "no_observations"
	// StatusNoPrices means the windowed series carries no usable prices:
	// every point is null-priced or all prices are zero.
	StatusNoPrices Status = "no_prices"
)

// Point is one chartable price reading.
type Point struct {
	ObservedAt time.Time        `json:"observed_at"`
	Price      *decimal.Decimal `json:"price"`
	Currency   string           `json:"currency,omitempty"`
	// Anchor marks the synthesized window-start point carrying the last
	// known price forward into the window.
	Anchor bool `json:"anchor,omitempty"`
}

// Result is a windowed, anchored series sorted ascending by time.
type Result struct {
	AppID  int64        `json:"app_id"`
	Period model.Period `json:"period"`
	Status Status       `json:"status"`
	Points []Point      `json:"points"`
}

// Service runs windowed queries against a store.
type Service struct {
	store store.Store
}

// New creates a Service reading from the given store.
func New(st store.Store) *Service {
	return &Service{store: st}
}

// Window returns the item's observations inside [now-period, now], plus one
// anchor point: the most recent observation strictly before the window
// start, re-stamped to the start boundary. The anchor guarantees the series
// opens with a known price even when no fetch landed inside the window; if
// nothing precedes the window, no anchor is synthesized.
func (s *Service) Window(ctx context.Context, appID int64, period model.Period, now time.Time) (*Result, error) {
	obs, err := s.store.ListObservations(ctx, store.ObservationFilter{AppID: appID})
	if err != nil {
		return nil, eris.Wrapf(err, "series: list observations for item %d", appID)
	}

	res := &Result{AppID: appID, Period: period}
	if len(obs) == 0 {
		res.Status = StatusNoObservations
		return res, nil
	}

	start, bounded := period.Start(now)
	var anchor *Point
	for _, o := range obs {
		p := Point{ObservedAt: o.ObservedAt, Price: o.Price, Currency: o.Currency}
		if !bounded {
			res.Points = append(res.Points, p)
			continue
		}
		switch {
		case o.ObservedAt.Before(start):
			// Observations arrive in ascending order, so the last one
			// seen before the boundary is the anchor candidate.
			p.ObservedAt = start
			p.Anchor = true
			anchor = &p
		case !o.ObservedAt.After(now):
			res.Points = append(res.Points, p)
		}
	}
	if anchor != nil {
		res.Points = append([]Point{*anchor}, res.Points...)
	}

	res.Status = StatusOK
	if !hasPrices(res.Points) {
		res.Status = StatusNoPrices
	}
	return res, nil
}

// hasPrices reports whether any point carries a non-zero price.
func hasPrices(points []Point) bool {
	sum := decimal.Zero
	for _, p := range points {
		if p.Price != nil {
			sum = sum.Add(*p.Price)
		}
	}
	return !sum.IsZero()
}
