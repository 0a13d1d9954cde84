package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ObservationSource records which fetch path produced an observation.
type ObservationSource string

const (
	// SourcePrice is a direct storefront price query stamped with the
	// cycle's shared batch timestamp.
	SourcePrice ObservationSource = "price"
	// SourceHistory is an aggregator price-change event carrying its own
	// server-provided timestamp.
	SourceHistory ObservationSource = "history"
)

// Observation is one price reading for one item at one point in time.
// Observations are append-only: they are never mutated, only inserted or
// removed together with their parent item or batch.
type Observation struct {
	ID         int64             `json:"id"`
	AppID      int64             `json:"app_id"`
	Price      *decimal.Decimal  `json:"price"` // nil = free or unavailable
	Currency   string            `json:"currency,omitempty"`
	ObservedAt time.Time         `json:"observed_at"`
	Source     ObservationSource `json:"source"`
}

// BatchTime normalizes a timestamp for use as a shared batch stamp: UTC,
// truncated to whole seconds so equality survives a round trip through
// either storage driver.
func BatchTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
