package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceResult is one storefront price lookup, ready for reconciliation.
// Err carries a fetch failure captured by the orchestrator; the engine
// turns it into a failed ItemResult without aborting the batch.
type PriceResult struct {
	AppID    int64
	Name     string
	Price    *decimal.Decimal
	Currency string
	Err      error
}

// PriceEvent is one discrete price-change event from the history
// aggregator, carrying its own server-provided timestamp.
type PriceEvent struct {
	ObservedAt time.Time
	Price      *decimal.Decimal
	Currency   string
}

// ItemResult is the per-item outcome of a reconciliation step.
type ItemResult struct {
	AppID   int64  `json:"app_id"`
	Name    string `json:"name"`
	Success bool   `json:"success"`
	Records int    `json:"records"`
	Message string `json:"message,omitempty"`
}

// BatchSummary aggregates per-item results for one fetch cycle. A partial
// failure never discards progress made on other items.
type BatchSummary struct {
	Kind       SyncKind     `json:"kind"`
	BatchTime  time.Time    `json:"batch_time"`
	Total      int          `json:"total"`
	Successful int          `json:"successful"`
	Records    int          `json:"records"`
	Results    []ItemResult `json:"results"`
}

// Add appends one item result and updates the counters.
func (b *BatchSummary) Add(r ItemResult) {
	b.Total++
	if r.Success {
		b.Successful++
	}
	b.Records += r.Records
	b.Results = append(b.Results, r)
}
