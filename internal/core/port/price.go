package port

import (
	"context"

	"github.com/vindstrom/solarctl/internal/core/domain"
)

// PriceFetchResult is the provider contract's return value: either the
// full day is present, or it is absent (e.g. next-day data not yet
// published upstream).
type PriceFetchResult struct {
	Present bool
	Slots   []domain.PriceSlot // exactly 96 when Present
	Raw     []byte             // archived verbatim for replay
}

// PriceProvider fetches one calendar day of spot prices for a region.
type PriceProvider interface {
	Fetch(ctx context.Context, date string, region string) (PriceFetchResult, error)
}
