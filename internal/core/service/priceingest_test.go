package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vindstrom/solarctl/internal/core/domain"
	"github.com/vindstrom/solarctl/internal/core/port"
	"go.uber.org/zap"
)

type fakePriceProvider struct {
	byDate map[string]port.PriceFetchResult
	err    error
}

func (p *fakePriceProvider) Fetch(ctx context.Context, date string, region string) (port.PriceFetchResult, error) {
	if p.err != nil {
		return port.PriceFetchResult{}, p.err
	}
	r, ok := p.byDate[date]
	if !ok {
		return port.PriceFetchResult{Present: false}, nil
	}
	return r, nil
}

func fullDayOf96(date string, price float64) []domain.PriceSlot {
	out := make([]domain.PriceSlot, 0, 96)
	for h := 0; h < 24; h++ {
		for _, m := range []int{0, 15, 30, 45} {
			ts := fmt.Sprintf("%sT%02d:%02d", date, h, m)
			out = append(out, domain.PriceSlot{SlotTS: ts, Price: price, Region: "test", Currency: "EUR"})
		}
	}
	return out
}

func TestPriceIngestorUpsertsBothPresentDays(t *testing.T) {
	assert := assert.New(t)

	store := newFakeStore()
	cfg := testConfig()

	provider := &fakePriceProvider{byDate: map[string]port.PriceFetchResult{
		"2026-06-15": {Present: true, Slots: fullDayOf96("2026-06-15", 0.10)},
		"2026-06-16": {Present: true, Slots: fullDayOf96("2026-06-16", 0.20)},
	}}

	p := NewPriceIngestor(provider, store, cfg, zap.NewNop())
	err := p.Run(context.Background(), "2026-06-15")
	assert.NoError(err)
	assert.Len(store.prices, 192)
}

func TestPriceIngestorSkipsAbsentDayWithoutError(t *testing.T) {
	assert := assert.New(t)

	store := newFakeStore()
	cfg := testConfig()

	provider := &fakePriceProvider{byDate: map[string]port.PriceFetchResult{
		"2026-06-15": {Present: true, Slots: fullDayOf96("2026-06-15", 0.10)},
		// tomorrow intentionally absent: day-ahead prices not yet published
	}}

	p := NewPriceIngestor(provider, store, cfg, zap.NewNop())
	err := p.Run(context.Background(), "2026-06-15")
	assert.NoError(err)
	assert.Len(store.prices, 96)
}

func TestPriceIngestorErrorsOnWrongSlotCount(t *testing.T) {
	assert := assert.New(t)

	store := newFakeStore()
	cfg := testConfig()

	provider := &fakePriceProvider{byDate: map[string]port.PriceFetchResult{
		"2026-06-15": {Present: true, Slots: []domain.PriceSlot{{SlotTS: "2026-06-15T00:00", Price: 0.1}}},
	}}

	p := NewPriceIngestor(provider, store, cfg, zap.NewNop())
	err := p.Run(context.Background(), "2026-06-15")
	assert.Error(err)
	assert.Equal(domain.ErrProtocol, domain.KindOf(err))
}

func TestPriceIngestorWrapsTransportError(t *testing.T) {
	anErr := assert.AnError
	assert := assert.New(t)

	store := newFakeStore()
	cfg := testConfig()

	provider := &fakePriceProvider{err: anErr}
	p := NewPriceIngestor(provider, store, cfg, zap.NewNop())

	err := p.Run(context.Background(), "2026-06-15")
	assert.Error(err)
	assert.Equal(domain.ErrTransport, domain.KindOf(err))
}
