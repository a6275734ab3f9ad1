package service

import (
	"context"
	"os"
	"path/filepath"

	"github.com/vindstrom/solarctl/internal/config"
	"github.com/vindstrom/solarctl/internal/core/domain"
	"github.com/vindstrom/solarctl/internal/core/port"
	"go.uber.org/zap"
)

// PriceIngestor normalizes external day-ahead price data into 96
// 15-minute slots per day and persists it (§4.7). The native/hourly
// provider variants themselves live in internal/adapter/price; this
// service only knows the provider's {present, absent} contract.
type PriceIngestor struct {
	provider port.PriceProvider
	store    port.Store
	cfg      config.Config
	logger   *zap.Logger
}

func NewPriceIngestor(provider port.PriceProvider, store port.Store, cfg config.Config, logger *zap.Logger) *PriceIngestor {
	return &PriceIngestor{provider: provider, store: store, cfg: cfg, logger: logger.With(zap.String("component", "price_ingestor"))}
}

// Run fetches today and tomorrow and upserts only the days that are
// present upstream.
func (p *PriceIngestor) Run(ctx context.Context, today string) error {
	tomorrow, err := AddDays(today, 1)
	if err != nil {
		return domain.NewError(domain.ErrProtocol, "price.tomorrow", err)
	}

	for _, date := range []string{today, tomorrow} {
		result, err := p.provider.Fetch(ctx, date, p.cfg.Price.Region)
		if err != nil {
			return domain.NewError(domain.ErrTransport, "price.fetch", err)
		}
		p.archiveRaw(date, result.Raw)
		if !result.Present {
			p.logger.Info("price data not yet published", zap.String("date", date))
			continue
		}
		if len(result.Slots) != 96 {
			return domain.NewError(domain.ErrProtocol, "price.slot_count", nil)
		}
		for _, slot := range result.Slots {
			if err := p.store.UpsertPrice(slot.SlotTS, slot.Price, p.cfg.Price.Region, p.cfg.Price.Currency); err != nil {
				return domain.NewError(domain.ErrStorage, "price.upsert", err)
			}
		}
	}
	return nil
}

// archiveRaw writes the provider's verbatim response body to
// <raw_archive_dir>/prices/<date>.json for replay (§4.7, §6). Best
// effort: a failure here is logged and dropped, never returned as a
// pipeline error.
func (p *PriceIngestor) archiveRaw(date string, raw []byte) {
	if p.cfg.RawArchiveDir == "" || len(raw) == 0 {
		return
	}
	dir := filepath.Join(p.cfg.RawArchiveDir, "prices")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		p.logger.Warn("raw price archive: mkdir failed", zap.Error(err))
		return
	}
	path := filepath.Join(dir, date+".json")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		p.logger.Warn("raw price archive: write failed", zap.Error(err))
	}
}
