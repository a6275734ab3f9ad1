package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/vindstrom/solarctl/internal/core/domain"
	"github.com/vindstrom/solarctl/internal/core/port"
	"github.com/vindstrom/solarctl/internal/core/service"
)

// SnapshotPipeline reads the inverter's daily-cumulative energy
// counters and records one row (§4.10's "snapshot" row). It is the
// only pipeline that still runs when data_collection_only is set.
type SnapshotPipeline struct {
	driver port.InverterDriver
	store  port.Store
	clock  *service.Clock
	logger *zap.Logger
}

func NewSnapshotPipeline(driver port.InverterDriver, store port.Store, clock *service.Clock, logger *zap.Logger) *SnapshotPipeline {
	return &SnapshotPipeline{driver: driver, store: store, clock: clock, logger: logger.With(zap.String("pipeline", domain.PipelineSnapshot))}
}

func (p *SnapshotPipeline) Run(ctx context.Context) error {
	totals, err := p.driver.GetEnergyTotals()
	if err != nil {
		return domain.NewError(domain.ErrTransport, "snapshot.energy_totals", err)
	}
	ts := p.clock.Now()
	if err := p.store.UpsertEnergySnapshot(ts, totals.PVTodayKWh, totals.LoadKWh, totals.GridInKWh, totals.GridOutKWh); err != nil {
		return domain.NewError(domain.ErrStorage, "snapshot.upsert", err)
	}
	return nil
}
