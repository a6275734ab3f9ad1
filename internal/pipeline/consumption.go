package pipeline

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/vindstrom/solarctl/internal/core/domain"
	"github.com/vindstrom/solarctl/internal/core/port"
	"github.com/vindstrom/solarctl/internal/core/service"
)

// ConsumptionPipeline closes the telemetry loop: it turns the last
// hour's energy-snapshot deltas into a realized hourly consumption
// reading and a realized PV actual, falling back to the driver's
// instantaneous metrics when snapshots are missing (§4.10's
// "consumption" row; dataflow: "telemetry snapshots → hourly deltas →
// actuals → learner").
type ConsumptionPipeline struct {
	store   port.Store
	weather port.WeatherProvider
	driver  port.InverterDriver
	clock   *service.Clock
	logger  *zap.Logger
}

func NewConsumptionPipeline(store port.Store, weather port.WeatherProvider, driver port.InverterDriver, clock *service.Clock, logger *zap.Logger) *ConsumptionPipeline {
	return &ConsumptionPipeline{store: store, weather: weather, driver: driver, clock: clock, logger: logger.With(zap.String("pipeline", domain.PipelineConsumption))}
}

func (p *ConsumptionPipeline) Run(ctx context.Context) error {
	now := p.clock.Now()
	hourEnd, err := service.HourStart(now)
	if err != nil {
		return domain.NewError(domain.ErrProtocol, "consumption.hour_end", err)
	}
	hourStart, err := service.AddHours(hourEnd, -1)
	if err != nil {
		return domain.NewError(domain.ErrProtocol, "consumption.hour_start", err)
	}

	temp, tempErr := p.weather.FetchCurrentTemperature(ctx)
	if tempErr != nil {
		p.logger.Warn("current temperature unavailable", zap.Error(tempErr))
	}

	end, err := p.store.GetSnapshotAtOrBefore(hourEnd)
	if err != nil {
		return domain.NewError(domain.ErrStorage, "consumption.snapshot_end", err)
	}
	start, err := p.store.GetSnapshotAtOrBefore(hourStart)
	if err != nil {
		return domain.NewError(domain.ErrStorage, "consumption.snapshot_start", err)
	}

	var watts, pvKWh float64
	var source domain.ConsumptionSource
	if end != nil && start != nil && end.TS != start.TS {
		loadDelta := math.Max(0, end.LoadKWh-start.LoadKWh)
		pvKWh = math.Max(0, end.PVKWh-start.PVKWh)
		watts = loadDelta * 1000
		source = domain.SourceInverterDelta
	} else {
		metrics, err := p.driver.GetMetrics()
		if err != nil {
			return domain.NewError(domain.ErrTransport, "consumption.instantaneous", err)
		}
		watts = metrics.ConsumptionW
		pvKWh = metrics.SolarW / 1000
		source = domain.SourceInverterInstant
	}

	var tempPtr *float64
	if tempErr == nil {
		tempPtr = &temp
	}
	if err := p.store.UpsertConsumption(hourStart, watts, tempPtr, source); err != nil {
		return domain.NewError(domain.ErrStorage, "consumption.upsert", err)
	}
	if err := p.store.UpdateActual(hourStart, pvKWh); err != nil {
		return domain.NewError(domain.ErrStorage, "consumption.update_actual", err)
	}
	return nil
}
