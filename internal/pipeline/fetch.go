package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/vindstrom/solarctl/internal/core/domain"
	"github.com/vindstrom/solarctl/internal/core/port"
	"github.com/vindstrom/solarctl/internal/core/service"
)

// FetchPipeline fetches the irradiance forecast, seeds solar readings
// for the upcoming horizon, and runs the forecast model over them
// (§4.10's "fetch" row).
type FetchPipeline struct {
	weather  port.WeatherProvider
	store    port.Store
	forecast *service.ForecastModel
	clock    *service.Clock
	logger   *zap.Logger
}

func NewFetchPipeline(weather port.WeatherProvider, store port.Store, forecast *service.ForecastModel, clock *service.Clock, logger *zap.Logger) *FetchPipeline {
	return &FetchPipeline{weather: weather, store: store, forecast: forecast, clock: clock, logger: logger.With(zap.String("pipeline", domain.PipelineFetch))}
}

func (p *FetchPipeline) Run(ctx context.Context) error {
	today := p.clock.Today()

	hours, err := p.weather.FetchIrradianceForecast(ctx, today)
	if err != nil {
		return domain.NewError(domain.ErrTransport, "fetch.irradiance", err)
	}

	for _, h := range hours {
		if err := p.store.UpsertIrradiance(h.HourTS, h.IrradianceWm2); err != nil {
			return domain.NewError(domain.ErrStorage, "fetch.upsert_irradiance", err)
		}
	}

	tomorrow, err := service.AddDays(today, 1)
	if err != nil {
		return domain.NewError(domain.ErrProtocol, "fetch.tomorrow", err)
	}
	tomorrowHours, err := p.weather.FetchIrradianceForecast(ctx, tomorrow)
	if err != nil {
		p.logger.Warn("tomorrow's irradiance not available yet", zap.Error(err))
	} else {
		for _, h := range tomorrowHours {
			if err := p.store.UpsertIrradiance(h.HourTS, h.IrradianceWm2); err != nil {
				return domain.NewError(domain.ErrStorage, "fetch.upsert_irradiance", err)
			}
		}
	}

	if err := p.forecast.Run(today); err != nil {
		return err
	}
	if err := p.forecast.Run(tomorrow); err != nil {
		p.logger.Warn("forecast for tomorrow failed", zap.Error(err))
	}
	return nil
}
