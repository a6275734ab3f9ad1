package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/vindstrom/solarctl/internal/config"
	"github.com/vindstrom/solarctl/internal/core/domain"
	"github.com/vindstrom/solarctl/internal/core/port"
	"github.com/vindstrom/solarctl/internal/core/service"
)

// BatteryPipeline fetches prices, estimates consumption, reads the
// live SOC, and replans the rolling schedule (§4.10's "battery" row).
type BatteryPipeline struct {
	priceIngestor *service.PriceIngestor
	estimator     *service.ConsumptionEstimator
	optimizer     *service.Optimizer
	store         port.Store
	weather       port.WeatherProvider
	driver        port.InverterDriver
	clock         *service.Clock
	cfg           config.Config
	logger        *zap.Logger
}

func NewBatteryPipeline(priceIngestor *service.PriceIngestor, estimator *service.ConsumptionEstimator, optimizer *service.Optimizer,
	store port.Store, weather port.WeatherProvider, driver port.InverterDriver, clock *service.Clock, cfg config.Config, logger *zap.Logger) *BatteryPipeline {
	return &BatteryPipeline{
		priceIngestor: priceIngestor, estimator: estimator, optimizer: optimizer, store: store,
		weather: weather, driver: driver, clock: clock, cfg: cfg, logger: logger.With(zap.String("pipeline", domain.PipelineBattery)),
	}
}

func (p *BatteryPipeline) Run(ctx context.Context) error {
	today := p.clock.Today()
	if err := p.priceIngestor.Run(ctx, today); err != nil {
		return err
	}

	todayTemps, yesterdayTemps := p.tempLookups(ctx, today)
	consumption, err := p.estimator.Estimate(today, todayTemps, yesterdayTemps)
	if err != nil {
		return err
	}

	var solarW [24]float64
	for h := 0; h < 24; h++ {
		r, err := p.storeReadingForHour(today, h)
		if err == nil && r != nil {
			solarW[h] = r.ProdForecastKWh * 1000
		}
	}

	var startSOC *float64
	state, err := p.driver.GetState()
	if err != nil {
		p.logger.Warn("live SOC unavailable, optimizer will use min_soc as start", zap.Error(err))
	} else {
		soc := state.SOCPercent
		startSOC = &soc
	}

	now := p.clock.Now()
	from, err := service.HourStart(now)
	if err != nil {
		return domain.NewError(domain.ErrProtocol, "battery.from", err)
	}
	to, err := service.AddHours(from, 24)
	if err != nil {
		return domain.NewError(domain.ErrProtocol, "battery.to", err)
	}

	_, err = p.optimizer.Run(service.OptimizerInput{
		From: from, To: to,
		SolarForecastW:  solarW,
		ConsumptionW:    consumption,
		StartSOCPercent: startSOC,
	})
	return err
}

func (p *BatteryPipeline) storeReadingForHour(date string, hour int) (*domain.SolarReading, error) {
	hourTS := service.HourTS(date, hour)
	return p.store.GetReading(hourTS)
}

// tempLookups builds today's forecast and yesterday's realized
// hourly temperature maps the heating/cooling sensitivity path of
// §4.6 needs. Either side missing degrades to the plain
// yesterday-watts estimate rather than failing the pipeline.
func (p *BatteryPipeline) tempLookups(ctx context.Context, today string) (service.HourlyTempLookup, service.HourlyTempLookup) {
	todayTemps := service.HourlyTempLookup{}
	forecast, err := p.weather.FetchTemperatureForecast(ctx, today)
	if err != nil {
		p.logger.Warn("today's temperature forecast unavailable", zap.Error(err))
	} else {
		for _, h := range forecast {
			hour, err := service.HourOfDay(h.HourTS)
			if err == nil {
				todayTemps[hour] = h.TempC
			}
		}
	}

	yesterdayTemps := service.HourlyTempLookup{}
	yesterday, err := service.AddDays(today, -1)
	if err != nil {
		return todayTemps, yesterdayTemps
	}
	rows, err := p.store.GetConsumptionForRange(yesterday+"T00:00", today+"T00:00")
	if err != nil {
		p.logger.Warn("yesterday's realized temperature unavailable", zap.Error(err))
		return todayTemps, yesterdayTemps
	}
	for _, r := range rows {
		if r.OutdoorTemp == nil {
			continue
		}
		hour, err := service.HourOfDay(r.HourTS)
		if err == nil {
			yesterdayTemps[hour] = *r.OutdoorTemp
		}
	}
	return todayTemps, yesterdayTemps
}
