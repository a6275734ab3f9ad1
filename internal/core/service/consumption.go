package service

import (
	"fmt"
	"math"

	"github.com/vindstrom/solarctl/internal/config"
	"github.com/vindstrom/solarctl/internal/core/domain"
	"github.com/vindstrom/solarctl/internal/core/port"
	"go.uber.org/zap"
)

const (
	consumptionFactorMin = 0.7
	consumptionFactorMax = 1.3
	regressionFloorWatts = 100
)

// HourlyTempLookup maps an hour-of-day to a forecast outdoor
// temperature, used by the optional per-hour regression path.
type HourlyTempLookup map[int]float64

// Regression is a learned per-hour temperature->consumption linear
// model; nil means "no regression available for this hour".
type Regression struct {
	Slope     float64
	Intercept float64
}

// ConsumptionEstimator produces exactly 24 hourly consumption
// estimates for today (§4.6).
type ConsumptionEstimator struct {
	store  port.Store
	cfg    config.Config
	logger *zap.Logger

	// Regressions is an optional per-hour learned regression; nil
	// entries or a nil map fall back to the yesterday*factor or flat
	// strategies. Populated externally (e.g. from a longer-horizon
	// offline fit); no pipeline in this spec trains it, so it is
	// always nil today and every hour uses the yesterday/flat path.
	Regressions map[int]Regression
}

func NewConsumptionEstimator(store port.Store, cfg config.Config, logger *zap.Logger) *ConsumptionEstimator {
	return &ConsumptionEstimator{store: store, cfg: cfg, logger: logger.With(zap.String("component", "consumption"))}
}

// Estimate returns exactly 24 hourly watt estimates for `today`
// (format "YYYY-MM-DD").
func (c *ConsumptionEstimator) Estimate(today string, todayTemps, yesterdayTemps HourlyTempLookup) ([24]float64, error) {
	var out [24]float64
	flat := c.cfg.Consumption.FlatWatts

	if c.cfg.Consumption.Source != "yesterday" {
		for h := 0; h < 24; h++ {
			out[h] = flat
		}
		return out, nil
	}

	yesterday, err := AddDays(today, -1)
	if err != nil {
		return out, domain.NewError(domain.ErrProtocol, "consumption.yesterday", err)
	}

	yRows, err := c.store.GetConsumptionForRange(yesterday+"T00:00", today+"T00:00")
	if err != nil {
		return out, domain.NewError(domain.ErrStorage, "consumption.range", err)
	}
	if len(yRows) == 0 {
		for h := 0; h < 24; h++ {
			out[h] = flat
		}
		return out, nil
	}

	yByHour := make(map[int]float64, len(yRows))
	for _, r := range yRows {
		h, err := HourOfDay(r.HourTS)
		if err != nil {
			continue
		}
		yByHour[h] = r.Watts
	}

	for h := 0; h < 24; h++ {
		out[h] = c.estimateHour(h, yByHour, todayTemps, yesterdayTemps, flat)
	}
	return out, nil
}

func (c *ConsumptionEstimator) estimateHour(h int, yByHour map[int]float64, todayTemps, yesterdayTemps HourlyTempLookup, flat float64) float64 {
	if reg, ok := c.Regressions[h]; ok {
		if tf, ok := todayTemps[h]; ok {
			est := reg.Slope*tf + reg.Intercept
			return clamp(est, regressionFloorWatts, 3*flat)
		}
	}

	yW, ok := yByHour[h]
	if !ok {
		return flat
	}

	tToday, okT := todayTemps[h]
	tYesterday, okY := yesterdayTemps[h]
	if !okT || !okY {
		return yW
	}

	deltaT := tToday - tYesterday
	s := c.cfg.Consumption.HeatingSensitivity
	var factor float64
	if c.cfg.Consumption.Climate == "heating" {
		factor = 1 - deltaT*s
	} else {
		factor = 1 + deltaT*s
	}
	factor = clamp(factor, consumptionFactorMin, consumptionFactorMax)
	return yW * factor
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// HourTS returns the "YYYY-MM-DDTHH:00" key for hour h of date.
func HourTS(date string, h int) string {
	return fmt.Sprintf("%sT%02d:00", date, h)
}
