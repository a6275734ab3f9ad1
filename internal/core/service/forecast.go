package service

import (
	"fmt"
	"math"
	"strconv"

	"github.com/vindstrom/solarctl/internal/config"
	"github.com/vindstrom/solarctl/internal/core/domain"
	"github.com/vindstrom/solarctl/internal/core/port"
	"go.uber.org/zap"
)

const recencyBiasHalfSaturationWm2 = 50.0

// ForecastModel turns irradiance forecasts into a production forecast
// by blending the calendar-indexed correction matrix with a geometry
// fallback, then applying a short-window global recency bias (§4.3).
type ForecastModel struct {
	store  port.Store
	cfg    config.Config
	logger *zap.Logger
}

func NewForecastModel(store port.Store, cfg config.Config, logger *zap.Logger) *ForecastModel {
	return &ForecastModel{store: store, cfg: cfg, logger: logger.With(zap.String("component", "forecast"))}
}

// Run forecasts production for every reading that has irradiance but
// no forecast yet, for the given local date.
func (m *ForecastModel) Run(date string) error {
	b, err := m.recencyBias(date)
	if err != nil {
		return domain.NewError(domain.ErrStorage, "forecast.recency_bias", err)
	}

	readings, err := m.readingsNeedingForecast(date)
	if err != nil {
		return domain.NewError(domain.ErrStorage, "forecast.readings", err)
	}

	for _, r := range readings {
		month, day, hour, err := splitHourTS(r.HourTS)
		if err != nil {
			return domain.NewError(domain.ErrProtocol, "forecast.split", err)
		}

		cell, err := m.store.GetCorrectionCell(month, day, hour)
		if err != nil {
			return domain.NewError(domain.ErrStorage, "forecast.get_cell", err)
		}

		c, err := m.cellCorrection(cell, hour, month, r.IrradianceWm2, date)
		if err != nil {
			return err
		}

		prod := math.Max(0, m.cfg.Panel.PeakKW*(r.IrradianceWm2/1000)*c*b)
		confidence := math.Min(1, r.IrradianceWm2/m.cfg.Learning.MinIrradianceWeight)

		if err := m.store.UpdateForecast(r.HourTS, prod, confidence, c); err != nil {
			return domain.NewError(domain.ErrStorage, "forecast.update", err)
		}
	}

	return nil
}

// readingsNeedingForecast returns readings for `date` with irradiance
// set but no forecast recorded yet. The store doesn't give us this
// query directly in the abstract facade, so the model filters rows it
// already fetched for the date via GetReading per-hour; in practice
// the fetch pipeline calls UpsertIrradiance then immediately calls
// Run, so this loop only ever sees the hours it just seeded.
func (m *ForecastModel) readingsNeedingForecast(date string) ([]domain.SolarReading, error) {
	var out []domain.SolarReading
	for h := 0; h < 24; h++ {
		hourTS := fmt.Sprintf("%sT%02d:00", date, h)
		r, err := m.store.GetReading(hourTS)
		if err != nil {
			return nil, err
		}
		if r != nil && r.IrradianceWm2 > 0 && r.CorrectionApplied == nil {
			out = append(out, *r)
		}
	}
	return out, nil
}

// cellCorrection computes the combined correction c for one hour, per
// steps 2-4 of §4.3.
func (m *ForecastModel) cellCorrection(cell *domain.CorrectionCell, hour, month int, irr float64, date string) (float64, error) {
	n := 0
	mc := 1.0
	if cell != nil {
		n = cell.Count
		mc = cell.AvgCorr
	}
	T := m.cfg.Learning.EmpiricalBlendThreshold
	we := 1.0
	if T > 0 {
		we = math.Min(1, float64(n)/T)
	}

	fc, err := m.fallbackCorrection(n, hour, month, irr, date)
	if err != nil {
		return 0, err
	}

	return we*mc + (1-we)*fc, nil
}

// fallbackCorrection implements step 3 of §4.3: back-calculation from
// the most recent realized actual when the cell has no samples, else
// the pure-geometry fallback.
func (m *ForecastModel) fallbackCorrection(n, hour, month int, irr float64, date string) (float64, error) {
	if n == 0 {
		implied, ok, err := m.impliedFromRecentActual(hour, irr, date)
		if err != nil {
			return 0, domain.NewError(domain.ErrStorage, "forecast.implied", err)
		}
		if ok {
			return implied, nil
		}
	}
	return m.geometryFallbackWithTilt(month, hour), nil
}

// impliedFromRecentActual back-calculates a correction from the most
// recent realized actual for the same hour-of-day, accepting it only
// if strictly positive and below a sanity cap of 10.
func (m *ForecastModel) impliedFromRecentActual(hour int, irrForecast float64, date string) (float64, bool, error) {
	// Scan the trailing window for the same hour-of-day; the store
	// doesn't expose a dedicated query for this, so walk back day by
	// day looking for a recorded actual.
	for back := 1; back <= m.cfg.Learning.RecencyBias.WindowDays; back++ {
		d, err := AddDays(date, -back)
		if err != nil {
			return 0, false, err
		}
		hourTS := fmt.Sprintf("%sT%02d:00", d, hour)
		r, err := m.store.GetReading(hourTS)
		if err != nil {
			return 0, false, err
		}
		if r == nil || r.ProdActualKWh == nil || *r.ProdActualKWh <= 0 {
			continue
		}
		peakKW := m.cfg.Panel.PeakKW
		denom := peakKW * (irrForecast / 1000)
		if denom <= 0 {
			continue
		}
		implied := *r.ProdActualKWh / denom
		if implied > 0 && implied < 10 {
			return implied, true, nil
		}
	}
	return 0, false, nil
}

// geometryFallback is the pure-geometry fallback correction from
// §4.3 step 3: season_factor(month) * hour_factor(hour).
func geometryFallback(month, hour int) float64 {
	season := 1 - 0.15*math.Abs(float64(month)-6.5)/5.5
	hf := math.Max(0, math.Cos(math.Pi*(float64(hour)-12)/12))
	hf = math.Max(0.1, hf)
	return season * hf
}

// geometryFallbackWithTilt applies the full formula including panel
// tilt: cos(tilt) * season_factor(month) * hour_factor(hour).
func (m *ForecastModel) geometryFallbackWithTilt(month, hour int) float64 {
	return math.Cos(m.cfg.Panel.TiltDeg*math.Pi/180) * geometryFallback(month, hour)
}

// recencyBias computes the global recency bias scalar b once per
// forecast run (§4.3 step 5).
func (m *ForecastModel) recencyBias(date string) (float64, error) {
	cfg := m.cfg.Learning.RecencyBias
	var sumRW, sumW float64

	for back := 0; back < cfg.WindowDays; back++ {
		d, err := AddDays(date, -back)
		if err != nil {
			return 1, err
		}
		for h := 0; h < 24; h++ {
			hourTS := fmt.Sprintf("%sT%02d:00", d, h)
			r, err := m.store.GetReading(hourTS)
			if err != nil {
				return 1, err
			}
			if r == nil || r.IrradianceWm2 <= 0 || r.CorrectionApplied == nil || r.ProdActualKWh == nil || r.ProdForecastKWh <= 0 {
				continue
			}
			ratio := *r.ProdActualKWh / r.ProdForecastKWh
			w := r.IrradianceWm2 / (r.IrradianceWm2 + recencyBiasHalfSaturationWm2)
			sumRW += ratio * w
			sumW += w
		}
	}

	b := 1.0
	if sumW >= cfg.MinSamples {
		b = sumRW / sumW
	}

	if b < cfg.ClampMin {
		m.logger.Warn("recency bias clamped", zap.Float64("raw", b), zap.Float64("clamped", cfg.ClampMin))
		b = cfg.ClampMin
	} else if b > cfg.ClampMax {
		m.logger.Warn("recency bias clamped", zap.Float64("raw", b), zap.Float64("clamped", cfg.ClampMax))
		b = cfg.ClampMax
	}
	return b, nil
}

// splitHourTS extracts month/day/hour from an "YYYY-MM-DDTHH:00" key.
func splitHourTS(ts string) (month, day, hour int, err error) {
	if len(ts) < 13 {
		return 0, 0, 0, fmt.Errorf("forecast: malformed hour timestamp %q", ts)
	}
	month, err = strconv.Atoi(ts[5:7])
	if err != nil {
		return 0, 0, 0, err
	}
	day, err = strconv.Atoi(ts[8:10])
	if err != nil {
		return 0, 0, 0, err
	}
	hour, err = strconv.Atoi(ts[11:13])
	if err != nil {
		return 0, 0, 0, err
	}
	return month, day, hour, nil
}
