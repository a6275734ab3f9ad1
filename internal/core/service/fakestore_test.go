package service

import (
	"fmt"

	"github.com/vindstrom/solarctl/internal/config"
	"github.com/vindstrom/solarctl/internal/core/domain"
)

// testConfig returns a config with plausible values for a 5kW rooftop
// system, used as the baseline for every service test; individual
// tests override only the fields their scenario cares about.
func testConfig() config.Config {
	var cfg config.Config
	cfg.Panel.PeakKW = 5
	cfg.Panel.TiltDeg = 30
	cfg.Learning.MinIrradianceWeight = 400
	cfg.Learning.EmpiricalBlendThreshold = 30
	cfg.Learning.RecencyBias.WindowDays = 14
	cfg.Learning.RecencyBias.MinSamples = 10
	cfg.Learning.RecencyBias.ClampMin = 0.5
	cfg.Learning.RecencyBias.ClampMax = 2.0
	cfg.Battery.CapacityKWh = 10
	cfg.Battery.MaxChargeW = 3000
	cfg.Battery.MaxDischargeW = 3000
	cfg.Battery.Efficiency = 0.9
	cfg.Battery.MinSOC = 10
	cfg.Battery.MaxSOC = 95
	cfg.Grid.SellEnabled = false
	cfg.Grid.SellPriceFactor = 1.0
	cfg.Consumption.Source = "yesterday"
	cfg.Consumption.HeatingSensitivity = 0.03
	cfg.Consumption.Climate = "heating"
	cfg.Consumption.FlatWatts = 500
	cfg.Price.Region = "test"
	cfg.Price.Currency = "EUR"
	cfg.Price.DayAheadHour = 13
	cfg.Price.Source = "native15min"
	return cfg
}

// fakeStore is an in-memory port.Store used across the service test
// files. It keeps just enough state to exercise the forecast/learner/
// smoother/consumption/optimizer/price-ingestor logic without a real
// database.
type fakeStore struct {
	readings    map[string]domain.SolarReading
	cells       map[[3]int]domain.CorrectionCell
	smoothed    map[[2]int]domain.SmoothedCell
	prices      map[string]domain.PriceSlot
	consumption map[string]domain.ConsumptionReading
	snapshots   map[string]domain.EnergySnapshot
	schedule    map[string]domain.ScheduleSlot
	runs        map[string]domain.PipelineRun
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		readings:    map[string]domain.SolarReading{},
		cells:       map[[3]int]domain.CorrectionCell{},
		smoothed:    map[[2]int]domain.SmoothedCell{},
		prices:      map[string]domain.PriceSlot{},
		consumption: map[string]domain.ConsumptionReading{},
		snapshots:   map[string]domain.EnergySnapshot{},
		schedule:    map[string]domain.ScheduleSlot{},
		runs:        map[string]domain.PipelineRun{},
	}
}

func (s *fakeStore) UpsertIrradiance(hourTS string, irrWm2 float64) error {
	r := s.readings[hourTS]
	r.HourTS = hourTS
	r.IrradianceWm2 = irrWm2
	s.readings[hourTS] = r
	return nil
}

func (s *fakeStore) UpdateForecast(hourTS string, prodForecastKWh, confidence, correctionApplied float64) error {
	r := s.readings[hourTS]
	r.HourTS = hourTS
	r.ProdForecastKWh = prodForecastKWh
	r.Confidence = confidence
	c := correctionApplied
	r.CorrectionApplied = &c
	s.readings[hourTS] = r
	return nil
}

func (s *fakeStore) UpdateActual(hourTS string, prodActualKWh float64) error {
	r, ok := s.readings[hourTS]
	if !ok {
		r.HourTS = hourTS
	}
	v := prodActualKWh
	r.ProdActualKWh = &v
	s.readings[hourTS] = r
	return nil
}

func (s *fakeStore) UpdateCorrection(hourTS string, correction float64) error {
	r := s.readings[hourTS]
	c := correction
	r.Correction = &c
	s.readings[hourTS] = r
	return nil
}

func (s *fakeStore) GetUnprocessedActuals() ([]domain.SolarReading, error) {
	var out []domain.SolarReading
	for _, r := range s.readings {
		if r.ProdActualKWh != nil && r.Correction == nil {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) GetReading(hourTS string) (*domain.SolarReading, error) {
	r, ok := s.readings[hourTS]
	if !ok {
		return nil, nil
	}
	cp := r
	return &cp, nil
}

func (s *fakeStore) GetCorrectionCell(month, day, hour int) (*domain.CorrectionCell, error) {
	c, ok := s.cells[[3]int{month, day, hour}]
	if !ok {
		return nil, nil
	}
	cp := c
	return &cp, nil
}

func (s *fakeStore) UpdateCorrectionMatrix(month, day, hour int, avg float64, count int, totalWeight, maxProdKWh float64) error {
	s.cells[[3]int{month, day, hour}] = domain.CorrectionCell{
		Month: month, Day: day, Hour: hour,
		AvgCorr: avg, Count: count, TotalWeight: totalWeight, MaxProdKWh: maxProdKWh,
	}
	return nil
}

func (s *fakeStore) SeedCorrectionMatrix() error { return nil }

func (s *fakeStore) GetReadingsForSmoothing() ([]domain.SolarReading, error) {
	var out []domain.SolarReading
	for _, r := range s.readings {
		if r.Correction != nil {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) UpsertSmoothed(dayOfYear, hour int, avg float64, count int) error {
	s.smoothed[[2]int{dayOfYear, hour}] = domain.SmoothedCell{DayOfYear: dayOfYear, Hour: hour, AvgCorr: avg, Count: count}
	return nil
}

func (s *fakeStore) GetSmoothedCell(dayOfYear, hour int) (*domain.SmoothedCell, error) {
	c, ok := s.smoothed[[2]int{dayOfYear, hour}]
	if !ok {
		return nil, nil
	}
	cp := c
	return &cp, nil
}

func (s *fakeStore) UpsertPrice(slotTS string, price float64, region, currency string) error {
	s.prices[slotTS] = domain.PriceSlot{SlotTS: slotTS, Price: price, Region: region, Currency: currency}
	return nil
}

func (s *fakeStore) GetPricesForRange(from, to string) ([]domain.PriceSlot, error) {
	var out []domain.PriceSlot
	for ts, p := range s.prices {
		if ts >= from && ts < to {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeStore) UpsertConsumption(hourTS string, watts float64, temp *float64, source domain.ConsumptionSource) error {
	s.consumption[hourTS] = domain.ConsumptionReading{HourTS: hourTS, Watts: watts, OutdoorTemp: temp, Source: source}
	return nil
}

func (s *fakeStore) GetConsumptionForRange(from, to string) ([]domain.ConsumptionReading, error) {
	var out []domain.ConsumptionReading
	for ts, r := range s.consumption {
		if ts >= from && ts < to {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) UpsertEnergySnapshot(ts string, pvKWh, loadKWh, gridInKWh, gridOutKWh float64) error {
	s.snapshots[ts] = domain.EnergySnapshot{TS: ts, PVKWh: pvKWh, LoadKWh: loadKWh, GridInKWh: gridInKWh, GridOutKWh: gridOutKWh}
	return nil
}

func (s *fakeStore) GetSnapshotAtOrBefore(ts string) (*domain.EnergySnapshot, error) {
	var best *domain.EnergySnapshot
	for k, v := range s.snapshots {
		if k > ts {
			continue
		}
		if best == nil || k > best.TS {
			cp := v
			best = &cp
		}
	}
	return best, nil
}

func (s *fakeStore) UpsertScheduleBatch(slots []domain.ScheduleSlot) error {
	for _, sl := range slots {
		s.schedule[sl.SlotTS] = sl
	}
	return nil
}

func (s *fakeStore) DeleteScheduleForRange(from, to string) error {
	for ts := range s.schedule {
		if ts >= from && ts < to {
			delete(s.schedule, ts)
		}
	}
	return nil
}

func (s *fakeStore) GetScheduleForRange(from, to string) ([]domain.ScheduleSlot, error) {
	var out []domain.ScheduleSlot
	for ts, sl := range s.schedule {
		if ts >= from && ts < to {
			out = append(out, sl)
		}
	}
	return out, nil
}

func (s *fakeStore) RecordPipelineRun(name string, status domain.PipelineStatus, atTS string) error {
	s.runs[name] = domain.PipelineRun{Name: name, LastRunTS: atTS, LastStatus: status}
	return nil
}

func (s *fakeStore) GetAllPipelineRuns() ([]domain.PipelineRun, error) {
	var out []domain.PipelineRun
	for _, r := range s.runs {
		out = append(out, r)
	}
	return out, nil
}

func (s *fakeStore) Close() error { return nil }

func hourKey(date string, h int) string {
	return fmt.Sprintf("%sT%02d:00", date, h)
}
