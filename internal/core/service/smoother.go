package service

import (
	"math"
	"strconv"

	"github.com/vindstrom/solarctl/internal/core/domain"
	"github.com/vindstrom/solarctl/internal/core/port"
	"go.uber.org/zap"
)

const smootherSigmaDays = 3.0
const smootherOffsetDays = 7

// Smoother builds the day-of-year-indexed smoothed matrix by
// Gaussian-weighted cross-day-of-year smoothing of the raw readings
// (§4.5). It never modifies the raw matrix, and is the sole writer of
// smoothed cells. Day 366 (Feb 29) is excluded from its domain.
type Smoother struct {
	store  port.Store
	logger *zap.Logger
}

func NewSmoother(store port.Store, logger *zap.Logger) *Smoother {
	return &Smoother{store: store, logger: logger.With(zap.String("component", "smoother"))}
}

type dayHourKey struct {
	doy, hour int
}

// Run rebuilds the entire smoothed matrix from the readings currently
// available.
func (s *Smoother) Run() error {
	readings, err := s.store.GetReadingsForSmoothing()
	if err != nil {
		return domain.NewError(domain.ErrStorage, "smoother.readings", err)
	}

	byDayHour := make(map[dayHourKey][]domain.SolarReading)
	for _, r := range readings {
		doy, hour, err := dayOfYearAndHour(r.HourTS)
		if err != nil {
			return domain.NewError(domain.ErrProtocol, "smoother.split", err)
		}
		if doy > 365 {
			continue // Feb 29 excluded from the smoothed domain
		}
		k := dayHourKey{doy, hour}
		byDayHour[k] = append(byDayHour[k], r)
	}

	for d := 1; d <= 365; d++ {
		for h := 0; h < 24; h++ {
			avg, count := s.smoothOne(d, h, byDayHour)
			if err := s.store.UpsertSmoothed(d, h, avg, count); err != nil {
				return domain.NewError(domain.ErrStorage, "smoother.upsert", err)
			}
		}
	}
	return nil
}

// smoothOne computes the Gaussian-weighted mean correction for a
// single (day-of-year, hour) cell, gathering contributions from the
// +/-7 day neighborhood.
func (s *Smoother) smoothOne(d, h int, byDayHour map[dayHourKey][]domain.SolarReading) (float64, int) {
	var sumWV, sumW float64
	count := 0

	for off := -smootherOffsetDays; off <= smootherOffsetDays; off++ {
		dPrime := wrapDayOfYear(d + off)
		rows := byDayHour[dayHourKey{dPrime, h}]
		if len(rows) == 0 {
			continue
		}
		dist := circularDistance(d, dPrime, 365)
		gauss := math.Exp(-(dist * dist) / (2 * smootherSigmaDays * smootherSigmaDays))

		for _, r := range rows {
			if r.Correction == nil {
				continue
			}
			prodWeight := 0.1
			if r.ProdActualKWh != nil && *r.ProdActualKWh > 0 {
				prodWeight = math.Min(1, *r.ProdActualKWh/2.0)
			}
			w := gauss * r.Confidence * prodWeight
			sumWV += w * (*r.Correction)
			sumW += w
			count++
		}
	}

	if sumW == 0 {
		return 1.0, 0
	}
	return sumWV / sumW, count
}

// wrapDayOfYear implements `((d - 1) mod 365) + 1` from §4.5 (d here
// is already `day + off`); Go's % on negative numbers needs the extra
// +365 before reducing.
func wrapDayOfYear(d int) int {
	m := (d - 1) % 365
	if m < 0 {
		m += 365
	}
	return m + 1
}

func circularDistance(a, b, period int) float64 {
	diff := math.Abs(float64(a - b))
	return math.Min(diff, float64(period)-diff)
}

// dayOfYearAndHour extracts the day-of-year (1..366) and hour (0..23)
// from an "YYYY-MM-DDTHH:00" timestamp key.
func dayOfYearAndHour(ts string) (int, int, error) {
	month, day, hour, err := splitHourTS(ts)
	if err != nil {
		return 0, 0, err
	}
	year, err := yearOf(ts)
	if err != nil {
		return 0, 0, err
	}
	doy := dayOfYear(year, month, day)
	return doy, hour, nil
}

var cumulativeDaysNonLeap = [12]int{0, 31, 59, 90, 120, 151, 181, 212, 243, 273, 304, 334}
var cumulativeDaysLeap = [12]int{0, 31, 60, 91, 121, 152, 182, 213, 244, 274, 305, 335}

// dayOfYear maps a calendar date onto the smoothing domain: every year
// is counted as non-leap, and Feb 29 becomes day 366.
func dayOfYear(year, month, day int) int {
	if month == 2 && day == 29 {
		return 366
	}
	return cumulativeDaysNonLeap[month-1] + day
}

func isLeap(year int) bool {
	return (year%4 == 0 && year%100 != 0) || year%400 == 0
}

func yearOf(ts string) (int, error) {
	if len(ts) < 4 {
		return 0, domain.NewError(domain.ErrProtocol, "smoother.year", nil)
	}
	return strconv.Atoi(ts[0:4])
}
