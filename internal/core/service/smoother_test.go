package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestSmootherProducesGaussianWeightedAverage(t *testing.T) {
	assert := assert.New(t)

	store := newFakeStore()
	s := NewSmoother(store, zap.NewNop())

	// Two readings on nearby days-of-year, same hour, both correction=1.0
	// with full confidence and >=2kWh production (prodWeight saturates
	// at 1): the smoothed cell for that hour should land near 1.0.
	seed := func(date string) {
		ts := hourKey(date, 12)
		store.UpsertIrradiance(ts, 800)
		store.UpdateForecast(ts, 4.0, 1.0, 1.0)
		store.UpdateActual(ts, 4.0)
		store.UpdateCorrection(ts, 1.0)
	}
	seed("2026-06-15")
	seed("2026-06-16")

	err := s.Run()
	assert.NoError(err)

	doy, _, err := dayOfYearAndHour(hourKey("2026-06-15", 12))
	assert.NoError(err)
	cell, err := store.GetSmoothedCell(doy, 12)
	assert.NoError(err)
	assert.NotNil(cell)
	assert.InDelta(1.0, cell.AvgCorr, 1e-6)
	assert.Equal(2, cell.Count)
}

func TestSmootherDefaultsToOneWithNoData(t *testing.T) {
	assert := assert.New(t)

	store := newFakeStore()
	s := NewSmoother(store, zap.NewNop())

	assert.NoError(s.Run())

	cell, err := store.GetSmoothedCell(100, 12)
	assert.NoError(err)
	assert.NotNil(cell)
	assert.Equal(1.0, cell.AvgCorr)
	assert.Equal(0, cell.Count)
}

func TestSmootherExcludesFeb29(t *testing.T) {
	assert := assert.New(t)

	store := newFakeStore()
	s := NewSmoother(store, zap.NewNop())

	ts := hourKey("2028-02-29", 12) // 2028 is a leap year
	store.UpsertIrradiance(ts, 800)
	store.UpdateForecast(ts, 4.0, 1.0, 1.0)
	store.UpdateActual(ts, 4.0)
	store.UpdateCorrection(ts, 1.0)

	assert.NoError(s.Run())

	// day 366 must never appear in the smoothed domain: neighboring
	// day-365/day-1 cells should show zero contribution from it.
	cell, err := store.GetSmoothedCell(365, 12)
	assert.NoError(err)
	assert.NotNil(cell)
	assert.Equal(0, cell.Count)
}

func TestWrapDayOfYear(t *testing.T) {
	assert := assert.New(t)

	assert.Equal(365, wrapDayOfYear(0))
	assert.Equal(1, wrapDayOfYear(366))
	assert.Equal(363, wrapDayOfYear(-2))
	assert.Equal(1, wrapDayOfYear(1))
}
