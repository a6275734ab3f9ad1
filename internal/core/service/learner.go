package service

import (
	"math"

	"github.com/vindstrom/solarctl/internal/core/domain"
	"github.com/vindstrom/solarctl/internal/core/port"
	"go.uber.org/zap"
)

const learnerHalfSaturationWm2 = 50.0

// Learner converts realized (actual, forecast) pairs into
// irradiance-weighted correction-matrix updates (§4.4). It is the
// sole writer of correction-matrix cells.
type Learner struct {
	store  port.Store
	logger *zap.Logger
}

func NewLearner(store port.Store, logger *zap.Logger) *Learner {
	return &Learner{store: store, logger: logger.With(zap.String("component", "learner"))}
}

// Run consumes every unprocessed actual and folds it into the
// matching correction-matrix cell.
func (l *Learner) Run() error {
	actuals, err := l.store.GetUnprocessedActuals()
	if err != nil {
		return domain.NewError(domain.ErrStorage, "learner.unprocessed", err)
	}

	for _, r := range actuals {
		if err := l.applyOne(r); err != nil {
			return err
		}
	}
	return nil
}

func (l *Learner) applyOne(r domain.SolarReading) error {
	if r.ProdActualKWh == nil || r.ProdForecastKWh <= 0 {
		return nil
	}
	correction := *r.ProdActualKWh / r.ProdForecastKWh

	weight := 0.0
	if r.IrradianceWm2 > 0 {
		weight = r.IrradianceWm2 / (r.IrradianceWm2 + learnerHalfSaturationWm2)
	}

	month, day, hour, err := splitHourTS(r.HourTS)
	if err != nil {
		return domain.NewError(domain.ErrProtocol, "learner.split", err)
	}

	cell, err := l.store.GetCorrectionCell(month, day, hour)
	if err != nil {
		return domain.NewError(domain.ErrStorage, "learner.get_cell", err)
	}
	if cell == nil {
		cell = &domain.CorrectionCell{Month: month, Day: day, Hour: hour, AvgCorr: 1.0}
	}

	newTotalWeight := cell.TotalWeight + weight
	newAvg := correction
	if newTotalWeight != 0 {
		newAvg = (cell.AvgCorr*cell.TotalWeight + correction*weight) / newTotalWeight
	}
	newCount := cell.Count + 1
	newMax := math.Max(cell.MaxProdKWh, *r.ProdActualKWh)

	if err := l.store.UpdateCorrectionMatrix(month, day, hour, newAvg, newCount, newTotalWeight, newMax); err != nil {
		return domain.NewError(domain.ErrStorage, "learner.update_cell", err)
	}
	if err := l.store.UpdateCorrection(r.HourTS, correction); err != nil {
		return domain.NewError(domain.ErrStorage, "learner.update_correction", err)
	}

	return nil
}
