package port

import "github.com/vindstrom/solarctl/internal/core/domain"

// Store is the facade every pipeline and service talks to. It hides
// the SQL persistence layer behind named operations (§4.2); any
// operation can fail with a storage error and callers must classify
// the enclosing pipeline run as an error without aborting the process.
type Store interface {
	UpsertIrradiance(hourTS string, irrWm2 float64) error
	UpdateForecast(hourTS string, prodForecastKWh, confidence, correctionApplied float64) error
	UpdateActual(hourTS string, prodActualKWh float64) error
	UpdateCorrection(hourTS string, correction float64) error
	GetUnprocessedActuals() ([]domain.SolarReading, error)
	GetReading(hourTS string) (*domain.SolarReading, error)

	GetCorrectionCell(month, day, hour int) (*domain.CorrectionCell, error)
	UpdateCorrectionMatrix(month, day, hour int, avg float64, count int, totalWeight, maxProdKWh float64) error
	SeedCorrectionMatrix() error

	GetReadingsForSmoothing() ([]domain.SolarReading, error)
	UpsertSmoothed(dayOfYear, hour int, avg float64, count int) error
	GetSmoothedCell(dayOfYear, hour int) (*domain.SmoothedCell, error)

	UpsertPrice(slotTS string, price float64, region, currency string) error
	GetPricesForRange(from, to string) ([]domain.PriceSlot, error)

	UpsertConsumption(hourTS string, watts float64, temp *float64, source domain.ConsumptionSource) error
	GetConsumptionForRange(from, to string) ([]domain.ConsumptionReading, error)

	UpsertEnergySnapshot(ts string, pvKWh, loadKWh, gridInKWh, gridOutKWh float64) error
	GetSnapshotAtOrBefore(ts string) (*domain.EnergySnapshot, error)

	UpsertScheduleBatch(slots []domain.ScheduleSlot) error
	DeleteScheduleForRange(from, to string) error
	GetScheduleForRange(from, to string) ([]domain.ScheduleSlot, error)

	RecordPipelineRun(name string, status domain.PipelineStatus, atTS string) error
	GetAllPipelineRuns() ([]domain.PipelineRun, error)

	Close() error
}
