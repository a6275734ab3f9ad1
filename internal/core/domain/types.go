// Package domain holds the data model shared by every core service:
// solar readings, the correction matrices, prices, consumption,
// energy snapshots, the schedule and the pipeline-run ledger.
package domain

// Action is the battery action assigned to a single schedule slot.
// A tagged string enum in the source; here it's a real Go type so the
// optimizer, the driver mapping and the savings summary all get
// exhaustiveness for free from `go vet`'s switch checks.
type Action string

const (
	ActionIdle        Action = "idle"
	ActionChargeGrid  Action = "charge_grid"
	ActionChargeSolar Action = "charge_solar"
	ActionDischarge   Action = "discharge"
	ActionSell        Action = "sell"
)

// PipelineStatus is the last recorded outcome of a pipeline run.
type PipelineStatus string

const (
	StatusOK       PipelineStatus = "ok"
	StatusError    PipelineStatus = "error"
	StatusNeverRun PipelineStatus = "never_run"
)

// ConsumptionSource tags where an hourly consumption estimate came
// from.
type ConsumptionSource string

const (
	SourceInverterDelta   ConsumptionSource = "inverter_delta"
	SourceInverterInstant ConsumptionSource = "inverter_instant"
	SourceManual          ConsumptionSource = "manual"
	SourceFlat            ConsumptionSource = "flat"
)

// SolarReading is keyed by an hour timestamp ("YYYY-MM-DDTHH:00") in
// the operator's local zone.
type SolarReading struct {
	HourTS            string
	IrradianceWm2     float64
	ProdForecastKWh   float64
	CorrectionApplied *float64 // applied matrix+fallback correction c, not including recency bias b
	ProdActualKWh     *float64
	Correction        *float64 // actual/forecast once both are known
	Confidence        float64  // in [0,1]
}

// CorrectionCell is the raw, calendar-indexed correction matrix cell.
type CorrectionCell struct {
	Month       int // 1..12
	Day         int // 1..31
	Hour        int // 0..23
	AvgCorr     float64
	TotalWeight float64
	Count       int
	MaxProdKWh  float64
	UpdatedAt   string
}

// SmoothedCell is the day-of-year-indexed, Gaussian-smoothed matrix.
type SmoothedCell struct {
	DayOfYear int // 1..365
	Hour      int // 0..23
	AvgCorr   float64
	Count     int
}

// PriceSlot is a single 15-minute spot-price quantum.
type PriceSlot struct {
	SlotTS   string // "YYYY-MM-DDTHH:MM", MM in {00,15,30,45}
	Price    float64
	Region   string
	Currency string
}

// ConsumptionReading is an hourly household consumption estimate or
// measurement.
type ConsumptionReading struct {
	HourTS      string
	Watts       float64
	OutdoorTemp *float64
	Source      ConsumptionSource
}

// EnergySnapshot is a 15-minute reading of the inverter's
// daily-cumulative counters. All four reset at local midnight.
type EnergySnapshot struct {
	TS        string
	PVKWh     float64
	LoadKWh   float64
	GridInKWh float64
	GridOutKWh float64
}

// ScheduleSlot is one row of the rolling 24h / 96-slot battery plan.
type ScheduleSlot struct {
	SlotTS     string
	Action     Action
	TargetW    float64
	SOCStart   float64
	SOCEnd     float64
	Price      float64
	SolarW     float64
	Consumption float64
}

// PipelineRun is the ledger row for one named pipeline.
type PipelineRun struct {
	Name       string
	LastRunTS  string
	LastStatus PipelineStatus
}

// Pipeline names, used as both quartz job keys and ledger keys.
const (
	PipelineFetch       = "fetch"
	PipelineLearn       = "learn"
	PipelineSmooth      = "smooth"
	PipelineBattery     = "battery"
	PipelineConsumption = "consumption"
	PipelineSnapshot    = "snapshot"
	PipelineExecute     = "execute"
)
