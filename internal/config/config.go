// Package config loads and validates the solarctl configuration the
// same way the teacher repo does: viper with an env prefix and
// defaults, an optional YAML file, and a single validation pass at
// startup that returns a readable error instead of panicking.
package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel zapcore.Level

	Location    LocationConfig    `mapstructure:"location"`
	Panel       PanelConfig       `mapstructure:"panel"`
	Learning    LearningConfig    `mapstructure:"learning"`
	Forecast    ForecastConfig    `mapstructure:"forecast"`
	Battery     BatteryConfig     `mapstructure:"battery"`
	Grid        GridConfig        `mapstructure:"grid"`
	Consumption ConsumptionConfig `mapstructure:"consumption"`
	Inverter    InverterConfig    `mapstructure:"inverter"`
	Price       PriceConfig       `mapstructure:"price"`
	Dashboard   DashboardConfig   `mapstructure:"dashboard"`

	Port          uint   `mapstructure:"port"`
	HttpLog       bool   `mapstructure:"http_log"`
	DBPath        string `mapstructure:"db_path"`
	RawArchiveDir string `mapstructure:"raw_archive_dir"`

	MQTT MQTTConfig `mapstructure:"mqtt"`
}

type LocationConfig struct {
	Lat      float64 `mapstructure:"lat"`
	Lon      float64 `mapstructure:"lon"`
	Timezone string  `mapstructure:"timezone"`
}

type PanelConfig struct {
	PeakKW     float64 `mapstructure:"peak_kw"`
	TiltDeg    float64 `mapstructure:"tilt"`
	AzimuthDeg float64 `mapstructure:"azimuth"`
	Efficiency float64 `mapstructure:"efficiency"`
}

type RecencyBiasConfig struct {
	WindowDays int     `mapstructure:"window_days"`
	MinSamples float64 `mapstructure:"min_samples"`
	ClampMin   float64 `mapstructure:"clamp_min"`
	ClampMax   float64 `mapstructure:"clamp_max"`
}

type LearningConfig struct {
	MinIrradianceWeight     float64           `mapstructure:"min_irradiance_weight"`
	EmpiricalBlendThreshold float64           `mapstructure:"empirical_blend_threshold"`
	RecencyBias             RecencyBiasConfig `mapstructure:"recency_bias"`
}

type ForecastConfig struct {
	HorizonHours       int `mapstructure:"horizon_hours"`
	FetchIntervalHours int `mapstructure:"fetch_interval_hours"`
}

type BatteryConfig struct {
	CapacityKWh     float64 `mapstructure:"capacity_kwh"`
	MaxChargeW      float64 `mapstructure:"max_charge_w"`
	MaxDischargeW   float64 `mapstructure:"max_discharge_w"`
	Efficiency      float64 `mapstructure:"efficiency"`
	MinSOC          float64 `mapstructure:"min_soc"`
	MaxSOC          float64 `mapstructure:"max_soc"`
}

type GridConfig struct {
	SellEnabled       bool    `mapstructure:"sell_enabled"`
	SellPriceFactor   float64 `mapstructure:"sell_price_factor"`
	TransferImportKWh float64 `mapstructure:"transfer_import_kwh"`
	TransferExportKWh float64 `mapstructure:"transfer_export_kwh"`
	EnergyTaxKWh      float64 `mapstructure:"energy_tax_kwh"`
}

type ConsumptionConfig struct {
	Source             string  `mapstructure:"source"` // "yesterday" | "flat"
	HeatingSensitivity float64 `mapstructure:"heating_sensitivity"`
	Climate            string  `mapstructure:"climate"` // "heating" | "cooling"
	FlatWatts          float64 `mapstructure:"flat_watts"`
}

type InverterConfig struct {
	Brand               string `mapstructure:"brand"`
	Host                string `mapstructure:"host"`
	Port                uint   `mapstructure:"port"`
	UnitID              uint8  `mapstructure:"unit_id"`
	TimeoutMs           uint32 `mapstructure:"timeout_ms"`
	DryRun              bool   `mapstructure:"dry_run"`
	DataCollectionOnly  bool   `mapstructure:"data_collection_only"`
	ChargeSOC           int    `mapstructure:"charge_soc"`
	DischargeSOC        int    `mapstructure:"discharge_soc"`
}

type PriceConfig struct {
	Source       string `mapstructure:"source"`
	BaseURL      string `mapstructure:"base_url"`
	Region       string `mapstructure:"region"`
	Currency     string `mapstructure:"currency"`
	DayAheadHour int    `mapstructure:"day_ahead_hour"`
}

type DashboardConfig struct {
	AuthUser string `mapstructure:"auth_user"`
	AuthPass string `mapstructure:"auth_pass"`
}

type MQTTConfig struct {
	Host              string `mapstructure:"host"`
	Port              int    `mapstructure:"port"`
	Username          string `mapstructure:"username"`
	Password          string `mapstructure:"password"`
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
	Enabled           bool   `mapstructure:"enabled"`
}

var knownInverterBrands = map[string]bool{
	"modbus_socfloor": true,
}

var knownPriceSources = map[string]bool{
	"native15min": true,
	"hourly":      true,
}

// Validate checks the bounds and cross-field invariants from spec.md
// §6, returning the first problem found.
func (c *Config) Validate() error {
	if c.Location.Lat < -90 || c.Location.Lat > 90 {
		return errors.New("location.lat must be in [-90, 90]")
	}
	if c.Location.Lon < -180 || c.Location.Lon > 180 {
		return errors.New("location.lon must be in [-180, 180]")
	}
	if _, err := time.LoadLocation(c.Location.Timezone); err != nil {
		return fmt.Errorf("location.timezone is not a valid IANA zone: %w", err)
	}

	if c.Panel.PeakKW <= 0 {
		return errors.New("panel.peak_kw must be > 0")
	}
	if c.Panel.TiltDeg < 0 || c.Panel.TiltDeg > 90 {
		return errors.New("panel.tilt must be in [0, 90]")
	}
	if c.Panel.AzimuthDeg < 0 || c.Panel.AzimuthDeg > 360 {
		return errors.New("panel.azimuth must be in [0, 360]")
	}

	if c.Battery.CapacityKWh <= 0 {
		return errors.New("battery.capacity_kwh must be > 0")
	}
	if c.Battery.MaxChargeW < 0 || c.Battery.MaxDischargeW < 0 {
		return errors.New("battery.max_charge_w and max_discharge_w must be >= 0")
	}
	if c.Battery.Efficiency <= 0 || c.Battery.Efficiency > 1 {
		return errors.New("battery.efficiency must be in (0, 1]")
	}
	if c.Battery.MinSOC < 0 || c.Battery.MaxSOC > 100 || c.Battery.MinSOC >= c.Battery.MaxSOC {
		return errors.New("battery.min_soc must be < max_soc, both within [0, 100]")
	}

	if !knownInverterBrands[c.Inverter.Brand] {
		return fmt.Errorf("inverter.brand %q is not a known brand", c.Inverter.Brand)
	}
	if c.Inverter.ChargeSOC >= 100 {
		return errors.New("inverter.charge_soc must be < 100")
	}
	if c.Inverter.DischargeSOC < 13 {
		return errors.New("inverter.discharge_soc must be >= 13")
	}
	if c.Inverter.DischargeSOC >= c.Inverter.ChargeSOC {
		return errors.New("inverter.discharge_soc must be < inverter.charge_soc")
	}

	if !knownPriceSources[c.Price.Source] {
		return fmt.Errorf("price.source %q is not a known source", c.Price.Source)
	}
	if c.Price.DayAheadHour < 0 || c.Price.DayAheadHour > 23 {
		return errors.New("price.day_ahead_hour must be in [0, 23]")
	}

	if c.Consumption.Source != "yesterday" && c.Consumption.Source != "flat" {
		return errors.New("consumption.source must be \"yesterday\" or \"flat\"")
	}
	if c.Consumption.Climate != "heating" && c.Consumption.Climate != "cooling" {
		return errors.New("consumption.climate must be \"heating\" or \"cooling\"")
	}
	if c.Consumption.FlatWatts <= 0 {
		return errors.New("consumption.flat_watts must be > 0")
	}

	return nil
}
