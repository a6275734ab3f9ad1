// Package sqlite is the concrete backing for the abstract Store
// facade (§4.2): a single local SQLite database holding solar
// readings, the raw and smoothed correction matrices, prices,
// consumption, energy snapshots, the schedule, and the pipeline-run
// ledger.
package sqlite

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vindstrom/solarctl/internal/core/domain"
)

// Store implements port.Store on top of database/sql + go-sqlite3.
// Write-heavy operations (matrix seeding, schedule upsert) are
// batched into single transactions, per §5's "shared resources" note.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// New opens (and migrates) the database at dbPath. Use ":memory:" for
// an ephemeral store, e.g. in tests.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1) // a single writer; WAL still lets external readers in

	s := &Store{db: db}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SeedCorrectionMatrix inserts a unit-average, zero-weight,
// zero-count row for every valid (month, day-of-month, hour) triple,
// including Feb 29, unless a row already exists.
func (s *Store) SeedCorrectionMatrix() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO correction_matrix
		(month, day, hour, avg_corr, total_weight, count, max_prod_kwh) VALUES (?, ?, ?, 1.0, 0, 0, 0)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for month := 1; month <= 12; month++ {
		for day := 1; day <= daysInMonth(month); day++ {
			for hour := 0; hour < 24; hour++ {
				if _, err := stmt.Exec(month, day, hour); err != nil {
					return err
				}
			}
		}
	}
	return tx.Commit()
}

func daysInMonth(month int) int {
	switch month {
	case 1, 3, 5, 7, 8, 10, 12:
		return 31
	case 4, 6, 9, 11:
		return 30
	case 2:
		return 29 // Feb 29 exists in the matrix's domain
	default:
		return 30
	}
}

func (s *Store) UpsertIrradiance(hourTS string, irr float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO solar_readings (hour_ts, irradiance_wm2) VALUES (?, ?)
		ON CONFLICT(hour_ts) DO UPDATE SET irradiance_wm2 = excluded.irradiance_wm2`, hourTS, irr)
	return err
}

func (s *Store) UpdateForecast(hourTS string, prodForecastKWh, confidence, correctionApplied float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO solar_readings (hour_ts, prod_forecast_kwh, confidence, correction_applied) VALUES (?, ?, ?, ?)
		ON CONFLICT(hour_ts) DO UPDATE SET prod_forecast_kwh = excluded.prod_forecast_kwh,
			confidence = excluded.confidence, correction_applied = excluded.correction_applied`,
		hourTS, prodForecastKWh, confidence, correctionApplied)
	return err
}

func (s *Store) UpdateActual(hourTS string, prodActualKWh float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO solar_readings (hour_ts, prod_actual_kwh) VALUES (?, ?)
		ON CONFLICT(hour_ts) DO UPDATE SET prod_actual_kwh = excluded.prod_actual_kwh`, hourTS, prodActualKWh)
	return err
}

func (s *Store) UpdateCorrection(hourTS string, correction float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`UPDATE solar_readings SET correction = ? WHERE hour_ts = ?`, correction, hourTS)
	return err
}

func (s *Store) GetUnprocessedActuals() ([]domain.SolarReading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(`SELECT hour_ts, irradiance_wm2, prod_forecast_kwh, correction_applied,
		prod_actual_kwh, correction, confidence FROM solar_readings
		WHERE prod_actual_kwh IS NOT NULL AND correction IS NULL AND prod_forecast_kwh > 0`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReadings(rows)
}

func (s *Store) GetReading(hourTS string) (*domain.SolarReading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.db.QueryRow(`SELECT hour_ts, irradiance_wm2, prod_forecast_kwh, correction_applied,
		prod_actual_kwh, correction, confidence FROM solar_readings WHERE hour_ts = ?`, hourTS)
	r, err := scanReadingRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

func (s *Store) GetReadingsForSmoothing() ([]domain.SolarReading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(`SELECT hour_ts, irradiance_wm2, prod_forecast_kwh, correction_applied,
		prod_actual_kwh, correction, confidence FROM solar_readings
		WHERE correction IS NOT NULL AND confidence IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReadings(rows)
}

func scanReadings(rows *sql.Rows) ([]domain.SolarReading, error) {
	var out []domain.SolarReading
	for rows.Next() {
		var r domain.SolarReading
		var correctionApplied, prodActual, correction sql.NullFloat64
		if err := rows.Scan(&r.HourTS, &r.IrradianceWm2, &r.ProdForecastKWh, &correctionApplied,
			&prodActual, &correction, &r.Confidence); err != nil {
			return nil, err
		}
		assignNullable(&r, correctionApplied, prodActual, correction)
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanReadingRow(row *sql.Row) (*domain.SolarReading, error) {
	var r domain.SolarReading
	var correctionApplied, prodActual, correction sql.NullFloat64
	if err := row.Scan(&r.HourTS, &r.IrradianceWm2, &r.ProdForecastKWh, &correctionApplied,
		&prodActual, &correction, &r.Confidence); err != nil {
		return nil, err
	}
	assignNullable(&r, correctionApplied, prodActual, correction)
	return &r, nil
}

func assignNullable(r *domain.SolarReading, correctionApplied, prodActual, correction sql.NullFloat64) {
	if correctionApplied.Valid {
		v := correctionApplied.Float64
		r.CorrectionApplied = &v
	}
	if prodActual.Valid {
		v := prodActual.Float64
		r.ProdActualKWh = &v
	}
	if correction.Valid {
		v := correction.Float64
		r.Correction = &v
	}
}

func (s *Store) GetCorrectionCell(month, day, hour int) (*domain.CorrectionCell, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.db.QueryRow(`SELECT month, day, hour, avg_corr, total_weight, count, max_prod_kwh, updated_at
		FROM correction_matrix WHERE month = ? AND day = ? AND hour = ?`, month, day, hour)
	var c domain.CorrectionCell
	var updatedAt sql.NullString
	err := row.Scan(&c.Month, &c.Day, &c.Hour, &c.AvgCorr, &c.TotalWeight, &c.Count, &c.MaxProdKWh, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.UpdatedAt = updatedAt.String
	return &c, nil
}

func (s *Store) UpdateCorrectionMatrix(month, day, hour int, avg float64, count int, totalWeight, maxProdKWh float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO correction_matrix (month, day, hour, avg_corr, total_weight, count, max_prod_kwh, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(month, day, hour) DO UPDATE SET avg_corr = excluded.avg_corr, total_weight = excluded.total_weight,
			count = excluded.count, max_prod_kwh = excluded.max_prod_kwh, updated_at = excluded.updated_at`,
		month, day, hour, avg, totalWeight, count, maxProdKWh, time.Now().UTC().Format(time.RFC3339))
	return err
}

func (s *Store) UpsertSmoothed(dayOfYear, hour int, avg float64, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO smoothed_matrix (day_of_year, hour, avg_corr, count) VALUES (?, ?, ?, ?)
		ON CONFLICT(day_of_year, hour) DO UPDATE SET avg_corr = excluded.avg_corr, count = excluded.count`,
		dayOfYear, hour, avg, count)
	return err
}

func (s *Store) GetSmoothedCell(dayOfYear, hour int) (*domain.SmoothedCell, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.db.QueryRow(`SELECT day_of_year, hour, avg_corr, count FROM smoothed_matrix WHERE day_of_year = ? AND hour = ?`,
		dayOfYear, hour)
	var c domain.SmoothedCell
	if err := row.Scan(&c.DayOfYear, &c.Hour, &c.AvgCorr, &c.Count); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) UpsertPrice(slotTS string, price float64, region, currency string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO price_slots (slot_ts, price, region, currency) VALUES (?, ?, ?, ?)
		ON CONFLICT(slot_ts) DO UPDATE SET price = excluded.price, region = excluded.region, currency = excluded.currency`,
		slotTS, price, region, currency)
	return err
}

func (s *Store) GetPricesForRange(from, to string) ([]domain.PriceSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(`SELECT slot_ts, price, region, currency FROM price_slots
		WHERE slot_ts >= ? AND slot_ts < ? ORDER BY slot_ts`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.PriceSlot
	for rows.Next() {
		var p domain.PriceSlot
		if err := rows.Scan(&p.SlotTS, &p.Price, &p.Region, &p.Currency); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) UpsertConsumption(hourTS string, watts float64, temp *float64, source domain.ConsumptionSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var t sql.NullFloat64
	if temp != nil {
		t = sql.NullFloat64{Float64: *temp, Valid: true}
	}
	_, err := s.db.Exec(`INSERT INTO consumption_readings (hour_ts, watts, outdoor_temp, source) VALUES (?, ?, ?, ?)
		ON CONFLICT(hour_ts) DO UPDATE SET watts = excluded.watts, outdoor_temp = excluded.outdoor_temp, source = excluded.source`,
		hourTS, watts, t, string(source))
	return err
}

func (s *Store) GetConsumptionForRange(from, to string) ([]domain.ConsumptionReading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(`SELECT hour_ts, watts, outdoor_temp, source FROM consumption_readings
		WHERE hour_ts >= ? AND hour_ts < ? ORDER BY hour_ts`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.ConsumptionReading
	for rows.Next() {
		var r domain.ConsumptionReading
		var temp sql.NullFloat64
		var source string
		if err := rows.Scan(&r.HourTS, &r.Watts, &temp, &source); err != nil {
			return nil, err
		}
		if temp.Valid {
			v := temp.Float64
			r.OutdoorTemp = &v
		}
		r.Source = domain.ConsumptionSource(source)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) UpsertEnergySnapshot(ts string, pvKWh, loadKWh, gridInKWh, gridOutKWh float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO energy_snapshots (ts, pv_kwh, load_kwh, grid_in_kwh, grid_out_kwh) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(ts) DO UPDATE SET pv_kwh = excluded.pv_kwh, load_kwh = excluded.load_kwh,
			grid_in_kwh = excluded.grid_in_kwh, grid_out_kwh = excluded.grid_out_kwh`,
		ts, pvKWh, loadKWh, gridInKWh, gridOutKWh)
	return err
}

func (s *Store) GetSnapshotAtOrBefore(ts string) (*domain.EnergySnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.db.QueryRow(`SELECT ts, pv_kwh, load_kwh, grid_in_kwh, grid_out_kwh FROM energy_snapshots
		WHERE ts <= ? ORDER BY ts DESC LIMIT 1`, ts)
	var e domain.EnergySnapshot
	if err := row.Scan(&e.TS, &e.PVKWh, &e.LoadKWh, &e.GridInKWh, &e.GridOutKWh); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

func (s *Store) UpsertScheduleBatch(slots []domain.ScheduleSlot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO schedule_slots
		(slot_ts, action, target_w, soc_start, soc_end, price, solar_w, consumption_w)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slot_ts) DO UPDATE SET action = excluded.action, target_w = excluded.target_w,
			soc_start = excluded.soc_start, soc_end = excluded.soc_end, price = excluded.price,
			solar_w = excluded.solar_w, consumption_w = excluded.consumption_w`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, sl := range slots {
		if _, err := stmt.Exec(sl.SlotTS, string(sl.Action), sl.TargetW, sl.SOCStart, sl.SOCEnd,
			sl.Price, sl.SolarW, sl.Consumption); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) DeleteScheduleForRange(from, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM schedule_slots WHERE slot_ts >= ? AND slot_ts < ?`, from, to)
	return err
}

func (s *Store) GetScheduleForRange(from, to string) ([]domain.ScheduleSlot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(`SELECT slot_ts, action, target_w, soc_start, soc_end, price, solar_w, consumption_w
		FROM schedule_slots WHERE slot_ts >= ? AND slot_ts < ? ORDER BY slot_ts`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.ScheduleSlot
	for rows.Next() {
		var sl domain.ScheduleSlot
		var action string
		if err := rows.Scan(&sl.SlotTS, &action, &sl.TargetW, &sl.SOCStart, &sl.SOCEnd,
			&sl.Price, &sl.SolarW, &sl.Consumption); err != nil {
			return nil, err
		}
		sl.Action = domain.Action(action)
		out = append(out, sl)
	}
	return out, rows.Err()
}

func (s *Store) RecordPipelineRun(name string, status domain.PipelineStatus, atTS string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO pipeline_runs (name, last_run_ts, last_status) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET last_run_ts = excluded.last_run_ts, last_status = excluded.last_status`,
		name, atTS, string(status))
	return err
}

func (s *Store) GetAllPipelineRuns() ([]domain.PipelineRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query(`SELECT name, last_run_ts, last_status FROM pipeline_runs`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.PipelineRun
	for rows.Next() {
		var r domain.PipelineRun
		var lastRun sql.NullString
		var status string
		if err := rows.Scan(&r.Name, &lastRun, &status); err != nil {
			return nil, err
		}
		r.LastRunTS = lastRun.String
		r.LastStatus = domain.PipelineStatus(status)
		out = append(out, r)
	}
	return out, rows.Err()
}
