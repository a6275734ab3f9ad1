package sqlite

const schema = `
CREATE TABLE IF NOT EXISTS solar_readings (
	hour_ts TEXT PRIMARY KEY,
	irradiance_wm2 REAL NOT NULL DEFAULT 0,
	prod_forecast_kwh REAL NOT NULL DEFAULT 0,
	correction_applied REAL,
	prod_actual_kwh REAL,
	correction REAL,
	confidence REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS correction_matrix (
	month INTEGER NOT NULL,
	day INTEGER NOT NULL,
	hour INTEGER NOT NULL,
	avg_corr REAL NOT NULL DEFAULT 1.0,
	total_weight REAL NOT NULL DEFAULT 0,
	count INTEGER NOT NULL DEFAULT 0,
	max_prod_kwh REAL NOT NULL DEFAULT 0,
	updated_at TEXT,
	PRIMARY KEY (month, day, hour)
);

CREATE TABLE IF NOT EXISTS smoothed_matrix (
	day_of_year INTEGER NOT NULL,
	hour INTEGER NOT NULL,
	avg_corr REAL NOT NULL DEFAULT 1.0,
	count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (day_of_year, hour)
);

CREATE TABLE IF NOT EXISTS price_slots (
	slot_ts TEXT PRIMARY KEY,
	price REAL NOT NULL,
	region TEXT NOT NULL,
	currency TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS consumption_readings (
	hour_ts TEXT PRIMARY KEY,
	watts REAL NOT NULL,
	outdoor_temp REAL,
	source TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS energy_snapshots (
	ts TEXT PRIMARY KEY,
	pv_kwh REAL NOT NULL,
	load_kwh REAL NOT NULL,
	grid_in_kwh REAL NOT NULL,
	grid_out_kwh REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS schedule_slots (
	slot_ts TEXT PRIMARY KEY,
	action TEXT NOT NULL,
	target_w REAL NOT NULL,
	soc_start REAL NOT NULL,
	soc_end REAL NOT NULL,
	price REAL NOT NULL,
	solar_w REAL NOT NULL,
	consumption_w REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	name TEXT PRIMARY KEY,
	last_run_ts TEXT,
	last_status TEXT NOT NULL DEFAULT 'never_run'
);
`
