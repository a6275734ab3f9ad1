package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/vindstrom/solarctl/internal/adapter/modbus"
	adaptermqtt "github.com/vindstrom/solarctl/internal/adapter/mqtt"
	"github.com/vindstrom/solarctl/internal/adapter/price"
	"github.com/vindstrom/solarctl/internal/adapter/weather"
	"github.com/vindstrom/solarctl/internal/config"
	"github.com/vindstrom/solarctl/internal/core/port"
	"github.com/vindstrom/solarctl/internal/core/service"
	"github.com/vindstrom/solarctl/internal/pipeline"
	"github.com/vindstrom/solarctl/internal/server"
	"github.com/vindstrom/solarctl/internal/store/sqlite"
)

func main() {
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config invalid", "error", err)
		os.Exit(1)
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer store.Close()
	if err := store.SeedCorrectionMatrix(); err != nil {
		logger.Fatal("failed to seed correction matrix", zap.Error(err))
	}

	loc, err := time.LoadLocation(cfg.Location.Timezone)
	if err != nil {
		logger.Fatal("invalid timezone", zap.Error(err))
	}
	clock := service.NewClock(loc)

	weatherClient := weather.NewClient("https://api.open-meteo.com/v1/forecast", cfg.Location.Lat, cfg.Location.Lon, cfg.Location.Timezone)

	var priceProvider port.PriceProvider
	switch cfg.Price.Source {
	case "hourly":
		priceProvider = price.NewHourlyProvider(cfg.Price.BaseURL, true)
	default:
		priceProvider = price.NewNativeProvider(cfg.Price.BaseURL)
	}

	driver := modbus.New(modbus.Config{
		Host:         cfg.Inverter.Host,
		Port:         cfg.Inverter.Port,
		UnitID:       cfg.Inverter.UnitID,
		TimeoutMs:    cfg.Inverter.TimeoutMs,
		DryRun:       cfg.Inverter.DryRun,
		ChargeSOC:    cfg.Inverter.ChargeSOC,
		DischargeSOC: cfg.Inverter.DischargeSOC,
	}, logger)
	defer driver.Close()

	mqttPub := adaptermqtt.New(cfg.MQTT, logger)
	if err := mqttPub.Connect(); err != nil {
		logger.Warn("mqtt connect failed, continuing without telemetry", zap.Error(err))
	}
	defer mqttPub.Disconnect()

	forecastModel := service.NewForecastModel(store, *cfg, logger)
	learner := service.NewLearner(store, logger)
	smoother := service.NewSmoother(store, logger)
	estimator := service.NewConsumptionEstimator(store, *cfg, logger)
	priceIngestor := service.NewPriceIngestor(priceProvider, store, *cfg, logger)
	optimizer := service.NewOptimizer(store, *cfg, logger)

	fetchPipeline := pipeline.NewFetchPipeline(weatherClient, store, forecastModel, clock, logger)
	learnPipeline := pipeline.NewLearnPipeline(learner, logger)
	smoothPipeline := pipeline.NewSmoothPipeline(smoother, logger)
	batteryPipeline := pipeline.NewBatteryPipeline(priceIngestor, estimator, optimizer, store, weatherClient, driver, clock, *cfg, logger)
	consumptionPipeline := pipeline.NewConsumptionPipeline(store, weatherClient, driver, clock, logger)
	snapshotPipeline := pipeline.NewSnapshotPipeline(driver, store, clock, logger)
	executePipeline := pipeline.NewExecutePipeline(store, driver, clock, mqttPub, logger)

	orchestrator := pipeline.NewOrchestrator(fetchPipeline, learnPipeline, smoothPipeline, batteryPipeline,
		consumptionPipeline, snapshotPipeline, executePipeline, store, driver, clock, *cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := orchestrator.Start(ctx); err != nil {
		logger.Fatal("failed to start orchestrator", zap.Error(err))
	}
	defer orchestrator.Stop()

	httpServer := server.New(*cfg, store, driver, clock, logger)

	done := make(chan bool, 1)
	go gracefulShutdown(httpServer, done)

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("http server error", zap.Error(err))
	}

	<-done
	log.Println("graceful shutdown complete")
}

func gracefulShutdown(srv *http.Server, done chan bool) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced to shutdown with error: %v", err)
	}

	done <- true
}

func initConfig() (*config.Config, error) {
	setConfigDefaults()

	viper.SetEnvPrefix("solarctl")
	viper.AutomaticEnv()

	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			viper.SetConfigFile(cfgFile)
			if err := viper.ReadInConfig(); err != nil {
				slog.Error("error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	switch viper.GetString("log_level") {
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "info")
	viper.SetDefault("port", 8080)
	viper.SetDefault("db_path", "solarctl.db")
	viper.SetDefault("raw_archive_dir", "data/raw")
	viper.SetDefault("http_log", false)

	viper.SetDefault("learning.min_irradiance_weight", 400)
	viper.SetDefault("learning.empirical_blend_threshold", 30)
	viper.SetDefault("learning.recency_bias.window_days", 14)
	viper.SetDefault("learning.recency_bias.min_samples", 10)
	viper.SetDefault("learning.recency_bias.clamp_min", 0.5)
	viper.SetDefault("learning.recency_bias.clamp_max", 2.0)

	viper.SetDefault("forecast.horizon_hours", 24)
	viper.SetDefault("forecast.fetch_interval_hours", 6)

	viper.SetDefault("battery.efficiency", 0.9)
	viper.SetDefault("battery.min_soc", 10)
	viper.SetDefault("battery.max_soc", 95)

	viper.SetDefault("grid.sell_price_factor", 1.0)

	viper.SetDefault("consumption.source", "yesterday")
	viper.SetDefault("consumption.heating_sensitivity", 0.03)
	viper.SetDefault("consumption.climate", "heating")
	viper.SetDefault("consumption.flat_watts", 500)

	viper.SetDefault("inverter.timeout_ms", 5000)
	viper.SetDefault("inverter.charge_soc", 90)
	viper.SetDefault("inverter.discharge_soc", 20)

	viper.SetDefault("price.base_url", "https://prices.example/api")
	viper.SetDefault("price.day_ahead_hour", 13)
	viper.SetDefault("price.currency", "EUR")

	viper.SetDefault("mqtt.base_topic", "solarctl")
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("mqtt.ha_discovery_enable", false)
}
