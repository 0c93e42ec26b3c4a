package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/jkaberg/robovac-hass/internal/app"
	"github.com/jkaberg/robovac-hass/internal/collector"
	"github.com/jkaberg/robovac-hass/internal/config"
	"github.com/jkaberg/robovac-hass/internal/metrics"
	"github.com/jkaberg/robovac-hass/internal/mqtt"
	"github.com/jkaberg/robovac-hass/internal/registry"
	"github.com/jkaberg/robovac-hass/internal/sensors"
	"github.com/jkaberg/robovac-hass/internal/transmission"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
)

// version is injected at build time via ldflags
var version = "dev"

func main() {
	cfg := parseFlags()

	logger := setupLogger(cfg.Verbose)
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	vacuums, err := config.LoadVacuums(cfg.VacuumsFile)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load vacuums")
	}

	logFields := logrus.Fields{
		"version": version,
		"vacuums": len(vacuums),
		"poll":    cfg.RefreshRate,
	}
	if cfg.ForceUpdateInterval > 0 {
		logFields["force_update_int"] = cfg.ForceUpdateInterval
	}
	logger.WithFields(logFields).Info("Starting robovac-hass")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Info("Shutdown signal received")
		cancel()
	}()

	// Core clients ---------------------------------------------------------------
	reg := registry.New()

	mqttClient, err := mqtt.NewClient(mqtt.Options{
		URL:         cfg.MQTTUrl,
		ClientID:    "robovac-hass",
		StatusTopic: config.BridgeStatusTopic,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create MQTT client")
	}
	defer mqttClient.Disconnect(250)

	mqttTx := transmission.NewMQTTTransmitter(mqttClient, cfg.DiscoveryPrefix, logger)

	// Entities ---------------------------------------------------------------------
	var entities []*sensors.BatterySensor
	err = sensors.Setup(vacuums, reg, func(list []*sensors.BatterySensor) {
		entities = list
		mqttTx.AddEntities(list)
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to set up sensors")
	}
	logger.WithField("entities", len(entities)).Info("Battery sensors ready")

	// Registry feed ----------------------------------------------------------------
	ids := make([]string, 0, len(vacuums))
	for id := range vacuums {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	reports := collector.New(reg, cfg.StatePrefix, ids, logger)
	if err := reports.Start(mqttClient); err != nil {
		logger.WithError(err).Fatal("Failed to subscribe to vacuum reports")
	}
	mqttClient.OnConnect(func() {
		mqttTx.ResetDiscovery()
		go func() {
			if err := reports.Start(mqttClient); err != nil {
				logger.WithError(err).Warn("Failed to resubscribe to vacuum reports")
			}
		}()
	})

	// Metrics ----------------------------------------------------------------------
	var observer app.PollObserver
	if cfg.HasMetrics() {
		m := metrics.New()
		promReg := prometheus.NewRegistry()
		promReg.MustRegister(m, collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		observer = m

		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, promReg, logger); err != nil {
				logger.WithError(err).Error("Metrics server stopped")
			}
		}()
	}

	// Run application ------------------------------------------------------------
	app.Run(ctx, cfg, entities, mqttTx, observer, logger)

	if err := mqttClient.Publish(config.BridgeStatusTopic, []byte("offline"), true); err != nil {
		logger.WithError(err).Debug("Failed to publish offline status")
	}
	logger.Info("robovac-hass stopped")
}

// -----------------------------------------------------------------------------
// Helpers & Flags
// -----------------------------------------------------------------------------

func parseFlags() *config.Config {
	cfg := config.GetDefaultConfig()

	showVersion := flag.Bool("version", false, "Show version and exit")

	flag.StringVar(&cfg.MQTTUrl, "mqtt-url", getEnv("ROBOVAC_HASS_MQTT_URL", cfg.MQTTUrl), "MQTT URL")
	flag.StringVar(&cfg.VacuumsFile, "vacuums", getEnv("ROBOVAC_HASS_VACUUMS", cfg.VacuumsFile), "Vacuums YAML file")
	flag.StringVar(&cfg.DiscoveryPrefix, "discovery-prefix", getEnv("ROBOVAC_HASS_DISCOVERY_PREFIX", cfg.DiscoveryPrefix), "HA discovery prefix")
	flag.StringVar(&cfg.StatePrefix, "state-prefix", getEnv("ROBOVAC_HASS_STATE_PREFIX", cfg.StatePrefix), "Topic prefix of vacuum state reports")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", getEnv("ROBOVAC_HASS_METRICS_ADDR", cfg.MetricsAddr), "Prometheus listen address (e.g. :9120)")
	flag.BoolVar(&cfg.Verbose, "verbose", getEnv("ROBOVAC_HASS_VERBOSE", "false") == "true", "Verbose logging")

	refreshRateStr := flag.String("refresh-rate", getEnv("ROBOVAC_HASS_REFRESH_RATE", ""), "Battery poll interval (e.g. 6s)")
	forceUpdateIntervalStr := flag.String("force-update-interval", getEnv("ROBOVAC_HASS_FORCE_UPDATE_INTERVAL", ""), "Force update all sensors at this interval even if unchanged (e.g. 10m, 0 = disabled)")

	flag.Parse()

	if *showVersion {
		fmt.Printf("robovac-hass %s\n", version)
		os.Exit(0)
	}

	// Duration overrides
	if d, ok := parseInterval(*refreshRateStr); ok && d > 0 {
		cfg.RefreshRate = d
	}
	if d, ok := parseInterval(*forceUpdateIntervalStr); ok {
		cfg.ForceUpdateInterval = d
	}

	return cfg
}

// parseInterval accepts a Go duration or a plain number of seconds.
func parseInterval(s string) (time.Duration, bool) {
	if s == "" {
		return 0, false
	}
	if d, err := time.ParseDuration(s); err == nil && d >= 0 {
		return d, true
	}
	if v, err := strconv.Atoi(s); err == nil && v >= 0 {
		return time.Duration(v) * time.Second, true
	}
	return 0, false
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func setupLogger(verbose bool) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	if verbose {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	return l
}
