// periphd - POS peripheral session daemon.
//
// periphd discovers receipt printers, barcode scanners and weight
// scales over USB and serial, reconciles detected hardware against
// saved per-device configuration, and exposes the resulting sessions
// to the rest of the POS stack over MQTT with optional InfluxDB
// telemetry.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/helixpos/periph-core/migrations"

	"github.com/helixpos/periph-core/internal/configstore"
	"github.com/helixpos/periph-core/internal/detect"
	"github.com/helixpos/periph-core/internal/eventbus"
	"github.com/helixpos/periph-core/internal/infrastructure/config"
	"github.com/helixpos/periph-core/internal/infrastructure/database"
	"github.com/helixpos/periph-core/internal/infrastructure/influxdb"
	"github.com/helixpos/periph-core/internal/infrastructure/logging"
	"github.com/helixpos/periph-core/internal/infrastructure/mqtt"
	"github.com/helixpos/periph-core/internal/printer"
	"github.com/helixpos/periph-core/internal/reconcile"
	"github.com/helixpos/periph-core/internal/retry"
	"github.com/helixpos/periph-core/internal/scale"
	"github.com/helixpos/periph-core/internal/scanner"
	"github.com/helixpos/periph-core/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for
// testability. Returning an error allows main to handle exit codes
// consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting periphd",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Persisted per-device configuration
	configs := configstore.NewService(configstore.NewSQLiteStore(db.DB))
	configs.SetLogger(log)

	count, err := configs.Count(ctx)
	if err != nil {
		return fmt.Errorf("loading device configs: %w", err)
	}
	log.Info("device config store ready", "configured", count)

	// Event bus connecting the reconciler, managers and telemetry
	bus := eventbus.New()
	bus.SetLogger(log)

	// Hardware detection sources
	detector, cleanup, err := buildDetector(cfg.Detection, log)
	if err != nil {
		return fmt.Errorf("building detector: %w", err)
	}
	defer cleanup()

	watcher := detect.NewPollWatcher(detector, cfg.Detection.PollInterval)
	watcher.SetLogger(log)

	// Device reconciler
	rec := reconcile.New(detector, configs, bus)
	rec.SetLogger(log)
	rec.SetWatcher(watcher)

	// Capability managers subscribe before the reconciler starts so the
	// initial scan's connect events reach them.
	serialRetry := retryOptions(cfg.Serial.Retry)
	printRetry := retryOptions(cfg.Print.Retry)

	scanners := scanner.NewManager(rec, bus, scanner.DefaultAdapterFactory(cfg.Serial.Heartbeat, serialRetry))
	scanners.SetLogger(log)
	scanners.Start()
	defer scanners.Stop()

	scales := scale.NewManager(rec, bus, scale.DefaultAdapterFactory(cfg.Serial.Heartbeat, serialRetry))
	scales.SetLogger(log)
	scales.Start()
	defer scales.Stop()

	printers := printer.NewManager(rec, bus, printer.DefaultAdapterFactory(), printRetry)
	printers.SetLogger(log)
	printers.Start()
	defer printers.Stop()

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Telemetry bridge. Interface values must stay nil when a sink is
	// disabled; assigning a nil *Client directly would defeat the
	// bridge's nil checks.
	var pub telemetry.Publisher
	if mqttClient != nil {
		pub = mqttClient
	}
	var metrics telemetry.MetricWriter
	if influxClient != nil {
		metrics = influxClient
	}
	bridge := telemetry.New(bus, pub, metrics)
	bridge.SetLogger(log)
	bridge.Start()
	defer bridge.Stop()

	// Initial scan plus hot-plug watching
	if err := rec.Start(ctx); err != nil {
		return fmt.Errorf("starting reconciler: %w", err)
	}
	defer rec.Stop()
	log.Info("reconciler started",
		"devices", rec.DeviceCount(),
		"poll_interval", cfg.Detection.PollInterval,
	)

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred cleanup runs in reverse order: reconciler and bridge
	// first, then managers, then the external connections.

	log.Info("periphd stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses PERIPH_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("PERIPH_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// buildDetector assembles the configured detection sources into one
// merged detector. The returned cleanup releases source-held handles.
func buildDetector(cfg config.DetectionConfig, log *logging.Logger) (*detect.Multi, func(), error) {
	var sources []detect.Source
	var closers []func() error

	if cfg.Serial {
		sources = append(sources, detect.NewSerialSource())
	}
	if cfg.USB {
		usb := detect.NewUSBSource()
		usb.SetLogger(log)
		sources = append(sources, usb)
		closers = append(closers, usb.Close)
	}
	if cfg.Spooler {
		spool := detect.NewSpoolerSource()
		spool.SetLogger(log)
		sources = append(sources, spool)
	}
	if len(sources) == 0 {
		return nil, nil, fmt.Errorf("no detection sources enabled")
	}

	multi := detect.NewMulti(sources...)
	multi.SetLogger(log)

	cleanup := func() {
		for _, closeFn := range closers {
			if err := closeFn(); err != nil {
				log.Warn("detection source close failed", "error", err)
			}
		}
	}

	names := make([]string, 0, len(sources))
	for _, s := range sources {
		names = append(names, s.Name())
	}
	log.Info("detection sources enabled", "sources", names)

	return multi, cleanup, nil
}

// retryOptions converts a config retry block to executor options.
func retryOptions(c config.RetryConfig) retry.Options {
	return retry.Options{
		MaxAttempts: c.MaxAttempts,
		BaseDelay:   c.BaseDelay,
		Multiplier:  c.Multiplier,
		MaxDelay:    c.MaxDelay,
	}
}

// healthCheck verifies all infrastructure connections are healthy.
// The MQTT and InfluxDB clients may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
