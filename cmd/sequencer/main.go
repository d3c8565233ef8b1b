// Gray Logic Sequencer - reactive process variables over the event bus.
//
// The sequencer binds configured process variables to event streams,
// refreshes them by push subscription or polling, records every refresh to
// SQLite (and numeric ones to InfluxDB), and logs value changes.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/nerrad567/gray-logic-sequencer/internal/eventbus"
	"github.com/nerrad567/gray-logic-sequencer/internal/eventbus/membus"
	"github.com/nerrad567/gray-logic-sequencer/internal/eventbus/mqttbus"
	"github.com/nerrad567/gray-logic-sequencer/internal/history"
	"github.com/nerrad567/gray-logic-sequencer/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-sequencer/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-sequencer/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-sequencer/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-sequencer/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-sequencer/internal/pv"
	"github.com/nerrad567/gray-logic-sequencer/internal/script"
	"github.com/nerrad567/gray-logic-sequencer/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"

	// shutdownTimeout bounds teardown of variables and subscriptions.
	shutdownTimeout = 10 * time.Second

	// pruneInterval is how often refresh history is pruned.
	pruneInterval = time.Hour
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
// It returns nil on clean shutdown once ctx is cancelled.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Gray Logic Sequencer",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"variables", len(cfg.Sequencer.Variables),
		"bus", cfg.Events.Bus,
	)

	var db *database.DB
	if cfg.Database.Enabled {
		db, err = database.Open(cfg.Database)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		log.Info("database ready", "path", cfg.Database.Path)
	} else {
		log.Info("refresh history disabled")
	}

	bus, mqttClient, closeBus, err := openBus(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeBus()

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
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
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	metrics, stopMetrics, err := setupMetrics(cfg.Metrics, log)
	if err != nil {
		return err
	}
	defer stopMetrics()

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	sc := script.New(bus, pv.Options{
		Logger:            log.With("component", "pv"),
		Metrics:           metrics,
		PollFailurePolicy: pv.PollFailurePolicy(cfg.Sequencer.PollFailurePolicy),
		ReadyTimeout:      cfg.Events.ReadyTimeout,
	})
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("stopping process variables")
		if closeErr := sc.Close(closeCtx); closeErr != nil {
			log.Error("error stopping process variables", "error", closeErr)
		}
	}()

	var (
		repo   history.Repository
		points history.PointWriter
	)
	if db != nil {
		sqliteRepo := history.NewSQLiteRepository(db.DB)
		repo = sqliteRepo
		if cfg.Database.Retention > 0 {
			stopPrune := startPruning(ctx, sqliteRepo, cfg.Database.Retention, log)
			defer stopPrune()
		}
	}
	if influxClient != nil {
		points = influxClient
	}
	recorder := history.NewRecorder(repo, points, log)
	defer recorder.Close()

	for _, vc := range cfg.Sequencer.Variables {
		v, err := newVariable(ctx, sc, vc)
		if err != nil {
			return fmt.Errorf("creating variable %s: %w", vc.Name, err)
		}
		if repo != nil || points != nil {
			recorder.Attach(vc.Name, v, vc.Param)
		}
		v.OnRefresh(changeLogger(log, vc, v))
		log.Info("variable started",
			"variable", vc.Name,
			"event_key", vc.EventKey,
			"strategy", v.Strategy().String(),
		)
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	return nil
}

func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// openBus connects the configured event bus. The returned close function
// releases the bus and, for the MQTT bus, the broker connection.
func openBus(ctx context.Context, cfg *config.Config, log *logging.Logger) (eventbus.Bus, *mqtt.Client, func(), error) {
	if cfg.Events.Bus == config.BusMemory {
		bus := membus.New()
		bus.SetLogger(log)
		log.Info("using in-process event bus")
		return bus, nil, bus.Close, nil
	}

	client, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log)
	client.SetOnConnect(func() { log.Info("MQTT reconnected") })
	client.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })

	bus, err := mqttbus.New(ctx, mqttbus.Options{
		Client:      client,
		TopicPrefix: cfg.Events.TopicPrefix,
		QoS:         client.DefaultQoS(),
		Logger:      log,
	})
	if err != nil {
		client.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, nil, nil, fmt.Errorf("starting MQTT event bus: %w", err)
	}
	log.Info("MQTT event bus connected",
		"broker", cfg.MQTTBrokerAddress(),
		"client_id", cfg.MQTT.Broker.ClientID,
		"topic_prefix", cfg.Events.TopicPrefix,
	)

	closeBus := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("disconnecting from MQTT")
		if closeErr := bus.Close(closeCtx); closeErr != nil {
			log.Warn("error closing MQTT event bus", "error", closeErr)
		}
		if closeErr := client.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}
	return bus, client, closeBus, nil
}

// setupMetrics installs an OpenTelemetry meter provider when metrics are
// enabled. The stop function logs a final counter summary and shuts the
// provider down.
func setupMetrics(cfg config.MetricsConfig, log *logging.Logger) (pv.MetricsRecorder, func(), error) {
	if !cfg.Enabled {
		return pv.NoopMetrics{}, func() {}, nil
	}

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	recorder, err := pv.NewMetricsRecorder(provider)
	if err != nil {
		return nil, nil, fmt.Errorf("creating metrics recorder: %w", err)
	}

	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logMetricsSummary(ctx, reader, log)
		if err := provider.Shutdown(ctx); err != nil {
			log.Warn("error shutting down meter provider", "error", err)
		}
	}
	return recorder, stop, nil
}

// startPruning deletes history older than retention now and every
// pruneInterval until ctx is done. The returned function waits for the
// loop to exit.
func startPruning(ctx context.Context, repo history.Repository, retention time.Duration, log *logging.Logger) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	prune := func() {
		n, err := repo.PruneHistory(ctx, retention)
		switch {
		case err != nil && !errors.Is(err, context.Canceled):
			log.Warn("pruning refresh history failed", "error", err)
		case n > 0:
			log.Info("pruned refresh history", "rows", n, "retention", retention.String())
		}
	}

	go func() {
		defer close(done)
		prune()
		ticker := time.NewTicker(pruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				prune()
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
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
