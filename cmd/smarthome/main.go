// Command smarthome runs the smart home core: the user and
// house/floor/room/device hierarchy over REST and WebSocket, the latest
// payload per device in a pluggable cache, an audit trail in SQLite and,
// optionally, device telemetry from MQTT with history in InfluxDB.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/salsowa/smarthome-core/internal/api"
	"github.com/salsowa/smarthome-core/internal/audit"
	"github.com/salsowa/smarthome-core/internal/hierarchy"
	"github.com/salsowa/smarthome-core/internal/infrastructure/config"
	"github.com/salsowa/smarthome-core/internal/infrastructure/database"
	"github.com/salsowa/smarthome-core/internal/infrastructure/influxdb"
	"github.com/salsowa/smarthome-core/internal/infrastructure/logging"
	"github.com/salsowa/smarthome-core/internal/infrastructure/mqtt"
	"github.com/salsowa/smarthome-core/internal/latest"
	"github.com/salsowa/smarthome-core/internal/telemetry"
	"github.com/salsowa/smarthome-core/migrations"
)

// Set with -ldflags "-X main.version=1.0.0 -X main.commit=abc123".
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// teardown collects shutdown steps and runs them newest first.
type teardown struct {
	log   *logging.Logger
	steps []func()
}

func (t *teardown) push(what string, fn func() error) {
	t.steps = append(t.steps, func() {
		t.log.Info("stopping " + what)
		if err := fn(); err != nil {
			t.log.Error("error stopping "+what, "error", err)
		}
	})
}

func (t *teardown) run() {
	for i := len(t.steps) - 1; i >= 0; i-- {
		t.steps[i]()
	}
}

// run starts every component, waits for ctx to be cancelled and stops them
// in reverse order. It returns nil on a clean shutdown.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting smart home core", "version", version, "commit", commit, "build_date", date)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "level", cfg.Logging.Level, "format", cfg.Logging.Format)

	down := &teardown{log: log}
	defer down.run()

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	down.push("database", db.Close)
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	cache, err := latest.Open(ctx, cfg.Cache)
	if err != nil {
		return fmt.Errorf("opening latest-value cache: %w", err)
	}
	down.push("latest-value cache", func() error { return cache.Close(context.Background()) })
	log.Info("latest-value cache ready", "backend", cache.Backend(), "codec", cfg.Cache.Codec)

	store := hierarchy.NewStore()
	store.SetLogger(log)
	store.SetLatestWriter(cache, cfg.Cache.WriteTimeout)

	auditRepo := audit.NewSQLiteRepository(db.DB)
	startRecorder(store, auditRepo, log, down)

	checks := map[string]api.HealthChecker{"database": db, "cache": cache}
	deps := api.Deps{
		Config:       cfg.API,
		WS:           cfg.WebSocket,
		Logger:       log,
		Store:        store,
		Latest:       cache,
		Audit:        auditRepo,
		DB:           db,
		HealthChecks: checks,
		Version:      version,
	}

	history, err := connectHistory(cfg.InfluxDB, log, down)
	if err != nil {
		return err
	}
	if history != nil {
		checks["influxdb"] = history
	}

	var ingester *telemetry.Ingester
	if cfg.Telemetry.Enabled {
		if ingester, err = prepareTelemetry(cfg, &deps, cache, history, down); err != nil {
			return err
		}
	} else {
		log.Info("MQTT telemetry disabled")
	}

	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	down.push("API server", server.Close)

	// The hub is running now, so ingested reports have somewhere to go.
	if ingester != nil {
		if err := ingester.Start(); err != nil {
			return fmt.Errorf("starting telemetry ingester: %w", err)
		}
		down.push("telemetry ingester", ingester.Stop)
	}

	if err := healthCheck(ctx, checks); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("smart home core ready", "address", server.Addr())

	<-ctx.Done()
	log.Info("shutdown signal received")
	return nil
}

// startRecorder feeds store changes into the audit trail. The recorder runs
// on its own context so changes made while the API drains are still
// written before the database closes.
func startRecorder(store *hierarchy.Store, repo audit.Repository, log *logging.Logger, down *teardown) {
	ctx, cancel := context.WithCancel(context.Background())
	recorder := audit.NewRecorder(repo, audit.SourceAPI)
	recorder.SetLogger(log)
	go recorder.Run(ctx)
	store.AddObserver(recorder)

	down.push("audit recorder", func() error {
		cancel()
		<-recorder.Done()
		return nil
	})
}

// connectHistory connects to InfluxDB when enabled. It returns a nil client
// when history is switched off.
func connectHistory(cfg config.InfluxDBConfig, log *logging.Logger, down *teardown) (*influxdb.Client, error) {
	if !cfg.Enabled {
		log.Info("InfluxDB disabled")
		return nil, nil
	}
	client, err := influxdb.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	down.push("InfluxDB client", client.Close)
	log.Info("InfluxDB connected", "url", cfg.URL, "org", cfg.Org, "bucket", cfg.Bucket)
	return client, nil
}

// prepareTelemetry connects to the broker and builds the ingester, adding
// the broker, hub and ingester to deps. The ingester is not subscribed yet.
func prepareTelemetry(cfg *config.Config, deps *api.Deps, cache *latest.Cache, history *influxdb.Client, down *teardown) (*telemetry.Ingester, error) {
	log := deps.Logger
	client, err := mqtt.Connect(cfg.MQTT, cfg.Telemetry.TopicPrefix)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	down.push("MQTT client", client.Close)
	client.SetLogger(log)
	client.SetOnConnect(func() { log.Info("MQTT connected") })
	client.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
	log.Info("MQTT connected",
		"broker", net.JoinHostPort(cfg.MQTT.Broker.Host, strconv.Itoa(cfg.MQTT.Broker.Port)),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	deps.Hub = api.NewHub(cfg.WebSocket, log)
	opts := telemetry.Options{
		Subscriber:  client,
		Topics:      client.Topics(),
		QoS:         byte(cfg.MQTT.QoS),
		Locator:     deps.Store,
		Latest:      cache,
		Broadcaster: deps.Hub,
		Logger:      log,
	}
	// A nil *influxdb.Client must not become a non-nil interface.
	if history != nil {
		opts.Metrics = history
	}
	ingester, err := telemetry.New(opts)
	if err != nil {
		return nil, fmt.Errorf("creating telemetry ingester: %w", err)
	}

	deps.MQTT = client
	deps.Telemetry = ingester
	deps.HealthChecks["mqtt"] = client
	return ingester, nil
}

// getConfigPath returns $SMARTHOME_CONFIG, or the default path.
func getConfigPath() string {
	if path := os.Getenv("SMARTHOME_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck runs every startup check and returns the first failure.
func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	for name, c := range checks {
		if err := c.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
