// cloud4rpi - Raspberry Pi device daemon for the cloud4rpi service.
//
// The daemon declares the variables and diagnostics listed in
// configs/config.yaml, binds them to GPIO pins, files, shell commands and
// system information, and keeps the cloud side in sync: it publishes
// readings on a fixed cadence and applies remote commands to the bound
// actuators.
//
// Optional local services: an offline spool (SQLite) that keeps telemetry
// while the link is down, an InfluxDB mirror, and a loopback HTTP API with a
// WebSocket live feed.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/cloud4rpi-go/migrations"

	"github.com/nerrad567/cloud4rpi-go/internal/api"
	"github.com/nerrad567/cloud4rpi-go/internal/bindings"
	"github.com/nerrad567/cloud4rpi-go/internal/device"
	"github.com/nerrad567/cloud4rpi-go/internal/infrastructure/config"
	"github.com/nerrad567/cloud4rpi-go/internal/infrastructure/database"
	"github.com/nerrad567/cloud4rpi-go/internal/infrastructure/influxdb"
	"github.com/nerrad567/cloud4rpi-go/internal/infrastructure/logging"
	"github.com/nerrad567/cloud4rpi-go/internal/runner"
	"github.com/nerrad567/cloud4rpi-go/internal/spool"
	"github.com/nerrad567/cloud4rpi-go/internal/sysinfo"
	"github.com/nerrad567/cloud4rpi-go/internal/transport"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "Interrupted")
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %s\n", transport.ErrorMessage(err))
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// It returns nil on a clean shutdown.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting cloud4rpi",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := config.Path()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	defer log.Close()
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)
	go toggleDebugOnSignal(ctx, log, cfg.Logging.Level)

	sys := sysinfo.New()
	builder := bindings.NewBuilder(bindings.WithSysinfo(sys))
	defer func() {
		if closeErr := builder.Close(); closeErr != nil {
			log.Error("error releasing gpio", "error", closeErr)
		}
	}()

	vars, err := builder.Variables(cfg.Variables)
	if err != nil {
		return fmt.Errorf("building variables: %w", err)
	}
	diags, err := builder.Diagnostics(cfg.Diagnostics)
	if err != nil {
		return fmt.Errorf("building diagnostics: %w", err)
	}

	link, err := connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing cloud link")
		if closeErr := link.conn.Close(); closeErr != nil {
			log.Error("error closing cloud link", "error", closeErr)
		}
	}()

	out := link.conn
	runnerOpts := []runner.Option{runner.WithLogger(log)}
	if link.poller != nil {
		runnerOpts = append(runnerOpts, runner.WithPoller(link.poller))
	}

	var sp *spool.Spool
	if cfg.Spool.Enabled {
		db, dbErr := openDatabase(ctx, cfg, log)
		if dbErr != nil {
			return dbErr
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()

		sp = spool.New(out, db, cfg.Spool.MaxMessages)
		sp.SetLogger(log)
		out = sp
		runnerOpts = append(runnerOpts, runner.WithSpool(sp))
		log.Info("offline spool enabled", "max_messages", cfg.Spool.MaxMessages)
	}

	var sinks []transport.Sink

	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB, deviceTag(sys))
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
			log.Info("InfluxDB mirror closed",
				"points_written", influxClient.Written(),
				"write_errors", influxClient.Failed(),
			)
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		sinks = append(sinks, influxClient)
		log.Info("InfluxDB mirror enabled",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	var hub *api.Hub
	if cfg.API.Enabled {
		hub = api.NewHub(cfg.API.WS, log)
		sinks = append(sinks, hub)
	}

	dev := device.New(transport.NewAdapter(transport.Tee(out, sinks...)), device.WithLogger(log))
	if err := dev.Declare(vars); err != nil {
		return fmt.Errorf("declaring variables: %w", err)
	}
	if err := dev.DeclareDiag(diags); err != nil {
		return fmt.Errorf("declaring diagnostics: %w", err)
	}

	loop, err := runner.New(dev, runner.Config{
		DataInterval:        cfg.DataInterval(),
		DiagnosticsInterval: cfg.DiagnosticsInterval(),
		PollInterval:        cfg.PollInterval(),
	}, runnerOpts...)
	if err != nil {
		return err
	}

	if cfg.API.Enabled {
		deps := api.Deps{
			Config:  cfg.API,
			Logger:  log,
			Device:  dev,
			Hub:     hub,
			Runner:  loop,
			Version: version,
		}
		if sp != nil {
			deps.Spool = sp
		}
		if link.status != nil {
			deps.Link = link.status
		}

		srv, apiErr := api.New(deps)
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		go hub.Run(ctx)
		if startErr := srv.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	log.Info("initialisation complete",
		"transport", cfg.Transport.Kind,
		"variables", dev.VariableCount(),
		"diagnostics", dev.DiagnosticCount(),
	)

	if err := loop.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}

	log.Info("cloud4rpi stopped")
	return nil
}

// cloudLink is the connected transport plus the optional roles it plays.
type cloudLink struct {
	conn   transport.Conn
	poller runner.Poller   // set for HTTP
	status api.LinkSource // set for MQTT
}

// connect opens the configured transport. MQTT connections are retried
// following the transport section of the config.
func connect(ctx context.Context, cfg *config.Config, log *logging.Logger) (cloudLink, error) {
	switch cfg.Transport.Kind {
	case config.TransportHTTP:
		h, err := transport.NewHTTP(cfg.HTTP, cfg.Device.Token, log)
		if err != nil {
			return cloudLink{}, err
		}
		log.Info("using HTTP transport", "base_url", cfg.HTTP.BaseURL)
		return cloudLink{conn: h, poller: h}, nil

	default:
		policy := transport.RetryPolicyFromConfig(cfg.Transport)
		m, err := transport.ConnectWithRetry(ctx, policy, log, func() (*transport.MQTT, error) {
			return transport.DialMQTT(cfg.MQTT, cfg.Device.Token, log)
		})
		if err != nil {
			return cloudLink{}, err
		}
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		)
		return cloudLink{conn: m, status: m}, nil
	}
}

// deviceTag names this device on mirrored points.
func deviceTag(sys *sysinfo.Collector) string {
	host, err := sys.Hostname()
	if err != nil {
		return "cloud4rpi"
	}
	return fmt.Sprint(host)
}

// openDatabase opens the spool database and applies migrations.
func openDatabase(ctx context.Context, cfg *config.Config, log *logging.Logger) (*database.DB, error) {
	db, err := database.Open(database.ConfigFrom(cfg.Database))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	log.Info("database connected", "path", db.Path())

	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	version, err := db.SchemaVersion(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}
	log.Info("database migrations complete", "schema_version", version)
	return db, nil
}

// toggleDebugOnSignal flips debug logging on SIGUSR1 until ctx ends.
func toggleDebugOnSignal(ctx context.Context, log *logging.Logger, configured string) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGUSR1)
	defer signal.Stop(sig)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sig:
			log.Warn("log level changed", "level", log.ToggleDebug(configured).String())
		}
	}
}
