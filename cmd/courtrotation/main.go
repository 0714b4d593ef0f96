// Court Rotation - reservation queue automation service.
//
// The service keeps a pool of twelve users rotating across a court's
// reservation queue in three groups of four. It exposes an HTTP API for
// starting, stopping, and inspecting automation, ticks itself on a
// schedule, and records everything it does in a SQLite audit log.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/nerrad567/court-rotation/internal/api"
	"github.com/nerrad567/court-rotation/internal/courtapi"
	"github.com/nerrad567/court-rotation/internal/events"
	"github.com/nerrad567/court-rotation/internal/history"
	"github.com/nerrad567/court-rotation/internal/infrastructure/config"
	"github.com/nerrad567/court-rotation/internal/infrastructure/logging"
	"github.com/nerrad567/court-rotation/internal/infrastructure/store"
	"github.com/nerrad567/court-rotation/internal/rotation"
	"github.com/nerrad567/court-rotation/internal/scheduler"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Optional .env for local development; silently absent in production.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting court rotation service",
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

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Session state store
	kv, err := buildStore(cfg)
	if err != nil {
		return fmt.Errorf("creating session store: %w", err)
	}
	defer func() {
		log.Info("closing session store")
		if closeErr := kv.Close(); closeErr != nil {
			log.Error("error closing session store", "error", closeErr)
		}
	}()

	if err := store.WaitReady(ctx, kv, 0); err != nil {
		return fmt.Errorf("session store not ready: %w", err)
	}
	log.Info("session store ready", "backend", cfg.Store.Backend)

	// Reservation service client
	client := courtapi.New(courtapi.Config{
		BaseURL:       cfg.CourtAPI.BaseURL,
		AdminPassword: cfg.CourtAPI.AdminPassword,
		Referer:       cfg.CourtAPI.Referer,
		Timeout:       cfg.CourtAPITimeout(),
	})

	// Audit log (optional)
	var recorder rotation.HistoryRecorder
	var historyRepo *history.Repository
	if cfg.History.Enabled {
		historyRepo, err = history.Open(history.Config{
			Path:        cfg.History.Path,
			BusyTimeout: cfg.History.BusyTimeout,
			WALMode:     cfg.History.WALMode,
		})
		if err != nil {
			return fmt.Errorf("opening history database: %w", err)
		}
		defer func() {
			log.Info("closing history database")
			if closeErr := historyRepo.Close(); closeErr != nil {
				log.Error("error closing history database", "error", closeErr)
			}
		}()
		recorder = historyRepo
		log.Info("history database connected", "path", cfg.History.Path)
	} else {
		log.Info("history disabled")
	}

	// Event notifier (optional)
	var notifier rotation.Notifier
	if cfg.MQTT.Enabled {
		mqttNotifier, connErr := events.Connect(cfg.MQTT)
		if connErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", connErr)
		}
		mqttNotifier.SetLogger(log)
		defer func() {
			log.Info("disconnecting from MQTT")
			mqttNotifier.Close()
		}()
		notifier = mqttNotifier
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	// Rotation core
	sessions := rotation.NewSessionStore(kv, cfg.StoreTTL(), log)
	pool := rotation.NewPoolManager(client, sessions, log)
	manager := rotation.NewManager(client, pool, sessions, recorder, notifier, log,
		cfg.RotationInterval(), cfg.InitialSettleDelay())
	engine := rotation.NewEngine(client, sessions, recorder, notifier, log,
		cfg.RotationInterval(), cfg.SettleDelay())

	// Scheduler
	sched := scheduler.New(engine, cfg.RotationInterval(), log)
	sched.Start(ctx)
	defer sched.Close()

	// HTTP API
	var historyReader api.HistoryReader
	if historyRepo != nil {
		historyReader = historyRepo
	}
	server, err := api.New(api.Deps{
		Config:  cfg.API,
		Logger:  log,
		Manager: manager,
		Courts:  client,
		Ticker:  sched,
		Store:   kv,
		History: historyReader,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. Scheduler
	// 3. MQTT (if enabled)
	// 4. History database (if enabled)
	// 5. Session store

	log.Info("court rotation service stopped")
	return nil
}

// buildStore creates the configured key-value backend.
func buildStore(cfg *config.Config) (store.KV, error) {
	switch cfg.Store.Backend {
	case "redis":
		return store.NewRedis(cfg.Store.Redis.URL)
	case "rest":
		return store.NewRESTKV(cfg.Store.REST.URL, cfg.Store.REST.Token, cfg.RESTStoreTimeout()), nil
	case "memory":
		return store.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// getConfigPath returns the configuration file path.
// Uses COURTROTATION_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("COURTROTATION_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
