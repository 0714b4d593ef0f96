// Court Rotation MCP server - exposes the automation as Model Context
// Protocol tools over stdio.
//
// The MCP binary shares session state with the main service through the
// configured store, so tools see and drive the same automation. It does
// not run its own schedule; rotation ticks happen only when an agent
// calls trigger_rotation_tick.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/nerrad567/court-rotation/internal/courtapi"
	"github.com/nerrad567/court-rotation/internal/infrastructure/config"
	"github.com/nerrad567/court-rotation/internal/infrastructure/logging"
	"github.com/nerrad567/court-rotation/internal/infrastructure/store"
	"github.com/nerrad567/court-rotation/internal/mcp"
	"github.com/nerrad567/court-rotation/internal/rotation"
	"github.com/nerrad567/court-rotation/internal/scheduler"
)

var version = "dev"

const defaultConfigPath = "configs/config.yaml"

func main() {
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("COURTROTATION_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Stdio carries the protocol, so logs must go to stderr.
	cfg.Logging.Output = "stderr"
	log := logging.New(cfg.Logging, version)

	kv, err := buildStore(cfg)
	if err != nil {
		return fmt.Errorf("creating session store: %w", err)
	}
	defer kv.Close() //nolint:errcheck // best effort on shutdown

	if err := store.WaitReady(ctx, kv, 0); err != nil {
		return fmt.Errorf("session store not ready: %w", err)
	}

	client := courtapi.New(courtapi.Config{
		BaseURL:       cfg.CourtAPI.BaseURL,
		AdminPassword: cfg.CourtAPI.AdminPassword,
		Referer:       cfg.CourtAPI.Referer,
		Timeout:       cfg.CourtAPITimeout(),
	})

	sessions := rotation.NewSessionStore(kv, cfg.StoreTTL(), log)
	pool := rotation.NewPoolManager(client, sessions, log)
	manager := rotation.NewManager(client, pool, sessions, nil, nil, log,
		cfg.RotationInterval(), cfg.InitialSettleDelay())
	engine := rotation.NewEngine(client, sessions, nil, nil, log,
		cfg.RotationInterval(), cfg.SettleDelay())

	// Unstarted scheduler: Trigger runs ticks inline on demand.
	ticker := scheduler.New(engine, cfg.RotationInterval(), log)

	server, err := mcp.New(mcp.Deps{
		Manager: manager,
		Courts:  client,
		Ticker:  ticker,
		Logger:  log,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	return server.Run(ctx)
}

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
