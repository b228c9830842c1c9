// Command statecraftd loads one persisted state machine, wires the
// execution engine and history log to it, and serves the HTTP control
// surface operators drive start/stop/step/clipboard requests through.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"

	"github.com/corestate/statecraft/internal/control"
	"github.com/corestate/statecraft/internal/engine"
	"github.com/corestate/statecraft/internal/history"
	"github.com/corestate/statecraft/internal/observer"
	"github.com/corestate/statecraft/internal/platform/envutil"
	"github.com/corestate/statecraft/internal/platform/logger"
	"github.com/corestate/statecraft/internal/platform/telemetry"
	"github.com/corestate/statecraft/internal/storage"
)

type config struct {
	ListenAddr              string
	WorkspacePath           string
	HistoryDBPath           string
	HistoryIndexPath        string
	HistoryIndexPostgresDSN string
	JWTSecretKey            string
	ServiceName             string
	RedisAddr               string
	RedisChannel            string
	SuspensionPollInterval  time.Duration
}

func loadConfig() config {
	return config{
		ListenAddr:              envutil.Str("LISTEN_ADDR", ":8080"),
		WorkspacePath:           envutil.Str("WORKSPACE_PATH", "./workspace"),
		HistoryDBPath:           envutil.Str("HISTORY_DB_PATH", "./history.db"),
		HistoryIndexPath:        envutil.Str("HISTORY_INDEX_PATH", "./history_index.db"),
		HistoryIndexPostgresDSN: envutil.Str("HISTORY_INDEX_POSTGRES_DSN", ""),
		JWTSecretKey:            envutil.Str("JWT_SECRET_KEY", "defaultsecret"),
		ServiceName:             envutil.Str("SERVICE_NAME", "statecraftd"),
		RedisAddr:               envutil.Str("REDIS_ADDR", ""),
		RedisChannel:            envutil.Str("REDIS_EVENTS_CHANNEL", "statecraft-events"),
		SuspensionPollInterval:  envutil.Duration("SUSPENSION_POLL_INTERVAL", 25*time.Millisecond),
	}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	log, err := logger.New(envutil.Str("LOG_MODE", "development"))
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer log.Sync()

	cfg := loadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry := telemetry.Init(ctx, log, telemetry.ConfigFromEnv(cfg.ServiceName))
	defer shutdownTelemetry(context.Background())

	fs := afero.NewOsFs()
	store := storage.New(fs)
	sm, err := store.Load(cfg.WorkspacePath)
	if err != nil {
		return fmt.Errorf("loading state machine from %s: %w", cfg.WorkspacePath, err)
	}
	log.Info("state machine loaded", "path", cfg.WorkspacePath, "root", sm.Root.Name)

	boltStore, err := history.OpenBoltStore(cfg.HistoryDBPath)
	if err != nil {
		return fmt.Errorf("opening history store: %w", err)
	}
	defer boltStore.Close()

	historyLog := history.NewLog(boltStore)
	loader := storage.NewLoader(store)
	eng := engine.New(engine.Config{SuspensionPollInterval: cfg.SuspensionPollInterval}, historyLog, loader)

	// The secondary queryable index defaults to sqlite for a single-operator deployment;
	// setting HISTORY_INDEX_POSTGRES_DSN switches it to postgres for a
	// shared, multi-instance deployment.
	var index *history.Index
	if cfg.HistoryIndexPostgresDSN != "" {
		index, err = history.OpenIndexPostgres(cfg.HistoryIndexPostgresDSN)
	} else {
		index, err = history.OpenIndex(cfg.HistoryIndexPath)
	}
	if err != nil {
		return fmt.Errorf("opening history index: %w", err)
	}
	defer index.Close()

	// Optional cross-process notification fan-out: with REDIS_ADDR set,
	// every before/after notification bubbling up to the root dispatcher is
	// republished for out-of-process observers.
	if cfg.RedisAddr != "" {
		bus, err := observer.NewRedisBus(ctx, log, cfg.RedisAddr, cfg.RedisChannel, sm.ID)
		if err != nil {
			return fmt.Errorf("connecting event bus: %w", err)
		}
		defer bus.Close()
		unsub := bus.Attach(sm.Root.Dispatcher)
		defer unsub()
	}

	ws := control.NewWorkspace(sm, eng, historyLog, index)
	auth := control.NewAuthMiddleware(cfg.JWTSecretKey)
	router := control.NewRouter(control.RouterConfig{Workspace: ws, Auth: auth, ServiceName: cfg.ServiceName})

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: router}

	errCh := make(chan error, 1)
	go func() {
		log.Info("control surface listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		return fmt.Errorf("control surface: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ws.Engine.Stop()
	return srv.Shutdown(shutdownCtx)
}
