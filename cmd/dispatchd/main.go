// dispatchd runs the support dispatch core: the HTTP API, the priority
// queue dispatcher, the SLA sweeper, the response pacer, and the
// websocket event stream.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ocintel/dispatch/pkg/api"
	"github.com/ocintel/dispatch/pkg/cleanup"
	"github.com/ocintel/dispatch/pkg/config"
	"github.com/ocintel/dispatch/pkg/conversation"
	"github.com/ocintel/dispatch/pkg/database"
	"github.com/ocintel/dispatch/pkg/directory"
	"github.com/ocintel/dispatch/pkg/escalation"
	"github.com/ocintel/dispatch/pkg/events"
	"github.com/ocintel/dispatch/pkg/knowledge"
	"github.com/ocintel/dispatch/pkg/qa"
	"github.com/ocintel/dispatch/pkg/queue"
	"github.com/ocintel/dispatch/pkg/services"
	"github.com/ocintel/dispatch/pkg/stealth"
	"github.com/ocintel/dispatch/pkg/version"
)

// wsWriteTimeout bounds each websocket send before the connection is
// considered stuck and dropped.
const wsWriteTimeout = 10 * time.Second

// storage is the full persistence surface the process wires: session and
// profile writes for the services layer, evaluations for the QA evaluator,
// and the retention deletes. *database.Store and *database.MemoryStore both
// satisfy it.
type storage interface {
	services.Store
	qa.Store
	cleanup.EvaluationStore
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	// Parse command-line flags
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	storageMode := getEnv("STORAGE_MODE", "postgres")

	slog.Info("Starting dispatchd",
		"version", version.Full(),
		"http_port", httpPort,
		"storage_mode", storageMode,
		"config_dir", *configDir)

	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.Initialize(*configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize storage. STORAGE_MODE=memory runs without PostgreSQL;
	// state is lost on restart.
	var store storage
	var healthDB *sql.DB
	switch storageMode {
	case "memory":
		store = database.NewMemoryStore()
		slog.Warn("Running with in-memory storage, sessions will not survive a restart")
	case "postgres":
		dbConfig, err := database.LoadConfigFromEnv()
		if err != nil {
			slog.Error("Failed to load database config", "error", err)
			os.Exit(1)
		}

		dbClient, err := database.NewClient(ctx, dbConfig)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := dbClient.Close(); err != nil {
				slog.Error("Error closing database client", "error", err)
			}
		}()

		store = database.NewStore(dbClient.DB())
		healthDB = dbClient.DB()
		slog.Info("Connected to PostgreSQL database")
	default:
		slog.Error("Unknown STORAGE_MODE", "storage_mode", storageMode)
		os.Exit(1)
	}

	// 3. Initialize event streaming infrastructure
	hub := events.NewHub(0)
	publisher := events.NewPublisher(hub)

	connManager := events.NewConnectionManager(wsWriteTimeout)
	go connManager.Run(hub)
	slog.Info("Streaming infrastructure initialized")

	// 4. Initialize domain services
	sessionService := services.NewSessionService(store, publisher)
	profileService := services.NewProfileService(store)
	kb := knowledge.NewRegistry(cfg.Knowledge)
	agents := directory.New(kb)
	slog.Info("Services initialized")

	// 5. Start dispatcher and SLA sweeper (before the HTTP server)
	dispatcher := queue.NewDispatcher(queue.NewPriorityQueue(), agents, sessionService, publisher, cfg.Queue)
	dispatcher.Start(ctx)

	sweeper := queue.NewSLASweeper(sessionService, publisher, cfg.Queue.SLASweepInterval)
	sweeper.Start(ctx)

	// 6. Recover persisted state: warm the session cache, put waiting
	// sessions back on the queue, and rebuild QA scoring averages.
	recovered, err := sessionService.RecoverState(ctx)
	if err != nil {
		slog.Error("Failed to recover session state", "error", err)
		os.Exit(1)
	}
	for _, sess := range recovered {
		dispatcher.Enqueue(sess)
	}
	if len(recovered) > 0 {
		slog.Info("Re-enqueued recovered sessions", "count", len(recovered))
	}

	evaluator := qa.NewEvaluator(store, cfg.Scorecards, agents, publisher, cfg.QA)
	if err := evaluator.RecoverStats(ctx); err != nil {
		slog.Error("Failed to recover QA stats", "error", err)
		os.Exit(1)
	}

	// 7. Start the retention sweep
	cleanupService := cleanup.NewService(cfg.Retention, sessionService, store)
	cleanupService.Start(ctx)

	// 8. Wire the escalation engine, conversation runtime, and pacer
	engine := escalation.NewEngine(cfg.EscalationRules, agents, sessionService,
		dispatcher, publisher, cfg.Escalation.EnableAutoReenqueue)
	runtime := conversation.NewRuntime(cfg.Prompts, cfg.Intent, sessionService)
	pacer := stealth.NewPacer(cfg.Stealth, publisher)

	// 9. Create HTTP server
	server := api.NewServer(api.Deps{
		Config:      cfg,
		Sessions:    sessionService,
		Profiles:    profileService,
		Runtime:     runtime,
		Engine:      engine,
		Dispatcher:  dispatcher,
		Agents:      agents,
		Knowledge:   kb,
		Evaluator:   evaluator,
		Pacer:       pacer,
		ConnManager: connManager,
		DB:          healthDB,
	})

	httpServer := &http.Server{
		Addr:    ":" + httpPort,
		Handler: server.Router(),
	}

	// 10. Start HTTP server (non-blocking)
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("dispatchd started successfully",
		"queue_depth", dispatcher.Depth(),
		"stealth_enabled", cfg.Stealth.Enabled)

	// 11. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 12. Graceful shutdown. Stop the HTTP surface first so no new work
	// arrives, then drain the background loops.
	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	drainCtx, drainCancel := context.WithTimeout(ctx, cfg.Queue.GracefulShutdownTimeout)
	defer drainCancel()

	done := make(chan struct{})
	go func() {
		dispatcher.Stop()
		sweeper.Stop()
		cleanupService.Stop()
		pacer.Stop()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("Background loops stopped gracefully")
	case <-drainCtx.Done():
		slog.Warn("Shutdown timeout exceeded, abandoning background loops")
	}

	connManager.Stop()
	hub.Close()

	slog.Info("Shutdown complete")
}
