// AI gateway server: authenticates callers, fans queries out to their
// role-permitted tool servers, and streams LLM replies back over SSE.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/codeready-toolchain/aigateway/pkg/api"
	"github.com/codeready-toolchain/aigateway/pkg/auth"
	"github.com/codeready-toolchain/aigateway/pkg/config"
	"github.com/codeready-toolchain/aigateway/pkg/confirm"
	"github.com/codeready-toolchain/aigateway/pkg/defense"
	"github.com/codeready-toolchain/aigateway/pkg/llm"
	"github.com/codeready-toolchain/aigateway/pkg/query"
	"github.com/codeready-toolchain/aigateway/pkg/ratelimit"
	"github.com/codeready-toolchain/aigateway/pkg/tools"
	"github.com/codeready-toolchain/aigateway/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func logLevel() slog.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func main() {
	// Parse command-line flags
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	port := flag.Int("port", 0, "HTTP listen port (overrides configuration)")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	// Install the process logger after .env so LOG_LEVEL from the file applies.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr,
		&slog.HandlerOptions{Level: logLevel()})))

	slog.Info("Starting aigateway",
		"version", version.Full(),
		"config_dir", *configDir)

	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	logger := slog.Default()

	// 2. Connect Redis when configured. Without it the revocation and
	// confirmation stores fall back to in-memory, single-replica mode.
	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			slog.Error("Invalid Redis URL", "error", err)
			os.Exit(1)
		}
		rdb = redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			slog.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				slog.Error("Error closing Redis client", "error", err)
			}
		}()
		slog.Info("Connected to Redis")
	}

	// 3. Fetch signing keys. In mock mode an unreachable identity provider
	// only warns so the gateway can run hermetically; live mode refuses to
	// start without keys.
	keys := auth.NewKeySet(cfg.Auth, logger)
	if err := keys.Refresh(ctx); err != nil {
		if cfg.LLM.MockMode() {
			slog.Warn("Initial JWKS fetch failed, keys will load on first refresh", "error", err)
		} else {
			slog.Error("Initial JWKS fetch failed", "url", cfg.Auth.JWKSURL, "error", err)
			os.Exit(1)
		}
	}
	verifier := auth.NewVerifier(cfg.Auth, keys, logger)

	var (
		revocations    auth.RevocationStore
		memRevocations *auth.MemoryRevocationStore
	)
	if rdb != nil {
		revocations = auth.NewRedisRevocationStore(rdb)
	} else {
		memRevocations = auth.NewMemoryRevocationStore(logger)
		revocations = memRevocations
	}

	var (
		confirmations    confirm.Store
		memConfirmations *confirm.MemoryStore
	)
	if rdb != nil {
		confirmations = confirm.NewRedisStore(rdb)
	} else {
		memConfirmations = confirm.NewMemoryStore(logger)
		confirmations = memConfirmations
	}
	slog.Info("Stores initialized", "redis_backed", rdb != nil)

	// 4. Defense service, tool client, LLM client
	defenseSvc := defense.NewService(cfg.Defense, logger)
	toolClient := tools.NewClient(cfg.Tools, logger)
	llmClient := llm.New(cfg.LLM, defenseSvc, logger)
	slog.Info("LLM client initialized", "model", cfg.LLM.Model, "mock", cfg.LLM.MockMode())

	// 5. Query orchestrator and active-stream registry
	streams := query.NewRegistry(logger)
	orchestrator := query.NewOrchestrator(cfg, toolClient, defenseSvc, llmClient,
		confirmations, query.NewSlogSink(logger), streams, logger)

	// 6. Rate limiters
	generalLimit := ratelimit.New(cfg.Limits.GeneralPerMinute, logger)
	queryLimit := ratelimit.New(cfg.Limits.QueryPerMinute, logger)

	// 7. Start background loops
	loopCtx, stopLoops := context.WithCancel(ctx)
	defer stopLoops()
	keys.Start(loopCtx)
	defenseSvc.Start(loopCtx)
	generalLimit.Start(loopCtx)
	queryLimit.Start(loopCtx)
	if memRevocations != nil {
		memRevocations.Start(loopCtx)
	}
	if memConfirmations != nil {
		memConfirmations.Start(loopCtx)
	}

	// 8. Create HTTP server
	httpServer := api.NewServer(cfg, verifier, keys, revocations, orchestrator,
		toolClient, confirmations, generalLimit, queryLimit, rdb, logger)

	// 9. Start HTTP server (non-blocking)
	errCh := make(chan error, 1)
	go func() {
		addr := ":" + strconv.Itoa(cfg.Server.Port)
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("aigateway started successfully",
		"tool_servers", cfg.Servers.Len(),
		"port", cfg.Server.Port)

	// 10. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 11. Graceful drain. The force-exit timer guarantees termination even
	// if a stream refuses to unwind.
	forceExit := time.AfterFunc(cfg.Server.DrainTimeout+10*time.Second, func() {
		slog.Error("Drain exceeded its budget, forcing exit")
		os.Exit(2)
	})
	defer forceExit.Stop()

	// Shutdown blocks until every connection goes idle, and streams only go
	// idle once drained, so it runs concurrently with the drain below.
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.Server.DrainTimeout)
	defer shutdownCancel()
	shutdownDone := make(chan error, 1)
	go func() {
		shutdownDone <- httpServer.Shutdown(shutdownCtx)
	}()

	stopLoops()

	streams.DrainAll()
	drainCtx, drainCancel := context.WithTimeout(ctx, cfg.Server.DrainTimeout)
	if streams.AwaitEmpty(drainCtx) {
		slog.Info("All streams drained")
	} else {
		slog.Warn("Drain timeout exceeded, abandoning remaining streams",
			"remaining", streams.Len())
	}
	drainCancel()

	if err := <-shutdownDone; err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	keys.Stop()
	defenseSvc.Stop()
	generalLimit.Stop()
	queryLimit.Stop()
	if memRevocations != nil {
		memRevocations.Stop()
	}
	if memConfirmations != nil {
		memConfirmations.Stop()
	}

	slog.Info("Shutdown complete")
}
