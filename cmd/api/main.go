package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/flakefi/flake-backend/internal/api"
	"github.com/flakefi/flake-backend/internal/bank"
	"github.com/flakefi/flake-backend/internal/config"
	"github.com/flakefi/flake-backend/internal/exchange"
	"github.com/flakefi/flake-backend/internal/history"
	"github.com/flakefi/flake-backend/internal/log"
	"github.com/flakefi/flake-backend/internal/metrics"
	"github.com/flakefi/flake-backend/internal/store"
	"github.com/flakefi/flake-backend/internal/ws"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger, err := log.NewSugar(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Infow("Starting Flake exchange API server",
		"env", cfg.Env,
		"addr", cfg.HTTPAddr,
		"version", "v1.0.0",
	)

	// Setup metrics
	metricsObj, metricsHandler, err := metrics.Setup("flake")
	if err != nil {
		logger.Fatalw("Failed to setup metrics", "error", err)
	}

	// Setup Redis cache (falls back to in-memory when Redis is unreachable)
	cache, err := store.NewCache(cfg.Cache.RedisAddr, logger, metricsObj)
	if err != nil {
		logger.Fatalw("Failed to setup cache", "error", err)
	}
	defer cache.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := cache.Ping(ctx); err != nil {
		logger.Fatalw("Cache ping failed", "error", err)
	}
	logger.Infow("Cache ready", "in_memory", cache.IsInMemoryMode())

	// Optional trade history database
	var historyRepo *history.Repository
	if dsn := cfg.Database.PostgresDSN; dsn != "" {
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			logger.Fatalw("Failed to open database", "error", err)
		}
		defer db.Close()

		if err := db.PingContext(ctx); err != nil {
			logger.Fatalw("Database ping failed", "error", err)
		}
		historyRepo = history.NewRepository(db, logger)
		logger.Infow("Trade history database connected")
	} else {
		logger.Infow("No database configured, trade history disabled")
	}

	// Setup the settlement engine over a fresh in-memory ledger
	engine := exchange.NewEngine(exchange.NewMemoryState(), bank.New(), cfg.EngineSeed())
	engine.SetLogger(logger)
	engine.SetSink(api.NewCacheSink(cache, logger))
	engine.SetMaxPendingRequests(cfg.Exchange.MaxPendingReqs)

	if cfg.Exchange.Authority != "" {
		feeRecipient := cfg.Exchange.FeeRecipient
		if feeRecipient == "" {
			feeRecipient = cfg.Exchange.Authority
		}
		if _, err := engine.Initialize(
			bank.Address(cfg.Exchange.Authority),
			bank.Address(feeRecipient),
			cfg.Exchange.ProtocolFeeBps,
		); err != nil {
			logger.Fatalw("Failed to initialize factory", "error", err)
		}
		logger.Infow("Factory initialized",
			"authority", cfg.Exchange.Authority,
			"protocol_fee_bps", cfg.Exchange.ProtocolFeeBps,
		)
	} else {
		logger.Warnw("No factory authority configured, pair creation stays disabled until initialization")
	}

	// Setup WebSocket hub and SSE handler
	wsHub := ws.NewHub(cache, logger, metricsObj)
	sseHandler := ws.NewSSEHandler(cache, logger)

	// Create context for background services
	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()

	// Start WebSocket hub in background
	go wsHub.Run(hubCtx)

	// Periodic registry snapshots into the history database
	if cfg.Exchange.SnapshotEnabled && historyRepo != nil {
		go runSnapshots(hubCtx, engine, historyRepo, logger)
	}

	// Setup API handler and middleware
	handler := api.NewHandler(engine, historyRepo, wsHub, sseHandler, cache, cfg, logger, metricsObj)
	middleware := api.NewMiddleware(logger, metricsObj)

	// Create router with middleware and routes - pass security config to Routes
	router := handler.Routes(middleware, cfg.Security.CORSAllowedOrigins, cfg.Security.RateLimitRPM)

	logger.Infow("CORS configured", "allowed_origins", cfg.Security.CORSAllowedOrigins)

	// Add metrics endpoint
	router.Handle("/metrics", metricsHandler)

	// Setup HTTP server
	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		logger.Infow("API server starting", "addr", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	// Wait for interrupt signal
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Fatalw("Server startup failed", "error", err)
	case sig := <-shutdown:
		logger.Infow("Shutdown signal received", "signal", sig.String())

		// Give outstanding requests 30 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Errorw("Graceful shutdown failed", "error", err)
			server.Close()
		}

		logger.Infow("Server stopped")
	}
}

// runSnapshots stores the serialized registry for every pair on a fixed
// cadence so the exchange can be audited or rebuilt after a restart.
func runSnapshots(ctx context.Context, engine *exchange.Engine, repo *history.Repository, logger *zap.SugaredLogger) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			blob, err := engine.Snapshot()
			if err != nil {
				logger.Warnw("Snapshot encoding failed", "error", err)
				continue
			}
			pairs, err := engine.Pairs()
			if err != nil {
				logger.Warnw("Snapshot pair listing failed", "error", err)
				continue
			}

			takenAt := time.Now().Unix()
			storeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			for _, pair := range pairs {
				if err := repo.StorePairSnapshot(storeCtx, pair, blob, takenAt); err != nil {
					logger.Warnw("Snapshot persist failed", "pair", pair.CreationNumber, "error", err)
				}
			}
			cancel()
			logger.Infow("Registry snapshot stored", "pairs", len(pairs), "bytes", len(blob))
		}
	}
}
