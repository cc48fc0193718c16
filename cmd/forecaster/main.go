// Command forecaster serves daily energy-load forecasts over HTTP.
//
// A request for N days is answered from the result cache when possible. On a
// miss the computation is queued on a bounded worker pool and the caller gets
// 202 Accepted with a request id to poll; the worker writes the points to the
// forecast store and the cache, so the next request for N days is a hit.
//
// The forecaster serves an HTTP API on port 8000 (configurable) providing:
//   - GET /predict?days=<1..365>  - forecast for the next N days
//   - GET /get_forecasts          - every stored forecast point
//   - GET /requests/{id}          - status of a queued computation
//   - GET /healthz, /readyz       - liveness and readiness
//   - GET /metrics                - Prometheus metrics endpoint
//
// Usage:
//
//	forecaster \
//	  -model-path=models/model.json \
//	  -db-host=postgres -db-name=energy \
//	  -cache=redis -redis-addr=redis:6379
//
// Environment variables mirror the flags: MODEL_PATH, STORAGE, DB_HOST,
// DB_PORT, DB_NAME, DB_USER, DB_PASS, DB_CONNECT_ATTEMPTS, DB_CONNECT_DELAY,
// DB_RETRY_BACKOFF, CACHE, REDIS_ADDR, CACHE_TTL, CACHE_STRICT, WORKERS,
// QUEUE_SIZE, COMPUTE_TIMEOUT, API_KEY, RATE_LIMIT, RATE_BURST, TRUST_PROXY,
// GRPC_LISTEN, LOG_LEVEL, LOG_FORMAT. A .env file is read at startup.
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HatiCode/loadcast/cmd/forecaster/config"
	"github.com/HatiCode/loadcast/cmd/forecaster/metrics"
	"github.com/HatiCode/loadcast/cmd/forecaster/router"
	"github.com/HatiCode/loadcast/pkg/httpx"
	"github.com/HatiCode/loadcast/pkg/logger"
	"github.com/HatiCode/loadcast/pkg/models"
	loadcasttls "github.com/HatiCode/loadcast/pkg/tls"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	cfg, err := config.ParseFlags()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(2)
	}

	log := logger.New(cfg.LogFormat, cfg.LogLevel, nil)
	slog.SetDefault(log)

	log.Info("starting loadcast forecaster",
		"version", version,
		"storage", cfg.Storage,
		"cache", cfg.Cache,
		"workers", cfg.Workers,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New(nil)

	model := models.LoadHandle(ctx, cfg.ModelPath, log)
	m.SetModelAvailable(model.Available())

	b := &backends{ready: map[string]func(context.Context) error{
		"model": func(context.Context) error { return model.Err() },
	}}

	if err := openStore(ctx, cfg, b, log); err != nil {
		log.Error("forecast store unavailable, exiting", "error", err)
		b.Close()
		os.Exit(1)
	}
	if err := openCache(cfg, b, log, m); err != nil {
		log.Error("result cache unavailable, exiting", "error", err)
		b.Close()
		os.Exit(1)
	}
	defer b.Close()

	worker := NewWorker(model, b.store, b.store, b.cache, cfg.CacheTTL, cfg.ComputeTimeout, log)
	pool := NewPool(cfg.Workers, cfg.QueueSize, worker.Run, log, m)
	pool.Start(ctx)

	// The marker must outlive a queued job plus its computation.
	claimTTL := max(2*cfg.ComputeTimeout, 5*time.Minute)
	dispatcher := NewDispatcher(model, b.cache, b.store, pool, claimTTL, log, m)

	var limiter *httpx.RateLimiter
	if cfg.RateLimit > 0 {
		limiter = httpx.NewRateLimiter(cfg.RateLimit, cfg.RateBurst)
		limiter.TrustProxy = cfg.TrustProxy
	}

	mux := router.SetupRoutes(router.Options{
		Dispatcher:  dispatcher,
		Store:       b.store,
		Ledger:      b.store,
		ReadyChecks: b.ready,
		APIKey:      cfg.APIKey,
		Limiter:     limiter,
		Logger:      log,
	})
	handler := httpx.Chain(mux, httpx.LoggingMiddleware(log), httpx.RecoveryMiddleware(log))
	var serverTLS *tls.Config
	if cfg.TLS.Enabled {
		serverTLS, err = loadcasttls.NewServerTLSConfig(cfg.TLS)
		if err != nil {
			log.Error("failed to load TLS config", "error", err)
			os.Exit(1)
		}
	}
	httpServer := httpx.NewServer(cfg.Listen, handler, serverTLS, log)

	serverErr := make(chan error, 2)
	go func() {
		serverErr <- httpServer.Start()
	}()

	var grpcHealth *healthServer
	if cfg.GRPCListen != "" {
		grpcHealth, err = newHealthServer(cfg.GRPCListen, model, log)
		if err != nil {
			log.Error("failed to start grpc health server", "error", err)
			os.Exit(1)
		}
		go func() {
			if err := grpcHealth.Serve(); err != nil {
				serverErr <- fmt.Errorf("grpc health server: %w", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig)
	case err := <-serverErr:
		if err != nil {
			log.Error("server failed", "error", err)
		}
	}

	log.Info("shutting down")

	exitCode := 0
	if err := httpServer.Stop(10 * time.Second); err != nil {
		log.Error("server shutdown failed", "error", err)
		exitCode = 1
	}
	if grpcHealth != nil {
		grpcHealth.Stop(5 * time.Second)
	}
	if err := pool.Stop(cfg.ComputeTimeout); err != nil {
		log.Error("worker pool shutdown failed", "error", err)
		exitCode = 1
	}
	cancel()

	log.Info("shutdown complete")
	if exitCode != 0 {
		b.Close()
		os.Exit(exitCode)
	}
}
