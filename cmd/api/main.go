package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/ffe-procurement/api/controllers"
	"github.com/angelmondragon/ffe-procurement/api/routes"
	"github.com/angelmondragon/ffe-procurement/internal/procurement"
	"github.com/angelmondragon/ffe-procurement/pkg/config"
	"github.com/angelmondragon/ffe-procurement/pkg/db"
	"github.com/angelmondragon/ffe-procurement/pkg/logger"
	"github.com/angelmondragon/ffe-procurement/pkg/metrics"
	"github.com/angelmondragon/ffe-procurement/pkg/migrate"
	"github.com/angelmondragon/ffe-procurement/pkg/redis"
)

const (
	serviceName     = "ffe-api"
	shutdownTimeout = 15 * time.Second
)

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svcs, err := procurement.New(procurement.Params{
		Config:  cfg,
		Logger:  logg,
		DB:      dbClient,
		Metrics: metrics.NewOperationMetrics(promRegistry),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to wire procurement services", err)
		os.Exit(1)
	}

	handler := routes.NewRouter(routes.Dependencies{
		Config:      cfg,
		Logger:      logg,
		Gatherer:    promRegistry,
		HTTPMetrics: metrics.NewHTTPMetrics(promRegistry),
		Readiness: map[string]controllers.Pinger{
			"database": dbClient,
			"redis":    redisClient,
		},
		Idempotency:  redisClient,
		Items:        svcs.Items,
		Activity:     svcs.Activity,
		Engine:       svcs.Engine,
		Quotes:       svcs.Quotes,
		Acceptance:   svcs.Acceptance,
		ClientQuotes: svcs.ClientQuotes,
		Payments:     svcs.Payments,
		Orders:       svcs.Orders,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"addr":        addr,
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(shutdownCtx, "api server shutdown failed", err)
		os.Exit(1)
	}
	logg.Info(shutdownCtx, "api server shut down gracefully")
}
