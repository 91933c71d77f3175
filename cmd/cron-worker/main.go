package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/ffe-procurement/internal/cron"
	"github.com/angelmondragon/ffe-procurement/internal/procurement"
	"github.com/angelmondragon/ffe-procurement/pkg/config"
	"github.com/angelmondragon/ffe-procurement/pkg/db"
	"github.com/angelmondragon/ffe-procurement/pkg/logger"
	"github.com/angelmondragon/ffe-procurement/pkg/metrics"
	"github.com/angelmondragon/ffe-procurement/pkg/migrate"
	"github.com/angelmondragon/ffe-procurement/pkg/outbox"
	"github.com/angelmondragon/ffe-procurement/pkg/redis"
)

const serviceName = "ffe-cron-worker"

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
	cfg.Service.Kind = "cron-worker"

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

	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:        logg,
		DB:            dbClient,
		Repository:    svcs.OutboxRepo,
		RetentionDays: cfg.Cron.OutboxRetentionDays,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}
	sweep, err := cron.NewPaymentSweepJob(cron.PaymentSweepJobParams{
		Logger:     logg,
		Repository: svcs.PaymentsRepo,
		Payments:   svcs.Payments,
		Grace:      cfg.Cron.PaymentSweepGrace,
		Limit:      cfg.Cron.PaymentSweepLimit,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment sweep job", err)
		os.Exit(1)
	}

	dlqMonitor, err := cron.NewDLQMonitorJob(cron.DLQMonitorJobParams{
		Logger:     logg,
		Repository: outbox.NewDLQRepository(dbClient.DB()),
		Metrics:    metrics.NewOutboxMetrics(promRegistry),
		Lookback:   cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create dlq monitor job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry, err := cron.NewRegistry(sweep, retention, dlqMonitor)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metrics.NewJobMetrics(promRegistry),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	go func() {
		if err := metrics.Serve(ctx, metrics.NewServer(cfg.App.Port, promRegistry)); err != nil {
			logg.Error(ctx, "metrics server stopped", err)
		}
	}()

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return redis.Key("cron-worker", "lock", env)
}
