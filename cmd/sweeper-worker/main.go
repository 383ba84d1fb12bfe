package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sokoplace/escrow-backend/internal/audit"
	"github.com/sokoplace/escrow-backend/internal/cron"
	"github.com/sokoplace/escrow-backend/internal/disputes"
	"github.com/sokoplace/escrow-backend/internal/escrow"
	"github.com/sokoplace/escrow-backend/internal/sweeper"
	"github.com/sokoplace/escrow-backend/pkg/config"
	"github.com/sokoplace/escrow-backend/pkg/db"
	"github.com/sokoplace/escrow-backend/pkg/logger"
	"github.com/sokoplace/escrow-backend/pkg/metrics"
	"github.com/sokoplace/escrow-backend/pkg/migrate"
	"github.com/sokoplace/escrow-backend/pkg/outbox"
	"github.com/sokoplace/escrow-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "sweeper-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "sweeper-worker"

	logg = logger.New(logger.Options{
		ServiceName: "sweeper-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
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

	gormDB := dbClient.DB()

	auditRecorder, err := audit.NewRecorder(audit.NewRepository(gormDB))
	if err != nil {
		logg.Error(context.Background(), "failed to create audit recorder", err)
		os.Exit(1)
	}

	gate, err := disputes.NewGate(disputes.NewRepository(gormDB))
	if err != nil {
		logg.Error(context.Background(), "failed to create dispute gate", err)
		os.Exit(1)
	}

	escrowMetrics := metrics.NewEscrowMetrics(prometheus.DefaultRegisterer)

	ledger, err := escrow.NewService(escrow.ServiceParams{
		Repo:          escrow.NewRepository(gormDB),
		Gate:          gate,
		Audit:         auditRecorder,
		Outbox:        outbox.NewService(outbox.NewRepository(gormDB), logg),
		TxRunner:      dbClient,
		Logger:        logg,
		Metrics:       escrowMetrics,
		HoldingPeriod: cfg.Escrow.HoldingPeriod,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create escrow ledger", err)
		os.Exit(1)
	}

	sweep, err := sweeper.New(sweeper.Params{
		Ledger:    ledger,
		Logger:    logg,
		Metrics:   escrowMetrics,
		BatchSize: cfg.Sweep.BatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sweeper", err)
		os.Exit(1)
	}

	job, err := sweeper.NewJob(sweep)
	if err != nil {
		logg.Error(context.Background(), "failed to create sweep job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("escrow-sweep"), cfg.Sweep.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create sweep lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(job),
		Lock:     lock,
		Metrics:  metrics.NewJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Sweep.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create scheduler", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting sweeper worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "sweeper worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "sweeper worker shutting down gracefully")
}
