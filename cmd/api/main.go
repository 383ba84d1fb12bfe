package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sokoplace/escrow-backend/api/routes"
	"github.com/sokoplace/escrow-backend/internal/audit"
	"github.com/sokoplace/escrow-backend/internal/confirmations"
	"github.com/sokoplace/escrow-backend/internal/disputes"
	"github.com/sokoplace/escrow-backend/internal/escrow"
	"github.com/sokoplace/escrow-backend/internal/memberships"
	"github.com/sokoplace/escrow-backend/internal/orders"
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
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	ordersRepo := orders.NewRepository(gormDB)
	confirmationsRepo := confirmations.NewRepository(gormDB)
	outboxService := outbox.NewService(outbox.NewRepository(gormDB), logg)
	escrowMetrics := metrics.NewEscrowMetrics(prometheus.DefaultRegisterer)

	membershipService, err := memberships.NewService(memberships.NewRepository(gormDB))
	if err != nil {
		logg.Error(context.Background(), "failed to create membership service", err)
		os.Exit(1)
	}

	ledger, err := escrow.NewService(escrow.ServiceParams{
		Repo:          escrow.NewRepository(gormDB),
		Gate:          gate,
		Audit:         auditRecorder,
		Outbox:        outboxService,
		TxRunner:      dbClient,
		Logger:        logg,
		Metrics:       escrowMetrics,
		HoldingPeriod: cfg.Escrow.HoldingPeriod,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create escrow ledger", err)
		os.Exit(1)
	}

	issuer, err := confirmations.NewIssuer(confirmations.IssuerParams{
		Repo:   confirmationsRepo,
		Audit:  auditRecorder,
		Logger: logg,
		TTL:    cfg.Escrow.ConfirmationTTL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create confirmation issuer", err)
		os.Exit(1)
	}

	credentialStrategy, err := confirmations.NewCredentialStrategy(confirmationsRepo, ordersRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create credential strategy", err)
		os.Exit(1)
	}
	weakStrategy, err := confirmations.NewWeakIdentityStrategy(ordersRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create weak identity strategy", err)
		os.Exit(1)
	}

	verifier, err := confirmations.NewVerifier(confirmations.VerifierParams{
		Credential: credentialStrategy,
		Weak:       weakStrategy,
		Orders:     ordersRepo,
		Ledger:     ledger,
		Audit:      auditRecorder,
		Outbox:     outboxService,
		TxRunner:   dbClient,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create confirmation verifier", err)
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

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:      cfg,
			Logger:      logg,
			DB:          dbClient,
			Redis:       redisClient,
			Issuer:      issuer,
			Verifier:    verifier,
			Ledger:      ledger,
			Orders:      ordersRepo,
			Memberships: membershipService,
			Audit:       auditRecorder,
			Sweeper:     sweep,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
