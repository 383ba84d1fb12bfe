package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sokoplace/escrow-backend/api/controllers"
	"github.com/sokoplace/escrow-backend/api/middleware"
	"github.com/sokoplace/escrow-backend/internal/audit"
	"github.com/sokoplace/escrow-backend/internal/confirmations"
	"github.com/sokoplace/escrow-backend/internal/escrow"
	"github.com/sokoplace/escrow-backend/internal/memberships"
	"github.com/sokoplace/escrow-backend/internal/orders"
	"github.com/sokoplace/escrow-backend/internal/sweeper"
	"github.com/sokoplace/escrow-backend/pkg/config"
	"github.com/sokoplace/escrow-backend/pkg/db"
	"github.com/sokoplace/escrow-backend/pkg/logger"
	"github.com/sokoplace/escrow-backend/pkg/redis"
)

// Deps collects everything the router wires into handlers.
type Deps struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          db.Pinger
	Redis       *redis.Client
	Issuer      confirmations.Issuer
	Verifier    confirmations.Verifier
	Ledger      escrow.Ledger
	Orders      orders.Repository
	Memberships memberships.Service
	Audit       audit.Recorder
	Sweeper     *sweeper.Sweeper
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	confirmPolicy := middleware.NewConfirmRateLimitPolicy(
		"confirm",
		cfg.PublicRateLimit.ConfirmWindow,
		cfg.PublicRateLimit.ConfirmIPLimit,
		cfg.PublicRateLimit.ConfirmOrderLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Redis))
	})

	r.Route("/api/public", func(r chi.Router) {
		r.Use(middleware.ConfirmRateLimit(confirmPolicy, deps.Redis, logg))
		r.Post("/confirm-delivery", controllers.ConfirmDelivery(deps.Verifier, logg))
		r.Post("/confirm-receipt", controllers.ConfirmReceipt(deps.Verifier, logg))
	})

	r.Route("/api/internal", func(r chi.Router) {
		r.Use(middleware.ServiceSecret(cfg.Sweep.ServiceSecret, logg))
		r.Post("/escrow-sweep", controllers.EscrowSweep(deps.Sweeper, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Post("/delivery-token", controllers.DeliveryTokenIssue(deps.Issuer, deps.Orders, deps.Memberships, logg))
		r.Get("/escrow/{orderId}", controllers.EscrowDetail(deps.Ledger, deps.Memberships, logg))
		r.Get("/audit", controllers.AuditList(deps.Audit, logg))
	})

	return r
}
