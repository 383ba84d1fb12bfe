package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sokoplace/escrow-backend/api/middleware"
	"github.com/sokoplace/escrow-backend/api/responses"
	"github.com/sokoplace/escrow-backend/api/validators"
	"github.com/sokoplace/escrow-backend/internal/escrow"
	"github.com/sokoplace/escrow-backend/internal/memberships"
	"github.com/sokoplace/escrow-backend/internal/sweeper"
	"github.com/sokoplace/escrow-backend/pkg/db/models"
	"github.com/sokoplace/escrow-backend/pkg/enums"
	pkgerrors "github.com/sokoplace/escrow-backend/pkg/errors"
	"github.com/sokoplace/escrow-backend/pkg/logger"
)

type escrowResponse struct {
	ID         uuid.UUID          `json:"id"`
	OrderID    uuid.UUID          `json:"order_id"`
	StoreID    uuid.UUID          `json:"store_id"`
	Amount     decimal.Decimal    `json:"amount"`
	Currency   enums.Currency     `json:"currency"`
	Status     enums.EscrowStatus `json:"status"`
	HeldAt     time.Time          `json:"held_at"`
	ReleaseAt  time.Time          `json:"release_at"`
	ReleasedAt *time.Time         `json:"released_at,omitempty"`
	RefundedAt *time.Time         `json:"refunded_at,omitempty"`
}

func escrowResponseFromModel(m *models.EscrowRecord) escrowResponse {
	return escrowResponse{
		ID:         m.ID,
		OrderID:    m.OrderID,
		StoreID:    m.StoreID,
		Amount:     m.Amount,
		Currency:   m.Currency,
		Status:     m.Status,
		HeldAt:     m.HeldAt,
		ReleaseAt:  m.ReleaseAt,
		ReleasedAt: m.ReleasedAt,
		RefundedAt: m.RefundedAt,
	}
}

// EscrowDetail returns the escrow record for an order. Only members of the
// store the funds are held for may look.
func EscrowDetail(ledger escrow.Ledger, members memberships.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ledger == nil || members == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "escrow ledger unavailable"))
			return
		}

		userID := middleware.UserIDFromContext(r.Context())
		if userID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}
		uid, err := uuid.Parse(userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id"))
			return
		}

		orderID, err := validators.UUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := ledger.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if record == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "escrow record not found"))
			return
		}

		isMember, err := members.IsMember(r.Context(), record.StoreID, uid)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !isMember {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "not a member of the record's store"))
			return
		}

		responses.WriteSuccess(w, escrowResponseFromModel(record))
	}
}

// EscrowSweep runs one sweep pass on demand. The route sits behind the
// service secret; schedulers outside the cluster use it instead of the
// worker binary.
func EscrowSweep(sw *sweeper.Sweeper, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sw == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sweeper unavailable"))
			return
		}

		result, err := sw.Run(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}
