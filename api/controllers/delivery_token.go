package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sokoplace/escrow-backend/api/middleware"
	"github.com/sokoplace/escrow-backend/api/responses"
	"github.com/sokoplace/escrow-backend/api/validators"
	"github.com/sokoplace/escrow-backend/internal/confirmations"
	"github.com/sokoplace/escrow-backend/internal/memberships"
	"github.com/sokoplace/escrow-backend/internal/orders"
	"github.com/sokoplace/escrow-backend/pkg/enums"
	pkgerrors "github.com/sokoplace/escrow-backend/pkg/errors"
	"github.com/sokoplace/escrow-backend/pkg/logger"
)

type deliveryTokenRequest struct {
	OrderID string `json:"order_id" validate:"required,uuid"`
	StoreID string `json:"store_id" validate:"omitempty,uuid"`
	Method  string `json:"method" validate:"omitempty,oneof=qr otp"`
	// Regenerate invalidates the order's earlier live credentials; without
	// it they stay valid alongside the new one.
	Regenerate bool `json:"regenerate"`
}

type deliveryTokenResponse struct {
	ConfirmationID uuid.UUID                `json:"confirmation_id"`
	OrderID        uuid.UUID                `json:"order_id"`
	Token          string                   `json:"token"`
	OTP            string                   `json:"otp"`
	Method         enums.ConfirmationMethod `json:"method"`
	ExpiresAt      time.Time                `json:"expires_at"`
}

// DeliveryTokenIssue mints a fresh confirmation credential for an order. The
// caller must belong to the order's vendor store; earlier live credentials
// stay valid unless the request asks to regenerate.
func DeliveryTokenIssue(issuer confirmations.Issuer, ordersRepo orders.Repository, members memberships.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if issuer == nil || ordersRepo == nil || members == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "confirmation issuer unavailable"))
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

		var payload deliveryTokenRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := uuid.Parse(strings.TrimSpace(payload.OrderID))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order_id"))
			return
		}

		order, err := ordersRepo.FindByID(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if order == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "order not found"))
			return
		}

		if raw := strings.TrimSpace(payload.StoreID); raw != "" {
			storeID, err := uuid.Parse(raw)
			if err != nil || storeID != order.VendorStoreID {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "store_id does not match the order"))
				return
			}
		}

		isMember, err := members.IsMember(r.Context(), order.VendorStoreID, uid)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !isMember {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "not a member of the order's store"))
			return
		}

		method := enums.ConfirmationMethodQR
		if trimmed := strings.TrimSpace(payload.Method); trimmed != "" {
			method, err = enums.ParseConfirmationMethod(trimmed)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid confirmation method"))
				return
			}
		}

		issued, err := issuer.Issue(r.Context(), confirmations.IssueInput{
			OrderID:     order.ID,
			StoreID:     order.VendorStoreID,
			ActorUserID: uid,
			Method:      method,
			Regenerate:  payload.Regenerate,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, deliveryTokenResponse{
			ConfirmationID: issued.ConfirmationID,
			OrderID:        order.ID,
			Token:          issued.Token,
			OTP:            issued.OTP,
			Method:         issued.Method,
			ExpiresAt:      issued.ExpiresAt,
		})
	}
}
