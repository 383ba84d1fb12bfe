package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sokoplace/escrow-backend/api/responses"
	"github.com/sokoplace/escrow-backend/api/validators"
	"github.com/sokoplace/escrow-backend/internal/confirmations"
	"github.com/sokoplace/escrow-backend/pkg/enums"
	pkgerrors "github.com/sokoplace/escrow-backend/pkg/errors"
	"github.com/sokoplace/escrow-backend/pkg/logger"
)

type confirmDeliveryRequest struct {
	Token       string `json:"token" validate:"omitempty,len=64,hexadecimal"`
	OrderNumber int64  `json:"order_number" validate:"omitempty,min=1"`
	OTP         string `json:"otp" validate:"omitempty,numeric,min=4,max=8"`
}

type confirmReceiptRequest struct {
	OrderID     string `json:"order_id" validate:"omitempty,uuid"`
	OrderNumber int64  `json:"order_number" validate:"omitempty,min=1"`
	BuyerPhone  string `json:"buyer_phone" validate:"omitempty,min=6,max=32"`
}

type confirmationResponse struct {
	OrderID        uuid.UUID                   `json:"order_id"`
	Status         enums.OrderStatus           `json:"status"`
	DeliveredAt    *time.Time                  `json:"delivered_at,omitempty"`
	Assurance      enums.VerificationAssurance `json:"assurance"`
	EscrowReleased bool                        `json:"escrow_released"`
	ReleaseBlocked bool                        `json:"release_blocked"`
}

func confirmationResponseFromResult(result *confirmations.Result) confirmationResponse {
	return confirmationResponse{
		OrderID:        result.Order.ID,
		Status:         result.Order.Status,
		DeliveredAt:    result.Order.DeliveredAt,
		Assurance:      result.Assurance,
		EscrowReleased: result.EscrowReleased,
		ReleaseBlocked: result.ReleaseBlocked,
	}
}

// ConfirmDelivery spends a delivery credential: either a raw token or an
// order number plus OTP. A consumed credential marks the order delivered and
// releases its escrow unless a dispute holds it back.
func ConfirmDelivery(verifier confirmations.Verifier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if verifier == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "confirmation verifier unavailable"))
			return
		}

		var payload confirmDeliveryRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		token := strings.TrimSpace(payload.Token)
		otp := strings.TrimSpace(payload.OTP)
		hasToken := token != ""
		hasOTP := payload.OrderNumber > 0 && otp != ""
		if !hasToken && !hasOTP {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "provide a token or an order_number with otp"))
			return
		}

		result, err := verifier.ConfirmDelivery(r.Context(), confirmations.Request{
			Token:       token,
			OrderNumber: payload.OrderNumber,
			OTP:         otp,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, confirmationResponseFromResult(result))
	}
}

// ConfirmReceipt is the legacy receipt path: the caller proves only that they
// know the order id, or the order number and the buyer's phone number. The
// transition is audited with weak assurance.
func ConfirmReceipt(verifier confirmations.Verifier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if verifier == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "confirmation verifier unavailable"))
			return
		}

		var payload confirmReceiptRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID := uuid.Nil
		if raw := strings.TrimSpace(payload.OrderID); raw != "" {
			parsed, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order_id"))
				return
			}
			orderID = parsed
		}
		hasPair := payload.OrderNumber > 0 && strings.TrimSpace(payload.BuyerPhone) != ""
		if orderID == uuid.Nil && !hasPair {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "provide an order_id or an order_number with buyer_phone"))
			return
		}

		result, err := verifier.ConfirmReceipt(r.Context(), confirmations.Request{
			OrderID:     orderID,
			OrderNumber: payload.OrderNumber,
			BuyerPhone:  strings.TrimSpace(payload.BuyerPhone),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, confirmationResponseFromResult(result))
	}
}
