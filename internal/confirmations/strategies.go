package confirmations

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sokoplace/escrow-backend/internal/orders"
	"github.com/sokoplace/escrow-backend/pkg/db/models"
	"github.com/sokoplace/escrow-backend/pkg/enums"
	"github.com/sokoplace/escrow-backend/pkg/security"
)

// CredentialStrategy proves delivery by spending a single-use credential:
// either the QR token or the order number plus OTP. Every failure collapses
// into the same error so the endpoint never reveals which part was wrong.
type CredentialStrategy struct {
	repo   Repository
	orders orders.Repository
	now    func() time.Time
}

// NewCredentialStrategy wires the credential-backed proof.
func NewCredentialStrategy(repo Repository, ordersRepo orders.Repository) (*CredentialStrategy, error) {
	if repo == nil {
		return nil, fmt.Errorf("confirmation repository required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	return &CredentialStrategy{repo: repo, orders: ordersRepo, now: time.Now}, nil
}

// Assurance implements Strategy.
func (s *CredentialStrategy) Assurance() enums.VerificationAssurance {
	return enums.AssuranceCredential
}

// Authenticate implements Strategy. On success the credential is already
// consumed: the conditional update on used_at is what makes a replayed
// request lose.
func (s *CredentialStrategy) Authenticate(ctx context.Context, req Request) (*Subject, error) {
	now := s.now().UTC()

	var confirmation *models.DeliveryConfirmation
	var method enums.ConfirmationMethod
	switch {
	case req.Token != "":
		found, err := s.repo.FindLiveByTokenHash(ctx, security.HashSecret(req.Token), now)
		if err != nil {
			return nil, err
		}
		confirmation = found
		method = enums.ConfirmationMethodQR

	case req.OrderNumber > 0 && req.OTP != "":
		order, err := s.orders.FindByOrderNumber(ctx, req.OrderNumber)
		if err != nil {
			return nil, err
		}
		if order == nil {
			return nil, credentialInvalid()
		}
		found, err := s.repo.FindLiveByOrderAndOTPHash(ctx, order.ID, security.HashSecret(req.OTP), now)
		if err != nil {
			return nil, err
		}
		confirmation = found
		method = enums.ConfirmationMethodOTP

	default:
		return nil, credentialInvalid()
	}

	if confirmation == nil {
		return nil, credentialInvalid()
	}

	consumed, err := s.repo.Consume(ctx, confirmation.ID, now)
	if err != nil {
		return nil, err
	}
	if !consumed {
		return nil, credentialInvalid()
	}

	order, err := s.orders.FindByID(ctx, confirmation.OrderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, credentialInvalid()
	}

	return &Subject{
		Order:          order,
		ConfirmationID: confirmation.ID,
		Method:         method,
	}, nil
}

// WeakIdentityStrategy is the legacy receipt path: the raw order id, or the
// order number plus the buyer phone on file. It consumes nothing and proves
// possession of nothing, so confirmations it authenticates carry the weak
// assurance flag.
type WeakIdentityStrategy struct {
	orders orders.Repository
}

// NewWeakIdentityStrategy wires the legacy phone-match proof.
func NewWeakIdentityStrategy(ordersRepo orders.Repository) (*WeakIdentityStrategy, error) {
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	return &WeakIdentityStrategy{orders: ordersRepo}, nil
}

// Assurance implements Strategy.
func (s *WeakIdentityStrategy) Assurance() enums.VerificationAssurance {
	return enums.AssuranceWeak
}

// Authenticate implements Strategy.
func (s *WeakIdentityStrategy) Authenticate(ctx context.Context, req Request) (*Subject, error) {
	if req.OrderID != uuid.Nil {
		order, err := s.orders.FindByID(ctx, req.OrderID)
		if err != nil {
			return nil, err
		}
		if order == nil {
			return nil, credentialInvalid()
		}
		return &Subject{Order: order}, nil
	}

	if req.OrderNumber <= 0 || req.BuyerPhone == "" {
		return nil, credentialInvalid()
	}

	order, err := s.orders.FindByOrderNumber(ctx, req.OrderNumber)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, credentialInvalid()
	}

	presented := normalizePhone(req.BuyerPhone)
	onFile := normalizePhone(order.BuyerPhone)
	if presented == "" || presented != onFile {
		return nil, credentialInvalid()
	}

	return &Subject{Order: order}, nil
}
