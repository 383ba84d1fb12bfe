package confirmations

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sokoplace/escrow-backend/internal/audit"
	"github.com/sokoplace/escrow-backend/internal/escrow"
	"github.com/sokoplace/escrow-backend/internal/orders"
	"github.com/sokoplace/escrow-backend/pkg/db/models"
	"github.com/sokoplace/escrow-backend/pkg/enums"
	pkgerrors "github.com/sokoplace/escrow-backend/pkg/errors"
	"github.com/sokoplace/escrow-backend/pkg/logger"
	"github.com/sokoplace/escrow-backend/pkg/outbox"
	"github.com/sokoplace/escrow-backend/pkg/outbox/payloads"
)

// credentialInvalid is the single error every failed proof maps to. Wrong,
// expired, and already-used secrets must be indistinguishable to the caller.
func credentialInvalid() error {
	return pkgerrors.New(pkgerrors.CodeCredentialInvalid, "invalid or expired confirmation code")
}

// Request carries whatever proof the caller presented. Which fields matter
// depends on the strategy: token or order number + OTP for the credential
// path, order id or order number + phone for the legacy receipt path.
type Request struct {
	Token       string
	OrderID     uuid.UUID
	OrderNumber int64
	OTP         string
	BuyerPhone  string
}

// Subject is an authenticated delivery confirmation: the order it proves
// receipt of, and the credential that was spent to prove it (uuid.Nil when
// the proof was not credential-backed).
type Subject struct {
	Order          *models.VendorOrder
	ConfirmationID uuid.UUID
	Method         enums.ConfirmationMethod
}

// Strategy authenticates one kind of delivery proof.
type Strategy interface {
	Assurance() enums.VerificationAssurance
	Authenticate(ctx context.Context, req Request) (*Subject, error)
}

// Result reports what a confirmation did to the order and its escrow.
type Result struct {
	Order          *models.VendorOrder
	Assurance      enums.VerificationAssurance
	EscrowReleased bool
	ReleaseBlocked bool
}

// Verifier consumes delivery proofs and drives the delivered transition plus
// the escrow release that follows it.
type Verifier interface {
	ConfirmDelivery(ctx context.Context, req Request) (*Result, error)
	ConfirmReceipt(ctx context.Context, req Request) (*Result, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// VerifierParams wires the verifier's collaborators.
type VerifierParams struct {
	Credential Strategy
	Weak       Strategy
	Orders     orders.Repository
	Ledger     escrow.Ledger
	Audit      audit.Recorder
	Outbox     *outbox.Service
	TxRunner   txRunner
	Logger     *logger.Logger
}

type verifier struct {
	credential Strategy
	weak       Strategy
	orders     orders.Repository
	ledger     escrow.Ledger
	audit      audit.Recorder
	outbox     *outbox.Service
	tx         txRunner
	logg       *logger.Logger
	now        func() time.Time
}

// NewVerifier wires a confirmation verifier with the provided collaborators.
func NewVerifier(params VerifierParams) (Verifier, error) {
	if params.Credential == nil {
		return nil, fmt.Errorf("credential strategy required")
	}
	if params.Weak == nil {
		return nil, fmt.Errorf("weak identity strategy required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("escrow ledger required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &verifier{
		credential: params.Credential,
		weak:       params.Weak,
		orders:     params.Orders,
		ledger:     params.Ledger,
		audit:      params.Audit,
		outbox:     params.Outbox,
		tx:         params.TxRunner,
		logg:       params.Logger,
		now:        time.Now,
	}, nil
}

func (v *verifier) ConfirmDelivery(ctx context.Context, req Request) (*Result, error) {
	return v.confirm(ctx, v.credential, req, enums.AuditActionDeliveryConfirmed, escrow.TriggerConfirmation)
}

func (v *verifier) ConfirmReceipt(ctx context.Context, req Request) (*Result, error) {
	return v.confirm(ctx, v.weak, req, enums.AuditActionReceiptConfirmed, escrow.TriggerReceipt)
}

func (v *verifier) confirm(ctx context.Context, strategy Strategy, req Request, action enums.AuditAction, trigger string) (*Result, error) {
	subject, err := strategy.Authenticate(ctx, req)
	if err != nil {
		return nil, err
	}
	order := subject.Order
	assurance := strategy.Assurance()

	deliveredAt := v.now().UTC()
	err = v.tx.WithTx(ctx, func(tx *gorm.DB) error {
		transitioned, markErr := v.orders.WithTx(tx).MarkDelivered(ctx, order.ID, deliveredAt)
		if markErr != nil {
			return markErr
		}

		metadata := map[string]any{"assurance": string(assurance)}
		if subject.Method != "" {
			metadata["method"] = string(subject.Method)
		}
		if _, auditErr := v.audit.RecordTx(ctx, tx, audit.RecordInput{
			StoreID:  order.VendorStoreID,
			OrderID:  order.ID,
			Action:   action,
			Metadata: metadata,
		}); auditErr != nil {
			return auditErr
		}

		if !transitioned {
			// already delivered; nothing new to announce
			return nil
		}
		return v.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderDelivered,
			AggregateType: enums.AggregateVendorOrder,
			AggregateID:   order.ID,
			Version:       1,
			OccurredAt:    deliveredAt,
			Data: payloads.OrderDeliveredEvent{
				OrderID:       order.ID,
				VendorStoreID: order.VendorStoreID,
				BuyerStoreID:  order.BuyerStoreID,
				Assurance:     assurance,
				DeliveredAt:   deliveredAt,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	release, err := v.ledger.Release(ctx, escrow.ReleaseInput{
		OrderID:   order.ID,
		Trigger:   trigger,
		Assurance: assurance,
	})
	if err != nil {
		return nil, err
	}

	logCtx := v.logg.WithOrderID(ctx, order.ID.String())
	logCtx = v.logg.WithField(logCtx, "assurance", string(assurance))
	v.logg.Info(logCtx, "delivery confirmed")

	return &Result{
		Order:          order,
		Assurance:      assurance,
		EscrowReleased: release.Released,
		ReleaseBlocked: release.Blocked,
	}, nil
}

func normalizePhone(value string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(value) {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
