package escrow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/sokoplace/escrow-backend/internal/audit"
	"github.com/sokoplace/escrow-backend/internal/disputes"
	"github.com/sokoplace/escrow-backend/pkg/db/models"
	"github.com/sokoplace/escrow-backend/pkg/enums"
	pkgerrors "github.com/sokoplace/escrow-backend/pkg/errors"
	"github.com/sokoplace/escrow-backend/pkg/logger"
	"github.com/sokoplace/escrow-backend/pkg/metrics"
	"github.com/sokoplace/escrow-backend/pkg/outbox"
	"github.com/sokoplace/escrow-backend/pkg/outbox/payloads"
)

// Release triggers, recorded in audit metadata and outbox payloads.
const (
	TriggerConfirmation = "confirmation"
	TriggerReceipt      = "receipt"
	TriggerSweep        = "sweep"
	TriggerRefund       = "refund"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Ledger owns the escrow record lifecycle: hold on capture, a single release
// or refund later. Every transition is conditional, audited, and emitted
// through the outbox in one transaction.
type Ledger interface {
	Hold(ctx context.Context, input HoldInput) (*models.EscrowRecord, error)
	Get(ctx context.Context, orderID uuid.UUID) (*models.EscrowRecord, error)
	Release(ctx context.Context, input ReleaseInput) (*ReleaseResult, error)
	MarkRefunded(ctx context.Context, input RefundInput) (*models.EscrowRecord, error)
	FindDueHeld(ctx context.Context, cutoff time.Time, after *DueCursor, limit int) ([]models.EscrowRecord, error)
}

// HoldInput creates the escrow record at payment capture.
type HoldInput struct {
	OrderID  uuid.UUID
	StoreID  uuid.UUID
	Amount   decimal.Decimal
	Currency enums.Currency
	HeldAt   time.Time
}

// ReleaseInput names the order whose funds should move to the vendor and how
// the release was triggered.
type ReleaseInput struct {
	OrderID     uuid.UUID
	Trigger     string
	Assurance   enums.VerificationAssurance
	ActorUserID *uuid.UUID
}

// RefundInput resolves a dispute in the buyer's favor.
type RefundInput struct {
	OrderID         uuid.UUID
	ReturnRequestID uuid.UUID
	ActorUserID     *uuid.UUID
}

// ReleaseResult reports what a release attempt did. Released is false both
// when the record was already terminal and when an open dispute blocked the
// transition; Blocked distinguishes the two.
type ReleaseResult struct {
	Record   *models.EscrowRecord
	Released bool
	Blocked  bool
}

// ServiceParams wires the ledger's collaborators.
type ServiceParams struct {
	Repo          Repository
	Gate          disputes.Gate
	Audit         audit.Recorder
	Outbox        *outbox.Service
	TxRunner      txRunner
	Logger        *logger.Logger
	Metrics       *metrics.EscrowMetrics
	HoldingPeriod time.Duration
}

type service struct {
	repo          Repository
	gate          disputes.Gate
	audit         audit.Recorder
	outbox        *outbox.Service
	tx            txRunner
	logg          *logger.Logger
	metrics       *metrics.EscrowMetrics
	holdingPeriod time.Duration
	now           func() time.Time
}

// NewService wires an escrow ledger with the provided collaborators.
func NewService(params ServiceParams) (Ledger, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("escrow repository required")
	}
	if params.Gate == nil {
		return nil, fmt.Errorf("dispute gate required")
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
	if params.HoldingPeriod <= 0 {
		return nil, fmt.Errorf("holding period must be positive")
	}
	return &service{
		repo:          params.Repo,
		gate:          params.Gate,
		audit:         params.Audit,
		outbox:        params.Outbox,
		tx:            params.TxRunner,
		logg:          params.Logger,
		metrics:       params.Metrics,
		holdingPeriod: params.HoldingPeriod,
		now:           time.Now,
	}, nil
}

func (s *service) Hold(ctx context.Context, input HoldInput) (*models.EscrowRecord, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if input.StoreID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id is required")
	}
	if input.Amount.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must not be negative")
	}
	if input.Currency == "" {
		input.Currency = enums.CurrencyXOF
	}
	if !input.Currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported currency")
	}

	// Hold is idempotent on the order: payment capture retries must not
	// create a second record.
	existing, err := s.repo.FindByOrderID(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	heldAt := input.HeldAt
	if heldAt.IsZero() {
		heldAt = s.now().UTC()
	}
	record := &models.EscrowRecord{
		OrderID:   input.OrderID,
		StoreID:   input.StoreID,
		Amount:    input.Amount,
		Currency:  input.Currency,
		Status:    enums.EscrowStatusHeld,
		HeldAt:    heldAt,
		ReleaseAt: heldAt.Add(s.holdingPeriod),
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*models.EscrowRecord, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	record, err := s.repo.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "escrow record not found")
	}
	return record, nil
}

func (s *service) FindDueHeld(ctx context.Context, cutoff time.Time, after *DueCursor, limit int) ([]models.EscrowRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}
	return s.repo.FindDueHeld(ctx, cutoff, after, limit)
}

// Release attempts the held -> released transition. Calling it again after a
// success is a harmless no-op; calling it while a dispute is open records a
// blocked attempt and leaves the funds held.
func (s *service) Release(ctx context.Context, input ReleaseInput) (*ReleaseResult, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if input.Trigger == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "release trigger is required")
	}

	record, err := s.repo.FindByOrderID(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "escrow record not found")
	}
	if record.Status.IsTerminal() {
		return &ReleaseResult{Record: record, Released: false}, nil
	}

	blocked, err := s.gate.IsBlocked(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if blocked {
		if _, auditErr := s.audit.Record(ctx, audit.RecordInput{
			StoreID:     record.StoreID,
			OrderID:     record.OrderID,
			Action:      enums.AuditActionReleaseBlocked,
			ActorUserID: input.ActorUserID,
			Metadata:    map[string]any{"trigger": input.Trigger},
		}); auditErr != nil {
			return nil, auditErr
		}
		s.metrics.IncBlocked()
		s.logg.Info(s.logg.WithOrderID(ctx, record.OrderID.String()), "escrow release blocked by open return request")
		return &ReleaseResult{Record: record, Released: false, Blocked: true}, nil
	}

	releasedAt := s.now().UTC()
	var released bool
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		ok, releaseErr := txRepo.Release(ctx, input.OrderID, releasedAt)
		if releaseErr != nil {
			return releaseErr
		}
		released = ok
		if !ok {
			return nil
		}

		metadata := map[string]any{"trigger": input.Trigger}
		if input.Assurance != "" {
			metadata["assurance"] = string(input.Assurance)
		}
		if _, auditErr := s.audit.RecordTx(ctx, tx, audit.RecordInput{
			StoreID:     record.StoreID,
			OrderID:     record.OrderID,
			Action:      enums.AuditActionEscrowReleased,
			ActorUserID: input.ActorUserID,
			Metadata:    metadata,
		}); auditErr != nil {
			return auditErr
		}

		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventEscrowReleased,
			AggregateType: enums.AggregateEscrowRecord,
			AggregateID:   record.ID,
			Version:       1,
			OccurredAt:    releasedAt,
			Data: payloads.EscrowReleasedEvent{
				EscrowRecordID: record.ID,
				OrderID:        record.OrderID,
				StoreID:        record.StoreID,
				Amount:         record.Amount,
				Currency:       record.Currency,
				Trigger:        input.Trigger,
				Assurance:      input.Assurance,
				ReleasedAt:     releasedAt,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	if released {
		record.Status = enums.EscrowStatusReleased
		record.ReleasedAt = &releasedAt
		s.metrics.IncReleased(input.Trigger)
		s.logg.Info(s.logg.WithOrderID(ctx, record.OrderID.String()), "escrow released")
	}
	return &ReleaseResult{Record: record, Released: released}, nil
}

// MarkRefunded moves held funds back to the buyer after a dispute resolves
// in their favor. Refunding a terminal record is a conflict, not a no-op: the
// caller is resolving a dispute and must know the money already moved.
func (s *service) MarkRefunded(ctx context.Context, input RefundInput) (*models.EscrowRecord, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}

	record, err := s.repo.FindByOrderID(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "escrow record not found")
	}

	refundedAt := s.now().UTC()
	var refunded bool
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		ok, refundErr := txRepo.Refund(ctx, input.OrderID, refundedAt)
		if refundErr != nil {
			return refundErr
		}
		refunded = ok
		if !ok {
			return nil
		}

		if _, auditErr := s.audit.RecordTx(ctx, tx, audit.RecordInput{
			StoreID:     record.StoreID,
			OrderID:     record.OrderID,
			Action:      enums.AuditActionEscrowRefunded,
			ActorUserID: input.ActorUserID,
			Metadata:    map[string]any{"return_request_id": input.ReturnRequestID.String()},
		}); auditErr != nil {
			return auditErr
		}

		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventEscrowRefunded,
			AggregateType: enums.AggregateEscrowRecord,
			AggregateID:   record.ID,
			Version:       1,
			OccurredAt:    refundedAt,
			Data: payloads.EscrowRefundedEvent{
				EscrowRecordID:  record.ID,
				OrderID:         record.OrderID,
				StoreID:         record.StoreID,
				Amount:          record.Amount,
				Currency:        record.Currency,
				ReturnRequestID: input.ReturnRequestID,
				RefundedAt:      refundedAt,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	if !refunded {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "escrow record is no longer held")
	}

	record.Status = enums.EscrowStatusRefunded
	record.RefundedAt = &refundedAt
	s.logg.Info(s.logg.WithOrderID(ctx, record.OrderID.String()), "escrow refunded")
	return record, nil
}
