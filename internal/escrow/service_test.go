package escrow

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sokoplace/escrow-backend/internal/audit"
	"github.com/sokoplace/escrow-backend/internal/disputes"
	"github.com/sokoplace/escrow-backend/pkg/db/models"
	"github.com/sokoplace/escrow-backend/pkg/enums"
	pkgerrors "github.com/sokoplace/escrow-backend/pkg/errors"
	"github.com/sokoplace/escrow-backend/pkg/logger"
	"github.com/sokoplace/escrow-backend/pkg/outbox"
)

type sqliteTxRunner struct {
	db *gorm.DB
}

func (r sqliteTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func newTestLedger(t *testing.T, db *gorm.DB) (Ledger, audit.Repository, *outbox.Repository) {
	t.Helper()

	logg := logger.New(logger.Options{ServiceName: "escrow-test"})
	auditRepo := audit.NewRepository(db)
	recorder, err := audit.NewRecorder(auditRepo)
	require.NoError(t, err)
	gate, err := disputes.NewGate(disputes.NewRepository(db))
	require.NoError(t, err)
	outboxRepo := outbox.NewRepository(db)
	outboxSvc := outbox.NewService(outboxRepo, logg)

	ledger, err := NewService(ServiceParams{
		Repo:          NewRepository(db),
		Gate:          gate,
		Audit:         recorder,
		Outbox:        outboxSvc,
		TxRunner:      sqliteTxRunner{db: db},
		Logger:        logg,
		HoldingPeriod: 168 * time.Hour,
	})
	require.NoError(t, err)
	return ledger, auditRepo, outboxRepo
}

func TestLedgerHoldIsIdempotent(t *testing.T) {
	db := setupEscrowTestDB(t)
	ledger, _, _ := newTestLedger(t, db)
	ctx := context.Background()

	input := HoldInput{
		OrderID:  uuid.New(),
		StoreID:  uuid.New(),
		Amount:   decimal.NewFromInt(42000),
		Currency: enums.CurrencyXOF,
	}

	first, err := ledger.Hold(ctx, input)
	require.NoError(t, err)
	require.Equal(t, enums.EscrowStatusHeld, first.Status)
	require.Equal(t, first.HeldAt.Add(168*time.Hour), first.ReleaseAt)

	second, err := ledger.Hold(ctx, input)
	require.NoError(t, err)
	require.Equal(t, first.OrderID, second.OrderID)

	var count int64
	require.NoError(t, db.Model(&models.EscrowRecord{}).Where("order_id = ?", input.OrderID).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestLedgerReleaseHappyPath(t *testing.T) {
	db := setupEscrowTestDB(t)
	ledger, auditRepo, outboxRepo := newTestLedger(t, db)
	ctx := context.Background()

	orderID := uuid.New()
	record := seedHeldRecord(t, db, orderID, time.Now().UTC().Add(-time.Hour))

	result, err := ledger.Release(ctx, ReleaseInput{
		OrderID:   orderID,
		Trigger:   TriggerConfirmation,
		Assurance: enums.AssuranceCredential,
	})
	require.NoError(t, err)
	require.True(t, result.Released)
	require.False(t, result.Blocked)
	require.Equal(t, enums.EscrowStatusReleased, result.Record.Status)

	entries, err := auditRepo.ListByOrderID(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, enums.AuditActionEscrowReleased, entries[0].Action)
	require.Contains(t, string(entries[0].Metadata), "credential")

	events, err := outboxRepo.FetchUnpublished(10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, enums.EventEscrowReleased, events[0].EventType)
	require.Equal(t, record.ID, events[0].AggregateID)
}

func TestLedgerReleaseIsIdempotent(t *testing.T) {
	db := setupEscrowTestDB(t)
	ledger, auditRepo, _ := newTestLedger(t, db)
	ctx := context.Background()

	orderID := uuid.New()
	seedHeldRecord(t, db, orderID, time.Now().UTC().Add(-time.Hour))

	first, err := ledger.Release(ctx, ReleaseInput{OrderID: orderID, Trigger: TriggerSweep})
	require.NoError(t, err)
	require.True(t, first.Released)

	second, err := ledger.Release(ctx, ReleaseInput{OrderID: orderID, Trigger: TriggerSweep})
	require.NoError(t, err)
	require.False(t, second.Released)
	require.False(t, second.Blocked)
	require.Equal(t, enums.EscrowStatusReleased, second.Record.Status)

	entries, err := auditRepo.ListByOrderID(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestLedgerReleaseBlockedByOpenDispute(t *testing.T) {
	db := setupEscrowTestDB(t)
	ledger, auditRepo, outboxRepo := newTestLedger(t, db)
	ctx := context.Background()

	orderID := uuid.New()
	record := seedHeldRecord(t, db, orderID, time.Now().UTC().Add(-time.Hour))

	dispute := models.ReturnRequest{
		ID:      uuid.New(),
		OrderID: orderID,
		StoreID: record.StoreID,
		Reason:  "damaged on arrival",
		Status:  enums.ReturnRequestStatusRequested,
	}
	require.NoError(t, db.Create(&dispute).Error)

	result, err := ledger.Release(ctx, ReleaseInput{OrderID: orderID, Trigger: TriggerSweep})
	require.NoError(t, err)
	require.False(t, result.Released)
	require.True(t, result.Blocked)
	require.Equal(t, enums.EscrowStatusHeld, result.Record.Status)

	entries, err := auditRepo.ListByOrderID(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, enums.AuditActionReleaseBlocked, entries[0].Action)

	events, err := outboxRepo.FetchUnpublished(10)
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestLedgerReleaseAfterDisputeResolves(t *testing.T) {
	db := setupEscrowTestDB(t)
	ledger, _, _ := newTestLedger(t, db)
	ctx := context.Background()

	orderID := uuid.New()
	record := seedHeldRecord(t, db, orderID, time.Now().UTC().Add(-time.Hour))

	dispute := models.ReturnRequest{
		ID:      uuid.New(),
		OrderID: orderID,
		StoreID: record.StoreID,
		Reason:  "wrong item",
		Status:  enums.ReturnRequestStatusRequested,
	}
	require.NoError(t, db.Create(&dispute).Error)

	blocked, err := ledger.Release(ctx, ReleaseInput{OrderID: orderID, Trigger: TriggerSweep})
	require.NoError(t, err)
	require.True(t, blocked.Blocked)

	gate, err := disputes.NewGate(disputes.NewRepository(db))
	require.NoError(t, err)
	_, err = gate.Resolve(ctx, disputes.ResolveInput{
		RequestID: dispute.ID,
		Status:    enums.ReturnRequestStatusRejected,
	})
	require.NoError(t, err)

	result, err := ledger.Release(ctx, ReleaseInput{OrderID: orderID, Trigger: TriggerSweep})
	require.NoError(t, err)
	require.True(t, result.Released)
}

func TestLedgerReleaseMissingRecord(t *testing.T) {
	db := setupEscrowTestDB(t)
	ledger, _, _ := newTestLedger(t, db)

	_, err := ledger.Release(context.Background(), ReleaseInput{OrderID: uuid.New(), Trigger: TriggerSweep})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestLedgerMarkRefunded(t *testing.T) {
	db := setupEscrowTestDB(t)
	ledger, auditRepo, outboxRepo := newTestLedger(t, db)
	ctx := context.Background()

	orderID := uuid.New()
	seedHeldRecord(t, db, orderID, time.Now().UTC().Add(time.Hour))

	record, err := ledger.MarkRefunded(ctx, RefundInput{
		OrderID:         orderID,
		ReturnRequestID: uuid.New(),
	})
	require.NoError(t, err)
	require.Equal(t, enums.EscrowStatusRefunded, record.Status)
	require.NotNil(t, record.RefundedAt)

	entries, err := auditRepo.ListByOrderID(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, enums.AuditActionEscrowRefunded, entries[0].Action)

	events, err := outboxRepo.FetchUnpublished(10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, enums.EventEscrowRefunded, events[0].EventType)

	// refunding again is a conflict, not a silent success
	_, err = ledger.MarkRefunded(ctx, RefundInput{OrderID: orderID, ReturnRequestID: uuid.New()})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeConflict, typed.Code())
}
