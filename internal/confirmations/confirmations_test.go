package confirmations

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sokoplace/escrow-backend/internal/audit"
	"github.com/sokoplace/escrow-backend/internal/disputes"
	"github.com/sokoplace/escrow-backend/internal/escrow"
	"github.com/sokoplace/escrow-backend/internal/orders"
	"github.com/sokoplace/escrow-backend/pkg/db/models"
	"github.com/sokoplace/escrow-backend/pkg/enums"
	pkgerrors "github.com/sokoplace/escrow-backend/pkg/errors"
	"github.com/sokoplace/escrow-backend/pkg/logger"
	"github.com/sokoplace/escrow-backend/pkg/outbox"
)

func setupConfirmationTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{
		`CREATE TABLE IF NOT EXISTS vendor_orders (
  id TEXT PRIMARY KEY,
  buyer_store_id TEXT NOT NULL,
  vendor_store_id TEXT NOT NULL,
  order_number INTEGER NOT NULL UNIQUE,
  buyer_phone TEXT NOT NULL,
  total_amount TEXT NOT NULL,
  currency TEXT NOT NULL DEFAULT 'XOF',
  status TEXT NOT NULL DEFAULT 'pending',
  delivered_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS delivery_confirmations (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  store_id TEXT NOT NULL,
  token_hash TEXT NOT NULL UNIQUE,
  otp_hash TEXT NOT NULL,
  method TEXT NOT NULL DEFAULT 'qr',
  expires_at DATETIME NOT NULL,
  used_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS escrow_records (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL UNIQUE,
  store_id TEXT NOT NULL,
  amount TEXT NOT NULL,
  currency TEXT NOT NULL DEFAULT 'XOF',
  status TEXT NOT NULL DEFAULT 'held',
  held_at DATETIME NOT NULL,
  release_at DATETIME NOT NULL,
  released_at DATETIME,
  refunded_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS return_requests (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  store_id TEXT NOT NULL,
  reason TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'requested',
  resolved_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS audit_log_entries (
  id TEXT PRIMARY KEY,
  store_id TEXT NOT NULL,
  order_id TEXT NOT NULL,
  action TEXT NOT NULL,
  actor_user_id TEXT,
  metadata TEXT,
  created_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`,
	}
	for _, stmt := range statements {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

type sqliteTxRunner struct {
	db *gorm.DB
}

func (r sqliteTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type fixture struct {
	db        *gorm.DB
	issuer    Issuer
	verifier  Verifier
	repo      Repository
	auditRepo audit.Repository
	orders    orders.Repository
	escrow    escrow.Repository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := setupConfirmationTestDB(t)
	logg := logger.New(logger.Options{ServiceName: "confirmations-test"})

	auditRepo := audit.NewRepository(db)
	recorder, err := audit.NewRecorder(auditRepo)
	require.NoError(t, err)

	confirmationRepo := NewRepository(db)
	ordersRepo := orders.NewRepository(db)
	escrowRepo := escrow.NewRepository(db)

	gate, err := disputes.NewGate(disputes.NewRepository(db))
	require.NoError(t, err)
	outboxSvc := outbox.NewService(outbox.NewRepository(db), logg)

	ledger, err := escrow.NewService(escrow.ServiceParams{
		Repo:          escrowRepo,
		Gate:          gate,
		Audit:         recorder,
		Outbox:        outboxSvc,
		TxRunner:      sqliteTxRunner{db: db},
		Logger:        logg,
		HoldingPeriod: 168 * time.Hour,
	})
	require.NoError(t, err)

	iss, err := NewIssuer(IssuerParams{
		Repo:   confirmationRepo,
		Audit:  recorder,
		Logger: logg,
		TTL:    24 * time.Hour,
	})
	require.NoError(t, err)

	credential, err := NewCredentialStrategy(confirmationRepo, ordersRepo)
	require.NoError(t, err)
	weak, err := NewWeakIdentityStrategy(ordersRepo)
	require.NoError(t, err)

	ver, err := NewVerifier(VerifierParams{
		Credential: credential,
		Weak:       weak,
		Orders:     ordersRepo,
		Ledger:     ledger,
		Audit:      recorder,
		Outbox:     outboxSvc,
		TxRunner:   sqliteTxRunner{db: db},
		Logger:     logg,
	})
	require.NoError(t, err)

	return &fixture{
		db:        db,
		issuer:    iss,
		verifier:  ver,
		repo:      confirmationRepo,
		auditRepo: auditRepo,
		orders:    ordersRepo,
		escrow:    escrowRepo,
	}
}

func (f *fixture) seedOrder(t *testing.T, orderNumber int64, phone string) models.VendorOrder {
	t.Helper()
	order := models.VendorOrder{
		ID:            uuid.New(),
		BuyerStoreID:  uuid.New(),
		VendorStoreID: uuid.New(),
		OrderNumber:   orderNumber,
		BuyerPhone:    phone,
		TotalAmount:   decimal.NewFromInt(30000),
		Currency:      enums.CurrencyXOF,
		Status:        enums.OrderStatusPaid,
	}
	require.NoError(t, f.db.Create(&order).Error)
	return order
}

func (f *fixture) seedEscrow(t *testing.T, order models.VendorOrder) models.EscrowRecord {
	t.Helper()
	now := time.Now().UTC()
	record := models.EscrowRecord{
		ID:        uuid.New(),
		OrderID:   order.ID,
		StoreID:   order.VendorStoreID,
		Amount:    order.TotalAmount,
		Currency:  order.Currency,
		Status:    enums.EscrowStatusHeld,
		HeldAt:    now,
		ReleaseAt: now.Add(168 * time.Hour),
	}
	require.NoError(t, f.db.Create(&record).Error)
	return record
}

func requireCredentialInvalid(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeCredentialInvalid, typed.Code())
	require.Equal(t, "invalid or expired confirmation code", typed.Message())
}

func TestIssuerRegenerateExpiresPrior(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.seedOrder(t, 1001, "+221770000001")

	first, err := f.issuer.Issue(ctx, IssueInput{
		OrderID:     order.ID,
		StoreID:     order.VendorStoreID,
		ActorUserID: uuid.New(),
	})
	require.NoError(t, err)
	require.Len(t, first.Token, 64)
	require.Len(t, first.OTP, 6)

	second, err := f.issuer.Issue(ctx, IssueInput{
		OrderID:     order.ID,
		StoreID:     order.VendorStoreID,
		ActorUserID: uuid.New(),
		Method:      enums.ConfirmationMethodOTP,
		Regenerate:  true,
	})
	require.NoError(t, err)
	require.NotEqual(t, first.Token, second.Token)

	// regeneration invalidated the first credential
	_, err = f.verifier.ConfirmDelivery(ctx, Request{Token: first.Token})
	requireCredentialInvalid(t, err)

	entries, err := f.auditRepo.ListByOrderID(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2) // one issuance entry each; the failed confirm records nothing
}

func TestIssuerKeepsEarlierCredentialByDefault(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.seedOrder(t, 1011, "+221770000011")
	f.seedEscrow(t, order)

	first, err := f.issuer.Issue(ctx, IssueInput{
		OrderID:     order.ID,
		StoreID:     order.VendorStoreID,
		ActorUserID: uuid.New(),
	})
	require.NoError(t, err)

	second, err := f.issuer.Issue(ctx, IssueInput{
		OrderID:     order.ID,
		StoreID:     order.VendorStoreID,
		ActorUserID: uuid.New(),
	})
	require.NoError(t, err)
	require.NotEqual(t, first.Token, second.Token)

	// without regenerate both credentials stay live, so the earlier
	// one still confirms the delivery
	result, err := f.verifier.ConfirmDelivery(ctx, Request{Token: first.Token})
	require.NoError(t, err)
	require.True(t, result.EscrowReleased)
}

func TestConsumeRefusesExpiredCredential(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.seedOrder(t, 1012, "+221770000012")
	f.seedEscrow(t, order)

	cred, err := f.issuer.Issue(ctx, IssueInput{
		OrderID:     order.ID,
		StoreID:     order.VendorStoreID,
		ActorUserID: uuid.New(),
	})
	require.NoError(t, err)

	// expire it after lookup would have found it live, then try to spend
	expired, err := f.repo.ExpireUnused(ctx, order.ID, time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, int64(1), expired)

	ok, err := f.repo.Consume(ctx, cred.ConfirmationID, time.Now().UTC())
	require.NoError(t, err)
	require.False(t, ok)

	record, err := f.escrow.FindByOrderID(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.EscrowStatusHeld, record.Status)
}

func TestConsumeConcurrentCallsSingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.seedOrder(t, 1013, "+221770000013")

	cred, err := f.issuer.Issue(ctx, IssueInput{
		OrderID:     order.ID,
		StoreID:     order.VendorStoreID,
		ActorUserID: uuid.New(),
	})
	require.NoError(t, err)

	// one connection so sqlite serializes the writes instead of erroring
	sqlDB, err := f.db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	type outcome struct {
		won bool
		err error
	}
	const attempts = 8
	results := make(chan outcome, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := f.repo.Consume(ctx, cred.ConfirmationID, time.Now().UTC())
			results <- outcome{won: won, err: err}
		}()
	}
	wg.Wait()
	close(results)

	var winners int
	for res := range results {
		require.NoError(t, res.err)
		if res.won {
			winners++
		}
	}
	require.Equal(t, 1, winners)
}

func TestConfirmDeliveryWithTokenReleasesEscrow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.seedOrder(t, 1002, "+221770000002")
	f.seedEscrow(t, order)

	cred, err := f.issuer.Issue(ctx, IssueInput{
		OrderID:     order.ID,
		StoreID:     order.VendorStoreID,
		ActorUserID: uuid.New(),
	})
	require.NoError(t, err)

	result, err := f.verifier.ConfirmDelivery(ctx, Request{Token: cred.Token})
	require.NoError(t, err)
	require.True(t, result.EscrowReleased)
	require.False(t, result.ReleaseBlocked)
	require.Equal(t, enums.AssuranceCredential, result.Assurance)

	updated, err := f.orders.FindByID(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusDelivered, updated.Status)
	require.NotNil(t, updated.DeliveredAt)

	record, err := f.escrow.FindByOrderID(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.EscrowStatusReleased, record.Status)
}

func TestConfirmDeliveryWithOTP(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.seedOrder(t, 1003, "+221770000003")
	f.seedEscrow(t, order)

	cred, err := f.issuer.Issue(ctx, IssueInput{
		OrderID:     order.ID,
		StoreID:     order.VendorStoreID,
		ActorUserID: uuid.New(),
		Method:      enums.ConfirmationMethodOTP,
	})
	require.NoError(t, err)

	result, err := f.verifier.ConfirmDelivery(ctx, Request{
		OrderNumber: order.OrderNumber,
		OTP:         cred.OTP,
	})
	require.NoError(t, err)
	require.True(t, result.EscrowReleased)
}

func TestConfirmDeliveryReplayLoses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.seedOrder(t, 1004, "+221770000004")
	f.seedEscrow(t, order)

	cred, err := f.issuer.Issue(ctx, IssueInput{
		OrderID:     order.ID,
		StoreID:     order.VendorStoreID,
		ActorUserID: uuid.New(),
	})
	require.NoError(t, err)

	_, err = f.verifier.ConfirmDelivery(ctx, Request{Token: cred.Token})
	require.NoError(t, err)

	// replaying the spent credential fails with the same opaque error as a
	// wrong one, and the escrow stays released
	_, err = f.verifier.ConfirmDelivery(ctx, Request{Token: cred.Token})
	requireCredentialInvalid(t, err)

	record, err := f.escrow.FindByOrderID(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.EscrowStatusReleased, record.Status)
}

func TestConfirmDeliveryFailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.seedOrder(t, 1005, "+221770000005")

	cred, err := f.issuer.Issue(ctx, IssueInput{
		OrderID:     order.ID,
		StoreID:     order.VendorStoreID,
		ActorUserID: uuid.New(),
	})
	require.NoError(t, err)

	// wrong token
	_, err = f.verifier.ConfirmDelivery(ctx, Request{Token: "deadbeef"})
	requireCredentialInvalid(t, err)

	// wrong OTP for a real order
	_, err = f.verifier.ConfirmDelivery(ctx, Request{OrderNumber: order.OrderNumber, OTP: "000000"})
	requireCredentialInvalid(t, err)

	// OTP for an order that does not exist
	_, err = f.verifier.ConfirmDelivery(ctx, Request{OrderNumber: 999999, OTP: cred.OTP})
	requireCredentialInvalid(t, err)

	// nothing presented at all
	_, err = f.verifier.ConfirmDelivery(ctx, Request{})
	requireCredentialInvalid(t, err)
}

func TestConfirmDeliveryBlockedByDispute(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.seedOrder(t, 1006, "+221770000006")
	f.seedEscrow(t, order)

	dispute := models.ReturnRequest{
		ID:      uuid.New(),
		OrderID: order.ID,
		StoreID: order.VendorStoreID,
		Reason:  "not as described",
		Status:  enums.ReturnRequestStatusRequested,
	}
	require.NoError(t, f.db.Create(&dispute).Error)

	cred, err := f.issuer.Issue(ctx, IssueInput{
		OrderID:     order.ID,
		StoreID:     order.VendorStoreID,
		ActorUserID: uuid.New(),
	})
	require.NoError(t, err)

	result, err := f.verifier.ConfirmDelivery(ctx, Request{Token: cred.Token})
	require.NoError(t, err)
	require.False(t, result.EscrowReleased)
	require.True(t, result.ReleaseBlocked)

	// the delivery itself still went through
	updated, err := f.orders.FindByID(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusDelivered, updated.Status)

	record, err := f.escrow.FindByOrderID(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.EscrowStatusHeld, record.Status)
}

func TestConfirmReceiptWeakPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.seedOrder(t, 1007, "+221 77 000 00 07")
	f.seedEscrow(t, order)

	result, err := f.verifier.ConfirmReceipt(ctx, Request{
		OrderNumber: order.OrderNumber,
		BuyerPhone:  "221770000007",
	})
	require.NoError(t, err)
	require.True(t, result.EscrowReleased)
	require.Equal(t, enums.AssuranceWeak, result.Assurance)

	entries, err := f.auditRepo.ListByOrderID(ctx, order.ID)
	require.NoError(t, err)
	var found bool
	for _, entry := range entries {
		if entry.Action == enums.AuditActionReceiptConfirmed {
			found = true
			require.Contains(t, string(entry.Metadata), "weak")
		}
	}
	require.True(t, found)
}

func TestConfirmReceiptWrongPhone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.seedOrder(t, 1008, "+221770000008")
	f.seedEscrow(t, order)

	_, err := f.verifier.ConfirmReceipt(ctx, Request{
		OrderNumber: order.OrderNumber,
		BuyerPhone:  "+221779999999",
	})
	requireCredentialInvalid(t, err)

	record, err := f.escrow.FindByOrderID(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.EscrowStatusHeld, record.Status)
}
