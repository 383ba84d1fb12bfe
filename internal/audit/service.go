package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sokoplace/escrow-backend/pkg/db/models"
	"github.com/sokoplace/escrow-backend/pkg/enums"
	"github.com/sokoplace/escrow-backend/pkg/pagination"
)

// Recorder defines operations that record and read escrow audit entries.
type Recorder interface {
	Record(ctx context.Context, input RecordInput) (*models.AuditLogEntry, error)
	RecordTx(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.AuditLogEntry, error)
	ListForOrder(ctx context.Context, orderID uuid.UUID) ([]models.AuditLogEntry, error)
	ListForStore(ctx context.Context, storeID uuid.UUID, params pagination.Params) (*Page, error)
}

// RecordInput captures the immutable data an audit entry requires. ActorUserID
// stays nil for system actors such as the auto-release sweep.
type RecordInput struct {
	StoreID     uuid.UUID
	OrderID     uuid.UUID
	Action      enums.AuditAction
	ActorUserID *uuid.UUID
	Metadata    map[string]any
}

// Page is one window of a store's audit trail.
type Page struct {
	Entries    []models.AuditLogEntry
	NextCursor string
}

type recorder struct {
	repo Repository
}

// NewRecorder wires an audit recorder with the provided repository.
func NewRecorder(repo Repository) (Recorder, error) {
	if repo == nil {
		return nil, fmt.Errorf("audit repository required")
	}
	return &recorder{repo: repo}, nil
}

func (r *recorder) Record(ctx context.Context, input RecordInput) (*models.AuditLogEntry, error) {
	return r.record(ctx, r.repo, input)
}

// RecordTx writes the entry inside the caller's transaction so the audit row
// commits or rolls back with the state change it describes.
func (r *recorder) RecordTx(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.AuditLogEntry, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	return r.record(ctx, r.repo.WithTx(tx), input)
}

func (r *recorder) record(ctx context.Context, repo Repository, input RecordInput) (*models.AuditLogEntry, error) {
	if input.StoreID == uuid.Nil {
		return nil, fmt.Errorf("store id is required")
	}
	if input.OrderID == uuid.Nil {
		return nil, fmt.Errorf("order id is required")
	}
	if !input.Action.IsValid() {
		return nil, fmt.Errorf("invalid audit action %q", input.Action)
	}

	var metadata json.RawMessage
	if len(input.Metadata) > 0 {
		raw, err := json.Marshal(input.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encode audit metadata: %w", err)
		}
		metadata = raw
	}

	entry := &models.AuditLogEntry{
		StoreID:     input.StoreID,
		OrderID:     input.OrderID,
		Action:      input.Action,
		ActorUserID: input.ActorUserID,
		Metadata:    metadata,
	}
	if err := repo.Create(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *recorder) ListForOrder(ctx context.Context, orderID uuid.UUID) ([]models.AuditLogEntry, error) {
	if orderID == uuid.Nil {
		return nil, fmt.Errorf("order id is required")
	}
	return r.repo.ListByOrderID(ctx, orderID)
}

func (r *recorder) ListForStore(ctx context.Context, storeID uuid.UUID, params pagination.Params) (*Page, error) {
	if storeID == uuid.Nil {
		return nil, fmt.Errorf("store id is required")
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	limit := pagination.NormalizeLimit(params.Limit)

	entries, err := r.repo.ListByStoreID(ctx, storeID, cursor, limit+1)
	if err != nil {
		return nil, err
	}

	page := &Page{Entries: entries}
	if len(entries) > limit {
		page.Entries = entries[:limit]
		last := page.Entries[limit-1]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}
	return page, nil
}
