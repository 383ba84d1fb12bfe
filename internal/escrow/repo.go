package escrow

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sokoplace/escrow-backend/pkg/db/models"
	"github.com/sokoplace/escrow-backend/pkg/enums"
)

// Repository manages persistence for escrow records. Both terminal
// transitions are conditional updates keyed on the current status, so a lost
// race shows up as zero affected rows instead of a double write.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, record *models.EscrowRecord) error
	FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.EscrowRecord, error)
	FindDueHeld(ctx context.Context, cutoff time.Time, after *DueCursor, limit int) ([]models.EscrowRecord, error)
	Release(ctx context.Context, orderID uuid.UUID, releasedAt time.Time) (bool, error)
	Refund(ctx context.Context, orderID uuid.UUID, refundedAt time.Time) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an escrow repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, record *models.EscrowRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *repository) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.EscrowRecord, error) {
	var record models.EscrowRecord
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// DueCursor marks the last record of a sweep batch. The next batch resumes
// strictly after it, so records that stay held (blocked by a dispute) cannot
// pin the head of the scan and starve the ones behind them.
type DueCursor struct {
	ReleaseAt time.Time
	ID        uuid.UUID
}

// FindDueHeld returns held records whose release time has lapsed, ordered by
// (release_at, id) so a cursor gives each record exactly one look per sweep.
func (r *repository) FindDueHeld(ctx context.Context, cutoff time.Time, after *DueCursor, limit int) ([]models.EscrowRecord, error) {
	query := r.db.WithContext(ctx).
		Where("status = ? AND release_at <= ?", enums.EscrowStatusHeld, cutoff)
	if after != nil {
		query = query.Where("release_at > ? OR (release_at = ? AND id > ?)",
			after.ReleaseAt, after.ReleaseAt, after.ID)
	}
	var records []models.EscrowRecord
	if err := query.
		Order("release_at ASC, id ASC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// Release flips held -> released exactly once. The bool reports whether this
// call performed the transition; false means the record was already terminal.
func (r *repository) Release(ctx context.Context, orderID uuid.UUID, releasedAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.EscrowRecord{}).
		Where("order_id = ? AND status = ?", orderID, enums.EscrowStatusHeld).
		Updates(map[string]any{
			"status":      enums.EscrowStatusReleased,
			"released_at": releasedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Refund flips held -> refunded exactly once, mirroring Release.
func (r *repository) Refund(ctx context.Context, orderID uuid.UUID, refundedAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.EscrowRecord{}).
		Where("order_id = ? AND status = ?", orderID, enums.EscrowStatusHeld).
		Updates(map[string]any{
			"status":      enums.EscrowStatusRefunded,
			"refunded_at": refundedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
