package confirmations

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sokoplace/escrow-backend/pkg/db/models"
)

// Repository manages persistence for delivery confirmations. Lookups only
// ever see live credentials; consumption is a conditional update so a
// credential can be spent exactly once.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, confirmation *models.DeliveryConfirmation) error
	ExpireUnused(ctx context.Context, orderID uuid.UUID, at time.Time) (int64, error)
	FindLiveByTokenHash(ctx context.Context, tokenHash string, now time.Time) (*models.DeliveryConfirmation, error)
	FindLiveByOrderAndOTPHash(ctx context.Context, orderID uuid.UUID, otpHash string, now time.Time) (*models.DeliveryConfirmation, error)
	Consume(ctx context.Context, id uuid.UUID, usedAt time.Time) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a confirmation repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, confirmation *models.DeliveryConfirmation) error {
	if confirmation.ID == uuid.Nil {
		confirmation.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(confirmation).Error
}

// ExpireUnused invalidates every live credential for the order. Regenerating
// issuance calls this so the replacement is the only credential left standing.
func (r *repository) ExpireUnused(ctx context.Context, orderID uuid.UUID, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.DeliveryConfirmation{}).
		Where("order_id = ? AND used_at IS NULL AND expires_at > ?", orderID, at).
		Update("expires_at", at)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repository) FindLiveByTokenHash(ctx context.Context, tokenHash string, now time.Time) (*models.DeliveryConfirmation, error) {
	var confirmation models.DeliveryConfirmation
	err := r.db.WithContext(ctx).
		Where("token_hash = ? AND used_at IS NULL AND expires_at > ?", tokenHash, now).
		First(&confirmation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &confirmation, nil
}

func (r *repository) FindLiveByOrderAndOTPHash(ctx context.Context, orderID uuid.UUID, otpHash string, now time.Time) (*models.DeliveryConfirmation, error) {
	var confirmation models.DeliveryConfirmation
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND otp_hash = ? AND used_at IS NULL AND expires_at > ?", orderID, otpHash, now).
		First(&confirmation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &confirmation, nil
}

// Consume stamps used_at exactly once. The bool reports whether this call won
// the credential; false means another request already spent it or it expired
// between lookup and consumption.
func (r *repository) Consume(ctx context.Context, id uuid.UUID, usedAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.DeliveryConfirmation{}).
		Where("id = ? AND used_at IS NULL AND expires_at > ?", id, usedAt).
		Update("used_at", usedAt)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
