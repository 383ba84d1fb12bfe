package disputes

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sokoplace/escrow-backend/pkg/db/models"
	"github.com/sokoplace/escrow-backend/pkg/enums"
)

var openStatuses = []enums.ReturnRequestStatus{
	enums.ReturnRequestStatusRequested,
	enums.ReturnRequestStatusApproved,
	enums.ReturnRequestStatusInTransit,
	enums.ReturnRequestStatusReceived,
}

// Repository manages persistence for return requests.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, request *models.ReturnRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ReturnRequest, error)
	ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.ReturnRequest, error)
	CountOpenForOrder(ctx context.Context, orderID uuid.UUID) (int64, error)
	Resolve(ctx context.Context, id uuid.UUID, status enums.ReturnRequestStatus, resolvedAt time.Time) (bool, error)
	SetStatus(ctx context.Context, id uuid.UUID, from, to enums.ReturnRequestStatus) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a return request repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, request *models.ReturnRequest) error {
	if request.ID == uuid.Nil {
		request.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(request).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ReturnRequest, error) {
	var request models.ReturnRequest
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&request).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *repository) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.ReturnRequest, error) {
	var requests []models.ReturnRequest
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *repository) CountOpenForOrder(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ReturnRequest{}).
		Where("order_id = ? AND status IN ?", orderID, openStatuses).
		Count(&count).Error
	return count, err
}

// Resolve moves an open request to a terminal status. The condition on the
// open statuses makes resolving an already-terminal request a no-op.
func (r *repository) Resolve(ctx context.Context, id uuid.UUID, status enums.ReturnRequestStatus, resolvedAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ReturnRequest{}).
		Where("id = ? AND status IN ?", id, openStatuses).
		Updates(map[string]any{
			"status":      status,
			"resolved_at": resolvedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) SetStatus(ctx context.Context, id uuid.UUID, from, to enums.ReturnRequestStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ReturnRequest{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
