package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/sokoplace/escrow-backend/pkg/enums"
)

// ReturnRequest is a buyer dispute against an order. Any request whose status
// is non-terminal blocks escrow release for that order.
type ReturnRequest struct {
	ID         uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID    uuid.UUID                 `gorm:"column:order_id;type:uuid;not null;index"`
	StoreID    uuid.UUID                 `gorm:"column:store_id;type:uuid;not null"`
	Reason     string                    `gorm:"column:reason;type:text;not null"`
	Status     enums.ReturnRequestStatus `gorm:"column:status;type:return_request_status;not null;default:'requested'"`
	ResolvedAt *time.Time                `gorm:"column:resolved_at"`
	CreatedAt  time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}
