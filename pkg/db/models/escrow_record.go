package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sokoplace/escrow-backend/pkg/enums"
)

// EscrowRecord holds captured buyer funds for one vendor order until delivery
// is confirmed or the holding period lapses. Status only ever moves
// held -> released or held -> refunded; both writes go through conditional
// updates keyed on the current status.
type EscrowRecord struct {
	ID         uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID    uuid.UUID          `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	StoreID    uuid.UUID          `gorm:"column:store_id;type:uuid;not null"`
	Amount     decimal.Decimal    `gorm:"column:amount;type:numeric(14,2);not null"`
	Currency   enums.Currency     `gorm:"column:currency;type:text;not null;default:'XOF'"`
	Status     enums.EscrowStatus `gorm:"column:status;type:escrow_status;not null;default:'held'"`
	HeldAt     time.Time          `gorm:"column:held_at;not null"`
	ReleaseAt  time.Time          `gorm:"column:release_at;not null"`
	ReleasedAt *time.Time         `gorm:"column:released_at"`
	RefundedAt *time.Time         `gorm:"column:refunded_at"`
	CreatedAt  time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
