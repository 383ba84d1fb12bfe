package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sokoplace/escrow-backend/pkg/enums"
)

// VendorOrder is the slice of the marketplace order the escrow core needs:
// identity for lookups (order number, buyer phone) and the delivery
// transition. Checkout owns creation and everything else about the row.
type VendorOrder struct {
	ID            uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BuyerStoreID  uuid.UUID         `gorm:"column:buyer_store_id;type:uuid;not null"`
	VendorStoreID uuid.UUID         `gorm:"column:vendor_store_id;type:uuid;not null"`
	OrderNumber   int64             `gorm:"column:order_number;not null;uniqueIndex"`
	BuyerPhone    string            `gorm:"column:buyer_phone;type:text;not null"`
	TotalAmount   decimal.Decimal   `gorm:"column:total_amount;type:numeric(14,2);not null"`
	Currency      enums.Currency    `gorm:"column:currency;type:text;not null;default:'XOF'"`
	Status        enums.OrderStatus `gorm:"column:status;type:order_status;not null;default:'pending'"`
	DeliveredAt   *time.Time        `gorm:"column:delivered_at"`
	CreatedAt     time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
