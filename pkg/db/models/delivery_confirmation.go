package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/sokoplace/escrow-backend/pkg/enums"
)

// DeliveryConfirmation is a single-use credential proving a buyer received an
// order. Only digests of the secrets are stored; the raw token and OTP leave
// the system exactly once, at issuance. UsedAt is set at most once, via an
// update conditioned on `used_at IS NULL`.
type DeliveryConfirmation struct {
	ID        uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID   uuid.UUID                `gorm:"column:order_id;type:uuid;not null;index"`
	StoreID   uuid.UUID                `gorm:"column:store_id;type:uuid;not null"`
	TokenHash string                   `gorm:"column:token_hash;type:text;not null;uniqueIndex"`
	OTPHash   string                   `gorm:"column:otp_hash;type:text;not null"`
	Method    enums.ConfirmationMethod `gorm:"column:method;type:confirmation_method;not null;default:'qr'"`
	ExpiresAt time.Time                `gorm:"column:expires_at;not null"`
	UsedAt    *time.Time               `gorm:"column:used_at"`
	CreatedAt time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
