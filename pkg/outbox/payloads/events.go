package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sokoplace/escrow-backend/pkg/enums"
)

// EscrowReleasedEvent tells the payout executor that held funds now belong to
// the vendor.
type EscrowReleasedEvent struct {
	EscrowRecordID uuid.UUID                   `json:"escrow_record_id"`
	OrderID        uuid.UUID                   `json:"order_id"`
	StoreID        uuid.UUID                   `json:"store_id"`
	Amount         decimal.Decimal             `json:"amount"`
	Currency       enums.Currency              `json:"currency"`
	Trigger        string                      `json:"trigger"`
	Assurance      enums.VerificationAssurance `json:"assurance,omitempty"`
	ReleasedAt     time.Time                   `json:"released_at"`
}

// EscrowRefundedEvent signals that a dispute resolved in the buyer's favor.
type EscrowRefundedEvent struct {
	EscrowRecordID  uuid.UUID       `json:"escrow_record_id"`
	OrderID         uuid.UUID       `json:"order_id"`
	StoreID         uuid.UUID       `json:"store_id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        enums.Currency  `json:"currency"`
	ReturnRequestID uuid.UUID       `json:"return_request_id"`
	RefundedAt      time.Time       `json:"refunded_at"`
}

// OrderDeliveredEvent is emitted when a delivery confirmation succeeds,
// regardless of whether escrow release followed.
type OrderDeliveredEvent struct {
	OrderID       uuid.UUID                   `json:"order_id"`
	VendorStoreID uuid.UUID                   `json:"vendor_store_id"`
	BuyerStoreID  uuid.UUID                   `json:"buyer_store_id"`
	Assurance     enums.VerificationAssurance `json:"assurance"`
	DeliveredAt   time.Time                   `json:"delivered_at"`
}
