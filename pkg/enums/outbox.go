package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateEscrowRecord OutboxAggregateType = "escrow_record"
	AggregateVendorOrder  OutboxAggregateType = "vendor_order"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateEscrowRecord,
	AggregateVendorOrder,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventEscrowReleased OutboxEventType = "escrow_released"
	EventEscrowRefunded OutboxEventType = "escrow_refunded"
	EventOrderDelivered OutboxEventType = "order_delivered"
)

var validOutboxEventTypes = []OutboxEventType{
	EventEscrowReleased,
	EventEscrowRefunded,
	EventOrderDelivered,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
