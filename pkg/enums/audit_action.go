package enums

import "fmt"

// AuditAction names every state-changing action the escrow core records.
type AuditAction string

const (
	AuditActionConfirmationIssued AuditAction = "confirmation_issued"
	AuditActionDeliveryConfirmed  AuditAction = "delivery_confirmed"
	AuditActionReceiptConfirmed   AuditAction = "receipt_confirmed"
	AuditActionEscrowReleased     AuditAction = "escrow_released"
	AuditActionEscrowRefunded     AuditAction = "escrow_refunded"
	AuditActionReleaseBlocked     AuditAction = "escrow_release_blocked"
)

var validAuditActions = []AuditAction{
	AuditActionConfirmationIssued,
	AuditActionDeliveryConfirmed,
	AuditActionReceiptConfirmed,
	AuditActionEscrowReleased,
	AuditActionEscrowRefunded,
	AuditActionReleaseBlocked,
}

// IsValid reports whether the value matches the canonical audit action enum.
func (a AuditAction) IsValid() bool {
	for _, candidate := range validAuditActions {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseAuditAction converts the raw string to AuditAction.
func ParseAuditAction(value string) (AuditAction, error) {
	for _, candidate := range validAuditActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid audit action %q", value)
}
