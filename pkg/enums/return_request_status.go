package enums

import "fmt"

// ReturnRequestStatus describes the `status` column in return_requests.
type ReturnRequestStatus string

const (
	ReturnRequestStatusRequested ReturnRequestStatus = "requested"
	ReturnRequestStatusApproved  ReturnRequestStatus = "approved"
	ReturnRequestStatusInTransit ReturnRequestStatus = "in_transit"
	ReturnRequestStatusReceived  ReturnRequestStatus = "received"
	ReturnRequestStatusRejected  ReturnRequestStatus = "rejected"
	ReturnRequestStatusRefunded  ReturnRequestStatus = "refunded"
)

var validReturnRequestStatuses = []ReturnRequestStatus{
	ReturnRequestStatusRequested,
	ReturnRequestStatusApproved,
	ReturnRequestStatusInTransit,
	ReturnRequestStatusReceived,
	ReturnRequestStatusRejected,
	ReturnRequestStatusRefunded,
}

// IsValid reports whether the value matches the canonical return request status enum.
func (r ReturnRequestStatus) IsValid() bool {
	for _, candidate := range validReturnRequestStatuses {
		if candidate == r {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the request no longer blocks escrow release.
// Every non-terminal request on an order holds its escrow.
func (r ReturnRequestStatus) IsTerminal() bool {
	return r == ReturnRequestStatusRejected || r == ReturnRequestStatusRefunded
}

// ParseReturnRequestStatus converts the raw string to ReturnRequestStatus.
func ParseReturnRequestStatus(value string) (ReturnRequestStatus, error) {
	for _, candidate := range validReturnRequestStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid return request status %q", value)
}
