package enums

import "fmt"

// ConfirmationMethod is how a buyer presents a delivery confirmation credential.
type ConfirmationMethod string

const (
	ConfirmationMethodQR  ConfirmationMethod = "qr"
	ConfirmationMethodOTP ConfirmationMethod = "otp"
)

var validConfirmationMethods = []ConfirmationMethod{
	ConfirmationMethodQR,
	ConfirmationMethodOTP,
}

// IsValid reports whether the value matches the canonical confirmation method enum.
func (c ConfirmationMethod) IsValid() bool {
	for _, candidate := range validConfirmationMethods {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseConfirmationMethod converts the raw string to ConfirmationMethod.
func ParseConfirmationMethod(value string) (ConfirmationMethod, error) {
	for _, candidate := range validConfirmationMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid confirmation method %q", value)
}
