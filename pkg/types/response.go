package types

// SuccessEnvelope wraps every successful HTTP response body.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the public face of a failure: a stable machine code, a message
// safe to show, and optional structured details (validation field errors).
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorEnvelope wraps every failed HTTP response body.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
