// Package types holds the wire envelopes shared by every cartwatch endpoint.
package types

// RequestIDHeader carries the correlation id set by the request middleware
// and echoed in error envelopes.
const RequestIDHeader = "X-Request-Id"

type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the public face of a pkg/errors value. Retryable mirrors the
// code's metadata so clients can back off on storage and backup failures.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
