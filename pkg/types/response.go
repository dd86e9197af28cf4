package types

// SuccessEnvelope wraps every 2xx body as {"data": ...}.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// ErrorEnvelope wraps every error body as {"error": {...}}.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// APIError is the public error shape. Retryable tells clients whether the
// same request may succeed later unchanged, e.g. after a lock timeout.
// RequestID echoes X-Request-Id so support can find the server log line.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	RequestID string `json:"request_id,omitempty"`
	Details   any    `json:"details,omitempty"`
}
