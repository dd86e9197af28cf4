package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

// Code is the stable, client-visible error identifier.
type Code string

const (
	CodeValidation          Code = "VALIDATION_ERROR"
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodeForbidden           Code = "FORBIDDEN"
	CodeNotFound            Code = "NOT_FOUND"
	CodeConflict            Code = "CONFLICT"
	CodeStateConflict       Code = "STATE_CONFLICT"
	CodeInsufficientStock   Code = "INSUFFICIENT_STOCK"
	CodeConcurrencyConflict Code = "CONCURRENCY_CONFLICT"
	CodeIdempotency         Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit           Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal            Code = "INTERNAL_ERROR"
	CodeDependency          Code = "DEPENDENCY_ERROR"
)

// Metadata is how a code surfaces over HTTP.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

// Retryable marks codes a client may resend unchanged; withDetails marks
// codes whose details are safe to return.
const (
	final       = false
	retryable   = true
	noDetails   = false
	withDetails = true
)

var catalog = map[Code]Metadata{
	CodeValidation:          {http.StatusBadRequest, final, "validation failed", withDetails},
	CodeUnauthorized:        {http.StatusUnauthorized, final, "authentication required", noDetails},
	CodeForbidden:           {http.StatusForbidden, final, "access denied", noDetails},
	CodeNotFound:            {http.StatusNotFound, final, "resource not found", noDetails},
	CodeConflict:            {http.StatusConflict, final, "conflict detected", noDetails},
	CodeStateConflict:       {http.StatusUnprocessableEntity, final, "state transition disallowed", withDetails},
	CodeInsufficientStock:   {http.StatusUnprocessableEntity, retryable, "insufficient stock", withDetails},
	CodeConcurrencyConflict: {http.StatusConflict, retryable, "resource busy, retry later", noDetails},
	CodeIdempotency:         {http.StatusConflict, final, "idempotency key reused", withDetails},
	CodeRateLimit:           {http.StatusTooManyRequests, final, "rate limit exceeded", noDetails},
	CodeInternal:            {http.StatusInternalServerError, retryable, "internal server error", noDetails},
	CodeDependency:          {http.StatusServiceUnavailable, retryable, "dependency unavailable", withDetails},
}

// MetadataFor falls back to the internal error entry for unknown codes.
func MetadataFor(code Code) Metadata {
	if meta, ok := catalog[code]; ok {
		return meta
	}
	return catalog[CodeInternal]
}

// Error is a coded error with an optional cause and client-safe details.
// All methods accept a nil receiver.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

// WithDetails attaches details in place and returns the same error.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	default:
		return fmt.Sprintf("%s: %s", e.code, e.message)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is matches any *Error with the same code, so sentinel values such as
// New(CodeNotFound, "") work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e != nil && t != nil && e.code == t.code
}

// As returns the outermost *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// CodeOf returns the typed code carried by err, or CodeInternal for untyped errors.
func CodeOf(err error) Code {
	return As(err).Code()
}

// IsCode reports whether the outermost typed error in err's chain has code.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}
