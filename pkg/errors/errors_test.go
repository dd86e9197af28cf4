package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeInsufficientStock, status: http.StatusUnprocessableEntity, publicMsg: "insufficient stock", retryable: true, detailsOK: true},
		{code: CodeConcurrencyConflict, status: http.StatusConflict, publicMsg: "resource busy, retry later", retryable: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	detail := map[string]any{"field": "foo"}
	base.WithDetails(detail)
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeForbidden, "no entry")
	if got := As(err); got == nil || got.Code() != CodeForbidden {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestCodeOfAndIsCode(t *testing.T) {
	wrapped := fmt.Errorf("confirm: %w", New(CodeInsufficientStock, "no units"))
	if CodeOf(wrapped) != CodeInsufficientStock {
		t.Fatalf("expected insufficient stock code, got %s", CodeOf(wrapped))
	}
	if !IsCode(wrapped, CodeInsufficientStock) {
		t.Fatalf("IsCode should match wrapped typed error")
	}
	if IsCode(stdErrors.New("plain"), CodeNotFound) {
		t.Fatalf("plain errors must not match a code")
	}
	if CodeOf(stdErrors.New("plain")) != CodeInternal {
		t.Fatalf("plain errors default to internal")
	}
}

func TestDumpCollectsChain(t *testing.T) {
	err := fmt.Errorf("outer: %w", Wrap(CodeConcurrencyConflict, stdErrors.New("lock timeout"), "busy"))
	d := Dump(err)
	if d.Code != CodeConcurrencyConflict {
		t.Fatalf("unexpected dump code %s", d.Code)
	}
	if len(d.Chain) != 3 {
		t.Fatalf("expected three chain entries, got %d", len(d.Chain))
	}
}

func TestErrorsIsMatchesByCode(t *testing.T) {
	notFound := New(CodeNotFound, "")
	err := fmt.Errorf("load item: %w", New(CodeNotFound, "inventory item not found"))
	if !stdErrors.Is(err, notFound) {
		t.Fatalf("expected errors.Is to match on code")
	}
	if stdErrors.Is(err, New(CodeConflict, "")) {
		t.Fatalf("different codes must not match")
	}
}

func TestErrorStringIncludesCause(t *testing.T) {
	err := Wrap(CodeDependency, stdErrors.New("dial tcp: refused"), "ping redis")
	if got := err.Error(); got != "DEPENDENCY_ERROR: ping redis: dial tcp: refused" {
		t.Fatalf("unexpected error string %q", got)
	}
	if got := New(CodeValidation, "bad").Error(); got != "VALIDATION_ERROR: bad" {
		t.Fatalf("unexpected error string %q", got)
	}
}
