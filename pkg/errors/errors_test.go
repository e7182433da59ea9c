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
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected", detailsOK: true},
		{code: CodeStorage, status: http.StatusInternalServerError, publicMsg: "storage unavailable", retryable: true},
		{code: CodeBackup, status: http.StatusInternalServerError, publicMsg: "backup failed", retryable: true},
		{code: CodeRateLimit, status: http.StatusTooManyRequests, publicMsg: "too many requests", retryable: true, detailsOK: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
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
	if base.Error() != "VALIDATION_ERROR: missing foo" {
		t.Fatalf("unexpected error string %q", base.Error())
	}

	base.WithDetails(map[string]any{"field": "foo"})
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeStorage, cause, "insert cart")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeStorage {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
	if Wrap(CodeNotFound, nil, "gone").Unwrap() != nil {
		t.Fatalf("Wrap(nil) should not carry a cause")
	}
}

func TestAsAndIsCodeSeeThroughFmtWrapping(t *testing.T) {
	err := fmt.Errorf("handler: %w", New(CodeNotFound, "cart 7 not found"))

	typed := As(err)
	if typed == nil || typed.Code() != CodeNotFound {
		t.Fatalf("expected typed not found error, got %v", typed)
	}
	if !IsCode(err, CodeNotFound) {
		t.Fatalf("expected IsCode to match")
	}
	if IsCode(err, CodeConflict) {
		t.Fatalf("unexpected code match")
	}
	if As(stdErrors.New("plain")) != nil {
		t.Fatalf("plain errors are not typed")
	}
	if As(nil) != nil {
		t.Fatalf("nil is not typed")
	}
}

func TestNilErrorReceivers(t *testing.T) {
	var e *Error
	if e.Code() != CodeInternal {
		t.Fatalf("nil error should report internal code")
	}
	if e.Message() != "" || e.Error() != "" || e.Unwrap() != nil || e.Details() != nil {
		t.Fatalf("nil error accessors should be zero valued")
	}
}
