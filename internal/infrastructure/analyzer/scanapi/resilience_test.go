package scanapi

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/scanworks/reportbroker/internal/core/domain"
)

func TestClassifyScanAPIError(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
		record    bool
	}{
		{"context canceled", context.Canceled, false, false},
		{"retryable status", &HTTPStatusError{StatusCode: http.StatusServiceUnavailable, Status: "503"}, true, true},
		{"client status", &HTTPStatusError{StatusCode: http.StatusBadRequest, Status: "400"}, false, false},
		{"unknown error", errors.New("boom"), false, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			class := classifyScanAPIError(tc.err)
			if class.Retryable != tc.retryable || class.RecordFailure != tc.record {
				t.Fatalf("classify(%v) = %+v, want retryable=%v record=%v", tc.err, class, tc.retryable, tc.record)
			}
		})
	}
}

func TestWrapTemporaryIfNeeded(t *testing.T) {
	retryable := &HTTPStatusError{Operation: "analyze", StatusCode: http.StatusBadGateway, Status: "502"}
	wrapped := wrapTemporaryIfNeeded(retryable)
	if !domain.IsKind(wrapped, domain.ErrTemporary) {
		t.Fatalf("retryable error not marked temporary: %v", wrapped)
	}

	permanent := &HTTPStatusError{Operation: "analyze", StatusCode: http.StatusUnprocessableEntity, Status: "422"}
	if domain.IsKind(wrapTemporaryIfNeeded(permanent), domain.ErrTemporary) {
		t.Fatal("non-retryable error must not be marked temporary")
	}

	if wrapTemporaryIfNeeded(nil) != nil {
		t.Fatal("nil error must stay nil")
	}
}
