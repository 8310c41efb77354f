package apperr

import (
	"errors"
	"net/http"
	"testing"
)

func TestNewAndIs(t *testing.T) {
	err := New(KindQuotaExceeded, "too much usage")
	if !Is(err, KindQuotaExceeded) {
		t.Fatal("expected Is to match the error's own kind")
	}
	if Is(err, KindAvatarNotFound) {
		t.Fatal("did not expect Is to match an unrelated kind")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindUpstreamUnavailable, "voice-svc dial failed", cause)

	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to see through to the wrapped cause")
	}
	if !Is(err, KindUpstreamUnavailable) {
		t.Fatal("expected Is to match the wrapping error's kind")
	}
	if err.Error() != "voice-svc dial failed: connection refused" {
		t.Errorf("unexpected error text: %q", err.Error())
	}
}

func TestNewErrorHasNoCause(t *testing.T) {
	err := New(KindValidationFailed, "text is required")
	if err.Unwrap() != nil {
		t.Fatal("expected New to produce an error with no wrapped cause")
	}
	if err.Error() != "text is required" {
		t.Errorf("unexpected error text: %q", err.Error())
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[Kind]int{
		KindValidationFailed:   http.StatusBadRequest,
		KindUnauthorized:       http.StatusUnauthorized,
		KindWorkerAuthFailed:   http.StatusUnauthorized,
		KindAvatarNotFound:     http.StatusNotFound,
		KindQuotaExceeded:      http.StatusTooManyRequests,
		KindAvatarIncomplete:   http.StatusConflict,
		KindUpstreamUnavailable: http.StatusBadGateway,
		KindPollTimeout:        http.StatusBadGateway,
		KindQueueFull:          http.StatusTooManyRequests,
		KindReadinessTimeout:   http.StatusBadGateway,
		KindInternal:           http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := HTTPStatus(kind); got != want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", kind, got, want)
		}
	}
}

func TestHTTPStatusUnknownKindDefaultsToInternal(t *testing.T) {
	if got := HTTPStatus(Kind("something-made-up")); got != http.StatusInternalServerError {
		t.Errorf("expected unknown kind to default to 500, got %d", got)
	}
}
