package services_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"recut/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalStep, "transcribe", "run", "transcriber exited", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalStep) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"transcribe", "run", "transcriber exited"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsMarker(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected placeholder detail, got %q", err.Error())
	}
}

func TestFailureStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{services.Wrap(services.ErrValidation, "timeline", "split", "bad split", nil), http.StatusBadRequest},
		{services.Wrap(services.ErrNotFound, "project", "load", "missing", nil), http.StatusNotFound},
		{services.Wrap(services.ErrConflict, "project", "save", "stale", nil), http.StatusConflict},
		{services.Wrap(services.ErrExternalStep, "download", "run", "exit 1", nil), http.StatusBadGateway},
		{fmt.Errorf("step: %w", context.Canceled), services.StatusClientClosedRequest},
		{services.ErrStreamAborted, services.StatusClientClosedRequest},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := services.FailureStatus(tc.err); got != tc.want {
			t.Fatalf("FailureStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
