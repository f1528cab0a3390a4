package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"archivist/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrTransient, "transport", "submit", "post failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"transport", "submit", "post failed"} {
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
		t.Fatalf("expected default detail, got %q", err.Error())
	}
}

func TestMessageIDMapping(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{services.Wrap(services.ErrWorkerUnreachable, "remote", "probe", "", nil), services.MessageWorkerUnreachable},
		{services.Wrap(services.ErrWorkerExecutor, "remote", "submit", "", nil), services.MessageWorkerExecutorFailed},
		{services.Wrap(services.ErrValidation, "distributor", "", "missing run id", nil), services.MessagePreconditionFailed},
		{fmt.Errorf("list: %w", services.ErrNotFound), services.MessageListingFailed},
		{errors.New("boom"), services.MessageUnexpectedFailure},
	}
	for _, tc := range cases {
		if got := services.MessageID(tc.err); got != tc.want {
			t.Fatalf("MessageID(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestIsTransportFailure(t *testing.T) {
	if !services.IsTransportFailure(services.Wrap(services.ErrNotFound, "transport", "submit", "404", nil)) {
		t.Fatal("expected not-found to count as transport failure")
	}
	if services.IsTransportFailure(services.Wrap(services.ErrWorkerExecutor, "transport", "submit", "500", nil)) {
		t.Fatal("executor failure must not trigger a liveness probe")
	}
}
