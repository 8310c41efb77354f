package mediator

import (
	"context"
	"testing"
	"time"
)

func TestHubRegisterUnregisterTracksActiveCount(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	if got := h.Active(); got != 0 {
		t.Fatalf("expected 0 active sessions initially, got %d", got)
	}

	cancelCalled := make(chan struct{})
	rs := &registeredSession{
		session: &Session{ID: "session-1", OwnerID: 7},
		cancel:  func() { close(cancelCalled) },
	}

	h.register <- rs
	waitUntil(t, func() bool { return h.Active() == 1 })

	if !h.Cancel("session-1") {
		t.Fatal("expected Cancel to find a registered session")
	}
	select {
	case <-cancelCalled:
	case <-time.After(time.Second):
		t.Fatal("expected Cancel to invoke the session's cancel func")
	}

	if h.Cancel("does-not-exist") {
		t.Fatal("expected Cancel on an unknown session id to return false")
	}

	h.unregister <- "session-1"
	waitUntil(t, func() bool { return h.Active() == 0 })
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}
