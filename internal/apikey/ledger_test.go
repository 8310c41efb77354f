package apikey

import (
	"testing"
	"time"
)

func TestAllowCapsAtLimitWithinWindow(t *testing.T) {
	l := NewLedger()

	for i := 0; i < 3; i++ {
		if !l.Allow("key-1", "generate", 3, time.Minute) {
			t.Fatalf("expected request %d to be allowed", i)
		}
	}
	if l.Allow("key-1", "generate", 3, time.Minute) {
		t.Fatal("expected the 4th request within the window to be rejected")
	}
}

func TestAllowTracksBucketsIndependently(t *testing.T) {
	l := NewLedger()

	for i := 0; i < 2; i++ {
		if !l.Allow("key-1", "generate", 2, time.Minute) {
			t.Fatalf("expected generate request %d to be allowed", i)
		}
	}
	if !l.Allow("key-1", "status", 2, time.Minute) {
		t.Fatal("expected a different bucket to have its own budget")
	}
}

func TestAllowResetsAfterWindowExpires(t *testing.T) {
	l := NewLedger()
	window := 20 * time.Millisecond

	if !l.Allow("key-1", "generate", 1, window) {
		t.Fatal("expected the first request to be allowed")
	}
	if l.Allow("key-1", "generate", 1, window) {
		t.Fatal("expected the second immediate request to be rejected")
	}

	time.Sleep(window + 10*time.Millisecond)

	if !l.Allow("key-1", "generate", 1, window) {
		t.Fatal("expected a request after the window expired to be allowed again")
	}
}
