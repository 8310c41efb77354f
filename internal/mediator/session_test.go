package mediator

import (
	"testing"
	"time"

	"avatarbackend/internal/models"
)

func newTestSession() *Session {
	return &Session{
		ID:     "session-1",
		events: make(chan event, sendBufferSize),
		done:   make(chan struct{}),
	}
}

func TestAppendTranscriptAndHistorySnapshot(t *testing.T) {
	s := newTestSession()

	s.appendTranscript(models.TranscriptRoleUser, "hello")
	s.appendTranscript(models.TranscriptRoleModel, "hi there")

	history := s.historySnapshot()
	want := []string{
		models.TranscriptRoleUser + ": hello",
		models.TranscriptRoleModel + ": hi there",
	}
	if len(history) != len(want) {
		t.Fatalf("expected %d history entries, got %d", len(want), len(history))
	}
	for i := range want {
		if history[i] != want[i] {
			t.Errorf("history[%d] = %q, want %q", i, history[i], want[i])
		}
	}
}

func TestEmitDeliversToEventsChannel(t *testing.T) {
	s := newTestSession()

	s.emit(event{kind: eventStopSpeaking})

	select {
	case ev := <-s.events:
		if ev.kind != eventStopSpeaking {
			t.Fatalf("expected eventStopSpeaking, got %v", ev.kind)
		}
	case <-time.After(time.Second):
		t.Fatal("expected emit to deliver to the events channel")
	}
}

func TestHandleEventReportsClientAndVoiceClosedAsTerminal(t *testing.T) {
	s := newTestSession()
	s.send = make(chan models.ServerFrame, 1)

	if !s.handleEvent(nil, event{kind: eventClientClosed}) {
		t.Fatal("expected eventClientClosed to be reported as terminal")
	}
	if !s.handleEvent(nil, event{kind: eventVoiceClosed}) {
		t.Fatal("expected eventVoiceClosed to be reported as terminal")
	}
}

func TestHandleEventIgnoresReadinessSignalsOnceRunning(t *testing.T) {
	s := newTestSession()
	s.send = make(chan models.ServerFrame, 1)

	if s.handleEvent(nil, event{kind: eventVoiceReady}) {
		t.Fatal("eventVoiceReady should not be treated as terminal once the main loop is running")
	}
	if s.handleEvent(nil, event{kind: eventVideoReady}) {
		t.Fatal("eventVideoReady should not be treated as terminal once the main loop is running")
	}
}

func TestHandleEventStopSpeakingIsSafeWithoutAVoiceConn(t *testing.T) {
	s := newTestSession()
	s.send = make(chan models.ServerFrame, 1)

	if s.handleEvent(nil, event{kind: eventStopSpeaking}) {
		t.Fatal("eventStopSpeaking should never be terminal")
	}
}

func TestEmitDoesNotBlockForeverAfterDone(t *testing.T) {
	s := newTestSession()
	s.events = make(chan event) // unbuffered and nobody reading it
	close(s.done)

	finished := make(chan struct{})
	go func() {
		s.emit(event{kind: eventStopSpeaking})
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("expected emit to return promptly once the session is done")
	}
}
