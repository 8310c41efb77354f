package mediator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"avatarbackend/internal/apperr"
	"avatarbackend/internal/auth"
	"avatarbackend/internal/clients"
	"avatarbackend/internal/database"
	"avatarbackend/internal/models"
	"avatarbackend/internal/usage"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 30 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20 // 1 MiB; live conversation frames are small JSON control messages.
	sendBufferSize = 64

	// voiceReadyTimeout bounds how long a voice-only session waits in
	// Connecting for voice-svc's "ready" signal.
	voiceReadyTimeout = 20 * time.Second
	// videoReadyTimeout bounds the same wait for a video session, which
	// must hear "ready" from both voice-svc and video-svc.
	videoReadyTimeout = 30 * time.Second
)

// Session mediates one live conversation: it owns the client WebSocket, an
// outbound dial to voice-svc, an optional dial to video-svc, and the single
// goroutine that is the only place session state is read or written.
// Three reader goroutines (client, voice-svc, and optionally video-svc) fan
// events into one channel; the loop goroutine is the sole consumer, so no
// lock is needed around the session's own fields.
type Session struct {
	ID       string
	OwnerID  int
	AvatarID string
	Kind     string // models.SessionKindVoice or models.SessionKindVideo

	db       *database.DB
	authSvc  *auth.AuthService
	llm      *clients.LLMClient
	voiceCli *clients.VoiceClient
	videoCli *clients.VideoClient
	usage    *usage.Accountant

	clientConn *websocket.Conn
	voiceConn  *clients.VoiceConn
	videoConn  *clients.VideoConn

	send   chan models.ServerFrame
	events chan event
	done   chan struct{}

	usageOnce sync.Once

	transcriptMu sync.Mutex
	transcript   []models.TranscriptEntry

	personaPrompt string
	language      string

	endStatus string // set by a failed readiness wait; defaults to "ended" in finalize.
}

// NewSession constructs a Session. Dialing voice-svc/video-svc and the
// client WebSocket upgrade both happen before this is called; Session only
// owns orchestration once every connection is already open.
func NewSession(id string, ownerID int, avatar *models.Avatar, kind string, db *database.DB, authSvc *auth.AuthService,
	llm *clients.LLMClient, voiceCli *clients.VoiceClient, videoCli *clients.VideoClient, acct *usage.Accountant,
	clientConn *websocket.Conn, voiceConn *clients.VoiceConn, videoConn *clients.VideoConn) *Session {
	return &Session{
		ID:            id,
		OwnerID:       ownerID,
		AvatarID:      avatar.ID,
		Kind:          kind,
		db:            db,
		authSvc:       authSvc,
		llm:           llm,
		voiceCli:      voiceCli,
		videoCli:      videoCli,
		usage:         acct,
		clientConn:    clientConn,
		voiceConn:     voiceConn,
		videoConn:     videoConn,
		send:          make(chan models.ServerFrame, sendBufferSize),
		events:        make(chan event, sendBufferSize),
		done:          make(chan struct{}),
		personaPrompt: avatar.PersonaPrompt,
		language:      avatar.Language,
	}
}

// Run starts every reader goroutine and the event loop, and blocks until
// the session ends (client disconnects, voice-svc closes, or ctx is
// cancelled). It always leaves the session in a terminal, persisted state.
func (s *Session) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.writePump(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.readClientPump(ctx, cancel)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.readVoicePump(ctx, cancel)
	}()

	if s.videoConn != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.readVideoPump(ctx, cancel)
		}()
	}

	if s.awaitReady(ctx) {
		_ = s.db.UpdateSessionStatus(s.ID, models.SessionStatusActive)
		s.loop(ctx)
	}

	close(s.done)
	cancel()
	wg.Wait()

	s.finalize()
}

// awaitReady holds the session in Connecting until voice-svc (and, for a
// video session, video-svc too) has signalled "ready", a readiness watchdog
// fires, or the client/upstream disconnects first. Any other event that
// arrives early (a client message sent before the client saw "ready") is
// still handled rather than dropped, so nothing is lost once the main loop
// takes over.
func (s *Session) awaitReady(ctx context.Context) bool {
	timeout := voiceReadyTimeout
	if s.videoConn != nil {
		timeout = videoReadyTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	voiceReady := false
	videoReady := s.videoConn == nil

	for {
		if voiceReady && videoReady {
			_ = s.db.UpdateSessionStatus(s.ID, models.SessionStatusReady)
			s.sendFrame(models.ServerFrame{Type: "ready"})
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			s.failReadiness()
			return false
		case ev := <-s.events:
			switch ev.kind {
			case eventVoiceReady:
				voiceReady = true
			case eventVideoReady:
				videoReady = true
			case eventClientClosed, eventVoiceClosed:
				return false
			default:
				if s.handleEvent(ctx, ev) {
					return false
				}
			}
		}
	}
}

// failReadiness records the watchdog firing as a ReadinessTimeout and lets
// finalize persist the session as failed instead of ended.
func (s *Session) failReadiness() {
	s.endStatus = models.SessionStatusFailed
	err := apperr.New(apperr.KindReadinessTimeout, fmt.Sprintf("session %s: upstream did not signal ready in time", s.ID))
	log.Printf("[mediator] %v", err)
	s.sendFrame(models.ServerFrame{Type: "error", Data: "session setup timed out"})
}

// loop is the single mutator of session state: every event, regardless of
// which reader goroutine produced it, is handled here one at a time.
func (s *Session) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.events:
			if s.handleEvent(ctx, ev) {
				return
			}
		}
	}
}

// handleEvent applies one event to session state. It reports whether the
// event ends the session.
func (s *Session) handleEvent(ctx context.Context, ev event) bool {
	switch ev.kind {
	case eventUserText:
		s.appendTranscript(models.TranscriptRoleUser, ev.text)
		go s.handleUserText(ctx, ev.text)
	case eventStopSpeaking:
		if s.voiceConn != nil {
			_ = s.voiceConn.SendStop()
		}
	case eventVoiceSpeechStart:
		s.sendFrame(models.ServerFrame{Type: "speech_start"})
	case eventVoiceSpeechEnd:
		s.sendFrame(models.ServerFrame{Type: "speech_end"})
	case eventVoiceError:
		s.sendFrame(models.ServerFrame{Type: "error", Data: ev.voiceError})
	case eventVideoFrame:
		// Binary video frames are forwarded straight to the client outside
		// the JSON frame channel; see writePump's binary path.
		s.sendBinary(ev.videoFrame)
	case eventVoiceReady, eventVideoReady:
		// Readiness is only meaningful during awaitReady; once the main
		// loop is running the session is already past Connecting.
	case eventClientClosed, eventVoiceClosed:
		return true
	}
	return false
}

// handleUserText drives one conversational turn: it asks the LLM for a
// reply, streams the reply text to the client as it arrives, and forwards
// the full reply to voice-svc to be spoken. It runs off the event loop
// goroutine so a slow LLM call never blocks other events from draining.
func (s *Session) handleUserText(ctx context.Context, text string) {
	history := s.historySnapshot()
	reply, err := s.llm.StreamTurn(ctx, clients.TurnRequest{
		PersonaPrompt: s.personaPrompt,
		History:       history,
		UserText:      text,
		Language:      s.language,
	}, func(delta string) {
		s.sendFrame(models.ServerFrame{Type: "llm_response_text", Data: delta})
	})
	if err != nil {
		log.Printf("[mediator] session %s: llm turn failed: %v", s.ID, err)
		s.sendFrame(models.ServerFrame{Type: "error", Data: "failed to generate a response"})
		return
	}

	s.appendTranscript(models.TranscriptRoleModel, reply)

	if s.voiceConn != nil {
		if err := s.voiceConn.SendText(reply); err != nil {
			log.Printf("[mediator] session %s: failed to forward reply to voice-svc: %v", s.ID, err)
		}
	}
}

func (s *Session) readClientPump(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()
	s.clientConn.SetReadLimit(maxMessageSize)
	s.clientConn.SetReadDeadline(time.Now().Add(pongWait))
	s.clientConn.SetPongHandler(func(string) error {
		s.clientConn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := s.clientConn.ReadMessage()
		if err != nil {
			s.emit(event{kind: eventClientClosed})
			return
		}

		var envelope struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}
		if err := json.Unmarshal(raw, &envelope); err != nil {
			continue
		}

		switch envelope.Type {
		case "user_text":
			s.emit(event{kind: eventUserText, text: envelope.Text})
		case "stop_speaking":
			s.emit(event{kind: eventStopSpeaking})
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (s *Session) readVoicePump(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()
	if s.voiceConn == nil {
		return
	}
	for {
		msgType, raw, err := s.voiceConn.ReadMessage()
		if err != nil {
			s.emit(event{kind: eventVoiceClosed})
			return
		}
		if msgType == websocket.BinaryMessage {
			// Raw synthesized audio is relayed to the client as-is; in a
			// video session it is also forwarded to video-svc for lip-sync
			// rendering.
			if s.videoConn != nil {
				_ = s.videoConn.SendAudioChunk(raw)
			}
			s.sendBinary(raw)
			continue
		}

		var ctrl models.VoiceControlMessage
		if err := json.Unmarshal(raw, &ctrl); err != nil {
			continue
		}
		switch ctrl.Type {
		case "ready":
			s.emit(event{kind: eventVoiceReady})
		case "speech_start":
			s.emit(event{kind: eventVoiceSpeechStart})
		case "speech_end":
			s.emit(event{kind: eventVoiceSpeechEnd})
		case "error":
			s.emit(event{kind: eventVoiceError, voiceError: ctrl.Error})
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (s *Session) readVideoPump(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()
	for {
		msgType, data, err := s.videoConn.ReadFrame()
		if err != nil {
			return
		}

		if msgType == websocket.BinaryMessage {
			s.emit(event{kind: eventVideoFrame, videoFrame: data})
		} else {
			var ctrl struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(data, &ctrl); err == nil && ctrl.Type == "ready" {
				s.emit(event{kind: eventVideoReady})
			}
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// writePump is the only goroutine that ever writes to clientConn, matching
// the invariant gorilla/websocket requires: at most one concurrent writer.
func (s *Session) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-s.send:
			s.clientConn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.clientConn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.clientConn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			s.clientConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.clientConn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) sendFrame(frame models.ServerFrame) {
	select {
	case s.send <- frame:
	case <-time.After(2 * time.Second):
		log.Printf("[mediator] session %s: dropped frame %q, send buffer full", s.ID, frame.Type)
	}
}

func (s *Session) sendBinary(data []byte) {
	s.clientConn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = s.clientConn.WriteMessage(websocket.BinaryMessage, data)
}

func (s *Session) emit(ev event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *Session) appendTranscript(role, text string) {
	s.transcriptMu.Lock()
	defer s.transcriptMu.Unlock()
	s.transcript = append(s.transcript, models.TranscriptEntry{Role: role, Text: text})
}

func (s *Session) historySnapshot() []string {
	s.transcriptMu.Lock()
	defer s.transcriptMu.Unlock()
	out := make([]string, 0, len(s.transcript))
	for _, t := range s.transcript {
		out = append(out, t.Role+": "+t.Text)
	}
	return out
}

// finalize persists the session's end status (ended, or failed after a
// readiness timeout) along with its transcript, closes
// upstream connections, and commits conversation-minutes usage exactly
// once regardless of how the session ended.
func (s *Session) finalize() {
	s.usageOnce.Do(func() {
		s.transcriptMu.Lock()
		turns := len(s.transcript)
		s.transcriptMu.Unlock()

		minutes := float64(turns) * 0.5
		if err := s.usage.Commit(s.OwnerID, models.ResourceConversationMinutes, minutes); err != nil {
			log.Printf("[mediator] session %s: failed to commit usage: %v", s.ID, err)
		}
	})

	s.transcriptMu.Lock()
	transcript := s.transcript
	s.transcriptMu.Unlock()

	endStatus := s.endStatus
	if endStatus == "" {
		endStatus = models.SessionStatusEnded
	}
	if err := s.db.EndSession(s.ID, endStatus, transcript); err != nil {
		log.Printf("[mediator] session %s: failed to persist end-of-session state: %v", s.ID, err)
	}

	if s.voiceConn != nil {
		s.voiceConn.Close()
	}
	if s.videoConn != nil {
		s.videoConn.Close()
	}
	s.clientConn.Close()
}
