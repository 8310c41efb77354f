package mediator

import (
	"context"
	"log"
	"sync"
)

// Hub tracks every live Session so that other parts of the process — a
// worker callback, an admin endpoint, or the session's own cleanup path —
// can look one up or ask it to stop without reaching into mediator
// internals. All map mutation happens inside Run's single goroutine.
type Hub struct {
	sessions map[string]*registeredSession

	mu sync.RWMutex

	register   chan *registeredSession
	unregister chan string
}

type registeredSession struct {
	session *Session
	cancel  context.CancelFunc
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		sessions:   make(map[string]*registeredSession),
		register:   make(chan *registeredSession),
		unregister: make(chan string),
	}
}

// Run is the Hub's event loop; it should be started once as a goroutine
// and lives for the process lifetime.
func (h *Hub) Run(ctx context.Context) {
	log.Println("[mediator] hub running")
	for {
		select {
		case <-ctx.Done():
			return
		case rs := <-h.register:
			h.mu.Lock()
			h.sessions[rs.session.ID] = rs
			h.mu.Unlock()
			log.Printf("[mediator] session %s registered (owner=%d)", rs.session.ID, rs.session.OwnerID)
		case id := <-h.unregister:
			h.mu.Lock()
			delete(h.sessions, id)
			h.mu.Unlock()
			log.Printf("[mediator] session %s unregistered", id)
		}
	}
}

// Serve registers session, runs it to completion, and unregisters it
// afterward. It blocks until the session ends; ws.go calls it directly on
// the request goroutine.
func (h *Hub) Serve(ctx context.Context, session *Session) {
	sessionCtx, cancel := context.WithCancel(ctx)
	h.register <- &registeredSession{session: session, cancel: cancel}
	defer func() { h.unregister <- session.ID }()

	session.Run(sessionCtx)
}

// Cancel stops the named session's event loop if it is currently
// registered, used by an admin-triggered disconnect or a graceful shutdown
// that wants every live conversation to end and persist cleanly.
func (h *Hub) Cancel(sessionID string) bool {
	h.mu.RLock()
	rs, ok := h.sessions[sessionID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	rs.cancel()
	return true
}

// Active reports the number of currently registered sessions.
func (h *Hub) Active() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}
