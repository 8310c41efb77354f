package handlers

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"avatarbackend/internal/auth"
	"avatarbackend/internal/avatarcache"
	"avatarbackend/internal/clients"
	"avatarbackend/internal/config"
	"avatarbackend/internal/database"
	"avatarbackend/internal/mediator"
	"avatarbackend/internal/models"
	"avatarbackend/internal/usage"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WSHandler upgrades an authenticated HTTP request into a live conversation
// session: it looks up the avatar, dials voice-svc (and video-svc for
// "video" sessions), then hands the three connections to the mediator Hub.
type WSHandler struct {
	hub      *mediator.Hub
	db       *database.DB
	avatars  *avatarcache.Cache
	authSvc  *auth.AuthService
	llm      *clients.LLMClient
	voiceCli *clients.VoiceClient
	videoCli *clients.VideoClient
	usage    *usage.Accountant
	cfg      *config.AppConfig
	upgrader websocket.Upgrader
}

// NewWSHandler constructs a WSHandler and configures its upgrader's origin check.
func NewWSHandler(hub *mediator.Hub, db *database.DB, avatars *avatarcache.Cache, authSvc *auth.AuthService, llm *clients.LLMClient,
	voiceCli *clients.VoiceClient, videoCli *clients.VideoClient, acct *usage.Accountant, cfg *config.AppConfig) *WSHandler {
	origins := strings.Split(cfg.CORSAllowedOrigins, ",")

	upgrader := websocket.Upgrader{
		ReadBufferSize:  2048,
		WriteBufferSize: 2048,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			originURL, err := url.Parse(origin)
			if err != nil {
				return false
			}
			for _, allowed := range origins {
				if strings.EqualFold(allowed, originURL.String()) || strings.EqualFold(allowed, originURL.Hostname()) {
					return true
				}
			}
			log.Printf("websocket connection from disallowed origin rejected: %s", origin)
			return false
		},
	}

	return &WSHandler{hub: hub, db: db, avatars: avatars, authSvc: authSvc, llm: llm, voiceCli: voiceCli, videoCli: videoCli, usage: acct, cfg: cfg, upgrader: upgrader}
}

// RegisterRoutes mounts the session endpoint under r.
func (h *WSHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/session/{avatarId}/{kind}", h.ServeSession)
}

// ServeSession upgrades the connection, dials the external services the
// requested session kind needs, and starts the session on the Hub. Because
// the Hub's Serve call blocks until the session ends, this handler's
// goroutine is the session's lifetime; chi serves each request on its own
// goroutine already, so nothing further needs to be spawned here.
func (h *WSHandler) ServeSession(w http.ResponseWriter, r *http.Request) {
	user, ok := r.Context().Value(UserContextKey).(*models.User)
	if !ok {
		RespondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	avatarID := chi.URLParam(r, "avatarId")
	kind := chi.URLParam(r, "kind")
	if kind != models.SessionKindVoice && kind != models.SessionKindVideo {
		RespondWithError(w, http.StatusBadRequest, "kind must be 'voice' or 'video'")
		return
	}

	avatar, err := h.avatars.Get(avatarID)
	if err != nil {
		RespondWithError(w, http.StatusNotFound, "avatar not found")
		return
	}

	ctx := r.Context()

	voiceConn, err := h.dialVoice(ctx, user, avatar)
	if err != nil {
		log.Printf("[ws] failed to dial voice-svc for user %d: %v", user.ID, err)
		RespondWithError(w, http.StatusBadGateway, "voice service unavailable")
		return
	}

	var videoConn *clients.VideoConn
	sessionID := uuid.NewString()
	if kind == models.SessionKindVideo {
		videoConn, err = h.videoCli.Dial(ctx, sessionID)
		if err != nil {
			log.Printf("[ws] failed to dial video-svc for user %d: %v", user.ID, err)
			voiceConn.Close()
			RespondWithError(w, http.StatusBadGateway, "video service unavailable")
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed for user %d: %v", user.ID, err)
		voiceConn.Close()
		if videoConn != nil {
			videoConn.Close()
		}
		return
	}

	record, err := h.db.CreateSession(&models.Session{
		ID:        sessionID,
		OwnerID:   user.ID,
		AvatarID:  avatar.ID,
		Kind:      kind,
		Language:  avatar.Language,
		StartedAt: time.Now().UTC(),
		Status:    models.SessionStatusConnecting,
	})
	if err != nil {
		log.Printf("[ws] failed to persist session record: %v", err)
		conn.Close()
		voiceConn.Close()
		if videoConn != nil {
			videoConn.Close()
		}
		return
	}

	session := mediator.NewSession(record.ID, user.ID, avatar, kind, h.db, h.authSvc, h.llm, h.voiceCli, h.videoCli, h.usage, conn, voiceConn, videoConn)
	log.Printf("[ws] session %s started for user %d (kind=%s, avatar=%s)", record.ID, user.ID, kind, avatar.ID)

	h.hub.Serve(context.Background(), session)
}

func (h *WSHandler) dialVoice(ctx context.Context, user *models.User, avatar *models.Avatar) (*clients.VoiceConn, error) {
	token := h.authSvc.MintVoiceCloneToken()

	var voiceCloneURL string
	if avatar.VoiceSampleURL != nil {
		voiceCloneURL = *avatar.VoiceSampleURL
	}

	init := models.VoiceInitMessage{
		Type:          "init",
		UserID:        strconv.Itoa(user.ID),
		AvatarID:      avatar.ID,
		VoiceCloneURL: voiceCloneURL,
		Language:      avatar.Language,
	}
	return h.voiceCli.Dial(ctx, token, init)
}
