package handlers

import (
	"net/http"

	"avatarbackend/internal/avatarcache"
	"avatarbackend/internal/database"
	"avatarbackend/internal/models"

	"github.com/go-chi/chi/v5"
)

// AvatarHandler exposes read-only access to avatars. Avatar creation,
// editing, and deletion live behind a separate management surface; the
// core only ever needs to look an avatar up to drive a generation job or
// a live session.
type AvatarHandler struct {
	db      *database.DB
	avatars *avatarcache.Cache
}

// NewAvatarHandler constructs an AvatarHandler.
func NewAvatarHandler(db *database.DB, avatars *avatarcache.Cache) *AvatarHandler {
	return &AvatarHandler{db: db, avatars: avatars}
}

// RegisterRoutes mounts the avatar read endpoints under r.
func (h *AvatarHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/avatars", h.List)
	r.Get("/api/avatars/{avatarId}", h.Get)
}

// List returns every avatar the caller owns or that is marked public.
func (h *AvatarHandler) List(w http.ResponseWriter, r *http.Request) {
	user := r.Context().Value(UserContextKey).(*models.User)

	avatars, err := h.db.ListAvatarsForUser(user.ID)
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "failed to list avatars")
		return
	}

	RespondWithJSON(w, http.StatusOK, avatars)
}

// Get returns a single avatar by ID.
func (h *AvatarHandler) Get(w http.ResponseWriter, r *http.Request) {
	avatarID := chi.URLParam(r, "avatarId")

	avatar, err := h.avatars.Get(avatarID)
	if err != nil {
		RespondWithError(w, http.StatusNotFound, "avatar not found")
		return
	}

	RespondWithJSON(w, http.StatusOK, avatar)
}
