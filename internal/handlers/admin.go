package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"avatarbackend/internal/database"
	"avatarbackend/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// AdminHandler exposes account management for operators: changing a user's
// role and removing an account entirely. Every route here must sit behind
// RequireAdmin in addition to AuthMiddleware.
type AdminHandler struct {
	db       *database.DB
	validate *validator.Validate
}

// NewAdminHandler constructs an AdminHandler.
func NewAdminHandler(db *database.DB) *AdminHandler {
	return &AdminHandler{db: db, validate: validator.New()}
}

// RegisterRoutes mounts the admin endpoints under r.
func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Patch("/api/admin/users/{userId}/role", h.UpdateRole)
	r.Delete("/api/admin/users/{userId}", h.DeleteUser)
}

// RequireAdmin rejects any caller whose role isn't "admin". It must run
// after AuthMiddleware, which is what populates UserContextKey.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := r.Context().Value(UserContextKey).(*models.User)
		if !ok || user.Role != "admin" {
			RespondWithError(w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type updateRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=user admin"`
}

// UpdateRole changes the named user's role.
func (h *AdminHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	userID, err := parseIDFromURL(r, "userId")
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req updateRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		RespondWithError(w, http.StatusBadRequest, "role must be 'user' or 'admin'")
		return
	}

	if err := h.db.UpdateUserRole(int(userID), req.Role); err != nil {
		log.Printf("[admin] failed to update role for user %d: %v", userID, err)
		RespondWithError(w, http.StatusInternalServerError, "failed to update user role")
		return
	}

	RespondWithJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// DeleteUser permanently removes a user account and its owned data.
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID, err := parseIDFromURL(r, "userId")
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	if err := h.db.DeleteUser(int(userID)); err != nil {
		log.Printf("[admin] failed to delete user %d: %v", userID, err)
		RespondWithError(w, http.StatusInternalServerError, "failed to delete user")
		return
	}

	RespondWithJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
