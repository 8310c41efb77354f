package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"avatarbackend/internal/database"

	"github.com/go-chi/chi/v5"
)

// MaintenanceHandler exposes operator endpoints for toggling maintenance mode.
type MaintenanceHandler struct {
	db *database.DB
}

// NewMaintenanceHandler creates a new MaintenanceHandler.
func NewMaintenanceHandler(db *database.DB) *MaintenanceHandler {
	return &MaintenanceHandler{db: db}
}

// RegisterRoutes registers the maintenance status/enable/disable endpoints.
func (h *MaintenanceHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/maintenance/status", h.GetStatus)
	r.Post("/api/maintenance/enable", h.Enable)
	r.Post("/api/maintenance/disable", h.Disable)
}

// GetStatus reports whether maintenance mode is currently active.
func (h *MaintenanceHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.db.GetMaintenanceMode()
	if err != nil {
		log.Printf("[maintenance] failed to read status: %v", err)
		RespondWithError(w, http.StatusInternalServerError, "Failed to read maintenance status")
		return
	}
	RespondWithJSON(w, http.StatusOK, status)
}

type enableMaintenanceRequest struct {
	Message string `json:"message"`
}

// Enable turns on maintenance mode and returns a fresh bypass token.
// Requires a caller with the admin role (enforced by the router's
// admin-only middleware group); the bypass token is the only way an
// operator can keep exercising the API while it is active.
func (h *MaintenanceHandler) Enable(w http.ResponseWriter, r *http.Request) {
	var req enableMaintenanceRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	bypassToken, err := h.db.EnableMaintenanceMode(req.Message)
	if err != nil {
		log.Printf("[maintenance] failed to enable: %v", err)
		RespondWithError(w, http.StatusInternalServerError, "Failed to enable maintenance mode")
		return
	}
	log.Printf("[maintenance] enabled: %q", req.Message)
	RespondWithJSON(w, http.StatusOK, map[string]string{"bypass_token": bypassToken})
}

// Disable turns off maintenance mode.
func (h *MaintenanceHandler) Disable(w http.ResponseWriter, r *http.Request) {
	if err := h.db.DisableMaintenanceMode(); err != nil {
		log.Printf("[maintenance] failed to disable: %v", err)
		RespondWithError(w, http.StatusInternalServerError, "Failed to disable maintenance mode")
		return
	}
	log.Println("[maintenance] disabled")
	RespondWithJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
}
