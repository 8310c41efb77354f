// Package middleware provides HTTP middleware handlers.
package middleware

import (
	"log"
	"net/http"
	"strings"

	"avatarbackend/internal/database"
	"avatarbackend/internal/handlers"
)

// MaintenanceMiddleware checks if the application is in maintenance mode.
// If it is, it blocks most requests with a JSON 503, allowing only the
// status/maintenance endpoints and requests carrying a valid bypass token.
// This is an API-only control plane, so unlike an end-user-facing site
// there is no HTML maintenance page to render.
func MaintenanceMiddleware(db *database.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			status, err := db.GetMaintenanceMode()
			if err != nil {
				log.Printf("MaintenanceMiddleware: error checking maintenance status: %v. Allowing request to proceed.", err)
				next.ServeHTTP(w, r)
				return
			}

			if !status.IsEnabled {
				next.ServeHTTP(w, r)
				return
			}

			path := r.URL.Path
			if strings.HasPrefix(path, "/api/maintenance/") || strings.HasPrefix(path, "/maintenance/") || strings.HasPrefix(path, "/status") {
				next.ServeHTTP(w, r)
				return
			}

			token := r.Header.Get("X-Bypass-Token")
			if token == "" {
				q := r.URL.Query()
				token = q.Get("bypass_token")
				if token == "" {
					token = q.Get("token")
				}
			}

			if token != "" {
				isValid, err := db.ValidateBypassToken(token)
				if err == nil && isValid {
					next.ServeHTTP(w, r)
					return
				}
			}

			message := "Service is temporarily unavailable due to maintenance."
			if status.Message != nil && *status.Message != "" {
				message = *status.Message
			}
			handlers.RespondWithError(w, http.StatusServiceUnavailable, message)
		})
	}
}
