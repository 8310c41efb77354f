package handlers

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"avatarbackend/internal/apikey"
	"avatarbackend/internal/auth"
	"avatarbackend/internal/database"
	"avatarbackend/internal/models"

	"github.com/go-chi/chi/v5"
)

// apiKeyGenerateLimit and apiKeyStatusLimit, per apiKeyRateWindow, bound how often a single key may hit
// an endpoint bucket; generation is the expensive path so it gets the
// tighter budget.
const (
	apiKeyGenerateLimit  = 20
	apiKeyStatusLimit    = 120
	apiKeyRateWindow     = time.Minute
	apiKeySecretBytes    = 24
	apiKeyDisplayPrefixN = 8
)

// IssueAPIKeyRequest is the body of POST /api/api-keys.
type IssueAPIKeyRequest struct {
	Resources []string `json:"resources"`
}

// IssueAPIKeyResponse carries the plaintext secret exactly once, at
// creation time; it is never retrievable again since only its bcrypt hash
// is persisted.
type IssueAPIKeyResponse struct {
	ID     string `json:"id"`
	Secret string `json:"secret"`
}

// APIKeyHandler issues API keys for the calling user and authenticates
// API-key-bearing requests as an alternative to the JWT AuthMiddleware, for
// server-to-server callers that cannot hold a short-lived user session.
type APIKeyHandler struct {
	db     *database.DB
	ledger *apikey.Ledger
}

// NewAPIKeyHandler constructs an APIKeyHandler.
func NewAPIKeyHandler(db *database.DB, ledger *apikey.Ledger) *APIKeyHandler {
	return &APIKeyHandler{db: db, ledger: ledger}
}

// RegisterRoutes mounts the key-issuance endpoint. r is expected to already
// be behind the JWT AuthMiddleware: only an authenticated end user may mint
// a key for themselves.
func (h *APIKeyHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/api-keys", h.Issue)
}

// Issue mints a new API key for the caller and returns its plaintext secret.
func (h *APIKeyHandler) Issue(w http.ResponseWriter, r *http.Request) {
	user := r.Context().Value(UserContextKey).(*models.User)

	var req IssueAPIKeyRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			RespondWithError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	secretBytes := make([]byte, apiKeySecretBytes)
	if _, err := rand.Read(secretBytes); err != nil {
		log.Printf("[apikey] failed to generate secret: %v", err)
		RespondWithError(w, http.StatusInternalServerError, "failed to issue api key")
		return
	}
	secret := hex.EncodeToString(secretBytes)
	displayPrefix := secret[:apiKeyDisplayPrefixN]

	hash, err := auth.HashPassword(secret)
	if err != nil {
		log.Printf("[apikey] failed to hash secret: %v", err)
		RespondWithError(w, http.StatusInternalServerError, "failed to issue api key")
		return
	}

	created, err := h.db.CreateAPIKey(user.ID, hash, displayPrefix, req.Resources, nil)
	if err != nil {
		log.Printf("[apikey] failed to create key for user %d: %v", user.ID, err)
		RespondWithError(w, http.StatusInternalServerError, "failed to issue api key")
		return
	}

	RespondWithJSON(w, http.StatusCreated, IssueAPIKeyResponse{ID: created.ID, Secret: displayPrefix + "." + secret})
}

// CombinedAuthMiddleware picks JWT or API-key authentication per request
// based on the Authorization header's scheme, so the generation endpoints
// can serve both interactive end users and server-to-server callers behind
// one route.
func CombinedAuthMiddleware(jwtMiddleware func(http.Handler) http.Handler, apiKeys *APIKeyHandler, bucket string) func(http.Handler) http.Handler {
	apiKeyMiddleware := apiKeys.Middleware(bucket)
	return func(next http.Handler) http.Handler {
		jwtNext := jwtMiddleware(next)
		apiKeyNext := apiKeyMiddleware(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.Header.Get("Authorization"), "ApiKey ") {
				apiKeyNext.ServeHTTP(w, r)
				return
			}
			jwtNext.ServeHTTP(w, r)
		})
	}
}

// Middleware authenticates a request bearing an "Authorization: ApiKey
// <prefix>.<secret>" header, rate-limits it per (key id, endpoint bucket),
// and injects the owning user into the context exactly like AuthMiddleware
// does for JWTs, so downstream handlers don't need to know which scheme
// authenticated the caller.
func (h *APIKeyHandler) Middleware(bucket string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimPrefix(r.Header.Get("Authorization"), "ApiKey ")
			parts := strings.SplitN(raw, ".", 2)
			if len(parts) != 2 {
				RespondWithError(w, http.StatusUnauthorized, "malformed api key")
				return
			}
			prefix, secret := parts[0], parts[1]

			candidates, err := h.db.GetAPIKeysByPrefix(prefix)
			if err != nil || len(candidates) == 0 {
				RespondWithError(w, http.StatusUnauthorized, "invalid api key")
				return
			}

			var matched *models.ApiKey
			for i := range candidates {
				if auth.CheckPasswordHash(secret, &candidates[i].SecretHash) {
					matched = &candidates[i]
					break
				}
			}
			if matched == nil {
				RespondWithError(w, http.StatusUnauthorized, "invalid api key")
				return
			}
			if matched.ExpiresAt != nil && matched.ExpiresAt.Before(time.Now()) {
				RespondWithError(w, http.StatusUnauthorized, "api key expired")
				return
			}

			limit := apiKeyStatusLimit
			if bucket == "generate" {
				limit = apiKeyGenerateLimit
			}
			if !h.ledger.Allow(matched.ID, bucket, limit, apiKeyRateWindow) {
				RespondWithError(w, http.StatusTooManyRequests, "api key rate limit exceeded")
				return
			}

			user, err := h.db.GetUserByID(matched.OwnerID)
			if err != nil {
				log.Printf("[apikey] key %s references missing owner %d: %v", matched.ID, matched.OwnerID, err)
				RespondWithError(w, http.StatusUnauthorized, "invalid api key")
				return
			}

			_ = h.db.TouchAPIKey(matched.ID)

			ctx := context.WithValue(r.Context(), UserContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
