package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"avatarbackend/internal/apikey"
)

func TestAPIKeyMiddlewareRejectsMalformedHeader(t *testing.T) {
	h := NewAPIKeyHandler(nil, apikey.NewLedger())
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodPost, "/api/audio-generation/generate", nil)
	req.Header.Set("Authorization", "ApiKey not-a-prefix-dot-secret-pair")
	w := httptest.NewRecorder()

	h.Middleware("generate")(next).ServeHTTP(w, req)

	if called {
		t.Fatal("expected the handler chain to stop before reaching next")
	}
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a malformed key, got %d", w.Code)
	}
}

func TestCombinedAuthMiddlewareRoutesByScheme(t *testing.T) {
	apiKeyCalled := false
	jwtCalled := false

	jwt := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			jwtCalled = true
			w.WriteHeader(http.StatusOK)
		})
	}

	h := NewAPIKeyHandler(nil, apikey.NewLedger())
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { apiKeyCalled = true })

	mw := CombinedAuthMiddleware(jwt, h, "generate")

	req := httptest.NewRequest(http.MethodPost, "/api/audio-generation/generate", nil)
	req.Header.Set("Authorization", "ApiKey malformed-no-dot")
	w := httptest.NewRecorder()
	mw(next).ServeHTTP(w, req)

	if jwtCalled {
		t.Fatal("expected an ApiKey-scheme request not to go through the JWT path")
	}
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected the malformed api key to be rejected with 401, got %d", w.Code)
	}

	req2 := httptest.NewRequest(http.MethodPost, "/api/audio-generation/generate", nil)
	req2.Header.Set("Authorization", "Bearer some.jwt.token")
	w2 := httptest.NewRecorder()
	mw(next).ServeHTTP(w2, req2)

	if !jwtCalled {
		t.Fatal("expected a Bearer-scheme request to go through the JWT path")
	}
	_ = apiKeyCalled
}
