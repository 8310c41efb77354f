package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"avatarbackend/internal/models"

	"github.com/go-chi/chi/v5"
)

func TestRequireAdminRejectsNonAdmin(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodDelete, "/api/admin/users/5", nil)
	ctx := context.WithValue(req.Context(), UserContextKey, &models.User{ID: 1, Role: "user"})
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	RequireAdmin(next).ServeHTTP(w, req)

	if called {
		t.Fatal("expected RequireAdmin to stop a non-admin caller before next")
	}
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestRequireAdminAllowsAdmin(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodDelete, "/api/admin/users/5", nil)
	ctx := context.WithValue(req.Context(), UserContextKey, &models.User{ID: 1, Role: "admin"})
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	RequireAdmin(next).ServeHTTP(w, req)

	if !called {
		t.Fatal("expected RequireAdmin to let an admin caller through")
	}
}

func TestUpdateRoleRejectsInvalidRoleBeforeTouchingDB(t *testing.T) {
	h := NewAdminHandler(nil)

	req := httptest.NewRequest(http.MethodPatch, "/api/admin/users/5/role", strings.NewReader(`{"role":"superuser"}`))
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("userId", "5")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	w := httptest.NewRecorder()

	h.UpdateRole(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an invalid role, got %d", w.Code)
	}
}

func TestUpdateRoleRejectsMissingUserID(t *testing.T) {
	h := NewAdminHandler(nil)

	req := httptest.NewRequest(http.MethodPatch, "/api/admin/users/not-a-number/role", strings.NewReader(`{"role":"admin"}`))
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("userId", "not-a-number")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	w := httptest.NewRecorder()

	h.UpdateRole(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a non-numeric user id, got %d", w.Code)
	}
}
