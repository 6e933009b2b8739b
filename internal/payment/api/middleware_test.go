package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestIdentityHeaderMiddleware(t *testing.T) {
	var gotID uuid.UUID
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, _ = GetAuthedUserID(r.Context())
	})

	userID := uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/transactions/payment", nil)
	req.Header.Set("X-User-Id", userID.String())
	rec := httptest.NewRecorder()
	IdentityHeaderMiddleware(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotID != userID {
		t.Fatalf("expected context identity %s, got %s", userID, gotID)
	}
}

func TestIdentityHeaderMiddleware_RejectsMissingHeader(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodPost, "/transactions/payment", nil)
	rec := httptest.NewRecorder()
	IdentityHeaderMiddleware(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if called {
		t.Fatal("handler must not run without an identity header")
	}
}

func TestIdentityHeaderMiddleware_RejectsGarbageHeader(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodPost, "/transactions/payment", nil)
	req.Header.Set("X-User-Id", "not-a-uuid")
	rec := httptest.NewRecorder()
	IdentityHeaderMiddleware(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestInternalAPIKeyMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	handler := InternalAPIKeyMiddleware("secret-key")(next)

	req := httptest.NewRequest(http.MethodGet, "/transactions", nil)
	req.Header.Set("X-Internal-Api-Key", "wrong")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for wrong key, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/transactions", nil)
	req.Header.Set("X-Internal-Api-Key", "secret-key")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for correct key, got %d", rec.Code)
	}
}
