package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/paystream/wallet-platform/internal/gateway/app"
	"github.com/paystream/wallet-platform/internal/gateway/domain"
	"github.com/paystream/wallet-platform/internal/gateway/store"
	"golang.org/x/crypto/bcrypt"
)

type singleUserRepo struct {
	user *domain.GatewayUser
}

func (s *singleUserRepo) CreateUser(ctx context.Context, user *domain.GatewayUser) error {
	return nil
}

func (s *singleUserRepo) FindByUsername(ctx context.Context, username string) (*domain.GatewayUser, error) {
	if s.user != nil && s.user.Username == username {
		return s.user, nil
	}
	return nil, store.ErrUserNotFound
}

func (s *singleUserRepo) Ping(ctx context.Context) error { return nil }

func newAuthedService(t *testing.T) (*app.Service, string, *domain.GatewayUser) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	user := &domain.GatewayUser{
		ID:           uuid.New(),
		Username:     "ada",
		PasswordHash: string(hash),
		AccountID:    uuid.New(),
		Role:         "user",
	}
	svc := app.NewService(&singleUserRepo{user: user}, "test-secret", nil, 0, time.Minute)
	response, _, err := svc.Login(context.Background(), domain.LoginRequest{Username: "ada", Password: "pw"}, "10.0.0.1")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	return svc, response.Token, user
}

func TestAuthMiddleware_StampsVerifiedIdentity(t *testing.T) {
	svc, token, user := newAuthedService(t)

	var forwardedUserID, forwardedRole string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		forwardedUserID = r.Header.Get("X-User-Id")
		forwardedRole = r.Header.Get("X-User-Role")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/payments/transactions", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	// A client trying to impersonate someone else.
	req.Header.Set("X-User-Id", uuid.NewString())
	req.Header.Set("X-User-Role", "admin")

	rec := httptest.NewRecorder()
	AuthMiddleware(svc)(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if forwardedUserID != user.AccountID.String() {
		t.Fatalf("downstream must see the verified identity, got %q", forwardedUserID)
	}
	if forwardedRole != "user" {
		t.Fatalf("downstream must see the verified role, got %q", forwardedRole)
	}
}

func TestAuthMiddleware_RejectsMissingToken(t *testing.T) {
	svc, _, _ := newAuthedService(t)

	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodGet, "/api/payments/transactions", nil)
	rec := httptest.NewRecorder()
	AuthMiddleware(svc)(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if called {
		t.Fatal("handler must not run without a token")
	}
}

func TestAuthMiddleware_RejectsGarbageToken(t *testing.T) {
	svc, _, _ := newAuthedService(t)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	req := httptest.NewRequest(http.MethodGet, "/api/payments/transactions", nil)
	req.Header.Set("Authorization", "Bearer not.a.token")
	rec := httptest.NewRecorder()
	AuthMiddleware(svc)(next).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRewritePath(t *testing.T) {
	cases := []struct {
		path, prefix, want string
	}{
		{"/api/payments/transactions/payment", "/api/payments", "/transactions/payment"},
		{"/api/ledger/accounts/abc/balance", "/api/ledger", "/accounts/abc/balance"},
		{"/api/ledger", "/api/ledger", "/"},
	}
	for _, c := range cases {
		if got := rewritePath(c.path, c.prefix); got != c.want {
			t.Fatalf("rewritePath(%q, %q) = %q, want %q", c.path, c.prefix, got, c.want)
		}
	}
}
