package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func protected(t *testing.T, secret []byte) http.Handler {
	t.Helper()
	policy := NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	mw := NewMiddleware(secret, policy)
	return mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Subject", SubjectFromContext(r.Context()))
		w.Header().Set("X-Session", SessionFromContext(r.Context()))
		w.WriteHeader(http.StatusOK)
	}))
}

func TestAuthMiddleware_NoToken(t *testing.T) {
	handler := protected(t, []byte("test-secret"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/selection", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestAuthMiddleware_ExemptPaths(t *testing.T) {
	handler := protected(t, []byte("test-secret"))

	for _, path := range []string{"/healthz", "/metrics"} {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, resp.Code)
		}
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	secret := []byte("test-secret")
	token, err := SignJWT(secret, "900101015555", "sess-1", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	handler := protected(t, secret)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if resp.Header().Get("X-Subject") != "900101015555" || resp.Header().Get("X-Session") != "sess-1" {
		t.Fatalf("identity not propagated: %v", resp.Header())
	}
}

func TestAuthMiddleware_RejectsForeignAndExpiredTokens(t *testing.T) {
	secret := []byte("test-secret")
	handler := protected(t, secret)

	foreign, err := SignJWT([]byte("other-secret"), "user-1", "", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	expiredToken, err := expired.SignedString(secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	anonymous, err := SignJWT(secret, "", "", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	for name, token := range map[string]string{"foreign": foreign, "expired": expiredToken, "no subject": anonymous} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/selection", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("%s token: expected 401, got %d", name, resp.Code)
		}
	}
}

func TestAuthMiddleware_DisabledWithoutSecret(t *testing.T) {
	handler := protected(t, nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/selection", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected passthrough, got %d", resp.Code)
	}
}
