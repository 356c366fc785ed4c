package authz

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func captureSession(t *testing.T, mw func(http.Handler) http.Handler, token string) (*Session, bool) {
	t.Helper()
	var got *Session
	var ok bool
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = SessionFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	h.ServeHTTP(httptest.NewRecorder(), req)
	return got, ok
}

func TestJWTMiddleware_TrustedProxyMode(t *testing.T) {
	mw, err := JWTMiddleware(JWTConfig{RoleClaim: "realm_access.roles"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":                "u-1",
		"preferred_username": "alice",
		"realm_access":       map[string]interface{}{"roles": []interface{}{"Observer", "Admin"}},
	}).SignedString([]byte("irrelevant"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	s, ok := captureSession(t, mw, token)
	if !ok {
		t.Fatal("expected a session")
	}
	if s.UserUUID != "u-1" || s.Name != "alice" {
		t.Errorf("session = %+v", s)
	}
	if !s.HasRole(RoleAdmin) || !s.HasRole(RoleObserver) {
		t.Errorf("roles = %v", s.Roles)
	}
}

func TestJWTMiddleware_NoTokenOrSubject(t *testing.T) {
	mw, err := JWTMiddleware(JWTConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := captureSession(t, mw, ""); ok {
		t.Error("expected no session without a token")
	}

	token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"roles": "Admin"}).SignedString([]byte("k"))
	if _, ok := captureSession(t, mw, token); ok {
		t.Error("expected no session without a subject")
	}
	if _, ok := captureSession(t, mw, "not-a-jwt"); ok {
		t.Error("expected no session for garbage")
	}
}

func TestJWTMiddleware_RS256(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	keyPath := filepath.Join(t.TempDir(), "jwt.pem")
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}

	mw, err := JWTMiddleware(JWTConfig{PublicKeyPath: keyPath, Issuer: "idp"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	good, _ := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{"sub": "u-1", "iss": "idp"}).SignedString(key)
	s, ok := captureSession(t, mw, good)
	if !ok {
		t.Fatal("expected a session for a valid token")
	}
	if len(s.Roles) != 1 || s.Roles[0] != RoleUser {
		t.Errorf("roles = %v, want default User", s.Roles)
	}

	wrongIssuer, _ := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{"sub": "u-1", "iss": "other"}).SignedString(key)
	if _, ok := captureSession(t, mw, wrongIssuer); ok {
		t.Error("expected no session for a wrong issuer")
	}

	hmac, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u-1", "iss": "idp"}).SignedString([]byte("k"))
	if _, ok := captureSession(t, mw, hmac); ok {
		t.Error("expected no session for an HMAC token")
	}
}

func TestJWTMiddleware_BadKeyPath(t *testing.T) {
	if _, err := JWTMiddleware(JWTConfig{PublicKeyPath: filepath.Join(t.TempDir(), "missing.pem")}); err == nil {
		t.Error("expected error for missing key file")
	}
}
