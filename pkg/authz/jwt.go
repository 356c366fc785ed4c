package authz

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// JWTConfig configures bearer-token sessions.
type JWTConfig struct {
	// RoleClaim is the claim path holding role names, dot-notation allowed
	// (e.g. "realm_access.roles"). Default: "roles".
	RoleClaim string
	// NameClaim holds the display name. Default: "preferred_username".
	NameClaim string
	// PublicKeyPath is a PEM RSA public key for RS256 verification. Empty
	// means tokens are parsed without verification (trusted proxy mode).
	PublicKeyPath string
	Issuer        string
	Audience      string
	Logger        *slog.Logger
}

// JWTMiddleware builds a Session from "Authorization: Bearer <token>". The
// subject claim is the user UUID. Requests with a missing or invalid token
// pass through without a session.
func JWTMiddleware(cfg JWTConfig) (func(http.Handler) http.Handler, error) {
	if cfg.RoleClaim == "" {
		cfg.RoleClaim = "roles"
	}
	if cfg.NameClaim == "" {
		cfg.NameClaim = "preferred_username"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	publicKey, err := loadRSAPublicKey(cfg.PublicKeyPath)
	if err != nil {
		return nil, err
	}
	if publicKey == nil {
		cfg.Logger.Warn("JWT sessions: no public key configured, tokens parsed without verification (trusted proxy mode)")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			claims, err := parseJWTClaims(token, publicKey, cfg)
			if err != nil {
				cfg.Logger.Debug("JWT parse failed", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			s := sessionFromClaims(claims, cfg)
			if s == nil {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
		})
	}, nil
}

func loadRSAPublicKey(path string) (*rsa.PublicKey, error) {
	if path == "" {
		return nil, nil
	}
	keyData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read JWT public key from %s: %w", path, err)
	}
	block, _ := pem.Decode(keyData)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block from %s", path)
	}
	parsedKey, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	rsaKey, ok := parsedKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is not RSA (got %T)", parsedKey)
	}
	return rsaKey, nil
}

// extractBearerToken extracts the token from "Authorization: Bearer <token>".
func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func parseJWTClaims(tokenString string, publicKey *rsa.PublicKey, cfg JWTConfig) (jwt.MapClaims, error) {
	var parserOpts []jwt.ParserOption
	if cfg.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(cfg.Audience))
	}

	var token *jwt.Token
	var err error
	if publicKey != nil {
		token, err = jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return publicKey, nil
		}, parserOpts...)
	} else {
		token, _, err = jwt.NewParser(parserOpts...).ParseUnverified(tokenString, jwt.MapClaims{})
	}
	if err != nil {
		return nil, fmt.Errorf("JWT parse error: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("unexpected claims type")
	}
	return claims, nil
}

func sessionFromClaims(claims jwt.MapClaims, cfg JWTConfig) *Session {
	sub, _ := claims.GetSubject()
	if sub == "" {
		return nil
	}
	s := &Session{UserUUID: sub, Name: sub}
	if name, ok := lookupClaim(claims, cfg.NameClaim).(string); ok && name != "" {
		s.Name = name
	}

	switch v := lookupClaim(claims, cfg.RoleClaim).(type) {
	case string:
		s.Roles = splitRoles(v)
	case []interface{}:
		for _, item := range v {
			if role, ok := item.(string); ok && role != "" {
				s.Roles = append(s.Roles, role)
			}
		}
	}
	if len(s.Roles) == 0 {
		s.Roles = []string{RoleUser}
	}
	return s
}

// lookupClaim resolves a dot-notation claim path.
func lookupClaim(claims jwt.MapClaims, path string) interface{} {
	var current interface{} = map[string]interface{}(claims)
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current, ok = m[part]
		if !ok {
			return nil
		}
	}
	return current
}
