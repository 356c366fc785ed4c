package authz

import (
	"os"
	"strings"
)

// AuthzMode selects the authorization backend.
type AuthzMode string

const (
	// AuthzModeNone disables authorization checks (dev only).
	AuthzModeNone AuthzMode = "none"
	// AuthzModeRoles uses built-in roles plus grants.
	AuthzModeRoles AuthzMode = "roles"
)

// Config controls how sessions are built and checked.
type Config struct {
	Mode AuthzMode `yaml:"mode"`
	// Admins are user UUIDs treated as Admin.
	Admins           []string `yaml:"admins"`
	JWTPublicKeyPath string   `yaml:"jwt_public_key_path"`
	JWTIssuer        string   `yaml:"jwt_issuer"`
	JWTAudience      string   `yaml:"jwt_audience"`
	// TrustedProxy accepts X-Remote-* identity headers.
	TrustedProxy bool `yaml:"trusted_proxy"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Mode:         AuthzModeRoles,
		TrustedProxy: true,
	}
}

// ApplyEnv overlays RFMGR_AUTHZ_MODE, RFMGR_AUTHZ_ADMINS (comma-separated),
// RFMGR_JWT_PUBLIC_KEY, RFMGR_JWT_ISSUER, RFMGR_JWT_AUDIENCE and
// RFMGR_AUTHZ_TRUSTED_PROXY.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("RFMGR_AUTHZ_MODE"); v != "" {
		c.Mode = AuthzMode(strings.ToLower(v))
	}
	if v := os.Getenv("RFMGR_AUTHZ_ADMINS"); v != "" {
		c.Admins = nil
		for _, a := range strings.Split(v, ",") {
			if a = strings.TrimSpace(a); a != "" {
				c.Admins = append(c.Admins, a)
			}
		}
	}
	if v := os.Getenv("RFMGR_JWT_PUBLIC_KEY"); v != "" {
		c.JWTPublicKeyPath = v
	}
	if v := os.Getenv("RFMGR_JWT_ISSUER"); v != "" {
		c.JWTIssuer = v
	}
	if v := os.Getenv("RFMGR_JWT_AUDIENCE"); v != "" {
		c.JWTAudience = v
	}
	if v := os.Getenv("RFMGR_AUTHZ_TRUSTED_PROXY"); v != "" {
		c.TrustedProxy = strings.EqualFold(v, "true") || v == "1"
	}
}

// NewAuthorizer builds the Authorizer selected by c.
func (c Config) NewAuthorizer(grants GrantChecker) Authorizer {
	if c.Mode == AuthzModeNone {
		return &NoopAuthorizer{}
	}
	return NewCachedAuthorizer(NewRoleAuthorizer(grants, c.Admins), DefaultCacheTTL)
}
