package authz

import (
	"context"
	"strings"
)

// RoleAuthorizer grants capabilities by built-in role and resolves access to
// foreign resources through explicit grants.
//
//   - Admin and system sessions can do everything.
//   - User may perform every report format action.
//   - Observer and Guest may only read.
type RoleAuthorizer struct {
	grants GrantChecker
	admins map[string]bool
}

// NewRoleAuthorizer creates a RoleAuthorizer. adminUsers are user UUIDs that
// are treated as Admin regardless of their roles.
func NewRoleAuthorizer(grants GrantChecker, adminUsers []string) *RoleAuthorizer {
	admins := make(map[string]bool, len(adminUsers))
	for _, u := range adminUsers {
		admins[u] = true
	}
	return &RoleAuthorizer{grants: grants, admins: admins}
}

func (a *RoleAuthorizer) isAdmin(s *Session) bool {
	return s.System || s.HasRole(RoleAdmin) || a.admins[s.UserUUID]
}

// May implements Authorizer.
func (a *RoleAuthorizer) May(_ context.Context, s *Session, action string) bool {
	if s == nil {
		return false
	}
	if a.isAdmin(s) {
		return true
	}
	if strings.HasPrefix(action, "get_") {
		return s.HasRole(RoleUser) || s.HasRole(RoleObserver) || s.HasRole(RoleGuest)
	}
	return s.HasRole(RoleUser)
}

// HasAccess implements Authorizer.
func (a *RoleAuthorizer) HasAccess(ctx context.Context, s *Session, resourceType, resourceUUID, action string) (bool, error) {
	if s == nil {
		return false, nil
	}
	if a.isAdmin(s) {
		return true, nil
	}
	if a.grants == nil {
		return false, nil
	}
	return a.grants.HasGrant(ctx, resourceType, resourceUUID, s.Subjects(), action)
}

// CanEverything implements Authorizer.
func (a *RoleAuthorizer) CanEverything(_ context.Context, s *Session) bool {
	return s != nil && a.isAdmin(s)
}
