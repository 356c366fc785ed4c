package authz

import "context"

// NoopAuthorizer allows everything to any session. Used when RFMGR_AUTHZ_MODE=none.
type NoopAuthorizer struct{}

// May always returns true for a non-nil session.
func (n *NoopAuthorizer) May(_ context.Context, s *Session, _ string) bool {
	return s != nil
}

// HasAccess always returns true for a non-nil session.
func (n *NoopAuthorizer) HasAccess(_ context.Context, s *Session, _, _, _ string) (bool, error) {
	return s != nil, nil
}

// CanEverything always returns true for a non-nil session.
func (n *NoopAuthorizer) CanEverything(_ context.Context, s *Session) bool {
	return s != nil
}
