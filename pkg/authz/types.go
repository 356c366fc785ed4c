// Package authz provides the caller session and the authorization checks the
// report format manager consults: capability checks, per-resource access and
// the super-user test.
package authz

import "context"

// Actions checked through Authorizer.May and HasAccess.
const (
	ActionGetReportFormats   = "get_report_formats"
	ActionCreateReportFormat = "create_report_format"
	ActionModifyReportFormat = "modify_report_format"
	ActionDeleteReportFormat = "delete_report_format"
	ActionVerifyReportFormat = "verify_report_format"
	ActionRestore            = "restore"
	ActionEmptyTrash         = "empty_trashcan"
)

// ResourceReportFormat is the resource type of report formats.
const ResourceReportFormat = "report_format"

// Built-in role names and the fixed UUIDs feed grants are issued to.
const (
	RoleAdmin    = "Admin"
	RoleUser     = "User"
	RoleObserver = "Observer"
	RoleGuest    = "Guest"

	RoleAdminUUID    = "7a8cb5b4-b74d-11e2-8187-406186ea4fc5"
	RoleUserUUID     = "8d453140-b74d-11e2-b0be-406186ea4fc5"
	RoleObserverUUID = "87a7ebce-b74d-11e2-a81f-406186ea4fc5"
	RoleGuestUUID    = "cc9cac5e-39a3-11e4-abae-406186ea4fc5"
)

var roleUUIDs = map[string]string{
	RoleAdmin:    RoleAdminUUID,
	RoleUser:     RoleUserUUID,
	RoleObserver: RoleObserverUUID,
	RoleGuest:    RoleGuestUUID,
}

// BuiltinRoleUUIDs lists the roles that receive read access to predefined formats.
func BuiltinRoleUUIDs() []string {
	return []string{RoleAdminUUID, RoleGuestUUID, RoleObserverUUID, RoleUserUUID}
}

// RoleUUID returns the UUID of a built-in role name, or the name itself.
func RoleUUID(name string) string {
	if id, ok := roleUUIDs[name]; ok {
		return id
	}
	return name
}

// GrantChecker answers whether any of subjects holds a grant of action on a
// resource.
type GrantChecker interface {
	HasGrant(ctx context.Context, resourceType, resourceUUID string, subjects []string, action string) (bool, error)
}

// Authorizer decides what a session may do.
type Authorizer interface {
	// May reports whether s may perform action at all.
	May(ctx context.Context, s *Session, action string) bool
	// HasAccess reports whether s may perform action on a resource it does not own.
	HasAccess(ctx context.Context, s *Session, resourceType, resourceUUID, action string) (bool, error)
	// CanEverything reports whether s bypasses all resource checks.
	CanEverything(ctx context.Context, s *Session) bool
}
