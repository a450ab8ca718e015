package auth

import "errors"

var ErrInsufficientPermissions = errors.New("insufficient permissions")

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleStaff   Role = "staff"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleStaff:
		return true
	}
	return false
}

// Permission represents a specific permission
type Permission string

const (
	PermissionViewInbox        Permission = "view_inbox"
	PermissionDecideApprovals  Permission = "decide_approvals"
	PermissionSendReplies      Permission = "send_replies"
	PermissionManageRules      Permission = "manage_rules"
	PermissionManageKB         Permission = "manage_kb"
	PermissionManageProperties Permission = "manage_properties"
	PermissionViewAudit        Permission = "view_audit"
)

// HasPermission checks if the reviewer has a specific permission
func (r *Reviewer) HasPermission(permission Permission) bool {
	if r == nil {
		return false
	}
	switch r.Role {
	case RoleAdmin:
		return true
	case RoleManager:
		return permission != ""
	case RoleStaff:
		switch permission {
		case PermissionViewInbox, PermissionDecideApprovals, PermissionSendReplies:
			return true
		}
	}
	return false
}
