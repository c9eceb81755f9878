package rbac

import "fmt"

// 权限常量
const (
	PermissionReplayOutbox  = "outbox:replay"
	PermissionReadMembers   = "members:read"
	PermissionCreateProject = "project:create"
	PermissionSearch        = "search:read"
)

// 角色常量，与 users.role 一致
const (
	RoleAdmin   = "ADMIN"
	RoleManager = "MANAGER"
	RoleMember  = "MEMBER"
)

var rolePermissions = map[string][]string{
	RoleMember: {
		PermissionReadMembers,
		PermissionCreateProject,
		PermissionSearch,
	},
	RoleManager: {
		PermissionReadMembers,
		PermissionCreateProject,
		PermissionSearch,
	},
	RoleAdmin: {
		PermissionReadMembers,
		PermissionCreateProject,
		PermissionSearch,
		PermissionReplayOutbox,
	},
}

// HasPermission 检查角色是否有指定权限
func HasPermission(role string, permission string) bool {
	for _, p := range rolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}

// CheckPermission 检查角色是否有指定权限（返回错误而不是布尔值，便于处理）
func CheckPermission(userID, role, permission string) error {
	if !HasPermission(role, permission) {
		return &PermissionDeniedError{
			UserID:     userID,
			Role:       role,
			Permission: permission,
		}
	}
	return nil
}

// PermissionDeniedError 表示权限不足的错误
type PermissionDeniedError struct {
	UserID     string
	Role       string
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("insufficient permissions: role %q lacks %q", e.Role, e.Permission)
}
