// Package permissions maps user roles to the permission strings carried in
// access tokens.
package permissions

import (
	"slices"
)

const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

// DefaultRole is assigned to users on first login.
const DefaultRole = RoleStudent

var rolePermissions = map[string][]string{
	RoleStudent: {
		"user:data:read:self",
		"course:testList:enrolled",
		"course:test:read:enrolled",
		"course:user:add:self",
		"course:user:del:self",
		"attempt:create",
		"attempt:update:self",
		"attempt:complete:self",
		"attempt:read:self",
		"answer:read:self",
		"answer:update:self",
		"answer:del:self",
	},
	RoleTeacher: {
		"user:list:read",
		"user:data:read",
		"course:info:write:own",
		"course:testList:own",
		"course:test:read:own",
		"course:test:write:own",
		"course:test:add:own",
		"course:test:del:own",
		"course:userList:own",
		"course:user:add:own",
		"course:user:del:own",
		"course:del:own",
		"quest:list:read:own",
		"quest:read:own",
		"quest:update:own",
		"quest:del:own",
		"test:quest:del:own",
		"test:quest:add:own",
		"test:quest:update:own",
		"test:answer:read:own",
	},
	RoleAdmin: {
		"user:fullName:write",
		"user:roles:read",
		"user:roles:write",
		"user:block:read",
		"user:block:write",
		"course:add",
		"course:del:any",
		"quest:create",
		"quest:read:any",
		"quest:update:any",
		"quest:del:any",
	},
}

// BlockWrite guards the block/unblock operation.
const BlockWrite = "user:block:write"

// Resolve returns the sorted, de-duplicated union of the permissions of every
// known role. Unknown roles contribute nothing.
func Resolve(roles []string) []string {
	perms := make([]string, 0)
	for _, role := range roles {
		perms = append(perms, rolePermissions[role]...)
	}
	slices.Sort(perms)
	return slices.Compact(perms)
}

// Known reports whether role has a permission table.
func Known(role string) bool {
	_, ok := rolePermissions[role]
	return ok
}

// Roles lists the known roles, sorted.
func Roles() []string {
	roles := make([]string, 0, len(rolePermissions))
	for role := range rolePermissions {
		roles = append(roles, role)
	}
	slices.Sort(roles)
	return roles
}

func Has(perms []string, perm string) bool {
	return slices.Contains(perms, perm)
}
