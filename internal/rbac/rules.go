package rbac

// Simple default policy. Expand as needed.
var RolePermissions = map[string][]string{
	"student": {
		"quiz:take",
		"result:view-own",
		"user:change_password",
	},
	"admin": {
		"*", // everything
	},
}
