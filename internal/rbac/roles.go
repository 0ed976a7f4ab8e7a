package rbac

// Role names. Keep these stable; they are stored on tenant memberships.
const (
	RoleOwner      = "owner"
	RoleAdmin      = "admin"
	RoleMember     = "member"
	RoleViewer     = "viewer"
	RoleSuperAdmin = "super_admin" // platform staff, not a tenant membership role
)

// Permission is a route-declared capability.
type Permission string

const (
	PermAssistantRead      Permission = "assistant.read"
	PermAssistantWrite     Permission = "assistant.write"
	PermAssistantProvision Permission = "assistant.provision"
	PermCallsRead          Permission = "calls.read"
	PermCalendarManage     Permission = "calendar.manage"
)

var allPermissions = []Permission{
	PermAssistantRead,
	PermAssistantWrite,
	PermAssistantProvision,
	PermCallsRead,
	PermCalendarManage,
}

var rolePermissions = map[string][]Permission{
	RoleOwner:  allPermissions,
	RoleAdmin:  allPermissions,
	RoleMember: {PermAssistantRead, PermAssistantWrite, PermCallsRead},
	RoleViewer: {PermAssistantRead, PermCallsRead},
}

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }

// PermissionSet is the computed, server-side set for a role.
type PermissionSet map[Permission]struct{}

// PermissionsFor returns the permission set for role. Unknown roles get an empty set.
func PermissionsFor(role string) PermissionSet {
	if IsSuperAdmin(role) {
		role = RoleOwner
	}
	perms := rolePermissions[role]
	out := make(PermissionSet, len(perms))
	for _, p := range perms {
		out[p] = struct{}{}
	}
	return out
}

func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// HasAll reports whether every permission in required is present.
func (s PermissionSet) HasAll(required ...Permission) bool {
	for _, p := range required {
		if !s.Has(p) {
			return false
		}
	}
	return true
}

// List returns the set in a stable order.
func (s PermissionSet) List() []Permission {
	out := make([]Permission, 0, len(s))
	for _, p := range allPermissions {
		if s.Has(p) {
			out = append(out, p)
		}
	}
	return out
}
