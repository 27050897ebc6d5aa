package rbac

import (
	"fmt"
	"sort"
)

// minimumRole is the single source of truth for permission inheritance:
// a role holds a permission when its rank is at or above the rank of the
// permission's minimum role.
var minimumRole = map[string]Role{
	PermContentRead:  RoleMember,
	PermContentWrite: RoleGroupLeader,

	PermChatRead:     RoleMember,
	PermChatWrite:    RoleMember,
	PermChatModerate: RoleGroupLeader,

	PermEventView:   RoleMember,
	PermEventCreate: RoleGroupLeader,
	PermEventManage: RoleAdmin,

	PermInviteSend:   RoleGroupLeader,
	PermInviteManage: RoleAdmin,

	PermProfileEdit: RoleMember,

	PermUserManage: RoleAdmin,
	PermUserImport: RoleSuperAdmin,

	PermAnalyticsView: RoleAdmin,
}

// extraGrants lists permissions a role holds outside the inheritance
// chain. The assistant role reads and writes chat without inheriting the
// group-leader tier it would otherwise need for moderation-adjacent work.
var extraGrants = map[Role][]string{
	RoleAIAssistant: {PermChatModerate, PermAnalyticsView},
}

// PermissionsForRole returns the full derived permission set for a role:
// every permission whose minimum role ranks at or below the role, plus the
// role's extra grants.
func PermissionsForRole(role Role) (map[string]struct{}, error) {
	rank, err := Rank(role)
	if err != nil {
		return nil, err
	}

	perms := make(map[string]struct{}, len(minimumRole))

	for perm, min := range minimumRole {
		minRank, err := Rank(min)
		if err != nil {
			// A permission mapped to an unknown role is a broken table.
			return nil, fmt.Errorf("permission %q: %w", perm, err)
		}

		if rank >= minRank {
			perms[perm] = struct{}{}
		}
	}

	for _, perm := range extraGrants[role] {
		perms[perm] = struct{}{}
	}

	return perms, nil
}

// PermissionList returns PermissionsForRole as a sorted slice, suitable
// for denormalizing onto an account record.
func PermissionList(role Role) ([]string, error) {
	set, err := PermissionsForRole(role)
	if err != nil {
		return nil, err
	}

	list := make([]string, 0, len(set))
	for perm := range set {
		list = append(list, perm)
	}

	sort.Strings(list)

	return list, nil
}

// MustPermissionList is PermissionList for roles known to be valid. It
// panics on an unknown role.
func MustPermissionList(role Role) []string {
	list, err := PermissionList(role)
	if err != nil {
		panic(err)
	}

	return list
}

// RoleHolds reports whether the role holds the permission under the model.
// Unknown permissions are an error so misspelled tags fail loudly.
func RoleHolds(role Role, permission string) (bool, error) {
	min, ok := minimumRole[permission]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownPermission, permission)
	}

	rank, err := Rank(role)
	if err != nil {
		return false, err
	}

	minRank, err := Rank(min)
	if err != nil {
		return false, err
	}

	if rank >= minRank {
		return true, nil
	}

	for _, perm := range extraGrants[role] {
		if perm == permission {
			return true, nil
		}
	}

	return false, nil
}
