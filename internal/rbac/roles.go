package rbac

import "fmt"

// Role identifies a membership role in the portal's hierarchy.
type Role string

const (
	// RoleMember is the default role assigned to newly provisioned accounts.
	RoleMember Role = "member"
	// RoleGroupLeader leads a member group and can manage its content and events.
	RoleGroupLeader Role = "group-leader"
	// RoleAIAssistant is the service role used by the portal's chat assistant.
	RoleAIAssistant Role = "ai-assistant"
	// RoleAdmin administers users and content across all groups.
	RoleAdmin Role = "admin"
	// RoleSuperAdmin is the unrestricted owner role created at bootstrap.
	RoleSuperAdmin Role = "super-admin"
)

// DefaultRole is assigned to every account that is not the system's first.
const DefaultRole = RoleMember

// TopRole bypasses all permission checks.
const TopRole = RoleSuperAdmin

// roleRanks defines the total order over roles. Higher rank means more
// privilege. Values are spaced by ten so new roles can slot in between.
var roleRanks = map[Role]int{
	RoleMember:      10,
	RoleGroupLeader: 20,
	RoleAIAssistant: 30,
	RoleAdmin:       40,
	RoleSuperAdmin:  50,
}

// ValidRoles returns all roles in ascending rank order.
func ValidRoles() []Role {
	return []Role{RoleMember, RoleGroupLeader, RoleAIAssistant, RoleAdmin, RoleSuperAdmin}
}

// IsValidRole reports whether the role is part of the closed role set.
func IsValidRole(role Role) bool {
	_, ok := roleRanks[role]
	return ok
}

// Rank returns the role's position in the total order.
// An unknown role is a configuration error and never expected at runtime.
func Rank(role Role) (int, error) {
	rank, ok := roleRanks[role]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}

	return rank, nil
}

// MustRank is Rank for call sites that already validated the role.
// It panics on an unknown role, which indicates a broken role table.
func MustRank(role Role) int {
	rank, err := Rank(role)
	if err != nil {
		panic(err)
	}

	return rank
}

// CompareRoles returns -1, 0 or 1 as a ranks below, equal to or above b.
func CompareRoles(a, b Role) (int, error) {
	rankA, err := Rank(a)
	if err != nil {
		return 0, err
	}

	rankB, err := Rank(b)
	if err != nil {
		return 0, err
	}

	switch {
	case rankA < rankB:
		return -1, nil
	case rankA > rankB:
		return 1, nil
	default:
		return 0, nil
	}
}
