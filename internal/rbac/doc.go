// Package rbac implements the static role and permission model for Guildhall.
//
// The model is pure and stateless: a closed, totally ordered set of roles
// and a table of permissions. A permission is granted to a role either
// through the permission's configured minimum role (every role ranked at or
// above the minimum holds it) or through a small set of role-specific extra
// grants. There is deliberately no second explicit per-role permission
// table; PermissionsForRole derives the full set by computation so the two
// views cannot drift apart.
//
// Role comparison is by integer rank, not declaration order. Ranks are
// spaced so roles can be inserted later without renumbering call sites.
//
// Example usage:
//
//	perms, err := rbac.PermissionsForRole(rbac.RoleGroupLeader)
//
//	if rbac.MustRank(acct.Role) >= rbac.MustRank(rbac.RoleAdmin) { ... }
package rbac
