// Package authz answers "may this account do that" for the rest of the
// portal. The gate is the only component allowed to interpret roles and
// permission lists; consumers never look at raw identity claims or the
// permission model directly.
package authz

import (
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/guildhall-app/guildhall/internal/db/models"
	"github.com/guildhall-app/guildhall/internal/rbac"
	"github.com/guildhall-app/guildhall/internal/store"
)

// SessionSource answers who is signed in right now. Satisfied by the
// session listener hub.
type SessionSource interface {
	Current() *models.Account
}

// Gate evaluates authorization questions against the current session or
// an explicit account.
type Gate struct {
	session   SessionSource
	store     store.AccountStore
	validator *validator.Validate
}

// NewGate creates a gate over the session source and account store.
func NewGate(session SessionSource, st store.AccountStore) (*Gate, error) {
	if session == nil {
		return nil, ErrHubNil
	}

	if st == nil {
		return nil, ErrStoreNil
	}

	return &Gate{
		session:   session,
		store:     st,
		validator: validator.New(),
	}, nil
}

// HasPermissionFor reports whether the account holds the permission.
// Order matters: the top role bypasses everything, then the account's
// explicit permission list, then the role-derived model. An unknown
// permission tag answers false and is logged, a misspelled check must
// never accidentally grant.
func (g *Gate) HasPermissionFor(acct *models.Account, permission string) bool {
	if acct == nil || !acct.Usable() {
		return false
	}

	if acct.Role == rbac.TopRole {
		return true
	}

	if acct.HasExplicitPermission(permission) {
		return true
	}

	holds, err := rbac.RoleHolds(acct.Role, permission)
	if err != nil {
		log.Warn().Err(err).Str("permission", permission).Str("role", string(acct.Role)).
			Msg("permission check against unknown tag")

		return false
	}

	return holds
}

// HasPermission reports whether the signed-in account holds the
// permission. False whenever no account is signed in.
func (g *Gate) HasPermission(permission string) bool {
	return g.HasPermissionFor(g.session.Current(), permission)
}

// HasAtLeastRoleFor reports whether the account's role ranks at or above
// the given role.
func (g *Gate) HasAtLeastRoleFor(acct *models.Account, role rbac.Role) bool {
	if acct == nil || !acct.Usable() {
		return false
	}

	cmp, err := rbac.CompareRoles(acct.Role, role)
	if err != nil {
		log.Warn().Err(err).Str("role", string(role)).Msg("role check against unknown role")

		return false
	}

	return cmp >= 0
}

// HasAtLeastRole reports whether the signed-in account's role ranks at
// or above the given role.
func (g *Gate) HasAtLeastRole(role rbac.Role) bool {
	return g.HasAtLeastRoleFor(g.session.Current(), role)
}

// HasAnyPermission reports whether the signed-in account holds at least
// one of the permissions.
func (g *Gate) HasAnyPermission(permissions ...string) bool {
	for _, permission := range permissions {
		if g.HasPermission(permission) {
			return true
		}
	}

	return false
}

// HasAllPermissions reports whether the signed-in account holds every
// one of the permissions.
func (g *Gate) HasAllPermissions(permissions ...string) bool {
	if len(permissions) == 0 {
		return false
	}

	for _, permission := range permissions {
		if !g.HasPermission(permission) {
			return false
		}
	}

	return true
}

// CanManageUsers reports whether the account may administer other accounts.
func (g *Gate) CanManageUsers(acct *models.Account) bool {
	return g.HasPermissionFor(acct, rbac.PermUserManage)
}
