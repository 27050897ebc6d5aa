// Package guard provides the Fiber middleware protecting API routes.
// Handlers behind it can assume a signed-in, sufficiently privileged
// account; every decision is delegated to the authorization gate, raw
// identity claims are never consulted.
package guard

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/guildhall-app/guildhall/internal/authz"
	"github.com/guildhall-app/guildhall/internal/rbac"
)

// RequireSession creates Fiber middleware that requires a signed-in account.
func RequireSession(sessions authz.SessionSource) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if sessions.Current() == nil {
			return c.Status(fiber.StatusUnauthorized).SendString("Unauthorized")
		}

		return c.Next()
	}
}

// RequirePermission creates Fiber middleware that requires a specific permission.
func RequirePermission(sessions authz.SessionSource, gate *authz.Gate, permission string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		acct := sessions.Current()
		if acct == nil {
			return c.Status(fiber.StatusUnauthorized).SendString("Unauthorized")
		}

		if !gate.HasPermissionFor(acct, permission) {
			log.Warn().Str("uid", acct.ID).Str("permission", permission).
				Msg("account lacks required permission")

			return c.Status(fiber.StatusForbidden).
				SendString("Forbidden: You don't have permission to access this resource")
		}

		return c.Next()
	}
}

// RequireAtLeastRole creates Fiber middleware that requires the account's
// role to rank at or above the given role.
func RequireAtLeastRole(sessions authz.SessionSource, gate *authz.Gate, role rbac.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		acct := sessions.Current()
		if acct == nil {
			return c.Status(fiber.StatusUnauthorized).SendString("Unauthorized")
		}

		if !gate.HasAtLeastRoleFor(acct, role) {
			log.Warn().Str("uid", acct.ID).Str("role", string(role)).
				Msg("account lacks required role")

			return c.Status(fiber.StatusForbidden).
				SendString("Forbidden: You don't have permission to access this resource")
		}

		return c.Next()
	}
}
