package authz

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/guildhall-app/guildhall/internal/db/models"
	"github.com/guildhall-app/guildhall/internal/rbac"
)

// AccountPatch is the set of administrative changes BulkUpdate applies.
// Nil fields are left untouched. A role change always recomputes the
// target's denormalized permission list.
type AccountPatch struct {
	Role   *rbac.Role
	Status *models.ApprovalStatus
	Active *bool
	Group  *string
}

// ImportRow is one account of an administrative bulk import.
type ImportRow struct {
	ID          string `validate:"required"`
	Email       string `validate:"required,email"`
	DisplayName string
	Group       string
	Role        rbac.Role             `validate:"required"`
	Status      models.ApprovalStatus `validate:"omitempty,oneof=pending approved denied"`
}

// ManageableAccounts filters the accounts the current actor may
// administer. The owner manages everyone, admins everyone below the
// owner, group leaders the strictly lower-ranked members of their own
// group, and everyone else nobody.
func (g *Gate) ManageableAccounts(all []models.Account, actor *models.Account) []models.Account {
	if actor == nil || !actor.Usable() {
		return nil
	}

	switch actor.Role {
	case rbac.TopRole:
		return all
	case rbac.RoleAdmin:
		managed := make([]models.Account, 0, len(all))
		for _, acct := range all {
			if acct.Role != rbac.TopRole {
				managed = append(managed, acct)
			}
		}

		return managed
	case rbac.RoleGroupLeader:
		managed := make([]models.Account, 0, len(all))
		for _, acct := range all {
			if acct.Group != actor.Group {
				continue
			}

			cmp, err := rbac.CompareRoles(acct.Role, actor.Role)
			if err != nil || cmp >= 0 {
				continue
			}

			managed = append(managed, acct)
		}

		return managed
	default:
		return nil
	}
}

// BulkUpdate applies the patch to every listed account. The actor needs
// user management permission and every target must be manageable by the
// actor; both checks happen before any write.
func (g *Gate) BulkUpdate(ctx context.Context, ids []string, patch AccountPatch) error {
	actor := g.session.Current()

	if !g.CanManageUsers(actor) {
		return ErrInsufficientPermission
	}

	var perms []string

	if patch.Role != nil {
		var err error

		perms, err = rbac.PermissionList(*patch.Role)
		if err != nil {
			return err
		}
	}

	targets := make([]*models.Account, 0, len(ids))

	for _, id := range ids {
		target, err := g.store.GetAccountByID(ctx, id)
		if err != nil {
			return err
		}

		if !g.manageable(actor, target) {
			return fmt.Errorf("%w: account %s", ErrInsufficientPermission, id)
		}

		targets = append(targets, target)
	}

	for _, target := range targets {
		if err := g.applyPatch(ctx, target, patch, perms); err != nil {
			return err
		}
	}

	log.Info().Int("accounts", len(targets)).Str("actor", actor.ID).
		Msg("bulk account update applied")

	return nil
}

// ImportAccounts creates the given accounts in one transaction. Only the
// owner may import; every row is validated before any write, and a
// failing row rolls the whole import back.
func (g *Gate) ImportAccounts(ctx context.Context, rows []ImportRow) error {
	actor := g.session.Current()

	if !g.HasAtLeastRoleFor(actor, rbac.TopRole) {
		return ErrInsufficientPermission
	}

	if len(rows) == 0 {
		return ErrNothingToImport
	}

	now := time.Now()
	accounts := make([]models.Account, 0, len(rows))

	for i, row := range rows {
		if err := g.validator.Struct(row); err != nil {
			return fmt.Errorf("import row %d: %w", i, err)
		}

		perms, err := rbac.PermissionList(row.Role)
		if err != nil {
			return fmt.Errorf("import row %d: %w", i, err)
		}

		status := row.Status
		if status == "" {
			status = models.StatusApproved
		}

		accounts = append(accounts, models.Account{
			ID:          row.ID,
			Email:       row.Email,
			DisplayName: row.DisplayName,
			Group:       row.Group,
			Role:        row.Role,
			Permissions: perms,
			Active:      true,
			Status:      status,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	if err := g.store.ImportAccounts(ctx, accounts); err != nil {
		return err
	}

	log.Info().Int("accounts", len(accounts)).Str("actor", actor.ID).
		Msg("accounts imported")

	return nil
}

// manageable reports whether the actor may administer the target.
func (g *Gate) manageable(actor, target *models.Account) bool {
	managed := g.ManageableAccounts([]models.Account{*target}, actor)

	return len(managed) == 1
}

// applyPatch writes one target's patched fields. Role changes carry the
// recomputed permission list and go through a full-record save.
func (g *Gate) applyPatch(ctx context.Context, target *models.Account, patch AccountPatch, perms []string) error {
	if patch.Role != nil {
		target.Role = *patch.Role
		target.Permissions = perms

		if patch.Status != nil {
			target.Status = *patch.Status
		}

		if patch.Active != nil {
			target.Active = *patch.Active
		}

		if patch.Group != nil {
			target.Group = *patch.Group
		}

		return g.store.SaveAccount(ctx, target)
	}

	fields := map[string]any{}

	if patch.Status != nil {
		fields["status"] = *patch.Status
	}

	if patch.Active != nil {
		fields["active"] = *patch.Active
	}

	if patch.Group != nil {
		fields["member_group"] = *patch.Group
	}

	if len(fields) == 0 {
		return nil
	}

	return g.store.UpdateAccount(ctx, target.ID, fields)
}
