// Package store implements the durable account store behind the
// provisioning and authorization layers. The document-store contract is
// kept narrow on purpose: single-record reads and writes are strongly
// consistent, and the transactional bootstrap guard is the sole authority
// for the "first account becomes owner" rule.
package store

import (
	"context"

	"github.com/guildhall-app/guildhall/internal/db/models"
	"github.com/guildhall-app/guildhall/internal/rbac"
)

// AccountFilter narrows QueryAccounts results. Zero-valued fields are
// ignored.
type AccountFilter struct {
	Role   rbac.Role
	Status models.ApprovalStatus
	Group  string
	Active *bool
	Limit  int
	Offset int
}

// AccountStore is the durable account contract the session core depends on.
type AccountStore interface {
	// GetAccountByID returns the account or ErrAccountNotFound.
	GetAccountByID(ctx context.Context, id string) (*models.Account, error)

	// CreateAccount persists a new account record.
	CreateAccount(ctx context.Context, acct *models.Account) error

	// CreateWithBootstrap persists a new account, deciding its role inside
	// a single transaction: the first account in an empty collection gets
	// the top role, every later one the default role. It reports whether
	// the account became the owner.
	CreateWithBootstrap(ctx context.Context, acct *models.Account) (becameOwner bool, err error)

	// UpdateAccount applies a column patch to the account.
	UpdateAccount(ctx context.Context, id string, patch map[string]any) error

	// SaveAccount writes the full account record. Used when serialized
	// fields (permissions, profile) change together with scalar columns.
	SaveAccount(ctx context.Context, acct *models.Account) error

	// ImportAccounts creates all accounts in one transaction; a failure
	// rolls every row back.
	ImportAccounts(ctx context.Context, accounts []models.Account) error

	// QueryAccounts returns the accounts matching the filter.
	QueryAccounts(ctx context.Context, filter AccountFilter) ([]models.Account, error)

	// IsAccountsCollectionEmpty reports whether no account exists yet.
	IsAccountsCollectionEmpty(ctx context.Context) (bool, error)

	// LinkIdentity attaches (provider, subject) to the account. The unique
	// constraint over (provider, subject) rejects a second claim with
	// ErrIdentityAlreadyLinked; re-linking the same pair to the same
	// account is a no-op.
	LinkIdentity(ctx context.Context, accountID, provider, subject string) error

	// UnlinkIdentity removes the account's link for the provider. Removing
	// a link that does not exist is a no-op.
	UnlinkIdentity(ctx context.Context, accountID, provider string) error

	// LinkedIdentities lists the account's linked identities.
	LinkedIdentities(ctx context.Context, accountID string) ([]models.LinkedIdentity, error)
}
