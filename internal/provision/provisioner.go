// Package provision turns an authenticated identity into a portal
// account. Resolution is resilient: the first sign-in ever becomes the
// approved owner, later first sign-ins create pending member accounts,
// and a store outage degrades to an unpersisted account instead of
// blocking the session.
package provision

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"

	"github.com/guildhall-app/guildhall/internal/db/models"
	"github.com/guildhall-app/guildhall/internal/identity"
	"github.com/guildhall-app/guildhall/internal/rbac"
	"github.com/guildhall-app/guildhall/internal/store"
)

var fallbackCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "guildhall_provision_fallback_total",
	Help: "Number of account resolutions that fell back to an unpersisted account.",
})

// IdentityCreator is the slice of the identity directory owner creation
// needs.
type IdentityCreator interface {
	CreateUser(ctx context.Context, email, secret, displayName string) (*identity.Identity, error)
}

// Provisioner resolves identities to accounts against the durable store.
type Provisioner struct {
	store     store.AccountStore
	directory IdentityCreator

	mu sync.Mutex
	// pending remembers the identity of the last degraded resolution so a
	// later retry can promote it to a durable account.
	pending *identity.Identity
}

// NewProvisioner creates a provisioner over the given store. The
// directory may be nil when owner creation is not needed.
func NewProvisioner(st store.AccountStore, directory IdentityCreator) (*Provisioner, error) {
	if st == nil {
		return nil, ErrStoreNil
	}

	return &Provisioner{store: st, directory: directory}, nil
}

// Resolve maps an authenticated identity to its account, creating one on
// first sign-in. A store failure never fails the sign-in: resolution
// falls back to an unpersisted account carrying the default role, and
// the identity is remembered for RetryProvisioning.
func (p *Provisioner) Resolve(ctx context.Context, ident *identity.Identity) (*models.Account, error) {
	if ident == nil {
		return nil, ErrNilIdentity
	}

	acct, err := p.resolveDurable(ctx, ident)
	if err != nil {
		fallbackCounter.Inc()
		log.Error().Err(err).Str("uid", ident.ID).
			Msg("account resolution failed, continuing with unpersisted account")

		p.setPending(ident)

		return degradedAccount(ident), nil
	}

	p.setPending(nil)

	return acct, nil
}

// RetryProvisioning re-attempts the durable resolution of the identity a
// previous Resolve degraded on. It returns ErrNoPendingProvision when
// nothing is pending.
func (p *Provisioner) RetryProvisioning(ctx context.Context) (*models.Account, error) {
	pending := p.pendingIdentity()
	if pending == nil {
		return nil, ErrNoPendingProvision
	}

	acct, err := p.resolveDurable(ctx, pending)
	if err != nil {
		return nil, err
	}

	log.Info().Str("uid", acct.ID).Msg("deferred account provisioning succeeded")
	p.setPending(nil)

	return acct, nil
}

// HasPendingProvisioning reports whether a degraded resolution awaits retry.
func (p *Provisioner) HasPendingProvisioning() bool {
	return p.pendingIdentity() != nil
}

func (p *Provisioner) setPending(ident *identity.Identity) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pending = ident
}

func (p *Provisioner) pendingIdentity() *identity.Identity {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.pending
}

// CreateOwnerAccount creates the local owner identity and its approved
// top-role account. It refuses when an owner account already exists; the
// owner slot's unique index backs the check, so a bootstrap committing
// between the query and the insert still cannot yield a second owner.
func (p *Provisioner) CreateOwnerAccount(ctx context.Context, email, secret, displayName string) (*models.Account, error) {
	if p.directory == nil {
		return nil, ErrDirectoryNil
	}

	owners, err := p.store.QueryAccounts(ctx, store.AccountFilter{Role: rbac.TopRole, Limit: 1})
	if err != nil {
		return nil, err
	}

	if len(owners) > 0 {
		return nil, ErrOwnerAlreadyExists
	}

	ident, err := p.directory.CreateUser(ctx, email, secret, displayName)
	if err != nil {
		return nil, err
	}

	perms, err := rbac.PermissionList(rbac.TopRole)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	acct := &models.Account{
		ID:           ident.ID,
		Email:        ident.Email,
		DisplayName:  ident.DisplayName,
		Role:         rbac.TopRole,
		Permissions:  perms,
		Active:       true,
		Status:       models.StatusApproved,
		AuthProvider: "password",
		OwnerSlot:    models.OwnerSlotMarker(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := p.store.CreateAccount(ctx, acct); err != nil {
		if errors.Is(err, store.ErrAccountExists) {
			return nil, ErrOwnerAlreadyExists
		}

		return nil, err
	}

	log.Info().Str("uid", acct.ID).Str("email", acct.Email).Msg("owner account created")

	return acct, nil
}

// SetRole changes the account's role and recomputes its denormalized
// permission list in the same write.
func (p *Provisioner) SetRole(ctx context.Context, id string, role rbac.Role) (*models.Account, error) {
	perms, err := rbac.PermissionList(role)
	if err != nil {
		return nil, err
	}

	acct, err := p.store.GetAccountByID(ctx, id)
	if err != nil {
		return nil, err
	}

	acct.Role = role
	acct.Permissions = perms

	if err := p.store.SaveAccount(ctx, acct); err != nil {
		return nil, err
	}

	return acct, nil
}

// resolveDurable performs the store-backed part of resolution and
// returns the error instead of absorbing it.
func (p *Provisioner) resolveDurable(ctx context.Context, ident *identity.Identity) (*models.Account, error) {
	acct, err := p.store.GetAccountByID(ctx, ident.ID)

	switch {
	case err == nil:
		p.touchLogin(ctx, acct, ident)

		return acct, nil
	case !errors.Is(err, store.ErrAccountNotFound):
		return nil, err
	}

	acct = accountFromIdentity(ident)

	becameOwner, err := p.store.CreateWithBootstrap(ctx, acct)

	if errors.Is(err, store.ErrAccountExists) {
		// lost a concurrent first sign-in for the same identity
		return p.store.GetAccountByID(ctx, ident.ID)
	}

	if err != nil {
		return nil, err
	}

	if becameOwner {
		log.Info().Str("uid", acct.ID).Str("email", acct.Email).
			Msg("first account provisioned as owner")
	} else {
		log.Info().Str("uid", acct.ID).Str("email", acct.Email).
			Msg("account provisioned pending approval")
	}

	return acct, nil
}

// touchLogin records the sign-in on the existing account. Failures are
// logged and ignored, a stale last-login stamp never blocks a session.
func (p *Provisioner) touchLogin(ctx context.Context, acct *models.Account, ident *identity.Identity) {
	now := time.Now()
	patch := map[string]any{"last_login_at": now}

	if len(ident.Providers) > 0 {
		patch["auth_provider"] = ident.Providers[len(ident.Providers)-1]
	}

	if err := p.store.UpdateAccount(ctx, acct.ID, patch); err != nil {
		log.Warn().Err(err).Str("uid", acct.ID).Msg("failed to record last login")

		return
	}

	acct.LastLoginAt = &now
}

// accountFromIdentity seeds a new account from identity claims. Role,
// permissions and approval status are decided by the bootstrap write.
func accountFromIdentity(ident *identity.Identity) *models.Account {
	acct := &models.Account{
		ID:          ident.ID,
		Email:       ident.Email,
		DisplayName: ident.DisplayName,
		AvatarURL:   ident.AvatarURL,
	}

	if len(ident.Providers) > 0 {
		acct.AuthProvider = ident.Providers[len(ident.Providers)-1]
	}

	return acct
}

// degradedAccount builds the unpersisted stand-in used while the store
// is unreachable. It carries the default role so the session stays
// functional without granting anything an unknown member would not get.
func degradedAccount(ident *identity.Identity) *models.Account {
	acct := accountFromIdentity(ident)

	acct.Role = rbac.DefaultRole
	acct.Permissions = rbac.MustPermissionList(rbac.DefaultRole)
	acct.Active = true
	acct.Status = models.StatusApproved
	acct.Unpersisted = true

	return acct
}
