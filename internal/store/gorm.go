package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/guildhall-app/guildhall/internal/db/models"
	"github.com/guildhall-app/guildhall/internal/rbac"
)

// Gorm is the gorm-backed AccountStore. It also persists redirect
// handshake state for the identity directory.
type Gorm struct {
	db *gorm.DB
}

// NewGorm creates a store over the given database handle.
func NewGorm(db *gorm.DB) (*Gorm, error) {
	if db == nil {
		return nil, ErrDBNil
	}

	return &Gorm{db: db}, nil
}

// GetAccountByID returns the account or ErrAccountNotFound.
func (s *Gorm) GetAccountByID(ctx context.Context, id string) (*models.Account, error) {
	var acct models.Account

	err := s.db.WithContext(ctx).First(&acct, "id = ?", id).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to query account: %w", err)
	}

	return &acct, nil
}

// CreateAccount persists a new account record.
func (s *Gorm) CreateAccount(ctx context.Context, acct *models.Account) error {
	err := s.db.WithContext(ctx).Create(acct).Error

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %s", ErrAccountExists, acct.ID)
	}

	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}

	return nil
}

// CreateWithBootstrap persists a new account and decides its role inside
// one transaction: top role when the collection is empty, default role
// otherwise. The count is only a hint; the owner_slot unique index is
// the authority for the first-owner rule. When two first sign-ins race,
// the second insert collides on the slot and joins as a pending member
// instead of a second owner.
func (s *Gorm) CreateWithBootstrap(ctx context.Context, acct *models.Account) (bool, error) {
	var becameOwner bool

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Account{}).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to count accounts: %w", err)
		}

		owner, err := bootstrapInsert(tx, acct, count == 0)
		if err != nil {
			return err
		}

		becameOwner = owner

		return nil
	})
	if err != nil {
		return false, err
	}

	return becameOwner, nil
}

// bootstrapInsert writes the account as the owner or as a pending
// member. An owner insert that collides on the owner slot lost the
// bootstrap race and is retried as a member; a collision on the account
// id means the same identity was provisioned concurrently.
func bootstrapInsert(tx *gorm.DB, acct *models.Account, asOwner bool) (bool, error) {
	if err := seedBootstrapAccount(acct, asOwner); err != nil {
		return false, err
	}

	// the nested transaction is a savepoint, so a lost insert race
	// leaves the surrounding transaction usable for the fallback write
	err := tx.Transaction(func(tx *gorm.DB) error {
		return tx.Create(acct).Error
	})
	if err == nil {
		return asOwner, nil
	}

	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return false, fmt.Errorf("failed to create account: %w", err)
	}

	var existing int64
	if countErr := tx.Model(&models.Account{}).Where("id = ?", acct.ID).
		Count(&existing).Error; countErr != nil {
		return false, fmt.Errorf("failed to inspect duplicate account: %w", countErr)
	}

	if existing > 0 || !asOwner {
		return false, fmt.Errorf("%w: %s", ErrAccountExists, acct.ID)
	}

	// another sign-in claimed the owner slot first
	return bootstrapInsert(tx, acct, false)
}

// seedBootstrapAccount fills the role-derived fields for the bootstrap
// write.
func seedBootstrapAccount(acct *models.Account, asOwner bool) error {
	role := rbac.DefaultRole
	status := models.StatusPending
	acct.OwnerSlot = nil

	if asOwner {
		role = rbac.TopRole
		status = models.StatusApproved
		acct.OwnerSlot = models.OwnerSlotMarker()
	}

	perms, err := rbac.PermissionList(role)
	if err != nil {
		return err
	}

	acct.Role = role
	acct.Permissions = perms
	acct.Active = true
	acct.Status = status
	acct.CreatedAt = time.Now()
	acct.UpdatedAt = time.Now()

	return nil
}

// UpdateAccount applies a column patch to the account. The caller's map
// is left untouched.
func (s *Gorm) UpdateAccount(ctx context.Context, id string, patch map[string]any) error {
	stamped := make(map[string]any, len(patch)+1)
	for column, value := range patch {
		stamped[column] = value
	}

	stamped["updated_at"] = time.Now()

	result := s.db.WithContext(ctx).Model(&models.Account{}).Where("id = ?", id).Updates(stamped)
	if result.Error != nil {
		return fmt.Errorf("failed to update account: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}

	return nil
}

// SaveAccount writes the full account record.
func (s *Gorm) SaveAccount(ctx context.Context, acct *models.Account) error {
	acct.UpdatedAt = time.Now()

	if err := s.db.WithContext(ctx).Save(acct).Error; err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}

	return nil
}

// ImportAccounts creates all accounts in one transaction; a failure
// rolls every row back.
func (s *Gorm) ImportAccounts(ctx context.Context, accounts []models.Account) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range accounts {
			if err := tx.Create(&accounts[i]).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return fmt.Errorf("%w: %s", ErrAccountExists, accounts[i].ID)
				}

				return fmt.Errorf("failed to import account %s: %w", accounts[i].ID, err)
			}
		}

		return nil
	})
}

// QueryAccounts returns the accounts matching the filter.
func (s *Gorm) QueryAccounts(ctx context.Context, filter AccountFilter) ([]models.Account, error) {
	query := s.db.WithContext(ctx).Model(&models.Account{})

	if filter.Role != "" {
		query = query.Where("role = ?", filter.Role)
	}

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	if filter.Group != "" {
		query = query.Where("member_group = ?", filter.Group)
	}

	if filter.Active != nil {
		query = query.Where("active = ?", *filter.Active)
	}

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit).Offset(filter.Offset)
	}

	var accounts []models.Account
	if err := query.Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}

	return accounts, nil
}

// IsAccountsCollectionEmpty reports whether no account exists yet.
func (s *Gorm) IsAccountsCollectionEmpty(ctx context.Context) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Account{}).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to count accounts: %w", err)
	}

	return count == 0, nil
}

// LinkIdentity attaches (provider, subject) to the account. The unique
// index over (provider, subject) is what keeps one external identity from
// being claimed by two accounts; a lost race surfaces as
// ErrIdentityAlreadyLinked.
func (s *Gorm) LinkIdentity(ctx context.Context, accountID, provider, subject string) error {
	var existing models.LinkedIdentity

	err := s.db.WithContext(ctx).
		Where("provider = ? AND subject = ?", provider, subject).
		First(&existing).Error

	switch {
	case err == nil && existing.AccountID == accountID:
		// already linked to this account
		return nil
	case err == nil:
		return ErrIdentityAlreadyLinked
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("failed to check linked identity: %w", err)
	}

	link := models.LinkedIdentity{
		AccountID: accountID,
		Provider:  provider,
		Subject:   subject,
		CreatedAt: time.Now(),
	}

	if err := s.db.WithContext(ctx).Create(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrIdentityAlreadyLinked
		}

		return fmt.Errorf("failed to link identity: %w", err)
	}

	return nil
}

// UnlinkIdentity removes the account's link for the provider. Removing a
// link that does not exist is a no-op.
func (s *Gorm) UnlinkIdentity(ctx context.Context, accountID, provider string) error {
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND provider = ?", accountID, provider).
		Delete(&models.LinkedIdentity{}).Error
	if err != nil {
		return fmt.Errorf("failed to unlink identity: %w", err)
	}

	return nil
}

// LinkedIdentities lists the account's linked identities.
func (s *Gorm) LinkedIdentities(ctx context.Context, accountID string) ([]models.LinkedIdentity, error) {
	var links []models.LinkedIdentity

	err := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at").
		Find(&links).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list linked identities: %w", err)
	}

	return links, nil
}

// SaveRedirect persists a redirect handshake, replacing any previous one
// under the same key.
func (s *Gorm) SaveRedirect(ctx context.Context, state *models.RedirectState) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("state_key = ?", state.Key).Delete(&models.RedirectState{}).Error; err != nil {
			return fmt.Errorf("failed to clear redirect state: %w", err)
		}

		if err := tx.Create(state).Error; err != nil {
			return fmt.Errorf("failed to save redirect state: %w", err)
		}

		return nil
	})
}

// GetRedirect returns the pending handshake for the key, or nil.
func (s *Gorm) GetRedirect(ctx context.Context, key string) (*models.RedirectState, error) {
	var state models.RedirectState

	err := s.db.WithContext(ctx).First(&state, "state_key = ?", key).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load redirect state: %w", err)
	}

	return &state, nil
}

// AttachRedirectCode stores the authorization code on the pending handshake.
func (s *Gorm) AttachRedirectCode(ctx context.Context, key, code string) error {
	result := s.db.WithContext(ctx).Model(&models.RedirectState{}).
		Where("state_key = ?", key).
		Update("code", code)
	if result.Error != nil {
		return fmt.Errorf("failed to attach redirect code: %w", result.Error)
	}

	return nil
}

// DeleteRedirect consumes the pending handshake for the key.
func (s *Gorm) DeleteRedirect(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Where("state_key = ?", key).Delete(&models.RedirectState{}).Error; err != nil {
		return fmt.Errorf("failed to delete redirect state: %w", err)
	}

	return nil
}
