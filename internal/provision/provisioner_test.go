package provision

import (
	"context"
	"errors"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/guildhall-app/guildhall/internal/db/models"
	"github.com/guildhall-app/guildhall/internal/identity"
	"github.com/guildhall-app/guildhall/internal/rbac"
	"github.com/guildhall-app/guildhall/internal/store"
)

var errStoreDown = errors.New("store down")

// flakyStore passes through to a real store until failing is set.
type flakyStore struct {
	store.AccountStore

	failing bool
}

func (f *flakyStore) GetAccountByID(ctx context.Context, id string) (*models.Account, error) {
	if f.failing {
		return nil, errStoreDown
	}

	return f.AccountStore.GetAccountByID(ctx, id)
}

func (f *flakyStore) CreateWithBootstrap(ctx context.Context, acct *models.Account) (bool, error) {
	if f.failing {
		return false, errStoreDown
	}

	return f.AccountStore.CreateWithBootstrap(ctx, acct)
}

// fakeCreator hands out identities with predictable subjects.
type fakeCreator struct {
	created []string
}

func (f *fakeCreator) CreateUser(_ context.Context, email, _, displayName string) (*identity.Identity, error) {
	f.created = append(f.created, email)

	return &identity.Identity{
		ID:          "local-" + email,
		Email:       email,
		DisplayName: displayName,
		Providers:   []string{"password"},
	}, nil
}

func setupTestProvisioner(t *testing.T) (*Provisioner, *flakyStore, *fakeCreator) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err, "failed to create test database")

	err = db.AutoMigrate(&models.Account{}, &models.LinkedIdentity{})
	require.NoError(t, err, "failed to migrate test database")

	st, err := store.NewGorm(db)
	require.NoError(t, err)

	flaky := &flakyStore{AccountStore: st}
	creator := &fakeCreator{}

	p, err := NewProvisioner(flaky, creator)
	require.NoError(t, err)

	return p, flaky, creator
}

func TestNewProvisioner_NilStore(t *testing.T) {
	_, err := NewProvisioner(nil, nil)
	assert.ErrorIs(t, err, ErrStoreNil)
}

func TestResolve_FirstSignInBecomesOwner(t *testing.T) {
	p, _, _ := setupTestProvisioner(t)
	ctx := context.Background()

	acct, err := p.Resolve(ctx, &identity.Identity{
		ID:        "uid-1",
		Email:     "first@example.com",
		Providers: []string{"google"},
	})
	require.NoError(t, err)

	assert.Equal(t, rbac.TopRole, acct.Role)
	assert.Equal(t, models.StatusApproved, acct.Status)
	assert.Equal(t, "google", acct.AuthProvider)
	assert.False(t, acct.Unpersisted)

	second, err := p.Resolve(ctx, &identity.Identity{
		ID:    "uid-2",
		Email: "second@example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, rbac.DefaultRole, second.Role)
	assert.Equal(t, models.StatusPending, second.Status)
}

func TestResolve_ExistingAccountTouchesLastLogin(t *testing.T) {
	p, _, _ := setupTestProvisioner(t)
	ctx := context.Background()

	ident := &identity.Identity{ID: "uid-1", Email: "a@example.com"}

	first, err := p.Resolve(ctx, ident)
	require.NoError(t, err)
	assert.Nil(t, first.LastLoginAt)

	again, err := p.Resolve(ctx, ident)
	require.NoError(t, err)
	assert.NotNil(t, again.LastLoginAt)
}

func TestResolve_NilIdentity(t *testing.T) {
	p, _, _ := setupTestProvisioner(t)

	_, err := p.Resolve(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNilIdentity)
}

func TestResolve_StoreOutageDegrades(t *testing.T) {
	p, flaky, _ := setupTestProvisioner(t)
	ctx := context.Background()

	flaky.failing = true

	acct, err := p.Resolve(ctx, &identity.Identity{
		ID:    "uid-1",
		Email: "a@example.com",
	})
	require.NoError(t, err)

	assert.True(t, acct.Unpersisted)
	assert.Equal(t, rbac.DefaultRole, acct.Role)
	assert.True(t, acct.Usable())
	assert.True(t, p.HasPendingProvisioning())

	// retry fails while the store is still down and keeps the pending state
	_, err = p.RetryProvisioning(ctx)
	require.Error(t, err)
	assert.True(t, p.HasPendingProvisioning())

	flaky.failing = false

	durable, err := p.RetryProvisioning(ctx)
	require.NoError(t, err)

	assert.False(t, durable.Unpersisted)
	assert.Equal(t, rbac.TopRole, durable.Role)
	assert.False(t, p.HasPendingProvisioning())
}

func TestRetryProvisioning_NothingPending(t *testing.T) {
	p, _, _ := setupTestProvisioner(t)

	_, err := p.RetryProvisioning(context.Background())
	assert.ErrorIs(t, err, ErrNoPendingProvision)
}

func TestCreateOwnerAccount(t *testing.T) {
	p, _, creator := setupTestProvisioner(t)
	ctx := context.Background()

	acct, err := p.CreateOwnerAccount(ctx, "owner@example.com", "s3cret!", "Owner")
	require.NoError(t, err)

	assert.Equal(t, rbac.TopRole, acct.Role)
	assert.Equal(t, models.StatusApproved, acct.Status)
	assert.Equal(t, []string{"owner@example.com"}, creator.created)

	_, err = p.CreateOwnerAccount(ctx, "other@example.com", "s3cret!", "Other")
	assert.ErrorIs(t, err, ErrOwnerAlreadyExists)
}

// blindOwnerStore hides existing owners from the role query, like a
// bootstrap committing between the check and the insert.
type blindOwnerStore struct {
	store.AccountStore
}

func (s blindOwnerStore) QueryAccounts(_ context.Context, _ store.AccountFilter) ([]models.Account, error) {
	return nil, nil
}

func TestCreateOwnerAccount_LostRace(t *testing.T) {
	p, flaky, creator := setupTestProvisioner(t)
	ctx := context.Background()

	_, err := p.CreateOwnerAccount(ctx, "owner@example.com", "s3cret!", "Owner")
	require.NoError(t, err)

	blind, err := NewProvisioner(blindOwnerStore{AccountStore: flaky.AccountStore}, creator)
	require.NoError(t, err)

	// the check passes but the owner slot is already claimed
	_, err = blind.CreateOwnerAccount(ctx, "other@example.com", "s3cret!", "Other")
	assert.ErrorIs(t, err, ErrOwnerAlreadyExists)

	owners, err := flaky.AccountStore.QueryAccounts(ctx, store.AccountFilter{Role: rbac.TopRole})
	require.NoError(t, err)
	require.Len(t, owners, 1)
	assert.Equal(t, "owner@example.com", owners[0].Email)
}

func TestSetRole(t *testing.T) {
	p, _, _ := setupTestProvisioner(t)
	ctx := context.Background()

	seed, err := p.Resolve(ctx, &identity.Identity{ID: "uid-1", Email: "a@example.com"})
	require.NoError(t, err)
	require.Equal(t, rbac.TopRole, seed.Role)

	member, err := p.Resolve(ctx, &identity.Identity{ID: "uid-2", Email: "b@example.com"})
	require.NoError(t, err)
	require.Equal(t, rbac.DefaultRole, member.Role)

	promoted, err := p.SetRole(ctx, "uid-2", rbac.RoleGroupLeader)
	require.NoError(t, err)

	assert.Equal(t, rbac.RoleGroupLeader, promoted.Role)
	assert.Equal(t, rbac.MustPermissionList(rbac.RoleGroupLeader), promoted.Permissions)

	_, err = p.SetRole(ctx, "uid-2", rbac.Role("duke"))
	assert.ErrorIs(t, err, rbac.ErrUnknownRole)
}
