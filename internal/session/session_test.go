package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/guildhall-app/guildhall/internal/db/models"
	"github.com/guildhall-app/guildhall/internal/identity"
	"github.com/guildhall-app/guildhall/internal/provision"
	"github.com/guildhall-app/guildhall/internal/rbac"
	"github.com/guildhall-app/guildhall/internal/store"
)

// fakeProvider is an in-memory identity provider for manager tests.
type fakeProvider struct {
	mu sync.Mutex

	byEmail          map[string]*identity.Identity
	interactiveIdent *identity.Identity
	interactiveErr   error
	redirectErr      error
	pending          *identity.Identity

	current   *identity.Identity
	listeners []func(*identity.Identity)

	signOuts       int
	redirectsBegun int
	afterPassword  func()
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{byEmail: map[string]*identity.Identity{}}
}

func (f *fakeProvider) SignInWithPassword(_ context.Context, email, _ string) (*identity.Identity, error) {
	ident, ok := f.byEmail[email]
	if !ok {
		return nil, identity.NewProviderError(identity.CodeUserNotFound, "no identity for email")
	}

	f.setCurrent(ident)

	if f.afterPassword != nil {
		f.afterPassword()
	}

	return ident, nil
}

func (f *fakeProvider) SignInInteractive(_ context.Context, _ string) (*identity.Identity, error) {
	if f.interactiveErr != nil {
		return nil, f.interactiveErr
	}

	f.setCurrent(f.interactiveIdent)

	return f.interactiveIdent, nil
}

func (f *fakeProvider) SignInByRedirect(_ context.Context, _ string) error {
	if f.redirectErr != nil {
		return f.redirectErr
	}

	f.redirectsBegun++

	return nil
}

func (f *fakeProvider) CompleteRedirect(_ context.Context) (*identity.Identity, error) {
	pending := f.pending
	f.pending = nil

	if pending == nil {
		return nil, nil
	}

	f.setCurrent(pending)

	return pending, nil
}

func (f *fakeProvider) SignOut(_ context.Context) error {
	f.signOuts++
	f.setCurrent(nil)

	return nil
}

func (f *fakeProvider) Link(_ context.Context, providerTag string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.current == nil {
		return identity.ErrNoCurrentIdentity
	}

	for _, tag := range f.current.Providers {
		if tag == providerTag {
			return nil
		}
	}

	f.current.Providers = append(f.current.Providers, providerTag)

	return nil
}

func (f *fakeProvider) Unlink(_ context.Context, providerTag string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.current == nil {
		return identity.ErrNoCurrentIdentity
	}

	kept := f.current.Providers[:0]
	for _, tag := range f.current.Providers {
		if tag != providerTag {
			kept = append(kept, tag)
		}
	}

	f.current.Providers = kept

	return nil
}

func (f *fakeProvider) CurrentIdentity() *identity.Identity {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.current
}

func (f *fakeProvider) OnIdentityChanged(fn func(*identity.Identity)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.listeners = append(f.listeners, fn)

	return func() {}
}

func (f *fakeProvider) CustomClaims(_ context.Context) (map[string]any, error) {
	return nil, nil
}

func (f *fakeProvider) setCurrent(ident *identity.Identity) {
	f.mu.Lock()
	f.current = ident
	snapshot := append([]func(*identity.Identity){}, f.listeners...)
	f.mu.Unlock()

	for _, fn := range snapshot {
		fn(ident)
	}
}

func setupTestManager(t *testing.T) (*Manager, *fakeProvider, *store.Gorm) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err, "failed to create test database")

	err = db.AutoMigrate(&models.Account{}, &models.LinkedIdentity{})
	require.NoError(t, err, "failed to migrate test database")

	st, err := store.NewGorm(db)
	require.NoError(t, err)

	provisioner, err := provision.NewProvisioner(st, nil)
	require.NoError(t, err)

	provider := newFakeProvider()

	m, err := NewManager(provider, provisioner, NewListenerHub(), 0)
	require.NoError(t, err)
	t.Cleanup(m.Close)

	return m, provider, st
}

// seedApproved provisions the identity as the first (owner) account so a
// later sign-in with it passes the approval check.
func seedApproved(t *testing.T, m *Manager, provider *fakeProvider, ident *identity.Identity) {
	t.Helper()

	provider.byEmail[ident.Email] = ident

	_, err := m.SignInWithPassword(context.Background(), ident.Email, "secret")
	require.NoError(t, err)
}

func TestSignInWithPassword_FirstSignInOwner(t *testing.T) {
	m, provider, _ := setupTestManager(t)

	var notified []*models.Account
	m.Hub().Subscribe(func(acct *models.Account) { notified = append(notified, acct) })

	provider.byEmail["owner@example.com"] = &identity.Identity{ID: "uid-1", Email: "owner@example.com"}

	acct, err := m.SignInWithPassword(context.Background(), "owner@example.com", "secret")
	require.NoError(t, err)

	assert.Equal(t, rbac.TopRole, acct.Role)
	assert.Equal(t, StateSignedIn, m.Hub().State())
	assert.Equal(t, acct, m.Hub().Current())
	require.Len(t, notified, 1)
	assert.Equal(t, acct, notified[0])
}

func TestSignInWithPassword_UnknownUser(t *testing.T) {
	m, _, _ := setupTestManager(t)

	_, err := m.SignInWithPassword(context.Background(), "ghost@example.com", "secret")
	require.Error(t, err)

	provErr, ok := identity.AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, identity.CodeUserNotFound, provErr.Code)
	assert.Equal(t, StateSignedOut, m.Hub().State())
}

func TestSignInWithPassword_PendingApprovalTearsDown(t *testing.T) {
	m, provider, _ := setupTestManager(t)

	seedApproved(t, m, provider, &identity.Identity{ID: "uid-1", Email: "owner@example.com"})
	require.NoError(t, m.SignOut(context.Background()))

	provider.byEmail["new@example.com"] = &identity.Identity{ID: "uid-2", Email: "new@example.com"}
	signOutsBefore := provider.signOuts

	_, err := m.SignInWithPassword(context.Background(), "new@example.com", "secret")
	assert.ErrorIs(t, err, ErrPendingApproval)

	// the provider session is torn down, nothing partially-authorized remains
	assert.Equal(t, signOutsBefore+1, provider.signOuts)
	assert.Nil(t, provider.CurrentIdentity())
	assert.Equal(t, StateSignedOut, m.Hub().State())
	assert.Nil(t, m.Hub().Current())
}

func TestSignInWithPassword_DeniedTearsDown(t *testing.T) {
	m, provider, st := setupTestManager(t)

	seedApproved(t, m, provider, &identity.Identity{ID: "uid-1", Email: "owner@example.com"})
	require.NoError(t, m.SignOut(context.Background()))

	require.NoError(t, st.CreateAccount(context.Background(), &models.Account{
		ID:     "uid-2",
		Email:  "denied@example.com",
		Role:   rbac.RoleMember,
		Active: true,
		Status: models.StatusDenied,
	}))
	provider.byEmail["denied@example.com"] = &identity.Identity{ID: "uid-2", Email: "denied@example.com"}

	_, err := m.SignInWithPassword(context.Background(), "denied@example.com", "secret")
	assert.ErrorIs(t, err, ErrDenied)
	assert.Nil(t, provider.CurrentIdentity())
	assert.Equal(t, StateSignedOut, m.Hub().State())
}

func TestSignInWithProvider_RecoverableFallsBackToRedirect(t *testing.T) {
	m, provider, _ := setupTestManager(t)

	provider.interactiveErr = identity.NewProviderError(identity.CodePopupBlocked, "no interactive channel")

	outcome, err := m.SignInWithProvider(context.Background(), "google")
	require.NoError(t, err)

	assert.True(t, outcome.RedirectPending)
	assert.Nil(t, outcome.Account)
	assert.Equal(t, 1, provider.redirectsBegun)
	assert.Equal(t, StateRedirectPending, m.Hub().State())
}

func TestSignInWithProvider_TerminalErrorPropagates(t *testing.T) {
	m, provider, _ := setupTestManager(t)

	provider.interactiveErr = identity.NewProviderError(identity.CodeOperationNotAllowed, "provider disabled")

	_, err := m.SignInWithProvider(context.Background(), "google")
	require.Error(t, err)

	provErr, ok := identity.AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, identity.CodeOperationNotAllowed, provErr.Code)
	assert.Zero(t, provider.redirectsBegun, "terminal errors must not fall back to redirect")
	assert.Equal(t, StateSignedOut, m.Hub().State())
}

func TestSignInWithProvider_InteractiveSuccess(t *testing.T) {
	m, provider, _ := setupTestManager(t)

	provider.interactiveIdent = &identity.Identity{
		ID:        "uid-1",
		Email:     "ext@example.com",
		Providers: []string{"google"},
	}

	outcome, err := m.SignInWithProvider(context.Background(), "google")
	require.NoError(t, err)

	assert.False(t, outcome.RedirectPending)
	require.NotNil(t, outcome.Account)
	assert.Equal(t, rbac.TopRole, outcome.Account.Role)
	assert.Equal(t, "google", outcome.Account.AuthProvider)
}

func TestCompleteRedirectFlow_Idempotent(t *testing.T) {
	m, provider, _ := setupTestManager(t)

	provider.pending = &identity.Identity{ID: "uid-1", Email: "ext@example.com"}

	acct, err := m.CompleteRedirectFlow(context.Background())
	require.NoError(t, err)
	require.NotNil(t, acct)
	assert.Equal(t, StateSignedIn, m.Hub().State())

	// completion consumed the handshake; a second call is a clean no-op
	// that leaves the session alone
	again, err := m.CompleteRedirectFlow(context.Background())
	require.NoError(t, err)
	assert.Nil(t, again)
	assert.Equal(t, StateSignedIn, m.Hub().State())
}

func TestCompleteRedirectFlow_NothingPending(t *testing.T) {
	m, _, _ := setupTestManager(t)

	acct, err := m.CompleteRedirectFlow(context.Background())
	require.NoError(t, err)
	assert.Nil(t, acct)
	assert.Equal(t, StateSignedOut, m.Hub().State())
}

func TestSignOut_ClearsEverything(t *testing.T) {
	m, provider, _ := setupTestManager(t)

	var notified []*models.Account
	m.Hub().Subscribe(func(acct *models.Account) { notified = append(notified, acct) })

	seedApproved(t, m, provider, &identity.Identity{ID: "uid-1", Email: "owner@example.com"})

	require.NoError(t, m.SignOut(context.Background()))

	assert.Nil(t, m.Hub().Current())
	assert.Equal(t, StateSignedOut, m.Hub().State())
	assert.Nil(t, provider.CurrentIdentity())
	require.Len(t, notified, 2)
	assert.NotNil(t, notified[0])
	assert.Nil(t, notified[1])
}

func TestSignIn_SupersededBySignOut(t *testing.T) {
	m, provider, _ := setupTestManager(t)

	provider.byEmail["owner@example.com"] = &identity.Identity{ID: "uid-1", Email: "owner@example.com"}

	// a sign-out lands while the sign-in is still in flight
	provider.afterPassword = func() {
		provider.afterPassword = nil
		require.NoError(t, m.SignOut(context.Background()))
	}

	_, err := m.SignInWithPassword(context.Background(), "owner@example.com", "secret")
	assert.ErrorIs(t, err, ErrSuperseded)
	assert.Equal(t, StateSignedOut, m.Hub().State())
	assert.Nil(t, m.Hub().Current())
	assert.Nil(t, provider.CurrentIdentity())
}

func TestLinkProvider_Idempotent(t *testing.T) {
	m, provider, _ := setupTestManager(t)

	seedApproved(t, m, provider, &identity.Identity{ID: "uid-1", Email: "owner@example.com"})

	require.NoError(t, m.LinkProvider(context.Background(), "github"))
	assert.True(t, m.IsLinked("github"))

	// linking again is a no-op
	require.NoError(t, m.LinkProvider(context.Background(), "github"))
	assert.Equal(t, []string{"github"}, m.LinkedProviders())

	require.NoError(t, m.UnlinkProvider(context.Background(), "github"))
	assert.False(t, m.IsLinked("github"))

	// unlinking an absent provider is a no-op
	require.NoError(t, m.UnlinkProvider(context.Background(), "github"))
}

func TestRelinkProvider(t *testing.T) {
	m, provider, _ := setupTestManager(t)
	m.relinkSettleDelay = time.Millisecond

	seedApproved(t, m, provider, &identity.Identity{ID: "uid-1", Email: "owner@example.com"})
	require.NoError(t, m.LinkProvider(context.Background(), "github"))

	require.NoError(t, m.RelinkProvider(context.Background(), "github"))
	assert.True(t, m.IsLinked("github"))
}

func TestRetryProvisioning_NothingPending(t *testing.T) {
	m, _, _ := setupTestManager(t)

	_, err := m.RetryProvisioning(context.Background())
	assert.ErrorIs(t, err, provision.ErrNoPendingProvision)
}
