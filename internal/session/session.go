package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/guildhall-app/guildhall/internal/db/models"
	"github.com/guildhall-app/guildhall/internal/identity"
	"github.com/guildhall-app/guildhall/internal/provision"
)

// Outcome is the result of a provider sign-in. Exactly one of Account
// and RedirectPending is set: a pending redirect is a distinct outcome,
// not an error.
type Outcome struct {
	// Account is the resolved account when the sign-in completed in-process.
	Account *models.Account
	// RedirectPending reports that the sign-in fell back to the redirect
	// flow and will complete through CompleteRedirectFlow.
	RedirectPending bool
}

// Manager owns the process's identity session. It drives provider
// sign-ins through account resolution and approval checks, publishes the
// resulting transitions on the hub, and guarantees that no
// partially-authorized state survives a failed or superseded sign-in.
type Manager struct {
	provider    identity.Provider
	provisioner *provision.Provisioner
	hub         *ListenerHub

	// relinkSettleDelay is the pause between unlink and link during a
	// relink, giving the directory time to settle the unlink write.
	relinkSettleDelay time.Duration

	mu sync.Mutex
	// generation invalidates in-flight sign-ins: a resolution result only
	// settles when the generation is unchanged since the sign-in started,
	// so a sign-out mid-flight discards the result.
	generation uint64

	unwatch func()
}

// NewManager creates the session manager and starts consuming identity
// change events. Call Close to stop.
func NewManager(provider identity.Provider, provisioner *provision.Provisioner, hub *ListenerHub, relinkSettleDelay time.Duration) (*Manager, error) {
	if provider == nil {
		return nil, ErrProviderNil
	}

	if provisioner == nil {
		return nil, ErrProvisionerNil
	}

	if hub == nil {
		return nil, ErrHubNil
	}

	m := &Manager{
		provider:          provider,
		provisioner:       provisioner,
		hub:               hub,
		relinkSettleDelay: relinkSettleDelay,
	}

	// The provider delivers events one at a time, so an external sign-out
	// is fully reflected on the hub before the next event lands.
	m.unwatch = provider.OnIdentityChanged(func(ident *identity.Identity) {
		if ident == nil {
			m.hub.signedOut()
		}
	})

	return m, nil
}

// Close stops consuming identity change events.
func (m *Manager) Close() {
	if m.unwatch != nil {
		m.unwatch()
	}
}

// Hub returns the hub observing this session.
func (m *Manager) Hub() *ListenerHub {
	return m.hub
}

// SignInWithPassword authenticates with the local directory and resolves
// the account. ErrPendingApproval and ErrDenied tear the provider
// session down before returning.
func (m *Manager) SignInWithPassword(ctx context.Context, email, secret string) (*models.Account, error) {
	gen := m.currentGeneration()
	m.hub.advance(StateAuthenticating)

	ident, err := m.provider.SignInWithPassword(ctx, email, secret)
	if err != nil {
		m.hub.signedOut()
		signInCounter.WithLabelValues("password", outcomeFailure).Inc()

		return nil, err
	}

	return m.finishSignIn(ctx, gen, "password", ident)
}

// SignInWithProvider signs in via an external provider. The interactive
// flow is tried first; a recoverable failure falls back to the redirect
// flow and yields Outcome{RedirectPending: true}. Terminal provider
// errors propagate unmodified.
func (m *Manager) SignInWithProvider(ctx context.Context, providerTag string) (Outcome, error) {
	gen := m.currentGeneration()
	m.hub.advance(StateAuthenticating)

	ident, err := m.provider.SignInInteractive(ctx, providerTag)
	if err != nil {
		if !identity.IsRecoverable(err) {
			m.hub.signedOut()
			signInCounter.WithLabelValues(providerTag, outcomeFailure).Inc()

			return Outcome{}, err
		}

		log.Info().Err(err).Str("provider", providerTag).
			Msg("interactive sign-in failed recoverably, falling back to redirect")

		if err := m.provider.SignInByRedirect(ctx, providerTag); err != nil {
			m.hub.signedOut()
			signInCounter.WithLabelValues(providerTag, outcomeFailure).Inc()

			return Outcome{}, err
		}

		m.hub.advance(StateRedirectPending)
		signInCounter.WithLabelValues(providerTag, outcomeRedirectPending).Inc()

		return Outcome{RedirectPending: true}, nil
	}

	acct, err := m.finishSignIn(ctx, gen, providerTag, ident)
	if err != nil {
		return Outcome{}, err
	}

	return Outcome{Account: acct}, nil
}

// CompleteRedirectFlow reconciles a pending redirect sign-in, typically
// once at process start. It returns (nil, nil) when nothing is pending
// and is safe to call repeatedly: completion consumes the handshake.
func (m *Manager) CompleteRedirectFlow(ctx context.Context) (*models.Account, error) {
	gen := m.currentGeneration()

	ident, err := m.provider.CompleteRedirect(ctx)
	if err != nil {
		m.hub.signedOut()
		signInCounter.WithLabelValues("redirect", outcomeFailure).Inc()

		return nil, err
	}

	if ident == nil {
		return nil, nil
	}

	return m.finishSignIn(ctx, gen, "redirect", ident)
}

// SignOut tears down the provider session and clears the session. Every
// permission query answers false afterwards.
func (m *Manager) SignOut(ctx context.Context) error {
	m.mu.Lock()
	m.generation++
	m.mu.Unlock()

	err := m.provider.SignOut(ctx)

	m.hub.signedOut()
	signOutCounter.Inc()

	if err != nil {
		return fmt.Errorf("failed to sign out of provider: %w", err)
	}

	return nil
}

// RetryProvisioning re-attempts durable provisioning after a degraded
// sign-in. When it succeeds for the signed-in account, the durable
// record replaces the unpersisted one and listeners are re-notified.
func (m *Manager) RetryProvisioning(ctx context.Context) (*models.Account, error) {
	acct, err := m.provisioner.RetryProvisioning(ctx)
	if err != nil {
		return nil, err
	}

	if current := m.hub.Current(); current != nil && current.Unpersisted && current.ID == acct.ID {
		m.hub.signedIn(acct)
	}

	return acct, nil
}

// LinkProvider attaches the provider to the signed-in identity. Linking
// an already linked provider is a no-op.
func (m *Manager) LinkProvider(ctx context.Context, providerTag string) error {
	return m.provider.Link(ctx, providerTag)
}

// UnlinkProvider detaches the provider from the signed-in identity.
// Unlinking a provider that is not linked is a no-op.
func (m *Manager) UnlinkProvider(ctx context.Context, providerTag string) error {
	return m.provider.Unlink(ctx, providerTag)
}

// IsLinked reports whether the provider is linked to the signed-in identity.
func (m *Manager) IsLinked(providerTag string) bool {
	ident := m.provider.CurrentIdentity()
	if ident == nil {
		return false
	}

	for _, tag := range ident.Providers {
		if tag == providerTag {
			return true
		}
	}

	return false
}

// LinkedProviders lists the provider tags linked to the signed-in identity.
func (m *Manager) LinkedProviders() []string {
	ident := m.provider.CurrentIdentity()
	if ident == nil {
		return nil
	}

	return ident.Providers
}

// RelinkProvider refreshes a provider link by unlinking, waiting for the
// directory to settle, and linking again.
func (m *Manager) RelinkProvider(ctx context.Context, providerTag string) error {
	if err := m.provider.Unlink(ctx, providerTag); err != nil {
		return err
	}

	if m.relinkSettleDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.relinkSettleDelay):
		}
	}

	return m.provider.Link(ctx, providerTag)
}

// finishSignIn resolves the identity to an account, enforces approval,
// and settles the result onto the hub unless a sign-out raced past.
func (m *Manager) finishSignIn(ctx context.Context, gen uint64, method string, ident *identity.Identity) (*models.Account, error) {
	m.hub.advance(StateResolving)

	acct, err := m.provisioner.Resolve(ctx, ident)
	if err != nil {
		m.teardown(ctx)
		signInCounter.WithLabelValues(method, outcomeFailure).Inc()

		return nil, err
	}

	switch {
	case acct.Status == models.StatusPending:
		m.teardown(ctx)
		signInCounter.WithLabelValues(method, outcomePendingApproval).Inc()
		log.Info().Str("uid", acct.ID).Msg("sign-in rejected, account pending approval")

		return nil, ErrPendingApproval
	case !acct.Usable():
		m.teardown(ctx)
		signInCounter.WithLabelValues(method, outcomeDenied).Inc()
		log.Info().Str("uid", acct.ID).Msg("sign-in rejected, account denied or deactivated")

		return nil, ErrDenied
	}

	if m.currentGeneration() != gen {
		m.teardown(ctx)

		return nil, ErrSuperseded
	}

	m.hub.signedIn(acct)
	signInCounter.WithLabelValues(method, outcomeSuccess).Inc()
	log.Info().Str("uid", acct.ID).Str("method", method).
		Str("role", string(acct.Role)).Msg("signed in")

	return acct, nil
}

// teardown unwinds a partially-authorized sign-in: provider session out,
// hub back to signed-out.
func (m *Manager) teardown(ctx context.Context) {
	if err := m.provider.SignOut(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to tear down provider session")
	}

	m.hub.signedOut()
}

func (m *Manager) currentGeneration() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.generation
}
