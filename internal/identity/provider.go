package identity

import "context"

// Identity carries the provider-side claims of an authenticated principal.
// Authorization data never lives here; it belongs to the account record.
type Identity struct {
	// ID is the provider's stable subject for the principal.
	ID string
	// Email is the identity's email claim.
	Email string
	// DisplayName is the identity's name claim.
	DisplayName string
	// AvatarURL is the identity's picture claim.
	AvatarURL string
	// EmailVerified indicates whether the email claim was verified.
	EmailVerified bool
	// Providers lists the external provider tags linked to the identity.
	Providers []string
}

// Provider is the identity-provider contract the session core depends on.
// All blocking operations take a context; none impose their own timeout.
type Provider interface {
	// SignInWithPassword authenticates against the directory with an email
	// and password and makes the identity current.
	SignInWithPassword(ctx context.Context, email, secret string) (*Identity, error)

	// SignInInteractive attempts the interactive (popup-style) sign-in flow
	// for the given provider tag. Recoverable failures tell the caller to
	// fall back to SignInByRedirect.
	SignInInteractive(ctx context.Context, providerTag string) (*Identity, error)

	// SignInByRedirect initiates the full-page redirect flow. The handshake
	// state persists until CompleteRedirect reconciles it.
	SignInByRedirect(ctx context.Context, providerTag string) error

	// CompleteRedirect reconciles a pending redirect handshake. It returns
	// (nil, nil) when no redirect is pending and is safe to call repeatedly.
	CompleteRedirect(ctx context.Context) (*Identity, error)

	// SignOut clears the current identity and notifies observers.
	SignOut(ctx context.Context) error

	// Link attaches the provider tag to the current identity. Linking an
	// already linked provider is a no-op.
	Link(ctx context.Context, providerTag string) error

	// Unlink detaches the provider tag from the current identity. Unlinking
	// a provider that is not linked is a no-op.
	Unlink(ctx context.Context, providerTag string) error

	// CurrentIdentity returns the signed-in identity, or nil.
	CurrentIdentity() *Identity

	// OnIdentityChanged registers a callback for identity transitions. The
	// returned function unsubscribes it. Events are delivered one at a
	// time; a handler runs to completion before the next event.
	OnIdentityChanged(fn func(*Identity)) (unsubscribe func())

	// CustomClaims returns the custom claims attached to the current identity.
	CustomClaims(ctx context.Context) (map[string]any, error)
}
