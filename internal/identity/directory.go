package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/guildhall-app/guildhall/internal/db/models"
	"github.com/guildhall-app/guildhall/internal/uniuri"
)

// redirectKey identifies the single pending redirect handshake a process
// owner may have at a time.
const redirectKey = "current"

// CodeSource obtains an authorization code for an interactive sign-in
// attempt, typically by driving a browser window to authURL. A nil source
// means no interactive channel is available.
type CodeSource func(ctx context.Context, authURL string) (code string, err error)

// RedirectStore persists redirect handshake state across process restarts.
// Implemented by the account store.
type RedirectStore interface {
	SaveRedirect(ctx context.Context, state *models.RedirectState) error
	GetRedirect(ctx context.Context, key string) (*models.RedirectState, error)
	AttachRedirectCode(ctx context.Context, key, code string) error
	DeleteRedirect(ctx context.Context, key string) error
}

type dirListener struct {
	id int
	fn func(*Identity)
}

// Directory is the gorm-backed identity directory. It owns the process's
// current identity and implements the Provider contract over identity
// records plus the OIDC gateway.
type Directory struct {
	db        *gorm.DB
	gateway   *Gateway
	redirects RedirectStore

	mu        sync.Mutex // guards code, current, listeners, nextID
	code      CodeSource
	emitMu    sync.Mutex // serializes identity-changed delivery
	current   *Identity
	listeners []dirListener
	nextID    int
}

// NewDirectory creates a Directory over the given database, OIDC gateway
// and redirect store. The gateway may be nil when no external provider is
// enabled.
func NewDirectory(db *gorm.DB, gateway *Gateway, redirects RedirectStore) *Directory {
	return &Directory{
		db:        db,
		gateway:   gateway,
		redirects: redirects,
	}
}

// SetCodeSource wires the interactive sign-in channel. Without one, every
// interactive attempt fails recoverably and callers fall back to redirect.
func (d *Directory) SetCodeSource(source CodeSource) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.code = source
}

func (d *Directory) codeSource() CodeSource {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.code
}

// SignInWithPassword authenticates an identity record by email and password.
func (d *Directory) SignInWithPassword(ctx context.Context, email, secret string) (*Identity, error) {
	var rec models.IdentityRecord

	err := d.db.WithContext(ctx).Where("email = ?", email).First(&rec).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NewProviderError(CodeUserNotFound, "no identity for email")
	}

	if err != nil {
		return nil, fmt.Errorf("failed to query identity record: %w", err)
	}

	if !rec.VerifyPassword(secret) {
		return nil, NewProviderError(CodeInvalidCredential, "wrong password")
	}

	identity := identityFromRecord(&rec)
	d.setCurrent(identity)

	return identity, nil
}

// SignInInteractive runs the interactive (popup-style) flow for an
// external provider. Recoverable failures mean "try the redirect flow".
func (d *Directory) SignInInteractive(ctx context.Context, providerTag string) (*Identity, error) {
	source := d.codeSource()

	if !d.gateway.Configured(providerTag) {
		return nil, NewProviderError(CodeOperationNotAllowed,
			fmt.Sprintf("provider %q is not enabled", providerTag))
	}

	if source == nil {
		return nil, NewProviderError(CodePopupBlocked, "no interactive channel available")
	}

	state := uniuri.New()
	nonce := uniuri.New()

	authURL, err := d.gateway.AuthCodeURL(providerTag, state, nonce)
	if err != nil {
		return nil, err
	}

	code, err := source(ctx, authURL)
	if err != nil {
		if _, ok := AsProviderError(err); ok {
			return nil, err
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, WrapProviderError(CodeCancelledPopupRequest, "interactive sign-in cancelled", err)
		}

		return nil, WrapProviderError(CodeNetworkRequestFailed, "interactive sign-in failed", err)
	}

	claims, err := d.gateway.Exchange(ctx, providerTag, code, nonce)
	if err != nil {
		return nil, err
	}

	return d.adoptExternal(ctx, providerTag, claims)
}

// SignInByRedirect initiates the full-page redirect flow. The handshake is
// persisted so CompleteRedirect can reconcile it after the round-trip,
// including in a later process.
func (d *Directory) SignInByRedirect(ctx context.Context, providerTag string) error {
	if !d.gateway.Configured(providerTag) {
		return NewProviderError(CodeOperationNotAllowed,
			fmt.Sprintf("provider %q is not enabled", providerTag))
	}

	state := uniuri.New()
	nonce := uniuri.New()

	authURL, err := d.gateway.AuthCodeURL(providerTag, state, nonce)
	if err != nil {
		return err
	}

	err = d.redirects.SaveRedirect(ctx, &models.RedirectState{
		Key:       redirectKey,
		Provider:  providerTag,
		State:     state,
		Nonce:     nonce,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to persist redirect state: %w", err)
	}

	log.Info().Str("provider", providerTag).Str("auth_url", authURL).
		Msg("redirect sign-in initiated")

	return nil
}

// HandleRedirectCallback records the authorization code delivered by the
// provider's callback, after checking it against the pending handshake.
func (d *Directory) HandleRedirectCallback(ctx context.Context, state, code string) error {
	pending, err := d.redirects.GetRedirect(ctx, redirectKey)
	if err != nil {
		return fmt.Errorf("failed to load redirect state: %w", err)
	}

	if pending == nil {
		return ErrNoPendingRedirect
	}

	if pending.State != state {
		return ErrStateMismatch
	}

	if err := d.redirects.AttachRedirectCode(ctx, redirectKey, code); err != nil {
		return fmt.Errorf("failed to store redirect code: %w", err)
	}

	return nil
}

// CompleteRedirect reconciles a pending redirect handshake. It returns
// (nil, nil) when nothing is pending or the browser round-trip has not
// come back yet; calling it again in either case is a no-op.
func (d *Directory) CompleteRedirect(ctx context.Context) (*Identity, error) {
	pending, err := d.redirects.GetRedirect(ctx, redirectKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load redirect state: %w", err)
	}

	if pending == nil || pending.Code == "" {
		return nil, nil
	}

	claims, err := d.gateway.Exchange(ctx, pending.Provider, pending.Code, pending.Nonce)
	if err != nil {
		// A consumed or rejected code can never succeed again; drop the
		// handshake so the next call is a clean no-op.
		if !IsRecoverable(err) {
			if delErr := d.redirects.DeleteRedirect(ctx, redirectKey); delErr != nil {
				log.Error().Err(delErr).Msg("failed to discard dead redirect state")
			}
		}

		return nil, err
	}

	if err := d.redirects.DeleteRedirect(ctx, redirectKey); err != nil {
		return nil, fmt.Errorf("failed to consume redirect state: %w", err)
	}

	return d.adoptExternal(ctx, pending.Provider, claims)
}

// SignOut clears the current identity and notifies observers.
func (d *Directory) SignOut(_ context.Context) error {
	d.setCurrent(nil)
	return nil
}

// Link attaches the provider tag to the current identity's record.
// Linking an already linked provider is a no-op, not an error.
func (d *Directory) Link(ctx context.Context, providerTag string) error {
	current := d.CurrentIdentity()
	if current == nil {
		return ErrNoCurrentIdentity
	}

	var rec models.IdentityRecord
	if err := d.db.WithContext(ctx).First(&rec, "uid = ?", current.ID).Error; err != nil {
		return fmt.Errorf("failed to load identity record: %w", err)
	}

	if rec.HasProvider(providerTag) {
		return nil
	}

	rec.Providers = append(rec.Providers, providerTag)
	rec.UpdatedAt = time.Now()

	if err := d.db.WithContext(ctx).Save(&rec).Error; err != nil {
		return fmt.Errorf("failed to link provider: %w", err)
	}

	d.setCurrent(identityFromRecord(&rec))

	return nil
}

// Unlink detaches the provider tag from the current identity's record.
// Unlinking a provider that is not linked is a no-op, not an error.
func (d *Directory) Unlink(ctx context.Context, providerTag string) error {
	current := d.CurrentIdentity()
	if current == nil {
		return ErrNoCurrentIdentity
	}

	var rec models.IdentityRecord
	if err := d.db.WithContext(ctx).First(&rec, "uid = ?", current.ID).Error; err != nil {
		return fmt.Errorf("failed to load identity record: %w", err)
	}

	if !rec.HasProvider(providerTag) {
		return nil
	}

	kept := make([]string, 0, len(rec.Providers)-1)
	for _, tag := range rec.Providers {
		if tag != providerTag {
			kept = append(kept, tag)
		}
	}

	rec.Providers = kept
	rec.UpdatedAt = time.Now()

	if err := d.db.WithContext(ctx).Save(&rec).Error; err != nil {
		return fmt.Errorf("failed to unlink provider: %w", err)
	}

	d.setCurrent(identityFromRecord(&rec))

	return nil
}

// CurrentIdentity returns a copy of the signed-in identity, or nil.
func (d *Directory) CurrentIdentity() *Identity {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.current == nil {
		return nil
	}

	cp := *d.current
	cp.Providers = append([]string(nil), d.current.Providers...)

	return &cp
}

// OnIdentityChanged registers a callback invoked on every identity
// transition. The returned function unsubscribes it.
func (d *Directory) OnIdentityChanged(fn func(*Identity)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	id := d.nextID
	d.listeners = append(d.listeners, dirListener{id: id, fn: fn})

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()

		for i, l := range d.listeners {
			if l.id == id {
				d.listeners = append(d.listeners[:i], d.listeners[i+1:]...)
				return
			}
		}
	}
}

// CustomClaims returns the custom claims stored on the current identity.
func (d *Directory) CustomClaims(ctx context.Context) (map[string]any, error) {
	current := d.CurrentIdentity()
	if current == nil {
		return nil, ErrNoCurrentIdentity
	}

	var rec models.IdentityRecord
	if err := d.db.WithContext(ctx).First(&rec, "uid = ?", current.ID).Error; err != nil {
		return nil, fmt.Errorf("failed to load identity record: %w", err)
	}

	return rec.Claims, nil
}

// CreateUser creates a password identity in the directory. Used by the
// administrative owner-bootstrap path.
func (d *Directory) CreateUser(ctx context.Context, email, secret, displayName string) (*Identity, error) {
	var existing models.IdentityRecord

	err := d.db.WithContext(ctx).Where("email = ?", email).First(&existing).Error
	if err == nil {
		return nil, ErrEmailAlreadyInUse
	}

	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check existing identity: %w", err)
	}

	rec := models.IdentityRecord{
		UID:          uuid.NewString(),
		Email:        email,
		PasswordHash: models.HashPassword(secret),
		DisplayName:  displayName,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	if err := d.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return nil, fmt.Errorf("failed to create identity record: %w", err)
	}

	return identityFromRecord(&rec), nil
}

// adoptExternal finds or creates the identity record for verified external
// claims and makes it the current identity.
func (d *Directory) adoptExternal(ctx context.Context, providerTag string, claims *ExternalClaims) (*Identity, error) {
	var rec models.IdentityRecord

	err := d.db.WithContext(ctx).First(&rec, "uid = ?", claims.Subject).Error

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		// The email may already belong to a different identity; that is a
		// collision the user must resolve with their original method.
		var byEmail models.IdentityRecord
		if emailErr := d.db.WithContext(ctx).Where("email = ?", claims.Email).
			First(&byEmail).Error; emailErr == nil {
			return nil, NewProviderError(CodeCredentialCollision,
				"email already in use by a different sign-in method")
		}

		rec = models.IdentityRecord{
			UID:           claims.Subject,
			Email:         claims.Email,
			DisplayName:   claims.Name,
			AvatarURL:     claims.Picture,
			EmailVerified: claims.EmailVerified,
			Providers:     []string{providerTag},
			CreatedAt:     time.Now(),
			UpdatedAt:     time.Now(),
		}

		if err = d.db.WithContext(ctx).Create(&rec).Error; err != nil {
			return nil, fmt.Errorf("failed to create identity record: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to query identity record: %w", err)
	default:
		rec.Email = claims.Email
		rec.DisplayName = claims.Name
		rec.AvatarURL = claims.Picture
		rec.EmailVerified = claims.EmailVerified
		rec.UpdatedAt = time.Now()

		if !rec.HasProvider(providerTag) {
			rec.Providers = append(rec.Providers, providerTag)
		}

		if err = d.db.WithContext(ctx).Save(&rec).Error; err != nil {
			return nil, fmt.Errorf("failed to update identity record: %w", err)
		}
	}

	identity := identityFromRecord(&rec)
	d.setCurrent(identity)

	return identity, nil
}

// setCurrent swaps the current identity and delivers the change to every
// listener. Delivery is serialized: one event's handlers run to completion
// before the next event is dispatched.
func (d *Directory) setCurrent(identity *Identity) {
	d.mu.Lock()
	d.current = identity
	snapshot := append([]dirListener(nil), d.listeners...)
	d.mu.Unlock()

	d.emitMu.Lock()
	defer d.emitMu.Unlock()

	for _, l := range snapshot {
		l.fn(identity)
	}
}

func identityFromRecord(rec *models.IdentityRecord) *Identity {
	return &Identity{
		ID:            rec.UID,
		Email:         rec.Email,
		DisplayName:   rec.DisplayName,
		AvatarURL:     rec.AvatarURL,
		EmailVerified: rec.EmailVerified,
		Providers:     append([]string(nil), rec.Providers...),
	}
}
