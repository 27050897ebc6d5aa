package identity

import (
	"errors"
	"fmt"
)

// Provider error codes. The code is kept verbatim from the underlying
// provider as a diagnostic; behavior depends only on the class a code
// falls into.
const (
	// CodePopupBlocked indicates the interactive sign-in window was blocked.
	CodePopupBlocked = "popup-blocked"
	// CodePopupClosedByUser indicates the user dismissed the interactive window.
	CodePopupClosedByUser = "popup-closed-by-user"
	// CodeCancelledPopupRequest indicates a concurrent sign-in superseded this one.
	CodeCancelledPopupRequest = "cancelled-popup-request"
	// CodeNetworkRequestFailed indicates a transient network failure at the provider.
	CodeNetworkRequestFailed = "network-request-failed"

	// CodeOperationNotAllowed indicates the provider or method is not enabled.
	CodeOperationNotAllowed = "operation-not-allowed"
	// CodeCredentialCollision indicates the credential is already bound to a
	// different provider's account.
	CodeCredentialCollision = "account-exists-with-different-credential"
	// CodeTooManyRequests indicates the provider rate limited the caller.
	CodeTooManyRequests = "too-many-requests"
	// CodeInvalidCredential indicates a wrong password or unusable credential.
	CodeInvalidCredential = "invalid-credential"
	// CodeUserNotFound indicates no identity exists for the given handle.
	CodeUserNotFound = "user-not-found"
)

// recoverableCodes is the class of failures answered with the redirect
// fallback instead of being surfaced to the caller.
var recoverableCodes = map[string]bool{
	CodePopupBlocked:          true,
	CodePopupClosedByUser:     true,
	CodeCancelledPopupRequest: true,
	CodeNetworkRequestFailed:  true,
}

// ProviderError is a failed identity-provider call. Code is the provider's
// raw error code and is retained only as a diagnostic.
type ProviderError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("provider error %s: %s", e.Code, e.Message)
	}

	return fmt.Sprintf("provider error %s", e.Code)
}

// Unwrap returns the underlying cause, if any.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Recoverable reports whether the failure may be answered with the
// redirect fallback.
func (e *ProviderError) Recoverable() bool {
	return recoverableCodes[e.Code]
}

// NewProviderError creates a ProviderError with the given code and message.
func NewProviderError(code, message string) *ProviderError {
	return &ProviderError{Code: code, Message: message}
}

// WrapProviderError creates a ProviderError retaining the underlying cause.
func WrapProviderError(code, message string, err error) *ProviderError {
	return &ProviderError{Code: code, Message: message, Err: err}
}

// AsProviderError unwraps err to a *ProviderError if there is one.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}

	return nil, false
}

// IsRecoverable reports whether err is a recoverable provider error.
func IsRecoverable(err error) bool {
	pe, ok := AsProviderError(err)
	return ok && pe.Recoverable()
}

var (
	// ErrNoIDToken is returned when the OAuth2 token response doesn't contain an ID token.
	// This typically indicates a misconfigured OIDC provider or an incomplete flow.
	ErrNoIDToken = errors.New("no id_token in token response")

	// ErrNoCurrentIdentity is returned when an operation needs a signed-in
	// identity and there is none.
	ErrNoCurrentIdentity = errors.New("no current identity")

	// ErrNonceMismatch is returned when the ID token's nonce does not match
	// the handshake that requested it.
	ErrNonceMismatch = errors.New("id token nonce mismatch")

	// ErrNoPendingRedirect is returned when a redirect callback arrives
	// with no handshake waiting for it.
	ErrNoPendingRedirect = errors.New("no pending redirect handshake")

	// ErrStateMismatch is returned when a redirect callback's state token
	// does not match the pending handshake.
	ErrStateMismatch = errors.New("redirect state token mismatch")

	// ErrEmailAlreadyInUse is returned when creating an identity with an
	// email that already exists in the directory.
	ErrEmailAlreadyInUse = errors.New("email already in use")
)
