package session

import "errors"

var (
	// ErrProviderNil is returned when the manager is constructed without a provider.
	ErrProviderNil = errors.New("identity provider is nil")

	// ErrProvisionerNil is returned when the manager is constructed without a provisioner.
	ErrProvisionerNil = errors.New("account provisioner is nil")

	// ErrHubNil is returned when the manager is constructed without a listener hub.
	ErrHubNil = errors.New("listener hub is nil")

	// ErrPendingApproval is returned when a sign-in resolves to an account
	// still awaiting approval. The provider session is torn down first.
	ErrPendingApproval = errors.New("account is pending approval")

	// ErrDenied is returned when a sign-in resolves to a denied or
	// deactivated account. The provider session is torn down first.
	ErrDenied = errors.New("account is denied or deactivated")

	// ErrSuperseded is returned when a sign-out landed while the sign-in
	// was in flight; the stale result is discarded.
	ErrSuperseded = errors.New("sign-in superseded by sign-out")
)
