package authz

import "errors"

var (
	// ErrHubNil is returned when the gate is constructed without a session hub.
	ErrHubNil = errors.New("session hub is nil")

	// ErrStoreNil is returned when the gate is constructed without a store.
	ErrStoreNil = errors.New("account store is nil")

	// ErrInsufficientPermission is returned when the acting account lacks
	// the permission or role an operation requires. It is always raised
	// before any write happens.
	ErrInsufficientPermission = errors.New("insufficient permission")

	// ErrNothingToImport is returned when an import is called without rows.
	ErrNothingToImport = errors.New("nothing to import")
)
