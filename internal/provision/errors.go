package provision

import "errors"

var (
	// ErrStoreNil is returned when the provisioner is constructed without a store.
	ErrStoreNil = errors.New("account store is nil")

	// ErrNilIdentity is returned when resolution is attempted without an identity.
	ErrNilIdentity = errors.New("identity is nil")

	// ErrOwnerAlreadyExists is returned when an owner account is created
	// while one already exists.
	ErrOwnerAlreadyExists = errors.New("owner account already exists")

	// ErrNoPendingProvision is returned by a retry when no earlier
	// resolution fell back to an unpersisted account.
	ErrNoPendingProvision = errors.New("no provisioning pending")

	// ErrDirectoryNil is returned when owner creation is attempted without
	// an identity directory.
	ErrDirectoryNil = errors.New("identity directory is nil")
)
