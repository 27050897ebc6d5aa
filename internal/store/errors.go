package store

import "errors"

var (
	// ErrDBNil is returned when the store is constructed without a database.
	ErrDBNil = errors.New("database is nil")

	// ErrAccountNotFound is returned when no account exists for the given id.
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountExists is returned when creating an account whose id is taken.
	ErrAccountExists = errors.New("account already exists")

	// ErrIdentityAlreadyLinked is returned when a (provider, subject) pair
	// is already claimed by a different account.
	ErrIdentityAlreadyLinked = errors.New("identity already linked to another account")
)
