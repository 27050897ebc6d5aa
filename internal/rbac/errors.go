package rbac

import "errors"

var (
	// ErrUnknownRole is returned when a role is not part of the closed role set.
	// This indicates a configuration or programming error, never user input.
	ErrUnknownRole = errors.New("unknown role")

	// ErrUnknownPermission is returned when a permission tag is missing from
	// the minimum-role table. Permission tags are compile-time constants, so
	// this also indicates a programming error.
	ErrUnknownPermission = errors.New("unknown permission")
)
