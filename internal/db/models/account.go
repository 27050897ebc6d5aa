package models

import (
	"time"

	"github.com/guildhall-app/guildhall/internal/rbac"
)

// ApprovalStatus represents the membership approval state of an account.
// New accounts start as pending and must be approved before sign-in completes.
type ApprovalStatus string

const (
	// StatusPending indicates the account awaits approval by an admin.
	StatusPending ApprovalStatus = "pending"
	// StatusApproved indicates the account may sign in.
	StatusApproved ApprovalStatus = "approved"
	// StatusDenied indicates the account was rejected and may not sign in.
	StatusDenied ApprovalStatus = "denied"
)

// Account represents a portal member account.
// The account ID equals the identity provider's stable subject, so one
// external identity maps to exactly one account. The Permissions list is
// denormalized from the role for fast lookup and is recomputed on every
// role change; it is never edited independently.
type Account struct {
	// ID is the identity provider's stable subject for this principal.
	ID string `gorm:"primaryKey;size:128"`
	// Email is the account's email address.
	Email string `gorm:"size:255;not null;index"`
	// DisplayName is the member's display name.
	DisplayName string `gorm:"size:255"`
	// AvatarURL is the member's avatar image URL.
	AvatarURL string `gorm:"size:512"`
	// Group is the member group this account belongs to, if any.
	// Stored as member_group since "group" is reserved in SQL.
	Group string `gorm:"column:member_group;size:100;index"`
	// Role is the account's role in the portal hierarchy.
	Role rbac.Role `gorm:"type:varchar(32);not null"`
	// Permissions is the denormalized permission list derived from Role.
	Permissions []string `gorm:"serializer:json"`
	// Active indicates whether the account may be used at all.
	Active bool
	// Status is the membership approval state (pending, approved or denied).
	Status ApprovalStatus `gorm:"type:varchar(16);not null;default:'pending'"`
	// AuthProvider is the provider tag the account last authenticated with.
	AuthProvider string `gorm:"size:32"`
	// OwnerSlot is set on the bootstrap owner only. Its unique index
	// admits a single non-null value, so two racing first sign-ins cannot
	// both claim the owner role: the count inside the bootstrap
	// transaction is only a hint, this column is the authority.
	OwnerSlot *string `gorm:"column:owner_slot;size:16;uniqueIndex"`
	// Profile holds extensible member profile data.
	Profile map[string]any `gorm:"serializer:json"`
	// CreatedAt is the timestamp when the account was created (managed by GORM).
	CreatedAt time.Time
	// UpdatedAt is the timestamp when the account was last updated (managed by GORM).
	UpdatedAt time.Time
	// LastLoginAt is the timestamp of the last successful resolution.
	LastLoginAt *time.Time

	// Unpersisted marks an account built from identity claims while the
	// store was unreachable. It is never written to the database and must
	// be replaced by the next successful store resolution.
	Unpersisted bool `gorm:"-"`
}

// ownerSlotValue is the single value the owner_slot unique index admits.
const ownerSlotValue = "owner"

// OwnerSlotMarker returns the marker claiming the bootstrap owner slot.
func OwnerSlotMarker() *string {
	v := ownerSlotValue

	return &v
}

// TableName specifies the database table name for the Account model.
func (Account) TableName() string {
	return "accounts"
}

// Usable reports whether the account is active and approved.
func (a *Account) Usable() bool {
	return a.Active && a.Status == StatusApproved
}

// HasExplicitPermission reports whether the permission appears in the
// account's denormalized list.
func (a *Account) HasExplicitPermission(permission string) bool {
	for _, perm := range a.Permissions {
		if perm == permission {
			return true
		}
	}

	return false
}
