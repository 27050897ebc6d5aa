package models

import (
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/rs/zerolog/log"
)

// IdentityRecord is the identity directory's user record: the durable side
// of an authenticated external identity. It carries only identity-provider
// claims; authorization data lives on the Account.
type IdentityRecord struct {
	// UID is the stable subject identifying this principal.
	UID string `gorm:"primaryKey;size:128"`
	// Email is the identity's email address.
	Email string `gorm:"size:255;not null;uniqueIndex"`
	// PasswordHash is the Argon2id hash for password sign-in (empty for
	// identities that only authenticate through external providers).
	PasswordHash string `gorm:"size:255"`
	// DisplayName is the identity's display name claim.
	DisplayName string `gorm:"size:255"`
	// AvatarURL is the identity's avatar claim.
	AvatarURL string `gorm:"size:512"`
	// EmailVerified indicates whether the email address was verified.
	EmailVerified bool
	// Providers is the list of linked external provider tags.
	Providers []string `gorm:"serializer:json"`
	// Claims holds additional custom claims attached to the identity.
	Claims map[string]any `gorm:"serializer:json"`
	// CreatedAt is the timestamp when the record was created (managed by GORM).
	CreatedAt time.Time
	// UpdatedAt is the timestamp when the record was last updated (managed by GORM).
	UpdatedAt time.Time
}

// TableName specifies the database table name for the IdentityRecord model.
func (IdentityRecord) TableName() string {
	return "identity_records"
}

// HashPassword hashes a plaintext password using the Argon2id algorithm
// with the default parameters. Use it when creating or updating password
// credentials on an identity record.
func HashPassword(password string) string {
	hashedPassword, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		log.Fatal().Msgf("failed to hash password: %v", err)
	}

	return hashedPassword
}

// VerifyPassword verifies a plaintext password against the record's stored
// hash using constant-time comparison.
func (r *IdentityRecord) VerifyPassword(password string) bool {
	if r.PasswordHash == "" {
		return false
	}

	match, err := argon2id.ComparePasswordAndHash(password, r.PasswordHash)
	if err != nil {
		log.Error().Msgf("failed to verify password: %v", err)
		return false
	}

	return match
}

// HasProvider reports whether the provider tag is linked to this identity.
func (r *IdentityRecord) HasProvider(tag string) bool {
	for _, p := range r.Providers {
		if p == tag {
			return true
		}
	}

	return false
}
