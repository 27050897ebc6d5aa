package models

import "time"

// LinkedIdentity represents a secondary external identity attached to an
// account. The unique index over (Provider, Subject) is the authority that
// prevents two accounts from claiming the same external identity; the
// application relies on the constraint, never on in-process state.
type LinkedIdentity struct {
	// ID is the unique identifier for the link row.
	ID uint64 `gorm:"primaryKey"`
	// AccountID is the account that owns this linked identity.
	AccountID string `gorm:"size:128;not null;index"`
	// Provider is the external provider tag (e.g. "google", "github").
	Provider string `gorm:"size:32;not null;uniqueIndex:idx_provider_subject"`
	// Subject is the provider's stable subject for the identity.
	Subject string `gorm:"size:128;not null;uniqueIndex:idx_provider_subject"`
	// Account is the owning account (enforced with a foreign key constraint).
	Account Account `gorm:"foreignKey:AccountID;references:ID;constraint:OnDelete:CASCADE"`
	// CreatedAt is the timestamp when the identity was linked (managed by GORM).
	CreatedAt time.Time
}

// TableName specifies the database table name for the LinkedIdentity model.
func (LinkedIdentity) TableName() string {
	return "linked_identities"
}
