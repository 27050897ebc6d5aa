package models

import "time"

// RedirectState persists a pending redirect sign-in handshake. It is the
// only session state that survives a process restart and is consumed
// exactly once when the redirect flow completes.
type RedirectState struct {
	// Key identifies the pending handshake (one per process owner).
	// Stored as state_key since "key" is reserved in SQL.
	Key string `gorm:"column:state_key;primaryKey;size:64"`
	// Provider is the external provider tag the redirect targets.
	Provider string `gorm:"size:32;not null"`
	// State is the opaque anti-forgery token round-tripped via the browser.
	State string `gorm:"size:64;not null"`
	// Nonce binds the eventual ID token to this handshake.
	Nonce string `gorm:"size:64"`
	// Code is the authorization code delivered by the provider's callback;
	// empty until the browser round-trip comes back.
	Code string `gorm:"size:512"`
	// CreatedAt is the timestamp when the redirect was initiated (managed by GORM).
	CreatedAt time.Time
}

// TableName specifies the database table name for the RedirectState model.
func (RedirectState) TableName() string {
	return "redirect_states"
}
