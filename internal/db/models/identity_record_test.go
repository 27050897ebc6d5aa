package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHashAndVerify(t *testing.T) {
	hash := HashPassword("s3cret!")
	require.NotEmpty(t, hash)
	assert.NotEqual(t, "s3cret!", hash, "hash must not store the plaintext")

	record := IdentityRecord{UID: "uid-1", Email: "one@example.com", PasswordHash: hash}

	assert.True(t, record.VerifyPassword("s3cret!"))
	assert.False(t, record.VerifyPassword("wrong"))
	assert.False(t, record.VerifyPassword(""))
}

func TestVerifyPasswordWithoutHash(t *testing.T) {
	record := IdentityRecord{UID: "uid-2", Email: "two@example.com"}

	// provider-only identities carry no hash and never match
	assert.False(t, record.VerifyPassword("anything"))
}

func TestHasProvider(t *testing.T) {
	record := IdentityRecord{
		UID:       "uid-3",
		Providers: []string{"google.com", "facebook.com"},
	}

	assert.True(t, record.HasProvider("google.com"))
	assert.True(t, record.HasProvider("facebook.com"))
	assert.False(t, record.HasProvider("twitter.com"))

	empty := IdentityRecord{UID: "uid-4"}
	assert.False(t, empty.HasProvider("google.com"))
}
