package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateUsername(t *testing.T) {
	valid := []string{"bob", "alice_99", "Jean Pierre", "用户名三", "a_b c_d"}
	for _, name := range valid {
		assert.NoError(t, ValidateUsername(name), name)
	}

	invalid := []string{
		"ab",          // too short
		"",            // empty
		" leading",    // leading space
		"trailing ",   // trailing space
		"two  spaces", // consecutive spaces
		"bad!chars",   // punctuation
		"semi;colon",  // punctuation
		"waaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaay_too_long_for_a_username",
	}
	for _, name := range invalid {
		assert.Error(t, ValidateUsername(name), name)
	}
}

func TestNewSessionTokenIsOpaqueAndUnique(t *testing.T) {
	a := NewSessionToken()
	b := NewSessionToken()
	assert.Len(t, a, 48) // 24 random bytes, hex encoded
	assert.NotEqual(t, a, b)
}
