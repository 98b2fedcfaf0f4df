package chat

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"time"
	"unicode/utf8"
)

// Identity is a registered account. Username is the stable key every other
// entity references; renaming an identity rewrites that key everywhere.
type Identity struct {
	Username     string    `db:"username"`
	PasswordHash string    `db:"password_hash"`
	Gender       string    `db:"gender"`
	Avatar       string    `db:"avatar_url"`
	Unlimited    bool      `db:"unlimited_progression"`
	CreatedAt    time.Time `db:"created_at"`
}

// Session maps an opaque token to an identity plus a snapshot of its credential
// hash. A session resolved after the hash changed must fail closed.
type Session struct {
	Token        string    `db:"token"`
	Username     string    `db:"username"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
}

// Presence is the live mapping of one websocket connection to an identity and
// its current room. It exists only while the connection is up.
type Presence struct {
	ConnectionID string
	Username     string
	RoomID       string
	Rank         string
	Gender       string
	Avatar       string
	Unlimited    bool
}

var usernamePattern = regexp.MustCompile(`^[\p{L}\p{N}_]+( [\p{L}\p{N}_]+)*$`)

// ValidateUsername checks that name is a well-formed identifier: 3 to 32 runes,
// letters, digits or underscores, single spaces allowed between words.
func ValidateUsername(name string) error {
	n := utf8.RuneCountInString(name)
	if n < 3 || n > 32 {
		return fmt.Errorf("username must be between 3 and 32 characters")
	}
	if !usernamePattern.MatchString(name) {
		return fmt.Errorf("username contains invalid characters")
	}
	return nil
}

// NewSessionToken returns an unguessable opaque token. Tokens are never reused;
// collisions at this entropy are not a practical concern.
func NewSessionToken() string {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failure means the process is in no state to hand out sessions
		panic(fmt.Sprintf("chat: session token entropy unavailable: %v", err))
	}
	return hex.EncodeToString(buf)
}
