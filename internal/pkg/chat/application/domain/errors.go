package chat

import "errors"

// Error taxonomy. Callers are expected to classify with errors.Is and map each
// group to its transport representation (auth, forbidden, not-found, conflict,
// transient).
var (
	// Authentication errors.
	ErrBadCredentials = errors.New("chat: invalid username or password")
	ErrSiteBanned     = errors.New("chat: identity is banned from the site")
	ErrSessionInvalid = errors.New("chat: session is invalid or expired")

	// Authorization errors.
	ErrForbidden     = errors.New("chat: insufficient authority for this action")
	ErrOwnerTarget   = errors.New("chat: the owner cannot be targeted by this action")
	ErrProtectedRoom = errors.New("chat: room is protected and cannot be deleted")

	// Not-found errors.
	ErrRoomNotFound     = errors.New("chat: room not found")
	ErrIdentityNotFound = errors.New("chat: identity not found")
	ErrRankNotFound     = errors.New("chat: rank not found")

	// Conflict errors.
	ErrAlreadyInRoom = errors.New("chat: identity already present in room")
	ErrNameTaken     = errors.New("chat: username already taken")
	ErrRoomExists    = errors.New("chat: room id already exists")

	// Send-path rejections.
	ErrMuted          = errors.New("chat: identity is muted")
	ErrBannedFromRoom = errors.New("chat: identity is banned from this room")

	// ErrStoreUnavailable marks a transient durable-store failure. Critical
	// paths abort on it; the history path logs and keeps going.
	ErrStoreUnavailable = errors.New("chat: durable store unavailable")
)
