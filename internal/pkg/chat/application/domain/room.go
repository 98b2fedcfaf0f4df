package chat

import (
	"fmt"
	"regexp"
)

// Member is one connection present in a room, with the display attributes the
// membership broadcast carries.
type Member struct {
	ConnectionID string `json:"connection_id"`
	Username     string `json:"username"`
	Rank         string `json:"rank,omitempty"`
	Gender       string `json:"gender,omitempty"`
	Avatar       string `json:"avatar,omitempty"`
}

// Room is a chat room and its ordered membership list. The entity persists
// independent of membership count; protected rooms cannot be deleted.
type Room struct {
	ID          string
	Name        string
	Icon        string
	Description string
	Protected   bool

	members []Member
}

// Members returns the membership list in join order. The slice is a copy.
func (r *Room) Members() []Member {
	out := make([]Member, len(r.members))
	copy(out, r.members)
	return out
}

func (r *Room) MemberCount() int { return len(r.members) }

// HasIdentity reports whether any present connection belongs to username.
func (r *Room) HasIdentity(username string) bool {
	for _, m := range r.members {
		if m.Username == username {
			return true
		}
	}
	return false
}

// Add appends a member. It rejects a duplicate connection id outright and a
// duplicate identity with ErrAlreadyInRoom.
func (r *Room) Add(m Member) error {
	for _, existing := range r.members {
		if existing.ConnectionID == m.ConnectionID {
			return ErrAlreadyInRoom
		}
	}
	if r.HasIdentity(m.Username) {
		return ErrAlreadyInRoom
	}
	r.members = append(r.members, m)
	return nil
}

// RemoveConnection drops the member with the given connection id, preserving
// order, and reports whether it was present.
func (r *Room) RemoveConnection(connID string) bool {
	for i, m := range r.members {
		if m.ConnectionID == connID {
			r.members = append(r.members[:i], r.members[i+1:]...)
			return true
		}
	}
	return false
}

// UpdateMembers applies fn to every member belonging to username, used when a
// rank, avatar or name changes while the identity is online.
func (r *Room) UpdateMembers(username string, fn func(*Member)) {
	for i := range r.members {
		if r.members[i].Username == username {
			fn(&r.members[i])
		}
	}
}

var roomIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{1,31}$`)

// ValidateRoomID checks a room id slug: lowercase alphanumerics plus hyphen
// and underscore, 2 to 32 characters, starting alphanumeric.
func ValidateRoomID(id string) error {
	if !roomIDPattern.MatchString(id) {
		return fmt.Errorf("invalid room id %q", id)
	}
	return nil
}

// DefaultRooms is the bootstrap room set. The appearance and staff rooms are
// protected.
func DefaultRooms() []*Room {
	return []*Room{
		{ID: "general", Name: "General", Icon: "💬", Description: "General discussion"},
		{ID: "tech", Name: "Technology", Icon: "💻", Description: "Tech and programming talk"},
		{ID: "sports", Name: "Sports", Icon: "⚽", Description: "Sports news and discussion"},
		{ID: "games", Name: "Games", Icon: "🎮", Description: "Gaming discussion"},
		{ID: "cooking", Name: "Cooking", Icon: "👨‍🍳", Description: "Recipes and cooking tips"},
		{ID: "travel", Name: "Travel", Icon: "✈️", Description: "Travel experiences and advice"},
		{ID: "books", Name: "Books", Icon: "📚", Description: "Books and reading"},
		{ID: "movies", Name: "Movies", Icon: "🎬", Description: "Movie reviews and discussion"},
		{ID: "music", Name: "Music", Icon: "🎵", Description: "Music sharing and discussion"},
		{ID: "appearance", Name: "Appearance", Icon: "🎨", Description: "Profile and avatar customization", Protected: true},
		{ID: "staff", Name: "Staff", Icon: "👑", Description: "Staff and moderator room", Protected: true},
	}
}
