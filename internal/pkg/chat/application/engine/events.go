package engine

import (
	"encoding/json"
	"time"

	chat "github.com/yasser311511/chat-app2/internal/pkg/chat/application/domain"
)

// Outbound event frames. The engine encodes these itself because some
// broadcasts (sweep revocations, forced disconnects) originate outside any
// request handler.

type messageEvent struct {
	Type    string       `json:"type"`
	RoomID  string       `json:"room_id"`
	Message chat.Message `json:"message"`
}

type membersEvent struct {
	Type    string        `json:"type"`
	RoomID  string        `json:"room_id"`
	Members []chat.Member `json:"members"`
}

// RoomSummary is the per-room row in the rooms broadcast and REST listing.
type RoomSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Icon        string `json:"icon"`
	Description string `json:"description"`
	Protected   bool   `json:"protected,omitempty"`
	MemberCount int    `json:"member_count"`
}

type roomsEvent struct {
	Type  string        `json:"type"`
	Rooms []RoomSummary `json:"rooms"`
}

// roomClosedEvent tells the members of a deleted room they were vacated.
type roomClosedEvent struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
}

type rankChangeEvent struct {
	Type      string     `json:"type"`
	Username  string     `json:"username"`
	Rank      string     `json:"rank,omitempty"`
	Icon      string     `json:"icon,omitempty"`
	Issuer    string     `json:"issuer"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type levelUpEvent struct {
	Type   string `json:"type"`
	Level  int    `json:"level"`
	Points int    `json:"points"`
}

// moderationEvent is the personal notice delivered to a sanctioned identity.
type moderationEvent struct {
	Type      string     `json:"type"`
	Action    string     `json:"action"`
	RoomID    string     `json:"room_id,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	Issuer    string     `json:"issuer"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type avatarEvent struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

type renamedEvent struct {
	Type    string `json:"type"`
	OldName string `json:"old_name"`
	NewName string `json:"new_name"`
}

func encode(v any) []byte {
	payload, err := json.Marshal(v)
	if err != nil {
		// event structs only hold marshalable fields
		panic(err)
	}
	return payload
}
