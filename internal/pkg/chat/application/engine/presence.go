package engine

import (
	"context"
	"fmt"

	chat "github.com/yasser311511/chat-app2/internal/pkg/chat/application/domain"
)

// JoinResult is what a successful join hands back to the connection: the
// membership snapshot and the room's recent history for backfill.
type JoinResult struct {
	RoomID  string
	Members []chat.Member
	History []chat.Message
}

// Join moves a connection into a room. The connection is atomically removed
// from its previous room (if any); the join fails when the room is unknown,
// the identity is banned from it (or the site), or the identity already
// occupies a slot in the target room through another connection.
//
// Presence is ephemeral, so memory is updated first and the join notice is
// persisted through the queue; a crash loses nothing durable.
func (e *Engine) Join(ctx context.Context, connID, username, roomID string) (*JoinResult, error) {
	unlock := e.lockIdentity(username)
	defer unlock()

	identity, err := e.store.GetIdentity(ctx, username)
	if err != nil {
		return nil, storeErr(err)
	}

	e.mu.Lock()
	room, ok := e.rooms[roomID]
	if !ok {
		e.mu.Unlock()
		return nil, chat.ErrRoomNotFound
	}
	if e.mod.IsSiteBanned(username) {
		e.mu.Unlock()
		return nil, chat.ErrSiteBanned
	}
	if e.mod.IsRoomBanned(roomID, username) {
		e.mu.Unlock()
		return nil, chat.ErrBannedFromRoom
	}
	if room.HasIdentity(username) {
		e.mu.Unlock()
		return nil, chat.ErrAlreadyInRoom
	}

	// pull the connection out of its previous room before inserting
	previousRoom := e.removeFromRoomLocked(connID)

	member := chat.Member{
		ConnectionID: connID,
		Username:     username,
		Rank:         e.rankOf(username),
		Gender:       identity.Gender,
		Avatar:       identity.Avatar,
	}
	if err := room.Add(member); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	e.presence[connID] = &chat.Presence{
		ConnectionID: connID,
		Username:     username,
		RoomID:       roomID,
		Rank:         member.Rank,
		Gender:       member.Gender,
		Avatar:       member.Avatar,
		Unlimited:    identity.Unlimited,
	}

	now := e.now()
	notice := chat.NewSystemMessage(roomID, fmt.Sprintf("%s joined the room", username), now)
	e.history[roomID].Append(notice)
	members := room.Members()
	connIDs := memberConnIDs(members)
	recent := e.history[roomID].Recent(50)
	e.mu.Unlock()

	if previousRoom != "" {
		e.members.mark(previousRoom)
	}
	e.members.mark(roomID)
	e.bc.Deliver(connIDs, encode(messageEvent{Type: "message", RoomID: roomID, Message: notice}))
	e.persistMessage(ctx, notice)

	return &JoinResult{RoomID: roomID, Members: members, History: recent}, nil
}

// Leave removes the connection from its current room, leaving the connection
// itself attached.
func (e *Engine) Leave(ctx context.Context, connID string) {
	e.departRoom(ctx, connID, false)
}

// Disconnect is treated identically to an explicit leave, using the last
// known room, and additionally drops the Presence entry.
func (e *Engine) Disconnect(ctx context.Context, connID string) {
	e.departRoom(ctx, connID, true)
}

func (e *Engine) departRoom(ctx context.Context, connID string, drop bool) {
	e.mu.Lock()
	p, ok := e.presence[connID]
	if !ok {
		e.mu.Unlock()
		return
	}
	roomID := p.RoomID
	username := p.Username
	if drop {
		delete(e.presence, connID)
	} else {
		p.RoomID = ""
	}

	var notice chat.Message
	var connIDs []string
	if roomID != "" {
		if room, ok := e.rooms[roomID]; ok && room.RemoveConnection(connID) {
			notice = chat.NewSystemMessage(roomID, fmt.Sprintf("%s left the room", username), e.now())
			e.history[roomID].Append(notice)
			connIDs = memberConnIDs(room.Members())
		}
	}
	e.mu.Unlock()

	if notice.ID != "" {
		e.members.mark(roomID)
		e.bc.Deliver(connIDs, encode(messageEvent{Type: "message", RoomID: roomID, Message: notice}))
		e.persistMessage(ctx, notice)
	}
}

// removeFromRoomLocked detaches connID from whatever room holds it and
// returns that room's id, or "". Caller holds e.mu.
func (e *Engine) removeFromRoomLocked(connID string) string {
	p, ok := e.presence[connID]
	if !ok || p.RoomID == "" {
		return ""
	}
	roomID := p.RoomID
	if room, ok := e.rooms[roomID]; ok {
		room.RemoveConnection(connID)
	}
	p.RoomID = ""
	return roomID
}

// MembersOf returns the ordered membership snapshot for a room.
func (e *Engine) MembersOf(roomID string) ([]chat.Member, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	room, ok := e.rooms[roomID]
	if !ok {
		return nil, chat.ErrRoomNotFound
	}
	return room.Members(), nil
}

// Rooms returns the room listing with member counts, in bootstrap order.
func (e *Engine) Rooms() []RoomSummary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.roomSummariesLocked()
}

// PresenceOf returns the live presence for a connection, if any.
func (e *Engine) PresenceOf(connID string) (chat.Presence, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.presence[connID]; ok {
		return *p, true
	}
	return chat.Presence{}, false
}

func memberConnIDs(members []chat.Member) []string {
	out := make([]string, len(members))
	for i, m := range members {
		out[i] = m.ConnectionID
	}
	return out
}
