package engine

import (
	"context"

	chat "github.com/yasser311511/chat-app2/internal/pkg/chat/application/domain"
)

// requireOwner gates room administration, which only the top authority holds.
func (e *Engine) requireOwner(actor string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.hierarchy.IsOwner(e.rankOf(actor)) {
		return chat.ErrForbidden
	}
	return nil
}

// CreateRoom adds a room to the registry. Rooms created at runtime are always
// unprotected; the protected flag is reserved for the bootstrap set.
func (e *Engine) CreateRoom(ctx context.Context, actor string, room chat.Room) error {
	if err := chat.ValidateRoomID(room.ID); err != nil {
		return err
	}
	if room.Name == "" {
		room.Name = room.ID
	}
	room.Protected = false
	if err := e.requireOwner(actor); err != nil {
		return err
	}

	e.mu.Lock()
	_, exists := e.rooms[room.ID]
	e.mu.Unlock()
	if exists {
		return chat.ErrRoomExists
	}

	if err := e.store.InsertRoom(ctx, room); err != nil {
		return storeErr(err)
	}

	e.mu.Lock()
	if _, dup := e.rooms[room.ID]; !dup {
		r := room
		e.rooms[room.ID] = &r
		e.roomOrder = append(e.roomOrder, room.ID)
		e.history[room.ID] = chat.NewHistory(e.cfg.HistoryCapacity)
	}
	summaries := e.roomSummariesLocked()
	e.mu.Unlock()

	e.bc.DeliverAll(encode(roomsEvent{Type: "rooms", Rooms: summaries}))
	e.audit(ctx, chat.AuditEvent{
		Actor: actor, Action: "create_room", Target: room.ID,
		Params: "name=" + room.Name, Result: "ok", At: e.now(),
	})
	return nil
}

// DeleteRoom removes an unprotected room, vacating every present connection.
// Room bans scoped to the room are dropped with it; its history is discarded.
func (e *Engine) DeleteRoom(ctx context.Context, actor, roomID string) error {
	if err := e.requireOwner(actor); err != nil {
		return err
	}

	e.mu.Lock()
	room, ok := e.rooms[roomID]
	if !ok {
		e.mu.Unlock()
		return chat.ErrRoomNotFound
	}
	if room.Protected {
		e.mu.Unlock()
		return chat.ErrProtectedRoom
	}
	e.mu.Unlock()

	if err := e.store.DeleteRoom(ctx, roomID); err != nil {
		return storeErr(err)
	}

	e.mu.Lock()
	var ejected []string
	if room, ok := e.rooms[roomID]; ok {
		for _, m := range room.Members() {
			if p, ok := e.presence[m.ConnectionID]; ok {
				p.RoomID = ""
			}
			ejected = append(ejected, m.ConnectionID)
		}
		delete(e.rooms, roomID)
		delete(e.history, roomID)
		for i, id := range e.roomOrder {
			if id == roomID {
				e.roomOrder = append(e.roomOrder[:i], e.roomOrder[i+1:]...)
				break
			}
		}
	}
	e.mod.DropRoomBans(roomID)
	summaries := e.roomSummariesLocked()
	e.mu.Unlock()

	if len(ejected) > 0 {
		e.bc.Deliver(ejected, encode(roomClosedEvent{Type: "room_closed", RoomID: roomID}))
	}
	e.bc.DeliverAll(encode(roomsEvent{Type: "rooms", Rooms: summaries}))
	e.audit(ctx, chat.AuditEvent{Actor: actor, Action: "delete_room", Target: roomID, Result: "ok", At: e.now()})
	return nil
}
