package engine

import (
	"context"
	"fmt"

	chat "github.com/yasser311511/chat-app2/internal/pkg/chat/application/domain"
)

// Rename atomically rewrites an identity's username everywhere. Phase one is
// a single durable transaction over every referencing table; phase two
// rewrites the in-memory keys. Either the whole rename lands or none of it.
//
// Actors may rename themselves; renaming someone else requires authority over
// them. The store deletes all sessions of the renamed identity inside the
// rename transaction, so invalidation cannot lag the new name. Stale cache
// entries fail closed at resolve time when the identity lookup misses.
func (e *Engine) Rename(ctx context.Context, actor, oldName, newName string) error {
	if err := chat.ValidateUsername(newName); err != nil {
		return err
	}
	if oldName == newName {
		return nil
	}
	if actor != oldName {
		if err := e.authorize(actor, oldName); err != nil {
			return err
		}
	}

	unlock := e.lockIdentities(oldName, newName)
	defer unlock()

	if err := e.store.RenameIdentity(ctx, oldName, newName); err != nil {
		return storeErr(err)
	}

	e.mu.Lock()
	if a, ok := e.ranks[oldName]; ok {
		delete(e.ranks, oldName)
		a.Username = newName
		e.ranks[newName] = a
	}
	if p, ok := e.progress[oldName]; ok {
		delete(e.progress, oldName)
		p.Username = newName
		e.progress[newName] = p
	}
	e.mod.Rename(oldName, newName)
	e.throttle.Rename(oldName, newName)

	var rooms []string
	var conns []string
	for connID, p := range e.presence {
		if p.Username != oldName {
			continue
		}
		p.Username = newName
		conns = append(conns, connID)
		if p.RoomID == "" {
			continue
		}
		if room, ok := e.rooms[p.RoomID]; ok {
			room.UpdateMembers(oldName, func(m *chat.Member) { m.Username = newName })
			rooms = append(rooms, p.RoomID)
		}
	}
	e.mu.Unlock()

	e.bc.RenameUser(oldName, newName)
	payload := encode(renamedEvent{Type: "renamed", OldName: oldName, NewName: newName})
	e.bc.Deliver(conns, payload)
	for _, roomID := range rooms {
		e.members.mark(roomID)
	}
	e.audit(ctx, chat.AuditEvent{
		Actor: actor, Action: "rename", Target: oldName,
		Params: fmt.Sprintf("new=%s", newName), Result: "ok", At: e.now(),
	})
	return nil
}
