package engine

import (
	"context"

	chat "github.com/yasser311511/chat-app2/internal/pkg/chat/application/domain"
)

// SetAvatar changes an identity's avatar. Self-service, or a moderator acting
// on someone under their authority. The durable record changes first, then
// every live presence and room slot picks up the new avatar.
func (e *Engine) SetAvatar(ctx context.Context, actor, target, avatar string) error {
	if actor != target {
		if err := e.authorize(actor, target); err != nil {
			return err
		}
	}

	unlock := e.lockIdentity(target)
	defer unlock()

	if err := e.store.UpdateAvatar(ctx, target, avatar); err != nil {
		return storeErr(err)
	}

	e.mu.Lock()
	var rooms []string
	for _, p := range e.presence {
		if p.Username != target {
			continue
		}
		p.Avatar = avatar
		if p.RoomID == "" {
			continue
		}
		if room, ok := e.rooms[p.RoomID]; ok {
			room.UpdateMembers(target, func(m *chat.Member) { m.Avatar = avatar })
			rooms = append(rooms, p.RoomID)
		}
	}
	e.mu.Unlock()

	for _, roomID := range rooms {
		e.members.mark(roomID)
	}
	e.bc.NotifyUser(target, encode(avatarEvent{Type: "avatar", Username: target, Avatar: avatar}))
	return nil
}
