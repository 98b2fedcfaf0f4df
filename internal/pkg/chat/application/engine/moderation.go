package engine

import (
	"context"
	"fmt"
	"time"

	chat "github.com/yasser311511/chat-app2/internal/pkg/chat/application/domain"
)

// authorize resolves the authority predicate for a privileged action. Caller
// holds no engine locks.
func (e *Engine) authorize(actor, target string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.hierarchy.IsOwner(e.rankOf(target)) {
		return chat.ErrOwnerTarget
	}
	if !e.hierarchy.CanAct(e.rankOf(actor), e.rankOf(target)) {
		return chat.ErrForbidden
	}
	return nil
}

// Mute suppresses target's sends for the given duration. The newest mute
// overwrites any previous one. Durable-first: the record is written to the
// store before memory or any broadcast changes.
func (e *Engine) Mute(ctx context.Context, actor, target string, duration time.Duration) error {
	unlock := e.lockIdentity(target)
	defer unlock()

	if err := e.authorize(actor, target); err != nil {
		return err
	}
	if _, err := e.store.GetIdentity(ctx, target); err != nil {
		return storeErr(err)
	}

	now := e.now()
	mute := chat.Mute{Username: target, Issuer: actor, ExpiresAt: now.Add(duration)}
	if err := e.store.UpsertMute(ctx, mute); err != nil {
		return storeErr(err)
	}

	e.mu.Lock()
	e.mod.SetMute(mute)
	e.mu.Unlock()

	e.bc.NotifyUser(target, encode(moderationEvent{
		Type: "moderation", Action: "muted", Issuer: actor, ExpiresAt: &mute.ExpiresAt,
	}))
	e.audit(ctx, chat.AuditEvent{
		Actor: actor, Action: "mute", Target: target,
		Params: fmt.Sprintf("duration=%s", duration), Result: "ok", At: now,
	})
	return nil
}

// Unmute clears target's mute. Unmuting an identity with no active mute is a
// no-op, not an error.
func (e *Engine) Unmute(ctx context.Context, actor, target string) error {
	unlock := e.lockIdentity(target)
	defer unlock()

	if err := e.authorize(actor, target); err != nil {
		return err
	}
	if err := e.store.DeleteMute(ctx, target); err != nil {
		return storeErr(err)
	}

	e.mu.Lock()
	existed := e.mod.ClearMute(target)
	e.mu.Unlock()

	if existed {
		e.bc.NotifyUser(target, encode(moderationEvent{Type: "moderation", Action: "unmuted", Issuer: actor}))
	}
	e.audit(ctx, chat.AuditEvent{Actor: actor, Action: "unmute", Target: target, Result: "ok", At: e.now()})
	return nil
}

// BanFromRoom bars target from one room indefinitely and ejects any of its
// live connections from that room.
func (e *Engine) BanFromRoom(ctx context.Context, actor, target, roomID, reason string) error {
	unlock := e.lockIdentity(target)
	defer unlock()

	if err := e.authorize(actor, target); err != nil {
		return err
	}
	e.mu.Lock()
	_, ok := e.rooms[roomID]
	e.mu.Unlock()
	if !ok {
		return chat.ErrRoomNotFound
	}

	now := e.now()
	ban := chat.RoomBan{RoomID: roomID, Username: target, Issuer: actor, Reason: reason, BannedAt: now}
	if err := e.store.InsertRoomBan(ctx, ban); err != nil {
		return storeErr(err)
	}

	e.mu.Lock()
	e.mod.BanRoom(ban)
	var ejected []string
	if room, ok := e.rooms[roomID]; ok {
		for _, m := range room.Members() {
			if m.Username == target {
				room.RemoveConnection(m.ConnectionID)
				if p, ok := e.presence[m.ConnectionID]; ok {
					p.RoomID = ""
				}
				ejected = append(ejected, m.ConnectionID)
			}
		}
	}
	e.mu.Unlock()

	if len(ejected) > 0 {
		e.members.mark(roomID)
		payload := encode(moderationEvent{
			Type: "moderation", Action: "banned_from_room", RoomID: roomID, Reason: reason, Issuer: actor,
		})
		e.bc.Deliver(ejected, payload)
	}
	e.audit(ctx, chat.AuditEvent{
		Actor: actor, Action: "ban_room", Target: target,
		Params: fmt.Sprintf("room=%s reason=%s", roomID, reason), Result: "ok", At: now,
	})
	return nil
}

// UnbanFromRoom lifts a room ban. Lifting a ban that does not exist is a
// no-op.
func (e *Engine) UnbanFromRoom(ctx context.Context, actor, target, roomID string) error {
	unlock := e.lockIdentity(target)
	defer unlock()

	if err := e.authorize(actor, target); err != nil {
		return err
	}
	if err := e.store.DeleteRoomBan(ctx, roomID, target); err != nil {
		return storeErr(err)
	}

	e.mu.Lock()
	e.mod.UnbanRoom(roomID, target)
	e.mu.Unlock()

	e.audit(ctx, chat.AuditEvent{
		Actor: actor, Action: "unban_room", Target: target,
		Params: "room=" + roomID, Result: "ok", At: e.now(),
	})
	return nil
}

// BanFromSite bars target from the whole service and forces every live
// connection of the identity off, which also vacates its room slot.
func (e *Engine) BanFromSite(ctx context.Context, actor, target, reason string) error {
	unlock := e.lockIdentity(target)
	defer unlock()

	if err := e.authorize(actor, target); err != nil {
		return err
	}

	now := e.now()
	ban := chat.SiteBan{Username: target, Issuer: actor, Reason: reason, BannedAt: now}
	if err := e.store.InsertSiteBan(ctx, ban); err != nil {
		return storeErr(err)
	}
	// a banned identity cannot hold sessions either
	if err := e.store.DeleteSessionsFor(ctx, target); err != nil {
		e.log.Warn(ctx, "session purge on site ban failed", "user", target, "err", err)
	}

	e.mu.Lock()
	e.mod.BanSite(ban)
	rooms := e.evictIdentityLocked(target)
	e.mu.Unlock()

	e.bc.NotifyUser(target, encode(moderationEvent{
		Type: "moderation", Action: "banned_from_site", Reason: reason, Issuer: actor,
	}))
	e.bc.CloseUser(target, 4003, "banned from site")
	for _, roomID := range rooms {
		e.members.mark(roomID)
	}
	e.audit(ctx, chat.AuditEvent{
		Actor: actor, Action: "ban_site", Target: target,
		Params: "reason=" + reason, Result: "ok", At: now,
	})
	return nil
}

// UnbanFromSite lifts a site ban.
func (e *Engine) UnbanFromSite(ctx context.Context, actor, target string) error {
	unlock := e.lockIdentity(target)
	defer unlock()

	if err := e.authorize(actor, target); err != nil {
		return err
	}
	if err := e.store.DeleteSiteBan(ctx, target); err != nil {
		return storeErr(err)
	}

	e.mu.Lock()
	e.mod.UnbanSite(target)
	e.mu.Unlock()

	e.audit(ctx, chat.AuditEvent{Actor: actor, Action: "unban_site", Target: target, Result: "ok", At: e.now()})
	return nil
}

// DeleteIdentity removes the account and every dependent record, then drops
// all in-memory state and disconnects the identity.
func (e *Engine) DeleteIdentity(ctx context.Context, actor, target string) error {
	unlock := e.lockIdentity(target)
	defer unlock()

	if err := e.authorize(actor, target); err != nil {
		return err
	}
	if err := e.store.DeleteIdentity(ctx, target); err != nil {
		return storeErr(err)
	}

	e.mu.Lock()
	delete(e.ranks, target)
	delete(e.progress, target)
	e.mod.RemoveAll(target)
	e.throttle.Forget(target)
	rooms := e.evictIdentityLocked(target)
	e.mu.Unlock()

	e.bc.CloseUser(target, 4004, "account deleted")
	for _, roomID := range rooms {
		e.members.mark(roomID)
	}
	e.audit(ctx, chat.AuditEvent{Actor: actor, Action: "delete_user", Target: target, Result: "ok", At: e.now()})
	return nil
}

// evictIdentityLocked removes every presence and room slot held by username
// and returns the affected room ids. Caller holds e.mu.
func (e *Engine) evictIdentityLocked(username string) []string {
	var rooms []string
	for connID, p := range e.presence {
		if p.Username != username {
			continue
		}
		if p.RoomID != "" {
			if room, ok := e.rooms[p.RoomID]; ok {
				room.RemoveConnection(connID)
			}
			rooms = append(rooms, p.RoomID)
		}
		delete(e.presence, connID)
	}
	return rooms
}

// UserStatus is the moderator-facing snapshot of one identity's standing.
type UserStatus struct {
	Username string         `json:"username"`
	Rank     string         `json:"rank,omitempty"`
	Mute     *chat.Mute     `json:"mute,omitempty"`
	RoomBans []chat.RoomBan `json:"room_bans,omitempty"`
	SiteBan  *chat.SiteBan  `json:"site_ban,omitempty"`
	Online   bool           `json:"online"`
}

// StatusOf reports the sanction and rank standing of an identity. An expired
// mute still shows until the next send attempt or sweep purges it.
func (e *Engine) StatusOf(username string) UserStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := UserStatus{Username: username, Rank: e.rankOf(username)}
	if m, ok := e.mod.MuteFor(username); ok {
		mute := m
		st.Mute = &mute
	}
	st.RoomBans = e.mod.RoomBansFor(username)
	if b, ok := e.mod.SiteBanFor(username); ok {
		ban := b
		st.SiteBan = &ban
	}
	for _, p := range e.presence {
		if p.Username == username {
			st.Online = true
			break
		}
	}
	return st
}

// CanSend answers the send-permission snapshot without mutating state.
func (e *Engine) CanSend(username, roomID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()
	if e.mod.IsSiteBanned(username) || e.mod.IsRoomBanned(roomID, username) {
		return false
	}
	if m, ok := e.mod.MuteFor(username); ok && !m.Expired(now) {
		return false
	}
	return true
}
