package engine

import (
	"context"
	"fmt"

	chat "github.com/yasser311511/chat-app2/internal/pkg/chat/application/domain"
	"github.com/yasser311511/chat-app2/internal/pkg/chat/application/task"
)

// SendResult carries the accepted message plus a level-up signal for the
// caller to notify the actor with.
type SendResult struct {
	Message   chat.Message
	LeveledUp bool
	Level     int
}

// Send posts a message from a connection into its current room. Ordering per
// the control flow contract: authorization (bans, mute with lazy expiry),
// then the spam throttle and progression ledger, then broadcast.
//
// The bounded history advances memory-first; the durable log append rides the
// task queue so a store outage never blocks the hot path.
func (e *Engine) Send(ctx context.Context, connID, content string, kind chat.MessageKind, replyTo *string) (*SendResult, error) {
	e.mu.Lock()
	p, ok := e.presence[connID]
	if !ok || p.RoomID == "" {
		e.mu.Unlock()
		return nil, chat.ErrRoomNotFound
	}
	username, roomID, unlimited := p.Username, p.RoomID, p.Unlimited
	now := e.now()

	// reject malformed content up front so it neither counts toward the spam
	// window nor purges a lapsed mute
	msg, err := chat.NewMessage(roomID, username, content, kind, replyTo, now)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}

	_, hadMute := e.mod.MuteFor(username)
	if err := e.mod.CanSend(username, roomID, now); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	_, stillMuted := e.mod.MuteFor(username)
	purgedMute := hadMute && !stillMuted
	tripped := false
	if kind != chat.MessageKindSystem && !e.hierarchy.ThrottleExempt(e.rankOf(username)) {
		tripped = e.throttle.Observe(roomID, username, now)
	}
	e.mu.Unlock()

	if purgedMute {
		// the lapsed mute was purged from memory; mirror the purge durably
		if err := e.store.DeleteMute(ctx, username); err != nil {
			e.log.Warn(ctx, "mute purge failed", "user", username, "err", err)
		}
	}

	if tripped {
		if err := e.autoMute(ctx, username, roomID); err != nil {
			return nil, err
		}
		return nil, chat.ErrMuted
	}

	e.mu.Lock()
	room, ok := e.rooms[roomID]
	if !ok {
		e.mu.Unlock()
		return nil, chat.ErrRoomNotFound
	}
	e.history[roomID].Append(msg)
	connIDs := memberConnIDs(room.Members())

	leveled := false
	var level int
	var ledger *chat.Progression
	if !unlimited {
		ledger = e.progress[username]
		if ledger == nil {
			ledger = &chat.Progression{Username: username, Level: 1}
			e.progress[username] = ledger
		}
		leveled = ledger.RecordActivity()
		level = ledger.Level
	}
	snapshot := chat.Progression{}
	if ledger != nil {
		snapshot = *ledger
	}
	e.mu.Unlock()

	if ledger != nil {
		if err := e.store.UpsertProgression(ctx, snapshot); err != nil {
			e.log.Warn(ctx, "progression write failed", "user", username, "err", err)
		}
	}

	e.bc.Deliver(connIDs, encode(messageEvent{Type: "message", RoomID: roomID, Message: msg}))
	if leveled {
		e.bc.NotifyUser(username, encode(levelUpEvent{Type: "level_up", Level: snapshot.Level, Points: snapshot.Points}))
	}
	e.persistMessage(ctx, msg)

	return &SendResult{Message: msg, LeveledUp: leveled, Level: level}, nil
}

// autoMute issues the throttle's sanction: a time-bounded system mute,
// durable before it takes effect in memory like any other moderation write.
func (e *Engine) autoMute(ctx context.Context, username, roomID string) error {
	now := e.now()
	mute := chat.Mute{
		Username:  username,
		Issuer:    chat.SystemIssuer,
		ExpiresAt: now.Add(e.cfg.SpamMuteDuration),
	}
	if err := e.store.UpsertMute(ctx, mute); err != nil {
		return storeErr(err)
	}

	e.mu.Lock()
	e.mod.SetMute(mute)
	notice := chat.NewSystemMessage(roomID,
		fmt.Sprintf("%s was muted for %d minutes for flooding", username, int(e.cfg.SpamMuteDuration.Minutes())), now)
	var connIDs []string
	if room, ok := e.rooms[roomID]; ok {
		e.history[roomID].Append(notice)
		connIDs = memberConnIDs(room.Members())
	}
	e.mu.Unlock()

	e.bc.Deliver(connIDs, encode(messageEvent{Type: "message", RoomID: roomID, Message: notice}))
	e.bc.NotifyUser(username, encode(moderationEvent{
		Type: "moderation", Action: "muted", Issuer: chat.SystemIssuer, ExpiresAt: &mute.ExpiresAt,
	}))
	e.persistMessage(ctx, notice)
	e.audit(ctx, chat.AuditEvent{
		Actor: chat.SystemIssuer, Action: "mute", Target: username,
		Params: fmt.Sprintf("duration=%s room=%s trigger=flood", e.cfg.SpamMuteDuration, roomID),
		Result: "ok", At: now,
	})
	return nil
}

// Recent returns up to limit of the newest buffered messages for a room,
// oldest first.
func (e *Engine) Recent(roomID string, limit int) ([]chat.Message, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.history[roomID]
	if !ok {
		return nil, chat.ErrRoomNotFound
	}
	return h.Recent(limit), nil
}

// Before returns up to limit buffered messages older than messageID, oldest
// first. An unknown reference yields an empty slice.
func (e *Engine) Before(roomID, messageID string, limit int) ([]chat.Message, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.history[roomID]
	if !ok {
		return nil, chat.ErrRoomNotFound
	}
	return h.Before(messageID, limit), nil
}

// persistMessage enqueues the durable log append. Failures are logged and
// swallowed: the in-memory state has already advanced and the queue retries.
func (e *Engine) persistMessage(ctx context.Context, m chat.Message) {
	if e.queue == nil {
		return
	}
	if err := e.queue.Enqueue(ctx, task.PersistMessageTaskType, encode(m)); err != nil {
		e.log.Warn(ctx, "message persist enqueue failed", "room", m.RoomID, "err", err)
	}
}

// audit enqueues an audit event for a privileged mutation.
func (e *Engine) audit(ctx context.Context, ev chat.AuditEvent) {
	if e.queue == nil {
		return
	}
	if err := e.queue.Enqueue(ctx, task.AuditEventTaskType, encode(ev)); err != nil {
		e.log.Warn(ctx, "audit enqueue failed", "action", ev.Action, "err", err)
	}
}
