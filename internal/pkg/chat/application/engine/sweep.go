package engine

import (
	"context"
	"time"

	chat "github.com/yasser311511/chat-app2/internal/pkg/chat/application/domain"
)

// Sweep collects lapsed mutes and expired rank assignments. Lazy expiry on
// the send path already keeps behavior correct; the sweep exists so records
// do not linger indefinitely for idle identities.
func (e *Engine) Sweep(ctx context.Context) {
	now := e.now()

	e.mu.Lock()
	lapsedMutes := e.mod.ExpiredMutes(now)
	var lapsedRanks []chat.RankAssignment
	for _, a := range e.ranks {
		if a.Expired(now) {
			lapsedRanks = append(lapsedRanks, a)
		}
	}
	e.mu.Unlock()

	for _, m := range lapsedMutes {
		if err := e.store.DeleteMute(ctx, m.Username); err != nil {
			e.log.Warn(ctx, "sweep mute purge failed", "user", m.Username, "err", err)
			continue
		}
		e.mu.Lock()
		// re-check: a fresh mute may have replaced the lapsed one meanwhile
		if cur, ok := e.mod.MuteFor(m.Username); ok && cur.Expired(now) {
			e.mod.ClearMute(m.Username)
			e.mu.Unlock()
			e.bc.NotifyUser(m.Username, encode(moderationEvent{
				Type: "moderation", Action: "unmuted", Issuer: chat.SystemIssuer,
			}))
			continue
		}
		e.mu.Unlock()
	}

	for _, a := range lapsedRanks {
		if err := e.store.DeleteRankAssignment(ctx, a.Username); err != nil {
			e.log.Warn(ctx, "sweep rank purge failed", "user", a.Username, "err", err)
			continue
		}
		rooms := e.applyRank(a.Username, chat.RankAssignment{})
		for _, roomID := range rooms {
			e.members.mark(roomID)
		}
		e.bc.NotifyUser(a.Username, encode(rankChangeEvent{Type: "rank_change", Username: a.Username, Rank: ""}))
		e.audit(ctx, chat.AuditEvent{
			Actor: chat.SystemIssuer, Action: "remove_rank", Target: a.Username,
			Params: "trigger=expiry rank=" + a.Rank, Result: "ok", At: now,
		})
	}
}

// RunSweeper runs Sweep on the configured interval until ctx is done.
func (e *Engine) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Sweep(ctx)
		}
	}
}
