package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/crypto/bcrypt"

	chat "github.com/yasser311511/chat-app2/internal/pkg/chat/application/domain"
)

// AssignRank grants target the named rank for chat.RankAssignmentTTL.
// Re-assigning
// replaces the previous assignment and restarts the clock. The owner rank is
// not grantable through this path.
func (e *Engine) AssignRank(ctx context.Context, actor, target, rankName string) error {
	unlock := e.lockIdentity(target)
	defer unlock()

	e.mu.Lock()
	rank, ok := e.hierarchy.Lookup(rankName)
	e.mu.Unlock()
	if !ok {
		return chat.ErrRankNotFound
	}
	if rank.Owner {
		return chat.ErrForbidden
	}
	if err := e.authorize(actor, target); err != nil {
		return err
	}
	if _, err := e.store.GetIdentity(ctx, target); err != nil {
		return storeErr(err)
	}

	now := e.now()
	expires := now.Add(chat.RankAssignmentTTL)
	assignment := chat.RankAssignment{Username: target, Rank: rankName, ExpiresAt: &expires}
	if err := e.store.UpsertRankAssignment(ctx, assignment); err != nil {
		return storeErr(err)
	}

	rooms := e.applyRank(target, assignment)
	for _, roomID := range rooms {
		e.members.mark(roomID)
	}
	e.bc.NotifyUser(target, encode(rankChangeEvent{
		Type: "rank_change", Username: target, Rank: rankName, ExpiresAt: &expires,
	}))
	e.audit(ctx, chat.AuditEvent{
		Actor: actor, Action: "assign_rank", Target: target,
		Params: fmt.Sprintf("rank=%s ttl=%s", rankName, chat.RankAssignmentTTL), Result: "ok", At: now,
	})
	return nil
}

// RemoveRank revokes target's rank assignment. Removing an identity with no
// assignment is a no-op.
func (e *Engine) RemoveRank(ctx context.Context, actor, target string) error {
	unlock := e.lockIdentity(target)
	defer unlock()

	if err := e.authorize(actor, target); err != nil {
		return err
	}
	if err := e.store.DeleteRankAssignment(ctx, target); err != nil {
		return storeErr(err)
	}

	rooms := e.applyRank(target, chat.RankAssignment{})
	for _, roomID := range rooms {
		e.members.mark(roomID)
	}
	e.bc.NotifyUser(target, encode(rankChangeEvent{Type: "rank_change", Username: target, Rank: ""}))
	e.audit(ctx, chat.AuditEvent{Actor: actor, Action: "remove_rank", Target: target, Result: "ok", At: e.now()})
	return nil
}

// applyRank installs (or, for a zero assignment, clears) target's rank
// in the assignment map and every live presence and room slot, returning the
// rooms whose membership changed. Takes e.mu itself.
func (e *Engine) applyRank(target string, assignment chat.RankAssignment) []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	if assignment.Rank == "" {
		delete(e.ranks, target)
	} else {
		e.ranks[target] = assignment
	}

	var rooms []string
	for _, p := range e.presence {
		if p.Username != target {
			continue
		}
		p.Rank = assignment.Rank
		if p.RoomID == "" {
			continue
		}
		if room, ok := e.rooms[p.RoomID]; ok {
			room.UpdateMembers(target, func(m *chat.Member) { m.Rank = assignment.Rank })
			rooms = append(rooms, p.RoomID)
		}
	}
	return rooms
}

// ListAssignments returns every live rank assignment, sorted by username.
// Expired assignments still show until the sweeper collects them.
func (e *Engine) ListAssignments() []chat.RankAssignment {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]chat.RankAssignment, 0, len(e.ranks))
	for _, a := range e.ranks {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

// Ranks returns the rank catalogue ordered by descending level.
func (e *Engine) Ranks() []chat.Rank {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hierarchy.Ranks()
}

// EnsureOwner bootstraps the owner account at startup: create the identity if
// missing and pin a permanent owner assignment on it. Only one identity holds
// the owner rank.
func (e *Engine) EnsureOwner(ctx context.Context, username, password string) error {
	if username == "" {
		return nil
	}
	unlock := e.lockIdentity(username)
	defer unlock()

	if _, err := e.store.GetIdentity(ctx, username); err != nil {
		if !errors.Is(err, chat.ErrIdentityNotFound) {
			return storeErr(err)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("engine: hash owner password: %w", err)
		}
		identity := chat.Identity{
			Username:     username,
			PasswordHash: string(hash),
			Unlimited:    true,
			CreatedAt:    e.now(),
		}
		if err := e.store.CreateIdentity(ctx, identity); err != nil {
			return storeErr(err)
		}
	}

	var ownerRank string
	e.mu.Lock()
	for _, r := range e.hierarchy.Ranks() {
		if r.Owner {
			ownerRank = r.Name
			break
		}
	}
	e.mu.Unlock()
	if ownerRank == "" {
		return chat.ErrRankNotFound
	}

	// the owner rank is unique; an identity left over from a previous
	// bootstrap name loses it here
	e.mu.Lock()
	var demote []string
	for name, a := range e.ranks {
		if a.Rank == ownerRank && name != username {
			demote = append(demote, name)
		}
	}
	e.mu.Unlock()
	for _, name := range demote {
		if err := e.store.DeleteRankAssignment(ctx, name); err != nil {
			return storeErr(err)
		}
		e.applyRank(name, chat.RankAssignment{})
		e.log.Warn(ctx, "revoked stale owner assignment", "user", name)
	}

	assignment := chat.RankAssignment{Username: username, Rank: ownerRank}
	if err := e.store.UpsertRankAssignment(ctx, assignment); err != nil {
		return storeErr(err)
	}
	e.applyRank(username, assignment)
	e.log.Info(ctx, "owner account ready", "user", username)
	return nil
}
