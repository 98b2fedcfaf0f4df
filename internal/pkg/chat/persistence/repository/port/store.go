package repository

import (
	"context"

	chat "github.com/yasser311511/chat-app2/internal/pkg/chat/application/domain"
)

// IdentityRepository persists accounts. Implementations map a duplicate
// username on create to chat.ErrNameTaken.
type IdentityRepository interface {
	CreateIdentity(ctx context.Context, id chat.Identity) error
	GetIdentity(ctx context.Context, username string) (chat.Identity, error)
	UpdatePassword(ctx context.Context, username, passwordHash string) error
	UpdateAvatar(ctx context.Context, username, avatarURL string) error
	// DeleteIdentity removes the account and every dependent record (rank,
	// avatar, progression, sanctions, sessions, friendships, requests,
	// private messages) in one transaction.
	DeleteIdentity(ctx context.Context, username string) error
}

// SessionRepository persists session tokens. Every create/invalidate must be
// durable before the caller treats the session as committed.
type SessionRepository interface {
	CreateSession(ctx context.Context, s chat.Session) error
	GetSession(ctx context.Context, token string) (chat.Session, error)
	DeleteSession(ctx context.Context, token string) error
	DeleteSessionsFor(ctx context.Context, username string) error
}

// RoomRepository persists the room set. Implementations map a duplicate room
// id on insert to chat.ErrRoomExists and a missing room on delete to
// chat.ErrRoomNotFound.
type RoomRepository interface {
	ListRooms(ctx context.Context) ([]*chat.Room, error)
	SeedRooms(ctx context.Context, rooms []*chat.Room) error
	InsertRoom(ctx context.Context, room chat.Room) error
	// DeleteRoom removes the room and every room ban scoped to it.
	DeleteRoom(ctx context.Context, roomID string) error
}

// RankRepository persists rank definitions and assignments.
type RankRepository interface {
	SeedRankDefinitions(ctx context.Context, ranks []chat.Rank) error
	ListRankDefinitions(ctx context.Context) ([]chat.Rank, error)
	ListRankAssignments(ctx context.Context) ([]chat.RankAssignment, error)
	UpsertRankAssignment(ctx context.Context, a chat.RankAssignment) error
	DeleteRankAssignment(ctx context.Context, username string) error
}

// ModerationRepository persists sanction records and audit events.
type ModerationRepository interface {
	ListMutes(ctx context.Context) ([]chat.Mute, error)
	UpsertMute(ctx context.Context, m chat.Mute) error
	DeleteMute(ctx context.Context, username string) error
	ListRoomBans(ctx context.Context) ([]chat.RoomBan, error)
	InsertRoomBan(ctx context.Context, b chat.RoomBan) error
	DeleteRoomBan(ctx context.Context, roomID, username string) error
	ListSiteBans(ctx context.Context) ([]chat.SiteBan, error)
	InsertSiteBan(ctx context.Context, b chat.SiteBan) error
	DeleteSiteBan(ctx context.Context, username string) error
	InsertAuditEvent(ctx context.Context, e chat.AuditEvent) error
}

// MessageRepository persists the unbounded durable message log. The bounded
// in-memory history is a cache in front of this.
type MessageRepository interface {
	InsertMessage(ctx context.Context, m chat.Message) error
}

// ProgressionRepository persists the points/level ledger.
type ProgressionRepository interface {
	ListProgression(ctx context.Context) ([]chat.Progression, error)
	UpsertProgression(ctx context.Context, p chat.Progression) error
}

// Store aggregates the durable-store surface the engine depends on.
type Store interface {
	IdentityRepository
	SessionRepository
	RoomRepository
	RankRepository
	ModerationRepository
	MessageRepository
	ProgressionRepository

	// RenameIdentity rewrites the identifier across every table that
	// references it (as subject and as issuer, both directions of friendships,
	// requests and private messages) in a single all-or-nothing transaction.
	// The identity's sessions are deleted within that transaction rather than
	// rewritten, so no session can survive a rename. It maps a taken new name
	// to chat.ErrNameTaken and a missing old name to chat.ErrIdentityNotFound.
	RenameIdentity(ctx context.Context, oldName, newName string) error
}
