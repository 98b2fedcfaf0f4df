package adapter

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	chat "github.com/yasser311511/chat-app2/internal/pkg/chat/application/domain"
	repository "github.com/yasser311511/chat-app2/internal/pkg/chat/persistence/repository/port"
)

// PgStore implements the repository.Store port on top of a pgx pool.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Ensure interface compliance at compile time
var _ repository.Store = (*PgStore)(nil)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// ===================== Identities =====================

func (s *PgStore) CreateIdentity(ctx context.Context, id chat.Identity) error {
	if s == nil || s.pool == nil {
		return errors.New("PgStore: nil pool")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (username, password_hash, gender, avatar_url, unlimited_progression, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, id.Username, id.PasswordHash, id.Gender, id.Avatar, id.Unlimited, id.CreatedAt)
	if isUniqueViolation(err) {
		return chat.ErrNameTaken
	}
	return err
}

func (s *PgStore) GetIdentity(ctx context.Context, username string) (chat.Identity, error) {
	if s == nil || s.pool == nil {
		return chat.Identity{}, errors.New("PgStore: nil pool")
	}
	var id chat.Identity
	err := s.pool.QueryRow(ctx, `
		SELECT username, password_hash, gender, avatar_url, unlimited_progression, created_at
		FROM users WHERE username = $1
	`, username).Scan(&id.Username, &id.PasswordHash, &id.Gender, &id.Avatar, &id.Unlimited, &id.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return chat.Identity{}, chat.ErrIdentityNotFound
	}
	return id, err
}

func (s *PgStore) UpdatePassword(ctx context.Context, username, passwordHash string) error {
	ct, err := s.pool.Exec(ctx, `UPDATE users SET password_hash = $2 WHERE username = $1`, username, passwordHash)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return chat.ErrIdentityNotFound
	}
	return nil
}

func (s *PgStore) UpdateAvatar(ctx context.Context, username, avatarURL string) error {
	ct, err := s.pool.Exec(ctx, `UPDATE users SET avatar_url = $2 WHERE username = $1`, username, avatarURL)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return chat.ErrIdentityNotFound
	}
	return nil
}

func (s *PgStore) DeleteIdentity(ctx context.Context, username string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	ct, err := tx.Exec(ctx, `DELETE FROM users WHERE username = $1`, username)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return chat.ErrIdentityNotFound
	}
	cleanup := []struct {
		sql  string
		args []any
	}{
		{`DELETE FROM user_ranks WHERE username = $1`, []any{username}},
		{`DELETE FROM user_progression WHERE username = $1`, []any{username}},
		{`DELETE FROM moderation_mutes WHERE username = $1`, []any{username}},
		{`DELETE FROM moderation_room_bans WHERE username = $1`, []any{username}},
		{`DELETE FROM moderation_site_bans WHERE username = $1`, []any{username}},
		{`DELETE FROM user_sessions WHERE username = $1`, []any{username}},
		{`DELETE FROM user_friends WHERE username = $1 OR friend_username = $1`, []any{username}},
		{`DELETE FROM friend_requests WHERE from_user = $1 OR to_user = $1`, []any{username}},
		{`DELETE FROM private_messages WHERE from_user = $1 OR to_user = $1`, []any{username}},
	}
	for _, stmt := range cleanup {
		if _, err := tx.Exec(ctx, stmt.sql, stmt.args...); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// ===================== Sessions =====================

func (s *PgStore) CreateSession(ctx context.Context, sess chat.Session) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_sessions (token, username, password_hash, created_at)
		VALUES ($1, $2, $3, $4)
	`, sess.Token, sess.Username, sess.PasswordHash, sess.CreatedAt)
	return err
}

func (s *PgStore) GetSession(ctx context.Context, token string) (chat.Session, error) {
	var sess chat.Session
	err := s.pool.QueryRow(ctx, `
		SELECT token, username, password_hash, created_at
		FROM user_sessions WHERE token = $1
	`, token).Scan(&sess.Token, &sess.Username, &sess.PasswordHash, &sess.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return chat.Session{}, chat.ErrSessionInvalid
	}
	return sess, err
}

func (s *PgStore) DeleteSession(ctx context.Context, token string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM user_sessions WHERE token = $1`, token)
	return err
}

func (s *PgStore) DeleteSessionsFor(ctx context.Context, username string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM user_sessions WHERE username = $1`, username)
	return err
}

// ===================== Rooms =====================

func (s *PgStore) ListRooms(ctx context.Context) ([]*chat.Room, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, icon, description, protected
		FROM rooms ORDER BY position, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*chat.Room
	for rows.Next() {
		var r chat.Room
		if err := rows.Scan(&r.ID, &r.Name, &r.Icon, &r.Description, &r.Protected); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *PgStore) SeedRooms(ctx context.Context, rooms []*chat.Room) error {
	for i, r := range rooms {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO rooms (id, name, icon, description, protected, position)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO NOTHING
		`, r.ID, r.Name, r.Icon, r.Description, r.Protected, i)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *PgStore) InsertRoom(ctx context.Context, room chat.Room) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO rooms (id, name, icon, description, protected, position)
		VALUES ($1, $2, $3, $4, $5,
		        (SELECT COALESCE(MAX(position), 0) + 1 FROM rooms))
	`, room.ID, room.Name, room.Icon, room.Description, room.Protected)
	if isUniqueViolation(err) {
		return chat.ErrRoomExists
	}
	return err
}

func (s *PgStore) DeleteRoom(ctx context.Context, roomID string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	ct, err := tx.Exec(ctx, `DELETE FROM rooms WHERE id = $1`, roomID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return chat.ErrRoomNotFound
	}
	if _, err := tx.Exec(ctx, `DELETE FROM moderation_room_bans WHERE room_id = $1`, roomID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ===================== Ranks =====================

func (s *PgStore) SeedRankDefinitions(ctx context.Context, ranks []chat.Rank) error {
	for _, r := range ranks {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO rank_definitions (name, color, icon, level, wing, is_owner)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (name)
			DO UPDATE SET color = EXCLUDED.color,
			              icon = EXCLUDED.icon,
			              level = EXCLUDED.level,
			              wing = EXCLUDED.wing,
			              is_owner = EXCLUDED.is_owner
		`, r.Name, r.Color, r.Icon, r.Level, r.Wing, r.Owner)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *PgStore) ListRankDefinitions(ctx context.Context) ([]chat.Rank, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT name, color, icon, level, wing, is_owner
		FROM rank_definitions ORDER BY level DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ranks []chat.Rank
	for rows.Next() {
		var r chat.Rank
		if err := rows.Scan(&r.Name, &r.Color, &r.Icon, &r.Level, &r.Wing, &r.Owner); err != nil {
			return nil, err
		}
		ranks = append(ranks, r)
	}
	return ranks, rows.Err()
}

func (s *PgStore) ListRankAssignments(ctx context.Context) ([]chat.RankAssignment, error) {
	rows, err := s.pool.Query(ctx, `SELECT username, rank, expires_at FROM user_ranks`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []chat.RankAssignment
	for rows.Next() {
		var a chat.RankAssignment
		if err := rows.Scan(&a.Username, &a.Rank, &a.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PgStore) UpsertRankAssignment(ctx context.Context, a chat.RankAssignment) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_ranks (username, rank, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (username)
		DO UPDATE SET rank = EXCLUDED.rank, expires_at = EXCLUDED.expires_at
	`, a.Username, a.Rank, a.ExpiresAt)
	return err
}

func (s *PgStore) DeleteRankAssignment(ctx context.Context, username string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM user_ranks WHERE username = $1`, username)
	return err
}

// ===================== Moderation =====================

func (s *PgStore) ListMutes(ctx context.Context) ([]chat.Mute, error) {
	rows, err := s.pool.Query(ctx, `SELECT username, issuer, expires_at FROM moderation_mutes`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []chat.Mute
	for rows.Next() {
		var m chat.Mute
		if err := rows.Scan(&m.Username, &m.Issuer, &m.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PgStore) UpsertMute(ctx context.Context, m chat.Mute) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO moderation_mutes (username, issuer, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (username)
		DO UPDATE SET issuer = EXCLUDED.issuer, expires_at = EXCLUDED.expires_at
	`, m.Username, m.Issuer, m.ExpiresAt)
	return err
}

func (s *PgStore) DeleteMute(ctx context.Context, username string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM moderation_mutes WHERE username = $1`, username)
	return err
}

func (s *PgStore) ListRoomBans(ctx context.Context) ([]chat.RoomBan, error) {
	rows, err := s.pool.Query(ctx, `SELECT room_id, username, issuer, reason, banned_at FROM moderation_room_bans`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []chat.RoomBan
	for rows.Next() {
		var b chat.RoomBan
		if err := rows.Scan(&b.RoomID, &b.Username, &b.Issuer, &b.Reason, &b.BannedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *PgStore) InsertRoomBan(ctx context.Context, b chat.RoomBan) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO moderation_room_bans (room_id, username, issuer, reason, banned_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (room_id, username)
		DO UPDATE SET issuer = EXCLUDED.issuer, reason = EXCLUDED.reason, banned_at = EXCLUDED.banned_at
	`, b.RoomID, b.Username, b.Issuer, b.Reason, b.BannedAt)
	return err
}

func (s *PgStore) DeleteRoomBan(ctx context.Context, roomID, username string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM moderation_room_bans WHERE room_id = $1 AND username = $2`, roomID, username)
	return err
}

func (s *PgStore) ListSiteBans(ctx context.Context) ([]chat.SiteBan, error) {
	rows, err := s.pool.Query(ctx, `SELECT username, issuer, reason, banned_at FROM moderation_site_bans`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []chat.SiteBan
	for rows.Next() {
		var b chat.SiteBan
		if err := rows.Scan(&b.Username, &b.Issuer, &b.Reason, &b.BannedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *PgStore) InsertSiteBan(ctx context.Context, b chat.SiteBan) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO moderation_site_bans (username, issuer, reason, banned_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (username)
		DO UPDATE SET issuer = EXCLUDED.issuer, reason = EXCLUDED.reason, banned_at = EXCLUDED.banned_at
	`, b.Username, b.Issuer, b.Reason, b.BannedAt)
	return err
}

func (s *PgStore) DeleteSiteBan(ctx context.Context, username string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM moderation_site_bans WHERE username = $1`, username)
	return err
}

func (s *PgStore) InsertAuditEvent(ctx context.Context, e chat.AuditEvent) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_events (actor, action, target, params, result, at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.Actor, e.Action, e.Target, e.Params, e.Result, e.At)
	return err
}

// ===================== Messages =====================

func (s *PgStore) InsertMessage(ctx context.Context, m chat.Message) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO room_messages (id, room_id, author, kind, content, reply_to, sent_at)
		VALUES ($1::uuid, $2, $3, $4, $5, $6::uuid, $7)
		ON CONFLICT (id) DO NOTHING
	`, m.ID, m.RoomID, m.Author, m.Kind, m.Content, m.ReplyTo, m.SentAt)
	return err
}

// ===================== Progression =====================

func (s *PgStore) ListProgression(ctx context.Context) ([]chat.Progression, error) {
	rows, err := s.pool.Query(ctx, `SELECT username, points, level FROM user_progression`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []chat.Progression
	for rows.Next() {
		var p chat.Progression
		if err := rows.Scan(&p.Username, &p.Points, &p.Level); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PgStore) UpsertProgression(ctx context.Context, p chat.Progression) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_progression (username, points, level)
		VALUES ($1, $2, $3)
		ON CONFLICT (username)
		DO UPDATE SET points = EXCLUDED.points, level = EXCLUDED.level
	`, p.Username, p.Points, p.Level)
	return err
}
