package adapter

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	chat "github.com/yasser311511/chat-app2/internal/pkg/chat/application/domain"
)

// renameTargets declares every table column holding an identity identifier.
// RenameIdentity walks this registry inside one transaction, so adding a new
// identifier-bearing entity means adding one row here instead of editing a
// hardcoded update sequence.
var renameTargets = []struct {
	table   string
	columns []string
}{
	{"user_ranks", []string{"username"}},
	{"user_progression", []string{"username"}},
	{"moderation_mutes", []string{"username", "issuer"}},
	{"moderation_room_bans", []string{"username", "issuer"}},
	{"moderation_site_bans", []string{"username", "issuer"}},
	{"user_friends", []string{"username", "friend_username"}},
	{"friend_requests", []string{"from_user", "to_user"}},
	{"private_messages", []string{"from_user", "to_user"}},
	{"room_messages", []string{"author"}},
	{"audit_events", []string{"actor", "target"}},
}

// RenameIdentity rewrites oldName to newName across the users table and every
// registered identifier column as a single all-or-nothing transaction. The
// identity's sessions are deleted, not rewritten, inside the same transaction:
// a session must not survive a rename. The caller only touches in-memory
// state after this commits.
func (s *PgStore) RenameIdentity(ctx context.Context, oldName, newName string) error {
	if s == nil || s.pool == nil {
		return errors.New("PgStore: nil pool")
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	ct, err := tx.Exec(ctx, `UPDATE users SET username = $2 WHERE username = $1`, oldName, newName)
	if err != nil {
		if isUniqueViolation(err) {
			return chat.ErrNameTaken
		}
		return err
	}
	if ct.RowsAffected() == 0 {
		return chat.ErrIdentityNotFound
	}
	if _, err := tx.Exec(ctx, `DELETE FROM user_sessions WHERE username = $1`, oldName); err != nil {
		return err
	}

	for _, target := range renameTargets {
		for _, column := range target.columns {
			// table and column names come from the static registry above
			stmt := `UPDATE ` + target.table + ` SET ` + column + ` = $2 WHERE ` + column + ` = $1`
			if _, err := tx.Exec(ctx, stmt, oldName, newName); err != nil {
				if isUniqueViolation(err) {
					return chat.ErrNameTaken
				}
				return err
			}
		}
	}
	return tx.Commit(ctx)
}
